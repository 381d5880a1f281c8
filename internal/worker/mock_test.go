package worker

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/sells-group/visitor-enrich/internal/model"
	"github.com/sells-group/visitor-enrich/internal/waterfall/provider"
)

type mockGateway struct {
	mock.Mock
}

func (m *mockGateway) GetVisitor(ctx context.Context, id string) (*model.Visitor, error) {
	args := m.Called(ctx, id)
	v, _ := args.Get(0).(*model.Visitor)
	return v, args.Error(1)
}

func (m *mockGateway) CreateVisitor(ctx context.Context, v *model.Visitor) error {
	return m.Called(ctx, v).Error(0)
}

func (m *mockGateway) MarkVisitorEnriched(ctx context.Context, id string, companyID *int64) error {
	return m.Called(ctx, id, companyID).Error(0)
}

func (m *mockGateway) UpsertCompanyByDomain(ctx context.Context, identity *model.CompanyIdentity) (*model.Company, error) {
	args := m.Called(ctx, identity)
	c, _ := args.Get(0).(*model.Company)
	return c, args.Error(1)
}

func (m *mockGateway) CreateLead(ctx context.Context, l *model.Lead) (*model.Lead, bool, error) {
	args := m.Called(ctx, l)
	stored, _ := args.Get(0).(*model.Lead)
	return stored, args.Bool(1), args.Error(2)
}

func (m *mockGateway) RecordProviderResult(ctx context.Context, leadID string, result model.ProviderResult) error {
	return m.Called(ctx, leadID, result).Error(0)
}

func (m *mockGateway) Ping(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *mockGateway) Migrate(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *mockGateway) Close() error {
	return m.Called().Error(0)
}

type stubResolver struct {
	identity *model.CompanyIdentity
	gotIP    string
	gotUA    string
}

func (s *stubResolver) Resolve(_ context.Context, ip, userAgent string) *model.CompanyIdentity {
	s.gotIP, s.gotUA = ip, userAgent
	return s.identity
}

type stubContacts struct {
	results []model.ProviderResult
	got     provider.ContactRequest
	calls   int
}

func (s *stubContacts) Enrich(_ context.Context, req provider.ContactRequest) []model.ProviderResult {
	s.calls++
	s.got = req
	return s.results
}
