// Package lead merges contact provider results into a scored lead.
package lead

import (
	"github.com/sells-group/visitor-enrich/internal/model"
)

// Merge combines results walked in the given (priority) order. The first
// non-null value seen for a key wins; later providers only fill gaps.
// Confidence plays no part. Empty results contribute nothing.
func Merge(results []model.ProviderResult) model.Fields {
	merged := make(model.Fields)
	for _, r := range results {
		if r.Empty() {
			continue
		}
		for k, v := range r.Data {
			if merged.Has(k) || !r.Data.Has(k) {
				continue
			}
			merged[k] = v
		}
	}
	return merged
}

// Qualifies reports whether merged data may become a lead: it needs an
// email or a company.
func Qualifies(f model.Fields) bool {
	return f.Has(model.FieldEmail) || f.Has(model.FieldCompany)
}

// FromFields builds an unsaved lead from merged data. It returns nil when
// the data does not qualify.
func FromFields(f model.Fields, job model.EnrichmentJob, companyID *int64) *model.Lead {
	if !Qualifies(f) {
		return nil
	}
	return &model.Lead{
		ClientID:     job.ClientID,
		VisitorID:    job.VisitorID,
		UserID:       job.UserID,
		CompanyID:    companyID,
		Email:        f.String(model.FieldEmail),
		FirstName:    f.String(model.FieldFirstName),
		LastName:     f.String(model.FieldLastName),
		Company:      f.String(model.FieldCompany),
		Title:        f.String(model.FieldTitle),
		Phone:        f.String(model.FieldPhone),
		LinkedInURL:  f.String(model.FieldLinkedInURL),
		TwitterURL:   f.String(model.FieldTwitterURL),
		FacebookURL:  f.String(model.FieldFacebookURL),
		InstagramURL: f.String(model.FieldInstagramURL),
		Website:      f.String(model.FieldWebsite),
		Location:     f.String(model.FieldLocation),
		Industry:     f.String(model.FieldIndustry),
		CompanySize:  f.String(model.FieldCompanySize),
		Revenue:      f.String(model.FieldRevenue),
		Description:  f.String(model.FieldDescription),
		Score:        Score(f),
		Source:       model.LeadSourceEnrichment,
	}
}
