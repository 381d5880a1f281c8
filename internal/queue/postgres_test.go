package queue

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/visitor-enrich/internal/model"
	"github.com/sells-group/visitor-enrich/internal/resilience"
)

const validPayload = `{"visitor_id":"v1","ip_address":"8.8.8.8","client_id":"c1","user_id":"u1"}`

func newMockSource(t *testing.T) (*PostgresSource, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	s := NewPostgresSource(mock, PostgresConfig{PollInterval: time.Hour})
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return fixed }
	return s, mock
}

func jobRow(id, payload string, attempts, maxAttempts int) *pgxmock.Rows {
	return pgxmock.NewRows([]string{"id", "payload", "attempts", "max_attempts"}).
		AddRow(id, []byte(payload), attempts, maxAttempts)
}

func expectClaim(mock pgxmock.PgxPoolIface, rows *pgxmock.Rows) {
	mock.ExpectBegin()
	mock.ExpectQuery(`FOR UPDATE SKIP LOCKED`).
		WithArgs("enrichment", pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnRows(rows)
	mock.ExpectExec(`SET status = 'running'`).
		WithArgs(1, pgxmock.AnyArg(), pgxmock.AnyArg(), "j1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()
}

func TestPostgresSource_NextClaimsAndAcks(t *testing.T) {
	s, mock := newMockSource(t)
	expectClaim(mock, jobRow("j1", validPayload, 0, 5))
	mock.ExpectExec(`SET status = 'done'`).
		WithArgs(pgxmock.AnyArg(), "j1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	d, err := s.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "j1", d.Job.ID)
	assert.Equal(t, "v1", d.Job.VisitorID)
	assert.Equal(t, 1, d.Job.Attempt)

	require.NoError(t, d.Ack(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresSource_ClaimsVisitorOnlyJob(t *testing.T) {
	s, mock := newMockSource(t)
	expectClaim(mock, jobRow("j1", `{"visitor_id":"v1"}`, 0, 5))

	d, err := s.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "v1", d.Job.VisitorID)
	assert.Empty(t, d.Job.IPAddress)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresSource_NextWaitsUntilCancelled(t *testing.T) {
	s, mock := newMockSource(t)
	mock.ExpectBegin()
	mock.ExpectQuery(`FOR UPDATE SKIP LOCKED`).
		WithArgs("enrichment", pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectRollback()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := s.Next(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresSource_MalformedGoesDead(t *testing.T) {
	s, mock := newMockSource(t)
	mock.ExpectBegin()
	mock.ExpectQuery(`FOR UPDATE SKIP LOCKED`).
		WithArgs("enrichment", pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnRows(jobRow("bad", `{"visitor_id":`, 0, 5))
	mock.ExpectExec(`SET status = 'dead'`).
		WithArgs(1, pgxmock.AnyArg(), resilience.ErrorTypePermanent, pgxmock.AnyArg(), "bad").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	d, err := s.claim(context.Background())
	require.NoError(t, err)
	assert.Nil(t, d)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresSource_FailTransientRequeues(t *testing.T) {
	s, mock := newMockSource(t)
	expectClaim(mock, jobRow("j1", validPayload, 0, 5))
	mock.ExpectExec(`SET status = 'pending'`).
		WithArgs(pgxmock.AnyArg(), "db down", resilience.ErrorTypeTransient, pgxmock.AnyArg(), "j1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	d, err := s.Next(context.Background())
	require.NoError(t, err)
	require.NoError(t, d.Fail(context.Background(), eris.New("db down")))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresSource_FailPermanentGoesDead(t *testing.T) {
	s, mock := newMockSource(t)
	expectClaim(mock, jobRow("j1", validPayload, 0, 5))
	mock.ExpectExec(`SET status = 'dead'`).
		WithArgs("visitor gone", resilience.ErrorTypePermanent, pgxmock.AnyArg(), "j1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	d, err := s.Next(context.Background())
	require.NoError(t, err)
	require.NoError(t, d.Fail(context.Background(), resilience.NewPermanentError(eris.New("visitor gone"))))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresSource_FailOnLastAttemptGoesDead(t *testing.T) {
	s, mock := newMockSource(t)
	mock.ExpectBegin()
	mock.ExpectQuery(`FOR UPDATE SKIP LOCKED`).
		WithArgs("enrichment", pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnRows(jobRow("j1", validPayload, 4, 5))
	mock.ExpectExec(`SET status = 'running'`).
		WithArgs(5, pgxmock.AnyArg(), pgxmock.AnyArg(), "j1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()
	mock.ExpectExec(`SET status = 'dead'`).
		WithArgs("db down", resilience.ErrorTypeTransient, pgxmock.AnyArg(), "j1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	d, err := s.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5, d.Job.Attempt)
	require.NoError(t, d.Fail(context.Background(), eris.New("db down")))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresSource_DeadLetters(t *testing.T) {
	s, mock := newMockSource(t)
	failedAt := time.Date(2026, 3, 1, 11, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`status = 'dead'`).
		WithArgs("enrichment", 50).
		WillReturnRows(pgxmock.NewRows([]string{"id", "payload", "last_error", "error_type", "attempts", "max_attempts", "updated_at"}).
			AddRow("j1", []byte(validPayload), "db down", resilience.ErrorTypeTransient, 5, 5, failedAt).
			AddRow("j2", []byte(`{}`), "malformed", resilience.ErrorTypePermanent, 1, 5, failedAt))

	entries, err := s.DeadLetters(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "v1", entries[0].Job.VisitorID)
	assert.Equal(t, "j1", entries[0].Job.ID)
	assert.False(t, entries[0].CanRetry())
	assert.Equal(t, resilience.ErrorTypePermanent, entries[1].ErrorType)
	assert.Equal(t, failedAt, entries[1].LastFailedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresSource_CountDead(t *testing.T) {
	s, mock := newMockSource(t)
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM enrichment_jobs`).
		WithArgs("enrichment").
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(3))

	n, err := s.CountDead(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresSource_Requeue(t *testing.T) {
	s, mock := newMockSource(t)
	mock.ExpectExec(`SET status = 'pending', attempts = 0`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), "j1", "enrichment", false).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(`SET status = 'pending', attempts = 0`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), "j2", "enrichment", false).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	require.NoError(t, s.Requeue(context.Background(), "j1", false))
	err := s.Requeue(context.Background(), "j2", false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no requeueable dead job j2")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresPublisher_Publish(t *testing.T) {
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer mock.Close()

	p := NewPostgresPublisher(mock, PostgresConfig{MaxAttempts: 3})
	mock.ExpectExec(`INSERT INTO enrichment_jobs .* ON CONFLICT \(id\) DO NOTHING`).
		WithArgs("j1", "enrichment", pgxmock.AnyArg(), 3, pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err = p.Publish(context.Background(), model.EnrichmentJob{ID: "j1", VisitorID: "v1", IPAddress: "8.8.8.8", ClientID: "c1"})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
