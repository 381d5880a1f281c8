package main

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/visitor-enrich/internal/config"
	"github.com/sells-group/visitor-enrich/internal/model"
	"github.com/sells-group/visitor-enrich/internal/resilience"
	"github.com/sells-group/visitor-enrich/internal/store"
)

func TestResolveVisitor_CreatesFromFlags(t *testing.T) {
	cfg = sqliteConfig(t)
	ctx := context.Background()
	gw, _, err := initStore(ctx)
	require.NoError(t, err)
	defer gw.Close() //nolint:errcheck
	require.NoError(t, gw.Migrate(ctx))

	enqueueIP, enqueueClientID, enqueueUserAgent = "203.0.113.7", "c1", "curl/8"
	t.Cleanup(func() { enqueueIP, enqueueClientID, enqueueUserAgent = "", "", "" })

	v, err := resolveVisitor(ctx, gw, "")
	require.NoError(t, err)
	assert.NotEmpty(t, v.ID)

	stored, err := gw.GetVisitor(ctx, v.ID)
	require.NoError(t, err)
	assert.Equal(t, "203.0.113.7", stored.IPAddress)
	assert.Equal(t, "c1", stored.ClientID)
	assert.False(t, stored.IsEnriched)

	again, err := resolveVisitor(ctx, gw, v.ID)
	require.NoError(t, err)
	assert.Equal(t, v.ID, again.ID)
}

func TestResolveVisitor_RequiresFlags(t *testing.T) {
	cfg = sqliteConfig(t)
	ctx := context.Background()
	gw, _, err := initStore(ctx)
	require.NoError(t, err)
	defer gw.Close() //nolint:errcheck
	require.NoError(t, gw.Migrate(ctx))

	_, err = resolveVisitor(ctx, gw, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--ip and --client-id")

	_, err = resolveVisitor(ctx, gw, "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestJobForVisitor(t *testing.T) {
	v := &model.Visitor{ID: "v1", IPAddress: "203.0.113.7", UserAgent: "curl/8", ClientID: "c1"}

	job := jobForVisitor(v, "u1")
	assert.NotEmpty(t, job.ID)
	assert.Equal(t, "v1", job.VisitorID)
	assert.Equal(t, "203.0.113.7", job.IPAddress)
	assert.Equal(t, "curl/8", job.UserAgent)
	assert.Equal(t, "c1", job.ClientID)
	assert.Equal(t, "u1", job.UserID)
	assert.NotEqual(t, job.ID, jobForVisitor(v, "u1").ID)
}

func TestInitSource_UnsupportedDriver(t *testing.T) {
	cfg = &config.Config{Queue: config.QueueConfig{Driver: "sqs"}}

	_, err := initSource(context.Background(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported queue driver")

	_, _, err = initPublisher(context.Background(), nil)
	require.Error(t, err)
}

func TestInitSource_PostgresNeedsPool(t *testing.T) {
	cfg = &config.Config{Queue: config.QueueConfig{Driver: "postgres", Name: "enrichment"}}

	_, err := initSource(context.Background(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "requires the postgres store")
}

func TestPostgresQueueConfig(t *testing.T) {
	cfg = &config.Config{
		Queue:  config.QueueConfig{Name: "visits", MaxAttempts: 3, PollIntervalMs: 250, RetryBaseSecs: 10},
		Worker: config.WorkerConfig{JobTimeoutSecs: 60},
	}

	qc := postgresQueueConfig()
	assert.Equal(t, "visits", qc.Queue)
	assert.Equal(t, 3, qc.MaxAttempts)
	assert.Equal(t, 250*time.Millisecond, qc.PollInterval)
	assert.Equal(t, 10*time.Second, qc.RetryBase)
	assert.Equal(t, 2*time.Minute, qc.Lease)
}

func TestInitDeadLetters_NeedsPostgresQueue(t *testing.T) {
	cfg = &config.Config{Queue: config.QueueConfig{Driver: "amqp", AMQPURL: "amqp://localhost", Name: "enrichment"}}

	_, _, err := initDeadLetters(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "queue.driver postgres")
}

func TestFormatDeadLetters(t *testing.T) {
	failedAt := time.Date(2026, 3, 1, 11, 0, 0, 0, time.UTC)
	entries := []resilience.DLQEntry{
		{
			ID:           "job-1",
			Job:          model.EnrichmentJob{VisitorID: "v1"},
			Error:        "worker: create lead: connection refused",
			ErrorType:    resilience.ErrorTypeTransient,
			Attempts:     5,
			MaxAttempts:  5,
			LastFailedAt: failedAt,
		},
		{
			ID:           "job-2",
			Job:          model.EnrichmentJob{VisitorID: "v2"},
			Error:        "visitor v2 not found",
			ErrorType:    resilience.ErrorTypePermanent,
			Attempts:     1,
			MaxAttempts:  5,
			LastFailedAt: failedAt,
		},
	}

	var buf bytes.Buffer
	formatDeadLetters(&buf, entries)

	out := buf.String()
	assert.Contains(t, out, "REQUEUE")
	assert.Contains(t, out, "job-1")
	assert.Contains(t, out, "5/5")
	assert.Contains(t, out, "--force")
	assert.Contains(t, out, "2026-03-01 11:00")
	assert.Contains(t, out, "visitor v2 not found")
}
