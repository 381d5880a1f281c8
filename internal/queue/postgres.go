package queue

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/visitor-enrich/internal/db"
	"github.com/sells-group/visitor-enrich/internal/model"
	"github.com/sells-group/visitor-enrich/internal/resilience"
)

// PostgresConfig tunes the table-backed queue.
type PostgresConfig struct {
	Queue        string
	MaxAttempts  int
	PollInterval time.Duration
	// RetryBase is the first redelivery delay; later ones double.
	RetryBase time.Duration
	// Lease is how long a running job may stay claimed before another
	// worker may take it over.
	Lease time.Duration
}

func (c PostgresConfig) withDefaults() PostgresConfig {
	if c.Queue == "" {
		c.Queue = "enrichment"
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 5
	}
	if c.PollInterval <= 0 {
		c.PollInterval = time.Second
	}
	if c.RetryBase <= 0 {
		c.RetryBase = 5 * time.Second
	}
	if c.Lease <= 0 {
		c.Lease = 5 * time.Minute
	}
	return c
}

// PostgresSource claims jobs from enrichment_jobs with FOR UPDATE SKIP LOCKED.
type PostgresSource struct {
	pool db.Pool
	cfg  PostgresConfig
	now  func() time.Time
}

var _ Source = (*PostgresSource)(nil)

// NewPostgresSource builds a source on a pool it does not own.
func NewPostgresSource(pool db.Pool, cfg PostgresConfig) *PostgresSource {
	return &PostgresSource{pool: pool, cfg: cfg.withDefaults(), now: time.Now}
}

// Next polls until a job is claimed or ctx is done.
func (s *PostgresSource) Next(ctx context.Context) (*Delivery, error) {
	for {
		d, err := s.claim(ctx)
		if err != nil {
			return nil, err
		}
		if d != nil {
			return d, nil
		}

		timer := time.NewTimer(s.cfg.PollInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}

func (s *PostgresSource) Close() error { return nil }

type claimedRow struct {
	id          string
	payload     []byte
	attempts    int
	maxAttempts int
}

// claim returns nil, nil when nothing is ready. Malformed payloads are
// moved to dead in the same transaction.
func (s *PostgresSource) claim(ctx context.Context) (d *Delivery, err error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "queue: begin claim")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	now := s.now().UTC()
	var row claimedRow
	err = tx.QueryRow(ctx, `
		SELECT id, payload, attempts, max_attempts FROM enrichment_jobs
		WHERE queue = $1
		  AND ((status = 'pending' AND run_at <= $2) OR (status = 'running' AND locked_at < $3))
		ORDER BY run_at
		FOR UPDATE SKIP LOCKED
		LIMIT 1`,
		s.cfg.Queue, now, now.Add(-s.cfg.Lease),
	).Scan(&row.id, &row.payload, &row.attempts, &row.maxAttempts)
	if errors.Is(err, pgx.ErrNoRows) {
		_ = tx.Rollback(ctx)
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "queue: select next job")
	}

	row.attempts++
	job, decodeErr := DecodeJob(row.payload)
	if decodeErr != nil {
		zap.L().Error("queue: dead-lettering malformed job",
			zap.String("job_id", row.id),
			zap.Error(decodeErr),
		)
		if _, err = tx.Exec(ctx, `
			UPDATE enrichment_jobs SET status = 'dead', attempts = $1, last_error = $2, error_type = $3, updated_at = $4
			WHERE id = $5`,
			row.attempts, decodeErr.Error(), resilience.ErrorTypePermanent, now, row.id,
		); err != nil {
			return nil, eris.Wrap(err, "queue: dead-letter malformed job")
		}
		if err = tx.Commit(ctx); err != nil {
			return nil, eris.Wrap(err, "queue: commit dead-letter")
		}
		return nil, nil
	}

	if _, err = tx.Exec(ctx, `
		UPDATE enrichment_jobs SET status = 'running', attempts = $1, locked_at = $2, updated_at = $3
		WHERE id = $4`,
		row.attempts, now, now, row.id,
	); err != nil {
		return nil, eris.Wrap(err, "queue: mark running")
	}
	if err = tx.Commit(ctx); err != nil {
		return nil, eris.Wrap(err, "queue: commit claim")
	}

	job.ID = row.id
	job.Attempt = row.attempts
	return &Delivery{
		Job:  job,
		ack:  func(ctx context.Context) error { return s.ack(ctx, row.id) },
		fail: func(ctx context.Context, cause error) error { return s.fail(ctx, row, cause) },
	}, nil
}

func (s *PostgresSource) ack(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE enrichment_jobs SET status = 'done', locked_at = NULL, updated_at = $1
		WHERE id = $2`,
		s.now().UTC(), id)
	return eris.Wrapf(err, "queue: ack job %s", id)
}

func (s *PostgresSource) fail(ctx context.Context, row claimedRow, cause error) error {
	now := s.now().UTC()
	errType := resilience.ClassifyError(cause)

	if errType == resilience.ErrorTypePermanent || row.attempts >= row.maxAttempts {
		_, err := s.pool.Exec(ctx, `
			UPDATE enrichment_jobs SET status = 'dead', locked_at = NULL, last_error = $1, error_type = $2, updated_at = $3
			WHERE id = $4`,
			errorText(cause), errType, now, row.id)
		return eris.Wrapf(err, "queue: dead-letter job %s", row.id)
	}

	delay := resilience.Backoff(resilience.RetryConfig{
		InitialBackoff: s.cfg.RetryBase,
		MaxBackoff:     s.cfg.RetryBase * 64,
		Multiplier:     2,
		JitterFraction: 0.1,
	}, row.attempts-1)
	_, err := s.pool.Exec(ctx, `
		UPDATE enrichment_jobs SET status = 'pending', locked_at = NULL, run_at = $1, last_error = $2, error_type = $3, updated_at = $4
		WHERE id = $5`,
		now.Add(delay), errorText(cause), errType, now, row.id)
	return eris.Wrapf(err, "queue: requeue job %s", row.id)
}

// DeadLetters lists the most recently dead-lettered jobs.
func (s *PostgresSource) DeadLetters(ctx context.Context, limit int) ([]resilience.DLQEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, payload, last_error, error_type, attempts, max_attempts, updated_at
		FROM enrichment_jobs WHERE queue = $1 AND status = 'dead'
		ORDER BY updated_at DESC LIMIT $2`,
		s.cfg.Queue, limit)
	if err != nil {
		return nil, eris.Wrap(err, "queue: list dead letters")
	}
	defer rows.Close()

	var entries []resilience.DLQEntry
	for rows.Next() {
		var (
			e       resilience.DLQEntry
			payload []byte
		)
		if err := rows.Scan(&e.ID, &payload, &e.Error, &e.ErrorType, &e.Attempts, &e.MaxAttempts, &e.LastFailedAt); err != nil {
			return nil, eris.Wrap(err, "queue: scan dead letter")
		}
		// Malformed payloads still list; their Job stays partially filled.
		e.Job, _ = DecodeJob(payload)
		e.Job.ID = e.ID
		entries = append(entries, e)
	}
	return entries, eris.Wrap(rows.Err(), "queue: iterate dead letters")
}

// CountDead reports how many jobs on this queue are dead-lettered.
func (s *PostgresSource) CountDead(ctx context.Context) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM enrichment_jobs WHERE queue = $1 AND status = 'dead'`,
		s.cfg.Queue).Scan(&n)
	if err != nil {
		return 0, eris.Wrap(err, "queue: count dead letters")
	}
	return n, nil
}

// Requeue moves a dead job back to pending with a fresh attempt budget.
// Permanent failures are refused unless force is set.
func (s *PostgresSource) Requeue(ctx context.Context, id string, force bool) error {
	now := s.now().UTC()
	tag, err := s.pool.Exec(ctx, `
		UPDATE enrichment_jobs SET status = 'pending', attempts = 0, run_at = $1, updated_at = $2
		WHERE id = $3 AND queue = $4 AND status = 'dead' AND ($5 OR error_type <> 'permanent')`,
		now, now, id, s.cfg.Queue, force)
	if err != nil {
		return eris.Wrapf(err, "queue: requeue %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("queue: no requeueable dead job %s", id)
	}
	return nil
}

// PostgresPublisher inserts jobs into enrichment_jobs.
type PostgresPublisher struct {
	pool db.Pool
	cfg  PostgresConfig
}

var _ Publisher = (*PostgresPublisher)(nil)

// NewPostgresPublisher builds a publisher on a pool it does not own.
func NewPostgresPublisher(pool db.Pool, cfg PostgresConfig) *PostgresPublisher {
	return &PostgresPublisher{pool: pool, cfg: cfg.withDefaults()}
}

// Publish enqueues job. Publishing the same job id twice is a no-op.
func (p *PostgresPublisher) Publish(ctx context.Context, job model.EnrichmentJob) error {
	if job.ID == "" {
		job.ID = uuid.New().String()
	}
	body, err := encodeJob(job)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	_, err = p.pool.Exec(ctx, `
		INSERT INTO enrichment_jobs (id, queue, payload, status, max_attempts, run_at, created_at, updated_at)
		VALUES ($1, $2, $3, 'pending', $4, $5, $6, $7)
		ON CONFLICT (id) DO NOTHING`,
		job.ID, p.cfg.Queue, string(body), p.cfg.MaxAttempts, now, now, now)
	return eris.Wrapf(err, "queue: publish job %s", job.ID)
}

func (p *PostgresPublisher) Close() error { return nil }
