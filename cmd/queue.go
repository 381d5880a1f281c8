package main

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rotisserie/eris"

	"github.com/sells-group/visitor-enrich/internal/monitoring"
	"github.com/sells-group/visitor-enrich/internal/queue"
)

// jobQueue bundles the configured transport's consumer side.
type jobQueue struct {
	Source queue.Source
	// Dead is nil for transports that cannot count dead letters.
	Dead monitoring.DeadLetterCounter

	conn *amqp.Connection
}

// Close stops consuming and drops the broker connection.
func (q *jobQueue) Close() {
	if q.Source != nil {
		_ = q.Source.Close()
	}
	if q.conn != nil {
		_ = q.conn.Close()
	}
}

// postgresQueueConfig leases a claimed job for twice the job timeout.
func postgresQueueConfig() queue.PostgresConfig {
	return queue.PostgresConfig{
		Queue:        cfg.Queue.Name,
		MaxAttempts:  cfg.Queue.MaxAttempts,
		PollInterval: time.Duration(cfg.Queue.PollIntervalMs) * time.Millisecond,
		RetryBase:    time.Duration(cfg.Queue.RetryBaseSecs) * time.Second,
		Lease:        2 * time.Duration(cfg.Worker.JobTimeoutSecs) * time.Second,
	}
}

func amqpQueueConfig() queue.AMQPConfig {
	return queue.AMQPConfig{
		URL:         cfg.Queue.AMQPURL,
		Queue:       cfg.Queue.Name,
		MaxAttempts: cfg.Queue.MaxAttempts,
		Prefetch:    cfg.Worker.Concurrency,
	}
}

// initSource opens the consumer side of the configured transport. pool is
// required for the postgres driver.
func initSource(ctx context.Context, pool *pgxpool.Pool) (*jobQueue, error) {
	switch cfg.Queue.Driver {
	case "postgres":
		if pool == nil {
			return nil, eris.New("queue driver postgres requires the postgres store")
		}
		src := queue.NewPostgresSource(pool, postgresQueueConfig())
		return &jobQueue{Source: src, Dead: src}, nil
	case "amqp":
		conn, err := queue.DialAMQP(ctx, amqpQueueConfig())
		if err != nil {
			return nil, err
		}
		src, err := queue.NewAMQPSource(conn, amqpQueueConfig())
		if err != nil {
			_ = conn.Close()
			return nil, err
		}
		return &jobQueue{Source: src, conn: conn}, nil
	default:
		return nil, eris.Errorf("unsupported queue driver: %s", cfg.Queue.Driver)
	}
}

// initPublisher opens the producer side of the configured transport. The
// returned func releases everything it opened.
func initPublisher(ctx context.Context, pool *pgxpool.Pool) (queue.Publisher, func(), error) {
	switch cfg.Queue.Driver {
	case "postgres":
		if pool == nil {
			return nil, nil, eris.New("queue driver postgres requires the postgres store")
		}
		return queue.NewPostgresPublisher(pool, postgresQueueConfig()), func() {}, nil
	case "amqp":
		conn, err := queue.DialAMQP(ctx, amqpQueueConfig())
		if err != nil {
			return nil, nil, err
		}
		pub, err := queue.NewAMQPPublisher(conn, amqpQueueConfig())
		if err != nil {
			_ = conn.Close()
			return nil, nil, err
		}
		return pub, func() {
			_ = pub.Close()
			_ = conn.Close()
		}, nil
	default:
		return nil, nil, eris.Errorf("unsupported queue driver: %s", cfg.Queue.Driver)
	}
}
