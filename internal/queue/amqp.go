package queue

import (
	"context"
	"sync"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/visitor-enrich/internal/model"
	"github.com/sells-group/visitor-enrich/internal/resilience"
)

// AMQPConfig names the broker topology. Queue is the work queue; the dead
// letter exchange and queue derive from it.
type AMQPConfig struct {
	URL         string
	Queue       string
	MaxAttempts int
	Prefetch    int
}

func (c AMQPConfig) dlx() string { return c.Queue + ".dlx" }
func (c AMQPConfig) dlq() string { return c.Queue + ".dlq" }

// deliveryCountHeader is set by RabbitMQ on quorum queue redeliveries.
const deliveryCountHeader = "x-delivery-count"

// DialAMQP connects to the broker, retrying while it comes up, and declares
// the topology.
func DialAMQP(ctx context.Context, cfg AMQPConfig) (*amqp.Connection, error) {
	var conn *amqp.Connection
	err := resilience.Do(ctx, resilience.RetryConfig{
		ShouldRetry: func(error) bool { return true },
		OnRetry:     resilience.RetryLogger("amqp", "dial"),
	}, func(ctx context.Context) error {
		c, err := amqp.Dial(cfg.URL)
		if err != nil {
			return eris.Wrap(err, "queue: amqp dial")
		}
		conn = c
		return nil
	})
	if err != nil {
		return nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close() //nolint:errcheck
		return nil, eris.Wrap(err, "queue: amqp channel")
	}
	defer ch.Close() //nolint:errcheck
	if err := declareTopology(ch, cfg); err != nil {
		conn.Close() //nolint:errcheck
		return nil, err
	}
	return conn, nil
}

// declareTopology sets up a durable quorum work queue whose rejected or
// over-delivered messages route to a dead-letter queue.
func declareTopology(ch *amqp.Channel, cfg AMQPConfig) error {
	if err := ch.ExchangeDeclare(cfg.dlx(), amqp.ExchangeDirect, true, false, false, false, nil); err != nil {
		return eris.Wrap(err, "queue: declare dead-letter exchange")
	}
	if _, err := ch.QueueDeclare(cfg.dlq(), true, false, false, false, nil); err != nil {
		return eris.Wrap(err, "queue: declare dead-letter queue")
	}
	if err := ch.QueueBind(cfg.dlq(), cfg.Queue, cfg.dlx(), false, nil); err != nil {
		return eris.Wrap(err, "queue: bind dead-letter queue")
	}

	args := amqp.Table{
		amqp.QueueTypeArg:           amqp.QueueTypeQuorum,
		"x-dead-letter-exchange":    cfg.dlx(),
		"x-dead-letter-routing-key": cfg.Queue,
	}
	if cfg.MaxAttempts > 0 {
		args["x-delivery-limit"] = int32(cfg.MaxAttempts)
	}
	if _, err := ch.QueueDeclare(cfg.Queue, true, false, false, false, args); err != nil {
		return eris.Wrap(err, "queue: declare work queue")
	}
	return nil
}

// AMQPSource consumes jobs from a RabbitMQ queue with manual acks.
type AMQPSource struct {
	deliveries <-chan amqp.Delivery
	closeFn    func() error
	once       sync.Once
}

var _ Source = (*AMQPSource)(nil)

// NewAMQPSource opens a channel on conn and starts consuming. prefetch
// bounds unacknowledged deliveries and should match the worker pool size.
func NewAMQPSource(conn *amqp.Connection, cfg AMQPConfig) (*AMQPSource, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, eris.Wrap(err, "queue: amqp channel")
	}
	if cfg.Prefetch > 0 {
		if err := ch.Qos(cfg.Prefetch, 0, false); err != nil {
			ch.Close() //nolint:errcheck
			return nil, eris.Wrap(err, "queue: amqp qos")
		}
	}
	deliveries, err := ch.Consume(cfg.Queue, "", false, false, false, false, nil)
	if err != nil {
		ch.Close() //nolint:errcheck
		return nil, eris.Wrap(err, "queue: amqp consume")
	}
	return newAMQPSource(deliveries, ch.Close), nil
}

func newAMQPSource(deliveries <-chan amqp.Delivery, closeFn func() error) *AMQPSource {
	return &AMQPSource{deliveries: deliveries, closeFn: closeFn}
}

// Next waits for the next well-formed delivery. Malformed ones are rejected
// to the dead-letter queue and skipped.
func (s *AMQPSource) Next(ctx context.Context) (*Delivery, error) {
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case d, ok := <-s.deliveries:
			if !ok {
				return nil, eris.New("queue: amqp delivery channel closed")
			}
			if del := s.wrap(d); del != nil {
				return del, nil
			}
		}
	}
}

func (s *AMQPSource) wrap(d amqp.Delivery) *Delivery {
	job, err := DecodeJob(d.Body)
	if err != nil {
		zap.L().Error("queue: rejecting malformed delivery",
			zap.String("message_id", d.MessageId),
			zap.Error(err),
		)
		if nackErr := d.Nack(false, false); nackErr != nil {
			zap.L().Warn("queue: nack malformed delivery", zap.Error(nackErr))
		}
		return nil
	}

	if job.ID == "" {
		job.ID = d.MessageId
	}
	job.Attempt = 1
	if n, ok := d.Headers[deliveryCountHeader].(int64); ok {
		job.Attempt = int(n) + 1
	}

	return &Delivery{
		Job: job,
		ack: func(context.Context) error {
			return eris.Wrap(d.Ack(false), "queue: amqp ack")
		},
		fail: func(_ context.Context, cause error) error {
			requeue := resilience.ClassifyError(cause) == resilience.ErrorTypeTransient
			return eris.Wrap(d.Nack(false, requeue), "queue: amqp nack")
		},
	}
}

// Close stops consuming by closing the channel.
func (s *AMQPSource) Close() error {
	var err error
	s.once.Do(func() {
		if s.closeFn != nil {
			err = s.closeFn()
		}
	})
	return err
}

type amqpPublishChannel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// AMQPPublisher publishes jobs as persistent JSON messages.
type AMQPPublisher struct {
	ch    amqpPublishChannel
	queue string
}

var _ Publisher = (*AMQPPublisher)(nil)

// NewAMQPPublisher opens a channel on conn.
func NewAMQPPublisher(conn *amqp.Connection, cfg AMQPConfig) (*AMQPPublisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, eris.Wrap(err, "queue: amqp channel")
	}
	return &AMQPPublisher{ch: ch, queue: cfg.Queue}, nil
}

// Publish sends job to the work queue through the default exchange.
func (p *AMQPPublisher) Publish(ctx context.Context, job model.EnrichmentJob) error {
	if job.ID == "" {
		job.ID = uuid.New().String()
	}
	body, err := encodeJob(job)
	if err != nil {
		return err
	}
	err = p.ch.PublishWithContext(ctx, "", p.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    job.ID,
		Body:         body,
	})
	return eris.Wrapf(err, "queue: amqp publish job %s", job.ID)
}

func (p *AMQPPublisher) Close() error {
	return p.ch.Close()
}
