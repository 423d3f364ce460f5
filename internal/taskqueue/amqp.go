package taskqueue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/sevigo/scan-dispatch/internal/config"
)

// amqpConn owns a connection and a channel with the task exchange, queue and
// binding declared.
type amqpConn struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	cfg     *config.QueueConfig
	logger  *slog.Logger
}

func dialAMQP(cfg *config.QueueConfig, logger *slog.Logger) (*amqpConn, error) {
	conn, err := amqp.DialConfig(cfg.AMQPURL, amqp.Config{
		Heartbeat: 10 * time.Second,
		Locale:    "en_US",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to create channel: %w", err)
	}

	c := &amqpConn{conn: conn, channel: ch, cfg: cfg, logger: logger}
	if err := c.setup(); err != nil {
		c.close()
		return nil, fmt.Errorf("failed to setup exchange and queue: %w", err)
	}

	logger.Info("RabbitMQ channel ready", "exchange", cfg.Exchange, "queue", cfg.QueueName)
	return c, nil
}

func (c *amqpConn) setup() error {
	err := c.channel.ExchangeDeclare(
		c.cfg.Exchange, // name
		"direct",       // type
		true,           // durable
		false,          // auto-deleted
		false,          // internal
		false,          // no-wait
		nil,            // arguments
	)
	if err != nil {
		return fmt.Errorf("failed to declare exchange: %w", err)
	}

	_, err = c.channel.QueueDeclare(
		c.cfg.QueueName, // name
		true,            // durable
		false,           // auto-delete
		false,           // exclusive
		false,           // no-wait
		nil,             // arguments
	)
	if err != nil {
		return fmt.Errorf("failed to declare queue: %w", err)
	}

	if err := c.channel.QueueBind(c.cfg.QueueName, c.cfg.RoutingKey, c.cfg.Exchange, false, nil); err != nil {
		return fmt.Errorf("failed to bind queue: %w", err)
	}
	return nil
}

func (c *amqpConn) close() {
	if c.channel != nil {
		if err := c.channel.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
			c.logger.Error("failed to close RabbitMQ channel", "error", err)
		}
	}
	if c.conn != nil {
		if err := c.conn.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
			c.logger.Error("failed to close RabbitMQ connection", "error", err)
		}
	}
}

// publisher is the part of an AMQP channel the scheduler uses.
type publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// AMQPScheduler publishes envelopes to RabbitMQ. The Relay performs the HTTP
// delivery on the consuming side.
type AMQPScheduler struct {
	mu  sync.Mutex
	pub publisher
	cfg *config.QueueConfig
}

// NewAMQPScheduler connects to RabbitMQ and declares the task topology.
func NewAMQPScheduler(cfg *config.QueueConfig, logger *slog.Logger) (*AMQPScheduler, func(), error) {
	c, err := dialAMQP(cfg, logger)
	if err != nil {
		return nil, func() {}, err
	}
	return &AMQPScheduler{pub: c.channel, cfg: cfg}, c.close, nil
}

// Schedule publishes a persistent message whose broker-side TTL equals the
// task lifetime.
func (s *AMQPScheduler) Schedule(ctx context.Context, req ScheduleRequest) (*TaskHandle, error) {
	msg, err := buildPublishing(req)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.pub.PublishWithContext(ctx, s.cfg.Exchange, s.cfg.RoutingKey, false, false, msg); err != nil {
		return nil, fmt.Errorf("failed to publish task: %w", err)
	}
	return &TaskHandle{Name: s.cfg.QueueName + "/" + req.TaskName, ScheduleTime: req.NotBefore}, nil
}

// buildPublishing encodes req as an envelope. Expiration is the lifetime in
// milliseconds, as RabbitMQ expects.
func buildPublishing(req ScheduleRequest) (amqp.Publishing, error) {
	body, err := json.Marshal(NewEnvelope(req))
	if err != nil {
		return amqp.Publishing{}, fmt.Errorf("encode envelope: %w", err)
	}

	msg := amqp.Publishing{
		ContentType:  "application/json",
		Body:         body,
		DeliveryMode: amqp.Persistent,
		MessageId:    req.TaskName,
		Timestamp:    req.NotBefore,
	}
	if req.MaxLifetime > 0 {
		msg.Expiration = strconv.FormatInt(req.MaxLifetime.Milliseconds(), 10)
	}
	return msg, nil
}

// Relay consumes envelopes from RabbitMQ and delivers them over HTTP, giving
// the AMQP backend the push semantics of a managed task queue.
type Relay struct {
	c           *amqpConn
	deliverer   *Deliverer
	concurrency int
	logger      *slog.Logger
}

// NewRelay connects to RabbitMQ for consuming.
func NewRelay(cfg *config.QueueConfig, deliverer *Deliverer, logger *slog.Logger) (*Relay, func(), error) {
	c, err := dialAMQP(cfg, logger)
	if err != nil {
		return nil, func() {}, err
	}
	concurrency := cfg.RelayConcurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Relay{c: c, deliverer: deliverer, concurrency: concurrency, logger: logger}, c.close, nil
}

// Run consumes until ctx is done or the channel closes. At most concurrency
// deliveries are in flight; each is acked once delivered or expired.
func (r *Relay) Run(ctx context.Context) error {
	if err := r.c.channel.Qos(r.concurrency, 0, false); err != nil {
		return fmt.Errorf("failed to set QoS: %w", err)
	}

	deliveries, err := r.c.channel.Consume(
		r.c.cfg.QueueName, // queue
		"",                // consumer tag
		false,             // auto-ack
		false,             // exclusive
		false,             // no-local
		false,             // no-wait
		nil,               // args
	)
	if err != nil {
		return fmt.Errorf("failed to consume messages: %w", err)
	}
	r.logger.Info("relay started", "queue", r.c.cfg.QueueName, "concurrency", r.concurrency)

	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("relay stopping")
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("delivery channel closed")
			}
			wg.Add(1)
			go func() {
				defer wg.Done()
				r.handle(ctx, d)
			}()
		}
	}
}

func (r *Relay) handle(ctx context.Context, d amqp.Delivery) {
	var env Envelope
	if err := json.Unmarshal(d.Body, &env); err != nil || env.CallbackURL == "" {
		r.logger.Error("dropping malformed task envelope", "message_id", d.MessageId, "error", err)
		if nackErr := d.Nack(false, false); nackErr != nil {
			r.logger.Error("failed to NACK malformed message", "error", nackErr)
		}
		return
	}

	err := r.deliverer.Deliver(ctx, env)
	switch {
	case err == nil:
	case errors.Is(err, ErrTaskExpired):
		r.logger.Error("giving up on task", "task", env.TaskName, "error", err)
	case ctx.Err() != nil:
		// shutting down; hand the task back to the broker
		if nackErr := d.Nack(false, true); nackErr != nil {
			r.logger.Error("failed to requeue message on shutdown", "error", nackErr)
		}
		return
	default:
		r.logger.Error("task delivery failed", "task", env.TaskName, "error", err)
	}

	if ackErr := d.Ack(false); ackErr != nil {
		r.logger.Error("failed to ACK message", "task", env.TaskName, "error", ackErr)
	}
}
