package bus

import (
	"context"
	"errors"
	"strings"
	"time"

	"orchard/internal/contracts"
	"orchard/internal/observability"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// StreamAppender is the minimal client surface used by RedisPublisher.
type StreamAppender interface {
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
}

// RedisPublisher appends messages to Redis Streams: events on the shared
// events stream, commands on the destination service's command stream.
type RedisPublisher struct {
	client StreamAppender
	maxLen int64
}

// NewRedisPublisher constructs a Redis-backed publisher. A positive
// maxLen caps stream length approximately.
func NewRedisPublisher(client StreamAppender, maxLen int64) *RedisPublisher {
	return &RedisPublisher{client: client, maxLen: maxLen}
}

// PublishEvent broadcasts an event on the events stream.
func (p *RedisPublisher) PublishEvent(ctx context.Context, evt contracts.Event) error {
	return p.append(ctx, EventsStream, evt)
}

// SendCommand appends a command to its destination's stream.
func (p *RedisPublisher) SendCommand(ctx context.Context, cmd contracts.Command) error {
	return p.append(ctx, CommandStream(cmd.Destination()), cmd)
}

func (p *RedisPublisher) append(ctx context.Context, stream string, msg contracts.Message) error {
	env, err := contracts.Wrap(msg)
	if err != nil {
		return err
	}

	args := &redis.XAddArgs{
		Stream: stream,
		Values: streamValues(env),
	}
	if p.maxLen > 0 {
		args.MaxLen = p.maxLen
		args.Approx = true
	}
	return p.client.XAdd(ctx, args).Err()
}

// ConsumerConfig configures one consumer-group reader.
type ConsumerConfig struct {
	Stream          string
	Group           string
	Name            string
	BatchSize       int64
	Block           time.Duration
	MaxAttempts     int64
	BackoffBase     time.Duration
	BackoffMax      time.Duration
	ReclaimInterval time.Duration
}

func (cfg ConsumerConfig) withDefaults() ConsumerConfig {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 16
	}
	if cfg.Block <= 0 {
		cfg.Block = 5 * time.Second
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = 500 * time.Millisecond
	}
	if cfg.BackoffMax <= 0 {
		cfg.BackoffMax = 30 * time.Second
	}
	if cfg.ReclaimInterval <= 0 {
		cfg.ReclaimInterval = time.Second
	}
	return cfg
}

// Consumer reads a stream through a consumer group and hands deliveries
// to a Handler. Failed deliveries stay pending and are reclaimed with
// exponential backoff; deliveries that exhaust the attempt budget are
// parked on the dead-letter stream.
type Consumer struct {
	client  redis.UniversalClient
	cfg     ConsumerConfig
	handler Handler
	logger  *zap.Logger
	metrics *observability.Metrics
}

// NewConsumer constructs a Consumer.
func NewConsumer(client redis.UniversalClient, cfg ConsumerConfig, handler Handler, logger *zap.Logger, metrics *observability.Metrics) *Consumer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Consumer{
		client:  client,
		cfg:     cfg.withDefaults(),
		handler: handler,
		logger:  logger,
		metrics: metrics,
	}
}

// Run consumes the stream until the context ends.
func (c *Consumer) Run(ctx context.Context) error {
	if err := c.ensureGroup(ctx); err != nil {
		return err
	}

	nextReclaim := time.Now().Add(c.cfg.ReclaimInterval)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		if time.Now().After(nextReclaim) {
			c.reclaim(ctx)
			nextReclaim = time.Now().Add(c.cfg.ReclaimInterval)
		}

		res, err := c.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    c.cfg.Group,
			Consumer: c.cfg.Name,
			Streams:  []string{c.cfg.Stream, ">"},
			Count:    c.cfg.BatchSize,
			Block:    c.cfg.Block,
		}).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.logger.Error("stream read failed",
				zap.String("stream", c.cfg.Stream),
				zap.Error(err))
			if err := sleepWithContext(ctx, c.cfg.BackoffBase); err != nil {
				return err
			}
			continue
		}

		for _, stream := range res {
			for _, msg := range stream.Messages {
				c.process(ctx, msg)
			}
		}
	}
}

func (c *Consumer) ensureGroup(ctx context.Context) error {
	err := c.client.XGroupCreateMkStream(ctx, c.cfg.Stream, c.cfg.Group, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return err
	}
	return nil
}

func (c *Consumer) process(ctx context.Context, msg redis.XMessage) {
	env, err := envelopeFromValues(msg.Values)
	if err != nil {
		// A malformed entry will never decode; park it immediately.
		c.logger.Error("malformed stream entry",
			zap.String("stream", c.cfg.Stream),
			zap.String("id", msg.ID),
			zap.Error(err))
		c.deadLetter(ctx, msg)
		return
	}

	if err := c.handler(ctx, env); err != nil {
		// Leave unacknowledged; the reclaim loop redelivers with backoff.
		c.logger.Warn("delivery failed, leaving pending",
			zap.String("stream", c.cfg.Stream),
			zap.String("kind", env.Kind),
			zap.String("correlation_id", env.CorrelationID.String()),
			zap.Error(err))
		return
	}

	if err := c.client.XAck(ctx, c.cfg.Stream, c.cfg.Group, msg.ID).Err(); err != nil {
		c.logger.Error("ack failed",
			zap.String("stream", c.cfg.Stream),
			zap.String("id", msg.ID),
			zap.Error(err))
	}
}

func (c *Consumer) reclaim(ctx context.Context) {
	pending, err := c.client.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream: c.cfg.Stream,
		Group:  c.cfg.Group,
		Start:  "-",
		End:    "+",
		Count:  c.cfg.BatchSize,
	}).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) && ctx.Err() == nil {
			c.logger.Error("pending scan failed",
				zap.String("stream", c.cfg.Stream),
				zap.Error(err))
		}
		return
	}

	for _, entry := range pending {
		delay := c.redeliveryDelay(entry.RetryCount)
		if entry.Idle < delay {
			continue
		}

		claimed, err := c.client.XClaim(ctx, &redis.XClaimArgs{
			Stream:   c.cfg.Stream,
			Group:    c.cfg.Group,
			Consumer: c.cfg.Name,
			MinIdle:  delay,
			Messages: []string{entry.ID},
		}).Result()
		if err != nil {
			if !errors.Is(err, redis.Nil) && ctx.Err() == nil {
				c.logger.Error("claim failed",
					zap.String("stream", c.cfg.Stream),
					zap.String("id", entry.ID),
					zap.Error(err))
			}
			continue
		}

		for _, msg := range claimed {
			if entry.RetryCount >= c.cfg.MaxAttempts {
				c.logger.Error("retry budget exhausted, parking delivery",
					zap.String("stream", c.cfg.Stream),
					zap.String("id", msg.ID),
					zap.Int64("attempts", entry.RetryCount))
				c.deadLetter(ctx, msg)
				continue
			}
			c.process(ctx, msg)
		}
	}
}

// redeliveryDelay spaces redeliveries exponentially by attempt count.
func (c *Consumer) redeliveryDelay(retryCount int64) time.Duration {
	policy := RetryPolicy{BaseDelay: c.cfg.BackoffBase, MaxDelay: c.cfg.BackoffMax}
	return policy.DelayFor(int(retryCount))
}

// deadLetter parks a delivery on the dead-letter stream and acks it so
// it stops being redelivered.
func (c *Consumer) deadLetter(ctx context.Context, msg redis.XMessage) {
	values := make(map[string]any, len(msg.Values)+2)
	for k, v := range msg.Values {
		values[k] = v
	}
	values["origin_stream"] = c.cfg.Stream
	values["origin_id"] = msg.ID

	if err := c.client.XAdd(ctx, &redis.XAddArgs{
		Stream: DeadLetterStream,
		Values: values,
	}).Err(); err != nil {
		c.logger.Error("dead-letter append failed",
			zap.String("stream", c.cfg.Stream),
			zap.String("id", msg.ID),
			zap.Error(err))
		return
	}
	c.metrics.ObserveDeadLetter(c.cfg.Stream)

	if err := c.client.XAck(ctx, c.cfg.Stream, c.cfg.Group, msg.ID).Err(); err != nil {
		c.logger.Error("ack failed",
			zap.String("stream", c.cfg.Stream),
			zap.String("id", msg.ID),
			zap.Error(err))
	}
}
