// Package stream runs the projectors on Redis Streams consumer groups.
//
// Delivery is at-least-once: a message is acknowledged once its handler
// returned, and stays pending otherwise. Pending messages idle for longer
// than the backoff are claimed again and redelivered. Undecodable messages
// go to the dead letter stream, messages that hit corrupt stored state are
// parked on the integrity stream; both are acknowledged after the copy.
package stream

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/xid"
	"github.com/rs/zerolog/log"

	"github.com/pagopa/interop-platform-state/internal/config"
	"github.com/pagopa/interop-platform-state/internal/core"
	"github.com/pagopa/interop-platform-state/internal/events"
)

// Handler applies one event envelope of a domain.
type Handler interface {
	Handle(ctx context.Context, domain string, env events.Envelope) error
}

// Client is the subset of the Redis client the consumer uses.
type Client interface {
	XGroupCreateMkStream(ctx context.Context, stream, group, start string) *redis.StatusCmd
	XReadGroup(ctx context.Context, a *redis.XReadGroupArgs) *redis.XStreamSliceCmd
	XAutoClaim(ctx context.Context, a *redis.XAutoClaimArgs) *redis.XAutoClaimCmd
	XAck(ctx context.Context, stream, group string, ids ...string) *redis.IntCmd
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
}

type outcome int

const (
	outcomeAcked outcome = iota
	outcomeDeadLettered
	outcomeParked
	outcomePending
)

func (o outcome) String() string {
	switch o {
	case outcomeAcked:
		return "acked"
	case outcomeDeadLettered:
		return "dead-lettered"
	case outcomeParked:
		return "parked"
	default:
		return "pending"
	}
}

type Consumer struct {
	client  Client
	cfg     config.StreamConfig
	handler Handler
	monitor *Monitor
}

func NewConsumer(client Client, cfg config.StreamConfig, handler Handler, monitor *Monitor) *Consumer {
	if monitor == nil {
		monitor = NewMonitor()
	}
	return &Consumer{
		client:  client,
		cfg:     cfg,
		handler: handler,
		monitor: monitor,
	}
}

// NewRedisClient connects to the configured Redis server.
func NewRedisClient(ctx context.Context, cfg config.StreamConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connecting to redis at %s: %w", cfg.RedisAddr, err)
	}
	return client, nil
}

// DeadLetterStream is where undecodable messages of stream are moved.
func DeadLetterStream(stream string) string {
	return stream + ":dead"
}

// IntegrityStream is where messages that met corrupt or unexpected stored
// state are parked until an operator re-publishes them.
func IntegrityStream(stream string) string {
	return stream + ":integrity"
}

// Run consumes the stream of domain until ctx is cancelled.
func (c *Consumer) Run(ctx context.Context, domain string) error {
	stream := c.cfg.StreamKey(domain)
	logger := log.Ctx(ctx).With().
		Str("domain", domain).
		Str("stream", stream).
		Str("group", c.cfg.Group).
		Str("consumer", c.cfg.Consumer).
		Logger()
	ctx = logger.WithContext(ctx)

	if err := c.client.XGroupCreateMkStream(ctx, stream, c.cfg.Group, "0").Err(); err != nil &&
		!strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("creating consumer group %s on %s: %w", c.cfg.Group, stream, err)
	}

	t := c.monitor.tracker(domain)
	t.started(stream)
	defer t.stopped()
	logger.Info().Msg("consumer started")

	for {
		if ctx.Err() != nil {
			logger.Info().Msg("consumer stopped")
			return nil
		}

		if err := c.reclaim(ctx, domain, stream); err != nil {
			if ctx.Err() != nil {
				continue
			}
			logger.Error().Err(err).Msg("re-claiming pending messages failed")
			c.pause(ctx)
			continue
		}

		res, err := c.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    c.cfg.Group,
			Consumer: c.cfg.Consumer,
			Streams:  []string{stream, ">"},
			Count:    int64(c.cfg.BatchSize),
			Block:    c.cfg.Block,
		}).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) || ctx.Err() != nil {
				continue
			}
			logger.Error().Err(err).Msg("reading stream failed")
			c.pause(ctx)
			continue
		}
		for _, s := range res {
			for _, msg := range s.Messages {
				c.process(ctx, domain, stream, msg)
			}
		}
	}
}

// reclaim takes over messages that stayed pending longer than the backoff,
// whichever consumer of the group read them first.
func (c *Consumer) reclaim(ctx context.Context, domain, stream string) error {
	start := "0-0"
	for {
		msgs, next, err := c.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
			Stream:   stream,
			Group:    c.cfg.Group,
			Consumer: c.cfg.Consumer,
			MinIdle:  c.cfg.Backoff,
			Start:    start,
			Count:    int64(c.cfg.BatchSize),
		}).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return nil
			}
			return err
		}
		for _, msg := range msgs {
			c.process(ctx, domain, stream, msg)
		}
		if next == "0-0" || next == "" || len(msgs) == 0 {
			return nil
		}
		start = next
	}
}

func (c *Consumer) process(ctx context.Context, domain, stream string, msg redis.XMessage) {
	logger := log.Ctx(ctx).With().
		Str("message_id", msg.ID).
		Str("processing_id", xid.New().String()).
		Logger()
	ctx = logger.WithContext(ctx)

	out, err := c.handle(ctx, domain, stream, msg)
	c.monitor.tracker(domain).record(msg.ID, out, err)

	switch out {
	case outcomeAcked:
		logger.Debug().Msg("message acknowledged")
	case outcomeDeadLettered:
		logger.Error().Err(err).Msg("message moved to the dead letter stream")
	case outcomeParked:
		logger.Error().Err(err).Str("parked_on", IntegrityStream(stream)).Msg("integrity fault, message parked")
	default:
		logger.Error().Err(err).Dur("retry_after", c.cfg.Backoff).Msg("message left pending")
	}
}

func (c *Consumer) handle(ctx context.Context, domain, stream string, msg redis.XMessage) (outcome, error) {
	env, err := events.DecodeEnvelope(msg.Values)
	if err == nil {
		err = c.handler.Handle(ctx, domain, env)
	}
	if errors.Is(err, events.ErrMalformedEvent) {
		if dlErr := c.move(ctx, stream, DeadLetterStream(stream), msg, err); dlErr != nil {
			return outcomePending, fmt.Errorf("%v (dead letter failed: %w)", err, dlErr)
		}
		return outcomeDeadLettered, err
	}
	if core.IsIntegrityError(err) {
		if pErr := c.move(ctx, stream, IntegrityStream(stream), msg, err); pErr != nil {
			return outcomePending, fmt.Errorf("%v (parking failed: %w)", err, pErr)
		}
		return outcomeParked, err
	}
	if err != nil {
		return outcomePending, err
	}
	if err := c.client.XAck(ctx, stream, c.cfg.Group, msg.ID).Err(); err != nil {
		return outcomePending, fmt.Errorf("acknowledging %s: %w", msg.ID, err)
	}
	return outcomeAcked, nil
}

// move copies msg with its cause to target and acknowledges it on stream.
func (c *Consumer) move(ctx context.Context, stream, target string, msg redis.XMessage, cause error) error {
	values := make(map[string]any, len(msg.Values)+2)
	for k, v := range msg.Values {
		values[k] = v
	}
	values["original_id"] = msg.ID
	values["error"] = cause.Error()

	if err := c.client.XAdd(ctx, &redis.XAddArgs{Stream: target, Values: values}).Err(); err != nil {
		return err
	}
	return c.client.XAck(ctx, stream, c.cfg.Group, msg.ID).Err()
}

func (c *Consumer) pause(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-time.After(c.cfg.Backoff):
	}
}

// Publish appends an envelope to the stream of domain.
func Publish(ctx context.Context, client Client, cfg config.StreamConfig, domain string, env events.Envelope) (string, error) {
	id, err := client.XAdd(ctx, &redis.XAddArgs{
		Stream: cfg.StreamKey(domain),
		Values: env.Values(),
	}).Result()
	if err != nil {
		return "", fmt.Errorf("publishing %s to %s: %w", env.Type, cfg.StreamKey(domain), err)
	}
	return id, nil
}
