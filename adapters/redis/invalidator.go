// Package redis fans catalog invalidations out to every replica over Redis Pub/Sub.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/nexastudio/creditmeter/ports"
)

// DefaultChannel is the Pub/Sub channel used when none is configured.
const DefaultChannel = "creditmeter:catalog"

// Config holds the Redis connection settings.
type Config struct {
	Addr     string
	Password string
	DB       int
	Channel  string
}

// Invalidator implements ports.CatalogInvalidator using Redis Pub/Sub.
type Invalidator struct {
	client     *goredis.Client
	ownsClient bool
	channel    string
	logger     zerolog.Logger

	mu      sync.Mutex
	running bool
}

var _ ports.CatalogInvalidator = (*Invalidator)(nil)

// Option configures an Invalidator.
type Option func(*Invalidator)

// WithChannel sets the Pub/Sub channel name.
func WithChannel(channel string) Option {
	return func(i *Invalidator) {
		if channel != "" {
			i.channel = channel
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(i *Invalidator) {
		i.logger = logger
	}
}

// New connects to Redis and returns an invalidator that owns the client.
func New(ctx context.Context, cfg Config, opts ...Option) (*Invalidator, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	i := NewWithClient(client, append([]Option{WithChannel(cfg.Channel)}, opts...)...)
	i.ownsClient = true
	return i, nil
}

// NewWithClient wraps an existing client. The caller keeps ownership of it.
func NewWithClient(client *goredis.Client, opts ...Option) *Invalidator {
	i := &Invalidator{
		client:  client,
		channel: DefaultChannel,
		logger:  zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Channel returns the Pub/Sub channel name.
func (i *Invalidator) Channel() string {
	return i.channel
}

// Publish announces a catalog change to all subscribers.
func (i *Invalidator) Publish(ctx context.Context, msg ports.CatalogMessage) error {
	if msg.Timestamp == 0 {
		msg.Timestamp = time.Now().UnixNano()
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal catalog message: %w", err)
	}

	if err := i.client.Publish(ctx, i.channel, data).Err(); err != nil {
		i.logger.Error().Err(err).Str("channel", i.channel).Msg("failed to publish catalog message")
		return fmt.Errorf("publish catalog message: %w", err)
	}

	i.logger.Debug().
		Str("catalog", msg.Catalog).
		Str("action", msg.Action).
		Str("key", msg.Key).
		Msg("published catalog message")
	return nil
}

// Subscribe blocks, invoking fn for each message until ctx is done.
func (i *Invalidator) Subscribe(ctx context.Context, fn func(ports.CatalogMessage)) error {
	i.mu.Lock()
	if i.running {
		i.mu.Unlock()
		return fmt.Errorf("subscription already running")
	}
	i.running = true
	i.mu.Unlock()

	defer func() {
		i.mu.Lock()
		i.running = false
		i.mu.Unlock()
	}()

	pubsub := i.client.Subscribe(ctx, i.channel)
	defer pubsub.Close()

	// Wait for the subscription to be confirmed before reading.
	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe to %s: %w", i.channel, err)
	}
	i.logger.Info().Str("channel", i.channel).Msg("subscribed to catalog invalidations")

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case m, ok := <-ch:
			if !ok {
				i.logger.Warn().Msg("catalog invalidation channel closed")
				return nil
			}
			msg, err := Decode(m.Payload)
			if err != nil {
				i.logger.Error().Err(err).Str("payload", m.Payload).Msg("bad catalog message")
				continue
			}
			i.dispatch(fn, msg)
		}
	}
}

func (i *Invalidator) dispatch(fn func(ports.CatalogMessage), msg ports.CatalogMessage) {
	defer func() {
		if r := recover(); r != nil {
			i.logger.Error().Interface("panic", r).Str("catalog", msg.Catalog).Msg("panic in catalog callback")
		}
	}()
	fn(msg)
}

// Decode parses a catalog message payload.
func Decode(payload string) (ports.CatalogMessage, error) {
	var msg ports.CatalogMessage
	if err := json.Unmarshal([]byte(payload), &msg); err != nil {
		return ports.CatalogMessage{}, err
	}
	if msg.Catalog == "" {
		return ports.CatalogMessage{}, fmt.Errorf("catalog message without catalog name")
	}
	return msg, nil
}

// Close releases the client if the invalidator owns it.
func (i *Invalidator) Close() error {
	if i.ownsClient {
		return i.client.Close()
	}
	return nil
}
