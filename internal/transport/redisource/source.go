// Package redisource delivers Buildbot messages published on Redis pub/sub
// channels. Channel names are dotted routing keys below a prefix, as with
// the NATS source.
package redisource

import (
	"context"
	"log/slog"
	"sync"
	"time"

	backend "github.com/redis/go-redis/v9"

	"git.home.luguber.info/inful/buildbot-exporter/internal/config"
	ferrors "git.home.luguber.info/inful/buildbot-exporter/internal/foundation/errors"
	"git.home.luguber.info/inful/buildbot-exporter/internal/logfields"
	"git.home.luguber.info/inful/buildbot-exporter/internal/retry"
	"git.home.luguber.info/inful/buildbot-exporter/internal/subscriber"
)

const sourceName = "redis"

// Source is a subscriber.Source backed by Redis PSUBSCRIBE.
type Source struct {
	cfg    config.RedisSourceConfig
	client *backend.Client
	ingest subscriber.Ingester
	policy retry.Policy
	logger *slog.Logger

	mu     sync.Mutex
	pubsub *backend.PubSub
	cancel context.CancelFunc
	done   chan struct{}
}

// New returns a Redis source connecting to cfg.Addr.
func New(cfg config.RedisSourceConfig, ingest subscriber.Ingester, policy retry.Policy, logger *slog.Logger) *Source {
	client := backend.NewClient(&backend.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return NewFromClient(client, cfg, ingest, policy, logger)
}

// NewFromClient returns a Redis source using an existing client. The source
// closes the client on Stop.
func NewFromClient(client *backend.Client, cfg config.RedisSourceConfig, ingest subscriber.Ingester, policy retry.Policy, logger *slog.Logger) *Source {
	if logger == nil {
		logger = slog.Default()
	}
	return &Source{
		cfg:    cfg,
		client: client,
		ingest: ingest,
		policy: policy,
		logger: logger.With(logfields.Source(sourceName)),
	}
}

// Name implements subscriber.Source.
func (s *Source) Name() string { return sourceName }

// Start waits for Redis to answer (retrying with the policy), subscribes to
// the configured pattern and starts the receive loop.
func (s *Source) Start(ctx context.Context) error {
	err := s.policy.Do(ctx, func(ctx context.Context) error {
		return s.client.Ping(ctx).Err()
	}, func(attempt int, delay time.Duration, err error) {
		s.logger.Warn("Redis ping failed, retrying",
			slog.String("addr", s.cfg.Addr),
			slog.Int("attempt", attempt),
			slog.Duration("delay", delay),
			logfields.Error(err))
	})
	if err != nil {
		return ferrors.WrapError(err, ferrors.CategoryTransport, "failed to reach Redis").
			WithContext("addr", s.cfg.Addr).
			Build()
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	pubsub := s.client.PSubscribe(runCtx, s.cfg.Pattern)
	if _, err := pubsub.Receive(ctx); err != nil {
		cancel()
		_ = pubsub.Close()
		return ferrors.WrapError(err, ferrors.CategoryTransport, "failed to subscribe").
			WithContext("pattern", s.cfg.Pattern).
			Build()
	}

	done := make(chan struct{})
	s.mu.Lock()
	s.pubsub, s.cancel, s.done = pubsub, cancel, done
	s.mu.Unlock()

	go s.receive(runCtx, pubsub.Channel(), done)

	s.logger.Info("Redis source started", slog.String("addr", s.cfg.Addr), slog.String("pattern", s.cfg.Pattern))
	return nil
}

func (s *Source) receive(ctx context.Context, ch <-chan *backend.Message, done chan<- struct{}) {
	defer close(done)
	for msg := range ch {
		env := subscriber.NewEnvelope(sourceName, subscriber.RoutingKeyFromSubject(msg.Channel, s.cfg.Prefix), []byte(msg.Payload))
		if err := s.ingest.Ingest(ctx, env); err != nil {
			s.logger.Error("Failed to ingest message", logfields.Subject(msg.Channel), logfields.Error(err))
			if ctx.Err() != nil {
				return
			}
		}
	}
}

// Stop unsubscribes, waits for the receive loop and closes the client.
func (s *Source) Stop(ctx context.Context) error {
	s.mu.Lock()
	pubsub, cancel, done := s.pubsub, s.cancel, s.done
	s.pubsub, s.cancel, s.done = nil, nil, nil
	s.mu.Unlock()

	if pubsub != nil {
		if err := pubsub.Close(); err != nil {
			s.logger.Warn("Failed to close Redis subscription", logfields.Error(err))
		}
		select {
		case <-done:
		case <-ctx.Done():
		}
		cancel()
	}

	if err := s.client.Close(); err != nil {
		return ferrors.WrapError(err, ferrors.CategoryTransport, "failed to close Redis client").Build()
	}
	s.logger.Info("Redis source stopped")
	return nil
}
