// Package natsource delivers Buildbot messages published on NATS subjects.
//
// Subjects mirror Buildbot routing keys below a prefix, so a message on
// "buildbot.builds.12.finished" is ingested with routing key
// [builds 12 finished]. A core subscription is used by default; configuring
// a stream switches to a durable JetStream consumer which resumes after a
// restart.
package natsource

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"git.home.luguber.info/inful/buildbot-exporter/internal/config"
	ferrors "git.home.luguber.info/inful/buildbot-exporter/internal/foundation/errors"
	"git.home.luguber.info/inful/buildbot-exporter/internal/logfields"
	"git.home.luguber.info/inful/buildbot-exporter/internal/retry"
	"git.home.luguber.info/inful/buildbot-exporter/internal/subscriber"
)

const sourceName = "nats"

// Source is a subscriber.Source backed by NATS.
type Source struct {
	cfg    config.NATSSourceConfig
	ingest subscriber.Ingester
	policy retry.Policy
	logger *slog.Logger

	mu       sync.Mutex
	conn     *nats.Conn
	sub      *nats.Subscription
	consumer jetstream.ConsumeContext
	closed   chan struct{}
	cancel   context.CancelFunc
}

// New returns a NATS source. Start must be called to connect.
func New(cfg config.NATSSourceConfig, ingest subscriber.Ingester, policy retry.Policy, logger *slog.Logger) *Source {
	if logger == nil {
		logger = slog.Default()
	}
	return &Source{
		cfg:    cfg,
		ingest: ingest,
		policy: policy,
		logger: logger.With(logfields.Source(sourceName)),
	}
}

// Name implements subscriber.Source.
func (s *Source) Name() string { return sourceName }

// Start connects (retrying with the policy) and subscribes.
func (s *Source) Start(ctx context.Context) error {
	var (
		conn   *nats.Conn
		closed chan struct{}
	)
	err := s.policy.Do(ctx, func(context.Context) error {
		done := make(chan struct{})
		c, err := nats.Connect(s.cfg.URL,
			nats.Name(s.cfg.ClientName),
			nats.ClosedHandler(func(*nats.Conn) { close(done) }),
			nats.MaxReconnects(-1),
			nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
				if err != nil {
					s.logger.Warn("NATS disconnected", logfields.Error(err))
				}
			}),
			nats.ReconnectHandler(func(c *nats.Conn) {
				s.logger.Info("NATS reconnected", logfields.URL(c.ConnectedUrlRedacted()))
			}),
		)
		if err != nil {
			return err
		}
		conn, closed = c, done
		return nil
	}, func(attempt int, delay time.Duration, err error) {
		s.logger.Warn("NATS connect failed, retrying",
			logfields.URL(s.cfg.URL),
			slog.Int("attempt", attempt),
			slog.Duration("delay", delay),
			logfields.Error(err))
	})
	if err != nil {
		return ferrors.WrapError(err, ferrors.CategoryTransport, "failed to connect to NATS").
			WithContext("url", s.cfg.URL).
			Build()
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))

	s.mu.Lock()
	s.conn = conn
	s.closed = closed
	s.cancel = cancel
	s.mu.Unlock()

	if s.cfg.Stream != "" {
		err = s.consumeStream(runCtx)
	} else {
		err = s.subscribe(runCtx)
	}
	if err != nil {
		s.mu.Lock()
		s.conn, s.closed, s.cancel = nil, nil, nil
		s.mu.Unlock()
		cancel()
		conn.Close()
		return err
	}

	s.logger.Info("NATS source started",
		logfields.URL(conn.ConnectedUrlRedacted()),
		logfields.Subject(s.cfg.Subject),
		slog.String("stream", s.cfg.Stream))
	return nil
}

func (s *Source) subscribe(ctx context.Context) error {
	var (
		sub *nats.Subscription
		err error
	)
	if s.cfg.QueueGroup != "" {
		sub, err = s.conn.QueueSubscribe(s.cfg.Subject, s.cfg.QueueGroup, s.handler(ctx))
	} else {
		sub, err = s.conn.Subscribe(s.cfg.Subject, s.handler(ctx))
	}
	if err != nil {
		return ferrors.WrapError(err, ferrors.CategoryTransport, "failed to subscribe").
			WithContext("subject", s.cfg.Subject).
			Build()
	}

	s.mu.Lock()
	s.sub = sub
	s.mu.Unlock()
	return nil
}

func (s *Source) consumeStream(ctx context.Context) error {
	js, err := jetstream.New(s.conn)
	if err != nil {
		return ferrors.WrapError(err, ferrors.CategoryTransport, "failed to create JetStream context").Build()
	}

	setupCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	consumer, err := js.CreateOrUpdateConsumer(setupCtx, s.cfg.Stream, jetstream.ConsumerConfig{
		Durable:       s.cfg.Durable,
		FilterSubject: s.cfg.Subject,
		AckPolicy:     jetstream.AckExplicitPolicy,
		DeliverPolicy: jetstream.DeliverNewPolicy,
	})
	if err != nil {
		return ferrors.WrapError(err, ferrors.CategoryTransport, "failed to create JetStream consumer").
			WithContext("stream", s.cfg.Stream).
			WithContext("durable", s.cfg.Durable).
			Build()
	}

	cc, err := consumer.Consume(func(msg jetstream.Msg) {
		if err := s.deliver(ctx, msg.Subject(), msg.Data()); err != nil {
			_ = msg.Nak()
			return
		}
		_ = msg.Ack()
	})
	if err != nil {
		return ferrors.WrapError(err, ferrors.CategoryTransport, "failed to consume stream").Build()
	}

	s.mu.Lock()
	s.consumer = cc
	s.mu.Unlock()
	return nil
}

func (s *Source) handler(ctx context.Context) nats.MsgHandler {
	return func(msg *nats.Msg) {
		_ = s.deliver(ctx, msg.Subject, msg.Data)
	}
}

// deliver wraps a message in an envelope and hands it to the ingester. The
// error is only non-nil when the pipeline refused the message.
func (s *Source) deliver(ctx context.Context, subject string, data []byte) error {
	env := subscriber.NewEnvelope(sourceName, subscriber.RoutingKeyFromSubject(subject, s.cfg.Prefix), data)
	if err := s.ingest.Ingest(ctx, env); err != nil {
		if !errors.Is(err, context.Canceled) {
			s.logger.Error("Failed to ingest message", logfields.Subject(subject), logfields.Error(err))
		}
		return err
	}
	return nil
}

// Stop drains pending messages into the pipeline and closes the connection.
func (s *Source) Stop(ctx context.Context) error {
	s.mu.Lock()
	conn, cc, closed, cancel := s.conn, s.consumer, s.closed, s.cancel
	s.conn, s.sub, s.consumer, s.closed, s.cancel = nil, nil, nil, nil, nil
	s.mu.Unlock()

	if conn == nil {
		return nil
	}
	defer cancel()

	if cc != nil {
		cc.Stop()
	}
	if err := conn.Drain(); err != nil {
		s.logger.Warn("Failed to drain NATS connection", logfields.Error(err))
		conn.Close()
	}

	select {
	case <-closed:
	case <-ctx.Done():
		conn.Close()
	}

	s.logger.Info("NATS source stopped")
	return nil
}
