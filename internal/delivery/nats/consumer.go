// Package nats consumes device-lifecycle events from a JetStream subject
// with manual acknowledgment: an event is acked only after processing ran to
// a terminal outcome, so redelivery covers crashes mid-event.
package nats

import (
	"context"
	"fmt"

	"thing-sync/internal/core/events"

	natsgo "github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

// Processor handles one decoded event to its terminal outcome.
type Processor interface {
	Process(ctx context.Context, raw events.Raw) error
}

type Config struct {
	URL     string
	Stream  string
	Subject string
	Durable string
}

type Consumer struct {
	nc   *natsgo.Conn
	js   natsgo.JetStreamContext
	cfg  Config
	proc Processor
	lg   zerolog.Logger
}

func New(cfg Config, proc Processor, lg zerolog.Logger) (*Consumer, error) {
	nc, err := natsgo.Connect(cfg.URL, natsgo.Name("thing-sync"))
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream: %w", err)
	}
	c := &Consumer{
		nc:   nc,
		js:   js,
		cfg:  cfg,
		proc: proc,
		lg:   lg.With().Str("adapter", "nats").Logger(),
	}
	if err := c.ensureStream(); err != nil {
		nc.Close()
		return nil, err
	}
	return c, nil
}

// ensureStream idempotently creates the event stream.
func (c *Consumer) ensureStream() error {
	_, err := c.js.AddStream(&natsgo.StreamConfig{
		Name:     c.cfg.Stream,
		Subjects: []string{c.cfg.Subject},
		Storage:  natsgo.FileStorage,
		Replicas: 1,
	})
	if err != nil && err != natsgo.ErrStreamNameAlreadyInUse {
		return err
	}
	return nil
}

// Run subscribes with a durable consumer and processes messages until the
// context is cancelled. Unacked messages (including those interrupted by
// shutdown) redeliver after the ack wait.
func (c *Consumer) Run(ctx context.Context) error {
	sub, err := c.js.Subscribe(c.cfg.Subject, func(msg *natsgo.Msg) {
		raw := events.Raw{Headers: decodeHeaders(msg.Header), Body: msg.Data}
		if err := c.proc.Process(ctx, raw); err != nil && ctx.Err() != nil {
			return
		}
		if err := msg.Ack(); err != nil {
			c.lg.Error().Err(err).Msg("ack message")
		}
	}, natsgo.Durable(c.cfg.Durable), natsgo.ManualAck())
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", c.cfg.Subject, err)
	}

	<-ctx.Done()
	if err := sub.Drain(); err != nil {
		c.lg.Warn().Err(err).Msg("drain subscription")
	}
	return nil
}

// Close the connection
func (c *Consumer) Close() { _ = c.nc.Drain() }

func decodeHeaders(h natsgo.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k, vs := range h {
		if len(vs) > 0 {
			out[k] = vs[0]
		}
	}
	return events.NormalizeHeaders(out)
}
