// Package kafka consumes device-lifecycle events from a Kafka topic with
// at-least-once delivery: an offset is committed only after its event has
// been processed to a terminal outcome.
package kafka

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"thing-sync/internal/core/events"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
)

const (
	minBytes = 1
	maxBytes = 10_000_000 // 10MB
)

// Processor handles one decoded event to its terminal outcome.
type Processor interface {
	Process(ctx context.Context, raw events.Raw) error
}

type Config struct {
	Brokers []string
	GroupID string
	Topic   string
}

type Consumer struct {
	reader *kafka.Reader
	proc   Processor
	lg     zerolog.Logger
}

func New(cfg Config, proc Processor, lg zerolog.Logger) *Consumer {
	return &Consumer{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:  cfg.Brokers,
			GroupID:  cfg.GroupID,
			Topic:    cfg.Topic,
			MinBytes: minBytes,
			MaxBytes: maxBytes,
			MaxWait:  500 * time.Millisecond,
		}),
		proc: proc,
		lg:   lg.With().Str("adapter", "kafka").Logger(),
	}
}

// Run fetches and processes messages until the context is cancelled.
// Processing failures are already terminal (logged and reported upstream by
// the processor), so the offset is committed regardless — except when the
// failure came from shutdown mid-event, which leaves the offset uncommitted
// for redelivery.
func (c *Consumer) Run(ctx context.Context) error {
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			c.lg.Error().Err(err).Msg("fetch message")
			continue
		}

		raw := events.Raw{Headers: decodeHeaders(msg.Headers), Body: msg.Value}
		if err := c.proc.Process(ctx, raw); err != nil && ctx.Err() != nil {
			return nil
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil && !errors.Is(err, context.Canceled) {
			c.lg.Error().Err(err).Int64("offset", msg.Offset).Msg("commit offset")
		}
	}
}

func (c *Consumer) Close() error { return c.reader.Close() }

// decodeHeaders flattens Kafka record headers into the classifier's
// normalized key space.
func decodeHeaders(headers []kafka.Header) map[string]string {
	out := make(map[string]string, len(headers))
	for _, h := range headers {
		out[h.Key] = string(h.Value)
	}
	return events.NormalizeHeaders(out)
}

// EnsureTopic idempotently creates the input topic via the cluster
// controller, tolerating an already existing topic.
func EnsureTopic(ctx context.Context, brokers []string, topic string, partitions int) error {
	if len(brokers) == 0 {
		return fmt.Errorf("no brokers configured")
	}
	conn, err := kafka.DialContext(ctx, "tcp", brokers[0])
	if err != nil {
		return fmt.Errorf("dial broker: %w", err)
	}
	defer conn.Close()

	controller, err := conn.Controller()
	if err != nil {
		return fmt.Errorf("controller: %w", err)
	}

	ctrlAddr := net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port))
	ctrlConn, err := kafka.DialContext(ctx, "tcp", ctrlAddr)
	if err != nil {
		return fmt.Errorf("dial controller: %w", err)
	}
	defer ctrlConn.Close()

	tc := kafka.TopicConfig{
		Topic:             topic,
		NumPartitions:     partitions,
		ReplicationFactor: 1,
	}
	if err := ctrlConn.CreateTopics(tc); err != nil {
		if !strings.Contains(strings.ToLower(err.Error()), "exists") {
			return fmt.Errorf("create topic %s: %w", topic, err)
		}
	}
	return nil
}
