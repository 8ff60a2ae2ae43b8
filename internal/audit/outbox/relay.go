// Package outbox relays committed audit entries from the database outbox to
// Kafka. Entries reach the outbox in the same transaction as the record
// mutation, so the relay only ever publishes facts that actually committed.
package outbox

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"

	"brokergate/internal/audit"
)

// Source is the outbox side of the audit store.
type Source interface {
	PendingOutbox(ctx context.Context, limit int) ([]audit.OutboxRow, error)
	MarkPublished(ctx context.Context, ids []uuid.UUID) error
}

// Producer abstracts the Kafka client so relay logic is testable without a
// broker.
type Producer interface {
	Produce(ctx context.Context, key string, payload []byte) error
}

// KafkaProducer publishes audit payloads with franz-go, keyed by audit entry
// id so replays land in the same partition.
type KafkaProducer struct {
	client *kgo.Client
	topic  string
}

// NewKafkaProducer connects to the brokers and ensures the topic exists.
func NewKafkaProducer(ctx context.Context, brokers []string, topic string) (*KafkaProducer, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.ProducerBatchCompression(kgo.SnappyCompression()),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}

	admin := kadm.NewClient(client)
	resp, err := admin.CreateTopic(ctx, 1, 1, nil, topic)
	if err == nil {
		err = resp.Err
	}
	if err != nil && !errors.Is(err, kerr.TopicAlreadyExists) {
		client.Close()
		return nil, fmt.Errorf("ensure topic %s: %w", topic, err)
	}

	return &KafkaProducer{client: client, topic: topic}, nil
}

func (p *KafkaProducer) Produce(ctx context.Context, key string, payload []byte) error {
	record := &kgo.Record{Topic: p.topic, Key: []byte(key), Value: payload}
	return p.client.ProduceSync(ctx, record).FirstErr()
}

func (p *KafkaProducer) Close() {
	p.client.Close()
}

// Relay polls the outbox and publishes pending rows in order. Publishing is
// at-least-once: a crash between produce and MarkPublished re-sends the row,
// and consumers dedupe on entry id.
type Relay struct {
	source   Source
	producer Producer
	logger   *slog.Logger
	interval time.Duration
	batch    int
}

func NewRelay(source Source, producer Producer, logger *slog.Logger) *Relay {
	return &Relay{
		source:   source,
		producer: producer,
		logger:   logger,
		interval: 2 * time.Second,
		batch:    100,
	}
}

// Run polls until the context is cancelled. Poll errors are logged and the
// next tick retries; only context cancellation stops the relay.
func (r *Relay) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := r.drain(ctx); err != nil {
				r.logger.WarnContext(ctx, "outbox drain failed", "error", err)
			}
		}
	}
}

func (r *Relay) drain(ctx context.Context) error {
	for {
		rows, err := r.source.PendingOutbox(ctx, r.batch)
		if err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}

		published := make([]uuid.UUID, 0, len(rows))
		for _, row := range rows {
			if err := r.producer.Produce(ctx, row.EntryID.String(), row.Payload); err != nil {
				// Publish in order; stop at the first failure and let
				// the next tick resume from it.
				if markErr := r.source.MarkPublished(ctx, published); markErr != nil {
					return errors.Join(err, markErr)
				}
				return err
			}
			published = append(published, row.ID)
		}
		if err := r.source.MarkPublished(ctx, published); err != nil {
			return err
		}
		if len(rows) < r.batch {
			return nil
		}
	}
}
