package evallog

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/fairyhunter13/cv-rag/internal/domain"
)

// closeFlushTimeout bounds the final flush of buffered records.
const closeFlushTimeout = 10 * time.Second

// producer is the slice of kgo.Client the sink uses, split out so tests
// can observe produce/flush ordering without a broker.
type producer interface {
	Produce(ctx context.Context, r *kgo.Record, promise func(*kgo.Record, error))
	Flush(ctx context.Context) error
	Close()
}

// KafkaSink publishes eval records to a Kafka/Redpanda topic so an
// offline evaluation pipeline can consume them.
type KafkaSink struct {
	client producer
	topic  string
}

// NewKafkaSink connects a producer to the given brokers.
func NewKafkaSink(brokers []string, topic string) (*KafkaSink, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("%w: no seed brokers provided", domain.ErrInvalidArgument)
	}
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.RequestRetries(10),
		kgo.ProducerBatchMaxBytes(1_000_000),
	)
	if err != nil {
		return nil, fmt.Errorf("op=evallog.NewKafkaSink client: %w", err)
	}
	slog.Info("eval log kafka sink connected", slog.Any("brokers", brokers), slog.String("topic", topic))
	return &KafkaSink{client: client, topic: topic}, nil
}

// Append produces the record keyed by session id. Delivery is
// fire-and-forget; telemetry loss must never fail a query. The produce
// context is detached from the request so a client disconnect right
// after the response does not abort the buffered record.
func (s *KafkaSink) Append(ctx domain.Context, rec domain.EvalRecord) error {
	b, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("op=evallog.KafkaSink marshal: %w", err)
	}
	record := &kgo.Record{
		Topic: s.topic,
		Key:   []byte(rec.SessionID),
		Value: b,
	}
	s.client.Produce(context.WithoutCancel(ctx), record, func(_ *kgo.Record, err error) {
		if err != nil {
			slog.Warn("eval log kafka produce failed", slog.Any("error", err))
		}
	})
	return nil
}

// Close flushes outstanding produces within a bounded window, then
// closes the client. kgo.Close alone drops buffered records.
func (s *KafkaSink) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), closeFlushTimeout)
	defer cancel()
	err := s.client.Flush(ctx)
	s.client.Close()
	if err != nil {
		return fmt.Errorf("op=evallog.KafkaSink flush: %w", err)
	}
	return nil
}
