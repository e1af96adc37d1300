package repository

import (
	"context"
	"encoding/json"
	"time"

	kgo "github.com/segmentio/kafka-go"

	"scan-relay/internal/models"
)

// messageWriter is the subset of *kgo.Writer used by the feed
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kgo.Message) error
	Close() error
}

// KafkaScanFeed implements ScanFeedPublisher on a Kafka topic
type KafkaScanFeed struct {
	writer  messageWriter
	timeout time.Duration
}

// NewKafkaScanFeed creates a feed writing to topic on brokers
func NewKafkaScanFeed(brokers []string, topic string) *KafkaScanFeed {
	w := &kgo.Writer{
		Addr:         kgo.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kgo.LeastBytes{},
		RequiredAcks: kgo.RequireOne,
	}
	return &KafkaScanFeed{writer: w, timeout: 3 * time.Second}
}

func (f *KafkaScanFeed) Close() error { return f.writer.Close() }

// Publish writes record keyed by event id so updates for one event stay ordered
func (f *KafkaScanFeed) Publish(ctx context.Context, record models.ScanRecord) error {
	return f.publishJSON(ctx, record.ID, record)
}

func (f *KafkaScanFeed) publishJSON(ctx context.Context, key string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}

	cctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	return f.writer.WriteMessages(cctx, kgo.Message{
		Key:   []byte(key),
		Value: b,
		Time:  time.Now(),
	})
}
