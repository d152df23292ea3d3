package kafka

import (
	"context"
	"log"

	"github.com/segmentio/kafka-go"
)

// MovementHandler processes one movement event. The key is the resource id
// the producer partitioned by, so one resource's movements arrive in order.
type MovementHandler func(ctx context.Context, key, value []byte) error

// Consumer reads movement events for one consumer group (api projection,
// standalone projector, notifier).
type Consumer struct {
	reader *kafka.Reader
}

func NewConsumer(brokers []string, topic, groupID string) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 10e3, // 10KB
		MaxBytes: 10e6, // 10MB
	})
	return &Consumer{reader: reader}
}

// Consume delivers movement events to the handler until the context ends.
// Handler errors are logged, not retried: every consumer rebuilds its state
// from the entry store on boot, so a skipped event heals on restart.
func (c *Consumer) Consume(ctx context.Context, handle MovementHandler) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			msg, err := c.reader.ReadMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				log.Printf("[Kafka] Error reading movement event: %v", err)
				continue
			}

			if err := handle(ctx, msg.Key, msg.Value); err != nil {
				log.Printf("[Kafka] Error handling movement for resource %s: %v", string(msg.Key), err)
			}
		}
	}
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}
