package serviceEvents

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"

	"curveExchange/entity"
)

const DefaultTopic = "curvex.transactions"

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Event is the payload published for every committed transaction.
type Event struct {
	Address     string             `json:"address"`
	Transaction entity.Transaction `json:"transaction"`
}

// KafkaPublisher writes transaction events keyed by address, so all events of
// one address land on the same partition in order.
type KafkaPublisher struct {
	writer  messageWriter
	timeout time.Duration
}

func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	if topic == "" {
		topic = DefaultTopic
	}
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
			Async:        false,
			BatchTimeout: 10 * time.Millisecond,
		},
		timeout: 5 * time.Second,
	}
}

func (p *KafkaPublisher) Publish(ctx context.Context, address string, tx entity.Transaction) error {
	value, err := json.Marshal(Event{Address: address, Transaction: tx})
	if err != nil {
		return errors.Wrapf(err, "encode event %v", tx.ID)
	}

	// the exchange has already committed; a canceled request must not drop the event
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.timeout)
	defer cancel()

	if err = p.writer.WriteMessages(ctx, kafka.Message{Key: []byte(address), Value: value}); err != nil {
		return errors.Wrapf(err, "publish event %v", tx.ID)
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
