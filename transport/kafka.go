package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/IBM/sarama"
)

// Kafka transport errors
var (
	// ErrAutoCommitEnabled rejects sarama configs that would break
	// at-least-once delivery: offsets must only advance after an Ack.
	ErrAutoCommitEnabled = errors.New("kafka: auto-commit must be disabled for at-least-once delivery - set Consumer.Offsets.AutoCommit.Enable = false")
)

// KafkaConsumer delivers messages from one topic via a consumer group.
// Partitioning by the producer's message key provides the per-parcel
// ordering guarantee; a message is only marked and committed after the
// handler acknowledges it, so a crash before Ack redelivers.
type KafkaConsumer struct {
	group  sarama.ConsumerGroup
	topic  string
	logger *slog.Logger
}

// NewKafkaConsumer creates a consumer-group consumer for the topic.
func NewKafkaConsumer(client sarama.Client, groupID, topic string) (*KafkaConsumer, error) {
	if client.Config().Consumer.Offsets.AutoCommit.Enable {
		return nil, ErrAutoCommitEnabled
	}
	group, err := sarama.NewConsumerGroupFromClient(groupID, client)
	if err != nil {
		return nil, fmt.Errorf("create consumer group: %w", err)
	}
	return &KafkaConsumer{
		group:  group,
		topic:  topic,
		logger: slog.Default().With("component", "transport.kafka", "topic", topic),
	}, nil
}

// Receive implements Consumer. Consume returns on rebalances; the loop
// rejoins until the context ends.
func (c *KafkaConsumer) Receive(ctx context.Context, h Handler) error {
	handler := &groupHandler{h: h}
	for {
		if err := c.group.Consume(ctx, []string{c.topic}, handler); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.logger.Warn("consume session ended, rejoining", "error", err)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

// Close implements Consumer.
func (c *KafkaConsumer) Close() error {
	return c.group.Close()
}

type groupHandler struct {
	h Handler
}

func (g *groupHandler) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (g *groupHandler) Cleanup(sarama.ConsumerGroupSession) error { return nil }

func (g *groupHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for msg := range claim.Messages() {
		km := &kafkaMessage{raw: msg}
		g.h(session.Context(), km)
		if km.acked {
			session.MarkMessage(msg, "")
			session.Commit()
		}
		// Nack: leave the offset unmarked so the message is redelivered
		// on the next session.
	}
	return nil
}

type kafkaMessage struct {
	raw   *sarama.ConsumerMessage
	acked bool
}

func (m *kafkaMessage) ID() string {
	return fmt.Sprintf("%s/%d/%d", m.raw.Topic, m.raw.Partition, m.raw.Offset)
}

func (m *kafkaMessage) Data() []byte { return m.raw.Value }

func (m *kafkaMessage) Attributes() map[string]string {
	if len(m.raw.Headers) == 0 {
		return nil
	}
	attrs := make(map[string]string, len(m.raw.Headers))
	for _, h := range m.raw.Headers {
		attrs[string(h.Key)] = string(h.Value)
	}
	return attrs
}

func (m *kafkaMessage) Ack()  { m.acked = true }
func (m *kafkaMessage) Nack() { m.acked = false }

// KafkaPublisher publishes to one topic with the ordering key as the
// partition key.
type KafkaPublisher struct {
	producer sarama.SyncProducer
	topic    string
}

// NewKafkaPublisher creates a synchronous publisher for the topic.
func NewKafkaPublisher(client sarama.Client, topic string) (*KafkaPublisher, error) {
	producer, err := sarama.NewSyncProducerFromClient(client)
	if err != nil {
		return nil, fmt.Errorf("create producer: %w", err)
	}
	return &KafkaPublisher{producer: producer, topic: topic}, nil
}

// Publish implements Publisher.
func (p *KafkaPublisher) Publish(ctx context.Context, data []byte, orderingKey string, attrs map[string]string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := &sarama.ProducerMessage{
		Topic: p.topic,
		Value: sarama.ByteEncoder(data),
	}
	if orderingKey != "" {
		msg.Key = sarama.StringEncoder(orderingKey)
	}
	for k, v := range attrs {
		msg.Headers = append(msg.Headers, sarama.RecordHeader{
			Key:   []byte(k),
			Value: []byte(v),
		})
	}
	if _, _, err := p.producer.SendMessage(msg); err != nil {
		return fmt.Errorf("kafka publish: %w", err)
	}
	return nil
}

// Close implements Publisher.
func (p *KafkaPublisher) Close() error {
	return p.producer.Close()
}

var (
	_ Consumer  = (*KafkaConsumer)(nil)
	_ Publisher = (*KafkaPublisher)(nil)
)
