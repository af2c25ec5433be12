package transport

import (
	"context"
	"fmt"

	"cloud.google.com/go/pubsub"
)

// PubSubConsumer delivers messages from a Google Cloud Pub/Sub
// subscription. Flow control caps the number of in-flight messages; the
// handler runs concurrently up to that limit. Per-parcel ordering relies
// on the subscription's ordering-key support, not on the engine.
type PubSubConsumer struct {
	client *pubsub.Client
	sub    *pubsub.Subscription
}

// NewPubSubConsumer creates a consumer over an existing subscription.
// maxOutstanding bounds concurrently in-flight messages; zero keeps the
// client default.
func NewPubSubConsumer(client *pubsub.Client, subscriptionID string, maxOutstanding int) *PubSubConsumer {
	sub := client.Subscription(subscriptionID)
	if maxOutstanding > 0 {
		sub.ReceiveSettings.MaxOutstandingMessages = maxOutstanding
	}
	return &PubSubConsumer{client: client, sub: sub}
}

// Receive implements Consumer.
func (c *PubSubConsumer) Receive(ctx context.Context, h Handler) error {
	return c.sub.Receive(ctx, func(ctx context.Context, m *pubsub.Message) {
		h(ctx, pubsubMessage{m: m})
	})
}

// Close implements Consumer. The underlying client is shared and owned by
// the caller.
func (c *PubSubConsumer) Close() error { return nil }

type pubsubMessage struct {
	m *pubsub.Message
}

func (p pubsubMessage) ID() string                    { return p.m.ID }
func (p pubsubMessage) Data() []byte                  { return p.m.Data }
func (p pubsubMessage) Attributes() map[string]string { return p.m.Attributes }
func (p pubsubMessage) Ack()                          { p.m.Ack() }
func (p pubsubMessage) Nack()                         { p.m.Nack() }

// PubSubPublisher publishes to a Pub/Sub topic with message ordering
// enabled, so events sharing an ordering key (the parcel id) are delivered
// in publish order.
type PubSubPublisher struct {
	topic *pubsub.Topic
}

// NewPubSubPublisher creates a publisher for the topic.
func NewPubSubPublisher(client *pubsub.Client, topicID string) *PubSubPublisher {
	topic := client.Topic(topicID)
	topic.EnableMessageOrdering = true
	return &PubSubPublisher{topic: topic}
}

// Publish implements Publisher. The call blocks until the server confirms
// the publish, surfacing errors promptly.
func (p *PubSubPublisher) Publish(ctx context.Context, data []byte, orderingKey string, attrs map[string]string) error {
	res := p.topic.Publish(ctx, &pubsub.Message{
		Data:        data,
		OrderingKey: orderingKey,
		Attributes:  attrs,
	})
	if _, err := res.Get(ctx); err != nil {
		return fmt.Errorf("pubsub publish: %w", err)
	}
	return nil
}

// Close implements Publisher.
func (p *PubSubPublisher) Close() error {
	p.topic.Stop()
	return nil
}

var (
	_ Consumer  = (*PubSubConsumer)(nil)
	_ Publisher = (*PubSubPublisher)(nil)
)
