// Package pubsub sends story notifications to a Google Cloud Pub/Sub topic.
package pubsub

import (
	"context"
	"encoding/json"
	"fmt"

	"cloud.google.com/go/pubsub"
	"go.opentelemetry.io/otel"

	"github.com/JakeFAU/ycrawler/internal/crawler"
)

// Message attributes set on story notifications so subscribers can filter
// without decoding the body.
const (
	AttrEvent   = "event"
	AttrStoryID = "story_id"
	AttrCycleID = "cycle_id"

	EventStoryCompleted = "story.completed"
)

// Publisher is bound to a single topic.
type Publisher struct {
	topic *pubsub.Topic
}

// New creates a Publisher for topic.
func New(topic *pubsub.Topic) *Publisher {
	return &Publisher{topic: topic}
}

// Publish sends payload as JSON and waits for the server-assigned message id.
// topic must name the bound topic. The active trace context travels in the
// message attributes.
func (p *Publisher) Publish(ctx context.Context, topic string, payload any) (string, error) {
	if p.topic == nil {
		return "", fmt.Errorf("pubsub topic is not configured")
	}
	if topic != "" && topic != p.topic.ID() {
		return "", fmt.Errorf("publisher is bound to topic %q, not %q", p.topic.ID(), topic)
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}

	msg := &pubsub.Message{Data: data, Attributes: attributesFor(payload)}
	otel.GetTextMapPropagator().Inject(ctx, &pubsubCarrier{attrs: msg.Attributes})

	id, err := p.topic.Publish(ctx, msg).Get(ctx)
	if err != nil {
		return "", fmt.Errorf("publish to %s: %w", p.topic.ID(), err)
	}
	return id, nil
}

// Stop flushes pending messages and stops the topic's goroutines.
func (p *Publisher) Stop() {
	if p.topic != nil {
		p.topic.Stop()
	}
}

func attributesFor(payload any) map[string]string {
	attrs := make(map[string]string)
	switch n := payload.(type) {
	case crawler.StoryNotification:
		attrs[AttrEvent] = EventStoryCompleted
		attrs[AttrStoryID] = n.StoryID
		attrs[AttrCycleID] = n.CycleID
	case *crawler.StoryNotification:
		if n != nil {
			return attributesFor(*n)
		}
	}
	return attrs
}

// pubsubCarrier adapts message attributes to propagation.TextMapCarrier.
type pubsubCarrier struct {
	attrs map[string]string
}

func (c *pubsubCarrier) Get(key string) string { return c.attrs[key] }

func (c *pubsubCarrier) Set(key, value string) { c.attrs[key] = value }

func (c *pubsubCarrier) Keys() []string {
	keys := make([]string, 0, len(c.attrs))
	for k := range c.attrs {
		keys = append(keys, k)
	}
	return keys
}
