// Package pubsub publishes stock-change events to Google Cloud Pub/Sub.
package pubsub

import (
	"context"
	"encoding/json"
	"fmt"

	"cloud.google.com/go/pubsub"
	"google.golang.org/api/option"

	"github.com/JakeFAU/stock-monitor/internal/stock"
)

// Publisher implements stock.Recorder by publishing each change record.
type Publisher struct {
	client *pubsub.Client
	topic  *pubsub.Topic
	owns   bool
}

// Dial connects to projectID and publishes to topicID.
func Dial(ctx context.Context, projectID, topicID string, opts ...option.ClientOption) (*Publisher, error) {
	client, err := pubsub.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("create pubsub client: %w", err)
	}
	p := New(client, topicID)
	p.owns = true
	return p, nil
}

// New creates a Publisher for topicID on an existing client.
func New(client *pubsub.Client, topicID string) *Publisher {
	return &Publisher{client: client, topic: client.Topic(topicID)}
}

// Record marshals the record to JSON and publishes it.
func (p *Publisher) Record(ctx context.Context, record stock.Record) error {
	if p.topic == nil {
		return fmt.Errorf("pubsub publisher is not configured")
	}
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}

	msg := &pubsub.Message{
		Data: data,
		Attributes: map[string]string{
			"check_id": record.CheckID,
			"site":     stock.Target(record.URL).Host(),
			"in_stock": fmt.Sprint(len(record.Entries) > 0),
		},
	}
	if _, err := p.topic.Publish(ctx, msg).Get(ctx); err != nil {
		return fmt.Errorf("publish message: %w", err)
	}
	return nil
}

// Close flushes pending messages and releases the client if Dial created it.
func (p *Publisher) Close() error {
	p.topic.Stop()
	if !p.owns {
		return nil
	}
	if err := p.client.Close(); err != nil {
		return fmt.Errorf("close pubsub client: %w", err)
	}
	return nil
}
