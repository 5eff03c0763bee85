// Package pubsub emits the rename-audit events published after a
// successful activity rename.
package pubsub

import (
	"context"
	"log"

	"cloud.google.com/go/pubsub"
)

// PubSubAdapter publishes audit records to Google Cloud Pub/Sub
type PubSubAdapter struct {
	Client *pubsub.Client
}

func (a *PubSubAdapter) Publish(ctx context.Context, topicID string, data []byte) (string, error) {
	topic := a.Client.Topic(topicID)
	res := topic.Publish(ctx, &pubsub.Message{Data: data})
	return res.Get(ctx)
}

// LogPublisher logs audit records instead of sending them. It is the
// default unless ENABLE_PUBLISH=true, so local runs never touch a
// real topic.
type LogPublisher struct{}

func (p *LogPublisher) Publish(ctx context.Context, topicID string, data []byte) (string, error) {
	log.Printf("[LogPublisher] rename event for %s (publishing disabled): %s", topicID, string(data))
	return "log-msg-id", nil
}
