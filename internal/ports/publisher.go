package ports

import "context"

// Publisher delivers an already encoded JSON message to a topic.
type Publisher interface {
	PublishRaw(ctx context.Context, arn string, payload []byte) error
}
