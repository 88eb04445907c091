// Package publisher defines the event publishing boundary for crawl run
// completion notifications.
package publisher

import "context"

// Publisher delivers a JSON-serializable payload to a topic and returns the
// broker-assigned message ID.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}
