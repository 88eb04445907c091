// Package memory implements an in-process publisher for development and
// tests.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// Message is one published event.
type Message struct {
	Topic string
	Data  []byte
}

// Publisher records published messages in memory.
type Publisher struct {
	mu       sync.Mutex
	messages []Message
	nextID   int
}

// New creates a new in-memory publisher.
func New() *Publisher {
	return &Publisher{}
}

// Publish marshals the payload and appends it to the message log.
func (p *Publisher) Publish(_ context.Context, topic string, payload any) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.nextID++
	p.messages = append(p.messages, Message{Topic: topic, Data: data})
	return fmt.Sprintf("mem-%d", p.nextID), nil
}

// Messages returns a copy of everything published so far.
func (p *Publisher) Messages() []Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Message(nil), p.messages...)
}
