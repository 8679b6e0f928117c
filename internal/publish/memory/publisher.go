// Package memory provides an in-process Publisher for development and tests.
package memory

import (
	"context"
	"fmt"
	"sync"
)

// Event is one published message, retained for inspection.
type Event struct {
	Topic   string
	Payload any
}

// Publisher records events instead of sending them anywhere.
type Publisher struct {
	mu     sync.Mutex
	events []Event
}

// NewPublisher constructs an empty Publisher.
func NewPublisher() *Publisher {
	return &Publisher{}
}

// Publish appends the event and returns a synthetic message id.
func (p *Publisher) Publish(_ context.Context, topic string, payload any) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, Event{Topic: topic, Payload: payload})
	return fmt.Sprintf("mem-%d", len(p.events)), nil
}

// Events returns a copy of everything published so far.
func (p *Publisher) Events() []Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Event, len(p.events))
	copy(out, p.events)
	return out
}
