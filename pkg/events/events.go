// Package events publishes todo change notifications to a message bus.
package events

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// Publisher hands an event body to the bus under topic.
// Implementations are safe for concurrent use.
type Publisher interface {
	Publish(ctx context.Context, topic string, body interface{}) error
	Close() error
}

// ValidateTopic rejects topics that are empty or would be read as NATS
// wildcards or subject separators at the edges
func ValidateTopic(topic string) error {
	if topic == "" {
		return fmt.Errorf("topic cannot be empty")
	}
	if strings.ContainsAny(topic, " \t\r\n*>") {
		return fmt.Errorf("invalid topic %q", topic)
	}
	if strings.HasPrefix(topic, ".") || strings.HasSuffix(topic, ".") || strings.Contains(topic, "..") {
		return fmt.Errorf("invalid topic %q", topic)
	}
	return nil
}

// Noop discards every event
type Noop struct{}

func (Noop) Publish(ctx context.Context, topic string, body interface{}) error {
	return ValidateTopic(topic)
}

func (Noop) Close() error { return nil }

// Event is one publication captured by Recorder
type Event struct {
	Topic string
	Body  interface{}
}

// Recorder keeps published events in memory. Useful in tests and for
// running without a broker while still observing what would be sent.
type Recorder struct {
	mu     sync.Mutex
	events []Event
	Err    error
}

func (r *Recorder) Publish(ctx context.Context, topic string, body interface{}) error {
	if err := ValidateTopic(topic); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	r.events = append(r.events, Event{Topic: topic, Body: body})
	return nil
}

func (r *Recorder) Close() error { return nil }

// Events returns a copy of everything published so far
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}
