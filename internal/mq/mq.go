package mq

import "context"

// Message represents a broker-agnostic payload delivered to a consumer.
type Message struct {
	ID   string
	Data []byte
}

// Handler processes a message. Return an error to signal a retry/nack.
type Handler func(ctx context.Context, msg Message) error

// Backend defines the broker-agnostic operations for a single named
// queue, fixed at construction time.
type Backend interface {
	Publish(ctx context.Context, data []byte) (string, error)
	Subscribe(ctx context.Context, handler Handler) error
	Close() error
}

// MQ wraps a backend with a stable API.
type MQ struct {
	backend Backend
}

// New constructs an MQ wrapper for the provided backend.
func New(backend Backend) *MQ {
	return &MQ{backend: backend}
}

// Publish sends a message to the queue.
func (m *MQ) Publish(ctx context.Context, data []byte) (string, error) {
	return m.backend.Publish(ctx, data)
}

// Subscribe consumes messages from the queue until ctx is cancelled.
func (m *MQ) Subscribe(ctx context.Context, handler Handler) error {
	return m.backend.Subscribe(ctx, handler)
}

// Close closes the underlying backend.
func (m *MQ) Close() error {
	return m.backend.Close()
}
