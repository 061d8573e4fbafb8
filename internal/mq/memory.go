package mq

import (
	"context"
	"errors"
	"strings"
	"sync"
)

var (
	// ErrClosed is returned once the memory backend has been closed.
	ErrClosed = errors.New("mq: backend closed")
	// ErrQueueFull is returned when a memory queue cannot take more messages.
	ErrQueueFull = errors.New("mq: queue full")
)

const defaultMemoryQueueSize = 1024

// MemoryBackend is an in-process Backend backed by buffered channels. It
// offers the same ack/redeliver contract as the brokers but loses queued
// messages when the process exits.
type MemoryBackend struct {
	mu     sync.RWMutex
	queues map[string]chan Message
	size   int
	closed bool
}

// NewMemoryBackend constructs a memory backend whose queues hold up to size messages.
func NewMemoryBackend(size int) *MemoryBackend {
	if size <= 0 {
		size = defaultMemoryQueueSize
	}
	return &MemoryBackend{
		queues: make(map[string]chan Message),
		size:   size,
	}
}

// Publish enqueues a message on the named channel without blocking.
func (m *MemoryBackend) Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error) {
	if strings.TrimSpace(channel) == "" {
		return "", errors.New("memory channel is required")
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	msg := Message{
		ID:         newMessageID(),
		Data:       append([]byte(nil), data...),
		Attributes: copyAttributes(attrs),
	}
	if err := m.enqueue(channel, msg); err != nil {
		return "", err
	}
	return msg.ID, nil
}

// Subscribe delivers messages from the named channel until ctx is done.
// A message whose handler fails is put back on the queue.
func (m *MemoryBackend) Subscribe(ctx context.Context, channel string, handler Handler) error {
	if strings.TrimSpace(channel) == "" {
		return errors.New("memory channel is required")
	}
	queue, err := m.queue(channel)
	if err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-queue:
			if !ok {
				return ErrClosed
			}
			if err := handler(ctx, msg); err != nil {
				_ = m.enqueue(channel, msg)
				if ctx.Err() != nil {
					return ctx.Err()
				}
			}
		}
	}
}

// Close closes every queue. Subscribers return ErrClosed.
func (m *MemoryBackend) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	for _, queue := range m.queues {
		close(queue)
	}
	return nil
}

// Len reports how many messages wait on the named channel.
func (m *MemoryBackend) Len(channel string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.queues[channel])
}

func (m *MemoryBackend) enqueue(channel string, msg Message) error {
	queue, err := m.queue(channel)
	if err != nil {
		return err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return ErrClosed
	}
	select {
	case queue <- msg:
		return nil
	default:
		return ErrQueueFull
	}
}

func (m *MemoryBackend) queue(channel string) (chan Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrClosed
	}
	queue, ok := m.queues[channel]
	if !ok {
		queue = make(chan Message, m.size)
		m.queues[channel] = queue
	}
	return queue, nil
}

func copyAttributes(attrs map[string]string) map[string]string {
	if len(attrs) == 0 {
		return nil
	}
	out := make(map[string]string, len(attrs))
	for key, value := range attrs {
		out[key] = value
	}
	return out
}
