package notify

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/xid"
)

// ErrClosed is returned by a backend after Close.
var ErrClosed = errors.New("notify: backend closed")

const memoryBuffer = 64

// Memory is an in-process Backend. Each subscriber has a bounded buffer;
// when it is full the message is dropped for that subscriber rather than
// blocking the publisher.
type Memory struct {
	mu     sync.Mutex
	subs   map[string][]*memorySub
	closed bool
	done   chan struct{}
}

type memorySub struct {
	group string
	ch    chan Message
}

var _ Backend = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{
		subs: make(map[string][]*memorySub),
		done: make(chan struct{}),
	}
}

func (m *Memory) Publish(_ context.Context, topic string, data []byte, attrs map[string]string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return "", ErrClosed
	}

	msg := Message{
		ID:         xid.New().String(),
		Topic:      topic,
		Data:       data,
		Attributes: attrs,
	}

	seenGroups := map[string]bool{}
	for _, sub := range m.subs[topic] {
		if sub.group != "" {
			if seenGroups[sub.group] {
				continue
			}
			seenGroups[sub.group] = true
		}
		select {
		case sub.ch <- msg:
		default:
		}
	}
	return msg.ID, nil
}

// Subscribe handles messages until ctx is cancelled or the backend closes.
// Handler errors are not retried in-process.
func (m *Memory) Subscribe(ctx context.Context, channel string, handler Handler, ready func()) error {
	topic, group := splitChannel(channel)
	sub := &memorySub{group: group, ch: make(chan Message, memoryBuffer)}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	m.subs[topic] = append(m.subs[topic], sub)
	m.mu.Unlock()

	defer m.remove(topic, sub)
	if ready != nil {
		ready()
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-m.done:
			return ErrClosed
		case msg := <-sub.ch:
			_ = handler(ctx, msg)
		}
	}
}

// Subscribers reports how many subscribers are attached to topic.
func (m *Memory) Subscribers(topic string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.subs[topic])
}

func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.closed {
		m.closed = true
		close(m.done)
	}
	return nil
}

func (m *Memory) remove(topic string, target *memorySub) {
	m.mu.Lock()
	defer m.mu.Unlock()

	subs := m.subs[topic]
	for i, sub := range subs {
		if sub == target {
			m.subs[topic] = append(subs[:i:i], subs[i+1:]...)
			break
		}
	}
	if len(m.subs[topic]) == 0 {
		delete(m.subs, topic)
	}
}
