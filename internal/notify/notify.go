// Package notify is the push side of the app: the accounting core publishes
// progress and certificate events, and subscribers (the SSE stream, the
// certificate mailer) react to them.
//
// The transport is a Backend: Memory fans out inside one process, RabbitMQ
// fans out across replicas.
package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

const (
	TopicProgressUpdated     = "progress.updated"
	TopicCertificateUnlocked = "certificate.unlocked"
	TopicSessionChanged      = "session.changed"
)

// Message represents a broker-agnostic payload delivered to subscribers.
type Message struct {
	ID         string
	Topic      string
	Data       []byte
	Attributes map[string]string
}

// Handler processes a message. A returned error asks for redelivery unless
// it wraps ErrPermanent.
type Handler func(ctx context.Context, msg Message) error

// ErrPermanent marks a handler failure that redelivering the same message
// cannot fix, such as a recipient that does not exist.
var ErrPermanent = errors.New("notify: permanent failure")

// Permanent wraps err so backends drop the message instead of requeueing it.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrPermanent, err)
}

// Backend defines the broker-agnostic operations used by the app.
//
// Subscribe blocks until ctx is cancelled or the backend fails. It calls
// ready, when non-nil, once the subscription is registered; every Publish
// that starts after that reaches it. Every subscriber on a topic sees every
// message, except subscribers that join the same group (see Grouped), which
// share one copy between them.
type Backend interface {
	Publish(ctx context.Context, topic string, data []byte, attrs map[string]string) (string, error)
	Subscribe(ctx context.Context, channel string, handler Handler, ready func()) error
	Close() error
}

const groupSep = "#"

// Grouped names a competing-consumer subscription: among subscribers using
// the same group on a topic, each message is handled once.
func Grouped(topic, group string) string {
	return topic + groupSep + group
}

func splitChannel(channel string) (topic, group string) {
	topic, group, _ = strings.Cut(channel, groupSep)
	return topic, group
}
