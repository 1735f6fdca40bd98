package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/xid"
)

const exchangePrefix = "servicehours."

// redeliveryDelay spaces out requeues of a message whose handler keeps
// failing with a transient error.
const redeliveryDelay = 2 * time.Second

// RabbitMQ fans topics out across processes. Each topic is a fanout
// exchange; each plain subscriber binds its own exclusive, server-named
// queue, and grouped subscribers share one durable queue per group.
type RabbitMQ struct {
	conn *amqp.Connection

	// amqp channels are not safe for concurrent publishing.
	pubMu    sync.Mutex
	pubCh    *amqp.Channel
	declared map[string]bool
}

var _ Backend = (*RabbitMQ)(nil)

// NewRabbitMQ dials url and opens the publishing channel.
func NewRabbitMQ(url string) (*RabbitMQ, error) {
	if strings.TrimSpace(url) == "" {
		return nil, errors.New("rabbitmq url is required")
	}

	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("notify: dialing rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("notify: opening channel: %w", err)
	}

	return &RabbitMQ{
		conn:     conn,
		pubCh:    ch,
		declared: make(map[string]bool),
	}, nil
}

func (r *RabbitMQ) Publish(ctx context.Context, topic string, data []byte, attrs map[string]string) (string, error) {
	if strings.TrimSpace(topic) == "" {
		return "", errors.New("rabbitmq topic is required")
	}

	r.pubMu.Lock()
	defer r.pubMu.Unlock()

	exchange := exchangePrefix + topic
	if !r.declared[exchange] {
		if err := declareExchange(r.pubCh, exchange); err != nil {
			return "", err
		}
		r.declared[exchange] = true
	}

	headers := amqp.Table{}
	for key, value := range attrs {
		headers[key] = value
	}

	messageID := xid.New().String()
	err := r.pubCh.PublishWithContext(ctx, exchange, "", false, false, amqp.Publishing{
		ContentType: "application/json",
		MessageId:   messageID,
		Timestamp:   time.Now().UTC(),
		Headers:     headers,
		Body:        data,
	})
	if err != nil {
		return "", err
	}
	return messageID, nil
}

// Subscribe consumes on a dedicated amqp channel, closed when it returns.
func (r *RabbitMQ) Subscribe(ctx context.Context, channel string, handler Handler, ready func()) error {
	topic, group := splitChannel(channel)
	if strings.TrimSpace(topic) == "" {
		return errors.New("rabbitmq topic is required")
	}

	ch, err := r.conn.Channel()
	if err != nil {
		return fmt.Errorf("notify: opening channel: %w", err)
	}
	defer ch.Close()

	exchange := exchangePrefix + topic
	if err := declareExchange(ch, exchange); err != nil {
		return err
	}

	var q amqp.Queue
	if group == "" {
		q, err = ch.QueueDeclare("", false, true, true, false, nil)
	} else {
		q, err = ch.QueueDeclare(exchange+"."+group, true, false, false, false, nil)
	}
	if err != nil {
		return fmt.Errorf("notify: declaring queue: %w", err)
	}
	if err := ch.QueueBind(q.Name, "", exchange, false, nil); err != nil {
		return fmt.Errorf("notify: binding queue: %w", err)
	}

	consumerTag := fmt.Sprintf("consumer-%s", xid.New().String())
	deliveries, err := ch.Consume(q.Name, consumerTag, false, false, false, false, nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = ch.Cancel(consumerTag, false)
	}()
	if ready != nil {
		ready()
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case delivery, ok := <-deliveries:
			if !ok {
				return errors.New("rabbitmq delivery channel closed")
			}
			message := Message{
				ID:         delivery.MessageId,
				Topic:      topic,
				Data:       delivery.Body,
				Attributes: headersToAttributes(delivery.Headers),
			}
			settle(ctx, delivery, group != "", handler(ctx, message), redeliveryDelay)
		}
	}
}

// settle acks or nacks a handled delivery. Permanent failures, and any
// failure on a plain subscriber's private queue, are dropped. Transient
// failures on a grouped queue are requeued after delay so a failing handler
// cannot spin on the same message.
func settle(ctx context.Context, delivery amqp.Delivery, grouped bool, err error, delay time.Duration) {
	if err == nil {
		_ = delivery.Ack(false)
		return
	}
	if !grouped || errors.Is(err, ErrPermanent) {
		_ = delivery.Nack(false, false)
		return
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
	_ = delivery.Nack(false, true)
}

// Close closes the publishing channel and the connection.
func (r *RabbitMQ) Close() error {
	r.pubMu.Lock()
	defer r.pubMu.Unlock()
	if r.pubCh != nil {
		_ = r.pubCh.Close()
	}
	if r.conn != nil {
		return r.conn.Close()
	}
	return nil
}

func declareExchange(ch *amqp.Channel, name string) error {
	if err := ch.ExchangeDeclare(name, amqp.ExchangeFanout, true, false, false, false, nil); err != nil {
		return fmt.Errorf("notify: declaring exchange %s: %w", name, err)
	}
	return nil
}

func headersToAttributes(headers amqp.Table) map[string]string {
	if len(headers) == 0 {
		return nil
	}
	attrs := make(map[string]string, len(headers))
	for key, value := range headers {
		switch typed := value.(type) {
		case string:
			attrs[key] = typed
		case []byte:
			attrs[key] = string(typed)
		default:
			attrs[key] = fmt.Sprint(value)
		}
	}
	return attrs
}
