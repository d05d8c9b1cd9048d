package queue

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/kursadbilgin/mailtrack/internal/domain"
	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	connectionName   = "mailtrack"
	heartbeat        = 10 * time.Second
	dialBackoffStart = 250 * time.Millisecond
	dialBackoffMax   = 10 * time.Second
	connectTimeout   = 15 * time.Second

	// Unconsumed open events expire with the tracking records they describe.
	openedQueueMessageTTL = domain.TrackingTTL
)

// DialFunc opens a broker connection.
type DialFunc func(url string) (*amqp.Connection, error)

// RabbitMQ holds the broker connection used for open events and one
// publishing channel with the event topology already declared on it. A
// dropped connection or channel is replaced lazily on the next request.
type RabbitMQ struct {
	url  string
	dial DialFunc

	mu     sync.Mutex
	conn   *amqp.Connection
	ch     *amqp.Channel
	chConn *amqp.Connection
}

func NewRabbitMQ(url string) (*RabbitMQ, error) {
	r, err := newRabbitMQ(url, dialWithName)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	if _, err := r.connection(ctx); err != nil {
		return nil, err
	}

	return r, nil
}

// NewRabbitMQWithDialer builds a client that connects through dial on first
// use instead of dialing up front.
func NewRabbitMQWithDialer(url string, dial DialFunc) (*RabbitMQ, error) {
	return newRabbitMQ(url, dial)
}

func newRabbitMQ(url string, dial DialFunc) (*RabbitMQ, error) {
	url = strings.TrimSpace(url)
	if url == "" {
		return nil, fmt.Errorf("rabbitmq url is required")
	}
	if dial == nil {
		return nil, fmt.Errorf("rabbitmq dialer is required")
	}

	return &RabbitMQ{url: url, dial: dial}, nil
}

func dialWithName(url string) (*amqp.Connection, error) {
	props := amqp.NewConnectionProperties()
	props.SetClientConnectionName(connectionName)

	return amqp.DialConfig(url, amqp.Config{
		Heartbeat:  heartbeat,
		Properties: props,
	})
}

func (r *RabbitMQ) Close() error {
	r.mu.Lock()
	conn, ch := r.conn, r.ch
	r.conn, r.ch, r.chConn = nil, nil, nil
	r.mu.Unlock()

	if ch != nil && !ch.IsClosed() {
		_ = ch.Close()
	}
	if conn == nil || conn.IsClosed() {
		return nil
	}

	return conn.Close()
}

func (r *RabbitMQ) liveConn() *amqp.Connection {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.conn != nil && !r.conn.IsClosed() {
		return r.conn
	}
	return nil
}

// connection returns a live connection, redialing with capped exponential
// backoff until one is established or ctx ends. The lock is only held to
// swap the connection, never across a dial or a backoff sleep.
func (r *RabbitMQ) connection(ctx context.Context) (*amqp.Connection, error) {
	backoff := dialBackoffStart
	for attempt := 1; ; attempt++ {
		if conn := r.liveConn(); conn != nil {
			return conn, nil
		}
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("rabbitmq dial canceled: %w", err)
		}

		conn, err := r.dial(r.url)
		if err == nil {
			r.mu.Lock()
			if r.conn != nil && !r.conn.IsClosed() {
				// Another caller won the redial.
				existing := r.conn
				r.mu.Unlock()
				_ = conn.Close()
				return existing, nil
			}
			r.conn = conn
			r.mu.Unlock()
			return conn, nil
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("rabbitmq dial gave up after %d attempts: %w (last error: %v)", attempt, ctx.Err(), err)
		case <-time.After(backoff):
		}

		backoff = min(backoff*2, dialBackoffMax)
	}
}

// publishChannel returns the cached publishing channel, opening a new one
// and declaring the topology only when the connection or channel changed.
func (r *RabbitMQ) publishChannel(ctx context.Context) (*amqp.Channel, error) {
	conn, err := r.connection(ctx)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.ch != nil && !r.ch.IsClosed() && r.chConn == conn {
		return r.ch, nil
	}

	ch, err := conn.Channel()
	if err != nil {
		if r.conn == conn {
			r.conn = nil
		}
		return nil, fmt.Errorf("failed to open rabbitmq channel: %w", err)
	}
	if err := declareTopology(ch); err != nil {
		_ = ch.Close()
		return nil, err
	}

	r.ch, r.chConn = ch, conn
	return ch, nil
}

// discardChannel drops ch from the cache after a failed publish so the next
// publish opens a fresh one.
func (r *RabbitMQ) discardChannel(ch *amqp.Channel) {
	r.mu.Lock()
	if r.ch == ch {
		r.ch, r.chConn = nil, nil
	}
	r.mu.Unlock()

	if ch != nil && !ch.IsClosed() {
		_ = ch.Close()
	}
}

func declareTopology(ch *amqp.Channel) error {
	if err := ch.ExchangeDeclare(EventsExchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare exchange %q: %w", EventsExchange, err)
	}

	args := amqp.Table{"x-message-ttl": openedQueueMessageTTL.Milliseconds()}
	if _, err := ch.QueueDeclare(OpenedQueue, true, false, false, false, args); err != nil {
		return fmt.Errorf("failed to declare queue %q: %w", OpenedQueue, err)
	}

	if err := ch.QueueBind(OpenedQueue, OpenedRoutingKey, EventsExchange, false, nil); err != nil {
		return fmt.Errorf("failed to bind queue %q: %w", OpenedQueue, err)
	}

	return nil
}
