// Package notify publishes an event when a generation reaches a terminal
// state, so downstream consumers can react without polling the API.
package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/streadway/amqp"

	"github.com/maauso/vidgen/internal/fault"
	"github.com/maauso/vidgen/internal/generator"
	"github.com/maauso/vidgen/internal/job"
)

// DefaultExchange is the topic exchange completion events are published to.
const DefaultExchange = "vidgen.events"

// routingKeyPrefix is followed by the terminal state, e.g. "generation.success".
const routingKeyPrefix = "generation."

// ErrExchangeRequired is returned when no exchange name is configured.
var ErrExchangeRequired = errors.New("notify: exchange is required")

// Channel is the subset of *amqp.Channel used by the Publisher.
type Channel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	Publish(exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// Event is the message body of a completion event.
type Event struct {
	ID          string          `json:"id"`
	OwnerID     string          `json:"owner_id"`
	Model       generator.Model `json:"model"`
	State       generator.State `json:"state"`
	TaskID      string          `json:"task_id,omitempty"`
	ResultURL   string          `json:"result_url,omitempty"`
	Error       string          `json:"error,omitempty"`
	ErrorKind   fault.Kind      `json:"error_kind,omitempty"`
	CompletedAt time.Time       `json:"completed_at"`
}

// NewEvent builds the event describing g.
func NewEvent(g *job.Generation) Event {
	completed := g.CompletedAt
	if completed.IsZero() {
		completed = g.UpdatedAt
	}
	return Event{
		ID:          g.ID,
		OwnerID:     g.OwnerID,
		Model:       g.Model,
		State:       g.State,
		TaskID:      g.TaskID,
		ResultURL:   g.ResultURL,
		Error:       g.Error,
		ErrorKind:   g.ErrorKind,
		CompletedAt: completed,
	}
}

// Publisher publishes completion events to an AMQP topic exchange.
type Publisher struct {
	mu       sync.Mutex
	conn     *amqp.Connection
	ch       Channel
	exchange string
	logger   *slog.Logger
}

// Option configures a Publisher.
type Option func(*Publisher)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Publisher) {
		if l != nil {
			p.logger = l
		}
	}
}

// Dial connects to the broker at url and declares exchange.
func Dial(url, exchange string, opts ...Option) (*Publisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, errors.Wrap(err, "notify: dial broker")
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, errors.Wrap(err, "notify: open channel")
	}
	p, err := NewPublisher(ch, exchange, opts...)
	if err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, err
	}
	p.conn = conn
	return p, nil
}

// NewPublisher declares a durable topic exchange on ch and returns a
// Publisher using it.
func NewPublisher(ch Channel, exchange string, opts ...Option) (*Publisher, error) {
	if exchange == "" {
		return nil, ErrExchangeRequired
	}
	if err := ch.ExchangeDeclare(
		exchange, // name
		"topic",  // kind
		true,     // durable
		false,    // delete when unused
		false,    // internal
		false,    // no-wait
		nil,      // args
	); err != nil {
		return nil, errors.Wrapf(err, "notify: declare exchange %q", exchange)
	}

	p := &Publisher{
		ch:       ch,
		exchange: exchange,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Notify publishes the completion event of g. Non-terminal records are
// ignored.
func (p *Publisher) Notify(ctx context.Context, g *job.Generation) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	event := NewEvent(g)
	if !event.State.IsTerminal() {
		return nil
	}

	body, err := json.Marshal(event)
	if err != nil {
		return errors.Wrap(err, "notify: encode event")
	}
	key := routingKeyPrefix + string(event.State)

	p.mu.Lock()
	err = p.ch.Publish(
		p.exchange, key, false, false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    event.ID,
			Timestamp:    event.CompletedAt,
			Body:         body,
		},
	)
	p.mu.Unlock()
	if err != nil {
		return errors.Wrapf(err, "notify: publish %s", key)
	}

	p.logger.Debug("completion event published",
		slog.String("generation_id", event.ID),
		slog.String("routing_key", key),
	)
	return nil
}

// Close closes the channel and, when the Publisher dialed it, the connection.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	err := p.ch.Close()
	if p.conn != nil {
		if cerr := p.conn.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

var _ job.Notifier = (*Publisher)(nil)
