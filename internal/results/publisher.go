package results

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/rabbitmq/amqp091-go"

	"certprep/internal/quiz"
)

const (
	DefaultExchange     = "certprep.events"
	RoutingKeyCompleted = "session.completed"
)

// SessionCompletedEvent is the message body published for a finished session.
type SessionCompletedEvent struct {
	EventType  string    `json:"event_type"`
	OccurredAt time.Time `json:"occurred_at"`
	Summary
}

type amqpChannel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp091.Publishing) error
	Close() error
}

// Publisher emits session.completed events to a topic exchange. A publisher
// built from an empty URL is disabled and drops events.
type Publisher struct {
	conn     *amqp091.Connection
	channel  amqpChannel
	exchange string
	enabled  bool
}

func NewPublisher(url, exchange string) (*Publisher, error) {
	if exchange == "" {
		exchange = DefaultExchange
	}
	if url == "" {
		log.Println("results: AMQP_URL is empty, event publishing is disabled")
		return &Publisher{exchange: exchange}, nil
	}

	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("connect amqp: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open amqp channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}

	return &Publisher{conn: conn, channel: ch, exchange: exchange, enabled: true}, nil
}

func newPublisherWithChannel(ch amqpChannel, exchange string) *Publisher {
	return &Publisher{channel: ch, exchange: exchange, enabled: true}
}

func (p *Publisher) SaveResult(ctx context.Context, t quiz.Transcript) error {
	if err := validate(t); err != nil {
		return err
	}
	if !p.enabled {
		return nil
	}

	body, err := json.Marshal(SessionCompletedEvent{
		EventType:  RoutingKeyCompleted,
		OccurredAt: time.Now().UTC(),
		Summary:    summaryOf(t),
	})
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	pubCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	err = p.channel.PublishWithContext(pubCtx, p.exchange, RoutingKeyCompleted, false, false, amqp091.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp091.Persistent,
		Timestamp:    time.Now(),
		MessageId:    t.SessionID,
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("publish %s: %w", RoutingKeyCompleted, err)
	}
	return nil
}

func (p *Publisher) Close() error {
	if !p.enabled {
		return nil
	}
	if p.channel != nil {
		_ = p.channel.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}
