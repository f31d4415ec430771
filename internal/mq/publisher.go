package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Envelope - общий формат событий на шине.
type Envelope struct {
	Event   string          `json:"event"`
	Version int             `json:"version"`
	Data    json.RawMessage `json:"data"`
}

// EventPublisher публикует data в Envelope с ключом маршрутизации key.
type EventPublisher interface {
	PublishEvent(ctx context.Context, key string, data any) error
}

// Decode разбирает Envelope и его Data в v. Возвращает имя события.
func Decode(body []byte, v any) (string, error) {
	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return "", fmt.Errorf("decode envelope: %w", err)
	}
	if len(env.Data) == 0 {
		return env.Event, fmt.Errorf("event %q has no data", env.Event)
	}
	if err := json.Unmarshal(env.Data, v); err != nil {
		return env.Event, fmt.Errorf("decode %s data: %w", env.Event, err)
	}
	return env.Event, nil
}

type Publisher struct {
	mu       sync.Mutex // amqp.Channel не безопасен для конкурентной публикации
	conn     *amqp.Connection
	ch       *amqp.Channel
	exchange string
}

func NewPublisher(url, exchange string) (*Publisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}
	return &Publisher{conn: conn, ch: ch, exchange: exchange}, nil
}

func (p *Publisher) PublishJSON(ctx context.Context, key string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ch.PublishWithContext(ctx, p.exchange, key, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Body:         b,
	})
}

// PublishEvent оборачивает data в Envelope{Event: key, Version: 1}.
func (p *Publisher) PublishEvent(ctx context.Context, key string, data any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	return p.PublishJSON(ctx, key, Envelope{Event: key, Version: 1, Data: raw})
}

func (p *Publisher) Close() error {
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}
