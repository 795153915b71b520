// Package service holds the outbound adapters of the engine.  Publisher
// delivers token events to RabbitMQ.
package service

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/iliyamo/queue-token-service/internal/booking"
	"github.com/iliyamo/queue-token-service/internal/queue"
)

var _ booking.EventPublisher = (*Publisher)(nil)

// Publisher implements booking.EventPublisher.  The connection is opened
// lazily and reopened after any failure; messages are persistent on a
// durable queue.
type Publisher struct {
	url   string
	queue string

	mu   sync.Mutex
	conn *amqp.Connection
	ch   *amqp.Channel
}

// NewPublisher returns a Publisher for queueName on the broker at url.
func NewPublisher(url, queueName string) *Publisher {
	return &Publisher{url: url, queue: queueName}
}

// Publish implements booking.EventPublisher.
func (p *Publisher) Publish(ctx context.Context, ev booking.Event) error {
	msg := queue.NewTokenEvent(ev)
	body, err := json.Marshal(msg)
	if err != nil {
		log.Printf("rabbitmq: marshal event failed: %v", err)
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	ch, err := p.channel()
	if err != nil {
		log.Printf("rabbitmq: connect failed: %v", err)
		return err
	}
	err = ch.PublishWithContext(ctx, "", p.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    msg.EventID,
		Type:         msg.Type,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	})
	if err != nil {
		log.Printf("rabbitmq: publish %s failed: %v", msg.Type, err)
		p.reset()
		return err
	}
	return nil
}

// channel returns an open channel with the queue declared.  p.mu is held.
func (p *Publisher) channel() (*amqp.Channel, error) {
	if p.ch != nil && !p.ch.IsClosed() && p.conn != nil && !p.conn.IsClosed() {
		return p.ch, nil
	}
	p.reset()

	conn, err := amqp.Dial(p.url)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	if _, err := ch.QueueDeclare(p.queue, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, err
	}
	p.conn, p.ch = conn, ch
	return ch, nil
}

func (p *Publisher) reset() {
	if p.ch != nil {
		_ = p.ch.Close()
		p.ch = nil
	}
	if p.conn != nil {
		_ = p.conn.Close()
		p.conn = nil
	}
}

// Close releases the broker connection.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reset()
	return nil
}
