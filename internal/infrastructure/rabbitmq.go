package infrastructure

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog/log"

	"showroom_bot/internal/entities"
)

// RabbitPublisher publishes conversation outcome events to a durable queue.
// With an empty URL it is disabled and Publish is a no-op.
type RabbitPublisher struct {
	conn    *amqp091.Connection
	channel *amqp091.Channel
	queue   string
	enabled bool
	mu      sync.Mutex
}

func NewRabbitPublisher(url, queue string) *RabbitPublisher {
	p := &RabbitPublisher{queue: queue}
	if url == "" {
		log.Info().Msg("RABBITMQ_URL is not set. Outcome publishing disabled.")
		return p
	}

	conn, err := amqp091.Dial(url)
	if err != nil {
		log.Error().Err(err).Msg("Could not connect to RabbitMQ")
		return p
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		log.Error().Err(err).Msg("Could not open RabbitMQ channel")
		return p
	}
	if _, err := ch.QueueDeclare(
		queue,
		true,  // durable
		false, // auto-delete
		false, // exclusive
		false, // no-wait
		nil,
	); err != nil {
		ch.Close()
		conn.Close()
		log.Error().Err(err).Str("queue", queue).Msg("Could not declare RabbitMQ queue")
		return p
	}

	p.conn = conn
	p.channel = ch
	p.enabled = true
	log.Info().Str("queue", queue).Msg("RabbitMQ connection established")
	return p
}

func (p *RabbitPublisher) Enabled() bool { return p.enabled }

func (p *RabbitPublisher) Publish(ctx context.Context, evt entities.OutcomeEvent) error {
	if !p.enabled {
		return nil
	}
	body, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal outcome: %w", err)
	}

	// amqp channels are not safe for concurrent publishing.
	p.mu.Lock()
	defer p.mu.Unlock()

	err = p.channel.PublishWithContext(ctx,
		"",      // default exchange
		p.queue, // routing key = queue
		false,   // mandatory
		false,   // immediate
		amqp091.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp091.Persistent,
			Body:         body,
		},
	)
	if err != nil {
		log.Error().Err(err).Str("queue", p.queue).Msg("Could not publish outcome to RabbitMQ")
		return err
	}
	log.Debug().Str("queue", p.queue).Str("tenant", evt.TenantID).Str("status", evt.Status).Msg("Published outcome")
	return nil
}

func (p *RabbitPublisher) Close() {
	if !p.enabled {
		return
	}
	p.channel.Close()
	p.conn.Close()
}
