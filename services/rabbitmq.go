package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"captiongram/models"

	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	postExchange = "post_events"

	EventPostCreated        = "post_created"
	EventCaptionRegenerated = "caption_regenerated"
)

// PostEvent - событие о новом посте или новой подписи для владельца поста
type PostEvent struct {
	Event     string    `json:"event"`
	PostID    string    `json:"post_id"`
	OwnerID   int64     `json:"owner_id"`
	ImageURL  string    `json:"image_url"`
	Caption   string    `json:"caption"`
	CreatedAt time.Time `json:"created_at"`
}

func newPostEvent(event string, p models.Post) PostEvent {
	return PostEvent{
		Event:     event,
		PostID:    p.ID,
		OwnerID:   p.OwnerID,
		ImageURL:  p.ImageURL,
		Caption:   p.Caption,
		CreatedAt: time.Now().UTC(),
	}
}

type EventPublisher interface {
	Publish(ctx context.Context, event PostEvent) error
}

// RabbitMQ - публикация и доставка событий постов через exchange post_events
type RabbitMQ struct {
	conn    *amqp.Connection
	channel *amqp.Channel
}

// InitRabbitMQ инициализирует соединение и exchange
func InitRabbitMQ(url string) (*RabbitMQ, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}
	// Создаем exchange типа topic
	if err := channel.ExchangeDeclare(
		postExchange,
		"topic",
		true,  // durable
		false, // auto-delete
		false, // internal
		false, // no-wait
		nil,   // args
	); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to declare exchange: %w", err)
	}
	log.Printf("RabbitMQ initialized successfully, exchange %s", postExchange)
	return &RabbitMQ{conn: conn, channel: channel}, nil
}

func (r *RabbitMQ) Close() error {
	if r == nil || r.conn == nil {
		return nil
	}
	return r.conn.Close()
}

// Publish публикует событие с routing key владельца поста
func (r *RabbitMQ) Publish(ctx context.Context, event PostEvent) error {
	if r == nil || r.channel == nil {
		return fmt.Errorf("RabbitMQ channel not initialized")
	}
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	routingKey := fmt.Sprintf("user.%d", event.OwnerID)
	return r.channel.PublishWithContext(ctx,
		postExchange,
		routingKey,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType: "application/json",
			Timestamp:   event.CreatedAt,
			Body:        body,
		},
	)
}

// StartPostEventConsumer запускает воркер, который слушает события и пушит их через WebSocket
func (r *RabbitMQ) StartPostEventConsumer(ctx context.Context, queueName string, ws *WSConnManager) error {
	if r == nil || r.channel == nil {
		return fmt.Errorf("RabbitMQ channel not initialized")
	}
	q, err := r.channel.QueueDeclare(
		queueName,
		true,  // durable
		false, // auto-delete
		false, // exclusive
		false, // no-wait
		nil,   // args
	)
	if err != nil {
		return fmt.Errorf("failed to declare queue: %w", err)
	}
	if err := r.channel.QueueBind(q.Name, "user.*", postExchange, false, nil); err != nil {
		return fmt.Errorf("failed to bind queue: %w", err)
	}
	msgs, err := r.channel.Consume(
		q.Name,
		"",
		true,  // auto-ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to start consumer: %w", err)
	}
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					log.Println("Post event consumer channel closed")
					return
				}
				var event PostEvent
				if err := json.Unmarshal(msg.Body, &event); err != nil {
					log.Println("Failed to unmarshal post event:", err)
					continue
				}
				ws.Send(event.OwnerID, msg.Body)
			}
		}
	}()
	return nil
}
