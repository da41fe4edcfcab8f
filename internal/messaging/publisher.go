package messaging

import (
	"context"
	"encoding/json"
	"fmt"

	"storyplay-server/shared/models"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// SessionUpdatePublisher defines the interface for publishing session updates
// to the platform's client update queue.
//
//go:generate mockery --name SessionUpdatePublisher --output ./mocks --outpkg mocks --case=underscore
type SessionUpdatePublisher interface {
	PublishSessionUpdate(ctx context.Context, update models.SessionUpdate) error
}

// rabbitMQPublisher implements SessionUpdatePublisher on top of RabbitMQ.
type rabbitMQPublisher struct {
	channel   *amqp.Channel
	queueName string
	logger    *zap.Logger
}

// NewRabbitMQSessionUpdatePublisher открывает канал и объявляет durable
// очередь обновлений. Параметры очереди должны совпадать с консьюмером
// на стороне доставки.
func NewRabbitMQSessionUpdatePublisher(conn *amqp.Connection, queueName string, logger *zap.Logger) (SessionUpdatePublisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("session update publisher: не удалось открыть канал: %w", err)
	}

	_, err = ch.QueueDeclare(
		queueName, // name
		true,      // durable
		false,     // delete when unused
		false,     // exclusive
		false,     // no-wait
		nil,       // arguments
	)
	if err != nil {
		ch.Close()
		return nil, fmt.Errorf("session update publisher: не удалось объявить очередь '%s': %w", queueName, err)
	}

	return &rabbitMQPublisher{
		channel:   ch,
		queueName: queueName,
		logger:    logger.Named("SessionUpdatePublisher"),
	}, nil
}

// PublishSessionUpdate publishes the update as a persistent JSON message.
func (p *rabbitMQPublisher) PublishSessionUpdate(ctx context.Context, update models.SessionUpdate) error {
	body, err := json.Marshal(update)
	if err != nil {
		return fmt.Errorf("session update publisher: marshal: %w", err)
	}

	err = p.channel.PublishWithContext(ctx,
		"",          // exchange
		p.queueName, // routing key
		false,       // mandatory
		false,       // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("session update publisher: publish: %w", err)
	}

	p.logger.Debug("Session update published",
		zap.String("type", string(update.Type)),
		zap.String("sessionID", update.SessionID.String()),
	)
	return nil
}

// NoopPublisher - заглушка для окружений без RabbitMQ (локальная разработка,
// тесты). Обновления просто логируются на уровне debug.
type NoopPublisher struct {
	Logger *zap.Logger
}

// PublishSessionUpdate implements SessionUpdatePublisher.
func (p *NoopPublisher) PublishSessionUpdate(_ context.Context, update models.SessionUpdate) error {
	if p.Logger != nil {
		p.Logger.Debug("Session update dropped (no publisher configured)",
			zap.String("type", string(update.Type)),
			zap.String("sessionID", update.SessionID.String()),
		)
	}
	return nil
}
