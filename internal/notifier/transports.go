package notifier

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"chatguard/internal/broker"
	"chatguard/internal/constants"
	"chatguard/pkg/logging"
	"chatguard/pkg/models"
)

// ChatSender posts plain text into a Telegram chat.
type ChatSender interface {
	SendText(ctx context.Context, chatID int64, text string) error
}

// TelegramTransport mirrors every alert into the operators' debug chat.
type TelegramTransport struct {
	sender ChatSender
	chatID int64
}

func NewTelegramTransport(sender ChatSender, debugChatID int64) *TelegramTransport {
	return &TelegramTransport{sender: sender, chatID: debugChatID}
}

func (t *TelegramTransport) Name() string { return "telegram" }

func (t *TelegramTransport) Send(ctx context.Context, alert Alert) error {
	text := fmt.Sprintf("[DEBUG]\n%s → %s\n\n%s", alert.Subject, alert.To, alert.Body)
	return t.sender.SendText(ctx, t.chatID, text)
}

// EventPublisher emits moderation events to the broker output topic.
type EventPublisher struct {
	producer broker.Producer
	topic    string
}

func NewEventPublisher(producer broker.Producer, topic string) *EventPublisher {
	if topic == "" {
		topic = constants.DefaultOutputTopic
	}
	return &EventPublisher{producer: producer, topic: topic}
}

func (p *EventPublisher) Publish(ctx context.Context, event models.ModerationEvent) error {
	envelope, err := models.NewMessageEnvelopeBuilder().
		WithID(uuid.New().String()).
		WithSource(constants.ServiceName).
		WithType(models.EnvelopeTypeModerationEvent).
		WithPayload(event).
		WithTraceID(logging.GetTraceID(ctx)).
		WithAttribute("kind", string(event.Kind)).
		Build()
	if err != nil {
		return err
	}
	if err := p.producer.Publish(ctx, p.topic, *envelope); err != nil {
		return fmt.Errorf("failed to publish moderation event: %w", err)
	}
	return nil
}
