// Package notifier alerts chat owners about flagged messages.
package notifier

import (
	"context"
	"fmt"
	"strings"
	"time"

	"chatguard/internal/constants"
	"chatguard/internal/logger"
	"chatguard/pkg/metrics"
	"chatguard/pkg/models"
)

// Alert is one rendered notification.
type Alert struct {
	To      string
	Subject string
	Body    string
}

type Transport interface {
	Name() string
	Send(ctx context.Context, alert Alert) error
}

type Notifier struct {
	transports []Transport
	logger     logger.Logger
}

func New(log logger.Logger, transports ...Transport) *Notifier {
	return &Notifier{transports: transports, logger: log}
}

// Decide reports whether an alert is due: the chat is registered, has a
// target and the result has at least one violation.
func Decide(reg models.Registration, result models.ModerationResult) bool {
	return reg.Registered &&
		strings.TrimSpace(reg.NotificationTarget) != "" &&
		len(result.Violations) > 0
}

// Notify sends the alert through every transport and reports whether at
// least one delivered it. Delivery errors are logged and counted, never
// returned.
func (n *Notifier) Notify(ctx context.Context, reg models.Registration, msg models.Message, result models.ModerationResult) bool {
	if !Decide(reg, result) {
		return false
	}

	alert := Alert{
		To:      reg.NotificationTarget,
		Subject: constants.AlertSubject,
		Body:    Format(reg, msg, result),
	}
	return n.send(ctx, alert)
}

// SendTest sends a fixed message to to.
func (n *Notifier) SendTest(ctx context.Context, to string) bool {
	return n.send(ctx, Alert{
		To:      to,
		Subject: constants.TestEmailSubject,
		Body:    constants.TestEmailBody,
	})
}

func (n *Notifier) send(ctx context.Context, alert Alert) bool {
	delivered := false
	for _, t := range n.transports {
		if err := t.Send(ctx, alert); err != nil {
			metrics.IncNotification(t.Name(), "error")
			n.logger.ErrorwCtx(ctx, "Notification delivery failed",
				"transport", t.Name(),
				"error", err,
			)
			continue
		}
		metrics.IncNotification(t.Name(), "sent")
		delivered = true
	}
	return delivered
}

var violationNames = map[models.ViolationKind]string{
	models.ViolationToxicity: "токсичность",
	models.ViolationSpam:     "спам",
}

// Format renders the alert body.
func Format(reg models.Registration, msg models.Message, result models.ModerationResult) string {
	chatName := msg.Origin.ChatName
	if chatName == "" {
		chatName = reg.Title
	}
	if chatName == "" {
		chatName = constants.DefaultChatTitle
	}
	chatID := msg.Origin.ChatID
	if chatID == "" {
		chatID = reg.ChatID
	}

	names := make([]string, 0, len(result.Violations))
	for _, v := range result.Violations {
		name, ok := violationNames[v]
		if !ok {
			name = string(v)
		}
		names = append(names, name)
	}

	at := msg.ReceivedAt
	if at.IsZero() {
		at = time.Now()
	}

	var b strings.Builder
	fmt.Fprintf(&b, "В Telegram-группе «%s» (%s) обнаружено токсичное сообщение:\n\n", chatName, chatID)
	fmt.Fprintf(&b, "Автор: %s\n", msg.Origin.AuthorName)
	fmt.Fprintf(&b, "Текст: %s\n\n", msg.Text)
	fmt.Fprintf(&b, "Нарушения: %s\n", strings.Join(names, ", "))
	if len(result.ViolatingSegments) > 0 {
		fmt.Fprintf(&b, "Фрагменты: %s\n", strings.Join(result.ViolatingSegments, " | "))
	}
	fmt.Fprintf(&b, "Время: %s", at.Format(time.RFC3339))
	return b.String()
}
