// Package pipeline sequences admission, classification, persistence and
// notification for every moderated message.
package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"chatguard/internal/logger"
	"chatguard/internal/notifier"
	"chatguard/internal/orchestrator"
	"chatguard/internal/registration"
	"chatguard/internal/segmenter"
	"chatguard/internal/store"
	"chatguard/internal/webfetch"
	pkgerrors "chatguard/pkg/errors"
	"chatguard/pkg/logging"
	"chatguard/pkg/metrics"
	"chatguard/pkg/models"
	"chatguard/pkg/tracing"
)

type Admitter interface {
	Admit(ctx context.Context, scope, messageID string) (bool, error)
}

type ExemptionChecker interface {
	Exempt(ctx context.Context, msg models.Message) (bool, string)
}

type RegistrationChecker interface {
	Check(ctx context.Context, chatID string) (models.Registration, registration.Decision, error)
}

type Classifier interface {
	Run(ctx context.Context, text string, segments []string) orchestrator.Verdicts
}

type Aggregator interface {
	Aggregate(segments []string, v orchestrator.Verdicts) models.ModerationResult
}

type Notifier interface {
	Notify(ctx context.Context, reg models.Registration, msg models.Message, result models.ModerationResult) bool
}

type EventPublisher interface {
	Publish(ctx context.Context, event models.ModerationEvent) error
}

type PageFetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// Dependencies wires the controller. Exemption and Events are optional.
type Dependencies struct {
	Dedup        Admitter
	Exemption    ExemptionChecker
	Registration RegistrationChecker
	Classifier   Classifier
	Aggregator   Aggregator
	Store        store.Store
	Notifier     Notifier
	Events       EventPublisher
	Fetcher      PageFetcher
}

// URLCheck is the reply to a page check.
type URLCheck struct {
	URL    string                  `json:"url"`
	Title  string                  `json:"title,omitempty"`
	Result models.ModerationResult `json:"result"`
}

type Controller struct {
	deps   Dependencies
	logger logger.Logger
}

func New(deps Dependencies, log logger.Logger) *Controller {
	return &Controller{deps: deps, logger: log}
}

// ProcessChatMessage runs the full state machine for one chat message.
// Admission rejections are reported through the outcome status; only a
// failing dedup backend configured to fail surfaces as an error.
func (c *Controller) ProcessChatMessage(ctx context.Context, msg models.Message) (models.Outcome, error) {
	ctx, span := tracing.StartSpan(ctx, "pipeline.process")
	defer span.End()
	span.SetAttributes(
		attribute.String("message.id", msg.ID),
		attribute.String("chat.id", msg.Origin.ChatID),
	)

	ctx = logging.WithMessageID(ctx, msg.ID)
	ctx = logging.WithChatID(ctx, msg.Origin.ChatID)

	start := time.Now()
	r := newRun()

	outcome, err := c.process(ctx, r, msg)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		metrics.IncPipelineMessage("error")
		metrics.ObservePipelineDuration(time.Since(start), "error")
		return models.Outcome{States: r.states()}, err
	}

	outcome.States = r.states()
	span.SetAttributes(attribute.String("outcome.status", string(outcome.Status)))
	metrics.IncPipelineMessage(string(outcome.Status))
	metrics.ObservePipelineDuration(time.Since(start), string(outcome.Status))

	c.logger.InfowCtx(ctx, "Chat message processed",
		"status", outcome.Status,
		"persisted", outcome.Persisted,
		"notified", outcome.Notified,
		"final_state", r.current.String(),
	)
	return outcome, nil
}

func (c *Controller) process(ctx context.Context, r *run, msg models.Message) (models.Outcome, error) {
	admitted, err := c.deps.Dedup.Admit(ctx, msg.Origin.ChatID, msg.ID)
	if err != nil {
		return models.Outcome{}, fmt.Errorf("deduplication failed: %w", err)
	}
	if !admitted {
		r.advance(StateRejectedDuplicate)
		c.logger.DebugwCtx(ctx, "Duplicate message dropped")
		return models.Outcome{Status: models.OutcomeDuplicate}, nil
	}
	r.advance(StateDedupedAdmitted)

	if c.deps.Exemption != nil {
		if exempt, rule := c.deps.Exemption.Exempt(ctx, msg); exempt {
			r.advance(StateRejectedExempt)
			return models.Outcome{Status: models.OutcomeExempt, ExemptRule: rule}, nil
		}
	}

	// lookup errors are logged by the gate and already mapped to unregistered
	reg, decision, _ := c.deps.Registration.Check(ctx, msg.Origin.ChatID)
	if decision == registration.DecisionUnregistered {
		r.advance(StateRejectedUnregistered)
		return models.Outcome{Status: models.OutcomeUnregistered}, nil
	}
	r.advance(StateRegistrationChecked)

	result := c.moderate(ctx, r, msg.Text)

	persisted := c.persist(ctx, models.CheckRecord{
		Kind:      models.RecordKindChat,
		ChatID:    msg.Origin.ChatID,
		MessageID: msg.ID,
		Text:      msg.Text,
		Author:    msg.Origin.AuthorName,
		Result:    result,
		CreatedAt: msg.ReceivedAt,
	})
	r.advance(StatePersisted)

	outcome := models.Outcome{Status: models.OutcomeOK, Result: &result, Persisted: persisted}
	if decision == registration.DecisionNoTarget {
		outcome.Status = models.OutcomeNoTarget
		c.logger.WarnwCtx(ctx, "Chat has no notification target", "title", reg.Title)
	} else {
		outcome.Notified = c.deps.Notifier.Notify(ctx, reg, msg, result)
		if notifier.Decide(reg, result) && !outcome.Notified {
			metrics.IncSideEffectFailure("notify")
		}
	}
	r.advance(StateNotifyDecided)

	c.publish(ctx, models.RecordKindChat, msg, "", result)
	r.advance(StateDone)

	return outcome, nil
}

// CheckText classifies free text without admission or notification.
func (c *Controller) CheckText(ctx context.Context, text, email string) (models.ModerationResult, error) {
	if strings.TrimSpace(text) == "" {
		return models.ModerationResult{}, pkgerrors.ErrValidation.WithDetail("message", "text is required")
	}

	ctx, span := tracing.StartSpan(ctx, "pipeline.check_text")
	defer span.End()

	start := time.Now()
	r := &run{current: StateRegistrationChecked}
	result := c.moderate(ctx, r, text)

	msg := models.Message{Text: text, ReceivedAt: time.Now().UTC()}
	c.persist(ctx, models.CheckRecord{
		Kind:      models.RecordKindText,
		Text:      text,
		Email:     email,
		Result:    result,
		CreatedAt: msg.ReceivedAt,
	})
	c.publish(ctx, models.RecordKindText, msg, "", result)

	metrics.IncPipelineMessage("check_text")
	metrics.ObservePipelineDuration(time.Since(start), "check_text")
	return result, nil
}

// CheckURL downloads a page and classifies its visible text. A failed fetch
// is an ErrBadGateway and never classified.
func (c *Controller) CheckURL(ctx context.Context, rawURL, email string) (URLCheck, error) {
	rawURL = strings.TrimSpace(rawURL)
	if err := webfetch.ValidateURL(rawURL); err != nil {
		return URLCheck{}, pkgerrors.ErrValidation.WithDetail("message", err.Error())
	}

	ctx, span := tracing.StartSpan(ctx, "pipeline.check_url")
	defer span.End()
	span.SetAttributes(attribute.String("url", rawURL))

	start := time.Now()
	page, err := c.deps.Fetcher.Fetch(ctx, rawURL)
	if err != nil {
		span.RecordError(err)
		c.logger.WarnwCtx(ctx, "Page fetch failed", "url", rawURL, "error", err)
		return URLCheck{}, pkgerrors.ErrBadGateway.
			WithDetail("message", fmt.Sprintf("failed to fetch %s", rawURL)).
			WithCause(err)
	}

	title, text := webfetch.Extract(page, rawURL)

	r := &run{current: StateRegistrationChecked}
	result := c.moderate(ctx, r, text)

	msg := models.Message{Text: text, ReceivedAt: time.Now().UTC()}
	c.persist(ctx, models.CheckRecord{
		Kind:      models.RecordKindURL,
		Text:      text,
		SourceURL: rawURL,
		Email:     email,
		Result:    result,
		CreatedAt: msg.ReceivedAt,
	})
	c.publish(ctx, models.RecordKindURL, msg, rawURL, result)

	metrics.IncPipelineMessage("check_url")
	metrics.ObservePipelineDuration(time.Since(start), "check_url")
	return URLCheck{URL: rawURL, Title: title, Result: result}, nil
}

// Stats counts records per UTC day. An empty kind counts every kind.
func (c *Controller) Stats(ctx context.Context, kind models.RecordKind, from, to time.Time) ([]models.DailyCount, error) {
	switch kind {
	case "", models.RecordKindChat, models.RecordKindText, models.RecordKindURL:
	default:
		return nil, pkgerrors.ErrValidation.WithDetail("message", fmt.Sprintf("unknown kind %q", kind))
	}
	if !from.IsZero() && !to.IsZero() && to.Before(from) {
		return nil, pkgerrors.ErrValidation.WithDetail("message", "to must not be before from")
	}

	counts, err := c.deps.Store.DailyCounts(ctx, models.StatsFilter{Kind: kind, From: from, To: to})
	if err != nil {
		return nil, pkgerrors.ErrInternal.WithCause(err)
	}
	return counts, nil
}

func (c *Controller) moderate(ctx context.Context, r *run, text string) models.ModerationResult {
	segments := segmenter.Split(text)
	r.advance(StateSegmented)

	verdicts := c.deps.Classifier.Run(ctx, text, segments)
	r.advance(StateClassified)

	result := c.deps.Aggregator.Aggregate(segments, verdicts)
	r.advance(StateAggregated)

	for _, v := range result.Violations {
		metrics.IncViolation(string(v))
	}
	return result
}

func (c *Controller) persist(ctx context.Context, rec models.CheckRecord) bool {
	if err := c.deps.Store.Save(ctx, rec); err != nil {
		metrics.IncSideEffectFailure("persist")
		c.logger.ErrorwCtx(ctx, "Failed to persist check record",
			"kind", rec.Kind,
			"error", err,
		)
		return false
	}
	return true
}

func (c *Controller) publish(ctx context.Context, kind models.RecordKind, msg models.Message, sourceURL string, result models.ModerationResult) {
	if c.deps.Events == nil || result.IsSafe {
		return
	}

	event := models.ModerationEvent{Kind: kind, Message: msg, SourceURL: sourceURL, Result: result}
	if err := c.deps.Events.Publish(ctx, event); err != nil {
		metrics.IncSideEffectFailure("publish")
		c.logger.ErrorwCtx(ctx, "Failed to publish moderation event", "error", err)
	}
}
