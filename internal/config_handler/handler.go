package config_handler

import (
	"context"
	"encoding/json"
	"fmt"

	"chatguard/internal/logger"
	"chatguard/pkg/models"
	"chatguard/pkg/retry"
)

type RuleReloader interface {
	ReloadRules(ctx context.Context, skipJitter ...bool) error
}

// Handler reloads one rule set when a config update event addresses it.
type Handler struct {
	target   string
	reloader RuleReloader
	logger   logger.Logger
}

func NewHandler(target string, reloader RuleReloader, log logger.Logger) *Handler {
	return &Handler{
		target:   target,
		reloader: reloader,
		logger:   log,
	}
}

// HandleConfigUpdateEvent ignores envelopes of other types or targets.
// Reloads keep their jitter so replicas do not hit the rule table at once.
func (h *Handler) HandleConfigUpdateEvent(ctx context.Context, envelope models.MessageEnvelope) error {
	if envelope.Type != models.EnvelopeTypeConfigUpdate {
		return nil
	}

	var event models.ConfigUpdateEvent
	if err := json.Unmarshal(envelope.Payload, &event); err != nil {
		h.logger.ErrorwCtx(ctx, "Failed to unmarshal config event", "error", err, "id", envelope.ID)
		return retry.NewFatalError(fmt.Errorf("decoding config event %s: %w", envelope.ID, err))
	}

	if event.Target == "" {
		h.logger.WarnwCtx(ctx, "Config event missing target", "id", envelope.ID)
		return nil
	}
	if event.Target != h.target {
		return nil
	}

	h.logger.InfowCtx(ctx, "Received config update event",
		"target", event.Target,
		"action", event.Action,
		"rule_name", event.RuleName,
	)

	if err := h.reloader.ReloadRules(ctx); err != nil {
		h.logger.ErrorwCtx(ctx, "Failed to reload rules after config update", "error", err)
		return err
	}
	h.logger.InfowCtx(ctx, "Rules reloaded after config update", "action", event.Action)
	return nil
}
