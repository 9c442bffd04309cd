// Package registration decides whether a chat may be moderated and where its
// alerts go.
package registration

import (
	"context"
	"strings"

	"chatguard/internal/logger"
	"chatguard/pkg/models"
)

type Decision string

const (
	// DecisionUnregistered stops the pipeline before classification.
	DecisionUnregistered Decision = "unregistered"
	// DecisionNoTarget classifies and persists but never notifies.
	DecisionNoTarget Decision = "no-target"
	DecisionAllowed  Decision = "allowed"
)

type Gate struct {
	repo   Repository
	logger logger.Logger
}

func NewGate(repo Repository, log logger.Logger) *Gate {
	return &Gate{repo: repo, logger: log}
}

// Check never lets a failed lookup through: the error is logged, returned and
// the decision is DecisionUnregistered.
func (g *Gate) Check(ctx context.Context, chatID string) (models.Registration, Decision, error) {
	reg, err := g.repo.Lookup(ctx, chatID)
	if err != nil {
		g.logger.ErrorwCtx(ctx, "Registration lookup failed, treating chat as unregistered",
			"chat_id", chatID,
			"error", err,
		)
		return models.Registration{ChatID: chatID}, DecisionUnregistered, err
	}

	return reg, Decide(reg), nil
}

func Decide(reg models.Registration) Decision {
	switch {
	case !reg.Registered:
		return DecisionUnregistered
	case strings.TrimSpace(reg.NotificationTarget) == "":
		return DecisionNoTarget
	default:
		return DecisionAllowed
	}
}
