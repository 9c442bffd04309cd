// Package exemption lets operators skip moderation for messages matching CEL
// rules, for example posts from chat admins or announcement bots.
package exemption

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	celgo "github.com/google/cel-go/cel"

	"chatguard/internal/config"
	"chatguard/internal/constants"
	"chatguard/internal/logger"
	"chatguard/pkg/cel"
	"chatguard/pkg/metrics"
	"chatguard/pkg/models"
	"chatguard/pkg/tracing"
)

type compiledRule struct {
	Rule
	program celgo.Program
}

type Service struct {
	repo      Repository
	rules     []compiledRule
	rulesMu   sync.RWMutex
	cfg       config.ExemptionConfig
	evaluator *cel.Evaluator
	logger    logger.Logger
}

func NewService(repo Repository, cfg config.ExemptionConfig, log logger.Logger) (*Service, error) {
	evaluator, err := cel.NewEvaluator()
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL evaluator: %w", err)
	}

	return &Service{
		repo:      repo,
		cfg:       cfg,
		evaluator: evaluator,
		logger:    log,
	}, nil
}

// Exempt reports whether any active rule matches msg, and the first matching
// rule name.
func (s *Service) Exempt(ctx context.Context, msg models.Message) (bool, string) {
	ctx, span := tracing.StartSpan(ctx, "exemption.exempt")
	defer span.End()

	for _, rule := range s.getActiveRules() {
		if ctx.Err() != nil {
			return false, ""
		}

		matched, err := s.evaluator.EvaluateRule(ctx, rule.program, msg)
		if err != nil {
			if s.handleEvaluationError(ctx, rule.Rule, err) {
				return true, rule.Name
			}
			continue
		}

		if matched {
			metrics.IncExemptionRuleEvaluation(rule.Name, "matched")
			s.logger.DebugwCtx(ctx, "Message exempted by rule",
				"rule_id", rule.ID,
				"rule_name", rule.Name,
			)
			return true, rule.Name
		}
		metrics.IncExemptionRuleEvaluation(rule.Name, "not_matched")
	}

	return false, ""
}

func (s *Service) getActiveRules() []compiledRule {
	s.rulesMu.RLock()
	defer s.rulesMu.RUnlock()
	return s.rules
}

// handleEvaluationError reports whether the message should be treated as
// exempt after a rule failed to evaluate.
func (s *Service) handleEvaluationError(ctx context.Context, rule Rule, err error) bool {
	metrics.IncExemptionRuleEvaluation(rule.Name, "error")

	if s.cfg.OnError == constants.FallbackDeny {
		metrics.FallbackUsageTotal.WithLabelValues("exemption", "deny_on_error", "evaluation_error").Inc()
		s.logger.WarnwCtx(ctx, "Evaluation error, exempting message (fallback: deny)",
			"rule_id", rule.ID,
			"rule_name", rule.Name,
			"error", err,
		)
		return true
	}

	metrics.FallbackUsageTotal.WithLabelValues("exemption", "allow_on_error", "evaluation_error").Inc()
	s.logger.WarnwCtx(ctx, "Evaluation error, moderating message (fallback: allow)",
		"rule_id", rule.ID,
		"rule_name", rule.Name,
		"error", err,
	)
	return false
}

func (s *Service) ReloadRules(ctx context.Context, skipJitter ...bool) error {
	shouldSkipJitter := len(skipJitter) > 0 && skipJitter[0]

	if err := s.applyJitter(ctx, shouldSkipJitter); err != nil {
		return err
	}

	rules, err := s.repo.GetActiveRules(ctx)
	if err != nil {
		return err
	}

	compiled, err := s.compile(rules)
	if err != nil {
		return err
	}

	s.updateRules(ctx, compiled)
	return nil
}

// compile rejects the whole set when any rule is not a valid bool
// expression, leaving the previous set in place.
func (s *Service) compile(rules []Rule) ([]compiledRule, error) {
	compiled := make([]compiledRule, 0, len(rules))
	for _, rule := range rules {
		program, err := s.evaluator.CompileRule(rule.Expression)
		if err != nil {
			return nil, fmt.Errorf("exemption rule %s: %w", rule.Name, err)
		}
		compiled = append(compiled, compiledRule{Rule: rule, program: program})
	}
	return compiled, nil
}

func (s *Service) applyJitter(ctx context.Context, skipJitter bool) error {
	if skipJitter || s.cfg.Reload.JitterMaxMilliseconds <= 0 {
		return nil
	}

	jitter := time.Duration(rand.Intn(s.cfg.Reload.JitterMaxMilliseconds)) * time.Millisecond
	s.logger.DebugwCtx(ctx, "Reload scheduled with jitter",
		"jitter_ms", jitter.Milliseconds(),
	)

	select {
	case <-time.After(jitter):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Service) updateRules(ctx context.Context, rules []compiledRule) {
	s.rulesMu.Lock()
	s.rules = rules
	s.rulesMu.Unlock()

	metrics.SetExemptionActiveRules(len(rules))
	s.logger.InfowCtx(ctx, "Successfully reloaded exemption rules",
		"rules_count", len(rules),
	)
}

// StartReloader re-reads the rules every reload interval until ctx ends. The
// initial load is the caller's job. A non-positive interval disables reloads.
func (s *Service) StartReloader(ctx context.Context) error {
	interval := time.Duration(s.cfg.Reload.IntervalSeconds) * time.Second
	if interval <= 0 {
		return nil
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := s.ReloadRules(ctx); err != nil {
				s.logger.ErrorwCtx(ctx, "Failed to reload exemption rules",
					"error", err,
				)
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
