package exemption

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"chatguard/internal/config"
	"chatguard/internal/constants"
	"chatguard/pkg/metrics"
)

type Rule struct {
	ID         string
	Name       string
	Expression string // CEL expression that must evaluate to bool
	Priority   int
	Enabled    bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

type Repository interface {
	GetActiveRules(ctx context.Context) ([]Rule, error)
}

// ConfigRepository serves the rules listed under exemption.rules. Rules keep
// their configured order.
type ConfigRepository struct {
	rules []Rule
}

func NewConfigRepository(cfg []config.ExemptionRuleConfig) *ConfigRepository {
	rules := make([]Rule, 0, len(cfg))
	for i, r := range cfg {
		name := r.Name
		if name == "" {
			name = fmt.Sprintf("rule-%d", i)
		}
		rules = append(rules, Rule{
			ID:         name,
			Name:       name,
			Expression: r.Expression,
			Priority:   len(cfg) - i,
			Enabled:    true,
		})
	}
	return &ConfigRepository{rules: rules}
}

func (r *ConfigRepository) GetActiveRules(context.Context) ([]Rule, error) {
	rules := make([]Rule, len(r.rules))
	copy(rules, r.rules)
	return rules, nil
}

type PostgresRepository struct {
	db *sql.DB
}

func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) GetActiveRules(ctx context.Context) (rules []Rule, err error) {
	start := time.Now()
	defer func() {
		metrics.ObserveDatabaseQuery("postgres", "get_exemption_rules", time.Since(start), err)
	}()

	query := `
		SELECT id, name, expression, priority, enabled, created_at, updated_at
		FROM exemption_rules
		WHERE enabled = true
		ORDER BY priority DESC, created_at ASC
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query rules: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var rule Rule
		if err := rows.Scan(
			&rule.ID,
			&rule.Name,
			&rule.Expression,
			&rule.Priority,
			&rule.Enabled,
			&rule.CreatedAt,
			&rule.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan rule: %w", err)
		}
		rules = append(rules, rule)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return rules, nil
}

// NewRepository picks the rule source named by cfg.Source. db may be nil for
// the config source.
func NewRepository(cfg config.ExemptionConfig, db *sql.DB) (Repository, error) {
	switch cfg.Source {
	case constants.ExemptionSourcePostgres:
		if db == nil {
			return nil, fmt.Errorf("postgres exemption source requires a postgres connection")
		}
		return NewPostgresRepository(db), nil
	case constants.ExemptionSourceConfig, "":
		return NewConfigRepository(cfg.Rules), nil
	default:
		return nil, fmt.Errorf("unknown exemption source %q", cfg.Source)
	}
}
