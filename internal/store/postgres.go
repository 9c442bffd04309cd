package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"chatguard/pkg/metrics"
	"chatguard/pkg/models"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Save(ctx context.Context, rec models.CheckRecord) (err error) {
	start := time.Now()
	defer func() {
		metrics.ObserveDatabaseQuery("postgres", "save_check", time.Since(start), err)
	}()

	rec = prepare(rec)

	result, err := json.Marshal(rec.Result)
	if err != nil {
		return fmt.Errorf("failed to encode result: %w", err)
	}

	violations := make([]string, 0, len(rec.Result.Violations))
	for _, v := range rec.Result.Violations {
		violations = append(violations, string(v))
	}

	query := `
		INSERT INTO check_records (id, kind, chat_id, message_id, text, author, url, email, is_safe, violations, result, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	_, err = s.db.ExecContext(ctx, query,
		rec.ID, string(rec.Kind),
		nullable(rec.ChatID), nullable(rec.MessageID),
		rec.Text, nullable(rec.Author), nullable(rec.SourceURL), nullable(rec.Email),
		rec.Result.IsSafe, pq.Array(violations), result, rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert check record: %w", err)
	}
	return nil
}

func (s *PostgresStore) DailyCounts(ctx context.Context, filter models.StatsFilter) (counts []models.DailyCount, err error) {
	start := time.Now()
	defer func() {
		metrics.ObserveDatabaseQuery("postgres", "daily_counts", time.Since(start), err)
	}()

	var (
		conds []string
		args  []interface{}
	)
	if filter.Kind != "" {
		args = append(args, string(filter.Kind))
		conds = append(conds, fmt.Sprintf("kind = $%d", len(args)))
	}
	if !filter.From.IsZero() {
		args = append(args, filter.From.UTC())
		conds = append(conds, fmt.Sprintf("created_at >= $%d", len(args)))
	}
	if !filter.To.IsZero() {
		args = append(args, filter.To.UTC())
		conds = append(conds, fmt.Sprintf("created_at <= $%d", len(args)))
	}

	where := ""
	if len(conds) > 0 {
		where = "WHERE " + strings.Join(conds, " AND ")
	}

	query := fmt.Sprintf(`
		SELECT to_char(created_at AT TIME ZONE 'UTC', 'YYYY-MM-DD') AS day, COUNT(*)
		FROM check_records
		%s
		GROUP BY day
		ORDER BY day
	`, where)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query stats: %w", err)
	}
	defer rows.Close()

	counts = []models.DailyCount{}
	for rows.Next() {
		var c models.DailyCount
		if err := rows.Scan(&c.Date, &c.Count); err != nil {
			return nil, fmt.Errorf("failed to scan stats row: %w", err)
		}
		counts = append(counts, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}
	return counts, nil
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
