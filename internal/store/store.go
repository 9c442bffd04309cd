// Package store persists check records and answers per-day statistics.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/mongo"

	"chatguard/internal/config"
	"chatguard/internal/constants"
	"chatguard/pkg/models"
)

type Store interface {
	Save(ctx context.Context, rec models.CheckRecord) error
	DailyCounts(ctx context.Context, filter models.StatsFilter) ([]models.DailyCount, error)
}

// New picks the backend named by storage.type.
func New(cfg config.StorageConfig, mongoDB *mongo.Database, pg *sql.DB) (Store, error) {
	switch cfg.Type {
	case constants.StorageMongoDB:
		if mongoDB == nil {
			return nil, fmt.Errorf("mongodb storage requires a mongodb connection")
		}
		return NewMongoStore(mongoDB), nil
	case constants.StoragePostgres:
		if pg == nil {
			return nil, fmt.Errorf("postgres storage requires a postgres connection")
		}
		return NewPostgresStore(pg), nil
	default:
		return nil, fmt.Errorf("unknown storage type %q", cfg.Type)
	}
}

// prepare fills the id and creation time the backends rely on.
func prepare(rec models.CheckRecord) models.CheckRecord {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	rec.CreatedAt = rec.CreatedAt.UTC()
	if rec.Result.Violations == nil {
		rec.Result.Violations = []models.ViolationKind{}
	}
	return rec
}

// mergeCounts sums counts per day and sorts by date.
func mergeCounts(parts ...[]models.DailyCount) []models.DailyCount {
	byDay := make(map[string]int64)
	for _, part := range parts {
		for _, c := range part {
			byDay[c.Date] += c.Count
		}
	}

	out := make([]models.DailyCount, 0, len(byDay))
	for day, n := range byDay {
		out = append(out, models.DailyCount{Date: day, Count: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out
}
