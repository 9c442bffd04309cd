package store

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"chatguard/internal/constants"
	"chatguard/pkg/metrics"
	"chatguard/pkg/models"
)

// MongoStore keeps chat and text checks in "checks" and URL checks in
// "url_checks".
type MongoStore struct {
	checks    *mongo.Collection
	urlChecks *mongo.Collection
}

func NewMongoStore(db *mongo.Database) *MongoStore {
	return &MongoStore{
		checks:    db.Collection(constants.CollectionChecks),
		urlChecks: db.Collection(constants.CollectionURLChecks),
	}
}

func (s *MongoStore) collectionFor(kind models.RecordKind) *mongo.Collection {
	if kind == models.RecordKindURL {
		return s.urlChecks
	}
	return s.checks
}

func (s *MongoStore) Save(ctx context.Context, rec models.CheckRecord) (err error) {
	start := time.Now()
	defer func() {
		metrics.ObserveDatabaseQuery("mongodb", "save_check", time.Since(start), err)
	}()

	rec = prepare(rec)
	if _, err = s.collectionFor(rec.Kind).InsertOne(ctx, rec); err != nil {
		return fmt.Errorf("failed to insert check record: %w", err)
	}
	return nil
}

func (s *MongoStore) DailyCounts(ctx context.Context, filter models.StatsFilter) (counts []models.DailyCount, err error) {
	start := time.Now()
	defer func() {
		metrics.ObserveDatabaseQuery("mongodb", "daily_counts", time.Since(start), err)
	}()

	switch filter.Kind {
	case models.RecordKindURL:
		return s.aggregate(ctx, s.urlChecks, filter)
	case models.RecordKindChat, models.RecordKindText:
		return s.aggregate(ctx, s.checks, filter)
	}

	checks, err := s.aggregate(ctx, s.checks, filter)
	if err != nil {
		return nil, err
	}
	urls, err := s.aggregate(ctx, s.urlChecks, filter)
	if err != nil {
		return nil, err
	}
	return mergeCounts(checks, urls), nil
}

func (s *MongoStore) aggregate(ctx context.Context, collection *mongo.Collection, filter models.StatsFilter) ([]models.DailyCount, error) {
	match := bson.M{}
	if filter.Kind != "" {
		match["kind"] = filter.Kind
	}
	dateRange := bson.M{}
	if !filter.From.IsZero() {
		dateRange["$gte"] = filter.From.UTC()
	}
	if !filter.To.IsZero() {
		dateRange["$lte"] = filter.To.UTC()
	}
	if len(dateRange) > 0 {
		match["date"] = dateRange
	}

	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: match}},
		{{Key: "$group", Value: bson.M{
			"_id":   bson.M{"$dateToString": bson.M{"format": "%Y-%m-%d", "date": "$date"}},
			"count": bson.M{"$sum": 1},
		}}},
		{{Key: "$sort", Value: bson.M{"_id": 1}}},
	}

	cursor, err := collection.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("mongodb stats aggregation failed: %w", err)
	}
	defer cursor.Close(ctx)

	counts := []models.DailyCount{}
	if err := cursor.All(ctx, &counts); err != nil {
		return nil, fmt.Errorf("failed to decode stats: %w", err)
	}
	return counts, nil
}
