package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatguard/internal/config"
	"chatguard/internal/constants"
	"chatguard/internal/testinfra"
	"chatguard/pkg/models"
)

func day(s string, hour int) time.Time {
	d, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return d.Add(time.Duration(hour) * time.Hour)
}

func seedRecords() []models.CheckRecord {
	unsafe := models.ModerationResult{Violations: []models.ViolationKind{models.ViolationToxicity}, ViolatingSegments: []string{"Ты идиот."}}
	safe := models.ModerationResult{IsSafe: true}
	return []models.CheckRecord{
		{Kind: models.RecordKindChat, ChatID: "-1001", MessageID: "1", Text: "Ты идиот.", Author: "Ivan", Result: unsafe, CreatedAt: day("2024-03-01", 9)},
		{Kind: models.RecordKindChat, ChatID: "-1001", MessageID: "2", Text: "Привет", Author: "Ivan", Result: safe, CreatedAt: day("2024-03-01", 23)},
		{Kind: models.RecordKindText, Text: "Привет", Email: "user@example.com", Result: safe, CreatedAt: day("2024-03-02", 1)},
		{Kind: models.RecordKindURL, Text: "Страница", SourceURL: "https://example.com", Result: safe, CreatedAt: day("2024-03-02", 5)},
		{Kind: models.RecordKindURL, Text: "Страница", SourceURL: "https://example.com/2", Result: safe, CreatedAt: day("2024-03-04", 5)},
	}
}

func exerciseStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	for _, rec := range seedRecords() {
		require.NoError(t, s.Save(ctx, rec))
	}

	tests := []struct {
		name   string
		filter models.StatsFilter
		want   []models.DailyCount
	}{
		{
			name:   "all kinds",
			filter: models.StatsFilter{},
			want: []models.DailyCount{
				{Date: "2024-03-01", Count: 2},
				{Date: "2024-03-02", Count: 2},
				{Date: "2024-03-04", Count: 1},
			},
		},
		{
			name:   "url only",
			filter: models.StatsFilter{Kind: models.RecordKindURL},
			want: []models.DailyCount{
				{Date: "2024-03-02", Count: 1},
				{Date: "2024-03-04", Count: 1},
			},
		},
		{
			name:   "chat only",
			filter: models.StatsFilter{Kind: models.RecordKindChat},
			want:   []models.DailyCount{{Date: "2024-03-01", Count: 2}},
		},
		{
			name:   "date range",
			filter: models.StatsFilter{From: day("2024-03-02", 0), To: day("2024-03-03", 0)},
			want:   []models.DailyCount{{Date: "2024-03-02", Count: 2}},
		},
		{
			name:   "empty range",
			filter: models.StatsFilter{From: day("2025-01-01", 0)},
			want:   []models.DailyCount{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.DailyCounts(ctx, tt.filter)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMongoStore_Integration(t *testing.T) {
	db := testinfra.Mongo(t)
	s := NewMongoStore(db)
	exerciseStore(t, s)

	n, err := db.Collection(constants.CollectionURLChecks).CountDocuments(context.Background(), map[string]interface{}{})
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)
}

func TestPostgresStore_Integration(t *testing.T) {
	db := testinfra.Postgres(t)
	exerciseStore(t, NewPostgresStore(db))

	var violations string
	err := db.QueryRowContext(context.Background(),
		`SELECT array_to_string(violations, ',') FROM check_records WHERE message_id = '1'`,
	).Scan(&violations)
	require.NoError(t, err)
	assert.Equal(t, "toxicity", violations)
}

func TestMergeCounts(t *testing.T) {
	got := mergeCounts(
		[]models.DailyCount{{Date: "2024-03-02", Count: 1}, {Date: "2024-03-01", Count: 2}},
		[]models.DailyCount{{Date: "2024-03-02", Count: 3}},
	)
	assert.Equal(t, []models.DailyCount{{Date: "2024-03-01", Count: 2}, {Date: "2024-03-02", Count: 4}}, got)
	assert.Empty(t, mergeCounts())
}

func TestPrepare_FillsDefaults(t *testing.T) {
	rec := prepare(models.CheckRecord{Kind: models.RecordKindText})
	assert.NotEmpty(t, rec.ID)
	assert.False(t, rec.CreatedAt.IsZero())
	assert.NotNil(t, rec.Result.Violations)
}

func TestNew_RequiresConnection(t *testing.T) {
	_, err := New(config.StorageConfig{Type: constants.StorageMongoDB}, nil, nil)
	assert.Error(t, err)
	_, err = New(config.StorageConfig{Type: constants.StoragePostgres}, nil, nil)
	assert.Error(t, err)
	_, err = New(config.StorageConfig{Type: "sqlite"}, nil, nil)
	assert.Error(t, err)
}
