package registration

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"

	"chatguard/internal/constants"
	"chatguard/internal/logger"
	"chatguard/internal/testinfra"
	"chatguard/pkg/models"
)

type stubRepository struct {
	reg models.Registration
	err error
}

func (s stubRepository) Lookup(_ context.Context, chatID string) (models.Registration, error) {
	reg := s.reg
	reg.ChatID = chatID
	return reg, s.err
}

func TestGate_Check(t *testing.T) {
	tests := []struct {
		name    string
		repo    stubRepository
		want    Decision
		wantErr bool
	}{
		{
			name: "unknown chat",
			repo: stubRepository{},
			want: DecisionUnregistered,
		},
		{
			name: "registered without email",
			repo: stubRepository{reg: models.Registration{Registered: true, Title: "Отзывы"}},
			want: DecisionNoTarget,
		},
		{
			name: "blank email",
			repo: stubRepository{reg: models.Registration{Registered: true, NotificationTarget: "  "}},
			want: DecisionNoTarget,
		},
		{
			name: "registered with email",
			repo: stubRepository{reg: models.Registration{Registered: true, NotificationTarget: "admin@example.com"}},
			want: DecisionAllowed,
		},
		{
			name:    "lookup error",
			repo:    stubRepository{reg: models.Registration{Registered: true, NotificationTarget: "admin@example.com"}, err: errors.New("timeout")},
			want:    DecisionUnregistered,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg, decision, err := NewGate(tt.repo, logger.NopLogger()).Check(context.Background(), "-1001")
			assert.Equal(t, tt.want, decision)
			assert.Equal(t, "-1001", reg.ChatID)
			if tt.wantErr {
				assert.Error(t, err)
				assert.False(t, reg.Registered)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestMongoRepository_Integration(t *testing.T) {
	db := testinfra.Mongo(t)
	ctx := context.Background()

	_, err := db.Collection(constants.CollectionGroups).InsertMany(ctx, []interface{}{
		bson.M{"_id": "-1001", "info": bson.M{"title": "Отзывы", "admin_email": "admin@example.com"}},
		bson.M{"_id": "-1002", "info": bson.M{"title": "Без почты"}},
	})
	require.NoError(t, err)

	repo := NewMongoRepository(db)

	reg, err := repo.Lookup(ctx, "-1001")
	require.NoError(t, err)
	assert.Equal(t, models.Registration{ChatID: "-1001", Title: "Отзывы", Registered: true, NotificationTarget: "admin@example.com"}, reg)

	reg, err = repo.Lookup(ctx, "-1002")
	require.NoError(t, err)
	assert.Equal(t, DecisionNoTarget, Decide(reg))

	reg, err = repo.Lookup(ctx, "-9999")
	require.NoError(t, err)
	assert.False(t, reg.Registered)
}

func TestPostgresRepository_Integration(t *testing.T) {
	db := testinfra.Postgres(t)
	ctx := context.Background()

	_, err := db.ExecContext(ctx, `
		INSERT INTO chat_registrations (chat_id, title, admin_email, registered) VALUES
			('-1001', 'Отзывы', 'admin@example.com', true),
			('-1003', 'Отключено', 'admin@example.com', false)
	`)
	require.NoError(t, err)

	repo := NewPostgresRepository(db)

	reg, err := repo.Lookup(ctx, "-1001")
	require.NoError(t, err)
	assert.Equal(t, DecisionAllowed, Decide(reg))
	assert.Equal(t, "Отзывы", reg.Title)

	reg, err = repo.Lookup(ctx, "-1003")
	require.NoError(t, err)
	assert.Equal(t, DecisionUnregistered, Decide(reg))

	reg, err = repo.Lookup(ctx, "-9999")
	require.NoError(t, err)
	assert.Equal(t, models.Registration{ChatID: "-9999"}, reg)
}
