package registration

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"chatguard/internal/constants"
	"chatguard/pkg/metrics"
	"chatguard/pkg/models"
)

// Repository looks up a chat registration. An unknown chat is not an error;
// it comes back with Registered false.
type Repository interface {
	Lookup(ctx context.Context, chatID string) (models.Registration, error)
}

type groupDocument struct {
	ID   string    `bson:"_id"`
	Info groupInfo `bson:"info"`
}

type groupInfo struct {
	Title      string `bson:"title"`
	AdminEmail string `bson:"admin_email"`
}

// MongoRepository reads the groups collection. A group document existing
// means the chat is registered.
type MongoRepository struct {
	collection *mongo.Collection
}

func NewMongoRepository(db *mongo.Database) *MongoRepository {
	return &MongoRepository{collection: db.Collection(constants.CollectionGroups)}
}

func (r *MongoRepository) Lookup(ctx context.Context, chatID string) (reg models.Registration, err error) {
	start := time.Now()
	defer func() {
		metrics.ObserveDatabaseQuery("mongodb", "lookup_registration", time.Since(start), err)
	}()

	var doc groupDocument
	err = r.collection.FindOne(ctx, bson.M{"_id": chatID}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.Registration{ChatID: chatID}, nil
	}
	if err != nil {
		return models.Registration{ChatID: chatID}, fmt.Errorf("mongodb registration lookup failed: %w", err)
	}

	return models.Registration{
		ChatID:             chatID,
		Title:              doc.Info.Title,
		Registered:         true,
		NotificationTarget: doc.Info.AdminEmail,
	}, nil
}

type PostgresRepository struct {
	db *sql.DB
}

func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Lookup(ctx context.Context, chatID string) (reg models.Registration, err error) {
	start := time.Now()
	defer func() {
		metrics.ObserveDatabaseQuery("postgres", "lookup_registration", time.Since(start), err)
	}()

	query := `
		SELECT title, admin_email, registered
		FROM chat_registrations
		WHERE chat_id = $1
	`

	reg.ChatID = chatID
	err = r.db.QueryRowContext(ctx, query, chatID).Scan(&reg.Title, &reg.NotificationTarget, &reg.Registered)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Registration{ChatID: chatID}, nil
	}
	if err != nil {
		return models.Registration{ChatID: chatID}, fmt.Errorf("failed to query registration: %w", err)
	}
	return reg, nil
}
