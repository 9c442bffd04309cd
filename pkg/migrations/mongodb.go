package migrations

import (
	"context"
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// EnsureMongoIndexes creates the indexes the stats aggregation and the
// per-chat history lookups rely on. Collections appear on first insert.
func EnsureMongoIndexes(ctx context.Context, db *mongo.Database) error {
	recordIndexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "date", Value: -1}},
			Options: options.Index().SetName("idx_date"),
		},
		{
			Keys:    bson.D{{Key: "kind", Value: 1}, {Key: "date", Value: -1}},
			Options: options.Index().SetName("idx_kind_date"),
		},
		{
			Keys:    bson.D{{Key: "chat_id", Value: 1}, {Key: "message_id", Value: 1}},
			Options: options.Index().SetName("idx_chat_message").SetSparse(true),
		},
	}

	for _, name := range []string{"checks", "url_checks"} {
		if err := createIndexes(ctx, db.Collection(name), recordIndexes); err != nil {
			return fmt.Errorf("collection %s: %w", name, err)
		}
	}

	groupIndexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "info.admin_email", Value: 1}},
			Options: options.Index().SetName("idx_admin_email").SetSparse(true),
		},
	}
	if err := createIndexes(ctx, db.Collection("groups"), groupIndexes); err != nil {
		return fmt.Errorf("collection groups: %w", err)
	}

	return nil
}

func createIndexes(ctx context.Context, collection *mongo.Collection, indexes []mongo.IndexModel) error {
	if _, err := collection.Indexes().CreateMany(ctx, indexes); err != nil {
		if !strings.Contains(err.Error(), "already exists") {
			return fmt.Errorf("failed to create indexes: %w", err)
		}
	}
	return nil
}
