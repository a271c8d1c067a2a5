/*
Package mongostore lưu lịch sử execution, dead-letter và order trên MongoDB.
*/
package mongostore

import (
	"context"
	"fmt"
	"time"

	"agent_erpsync/utility/logger"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// Tên các collection
const (
	CollectionExecutions  = "job_executions"
	CollectionDeadLetters = "retry_dead_letters"
	CollectionOrders      = "orders"
)

// Connect kết nối MongoDB và ping primary
func Connect(ctx context.Context, uri, database string) (*mongo.Client, *mongo.Database, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	opts := options.Client().
		ApplyURI(uri).
		SetMaxPoolSize(20).
		SetMaxConnIdleTime(5 * time.Minute).
		SetRetryWrites(true).
		SetRetryReads(true)

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, nil, fmt.Errorf("kết nối MongoDB: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, nil, fmt.Errorf("ping MongoDB: %w", err)
	}
	logger.GetAppLogger().WithField("database", database).Info("✅ Đã kết nối MongoDB")
	return client, client.Database(database), nil
}

// EnsureIndexes tạo các index cần thiết cho mọi collection
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	for name, models := range map[string][]mongo.IndexModel{
		CollectionExecutions:  executionIndexes(),
		CollectionDeadLetters: deadLetterIndexes(),
		CollectionOrders:      orderIndexes(),
	} {
		if _, err := db.Collection(name).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("tạo index cho %s: %w", name, err)
		}
	}
	return nil
}
