package mongostore

import (
	"context"
	"errors"

	"agent_erpsync/app/scheduler"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ExecutionStore implement scheduler.ExecutionStore trên collection job_executions
type ExecutionStore struct {
	coll *mongo.Collection
}

var _ scheduler.ExecutionStore = (*ExecutionStore)(nil)

func NewExecutionStore(db *mongo.Database) *ExecutionStore {
	return &ExecutionStore{coll: db.Collection(CollectionExecutions)}
}

func executionIndexes() []mongo.IndexModel {
	return []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "job_name", Value: 1}, {Key: "enqueued_at", Value: -1}},
			Options: options.Index().SetName("job_name_1_enqueued_at_-1"),
		},
		{
			// Giữ lịch sử 30 ngày
			Keys:    bson.D{{Key: "enqueued_at", Value: 1}},
			Options: options.Index().SetName("enqueued_at_ttl").SetExpireAfterSeconds(30 * 24 * 3600),
		},
	}
}

func (s *ExecutionStore) Save(ctx context.Context, rec scheduler.ExecutionRecord) error {
	_, err := s.coll.ReplaceOne(ctx, bson.M{"_id": rec.ID}, rec, options.Replace().SetUpsert(true))
	return err
}

func (s *ExecutionStore) Get(ctx context.Context, id string) (*scheduler.ExecutionRecord, error) {
	var rec scheduler.ExecutionRecord
	err := s.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&rec)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, scheduler.ErrExecutionNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *ExecutionStore) Last(ctx context.Context, jobName string) (*scheduler.ExecutionRecord, error) {
	var rec scheduler.ExecutionRecord
	opts := options.FindOne().SetSort(bson.D{{Key: "enqueued_at", Value: -1}})
	err := s.coll.FindOne(ctx, bson.M{"job_name": jobName}, opts).Decode(&rec)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}
