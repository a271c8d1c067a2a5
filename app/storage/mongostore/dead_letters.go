package mongostore

import (
	"context"

	"agent_erpsync/app/retry"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// DeadLetterStore implement retry.DeadLetterStore trên collection retry_dead_letters
type DeadLetterStore struct {
	coll *mongo.Collection
}

var _ retry.DeadLetterStore = (*DeadLetterStore)(nil)

func NewDeadLetterStore(db *mongo.Database) *DeadLetterStore {
	return &DeadLetterStore{coll: db.Collection(CollectionDeadLetters)}
}

func deadLetterIndexes() []mongo.IndexModel {
	return []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "entity_type", Value: 1}, {Key: "dead_lettered_at", Value: -1}},
			Options: options.Index().SetName("entity_type_1_dead_lettered_at_-1"),
		},
	}
}

func (s *DeadLetterStore) Add(ctx context.Context, e retry.DeadLetterEntry) error {
	_, err := s.coll.InsertOne(ctx, e)
	return err
}

func (s *DeadLetterStore) List(ctx context.Context, entityType string, limit int) ([]retry.DeadLetterEntry, error) {
	filter := bson.M{}
	if entityType != "" {
		filter["entity_type"] = entityType
	}
	opts := options.Find().SetSort(bson.D{{Key: "dead_lettered_at", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	cur, err := s.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	out := []retry.DeadLetterEntry{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *DeadLetterStore) IDs(ctx context.Context, entityType string) ([]string, error) {
	vals, err := s.coll.Distinct(ctx, "entity_id", bson.M{"entity_type": entityType})
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(vals))
	for _, v := range vals {
		if id, ok := v.(string); ok {
			out = append(out, id)
		}
	}
	return out, nil
}
