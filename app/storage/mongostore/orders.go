package mongostore

import (
	"context"
	"errors"

	"agent_erpsync/app/jobs"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// OrderStore implement jobs.OrderStore trên collection orders của storefront
type OrderStore struct {
	coll *mongo.Collection
}

var _ jobs.OrderStore = (*OrderStore)(nil)

func NewOrderStore(db *mongo.Database) *OrderStore {
	return &OrderStore{coll: db.Collection(CollectionOrders)}
}

func orderIndexes() []mongo.IndexModel {
	return []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "status", Value: 1}, {Key: "created_at", Value: 1}},
			Options: options.Index().SetName("status_1_created_at_1"),
		},
	}
}

// pendingPushFilter: status thuộc statuses, tracking_number không có tiền tố ERP (kể cả không có field)
// và _id không nằm trong exclude
func pendingPushFilter(statuses []jobs.OrderStatus, exclude []string) bson.M {
	filter := bson.M{
		"status": bson.M{"$in": statuses},
		"tracking_number": bson.M{
			"$not": primitive.Regex{Pattern: "^" + jobs.ERPMarkerPrefix},
		},
	}
	if len(exclude) > 0 {
		filter["_id"] = bson.M{"$nin": exclude}
	}
	return filter
}

func (s *OrderStore) GetByID(ctx context.Context, id string) (*jobs.Order, error) {
	var o jobs.Order
	err := s.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&o)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, jobs.ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func (s *OrderStore) ListPendingPush(ctx context.Context, statuses []jobs.OrderStatus, exclude []string, limit int) ([]jobs.Order, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	cur, err := s.coll.Find(ctx, pendingPushFilter(statuses, exclude), opts)
	if err != nil {
		return nil, err
	}
	out := []jobs.Order{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *OrderStore) MarkPushed(ctx context.Context, id, trackingNumber string) error {
	res, err := s.coll.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{"tracking_number": trackingNumber}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return jobs.ErrOrderNotFound
	}
	return nil
}
