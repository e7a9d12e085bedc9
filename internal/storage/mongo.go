package storage

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoStore keeps each value as a single document in one collection:
// {_id: key, value: <document>, updatedAt: <date>}. The updatedAt
// field is a BSON date so TTL indexes can expire abandoned records.
type MongoStore struct {
	coll *mongo.Collection
}

func NewMongoStore(coll *mongo.Collection) *MongoStore {
	return &MongoStore{coll: coll}
}

type mongoRecord struct {
	ID        string    `bson:"_id"`
	Value     bson.Raw  `bson:"value"`
	UpdatedAt time.Time `bson:"updatedAt"`
}

func (s *MongoStore) Get(ctx context.Context, key string, out interface{}) error {
	var rec mongoRecord
	err := s.coll.FindOne(ctx, bson.M{"_id": key}).Decode(&rec)
	if err == mongo.ErrNoDocuments {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("storage: get %s: %w", key, err)
	}
	if err := bson.Unmarshal(rec.Value, out); err != nil {
		return fmt.Errorf("storage: decode %s: %w", key, err)
	}
	return nil
}

func (s *MongoStore) Put(ctx context.Context, key string, value interface{}) error {
	doc := bson.M{
		"_id":       key,
		"value":     value,
		"updatedAt": time.Now(),
	}
	opts := options.Replace().SetUpsert(true)
	if _, err := s.coll.ReplaceOne(ctx, bson.M{"_id": key}, doc, opts); err != nil {
		return fmt.Errorf("storage: put %s: %w", key, err)
	}
	return nil
}

func (s *MongoStore) Delete(ctx context.Context, key string) error {
	if _, err := s.coll.DeleteOne(ctx, bson.M{"_id": key}); err != nil {
		return fmt.Errorf("storage: delete %s: %w", key, err)
	}
	return nil
}
