package db

import (
	"context"
	"fmt"
	"log"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type MongoDB struct {
	Client   *mongo.Client
	Database *mongo.Database
}

func NewMongoDB(uri, database string) (*MongoDB, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	clientOptions := options.Client().
		ApplyURI(uri).
		SetMaxPoolSize(500).
		SetMinPoolSize(10).
		SetMaxConnIdleTime(5 * time.Minute)
	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	// Ping the database to verify connection
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	db := &MongoDB{
		Client:   client,
		Database: client.Database(database),
	}

	// Create indexes in the background (non-blocking)
	go db.ensureIndexes()

	return db, nil
}

// ensureIndexes creates all required indexes. Called once on startup.
// Rooms and index records carry a top-level updatedAt date, so TTL
// indexes catch anything the lazy expiry path never got to touch.
func (m *MongoDB) ensureIndexes() {
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	indexes := []struct {
		collection string
		models     []mongo.IndexModel
	}{
		{
			"rooms",
			[]mongo.IndexModel{
				// Backstop for abandoned rooms: a day after the last
				// commit the record is gone even if no one ever read it.
				{Keys: bson.D{{Key: "updatedAt", Value: 1}}, Options: options.Index().SetExpireAfterSeconds(24 * 3600)},
			},
		},
		{
			"index",
			[]mongo.IndexModel{
				{Keys: bson.D{{Key: "updatedAt", Value: 1}}, Options: options.Index().SetExpireAfterSeconds(7 * 24 * 3600)},
			},
		},
		{
			"archive",
			[]mongo.IndexModel{
				{Keys: bson.D{{Key: "roomId", Value: 1}, {Key: "finishedAt", Value: -1}}},
				{Keys: bson.D{{Key: "players.id", Value: 1}, {Key: "finishedAt", Value: -1}}},
				{Keys: bson.D{{Key: "finishedAt", Value: 1}}, Options: options.Index().SetExpireAfterSeconds(90 * 24 * 3600)}, // 90-day retention
			},
		},
	}

	for _, idx := range indexes {
		coll := m.Database.Collection(idx.collection)
		_, err := coll.Indexes().CreateMany(ctx, idx.models)
		if err != nil {
			log.Printf("Warning: failed to create indexes on %s: %v", idx.collection, err)
		}
	}

	log.Println("Database indexes ensured")
}

func (m *MongoDB) Close(ctx context.Context) error {
	return m.Client.Disconnect(ctx)
}

// Rooms holds one record per room, keyed by room id.
func (m *MongoDB) Rooms() *mongo.Collection {
	return m.Database.Collection("rooms")
}

// Index holds the matchmaking directory, queue buckets and estimate
// anchors, all owned by the index actor.
func (m *MongoDB) Index() *mongo.Collection {
	return m.Database.Collection("index")
}

// Archive holds finished-round records.
func (m *MongoDB) Archive() *mongo.Collection {
	return m.Database.Collection("archive")
}
