package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/bena618/Armageddon-Chess-Backend/internal/config"
	"github.com/bena618/Armageddon-Chess-Backend/internal/db"
)

func main() {
	// Load config
	cfg, err := config.Load(config.GetEnv())
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Connect to MongoDB
	mongodb, err := db.NewMongoDB(cfg.MongoDB.URI, cfg.MongoDB.Database)
	if err != nil {
		log.Fatalf("Failed to connect to MongoDB: %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		mongodb.Close(ctx)
	}()

	ctx := context.Background()

	// Delete all rooms
	roomsResult, err := mongodb.Rooms().DeleteMany(ctx, map[string]interface{}{})
	if err != nil {
		log.Fatalf("Failed to delete rooms: %v", err)
	}
	fmt.Printf("Deleted %d rooms\n", roomsResult.DeletedCount)

	// Delete the matchmaking directory, queues and estimate anchors
	indexResult, err := mongodb.Index().DeleteMany(ctx, map[string]interface{}{})
	if err != nil {
		log.Fatalf("Failed to delete index records: %v", err)
	}
	fmt.Printf("Deleted %d index records\n", indexResult.DeletedCount)

	// Delete archived games
	archiveResult, err := mongodb.Archive().DeleteMany(ctx, map[string]interface{}{})
	if err != nil {
		log.Fatalf("Failed to delete archive: %v", err)
	}
	fmt.Printf("Deleted %d archived games\n", archiveResult.DeletedCount)

	fmt.Println("Database cleared successfully")
}
