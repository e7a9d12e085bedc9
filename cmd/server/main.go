package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/cors"

	"github.com/bena618/Armageddon-Chess-Backend/internal/config"
	"github.com/bena618/Armageddon-Chess-Backend/internal/db"
	"github.com/bena618/Armageddon-Chess-Backend/internal/handlers"
	"github.com/bena618/Armageddon-Chess-Backend/internal/matchmaking"
	"github.com/bena618/Armageddon-Chess-Backend/internal/middleware"
	"github.com/bena618/Armageddon-Chess-Backend/internal/room"
	"github.com/bena618/Armageddon-Chess-Backend/internal/services"
	"github.com/bena618/Armageddon-Chess-Backend/internal/storage"
)

func main() {
	// Load .env first so ${VAR} references in the config file resolve
	godotenv.Load()

	env := config.GetEnv()
	cfg, err := config.Load(env)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	log.Printf("Starting armageddon chess server in %s mode", cfg.Environment)

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

	log.Printf("Connected to MongoDB database: %s", cfg.MongoDB.Database)

	roomStore := storage.NewMongoStore(mongodb.Rooms())
	indexStore := storage.NewMongoStore(mongodb.Index())
	archive := services.NewArchive(mongodb)

	settings := room.DefaultSettings()
	settings.MainTimeMs = cfg.Game.MainTimeMs
	settings.BidDurationMs = cfg.Game.BidDurationMs
	settings.ChoiceDurationMs = cfg.Game.ChoiceDurationMs
	settings.StartConfirmMs = cfg.Game.StartConfirmMs
	settings.DisconnectGraceMs = cfg.Game.DisconnectGraceMs
	settings.DisconnectTimeoutMs = cfg.Game.DisconnectTimeoutMs
	settings.RoomMaxAgeMs = cfg.Game.RoomMaxAgeMs
	settings.RematchWindowMs = cfg.Game.RematchWindowMs
	settings.RematchWindowShortMs = cfg.Game.RematchWindowShortMs
	settings.DisconnectMarksMover = cfg.Game.DisconnectMarksMover

	registry := room.NewRegistry(room.RegistryConfig{
		Store:    roomStore,
		Settings: settings,
		Archive:  archive,
	})

	restoreCtx, cancelRestore := context.WithTimeout(context.Background(), 10*time.Second)
	index := matchmaking.NewIndex(restoreCtx, indexStore, matchmaking.Config{
		TimeControls: cfg.Game.TimeControls,
	})
	cancelRestore()
	defer index.Stop()

	// Rematch re-enqueues and directory updates flow from room actors
	// into the index.
	registry.SetIndexSink(index)

	sweeper := services.NewSweeper(registry, index, 30*time.Second)
	sweeper.Start()
	defer sweeper.Stop()

	limiter := middleware.NewRateLimiter()
	defer limiter.Stop()

	// Create handlers
	roomHandler := handlers.NewRoomHandler(registry, index)
	queueHandler := handlers.NewQueueHandler(registry, index)

	router := handlers.Routes(roomHandler, queueHandler, limiter)

	// CORS middleware
	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   []string{cfg.Frontend.URL},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type"},
		AllowCredentials: true,
	})

	handler := middleware.SecurityHeaders()(router)
	handler = corsHandler.Handler(handler)

	// Create server
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Printf("Server listening on %s", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	// Graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server shutdown error: %v", err)
	}

	log.Println("Server stopped")
}
