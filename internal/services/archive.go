package services

import (
	"context"
	"log"
	"time"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/bena618/Armageddon-Chess-Backend/internal/db"
	"github.com/bena618/Armageddon-Chess-Backend/internal/models"
)

// Archive records finished rounds into the archive collection, out of
// band so a slow write never stalls a room actor. Rows age out via the
// collection's TTL index.
type Archive struct {
	db *db.MongoDB
}

func NewArchive(database *db.MongoDB) *Archive {
	return &Archive{db: database}
}

// RecordFinished writes one finished round (fire-and-forget).
func (a *Archive) RecordFinished(room *models.Room) {
	doc := bson.M{
		"roomId":       room.RoomID,
		"players":      room.Players,
		"colors":       room.Colors,
		"bids":         room.Bids,
		"winnerId":     room.WinnerID,
		"loserId":      room.LoserID,
		"result":       room.Result,
		"reason":       room.Reason,
		"closeReason":  room.CloseReason,
		"mainTimeMs":   room.MainTimeMs,
		"winningBidMs": room.WinningBidMs,
		"losingBidMs":  room.LosingBidMs,
		"moveCount":    len(room.Moves),
		"durationMs":   playDuration(room),
		"finishedAt":   time.Now(),
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if _, err := a.db.Archive().InsertOne(ctx, doc); err != nil {
			log.Printf("[Archive] write %s failed: %v", room.RoomID, err)
		}
	}()
}

// playDuration is wall time between the first and last half-move.
func playDuration(room *models.Room) int64 {
	if len(room.Moves) == 0 {
		return 0
	}
	return room.Moves[len(room.Moves)-1].At - room.Moves[0].At
}
