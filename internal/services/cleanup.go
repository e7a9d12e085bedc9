package services

import (
	"context"
	"log"
	"time"

	"github.com/bena618/Armageddon-Chess-Backend/internal/matchmaking"
	"github.com/bena618/Armageddon-Chess-Backend/internal/room"
)

// Sweeper periodically nudges every room in the directory so lapsed
// deadlines (bid resolution, color-pick rotation, disconnect forfeits,
// rematch expiry) transition and broadcast promptly instead of waiting
// for the next client request. Correctness never depends on it: every
// operation drives the same deadline pass on its own.
type Sweeper struct {
	registry *room.Registry
	index    *matchmaking.Index
	interval time.Duration
	stopCh   chan struct{}
}

func NewSweeper(registry *room.Registry, index *matchmaking.Index, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Sweeper{
		registry: registry,
		index:    index,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start begins the periodic sweep loop in a background goroutine.
func (s *Sweeper) Start() {
	go s.run()
	log.Printf("[Cleanup] sweeper started (interval: %s)", s.interval)
}

// Stop signals the sweep loop to exit.
func (s *Sweeper) Stop() {
	close(s.stopCh)
	log.Println("[Cleanup] sweeper stopped")
}

func (s *Sweeper) run() {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.sweep()
		}
	}
}

func (s *Sweeper) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	if removed := s.index.CleanupStale(ctx); removed > 0 {
		log.Printf("[Cleanup] dropped %d stale queue entries", removed)
	}

	for _, entry := range s.index.ListRooms(ctx) {
		actor, ok := s.registry.Get(ctx, entry.RoomID)
		if !ok {
			// Directory entry with no backing record.
			s.index.RemoveRoom(ctx, entry.RoomID)
			continue
		}
		// Expired rooms answer room_expired and clean up after
		// themselves; nothing to do with the snapshot or the error.
		actor.State(ctx)
	}
}
