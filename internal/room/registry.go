package room

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/segmentio/ksuid"

	"github.com/bena618/Armageddon-Chess-Backend/internal/models"
	"github.com/bena618/Armageddon-Chess-Backend/internal/storage"
)

// Settings are the server-wide pacing knobs shared by every room.
// Durations are milliseconds.
type Settings struct {
	MaxPlayers               int
	MainTimeMs               int64
	BidDurationMs            int64
	ChoiceDurationMs         int64
	StartConfirmMs           int64
	DisconnectGraceMs        int64
	DisconnectTimeoutMs      int64
	RoomMaxAgeMs             int64
	RematchWindowMs          int64
	RematchWindowShortMs     int64
	StartExpiredIndexGraceMs int64
	DisconnectMarksMover     bool
}

// DefaultSettings mirror the documented defaults: 5 minute rooms and
// main time, 60s bidding, 30s color choice, 45s disconnect forfeit.
func DefaultSettings() Settings {
	return Settings{
		MaxPlayers:               2,
		MainTimeMs:               300000,
		BidDurationMs:            60000,
		ChoiceDurationMs:         30000,
		StartConfirmMs:           60000,
		DisconnectGraceMs:        10000,
		DisconnectTimeoutMs:      45000,
		RoomMaxAgeMs:             300000,
		RematchWindowMs:          60000,
		RematchWindowShortMs:     10000,
		StartExpiredIndexGraceMs: 600000,
	}
}

// CreateParams describe a new room. Zero values fall back to the
// registry settings.
type CreateParams struct {
	RoomID           string
	MaxPlayers       int
	MainTimeMs       int64
	BidDurationMs    int64
	ChoiceDurationMs int64
	Private          bool
	Players          []models.Player
}

// RegistryConfig wires a Registry. Engines defaults to the notnil/chess
// replay factory and Clock to the wall clock.
type RegistryConfig struct {
	Store    storage.Store
	Settings Settings
	Engines  EngineFactory
	Archive  Archiver
	Clock    func() int64
}

// Registry maps room ids to live actors. A miss falls back to the
// durable store, so rooms survive process restarts: the first
// operation after a restart revives the actor from its record.
type Registry struct {
	mu    sync.RWMutex
	rooms map[string]*Actor

	store    storage.Store
	settings Settings
	engines  EngineFactory
	archive  Archiver
	index    IndexSink
	clock    func() int64
}

func NewRegistry(cfg RegistryConfig) *Registry {
	if cfg.Engines == nil {
		cfg.Engines = ReplayEngine
	}
	if cfg.Clock == nil {
		cfg.Clock = func() int64 { return time.Now().UnixMilli() }
	}
	return &Registry{
		rooms:    make(map[string]*Actor),
		store:    cfg.Store,
		settings: cfg.Settings,
		engines:  cfg.Engines,
		archive:  cfg.Archive,
		clock:    cfg.Clock,
	}
}

// SetIndexSink attaches the matchmaking directory. Wired after
// construction because the sink itself needs the registry to build
// rooms for re-queued players. Must be called before serving traffic.
func (r *Registry) SetIndexSink(sink IndexSink) {
	r.mu.Lock()
	r.index = sink
	r.mu.Unlock()
}

// Create initializes a new room, persists it and spawns its actor.
// Creating an id that already exists, live or persisted, fails with
// already_initialized. The record is durable before the room becomes
// visible anywhere.
func (r *Registry) Create(ctx context.Context, p CreateParams) (*Actor, *models.Room, error) {
	id := p.RoomID
	if id == "" {
		id = ksuid.New().String()
	}

	r.mu.Lock()
	if _, ok := r.rooms[id]; ok {
		r.mu.Unlock()
		return nil, nil, ErrAlreadyInitialized
	}
	if p.RoomID != "" {
		var probe models.Room
		switch err := r.store.Get(ctx, id, &probe); err {
		case storage.ErrNotFound:
		case nil:
			r.mu.Unlock()
			return nil, nil, ErrAlreadyInitialized
		default:
			r.mu.Unlock()
			log.Printf("[Registry] create %s: probe failed: %v", id, err)
			return nil, nil, ErrStorage
		}
	}

	now := r.clock()
	st := &models.Room{
		RoomID:              id,
		Phase:               models.PhaseLobby,
		Players:             make([]models.Player, 0, 2),
		MaxPlayers:          orInt(p.MaxPlayers, r.settings.MaxPlayers),
		Private:             p.Private,
		MainTimeMs:          orMs(p.MainTimeMs, r.settings.MainTimeMs),
		BidDurationMs:       orMs(p.BidDurationMs, r.settings.BidDurationMs),
		ChoiceDurationMs:    orMs(p.ChoiceDurationMs, r.settings.ChoiceDurationMs),
		Moves:               []models.Move{},
		DisconnectTimeoutMs: r.settings.DisconnectTimeoutMs,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	for _, seed := range p.Players {
		seed.JoinedAt = now
		st.Players = append(st.Players, seed)
	}

	if err := r.store.Put(ctx, id, st); err != nil {
		r.mu.Unlock()
		log.Printf("[Registry] create %s: persist failed: %v", id, err)
		return nil, nil, ErrStorage
	}
	actor := newActor(st.Clone(), r.actorDeps())
	r.rooms[id] = actor
	index := r.index
	r.mu.Unlock()

	if index != nil {
		index.UpdateRoom(ctx, models.IndexEntryOf(st))
	}
	return actor, st, nil
}

// Get returns the live actor for a room, reviving it from storage if
// the process has no actor yet. The boolean is false when no record
// exists at all.
func (r *Registry) Get(ctx context.Context, roomID string) (*Actor, bool) {
	r.mu.RLock()
	actor, ok := r.rooms[roomID]
	r.mu.RUnlock()
	if ok {
		return actor, true
	}

	var st models.Room
	err := r.store.Get(ctx, roomID, &st)
	if err == storage.ErrNotFound {
		return nil, false
	}
	if err != nil {
		log.Printf("[Registry] revive %s: %v", roomID, err)
		return nil, false
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if actor, ok := r.rooms[roomID]; ok {
		return actor, true
	}
	actor = newActor(&st, r.actorDeps())
	r.rooms[roomID] = actor
	return actor, true
}

func (r *Registry) actorDeps() actorDeps {
	return actorDeps{
		settings: r.settings,
		engines:  r.engines,
		store:    r.store,
		index:    r.index,
		archive:  r.archive,
		clock:    r.clock,
		onEvict:  r.evict,
	}
}

func (r *Registry) evict(roomID string) {
	r.mu.Lock()
	delete(r.rooms, roomID)
	r.mu.Unlock()
}

// Live reports how many actors are resident in this process.
func (r *Registry) Live() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms)
}

func orInt(v, def int) int {
	if v > 0 {
		return v
	}
	return def
}

func orMs(v, def int64) int64 {
	if v > 0 {
		return v
	}
	return def
}
