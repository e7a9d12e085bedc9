package models

// IndexEntry is the lightweight per-room view held by the matchmaking
// index: enough for discovery, available-count and wait estimates.
type IndexEntry struct {
	RoomID     string   `json:"roomId" bson:"roomId"`
	Phase      Phase    `json:"phase" bson:"phase"`
	Players    []Player `json:"players" bson:"players"`
	MaxPlayers int      `json:"maxPlayers" bson:"maxPlayers"`
	Private    bool     `json:"private" bson:"private"`
	Closed     bool     `json:"closed" bson:"closed"`
	MainTimeMs int64    `json:"mainTimeMs" bson:"mainTimeMs"`
	Clocks     *Clocks  `json:"clocks,omitempty" bson:"clocks,omitempty"`
	UpdatedAt  int64    `json:"updatedAt" bson:"updatedAt"`
}

// HasOpenSeat reports whether a public lobby seat is available.
func (e IndexEntry) HasOpenSeat() bool {
	return e.Phase == PhaseLobby && !e.Closed && !e.Private && len(e.Players) < e.MaxPlayers
}

// IndexEntryOf projects a room into its index view. Slices and nested
// state are copied so the index never aliases live room state.
func IndexEntryOf(r *Room) IndexEntry {
	e := IndexEntry{
		RoomID:     r.RoomID,
		Phase:      r.Phase,
		Players:    append([]Player(nil), r.Players...),
		MaxPlayers: r.MaxPlayers,
		Private:    r.Private,
		Closed:     r.Closed,
		MainTimeMs: r.MainTimeMs,
		UpdatedAt:  r.UpdatedAt,
	}
	if r.Clocks != nil {
		clocks := *r.Clocks
		clocks.FrozenAt = cloneMs(r.Clocks.FrozenAt)
		e.Clocks = &clocks
	}
	return e
}

// QueueEntry is one waiting player within a time-control bucket.
type QueueEntry struct {
	PlayerID      string `json:"playerId" bson:"playerId"`
	Name          string `json:"name" bson:"name"`
	JoinedAt      int64  `json:"joinedAt" bson:"joinedAt"`
	LastHeartbeat int64  `json:"lastHeartbeat" bson:"lastHeartbeat"`
}

// MatchDirective tells the router to create a room for the first two
// players of a bucket and clear them from every queue.
type MatchDirective struct {
	ShouldCreateRoom bool         `json:"shouldCreateRoom"`
	MainTimeMs       int64        `json:"mainTimeMs"`
	QueuedPlayers    []QueueEntry `json:"queuedPlayers"`
}
