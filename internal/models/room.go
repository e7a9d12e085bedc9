package models

type Phase string

const (
	PhaseLobby     Phase = "LOBBY"      // Waiting for players and start confirmation
	PhaseBidding   Phase = "BIDDING"    // Sealed clock bids open
	PhaseColorPick Phase = "COLOR_PICK" // Bid winner (or rotated picker) chooses a side
	PhasePlaying   Phase = "PLAYING"    // Clocks running
	PhaseFinished  Phase = "FINISHED"   // Terminal; rematch window may be open
)

type PlayerColor string

const (
	White PlayerColor = "white"
	Black PlayerColor = "black"
)

// Other returns the opposite side.
func (c PlayerColor) Other() PlayerColor {
	if c == White {
		return Black
	}
	return White
}

type PickerRole string

const (
	PickerWinner PickerRole = "winner"
	PickerLoser  PickerRole = "loser"
)

// Result values set on a FINISHED room.
const (
	ResultCheckmate         = "checkmate"
	ResultTimeForfeit       = "time_forfeit"
	ResultDraw              = "draw"
	ResultDisconnectForfeit = "disconnect_forfeit"
)

// Reason values qualifying a terminal result.
const (
	ReasonStalemate            = "stalemate"
	ReasonInsufficientMaterial = "insufficient_material"
	ReasonThreefoldRepetition  = "threefold_repetition"
	ReasonFiftyMoveRule        = "fifty_move_rule"
	ReasonTimeoutNoMate        = "timeout_but_opponent_cannot_mate"
	ReasonColorPickTimeout     = "color_pick_timeout"
)

// Close reasons for rooms leaving circulation.
const (
	CloseDeclinedRematch   = "declined_rematch"
	CloseRematchTimeout    = "rematch_timeout"
	CloseStartExpired      = "start_expired"
	CloseDisconnectForfeit = "disconnect_forfeit"
)

type Player struct {
	ID       string `json:"id" bson:"id"`
	Name     string `json:"name" bson:"name"`
	JoinedAt int64  `json:"joinedAt" bson:"joinedAt"`
}

// Bid is a sealed clock bid. Amount is in milliseconds; the lower bid
// wins the right to choose color and plays with Amount on the clock.
type Bid struct {
	Amount      int64 `json:"amount" bson:"amount"`
	SubmittedAt int64 `json:"submittedAt" bson:"submittedAt"`
}

type Clocks struct {
	WhiteRemainingMs int64       `json:"whiteRemainingMs" bson:"whiteRemainingMs"`
	BlackRemainingMs int64       `json:"blackRemainingMs" bson:"blackRemainingMs"`
	LastTickAt       int64       `json:"lastTickAt" bson:"lastTickAt"`
	Turn             PlayerColor `json:"turn" bson:"turn"`
	FrozenAt         *int64      `json:"frozenAt,omitempty" bson:"frozenAt,omitempty"`
}

// Remaining returns the clock of the given side.
func (c *Clocks) Remaining(color PlayerColor) int64 {
	if color == White {
		return c.WhiteRemainingMs
	}
	return c.BlackRemainingMs
}

// SetRemaining overwrites the clock of the given side.
func (c *Clocks) SetRemaining(color PlayerColor, ms int64) {
	if color == White {
		c.WhiteRemainingMs = ms
	} else {
		c.BlackRemainingMs = ms
	}
}

// Move is one played half-move. Move strings are UCI-style squares with
// an optional promotion letter: "e2e4", "e7e8q".
type Move struct {
	By   string `json:"by" bson:"by"`
	Move string `json:"move" bson:"move"`
	At   int64  `json:"at" bson:"at"`
}

// Room is the full per-room state. All timestamps are absolute Unix
// milliseconds; nullable timestamps are *int64. Phase gates which
// fields are meaningful.
type Room struct {
	RoomID     string   `json:"roomId" bson:"roomId"`
	Phase      Phase    `json:"phase" bson:"phase"`
	Players    []Player `json:"players" bson:"players"`
	MaxPlayers int      `json:"maxPlayers" bson:"maxPlayers"`
	Private    bool     `json:"private" bson:"private"`

	MainTimeMs       int64 `json:"mainTimeMs" bson:"mainTimeMs"`
	BidDurationMs    int64 `json:"bidDurationMs" bson:"bidDurationMs"`
	ChoiceDurationMs int64 `json:"choiceDurationMs" bson:"choiceDurationMs"`

	Bids        map[string]Bid `json:"bids,omitempty" bson:"bids,omitempty"`
	BidDeadline *int64         `json:"bidDeadline,omitempty" bson:"bidDeadline,omitempty"`

	StartRequestedBy     string `json:"startRequestedBy,omitempty" bson:"startRequestedBy,omitempty"`
	StartConfirmDeadline *int64 `json:"startConfirmDeadline,omitempty" bson:"startConfirmDeadline,omitempty"`

	WinnerID     string `json:"winnerId,omitempty" bson:"winnerId,omitempty"`
	LoserID      string `json:"loserId,omitempty" bson:"loserId,omitempty"`
	WinningBidMs *int64 `json:"winningBidMs,omitempty" bson:"winningBidMs,omitempty"`
	LosingBidMs  *int64 `json:"losingBidMs,omitempty" bson:"losingBidMs,omitempty"`

	CurrentPicker  PickerRole `json:"currentPicker,omitempty" bson:"currentPicker,omitempty"`
	ChoiceDeadline *int64     `json:"choiceDeadline,omitempty" bson:"choiceDeadline,omitempty"`
	ChoiceAttempts int        `json:"choiceAttempts" bson:"choiceAttempts"`

	Colors       map[string]PlayerColor `json:"colors,omitempty" bson:"colors,omitempty"`
	DrawOddsSide string                 `json:"drawOddsSide,omitempty" bson:"drawOddsSide,omitempty"`

	Clocks  *Clocks `json:"clocks,omitempty" bson:"clocks,omitempty"`
	Moves   []Move  `json:"moves" bson:"moves"`
	GameFen string  `json:"gameFen,omitempty" bson:"gameFen,omitempty"`

	Result string `json:"result,omitempty" bson:"result,omitempty"`
	Reason string `json:"reason,omitempty" bson:"reason,omitempty"`

	RematchWindowEnds *int64          `json:"rematchWindowEnds,omitempty" bson:"rematchWindowEnds,omitempty"`
	RematchVotes      map[string]bool `json:"rematchVotes,omitempty" bson:"rematchVotes,omitempty"`

	DisconnectedPlayerID string `json:"disconnectedPlayerId,omitempty" bson:"disconnectedPlayerId,omitempty"`
	DisconnectStart      *int64 `json:"disconnectStart,omitempty" bson:"disconnectStart,omitempty"`
	DisconnectTimeoutMs  int64  `json:"disconnectTimeoutMs" bson:"disconnectTimeoutMs"`

	Closed      bool   `json:"closed" bson:"closed"`
	CloseReason string `json:"closeReason,omitempty" bson:"closeReason,omitempty"`
	ClosedAt    *int64 `json:"closedAt,omitempty" bson:"closedAt,omitempty"`

	CreatedAt int64 `json:"createdAt" bson:"createdAt"`
	UpdatedAt int64 `json:"updatedAt" bson:"updatedAt"`
}

// PlayerByID returns the player with the given id, or nil.
func (r *Room) PlayerByID(id string) *Player {
	for i := range r.Players {
		if r.Players[i].ID == id {
			return &r.Players[i]
		}
	}
	return nil
}

func (r *Room) HasPlayer(id string) bool {
	return r.PlayerByID(id) != nil
}

func (r *Room) IsFull() bool {
	return len(r.Players) >= r.MaxPlayers
}

// ColorOf returns the side assigned to a player once colors are set.
func (r *Room) ColorOf(playerID string) (PlayerColor, bool) {
	c, ok := r.Colors[playerID]
	return c, ok
}

// PlayerWithColor returns the id of the player holding the given side,
// or "" if colors are not assigned.
func (r *Room) PlayerWithColor(color PlayerColor) string {
	for id, c := range r.Colors {
		if c == color {
			return id
		}
	}
	return ""
}

// OpponentOf returns the other player's id, or "" if the room does not
// have two players.
func (r *Room) OpponentOf(playerID string) string {
	for i := range r.Players {
		if r.Players[i].ID != playerID {
			return r.Players[i].ID
		}
	}
	return ""
}

// Clone returns a deep copy. Actors mutate clones and swap them in only
// after the durable write succeeds.
func (r *Room) Clone() *Room {
	cp := *r

	cp.Players = append([]Player(nil), r.Players...)
	cp.Moves = append([]Move(nil), r.Moves...)

	if r.Bids != nil {
		cp.Bids = make(map[string]Bid, len(r.Bids))
		for k, v := range r.Bids {
			cp.Bids[k] = v
		}
	}
	if r.Colors != nil {
		cp.Colors = make(map[string]PlayerColor, len(r.Colors))
		for k, v := range r.Colors {
			cp.Colors[k] = v
		}
	}
	if r.RematchVotes != nil {
		cp.RematchVotes = make(map[string]bool, len(r.RematchVotes))
		for k, v := range r.RematchVotes {
			cp.RematchVotes[k] = v
		}
	}
	if r.Clocks != nil {
		clocks := *r.Clocks
		clocks.FrozenAt = cloneMs(r.Clocks.FrozenAt)
		cp.Clocks = &clocks
	}

	cp.BidDeadline = cloneMs(r.BidDeadline)
	cp.StartConfirmDeadline = cloneMs(r.StartConfirmDeadline)
	cp.WinningBidMs = cloneMs(r.WinningBidMs)
	cp.LosingBidMs = cloneMs(r.LosingBidMs)
	cp.ChoiceDeadline = cloneMs(r.ChoiceDeadline)
	cp.RematchWindowEnds = cloneMs(r.RematchWindowEnds)
	cp.DisconnectStart = cloneMs(r.DisconnectStart)
	cp.ClosedAt = cloneMs(r.ClosedAt)

	return &cp
}

func cloneMs(p *int64) *int64 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// Ms returns a pointer to a millisecond timestamp value.
func Ms(v int64) *int64 {
	return &v
}
