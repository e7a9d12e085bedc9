package handlers

import (
	"context"
	"net/http"

	"github.com/bena618/Armageddon-Chess-Backend/internal/matchmaking"
	"github.com/bena618/Armageddon-Chess-Backend/internal/models"
	"github.com/bena618/Armageddon-Chess-Backend/internal/room"
	"github.com/bena618/Armageddon-Chess-Backend/internal/utils"
)

const codeInvalidTimeControl = "invalid_time_control"

type QueueHandler struct {
	registry *room.Registry
	index    *matchmaking.Index
}

func NewQueueHandler(registry *room.Registry, index *matchmaking.Index) *QueueHandler {
	return &QueueHandler{registry: registry, index: index}
}

type QueueJoinRequest struct {
	PlayerID   string `json:"playerId"`
	Name       string `json:"name,omitempty"`
	MainTimeMs int64  `json:"mainTimeMs"`
}

type QueuePlayerRequest struct {
	PlayerID string `json:"playerId"`
	Name     string `json:"name,omitempty"`
}

type QueuedResponse struct {
	OK            bool `json:"ok"`
	Queued        bool `json:"queued"`
	QueuePosition int  `json:"queuePosition"`
}

type MatchedResponse struct {
	OK     bool         `json:"ok"`
	RoomID string       `json:"roomId"`
	Room   *models.Room `json:"room"`
}

type CheckMatchResponse struct {
	OK      bool         `json:"ok"`
	Matched bool         `json:"matched"`
	RoomID  string       `json:"roomId,omitempty"`
	Room    *models.Room `json:"room,omitempty"`
	InQueue bool         `json:"inQueue"`
}

type QueueStatusResponse struct {
	OK        bool                            `json:"ok"`
	Estimates map[string]matchmaking.Estimate `json:"estimates"`
}

// Join enqueues the player in one time-control bucket. When the bucket
// already holds a waiting opponent, the room is created on the spot and
// both players are cleared from every queue.
func (h *QueueHandler) Join(w http.ResponseWriter, r *http.Request) {
	var req QueueJoinRequest
	decodeJSON(r, &req)
	if req.PlayerID == "" {
		respondWithOpError(w, room.ErrPlayerRequired)
		return
	}
	if req.MainTimeMs <= 0 {
		respondWithError(w, http.StatusBadRequest, codeInvalidTimeControl)
		return
	}
	name := utils.DisplayNameOrRandom(req.Name)

	directive, position, err := h.index.AddToQueue(r.Context(), req.PlayerID, name, req.MainTimeMs)
	if err != nil {
		respondWithOpError(w, err)
		return
	}
	h.settle(w, r, req.PlayerID, directive, position)
}

// JoinAll enqueues the player in every configured bucket; the first
// bucket able to seat a game wins.
func (h *QueueHandler) JoinAll(w http.ResponseWriter, r *http.Request) {
	var req QueuePlayerRequest
	decodeJSON(r, &req)
	if req.PlayerID == "" {
		respondWithOpError(w, room.ErrPlayerRequired)
		return
	}
	name := utils.DisplayNameOrRandom(req.Name)

	directive, positions, err := h.index.JoinAll(r.Context(), req.PlayerID, name)
	if err != nil {
		respondWithOpError(w, err)
		return
	}

	// Report the most promising bucket.
	position := 0
	for _, p := range positions {
		if position == 0 || p < position {
			position = p
		}
	}
	h.settle(w, r, req.PlayerID, directive, position)
}

// settle finishes a queue join: create the room a directive asks for,
// or report the waiting position.
func (h *QueueHandler) settle(w http.ResponseWriter, r *http.Request, playerID string, directive *models.MatchDirective, position int) {
	if directive == nil || !directive.ShouldCreateRoom {
		respondWithJSON(w, http.StatusOK, QueuedResponse{OK: true, Queued: true, QueuePosition: position})
		return
	}

	players := make([]models.Player, 0, len(directive.QueuedPlayers))
	ids := make([]string, 0, len(directive.QueuedPlayers))
	matchedSelf := false
	for _, q := range directive.QueuedPlayers {
		players = append(players, models.Player{ID: q.PlayerID, Name: q.Name})
		ids = append(ids, q.PlayerID)
		if q.PlayerID == playerID {
			matchedSelf = true
		}
	}

	_, st, err := h.registry.Create(r.Context(), room.CreateParams{
		MainTimeMs: directive.MainTimeMs,
		Players:    players,
	})
	if err != nil {
		respondWithOpError(w, err)
		return
	}
	if err := h.index.RemoveFromAllQueues(r.Context(), ids); err != nil {
		// The pair is seated; a lingering queue entry only survives
		// until the stale sweep.
		respondWithJSON(w, http.StatusOK, MatchedResponse{OK: true, RoomID: st.RoomID, Room: st})
		return
	}

	if matchedSelf {
		respondWithJSON(w, http.StatusOK, MatchedResponse{OK: true, RoomID: st.RoomID, Room: st})
		return
	}
	// The directive seated two players queued ahead of this one (a
	// re-enqueued rematch pair, typically). The requester keeps waiting.
	respondWithJSON(w, http.StatusOK, QueuedResponse{OK: true, Queued: true, QueuePosition: position})
}

func (h *QueueHandler) Leave(w http.ResponseWriter, r *http.Request) {
	var req QueuePlayerRequest
	decodeJSON(r, &req)
	if req.PlayerID == "" {
		respondWithOpError(w, room.ErrPlayerRequired)
		return
	}
	if err := h.index.RemoveFromAllQueues(r.Context(), []string{req.PlayerID}); err != nil {
		respondWithOpError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]interface{}{"ok": true})
}

// CheckMatch reports whether the player got seated while polling.
func (h *QueueHandler) CheckMatch(w http.ResponseWriter, r *http.Request) {
	var req QueuePlayerRequest
	decodeJSON(r, &req)
	if req.PlayerID == "" {
		respondWithOpError(w, room.ErrPlayerRequired)
		return
	}

	res := h.index.CheckMatch(r.Context(), req.PlayerID)
	if res.Matched {
		if actor, ok := h.registry.Get(r.Context(), res.RoomID); ok {
			if st, err := actor.State(r.Context()); err == nil {
				respondWithJSON(w, http.StatusOK, CheckMatchResponse{
					OK: true, Matched: true, RoomID: res.RoomID, Room: st,
				})
				return
			}
		}
		// Directory entry outlived the room; fall through as unmatched.
	}
	respondWithJSON(w, http.StatusOK, CheckMatchResponse{OK: true, Matched: false, InQueue: res.InQueue})
}

func (h *QueueHandler) Heartbeat(w http.ResponseWriter, r *http.Request) {
	var req QueuePlayerRequest
	decodeJSON(r, &req)
	if req.PlayerID == "" {
		respondWithOpError(w, room.ErrPlayerRequired)
		return
	}
	if err := h.index.QueueHeartbeat(r.Context(), req.PlayerID); err != nil {
		respondWithOpError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]interface{}{"ok": true})
}

// Status reports queue depth and a wait estimate per time control.
func (h *QueueHandler) Status(w http.ResponseWriter, r *http.Request) {
	estimates := h.index.Estimates(r.Context())
	respondWithJSON(w, http.StatusOK, QueueStatusResponse{OK: true, Estimates: estimates})
}

// ServeWS upgrades to the queue size feed.
func (h *QueueHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	client := newClient(conn)
	client.onClose = func() {
		h.index.Unsubscribe(context.Background(), client)
		client.Close()
	}
	client.start()
	h.index.Subscribe(r.Context(), client)
}
