package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/bena618/Armageddon-Chess-Backend/internal/matchmaking"
	"github.com/bena618/Armageddon-Chess-Backend/internal/models"
	"github.com/bena618/Armageddon-Chess-Backend/internal/room"
	"github.com/bena618/Armageddon-Chess-Backend/internal/utils"
)

// Error codes raised by the transport itself rather than a room
// operation.
const (
	codeRoomNotFound     = "room_not_found"
	codeNoAvailableRooms = "no_available_rooms"
)

type RoomHandler struct {
	registry *room.Registry
	index    *matchmaking.Index
}

func NewRoomHandler(registry *room.Registry, index *matchmaking.Index) *RoomHandler {
	return &RoomHandler{registry: registry, index: index}
}

type CreateRoomRequest struct {
	RoomID           string `json:"roomId,omitempty"`
	MaxPlayers       int    `json:"maxPlayers,omitempty"`
	MainTimeMs       int64  `json:"mainTimeMs,omitempty"`
	BidDurationMs    int64  `json:"bidDurationMs,omitempty"`
	ChoiceDurationMs int64  `json:"choiceDurationMs,omitempty"`
	Private          bool   `json:"private,omitempty"`
}

// RoomMeta echoes the effective configuration of a freshly created room.
type RoomMeta struct {
	MaxPlayers       int   `json:"maxPlayers"`
	MainTimeMs       int64 `json:"mainTimeMs"`
	BidDurationMs    int64 `json:"bidDurationMs"`
	ChoiceDurationMs int64 `json:"choiceDurationMs"`
	Private          bool  `json:"private"`
	CreatedAt        int64 `json:"createdAt"`
}

type CreateRoomResponse struct {
	OK     bool     `json:"ok"`
	RoomID string   `json:"roomId"`
	Meta   RoomMeta `json:"meta"`
}

type RoomResponse struct {
	OK   bool         `json:"ok"`
	Room *models.Room `json:"room"`
}

type JoinNextResponse struct {
	OK     bool         `json:"ok"`
	RoomID string       `json:"roomId"`
	Room   *models.Room `json:"room"`
}

type AvailableCountResponse struct {
	OK    bool `json:"ok"`
	Count int  `json:"count"`
}

// MoveResponse is the response to move and time-forfeit: the clock
// snapshot and move list up front, terminal outcome when the game just
// ended.
type MoveResponse struct {
	OK       bool           `json:"ok"`
	Room     *models.Room   `json:"room"`
	Clocks   *models.Clocks `json:"clocks,omitempty"`
	Moves    []models.Move  `json:"moves"`
	Result   string         `json:"result,omitempty"`
	Reason   string         `json:"reason,omitempty"`
	WinnerID string         `json:"winnerId,omitempty"`
}

type PlayerActionRequest struct {
	PlayerID string `json:"playerId"`
	Name     string `json:"name,omitempty"`
}

type SubmitBidRequest struct {
	PlayerID string `json:"playerId"`
	Amount   *int64 `json:"amount"`
}

type ChooseColorRequest struct {
	PlayerID string `json:"playerId"`
	Color    string `json:"color"`
}

type MoveRequest struct {
	PlayerID string `json:"playerId"`
	Move     string `json:"move"`
}

type RematchRequest struct {
	PlayerID string `json:"playerId"`
	Agree    *bool  `json:"agree"`
}

type JoinNextRequest struct {
	PlayerID   string `json:"playerId"`
	Name       string `json:"name,omitempty"`
	MainTimeMs int64  `json:"mainTimeMs,omitempty"`
}

// Create allocates a new room. Every field is optional; zero values
// fall back to the configured defaults.
func (h *RoomHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateRoomRequest
	decodeJSON(r, &req)

	_, st, err := h.registry.Create(r.Context(), room.CreateParams{
		RoomID:           req.RoomID,
		MaxPlayers:       req.MaxPlayers,
		MainTimeMs:       req.MainTimeMs,
		BidDurationMs:    req.BidDurationMs,
		ChoiceDurationMs: req.ChoiceDurationMs,
		Private:          req.Private,
	})
	if err != nil {
		respondWithOpError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, CreateRoomResponse{
		OK:     true,
		RoomID: st.RoomID,
		Meta: RoomMeta{
			MaxPlayers:       st.MaxPlayers,
			MainTimeMs:       st.MainTimeMs,
			BidDurationMs:    st.BidDurationMs,
			ChoiceDurationMs: st.ChoiceDurationMs,
			Private:          st.Private,
			CreatedAt:        st.CreatedAt,
		},
	})
}

// JoinNext seats the player in the oldest public lobby with a free
// seat. A mainTimeMs of zero matches any time control.
func (h *RoomHandler) JoinNext(w http.ResponseWriter, r *http.Request) {
	var req JoinNextRequest
	decodeJSON(r, &req)
	if req.PlayerID == "" {
		respondWithOpError(w, room.ErrPlayerRequired)
		return
	}
	name := utils.DisplayNameOrRandom(req.Name)

	for _, entry := range h.index.ListRooms(r.Context()) {
		if !entry.HasOpenSeat() {
			continue
		}
		if req.MainTimeMs > 0 && entry.MainTimeMs != req.MainTimeMs {
			continue
		}
		actor, ok := h.registry.Get(r.Context(), entry.RoomID)
		if !ok {
			continue
		}
		st, err := actor.Join(r.Context(), req.PlayerID, name)
		if err != nil {
			// Raced with another joiner or a deadline; try the next one.
			continue
		}
		respondWithJSON(w, http.StatusOK, JoinNextResponse{OK: true, RoomID: st.RoomID, Room: st})
		return
	}

	respondWithError(w, http.StatusNotFound, codeNoAvailableRooms)
}

// AvailableCount reports how many public lobbies have a free seat.
// An optional mainTimeMs query narrows to one time control.
func (h *RoomHandler) AvailableCount(w http.ResponseWriter, r *http.Request) {
	tc := parseInt64(r.URL.Query().Get("mainTimeMs"))

	count := 0
	for _, entry := range h.index.ListRooms(r.Context()) {
		if !entry.HasOpenSeat() {
			continue
		}
		if tc > 0 && entry.MainTimeMs != tc {
			continue
		}
		count++
	}
	respondWithJSON(w, http.StatusOK, AvailableCountResponse{OK: true, Count: count})
}

// Get returns the full room state, driving any lapsed deadlines first.
func (h *RoomHandler) Get(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.lookup(w, r)
	if !ok {
		return
	}
	st, err := actor.State(r.Context())
	if err != nil {
		respondWithOpError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, RoomResponse{OK: true, Room: st})
}

func (h *RoomHandler) Join(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.lookup(w, r)
	if !ok {
		return
	}
	var req PlayerActionRequest
	decodeJSON(r, &req)
	if req.PlayerID == "" {
		respondWithOpError(w, room.ErrPlayerRequired)
		return
	}
	st, err := actor.Join(r.Context(), req.PlayerID, utils.DisplayNameOrRandom(req.Name))
	if err != nil {
		respondWithOpError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, RoomResponse{OK: true, Room: st})
}

func (h *RoomHandler) StartBidding(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.lookup(w, r)
	if !ok {
		return
	}
	var req PlayerActionRequest
	decodeJSON(r, &req)
	if req.PlayerID == "" {
		respondWithOpError(w, room.ErrPlayerRequired)
		return
	}
	st, err := actor.StartBidding(r.Context(), req.PlayerID)
	if err != nil {
		respondWithOpError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, RoomResponse{OK: true, Room: st})
}

func (h *RoomHandler) SubmitBid(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.lookup(w, r)
	if !ok {
		return
	}
	var req SubmitBidRequest
	decodeJSON(r, &req)
	if req.PlayerID == "" || req.Amount == nil {
		respondWithOpError(w, room.ErrBidFieldsRequired)
		return
	}
	st, err := actor.SubmitBid(r.Context(), req.PlayerID, *req.Amount)
	if err != nil {
		respondWithOpError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, RoomResponse{OK: true, Room: st})
}

func (h *RoomHandler) ChooseColor(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.lookup(w, r)
	if !ok {
		return
	}
	var req ChooseColorRequest
	decodeJSON(r, &req)
	if req.PlayerID == "" {
		respondWithOpError(w, room.ErrPlayerRequired)
		return
	}
	st, err := actor.ChooseColor(r.Context(), req.PlayerID, req.Color)
	if err != nil {
		respondWithOpError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, RoomResponse{OK: true, Room: st})
}

func (h *RoomHandler) Move(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.lookup(w, r)
	if !ok {
		return
	}
	var req MoveRequest
	decodeJSON(r, &req)
	if req.PlayerID == "" {
		respondWithOpError(w, room.ErrPlayerRequired)
		return
	}
	st, err := actor.MakeMove(r.Context(), req.PlayerID, req.Move)
	if err != nil {
		respondWithOpError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, moveResponseOf(st))
}

func (h *RoomHandler) TimeForfeit(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.lookup(w, r)
	if !ok {
		return
	}
	var req PlayerActionRequest
	decodeJSON(r, &req)
	if req.PlayerID == "" {
		respondWithOpError(w, room.ErrPlayerRequired)
		return
	}
	st, err := actor.TimeForfeit(r.Context(), req.PlayerID)
	if err != nil {
		respondWithOpError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, moveResponseOf(st))
}

func (h *RoomHandler) Rematch(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.lookup(w, r)
	if !ok {
		return
	}
	var req RematchRequest
	decodeJSON(r, &req)
	if req.PlayerID == "" || req.Agree == nil {
		respondWithOpError(w, room.ErrPlayerRequired)
		return
	}
	st, err := actor.Rematch(r.Context(), req.PlayerID, *req.Agree)
	if err != nil {
		respondWithOpError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, RoomResponse{OK: true, Room: st})
}

func (h *RoomHandler) Leave(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.lookup(w, r)
	if !ok {
		return
	}
	var req PlayerActionRequest
	decodeJSON(r, &req)
	if req.PlayerID == "" {
		respondWithOpError(w, room.ErrPlayerRequired)
		return
	}
	st, err := actor.Leave(r.Context(), req.PlayerID)
	if err != nil {
		respondWithOpError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, RoomResponse{OK: true, Room: st})
}

func (h *RoomHandler) Heartbeat(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.lookup(w, r)
	if !ok {
		return
	}
	var req PlayerActionRequest
	decodeJSON(r, &req)
	if req.PlayerID == "" {
		respondWithOpError(w, room.ErrPlayerRequired)
		return
	}
	if _, err := actor.Heartbeat(r.Context(), req.PlayerID); err != nil {
		respondWithOpError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]interface{}{"ok": true})
}

// ServeWS upgrades to the live room stream: an init frame on attach,
// then an update frame for every commit.
func (h *RoomHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	playerID := r.URL.Query().Get("playerId")
	if playerID == "" {
		respondWithOpError(w, room.ErrPlayerRequired)
		return
	}
	actor, ok := h.lookup(w, r)
	if !ok {
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote its own failure response.
		return
	}
	client := newClient(conn)
	client.onClose = func() {
		actor.Unsubscribe(context.Background(), client)
		client.Close()
	}
	client.start()

	if _, err := actor.Subscribe(r.Context(), playerID, client); err != nil {
		client.Close()
	}
}

// lookup resolves the {id} path variable to a live actor, reviving it
// from storage if needed, and writes the 404 when no record exists.
func (h *RoomHandler) lookup(w http.ResponseWriter, r *http.Request) (*room.Actor, bool) {
	roomID := mux.Vars(r)["id"]
	actor, ok := h.registry.Get(r.Context(), roomID)
	if !ok {
		respondWithError(w, http.StatusNotFound, codeRoomNotFound)
		return nil, false
	}
	return actor, true
}

func moveResponseOf(st *models.Room) MoveResponse {
	resp := MoveResponse{
		OK:     true,
		Room:   st,
		Clocks: st.Clocks,
		Moves:  st.Moves,
	}
	if st.Phase == models.PhaseFinished {
		resp.Result = st.Result
		resp.Reason = st.Reason
		resp.WinnerID = st.WinnerID
	}
	return resp
}

func parseInt64(s string) int64 {
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}
	return v
}
