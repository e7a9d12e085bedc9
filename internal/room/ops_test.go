package room

import (
	"errors"
	"fmt"
	"testing"

	"github.com/bena618/Armageddon-Chess-Backend/internal/engine"
	"github.com/bena618/Armageddon-Chess-Backend/internal/models"
)

// Fixed epoch for deterministic deadlines.
const t0 = int64(1_700_000_000_000)

// engineScript configures the fake engine factory: which moves are
// rejected, which moves end the game, and what material each side has
// left. The zero value accepts every move and never finishes.
type engineScript struct {
	illegal   map[string]bool
	finishOn  map[string]engine.Result
	material  map[models.PlayerColor]engine.Material
	pieces    map[string]engine.Piece
	failBuild bool
}

func (s *engineScript) factory(moves []string) (Engine, error) {
	if s.failBuild {
		return nil, errors.New("engine unavailable")
	}
	e := &fakeEngine{script: s}
	for _, mv := range moves {
		if err := e.TryMove(mv); err != nil {
			return nil, err
		}
	}
	return e, nil
}

// fakeEngine accepts every move not marked illegal and flips to the
// scripted result when a terminal move lands.
type fakeEngine struct {
	script *engineScript
	moves  int
	result engine.Result
}

func (e *fakeEngine) TryMove(uci string) error {
	if e.script.illegal[uci] {
		return engine.ErrIllegalMove
	}
	e.moves++
	if res, ok := e.script.finishOn[uci]; ok {
		e.result = res
	}
	return nil
}

func (e *fakeEngine) FEN() string { return fmt.Sprintf("fen-%d", e.moves) }

func (e *fakeEngine) PieceAt(square string) (engine.Piece, bool) {
	p, ok := e.script.pieces[square]
	return p, ok
}

func (e *fakeEngine) MaterialOf(color models.PlayerColor) engine.Material {
	if e.script.material == nil {
		// Plenty of mating material unless the test says otherwise.
		return engine.Material{Queens: 1, Rooks: 2, Pawns: 8}
	}
	return e.script.material[color]
}

func (e *fakeEngine) Result() engine.Result { return e.result }

func testEnv(now int64) opEnv {
	return scriptedEnv(now, &engineScript{})
}

func scriptedEnv(now int64, s *engineScript) opEnv {
	return opEnv{now: now, settings: DefaultSettings(), engines: s.factory}
}

// lobbyRoom is a full two-player lobby created at t0.
func lobbyRoom() *models.Room {
	return &models.Room{
		RoomID: "r1",
		Phase:  models.PhaseLobby,
		Players: []models.Player{
			{ID: "p1", Name: "Ada", JoinedAt: t0},
			{ID: "p2", Name: "Ben", JoinedAt: t0},
		},
		MaxPlayers:          2,
		MainTimeMs:          300000,
		BidDurationMs:       60000,
		ChoiceDurationMs:    30000,
		Moves:               []models.Move{},
		DisconnectTimeoutMs: 45000,
		CreatedAt:           t0,
		UpdatedAt:           t0,
	}
}

func biddingRoom() *models.Room {
	st := lobbyRoom()
	st.Phase = models.PhaseBidding
	st.Bids = make(map[string]models.Bid)
	st.BidDeadline = models.Ms(t0 + st.BidDurationMs)
	return st
}

// colorPickRoom has p1 as bid winner (30000 vs 45000) and the winner
// on the clock to choose.
func colorPickRoom() *models.Room {
	st := lobbyRoom()
	st.Phase = models.PhaseColorPick
	st.Bids = map[string]models.Bid{
		"p1": {Amount: 30000, SubmittedAt: t0},
		"p2": {Amount: 45000, SubmittedAt: t0},
	}
	st.WinnerID = "p1"
	st.LoserID = "p2"
	st.WinningBidMs = models.Ms(30000)
	st.LosingBidMs = models.Ms(45000)
	st.CurrentPicker = models.PickerWinner
	st.ChoiceDeadline = models.Ms(t0 + st.ChoiceDurationMs)
	return st
}

// playingRoom is the position after p1 chose white: white plays on the
// winning bid, black on the full main time, white to move.
func playingRoom() *models.Room {
	st := colorPickRoom()
	st.Phase = models.PhasePlaying
	st.CurrentPicker = ""
	st.ChoiceDeadline = nil
	st.Colors = map[string]models.PlayerColor{"p1": models.White, "p2": models.Black}
	st.Clocks = &models.Clocks{
		WhiteRemainingMs: 30000,
		BlackRemainingMs: 300000,
		LastTickAt:       t0,
		Turn:             models.White,
	}
	st.DrawOddsSide = "p2"
	st.GameFen = engine.InitialFEN
	return st
}

func finishedRoom() *models.Room {
	st := playingRoom()
	finishGame(st, t0, "p1", models.ResultCheckmate, "", 60000)
	return st
}

func TestJoinFillsLobby(t *testing.T) {
	st := lobbyRoom()
	st.Players = st.Players[:1]
	env := testEnv(t0 + 1000)

	if err := applyJoin(st, env, "p2", "Ben"); err != nil {
		t.Fatalf("join p2: %v", err)
	}
	if len(st.Players) != 2 || st.Players[1].ID != "p2" {
		t.Fatalf("players = %+v, want p1 then p2", st.Players)
	}
	if st.Players[1].JoinedAt != t0+1000 {
		t.Errorf("joinedAt = %d, want %d", st.Players[1].JoinedAt, t0+1000)
	}
	if err := applyJoin(st, env, "p3", "Eve"); err != ErrRoomFull {
		t.Fatalf("join p3 = %v, want %v", err, ErrRoomFull)
	}
}

func TestJoinIsIdempotentForMembers(t *testing.T) {
	// A seated player re-joining (reconnect) succeeds in any phase and
	// leaves the roster unchanged.
	st := playingRoom()
	env := testEnv(t0 + 5000)
	if err := applyJoin(st, env, "p1", "Ada"); err != nil {
		t.Fatalf("rejoin = %v", err)
	}
	if len(st.Players) != 2 {
		t.Fatalf("players = %d, want 2", len(st.Players))
	}
	if st.UpdatedAt != t0+5000 {
		t.Errorf("updatedAt = %d, want refreshed to %d", st.UpdatedAt, t0+5000)
	}
	// A stranger cannot enter outside LOBBY.
	if err := applyJoin(st, env, "p3", "Eve"); err != ErrNotInLobby {
		t.Fatalf("stranger join = %v, want %v", err, ErrNotInLobby)
	}
}

func TestJoinRejectsClosedAndStaleRooms(t *testing.T) {
	st := lobbyRoom()
	closeRoom(st, t0, models.CloseDeclinedRematch)
	if err := applyJoin(st, testEnv(t0+1), "p3", "Eve"); err != ErrRoomClosed {
		t.Fatalf("closed join = %v, want %v", err, ErrRoomClosed)
	}

	st = lobbyRoom()
	env := testEnv(t0 + DefaultSettings().RoomMaxAgeMs + 1)
	if err := applyJoin(st, env, "p3", "Eve"); err != ErrRoomTooOld {
		t.Fatalf("stale join = %v, want %v", err, ErrRoomTooOld)
	}
}

func TestStartBiddingTwoPressFlow(t *testing.T) {
	st := lobbyRoom()

	if err := applyStartBidding(st, testEnv(t0), "p1"); err != nil {
		t.Fatalf("first press: %v", err)
	}
	if st.Phase != models.PhaseLobby {
		t.Fatalf("phase = %s after a single press, want LOBBY", st.Phase)
	}
	if st.StartRequestedBy != "p1" {
		t.Fatalf("startRequestedBy = %q, want p1", st.StartRequestedBy)
	}
	if st.StartConfirmDeadline == nil || *st.StartConfirmDeadline != t0+60000 {
		t.Fatalf("confirm deadline = %v, want %d", st.StartConfirmDeadline, t0+60000)
	}

	if err := applyStartBidding(st, testEnv(t0+1000), "p1"); err != ErrAlreadyRequested {
		t.Fatalf("double press = %v, want %v", err, ErrAlreadyRequested)
	}

	if err := applyStartBidding(st, testEnv(t0+2000), "p2"); err != nil {
		t.Fatalf("second press: %v", err)
	}
	if st.Phase != models.PhaseBidding {
		t.Fatalf("phase = %s, want BIDDING", st.Phase)
	}
	if st.Bids == nil || len(st.Bids) != 0 {
		t.Errorf("bids = %v, want empty map", st.Bids)
	}
	if st.BidDeadline == nil || *st.BidDeadline != t0+2000+60000 {
		t.Errorf("bid deadline = %v, want %d", st.BidDeadline, t0+2000+60000)
	}
	if st.StartRequestedBy != "" || st.StartConfirmDeadline != nil {
		t.Errorf("start request not cleared: %q %v", st.StartRequestedBy, st.StartConfirmDeadline)
	}
}

func TestStartBiddingValidation(t *testing.T) {
	st := lobbyRoom()
	st.Players = st.Players[:1]
	if err := applyStartBidding(st, testEnv(t0), "p1"); err != ErrNeedMorePlayers {
		t.Fatalf("short lobby = %v, want %v", err, ErrNeedMorePlayers)
	}

	st = lobbyRoom()
	if err := applyStartBidding(st, testEnv(t0), "p3"); err != ErrUnknownPlayer {
		t.Fatalf("stranger = %v, want %v", err, ErrUnknownPlayer)
	}

	st = biddingRoom()
	if err := applyStartBidding(st, testEnv(t0), "p1"); err != ErrInvalidPhase {
		t.Fatalf("wrong phase = %v, want %v", err, ErrInvalidPhase)
	}
}

func TestStartBiddingConfirmWindowExpires(t *testing.T) {
	st := lobbyRoom()
	if err := applyStartBidding(st, testEnv(t0), "p1"); err != nil {
		t.Fatalf("first press: %v", err)
	}
	if err := applyStartBidding(st, testEnv(t0+60001), "p2"); err != ErrStartRequestExpired {
		t.Fatalf("late second press = %v, want %v", err, ErrStartRequestExpired)
	}

	// Once the driver has closed the room for an expired request, the
	// same code keeps coming back.
	st = lobbyRoom()
	closeRoom(st, t0, models.CloseStartExpired)
	if err := applyStartBidding(st, testEnv(t0+1), "p1"); err != ErrStartRequestExpired {
		t.Fatalf("press on start-expired room = %v, want %v", err, ErrStartRequestExpired)
	}
}

func TestSubmitBidValidation(t *testing.T) {
	st := lobbyRoom()
	if err := applySubmitBid(st, testEnv(t0), "p1", 1000); err != ErrNotBidding {
		t.Fatalf("lobby bid = %v, want %v", err, ErrNotBidding)
	}

	st = biddingRoom()
	if err := applySubmitBid(st, testEnv(t0), "p3", 1000); err != ErrUnknownPlayer {
		t.Fatalf("stranger bid = %v, want %v", err, ErrUnknownPlayer)
	}
	if err := applySubmitBid(st, testEnv(t0), "p1", -1); err != ErrInvalidBidAmount {
		t.Fatalf("negative bid = %v, want %v", err, ErrInvalidBidAmount)
	}
	if err := applySubmitBid(st, testEnv(t0), "p1", st.MainTimeMs+1); err != ErrInvalidBidAmount {
		t.Fatalf("oversized bid = %v, want %v", err, ErrInvalidBidAmount)
	}
	if err := applySubmitBid(st, testEnv(t0), "p1", 30000); err != nil {
		t.Fatalf("first bid = %v", err)
	}
	if err := applySubmitBid(st, testEnv(t0+1), "p1", 20000); err != ErrAlreadyBid {
		t.Fatalf("second bid = %v, want %v", err, ErrAlreadyBid)
	}
}

func TestSubmitBidDeadline(t *testing.T) {
	// A bid landing exactly on the deadline still counts; one past it
	// does not.
	st := biddingRoom()
	if err := applySubmitBid(st, testEnv(t0+60000), "p1", 30000); err != nil {
		t.Fatalf("bid at deadline = %v, want accepted", err)
	}
	if err := applySubmitBid(st, testEnv(t0+60001), "p2", 45000); err != ErrBiddingClosed {
		t.Fatalf("late bid = %v, want %v", err, ErrBiddingClosed)
	}
}

func TestSubmitBidBounds(t *testing.T) {
	// Zero and the full main time are both valid bids.
	st := biddingRoom()
	if err := applySubmitBid(st, testEnv(t0), "p1", 0); err != nil {
		t.Fatalf("zero bid = %v, want accepted", err)
	}
	if err := applySubmitBid(st, testEnv(t0+1), "p2", st.MainTimeMs); err != nil {
		t.Fatalf("full-time bid = %v, want accepted", err)
	}
	if st.Phase != models.PhaseColorPick {
		t.Fatalf("phase = %s, want COLOR_PICK after both bids", st.Phase)
	}
	if st.WinnerID != "p1" || *st.WinningBidMs != 0 {
		t.Errorf("winner = %s (%v), want p1 with 0", st.WinnerID, st.WinningBidMs)
	}
}

func TestBidResolutionLowerBidWins(t *testing.T) {
	st := biddingRoom()
	if err := applySubmitBid(st, testEnv(t0+1000), "p2", 45000); err != nil {
		t.Fatalf("p2 bid: %v", err)
	}
	if st.Phase != models.PhaseBidding {
		t.Fatalf("resolved with one bid in: phase = %s", st.Phase)
	}
	if err := applySubmitBid(st, testEnv(t0+2000), "p1", 30000); err != nil {
		t.Fatalf("p1 bid: %v", err)
	}

	if st.Phase != models.PhaseColorPick {
		t.Fatalf("phase = %s, want COLOR_PICK", st.Phase)
	}
	if st.WinnerID != "p1" || st.LoserID != "p2" {
		t.Errorf("winner/loser = %s/%s, want p1/p2", st.WinnerID, st.LoserID)
	}
	if *st.WinningBidMs != 30000 || *st.LosingBidMs != 45000 {
		t.Errorf("bids = %d/%d, want 30000/45000", *st.WinningBidMs, *st.LosingBidMs)
	}
	if st.CurrentPicker != models.PickerWinner {
		t.Errorf("picker = %s, want winner", st.CurrentPicker)
	}
	if st.ChoiceDeadline == nil || *st.ChoiceDeadline != t0+2000+30000 {
		t.Errorf("choice deadline = %v, want %d", st.ChoiceDeadline, t0+2000+30000)
	}
	if st.BidDeadline != nil {
		t.Errorf("bid deadline survived resolution")
	}
	if st.ChoiceAttempts != 0 {
		t.Errorf("choiceAttempts = %d, want 0", st.ChoiceAttempts)
	}
}

func TestBidResolutionTieRestartsBidding(t *testing.T) {
	st := biddingRoom()
	if err := applySubmitBid(st, testEnv(t0+1000), "p1", 50000); err != nil {
		t.Fatalf("p1 bid: %v", err)
	}
	if err := applySubmitBid(st, testEnv(t0+2000), "p2", 50000); err != nil {
		t.Fatalf("p2 bid: %v", err)
	}

	if st.Phase != models.PhaseBidding {
		t.Fatalf("phase = %s, want BIDDING after tie", st.Phase)
	}
	if len(st.Bids) != 0 {
		t.Errorf("bids = %v, want cleared", st.Bids)
	}
	if st.BidDeadline == nil || *st.BidDeadline != t0+2000+60000 {
		t.Errorf("bid deadline = %v, want fresh %d", st.BidDeadline, t0+2000+60000)
	}
	if st.WinnerID != "" || st.LoserID != "" {
		t.Errorf("tie produced a winner: %s/%s", st.WinnerID, st.LoserID)
	}
}

func TestChooseColorArmsClocks(t *testing.T) {
	st := colorPickRoom()
	if err := applyChooseColor(st, testEnv(t0+5000), "p1", "white"); err != nil {
		t.Fatalf("choose white: %v", err)
	}

	if st.Phase != models.PhasePlaying {
		t.Fatalf("phase = %s, want PLAYING", st.Phase)
	}
	if st.Colors["p1"] != models.White || st.Colors["p2"] != models.Black {
		t.Fatalf("colors = %v", st.Colors)
	}
	c := st.Clocks
	if c == nil {
		t.Fatal("clocks not armed")
	}
	if c.WhiteRemainingMs != 30000 {
		t.Errorf("white clock = %d, want the winning bid 30000", c.WhiteRemainingMs)
	}
	if c.BlackRemainingMs != 300000 {
		t.Errorf("black clock = %d, want the full main time", c.BlackRemainingMs)
	}
	if c.Turn != models.White {
		t.Errorf("turn = %s, want white to move first", c.Turn)
	}
	if c.LastTickAt != t0+5000 {
		t.Errorf("lastTickAt = %d, want %d", c.LastTickAt, t0+5000)
	}
	if st.DrawOddsSide != "p2" {
		t.Errorf("drawOddsSide = %s, want the black holder p2", st.DrawOddsSide)
	}
	if st.GameFen != engine.InitialFEN {
		t.Errorf("gameFen = %q, want the initial position", st.GameFen)
	}
	if st.ChoiceDeadline != nil {
		t.Errorf("choice deadline survived the pick")
	}
	if len(st.Moves) != 0 {
		t.Errorf("moves = %v, want none", st.Moves)
	}
}

func TestChooseColorBlackKeepsDrawOddsWithPicker(t *testing.T) {
	st := colorPickRoom()
	if err := applyChooseColor(st, testEnv(t0), "p1", "black"); err != nil {
		t.Fatalf("choose black: %v", err)
	}
	c := st.Clocks
	if c.BlackRemainingMs != 30000 || c.WhiteRemainingMs != 300000 {
		t.Errorf("clocks = w%d/b%d, want the bid on the chosen color", c.WhiteRemainingMs, c.BlackRemainingMs)
	}
	if c.Turn != models.White {
		t.Errorf("turn = %s, white moves first regardless of the pick", c.Turn)
	}
	if st.DrawOddsSide != "p1" {
		t.Errorf("drawOddsSide = %s, want p1", st.DrawOddsSide)
	}
}

func TestChooseColorRotatedPicker(t *testing.T) {
	// After a missed deadline the loser picks; the chosen color still
	// carries the winning bid.
	st := colorPickRoom()
	st.CurrentPicker = models.PickerLoser
	if err := applyChooseColor(st, testEnv(t0), "p1", "white"); err != ErrNotAllowedToChoose {
		t.Fatalf("winner pick while rotated = %v, want %v", err, ErrNotAllowedToChoose)
	}
	if err := applyChooseColor(st, testEnv(t0), "p2", "black"); err != nil {
		t.Fatalf("loser pick: %v", err)
	}
	if st.Clocks.BlackRemainingMs != 30000 || st.Clocks.WhiteRemainingMs != 300000 {
		t.Errorf("clocks = w%d/b%d, want winning bid on black", st.Clocks.WhiteRemainingMs, st.Clocks.BlackRemainingMs)
	}
	if st.Colors["p2"] != models.Black || st.Colors["p1"] != models.White {
		t.Errorf("colors = %v", st.Colors)
	}
}

func TestChooseColorValidation(t *testing.T) {
	st := colorPickRoom()
	if err := applyChooseColor(st, testEnv(t0), "p2", "white"); err != ErrNotAllowedToChoose {
		t.Fatalf("loser pick = %v, want %v", err, ErrNotAllowedToChoose)
	}
	if err := applyChooseColor(st, testEnv(t0), "p1", "WHITE"); err != ErrInvalidColor {
		t.Fatalf("bad color = %v, want %v", err, ErrInvalidColor)
	}
	if err := applyChooseColor(st, testEnv(t0+30001), "p1", "white"); err != ErrChoiceDeadlinePassed {
		t.Fatalf("late pick = %v, want %v", err, ErrChoiceDeadlinePassed)
	}
	// Exactly on the deadline is still in time.
	if err := applyChooseColor(st, testEnv(t0+30000), "p1", "white"); err != nil {
		t.Fatalf("pick at deadline = %v, want accepted", err)
	}

	st = playingRoom()
	if err := applyChooseColor(st, testEnv(t0), "p1", "white"); err != ErrNotInColorPick {
		t.Fatalf("pick while playing = %v, want %v", err, ErrNotInColorPick)
	}
}

func TestMakeMoveAdvancesGame(t *testing.T) {
	st := playingRoom()
	env := testEnv(t0 + 5000)

	terminal, err := applyMakeMove(st, env, "p1", "e2e4")
	if err != nil {
		t.Fatalf("move: %v", err)
	}
	if terminal {
		t.Fatal("opening move reported terminal")
	}
	if st.Clocks.WhiteRemainingMs != 25000 {
		t.Errorf("white clock = %d, want 25000 after 5s of thought", st.Clocks.WhiteRemainingMs)
	}
	if st.Clocks.BlackRemainingMs != 300000 {
		t.Errorf("black clock = %d, want untouched", st.Clocks.BlackRemainingMs)
	}
	if st.Clocks.Turn != models.Black {
		t.Errorf("turn = %s, want black", st.Clocks.Turn)
	}
	if st.Clocks.LastTickAt != t0+5000 {
		t.Errorf("lastTickAt = %d, want %d", st.Clocks.LastTickAt, t0+5000)
	}
	if len(st.Moves) != 1 || st.Moves[0].By != "p1" || st.Moves[0].Move != "e2e4" || st.Moves[0].At != t0+5000 {
		t.Errorf("moves = %+v", st.Moves)
	}
	if st.GameFen != "fen-1" {
		t.Errorf("gameFen = %q, want the engine's position", st.GameFen)
	}
}

func TestMakeMoveValidation(t *testing.T) {
	st := lobbyRoom()
	if _, err := applyMakeMove(st, testEnv(t0), "p1", "e2e4"); err != ErrNotPlaying {
		t.Fatalf("lobby move = %v, want %v", err, ErrNotPlaying)
	}

	st = playingRoom()
	if _, err := applyMakeMove(st, testEnv(t0), "p3", "e2e4"); err != ErrUnknownPlayerColor {
		t.Fatalf("stranger move = %v, want %v", err, ErrUnknownPlayerColor)
	}
	if _, err := applyMakeMove(st, testEnv(t0), "p2", "e7e5"); err != ErrNotYourTurn {
		t.Fatalf("out-of-turn move = %v, want %v", err, ErrNotYourTurn)
	}
	for _, bad := range []string{"", "e2", "e2e9", "i2i4", "e2e4x", "e2e4qq"} {
		if _, err := applyMakeMove(st, testEnv(t0), "p1", bad); err != ErrInvalidMoveFormat {
			t.Fatalf("move %q = %v, want %v", bad, err, ErrInvalidMoveFormat)
		}
	}

	script := &engineScript{illegal: map[string]bool{"e2e5": true}}
	if _, err := applyMakeMove(st, scriptedEnv(t0, script), "p1", "e2e5"); err != ErrIllegalMove {
		t.Fatalf("illegal move = %v, want %v", err, ErrIllegalMove)
	}
	if len(st.Moves) != 0 {
		t.Errorf("rejected moves were recorded: %v", st.Moves)
	}
}

func TestMakeMovePromotionLetterRequired(t *testing.T) {
	script := &engineScript{pieces: map[string]engine.Piece{
		"e7": {Color: models.White, Kind: engine.KindPawn, Square: "e7"},
		"a7": {Color: models.White, Kind: engine.KindRook, Square: "a7"},
	}}

	st := playingRoom()
	if _, err := applyMakeMove(st, scriptedEnv(t0, script), "p1", "e7e8"); err != ErrInvalidMoveFormat {
		t.Fatalf("bare promotion = %v, want %v", err, ErrInvalidMoveFormat)
	}
	if _, err := applyMakeMove(st, scriptedEnv(t0, script), "p1", "e7e8q"); err != nil {
		t.Fatalf("promotion with letter = %v", err)
	}

	// Rooks reach the back rank without promoting.
	st = playingRoom()
	if _, err := applyMakeMove(st, scriptedEnv(t0, script), "p1", "a7a8"); err != nil {
		t.Fatalf("rook to back rank = %v", err)
	}

	// Black pawns promote on rank 1.
	script = &engineScript{pieces: map[string]engine.Piece{
		"d2": {Color: models.Black, Kind: engine.KindPawn, Square: "d2"},
	}}
	st = playingRoom()
	st.Clocks.Turn = models.Black
	if _, err := applyMakeMove(st, scriptedEnv(t0, script), "p2", "d2d1"); err != ErrInvalidMoveFormat {
		t.Fatalf("bare black promotion = %v, want %v", err, ErrInvalidMoveFormat)
	}
	if _, err := applyMakeMove(st, scriptedEnv(t0, script), "p2", "d2d1n"); err != nil {
		t.Fatalf("black underpromotion = %v", err)
	}
}

func TestMakeMoveChecksFlagBeforeTheMove(t *testing.T) {
	// The mover's flag fell while they were thinking: the submitted
	// move is never examined and the opponent wins on time.
	st := playingRoom()
	st.Clocks.WhiteRemainingMs = 1000
	script := &engineScript{illegal: map[string]bool{"e2e4": true}}

	terminal, err := applyMakeMove(st, scriptedEnv(t0+1500, script), "p1", "e2e4")
	if err != nil {
		t.Fatalf("flagged move = %v", err)
	}
	if !terminal {
		t.Fatal("flag fall not reported terminal")
	}
	if st.Phase != models.PhaseFinished {
		t.Fatalf("phase = %s, want FINISHED", st.Phase)
	}
	if st.Result != models.ResultTimeForfeit {
		t.Errorf("result = %s, want %s", st.Result, models.ResultTimeForfeit)
	}
	if st.WinnerID != "p2" || st.LoserID != "p1" {
		t.Errorf("winner/loser = %s/%s, want p2/p1", st.WinnerID, st.LoserID)
	}
	if st.Clocks.WhiteRemainingMs != 0 {
		t.Errorf("flagged clock = %d, want clamped to 0", st.Clocks.WhiteRemainingMs)
	}
	if st.Clocks.FrozenAt == nil || *st.Clocks.FrozenAt != t0+1500 {
		t.Errorf("frozenAt = %v, want %d", st.Clocks.FrozenAt, t0+1500)
	}
	if len(st.Moves) != 0 {
		t.Errorf("move recorded after flag fall: %v", st.Moves)
	}
	if st.RematchWindowEnds == nil || *st.RematchWindowEnds != t0+1500+60000 {
		t.Errorf("rematch window = %v, want the standard 60s", st.RematchWindowEnds)
	}
}

func TestFlagFallWithBareMinorIsDraw(t *testing.T) {
	// White flags with 100ms left after 500ms of wall clock; black has
	// king and knight only, which can never mate.
	st := playingRoom()
	st.Clocks.WhiteRemainingMs = 100
	script := &engineScript{material: map[models.PlayerColor]engine.Material{
		models.Black: {Knights: 1},
	}}

	terminal, err := applyMakeMove(st, scriptedEnv(t0+500, script), "p1", "e2e4")
	if err != nil {
		t.Fatalf("flagged move = %v", err)
	}
	if !terminal {
		t.Fatal("flag fall not reported terminal")
	}
	if st.Result != models.ResultDraw {
		t.Errorf("result = %s, want %s", st.Result, models.ResultDraw)
	}
	if st.Reason != models.ReasonTimeoutNoMate {
		t.Errorf("reason = %s, want %s", st.Reason, models.ReasonTimeoutNoMate)
	}
	if st.WinnerID != "" || st.LoserID != "" {
		t.Errorf("draw with a winner: %s/%s", st.WinnerID, st.LoserID)
	}
	if st.RematchWindowEnds == nil || *st.RematchWindowEnds != t0+500+10000 {
		t.Errorf("rematch window = %v, want the short 10s window", st.RematchWindowEnds)
	}
}

func TestFlagFallMaterialRule(t *testing.T) {
	// queens|rooks|pawns or two minors can mate; a bare minor cannot.
	cases := []struct {
		material engine.Material
		canMate  bool
	}{
		{engine.Material{Queens: 1}, true},
		{engine.Material{Rooks: 1}, true},
		{engine.Material{Pawns: 1}, true},
		{engine.Material{Bishops: 1}, false},
		{engine.Material{Knights: 1}, false},
		{engine.Material{Bishops: 1, Knights: 1}, true},
		{engine.Material{Knights: 2}, true},
		{engine.Material{Bishops: 2}, true},
		{engine.Material{}, false},
	}
	for _, tc := range cases {
		st := playingRoom()
		st.Clocks.WhiteRemainingMs = 0
		script := &engineScript{material: map[models.PlayerColor]engine.Material{
			models.Black: tc.material,
		}}
		if err := applyTimeForfeit(st, scriptedEnv(t0+1, script), "p2"); err != nil {
			t.Fatalf("%+v: forfeit = %v", tc.material, err)
		}
		gotWin := st.Result == models.ResultTimeForfeit
		if gotWin != tc.canMate {
			t.Errorf("%+v: result = %s, want canMate=%v", tc.material, st.Result, tc.canMate)
		}
	}
}

func TestTimeForfeitClaims(t *testing.T) {
	st := playingRoom()
	st.Clocks.WhiteRemainingMs = 1000

	// Premature claim is rejected.
	if err := applyTimeForfeit(st.Clone(), testEnv(t0+500), "p2"); err != ErrTimeNotExpired {
		t.Fatalf("early claim = %v, want %v", err, ErrTimeNotExpired)
	}

	// Either player can claim once the elapsed time covers the clock.
	if err := applyTimeForfeit(st, testEnv(t0+1000), "p1"); err != nil {
		t.Fatalf("claim at zero = %v", err)
	}
	if st.Phase != models.PhaseFinished || st.WinnerID != "p2" {
		t.Fatalf("phase/winner = %s/%s, want FINISHED/p2", st.Phase, st.WinnerID)
	}

	st = lobbyRoom()
	if err := applyTimeForfeit(st, testEnv(t0), "p1"); err != ErrNotPlaying {
		t.Fatalf("lobby claim = %v, want %v", err, ErrNotPlaying)
	}
	st = playingRoom()
	if err := applyTimeForfeit(st, testEnv(t0), "p3"); err != ErrUnknownPlayer {
		t.Fatalf("stranger claim = %v, want %v", err, ErrUnknownPlayer)
	}
}

func TestMakeMoveCheckmateFinishes(t *testing.T) {
	st := playingRoom()
	script := &engineScript{finishOn: map[string]engine.Result{
		"d8h4": {Finished: true, Winner: models.White, Reason: models.ResultCheckmate},
	}}

	terminal, err := applyMakeMove(st, scriptedEnv(t0+3000, script), "p1", "d8h4")
	if err != nil {
		t.Fatalf("mating move = %v", err)
	}
	if !terminal {
		t.Fatal("checkmate not reported terminal")
	}
	if st.Result != models.ResultCheckmate {
		t.Errorf("result = %s, want %s", st.Result, models.ResultCheckmate)
	}
	if st.WinnerID != "p1" || st.LoserID != "p2" {
		t.Errorf("winner/loser = %s/%s, want p1/p2", st.WinnerID, st.LoserID)
	}
	if st.RematchWindowEnds == nil || *st.RematchWindowEnds != t0+3000+60000 {
		t.Errorf("rematch window = %v, want 60s", st.RematchWindowEnds)
	}
	if st.RematchVotes == nil || len(st.RematchVotes) != 0 {
		t.Errorf("rematchVotes = %v, want empty map", st.RematchVotes)
	}
	if st.Clocks.FrozenAt == nil {
		t.Errorf("clocks not frozen at the terminal transition")
	}
	if len(st.Moves) != 1 {
		t.Errorf("moves = %d, want the mating move recorded", len(st.Moves))
	}
}

func TestMakeMoveStalemateIsDraw(t *testing.T) {
	st := playingRoom()
	script := &engineScript{finishOn: map[string]engine.Result{
		"c8e6": {Finished: true, Reason: models.ReasonStalemate},
	}}

	terminal, err := applyMakeMove(st, scriptedEnv(t0+1000, script), "p1", "c8e6")
	if err != nil || !terminal {
		t.Fatalf("stalemating move = %v terminal=%v", err, terminal)
	}
	if st.Result != models.ResultDraw || st.Reason != models.ReasonStalemate {
		t.Errorf("result/reason = %s/%s, want draw/stalemate", st.Result, st.Reason)
	}
	if st.WinnerID != "" {
		t.Errorf("draw with winner %s", st.WinnerID)
	}
}

func TestMakeMoveClearsDisconnectMark(t *testing.T) {
	st := playingRoom()
	st.DisconnectedPlayerID = "p1"
	st.DisconnectStart = models.Ms(t0)

	if _, err := applyMakeMove(st, testEnv(t0+1000), "p1", "e2e4"); err != nil {
		t.Fatalf("move = %v", err)
	}
	if st.DisconnectedPlayerID != "" || st.DisconnectStart != nil {
		t.Errorf("disconnect mark survived the move: %q %v", st.DisconnectedPlayerID, st.DisconnectStart)
	}
}

func TestMakeMoveEngineFailureIsInternal(t *testing.T) {
	st := playingRoom()
	script := &engineScript{failBuild: true}
	if _, err := applyMakeMove(st, scriptedEnv(t0, script), "p1", "e2e4"); err != ErrInternal {
		t.Fatalf("engine failure = %v, want %v", err, ErrInternal)
	}
}

func TestRematchUnanimousYesResets(t *testing.T) {
	st := finishedRoom()
	st.Moves = []models.Move{{By: "p1", Move: "e2e4", At: t0}}

	requeue, err := applyRematch(st, testEnv(t0+1000), "p1", true)
	if err != nil || requeue != nil {
		t.Fatalf("first vote = %v (requeue %v)", err, requeue)
	}
	if st.Phase != models.PhaseFinished {
		t.Fatalf("phase = %s after one vote, want FINISHED", st.Phase)
	}
	if !st.RematchVotes["p1"] {
		t.Fatalf("vote not recorded: %v", st.RematchVotes)
	}

	requeue, err = applyRematch(st, testEnv(t0+2000), "p2", true)
	if err != nil || requeue != nil {
		t.Fatalf("second vote = %v (requeue %v)", err, requeue)
	}
	if st.Phase != models.PhaseLobby {
		t.Fatalf("phase = %s, want LOBBY after unanimous yes", st.Phase)
	}

	// Round-scoped state is gone; the table stays set.
	if st.Bids != nil || st.Clocks != nil || st.Moves != nil || st.Colors != nil {
		t.Errorf("round state survived reset: bids=%v clocks=%v moves=%v colors=%v",
			st.Bids, st.Clocks, st.Moves, st.Colors)
	}
	if st.WinnerID != "" || st.LoserID != "" || st.GameFen != "" || st.Result != "" || st.Reason != "" {
		t.Errorf("outcome survived reset")
	}
	if st.RematchWindowEnds != nil || st.RematchVotes != nil {
		t.Errorf("rematch state survived reset")
	}
	if len(st.Players) != 2 || st.MainTimeMs != 300000 || st.BidDurationMs != 60000 {
		t.Errorf("players or settings lost in reset: %+v", st)
	}
	if st.Closed {
		t.Errorf("reset room is closed")
	}
}

func TestRematchDeclineClosesAndRequeuesYesVoters(t *testing.T) {
	st := finishedRoom()

	if _, err := applyRematch(st, testEnv(t0+1000), "p1", true); err != nil {
		t.Fatalf("yes vote = %v", err)
	}
	requeue, err := applyRematch(st, testEnv(t0+2000), "p2", false)
	if err != nil {
		t.Fatalf("no vote = %v", err)
	}

	if !st.Closed || st.CloseReason != models.CloseDeclinedRematch {
		t.Fatalf("closed/reason = %v/%s, want declined_rematch", st.Closed, st.CloseReason)
	}
	if len(requeue) != 1 || requeue[0].ID != "p1" {
		t.Fatalf("requeue = %+v, want just p1", requeue)
	}
	if st.Phase != models.PhaseFinished {
		t.Errorf("phase = %s, decline does not rewind the result", st.Phase)
	}
}

func TestRematchDeclineWithNoYesVotersRequeuesNobody(t *testing.T) {
	st := finishedRoom()
	requeue, err := applyRematch(st, testEnv(t0+1000), "p2", false)
	if err != nil {
		t.Fatalf("no vote = %v", err)
	}
	if len(requeue) != 0 {
		t.Fatalf("requeue = %+v, want empty", requeue)
	}
}

func TestRematchValidation(t *testing.T) {
	st := playingRoom()
	if _, err := applyRematch(st, testEnv(t0), "p1", true); err != ErrNotFinished {
		t.Fatalf("mid-game vote = %v, want %v", err, ErrNotFinished)
	}

	st = finishedRoom()
	if _, err := applyRematch(st, testEnv(t0+60001), "p1", true); err != ErrRematchWindowClosed {
		t.Fatalf("late vote = %v, want %v", err, ErrRematchWindowClosed)
	}
	// Exactly at the window end still counts.
	if _, err := applyRematch(st.Clone(), testEnv(t0+60000), "p1", true); err != nil {
		t.Fatalf("vote at window end = %v, want accepted", err)
	}

	if _, err := applyRematch(st, testEnv(t0), "p3", true); err != ErrUnknownPlayer {
		t.Fatalf("stranger vote = %v, want %v", err, ErrUnknownPlayer)
	}

	// Votes are irreversible: the second submission bounces and the
	// recorded vote keeps its value.
	if _, err := applyRematch(st, testEnv(t0+1000), "p1", true); err != nil {
		t.Fatalf("vote = %v", err)
	}
	if _, err := applyRematch(st, testEnv(t0+2000), "p1", false); err != ErrAlreadyVoted {
		t.Fatalf("revote = %v, want %v", err, ErrAlreadyVoted)
	}
	if !st.RematchVotes["p1"] {
		t.Errorf("revote flipped the recorded vote")
	}

	closeRoom(st, t0+3000, models.CloseDeclinedRematch)
	if _, err := applyRematch(st, testEnv(t0+4000), "p2", true); err != ErrRematchWindowClosed {
		t.Fatalf("vote on closed room = %v, want %v", err, ErrRematchWindowClosed)
	}
}

func TestLeaveRemovesPlayerAndStagedStart(t *testing.T) {
	st := lobbyRoom()
	if err := applyStartBidding(st, testEnv(t0), "p1"); err != nil {
		t.Fatalf("stage start: %v", err)
	}
	if err := applyLeave(st, testEnv(t0+1000), "p1"); err != nil {
		t.Fatalf("leave: %v", err)
	}
	if len(st.Players) != 1 || st.Players[0].ID != "p2" {
		t.Fatalf("players = %+v, want only p2", st.Players)
	}
	if st.StartRequestedBy != "" || st.StartConfirmDeadline != nil {
		t.Errorf("leaver's start request survived")
	}

	// Leaving twice is harmless.
	if err := applyLeave(st, testEnv(t0+2000), "p1"); err != nil {
		t.Fatalf("repeat leave: %v", err)
	}
	if len(st.Players) != 1 {
		t.Fatalf("players = %d, want 1", len(st.Players))
	}
}

func TestHeartbeatRefreshesMembersOnly(t *testing.T) {
	st := lobbyRoom()
	if err := applyHeartbeat(st, testEnv(t0+5000), "p1"); err != nil {
		t.Fatalf("member heartbeat = %v", err)
	}
	if st.UpdatedAt != t0+5000 {
		t.Errorf("updatedAt = %d, want refreshed", st.UpdatedAt)
	}

	// A stranger's heartbeat is a silent no-op.
	if err := applyHeartbeat(st, testEnv(t0+9000), "p3"); err != nil {
		t.Fatalf("stranger heartbeat = %v, want nil", err)
	}
	if st.UpdatedAt != t0+5000 {
		t.Errorf("stranger heartbeat refreshed the room")
	}
}

func TestChargeElapsedClampsClockSkew(t *testing.T) {
	st := playingRoom()
	// now earlier than lastTickAt: charge nothing rather than credit.
	if got := chargeElapsed(st, t0-500); got != 30000 {
		t.Errorf("remaining = %d, want 30000 with skewed clock", got)
	}
	if st.Clocks.LastTickAt != t0-500 {
		t.Errorf("lastTickAt = %d, want restamped", st.Clocks.LastTickAt)
	}
}
