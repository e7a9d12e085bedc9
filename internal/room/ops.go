package room

import (
	"regexp"

	"github.com/bena618/Armageddon-Chess-Backend/internal/engine"
	"github.com/bena618/Armageddon-Chess-Backend/internal/models"
)

// moveRe accepts UCI coordinate moves with an optional promotion
// letter: "e2e4", "e7e8q".
var moveRe = regexp.MustCompile(`^[a-h][1-8][a-h][1-8][qrbn]?$`)

// opEnv carries everything an operation needs beyond the state itself.
// now is read exactly once per operation, at dispatch.
type opEnv struct {
	now      int64
	settings Settings
	engines  EngineFactory
}

// applyJoin adds a player to the lobby. Re-joins by a known player are
// idempotent in any phase so reconnecting clients get the live state.
func applyJoin(st *models.Room, env opEnv, playerID, name string) error {
	if st.Closed {
		return ErrRoomClosed
	}
	if env.now-st.UpdatedAt > env.settings.RoomMaxAgeMs {
		return ErrRoomTooOld
	}
	if st.HasPlayer(playerID) {
		st.UpdatedAt = env.now
		return nil
	}
	if st.Phase != models.PhaseLobby {
		return ErrNotInLobby
	}
	if st.IsFull() {
		return ErrRoomFull
	}
	st.Players = append(st.Players, models.Player{ID: playerID, Name: name, JoinedAt: env.now})
	st.UpdatedAt = env.now
	return nil
}

// applyStartBidding implements the two-press start: the first press
// stages a request, a second press by the other player within the
// confirmation window opens bidding.
func applyStartBidding(st *models.Room, env opEnv, playerID string) error {
	if st.Closed {
		if st.CloseReason == models.CloseStartExpired {
			return ErrStartRequestExpired
		}
		return ErrRoomClosed
	}
	if st.Phase != models.PhaseLobby {
		return ErrInvalidPhase
	}
	if !st.IsFull() {
		return ErrNeedMorePlayers
	}
	if !st.HasPlayer(playerID) {
		return ErrUnknownPlayer
	}

	if st.StartRequestedBy == "" {
		st.StartRequestedBy = playerID
		st.StartConfirmDeadline = models.Ms(env.now + env.settings.StartConfirmMs)
		st.UpdatedAt = env.now
		return nil
	}
	if st.StartConfirmDeadline != nil && env.now > *st.StartConfirmDeadline {
		return ErrStartRequestExpired
	}
	if st.StartRequestedBy == playerID {
		return ErrAlreadyRequested
	}

	st.Phase = models.PhaseBidding
	st.Bids = make(map[string]models.Bid)
	st.BidDeadline = models.Ms(env.now + st.BidDurationMs)
	st.StartRequestedBy = ""
	st.StartConfirmDeadline = nil
	st.UpdatedAt = env.now
	return nil
}

func applySubmitBid(st *models.Room, env opEnv, playerID string, amountMs int64) error {
	if st.Phase != models.PhaseBidding {
		return ErrNotBidding
	}
	if !st.HasPlayer(playerID) {
		return ErrUnknownPlayer
	}
	if amountMs < 0 || amountMs > st.MainTimeMs {
		return ErrInvalidBidAmount
	}
	if _, dup := st.Bids[playerID]; dup {
		return ErrAlreadyBid
	}
	if st.BidDeadline != nil && env.now > *st.BidDeadline {
		return ErrBiddingClosed
	}
	st.Bids[playerID] = models.Bid{Amount: amountMs, SubmittedAt: env.now}
	st.UpdatedAt = env.now
	resolveBids(st, env.now)
	return nil
}

// pickerID returns the player currently entitled to choose a color.
func pickerID(st *models.Room) string {
	if st.CurrentPicker == models.PickerLoser {
		return st.LoserID
	}
	return st.WinnerID
}

func applyChooseColor(st *models.Room, env opEnv, playerID, color string) error {
	if st.Phase != models.PhaseColorPick {
		return ErrNotInColorPick
	}
	if playerID != pickerID(st) {
		return ErrNotAllowedToChoose
	}
	chosen := models.PlayerColor(color)
	if chosen != models.White && chosen != models.Black {
		return ErrInvalidColor
	}
	if st.ChoiceDeadline != nil && env.now > *st.ChoiceDeadline {
		return ErrChoiceDeadlinePassed
	}

	other := st.OpponentOf(playerID)
	st.Colors = map[string]models.PlayerColor{
		playerID: chosen,
		other:    chosen.Other(),
	}
	initClocks(st, chosen, env.now)
	st.Phase = models.PhasePlaying
	st.GameFen = engine.InitialFEN
	st.Moves = []models.Move{}
	st.ChoiceDeadline = nil
	st.UpdatedAt = env.now
	return nil
}

// applyMakeMove validates and plays one half-move. Clock accounting
// runs first: if the mover's flag already fell, the round resolves by
// time instead and the submitted move is never examined. Returns true
// when the room reached FINISHED.
func applyMakeMove(st *models.Room, env opEnv, playerID, mv string) (bool, error) {
	if st.Phase != models.PhasePlaying {
		return false, ErrNotPlaying
	}
	color, ok := st.ColorOf(playerID)
	if !ok {
		return false, ErrUnknownPlayerColor
	}
	if color != st.Clocks.Turn {
		return false, ErrNotYourTurn
	}

	if remaining := chargeElapsed(st, env.now); remaining <= 0 {
		if err := flagFall(st, env); err != nil {
			return false, err
		}
		return true, nil
	}

	if !moveRe.MatchString(mv) {
		return false, ErrInvalidMoveFormat
	}
	eng, err := env.engines(uciMoves(st))
	if err != nil {
		return false, ErrInternal
	}
	if p, occupied := eng.PieceAt(mv[:2]); occupied && p.Kind == engine.KindPawn {
		promoRank := byte('8')
		if p.Color == models.Black {
			promoRank = '1'
		}
		if mv[3] == promoRank && len(mv) == 4 {
			return false, ErrInvalidMoveFormat
		}
	}
	if err := eng.TryMove(mv); err != nil {
		return false, ErrIllegalMove
	}

	st.GameFen = eng.FEN()
	st.Moves = append(st.Moves, models.Move{By: playerID, Move: mv, At: env.now})
	st.Clocks.Turn = color.Other()
	if st.DisconnectedPlayerID == playerID {
		st.DisconnectedPlayerID = ""
		st.DisconnectStart = nil
	}
	st.UpdatedAt = env.now

	if res := eng.Result(); res.Finished {
		if res.Winner != "" {
			finishGame(st, env.now, st.PlayerWithColor(res.Winner), models.ResultCheckmate, "", env.settings.RematchWindowMs)
		} else {
			finishGame(st, env.now, "", models.ResultDraw, res.Reason, env.settings.RematchWindowMs)
		}
		return true, nil
	}
	return false, nil
}

// applyTimeForfeit lets either player claim a flag fall without moving.
// The claim is checked against real elapsed time; a premature claim is
// rejected without touching the clocks.
func applyTimeForfeit(st *models.Room, env opEnv, playerID string) error {
	if st.Phase != models.PhasePlaying {
		return ErrNotPlaying
	}
	if !st.HasPlayer(playerID) {
		return ErrUnknownPlayer
	}
	if remaining := chargeElapsed(st, env.now); remaining > 0 {
		return ErrTimeNotExpired
	}
	return flagFall(st, env)
}

// flagFall resolves a fallen flag. The opponent wins on time if their
// remaining material can ever mate; otherwise the round is a draw and
// only the short rematch window opens.
func flagFall(st *models.Room, env opEnv) error {
	c := st.Clocks
	flagged := c.Turn
	if c.Remaining(flagged) < 0 {
		c.SetRemaining(flagged, 0)
	}
	eng, err := env.engines(uciMoves(st))
	if err != nil {
		return ErrInternal
	}
	opponent := flagged.Other()
	if eng.MaterialOf(opponent).CanForceMate() {
		finishGame(st, env.now, st.PlayerWithColor(opponent), models.ResultTimeForfeit, "", env.settings.RematchWindowMs)
	} else {
		finishGame(st, env.now, "", models.ResultDraw, models.ReasonTimeoutNoMate, env.settings.RematchWindowShortMs)
	}
	return nil
}

// applyRematch records one player's vote. Votes are irreversible. A
// single decline closes the room immediately; unanimous agreement
// resets it to a fresh lobby with the same players and settings.
// Returns the players to put back into matchmaking, if any.
func applyRematch(st *models.Room, env opEnv, playerID string, agree bool) ([]models.Player, error) {
	if st.Phase != models.PhaseFinished {
		return nil, ErrNotFinished
	}
	if st.Closed {
		return nil, ErrRematchWindowClosed
	}
	if st.RematchWindowEnds == nil || env.now > *st.RematchWindowEnds {
		return nil, ErrRematchWindowClosed
	}
	if !st.HasPlayer(playerID) {
		return nil, ErrUnknownPlayer
	}
	if _, voted := st.RematchVotes[playerID]; voted {
		return nil, ErrAlreadyVoted
	}

	if st.RematchVotes == nil {
		st.RematchVotes = make(map[string]bool)
	}
	st.RematchVotes[playerID] = agree
	st.UpdatedAt = env.now

	if !agree {
		requeue := yesVoters(st)
		closeRoom(st, env.now, models.CloseDeclinedRematch)
		return requeue, nil
	}
	if len(st.RematchVotes) == len(st.Players) {
		resetForRematch(st, env.now)
	}
	return nil, nil
}

func applyLeave(st *models.Room, env opEnv, playerID string) error {
	for i := range st.Players {
		if st.Players[i].ID == playerID {
			st.Players = append(st.Players[:i], st.Players[i+1:]...)
			break
		}
	}
	if st.StartRequestedBy == playerID {
		st.StartRequestedBy = ""
		st.StartConfirmDeadline = nil
	}
	st.UpdatedAt = env.now
	return nil
}

// applyHeartbeat refreshes the room's liveness. Only members keep a
// room alive; a stranger's heartbeat is a silent no-op rather than an
// error, since heartbeats have no failure modes.
func applyHeartbeat(st *models.Room, env opEnv, playerID string) error {
	if st.HasPlayer(playerID) {
		st.UpdatedAt = env.now
	}
	return nil
}

// yesVoters lists players whose recorded vote is an agreement.
func yesVoters(st *models.Room) []models.Player {
	var out []models.Player
	for _, p := range st.Players {
		if st.RematchVotes[p.ID] {
			out = append(out, p)
		}
	}
	return out
}

func closeRoom(st *models.Room, now int64, reason string) {
	st.Closed = true
	st.CloseReason = reason
	st.ClosedAt = models.Ms(now)
	st.UpdatedAt = now
}

// resetForRematch clears all round-scoped state and returns the room
// to a joinable lobby. Players, time control and durations survive.
func resetForRematch(st *models.Room, now int64) {
	st.Phase = models.PhaseLobby
	st.Bids = nil
	st.BidDeadline = nil
	st.StartRequestedBy = ""
	st.StartConfirmDeadline = nil
	st.WinnerID = ""
	st.LoserID = ""
	st.WinningBidMs = nil
	st.LosingBidMs = nil
	st.CurrentPicker = ""
	st.ChoiceDeadline = nil
	st.ChoiceAttempts = 0
	st.Colors = nil
	st.DrawOddsSide = ""
	st.Clocks = nil
	st.Moves = nil
	st.GameFen = ""
	st.Result = ""
	st.Reason = ""
	st.RematchWindowEnds = nil
	st.RematchVotes = nil
	st.DisconnectedPlayerID = ""
	st.DisconnectStart = nil
	st.UpdatedAt = now
}

func uciMoves(st *models.Room) []string {
	moves := make([]string, len(st.Moves))
	for i, m := range st.Moves {
		moves[i] = m.Move
	}
	return moves
}
