package room

import "net/http"

// OpError is a rejected operation. Code goes on the wire in the error
// field; Status is the HTTP status the handlers map it to.
type OpError struct {
	Code   string
	Status int
}

func (e *OpError) Error() string {
	return e.Code
}

func badRequest(code string) *OpError {
	return &OpError{Code: code, Status: http.StatusBadRequest}
}

func gone(code string) *OpError {
	return &OpError{Code: code, Status: http.StatusGone}
}

var (
	// Lifecycle.
	ErrAlreadyInitialized = badRequest("already_initialized")
	ErrRoomTooOld         = gone("room_too_old")
	ErrRoomClosed         = gone("room_closed")
	ErrRoomExpired        = gone("room_expired")

	// Membership.
	ErrNotInLobby        = badRequest("not_in_lobby")
	ErrRoomFull          = badRequest("room_full")
	ErrUnknownPlayer     = badRequest("unknown_player")
	ErrPlayerRequired    = badRequest("playerId_required")
	ErrBidFieldsRequired = badRequest("playerId_and_amount_required")

	// Start confirmation.
	ErrInvalidPhase        = badRequest("invalid_phase")
	ErrNeedMorePlayers     = badRequest("need_more_players")
	ErrAlreadyRequested    = badRequest("already_requested")
	ErrStartRequestExpired = badRequest("start_request_expired")

	// Bidding.
	ErrNotBidding       = badRequest("not_bidding")
	ErrInvalidBidAmount = badRequest("invalid_bid_amount")
	ErrAlreadyBid       = badRequest("already_bid")
	ErrBiddingClosed    = badRequest("bidding_closed")

	// Color pick.
	ErrNotInColorPick       = badRequest("not_in_color_pick")
	ErrNotAllowedToChoose   = badRequest("not_allowed_to_choose")
	ErrInvalidColor         = badRequest("invalid_color")
	ErrChoiceDeadlinePassed = badRequest("choice_deadline_passed")

	// Play.
	ErrNotPlaying         = badRequest("not_playing")
	ErrUnknownPlayerColor = badRequest("unknown_player_color")
	ErrNotYourTurn        = badRequest("not_your_turn")
	ErrInvalidMoveFormat  = badRequest("invalid_move_format")
	ErrIllegalMove        = badRequest("illegal_move")
	ErrTimeNotExpired     = badRequest("time_not_expired")

	// Rematch.
	ErrNotFinished         = badRequest("not_finished")
	ErrRematchWindowClosed = badRequest("rematch_window_closed")
	ErrAlreadyVoted        = badRequest("already_voted")

	// Infrastructure.
	ErrStorage  = &OpError{Code: "storage_error", Status: http.StatusInternalServerError}
	ErrInternal = &OpError{Code: "internal_error", Status: http.StatusInternalServerError}
)
