package room

import "github.com/bena618/Armageddon-Chess-Backend/internal/models"

// initClocks arms the clocks when the picker commits to a color. The
// chosen color starts with the winning bid on the clock, the other
// color with the full main time. White always moves first, and the
// black side holds draw odds.
func initClocks(st *models.Room, chosen models.PlayerColor, now int64) {
	winnerMs := st.MainTimeMs
	if st.WinningBidMs != nil {
		winnerMs = *st.WinningBidMs
	}
	clocks := &models.Clocks{
		LastTickAt: now,
		Turn:       models.White,
	}
	clocks.SetRemaining(chosen, winnerMs)
	clocks.SetRemaining(chosen.Other(), st.MainTimeMs)
	st.Clocks = clocks
	st.DrawOddsSide = st.PlayerWithColor(models.Black)
}

// chargeElapsed deducts wall time since lastTickAt from the side to
// move and restarts the tick. Returns that side's remaining time,
// which is negative or zero once the flag has fallen.
func chargeElapsed(st *models.Room, now int64) int64 {
	c := st.Clocks
	elapsed := now - c.LastTickAt
	if elapsed < 0 {
		elapsed = 0
	}
	remaining := c.Remaining(c.Turn) - elapsed
	c.SetRemaining(c.Turn, remaining)
	c.LastTickAt = now
	return remaining
}

// finishGame moves the room to FINISHED, records the outcome and opens
// the rematch window. winnerID is empty for draws. Clocks freeze at
// the moment of the terminal transition.
func finishGame(st *models.Room, now int64, winnerID, result, reason string, windowMs int64) {
	st.Phase = models.PhaseFinished
	st.WinnerID = winnerID
	if winnerID == "" {
		st.LoserID = ""
	} else {
		st.LoserID = st.OpponentOf(winnerID)
	}
	st.Result = result
	st.Reason = reason
	st.RematchWindowEnds = models.Ms(now + windowMs)
	st.RematchVotes = make(map[string]bool)
	if st.Clocks != nil && st.Clocks.FrozenAt == nil {
		st.Clocks.FrozenAt = models.Ms(now)
	}
	st.UpdatedAt = now
}
