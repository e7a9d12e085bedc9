package room

import (
	"sort"

	"github.com/bena618/Armageddon-Chess-Backend/internal/models"
)

type bidRow struct {
	PlayerID string
	models.Bid
}

// sortBids orders bids by amount, then submission time, then player
// id. The ordering is total, so resolution is deterministic.
func sortBids(rows []bidRow) {
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Amount != rows[j].Amount {
			return rows[i].Amount < rows[j].Amount
		}
		if rows[i].SubmittedAt != rows[j].SubmittedAt {
			return rows[i].SubmittedAt < rows[j].SubmittedAt
		}
		return rows[i].PlayerID < rows[j].PlayerID
	})
}

// resolveBids settles the bidding round once both bids are in, or once
// the deadline has passed. A player who never bid is assigned the
// maximum bid (the full main time). The lower bid wins color choice;
// equal bids void the round and restart bidding with a fresh deadline.
func resolveBids(st *models.Room, now int64) {
	if st.Phase != models.PhaseBidding || len(st.Players) < 2 {
		return
	}
	deadlinePassed := st.BidDeadline != nil && now > *st.BidDeadline
	if len(st.Bids) < len(st.Players) && !deadlinePassed {
		return
	}

	rows := make([]bidRow, 0, len(st.Players))
	for _, p := range st.Players {
		bid, ok := st.Bids[p.ID]
		if !ok {
			bid = models.Bid{Amount: st.MainTimeMs, SubmittedAt: now}
			st.Bids[p.ID] = bid
		}
		rows = append(rows, bidRow{PlayerID: p.ID, Bid: bid})
	}
	sortBids(rows)

	if rows[0].Amount == rows[1].Amount {
		st.Bids = make(map[string]models.Bid)
		st.BidDeadline = models.Ms(now + st.BidDurationMs)
		st.UpdatedAt = now
		return
	}

	winner, loser := rows[0], rows[1]
	st.WinnerID = winner.PlayerID
	st.LoserID = loser.PlayerID
	st.WinningBidMs = models.Ms(winner.Amount)
	st.LosingBidMs = models.Ms(loser.Amount)
	st.Phase = models.PhaseColorPick
	st.CurrentPicker = models.PickerWinner
	st.ChoiceDeadline = models.Ms(now + st.ChoiceDurationMs)
	st.ChoiceAttempts = 0
	st.BidDeadline = nil
	st.UpdatedAt = now
}
