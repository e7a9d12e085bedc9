package room

import (
	"testing"

	"github.com/bena618/Armageddon-Chess-Backend/internal/models"
)

func TestSortBidsTotalOrder(t *testing.T) {
	rows := []bidRow{
		{PlayerID: "d", Bid: models.Bid{Amount: 500, SubmittedAt: t0 + 5}},
		{PlayerID: "b", Bid: models.Bid{Amount: 100, SubmittedAt: t0 + 2}},
		{PlayerID: "a", Bid: models.Bid{Amount: 100, SubmittedAt: t0 + 2}},
		{PlayerID: "c", Bid: models.Bid{Amount: 100, SubmittedAt: t0 + 1}},
	}
	sortBids(rows)

	want := []string{"c", "a", "b", "d"}
	for i, id := range want {
		if rows[i].PlayerID != id {
			t.Fatalf("rows[%d] = %s, want %s (full order %v)", i, rows[i].PlayerID, id, rows)
		}
	}
}

func TestResolveBidsWaitsForSecondBid(t *testing.T) {
	st := biddingRoom()
	st.Bids["p1"] = models.Bid{Amount: 30000, SubmittedAt: t0 + 1000}

	resolveBids(st, t0+2000)
	if st.Phase != models.PhaseBidding {
		t.Fatalf("phase = %s, resolution ran with a bid outstanding", st.Phase)
	}
	if len(st.Bids) != 1 {
		t.Fatalf("bids = %v, want p1's bid only", st.Bids)
	}
}

func TestResolveBidsIgnoresWrongPhase(t *testing.T) {
	st := colorPickRoom()
	before := st.Clone()
	resolveBids(st, t0+90000)
	if st.Phase != before.Phase || st.WinnerID != before.WinnerID {
		t.Fatalf("resolution touched a %s room", before.Phase)
	}
}

func TestResolveBidsNeedsTwoPlayers(t *testing.T) {
	st := biddingRoom()
	st.Players = st.Players[:1]
	st.Bids["p1"] = models.Bid{Amount: 30000, SubmittedAt: t0}

	resolveBids(st, t0+60001)
	if st.Phase != models.PhaseBidding {
		t.Fatalf("phase = %s, resolved a half-empty room", st.Phase)
	}
}
