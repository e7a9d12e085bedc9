package matchmaking

import (
	"context"
	"log"
	"strconv"

	"github.com/bena618/Armageddon-Chess-Backend/internal/models"
)

// Estimate is the per-time-control answer on /queue/status. Estimate is
// one of match_now (someone is already waiting), none (no queue and no
// games to project from) or wait (EstimatedWaitMs until the next seat
// frees up).
type Estimate struct {
	QueueLength     int    `json:"queueLength"`
	ActiveGames     int    `json:"activeGames"`
	Estimate        string `json:"estimate"`
	EstimatedWaitMs *int64 `json:"estimatedWaitMs,omitempty"`
}

const (
	EstimateMatchNow = "match_now"
	EstimateNone     = "none"
	EstimateWait     = "wait"
)

// waitAnchor pins the displayed ETA to one specific game. Snapshots
// arrive continuously; without the anchor the estimate would jump
// around every time a different game briefly had the lowest clock.
type waitAnchor struct {
	GameID     string `json:"gameId" bson:"gameId"`
	StartTime  int64  `json:"startTime" bson:"startTime"`
	DurationMs int64  `json:"durationMs" bson:"durationMs"`
}

// estimates computes the wait picture for every configured time
// control. Runs on the actor goroutine; anchor writes are best-effort.
func (ix *Index) estimates(now int64) map[string]Estimate {
	out := make(map[string]Estimate, len(ix.cfg.TimeControls))
	for _, tc := range ix.cfg.TimeControls {
		out[strconv.FormatInt(tc, 10)] = ix.estimateFor(tc, now)
	}
	return out
}

func (ix *Index) estimateFor(tc, now int64) Estimate {
	est := Estimate{QueueLength: len(ix.queues[tc])}

	games := ix.activeGames(tc)
	est.ActiveGames = len(games)

	if est.QueueLength >= 1 {
		est.Estimate = EstimateMatchNow
		return est
	}
	if len(games) == 0 {
		est.Estimate = EstimateNone
		return est
	}

	est.Estimate = EstimateWait
	waitMs := ix.anchoredWait(tc, games, now)
	est.EstimatedWaitMs = &waitMs
	return est
}

// activeGames lists the directory rooms a new pairing would have to
// wait behind: two seated players, clocks running, same time control.
func (ix *Index) activeGames(tc int64) []models.IndexEntry {
	var games []models.IndexEntry
	for _, e := range ix.directory {
		if e.Phase != models.PhasePlaying || e.Closed {
			continue
		}
		if e.MainTimeMs != tc || len(e.Players) != 2 {
			continue
		}
		games = append(games, e)
	}
	return games
}

// anchoredWait projects the anchored game forward, or re-anchors on
// the game that will finish soonest when the old anchor is gone or
// already projected to zero.
func (ix *Index) anchoredWait(tc int64, games []models.IndexEntry, now int64) int64 {
	if a := ix.anchors[tc]; a != nil {
		for _, g := range games {
			if g.RoomID != a.GameID {
				continue
			}
			remaining := a.StartTime + a.DurationMs - now
			if remaining > 0 {
				return remaining
			}
			break
		}
	}

	gameID, minRemaining := soonestFinish(games, tc, now)
	anchor := &waitAnchor{GameID: gameID, StartTime: now, DurationMs: minRemaining}
	ix.anchors[tc] = anchor
	ix.putAnchor(tc, anchor)
	return minRemaining
}

// soonestFinish picks the game with the lowest projected clock. A game
// ends by time no later than its lower clock runs out, so the lowest
// clock anywhere bounds the wait. Entries without a clocks snapshot
// fall back to half the time control.
func soonestFinish(games []models.IndexEntry, tc, now int64) (string, int64) {
	gameID := ""
	var min int64 = -1
	for _, g := range games {
		remaining := projectedRemaining(g, tc, now)
		if min < 0 || remaining < min || (remaining == min && g.RoomID < gameID) {
			min = remaining
			gameID = g.RoomID
		}
	}
	if min < 0 {
		min = tc / 2
	}
	return gameID, min
}

// projectedRemaining is the lower of the two clocks, with the running
// side charged for the time since its snapshot was taken.
func projectedRemaining(g models.IndexEntry, tc, now int64) int64 {
	c := g.Clocks
	if c == nil {
		return tc / 2
	}
	turnMs := c.Remaining(c.Turn)
	if c.FrozenAt == nil {
		turnMs -= now - c.LastTickAt
	}
	otherMs := c.Remaining(c.Turn.Other())
	remaining := turnMs
	if otherMs < remaining {
		remaining = otherMs
	}
	if remaining < 0 {
		remaining = 0
	}
	return remaining
}

func (ix *Index) putAnchor(tc int64, a *waitAnchor) {
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	if err := ix.store.Put(ctx, anchorKey(tc), a); err != nil {
		log.Printf("[Index] persist anchor %d: %v", tc, err)
	}
}
