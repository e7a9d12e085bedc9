package room

import "github.com/bena618/Armageddon-Chess-Backend/internal/models"

// effects are post-commit side effects a driver pass or operation asks
// the actor to perform. They are advisory: the durable room state is
// already committed (or deleted) before any of them run.
type effects struct {
	removeIndex bool
	expired     bool            // persisted state must be deleted; callers get room_expired
	requeue     []models.Player // players to put back into matchmaking at st.MainTimeMs
	archived    bool            // room reached FINISHED during this pass
}

// advance applies every deadline the room has crossed since the last
// operation. There are no correctness timers; this runs at the head of
// each operation, so any read drives the state machine forward.
//
// st is a clone. advance reports whether the clone changed and must be
// committed; on expiry the clone is abandoned entirely.
func advance(st *models.Room, env opEnv) (effects, bool) {
	var fx effects
	changed := false

	// Expiry wins over everything else, and it is judged on the last
	// external activity. Driver mutations below refresh updatedAt, so
	// checking afterwards would let periodic sweeps keep an abandoned
	// room alive forever.
	if env.now-st.UpdatedAt > env.settings.RoomMaxAgeMs {
		fx.expired = true
		fx.removeIndex = true
		return fx, false
	}

	// Bid resolution once the deadline passes. Missing bids are filled
	// with the maximum, so this can also void the round on a tie.
	if st.Phase == models.PhaseBidding && st.BidDeadline != nil && env.now > *st.BidDeadline {
		resolveBids(st, env.now)
		changed = true
	}

	// Color-pick rotation. Each missed deadline passes the choice to
	// the other player; the fourth miss ends the round as a draw.
	if st.Phase == models.PhaseColorPick && st.ChoiceDeadline != nil {
		for st.Phase == models.PhaseColorPick && env.now > *st.ChoiceDeadline {
			changed = true
			st.ChoiceAttempts++
			if st.ChoiceAttempts >= 4 {
				finishGame(st, env.now, "", models.ResultDraw, models.ReasonColorPickTimeout, env.settings.RematchWindowMs)
				fx.archived = true
				break
			}
			if st.CurrentPicker == models.PickerWinner {
				st.CurrentPicker = models.PickerLoser
			} else {
				st.CurrentPicker = models.PickerWinner
			}
			st.ChoiceDeadline = models.Ms(*st.ChoiceDeadline + st.ChoiceDurationMs)
			st.UpdatedAt = env.now
		}
	}

	// Start-request expiry: the confirmation window lapsed, nobody
	// seconded. The room closes; its directory entry lingers for a
	// grace period before removal.
	if st.Phase == models.PhaseLobby && !st.Closed &&
		st.StartRequestedBy != "" && st.StartConfirmDeadline != nil &&
		env.now > *st.StartConfirmDeadline {
		closeRoom(st, env.now, models.CloseStartExpired)
		changed = true
	}
	if st.Closed && st.CloseReason == models.CloseStartExpired &&
		st.ClosedAt != nil && env.now-*st.ClosedAt > env.settings.StartExpiredIndexGraceMs {
		fx.removeIndex = true
	}

	// Disconnect detection, only while clocks run. Silence past the
	// grace period marks a player; a marked player who stays silent
	// past the room's disconnect timeout forfeits and the room closes
	// with no rematch window.
	if st.Phase == models.PhasePlaying && st.Clocks != nil && st.Clocks.FrozenAt == nil {
		if st.DisconnectedPlayerID == "" && env.now-st.UpdatedAt > env.settings.DisconnectGraceMs {
			suspect := st.Clocks.Turn.Other()
			if env.settings.DisconnectMarksMover {
				suspect = st.Clocks.Turn
			}
			st.DisconnectedPlayerID = st.PlayerWithColor(suspect)
			st.DisconnectStart = models.Ms(env.now)
			st.UpdatedAt = env.now
			changed = true
		}
		if st.DisconnectedPlayerID != "" && st.DisconnectStart != nil &&
			env.now-*st.DisconnectStart > st.DisconnectTimeoutMs {
			winnerID := st.OpponentOf(st.DisconnectedPlayerID)
			finishGame(st, env.now, winnerID, models.ResultDisconnectForfeit, "", 0)
			st.RematchWindowEnds = nil
			closeRoom(st, env.now, models.CloseDisconnectForfeit)
			fx.removeIndex = true
			fx.archived = true
			changed = true
		}
	}

	// Rematch window expiry. Players who voted yes go back to the
	// queue at the same time control.
	if st.Phase == models.PhaseFinished && !st.Closed &&
		st.RematchWindowEnds != nil && env.now > *st.RematchWindowEnds {
		fx.requeue = yesVoters(st)
		closeRoom(st, env.now, models.CloseRematchTimeout)
		fx.removeIndex = true
		changed = true
	}

	return fx, changed
}
