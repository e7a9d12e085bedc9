package room

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/bena618/Armageddon-Chess-Backend/internal/models"
	"github.com/bena618/Armageddon-Chess-Backend/internal/storage"
)

const storeTimeout = 5 * time.Second

// Subscriber receives room frames. Send must not block: it reports
// false when the subscriber can no longer accept data, after which the
// actor drops and closes it.
type Subscriber interface {
	Send(data []byte) bool
	Close()
}

// Frame is the envelope pushed to websocket subscribers.
type Frame struct {
	Type string       `json:"type"`
	Room *models.Room `json:"room"`
}

// IndexSink receives directory traffic from room actors. Calls happen
// on the actor goroutine after a commit; implementations must not call
// back into the room.
type IndexSink interface {
	UpdateRoom(ctx context.Context, entry models.IndexEntry)
	RemoveRoom(ctx context.Context, roomID string)
	RequeuePlayers(ctx context.Context, players []models.Player, mainTimeMs int64)
}

// Archiver records finished rounds out of band.
type Archiver interface {
	RecordFinished(room *models.Room)
}

type command interface{}

type cmdJoin struct{ playerID, name string }
type cmdStartBidding struct{ playerID string }
type cmdSubmitBid struct {
	playerID string
	amountMs int64
}
type cmdChooseColor struct{ playerID, color string }
type cmdMakeMove struct{ playerID, move string }
type cmdTimeForfeit struct{ playerID string }
type cmdRematch struct {
	playerID string
	agree    bool
}
type cmdLeave struct{ playerID string }
type cmdHeartbeat struct{ playerID string }
type cmdGetState struct{}
type cmdSubscribe struct {
	playerID string
	sub      Subscriber
}
type cmdUnsubscribe struct{ sub Subscriber }

type message struct {
	cmd   command
	reply chan reply
}

type reply struct {
	room *models.Room
	err  error
}

type actorDeps struct {
	settings Settings
	engines  EngineFactory
	store    storage.Store
	index    IndexSink
	archive  Archiver
	clock    func() int64
	onEvict  func(roomID string)
}

// Actor owns one room. All state transitions, subscriber bookkeeping
// and durable writes happen on its goroutine; callers talk to it
// through the mailbox and wait for a typed reply.
type Actor struct {
	id   string
	deps actorDeps

	state   *models.Room
	subs    map[Subscriber]string
	expired bool

	msgCh    chan message
	done     chan struct{}
	stopOnce sync.Once
}

func newActor(state *models.Room, deps actorDeps) *Actor {
	if deps.clock == nil {
		deps.clock = func() int64 { return time.Now().UnixMilli() }
	}
	if deps.engines == nil {
		deps.engines = ReplayEngine
	}
	a := &Actor{
		id:    state.RoomID,
		deps:  deps,
		state: state,
		subs:  make(map[Subscriber]string),
		msgCh: make(chan message),
		done:  make(chan struct{}),
	}
	go a.run()
	return a
}

// Stop shuts the mailbox down. Pending and later callers get
// room_expired.
func (a *Actor) Stop() {
	a.stopOnce.Do(func() { close(a.done) })
}

func (a *Actor) run() {
	for {
		select {
		case m := <-a.msgCh:
			a.handle(m)
		case <-a.done:
			for sub := range a.subs {
				sub.Close()
			}
			return
		}
	}
}

func (a *Actor) handle(m message) {
	// Unsubscribe always works, even on an expired room.
	if cmd, ok := m.cmd.(cmdUnsubscribe); ok {
		delete(a.subs, cmd.sub)
		m.reply <- reply{}
		return
	}

	now := a.deps.clock()
	env := opEnv{now: now, settings: a.deps.settings, engines: a.deps.engines}

	if a.expired {
		m.reply <- reply{err: expiryErr(m.cmd)}
		return
	}

	// Deadlines first: any operation drives the state machine across
	// every deadline the room has crossed since it was last touched.
	adv := a.state.Clone()
	fx, changed := advance(adv, env)
	if fx.expired {
		a.expire()
		m.reply <- reply{err: expiryErr(m.cmd)}
		return
	}
	if changed {
		if err := a.commit(adv); err != nil {
			m.reply <- reply{err: ErrStorage}
			return
		}
		a.sideEffects(fx)
	} else if fx.removeIndex {
		// No state change, but the directory entry outlived its grace
		// period (start-expired rooms linger for a while after close).
		a.sideEffects(fx)
	}

	switch cmd := m.cmd.(type) {
	case cmdGetState:
		m.reply <- reply{room: a.state.Clone()}
		return
	case cmdSubscribe:
		a.subs[cmd.sub] = cmd.playerID
		if data, err := json.Marshal(Frame{Type: "init", Room: a.state}); err == nil {
			if !cmd.sub.Send(data) {
				delete(a.subs, cmd.sub)
				cmd.sub.Close()
			}
		}
		m.reply <- reply{room: a.state.Clone()}
		return
	}

	// Mutating operation: validate and apply on a fresh clone, persist,
	// then swap. A storage fault rejects the operation outright.
	st := a.state.Clone()
	var opFx effects
	if err := a.apply(st, env, m.cmd, &opFx); err != nil {
		m.reply <- reply{err: err}
		return
	}
	if err := a.commit(st); err != nil {
		m.reply <- reply{err: ErrStorage}
		return
	}
	a.sideEffects(opFx)
	m.reply <- reply{room: a.state.Clone()}
}

func (a *Actor) apply(st *models.Room, env opEnv, cmd command, fx *effects) error {
	switch c := cmd.(type) {
	case cmdJoin:
		return applyJoin(st, env, c.playerID, c.name)
	case cmdStartBidding:
		return applyStartBidding(st, env, c.playerID)
	case cmdSubmitBid:
		return applySubmitBid(st, env, c.playerID, c.amountMs)
	case cmdChooseColor:
		return applyChooseColor(st, env, c.playerID, c.color)
	case cmdMakeMove:
		terminal, err := applyMakeMove(st, env, c.playerID, c.move)
		if err != nil {
			return err
		}
		fx.archived = terminal
		return nil
	case cmdTimeForfeit:
		if err := applyTimeForfeit(st, env, c.playerID); err != nil {
			return err
		}
		fx.archived = true
		return nil
	case cmdRematch:
		requeue, err := applyRematch(st, env, c.playerID, c.agree)
		if err != nil {
			return err
		}
		fx.requeue = requeue
		fx.removeIndex = st.Closed
		return nil
	case cmdLeave:
		return applyLeave(st, env, c.playerID)
	case cmdHeartbeat:
		return applyHeartbeat(st, env, c.playerID)
	default:
		return ErrInternal
	}
}

// commit persists the clone and only then swaps it in and fans the
// update out to subscribers.
func (a *Actor) commit(st *models.Room) error {
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	if err := a.deps.store.Put(ctx, a.id, st); err != nil {
		log.Printf("[Room %s] persist failed: %v", a.id, err)
		return err
	}
	a.state = st
	a.broadcast("update")
	return nil
}

func (a *Actor) broadcast(frameType string) {
	if len(a.subs) == 0 {
		return
	}
	data, err := json.Marshal(Frame{Type: frameType, Room: a.state})
	if err != nil {
		log.Printf("[Room %s] marshal frame: %v", a.id, err)
		return
	}
	for sub := range a.subs {
		if !sub.Send(data) {
			delete(a.subs, sub)
			sub.Close()
		}
	}
}

// sideEffects runs post-commit notifications. These never roll back
// the room; the directory converges on later updates.
func (a *Actor) sideEffects(fx effects) {
	if a.deps.index != nil {
		ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
		defer cancel()
		if fx.removeIndex {
			a.deps.index.RemoveRoom(ctx, a.id)
		} else {
			a.deps.index.UpdateRoom(ctx, models.IndexEntryOf(a.state))
		}
		if len(fx.requeue) > 0 {
			a.deps.index.RequeuePlayers(ctx, fx.requeue, a.state.MainTimeMs)
		}
	}
	if fx.archived && a.deps.archive != nil {
		a.deps.archive.RecordFinished(a.state.Clone())
	}
}

// expire drops the room: the persisted record is deleted, subscribers
// are closed and the registry forgets the id. Subsequent operations
// get room_expired.
func (a *Actor) expire() {
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	if err := a.deps.store.Delete(ctx, a.id); err != nil {
		log.Printf("[Room %s] delete failed: %v", a.id, err)
	}
	if a.deps.index != nil {
		a.deps.index.RemoveRoom(ctx, a.id)
	}
	for sub := range a.subs {
		sub.Close()
		delete(a.subs, sub)
	}
	a.expired = true
	if a.deps.onEvict != nil {
		a.deps.onEvict(a.id)
	}
	a.Stop()
}

func expiryErr(cmd command) error {
	if _, ok := cmd.(cmdJoin); ok {
		return ErrRoomTooOld
	}
	return ErrRoomExpired
}

func (a *Actor) do(ctx context.Context, cmd command) (*models.Room, error) {
	m := message{cmd: cmd, reply: make(chan reply, 1)}
	select {
	case a.msgCh <- m:
	case <-a.done:
		return nil, ErrRoomExpired
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case r := <-m.reply:
		return r.room, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// ID returns the room id.
func (a *Actor) ID() string { return a.id }

func (a *Actor) Join(ctx context.Context, playerID, name string) (*models.Room, error) {
	return a.do(ctx, cmdJoin{playerID: playerID, name: name})
}

func (a *Actor) StartBidding(ctx context.Context, playerID string) (*models.Room, error) {
	return a.do(ctx, cmdStartBidding{playerID: playerID})
}

func (a *Actor) SubmitBid(ctx context.Context, playerID string, amountMs int64) (*models.Room, error) {
	return a.do(ctx, cmdSubmitBid{playerID: playerID, amountMs: amountMs})
}

func (a *Actor) ChooseColor(ctx context.Context, playerID, color string) (*models.Room, error) {
	return a.do(ctx, cmdChooseColor{playerID: playerID, color: color})
}

func (a *Actor) MakeMove(ctx context.Context, playerID, move string) (*models.Room, error) {
	return a.do(ctx, cmdMakeMove{playerID: playerID, move: move})
}

func (a *Actor) TimeForfeit(ctx context.Context, playerID string) (*models.Room, error) {
	return a.do(ctx, cmdTimeForfeit{playerID: playerID})
}

func (a *Actor) Rematch(ctx context.Context, playerID string, agree bool) (*models.Room, error) {
	return a.do(ctx, cmdRematch{playerID: playerID, agree: agree})
}

func (a *Actor) Leave(ctx context.Context, playerID string) (*models.Room, error) {
	return a.do(ctx, cmdLeave{playerID: playerID})
}

func (a *Actor) Heartbeat(ctx context.Context, playerID string) (*models.Room, error) {
	return a.do(ctx, cmdHeartbeat{playerID: playerID})
}

// State drives pending deadlines and returns a snapshot.
func (a *Actor) State(ctx context.Context) (*models.Room, error) {
	return a.do(ctx, cmdGetState{})
}

// Subscribe attaches a live update feed. The subscriber immediately
// receives an init frame with the current state.
func (a *Actor) Subscribe(ctx context.Context, playerID string, sub Subscriber) (*models.Room, error) {
	return a.do(ctx, cmdSubscribe{playerID: playerID, sub: sub})
}

func (a *Actor) Unsubscribe(ctx context.Context, sub Subscriber) {
	_, _ = a.do(ctx, cmdUnsubscribe{sub: sub})
}
