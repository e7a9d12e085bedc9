package matchmaking

import (
	"context"
	"encoding/json"
	"log"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/bena618/Armageddon-Chess-Backend/internal/models"
	"github.com/bena618/Armageddon-Chess-Backend/internal/storage"
)

const (
	directoryKey = "rooms"
	queuesKey    = "queues"
	anchorPrefix = "estimate_anchor_"

	storeTimeout = 5 * time.Second
)

// Subscriber receives queue frames. Send must not block; false means
// the subscriber is dead and gets dropped.
type Subscriber interface {
	Send(data []byte) bool
	Close()
}

// Config tunes the index. TimeControls lists the queue buckets in
// preference order; StaleAfterMs is how long a queue entry survives
// without a heartbeat.
type Config struct {
	TimeControls []int64
	StaleAfterMs int64
	Clock        func() int64
}

func (c Config) withDefaults() Config {
	if len(c.TimeControls) == 0 {
		c.TimeControls = []int64{300000, 600000, 900000}
	}
	if c.StaleAfterMs <= 0 {
		c.StaleAfterMs = 300000
	}
	if c.Clock == nil {
		c.Clock = func() int64 { return time.Now().UnixMilli() }
	}
	return c
}

type command interface{}

type cmdUpdateRoom struct{ entry models.IndexEntry }
type cmdRemoveRoom struct{ roomID string }
type cmdListRooms struct{}
type cmdClear struct{}
type cmdAddToQueue struct {
	playerID   string
	name       string
	mainTimeMs int64
}
type cmdJoinAll struct {
	playerID string
	name     string
}
type cmdRemovePlayers struct{ playerIDs []string }
type cmdRequeue struct {
	players    []models.Player
	mainTimeMs int64
}
type cmdQueueHeartbeat struct{ playerID string }
type cmdCheckMatch struct{ playerID string }
type cmdCleanupStale struct{}
type cmdEstimates struct{}
type cmdSubscribe struct{ sub Subscriber }
type cmdUnsubscribe struct{ sub Subscriber }

// CheckResult is the answer to a checkMatch poll.
type CheckResult struct {
	Matched bool
	RoomID  string
	InQueue bool
}

type reply struct {
	err       error
	directive *models.MatchDirective
	entries   []models.IndexEntry
	estimates map[string]Estimate
	positions map[int64]int
	position  int
	check     CheckResult
	removed   int
}

type message struct {
	cmd   command
	reply chan reply
}

// Index is the matchmaking singleton: the room directory, the FIFO
// queue buckets and the wait estimator, all owned by one goroutine.
// Directory and queue contents persist across restarts.
type Index struct {
	store storage.Store
	cfg   Config
	clock func() int64

	directory map[string]models.IndexEntry
	queues    map[int64][]models.QueueEntry
	anchors   map[int64]*waitAnchor
	subs      map[Subscriber]bool

	msgCh    chan message
	done     chan struct{}
	stopOnce sync.Once
}

// NewIndex restores state from the store and starts the actor.
func NewIndex(ctx context.Context, store storage.Store, cfg Config) *Index {
	cfg = cfg.withDefaults()
	ix := &Index{
		store:     store,
		cfg:       cfg,
		clock:     cfg.Clock,
		directory: make(map[string]models.IndexEntry),
		queues:    make(map[int64][]models.QueueEntry),
		anchors:   make(map[int64]*waitAnchor),
		subs:      make(map[Subscriber]bool),
		msgCh:     make(chan message),
		done:      make(chan struct{}),
	}
	ix.restore(ctx)
	go ix.run()
	return ix
}

func (ix *Index) restore(ctx context.Context) {
	var dir map[string]models.IndexEntry
	if err := ix.store.Get(ctx, directoryKey, &dir); err == nil {
		ix.directory = dir
	} else if err != storage.ErrNotFound {
		log.Printf("[Index] restore directory: %v", err)
	}

	var persisted map[string][]models.QueueEntry
	if err := ix.store.Get(ctx, queuesKey, &persisted); err == nil {
		for key, bucket := range persisted {
			tc, err := strconv.ParseInt(key, 10, 64)
			if err != nil {
				continue
			}
			ix.queues[tc] = bucket
		}
	} else if err != storage.ErrNotFound {
		log.Printf("[Index] restore queues: %v", err)
	}

	for _, tc := range ix.cfg.TimeControls {
		var a waitAnchor
		if err := ix.store.Get(ctx, anchorKey(tc), &a); err == nil {
			anchor := a
			ix.anchors[tc] = &anchor
		} else if err != storage.ErrNotFound {
			log.Printf("[Index] restore anchor %d: %v", tc, err)
		}
	}
}

func anchorKey(tc int64) string {
	return anchorPrefix + strconv.FormatInt(tc, 10)
}

func (ix *Index) Stop() {
	ix.stopOnce.Do(func() { close(ix.done) })
}

func (ix *Index) run() {
	for {
		select {
		case m := <-ix.msgCh:
			a := ix.handle(m.cmd)
			m.reply <- a
		case <-ix.done:
			for sub := range ix.subs {
				sub.Close()
			}
			return
		}
	}
}

func (ix *Index) handle(cmd command) reply {
	now := ix.clock()
	switch c := cmd.(type) {
	case cmdUpdateRoom:
		return ix.handleUpdateRoom(c.entry)
	case cmdRemoveRoom:
		return ix.handleRemoveRoom(c.roomID)
	case cmdListRooms:
		return reply{entries: ix.listRooms()}
	case cmdClear:
		return ix.handleClear()
	case cmdAddToQueue:
		return ix.handleAddToQueue(c.playerID, c.name, c.mainTimeMs, now)
	case cmdJoinAll:
		return ix.handleJoinAll(c.playerID, c.name, now)
	case cmdRemovePlayers:
		return ix.handleRemovePlayers(c.playerIDs, now)
	case cmdRequeue:
		return ix.handleRequeue(c.players, c.mainTimeMs, now)
	case cmdQueueHeartbeat:
		return ix.handleQueueHeartbeat(c.playerID, now)
	case cmdCheckMatch:
		return reply{check: ix.checkMatch(c.playerID)}
	case cmdCleanupStale:
		return ix.handleCleanupStale(now)
	case cmdEstimates:
		return reply{estimates: ix.estimates(now)}
	case cmdSubscribe:
		ix.subs[c.sub] = true
		if data, err := json.Marshal(ix.queueFrame(now)); err == nil {
			if !c.sub.Send(data) {
				delete(ix.subs, c.sub)
				c.sub.Close()
			}
		}
		return reply{}
	case cmdUnsubscribe:
		delete(ix.subs, c.sub)
		return reply{}
	default:
		return reply{err: errInternal}
	}
}

var errInternal = &opError{"internal_error"}

type opError struct{ code string }

func (e *opError) Error() string { return e.code }

// handleUpdateRoom upserts a directory entry. Closed rooms are never
// upserted; their stale entry lingers until an explicit remove.
func (ix *Index) handleUpdateRoom(entry models.IndexEntry) reply {
	if entry.Closed {
		return reply{}
	}
	dir := ix.cloneDirectory()
	dir[entry.RoomID] = entry
	if err := ix.putDirectory(dir); err != nil {
		return reply{err: err}
	}
	ix.directory = dir
	return reply{}
}

func (ix *Index) handleRemoveRoom(roomID string) reply {
	if _, ok := ix.directory[roomID]; !ok {
		return reply{}
	}
	dir := ix.cloneDirectory()
	delete(dir, roomID)
	if err := ix.putDirectory(dir); err != nil {
		return reply{err: err}
	}
	ix.directory = dir
	return reply{}
}

// listRooms returns every room still in circulation, newest activity
// last so join-next can prefer the oldest lobby.
func (ix *Index) listRooms() []models.IndexEntry {
	out := make([]models.IndexEntry, 0, len(ix.directory))
	for _, e := range ix.directory {
		if e.Phase == models.PhaseFinished {
			continue
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].UpdatedAt != out[j].UpdatedAt {
			return out[i].UpdatedAt < out[j].UpdatedAt
		}
		return out[i].RoomID < out[j].RoomID
	})
	return out
}

func (ix *Index) handleClear() reply {
	dir := make(map[string]models.IndexEntry)
	if err := ix.putDirectory(dir); err != nil {
		return reply{err: err}
	}
	ix.directory = dir
	return reply{}
}

func (ix *Index) handleAddToQueue(playerID, name string, tc, now int64) reply {
	q := ix.cloneQueues()
	bucket := q[tc]
	found := false
	for i := range bucket {
		if bucket[i].PlayerID == playerID {
			bucket[i].LastHeartbeat = now
			found = true
			break
		}
	}
	if !found {
		bucket = append(bucket, models.QueueEntry{
			PlayerID:      playerID,
			Name:          name,
			JoinedAt:      now,
			LastHeartbeat: now,
		})
	}
	q[tc] = bucket
	if err := ix.putQueues(q); err != nil {
		return reply{err: err}
	}
	ix.queues = q
	ix.broadcastQueues(now)

	position := 0
	for i := range bucket {
		if bucket[i].PlayerID == playerID {
			position = i + 1
			break
		}
	}
	return reply{directive: ix.matchDirective(tc), position: position}
}

func (ix *Index) handleJoinAll(playerID, name string, now int64) reply {
	q := ix.cloneQueues()
	changed := false
	for _, tc := range ix.cfg.TimeControls {
		bucket := q[tc]
		present := false
		for i := range bucket {
			if bucket[i].PlayerID == playerID {
				bucket[i].LastHeartbeat = now
				present = true
				break
			}
		}
		if !present {
			bucket = append(bucket, models.QueueEntry{
				PlayerID:      playerID,
				Name:          name,
				JoinedAt:      now,
				LastHeartbeat: now,
			})
			changed = true
		}
		q[tc] = bucket
	}
	if err := ix.putQueues(q); err != nil {
		return reply{err: err}
	}
	ix.queues = q
	if changed {
		ix.broadcastQueues(now)
	}

	positions := make(map[int64]int, len(ix.cfg.TimeControls))
	var directive *models.MatchDirective
	for _, tc := range ix.cfg.TimeControls {
		for i := range ix.queues[tc] {
			if ix.queues[tc][i].PlayerID == playerID {
				positions[tc] = i + 1
				break
			}
		}
		if directive == nil {
			directive = ix.matchDirective(tc)
		}
	}
	return reply{directive: directive, positions: positions}
}

// matchDirective reports the first two waiters of a bucket once it can
// seat a game. Removal is the caller's job after the room exists.
func (ix *Index) matchDirective(tc int64) *models.MatchDirective {
	bucket := ix.queues[tc]
	if len(bucket) < 2 {
		return nil
	}
	pair := make([]models.QueueEntry, 2)
	copy(pair, bucket[:2])
	return &models.MatchDirective{
		ShouldCreateRoom: true,
		MainTimeMs:       tc,
		QueuedPlayers:    pair,
	}
}

func (ix *Index) handleRemovePlayers(playerIDs []string, now int64) reply {
	drop := make(map[string]bool, len(playerIDs))
	for _, id := range playerIDs {
		drop[id] = true
	}
	q := ix.cloneQueues()
	changed := false
	for tc, bucket := range q {
		kept := bucket[:0]
		for _, e := range bucket {
			if drop[e.PlayerID] {
				changed = true
				continue
			}
			kept = append(kept, e)
		}
		q[tc] = kept
	}
	if !changed {
		return reply{}
	}
	if err := ix.putQueues(q); err != nil {
		return reply{err: err}
	}
	ix.queues = q
	ix.broadcastQueues(now)
	return reply{}
}

// handleRequeue puts players straight back into one bucket, used for
// rematch yes-voters whose room closed under them. No match directive:
// a re-seated pair is picked up FIFO by the next join to the bucket.
func (ix *Index) handleRequeue(players []models.Player, tc, now int64) reply {
	q := ix.cloneQueues()
	bucket := q[tc]
	changed := false
	for _, p := range players {
		present := false
		for i := range bucket {
			if bucket[i].PlayerID == p.ID {
				bucket[i].LastHeartbeat = now
				present = true
				break
			}
		}
		if present {
			continue
		}
		bucket = append(bucket, models.QueueEntry{
			PlayerID:      p.ID,
			Name:          p.Name,
			JoinedAt:      now,
			LastHeartbeat: now,
		})
		changed = true
	}
	if !changed {
		return reply{}
	}
	q[tc] = bucket
	if err := ix.putQueues(q); err != nil {
		return reply{err: err}
	}
	ix.queues = q
	ix.broadcastQueues(now)
	return reply{}
}

func (ix *Index) handleQueueHeartbeat(playerID string, now int64) reply {
	q := ix.cloneQueues()
	changed := false
	for tc, bucket := range q {
		for i := range bucket {
			if bucket[i].PlayerID == playerID {
				bucket[i].LastHeartbeat = now
				changed = true
			}
		}
		q[tc] = bucket
	}
	if !changed {
		return reply{}
	}
	if err := ix.putQueues(q); err != nil {
		return reply{err: err}
	}
	ix.queues = q
	return reply{}
}

// checkMatch looks for the player in the directory first, then in the
// queues. Finished and closed rooms do not count as matches; only a
// seat in a live room ends the wait. Ties on multiple rooms go to the
// most recently updated one.
func (ix *Index) checkMatch(playerID string) CheckResult {
	var best *models.IndexEntry
	for id := range ix.directory {
		e := ix.directory[id]
		if e.Phase == models.PhaseFinished || e.Closed {
			continue
		}
		for _, p := range e.Players {
			if p.ID != playerID {
				continue
			}
			if best == nil || e.UpdatedAt > best.UpdatedAt ||
				(e.UpdatedAt == best.UpdatedAt && e.RoomID < best.RoomID) {
				entry := e
				best = &entry
			}
		}
	}
	if best != nil {
		return CheckResult{Matched: true, RoomID: best.RoomID}
	}
	for _, bucket := range ix.queues {
		for _, e := range bucket {
			if e.PlayerID == playerID {
				return CheckResult{InQueue: true}
			}
		}
	}
	return CheckResult{}
}

func (ix *Index) handleCleanupStale(now int64) reply {
	q := ix.cloneQueues()
	removed := 0
	for tc, bucket := range q {
		kept := bucket[:0]
		for _, e := range bucket {
			if now-e.LastHeartbeat > ix.cfg.StaleAfterMs {
				removed++
				continue
			}
			kept = append(kept, e)
		}
		q[tc] = kept
	}
	if removed == 0 {
		return reply{}
	}
	if err := ix.putQueues(q); err != nil {
		return reply{err: err}
	}
	ix.queues = q
	ix.broadcastQueues(now)
	return reply{removed: removed}
}

func (ix *Index) cloneDirectory() map[string]models.IndexEntry {
	out := make(map[string]models.IndexEntry, len(ix.directory)+1)
	for k, v := range ix.directory {
		out[k] = v
	}
	return out
}

func (ix *Index) cloneQueues() map[int64][]models.QueueEntry {
	out := make(map[int64][]models.QueueEntry, len(ix.queues)+1)
	for tc, bucket := range ix.queues {
		out[tc] = append([]models.QueueEntry(nil), bucket...)
	}
	return out
}

func (ix *Index) putDirectory(dir map[string]models.IndexEntry) error {
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	if err := ix.store.Put(ctx, directoryKey, dir); err != nil {
		log.Printf("[Index] persist directory: %v", err)
		return err
	}
	return nil
}

func (ix *Index) putQueues(q map[int64][]models.QueueEntry) error {
	persisted := make(map[string][]models.QueueEntry, len(q))
	for tc, bucket := range q {
		persisted[strconv.FormatInt(tc, 10)] = bucket
	}
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	if err := ix.store.Put(ctx, queuesKey, persisted); err != nil {
		log.Printf("[Index] persist queues: %v", err)
		return err
	}
	return nil
}

type queueFrame struct {
	Type      string         `json:"type"`
	Queues    map[string]int `json:"queues"`
	Timestamp int64          `json:"timestamp"`
}

func (ix *Index) queueFrame(now int64) queueFrame {
	sizes := make(map[string]int, len(ix.queues))
	for tc, bucket := range ix.queues {
		sizes[strconv.FormatInt(tc, 10)] = len(bucket)
	}
	return queueFrame{Type: "queue_update", Queues: sizes, Timestamp: now}
}

func (ix *Index) broadcastQueues(now int64) {
	if len(ix.subs) == 0 {
		return
	}
	data, err := json.Marshal(ix.queueFrame(now))
	if err != nil {
		log.Printf("[Index] marshal queue frame: %v", err)
		return
	}
	for sub := range ix.subs {
		if !sub.Send(data) {
			delete(ix.subs, sub)
			sub.Close()
		}
	}
}

func (ix *Index) do(ctx context.Context, cmd command) reply {
	m := message{cmd: cmd, reply: make(chan reply, 1)}
	select {
	case ix.msgCh <- m:
	case <-ix.done:
		return reply{err: errInternal}
	case <-ctx.Done():
		return reply{err: ctx.Err()}
	}
	select {
	case r := <-m.reply:
		return r
	case <-ctx.Done():
		return reply{err: ctx.Err()}
	}
}

// UpdateRoom upserts the directory entry for a room.
func (ix *Index) UpdateRoom(ctx context.Context, entry models.IndexEntry) {
	if r := ix.do(ctx, cmdUpdateRoom{entry: entry}); r.err != nil {
		log.Printf("[Index] update room %s: %v", entry.RoomID, r.err)
	}
}

// RemoveRoom drops a room from the directory.
func (ix *Index) RemoveRoom(ctx context.Context, roomID string) {
	if r := ix.do(ctx, cmdRemoveRoom{roomID: roomID}); r.err != nil {
		log.Printf("[Index] remove room %s: %v", roomID, r.err)
	}
}

// ListRooms returns the rooms in circulation, oldest activity first.
func (ix *Index) ListRooms(ctx context.Context) []models.IndexEntry {
	return ix.do(ctx, cmdListRooms{}).entries
}

// Clear drops the whole directory.
func (ix *Index) Clear(ctx context.Context) error {
	return ix.do(ctx, cmdClear{}).err
}

// AddToQueue puts a player into one time-control bucket. Joining a
// bucket twice refreshes the heartbeat instead of duplicating the
// entry. Returns the queue position and, when the bucket can seat a
// game, a match directive.
func (ix *Index) AddToQueue(ctx context.Context, playerID, name string, mainTimeMs int64) (*models.MatchDirective, int, error) {
	r := ix.do(ctx, cmdAddToQueue{playerID: playerID, name: name, mainTimeMs: mainTimeMs})
	return r.directive, r.position, r.err
}

// JoinAll puts a player into every configured bucket at once.
func (ix *Index) JoinAll(ctx context.Context, playerID, name string) (*models.MatchDirective, map[int64]int, error) {
	r := ix.do(ctx, cmdJoinAll{playerID: playerID, name: name})
	return r.directive, r.positions, r.err
}

// RemoveFromAllQueues clears the given players from every bucket.
func (ix *Index) RemoveFromAllQueues(ctx context.Context, playerIDs []string) error {
	return ix.do(ctx, cmdRemovePlayers{playerIDs: playerIDs}).err
}

// RequeuePlayers re-enqueues players at the given time control. Room
// actors call this when a rematch falls through for players who had
// agreed to play on.
func (ix *Index) RequeuePlayers(ctx context.Context, players []models.Player, mainTimeMs int64) {
	if len(players) == 0 {
		return
	}
	if r := ix.do(ctx, cmdRequeue{players: players, mainTimeMs: mainTimeMs}); r.err != nil {
		log.Printf("[Index] requeue %d player(s) at %d: %v", len(players), mainTimeMs, r.err)
	}
}

// QueueHeartbeat refreshes a waiting player's liveness.
func (ix *Index) QueueHeartbeat(ctx context.Context, playerID string) error {
	return ix.do(ctx, cmdQueueHeartbeat{playerID: playerID}).err
}

// CheckMatch reports whether a player has been seated in a room, or is
// still waiting in a queue.
func (ix *Index) CheckMatch(ctx context.Context, playerID string) CheckResult {
	return ix.do(ctx, cmdCheckMatch{playerID: playerID}).check
}

// CleanupStale drops queue entries whose heartbeat went silent.
func (ix *Index) CleanupStale(ctx context.Context) int {
	return ix.do(ctx, cmdCleanupStale{}).removed
}

// Estimates computes per-time-control wait estimates.
func (ix *Index) Estimates(ctx context.Context) map[string]Estimate {
	return ix.do(ctx, cmdEstimates{}).estimates
}

// Subscribe attaches a queue update feed; the subscriber immediately
// receives the current bucket sizes.
func (ix *Index) Subscribe(ctx context.Context, sub Subscriber) {
	ix.do(ctx, cmdSubscribe{sub: sub})
}

func (ix *Index) Unsubscribe(ctx context.Context, sub Subscriber) {
	ix.do(ctx, cmdUnsubscribe{sub: sub})
}
