package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/wricardo/tabletop/game/engine"
	"go.uber.org/zap"
)

var (
	ErrRoomFull          = errors.New("room is full")
	ErrRoomDisposed      = errors.New("room disposed")
	ErrReconnectRejected = errors.New("reconnection rejected")
	ErrAlreadyJoined     = errors.New("session already joined")
)

const (
	// EventJoined is sent to a client once it is seated or reseated
	EventJoined = "joined"
	// EventState carries a full state snapshot
	EventState = "state"

	inboxSize = 256
)

// RoomConfig holds the per-room tunables
type RoomConfig struct {
	PatchInterval  time.Duration
	ReconnectGrace time.Duration
	MaxClients     int
	DefaultLife    int
}

// DefaultRoomConfig returns 20 Hz patches, a 60 second grace window and four seats
func DefaultRoomConfig() RoomConfig {
	return RoomConfig{
		PatchInterval:  50 * time.Millisecond,
		ReconnectGrace: 60 * time.Second,
		MaxClients:     4,
		DefaultLife:    engine.DefaultLife,
	}
}

// Client is a connected participant as seen by a room
type Client interface {
	// ID returns the client's session id
	ID() string
	// Send queues an encoded message and reports false if the client cannot keep up
	Send(data []byte) bool
	// Close drops the underlying connection
	Close()
}

// Message is the outbound wire envelope
type Message struct {
	Event  string            `json:"event"`
	RoomID string            `json:"roomId"`
	Data   any               `json:"data,omitempty"`
	State  *engine.GameState `json:"state,omitempty"`
	Seq    uint64            `json:"seq"`
}

// Joined is the payload of EventJoined
type Joined struct {
	RoomID    string `json:"roomId"`
	SessionID string `json:"sessionId"`
}

// JoinOptions are the client-supplied seat options
type JoinOptions struct {
	PlayerName   string
	StartingLife int
}

// graceWindow is an open reconnection slot for one disconnected player
type graceWindow struct {
	id    uint64
	timer *time.Timer
}

// Room is one live session. A single goroutine owns the engine and every
// other field not marked atomic; all access goes through the inbox.
type Room struct {
	id        string
	cfg       RoomConfig
	logger    *zap.Logger
	createdAt time.Time

	inbox     chan func()
	done      chan struct{}
	stopped   chan struct{}
	closeOnce sync.Once
	onChange  func(*Room)
	onDispose func(*Room)

	engine     *engine.Engine
	clients    map[string]Client
	grace      map[string]*graceWindow
	nextWindow uint64
	dirty      bool
	seq        uint64

	players atomic.Int32
	status  atomic.Value
}

// RoomOption configures a Room
type RoomOption func(*Room)

// WithEngine replaces the room's engine, mainly for tests
func WithEngine(e *engine.Engine) RoomOption {
	return func(r *Room) {
		r.engine = e
	}
}

// WithChangeHook is called from the room goroutine whenever player count or
// status changes
func WithChangeHook(fn func(*Room)) RoomOption {
	return func(r *Room) {
		r.onChange = fn
	}
}

// WithDisposeHook is called once from the room goroutine as it stops, before
// Dispose returns
func WithDisposeHook(fn func(*Room)) RoomOption {
	return func(r *Room) {
		r.onDispose = fn
	}
}

// NewRoom creates a room and starts its goroutine
func NewRoom(id string, cfg RoomConfig, logger *zap.Logger, opts ...RoomOption) *Room {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Room{
		id:        id,
		cfg:       cfg,
		logger:    logger.With(zap.String("room", id)),
		createdAt: time.Now(),
		inbox:     make(chan func(), inboxSize),
		done:      make(chan struct{}),
		stopped:   make(chan struct{}),
		clients:   make(map[string]Client),
		grace:     make(map[string]*graceWindow),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.engine == nil {
		r.engine = engine.NewEngine()
	}
	r.mirror()

	go r.run()
	return r
}

// ID returns the room id
func (r *Room) ID() string { return r.id }

// CreatedAt returns when the room was opened
func (r *Room) CreatedAt() time.Time { return r.createdAt }

// MaxClients returns the seat limit
func (r *Room) MaxClients() int { return r.cfg.MaxClients }

// PlayerCount returns the number of seated players, including those inside a
// grace window. Safe from any goroutine.
func (r *Room) PlayerCount() int { return int(r.players.Load()) }

// Status returns the game status. Safe from any goroutine.
func (r *Room) Status() engine.GameStatus { return r.status.Load().(engine.GameStatus) }

// Disposed reports whether the room has shut down
func (r *Room) Disposed() bool {
	select {
	case <-r.done:
		return true
	default:
		return false
	}
}

// Done is closed when the room starts shutting down
func (r *Room) Done() <-chan struct{} { return r.done }

// Join seats client as a new player
func (r *Room) Join(client Client, opts JoinOptions) error {
	var err error
	if callErr := r.call(func() { err = r.join(client, opts) }); callErr != nil {
		return callErr
	}
	return err
}

// Leave handles a client going away. A consented leave, or any leave before
// the game is active, removes the player at once; otherwise the seat is held
// for the reconnection grace period.
func (r *Room) Leave(sessionID string, consented bool) error {
	return r.call(func() { r.leave(sessionID, consented) })
}

// LeaveClient is Leave on behalf of one connection. It is ignored when the
// session has since been reseated on another connection.
func (r *Room) LeaveClient(client Client, consented bool) error {
	return r.call(func() {
		if current, ok := r.clients[client.ID()]; ok && current != client {
			return
		}
		r.leave(client.ID(), consented)
	})
}

// Reconnect reseats a disconnected player on a new connection
func (r *Room) Reconnect(sessionID string, client Client) error {
	var err error
	if callErr := r.call(func() { err = r.reconnect(sessionID, client) }); callErr != nil {
		return callErr
	}
	return err
}

// Dispatch decodes and queues a client command. Malformed commands are
// dropped; only a disposed room is reported.
func (r *Room) Dispatch(sessionID string, env engine.Envelope) error {
	cmd, err := engine.DecodeCommand(env)
	if err != nil {
		r.logger.Debug("dropping command",
			zap.String("session", sessionID),
			zap.String("kind", env.Kind),
			zap.Error(err))
		return nil
	}
	return r.post(func() { r.apply(sessionID, cmd) })
}

// Finish moves the game to finished
func (r *Room) Finish() error {
	return r.call(func() {
		r.deliver(r.engine.Finish().Notifications)
		r.markDirty()
	})
}

// Snapshot returns a deep copy of the current state
func (r *Room) Snapshot() (*engine.GameState, error) {
	var state *engine.GameState
	if err := r.call(func() { state = r.engine.Snapshot() }); err != nil {
		return nil, err
	}
	return state, nil
}

// Dispose stops the room and waits for its goroutine to exit. It must not be
// called from a hook.
func (r *Room) Dispose() {
	r.closeOnce.Do(func() { close(r.done) })
	<-r.stopped
}

// post queues fn on the room goroutine without waiting
func (r *Room) post(fn func()) error {
	if r.Disposed() {
		return ErrRoomDisposed
	}
	select {
	case r.inbox <- fn:
		return nil
	case <-r.done:
		return ErrRoomDisposed
	}
}

// call runs fn on the room goroutine and waits for it
func (r *Room) call(fn func()) error {
	finished := make(chan struct{})
	if err := r.post(func() {
		fn()
		close(finished)
	}); err != nil {
		return err
	}

	select {
	case <-finished:
		return nil
	case <-r.done:
	}

	// fn may itself have disposed the room; once the loop has stopped,
	// finished is settled either way
	select {
	case <-finished:
		return nil
	case <-r.stopped:
	}
	select {
	case <-finished:
		return nil
	default:
		return ErrRoomDisposed
	}
}

func (r *Room) run() {
	ticker := time.NewTicker(r.cfg.PatchInterval)
	defer func() {
		ticker.Stop()
		r.shutdown()
		if r.onDispose != nil {
			r.onDispose(r)
		}
		close(r.stopped)
	}()

	for {
		select {
		case <-r.done:
			return
		default:
		}

		select {
		case fn := <-r.inbox:
			fn()
		case <-ticker.C:
			r.flush()
		case <-r.done:
			return
		}
	}
}

func (r *Room) shutdown() {
	for sessionID, w := range r.grace {
		w.timer.Stop()
		delete(r.grace, sessionID)
	}
	for sessionID, c := range r.clients {
		c.Close()
		delete(r.clients, sessionID)
	}
	r.logger.Info("room disposed")
}

// dispose is the in-loop form of Dispose
func (r *Room) dispose() {
	r.closeOnce.Do(func() { close(r.done) })
}

func (r *Room) join(client Client, opts JoinOptions) error {
	sessionID := client.ID()
	if _, exists := r.engine.Player(sessionID); exists {
		return ErrAlreadyJoined
	}
	if r.engine.PlayerCount() >= r.cfg.MaxClients {
		return ErrRoomFull
	}

	name := opts.PlayerName
	if name == "" {
		name = fmt.Sprintf("Player %d", r.engine.PlayerCount()+1)
	}
	life := opts.StartingLife
	if life == 0 {
		life = r.cfg.DefaultLife
	}

	r.clients[sessionID] = client
	res := r.engine.Join(sessionID, name, life)
	r.greet(client)
	r.deliver(res.Notifications)
	r.markDirty()
	r.logger.Info("player joined",
		zap.String("session", sessionID),
		zap.String("name", name),
		zap.Int("players", r.engine.PlayerCount()))
	return nil
}

func (r *Room) leave(sessionID string, consented bool) {
	if _, ok := r.engine.Player(sessionID); !ok {
		return
	}
	delete(r.clients, sessionID)

	if _, waiting := r.grace[sessionID]; waiting && !consented {
		return
	}

	if !consented && r.engine.Status() == engine.StatusActive {
		r.deliver(r.engine.Disconnect(sessionID).Notifications)
		r.openWindow(sessionID)
		r.markDirty()
		r.logger.Info("player disconnected",
			zap.String("session", sessionID),
			zap.Duration("grace", r.cfg.ReconnectGrace))
		return
	}

	r.closeWindow(sessionID)
	r.remove(sessionID)
}

func (r *Room) reconnect(sessionID string, client Client) error {
	w, ok := r.grace[sessionID]
	if !ok {
		return ErrReconnectRejected
	}
	w.timer.Stop()
	delete(r.grace, sessionID)

	r.clients[sessionID] = client
	res := r.engine.Reconnect(sessionID)
	r.greet(client)
	r.deliver(res.Notifications)
	r.markDirty()
	r.logger.Info("player reconnected", zap.String("session", sessionID))
	return nil
}

// expire closes a grace window unless a reconnect already claimed it
func (r *Room) expire(sessionID string, windowID uint64) {
	w, ok := r.grace[sessionID]
	if !ok || w.id != windowID {
		return
	}
	delete(r.grace, sessionID)
	r.logger.Info("reconnection window expired", zap.String("session", sessionID))
	r.remove(sessionID)
}

func (r *Room) remove(sessionID string) {
	r.deliver(r.engine.Remove(sessionID).Notifications)
	r.markDirty()
	r.logger.Info("player left",
		zap.String("session", sessionID),
		zap.Int("players", r.engine.PlayerCount()))

	if r.engine.PlayerCount() == 0 && len(r.grace) == 0 {
		r.dispose()
	}
}

func (r *Room) openWindow(sessionID string) {
	r.nextWindow++
	windowID := r.nextWindow
	r.grace[sessionID] = &graceWindow{
		id: windowID,
		timer: time.AfterFunc(r.cfg.ReconnectGrace, func() {
			_ = r.post(func() { r.expire(sessionID, windowID) })
		}),
	}
}

func (r *Room) closeWindow(sessionID string) {
	if w, ok := r.grace[sessionID]; ok {
		w.timer.Stop()
		delete(r.grace, sessionID)
	}
}

func (r *Room) apply(sessionID string, cmd engine.Command) {
	res := r.engine.Apply(sessionID, cmd)
	if res.Changed {
		r.dirty = true
	}
	r.deliver(res.Notifications)
}

// markDirty schedules a patch and refreshes the discovery mirror
func (r *Room) markDirty() {
	r.dirty = true
	if r.mirror() && r.onChange != nil {
		r.onChange(r)
	}
}

// mirror copies count and status into the atomics and reports whether either moved
func (r *Room) mirror() bool {
	count := int32(r.engine.PlayerCount())
	status := r.engine.Status()
	prev, _ := r.status.Load().(engine.GameStatus)
	changed := r.players.Swap(count) != count || prev != status
	r.status.Store(status)
	return changed
}

// greet tells a newly seated client who it is and what the table looks like.
// It runs after the engine has seated the client, so the snapshot includes it.
func (r *Room) greet(client Client) {
	r.sendTo(client, &Message{
		Event:  EventJoined,
		RoomID: r.id,
		Data:   Joined{RoomID: r.id, SessionID: client.ID()},
	})
	r.sendTo(client, &Message{
		Event:  EventState,
		RoomID: r.id,
		State:  r.engine.State(),
		Seq:    r.seq,
	})
}

// flush broadcasts one snapshot if anything changed since the last tick
func (r *Room) flush() {
	if !r.dirty {
		return
	}
	r.seq++
	data, err := json.Marshal(&Message{
		Event:  EventState,
		RoomID: r.id,
		State:  r.engine.State(),
		Seq:    r.seq,
	})
	if err != nil {
		r.logger.Error("failed to encode state, disposing room", zap.Error(err))
		r.dispose()
		return
	}
	r.dirty = false
	r.broadcast(data, "")
}

// deliver sends each notification right away
func (r *Room) deliver(notifications []engine.Notification) {
	for _, n := range notifications {
		data, err := json.Marshal(&Message{
			Event:  string(n.Event),
			RoomID: r.id,
			Data:   n.Data,
		})
		if err != nil {
			r.logger.Error("failed to encode notification",
				zap.String("event", string(n.Event)),
				zap.Error(err))
			continue
		}
		r.broadcast(data, n.Except)
	}
}

func (r *Room) broadcast(data []byte, except string) {
	for sessionID, c := range r.clients {
		if sessionID == except {
			continue
		}
		r.write(sessionID, c, data)
	}
}

func (r *Room) sendTo(client Client, msg *Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		r.logger.Error("failed to encode message", zap.String("event", msg.Event), zap.Error(err))
		return
	}
	r.write(client.ID(), client, data)
}

// write drops a client that cannot keep up; its read side then reports an
// unconsented leave
func (r *Room) write(sessionID string, c Client, data []byte) {
	if c.Send(data) {
		return
	}
	r.logger.Warn("client too slow, dropping", zap.String("session", sessionID))
	delete(r.clients, sessionID)
	c.Close()
}
