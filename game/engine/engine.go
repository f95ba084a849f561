package engine

import (
	"time"

	"github.com/google/uuid"
)

// Engine applies lifecycle changes and client commands to a GameState
type Engine struct {
	state *GameState
	now   func() time.Time
	newID func() string
}

// Option configures an Engine
type Option func(*Engine)

// WithClock replaces the wall clock used for timestamps
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// WithIDGenerator replaces the generator used for cards added without an id
func WithIDGenerator(newID func() string) Option {
	return func(e *Engine) {
		e.newID = newID
	}
}

// NewEngine creates an engine over an empty waiting game
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		state: NewGameState(),
		now:   time.Now,
		newID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// State returns the live state. Callers must not retain it across calls.
func (e *Engine) State() *GameState {
	return e.state
}

// Snapshot returns a deep copy of the current state
func (e *Engine) Snapshot() *GameState {
	return e.state.Clone()
}

// Status returns the current game status
func (e *Engine) Status() GameStatus {
	return e.state.GameStatus
}

// PlayerCount returns the number of players, connected or not
func (e *Engine) PlayerCount() int {
	return len(e.state.Players)
}

// Player looks up a player by session id
func (e *Engine) Player(sessionID string) (*Player, bool) {
	p, ok := e.state.Players[sessionID]
	return p, ok
}

// touch advances the logical clock; it never moves backwards
func (e *Engine) touch() {
	ts := e.now().UnixMilli()
	if ts < e.state.Timestamp {
		ts = e.state.Timestamp
	}
	e.state.Timestamp = ts
}

// Join adds a connected player. The first time the count reaches two while
// waiting, the game becomes active.
func (e *Engine) Join(sessionID, name string, life int) Result {
	var res Result
	if _, exists := e.state.Players[sessionID]; exists {
		return res
	}

	player := NewPlayer(sessionID, name, life)
	e.state.Players[sessionID] = player
	res.Changed = true

	count := len(e.state.Players)
	res.notify(EventPlayerJoined, PlayerJoined{
		SessionID:   sessionID,
		PlayerName:  name,
		PlayerCount: count,
	})

	if count >= PlayersToStart && e.state.GameStatus == StatusWaiting {
		e.state.GameStatus = StatusActive
		res.notify(EventGameStarted, PlayerCount{PlayerCount: count})
	}
	return res
}

// Disconnect marks a player as temporarily gone
func (e *Engine) Disconnect(sessionID string) Result {
	var res Result
	player, ok := e.state.Players[sessionID]
	if !ok {
		return res
	}
	player.IsConnected = false
	res.Changed = true
	res.notify(EventPlayerDisconnected, PlayerRef{SessionID: sessionID})
	return res
}

// Reconnect marks a disconnected player as back
func (e *Engine) Reconnect(sessionID string) Result {
	var res Result
	player, ok := e.state.Players[sessionID]
	if !ok {
		return res
	}
	player.IsConnected = true
	res.Changed = true
	res.notify(EventPlayerReconnected, PlayerRef{SessionID: sessionID})
	return res
}

// Remove deletes a player and everything it owns
func (e *Engine) Remove(sessionID string) Result {
	var res Result
	if _, ok := e.state.Players[sessionID]; !ok {
		return res
	}
	delete(e.state.Players, sessionID)
	res.Changed = true
	res.notify(EventPlayerLeft, PlayerRef{SessionID: sessionID})
	return res
}

// Finish ends the game. It is the only way to reach StatusFinished and the
// status never leaves it afterwards.
func (e *Engine) Finish() Result {
	var res Result
	if e.state.GameStatus == StatusFinished {
		return res
	}
	e.state.GameStatus = StatusFinished
	res.Changed = true
	res.notify(EventGameFinished, PlayerCount{PlayerCount: len(e.state.Players)})
	return res
}

// Apply runs a client command on behalf of sessionID
func (e *Engine) Apply(sessionID string, cmd Command) Result {
	player, ok := e.state.Players[sessionID]
	if !ok {
		return Result{}
	}

	var res Result
	switch c := cmd.(type) {
	case *MoveCard:
		res.Changed = e.moveCard(player, c)
	case *AddCard:
		res.Changed = e.addCard(player, c)
	case *TapCard:
		res.Changed = tapCard(player, c)
	case *MoveCardPosition:
		res.Changed = moveCardPosition(player, c)
	case *SetCounters:
		res.Changed = setCounters(player, c)
	case *FlipCard:
		res.Changed = flipCard(player, c)
	case *SetLife:
		if c.Life != nil {
			player.Life = *c.Life
			res.Changed = true
		}
	case *SetPoison:
		if c.Poison != nil {
			player.Poison = *c.Poison
			res.Changed = true
		}
	case *DrawCard:
		if player.LibrarySize > 0 {
			player.LibrarySize--
			res.Changed = true
		}
	case *SetLibrarySize:
		if c.LibrarySize != nil {
			player.LibrarySize = max(*c.LibrarySize, 0)
			res.Changed = true
		}
	case *Chat:
		res.notify(EventChat, ChatMessage{
			Sender:     sessionID,
			SenderName: player.Name,
			Text:       c.Text,
			Timestamp:  e.now().UnixMilli(),
		})
	case *Shuffle:
		res.notifyExcept(sessionID, EventPlayerShuffled, PlayerShuffled{
			SessionID:  sessionID,
			PlayerName: player.Name,
		})
	}

	if res.Changed {
		e.touch()
	}
	return res
}

// moveCard commits the removal only once the destination resolves, so a bad
// destination leaves the card where it was
func (e *Engine) moveCard(player *Player, c *MoveCard) bool {
	from, ok := player.ZoneOf(c.FromZone)
	if !ok {
		return false
	}
	card, ok := from[c.CardID]
	if !ok {
		return false
	}
	// resolve the destination before detaching so a bad zone name never drops the card
	to, ok := player.ZoneOf(c.ToZone)
	if !ok {
		return false
	}

	delete(from, c.CardID)
	if ZoneName(c.ToZone) == ZoneBattlefield {
		card.X = valueOr(c.X, 0)
		card.Y = valueOr(c.Y, 0)
	}
	to[c.CardID] = card
	return true
}

func (e *Engine) addCard(player *Player, c *AddCard) bool {
	zone, ok := player.ZoneOf(c.Zone)
	if !ok {
		return false
	}

	id := c.CardData.ID
	if id == "" {
		id = e.newID()
	}
	zone[id] = &Card{
		ID:       id,
		Name:     c.CardData.Name,
		ImageURL: c.CardData.ImageURL,
		X:        c.CardData.X,
		Y:        c.CardData.Y,
		Owner:    player.SessionID,
	}
	return true
}

func tapCard(player *Player, c *TapCard) bool {
	card, ok := player.Battlefield[c.CardID]
	if !ok {
		return false
	}
	if c.Tapped != nil {
		card.Tapped = *c.Tapped
	} else {
		card.Tapped = !card.Tapped
	}
	return true
}

func moveCardPosition(player *Player, c *MoveCardPosition) bool {
	card, ok := player.Battlefield[c.CardID]
	if !ok || c.X == nil || c.Y == nil {
		return false
	}
	card.X = *c.X
	card.Y = *c.Y
	return true
}

func setCounters(player *Player, c *SetCounters) bool {
	card, ok := player.Battlefield[c.CardID]
	if !ok || c.Counters == nil {
		return false
	}
	card.Counters = *c.Counters
	return true
}

func flipCard(player *Player, c *FlipCard) bool {
	card, ok := player.Battlefield[c.CardID]
	if !ok {
		return false
	}
	card.Flipped = !card.Flipped
	return true
}

func valueOr[T any](p *T, def T) T {
	if p == nil {
		return def
	}
	return *p
}
