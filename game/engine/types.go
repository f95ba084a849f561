package engine

// ZoneName identifies one of the six per-player card containers
type ZoneName string

const (
	ZoneHand        ZoneName = "hand"
	ZoneBattlefield ZoneName = "battlefield"
	ZoneGraveyard   ZoneName = "graveyard"
	ZoneExile       ZoneName = "exile"
	ZoneLibrary     ZoneName = "library"
	ZoneCommand     ZoneName = "commandZone"
)

// GameStatus is the session-wide progress marker
type GameStatus string

const (
	StatusWaiting  GameStatus = "waiting"
	StatusActive   GameStatus = "active"
	StatusFinished GameStatus = "finished"

	// DefaultLife is the Commander starting life total
	DefaultLife = 40

	// PlayersToStart is the player count that moves a waiting game to active
	PlayersToStart = 2
)

// Card is a single game object
type Card struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	ImageURL string  `json:"imageUrl"`
	Tapped   bool    `json:"tapped"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Counters int     `json:"counters"`
	Flipped  bool    `json:"flipped"`
	Owner    string  `json:"owner"`
}

// Zone maps card id to card
type Zone map[string]*Card

// Player is a participant and the owner of its zones
type Player struct {
	SessionID   string `json:"sessionId"`
	Name        string `json:"name"`
	Life        int    `json:"life"`
	Poison      int    `json:"poison"`
	Hand        Zone   `json:"hand"`
	Battlefield Zone   `json:"battlefield"`
	Graveyard   Zone   `json:"graveyard"`
	Exile       Zone   `json:"exile"`
	Library     Zone   `json:"library"`
	CommandZone Zone   `json:"commandZone"`
	LibrarySize int    `json:"librarySize"`
	IsConnected bool   `json:"isConnected"`
}

// NewPlayer creates a connected player with empty zones
func NewPlayer(sessionID, name string, life int) *Player {
	return &Player{
		SessionID:   sessionID,
		Name:        name,
		Life:        life,
		Hand:        Zone{},
		Battlefield: Zone{},
		Graveyard:   Zone{},
		Exile:       Zone{},
		Library:     Zone{},
		CommandZone: Zone{},
		IsConnected: true,
	}
}

// GameState is the complete shared state of one session
type GameState struct {
	Players    map[string]*Player `json:"players"`
	GameStatus GameStatus         `json:"gameStatus"`
	Timestamp  int64              `json:"timestamp"`
}

// NewGameState returns an empty waiting game
func NewGameState() *GameState {
	return &GameState{
		Players:    make(map[string]*Player),
		GameStatus: StatusWaiting,
	}
}

// Clone returns a deep copy that shares nothing with s
func (s *GameState) Clone() *GameState {
	out := &GameState{
		Players:    make(map[string]*Player, len(s.Players)),
		GameStatus: s.GameStatus,
		Timestamp:  s.Timestamp,
	}
	for id, p := range s.Players {
		cp := *p
		cp.Hand = p.Hand.clone()
		cp.Battlefield = p.Battlefield.clone()
		cp.Graveyard = p.Graveyard.clone()
		cp.Exile = p.Exile.clone()
		cp.Library = p.Library.clone()
		cp.CommandZone = p.CommandZone.clone()
		out.Players[id] = &cp
	}
	return out
}

func (z Zone) clone() Zone {
	out := make(Zone, len(z))
	for id, c := range z {
		cp := *c
		out[id] = &cp
	}
	return out
}
