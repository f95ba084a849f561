package engine

// Event is the wire name of an outbound notification
type Event string

const (
	EventPlayerJoined       Event = "playerJoined"
	EventGameStarted        Event = "gameStarted"
	EventPlayerDisconnected Event = "playerDisconnected"
	EventPlayerReconnected  Event = "playerReconnected"
	EventPlayerLeft         Event = "playerLeft"
	EventPlayerShuffled     Event = "playerShuffled"
	EventChat               Event = "chat"
	EventGameFinished       Event = "gameFinished"
)

// Notification is an ephemeral event to be delivered once, right away.
// Except names the one session that must not receive it.
type Notification struct {
	Event  Event
	Data   any
	Except string
}

// PlayerJoined is the payload of EventPlayerJoined
type PlayerJoined struct {
	SessionID   string `json:"sessionId"`
	PlayerName  string `json:"playerName"`
	PlayerCount int    `json:"playerCount"`
}

// PlayerCount is the payload of EventGameStarted and EventGameFinished
type PlayerCount struct {
	PlayerCount int `json:"playerCount"`
}

// PlayerRef is the payload of the disconnect, reconnect and leave events
type PlayerRef struct {
	SessionID string `json:"sessionId"`
}

// PlayerShuffled is the payload of EventPlayerShuffled
type PlayerShuffled struct {
	SessionID  string `json:"sessionId"`
	PlayerName string `json:"playerName"`
}

// ChatMessage is the payload of EventChat
type ChatMessage struct {
	Sender     string `json:"sender"`
	SenderName string `json:"senderName"`
	Text       string `json:"text"`
	Timestamp  int64  `json:"timestamp"`
}

// Result reports what a mutation did
type Result struct {
	Changed       bool
	Notifications []Notification
}

func (r *Result) notify(event Event, data any) {
	r.Notifications = append(r.Notifications, Notification{Event: event, Data: data})
}

func (r *Result) notifyExcept(except string, event Event, data any) {
	r.Notifications = append(r.Notifications, Notification{Event: event, Data: data, Except: except})
}
