package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/wricardo/tabletop/game/engine"
	"github.com/wricardo/tabletop/game/session"
	"go.uber.org/zap"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 16 * 1024

	// Outbound messages buffered per client before it counts as too slow.
	sendBufferSize = 256

	// Close code a client sends to leave for good.
	closeConsented = 4000
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Same open policy as the HTTP API's CORS setup
		return true
	},
}

// RoomSource resolves the room a connection asks for
type RoomSource interface {
	Get(id string) (*session.Room, error)
	GetOrCreate(id string) (*session.Room, error)
	List() []*session.Room
}

// JoinRequest is what a client asks for when it connects
type JoinRequest struct {
	RoomID       string
	PlayerName   string
	StartingLife int
	// SessionID is set when the client is reclaiming a seat
	SessionID string
}

// ParseJoinRequest reads ?room=&name=&startingLife=&sessionId=
func ParseJoinRequest(r *http.Request) JoinRequest {
	q := r.URL.Query()
	req := JoinRequest{
		RoomID:     q.Get("room"),
		PlayerName: q.Get("name"),
		SessionID:  q.Get("sessionId"),
	}
	if life, err := strconv.Atoi(q.Get("startingLife")); err == nil {
		req.StartingLife = life
	}
	return req
}

// Client is one WebSocket connection seated in a room
type Client struct {
	hub       *Hub
	conn      *websocket.Conn
	send      chan []byte
	room      *session.Room
	sessionID string

	closed    chan struct{}
	closeOnce sync.Once
}

// ID returns the client's session id
func (c *Client) ID() string { return c.sessionID }

// Send queues data for the write pump; false means the client is gone or too slow
func (c *Client) Send(data []byte) bool {
	select {
	case <-c.closed:
		return false
	default:
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

func (c *Client) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

// Close makes the write pump hang up
func (c *Client) Close() {
	c.closeOnce.Do(func() { close(c.closed) })
}

// Hub maintains the set of active clients
type Hub struct {
	rooms  RoomSource
	logger *zap.Logger

	// Registered clients by room ID
	sessions map[string]map[*Client]bool

	// Register requests from clients
	register chan *Client

	// Unregister requests from clients
	unregister chan *Client

	// Closed once Run returns
	done chan struct{}

	connected atomic.Int64
}

// NewHub creates a new WebSocket hub
func NewHub(rooms RoomSource, logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		rooms:      rooms,
		logger:     logger,
		sessions:   make(map[string]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
}

// Run starts the hub's event loop; cancelling ctx hangs up every client
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case client := <-h.register:
			h.registerClient(client)

		case client := <-h.unregister:
			h.unregisterClient(client)

		case <-ctx.Done():
			for _, clients := range h.sessions {
				for client := range clients {
					client.Close()
				}
			}
			return
		}
	}
}

// ClientCount returns the number of open connections
func (h *Hub) ClientCount() int {
	return int(h.connected.Load())
}

// ServeWS seats the caller in a room and upgrades the connection. Seating
// happens first so a refusal can still be reported as a plain HTTP error.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, req JoinRequest) {
	client := &Client{
		hub:    h,
		send:   make(chan []byte, sendBufferSize),
		closed: make(chan struct{}),
	}

	room, err := h.seat(client, req)
	if err != nil {
		h.logger.Info("join refused",
			zap.String("room", req.RoomID),
			zap.String("session", req.SessionID),
			zap.Error(err))
		http.Error(w, err.Error(), joinErrorStatus(err))
		return
	}
	client.room = room

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		// a fresh seat is given back, a reclaimed one goes back into its grace window
		_ = room.LeaveClient(client, req.SessionID == "")
		return
	}
	client.conn = conn

	select {
	case h.register <- client:
	case <-h.done:
		client.Close()
	}

	// Start client goroutines
	go client.writePump()
	go client.readPump()
}

func (h *Hub) seat(client *Client, req JoinRequest) (*session.Room, error) {
	if req.SessionID != "" {
		if req.RoomID == "" {
			return nil, session.ErrReconnectRejected
		}
		room, err := h.rooms.Get(req.RoomID)
		if err != nil {
			return nil, err
		}
		client.sessionID = req.SessionID
		if err := room.Reconnect(req.SessionID, client); err != nil {
			return nil, err
		}
		return room, nil
	}

	client.sessionID = uuid.NewString()
	opts := session.JoinOptions{PlayerName: req.PlayerName, StartingLife: req.StartingLife}

	// a room can dispose between lookup and join; one retry picks up its successor
	var err error
	for attempt := 0; attempt < 2; attempt++ {
		var room *session.Room
		room, err = h.pickRoom(req.RoomID)
		if err != nil {
			return nil, err
		}
		err = room.Join(client, opts)
		if err == nil {
			return room, nil
		}
		if !errors.Is(err, session.ErrRoomDisposed) {
			return nil, err
		}
	}
	return nil, err
}

// pickRoom returns the named room, or any open room that still has seats
func (h *Hub) pickRoom(roomID string) (*session.Room, error) {
	if roomID != "" {
		return h.rooms.GetOrCreate(roomID)
	}
	for _, room := range h.rooms.List() {
		if room.Status() != engine.StatusFinished && room.PlayerCount() < room.MaxClients() {
			return room, nil
		}
	}
	return h.rooms.GetOrCreate("")
}

func joinErrorStatus(err error) int {
	switch {
	case errors.Is(err, session.ErrRoomNotFound):
		return http.StatusNotFound
	case errors.Is(err, session.ErrRoomFull), errors.Is(err, session.ErrAlreadyJoined):
		return http.StatusConflict
	case errors.Is(err, session.ErrReconnectRejected):
		return http.StatusForbidden
	case errors.Is(err, session.ErrRoomDisposed):
		return http.StatusGone
	default:
		return http.StatusInternalServerError
	}
}

// registerClient adds a client to its room's set
func (h *Hub) registerClient(client *Client) {
	roomID := client.room.ID()
	if h.sessions[roomID] == nil {
		h.sessions[roomID] = make(map[*Client]bool)
	}
	h.sessions[roomID][client] = true
	h.connected.Add(1)

	h.logger.Debug("client registered",
		zap.String("room", roomID),
		zap.String("session", client.sessionID),
		zap.Int("room_clients", len(h.sessions[roomID])))
}

// unregisterClient removes a client from its room's set
func (h *Hub) unregisterClient(client *Client) {
	roomID := client.room.ID()
	if clients, ok := h.sessions[roomID]; ok {
		if _, ok := clients[client]; ok {
			delete(clients, client)
			h.connected.Add(-1)

			// Clean up empty rooms
			if len(clients) == 0 {
				delete(h.sessions, roomID)
			}

			h.logger.Debug("client unregistered",
				zap.String("room", roomID),
				zap.String("session", client.sessionID),
				zap.Int("room_clients", len(clients)))
		}
	}
}

// readPump pumps commands from the WebSocket connection to the room
func (c *Client) readPump() {
	consented := false
	defer func() {
		c.Close()
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
		if err := c.room.LeaveClient(c, consented); err != nil && !errors.Is(err, session.ErrRoomDisposed) {
			c.hub.logger.Warn("leave failed", zap.String("session", c.sessionID), zap.Error(err))
		}
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			// a hang-up we started ourselves is never the client's choice
			consented = isConsentedClose(err) && !c.isClosed()
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, closeConsented) {
				c.hub.logger.Debug("websocket closed unexpectedly",
					zap.String("session", c.sessionID),
					zap.Error(err))
			}
			return
		}

		var env engine.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			c.hub.logger.Debug("dropping malformed message",
				zap.String("session", c.sessionID),
				zap.Error(err))
			continue
		}
		if err := c.room.Dispatch(c.sessionID, env); err != nil {
			return
		}
	}
}

func isConsentedClose(err error) bool {
	var ce *websocket.CloseError
	if !errors.As(err, &ce) {
		return false
	}
	return ce.Code == websocket.CloseNormalClosure || ce.Code == closeConsented
}

// writePump pumps messages from the room to the WebSocket connection
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-c.closed:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
