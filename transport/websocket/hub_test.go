package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wricardo/tabletop/game/engine"
	"github.com/wricardo/tabletop/game/session"
	"go.uber.org/zap/zaptest"
)

type inbound struct {
	Event  string            `json:"event"`
	RoomID string            `json:"roomId"`
	Data   map[string]any    `json:"data"`
	State  *engine.GameState `json:"state"`
	Seq    uint64            `json:"seq"`
}

type testEnv struct {
	hub    *Hub
	rooms  *session.Manager
	server *httptest.Server
}

func newTestEnv(t *testing.T, grace time.Duration) *testEnv {
	t.Helper()
	logger := zaptest.NewLogger(t)

	cfg := session.DefaultRoomConfig()
	cfg.PatchInterval = 5 * time.Millisecond
	cfg.ReconnectGrace = grace
	rooms := session.NewManager(cfg, nil, logger)

	hub := NewHub(rooms, logger)
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hub.ServeWS(w, r, ParseJoinRequest(r))
	}))

	t.Cleanup(func() {
		server.Close()
		cancel()
		rooms.Close()
	})
	return &testEnv{hub: hub, rooms: rooms, server: server}
}

func (e *testEnv) dial(t *testing.T, query url.Values) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	u := "ws" + strings.TrimPrefix(e.server.URL, "http") + "/ws?" + query.Encode()
	return websocket.DefaultDialer.Dial(u, nil)
}

func (e *testEnv) join(t *testing.T, query url.Values) (*websocket.Conn, string) {
	t.Helper()
	conn, _, err := e.dial(t, query)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	msg := readUntil(t, conn, session.EventJoined)
	return conn, msg.Data["sessionId"].(string)
}

func readUntil(t *testing.T, conn *websocket.Conn, event string) inbound {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		require.NoError(t, conn.SetReadDeadline(deadline))
		var msg inbound
		_, data, err := conn.ReadMessage()
		require.NoError(t, err, "waiting for %s", event)
		require.NoError(t, json.Unmarshal(data, &msg))
		if msg.Event == event {
			return msg
		}
	}
}

func send(t *testing.T, conn *websocket.Conn, kind string, payload map[string]any) {
	t.Helper()
	data, err := json.Marshal(engine.Envelope{Kind: kind, Payload: payload})
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, data))
}

func TestParseJoinRequest(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/ws?room=abcd&name=Alice&startingLife=20&sessionId=s1", nil)
	req := ParseJoinRequest(r)
	assert.Equal(t, JoinRequest{RoomID: "abcd", PlayerName: "Alice", StartingLife: 20, SessionID: "s1"}, req)

	r = httptest.NewRequest(http.MethodGet, "/ws?startingLife=lots", nil)
	assert.Zero(t, ParseJoinRequest(r).StartingLife)
}

func TestHubJoinAndCommand(t *testing.T) {
	env := newTestEnv(t, time.Minute)

	alice, aliceID := env.join(t, url.Values{"room": {"t1"}, "name": {"Alice"}})
	bob, _ := env.join(t, url.Values{"room": {"t1"}, "name": {"Bob"}})

	started := readUntil(t, alice, "gameStarted")
	assert.Equal(t, float64(2), started.Data["playerCount"])
	readUntil(t, bob, "gameStarted")

	send(t, alice, "addCard", map[string]any{"zone": "hand", "cardData": map[string]any{"id": "c1", "name": "Bear"}})
	send(t, alice, "moveCard", map[string]any{"cardId": "c1", "fromZone": "hand", "toZone": "battlefield", "x": 3, "y": 4})

	for {
		msg := readUntil(t, bob, session.EventState)
		card, ok := msg.State.Players[aliceID].Battlefield["c1"]
		if ok {
			assert.Equal(t, 3.0, card.X)
			assert.Equal(t, 4.0, card.Y)
			assert.Equal(t, "t1", msg.RoomID)
			break
		}
	}
	assert.Equal(t, 2, env.hub.ClientCount())
}

func TestHubMalformedMessagesAreIgnored(t *testing.T) {
	env := newTestEnv(t, time.Minute)
	conn, id := env.join(t, url.Values{"room": {"t2"}})

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json")))
	send(t, conn, "castSpell", nil)
	send(t, conn, "setLife", map[string]any{"life": 12})

	for {
		msg := readUntil(t, conn, session.EventState)
		if msg.State.Players[id].Life == 12 {
			break
		}
	}
}

func TestHubRoomFull(t *testing.T) {
	env := newTestEnv(t, time.Minute)
	for i := 0; i < 4; i++ {
		env.join(t, url.Values{"room": {"full"}})
	}

	_, resp, err := env.dial(t, url.Values{"room": {"full"}})
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestHubJoinWithoutRoomPicksOpenRoom(t *testing.T) {
	env := newTestEnv(t, time.Minute)
	env.join(t, url.Values{"room": {"open"}})
	env.join(t, url.Values{})

	room, err := env.rooms.Get("open")
	require.NoError(t, err)
	assert.Equal(t, 2, room.PlayerCount())
	assert.Equal(t, 1, env.rooms.Count())
}

func TestHubReconnect(t *testing.T) {
	env := newTestEnv(t, time.Minute)
	alice, _ := env.join(t, url.Values{"room": {"rc"}, "name": {"Alice"}})
	bob, bobID := env.join(t, url.Values{"room": {"rc"}, "name": {"Bob"}})
	readUntil(t, alice, "gameStarted")

	// an abrupt drop holds the seat
	bob.UnderlyingConn().Close()
	dropped := readUntil(t, alice, "playerDisconnected")
	assert.Equal(t, bobID, dropped.Data["sessionId"])

	again, _, err := env.dial(t, url.Values{"room": {"rc"}, "sessionId": {bobID}})
	require.NoError(t, err)
	defer again.Close()
	joined := readUntil(t, again, session.EventJoined)
	assert.Equal(t, bobID, joined.Data["sessionId"])
	readUntil(t, alice, "playerReconnected")

	// a seat nobody is holding cannot be claimed
	_, resp, err := env.dial(t, url.Values{"room": {"rc"}, "sessionId": {"made-up"}})
	require.Error(t, err)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestHubConsentedClose(t *testing.T) {
	env := newTestEnv(t, time.Minute)
	alice, _ := env.join(t, url.Values{"room": {"cc"}})
	bob, bobID := env.join(t, url.Values{"room": {"cc"}})
	readUntil(t, alice, "gameStarted")

	require.NoError(t, bob.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(closeConsented, "bye")))

	left := readUntil(t, alice, "playerLeft")
	assert.Equal(t, bobID, left.Data["sessionId"])
}

func TestHubUnknownRoomOnReconnect(t *testing.T) {
	env := newTestEnv(t, time.Minute)
	_, resp, err := env.dial(t, url.Values{"room": {"nope"}, "sessionId": {"s"}})
	require.Error(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestJoinErrorStatus(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{session.ErrRoomNotFound, http.StatusNotFound},
		{session.ErrRoomFull, http.StatusConflict},
		{session.ErrAlreadyJoined, http.StatusConflict},
		{session.ErrReconnectRejected, http.StatusForbidden},
		{session.ErrRoomDisposed, http.StatusGone},
		{assert.AnError, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, joinErrorStatus(tt.err), tt.err.Error())
	}
}
