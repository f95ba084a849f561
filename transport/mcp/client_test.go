package mcp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wricardo/tabletop/api"
	"github.com/wricardo/tabletop/game/engine"
	"github.com/wricardo/tabletop/game/service"
	"github.com/wricardo/tabletop/game/session"
	"go.uber.org/zap/zaptest"
)

func toolRequest(name string, args map[string]interface{}) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
}

func resultText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	require.NotNil(t, result)
	require.NotEmpty(t, result.Content)
	text, ok := result.Content[0].(mcp.TextContent)
	require.True(t, ok, "expected text content")
	return text.Text
}

// newLiveClient runs the real REST API in front of a room manager
func newLiveClient(t *testing.T) (*Client, *session.Manager) {
	t.Helper()
	logger := zaptest.NewLogger(t)
	rooms := session.NewManager(session.DefaultRoomConfig(), nil, logger)
	svc := service.NewGameService(rooms, logger)
	server := httptest.NewServer(api.NewServer(svc, nil, logger))
	t.Cleanup(func() {
		server.Close()
		rooms.Close()
	})
	return NewClient(server.URL, logger), rooms
}

func TestNewClient(t *testing.T) {
	client := NewClient("http://localhost:8080/", nil)
	assert.Equal(t, "http://localhost:8080", client.baseURL)
	assert.NotNil(t, client.httpClient)
	assert.NotNil(t, client.GetMCPServer())
}

func TestClient_apiCall(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/health", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(service.HealthInfo{Status: "ok", Rooms: 2})
	}))
	defer server.Close()

	client := NewClient(server.URL, zaptest.NewLogger(t))
	var health service.HealthInfo
	require.NoError(t, client.apiCall(context.Background(), http.MethodGet, "/health", nil, &health))
	assert.Equal(t, 2, health.Rooms)
}

func TestClient_apiCall_Errors(t *testing.T) {
	t.Run("unreachable", func(t *testing.T) {
		client := NewClient("http://127.0.0.1:1", zaptest.NewLogger(t))
		assert.Error(t, client.apiCall(context.Background(), http.MethodGet, "/health", nil, nil))
	})

	t.Run("error body", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
			json.NewEncoder(w).Encode(map[string]string{"error": "room x: room not found"})
		}))
		defer server.Close()

		client := NewClient(server.URL, zaptest.NewLogger(t))
		err := client.apiCall(context.Background(), http.MethodGet, "/rooms/x", nil, nil)
		assert.EqualError(t, err, "room x: room not found")
	})

	t.Run("bare status", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
			w.Write([]byte("Internal Server Error"))
		}))
		defer server.Close()

		client := NewClient(server.URL, zaptest.NewLogger(t))
		err := client.apiCall(context.Background(), http.MethodGet, "/health", nil, nil)
		assert.EqualError(t, err, "API error: 500")
	})
}

func TestClient_RoomTools(t *testing.T) {
	client, rooms := newLiveClient(t)
	ctx := context.Background()

	result, err := client.handleCreateRoom(ctx, toolRequest("create_room", map[string]interface{}{"room_id": "den"}))
	require.NoError(t, err)
	assert.Contains(t, resultText(t, result), "Created room: den")

	room, err := rooms.Get("den")
	require.NoError(t, err)

	result, err = client.handleGetRoom(ctx, toolRequest("get_room", map[string]interface{}{"room_id": "den"}))
	require.NoError(t, err)
	text := resultText(t, result)
	assert.Contains(t, text, "Room: den")
	assert.Contains(t, text, "Status: waiting")
	assert.Contains(t, text, "Players: 0/4")

	// the directory is updated in the background
	require.Eventually(t, func() bool {
		result, err := client.handleListRooms(ctx, toolRequest("list_rooms", map[string]interface{}{}))
		if err != nil || result.IsError || len(result.Content) == 0 {
			return false
		}
		text, ok := result.Content[0].(mcp.TextContent)
		return ok && strings.Contains(text.Text, "- den: 0/4 players, waiting")
	}, time.Second, 10*time.Millisecond)

	result, err = client.handleFinishGame(ctx, toolRequest("finish_game", map[string]interface{}{"room_id": "den"}))
	require.NoError(t, err)
	assert.Contains(t, resultText(t, result), "Status: finished")

	result, err = client.handleDeleteRoom(ctx, toolRequest("delete_room", map[string]interface{}{"room_id": "den"}))
	require.NoError(t, err)
	assert.Contains(t, resultText(t, result), "Room den deleted")
	assert.True(t, room.Disposed())

	result, err = client.handleGetRoom(ctx, toolRequest("get_room", map[string]interface{}{"room_id": "den"}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "room not found")
}

func TestClient_MissingRoomID(t *testing.T) {
	client := NewClient("http://127.0.0.1:1", zaptest.NewLogger(t))
	result, err := client.handleRoomState(context.Background(), toolRequest("room_state", map[string]interface{}{}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestClient_Health(t *testing.T) {
	client, rooms := newLiveClient(t)
	_, err := rooms.Create("one")
	require.NoError(t, err)

	result, err := client.handleHealth(context.Background(), toolRequest("health", nil))
	require.NoError(t, err)
	text := resultText(t, result)
	assert.Contains(t, text, "Status: ok")
	assert.Contains(t, text, "Rooms: 1")
}

func TestClient_TableRules(t *testing.T) {
	client := NewClient("http://localhost:8080", nil)
	result, err := client.handleTableRules(context.Background(), toolRequest("table_rules", nil))
	require.NoError(t, err)

	text := resultText(t, result)
	for _, want := range []string{"JOINING:", "ZONES:", "COMMANDS", "RECONNECTING:", "commandZone", "60 seconds"} {
		assert.Contains(t, text, want)
	}
}

func TestFormatGameState(t *testing.T) {
	alice := engine.NewPlayer("s1", "Alice", 40)
	alice.Poison = 2
	alice.LibrarySize = 60
	alice.Hand["h1"] = &engine.Card{ID: "h1", Name: "Forest"}
	alice.Battlefield["c2"] = &engine.Card{ID: "c2", Name: "Bear", X: 3, Y: 4, Tapped: true, Counters: 1}
	alice.Battlefield["c1"] = &engine.Card{ID: "c1", Name: "Elf"}

	bob := engine.NewPlayer("s2", "Bob", 38)
	bob.IsConnected = false

	state := &engine.GameState{
		Players:    map[string]*engine.Player{"s1": alice, "s2": bob},
		GameStatus: engine.StatusActive,
	}

	text := formatGameState("den", state)
	assert.Contains(t, text, "Room den • active • 2 player(s)")
	assert.Contains(t, text, "Alice (s1, connected)")
	assert.Contains(t, text, "Life: 40 | Poison: 2 | Library: 60")
	assert.Contains(t, text, "Hand: 1 |")
	assert.Contains(t, text, "Bear [c2] at (3,4) tapped counters=1")
	assert.Contains(t, text, "Bob (s2, disconnected)")
	assert.Less(t, strings.Index(text, "Elf"), strings.Index(text, "Bear"))
	assert.Less(t, strings.Index(text, "Alice"), strings.Index(text, "Bob"))
}

func TestClient_ServeHTTP(t *testing.T) {
	client := NewClient("http://localhost:8080", zaptest.NewLogger(t))

	t.Run("rejects GET", func(t *testing.T) {
		w := httptest.NewRecorder()
		client.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/mcp", nil))
		assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
	})

	t.Run("lists tools", func(t *testing.T) {
		body := `{"jsonrpc":"2.0","id":1,"method":"tools/list","params":{}}`
		w := httptest.NewRecorder()
		client.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/mcp", strings.NewReader(body)))
		require.Equal(t, http.StatusOK, w.Code)

		var resp struct {
			Result struct {
				Tools []struct {
					Name string `json:"name"`
				} `json:"tools"`
			} `json:"result"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))

		names := make([]string, 0, len(resp.Result.Tools))
		for _, tool := range resp.Result.Tools {
			names = append(names, tool.Name)
		}
		assert.ElementsMatch(t, []string{
			"list_rooms", "get_room", "create_room", "delete_room",
			"room_state", "finish_game", "health", "table_rules",
		}, names)
	})
}
