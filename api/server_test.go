package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wricardo/tabletop/game/engine"
	"github.com/wricardo/tabletop/game/service"
	"github.com/wricardo/tabletop/game/session"
	"go.uber.org/zap/zaptest"
)

// MockGameService implements service.GameService for testing
type MockGameService struct {
	// Room Management
	CreateRoomFunc func(ctx context.Context, roomID string) (*service.RoomInfo, error)
	GetRoomFunc    func(ctx context.Context, roomID string) (*service.RoomInfo, error)
	ListRoomsFunc  func(ctx context.Context) ([]*service.RoomInfo, error)
	DeleteRoomFunc func(ctx context.Context, roomID string) error

	// Game State
	GetRoomStateFunc func(ctx context.Context, roomID string) (*engine.GameState, error)
	FinishGameFunc   func(ctx context.Context, roomID string) (*service.RoomInfo, error)

	HealthFunc func(ctx context.Context) (*service.HealthInfo, error)
}

func (m *MockGameService) CreateRoom(ctx context.Context, roomID string) (*service.RoomInfo, error) {
	if m.CreateRoomFunc != nil {
		return m.CreateRoomFunc(ctx, roomID)
	}
	if roomID == "" {
		roomID = "a1b2"
	}
	return &service.RoomInfo{ID: roomID, MaxClients: 4, Status: engine.StatusWaiting, CreatedAt: time.Now()}, nil
}

func (m *MockGameService) GetRoom(ctx context.Context, roomID string) (*service.RoomInfo, error) {
	if m.GetRoomFunc != nil {
		return m.GetRoomFunc(ctx, roomID)
	}
	return &service.RoomInfo{ID: roomID, MaxClients: 4, Status: engine.StatusWaiting}, nil
}

func (m *MockGameService) ListRooms(ctx context.Context) ([]*service.RoomInfo, error) {
	if m.ListRoomsFunc != nil {
		return m.ListRoomsFunc(ctx)
	}
	return []*service.RoomInfo{}, nil
}

func (m *MockGameService) DeleteRoom(ctx context.Context, roomID string) error {
	if m.DeleteRoomFunc != nil {
		return m.DeleteRoomFunc(ctx, roomID)
	}
	return nil
}

func (m *MockGameService) GetRoomState(ctx context.Context, roomID string) (*engine.GameState, error) {
	if m.GetRoomStateFunc != nil {
		return m.GetRoomStateFunc(ctx, roomID)
	}
	return &engine.GameState{Players: map[string]*engine.Player{}, GameStatus: engine.StatusWaiting}, nil
}

func (m *MockGameService) FinishGame(ctx context.Context, roomID string) (*service.RoomInfo, error) {
	if m.FinishGameFunc != nil {
		return m.FinishGameFunc(ctx, roomID)
	}
	return &service.RoomInfo{ID: roomID, Status: engine.StatusFinished}, nil
}

func (m *MockGameService) Health(ctx context.Context) (*service.HealthInfo, error) {
	if m.HealthFunc != nil {
		return m.HealthFunc(ctx)
	}
	return &service.HealthInfo{Status: "ok"}, nil
}

func newTestServer(t *testing.T, svc service.GameService) *Server {
	t.Helper()
	return NewServer(svc, nil, zaptest.NewLogger(t))
}

func do(t *testing.T, s *Server, method, path string, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	w := httptest.NewRecorder()
	s.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.NewDecoder(bytes.NewReader(w.Body.Bytes())).Decode(v))
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, &MockGameService{
		HealthFunc: func(ctx context.Context) (*service.HealthInfo, error) {
			return &service.HealthInfo{Status: "ok", Rooms: 3}, nil
		},
	})

	w := do(t, s, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, w.Code)

	var health service.HealthInfo
	decode(t, w, &health)
	assert.Equal(t, "ok", health.Status)
	assert.Equal(t, 3, health.Rooms)
}

func TestCreateRoom(t *testing.T) {
	t.Run("with id", func(t *testing.T) {
		var got string
		s := newTestServer(t, &MockGameService{
			CreateRoomFunc: func(ctx context.Context, roomID string) (*service.RoomInfo, error) {
				got = roomID
				return &service.RoomInfo{ID: roomID}, nil
			},
		})

		w := do(t, s, http.MethodPost, "/rooms", `{"id":"table"}`)
		require.Equal(t, http.StatusCreated, w.Code)
		assert.Equal(t, "table", got)

		var room service.RoomInfo
		decode(t, w, &room)
		assert.Equal(t, "table", room.ID)
	})

	t.Run("without body", func(t *testing.T) {
		s := newTestServer(t, &MockGameService{})
		w := do(t, s, http.MethodPost, "/rooms", "")
		require.Equal(t, http.StatusCreated, w.Code)

		var room service.RoomInfo
		decode(t, w, &room)
		assert.Equal(t, "a1b2", room.ID)
	})

	t.Run("invalid body", func(t *testing.T) {
		s := newTestServer(t, &MockGameService{})
		w := do(t, s, http.MethodPost, "/rooms", `{"id":`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("duplicate", func(t *testing.T) {
		s := newTestServer(t, &MockGameService{
			CreateRoomFunc: func(ctx context.Context, roomID string) (*service.RoomInfo, error) {
				return nil, fmt.Errorf("failed to create room: %w", session.ErrRoomAlreadyExists)
			},
		})
		w := do(t, s, http.MethodPost, "/rooms", `{"id":"table"}`)
		assert.Equal(t, http.StatusConflict, w.Code)
	})
}

func TestListRooms(t *testing.T) {
	s := newTestServer(t, &MockGameService{
		ListRoomsFunc: func(ctx context.Context) ([]*service.RoomInfo, error) {
			return []*service.RoomInfo{
				{ID: "r1", Status: engine.StatusActive},
				{ID: "r2", Status: engine.StatusWaiting},
				{ID: "r3", Status: engine.StatusActive},
			}, nil
		},
	})

	tests := []struct {
		name      string
		query     string
		wantCount int
		wantTotal int
		wantFirst string
	}{
		{"all", "", 3, 3, "r1"},
		{"limit", "?limit=2", 2, 3, "r1"},
		{"status filter", "?status=waiting", 1, 1, "r2"},
		{"status and limit", "?status=active&limit=1", 1, 2, "r1"},
		{"bad limit ignored", "?limit=zero", 3, 3, "r1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, s, http.MethodGet, "/rooms"+tt.query, "")
			require.Equal(t, http.StatusOK, w.Code)

			var resp struct {
				Count int                 `json:"count"`
				Total int                 `json:"total"`
				Rooms []*service.RoomInfo `json:"rooms"`
			}
			decode(t, w, &resp)
			assert.Equal(t, tt.wantCount, resp.Count)
			assert.Equal(t, tt.wantTotal, resp.Total)
			require.Len(t, resp.Rooms, tt.wantCount)
			assert.Equal(t, tt.wantFirst, resp.Rooms[0].ID)
		})
	}
}

func TestRoomErrors(t *testing.T) {
	notFound := func(ctx context.Context, roomID string) (*service.RoomInfo, error) {
		return nil, fmt.Errorf("room %s: %w", roomID, session.ErrRoomNotFound)
	}
	s := newTestServer(t, &MockGameService{
		GetRoomFunc:    notFound,
		FinishGameFunc: notFound,
		DeleteRoomFunc: func(ctx context.Context, roomID string) error {
			return fmt.Errorf("room %s: %w", roomID, session.ErrRoomNotFound)
		},
		GetRoomStateFunc: func(ctx context.Context, roomID string) (*engine.GameState, error) {
			return nil, fmt.Errorf("room %s: %w", roomID, session.ErrRoomDisposed)
		},
	})

	tests := []struct {
		method string
		path   string
		want   int
	}{
		{http.MethodGet, "/rooms/nope", http.StatusNotFound},
		{http.MethodDelete, "/rooms/nope", http.StatusNotFound},
		{http.MethodPost, "/rooms/nope/finish", http.StatusNotFound},
		{http.MethodGet, "/rooms/nope/state", http.StatusGone},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			w := do(t, s, tt.method, tt.path, "")
			assert.Equal(t, tt.want, w.Code)

			var body map[string]string
			decode(t, w, &body)
			assert.Contains(t, body["error"], "nope")
		})
	}
}

func TestGetRoomState(t *testing.T) {
	s := newTestServer(t, &MockGameService{
		GetRoomStateFunc: func(ctx context.Context, roomID string) (*engine.GameState, error) {
			return &engine.GameState{
				Players: map[string]*engine.Player{
					"s1": {SessionID: "s1", Name: "Alice", Life: 40},
				},
				GameStatus: engine.StatusActive,
			}, nil
		},
	})

	w := do(t, s, http.MethodGet, "/rooms/r1/state", "")
	require.Equal(t, http.StatusOK, w.Code)

	var state engine.GameState
	decode(t, w, &state)
	assert.Equal(t, engine.StatusActive, state.GameStatus)
	require.Contains(t, state.Players, "s1")
	assert.Equal(t, "Alice", state.Players["s1"].Name)
}

func TestFinishAndDelete(t *testing.T) {
	var finished, deleted string
	s := newTestServer(t, &MockGameService{
		FinishGameFunc: func(ctx context.Context, roomID string) (*service.RoomInfo, error) {
			finished = roomID
			return &service.RoomInfo{ID: roomID, Status: engine.StatusFinished}, nil
		},
		DeleteRoomFunc: func(ctx context.Context, roomID string) error {
			deleted = roomID
			return nil
		},
	})

	w := do(t, s, http.MethodPost, "/rooms/r1/finish", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "r1", finished)

	var room service.RoomInfo
	decode(t, w, &room)
	assert.Equal(t, engine.StatusFinished, room.Status)

	w = do(t, s, http.MethodDelete, "/rooms/r2", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "r2", deleted)
}

func TestMethodNotAllowed(t *testing.T) {
	s := newTestServer(t, &MockGameService{})
	w := do(t, s, http.MethodPut, "/rooms/r1", "")
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestCORS(t *testing.T) {
	s := newTestServer(t, &MockGameService{})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "http://example.com")
	w := httptest.NewRecorder()
	s.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestHandleMountsExtraRoutes(t *testing.T) {
	s := newTestServer(t, &MockGameService{})
	s.Handle("/extra", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	w := do(t, s, http.MethodGet, "/extra", "")
	assert.Equal(t, http.StatusTeapot, w.Code)
}

func TestErrorStatus(t *testing.T) {
	assert.Equal(t, http.StatusNotFound, errorStatus(session.ErrRoomNotFound))
	assert.Equal(t, http.StatusConflict, errorStatus(session.ErrRoomAlreadyExists))
	assert.Equal(t, http.StatusGone, errorStatus(session.ErrRoomDisposed))
	assert.Equal(t, http.StatusInternalServerError, errorStatus(assert.AnError))
}
