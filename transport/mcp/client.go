package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/wricardo/tabletop/game/engine"
	"github.com/wricardo/tabletop/game/service"
	"go.uber.org/zap"
)

// Client is a thin MCP client that proxies to the REST API
type Client struct {
	baseURL    string
	httpClient *http.Client
	mcpServer  *server.MCPServer
	logger     *zap.Logger
}

// NewClient creates a new MCP client that calls the REST API
func NewClient(baseURL string, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		logger: logger,
	}

	c.initMCPServer()
	return c
}

// initMCPServer initializes the MCP server with all tools
func (c *Client) initMCPServer() {
	c.mcpServer = server.NewMCPServer(
		"Tabletop",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithInstructions(`Tabletop - MCP Interface

Operator tooling for a multiplayer card-game table server. This is a thin
client that proxies all requests to the REST API server. Players themselves
connect over WebSocket; these tools observe and manage the rooms they play in.

AVAILABLE TOOLS:
- list_rooms: List rooms known to discovery
- get_room: Get one room's occupancy and status
- room_state: Show every player's life, counters and zones in a room
- create_room: Open a room ahead of time
- finish_game: Mark a room's game as finished
- delete_room: Dispose a room and disconnect its players
- health: Server liveness and room count
- table_rules: How commands, zones and reconnects work`),
	)

	c.registerTools()
}

func roomIDSchema() map[string]interface{} {
	return map[string]interface{}{
		"room_id": map[string]interface{}{
			"type":        "string",
			"description": "Room ID",
		},
	}
}

// registerTools registers all MCP tools
func (c *Client) registerTools() {
	noArgs := mcp.ToolInputSchema{
		Type:       "object",
		Properties: map[string]interface{}{},
	}
	byRoom := mcp.ToolInputSchema{
		Type:       "object",
		Properties: roomIDSchema(),
		Required:   []string{"room_id"},
	}

	// Room management
	c.mcpServer.AddTool(mcp.Tool{
		Name:        "list_rooms",
		Description: "List rooms known to discovery, optionally filtered by status",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"status": map[string]interface{}{
					"type":        "string",
					"enum":        []string{"waiting", "active", "finished"},
					"description": "Only list rooms in this state (optional)",
				},
			},
		},
	}, c.handleListRooms)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "get_room",
		Description: "Get a room's occupancy and status",
		InputSchema: byRoom,
	}, c.handleGetRoom)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "create_room",
		Description: "Create a room; an ID is generated when none is given",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"room_id": map[string]interface{}{
					"type":        "string",
					"description": "Room ID to reserve (optional)",
				},
			},
		},
	}, c.handleCreateRoom)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "delete_room",
		Description: "Dispose a room and disconnect everyone in it",
		InputSchema: byRoom,
	}, c.handleDeleteRoom)

	// Game state
	c.mcpServer.AddTool(mcp.Tool{
		Name:        "room_state",
		Description: "Show the game state of a room: players, life, poison and zone contents",
		InputSchema: byRoom,
	}, c.handleRoomState)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "finish_game",
		Description: "Mark the room's game as finished",
		InputSchema: byRoom,
	}, c.handleFinishGame)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "health",
		Description: "Server liveness and the number of rooms it hosts",
		InputSchema: noArgs,
	}, c.handleHealth)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "table_rules",
		Description: "Explain the commands players send, the zones and the reconnect rules",
		InputSchema: noArgs,
	}, c.handleTableRules)
}

// GetMCPServer returns the underlying MCP server for serving
func (c *Client) GetMCPServer() *server.MCPServer {
	return c.mcpServer
}

// ServeHTTP answers single JSON-RPC messages POSTed to the /mcp endpoint
func (c *Client) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "Failed to read request", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	response := c.mcpServer.HandleMessage(r.Context(), body)

	w.Header().Set("Content-Type", "application/json")
	if response == nil {
		w.WriteHeader(http.StatusAccepted)
		return
	}
	responseData, err := json.Marshal(response)
	if err != nil {
		http.Error(w, "Failed to marshal response", http.StatusInternalServerError)
		return
	}
	w.Write(responseData)
}

// Helper methods for API calls

func (c *Client) apiCall(ctx context.Context, method, path string, body interface{}, result interface{}) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reqBody = bytes.NewBuffer(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return err
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var errResp map[string]string
		json.NewDecoder(resp.Body).Decode(&errResp)
		if msg, ok := errResp["error"]; ok {
			return fmt.Errorf("%s", msg)
		}
		return fmt.Errorf("API error: %d", resp.StatusCode)
	}

	if result != nil {
		return json.NewDecoder(resp.Body).Decode(result)
	}

	return nil
}

func roomPath(roomID string, suffix string) string {
	return "/rooms/" + url.PathEscape(roomID) + suffix
}

// Tool handlers

func (c *Client) handleListRooms(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path := "/rooms"
	if status := request.GetString("status", ""); status != "" {
		path += "?status=" + url.QueryEscape(status)
	}

	var response struct {
		Count int                `json:"count"`
		Rooms []service.RoomInfo `json:"rooms"`
	}
	if err := c.apiCall(ctx, http.MethodGet, path, nil, &response); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Rooms (%d):\n\n", response.Count)
	for i := range response.Rooms {
		r := &response.Rooms[i]
		fmt.Fprintf(&b, "- %s: %d/%d players, %s (created %s)\n",
			r.ID, r.Players, r.MaxClients, r.Status, r.CreatedAt.Format("15:04:05"))
	}
	return mcp.NewToolResultText(b.String()), nil
}

func (c *Client) handleGetRoom(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	roomID, err := request.RequireString("room_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var room service.RoomInfo
	if err := c.apiCall(ctx, http.MethodGet, roomPath(roomID, ""), nil, &room); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(formatRoomInfo(&room)), nil
}

func (c *Client) handleCreateRoom(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	body := map[string]string{}
	if roomID := request.GetString("room_id", ""); roomID != "" {
		body["id"] = roomID
	}

	var room service.RoomInfo
	if err := c.apiCall(ctx, http.MethodPost, "/rooms", body, &room); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	c.logger.Info("room created via mcp", zap.String("room", room.ID))
	return mcp.NewToolResultText(fmt.Sprintf("Created room: %s\nJoin with: /ws?room=%s&name=<player>\n", room.ID, room.ID)), nil
}

func (c *Client) handleDeleteRoom(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	roomID, err := request.RequireString("room_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	if err := c.apiCall(ctx, http.MethodDelete, roomPath(roomID, ""), nil, nil); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Room %s deleted\n", roomID)), nil
}

func (c *Client) handleRoomState(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	roomID, err := request.RequireString("room_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var state engine.GameState
	if err := c.apiCall(ctx, http.MethodGet, roomPath(roomID, "/state"), nil, &state); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(formatGameState(roomID, &state)), nil
}

func (c *Client) handleFinishGame(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	roomID, err := request.RequireString("room_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var room service.RoomInfo
	if err := c.apiCall(ctx, http.MethodPost, roomPath(roomID, "/finish"), nil, &room); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(formatRoomInfo(&room)), nil
}

func (c *Client) handleHealth(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var health service.HealthInfo
	if err := c.apiCall(ctx, http.MethodGet, "/health", nil, &health); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Status: %s\nRooms: %d\n", health.Status, health.Rooms)), nil
}

func (c *Client) handleTableRules(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(tableRules), nil
}

const tableRules = `Tabletop - Table Rules

JOINING:
Players connect to /ws?room=<id>&name=<name>&startingLife=<n>. A room seats
up to 4 players. The game becomes active once two players are seated.
The first message a player receives is "joined" with their sessionId.

ZONES:
Every player owns six zones: hand, battlefield, graveyard, exile, library
and commandZone. A card lives in exactly one zone at a time. Only cards on
the battlefield have a position, tapped state, flip state and counters.

COMMANDS (sent as {"kind": ..., "payload": {...}}):
- moveCard {cardId, fromZone, toZone, x?, y?}
- addCard {zone, cardData}
- moveCardPosition {cardId, x, y}
- tapCard {cardId, tapped?}
- flipCard {cardId}
- setLife {life}
- setPoison {poison}
- setCounters {cardId, counters}
- drawCard
- setLibrarySize {librarySize}
- shuffle
- chat {text}
Malformed commands are ignored. Changes reach every player as a "state"
message at most every 50ms.

RECONNECTING:
A player whose connection drops keeps their seat for 60 seconds and can
reclaim it with /ws?room=<id>&sessionId=<previous id>. A deliberate leave
(close code 1000 or 4000) gives the seat up immediately.

FINISHING:
Use finish_game to mark a game finished. Players can keep playing, but the
room stops being offered to new players looking for a table.`

func formatRoomInfo(room *service.RoomInfo) string {
	return fmt.Sprintf("Room: %s\nStatus: %s\nPlayers: %d/%d\nCreated: %s\n",
		room.ID, room.Status, room.Players, room.MaxClients, room.CreatedAt.Format(time.RFC3339))
}

func formatGameState(roomID string, state *engine.GameState) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Room %s • %s • %d player(s)\n", roomID, state.GameStatus, len(state.Players))

	ids := make([]string, 0, len(state.Players))
	for id := range state.Players {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		p := state.Players[id]
		connection := "connected"
		if !p.IsConnected {
			connection = "disconnected"
		}
		fmt.Fprintf(&b, "\n%s (%s, %s)\n", p.Name, id, connection)
		fmt.Fprintf(&b, "  Life: %d | Poison: %d | Library: %d\n", p.Life, p.Poison, p.LibrarySize)
		fmt.Fprintf(&b, "  Hand: %d | Graveyard: %d | Exile: %d | Command: %d\n",
			len(p.Hand), len(p.Graveyard), len(p.Exile), len(p.CommandZone))

		if len(p.Battlefield) == 0 {
			continue
		}
		b.WriteString("  Battlefield:\n")
		cardIDs := make([]string, 0, len(p.Battlefield))
		for cardID := range p.Battlefield {
			cardIDs = append(cardIDs, cardID)
		}
		sort.Strings(cardIDs)
		for _, cardID := range cardIDs {
			card := p.Battlefield[cardID]
			fmt.Fprintf(&b, "    - %s [%s] at (%.0f,%.0f)", card.Name, card.ID, card.X, card.Y)
			if card.Tapped {
				b.WriteString(" tapped")
			}
			if card.Flipped {
				b.WriteString(" flipped")
			}
			if card.Counters != 0 {
				fmt.Fprintf(&b, " counters=%d", card.Counters)
			}
			b.WriteString("\n")
		}
	}
	return b.String()
}
