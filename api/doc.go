// Package api provides the HTTP REST API for the tabletop server.
//
// The api package implements:
//   - Room management endpoints
//   - Read-only access to a room's game state
//   - The operator hook that finishes a game
//   - WebSocket upgrade handling
//
// Endpoints:
//
//   - GET /health - Liveness and the number of rooms hosted here
//   - POST /rooms - Create a room, body {"id": "..."} is optional
//   - GET /rooms - List rooms known to discovery (?status=, ?limit=)
//   - GET /rooms/{id} - Get a room
//   - DELETE /rooms/{id} - Dispose a room and disconnect its players
//   - GET /rooms/{id}/state - Snapshot of the room's game state
//   - POST /rooms/{id}/finish - Mark the game finished
//   - GET /ws?room=&name=&startingLife=&sessionId= - Join a room
//
// All responses are JSON. Errors are reported as {"error": "..."} with
// 404 for unknown rooms, 409 for duplicate ids and 410 for rooms that were
// disposed while the request was in flight. CORS is open to every origin.
package api
