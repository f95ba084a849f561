// Package session provides room lifecycle management for the tabletop server.
//
// The session package implements:
//   - Rooms: one game each, with join, leave, reconnect and dispose
//   - The reconnect grace window held for a dropped player
//   - Throttled state broadcast to everyone seated in a room
//   - A manager that creates, looks up and cleans up rooms
//   - Room discovery through an in-memory or Redis-backed directory
//
// Core Types:
//
// Room owns a single engine and serializes everything that touches it on
// its own goroutine. Callers talk to a room through its methods, which are
// safe for concurrent use. Manager holds the rooms of this process and
// publishes their listings to a Directory so other processes can find them.
//
// Room Identifiers:
//
// Rooms use 4-character hex IDs when no ID is given. IDs are case
// insensitive and generated from cryptographic randomness.
//
// Reconnection:
//
// A player who drops without consenting keeps their seat for the grace
// period (60 seconds by default) and is shown as disconnected. Reconnecting
// with the old session id inside the window restores the seat; when the
// window runs out the player is removed. A room with no players and no open
// windows disposes itself.
//
// Usage:
//
//	manager := session.NewManager(session.DefaultRoomConfig(), nil, logger)
//	defer manager.Close()
//
//	room, err := manager.GetOrCreate("friday")
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	if err := room.Join(client, session.JoinOptions{PlayerName: "Alice"}); err != nil {
//		log.Fatal(err)
//	}
//	room.Dispatch(client.ID(), envelope)
//
// Cleanup:
//
// Rooms that never seat anyone are not disposed on their own. The manager's
// CleanupIdleRooms removes them once they pass a maximum age.
package session
