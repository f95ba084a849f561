// Package service provides the operator-facing layer of the tabletop server.
//
// The service package implements:
//   - Room creation, lookup and deletion
//   - Room discovery through the shared directory
//   - Consistent state snapshots for inspection
//   - The external end-game hook
//
// Core Interfaces:
//
// GameService is the main service interface used by the HTTP API and, through
// it, by the MCP tools. RoomManager is the storage side, implemented by
// session.Manager.
//
// Architecture:
//
// The service layer sits between the transports and the session package.
// Player traffic does not pass through here: clients talk to their room over
// the WebSocket hub. The service only touches rooms through their
// goroutine-safe methods, so it needs no locking of its own.
//
// Usage:
//
//	rooms := session.NewManager(session.DefaultRoomConfig(), nil, logger)
//	gameService := service.NewGameService(rooms, logger)
//
//	info, err := gameService.CreateRoom(ctx, "")
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	state, err := gameService.GetRoomState(ctx, info.ID)
package service
