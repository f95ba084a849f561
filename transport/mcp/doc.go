// Package mcp exposes operator tooling for the tabletop server over the
// Model Context Protocol.
//
// The Client is a thin proxy: every tool call becomes a request against the
// REST API, so the same tools work against a local server, a remote one, or
// an internal server started just for a stdio session.
//
// MCP Tools:
//   - list_rooms: Rooms known to discovery, optionally filtered by status
//   - get_room: One room's occupancy and status
//   - room_state: Players, life, poison and zone contents of a room
//   - create_room: Open a room, with a generated id when none is given
//   - finish_game: Mark a room's game finished
//   - delete_room: Dispose a room and disconnect its players
//   - health: Liveness and room count
//   - table_rules: The commands, zones and reconnect rules players follow
//
// Transport Modes:
//   - Stdio: server.ServeStdio(client.GetMCPServer())
//   - HTTP: mount the Client itself at /mcp; it answers one JSON-RPC
//     message per POST
package mcp
