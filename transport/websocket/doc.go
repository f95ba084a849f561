// Package websocket provides the player transport for the tabletop server.
//
// The websocket package implements:
//   - Seating a connection in a room, or reclaiming a held seat
//   - Decoding client commands and handing them to the room
//   - Delivering room messages with per-client buffering
//   - Mapping close codes to consented or unconsented leaves
//
// Architecture:
//
// A central Hub keeps the registry of open connections per room. Each
// connection gets a read pump and a write pump goroutine. Fan-out is done by
// the rooms themselves: a room holds its seated clients and calls Send, which
// only queues. A client whose queue is full is hung up and reported to its
// room as an unconsented drop.
//
// Message Protocol:
//
//   - Connect: GET /ws?room=<id>&name=<player>&startingLife=<n>
//   - Reclaim a seat: GET /ws?room=<id>&sessionId=<previous id>
//   - Incoming: {"kind": "moveCard", "payload": {...}}
//   - Outgoing: {"event": "...", "roomId": "...", "data": {...}, "state": {...}, "seq": n}
//
// The first message on every connection is a "joined" event carrying the
// session id to use when reclaiming the seat.
//
// Usage:
//
//	hub := websocket.NewHub(rooms, logger)
//	go hub.Run(ctx)
//
//	router.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
//		hub.ServeWS(w, r, websocket.ParseJoinRequest(r))
//	})
//
// Connection Lifecycle:
//
// 1. Client connects; the hub seats it before upgrading
// 2. Connection registered with hub
// 3. Client receives "joined" and a full "state"
// 4. Client sends commands, receives events and state patches
// 5. Close code 1000 or 4000 frees the seat; anything else holds it for the
//    reconnection grace period
package websocket
