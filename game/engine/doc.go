// Package engine provides the shared tabletop state and the command handlers
// that mutate it.
//
// The engine package implements:
//   - The card/zone data model (GameState, Player, Card, Zone)
//   - Zone name resolution
//   - One handler per client command (moveCard, addCard, tapCard, ...)
//   - Lifecycle mutations used by the session layer (join, leave, connect)
//
// Core Types:
//
// GameState is the root aggregate. It owns every Player, and each Player owns
// its six zones and the cards placed in them. Engine wraps a GameState and a
// clock and is the only thing that writes to it.
//
// Usage:
//
//	eng := engine.NewEngine()
//	eng.Join("abc", "Alice", 40)
//
//	cmd, err := engine.DecodeCommand(envelope)
//	if err != nil {
//		return err
//	}
//	result := eng.Apply("abc", cmd)
//	for _, n := range result.Notifications {
//		// deliver n
//	}
//
// Rules:
//
// The engine does not referee the game. Handlers relocate and edit opaque card
// records exactly as instructed, and a command that references an unknown
// player, zone or card does nothing. Engine is not safe for concurrent use;
// the session layer serializes all calls.
package engine
