package service

import (
	"context"

	"github.com/wricardo/tabletop/game/engine"
	"github.com/wricardo/tabletop/game/session"
)

// GameService defines the operator-facing room operations
type GameService interface {
	// Room Management
	CreateRoom(ctx context.Context, roomID string) (*RoomInfo, error)
	GetRoom(ctx context.Context, roomID string) (*RoomInfo, error)
	ListRooms(ctx context.Context) ([]*RoomInfo, error)
	DeleteRoom(ctx context.Context, roomID string) error

	// Game State
	GetRoomState(ctx context.Context, roomID string) (*engine.GameState, error)
	FinishGame(ctx context.Context, roomID string) (*RoomInfo, error)

	// Health
	Health(ctx context.Context) (*HealthInfo, error)
}

// RoomManager defines room storage operations
type RoomManager interface {
	Create(id string) (*session.Room, error)
	Get(id string) (*session.Room, error)
	List() []*session.Room
	Delete(id string) error
	Count() int
	Directory() session.Directory
}
