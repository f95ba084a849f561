package service

import (
	"time"

	"github.com/wricardo/tabletop/game/engine"
	"github.com/wricardo/tabletop/game/session"
)

// RoomInfo provides information about a room
type RoomInfo struct {
	ID         string            `json:"id"`
	Players    int               `json:"players"`
	MaxClients int               `json:"max_clients"`
	Status     engine.GameStatus `json:"status"`
	CreatedAt  time.Time         `json:"created_at"`
	UpdatedAt  time.Time         `json:"updated_at"`
}

// HealthInfo is the liveness report
type HealthInfo struct {
	Status string `json:"status"`
	Rooms  int    `json:"rooms"`
}

func roomInfoFromListing(l session.Listing) *RoomInfo {
	return &RoomInfo{
		ID:         l.RoomID,
		Players:    l.Players,
		MaxClients: l.MaxClients,
		Status:     l.Status,
		CreatedAt:  l.CreatedAt,
		UpdatedAt:  l.UpdatedAt,
	}
}

func roomInfoFromRoom(r *session.Room) *RoomInfo {
	return roomInfoFromListing(session.ListingOf(r))
}
