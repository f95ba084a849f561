package service

import (
	"context"
	"fmt"
	"sort"

	"github.com/wricardo/tabletop/game/engine"
	"github.com/wricardo/tabletop/game/session"
	"go.uber.org/zap"
)

// gameServiceImpl implements the GameService interface
type gameServiceImpl struct {
	rooms  RoomManager
	logger *zap.Logger
}

// NewGameService creates a new game service instance
func NewGameService(rooms RoomManager, logger *zap.Logger) GameService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &gameServiceImpl{
		rooms:  rooms,
		logger: logger,
	}
}

// CreateRoom opens a room; an empty id gets a generated one
func (s *gameServiceImpl) CreateRoom(ctx context.Context, roomID string) (*RoomInfo, error) {
	room, err := s.rooms.Create(roomID)
	if err != nil {
		return nil, fmt.Errorf("failed to create room: %w", err)
	}
	return roomInfoFromRoom(room), nil
}

// GetRoom retrieves information about a live room of this process
func (s *gameServiceImpl) GetRoom(ctx context.Context, roomID string) (*RoomInfo, error) {
	room, err := s.rooms.Get(roomID)
	if err != nil {
		return nil, fmt.Errorf("room %s: %w", roomID, err)
	}
	return roomInfoFromRoom(room), nil
}

// ListRooms returns every room known to discovery, which may include rooms
// hosted by other processes sharing the directory. Rooms hosted here are
// reported from the live room rather than its last published listing.
func (s *gameServiceImpl) ListRooms(ctx context.Context) ([]*RoomInfo, error) {
	listings, err := s.rooms.Directory().List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list rooms: %w", err)
	}

	byID := make(map[string]session.Listing, len(listings))
	for _, l := range listings {
		byID[l.RoomID] = l
	}
	for _, room := range s.rooms.List() {
		byID[room.ID()] = session.ListingOf(room)
	}

	result := make([]*RoomInfo, 0, len(byID))
	for _, l := range byID {
		result = append(result, roomInfoFromListing(l))
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].ID < result[j].ID
		}
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

// DeleteRoom disposes a room and disconnects its clients
func (s *gameServiceImpl) DeleteRoom(ctx context.Context, roomID string) error {
	if err := s.rooms.Delete(roomID); err != nil {
		return fmt.Errorf("room %s: %w", roomID, err)
	}
	s.logger.Info("room deleted", zap.String("room", roomID))
	return nil
}

// GetRoomState returns a consistent snapshot of the room's state
func (s *gameServiceImpl) GetRoomState(ctx context.Context, roomID string) (*engine.GameState, error) {
	room, err := s.rooms.Get(roomID)
	if err != nil {
		return nil, fmt.Errorf("room %s: %w", roomID, err)
	}
	state, err := room.Snapshot()
	if err != nil {
		return nil, fmt.Errorf("room %s: %w", roomID, err)
	}
	return state, nil
}

// FinishGame marks the room's game as finished
func (s *gameServiceImpl) FinishGame(ctx context.Context, roomID string) (*RoomInfo, error) {
	room, err := s.rooms.Get(roomID)
	if err != nil {
		return nil, fmt.Errorf("room %s: %w", roomID, err)
	}
	if err := room.Finish(); err != nil {
		return nil, fmt.Errorf("room %s: %w", roomID, err)
	}
	s.logger.Info("game finished", zap.String("room", roomID))
	return roomInfoFromRoom(room), nil
}

// Health reports liveness and the number of rooms hosted here
func (s *gameServiceImpl) Health(ctx context.Context) (*HealthInfo, error) {
	return &HealthInfo{
		Status: "ok",
		Rooms:  s.rooms.Count(),
	}, nil
}
