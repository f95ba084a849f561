package session

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

var (
	ErrRoomNotFound      = errors.New("room not found")
	ErrRoomAlreadyExists = errors.New("room already exists")
)

var randRead = rand.Read

const (
	directoryQueueSize = 256
	directoryTimeout   = 2 * time.Second
)

type directoryOp struct {
	listing Listing
	remove  bool
	applied chan struct{}
}

// Manager owns every live room of this process and keeps the directory in step
type Manager struct {
	rooms     map[string]*Room
	cfg       RoomConfig
	directory Directory
	logger    *zap.Logger
	mu        sync.RWMutex

	updates   chan directoryOp
	quit      chan struct{}
	published chan struct{}
	closeOnce sync.Once
}

// NewManager creates a manager. A nil directory means an in-process one.
func NewManager(cfg RoomConfig, directory Directory, logger *zap.Logger) *Manager {
	if directory == nil {
		directory = NewMemoryDirectory()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Manager{
		rooms:     make(map[string]*Room),
		cfg:       cfg,
		directory: directory,
		logger:    logger,
		updates:   make(chan directoryOp, directoryQueueSize),
		quit:      make(chan struct{}),
		published: make(chan struct{}),
	}
	go m.publish()
	return m
}

// Directory returns the discovery directory the manager publishes to
func (m *Manager) Directory() Directory {
	return m.directory
}

// Create opens a room. An empty id gets a generated one.
// It returns once the room's listing has reached the directory.
func (m *Manager) Create(id string) (*Room, error) {
	m.mu.Lock()
	if id == "" {
		var err error
		for id == "" || m.rooms[id] != nil {
			if id, err = m.generateRoomID(); err != nil {
				m.mu.Unlock()
				return nil, err
			}
		}
	}
	key := strings.ToLower(id)
	if r, exists := m.rooms[key]; exists && !r.Disposed() {
		m.mu.Unlock()
		return nil, ErrRoomAlreadyExists
	}

	room := NewRoom(key, m.cfg, m.logger,
		WithChangeHook(m.roomChanged),
		WithDisposeHook(m.forget),
	)
	m.rooms[key] = room
	op := directoryOp{listing: ListingOf(room), applied: make(chan struct{})}
	m.enqueue(op)
	m.mu.Unlock()

	m.wait(op)
	m.logger.Info("room created", zap.String("room", key))
	return room, nil
}

// Get retrieves a live room by id (case-insensitive)
func (m *Manager) Get(id string) (*Room, error) {
	m.mu.RLock()
	room, exists := m.rooms[strings.ToLower(id)]
	m.mu.RUnlock()

	if !exists || room.Disposed() {
		return nil, ErrRoomNotFound
	}
	return room, nil
}

// GetOrCreate returns the live room with id, opening it if needed
func (m *Manager) GetOrCreate(id string) (*Room, error) {
	room, err := m.Get(id)
	if err == nil {
		return room, nil
	}
	room, err = m.Create(id)
	if errors.Is(err, ErrRoomAlreadyExists) {
		// lost a race with another creator
		return m.Get(id)
	}
	return room, err
}

// List returns all live rooms of this process
func (m *Manager) List() []*Room {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*Room, 0, len(m.rooms))
	for _, room := range m.rooms {
		if !room.Disposed() {
			result = append(result, room)
		}
	}
	return result
}

// Delete disposes a room and returns once its listing is gone
func (m *Manager) Delete(id string) error {
	m.mu.Lock()
	key := strings.ToLower(id)
	room, exists := m.rooms[key]
	if exists {
		delete(m.rooms, key)
	}
	m.mu.Unlock()

	if !exists {
		return ErrRoomNotFound
	}
	room.Dispose()
	<-room.stopped
	return nil
}

// CleanupIdleRooms disposes rooms that have had no players for longer than maxAge
func (m *Manager) CleanupIdleRooms(maxAge time.Duration) int {
	cutoff := time.Now().Add(-maxAge)

	m.mu.Lock()
	var idle []*Room
	for key, room := range m.rooms {
		if room.PlayerCount() == 0 && room.CreatedAt().Before(cutoff) {
			delete(m.rooms, key)
			idle = append(idle, room)
		}
	}
	m.mu.Unlock()

	for _, room := range idle {
		room.Dispose()
	}
	if len(idle) > 0 {
		m.logger.Info("swept idle rooms", zap.Int("count", len(idle)))
	}
	return len(idle)
}

// Count returns the number of live rooms
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.rooms)
}

// Close disposes every room and flushes pending directory updates
func (m *Manager) Close() {
	m.mu.Lock()
	rooms := make([]*Room, 0, len(m.rooms))
	for key, room := range m.rooms {
		rooms = append(rooms, room)
		delete(m.rooms, key)
	}
	m.mu.Unlock()

	for _, room := range rooms {
		room.Dispose()
		<-room.stopped
	}
	m.closeOnce.Do(func() { close(m.quit) })
	<-m.published
}

// ListingOf describes a room for discovery
func ListingOf(r *Room) Listing {
	return Listing{
		RoomID:     r.ID(),
		Players:    r.PlayerCount(),
		MaxClients: r.MaxClients(),
		Status:     r.Status(),
		CreatedAt:  r.CreatedAt(),
		UpdatedAt:  time.Now(),
	}
}

// roomChanged runs on the room goroutine
func (m *Manager) roomChanged(r *Room) {
	m.enqueue(directoryOp{listing: ListingOf(r)})
}

// forget runs after a room goroutine has stopped
func (m *Manager) forget(r *Room) {
	m.mu.Lock()
	current, exists := m.rooms[r.ID()]
	if current == r {
		delete(m.rooms, r.ID())
	}
	m.mu.Unlock()

	// a new room already took the id over and owns its listing
	if exists && current != r {
		return
	}
	op := directoryOp{listing: Listing{RoomID: r.ID()}, remove: true, applied: make(chan struct{})}
	m.enqueue(op)
	m.wait(op)
}

func (m *Manager) enqueue(op directoryOp) {
	select {
	case m.updates <- op:
	case <-m.quit:
	}
}

// wait blocks until op has been applied or the publisher has stopped.
// Updates stay ordered because op went through the same queue.
func (m *Manager) wait(op directoryOp) {
	select {
	case <-op.applied:
	case <-m.published:
	}
}

// publish applies directory updates in order, off the room goroutines
func (m *Manager) publish() {
	defer close(m.published)
	for {
		select {
		case op := <-m.updates:
			m.apply(op)
		case <-m.quit:
			for {
				select {
				case op := <-m.updates:
					m.apply(op)
				default:
					return
				}
			}
		}
	}
}

func (m *Manager) apply(op directoryOp) {
	ctx, cancel := context.WithTimeout(context.Background(), directoryTimeout)
	defer cancel()

	var err error
	if op.remove {
		err = m.directory.Remove(ctx, op.listing.RoomID)
	} else {
		err = m.directory.Put(ctx, op.listing)
	}
	if err != nil {
		m.logger.Warn("directory update failed",
			zap.String("room", op.listing.RoomID),
			zap.Bool("remove", op.remove),
			zap.Error(err))
	}
	if op.applied != nil {
		close(op.applied)
	}
}

// generateRoomID generates a random 4-character room id
func (m *Manager) generateRoomID() (string, error) {
	bytes := make([]byte, 2)
	if _, err := randRead(bytes); err != nil {
		return "", fmt.Errorf("failed to generate room id: %w", err)
	}
	return hex.EncodeToString(bytes), nil
}
