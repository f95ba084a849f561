package session

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/wricardo/tabletop/game/engine"
)

// Listing is what discovery knows about a room
type Listing struct {
	RoomID     string            `json:"roomId"`
	Players    int               `json:"players"`
	MaxClients int               `json:"maxClients"`
	Status     engine.GameStatus `json:"status"`
	CreatedAt  time.Time         `json:"createdAt"`
	UpdatedAt  time.Time         `json:"updatedAt"`
}

// Directory publishes room listings for discovery
type Directory interface {
	// Put creates or replaces a listing
	Put(ctx context.Context, listing Listing) error

	// Remove deletes a listing; removing an unknown room is not an error
	Remove(ctx context.Context, roomID string) error

	// List returns every listing ordered by creation time
	List(ctx context.Context) ([]Listing, error)
}

// MemoryDirectory keeps listings in process
type MemoryDirectory struct {
	listings map[string]Listing
	mu       sync.RWMutex
}

// NewMemoryDirectory creates an empty in-process directory
func NewMemoryDirectory() *MemoryDirectory {
	return &MemoryDirectory{
		listings: make(map[string]Listing),
	}
}

func (d *MemoryDirectory) Put(_ context.Context, listing Listing) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.listings[listing.RoomID] = listing
	return nil
}

func (d *MemoryDirectory) Remove(_ context.Context, roomID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.listings, roomID)
	return nil
}

func (d *MemoryDirectory) List(_ context.Context) ([]Listing, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	result := make([]Listing, 0, len(d.listings))
	for _, l := range d.listings {
		result = append(result, l)
	}
	sortListings(result)
	return result, nil
}

func sortListings(listings []Listing) {
	sort.Slice(listings, func(i, j int) bool {
		if listings[i].CreatedAt.Equal(listings[j].CreatedAt) {
			return listings[i].RoomID < listings[j].RoomID
		}
		return listings[i].CreatedAt.Before(listings[j].CreatedAt)
	})
}
