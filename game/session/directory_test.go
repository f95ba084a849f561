package session

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wricardo/tabletop/game/engine"
)

func exerciseDirectory(t *testing.T, dir Directory) {
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, dir.Put(ctx, Listing{RoomID: "b", Players: 1, MaxClients: 4, Status: engine.StatusWaiting, CreatedAt: base.Add(time.Second), UpdatedAt: base}))
	require.NoError(t, dir.Put(ctx, Listing{RoomID: "a", Players: 2, MaxClients: 4, Status: engine.StatusActive, CreatedAt: base, UpdatedAt: base}))

	all, err := dir.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "a", all[0].RoomID)
	assert.Equal(t, 2, all[0].Players)
	assert.Equal(t, engine.StatusActive, all[0].Status)
	assert.True(t, all[0].CreatedAt.Equal(base))
	assert.Equal(t, "b", all[1].RoomID)

	require.NoError(t, dir.Put(ctx, Listing{RoomID: "b", Players: 3, MaxClients: 4, Status: engine.StatusActive, CreatedAt: base.Add(time.Second), UpdatedAt: base}))
	require.NoError(t, dir.Remove(ctx, "a"))
	require.NoError(t, dir.Remove(ctx, "missing"))

	all, err = dir.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, 3, all[0].Players)
}

func TestMemoryDirectory(t *testing.T) {
	exerciseDirectory(t, NewMemoryDirectory())
}

// Runs against a real server when TABLETOP_TEST_REDIS_ADDR is set
func TestRedisDirectory(t *testing.T) {
	addr := os.Getenv("TABLETOP_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TABLETOP_TEST_REDIS_ADDR not set")
	}

	ctx := context.Background()
	rdb, err := DialRedis(ctx, addr, "", 15)
	require.NoError(t, err)
	t.Cleanup(func() {
		rdb.FlushDB(ctx)
		rdb.Close()
	})
	require.NoError(t, rdb.FlushDB(ctx).Err())

	exerciseDirectory(t, NewRedisDirectory(rdb, time.Minute))
}

func TestDecodeListing(t *testing.T) {
	listing, err := decodeListing(map[string]string{
		"roomId":     "x1",
		"players":    "3",
		"maxClients": "4",
		"status":     "active",
		"createdAt":  "2024-01-01T12:00:00Z",
		"updatedAt":  "2024-01-01T12:00:05.5Z",
	})
	require.NoError(t, err)
	assert.Equal(t, "x1", listing.RoomID)
	assert.Equal(t, 3, listing.Players)
	assert.Equal(t, engine.StatusActive, listing.Status)
	assert.Equal(t, 2024, listing.CreatedAt.Year())

	_, err = decodeListing(map[string]string{"players": "three"})
	assert.Error(t, err)
}
