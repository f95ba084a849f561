package session

import (
	"context"
	"fmt"
	"reflect"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/mitchellh/mapstructure"
)

const roomIndexKey = "rooms"

// RedisDirectory shares listings between server processes through a Redis
// hash per room plus a set of room ids
type RedisDirectory struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedisDirectory wraps an existing client. A positive ttl makes listings
// of crashed processes age out.
func NewRedisDirectory(rdb *redis.Client, ttl time.Duration) *RedisDirectory {
	return &RedisDirectory{rdb: rdb, ttl: ttl}
}

// DialRedis connects and pings
func DialRedis(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if _, err := rdb.Ping(ctx).Result(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", addr, err)
	}
	return rdb, nil
}

func roomInfoKey(roomID string) string {
	return fmt.Sprintf("room:%s:roomInfo", roomID)
}

func (d *RedisDirectory) Put(ctx context.Context, listing Listing) error {
	key := roomInfoKey(listing.RoomID)
	data := map[string]interface{}{
		"roomId":     listing.RoomID,
		"players":    strconv.Itoa(listing.Players),
		"maxClients": strconv.Itoa(listing.MaxClients),
		"status":     string(listing.Status),
		"createdAt":  listing.CreatedAt.UTC().Format(time.RFC3339Nano),
		"updatedAt":  listing.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}

	_, err := d.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, data)
		pipe.SAdd(ctx, roomIndexKey, listing.RoomID)
		if d.ttl > 0 {
			pipe.Expire(ctx, key, d.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to store listing %s: %w", listing.RoomID, err)
	}
	return nil
}

func (d *RedisDirectory) Remove(ctx context.Context, roomID string) error {
	_, err := d.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, roomInfoKey(roomID))
		pipe.SRem(ctx, roomIndexKey, roomID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to remove listing %s: %w", roomID, err)
	}
	return nil
}

func (d *RedisDirectory) List(ctx context.Context) ([]Listing, error) {
	ids, err := d.rdb.SMembers(ctx, roomIndexKey).Result()
	if err != nil && err != redis.Nil {
		return nil, fmt.Errorf("failed to list rooms: %w", err)
	}

	cmds := make(map[string]*redis.StringStringMapCmd, len(ids))
	_, err = d.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, id := range ids {
			cmds[id] = pipe.HGetAll(ctx, roomInfoKey(id))
		}
		return nil
	})
	if err != nil && err != redis.Nil {
		return nil, fmt.Errorf("failed to read listings: %w", err)
	}

	result := make([]Listing, 0, len(ids))
	var stale []interface{}
	for id, cmd := range cmds {
		fields := cmd.Val()
		if len(fields) == 0 {
			// hash expired but the index still names it
			stale = append(stale, id)
			continue
		}
		listing, err := decodeListing(fields)
		if err != nil {
			return nil, fmt.Errorf("failed to decode listing %s: %w", id, err)
		}
		result = append(result, listing)
	}
	if len(stale) > 0 {
		d.rdb.SRem(ctx, roomIndexKey, stale...)
	}

	sortListings(result)
	return result, nil
}

func decodeListing(fields map[string]string) (Listing, error) {
	var listing Listing
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			stringToIntHookFunc(),
			mapstructure.StringToTimeHookFunc(time.RFC3339Nano),
		),
		Result:  &listing,
		TagName: "json",
	})
	if err != nil {
		return listing, err
	}
	if err := decoder.Decode(fields); err != nil {
		return listing, err
	}
	return listing, nil
}

func stringToIntHookFunc() mapstructure.DecodeHookFunc {
	return func(from reflect.Kind, to reflect.Kind, data interface{}) (interface{}, error) {
		if from == reflect.String && to == reflect.Int {
			return strconv.Atoi(data.(string))
		}
		return data, nil
	}
}
