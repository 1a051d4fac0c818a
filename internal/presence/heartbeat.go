// Package presence tracks whether a busy user's client is still alive and
// repairs the store when it is not.
//
// HOW A BUSY USER STAYS BUSY:
//
//	start/join call ──► Beat(ttl) ──► client POSTs /presence/heartbeat ──► Beat(ttl) ...
//	                                                 │
//	                   tab closed / crash ──► no beats ──► key expires
//	                                                 │
//	                          Reconciler tick ──► busy in store but not Alive
//	                                         ──► reset to available, delete room
package presence

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Heartbeats stores short-lived liveness markers per user.
type Heartbeats interface {
	// Beat marks userID alive in room for ttl.
	Beat(ctx context.Context, userID int64, room string, ttl time.Duration) error
	Alive(ctx context.Context, userID int64) (bool, error)
	// AliveMany answers Alive for several users in one round trip.
	AliveMany(ctx context.Context, userIDs []int64) (map[int64]bool, error)
	Clear(ctx context.Context, userID int64) error
}

// Compile-time checks.
var (
	_ Heartbeats = (*RedisHeartbeats)(nil)
	_ Heartbeats = (*MemoryHeartbeats)(nil)
)

// =========================================================================
// REDIS
// =========================================================================

// RedisHeartbeats keeps one key per user: "presence:{id}" → room name,
// expiring after the beat's TTL. Several server processes can share it.
type RedisHeartbeats struct {
	client *redis.Client
}

// NewRedisHeartbeats wraps an existing client.
func NewRedisHeartbeats(client *redis.Client) *RedisHeartbeats {
	return &RedisHeartbeats{client: client}
}

// NewRedisClient parses a redis:// URL into a client. No connection is made.
func NewRedisClient(redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("presence: parsing redis url: %w", err)
	}
	return redis.NewClient(opts), nil
}

func key(userID int64) string {
	return "presence:" + strconv.FormatInt(userID, 10)
}

func (h *RedisHeartbeats) Beat(ctx context.Context, userID int64, room string, ttl time.Duration) error {
	if err := h.client.Set(ctx, key(userID), room, ttl).Err(); err != nil {
		return fmt.Errorf("presence: beat %d: %w", userID, err)
	}
	return nil
}

func (h *RedisHeartbeats) Alive(ctx context.Context, userID int64) (bool, error) {
	n, err := h.client.Exists(ctx, key(userID)).Result()
	if err != nil {
		return false, fmt.Errorf("presence: checking %d: %w", userID, err)
	}
	return n == 1, nil
}

// AliveMany pipelines one EXISTS per user.
func (h *RedisHeartbeats) AliveMany(ctx context.Context, userIDs []int64) (map[int64]bool, error) {
	alive := make(map[int64]bool, len(userIDs))
	if len(userIDs) == 0 {
		return alive, nil
	}

	cmds, err := h.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, id := range userIDs {
			pipe.Exists(ctx, key(id))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("presence: checking %d users: %w", len(userIDs), err)
	}

	for i, cmd := range cmds {
		n, _ := cmd.(*redis.IntCmd).Result()
		alive[userIDs[i]] = n == 1
	}
	return alive, nil
}

func (h *RedisHeartbeats) Clear(ctx context.Context, userID int64) error {
	if err := h.client.Del(ctx, key(userID)).Err(); err != nil {
		return fmt.Errorf("presence: clearing %d: %w", userID, err)
	}
	return nil
}

// Ping checks the connection for readiness.
func (h *RedisHeartbeats) Ping(ctx context.Context) error {
	return h.client.Ping(ctx).Err()
}

// Close closes the underlying client.
func (h *RedisHeartbeats) Close() error {
	return h.client.Close()
}

// =========================================================================
// IN-MEMORY
// =========================================================================

// MemoryHeartbeats is the single-process fallback used when no Redis URL
// is configured.
type MemoryHeartbeats struct {
	mu      sync.Mutex
	expires map[int64]time.Time
	now     func() time.Time
}

func NewMemoryHeartbeats() *MemoryHeartbeats {
	return &MemoryHeartbeats{expires: make(map[int64]time.Time), now: time.Now}
}

func (h *MemoryHeartbeats) Beat(_ context.Context, userID int64, _ string, ttl time.Duration) error {
	h.mu.Lock()
	h.expires[userID] = h.now().Add(ttl)
	h.mu.Unlock()
	return nil
}

func (h *MemoryHeartbeats) Alive(_ context.Context, userID int64) (bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.aliveLocked(userID), nil
}

func (h *MemoryHeartbeats) AliveMany(_ context.Context, userIDs []int64) (map[int64]bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	alive := make(map[int64]bool, len(userIDs))
	for _, id := range userIDs {
		alive[id] = h.aliveLocked(id)
	}
	return alive, nil
}

func (h *MemoryHeartbeats) Clear(_ context.Context, userID int64) error {
	h.mu.Lock()
	delete(h.expires, userID)
	h.mu.Unlock()
	return nil
}

func (h *MemoryHeartbeats) aliveLocked(userID int64) bool {
	exp, ok := h.expires[userID]
	if !ok {
		return false
	}
	if !h.now().Before(exp) {
		delete(h.expires, userID)
		return false
	}
	return true
}
