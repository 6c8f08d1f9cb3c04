// Package presence is the authoritative record of which users currently
// have at least one live session. It is the only state shared between the
// routing path (reads) and the session lifecycle (writes), so every
// operation is atomic per key.
package presence

import (
	"context"
	"sync"

	"github.com/redis/go-redis/v9"
)

// Registry answers the single question routing asks: is this user
// connected right now. Absent usernames are offline, never an error.
type Registry interface {
	SetPresence(ctx context.Context, username string, connected bool) error
	IsConnected(ctx context.Context, username string) (bool, error)
}

const onlineUsersKey = "presence:online_users"

// RedisRegistry keeps the online set in Redis. SADD/SREM/SISMEMBER are
// single-key atomic, which closes the torn-read hazard without any
// client-side locking, and the set survives service restarts only as long
// as Redis does, which matches presence being a live-session fact.
type RedisRegistry struct {
	rdb *redis.Client
}

func NewRedisRegistry(rdb *redis.Client) *RedisRegistry {
	return &RedisRegistry{rdb: rdb}
}

func (r *RedisRegistry) SetPresence(ctx context.Context, username string, connected bool) error {
	if connected {
		return r.rdb.SAdd(ctx, onlineUsersKey, username).Err()
	}
	return r.rdb.SRem(ctx, onlineUsersKey, username).Err()
}

func (r *RedisRegistry) IsConnected(ctx context.Context, username string) (bool, error) {
	return r.rdb.SIsMember(ctx, onlineUsersKey, username).Result()
}

// MemoryRegistry is the in-process backend for single-node deployments and
// tests. One mutex over the map is enough: entries are booleans and the
// critical section is a single read or write.
type MemoryRegistry struct {
	mu     sync.RWMutex
	online map[string]bool
}

func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{online: make(map[string]bool)}
}

func (m *MemoryRegistry) SetPresence(_ context.Context, username string, connected bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if connected {
		m.online[username] = true
	} else {
		delete(m.online, username)
	}
	return nil
}

func (m *MemoryRegistry) IsConnected(_ context.Context, username string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.online[username], nil
}
