// Package lock provides the per-drift mutual-exclusion lock guarding state
// transitions. Exactly one worker may advance a drift; the lock carries a
// TTL so a crashed worker cannot park a candidate forever.
package lock

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// DefaultTTL bounds how long one driver invocation may hold a drift.
const DefaultTTL = 30 * time.Second

// Locker acquires and releases named TTL locks.
type Locker interface {
	// Acquire takes the lock for key, returning a release token. ok is
	// false when another holder owns it.
	Acquire(ctx context.Context, key string, ttl time.Duration) (token string, ok bool, err error)

	// Renew extends the TTL for a held lock.
	Renew(ctx context.Context, key, token string, ttl time.Duration) (bool, error)

	// Release frees the lock when token still owns it.
	Release(ctx context.Context, key, token string) error
}

// Memory is a single-process Locker.
type Memory struct {
	mu    sync.Mutex
	locks map[string]memLock
	clock func() time.Time
}

type memLock struct {
	token   string
	expires time.Time
}

// NewMemory returns an empty in-process locker.
func NewMemory() *Memory {
	return &Memory{locks: map[string]memLock{}, clock: time.Now}
}

// WithClock overrides the clock for deterministic testing.
func (m *Memory) WithClock(clock func() time.Time) *Memory {
	m.clock = clock
	return m
}

func (m *Memory) Acquire(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.clock()
	if held, ok := m.locks[key]; ok && held.expires.After(now) {
		return "", false, nil
	}
	token := uuid.New().String()
	m.locks[key] = memLock{token: token, expires: now.Add(ttl)}
	return token, true, nil
}

func (m *Memory) Renew(ctx context.Context, key, token string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	held, ok := m.locks[key]
	if !ok || held.token != token {
		return false, nil
	}
	held.expires = m.clock().Add(ttl)
	m.locks[key] = held
	return true, nil
}

func (m *Memory) Release(ctx context.Context, key, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if held, ok := m.locks[key]; ok && held.token == token {
		delete(m.locks, key)
	}
	return nil
}

// Redis implements Locker with SET NX PX plus token-checked release, for
// deployments where multiple workers share a drift store.
type Redis struct {
	client *redis.Client
	prefix string
}

// NewRedis wraps an existing client.
func NewRedis(client *redis.Client) *Redis {
	return &Redis{client: client, prefix: "driftgate:lock:"}
}

func (r *Redis) Acquire(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	token := uuid.New().String()
	ok, err := r.client.SetNX(ctx, r.prefix+key, token, ttl).Result()
	if err != nil {
		return "", false, err
	}
	if !ok {
		return "", false, nil
	}
	return token, true, nil
}

// renewScript extends the TTL only for the current holder.
var renewScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

func (r *Redis) Renew(ctx context.Context, key, token string, ttl time.Duration) (bool, error) {
	n, err := renewScript.Run(ctx, r.client, []string{r.prefix + key}, token, ttl.Milliseconds()).Int()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// releaseScript deletes the key only for the current holder.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)

func (r *Redis) Release(ctx context.Context, key, token string) error {
	return releaseScript.Run(ctx, r.client, []string{r.prefix + key}, token).Err()
}
