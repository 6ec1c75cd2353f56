// Package dedup maintains the fingerprint index that collapses repeated
// signals onto one open drift candidate. The index answers "is there
// already an open drift for this fingerprint" with an insert-or-return
// race-free reservation; the confidence policy decides whether a duplicate
// warrants re-notifying the owner.
package dedup

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vertaai/driftgate/pkg/fault"
)

const (
	// RenotifyDelta is the confidence gain a duplicate must bring before
	// the owner is pinged again.
	RenotifyDelta = 0.15

	// BoostPerSignal and BoostCap bound how much corroborating signals can
	// raise an existing candidate's confidence.
	BoostPerSignal = 0.05
	BoostCap       = 0.15
)

// Outcome is the dedup verdict for one incoming signal.
type Outcome struct {
	IsDuplicate     bool    `json:"isDuplicate"`
	ShouldNotify    bool    `json:"shouldNotify"`
	ExistingDriftID string  `json:"existingDriftId,omitempty"`
	Boost           float64 `json:"boost,omitempty"`
}

// Decide applies the duplicate policy given the open candidate's current
// confidence, how many signals it has already correlated, and the incoming
// signal's confidence. Correlation always merges; the boost applies only
// on the re-notify branch. Pure; callers persist the merge themselves.
func Decide(existingConfidence float64, correlatedCount int, newConfidence float64) Outcome {
	out := Outcome{IsDuplicate: true}
	if newConfidence-existingConfidence >= RenotifyDelta {
		out.ShouldNotify = true
		boost := BoostPerSignal * float64(correlatedCount)
		if boost > BoostCap {
			boost = BoostCap
		}
		out.Boost = boost
	}
	return out
}

// Index maps (workspace, fingerprint) to the open drift candidate id.
// Reserve is atomic: concurrent callers for the same fingerprint see
// exactly one inserted=true.
type Index interface {
	// Reserve inserts fingerprint -> driftID unless an entry exists. When
	// one exists it returns the holder and inserted=false.
	Reserve(ctx context.Context, workspaceID, fingerprint, driftID string) (existingID string, inserted bool, err error)

	// Lookup returns the open candidate id for fingerprint, or "".
	Lookup(ctx context.Context, workspaceID, fingerprint string) (string, error)

	// Remove drops the entry once the owning candidate reaches a terminal
	// state, so the next signal opens a fresh drift.
	Remove(ctx context.Context, workspaceID, fingerprint string) error
}

// Memory is a single-process Index.
type Memory struct {
	mu      sync.Mutex
	entries map[string]string
}

// NewMemory returns an empty in-process index.
func NewMemory() *Memory {
	return &Memory{entries: map[string]string{}}
}

func memKey(workspaceID, fingerprint string) string {
	return workspaceID + "\x00" + fingerprint
}

func (m *Memory) Reserve(ctx context.Context, workspaceID, fingerprint, driftID string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := memKey(workspaceID, fingerprint)
	if existing, ok := m.entries[key]; ok {
		return existing, false, nil
	}
	m.entries[key] = driftID
	return driftID, true, nil
}

func (m *Memory) Lookup(ctx context.Context, workspaceID, fingerprint string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.entries[memKey(workspaceID, fingerprint)], nil
}

func (m *Memory) Remove(ctx context.Context, workspaceID, fingerprint string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, memKey(workspaceID, fingerprint))
	return nil
}

// Redis implements Index on SET NX so multiple workers share one view. A
// generous TTL guards against leaked entries when a terminal-state Remove
// is lost; the TTL is a backstop, not the lifecycle.
type Redis struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedis wraps an existing client.
func NewRedis(client *redis.Client) *Redis {
	return &Redis{client: client, prefix: "driftgate:dedup:", ttl: 7 * 24 * time.Hour}
}

func (r *Redis) key(workspaceID, fingerprint string) string {
	return r.prefix + workspaceID + ":" + fingerprint
}

func (r *Redis) Reserve(ctx context.Context, workspaceID, fingerprint, driftID string) (string, bool, error) {
	key := r.key(workspaceID, fingerprint)
	ok, err := r.client.SetNX(ctx, key, driftID, r.ttl).Result()
	if err != nil {
		return "", false, fault.Wrap(fault.KindTransport, err, "dedup reserve")
	}
	if ok {
		return driftID, true, nil
	}
	existing, err := r.client.Get(ctx, key).Result()
	if err == redis.Nil {
		// Holder expired between SETNX and GET; retry once.
		ok, err2 := r.client.SetNX(ctx, key, driftID, r.ttl).Result()
		if err2 != nil {
			return "", false, fault.Wrap(fault.KindTransport, err2, "dedup reserve retry")
		}
		if ok {
			return driftID, true, nil
		}
		existing, err = r.client.Get(ctx, key).Result()
	}
	if err != nil {
		return "", false, fault.Wrap(fault.KindTransport, err, "dedup lookup")
	}
	return existing, false, nil
}

func (r *Redis) Lookup(ctx context.Context, workspaceID, fingerprint string) (string, error) {
	v, err := r.client.Get(ctx, r.key(workspaceID, fingerprint)).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", fault.Wrap(fault.KindTransport, err, "dedup lookup")
	}
	return v, nil
}

func (r *Redis) Remove(ctx context.Context, workspaceID, fingerprint string) error {
	if err := r.client.Del(ctx, r.key(workspaceID, fingerprint)).Err(); err != nil {
		return fault.Wrap(fault.KindTransport, err, "dedup remove")
	}
	return nil
}
