// Package dedupe implements the AlertedSet: a Redis-backed record of
// object-ids for which a first-detection (ME_FD) has already been
// emitted, so a server restart does not re-alert. An in-process set
// mirrors the Redis set so the single-writer pipeline worker never blocks
// on Redis for the common "already seen" check.
package dedupe

import (
	"context"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
)

const setKey = "afg:alerted_objects"

// AlertedSet guarantees at-most-once ME_FD fan-out for a given object-id,
// persisted across restarts via Redis.
type AlertedSet struct {
	rdb *redis.Client

	mu   sync.RWMutex
	seen map[int64]struct{}
}

// New creates an AlertedSet backed by rdb. Call Seed once at startup
// before accepting inference events.
func New(rdb *redis.Client) *AlertedSet {
	return &AlertedSet{
		rdb:  rdb,
		seen: make(map[int64]struct{}),
	}
}

// Seed loads the full set from Redis into the in-process mirror. Intended
// to run once, before the pipeline starts accepting detections.
func (a *AlertedSet) Seed(ctx context.Context) error {
	members, err := a.rdb.SMembers(ctx, setKey).Result()
	if err != nil && err != redis.Nil {
		return fmt.Errorf("dedupe: seed from redis: %w", err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	for _, m := range members {
		var id int64
		if _, err := fmt.Sscanf(m, "%d", &id); err == nil {
			a.seen[id] = struct{}{}
		}
	}
	return nil
}

// Contains reports whether objectID has already had an ME_FD emitted.
func (a *AlertedSet) Contains(objectID int64) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	_, ok := a.seen[objectID]
	return ok
}

// Add records objectID as alerted, both in-process and in Redis. Returns
// true if this call newly added it (i.e. the caller should proceed with
// first-detection persistence + ME_FD), false if another caller already
// claimed it.
func (a *AlertedSet) Add(ctx context.Context, objectID int64) bool {
	a.mu.Lock()
	if _, ok := a.seen[objectID]; ok {
		a.mu.Unlock()
		return false
	}
	a.seen[objectID] = struct{}{}
	a.mu.Unlock()

	// Best-effort: the in-process mirror is authoritative for this
	// process's lifetime (single pipeline writer); Redis is for the next
	// restart's seed, so a transient write failure here doesn't violate
	// at-most-once within this process.
	if err := a.rdb.SAdd(ctx, setKey, objectID).Err(); err != nil {
		return true
	}
	return true
}
