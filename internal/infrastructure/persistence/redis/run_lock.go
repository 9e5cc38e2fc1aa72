package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/medcircle-hub/medcircle-match-engine/internal/domain/matching"
)

// ══════════════════════════════════════════════════════════════════════════════
// RUN LOCK
// Per-week distributed lock. The lock value is the run id, so refresh
// and release are fenced: a process can only extend or drop a lock it
// still holds. Lua scripts keep the compare-and-act steps atomic.
// ══════════════════════════════════════════════════════════════════════════════

// ErrLockLost is returned by Refresh when the lock expired or was taken
// over by another run since the last extension.
var ErrLockLost = errors.New("run lock: lock lost")

// refreshScript extends the TTL only when the caller still holds the lock.
const refreshScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
else
	return 0
end
`

// releaseScript deletes the key only when the caller still holds the lock.
const releaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
else
	return 0
end
`

// RunLock implements matching.RunLock on Redis.
type RunLock struct {
	client  *redis.Client
	refresh *redis.Script
	release *redis.Script
}

// NewRunLock creates a new RunLock backed by the given cache client.
func NewRunLock(cache *Cache) *RunLock {
	return &RunLock{
		client:  cache.Client(),
		refresh: redis.NewScript(refreshScript),
		release: redis.NewScript(releaseScript),
	}
}

func lockKey(week matching.WeekID) string {
	return PrefixRunLock + string(week)
}

// Acquire takes the lock for the week. Returns matching.ErrRunInProgress
// when another run already holds it.
func (l *RunLock) Acquire(ctx context.Context, week matching.WeekID, runID string, ttl time.Duration) error {
	ok, err := l.client.SetNX(ctx, lockKey(week), runID, ttl).Result()
	if err != nil {
		return fmt.Errorf("run lock acquire: %w", err)
	}
	if !ok {
		return matching.ErrRunInProgress
	}
	return nil
}

// Refresh extends the lock while the run is alive. Returns ErrLockLost
// when the lock is no longer held by this run.
func (l *RunLock) Refresh(ctx context.Context, week matching.WeekID, runID string, ttl time.Duration) error {
	res, err := l.refresh.Run(ctx, l.client, []string{lockKey(week)}, runID, ttl.Milliseconds()).Int64()
	if err != nil {
		return fmt.Errorf("run lock refresh: %w", err)
	}
	if res == 0 {
		return ErrLockLost
	}
	return nil
}

// Release drops the lock. Releasing a lock that already expired or was
// taken over is not an error.
func (l *RunLock) Release(ctx context.Context, week matching.WeekID, runID string) error {
	if _, err := l.release.Run(ctx, l.client, []string{lockKey(week)}, runID).Result(); err != nil {
		return fmt.Errorf("run lock release: %w", err)
	}
	return nil
}
