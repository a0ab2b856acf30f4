package businessflow

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	moveMutex sync.Mutex
	moveLocks = make(map[uint]bool)
)

// acquireMoveLock serializes moves for a single lead. With Redis configured
// the lock is shared across instances via SET NX; otherwise a process-local
// map is used. Returns a release function, or ErrMoveLockHeld.
func acquireMoveLock(ctx context.Context, rc *redis.Client, prefix string, leadID uint, ttl time.Duration) (func(), error) {
	if rc != nil {
		key := prefix + "move-lock:" + strconv.FormatUint(uint64(leadID), 10)
		ok, err := rc.SetNX(ctx, key, "1", ttl).Result()
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, ErrMoveLockHeld
		}
		return func() { rc.Del(context.Background(), key) }, nil
	}

	moveMutex.Lock()
	defer moveMutex.Unlock()
	if moveLocks[leadID] {
		return nil, ErrMoveLockHeld
	}
	moveLocks[leadID] = true
	return func() {
		moveMutex.Lock()
		delete(moveLocks, leadID)
		moveMutex.Unlock()
	}, nil
}
