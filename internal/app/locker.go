package app

import (
	"context"
	"errors"
	"time"

	"github.com/Ramsey-B/fern/pkg/batch"
	"github.com/Ramsey-B/fern/pkg/redis"
)

// runLocker adapts the Redis locker to the batch runner's lock contract
type runLocker struct {
	locker *redis.Locker
}

func (l runLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (batch.Lock, error) {
	lock, err := l.locker.Acquire(ctx, key, ttl)
	if errors.Is(err, redis.ErrLockNotAcquired) {
		return nil, batch.ErrRunInProgress
	}
	if err != nil {
		return nil, err
	}
	return lock, nil
}
