package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseScript deletes a lock key only while it still holds our token, so
// an expired lease taken over by another worker is never released by us.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// UserLock is a per-user lease guarding bot state and operation lifecycle
// mutations. Two tasks that could both mutate the same user's bot or
// operation must hold this lock around their critical section.
type UserLock struct {
	client *redis.Client
	key    string
	token  string
	ttl    time.Duration
}

// Locker hands out per-user leases
type Locker struct {
	client *redis.Client
	ttl    time.Duration
}

// NewLocker creates a locker with the given lease duration
func NewLocker(client *redis.Client, ttl time.Duration) *Locker {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &Locker{client: client, ttl: ttl}
}

// Acquire takes the per-user lease, retrying until the context deadline.
// The caller must Release the returned lock.
func (l *Locker) Acquire(ctx context.Context, userID string) (*UserLock, error) {
	lock := &UserLock{
		client: l.client,
		key:    fmt.Sprintf("lock:user:%s", userID),
		token:  uuid.New().String(),
		ttl:    l.ttl,
	}

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		ok, err := l.client.SetNX(ctx, lock.key, lock.token, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to acquire user lock: %w", err)
		}
		if ok {
			return lock, nil
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("user lock for %s: %w", userID, ctx.Err())
		case <-ticker.C:
		}
	}
}

// Release gives the lease back
func (lk *UserLock) Release(ctx context.Context) error {
	return releaseScript.Run(ctx, lk.client, []string{lk.key}, lk.token).Err()
}

// WithLock runs fn while holding the user's lease
func (l *Locker) WithLock(ctx context.Context, userID string, fn func(ctx context.Context) error) error {
	lock, err := l.Acquire(ctx, userID)
	if err != nil {
		return err
	}
	defer lock.Release(ctx)

	return fn(ctx)
}
