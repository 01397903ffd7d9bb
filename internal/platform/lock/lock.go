// Package lock is the Distributed Lock Service (C3): cluster-wide,
// lease-based advisory locks keyed by opaque strings such as "task:<id>" or
// "money:<id>", used for single-writer discipline when a single database
// transaction is not enough on its own (e.g. an admin override racing a
// worker against the same task).
package lock

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// ErrNotHeld is returned by Release when the lease is unknown or already
// expired; Release is idempotent so this is not necessarily an error for
// the caller to act on.
var ErrNotHeld = errors.New("lock: lease not held")

// Lease identifies a held lock; Release requires the same token that
// Acquire returned so a crashed holder's expired lease cannot be released
// by someone else's retry.
type Lease struct {
	Key   string
	Token string
	TTL   time.Duration
}

// Service acquires and releases leases backed by Redis SET NX PX semantics.
type Service struct {
	client *redis.Client
}

// New wraps an existing redis client. A nil client degrades Service to an
// always-succeeds no-op lock, appropriate for single-process dev mode
// (--memory) and service-level tests where no second writer can ever race.
func New(client *redis.Client) *Service {
	return &Service{client: client}
}

// Acquire blocks until it obtains the lease for key or ctx is cancelled,
// polling at the given interval. TTL bounds how long a crashed holder can
// block others.
func (s *Service) Acquire(ctx context.Context, key string, ttl, pollInterval time.Duration) (*Lease, error) {
	token, err := randomToken()
	if err != nil {
		return nil, err
	}
	if s.client == nil {
		return &Lease{Key: key, Token: token, TTL: ttl}, nil
	}

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		ok, err := s.client.SetNX(ctx, redisKey(key), token, ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("lock: acquire %s: %w", key, err)
		}
		if ok {
			return &Lease{Key: key, Token: token, TTL: ttl}, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// TryAcquire makes one non-blocking attempt to obtain the lease.
func (s *Service) TryAcquire(ctx context.Context, key string, ttl time.Duration) (*Lease, bool, error) {
	token, err := randomToken()
	if err != nil {
		return nil, false, err
	}
	if s.client == nil {
		return &Lease{Key: key, Token: token, TTL: ttl}, true, nil
	}
	ok, err := s.client.SetNX(ctx, redisKey(key), token, ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("lock: try-acquire %s: %w", key, err)
	}
	if !ok {
		return nil, false, nil
	}
	return &Lease{Key: key, Token: token, TTL: ttl}, true, nil
}

// releaseScript deletes the key only if it still holds our token, so a
// lease that already expired and was re-acquired by someone else is never
// released out from under them.
const releaseScript = `
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
else
	return 0
end
`

// Release is ownership-checked: it deletes the key only while it still holds
// lease's token. Releasing an expired or foreign lease deletes nothing and
// returns ErrNotHeld; a nil lease or a nil client returns nil.
func (s *Service) Release(ctx context.Context, lease *Lease) error {
	if lease == nil {
		return nil
	}
	if s.client == nil {
		return nil
	}
	res, err := s.client.Eval(ctx, releaseScript, []string{redisKey(lease.Key)}, lease.Token).Result()
	if err != nil {
		return fmt.Errorf("lock: release %s: %w", lease.Key, err)
	}
	if n, ok := res.(int64); ok && n == 0 {
		return ErrNotHeld
	}
	return nil
}

// TaskKey builds the canonical lock key for a task's single-writer region.
func TaskKey(taskID string) string { return "task:" + taskID }

// MoneyKey builds the canonical lock key for a money-state-lock's
// single-writer region.
func MoneyKey(taskID string) string { return "money:" + taskID }

func redisKey(key string) string { return "hustlexp:lock:" + key }

// randomToken generates a lease ownership token; a v4 UUID is as good a
// source of 122 bits of randomness as any, and it is already a dependency
// of the rest of this codebase's lineage. The token is the UUID's 16 bytes
// as 32 lowercase hex characters.
func randomToken() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", fmt.Errorf("lock: generate token: %w", err)
	}
	return hex.EncodeToString(id[:]), nil
}
