package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the lease only if it is still held by the caller.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// LeaseRepository hands out short-lived exclusive leases stored in Redis.
type LeaseRepository struct {
	rdb *redis.Client
}

// NewLeaseRepository creates a new LeaseRepository.
func NewLeaseRepository(rdb *redis.Client) *LeaseRepository {
	return &LeaseRepository{rdb: rdb}
}

// Acquire takes the lease for ttl if nobody holds it.
func (r *LeaseRepository) Acquire(ctx context.Context, key, token string, ttl time.Duration) (bool, error) {
	ok, err := r.rdb.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("acquire lease: %w", err)
	}
	return ok, nil
}

// Release gives the lease back if token still owns it.
func (r *LeaseRepository) Release(ctx context.Context, key, token string) error {
	if err := releaseScript.Run(ctx, r.rdb, []string{key}, token).Err(); err != nil {
		return fmt.Errorf("release lease: %w", err)
	}
	return nil
}
