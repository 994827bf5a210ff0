package reminders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrLeaseLost is returned by Claim.Extend once another holder owns the lease.
var ErrLeaseLost = errors.New("reminders: lease lost")

// Lease grants one process the right to run a dispatcher tick.
type Lease interface {
	Acquire(ctx context.Context) (claim Claim, ok bool, err error)
}

// Claim is a held lease.
type Claim interface {
	// Extend pushes the expiry out by a full TTL and returns that TTL.
	Extend(ctx context.Context) (time.Duration, error)
	Release()
}

const defaultLeaseKey = "reminders:dispatch:lease"

// releaseScript deletes the key only while it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// extendScript resets the expiry only while the key still holds our token.
var extendScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// RedisLease is a SET NX PX lock shared by every dispatcher instance.
type RedisLease struct {
	client *redis.Client
	key    string
	ttl    time.Duration
}

// NewRedisLease creates a lease. The dispatcher extends it before every send,
// so ttl only has to outlast one send.
func NewRedisLease(client *redis.Client, ttl time.Duration) *RedisLease {
	if ttl <= 0 {
		ttl = 55 * time.Second
	}
	return &RedisLease{client: client, key: defaultLeaseKey, ttl: ttl}
}

// Acquire attempts to take the lease without blocking.
func (l *RedisLease) Acquire(ctx context.Context) (Claim, bool, error) {
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, l.key, token, l.ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("reminders: acquire lease: %w", err)
	}
	if !ok {
		return nil, false, nil
	}
	return &redisClaim{lease: l, token: token}, true, nil
}

type redisClaim struct {
	lease *RedisLease
	token string
}

func (c *redisClaim) Extend(ctx context.Context) (time.Duration, error) {
	n, err := extendScript.Run(ctx, c.lease.client, []string{c.lease.key}, c.token, c.lease.ttl.Milliseconds()).Int()
	if err != nil {
		return 0, fmt.Errorf("reminders: extend lease: %w", err)
	}
	if n == 0 {
		return 0, ErrLeaseLost
	}
	return c.lease.ttl, nil
}

func (c *redisClaim) Release() {
	// Detached so a canceled tick still frees the lease.
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = releaseScript.Run(ctx, c.lease.client, []string{c.lease.key}, c.token).Err()
}
