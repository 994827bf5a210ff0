// Package otp issues and verifies short-lived one-time codes.
package otp

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	ErrNotFound        = errors.New("otp: code expired or never issued")
	ErrMismatch        = errors.New("otp: code does not match")
	ErrTooManyAttempts = errors.New("otp: too many failed attempts")
)

const (
	keyPrefix      = "otp:"
	attemptsPrefix = "otp:attempts:"
	codeDigits     = 6
	defaultTTL     = 10 * time.Minute
	maxAttempts    = 5
)

// failureScript counts a failed check. The counter lives as long as a code
// and the pending code is dropped once the limit is reached.
var failureScript = redis.NewScript(`
local n = redis.call("INCR", KEYS[1])
if n == 1 then
	redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
if n >= tonumber(ARGV[2]) then
	redis.call("DEL", KEYS[2])
end
return n
`)

// consumeScript deletes the code only while it still matches.
var consumeScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	redis.call("DEL", KEYS[1], KEYS[2])
	return 1
end
return 0
`)

// Store keeps one pending code per phone number in Redis.
type Store struct {
	client *redis.Client
	ttl    time.Duration
}

func NewStore(client *redis.Client, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &Store{client: client, ttl: ttl}
}

// TTL reports how long issued codes stay valid.
func (s *Store) TTL() time.Duration { return s.ttl }

// Issue generates a fresh code for phone, replacing any pending one.
func (s *Store) Issue(ctx context.Context, phone string) (string, error) {
	phone = strings.TrimSpace(phone)
	if phone == "" {
		return "", errors.New("otp: phone required")
	}
	code, err := generateCode()
	if err != nil {
		return "", err
	}
	if err := s.client.Set(ctx, keyPrefix+phone, code, s.ttl).Err(); err != nil {
		return "", fmt.Errorf("otp: store code: %w", err)
	}
	return code, nil
}

// Verify checks code against the pending one without consuming it, so a
// caller can still fail after a successful check and let the client retry.
// Every mismatch is counted; after maxAttempts the code is discarded and
// Verify reports ErrTooManyAttempts until the counter expires.
func (s *Store) Verify(ctx context.Context, phone, code string) error {
	phone = strings.TrimSpace(phone)
	attempts, err := s.client.Get(ctx, attemptsPrefix+phone).Int()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("otp: load attempts: %w", err)
	}
	if attempts >= maxAttempts {
		return ErrTooManyAttempts
	}
	stored, err := s.client.Get(ctx, keyPrefix+phone).Result()
	if errors.Is(err, redis.Nil) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("otp: load code: %w", err)
	}
	if subtle.ConstantTimeCompare([]byte(stored), []byte(strings.TrimSpace(code))) != 1 {
		return s.recordFailure(ctx, phone)
	}
	return nil
}

// Consume deletes a verified code so it cannot be used again.
func (s *Store) Consume(ctx context.Context, phone, code string) error {
	phone = strings.TrimSpace(phone)
	keys := []string{keyPrefix + phone, attemptsPrefix + phone}
	n, err := consumeScript.Run(ctx, s.client, keys, strings.TrimSpace(code)).Int()
	if err != nil {
		return fmt.Errorf("otp: consume code: %w", err)
	}
	if n == 0 {
		// Consumed concurrently or replaced by a newer code.
		return ErrNotFound
	}
	return nil
}

func (s *Store) recordFailure(ctx context.Context, phone string) error {
	keys := []string{attemptsPrefix + phone, keyPrefix + phone}
	n, err := failureScript.Run(ctx, s.client, keys, s.ttl.Milliseconds(), maxAttempts).Int()
	if err != nil {
		return fmt.Errorf("otp: count attempt: %w", err)
	}
	if n >= maxAttempts {
		return ErrTooManyAttempts
	}
	return ErrMismatch
}

func generateCode() (string, error) {
	max := big.NewInt(1_000_000)
	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", fmt.Errorf("otp: generate code: %w", err)
	}
	return fmt.Sprintf("%0*d", codeDigits, n.Int64()), nil
}
