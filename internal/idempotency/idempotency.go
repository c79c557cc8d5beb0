package idempotency

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/lamstech/quickcards/pkg/logger"
	"github.com/lamstech/quickcards/pkg/redis"
)

var (
	// ErrDuplicate means a request with this key already completed.
	ErrDuplicate = errors.New("request already processed")
	// ErrInFlight means another request with this key is being processed
	// right now.
	ErrInFlight          = errors.New("request already in progress")
	ErrLockAcquireFailed = errors.New("failed to acquire processing lock")
)

type Config struct {
	// LockTTL bounds how long a request may hold its in-flight lock. It
	// must exceed the longest possible purchase, or a slow payment could
	// lose its lock mid-flight.
	LockTTL time.Duration

	// DoneTTL is how long a completed key keeps rejecting replays.
	DoneTTL time.Duration

	LockKeyPrefix string

	DoneKeyPrefix string
}

func DefaultConfig() Config {
	return Config{
		LockTTL:       5 * time.Minute,
		DoneTTL:       24 * time.Hour,
		LockKeyPrefix: "purchase:lock:",
		DoneKeyPrefix: "purchase:done:",
	}
}

// Guard rejects duplicate purchase submissions. A client sends the same
// idempotency key with every retry of one logical purchase; the guard lets
// the first attempt through, blocks concurrent ones, and rejects replays
// after completion.
type Guard struct {
	redis  redis.RedisAdapter
	config Config
}

func NewGuard(redisAdapter redis.RedisAdapter, config Config) *Guard {
	return &Guard{
		redis:  redisAdapter,
		config: config,
	}
}

type Token struct {
	Key          string
	lockAcquired bool
}

func (g *Guard) Acquire(ctx context.Context, key string) (*Token, error) {
	// Step 1: Check if already completed (long-term marker)
	doneKey := g.config.DoneKeyPrefix + key
	exists, err := g.redis.Exist(doneKey)
	if err != nil {
		logger.Warn("Failed to check completed status", "key", key, "error", err)
		// Continue even if check fails - better to risk a duplicate than
		// block every purchase when redis degrades
	} else if exists > 0 {
		logger.Info("Duplicate purchase request, rejecting", "key", key)
		return nil, ErrDuplicate
	}

	// Step 2: Acquire short-term in-flight lock (prevents concurrent processing)
	lockKey := g.config.LockKeyPrefix + key
	lockValue := []byte(fmt.Sprintf("%d", time.Now().UnixNano()))

	acquired, err := g.redis.SetNX(lockKey, lockValue, g.config.LockTTL)
	if err != nil {
		logger.Error("Failed to acquire lock", "key", key, "error", err)
		return nil, fmt.Errorf("%w: %v", ErrLockAcquireFailed, err)
	}

	if !acquired {
		logger.Info("Lock already held by another request", "key", key)
		return nil, ErrInFlight
	}

	logger.Debug("Idempotency lock acquired", "key", key, "lock_ttl", g.config.LockTTL)

	return &Token{
		Key:          key,
		lockAcquired: true,
	}, nil
}

// MarkDone records the key as completed so replays are rejected, then drops
// the in-flight lock.
func (g *Guard) MarkDone(ctx context.Context, t *Token) error {
	if t == nil {
		return nil
	}

	doneKey := g.config.DoneKeyPrefix + t.Key
	if err := g.redis.Set(doneKey, []byte("1"), g.config.DoneTTL); err != nil {
		logger.Error("Failed to mark request as completed", "key", t.Key, "error", err)
		return fmt.Errorf("failed to mark as completed: %w", err)
	}

	g.releaseLock(t)
	return nil
}

// Release drops the in-flight lock without marking the key done, so the
// client may retry a failed purchase with the same key.
func (g *Guard) Release(ctx context.Context, t *Token) error {
	if t == nil || !t.lockAcquired {
		return nil
	}
	g.releaseLock(t)
	return nil
}

func (g *Guard) releaseLock(t *Token) {
	lockKey := g.config.LockKeyPrefix + t.Key
	if err := g.redis.Del(lockKey); err != nil {
		logger.Warn("Failed to release idempotency lock", "key", t.Key, "error", err)
		return
	}
	t.lockAcquired = false
}

// IsDone reports whether a key has already completed.
func (g *Guard) IsDone(ctx context.Context, key string) (bool, error) {
	doneKey := g.config.DoneKeyPrefix + key
	exists, err := g.redis.Exist(doneKey)
	if err != nil {
		return false, err
	}
	return exists > 0, nil
}
