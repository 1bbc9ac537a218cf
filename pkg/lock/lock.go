// Package lock implements the advisory per-build serialization the engine
// relies on externally (spec §5 "the external caller is responsible for
// enforcing this via an advisory lock"): a Redis-backed distributed lock for
// multi-process deployment, and an in-process fallback for tests and
// request coalescing.
package lock

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jordigilh/territory-assignment-core/internal/apperrors"
)

// BuildLock is the capability pkg/engine and cmd/territory-engine depend on.
type BuildLock interface {
	Acquire(ctx context.Context, buildID string) (Handle, error)
}

// Handle releases a previously acquired lock.
type Handle interface {
	Release(ctx context.Context) error
}

// releaseScript is a Lua CAS: only delete the key if it still holds the
// token this handle acquired, so a handle can never release a lock it no
// longer owns (e.g. after its lease expired and someone else acquired it).
const releaseScript = `
if redis.call("get", KEYS[1]) == ARGV[1] then
    return redis.call("del", KEYS[1])
else
    return 0
end`

// RedisBuildLock implements BuildLock with `SET NX PX` keyed
// `build-lock:{build_id}`, renewed by a background goroutine until released.
type RedisBuildLock struct {
	client   *redis.Client
	leaseTTL time.Duration
}

func NewRedisBuildLock(client *redis.Client, leaseTTL time.Duration) *RedisBuildLock {
	return &RedisBuildLock{client: client, leaseTTL: leaseTTL}
}

func (l *RedisBuildLock) Acquire(ctx context.Context, buildID string) (Handle, error) {
	key := "build-lock:" + buildID
	token, err := randomToken()
	if err != nil {
		return nil, apperrors.NewStoreUnavailable(err)
	}

	ok, err := l.client.SetNX(ctx, key, token, l.leaseTTL).Result()
	if err != nil {
		return nil, apperrors.NewStoreUnavailable(err)
	}
	if !ok {
		return nil, apperrors.Newf(apperrors.ErrorTypeStoreUnavailable, "build %s is already locked", buildID)
	}

	renewCtx, cancel := context.WithCancel(context.Background())
	h := &redisHandle{client: l.client, key: key, token: token, cancel: cancel}
	go h.renewLoop(renewCtx, l.leaseTTL)
	return h, nil
}

type redisHandle struct {
	client *redis.Client
	key    string
	token  string
	cancel context.CancelFunc
}

func (h *redisHandle) renewLoop(ctx context.Context, ttl time.Duration) {
	ticker := time.NewTicker(ttl / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.client.Expire(ctx, h.key, ttl)
		}
	}
}

func (h *redisHandle) Release(ctx context.Context) error {
	h.cancel()
	err := h.client.Eval(ctx, releaseScript, []string{h.key}, h.token).Err()
	if err != nil {
		return apperrors.NewStoreUnavailable(err)
	}
	return nil
}

func randomToken() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// LocalBuildLock is an in-process sync.Mutex-keyed fallback for single
// process tests and for cmd/territory-api request coalescing (spec §5 NEW).
type LocalBuildLock struct {
	mu    sync.Mutex
	held  map[string]bool
}

func NewLocalBuildLock() *LocalBuildLock {
	return &LocalBuildLock{held: make(map[string]bool)}
}

func (l *LocalBuildLock) Acquire(ctx context.Context, buildID string) (Handle, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[buildID] {
		return nil, apperrors.Newf(apperrors.ErrorTypeStoreUnavailable, "build %s is already locked", buildID)
	}
	l.held[buildID] = true
	return &localHandle{lock: l, buildID: buildID}, nil
}

type localHandle struct {
	lock    *LocalBuildLock
	buildID string
}

func (h *localHandle) Release(context.Context) error {
	h.lock.mu.Lock()
	defer h.lock.mu.Unlock()
	delete(h.lock.held, h.buildID)
	return nil
}
