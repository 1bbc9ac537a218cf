package workflow

import "sync"

// keyLock serializes writes per target key in-process (spec §5 "Rep-book /
// FLM-team approval-stamp writes are serialized per target key"). The
// serialization is in-process only: the Postgres adapter takes no row lock,
// so writers in separate processes are not serialized against each other.
type keyLock struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newKeyLock() *keyLock {
	return &keyLock{locks: make(map[string]*sync.Mutex)}
}

func (k *keyLock) lockFor(key string) *sync.Mutex {
	k.mu.Lock()
	defer k.mu.Unlock()
	m, ok := k.locks[key]
	if !ok {
		m = &sync.Mutex{}
		k.locks[key] = m
	}
	return m
}

// withKey runs fn while holding the per-key lock for key.
func (k *keyLock) withKey(key string, fn func() error) error {
	m := k.lockFor(key)
	m.Lock()
	defer m.Unlock()
	return fn()
}
