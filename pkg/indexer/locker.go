package indexer

import "sync"

// Locker serializes operations by name (corpus or model name) with a
// per-name mutex, created lazily. The engine gives no cross-request
// ordering guarantees of its own; Indexer only uses a Locker when
// Options.SerializeByName is set.
type Locker struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewLocker creates an empty Locker.
func NewLocker() *Locker {
	return &Locker{locks: make(map[string]*sync.Mutex)}
}

// Lock acquires the mutex for name, creating it if necessary, and
// returns a function that releases it.
func (l *Locker) Lock(name string) func() {
	l.mu.Lock()
	m, ok := l.locks[name]
	if !ok {
		m = &sync.Mutex{}
		l.locks[name] = m
	}
	l.mu.Unlock()

	m.Lock()
	return m.Unlock
}
