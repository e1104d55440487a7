package runtime

import "sync"

type keyedLock[K comparable] struct {
	mu      sync.Mutex
	entries map[K]*lockEntry
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

func newKeyedLock[K comparable]() *keyedLock[K] {
	return &keyedLock[K]{entries: make(map[K]*lockEntry)}
}

// Lock serializes callers on the same key and returns the unlock func.
// Entries are dropped once nobody holds or waits on them.
func (l *keyedLock[K]) Lock(key K) func() {
	l.mu.Lock()
	e, ok := l.entries[key]
	if !ok {
		e = &lockEntry{}
		l.entries[key] = e
	}
	e.refs++
	l.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		l.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(l.entries, key)
		}
		l.mu.Unlock()
	}
}

func (l *keyedLock[K]) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
