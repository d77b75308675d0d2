package locks

import (
	"context"
	"sync"
	"time"
)

type localEntry struct {
	sem  chan struct{}
	refs int
}

// Local is an in-process Locker. It is enough for a single API instance;
// multi-instance deployments use Redis.
type Local struct {
	Timeout time.Duration

	mu      sync.Mutex
	entries map[string]*localEntry
}

func NewLocal(timeout time.Duration) *Local {
	return &Local{Timeout: timeout, entries: make(map[string]*localEntry)}
}

func (l *Local) ref(key string) *localEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.entries == nil {
		l.entries = make(map[string]*localEntry)
	}
	e, ok := l.entries[key]
	if !ok {
		e = &localEntry{sem: make(chan struct{}, 1)}
		l.entries[key] = e
	}
	e.refs++
	return e
}

func (l *Local) unref(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.entries[key]
	if !ok {
		return
	}
	e.refs--
	if e.refs == 0 {
		delete(l.entries, key)
	}
}

func (l *Local) Acquire(ctx context.Context, keys ...string) (func(), error) {
	keys = normalize(keys)
	ctx, cancel := withTimeout(ctx, l.Timeout)
	defer cancel()

	held := make([]string, 0, len(keys))
	releaseHeld := func() {
		for i := len(held) - 1; i >= 0; i-- {
			k := held[i]
			l.mu.Lock()
			e := l.entries[k]
			l.mu.Unlock()
			<-e.sem
			l.unref(k)
		}
	}

	for _, k := range keys {
		e := l.ref(k)
		select {
		case e.sem <- struct{}{}:
			held = append(held, k)
		case <-ctx.Done():
			l.unref(k)
			releaseHeld()
			if isTimeout(ctx.Err()) {
				return nil, conflict()
			}
			return nil, ctx.Err()
		}
	}

	var once sync.Once
	return func() { once.Do(releaseHeld) }, nil
}
