package locking

import (
	"context"
	"sort"
	"sync"
)

// Locker serializes mutations per item. Acquire blocks until every key is held or ctx
// is done; release must be called exactly once.
type Locker interface {
	Acquire(ctx context.Context, keys ...string) (release func(), err error)
}

// normalize sorts and dedupes keys so multi-item operations take locks in one global order.
func normalize(keys []string) []string {
	out := make([]string, 0, len(keys))
	seen := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		if k == "" {
			continue
		}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

type keyEntry struct {
	ch   chan struct{}
	refs int
}

// KeyedMutex is an in-process Locker. Entries are dropped when no goroutine references them.
type KeyedMutex struct {
	mu      sync.Mutex
	entries map[string]*keyEntry
}

// NewKeyedMutex builds an empty in-process locker.
func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{entries: make(map[string]*keyEntry)}
}

// Acquire takes every key in sorted order.
func (k *KeyedMutex) Acquire(ctx context.Context, keys ...string) (func(), error) {
	ordered := normalize(keys)
	held := make([]string, 0, len(ordered))
	for _, key := range ordered {
		if err := k.lock(ctx, key); err != nil {
			k.unlockAll(held)
			return nil, err
		}
		held = append(held, key)
	}
	return releaseOnce(func() { k.unlockAll(held) }), nil
}

// releaseOnce makes a release func safe to call repeatedly and concurrently.
func releaseOnce(release func()) func() {
	var once sync.Once
	return func() { once.Do(release) }
}

func (k *KeyedMutex) lock(ctx context.Context, key string) error {
	k.mu.Lock()
	entry, ok := k.entries[key]
	if !ok {
		entry = &keyEntry{ch: make(chan struct{}, 1)}
		k.entries[key] = entry
	}
	entry.refs++
	k.mu.Unlock()

	select {
	case entry.ch <- struct{}{}:
		return nil
	case <-ctx.Done():
		k.deref(key, entry)
		return ctx.Err()
	}
}

func (k *KeyedMutex) unlockAll(keys []string) {
	for i := len(keys) - 1; i >= 0; i-- {
		k.mu.Lock()
		entry := k.entries[keys[i]]
		k.mu.Unlock()
		<-entry.ch
		k.deref(keys[i], entry)
	}
}

func (k *KeyedMutex) deref(key string, entry *keyEntry) {
	k.mu.Lock()
	defer k.mu.Unlock()
	entry.refs--
	if entry.refs == 0 {
		delete(k.entries, key)
	}
}
