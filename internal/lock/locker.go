// Package lock serializes work on individual ledger accounts.
//
// Keys are always acquired in sorted order so two operations touching the same
// pair of accounts can never wait on each other in a cycle.
package lock

import (
	"context"
	"slices"
	"strconv"
	"sync"
)

// Unlock releases everything a Lock call acquired.
type Unlock func()

// Locker acquires a set of named locks as a group.
type Locker interface {
	Lock(ctx context.Context, keys ...string) (Unlock, error)
}

// AccountKey names the lock guarding one account's balance.
func AccountKey(accountID uint) string {
	return "ledger:account:" + strconv.FormatUint(uint64(accountID), 10)
}

// normalize sorts keys and drops duplicates.
func normalize(keys []string) []string {
	out := slices.Clone(keys)
	slices.Sort(out)
	return slices.Compact(out)
}

type entry struct {
	ch   chan struct{}
	refs int
}

// MutexLocker is an in-process Locker. Entries are dropped once nobody holds or
// waits on them, so the map only grows with concurrently used accounts.
type MutexLocker struct {
	mu    sync.Mutex
	locks map[string]*entry
}

// NewMutexLocker returns an empty in-process locker.
func NewMutexLocker() *MutexLocker {
	return &MutexLocker{locks: make(map[string]*entry)}
}

// Lock blocks until every key is held or ctx is done.
func (l *MutexLocker) Lock(ctx context.Context, keys ...string) (Unlock, error) {
	keys = normalize(keys)
	held := make([]string, 0, len(keys))
	for _, key := range keys {
		e := l.acquireEntry(key)
		select {
		case e.ch <- struct{}{}:
			held = append(held, key)
		case <-ctx.Done():
			l.releaseEntry(key, false)
			l.release(held)
			return nil, ctx.Err()
		}
	}
	var once sync.Once
	return func() { once.Do(func() { l.release(held) }) }, nil
}

func (l *MutexLocker) release(held []string) {
	for i := len(held) - 1; i >= 0; i-- {
		l.releaseEntry(held[i], true)
	}
}

func (l *MutexLocker) acquireEntry(key string) *entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.locks[key]
	if !ok {
		e = &entry{ch: make(chan struct{}, 1)}
		l.locks[key] = e
	}
	e.refs++
	return e
}

func (l *MutexLocker) releaseEntry(key string, held bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e := l.locks[key]
	if held {
		<-e.ch
	}
	e.refs--
	if e.refs == 0 {
		delete(l.locks, key)
	}
}

// size is the number of live entries.
func (l *MutexLocker) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
