// Package lock serializes operations on the same account across goroutines or service instances.
package lock

import (
	"context"
	"fmt"
	"sync"

	"github.com/nkiryanov/rewardledger/internal/apperrors"
)

// Locker acquires exclusive lock on key; returned unlock must be called once
type Locker interface {
	Lock(ctx context.Context, key string) (func(), error)
}

// AccountKey is the lock key for all balance changing operations of an account
func AccountKey(accountID fmt.Stringer) string {
	return "account:" + accountID.String()
}

// LocalLocker works within single process only
type LocalLocker struct {
	mu    sync.Mutex
	slots map[string]*slot
}

type slot struct {
	ch   chan struct{}
	refs int
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{slots: map[string]*slot{}}
}

func (l *LocalLocker) Lock(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	s, ok := l.slots[key]
	if !ok {
		s = &slot{ch: make(chan struct{}, 1)}
		l.slots[key] = s
	}
	s.refs++
	l.mu.Unlock()

	select {
	case s.ch <- struct{}{}:
	case <-ctx.Done():
		l.release(key, s, false)
		return nil, fmt.Errorf("lock %s: %w: %v", key, apperrors.ErrStoreConflict, ctx.Err())
	}

	var once sync.Once
	return func() {
		once.Do(func() { l.release(key, s, true) })
	}, nil
}

func (l *LocalLocker) release(key string, s *slot, held bool) {
	if held {
		<-s.ch
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	s.refs--
	if s.refs == 0 {
		delete(l.slots, key)
	}
}
