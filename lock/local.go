/*
Package lock provides ledger.Locker implementations.

PURPOSE:
  Serializes work on one record key ("obligation:<id>",
  "trust-account:<id>") before a database transaction starts, so two
  requests for the same obligation never race to the row lock.

IMPLEMENTATIONS:
  Local: keyed mutex for a single process
  Redis: redislock-based lock for several server instances

USAGE:
  unlock, err := locker.Lock(ctx, ledger.ObligationLockKey(id))
  if err != nil {
      return err
  }
  defer unlock()
*/
package lock

import (
	"context"
	"sync"

	"github.com/wdeanegpt/property-sub001/ledger"
)

// Local is an in-process keyed mutex. Entries are reference counted and
// dropped when nobody holds or waits for the key.
type Local struct {
	mu    sync.Mutex
	slots map[string]*slot
}

type slot struct {
	ch   chan struct{} // buffered(1): holding the token means holding the lock
	refs int
}

var _ ledger.Locker = (*Local)(nil)

// NewLocal returns an empty keyed mutex.
func NewLocal() *Local {
	return &Local{slots: make(map[string]*slot)}
}

// Lock blocks until key is free or ctx is done.
func (l *Local) Lock(ctx context.Context, key string) (func(), error) {
	s := l.acquire(key)

	select {
	case s.ch <- struct{}{}:
	case <-ctx.Done():
		l.release(key)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-s.ch
			l.release(key)
		})
	}, nil
}

func (l *Local) acquire(key string) *slot {
	l.mu.Lock()
	defer l.mu.Unlock()

	s, ok := l.slots[key]
	if !ok {
		s = &slot{ch: make(chan struct{}, 1)}
		l.slots[key] = s
	}
	s.refs++
	return s
}

func (l *Local) release(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	s := l.slots[key]
	s.refs--
	if s.refs == 0 {
		delete(l.slots, key)
	}
}

// Len returns the number of keys currently held or awaited.
func (l *Local) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.slots)
}

// Nop never blocks. It suits single-writer tools such as cmd/sweep when
// the database row locks are enough.
type Nop struct{}

func (Nop) Lock(context.Context, string) (func(), error) { return func() {}, nil }
