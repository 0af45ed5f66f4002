// Package rangelock implements a bounded-concurrency lock over half-open
// integer intervals: up to MaxThreads ranges may be held at once, and a
// request whose interval overlaps any currently granted lock blocks until
// that lock is released. Disjoint ranges proceed concurrently.
package rangelock

import (
	"sync"

	"github.com/pkg/errors"
)

type state int

const (
	stateFree state = iota
	stateLocked
	stateUnlocked
)

// entry is one slot of the fixed-size lock pool. Its slot index in the
// pool doubles as the thread ID handed back by Lock, so callers can use
// it to index their own per-thread scratch buffers.
type entry struct {
	index     int
	low, high uint64
	state     state
	waiters   int
	cond      *sync.Cond

	prev, next *entry // active list linkage; nil when not in the list
}

// Locker grants range locks to up to maxThreads concurrent callers.
// Everything is guarded by a single mutex; the only suspension points are
// the condition-variable waits below.
type Locker struct {
	mu         sync.Mutex
	maxThreads int

	pool     []entry
	free     []*entry // stack of unused slots
	active   *entry   // head of the doubly-linked active list
	poolFree *sync.Cond
}

// New creates a locker with room for maxThreads simultaneously granted
// locks. maxThreads must be at least 1.
func New(maxThreads int) (*Locker, error) {
	if maxThreads < 1 {
		return nil, errors.New("rangelock: maxThreads must be at least 1")
	}
	l := &Locker{
		maxThreads: maxThreads,
		pool:       make([]entry, maxThreads),
		free:       make([]*entry, 0, maxThreads),
	}
	l.poolFree = sync.NewCond(&l.mu)
	for i := range l.pool {
		l.pool[i].index = i
		l.pool[i].cond = sync.NewCond(&l.mu)
		l.pool[i].state = stateFree
		l.free = append(l.free, &l.pool[i])
	}
	return l, nil
}

// MaxThreads returns the configured concurrency bound.
func (l *Locker) MaxThreads() int { return l.maxThreads }

// Lock blocks until the half-open range [low, high) can be granted
// without overlapping any other currently granted range, then returns a
// slot index in [0, MaxThreads) identifying the lock (and usable as a
// thread ID for per-thread scratch).
func (l *Locker) Lock(low, high uint64) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	for {
		for len(l.free) == 0 {
			l.poolFree.Wait()
		}

		blocked := false
		for cur := l.active; cur != nil; cur = cur.next {
			if cur.state != stateLocked {
				continue
			}
			if high > cur.low && low < cur.high {
				blocked = true
				l.wait(cur)
				break // the list may have changed; rescan from the head
			}
		}
		if !blocked {
			break
		}
	}

	n := len(l.free)
	e := l.free[n-1]
	l.free = l.free[:n-1]

	e.low, e.high = low, high
	e.waiters = 0
	e.state = stateLocked
	e.prev = nil
	e.next = l.active
	if l.active != nil {
		l.active.prev = e
	}
	l.active = e

	return e.index
}

// wait blocks the caller on e's condition variable until e transitions to
// Unlocked, then applies the "last waiter releases the slot" protocol:
// whichever waiter observes waiters == 0 after decrementing is
// responsible for returning the slot to the free pool. Must be called
// with l.mu held.
func (l *Locker) wait(e *entry) {
	e.waiters++
	for e.state != stateUnlocked {
		e.cond.Wait()
	}
	e.waiters--
	if e.state == stateUnlocked && e.waiters == 0 {
		l.release(e)
	}
}

// Unlock releases the lock identified by id (as returned by Lock),
// waking every thread blocked on an overlapping range.
func (l *Locker) Unlock(id int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	e := &l.pool[id]
	e.state = stateUnlocked

	if e.next != nil {
		e.next.prev = e.prev
	}
	if e.prev != nil {
		e.prev.next = e.next
	} else {
		l.active = e.next
	}
	e.prev, e.next = nil, nil

	e.cond.Broadcast()
	if e.waiters == 0 {
		l.release(e)
	}
}

// release returns e to the free pool and signals any Lock call waiting
// for free capacity. Must be called with l.mu held; must only be called
// exactly once per lock/unlock cycle (by Unlock itself, or by the last
// waiter to observe waiters == 0 in wait), to match the one-release
// invariant of the Free -> Locked -> UnlockedWithWaiters -> Free FSM.
func (l *Locker) release(e *entry) {
	e.state = stateFree
	l.free = append(l.free, e)
	l.poolFree.Signal()
}

