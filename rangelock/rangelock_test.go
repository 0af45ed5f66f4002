package rangelock

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNewRejectsZeroThreads(t *testing.T) {
	_, err := New(0)
	require.Error(t, err)
}

func TestLockUnlockReturnsDistinctSlots(t *testing.T) {
	l, err := New(2)
	require.NoError(t, err)

	id1 := l.Lock(0, 10)
	id2 := l.Lock(10, 20)
	require.NotEqual(t, id1, id2)
	l.Unlock(id1)
	l.Unlock(id2)
}

func TestDisjointRangesProceedConcurrently(t *testing.T) {
	l, err := New(2)
	require.NoError(t, err)

	done := make(chan int, 2)
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		id := l.Lock(0, 10)
		done <- id
	}()
	go func() {
		defer wg.Done()
		id := l.Lock(10, 20)
		done <- id
	}()
	wg.Wait()
	close(done)
	var ids []int
	for id := range done {
		ids = append(ids, id)
	}
	require.Len(t, ids, 2)
	require.NotEqual(t, ids[0], ids[1])
	l.Unlock(ids[0])
	l.Unlock(ids[1])
}

func TestOverlappingRangeBlocksUntilUnlock(t *testing.T) {
	l, err := New(2)
	require.NoError(t, err)

	id1 := l.Lock(0, 10)

	acquired := make(chan int, 1)
	go func() {
		acquired <- l.Lock(5, 15)
	}()

	select {
	case <-acquired:
		t.Fatal("overlapping lock granted before the holder released")
	case <-time.After(50 * time.Millisecond):
	}

	l.Unlock(id1)

	select {
	case id2 := <-acquired:
		l.Unlock(id2)
	case <-time.After(time.Second):
		t.Fatal("overlapping lock never granted after release")
	}
}

func TestHalfOpenBoundaryDoesNotOverlap(t *testing.T) {
	l, err := New(2)
	require.NoError(t, err)

	id1 := l.Lock(0, 10)
	acquired := make(chan int, 1)
	go func() {
		acquired <- l.Lock(10, 20)
	}()

	select {
	case id2 := <-acquired:
		l.Unlock(id2)
	case <-time.After(time.Second):
		t.Fatal("adjacent, non-overlapping range should not have blocked")
	}
	l.Unlock(id1)
}

// TestSecondWaiterGrabsFreedSlotWithoutPanic reproduces a two-waiter
// race on a busy entry: while both waiters are asleep on it, an
// unrelated disjoint caller takes the only other free slot, so by the
// time the busy entry unlocks the free pool is empty. The first waiter
// to wake is not the last (it doesn't release the busy entry's own
// slot) and must not assume a slot is available just because its own
// range no longer conflicts with anything active.
func TestSecondWaiterGrabsFreedSlotWithoutPanic(t *testing.T) {
	l, err := New(2)
	require.NoError(t, err)

	busy := l.Lock(0, 10)

	waiterDone := make(chan int, 2)
	for i := 0; i < 2; i++ {
		go func() {
			waiterDone <- l.Lock(5, 15)
		}()
	}

	// Wait until both goroutines have registered as waiters on busy,
	// i.e. are actually asleep on its condition variable rather than
	// still scanning or blocked on pool exhaustion.
	require.Eventually(t, func() bool {
		l.mu.Lock()
		defer l.mu.Unlock()
		return l.pool[busy].waiters == 2
	}, time.Second, time.Millisecond)

	// Grab the only other free slot while both waiters sleep.
	disjoint := l.Lock(100, 200)

	l.Unlock(busy)

	// Neither waiter can make progress until disjoint (or one another)
	// frees a slot; release disjoint so the pool has room again.
	l.Unlock(disjoint)

	var ids []int
	for i := 0; i < 2; i++ {
		select {
		case id := <-waiterDone:
			ids = append(ids, id)
			if len(ids) == 1 {
				// the first waiter to be granted must release its
				// slot before the second can proceed, since both
				// requested the same overlapping range
				l.Unlock(id)
			}
		case <-time.After(time.Second):
			t.Fatal("waiter never granted its lock")
		}
	}
	require.Len(t, ids, 2)
}

func TestMaxThreadsBoundsConcurrentHolders(t *testing.T) {
	l, err := New(1)
	require.NoError(t, err)
	require.Equal(t, 1, l.MaxThreads())

	id1 := l.Lock(100, 200)
	acquired := make(chan int, 1)
	go func() {
		acquired <- l.Lock(300, 400) // disjoint range, but the pool is exhausted
	}()

	select {
	case <-acquired:
		t.Fatal("lock granted despite the pool being exhausted")
	case <-time.After(50 * time.Millisecond):
	}

	l.Unlock(id1)
	select {
	case id2 := <-acquired:
		l.Unlock(id2)
	case <-time.After(time.Second):
		t.Fatal("lock never granted once the pool had capacity again")
	}
}
