// Package volume implements the byte-addressable facade over a codec
// engine and its disks: it turns a linear byte offset into the
// (stripe, subarray, stripe-unit) coordinates the erasure-coding engine
// operates on, serializes overlapping accesses through a range lock,
// and derives the array's mount-time availability state.
package volume

import (
	"sync"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/bpfs/raidsim/codec"
	"github.com/bpfs/raidsim/disk"
	"github.com/bpfs/raidsim/rangelock"
)

// ArrayState summarizes a volume's availability as derived from its
// member disks and the codec's erasure-correction capacity.
type ArrayState int

const (
	// StateUninitialized means the volume is not mounted: Mount has not
	// been called, has failed, or Unmount has been called since.
	StateUninitialized ArrayState = iota
	// StateNormal means every disk is online.
	StateNormal
	// StateDegraded means some disks are offline but every possible
	// erasure pattern is still correctable.
	StateDegraded
	// StateFailed means the array has more offline disks in some
	// subarray than the codec can correct. ReadAt and WriteAt do not
	// check the state; an access fails only where it reaches a disk
	// that is not online.
	StateFailed
)

func (s ArrayState) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateNormal:
		return "normal"
	case StateDegraded:
		return "degraded"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Volume is the top-level facade: a fixed set of disks driven by one
// codec engine, addressed as a single linear byte stream.
type Volume struct {
	disks  []*disk.Disk
	engine codec.Engine
	locker *rangelock.Locker
	log    *logrus.Logger

	mu    sync.RWMutex
	state ArrayState
}

// Open attaches engine to disks (which must already be Initialized). The
// volume starts in StateUninitialized; Mount derives the ArrayState.
// disks must number
// engine.Params().Length * engine.Params().InterleavingOrder, ordered
// subarray-major then disk-position, matching the (subarray*Length+pos)
// indexing the codec uses internally.
func Open(disks []*disk.Disk, engine codec.Engine, locker *rangelock.Locker, log *logrus.Logger) (*Volume, error) {
	p := engine.Params()
	want := p.Length * p.InterleavingOrder
	if len(disks) != want {
		return nil, errors.Errorf("volume: expected %d disks, got %d", want, len(disks))
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	v := &Volume{disks: disks, engine: engine, locker: locker, log: log}
	return v, nil
}

// NumDisks, IsOnline, ReadBlocks and WriteBlocks implement
// codec.DiskIO, letting the volume itself be the engine's storage
// collaborator.
func (v *Volume) NumDisks() int { return len(v.disks) }

func (v *Volume) IsOnline(diskID int) bool {
	return v.disks[diskID].State() == disk.StateOnline
}

func (v *Volume) ReadBlocks(diskID int, stripeUnitID uint64, n int, dst []byte) error {
	return v.disks[diskID].ReadBlocks(stripeUnitID, n, dst)
}

func (v *Volume) WriteBlocks(diskID int, stripeUnitID uint64, n int, src []byte) error {
	return v.disks[diskID].WriteBlocks(stripeUnitID, n, src)
}

// Mount brings every disk online (read-write unless readOnly is set),
// rebuilds the codec's erasure bookkeeping, and derives the resulting
// ArrayState. Mount is all-or-nothing: if any disk fails to mount, every
// disk mounted so far in this call is unmounted again and the volume is
// left Uninitialized.
func (v *Volume) Mount(readOnly bool) error {
	var mounted []*disk.Disk
	for _, d := range v.disks {
		if d.State() != disk.StateOffline {
			continue
		}
		if err := d.Mount(!readOnly); err != nil {
			v.log.WithField("disk", d.ID()).WithError(err).Error("volume: disk failed to mount, aborting")
			for _, m := range mounted {
				m.Unmount(0)
			}
			v.mu.Lock()
			v.state = StateUninitialized
			v.mu.Unlock()
			return errors.Wrapf(err, "volume: disk %d failed to mount", d.ID())
		}
		mounted = append(mounted, d)
	}
	v.engine.ResetErasures()
	v.recomputeState()
	v.log.WithField("state", v.State()).Info("volume: mounted")
	return nil
}

// Unmount cleanly unmounts every online disk, recording ts as their
// last-clean-unmount timestamp.
func (v *Volume) Unmount(ts int64) error {
	var firstErr error
	for _, d := range v.disks {
		if err := d.Unmount(ts); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	v.mu.Lock()
	v.state = StateUninitialized
	v.mu.Unlock()
	return firstErr
}

func (v *Volume) recomputeState() {
	v.mu.Lock()
	defer v.mu.Unlock()

	offline := 0
	for _, d := range v.disks {
		if d.State() != disk.StateOnline {
			offline++
		}
	}
	switch {
	case offline == 0:
		v.state = StateNormal
	case v.engine.IsMountable():
		v.state = StateDegraded
	default:
		v.state = StateFailed
	}
}

// State reports the volume's current ArrayState.
func (v *Volume) State() ArrayState {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.state
}

// MaxThreads reports the concurrency bound of the underlying range
// locker, the valid range of thread IDs callers may expect ReadAt and
// WriteAt to internally dispatch across.
func (v *Volume) MaxThreads() int { return v.locker.MaxThreads() }

// Stats returns the engine's cumulative stripe-unit I/O counters.
func (v *Volume) Stats() codec.Stats { return v.engine.Stats() }

// UnitSize reports the codec's stripe unit size in bytes, the natural
// chunk granularity for request-sized I/O in cmd/raidctl.
func (v *Volume) UnitSize() int { return v.layout().unitSize }

// Capacity reports the total number of payload bytes addressable
// through ReadAt/WriteAt: every disk contributes the same number of
// stripe-unit blocks, so the usable stripe count is derived from any
// one of them.
func (v *Volume) Capacity() int64 {
	l := v.layout()
	p := v.engine.Params()
	numStripes := v.disks[0].NumBlocks() / uint64(p.StripeUnitsPerSymbol)
	return int64(numStripes) * l.groupBytes
}

// layout carries the coordinate-conversion constants derived from the
// engine's Params, computed once per call since Params never changes
// after construction.
type layout struct {
	unitSize          int
	unitsPerSubarray  int // k*u
	subarrayBytes     int64
	groupBytes        int64
	interleavingOrder int
}

func (v *Volume) layout() layout {
	p := v.engine.Params()
	unitsPerSubarray := p.Dimension * p.StripeUnitsPerSymbol
	subarrayBytes := int64(unitsPerSubarray) * int64(p.StripeUnitSize)
	return layout{
		unitSize:          p.StripeUnitSize,
		unitsPerSubarray:  unitsPerSubarray,
		subarrayBytes:     subarrayBytes,
		groupBytes:        subarrayBytes * int64(p.InterleavingOrder),
		interleavingOrder: p.InterleavingOrder,
	}
}

// cursor identifies one stripe unit's position: which joint stripe
// group, which subarray within it, and which unit within that subarray.
type cursor struct {
	stripeID   uint64
	subarrayID int
	unitID     int
}

func (l layout) locate(byteOffset int64) (cursor, int) {
	group := byteOffset / l.groupBytes
	rem := byteOffset % l.groupBytes
	subarrayID := int(rem / l.subarrayBytes)
	remSub := rem % l.subarrayBytes
	unitID := int(remSub / int64(l.unitSize))
	byteInUnit := int(remSub % int64(l.unitSize))
	return cursor{stripeID: uint64(group), subarrayID: subarrayID, unitID: unitID}, byteInUnit
}

// unitsUntilBoundary returns how many whole stripe units remain in c's
// subarray starting at c.unitID.
func (l layout) unitsUntilBoundary(c cursor) int {
	return l.unitsPerSubarray - c.unitID
}

func (c cursor) advance(l layout, units int) cursor {
	c.unitID += units
	for c.unitID >= l.unitsPerSubarray {
		c.unitID -= l.unitsPerSubarray
		c.subarrayID++
	}
	for c.subarrayID >= l.interleavingOrder {
		c.subarrayID -= l.interleavingOrder
		c.stripeID++
	}
	return c
}

// span returns [lowStripe, highStripe) covering every stripe group
// touched by a byte range of length n starting at offset, for use as a
// range-lock interval.
func (l layout) span(offset int64, n int) (uint64, uint64) {
	if n == 0 {
		g := uint64(offset / l.groupBytes)
		return g, g + 1
	}
	low := offset / l.groupBytes
	high := (offset + int64(n) - 1) / l.groupBytes
	return uint64(low), uint64(high) + 1
}

// ReadAt reads len(buf) bytes starting at byte offset off.
func (v *Volume) ReadAt(off int64, buf []byte) error {
	if len(buf) == 0 {
		return nil
	}
	l := v.layout()
	low, high := l.span(off, len(buf))
	threadID := v.locker.Lock(low, high)
	defer v.locker.Unlock(threadID)

	cur, byteInUnit := l.locate(off)
	scratch := make([]byte, l.unitSize)
	remaining := buf

	for len(remaining) > 0 {
		if byteInUnit != 0 || len(remaining) < l.unitSize {
			n := l.unitSize - byteInUnit
			if n > len(remaining) {
				n = len(remaining)
			}
			if err := v.engine.ReadData(cur.stripeID, cur.unitID, cur.subarrayID, 1, scratch, threadID); err != nil {
				return err
			}
			copy(remaining[:n], scratch[byteInUnit:byteInUnit+n])
			remaining = remaining[n:]
			if byteInUnit+n == l.unitSize {
				cur = cur.advance(l, 1)
			}
			byteInUnit = 0
			continue
		}

		avail := l.unitsUntilBoundary(cur)
		want := len(remaining) / l.unitSize
		if want > avail {
			want = avail
		}
		if want == 0 {
			want = 1
		}
		n := want * l.unitSize
		if err := v.engine.ReadData(cur.stripeID, cur.unitID, cur.subarrayID, want, remaining[:n], threadID); err != nil {
			return err
		}
		remaining = remaining[n:]
		cur = cur.advance(l, want)
	}
	return nil
}

// WriteAt writes len(buf) bytes starting at byte offset off.
func (v *Volume) WriteAt(off int64, buf []byte) error {
	if len(buf) == 0 {
		return nil
	}
	l := v.layout()
	low, high := l.span(off, len(buf))
	threadID := v.locker.Lock(low, high)
	defer v.locker.Unlock(threadID)

	cur, byteInUnit := l.locate(off)
	scratch := make([]byte, l.unitSize)
	remaining := buf

	for len(remaining) > 0 {
		if byteInUnit != 0 || len(remaining) < l.unitSize {
			n := l.unitSize - byteInUnit
			if n > len(remaining) {
				n = len(remaining)
			}
			if err := v.engine.ReadData(cur.stripeID, cur.unitID, cur.subarrayID, 1, scratch, threadID); err != nil {
				return err
			}
			copy(scratch[byteInUnit:byteInUnit+n], remaining[:n])
			if err := v.engine.WriteData(cur.stripeID, cur.unitID, cur.subarrayID, 1, scratch, threadID); err != nil {
				return err
			}
			remaining = remaining[n:]
			if byteInUnit+n == l.unitSize {
				cur = cur.advance(l, 1)
			}
			byteInUnit = 0
			continue
		}

		avail := l.unitsUntilBoundary(cur)
		want := len(remaining) / l.unitSize
		if want > avail {
			want = avail
		}
		if want == 0 {
			want = 1
		}
		n := want * l.unitSize
		if err := v.engine.WriteData(cur.stripeID, cur.unitID, cur.subarrayID, want, remaining[:n], threadID); err != nil {
			return err
		}
		remaining = remaining[n:]
		cur = cur.advance(l, want)
	}
	return nil
}

// Verify checks every (stripe, subarray) pair touched by [off, off+n)
// for codeword consistency, returning the first inconsistency
// encountered (if any).
func (v *Volume) Verify(off int64, n int) (bool, error) {
	if n == 0 {
		return true, nil
	}
	l := v.layout()
	low, high := l.span(off, n)
	threadID := v.locker.Lock(low, high)
	defer v.locker.Unlock(threadID)

	for s := low; s < high; s++ {
		for subarray := 0; subarray < l.interleavingOrder; subarray++ {
			ok, err := v.engine.VerifyStripe(s, subarray, threadID)
			if err != nil {
				return false, err
			}
			if !ok {
				return false, nil
			}
		}
	}
	return true, nil
}
