package codec

import (
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
)

// Stats are cumulative stripe-unit operation counters, exposed for the
// benchmark/check reporting tooling in cmd/raidctl; the coding hot path
// never branches on them.
type Stats struct {
	UnitsRead    uint64
	UnitsWritten uint64
}

// Base provides the storage decomposition and erasure bookkeeping
// common to every codec: cyclic symbol-to-disk mapping, per-subarray
// offline-disk tracking, and the generic ReadData/WriteData split into
// per-symbol decode/encode calls. Concrete codecs embed *Base and
// implement the remaining Codec methods.
type Base struct {
	io     DiskIO
	params Params

	mu               sync.RWMutex
	numOffline       []int   // per subarray
	offlineDiskIDs   [][]int // per subarray, sorted ascending disk positions within the subarray

	updateScratch [][]byte // per thread, Dimension*StripeUnitsPerSymbol*StripeUnitSize bytes
	symbolScratch [][]byte // per thread, StripeUnitSize bytes, for subsymbol decomposition

	stats Stats
}

// NewBase validates params and constructs the shared decomposition
// layer. concurrentThreads bounds the per-thread scratch pools sized
// here, and must match the thread-ID range callers will pass to every
// Base/Codec method (i.e. the range locker's MaxThreads).
func NewBase(io DiskIO, params Params, concurrentThreads int) (*Base, error) {
	if err := params.validate(); err != nil {
		return nil, err
	}
	if concurrentThreads < 1 {
		return nil, errors.New("codec: concurrentThreads must be at least 1")
	}
	b := &Base{
		io:             io,
		params:         params,
		numOffline:     make([]int, params.InterleavingOrder),
		offlineDiskIDs: make([][]int, params.InterleavingOrder),
		updateScratch:  make([][]byte, concurrentThreads),
		symbolScratch:  make([][]byte, concurrentThreads),
	}
	unitWidth := params.Dimension * params.StripeUnitsPerSymbol * params.StripeUnitSize
	for i := range b.updateScratch {
		b.updateScratch[i] = make([]byte, unitWidth)
		b.symbolScratch[i] = make([]byte, params.StripeUnitsPerSymbol*params.StripeUnitSize)
	}
	b.ResetErasures()
	return b, nil
}

// Params reports the code geometry this base was constructed with.
func (b *Base) Params() Params { return b.params }

// ResetErasures rescans DiskIO and rebuilds the per-subarray offline
// disk lists. Must be called whenever the online/offline state of a
// disk changes before further reads or writes are attempted.
func (b *Base) ResetErasures() {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := b.params.Length
	for j := 0; j < b.params.InterleavingOrder; j++ {
		var offline []int
		for i := 0; i < n; i++ {
			if !b.io.IsOnline(j*n + i) {
				offline = append(offline, i)
			}
		}
		b.numOffline[j] = len(offline)
		b.offlineDiskIDs[j] = offline
	}
}

// GetNumOfErasures returns the number of offline disks in the subarray
// identified by erasureSetID.
func (b *Base) GetNumOfErasures(erasureSetID int) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	n := b.params.Length
	return b.numOffline[erasureSetID/n]
}

// GetErasedPosition returns the i-th erased symbol position for the
// given erasure set (translated through the cyclic load-balancing
// shift), or -1 if there is no such erasure.
func (b *Base) GetErasedPosition(erasureSetID, i int) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	n := b.params.Length
	subarray := erasureSetID / n
	shift := erasureSetID % n
	offline := b.offlineDiskIDs[subarray]
	if i >= len(offline) {
		return -1
	}
	pos := offline[i] - shift
	if pos < 0 {
		pos += n
	}
	return pos
}

// IsErased reports whether symbol i of the given erasure set is
// currently offline.
func (b *Base) IsErased(erasureSetID, i int) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	n := b.params.Length
	subarray := erasureSetID / n
	diskPos := (i + erasureSetID) % n
	return !b.io.IsOnline(subarray*n + diskPos)
}

// IsMountable reports whether every cyclic shift of the erasure pattern
// (i.e. every possible ErasureSetID) is correctable: an array attach
// must check all n*s load-balancing offsets, not just the ones the
// most recent I/O happened to touch.
func (b *Base) IsMountable(c Codec) bool {
	ok := true
	total := b.params.Length * b.params.InterleavingOrder
	for i := 0; i < total; i++ {
		if !c.IsCorrectable(i) {
			ok = false
		}
	}
	return ok
}

// ReadStripeUnit reads Units2Read stripe units of one symbol, applying
// the cyclic load-balancing shift implied by erasureSetID to pick the
// physical disk.
func (b *Base) ReadStripeUnit(stripeID uint64, erasureSetID, symbolID, stripeUnitID, units2Read int, dest []byte) error {
	n := b.params.Length
	subarray := erasureSetID / n
	disk := subarray*n + (symbolID+erasureSetID)%n
	err := b.io.ReadBlocks(disk, stripeID*uint64(b.params.StripeUnitsPerSymbol)+uint64(stripeUnitID), units2Read, dest)
	if err == nil {
		atomic.AddUint64(&b.stats.UnitsRead, uint64(units2Read))
	}
	return err
}

// WriteStripeUnit writes Units2Write stripe units of one symbol,
// applying the same cyclic shift as ReadStripeUnit.
func (b *Base) WriteStripeUnit(stripeID uint64, erasureSetID, symbolID, stripeUnitID, units2Write int, src []byte) error {
	n := b.params.Length
	subarray := erasureSetID / n
	disk := subarray*n + (symbolID+erasureSetID)%n
	err := b.io.WriteBlocks(disk, stripeID*uint64(b.params.StripeUnitsPerSymbol)+uint64(stripeUnitID), units2Write, src)
	if err == nil {
		atomic.AddUint64(&b.stats.UnitsWritten, uint64(units2Write))
	}
	return err
}

// Stats returns a snapshot of the cumulative I/O counters.
func (b *Base) Stats() Stats {
	return Stats{
		UnitsRead:    atomic.LoadUint64(&b.stats.UnitsRead),
		UnitsWritten: atomic.LoadUint64(&b.stats.UnitsWritten),
	}
}

// decodeSubsymbols decodes Subsymbols2Decode stripe units starting at
// SubsymbolID within symbol SymbolID. When the request spans a whole
// symbol it defers straight to c.DecodeDataSymbols; otherwise it decodes
// the full symbol into thread-local scratch and copies out the
// requested sub-range. This lets Base support partial-symbol access
// generically for any StripeUnitsPerSymbol without every codec having
// to implement its own subsymbol path.
func (b *Base) decodeSubsymbols(c Codec, stripeID uint64, erasureSetID, symbolID, subsymbolID, subsymbols2Decode int, dest []byte, threadID int) error {
	u := b.params.StripeUnitsPerSymbol
	if subsymbolID == 0 && subsymbols2Decode == u {
		return c.DecodeDataSymbols(stripeID, erasureSetID, symbolID, 1, dest, threadID)
	}
	w := b.params.StripeUnitSize
	scratch := b.symbolScratch[threadID]
	if err := c.DecodeDataSymbols(stripeID, erasureSetID, symbolID, 1, scratch, threadID); err != nil {
		return err
	}
	copy(dest, scratch[subsymbolID*w:(subsymbolID+subsymbols2Decode)*w])
	return nil
}

// ReadData splits a payload read of NumOfUnits stripe units starting at
// StripeUnitID into a leading partial symbol, a run of whole symbols,
// and a trailing partial symbol, mirroring the original RAID processor's
// read decomposition.
func (b *Base) ReadData(c Codec, stripeID uint64, stripeUnitID, subarrayID, numOfUnits int, dest []byte, threadID int) error {
	u := b.params.StripeUnitsPerSymbol
	w := b.params.StripeUnitSize
	n := b.params.Length
	erasureSetID := int(stripeID%uint64(n)) + subarrayID*n

	firstSymbolID := stripeUnitID / u
	firstOffset := stripeUnitID % u

	if firstOffset != 0 {
		units := min(u-firstOffset, numOfUnits)
		if units == 0 {
			return nil
		}
		if err := b.decodeSubsymbols(c, stripeID, erasureSetID, firstSymbolID, firstOffset, units, dest, threadID); err != nil {
			return err
		}
		dest = dest[units*w:]
		numOfUnits -= units
		firstSymbolID++
	}

	symbols := numOfUnits / u
	if symbols > 0 {
		if err := c.DecodeDataSymbols(stripeID, erasureSetID, firstSymbolID, symbols, dest, threadID); err != nil {
			return err
		}
		dest = dest[symbols*u*w:]
		numOfUnits -= symbols * u
		firstSymbolID += symbols
	}

	if numOfUnits > 0 {
		return b.decodeSubsymbols(c, stripeID, erasureSetID, firstSymbolID, 0, numOfUnits, dest, threadID)
	}
	return nil
}

// WriteData applies the encoding-strategy gate of GetEncodingStrategy to
// decide between a full-stripe re-encode (fetching whatever payload
// isn't covered by src) and a targeted check-symbol delta update.
func (b *Base) WriteData(c Codec, stripeID uint64, stripeUnitID, subarrayID, numOfUnits int, src []byte, threadID int) error {
	u := b.params.StripeUnitsPerSymbol
	w := b.params.StripeUnitSize
	k := b.params.Dimension
	n := b.params.Length
	erasureSetID := int(stripeID%uint64(n)) + subarrayID*n

	if !c.GetEncodingStrategy(erasureSetID, stripeUnitID, numOfUnits) {
		return c.UpdateInformationSymbols(stripeID, erasureSetID, stripeUnitID, numOfUnits, src, threadID)
	}

	stripeWidth := k * u
	if numOfUnits == stripeWidth && stripeUnitID == 0 {
		return c.EncodeStripe(stripeID, erasureSetID, src, threadID)
	}

	buf := b.updateScratch[threadID]
	if stripeUnitID > 0 {
		if err := b.ReadData(c, stripeID, 0, subarrayID, stripeUnitID, buf, threadID); err != nil {
			return err
		}
	}
	copy(buf[stripeUnitID*w:(stripeUnitID+numOfUnits)*w], src[:numOfUnits*w])
	trailing := stripeWidth - (stripeUnitID + numOfUnits)
	if trailing > 0 {
		if err := b.ReadData(c, stripeID, stripeUnitID+numOfUnits, subarrayID, trailing, buf[(stripeUnitID+numOfUnits)*w:], threadID); err != nil {
			return err
		}
	}
	return c.EncodeStripe(stripeID, erasureSetID, buf, threadID)
}

// VerifyStripe checks the codeword stored at stripeID's erasure set
// within subarrayID, erasureSetID = stripeID mod Length + subarrayID*Length,
// matching the erasureSetID derivation ReadData/WriteData use.
func (b *Base) VerifyStripe(c Codec, stripeID uint64, subarrayID, threadID int) (bool, error) {
	n := b.params.Length
	erasureSetID := int(stripeID%uint64(n)) + subarrayID*n
	return c.CheckCodeword(stripeID, erasureSetID, threadID)
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
