package codec

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewBaseRejectsInvalidParams(t *testing.T) {
	io := newMemDiskIO(4, 16, 4)
	_, err := NewBase(io, Params{Length: 4, Dimension: 0, StripeUnitsPerSymbol: 1, StripeUnitSize: 16, InterleavingOrder: 1}, 1)
	require.Error(t, err)
}

func TestNewBaseRejectsZeroThreads(t *testing.T) {
	io := newMemDiskIO(4, 16, 4)
	_, err := NewBase(io, Params{Length: 4, Dimension: 3, StripeUnitsPerSymbol: 1, StripeUnitSize: 16, InterleavingOrder: 1}, 0)
	require.Error(t, err)
}

func TestCyclicDiskMapping(t *testing.T) {
	const k, unitSize = 3, 16
	io := newMemDiskIO(k+1, unitSize, 8)
	r, err := NewRAID5(io, k, unitSize, 1, 1)
	require.NoError(t, err)

	data := fillPattern(unitSize, 55)
	// erasureSetID 2 (shift 2 within a 4-disk subarray): symbol 0 lands
	// on physical disk (0+2)%4 == 2.
	require.NoError(t, r.WriteStripeUnit(0, 2, 0, 0, 1, data))
	require.Equal(t, data, io.disks[2].units[0])
}

func TestGetErasedPositionAppliesCyclicShift(t *testing.T) {
	const k, unitSize = 3, 16
	io := newMemDiskIO(k+1, unitSize, 8)
	r, err := NewRAID5(io, k, unitSize, 1, 1)
	require.NoError(t, err)

	io.setOffline(2) // physical disk 2 offline
	r.ResetErasures()

	// erasureSetID 2 means shift 2: erased symbol = (2-2) mod 4 == 0.
	require.Equal(t, 1, r.GetNumOfErasures(2))
	require.Equal(t, 0, r.GetErasedPosition(2, 0))
	require.True(t, r.IsErased(2, 0))
	require.False(t, r.IsErased(2, 1))
}

func TestStatsAccumulateAcrossReadsAndWrites(t *testing.T) {
	const k, unitSize = 3, 16
	io := newMemDiskIO(k+1, unitSize, 8)
	r, err := NewRAID5(io, k, unitSize, 1, 1)
	require.NoError(t, err)

	data := fillPattern(k*unitSize, 9)
	require.NoError(t, r.EncodeStripe(0, 0, data, 0))
	before := r.Stats()

	got := make([]byte, k*unitSize)
	require.NoError(t, r.DecodeDataSymbols(0, 0, 0, k, got, 0))

	after := r.Stats()
	require.Greater(t, after.UnitsRead, before.UnitsRead)
}

func TestReadDataFromMidStripeOffset(t *testing.T) {
	const k, unitSize = 5, 16
	io := newMemDiskIO(k+1, unitSize, 16)
	r, err := NewRAID5(io, k, unitSize, 1, 1)
	require.NoError(t, err)

	full := fillPattern(k*unitSize, 17)
	require.NoError(t, r.EncodeStripe(0, 0, full, 0))

	// read 3 units starting at unit 1: since StripeUnitsPerSymbol == 1
	// every unit is a whole symbol, so only the whole-symbol run is taken,
	// but this still exercises ReadData's offset arithmetic.
	got := make([]byte, 3*unitSize)
	require.NoError(t, r.ReadData(0, 1, 0, 3, got, 0))
	require.Equal(t, full[unitSize:4*unitSize], got)
}
