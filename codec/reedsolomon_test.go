package codec

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestReedSolomonEncodeThenCheckCodeword(t *testing.T) {
	const k, red, unitSize = 4, 2, 16
	io := newMemDiskIO(k+red, unitSize, 8)
	rs, err := NewReedSolomon(io, k, red, unitSize, 1, 2)
	require.NoError(t, err)

	data := fillPattern(k*unitSize, 11)
	require.NoError(t, rs.EncodeStripe(0, 0, data, 0))

	ok, err := rs.CheckCodeword(0, 0, 0)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestReedSolomonReconstructsUpToRedundancyErasures(t *testing.T) {
	const k, red, unitSize = 4, 2, 16
	io := newMemDiskIO(k+red, unitSize, 8)
	rs, err := NewReedSolomon(io, k, red, unitSize, 1, 2)
	require.NoError(t, err)

	data := fillPattern(k*unitSize, 99)
	require.NoError(t, rs.EncodeStripe(0, 0, data, 0))

	io.setOffline(0)
	io.setOffline(k + 1) // one payload disk, one check disk
	rs.ResetErasures()
	require.True(t, rs.IsCorrectable(0))

	got := make([]byte, k*unitSize)
	require.NoError(t, rs.DecodeDataSymbols(0, 0, 0, k, got, 0))
	require.Equal(t, data, got)
}

func TestReedSolomonExceedingRedundancyNotCorrectable(t *testing.T) {
	const k, red, unitSize = 4, 2, 16
	io := newMemDiskIO(k+red, unitSize, 8)
	rs, err := NewReedSolomon(io, k, red, unitSize, 1, 1)
	require.NoError(t, err)

	io.setOffline(0)
	io.setOffline(1)
	io.setOffline(2)
	rs.ResetErasures()
	require.False(t, rs.IsCorrectable(0))
	require.False(t, rs.IsMountable())
}

func TestReedSolomonWriteDataThenReadDataRoundTrip(t *testing.T) {
	const k, red, unitSize = 5, 2, 16
	io := newMemDiskIO(k+red, unitSize, 8)
	rs, err := NewReedSolomon(io, k, red, unitSize, 1, 2)
	require.NoError(t, err)

	payload := fillPattern(3*unitSize, 5)
	require.NoError(t, rs.WriteData(0, 1, 0, 3, payload, 0))

	got := make([]byte, 3*unitSize)
	require.NoError(t, rs.ReadData(0, 1, 0, 3, got, 0))
	require.Equal(t, payload, got)
}

func TestReedSolomonUpdateInformationSymbolsThenDecode(t *testing.T) {
	const k, red, unitSize = 4, 2, 16
	io := newMemDiskIO(k+red, unitSize, 8)
	rs, err := NewReedSolomon(io, k, red, unitSize, 1, 2)
	require.NoError(t, err)

	full := fillPattern(k*unitSize, 3)
	require.NoError(t, rs.EncodeStripe(0, 0, full, 0))

	update := fillPattern(unitSize, 222)
	require.NoError(t, rs.UpdateInformationSymbols(0, 0, 2, 1, update, 0))

	io.setOffline(1)
	rs.ResetErasures()
	require.True(t, rs.IsCorrectable(0))

	want := append([]byte(nil), full...)
	copy(want[2*unitSize:3*unitSize], update)

	got := make([]byte, k*unitSize)
	require.NoError(t, rs.DecodeDataSymbols(0, 0, 0, k, got, 0))
	require.Equal(t, want, got)
}

func TestReedSolomonForcesFullEncodeWhenUpdateHitsErasure(t *testing.T) {
	const k, red, unitSize = 4, 2, 16
	io := newMemDiskIO(k+red, unitSize, 8)
	rs, err := NewReedSolomon(io, k, red, unitSize, 1, 1)
	require.NoError(t, err)

	io.setOffline(1)
	rs.ResetErasures()
	require.True(t, rs.IsCorrectable(0))

	require.True(t, rs.GetEncodingStrategy(0, 0, 2)) // update range [0,2) covers erased pos 1
	require.False(t, rs.GetEncodingStrategy(0, 2, 1))
}

func TestReedSolomonRejectsCodeLengthBeyondFieldOrder(t *testing.T) {
	io := newMemDiskIO(10, 16, 8)
	_, err := NewReedSolomon(io, 200, 100, 16, 1, 1)
	require.Error(t, err)
}

func TestReedSolomonRejectsZeroRedundancy(t *testing.T) {
	io := newMemDiskIO(4, 16, 8)
	_, err := NewReedSolomon(io, 4, 0, 16, 1, 1)
	require.Error(t, err)
}
