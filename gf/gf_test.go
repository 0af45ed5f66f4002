package gf

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewRejectsUnknownExtension(t *testing.T) {
	_, err := New(9)
	require.Error(t, err)
}

func TestExpLogRoundTrip(t *testing.T) {
	tab, err := New(8)
	require.NoError(t, err)

	for v := 1; v < tab.Order(); v++ {
		e := tab.Exp(v)
		require.Equal(t, v, tab.Log(e), "log(exp(%d))", v)
	}
}

func TestExpWrapsModuloOrder(t *testing.T) {
	tab, err := New(8)
	require.NoError(t, err)
	require.Equal(t, tab.Exp(0), tab.Exp(tab.Order()))
	require.Equal(t, tab.Exp(5), tab.Exp(5+tab.Order()))
}

func TestMulMatchesScalarIdentity(t *testing.T) {
	tab, err := New(8)
	require.NoError(t, err)

	for x := 0; x < tab.Order(); x++ {
		for v := 0; v < 256; v++ {
			got := tab.Mul(x, byte(v))
			if v == 0 {
				require.Zero(t, got)
				continue
			}
			want := tab.Exp(x + tab.Log(byte(v)))
			require.Equalf(t, want, got, "Mul(%d, %d)", x, v)
		}
	}
}

func TestMulIntoMatchesMul(t *testing.T) {
	tab, err := New(8)
	require.NoError(t, err)

	src := make([]byte, Align)
	for i := range src {
		src[i] = byte(i * 7)
	}
	dst := make([]byte, Align)
	tab.MulInto(13, dst, src)
	for i, v := range src {
		require.Equal(t, tab.Mul(13, v), dst[i])
	}
}

func TestMulAddXORsScaledSource(t *testing.T) {
	tab, err := New(8)
	require.NoError(t, err)

	dst := make([]byte, Align)
	src := make([]byte, Align)
	for i := range src {
		dst[i] = byte(i)
		src[i] = byte(255 - i)
	}
	want := make([]byte, Align)
	copy(want, dst)
	for i, v := range src {
		want[i] ^= tab.Mul(9, v)
	}
	tab.MulAdd(9, dst, src)
	require.Equal(t, want, dst)
}

func TestMulAddZeroExponentIsPlainXOR(t *testing.T) {
	tab, err := New(8)
	require.NoError(t, err)

	a := make([]byte, Align)
	b := make([]byte, Align)
	for i := range a {
		a[i] = byte(i)
		b[i] = byte(2 * i)
	}
	want := make([]byte, Align)
	copy(want, a)
	tab.XOR(want, b)

	got := make([]byte, Align)
	copy(got, a)
	tab.MulAdd(0, got, b)
	require.Equal(t, want, got)
}

func TestNegativeExponentIsErasureNoOp(t *testing.T) {
	tab, err := New(8)
	require.NoError(t, err)

	dst := make([]byte, Align)
	for i := range dst {
		dst[i] = byte(i + 1)
	}
	before := append([]byte(nil), dst...)
	src := make([]byte, Align)
	tab.MulAdd(-1, dst, src)
	require.Equal(t, before, dst)

	tab.MulInto(-1, dst, src) // no-op, dst left untouched per contract
	require.Equal(t, before, dst)
}

func TestXORIsSelfInverse(t *testing.T) {
	tab, err := New(8)
	require.NoError(t, err)

	a := make([]byte, Align)
	b := make([]byte, Align)
	for i := range a {
		a[i] = byte(100 + i)
		b[i] = byte(200 + i)
	}
	orig := append([]byte(nil), a...)
	tab.XOR(a, b)
	tab.XOR(a, b)
	require.Equal(t, orig, a)
}

func TestCheckSizeRejectsMisalignedBuffer(t *testing.T) {
	tab, err := New(8)
	require.NoError(t, err)

	require.Panics(t, func() {
		tab.XOR(make([]byte, Align-1), make([]byte, Align-1))
	})
}

func TestVectorStrideIsPositive(t *testing.T) {
	require.Greater(t, VectorStride(), 0)
}
