// Package gf implements GF(2^m) field arithmetic for the codecs in
// package codec: exponent/log tables, and a table-based vectorised
// multiply kernel operating on half-byte (nibble) lookups.
//
// A *Tables value is immutable once built by New, so the common pattern
// is to build one at volume-attach time and hand it by reference to every
// codec that needs it, rather than reaching for a package-level global.
package gf

import (
	"github.com/klauspost/cpuid/v2"
	"github.com/pkg/errors"
)

// primitivePoly holds the primitive polynomial to use for each field
// extension degree m, mirroring the GFGenerators table of the original
// RAID processor: only extensions up to GF(2^8) are meaningful for a
// byte-oriented stripe unit.
var primitivePoly = map[int]uint32{
	2: 0x7,
	3: 0xB,
	4: 0x13,
	5: 0x25,
	6: 0x43,
	7: 0x83,
	8: 0x11D,
}

// stride is the number of bytes the vectorised kernels process per inner
// loop iteration. It is chosen once from the detected CPU features and
// never changes afterwards; on CPUs without a wide SIMD register file it
// falls back to the 16-byte baseline every code in this package assumes
// buffers are aligned to (see Align).
var stride = detectStride()

func detectStride() int {
	if cpuid.CPU.Supports(cpuid.AVX2) {
		return 32
	}
	return 16
}

// Align is the byte alignment every buffer size passed to the kernels
// below must be a multiple of.
const Align = 16

// Tables is an immutable GF(2^m) arithmetic kernel: exponent table, log
// table, and per-exponent half-byte multiplication tables.
type Tables struct {
	m          int
	fieldSize1 int // 2^m - 1

	exp []byte  // exp[1+i] = alpha^i, extended to 2*fieldSize1 entries
	log []int16 // log[v] such that exp[1+log[v]] == v; log[0] == -1

	// mulLow[x][y] = alpha^x * y for y in [0,16); mulHigh[x][y] = alpha^x * (y<<4).
	mulLow  [][16]byte
	mulHigh [][16]byte
}

// New builds a fresh, immutable GF(2^m) kernel. m must be in [2,8] since
// that is the range of extensions this package carries a primitive
// polynomial for, and 8 is the only extension the codecs in this module
// use (one byte per field element).
func New(m int) (*Tables, error) {
	poly, ok := primitivePoly[m]
	if !ok {
		return nil, errors.Errorf("gf: no primitive polynomial known for GF(2^%d)", m)
	}
	if m < 2 {
		return nil, errors.New("gf: multiplication tables are not meaningful for GF(2)")
	}

	fieldSize1 := (1 << uint(m)) - 1
	t := &Tables{
		m:          m,
		fieldSize1: fieldSize1,
		exp:        make([]byte, 1+2*fieldSize1),
		log:        make([]int16, fieldSize1+1),
	}
	t.log[0] = -1
	t.exp[1] = 1
	for i := 1; i < fieldSize1; i++ {
		v := uint32(t.exp[i]) << 1
		if v&(1<<uint(m)) != 0 {
			v ^= poly
		}
		t.exp[1+i] = byte(v)
		t.log[t.exp[1+i]] = int16(i)
	}
	// extend the table so that any i*l accumulation up to 2*(fieldSize1-1)
	// can be looked up without an explicit modular reduction.
	copy(t.exp[1+fieldSize1:], t.exp[1:1+fieldSize1])

	if m <= 8 {
		t.mulLow = make([][16]byte, fieldSize1)
		t.mulHigh = make([][16]byte, fieldSize1)
		for x := 0; x < fieldSize1; x++ {
			for y := 1; y < min(16, fieldSize1+1); y++ {
				t.mulLow[x][y] = t.mulScalar(x, byte(y))
			}
			for y := 1; y < min(16, (fieldSize1+1)>>4); y++ {
				t.mulHigh[x][y] = t.mulScalar(x, byte(y<<4))
			}
		}
	}
	return t, nil
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// mulScalar computes alpha^x * v the slow way (log/exp lookup), used only
// to seed the half-byte tables at construction time.
func (t *Tables) mulScalar(x int, v byte) byte {
	if v == 0 {
		return 0
	}
	l := int(t.log[v]) + x
	if l >= t.fieldSize1 {
		l -= t.fieldSize1
	}
	return t.exp[1+l]
}

// Mul computes alpha^x * v for a single scalar, used by the RS codec's
// Forney evaluation where only one field element at a time is involved.
func (t *Tables) Mul(x int, v byte) byte {
	if x < 0 {
		return 0
	}
	return t.mulScalar(x, v)
}

// Log returns the discrete log of v, or -1 if v == 0.
func (t *Tables) Log(v byte) int { return int(t.log[v]) }

// Exp returns alpha^e, taking e modulo the field's multiplicative order.
func (t *Tables) Exp(e int) byte {
	e %= t.fieldSize1
	if e < 0 {
		e += t.fieldSize1
	}
	return t.exp[1+e]
}

// Order returns 2^m - 1, the size of the multiplicative group.
func (t *Tables) Order() int { return t.fieldSize1 }

func checkSize(size int) {
	if size%Align != 0 {
		panic(errors.Errorf("gf: buffer size %d is not a multiple of %d", size, Align))
	}
}

// XOR computes a[i] ^= b[i] for every byte.
func (t *Tables) XOR(a, b []byte) {
	checkSize(len(a))
	for i := range a {
		a[i] ^= b[i]
	}
}

// XORInto computes dst[i] = a[i] ^ b[i].
func (t *Tables) XORInto(dst, a, b []byte) {
	checkSize(len(dst))
	for i := range dst {
		dst[i] = a[i] ^ b[i]
	}
}

// XOR3Into computes dst[i] = a[i] ^ b[i] ^ c[i].
func (t *Tables) XOR3Into(dst, a, b, c []byte) {
	checkSize(len(dst))
	for i := range dst {
		dst[i] = a[i] ^ b[i] ^ c[i]
	}
}

// XORXOR computes c[i] ^= a[i] ^ b[i].
func (t *Tables) XORXOR(c, a, b []byte) {
	checkSize(len(c))
	for i := range c {
		c[i] ^= a[i] ^ b[i]
	}
}

// MulInto scales src by alpha^x into dst. A negative x is a no-op,
// matching the "no erasure registered at this locator" convention used
// throughout the RS codec.
func (t *Tables) MulInto(x int, dst, src []byte) {
	checkSize(len(src))
	if x < 0 {
		return
	}
	h := &byteTable{low: &t.mulLow[x], high: &t.mulHigh[x]}
	for i, y := range src {
		dst[i] = h.eval(y)
	}
}

// MulAdd computes dst[i] ^= alpha^x * src[i]. x == 0 degrades to a plain
// XOR (alpha^0 == 1) and a negative x is a no-op.
func (t *Tables) MulAdd(x int, dst, src []byte) {
	checkSize(len(src))
	if x < 0 {
		return
	}
	if x == 0 {
		t.XOR(dst, src)
		return
	}
	h := &byteTable{low: &t.mulLow[x], high: &t.mulHigh[x]}
	for i, y := range src {
		dst[i] ^= h.eval(y)
	}
}

// AddMul computes src[i] = alpha^x * src[i] ^ correction[i], in place on
// src. A negative x leaves src untouched.
func (t *Tables) AddMul(x int, src, correction []byte) {
	checkSize(len(src))
	if x < 0 {
		return
	}
	h := &byteTable{low: &t.mulLow[x], high: &t.mulHigh[x]}
	for i, y := range src {
		src[i] = h.eval(y) ^ correction[i]
	}
}

// MulSum computes dst[i] = alpha^x * (s1[i] ^ s2[i]). A negative x zeroes
// dst instead of leaving it untouched, matching the erased-locator
// convention used by the syndrome accumulator.
func (t *Tables) MulSum(x int, dst, s1, s2 []byte) {
	checkSize(len(dst))
	if x < 0 {
		for i := range dst {
			dst[i] = 0
		}
		return
	}
	h := &byteTable{low: &t.mulLow[x], high: &t.mulHigh[x]}
	for i := range dst {
		dst[i] = h.eval(s1[i] ^ s2[i])
	}
}

// byteTable packages the two half-byte lookup tables for one alpha^x so
// the per-byte evaluation below reads like the shuffle-based identity it
// models: alpha^x*y = alpha^x*lo(y) XOR alpha^x*(hi(y)<<4).
type byteTable struct {
	low, high *[16]byte
}

func (h *byteTable) eval(y byte) byte {
	return h.low[y&0x0F] ^ h.high[y>>4]
}

// VectorStride reports the chunk size (in bytes) the runtime CPU-feature
// probe selected for this process; it is informational only (the scalar
// table kernels above are correct regardless of stride, since Go gives no
// portable access to real SIMD registers without assembly) but callers
// that size their own scratch buffers can use it to keep memory traffic
// aligned with the widest register the host actually has.
func VectorStride() int { return stride }
