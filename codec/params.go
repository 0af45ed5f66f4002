// Package codec implements the pluggable erasure-coding engine: a
// generic stripe/subarray decomposition layer (Base) plus two concrete
// codecs, RAID-5 XOR parity and a Reed-Solomon code over GF(2^8) with
// Forney-algorithm erasure decoding.
//
// A codec never talks to storage directly. It is handed a DiskIO at
// construction time (in cmd/raidctl, an adapter over the member disks
// the volume facade also holds) and addresses
// disks purely by logical symbol position; the cyclic load-balancing
// offset implied by an erasure-set ID is applied once, in Base.
package codec

import "github.com/pkg/errors"

// DiskIO is the storage collaborator a codec is attached to: n logical
// disks, block-addressed in stripe units of a fixed size.
type DiskIO interface {
	NumDisks() int
	IsOnline(diskID int) bool
	ReadBlocks(diskID int, stripeUnitID uint64, n int, dst []byte) error
	WriteBlocks(diskID int, stripeUnitID uint64, n int, src []byte) error
}

// Params is the coding-relevant geometry of an array code, shared by
// every codec.
type Params struct {
	// Length is the code length n: the number of disks in one subarray.
	Length int
	// Dimension is the number of payload (information) symbols per
	// codeword, k.
	Dimension int
	// StripeUnitsPerSymbol is the number of stripe units making up one
	// codeword symbol, u. Every codec in this package uses u == 1.
	StripeUnitsPerSymbol int
	// StripeUnitSize is the size in bytes of one stripe unit, w.
	StripeUnitSize int
	// InterleavingOrder is the number of independent subarrays operating
	// jointly under one set of disks, s.
	InterleavingOrder int
}

func (p Params) validate() error {
	if p.Dimension <= 0 || p.StripeUnitSize <= 0 || p.StripeUnitsPerSymbol <= 0 || p.InterleavingOrder <= 0 {
		return errors.Errorf("codec: invalid params %+v", p)
	}
	return nil
}

// Codec is the per-algorithm trait set Base dispatches into. Concrete
// codecs (RAID5, ReedSolomon) embed *Base and implement this interface;
// Base's ReadData/WriteData call back into it through the interface
// rather than a virtual table, per Go's usual preference for explicit
// interfaces over inheritance-style dispatch.
type Codec interface {
	// IsCorrectable reports whether the erasure pattern identified by
	// erasureSetID can be corrected, and must prepare any internal state
	// (erasure-locator polynomials, etc.) needed to actually do so.
	IsCorrectable(erasureSetID int) bool

	// DecodeDataSymbols reads or reconstructs Symbols2Decode consecutive
	// payload symbols starting at SymbolID of the given stripe into dest.
	DecodeDataSymbols(stripeID uint64, erasureSetID, symbolID, symbols2Decode int, dest []byte, threadID int) error

	// EncodeStripe computes and writes every symbol (payload and check)
	// of one full codeword from Dimension*StripeUnitsPerSymbol*StripeUnitSize
	// bytes of payload data.
	EncodeStripe(stripeID uint64, erasureSetID int, data []byte, threadID int) error

	// UpdateInformationSymbols writes Units2Update new payload stripe
	// units starting at StripeUnitID and updates the check symbols to
	// match, without touching the rest of the stripe.
	UpdateInformationSymbols(stripeID uint64, erasureSetID, stripeUnitID, units2Update int, data []byte, threadID int) error

	// CheckCodeword verifies that the codeword currently on disk is
	// internally consistent. Always reports true when the erasure set is
	// non-empty, since there is then nothing further to check against.
	CheckCodeword(stripeID uint64, erasureSetID int, threadID int) (bool, error)

	// GetEncodingStrategy decides, for a write touching
	// Subsymbols2Encode stripe units starting at StripeUnitID, whether
	// the caller should do a full read-modify-write re-encode (true) or
	// a targeted check-symbol delta update (false).
	GetEncodingStrategy(erasureSetID, stripeUnitID, subsymbols2Encode int) bool
}

// Engine is the full surface a concrete codec exposes to package volume:
// the Codec trait set plus the generic, storage-decomposition operations
// Base implements once and every codec re-exposes bound to itself (Go
// has no way for an embedded type to recover its embedder, so each
// concrete codec forwards these one-liners to its *Base).
type Engine interface {
	Codec
	Params() Params
	ReadData(stripeID uint64, stripeUnitID, subarrayID, numOfUnits int, dest []byte, threadID int) error
	WriteData(stripeID uint64, stripeUnitID, subarrayID, numOfUnits int, src []byte, threadID int) error
	IsMountable() bool
	ResetErasures()
	VerifyStripe(stripeID uint64, subarrayID, threadID int) (bool, error)
	Stats() Stats
}
