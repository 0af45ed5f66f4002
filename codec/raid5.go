package codec

import (
	"github.com/pkg/errors"

	"github.com/bpfs/raidsim/gf"
)

// RAID5 is single-parity XOR coding: Length == Dimension+1, the last
// symbol of every stripe is the XOR of all payload symbols.
type RAID5 struct {
	*Base
	gfTables *gf.Tables

	xorScratch [][]byte // per thread, 2*StripeUnitSize bytes
}

// NewRAID5 builds a RAID-5 codec over io with the given payload
// dimension k; the code length is always k+1 (one parity disk).
func NewRAID5(io DiskIO, dimension, stripeUnitSize, interleavingOrder, concurrentThreads int) (*RAID5, error) {
	if stripeUnitSize%gf.Align != 0 {
		return nil, errors.Errorf("codec: RAID5 stripe unit size %d must be a multiple of %d", stripeUnitSize, gf.Align)
	}
	params := Params{
		Length:               dimension + 1,
		Dimension:            dimension,
		StripeUnitsPerSymbol: 1,
		StripeUnitSize:       stripeUnitSize,
		InterleavingOrder:    interleavingOrder,
	}
	base, err := NewBase(io, params, concurrentThreads)
	if err != nil {
		return nil, err
	}
	tables, err := gf.New(8)
	if err != nil {
		return nil, err
	}
	r := &RAID5{Base: base, gfTables: tables, xorScratch: make([][]byte, concurrentThreads)}
	for i := range r.xorScratch {
		r.xorScratch[i] = make([]byte, 2*stripeUnitSize)
	}
	return r, nil
}

// IsCorrectable reports whether the given erasure set has at most one
// offline disk: a single-parity code can never correct more than one
// erasure per stripe.
func (r *RAID5) IsCorrectable(erasureSetID int) bool {
	return r.GetNumOfErasures(erasureSetID) <= 1
}

// DecodeDataSymbols reads symbols as-is, unless the erased symbol (if
// any) falls within the requested range, in which case it is
// reconstructed as the XOR of every other symbol in the stripe.
func (r *RAID5) DecodeDataSymbols(stripeID uint64, erasureSetID, symbolID, symbols2Decode int, dest []byte, threadID int) error {
	w := r.Params().StripeUnitSize
	erased := r.GetErasedPosition(erasureSetID, 0)
	if erased < 0 || erased < symbolID || erased >= symbolID+symbols2Decode {
		for s := 0; s < symbols2Decode; s++ {
			if err := r.ReadStripeUnit(stripeID, erasureSetID, symbolID+s, 0, 1, dest[s*w:(s+1)*w]); err != nil {
				return err
			}
		}
		return nil
	}

	length := r.Params().Length
	xorBuf := r.xorScratch[threadID][:w]
	readBuf := r.xorScratch[threadID][w : 2*w]

	target := dest[(erased-symbolID)*w : (erased-symbolID+1)*w]
	for j := range xorBuf {
		xorBuf[j] = 0
	}
	for i := 0; i < length; i++ {
		if i == erased {
			continue
		}
		if i >= symbolID && i < symbolID+symbols2Decode {
			cur := dest[(i-symbolID)*w : (i-symbolID+1)*w]
			if err := r.ReadStripeUnit(stripeID, erasureSetID, i, 0, 1, cur); err != nil {
				return err
			}
			r.gfTables.XOR(xorBuf, cur)
		} else {
			if err := r.ReadStripeUnit(stripeID, erasureSetID, i, 0, 1, readBuf); err != nil {
				return err
			}
			r.gfTables.XOR(xorBuf, readBuf)
		}
	}
	copy(target, xorBuf)
	return nil
}

// EncodeStripe writes every payload symbol as-is (skipping any that are
// currently erased) while accumulating their XOR, then writes that as
// the parity symbol.
func (r *RAID5) EncodeStripe(stripeID uint64, erasureSetID int, data []byte, threadID int) error {
	w := r.Params().StripeUnitSize
	k := r.Params().Dimension
	xorBuf := r.xorScratch[threadID][:w]

	if !r.IsErased(erasureSetID, 0) {
		if err := r.WriteStripeUnit(stripeID, erasureSetID, 0, 0, 1, data[:w]); err != nil {
			return err
		}
	}
	copy(xorBuf, data[:w])

	for i := 1; i < k; i++ {
		chunk := data[i*w : (i+1)*w]
		if !r.IsErased(erasureSetID, i) {
			if err := r.WriteStripeUnit(stripeID, erasureSetID, i, 0, 1, chunk); err != nil {
				return err
			}
		}
		r.gfTables.XOR(xorBuf, chunk)
	}

	if !r.IsErased(erasureSetID, k) {
		return r.WriteStripeUnit(stripeID, erasureSetID, k, 0, 1, xorBuf)
	}
	return nil
}

// UpdateInformationSymbols recomputes the parity delta from the
// modified payload units rather than re-encoding the whole stripe.
func (r *RAID5) UpdateInformationSymbols(stripeID uint64, erasureSetID, stripeUnitID, units2Update int, data []byte, threadID int) error {
	w := r.Params().StripeUnitSize
	k := r.Params().Dimension

	if r.IsErased(erasureSetID, k) {
		for i := 0; i < units2Update; i++ {
			if err := r.WriteStripeUnit(stripeID, erasureSetID, stripeUnitID+i, 0, 1, data[i*w:(i+1)*w]); err != nil {
				return err
			}
		}
		return nil
	}

	xorBuf := r.xorScratch[threadID][:w]
	readBuf := r.xorScratch[threadID][w : 2*w]
	erased := r.GetErasedPosition(erasureSetID, 0)

	if erased >= stripeUnitID && erased < stripeUnitID+units2Update {
		for i := range xorBuf {
			xorBuf[i] = 0
		}
		for i := 0; i < stripeUnitID; i++ {
			if err := r.ReadStripeUnit(stripeID, erasureSetID, i, 0, 1, readBuf); err != nil {
				return err
			}
			r.gfTables.XOR(xorBuf, readBuf)
		}
		for i := stripeUnitID + units2Update; i < k; i++ {
			if err := r.ReadStripeUnit(stripeID, erasureSetID, i, 0, 1, readBuf); err != nil {
				return err
			}
			r.gfTables.XOR(xorBuf, readBuf)
		}
		for i := 0; i < units2Update; i++ {
			r.gfTables.XOR(xorBuf, data[i*w:(i+1)*w])
			if erased == stripeUnitID+i {
				continue
			}
			if err := r.WriteStripeUnit(stripeID, erasureSetID, stripeUnitID+i, 0, 1, data[i*w:(i+1)*w]); err != nil {
				return err
			}
		}
	} else {
		if err := r.ReadStripeUnit(stripeID, erasureSetID, k, 0, 1, xorBuf); err != nil {
			return err
		}
		for i := 0; i < units2Update; i++ {
			r.gfTables.XOR(xorBuf, data[i*w:(i+1)*w])
			if err := r.ReadStripeUnit(stripeID, erasureSetID, stripeUnitID+i, 0, 1, readBuf); err != nil {
				return err
			}
			r.gfTables.XOR(xorBuf, readBuf)
			if err := r.WriteStripeUnit(stripeID, erasureSetID, stripeUnitID+i, 0, 1, data[i*w:(i+1)*w]); err != nil {
				return err
			}
		}
	}
	return r.WriteStripeUnit(stripeID, erasureSetID, k, 0, 1, xorBuf)
}

// CheckCodeword reports whether the sum of every symbol in the stripe
// is zero. Any active erasure makes the codeword unverifiable, so the
// check trivially reports true in that case.
func (r *RAID5) CheckCodeword(stripeID uint64, erasureSetID int, threadID int) (bool, error) {
	if r.GetNumOfErasures(erasureSetID) != 0 {
		return true, nil
	}
	w := r.Params().StripeUnitSize
	length := r.Params().Length
	xorBuf := r.xorScratch[threadID][:w]
	readBuf := r.xorScratch[threadID][w : 2*w]

	if err := r.ReadStripeUnit(stripeID, erasureSetID, 0, 0, 1, xorBuf); err != nil {
		return false, err
	}
	for i := 1; i < length; i++ {
		if err := r.ReadStripeUnit(stripeID, erasureSetID, i, 0, 1, readBuf); err != nil {
			return false, err
		}
		r.gfTables.XOR(xorBuf, readBuf)
	}
	var acc byte
	for _, v := range xorBuf {
		acc |= v
	}
	return acc == 0, nil
}

// GetEncodingStrategy applies the base 2/3-of-stripe heuristic; RAID-5
// has no codec-specific override.
func (r *RAID5) GetEncodingStrategy(erasureSetID, stripeUnitID, subsymbols2Encode int) bool {
	p := r.Params()
	return subsymbols2Encode > 2*p.Dimension*p.StripeUnitsPerSymbol/3
}

// ReadData, WriteData, IsMountable and VerifyStripe forward to the
// embedded Base, supplying r itself as the Codec callback target.
func (r *RAID5) ReadData(stripeID uint64, stripeUnitID, subarrayID, numOfUnits int, dest []byte, threadID int) error {
	return r.Base.ReadData(r, stripeID, stripeUnitID, subarrayID, numOfUnits, dest, threadID)
}

func (r *RAID5) WriteData(stripeID uint64, stripeUnitID, subarrayID, numOfUnits int, src []byte, threadID int) error {
	return r.Base.WriteData(r, stripeID, stripeUnitID, subarrayID, numOfUnits, src, threadID)
}

func (r *RAID5) IsMountable() bool { return r.Base.IsMountable(r) }

func (r *RAID5) VerifyStripe(stripeID uint64, subarrayID, threadID int) (bool, error) {
	return r.Base.VerifyStripe(r, stripeID, subarrayID, threadID)
}
