package codec

import (
	"sync"

	"github.com/pkg/errors"

	"github.com/bpfs/raidsim/gf"
)

// symbolRef pairs a GF(2^8) locator (an exponent of the field's
// generator, not a byte value) with the stripe-unit data living at that
// locator. A nil data slice means the symbol is currently erased and
// contributes zero to every syndrome term, matching the ppData==0
// convention of the original decoder.
type symbolRef struct {
	locator int
	data    []byte
}

// forneyMultiple computes X^(1-b)/Lambda'(1/X) in the log domain, the
// per-locator scaling factor the Forney algorithm needs to turn an
// erasure-evaluator value into a corrected symbol. lambdaDegree is the
// number of registered erasures (the degree of the locator polynomial
// lambda); b is the first root of the code's defining set, carried
// explicitly for codes with generator roots other than alpha^0.
func forneyMultiple(t *gf.Tables, lambdaDegree int, lambda []byte, b, x int) int {
	order := t.Order()
	y := (x * (1 - b)) % order
	if y < 0 {
		y += order
	}

	xx := x
	if xx != 0 {
		xx = order - xx
	}
	xx *= 2
	if xx >= order {
		xx -= order
	}

	var res byte
	for j := (lambdaDegree - 1) &^ 1; j >= 0; j -= 2 {
		if res != 0 {
			res = t.Exp(t.Log(res) + xx)
		}
		res ^= lambda[j+1]
	}

	r := y - t.Log(res)
	if r < 0 {
		r += order
	}
	return r
}

// ReedSolomon is a systematic Reed-Solomon code over GF(2^8): Dimension
// payload symbols plus Redundancy check symbols, decoded via syndrome
// computation and Forney's algorithm.
type ReedSolomon struct {
	*Base
	gf         *gf.Tables
	redundancy int
	order      int

	infLocators   []int // len Dimension
	checkLocators []int // len Redundancy

	checkLocatorPoly   []byte // degree-Redundancy locator polynomial for the check set
	checkLocatorsPrime []int  // len Redundancy

	mu           sync.RWMutex
	erasureDeg   []int     // per erasure set
	erasureLam   [][]byte  // per erasure set, len Redundancy+1
	erasureLamP  [][]int   // per erasure set, len Redundancy

	fetchScratch [][][]byte // [thread][symbol position][StripeUnitSize]byte
	synScratch   [][]byte   // [thread][Redundancy*StripeUnitSize]byte
	gammaScratch [][]byte   // [thread][Redundancy*StripeUnitSize]byte
	tmpScratch   [][]byte   // [thread][StripeUnitSize]byte
}

// NewReedSolomon builds a systematic (dimension+redundancy, dimension)
// Reed-Solomon codec over io. The code length (dimension+redundancy)
// must not exceed 255, the order of GF(2^8)'s multiplicative group.
func NewReedSolomon(io DiskIO, dimension, redundancy, stripeUnitSize, interleavingOrder, concurrentThreads int) (*ReedSolomon, error) {
	if stripeUnitSize%gf.Align != 0 {
		return nil, errors.Errorf("codec: RS stripe unit size %d must be a multiple of %d", stripeUnitSize, gf.Align)
	}
	if redundancy <= 0 {
		return nil, errors.Errorf("codec: invalid redundancy %d for Reed-Solomon code", redundancy)
	}
	length := dimension + redundancy
	gfTables, err := gf.New(8)
	if err != nil {
		return nil, err
	}
	order := gfTables.Order()
	if length > order {
		return nil, errors.Errorf("codec: Reed-Solomon code length %d exceeds field order %d", length, order)
	}

	params := Params{
		Length:               length,
		Dimension:            dimension,
		StripeUnitsPerSymbol: 1,
		StripeUnitSize:       stripeUnitSize,
		InterleavingOrder:    interleavingOrder,
	}
	base, err := NewBase(io, params, concurrentThreads)
	if err != nil {
		return nil, err
	}

	checkLocators := make([]int, redundancy)
	for i := range checkLocators {
		checkLocators[i] = order - redundancy + i
	}
	infLocators := make([]int, 0, dimension)
	for i := 0; i < order && len(infLocators) < dimension; i++ {
		used := false
		for _, c := range checkLocators {
			if c == i {
				used = true
				break
			}
		}
		if !used {
			infLocators = append(infLocators, i)
		}
	}

	checkLocatorPoly := make([]byte, redundancy+1)
	checkLocatorPoly[0] = 1
	for i := 0; i < redundancy; i++ {
		for j := i + 1; j > 0; j-- {
			if checkLocatorPoly[j-1] != 0 {
				l := gfTables.Log(checkLocatorPoly[j-1]) + checkLocators[i]
				if l >= order {
					l -= order
				}
				checkLocatorPoly[j] ^= gfTables.Exp(l)
			}
		}
	}
	checkLocatorsPrime := make([]int, redundancy)
	for i := range checkLocatorsPrime {
		checkLocatorsPrime[i] = forneyMultiple(gfTables, redundancy, checkLocatorPoly, 0, checkLocators[i])
	}

	numSets := length * interleavingOrder
	r := &ReedSolomon{
		Base:               base,
		gf:                 gfTables,
		redundancy:         redundancy,
		order:              order,
		infLocators:        infLocators,
		checkLocators:      checkLocators,
		checkLocatorPoly:   checkLocatorPoly,
		checkLocatorsPrime: checkLocatorsPrime,
		erasureDeg:         make([]int, numSets),
		erasureLam:         make([][]byte, numSets),
		erasureLamP:        make([][]int, numSets),
		fetchScratch:       make([][][]byte, concurrentThreads),
		synScratch:         make([][]byte, concurrentThreads),
		gammaScratch:       make([][]byte, concurrentThreads),
		tmpScratch:         make([][]byte, concurrentThreads),
	}
	for t := 0; t < concurrentThreads; t++ {
		r.fetchScratch[t] = make([][]byte, length)
		for i := range r.fetchScratch[t] {
			r.fetchScratch[t][i] = make([]byte, stripeUnitSize)
		}
		r.synScratch[t] = make([]byte, redundancy*stripeUnitSize)
		r.gammaScratch[t] = make([]byte, redundancy*stripeUnitSize)
		r.tmpScratch[t] = make([]byte, stripeUnitSize)
	}
	return r, nil
}

func (r *ReedSolomon) locatorOf(symbolPos int) int {
	if symbolPos < r.Params().Dimension {
		return r.infLocators[symbolPos]
	}
	return r.checkLocators[symbolPos-r.Params().Dimension]
}

// computeSyndrome fills dst (sized Redundancy*StripeUnitSize) with
// S_i = sum_j data_j * alpha^(i*locator_j), for i in [0, Redundancy).
func (r *ReedSolomon) computeSyndrome(refs []symbolRef, dst []byte) {
	w := r.Params().StripeUnitSize
	for i := range dst {
		dst[i] = 0
	}
	for _, ref := range refs {
		if ref.data == nil {
			continue
		}
		l := 0
		for i := 0; i < r.redundancy; i++ {
			r.gf.MulAdd(l, dst[i*w:(i+1)*w], ref.data)
			l += ref.locator
			if l >= r.order {
				l -= r.order
			}
		}
	}
}

// erasureEvaluator computes Gamma(x) = Lambda(x)*S(x) mod x^degree.
func (r *ReedSolomon) erasureEvaluator(syndrome, lambda, gamma []byte, degree int) {
	w := r.Params().StripeUnitSize
	for i := 0; i < degree; i++ {
		dst := gamma[i*w : (i+1)*w]
		copy(dst, syndrome[i*w:(i+1)*w])
		for j := 1; j <= i; j++ {
			if lambda[j] != 0 {
				r.gf.MulAdd(r.gf.Log(lambda[j]), dst, syndrome[(i-j)*w:(i-j+1)*w])
			}
		}
	}
}

// evaluate computes dst = poly(alpha^x), treating poly as
// degree+1 coefficient blocks of StripeUnitSize bytes each.
func (r *ReedSolomon) evaluate(poly []byte, degree, x int, dst []byte) {
	w := r.Params().StripeUnitSize
	copy(dst, poly[:w])
	l := x
	for i := 1; i <= degree; i++ {
		r.gf.MulAdd(l, dst, poly[i*w:(i+1)*w])
		l += x
		if l >= r.order {
			l -= r.order
		}
	}
}

// IsCorrectable builds the erasure-locator polynomial for erasureSetID
// and the per-erasure Forney multiples, reporting whether the erasure
// count is within the code's redundancy budget.
func (r *ReedSolomon) IsCorrectable(erasureSetID int) bool {
	t := r.GetNumOfErasures(erasureSetID)
	if t == 0 {
		return true
	}
	if t > r.redundancy {
		return false
	}

	lambda := make([]byte, r.redundancy+1)
	lambda[0] = 1
	for i := 0; i < t; i++ {
		pos := r.GetErasedPosition(erasureSetID, i)
		locator := r.locatorOf(pos)
		for j := i + 1; j > 0; j-- {
			if lambda[j-1] != 0 {
				l := r.gf.Log(lambda[j-1]) + locator
				if l >= r.order {
					l -= r.order
				}
				lambda[j] ^= r.gf.Exp(l)
			}
		}
	}

	lambdaPrime := make([]int, t)
	for i := 0; i < t; i++ {
		pos := r.GetErasedPosition(erasureSetID, i)
		lambdaPrime[i] = forneyMultiple(r.gf, t, lambda, 0, r.locatorOf(pos))
	}

	r.mu.Lock()
	r.erasureDeg[erasureSetID] = t
	r.erasureLam[erasureSetID] = lambda
	r.erasureLamP[erasureSetID] = lambdaPrime
	r.mu.Unlock()
	return true
}

func (r *ReedSolomon) erasureState(erasureSetID int) (int, []byte, []int) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.erasureDeg[erasureSetID], r.erasureLam[erasureSetID], r.erasureLamP[erasureSetID]
}

// DecodeDataSymbols fetches non-erased symbols directly and, if the
// erased symbol (if any) falls within range, recovers it via syndrome
// computation and Forney's algorithm.
func (r *ReedSolomon) DecodeDataSymbols(stripeID uint64, erasureSetID, symbolID, symbols2Decode int, dest []byte, threadID int) error {
	k := r.Params().Dimension
	w := r.Params().StripeUnitSize
	needsDecoding := false

	refs := make([]symbolRef, 0, k+r.redundancy)
	for s := 0; s < symbols2Decode; s++ {
		pos := symbolID + s
		if r.IsErased(erasureSetID, pos) {
			needsDecoding = true
			refs = append(refs, symbolRef{locator: r.locatorOf(pos), data: nil})
			continue
		}
		chunk := dest[s*w : (s+1)*w]
		if err := r.ReadStripeUnit(stripeID, erasureSetID, pos, 0, 1, chunk); err != nil {
			return err
		}
		refs = append(refs, symbolRef{locator: r.locatorOf(pos), data: chunk})
	}
	if !needsDecoding {
		return nil
	}

	fetch := r.fetchScratch[threadID]
	for i := 0; i < symbolID; i++ {
		if r.IsErased(erasureSetID, i) {
			refs = append(refs, symbolRef{locator: r.locatorOf(i), data: nil})
			continue
		}
		if err := r.ReadStripeUnit(stripeID, erasureSetID, i, 0, 1, fetch[i]); err != nil {
			return err
		}
		refs = append(refs, symbolRef{locator: r.locatorOf(i), data: fetch[i]})
	}
	for i := symbolID + symbols2Decode; i < k; i++ {
		if r.IsErased(erasureSetID, i) {
			refs = append(refs, symbolRef{locator: r.locatorOf(i), data: nil})
			continue
		}
		if err := r.ReadStripeUnit(stripeID, erasureSetID, i, 0, 1, fetch[i]); err != nil {
			return err
		}
		refs = append(refs, symbolRef{locator: r.locatorOf(i), data: fetch[i]})
	}
	for i := 0; i < r.redundancy; i++ {
		pos := k + i
		if r.IsErased(erasureSetID, pos) {
			refs = append(refs, symbolRef{locator: r.locatorOf(pos), data: nil})
			continue
		}
		if err := r.ReadStripeUnit(stripeID, erasureSetID, pos, 0, 1, fetch[pos]); err != nil {
			return err
		}
		refs = append(refs, symbolRef{locator: r.locatorOf(pos), data: fetch[pos]})
	}

	syndrome := r.synScratch[threadID]
	r.computeSyndrome(refs, syndrome)
	degree, lambda, lambdaPrime := r.erasureState(erasureSetID)
	gamma := r.gammaScratch[threadID]
	r.erasureEvaluator(syndrome, lambda, gamma, degree)

	for i := 0; i < degree; i++ {
		pos := r.GetErasedPosition(erasureSetID, i)
		if pos < symbolID || pos >= symbolID+symbols2Decode {
			continue
		}
		locator := r.locatorOf(pos)
		x := 0
		if locator != 0 {
			x = r.order - locator
		}
		dst := dest[(pos-symbolID)*w : (pos-symbolID+1)*w]
		r.evaluate(gamma, degree-1, x, dst)
		r.gf.MulInto(lambdaPrime[i], dst, dst)
	}
	return nil
}

// EncodeStripe writes the payload symbols as-is and derives every check
// symbol from the syndrome of the completed payload.
func (r *ReedSolomon) EncodeStripe(stripeID uint64, erasureSetID int, data []byte, threadID int) error {
	k := r.Params().Dimension
	w := r.Params().StripeUnitSize

	refs := make([]symbolRef, 0, k+r.redundancy)
	for i := 0; i < k; i++ {
		chunk := data[i*w : (i+1)*w]
		if err := r.WriteStripeUnit(stripeID, erasureSetID, i, 0, 1, chunk); err != nil {
			return err
		}
		refs = append(refs, symbolRef{locator: r.locatorOf(i), data: chunk})
	}

	syndrome := r.synScratch[threadID]
	r.computeSyndrome(refs, syndrome)
	gamma := r.gammaScratch[threadID]
	r.erasureEvaluator(syndrome, r.checkLocatorPoly, gamma, r.redundancy)

	tmp := r.tmpScratch[threadID]
	for i := 0; i < r.redundancy; i++ {
		locator := r.checkLocators[i]
		x := 0
		if locator != 0 {
			x = r.order - locator
		}
		r.evaluate(gamma, r.redundancy-1, x, tmp)
		r.gf.MulInto(r.checkLocatorsPrime[i], tmp, tmp)
		if err := r.WriteStripeUnit(stripeID, erasureSetID, k+i, 0, 1, tmp); err != nil {
			return err
		}
	}
	return nil
}

// UpdateInformationSymbols writes the new payload units and applies the
// resulting check-symbol delta. It assumes none of the updated units are
// themselves erased; GetEncodingStrategy routes such writes to a full
// EncodeStripe instead.
func (r *ReedSolomon) UpdateInformationSymbols(stripeID uint64, erasureSetID, stripeUnitID, units2Update int, data []byte, threadID int) error {
	w := r.Params().StripeUnitSize
	k := r.Params().Dimension
	fetch := r.fetchScratch[threadID]

	refs := make([]symbolRef, 0, units2Update)
	for i := 0; i < units2Update; i++ {
		pos := stripeUnitID + i
		delta := fetch[pos]
		if err := r.ReadStripeUnit(stripeID, erasureSetID, pos, 0, 1, delta); err != nil {
			return err
		}
		r.gf.XOR(delta, data[i*w:(i+1)*w])
		refs = append(refs, symbolRef{locator: r.locatorOf(pos), data: delta})
		if err := r.WriteStripeUnit(stripeID, erasureSetID, pos, 0, 1, data[i*w:(i+1)*w]); err != nil {
			return err
		}
	}

	syndrome := r.synScratch[threadID]
	r.computeSyndrome(refs, syndrome)
	gamma := r.gammaScratch[threadID]
	r.erasureEvaluator(syndrome, r.checkLocatorPoly, gamma, r.redundancy)

	tmp := r.tmpScratch[threadID]
	for i := 0; i < r.redundancy; i++ {
		if r.IsErased(erasureSetID, k+i) {
			continue
		}
		locator := r.checkLocators[i]
		x := 0
		if locator != 0 {
			x = r.order - locator
		}
		r.evaluate(gamma, r.redundancy-1, x, tmp)
		old := fetch[k+i]
		if err := r.ReadStripeUnit(stripeID, erasureSetID, k+i, 0, 1, old); err != nil {
			return err
		}
		r.gf.MulAdd(r.checkLocatorsPrime[i], old, tmp)
		if err := r.WriteStripeUnit(stripeID, erasureSetID, k+i, 0, 1, old); err != nil {
			return err
		}
	}
	return nil
}

// CheckCodeword fetches every symbol and reports whether the resulting
// syndrome is identically zero.
func (r *ReedSolomon) CheckCodeword(stripeID uint64, erasureSetID int, threadID int) (bool, error) {
	if r.GetNumOfErasures(erasureSetID) != 0 {
		return true, nil
	}
	k := r.Params().Dimension
	fetch := r.fetchScratch[threadID]

	refs := make([]symbolRef, 0, k+r.redundancy)
	for i := 0; i < k; i++ {
		if err := r.ReadStripeUnit(stripeID, erasureSetID, i, 0, 1, fetch[i]); err != nil {
			return false, err
		}
		refs = append(refs, symbolRef{locator: r.locatorOf(i), data: fetch[i]})
	}
	for i := 0; i < r.redundancy; i++ {
		pos := k + i
		if err := r.ReadStripeUnit(stripeID, erasureSetID, pos, 0, 1, fetch[pos]); err != nil {
			return false, err
		}
		refs = append(refs, symbolRef{locator: r.locatorOf(pos), data: fetch[pos]})
	}

	syndrome := r.synScratch[threadID]
	r.computeSyndrome(refs, syndrome)
	var acc byte
	for _, v := range syndrome {
		acc |= v
	}
	return acc == 0, nil
}

// GetEncodingStrategy forces a full re-encode whenever the update range
// includes a registered erasure (the delta-update path needs the old value
// of every updated unit, and an erased unit's old value cannot be read);
// otherwise it defers to the base heuristic.
func (r *ReedSolomon) GetEncodingStrategy(erasureSetID, stripeUnitID, subsymbols2Encode int) bool {
	for i := 0; i < r.GetNumOfErasures(erasureSetID); i++ {
		pos := r.GetErasedPosition(erasureSetID, i)
		if pos < stripeUnitID || pos >= stripeUnitID+subsymbols2Encode {
			continue
		}
		return true
	}
	p := r.Params()
	return subsymbols2Encode > 2*p.Dimension*p.StripeUnitsPerSymbol/3
}

// ReadData, WriteData, IsMountable and VerifyStripe forward to the
// embedded Base, supplying r itself as the Codec callback target.
func (r *ReedSolomon) ReadData(stripeID uint64, stripeUnitID, subarrayID, numOfUnits int, dest []byte, threadID int) error {
	return r.Base.ReadData(r, stripeID, stripeUnitID, subarrayID, numOfUnits, dest, threadID)
}

func (r *ReedSolomon) WriteData(stripeID uint64, stripeUnitID, subarrayID, numOfUnits int, src []byte, threadID int) error {
	return r.Base.WriteData(r, stripeID, stripeUnitID, subarrayID, numOfUnits, src, threadID)
}

func (r *ReedSolomon) IsMountable() bool { return r.Base.IsMountable(r) }

func (r *ReedSolomon) VerifyStripe(stripeID uint64, subarrayID, threadID int) (bool, error) {
	return r.Base.VerifyStripe(r, stripeID, subarrayID, threadID)
}
