package h264

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deepteams/vcodec/internal/codecerr"
)

// recorder keeps a copy of every parsed macroblock.
type recorder struct {
	slice *Slice
	mbs   []Macroblock
}

func (r *recorder) StartSlice(s *Slice) error { r.slice = s; return nil }

func (r *recorder) IntraNxN(mb *IntraNxN) error {
	c := *mb
	r.mbs = append(r.mbs, &c)
	return nil
}

func (r *recorder) Intra16x16(mb *Intra16x16) error {
	c := *mb
	r.mbs = append(r.mbs, &c)
	return nil
}

func (r *recorder) IPCM(mb *IPCM) error {
	c := *mb
	r.mbs = append(r.mbs, &c)
	return nil
}

func (r *recorder) PSkip(mb *PSkip) error {
	c := *mb
	r.mbs = append(r.mbs, &c)
	return nil
}

func (r *recorder) Inter(mb *Inter) error {
	c := *mb
	r.mbs = append(r.mbs, &c)
	return nil
}

func (r *recorder) Inter8x8(mb *Inter8x8) error {
	c := *mb
	r.mbs = append(r.mbs, &c)
	return nil
}

func testParams(cabac bool) (*SPS, *PPS, *ParamSets) {
	sps := NewSPS()
	sps.ProfileIdc = 100
	sps.LevelIdc = 30
	sps.PicOrderCntType = 2
	sps.MaxNumRefFrames = 2
	sps.PicWidthInMbsMinus1 = 2
	sps.PicHeightInMapUnitsMinus1 = 1
	sps.Direct8x8Inference = true

	pps := &PPS{
		EntropyCodingMode:              cabac,
		NumRefIdxL0DefaultActiveMinus1: 1,
		NumRefIdxL1DefaultActiveMinus1: 1,
		Extension:                      true,
		Transform8x8Mode:               true,
	}
	sets := NewParamSets()
	sets.PutSPS(sps)
	sets.PutPPS(pps)
	return sps, pps, sets
}

func randCoeffs(rng *rand.Rand, out []int32) {
	for i := range out {
		if rng.Intn(3) != 0 {
			continue
		}
		v := int32(rng.Intn(12) + 1)
		if rng.Intn(10) == 0 {
			v += int32(rng.Intn(500))
		}
		if rng.Intn(2) == 0 {
			v = -v
		}
		out[i] = v
	}
}

func randResidual(rng *rand.Rand, res *Residual, cbp CBP, i16, t8 bool) {
	if i16 {
		randCoeffs(rng, res.LumaDC[:])
	}
	for b8 := 0; b8 < 4; b8++ {
		if !cbp.LumaCoded(b8) {
			continue
		}
		if t8 {
			randCoeffs(rng, res.Luma8x8[b8][:])
			continue
		}
		for k := 0; k < 4; k++ {
			if i16 {
				randCoeffs(rng, res.Luma[4*b8+k][1:])
			} else {
				randCoeffs(rng, res.Luma[4*b8+k][:])
			}
		}
	}
	if cbp.Chroma() == 0 {
		return
	}
	for c := 0; c < 2; c++ {
		randCoeffs(rng, res.ChromaDC[c][:])
		if cbp.Chroma() == 2 {
			for b := 0; b < 4; b++ {
				randCoeffs(rng, res.ChromaAC[c][b][1:])
			}
		}
	}
}

func randMV(rng *rand.Rand) MV {
	return MV{int16(rng.Intn(129) - 64), int16(rng.Intn(97) - 48)}
}

func randIntra(rng *rand.Rand) Macroblock {
	switch rng.Intn(5) {
	case 0, 1:
		mb := &IntraNxN{Transform8x8: rng.Intn(2) == 0, ChromaPred: uint8(rng.Intn(4)), CBP: CBP(rng.Intn(48))}
		n := 16
		if mb.Transform8x8 {
			n = 4
		}
		for i := 0; i < n; i++ {
			mb.PredModes[i] = uint8(rng.Intn(9))
		}
		mb.QPDelta = rng.Intn(7) - 3
		randResidual(rng, &mb.Residual, mb.CBP, false, mb.Transform8x8)
		return mb
	case 2, 3:
		mb := &Intra16x16{PredMode: uint8(rng.Intn(4)), ChromaPred: uint8(rng.Intn(4))}
		mb.CBP = CBP(rng.Intn(3)) << 4
		if rng.Intn(2) == 0 {
			mb.CBP |= 15
		}
		mb.QPDelta = rng.Intn(7) - 3
		randResidual(rng, &mb.Residual, mb.CBP, true, false)
		return mb
	}
	mb := &IPCM{}
	rng.Read(mb.Luma[:])
	rng.Read(mb.Chroma[0][:])
	rng.Read(mb.Chroma[1][:])
	return mb
}

func randInter(rng *rand.Rand, st SliceType) *Inter {
	mb := &Inter{Shape: PartShape(rng.Intn(3))}
	switch {
	case st == SliceP:
		mb.Pred = [2]PredDir{PredL0, PredL0}
	case mb.Shape == Part16x16:
		d := PredDir(1 + rng.Intn(3))
		mb.Pred = [2]PredDir{d, d}
	default:
		mb.Pred = bPartPreds[rng.Intn(len(bPartPreds))]
	}
	for i := 0; i < mb.Shape.NumParts(); i++ {
		for list := 0; list < 2; list++ {
			mb.RefIdx[i][list] = -1
			if mb.Pred[i].Uses(list) {
				mb.RefIdx[i][list] = int8(rng.Intn(2))
				mb.MV[i][list] = randMV(rng)
			}
		}
	}
	mb.CBP = CBP(rng.Intn(48))
	mb.Transform8x8 = mb.CBP.Luma() > 0 && rng.Intn(2) == 0
	mb.QPDelta = rng.Intn(7) - 3
	randResidual(rng, &mb.Residual, mb.CBP, false, mb.Transform8x8)
	return mb
}

func randInter8x8(rng *rand.Rand, st SliceType, cabac bool) *Inter8x8 {
	mb := &Inter8x8{Ref0: st == SliceP && !cabac && rng.Intn(4) == 0}
	noSub := true
	for i := range mb.Sub {
		sub := &mb.Sub[i]
		if st == SliceP {
			sub.Shape, sub.Pred = pSubShapes[rng.Intn(4)], PredL0
		} else {
			t := bSubTypes[1+rng.Intn(12)]
			sub.Shape, sub.Pred = t.shape, t.pred
		}
		if sub.Shape != Part8x8 {
			noSub = false
		}
		for list := 0; list < 2; list++ {
			sub.RefIdx[list] = -1
			if !sub.Pred.Uses(list) {
				continue
			}
			sub.RefIdx[list] = int8(rng.Intn(2))
			if mb.Ref0 {
				sub.RefIdx[list] = 0
			}
			for j := 0; j < sub.Shape.NumParts(); j++ {
				sub.MV[list][j] = randMV(rng)
			}
		}
	}
	mb.CBP = CBP(rng.Intn(48))
	mb.Transform8x8 = noSub && mb.CBP.Luma() > 0 && rng.Intn(2) == 0
	mb.QPDelta = rng.Intn(7) - 3
	randResidual(rng, &mb.Residual, mb.CBP, false, mb.Transform8x8)
	return mb
}

func randMacroblock(rng *rand.Rand, st SliceType, cabac bool) Macroblock {
	switch st {
	case SliceI:
		return randIntra(rng)
	case SliceP:
		switch rng.Intn(6) {
		case 0, 1:
			return &PSkip{}
		case 2:
			return randInter(rng, st)
		case 3:
			return randInter8x8(rng, st, cabac)
		}
		return randIntra(rng)
	}
	switch rng.Intn(5) {
	case 0, 1:
		return randInter(rng, st)
	case 2:
		return randInter8x8(rng, st, cabac)
	}
	return randIntra(rng)
}

func writeSlice(t *testing.T, sps *SPS, pps *PPS, nal NALHeader, hdr *SliceHeader, mbs []Macroblock) []byte {
	t.Helper()
	sw, err := NewSliceWriter(nal, hdr, sps, pps)
	require.NoError(t, err)
	for _, mb := range mbs {
		require.NoError(t, sw.Write(mb))
	}
	data, err := sw.Finish()
	require.NoError(t, err)
	return data
}

func TestSliceRoundTrip(t *testing.T) {
	for _, cabac := range []bool{false, true} {
		for _, st := range []SliceType{SliceI, SliceP, SliceB} {
			name := st.String() + "/cavlc"
			if cabac {
				name = st.String() + "/cabac"
			}
			t.Run(name, func(t *testing.T) {
				sps, pps, sets := testParams(cabac)
				for seed := int64(0); seed < 40; seed++ {
					rng := rand.New(rand.NewSource(seed))
					nal := NALHeader{RefIdc: 1, Type: NALSlice}
					if st == SliceI {
						nal.Type = NALIDRSlice
					}
					hdr := &SliceHeader{Type: st, SliceQPDelta: int32(rng.Intn(11) - 5)}
					if cabac && st != SliceI {
						hdr.CabacInitIdc = uint32(rng.Intn(3))
					}
					var mbs []Macroblock
					for i := 0; i < sps.MbWidth()*sps.MbHeight(); i++ {
						mbs = append(mbs, randMacroblock(rng, st, cabac))
					}
					data := writeSlice(t, sps, pps, nal, hdr, mbs)
					// Through the escaped form a transport would carry.
					nalu := UnescapeRBSP(EscapeRBSP(data))

					p, err := NewSliceParser(nalu, sets)
					require.NoError(t, err, "seed %d", seed)
					assert.Equal(t, st, p.Slice().Header.Type)
					var rec recorder
					require.NoError(t, p.Parse(&rec), "seed %d", seed)
					require.Len(t, rec.mbs, len(mbs), "seed %d", seed)
					for i := range mbs {
						require.Equal(t, mbs[i], rec.mbs[i], "seed %d macroblock %d", seed, i)
					}
				}
			})
		}
	}
}

func TestSliceSkipRunAtEnd(t *testing.T) {
	sps, pps, sets := testParams(false)
	mbs := []Macroblock{&Intra16x16{PredMode: Intra16x16DC}}
	for i := 1; i < 6; i++ {
		mbs = append(mbs, &PSkip{})
	}
	data := writeSlice(t, sps, pps, NALHeader{RefIdc: 1, Type: NALSlice}, &SliceHeader{Type: SliceP}, mbs)

	p, err := NewSliceParser(data, sets)
	require.NoError(t, err)
	var rec recorder
	require.NoError(t, p.Parse(&rec))
	require.Len(t, rec.mbs, 6)
	for i := 1; i < 6; i++ {
		skip, ok := rec.mbs[i].(*PSkip)
		require.True(t, ok)
		assert.Equal(t, MV{}, skip.MV)
		assert.Equal(t, i, skip.Addr)
		assert.Equal(t, i%3, skip.MbX)
		assert.Equal(t, i/3, skip.MbY)
	}
}

func TestSlicePartial(t *testing.T) {
	// A slice may start mid-picture and stop before its end.
	for _, cabac := range []bool{false, true} {
		sps, pps, sets := testParams(cabac)
		hdr := &SliceHeader{Type: SliceI, FirstMbInSlice: 2}
		mbs := []Macroblock{
			&Intra16x16{PredMode: Intra16x16Vertical},
			&IntraNxN{CBP: 0x1f, MBCommon: MBCommon{QPDelta: 2}},
		}
		mbs[1].(*IntraNxN).Luma[4][0] = 7
		mbs[1].(*IntraNxN).ChromaDC[1][3] = -2
		data := writeSlice(t, sps, pps, NALHeader{RefIdc: 3, Type: NALIDRSlice}, hdr, mbs)

		p, err := NewSliceParser(data, sets)
		require.NoError(t, err)
		var rec recorder
		require.NoError(t, p.Parse(&rec))
		require.Len(t, rec.mbs, 2)
		assert.Equal(t, mbs, rec.mbs)
		assert.Equal(t, 2, rec.mbs[0].Common().Addr)
		assert.Equal(t, 28, rec.mbs[1].Common().QP)
	}
}

type failingHandler struct{ recorder }

func (f *failingHandler) Inter(*Inter) error { return codecerr.Unsupported("inter") }

func TestSliceHandlerError(t *testing.T) {
	sps, pps, sets := testParams(false)
	mbs := []Macroblock{&PSkip{}, &Inter{Pred: [2]PredDir{PredL0, PredL0}, RefIdx: [2][2]int8{{0, -1}}}}
	data := writeSlice(t, sps, pps, NALHeader{RefIdc: 1, Type: NALSlice}, &SliceHeader{Type: SliceP}, mbs)

	p, err := NewSliceParser(data, sets)
	require.NoError(t, err)
	err = p.Parse(&failingHandler{})
	require.ErrorIs(t, err, codecerr.ErrUnsupported)
	assert.Contains(t, err.Error(), "macroblock 1")
}

func TestSliceTruncated(t *testing.T) {
	sps, pps, sets := testParams(false)
	rng := rand.New(rand.NewSource(1))
	var mbs []Macroblock
	for i := 0; i < 6; i++ {
		mb := &IntraNxN{CBP: 47}
		randResidual(rng, &mb.Residual, mb.CBP, false, false)
		mbs = append(mbs, mb)
	}
	data := writeSlice(t, sps, pps, NALHeader{RefIdc: 1, Type: NALIDRSlice}, &SliceHeader{Type: SliceI}, mbs)

	p, err := NewSliceParser(data[:12], sets)
	require.NoError(t, err)
	require.Error(t, p.Parse(&recorder{}))
}

func TestSliceUnsupported(t *testing.T) {
	sps, pps, _ := testParams(false)
	w, err := NewSliceWriter(NALHeader{RefIdc: 1, Type: NALSlice}, &SliceHeader{Type: SliceB}, sps, pps)
	require.NoError(t, err)
	require.ErrorIs(t, w.Write(&PSkip{}), codecerr.ErrUnsupported)

	sps.BitDepthLumaMinus8 = 2
	_, err = NewSliceWriter(NALHeader{RefIdc: 1, Type: NALSlice}, &SliceHeader{Type: SliceP}, sps, pps)
	require.ErrorIs(t, err, codecerr.ErrUnsupported)
}

func TestSliceWriterValidation(t *testing.T) {
	sps, pps, _ := testParams(true)
	newWriter := func(st SliceType) *SliceWriter {
		w, err := NewSliceWriter(NALHeader{RefIdc: 1, Type: NALSlice}, &SliceHeader{Type: st}, sps, pps)
		require.NoError(t, err)
		return w
	}
	require.ErrorIs(t, newWriter(SliceP).Write(&Inter8x8{Ref0: true}), codecerr.ErrMalformed)
	require.ErrorIs(t, newWriter(SliceI).Write(&Inter{}), codecerr.ErrMalformed)
	require.ErrorIs(t, newWriter(SliceI).Write(&Intra16x16{CBP: 7}), codecerr.ErrMalformed)
	require.ErrorIs(t, newWriter(SliceI).Write(&IntraNxN{CBP: 1, MBCommon: MBCommon{QPDelta: 30}}), codecerr.ErrMalformed)
	require.ErrorIs(t, newWriter(SliceP).Write(&Inter{
		Pred:   [2]PredDir{PredL0, PredL0},
		RefIdx: [2][2]int8{{2, -1}},
	}), codecerr.ErrMalformed)

	w := newWriter(SliceI)
	_, err := w.Finish()
	require.Error(t, err)
}

func TestSliceQPWraps(t *testing.T) {
	sps, pps, sets := testParams(false)
	hdr := &SliceHeader{Type: SliceI, SliceQPDelta: 24} // QP 50
	mbs := []Macroblock{
		&Intra16x16{MBCommon: MBCommon{QPDelta: 5}},
		&Intra16x16{MBCommon: MBCommon{QPDelta: -8}},
	}
	data := writeSlice(t, sps, pps, NALHeader{RefIdc: 1, Type: NALIDRSlice}, hdr, mbs)
	assert.Equal(t, 3, mbs[0].Common().QP)
	assert.Equal(t, 47, mbs[1].Common().QP)

	p, err := NewSliceParser(data, sets)
	require.NoError(t, err)
	var rec recorder
	require.NoError(t, p.Parse(&rec))
	assert.Equal(t, 3, rec.mbs[0].Common().QP)
	assert.Equal(t, 47, rec.mbs[1].Common().QP)
}

func TestCABACChromaCBPContext(t *testing.T) {
	// The chroma CBP bins of a macroblock take their contexts from the
	// chroma CBP of the left and top neighbours.
	for _, cbp := range []CBP{0x10, 0x20, 0x13, 0x2f} {
		sps, pps, sets := testParams(true)
		var mbs []Macroblock
		for i := 0; i < 6; i++ {
			mb := &IntraNxN{CBP: cbp, ChromaPred: ChromaDC}
			mb.PredModes[0] = IntraDC
			for b := 1; b < 16; b++ {
				mb.PredModes[b] = IntraDC
			}
			mb.ChromaDC[0][0] = int32(i + 1)
			mb.ChromaDC[1][2] = -3
			if cbp.Chroma() == 2 {
				mb.ChromaAC[1][3][5] = 2
			}
			if cbp.LumaCoded(0) {
				mb.Luma[1][0] = 4
			}
			mbs = append(mbs, mb)
		}
		data := writeSlice(t, sps, pps, NALHeader{RefIdc: 3, Type: NALIDRSlice}, &SliceHeader{Type: SliceI}, mbs)

		p, err := NewSliceParser(data, sets)
		require.NoError(t, err)
		var rec recorder
		require.NoError(t, p.Parse(&rec), "cbp %#x", cbp)
		require.Len(t, rec.mbs, 6)
		for i := range mbs {
			assert.Equal(t, mbs[i], rec.mbs[i], "cbp %#x macroblock %d", cbp, i)
		}
	}
}
