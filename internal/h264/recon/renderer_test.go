package recon

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deepteams/vcodec/internal/codecerr"
	"github.com/deepteams/vcodec/internal/h264"
)

func testSlice(t *testing.T, mbw, mbh int, typ h264.SliceType) *h264.Slice {
	t.Helper()
	sps := h264.NewSPS()
	sps.ProfileIdc = 100
	sps.PicWidthInMbsMinus1 = uint32(mbw - 1)
	sps.PicHeightInMapUnitsMinus1 = uint32(mbh - 1)
	pps := &h264.PPS{}
	hdr := &h264.SliceHeader{Type: typ}
	m, err := h264.NewMapper(sps, pps, hdr)
	require.NoError(t, err)
	return &h264.Slice{
		NAL:    h264.NALHeader{RefIdc: 1, Type: h264.NALSlice},
		Header: hdr,
		SPS:    sps,
		PPS:    pps,
		Mapper: m,
	}
}

func common(addr, mbw, qp int) h264.MBCommon {
	return h264.MBCommon{Addr: addr, MbX: addr % mbw, MbY: addr / mbw, QP: qp}
}

func TestIntra16x16DCCorner(t *testing.T) {
	s := testSlice(t, 2, 2, h264.SliceI)
	pic := NewPicture(s.SPS)
	defer pic.Release()
	r := NewRenderer(pic)
	require.NoError(t, r.StartSlice(s))
	mb := &h264.Intra16x16{
		MBCommon:   common(0, 2, 26),
		PredMode:   h264.Intra16x16DC,
		ChromaPred: h264.ChromaDC,
	}
	require.NoError(t, r.Intra16x16(mb))
	for y := 0; y < 16; y++ {
		for x := 0; x < 16; x++ {
			require.Equal(t, uint8(128), pic.Y[y*pic.YStride+x], "luma (%d,%d)", x, y)
		}
	}
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			require.Equal(t, uint8(128), pic.Cb[y*pic.CStride+x])
			require.Equal(t, uint8(128), pic.Cr[y*pic.CStride+x])
		}
	}
}

func TestIntra16x16UsesNeighbours(t *testing.T) {
	s := testSlice(t, 2, 1, h264.SliceI)
	pic := NewPicture(s.SPS)
	defer pic.Release()
	r := NewRenderer(pic)
	require.NoError(t, r.StartSlice(s))

	ipcm := &h264.IPCM{MBCommon: common(0, 2, 30)}
	for i := range ipcm.Luma {
		ipcm.Luma[i] = uint8(i % 16 * 4)
	}
	require.NoError(t, r.IPCM(ipcm))

	mb := &h264.Intra16x16{MBCommon: common(1, 2, 30), PredMode: h264.Intra16x16Horizontal}
	require.NoError(t, r.Intra16x16(mb))
	for y := 0; y < 16; y++ {
		assert.Equal(t, uint8(60), pic.Y[y*pic.YStride+16+7])
	}

	bad := &h264.Intra16x16{MBCommon: common(1, 2, 30), PredMode: h264.Intra16x16Vertical}
	err := r.Intra16x16(bad)
	assert.ErrorIs(t, err, codecerr.ErrMalformed)
}

func TestIntra4x4Residual(t *testing.T) {
	s := testSlice(t, 1, 1, h264.SliceI)
	pic := NewPicture(s.SPS)
	defer pic.Release()
	r := NewRenderer(pic)
	require.NoError(t, r.StartSlice(s))
	mb := &h264.IntraNxN{MBCommon: common(0, 1, 24)}
	for b := range mb.PredModes {
		mb.PredModes[b] = h264.IntraDC
	}
	// DC level 2 at qp 24 dequantises to 320, a residual of +5.
	mb.Luma[0][0] = 2
	require.NoError(t, r.IntraNxN(mb))
	assert.Equal(t, uint8(133), pic.Y[0])
	assert.Equal(t, uint8(133), pic.Y[3*pic.YStride+3])
	// Block 1 averages its left neighbour only: (4*133+2)>>2.
	assert.Equal(t, uint8(133), pic.Y[4])
	assert.Equal(t, uint16(1), pic.mbs[0].nz)
}

func TestBlockAvailTopRight(t *testing.T) {
	all := mbAvail{left: true, top: true, topLeft: true, topRight: true}
	cases := []struct {
		b    int
		want bool
	}{
		{0, true}, {1, true}, {2, true}, {3, false},
		{4, true}, {5, true}, {6, true}, {7, false},
		{13, false}, {15, false},
	}
	for _, c := range cases {
		x, y := h264.BlockPos(c.b)
		_, _, _, tr := blockAvail(all, x, y, 4)
		assert.Equal(t, c.want, tr, "block %d", c.b)
	}
	_, _, _, tr := blockAvail(mbAvail{top: true}, 3, 0, 4)
	assert.False(t, tr)
}

func gradientPicture(t *testing.T, s *h264.Slice) *Picture {
	pic := NewPicture(s.SPS)
	for y := 0; y < pic.Height(); y++ {
		for x := 0; x < pic.Width(); x++ {
			pic.Y[y*pic.YStride+x] = uint8(x*3 + y)
		}
	}
	for i := range pic.Cb {
		pic.Cb[i] = uint8(i)
		pic.Cr[i] = uint8(255 - i)
	}
	return pic
}

func TestPSkipFullSample(t *testing.T) {
	s := testSlice(t, 2, 2, h264.SliceP)
	ref := gradientPicture(t, s)
	defer ref.Release()
	pic := NewPicture(s.SPS)
	defer pic.Release()
	r := NewRenderer(pic)
	r.Refs[0] = []*Picture{ref}
	require.NoError(t, r.StartSlice(s))

	mb := &h264.PSkip{MBCommon: common(3, 2, 26), MV: h264.MV{X: -8, Y: -4}}
	require.NoError(t, r.PSkip(mb))
	for y := 16; y < 32; y++ {
		for x := 16; x < 32; x++ {
			require.Equal(t, ref.Y[(y-1)*ref.YStride+x-2], pic.Y[y*pic.YStride+x])
		}
	}
	assert.Same(t, ref, pic.mbs[3].ref[0][0])
}

func TestInterHalfSampleFlat(t *testing.T) {
	s := testSlice(t, 1, 1, h264.SliceB)
	ref := NewPicture(s.SPS)
	defer ref.Release()
	fill(ref.Y, 77)
	pic := NewPicture(s.SPS)
	defer pic.Release()
	r := NewRenderer(pic)
	r.Refs = [2][]*Picture{{ref}, {ref}}
	require.NoError(t, r.StartSlice(s))
	mb := &h264.Inter{
		MBCommon: common(0, 1, 26),
		Shape:    h264.Part16x8,
		Pred:     [2]h264.PredDir{h264.PredBi, h264.PredL1},
		MV:       [2][2]h264.MV{{{X: 6, Y: -3}, {X: 1, Y: 2}}, {{}, {X: 33, Y: -17}}},
	}
	require.NoError(t, r.Inter(mb))
	for i, v := range pic.Y[:256] {
		require.Equal(t, uint8(77), v, "sample %d", i)
	}
}

func TestInterMissingReference(t *testing.T) {
	s := testSlice(t, 1, 1, h264.SliceP)
	pic := NewPicture(s.SPS)
	defer pic.Release()
	r := NewRenderer(pic)
	require.NoError(t, r.StartSlice(s))
	err := r.PSkip(&h264.PSkip{MBCommon: common(0, 1, 26)})
	var se *codecerr.SyntaxError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "ref_idx_l0", se.Element)
}

func TestImplicitWeightsUnsupported(t *testing.T) {
	s := testSlice(t, 1, 1, h264.SliceB)
	s.PPS.WeightedBipredIdc = 2
	r := NewRenderer(NewPicture(s.SPS))
	defer r.Pic.Release()
	assert.ErrorIs(t, r.StartSlice(s), codecerr.ErrUnsupported)
}

func TestExplicitWeights(t *testing.T) {
	tbl := &h264.PredWeightTable{
		LumaLog2Denom: 5,
		L0:            []h264.WeightEntry{{LumaFlag: true, LumaWeight: 32, LumaOffset: 10}},
		L1:            []h264.WeightEntry{{LumaFlag: true, LumaWeight: 16, LumaOffset: -4}},
	}
	w0 := weightFor(tbl, 0, 0, 0)
	w1 := weightFor(tbl, 1, 0, 0)
	assert.Equal(t, uint8(110), weightOne(100, w0))
	assert.Equal(t, uint8(46), weightOne(100, w1))
	// (100*32 + 100*16 + 32) >> 6 = 75, plus (10-4+1)>>1 = 3.
	assert.Equal(t, uint8(78), weightBi(100, 100, w0, w1))
	// Entries beyond the table use the default weight.
	assert.Equal(t, uint8(100), weightOne(100, weightFor(tbl, 0, 3, 0)))
}
