package h264

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestContext(t *testing.T, st SliceType) *sliceContext {
	t.Helper()
	sps := mapperSPS(3, 3)
	pps := &PPS{}
	hdr := &SliceHeader{Type: st}
	m, err := NewMapper(sps, pps, hdr)
	require.NoError(t, err)
	return newSliceContext(&Slice{Header: hdr, SPS: sps, PPS: pps, Mapper: m})
}

// interRecord commits a 16x16 list-0 macroblock at addr.
func interRecord(c *sliceContext, addr int, ref int8, mv MV) {
	c.begin(addr)
	c.cur.kind = kindInter
	c.setMotion(0, 0, 0, 4, 4, ref, mv, MV{})
	c.commit()
}

func TestMedian3(t *testing.T) {
	assert.Equal(t, int16(2), median3(1, 2, 3))
	assert.Equal(t, int16(2), median3(3, 1, 2))
	assert.Equal(t, int16(-1), median3(-1, -1, 5))
	assert.Equal(t, int16(0), median3(0, 0, 0))
}

func TestPredictMVMedian(t *testing.T) {
	c := newTestContext(t, SliceP)
	interRecord(c, 0, 0, MV{4, 0})
	interRecord(c, 1, 0, MV{8, -2})
	interRecord(c, 2, 0, MV{-6, 10})
	interRecord(c, 3, 0, MV{2, 2})

	c.begin(4)
	assert.Equal(t, MV{2, 2}, c.predictMV(0, 0, 0, 4, 0, Part16x16, 0))
}

func TestPredictMVSingleMatch(t *testing.T) {
	c := newTestContext(t, SliceP)
	interRecord(c, 0, 1, MV{4, 0})
	interRecord(c, 1, 1, MV{8, -2})
	interRecord(c, 2, 0, MV{-6, 10})
	interRecord(c, 3, 1, MV{2, 2})

	// Only C (top-right) uses reference 0.
	c.begin(4)
	assert.Equal(t, MV{-6, 10}, c.predictMV(0, 0, 0, 4, 0, Part16x16, 0))
}

func TestPredictMVDirectional(t *testing.T) {
	c := newTestContext(t, SliceP)
	interRecord(c, 0, 0, MV{1, 1})
	interRecord(c, 1, 0, MV{9, 9})
	interRecord(c, 2, 1, MV{5, 5})
	interRecord(c, 3, 0, MV{-3, 7})

	c.begin(4)
	// Upper 16x8 partition takes B when the reference matches.
	assert.Equal(t, MV{9, 9}, c.predictMV(0, 0, 0, 4, 0, Part16x8, 0))
	// Left 8x16 partition takes A.
	assert.Equal(t, MV{-3, 7}, c.predictMV(0, 0, 0, 2, 0, Part8x16, 0))
	// Right 8x16 partition takes C, here the top-right macroblock.
	assert.Equal(t, MV{5, 5}, c.predictMV(0, 2, 0, 2, 1, Part8x16, 1))
}

func TestPredictMVOnlyLeftAvailable(t *testing.T) {
	c := newTestContext(t, SliceP)
	interRecord(c, 0, 0, MV{6, -4})
	c.begin(1)
	assert.Equal(t, MV{6, -4}, c.predictMV(0, 0, 0, 4, 0, Part16x16, 0))
}

func TestPredictSkipMV(t *testing.T) {
	c := newTestContext(t, SliceP)
	c.begin(0)
	assert.Equal(t, MV{}, c.predictSkipMV())

	interRecord(c, 0, 0, MV{3, 3})
	interRecord(c, 1, 0, MV{3, 3})
	interRecord(c, 2, 0, MV{3, 3})
	interRecord(c, 3, 0, MV{})
	c.begin(4)
	// A has reference 0 and a zero vector.
	assert.Equal(t, MV{}, c.predictSkipMV())

	interRecord(c, 3, 0, MV{5, 1})
	c.begin(4)
	assert.Equal(t, MV{3, 3}, c.predictSkipMV())
}

func TestPredIntraMode(t *testing.T) {
	c := newTestContext(t, SliceI)
	c.begin(0)
	assert.Equal(t, IntraDC, c.predIntraMode(0))

	c.cur.kind = kindINxN
	for b := range c.cur.predModes {
		c.cur.predModes[b] = IntraHorizontalUp
	}
	c.cur.predModes[1] = IntraVerticalLeft
	c.commit()

	c.begin(1)
	c.cur.kind = kindINxN
	c.cur.predModes[0] = IntraVertical
	// Block 1 sees block 0 of this macroblock on its left; its top is
	// outside the picture.
	assert.Equal(t, IntraDC, c.predIntraMode(1))
	c.commit()

	c.begin(3)
	// Left is outside the picture.
	assert.Equal(t, IntraDC, c.predIntraMode(0))

	c.begin(4)
	c.records[3].kind = kindINxN
	c.records[3].predModes[5] = IntraHorizontal
	// Block 0 of macroblock 4: A is block 5 of macroblock 3, B is block 10
	// of macroblock 1.
	assert.Equal(t, IntraVertical, c.predIntraMode(0))
	c.records[1].predModes[10] = IntraHorizontalUp
	assert.Equal(t, IntraHorizontal, c.predIntraMode(0))
}

func TestNCFromNeighbours(t *testing.T) {
	c := newTestContext(t, SliceI)
	c.begin(0)
	c.cur.kind = kindINxN
	c.cur.nz[5] = 4  // right column, top row
	c.cur.nz[10] = 7 // bottom row, left column
	c.commit()
	c.begin(1)
	c.cur.kind = kindIPCM
	c.commit()

	c.begin(3)
	assert.Equal(t, 7, c.lumaNC(0))
	c.begin(4)
	c.cur.nz[0] = 1
	// A is block 5 of macroblock 3, B is block 10 of the I_PCM macroblock 1.
	assert.Equal(t, (0+16+1)>>1, c.lumaNC(0))
	assert.Equal(t, (1+16+1)>>1, c.lumaNC(1))
	assert.Equal(t, 0, combineNC(false, 3, false, 9))
}

func TestUpdateQPWraps(t *testing.T) {
	c := newTestContext(t, SliceI)
	c.qp = 51
	c.updateQP(1)
	assert.Equal(t, 0, c.qp)
	c.updateQP(-26)
	assert.Equal(t, 26, c.qp)
	assert.Equal(t, -26, c.lastQPDelta)
}
