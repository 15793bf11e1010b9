package recon

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deepteams/vcodec/internal/codecerr"
	"github.com/deepteams/vcodec/internal/h264"
)

func rampEdges() *edges {
	e := &edges{hasTop: true, hasLeft: true, hasTopLeft: true, topLeft: 50}
	for i := range e.top {
		e.top[i] = 60 + 4*i
	}
	for i := range e.left {
		e.left[i] = 40 - 2*i
	}
	return e
}

func TestPredict4x4Modes(t *testing.T) {
	var dst [16]uint8
	e := rampEdges()

	require.NoError(t, predictNxN(dst[:], 4, 4, h264.IntraVertical, e))
	assert.Equal(t, []uint8{60, 64, 68, 72}, dst[12:16])

	require.NoError(t, predictNxN(dst[:], 4, 4, h264.IntraHorizontal, e))
	assert.Equal(t, []uint8{34, 34, 34, 34}, dst[12:16])

	require.NoError(t, predictNxN(dst[:], 4, 4, h264.IntraDC, e))
	// (264 + 148 + 4) >> 3
	assert.Equal(t, uint8(52), dst[5])

	require.NoError(t, predictNxN(dst[:], 4, 4, h264.IntraDiagonalDownLeft, e))
	// A linear ramp is reproduced by the 3-tap filter.
	assert.Equal(t, uint8(64), dst[0])
	// (84 + 3*88 + 2) >> 2
	assert.Equal(t, uint8(87), dst[15])

	require.NoError(t, predictNxN(dst[:], 4, 4, h264.IntraDiagonalDownRight, e))
	// (60 + 2*50 + 40 + 2) >> 2
	assert.Equal(t, uint8(50), dst[0])
	assert.Equal(t, dst[0], dst[15])
}

func TestPredictNxNUnavailable(t *testing.T) {
	var dst [64]uint8
	e := rampEdges()
	e.hasTop = false
	for _, mode := range []int{h264.IntraVertical, h264.IntraDiagonalDownLeft, h264.IntraVerticalRight, h264.IntraVerticalLeft} {
		err := predictNxN(dst[:], 8, 8, mode, e)
		assert.ErrorIs(t, err, codecerr.ErrMalformed, "mode %d", mode)
	}
	require.NoError(t, predictNxN(dst[:], 8, 8, h264.IntraHorizontalUp, e))
	require.NoError(t, predictNxN(dst[:], 8, 8, h264.IntraDC, e))
	// Left only: mean of left[0..7] = 33.
	assert.Equal(t, uint8(33), dst[0])
}

func TestFilter8x8KeepsRamp(t *testing.T) {
	e := rampEdges()
	e.filter8x8()
	for x := 1; x < 15; x++ {
		assert.Equal(t, 60+4*x, e.top[x])
	}
	assert.Equal(t, (116+3*120+2)>>2, e.top[15])
	assert.Equal(t, (50+2*40+38+2)>>2, e.left[0])
	assert.Equal(t, (60+2*50+40+2)>>2, e.topLeft)
}

func TestPredictChromaDCQuadrants(t *testing.T) {
	var dst [64]uint8
	e := &edges{hasTop: true}
	for i := 0; i < 8; i++ {
		e.top[i] = 10
		if i >= 4 {
			e.top[i] = 30
		}
	}
	require.NoError(t, predictChroma(dst[:], 8, h264.ChromaDC, e))
	assert.Equal(t, uint8(10), dst[0])
	assert.Equal(t, uint8(30), dst[4])
	assert.Equal(t, uint8(10), dst[4*8])
	assert.Equal(t, uint8(30), dst[4*8+4])
}

func TestPlanePredictionFlat(t *testing.T) {
	var dst [256]uint8
	e := &edges{hasTop: true, hasLeft: true, hasTopLeft: true, topLeft: 90}
	for i := 0; i < 16; i++ {
		e.top[i], e.left[i] = 90, 90
	}
	require.NoError(t, predict16x16(dst[:], 16, h264.Intra16x16Plane, e))
	for i, v := range dst {
		require.Equal(t, uint8(90), v, "sample %d", i)
	}
}

func TestPredict16x16DCNeighbours(t *testing.T) {
	tests := []struct {
		name            string
		hasTop, hasLeft bool
		want            uint8
	}{
		// top sums to 1440, left to 400
		{"both", true, true, 58},
		{"top only", true, false, 90},
		{"left only", false, true, 25},
		{"none", false, false, 128},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := rampEdges()
			e.hasTop, e.hasLeft = tt.hasTop, tt.hasLeft
			var dst [256]uint8
			require.NoError(t, predict16x16(dst[:], 16, h264.Intra16x16DC, e))
			assert.Equal(t, tt.want, dst[0])
			assert.Equal(t, tt.want, dst[255])
		})
	}
}
