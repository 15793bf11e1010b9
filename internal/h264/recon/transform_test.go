package recon

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deepteams/vcodec/internal/h264"
)

func flatTransformer() *CoeffTransformer {
	m := h264.FlatScalingMatrix()
	return NewCoeffTransformer(&m)
}

func TestIDCT4x4DCOnly(t *testing.T) {
	b := [16]int32{5 * 64}
	IDCT4x4(&b)
	for i, v := range b {
		assert.Equal(t, int32(5), v, "sample %d", i)
	}
}

func TestIDCT8x8DCOnly(t *testing.T) {
	b := [64]int32{-3 * 64}
	IDCT8x8(&b)
	for i, v := range b {
		assert.Equal(t, int32(-3), v, "sample %d", i)
	}
}

func TestDequantFlat(t *testing.T) {
	ct := flatTransformer()
	var in, out [16]int32
	in[0], in[1] = 1, -2
	// qp 24: levels scale by LevelScale without a shift.
	ct.Dequant4x4(ListIntraY, 24, &in, &out, false)
	assert.Equal(t, int32(16*10), out[0])
	assert.Equal(t, int32(-2*16*13), out[1])

	ct.Dequant4x4(ListIntraY, 24, &in, &out, true)
	assert.Zero(t, out[0])
}

func TestTransformRoundTrip(t *testing.T) {
	ct := flatTransformer()
	rng := rand.New(rand.NewSource(7))
	for iter := 0; iter < 200; iter++ {
		var src, coef, levels, rec [16]int32
		for i := range src {
			src[i] = int32(rng.Intn(61) - 30)
		}
		coef = src
		Forward4x4(&coef)
		Quant4x4(&coef, 0, true, false, &levels)
		ct.Dequant4x4(ListIntraY, 0, &levels, &rec, false)
		IDCT4x4(&rec)
		for i := range src {
			require.InDelta(t, src[i], rec[i], 2, "iteration %d sample %d", iter, i)
		}
	}
}

func TestLumaDCRoundTrip(t *testing.T) {
	ct := flatTransformer()
	var dc, levels, out [16]int32
	for i := range dc {
		dc[i] = 16 * 40 // forward transform of a flat 4x4 block of 40
	}
	ForwardLumaDC(&dc)
	QuantLumaDC(&dc, 20, &levels)
	ct.LumaDC(ListIntraY, 20, &levels, &out)
	for i := range out {
		var blk [16]int32
		blk[0] = out[i]
		IDCT4x4(&blk)
		assert.InDelta(t, 40, blk[5], 2, "block %d", i)
	}
}

func TestChromaDCRoundTrip(t *testing.T) {
	ct := flatTransformer()
	in := [4]int32{16 * 10, 16 * -10, 16 * 20, 0}
	var levels, out [4]int32
	ForwardChromaDC(&in, 18, true, &levels)
	ct.ChromaDC(ListIntraCb, 18, &levels, &out)
	want := []int32{10, -10, 20, 0}
	for i := range out {
		var blk [16]int32
		blk[0] = out[i]
		IDCT4x4(&blk)
		assert.InDelta(t, want[i], blk[0], 2, "block %d", i)
	}
}

func TestChromaQP(t *testing.T) {
	assert.Equal(t, 29, ChromaQP(29, 0))
	assert.Equal(t, 29, ChromaQP(30, 0))
	assert.Equal(t, 39, ChromaQP(51, 0))
	assert.Equal(t, 39, ChromaQP(45, 12))
	assert.Equal(t, 0, ChromaQP(5, -12))
}
