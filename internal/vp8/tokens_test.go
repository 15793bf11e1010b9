package vp8

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deepteams/vcodec/internal/bitio"
)

var tokenMagnitudes = []int16{1, 2, 3, 4, 5, 6, 7, 8, 10, 11, 12, 18, 19, 34, 35, 66, 67, 500, 2048}

type tokenBlock struct {
	t, ctx, first, last int
	levels              [16]int16
}

func randomTokenBlocks(rng *rand.Rand, n int) []tokenBlock {
	blocks := make([]tokenBlock, n)
	for i := range blocks {
		b := &blocks[i]
		b.t = rng.Intn(numTypes)
		b.ctx = rng.Intn(numCtx)
		if b.t == typeYAfterY2 {
			b.first = 1
		}
		b.last = b.first + rng.Intn(17-b.first)
		for k := b.first; k < b.last; k++ {
			if rng.Intn(3) == 0 {
				continue
			}
			v := tokenMagnitudes[rng.Intn(len(tokenMagnitudes))]
			if rng.Intn(2) == 0 {
				v = -v
			}
			b.levels[k] = v
		}
		if b.last > b.first && b.levels[b.last-1] == 0 {
			b.levels[b.last-1] = 1
		}
	}
	return blocks
}

func TestCoeffsRoundTrip(t *testing.T) {
	var p proba
	p.reset()
	blocks := randomTokenBlocks(rand.New(rand.NewSource(3)), 500)

	bw := bitio.NewBoolWriter(0)
	for i := range blocks {
		b := &blocks[i]
		putCoeffs(tokenWriter{bw: bw, proba: &p}, b.t, b.ctx, b.levels[:], b.first, b.last)
	}
	br := bitio.NewBoolReader(bw.Finish())
	for i := range blocks {
		b := &blocks[i]
		var out [16]int16
		n := getCoeffs(br, &p.coeff[b.t], b.ctx, [2]int{1, 1}, b.first, out[:])
		require.Equal(t, max(b.last, b.first), n, "block %d", i)
		for k := 0; k < 16; k++ {
			require.Equal(t, b.levels[k], out[zigzag[k]], "block %d position %d", i, k)
		}
	}
	assert.False(t, br.EOF())
}

func TestCoeffsDequantise(t *testing.T) {
	var p proba
	p.reset()
	levels := [16]int16{3, -2, 0, 1}
	bw := bitio.NewBoolWriter(0)
	putCoeffs(tokenWriter{bw: bw, proba: &p}, typeUV, 0, levels[:], 0, 4)
	var out [16]int16
	n := getCoeffs(bitio.NewBoolReader(bw.Finish()), &p.coeff[typeUV], 0, [2]int{7, 5}, 0, out[:])
	assert.Equal(t, 4, n)
	assert.Equal(t, int16(21), out[0])
	assert.Equal(t, int16(-10), out[zigzag[1]])
	assert.Equal(t, int16(0), out[zigzag[2]])
	assert.Equal(t, int16(5), out[zigzag[3]])
}

func TestTokenStatsCountBranches(t *testing.T) {
	var stats tokenStats
	putCoeffs(&stats, typeY2, 2, make([]int16, 16), 0, 0)
	assert.Equal(t, uint32(1), stats[typeY2][bands[0]][2][0][0])

	levels := [16]int16{0, 1}
	putCoeffs(&stats, typeUV, 1, levels[:], 0, 2)
	assert.Equal(t, uint32(1), stats[typeUV][bands[0]][1][0][1], "not at end of block")
	assert.Equal(t, uint32(1), stats[typeUV][bands[0]][1][1][0], "zero token")
	assert.Equal(t, uint32(1), stats[typeUV][bands[1]][0][1][1], "non-zero after a zero")
	assert.Equal(t, uint32(1), stats[typeUV][bands[1]][0][2][0], "magnitude one")
	assert.Equal(t, uint32(1), stats[typeUV][bands[2]][1][0][0], "end of block")
}

func TestNzContextClear(t *testing.T) {
	c := nzContext{y: [4]uint8{1, 1, 0, 1}, u: [2]uint8{1, 0}, y2: 1}
	c.clear(false)
	assert.Equal(t, nzContext{y2: 1}, c)
	c.clear(true)
	assert.Equal(t, nzContext{}, c)
}
