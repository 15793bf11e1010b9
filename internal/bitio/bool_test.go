package bitio

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// A 5-symbol tree shaped like the VP8 segment-id and mode trees.
var testTree = []int8{
	-0, 2,
	4, 6,
	-1, -2,
	-3, -4,
}

func TestBoolCoderRandomBits(t *testing.T) {
	for _, n := range []int{0, 1, 7, 1000, 20000} {
		rng := rand.New(rand.NewSource(int64(n)))
		in := make([]int, n)
		probs := make([]uint8, n)
		bw := NewBoolWriter(0)
		for i := range in {
			probs[i] = uint8(rng.Intn(256))
			in[i] = rng.Intn(2)
			bw.PutBit(in[i], int(probs[i]))
		}
		br := NewBoolReader(bw.Finish())
		for i := range in {
			require.Equal(t, in[i], br.GetBit(probs[i]), "length %d bit %d", n, i)
		}
		assert.False(t, br.EOF(), "length %d", n)
	}
}

func TestBoolCoderSkewedRuns(t *testing.T) {
	// Long runs against a strong prior force carries through 0xff bytes.
	for _, p := range []uint8{1, 2, 127, 128, 254, 255} {
		bw := NewBoolWriter(0)
		var in []int
		for i := 0; i < 3000; i++ {
			b := 1
			if i%97 == 0 {
				b = 0
			}
			if p < 128 {
				b ^= 1
			}
			in = append(in, b)
			bw.PutBit(b, int(p))
		}
		br := NewBoolReader(bw.Finish())
		for i, b := range in {
			require.Equal(t, b, br.GetBit(p), "prob %d bit %d", p, i)
		}
	}
}

func TestBoolCoderValues(t *testing.T) {
	bw := NewBoolWriter(0)
	for n := 1; n <= 16; n++ {
		bw.PutBits(uint32(1<<n-1)&0xa5a5, n)
	}
	for v := -127; v <= 127; v++ {
		bw.PutSignedBits(v, 7)
	}
	br := NewBoolReader(bw.Finish())
	for n := 1; n <= 16; n++ {
		assert.Equal(t, uint32(1<<n-1)&0xa5a5, br.GetValue(n), "%d bits", n)
	}
	for v := -127; v <= 127; v++ {
		if v == 0 {
			assert.Zero(t, br.GetBit(0x80))
			continue
		}
		require.Equal(t, 1, br.GetBit(0x80))
		assert.Equal(t, int32(v), br.GetSignedValue(7))
	}
}

func TestGetSigned(t *testing.T) {
	bw := NewBoolWriter(0)
	bw.PutBitUniform(1)
	bw.PutBitUniform(0)
	br := NewBoolReader(bw.Finish())
	assert.Equal(t, -42, br.GetSigned(42))
	assert.Equal(t, 42, br.GetSigned(42))
}

func TestFixedInput(t *testing.T) {
	zeros := NewBoolReader(make([]byte, 16))
	ones := NewBoolReader([]byte{0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff})
	for i := 0; i < 20; i++ {
		assert.Equal(t, 0, zeros.GetBit(0x80), "bit %d", i)
		assert.Equal(t, 1, ones.GetBit(0x80), "bit %d", i)
	}
}

func TestBoolReaderEOF(t *testing.T) {
	assert.True(t, NewBoolReader(nil).EOF())

	br := NewBoolReader([]byte{0x42})
	assert.False(t, br.EOF())
	for i := 0; i < 16; i++ {
		br.GetBit(0x80)
	}
	assert.True(t, br.EOF())
}

func TestTreeRoundTrip(t *testing.T) {
	probs := []uint8{128, 30, 200, 90}
	rng := rand.New(rand.NewSource(7))
	syms := make([]int, 2000)
	bw := NewBoolWriter(0)
	for i := range syms {
		syms[i] = rng.Intn(5)
		bw.PutTree(testTree, probs, syms[i])
	}
	require.NoError(t, bw.Err())
	br := NewBoolReader(bw.Finish())
	for i, want := range syms {
		require.Equal(t, want, br.ReadTree(testTree, probs), "symbol %d", i)
	}
}

func TestTreePath(t *testing.T) {
	for v, want := range [][]int{{0}, {1, 0, 0}, {1, 0, 1}, {1, 1, 0}, {1, 1, 1}} {
		path, ok := treePath(testTree, v)
		require.True(t, ok)
		assert.Equal(t, want, path, "symbol %d", v)
	}
	_, ok := treePath(testTree, 5)
	assert.False(t, ok)
}

func TestPutTreeUnknownSymbol(t *testing.T) {
	bw := NewBoolWriter(0)
	bw.PutTree(testTree, []uint8{1, 2, 3, 4}, 9)
	assert.Error(t, bw.Err())
	bw.PutTree(testTree, []uint8{1, 2, 3, 4}, 2)
	assert.Contains(t, bw.Err().Error(), "symbol 9")
}
