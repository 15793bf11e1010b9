package cavlc

import (
	"math/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deepteams/vcodec/internal/bitio"
	"github.com/deepteams/vcodec/internal/codecerr"
)

func bitString(data []byte, n int) string {
	var sb strings.Builder
	for i := 0; i < n; i++ {
		if data[i>>3]>>(7-uint(i&7))&1 == 1 {
			sb.WriteByte('1')
		} else {
			sb.WriteByte('0')
		}
	}
	return sb.String()
}

func TestWriteBlockKnownVector(t *testing.T) {
	coeffs := []int32{0, 3, 0, 1, -1, -1, 0, 1, 0, 0, 0, 0, 0, 0, 0, 0}
	w := bitio.NewWriter(8)
	n, err := WriteBlock(w, 0, coeffs)
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, "000010001110010111101101", bitString(w.Bytes(), w.Len()))

	out := make([]int32, 16)
	n, err = ReadBlock(bitio.NewReader(w.Bytes()), 0, 16, out)
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, coeffs, out)
}

func fromBitString(s string) []byte {
	s = strings.ReplaceAll(s, " ", "")
	out := make([]byte, (len(s)+7)/8)
	for i, c := range s {
		if c == '1' {
			out[i>>3] |= 0x80 >> uint(i&7)
		}
	}
	return out
}

// Codewords written out by hand from the coeff_token, level, total_zeros
// and run_before tables.
func TestReadBlockKnownBits(t *testing.T) {
	tests := []struct {
		name        string
		bits        string
		nC          int
		maxNumCoeff int
		want        []int32
	}{
		{"worked example", "0000100 011 1 0010 111 10 1 1 01", 0, 16,
			[]int32{0, 3, 0, 1, -1, -1, 0, 1, 0, 0, 0, 0, 0, 0, 0, 0}},
		{"dc with level prefix", "000100 1 0000001 110 0", 0, 16,
			[]int32{5, 0, -1, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0}},
		{"empty at nC 5", "1111", 5, 16, make([]int32, 16)},
		{"empty at nC 3", "11", 3, 16, make([]int32, 16)},
		{"single one", "01 0 1", 0, 16, append([]int32{1}, make([]int32, 15)...)},
		{"chroma dc", "1 1 1", NCChromaDC420, 4, []int32{-1, 0, 0, 0}},
		{"empty chroma dc", "01", NCChromaDC420, 4, []int32{0, 0, 0, 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := bitio.NewReader(fromBitString(tt.bits))
			out := make([]int32, 16)
			n, err := ReadBlock(r, tt.nC, tt.maxNumCoeff, out)
			require.NoError(t, err)
			assert.Equal(t, tt.want, out[:tt.maxNumCoeff])
			nz := 0
			for _, v := range tt.want {
				if v != 0 {
					nz++
				}
			}
			assert.Equal(t, nz, n)
			assert.Equal(t, len(strings.ReplaceAll(tt.bits, " ", "")), r.Pos())
		})
	}
}

func TestCoeffTokenBijection(t *testing.T) {
	for _, nC := range []int{0, 2, 4, 8, NCChromaDC420, NCChromaDC422} {
		_, lens, bits := tokenTable(nC)
		for idx, l := range lens {
			if l == 0 {
				continue
			}
			w := bitio.NewWriter(4)
			w.WriteBits(uint32(bits[idx]), int(l))
			tree, _, _ := tokenTable(nC)
			got, err := tree.Read(bitio.NewReader(w.Bytes()))
			require.NoError(t, err)
			assert.Equal(t, idx, got, "nC %d totalCoeff %d trailingOnes %d", nC, idx>>2, idx&3)
		}
	}
}

func TestBTreeRejectsPrefix(t *testing.T) {
	tr := NewBTree("x")
	require.NoError(t, tr.Insert(0b10, 2, 1))
	assert.Error(t, tr.Insert(0b1, 1, 2))
	assert.Error(t, tr.Insert(0b101, 3, 3))
}

func TestBlockRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	cases := []struct {
		nC, maxNumCoeff int
	}{
		{0, 16}, {1, 15}, {2, 16}, {3, 15}, {5, 16}, {7, 15}, {8, 16}, {12, 15},
		{NCChromaDC420, 4}, {NCChromaDC422, 8},
	}
	for _, tc := range cases {
		for iter := 0; iter < 300; iter++ {
			coeffs := make([]int32, tc.maxNumCoeff)
			density := rng.Intn(tc.maxNumCoeff + 1)
			for i := range coeffs {
				if rng.Intn(tc.maxNumCoeff+1) < density {
					switch rng.Intn(4) {
					case 0:
						coeffs[i] = int32(rng.Intn(2*MaxLevel+1) - MaxLevel)
					case 1:
						coeffs[i] = int32(rng.Intn(41) - 20)
					default:
						coeffs[i] = int32(rng.Intn(2)*2 - 1)
					}
				}
			}
			w := bitio.NewWriter(64)
			n, err := WriteBlock(w, tc.nC, coeffs)
			require.NoError(t, err)
			w.WriteTrailingBits()

			out := make([]int32, tc.maxNumCoeff)
			r := bitio.NewReader(w.Bytes())
			got, err := ReadBlock(r, tc.nC, tc.maxNumCoeff, out)
			require.NoError(t, err)
			require.Equal(t, n, got)
			require.Equal(t, coeffs, out, "nC %d iter %d", tc.nC, iter)
			assert.False(t, r.MoreRBSPData())
		}
	}
}

func TestWriteBlockRejectsHugeLevel(t *testing.T) {
	coeffs := make([]int32, 16)
	coeffs[0] = MaxLevel + 1
	_, err := WriteBlock(bitio.NewWriter(8), 0, coeffs)
	assert.Error(t, err)
}

func TestReadBlockMalformed(t *testing.T) {
	// nC >= 8 uses a 6-bit code; 000010 is not assigned.
	out := make([]int32, 16)
	_, err := ReadBlock(bitio.NewReader([]byte{0b00001000}), 8, 16, out)
	require.Error(t, err)
	assert.ErrorIs(t, err, codecerr.ErrMalformed)

	_, err = ReadBlock(bitio.NewReader(nil), 0, 16, out)
	assert.ErrorIs(t, err, codecerr.ErrEndOfStream)
}
