package h264

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// The streams in testdata hold a 32x16 IDR picture and one P picture, both
// two macroblocks wide, coded once with CAVLC (baseline) and once with
// CABAC (main). Both carry the same syntax elements:
//
//	I MB0  I_16x16 DC, chroma DC, cbp 0, DC levels {5, 0, -1}
//	I MB1  I_NxN, block 5 coded as vertical, cbp 1, block 0 levels
//	       {0, 3, 0, 1, -1, -1, 0, 1}, block 3 levels {1}
//	P MB0  P_L0_16x16 mvd (5, -2), cbp 16, Cb DC {-1}
//	P MB1  P_Skip
func parseKnownAnswer(t *testing.T, name string) [][]Macroblock {
	t.Helper()
	stream, err := os.ReadFile("testdata/" + name)
	require.NoError(t, err)

	nals := SplitAnnexB(stream)
	require.Len(t, nals, 4)
	sets := NewParamSets()
	sps, err := ParseSPS(UnescapeRBSP(nals[0][1:]))
	require.NoError(t, err)
	sets.PutSPS(sps)
	pps, err := ParsePPS(UnescapeRBSP(nals[1][1:]), sets)
	require.NoError(t, err)
	sets.PutPPS(pps)
	require.Equal(t, 32, sps.Width())
	require.Equal(t, 16, sps.Height())

	var pics [][]Macroblock
	for i, want := range []SliceType{SliceI, SliceP} {
		p, err := NewSliceParser(UnescapeRBSP(nals[2+i]), sets)
		require.NoError(t, err)
		require.Equal(t, want, p.Slice().Header.Type)
		rec := &recorder{}
		require.NoError(t, p.Parse(rec))
		require.Len(t, rec.mbs, 2)
		pics = append(pics, rec.mbs)
	}
	return pics
}

func TestKnownAnswerSlices(t *testing.T) {
	for _, file := range []string{"cavlc_ip.264", "cabac_ip.264"} {
		t.Run(file, func(t *testing.T) {
			pics := parseKnownAnswer(t, file)

			i16, ok := pics[0][0].(*Intra16x16)
			require.True(t, ok, "I MB0 is %T", pics[0][0])
			assert.Equal(t, uint8(Intra16x16DC), i16.PredMode)
			assert.Equal(t, uint8(ChromaDC), i16.ChromaPred)
			assert.Equal(t, CBP(0), i16.CBP)
			assert.Equal(t, 26, i16.QP)
			assert.Equal(t, [16]int32{5, 0, -1}, i16.LumaDC)
			assert.Equal(t, [16][16]int32{}, i16.Luma)

			nxn, ok := pics[0][1].(*IntraNxN)
			require.True(t, ok, "I MB1 is %T", pics[0][1])
			assert.False(t, nxn.Transform8x8)
			var modes [16]uint8
			for b := range modes {
				modes[b] = IntraDC
			}
			// Block 5 is coded; 7, 13 and 15 inherit it as the smaller
			// neighbouring mode.
			modes[5], modes[7], modes[13], modes[15] = IntraVertical, IntraVertical, IntraVertical, IntraVertical
			assert.Equal(t, modes, nxn.PredModes)
			assert.Equal(t, uint8(ChromaDC), nxn.ChromaPred)
			assert.Equal(t, CBP(1), nxn.CBP)
			assert.Equal(t, 26, nxn.QP)
			var luma [16][16]int32
			luma[0] = [16]int32{0, 3, 0, 1, -1, -1, 0, 1}
			luma[3][0] = 1
			assert.Equal(t, luma, nxn.Luma)
			assert.Equal(t, [2][4]int32{}, nxn.ChromaDC)

			inter, ok := pics[1][0].(*Inter)
			require.True(t, ok, "P MB0 is %T", pics[1][0])
			assert.Equal(t, Part16x16, inter.Shape)
			assert.Equal(t, PredL0, inter.Pred[0])
			assert.Equal(t, int8(0), inter.RefIdx[0][0])
			assert.Equal(t, MV{X: 5, Y: -2}, inter.MV[0][0])
			assert.Equal(t, CBP(0x10), inter.CBP)
			assert.Equal(t, 26, inter.QP)
			assert.Equal(t, [2][4]int32{{-1}}, inter.ChromaDC)
			assert.Equal(t, [16][16]int32{}, inter.Luma)
			assert.Equal(t, [2][4][16]int32{}, inter.ChromaAC)

			skip, ok := pics[1][1].(*PSkip)
			require.True(t, ok, "P MB1 is %T", pics[1][1])
			assert.Equal(t, 1, skip.Addr)
			// Only the left neighbour exists, so the skip vector is zero.
			assert.Equal(t, MV{}, skip.MV)
		})
	}
}
