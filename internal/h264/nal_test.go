package h264

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNALHeader(t *testing.T) {
	h := ParseNALHeader(0x67)
	assert.Equal(t, NALHeader{RefIdc: 3, Type: NALSPS}, h)
	assert.Equal(t, byte(0x67), h.Byte())
	assert.Equal(t, "SPS", h.Type.String())
	assert.False(t, h.Type.IsSlice())

	idr := ParseNALHeader(0x65)
	assert.True(t, idr.IsIDR())
	assert.True(t, idr.Type.IsSlice())
	assert.Equal(t, "reserved", NALUnitType(23).String())
}

func TestSplitAnnexB(t *testing.T) {
	stream := []byte{
		0, 0, 0, 1, 0x67, 1, 2,
		0, 0, 1, 0x68, 3, 0, 0,
		0, 0, 0, 1, 0x65, 4, 0, 0, 3, 0, 5,
	}
	nals := SplitAnnexB(stream)
	assert.Equal(t, [][]byte{
		{0x67, 1, 2},
		{0x68, 3},
		{0x65, 4, 0, 0, 3, 0, 5},
	}, nals)

	out := AppendAnnexB(nil, nals...)
	assert.Equal(t, nals, SplitAnnexB(out))
	assert.Nil(t, SplitAnnexB(nil))
	assert.Equal(t, [][]byte{{0x09, 0xf0}}, SplitAnnexB([]byte{0x09, 0xf0}))
}

func TestEmulationPrevention(t *testing.T) {
	cases := []struct{ rbsp, ebsp []byte }{
		{[]byte{1, 2, 3}, []byte{1, 2, 3}},
		{[]byte{0, 0, 0}, []byte{0, 0, 3, 0}},
		{[]byte{0, 0, 1, 0, 0, 2}, []byte{0, 0, 3, 1, 0, 0, 3, 2}},
		{[]byte{0, 0, 3}, []byte{0, 0, 3, 3}},
		{[]byte{0, 0, 4, 0, 0}, []byte{0, 0, 4, 0, 0}},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.ebsp, EscapeRBSP(tc.rbsp))
		assert.Equal(t, tc.rbsp, UnescapeRBSP(tc.ebsp))
	}
}
