package recon

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/deepteams/vcodec/internal/h264"
)

func deblockPicture(t *testing.T, mbw int, left, right uint8) *Picture {
	s := testSlice(t, mbw, 1, h264.SliceI)
	pic := NewPicture(s.SPS)
	for y := 0; y < 16; y++ {
		for x := 0; x < pic.Width(); x++ {
			v := left
			if x >= 16 {
				v = right
			}
			pic.Y[y*pic.YStride+x] = v
		}
	}
	for i := range pic.mbs {
		pic.mbs[i] = mbState{decoded: true, intra: true, qp: 40, slice: 1, chromaQP: [2]int{36, 36}}
	}
	return pic
}

func TestDeblockFlatUnchanged(t *testing.T) {
	pic := deblockPicture(t, 2, 100, 100)
	defer pic.Release()
	Deblock(pic)
	for i, v := range pic.Y {
		assert.Equal(t, uint8(100), v, "luma %d", i)
	}
	for i := range pic.Cb {
		assert.Equal(t, uint8(128), pic.Cb[i], "cb %d", i)
	}
}

func TestDeblockStrongEdge(t *testing.T) {
	pic := deblockPicture(t, 2, 90, 100)
	defer pic.Release()
	Deblock(pic)
	for y := 0; y < 16; y++ {
		row := pic.Y[y*pic.YStride:]
		p0, q0 := row[15], row[16]
		assert.Greater(t, p0, uint8(90), "row %d", y)
		assert.Less(t, q0, uint8(100), "row %d", y)
		assert.LessOrEqual(t, q0-p0, uint8(4), "row %d", y)
	}
}

func TestDeblockDisabled(t *testing.T) {
	for _, disable := range []uint32{1, 2} {
		pic := deblockPicture(t, 2, 90, 100)
		for i := range pic.mbs {
			pic.mbs[i].deblock.disable = disable
			pic.mbs[i].slice = i
		}
		Deblock(pic)
		assert.Equal(t, uint8(90), pic.Y[15], "idc %d", disable)
		assert.Equal(t, uint8(100), pic.Y[16], "idc %d", disable)
		pic.Release()
	}
}

func TestBoundaryStrength(t *testing.T) {
	a, b := &Picture{}, &Picture{}
	inter := func() *mbState {
		st := &mbState{decoded: true}
		for i := range st.ref[0] {
			st.ref[0][i] = a
		}
		return st
	}

	q := inter()
	assert.Equal(t, 0, boundaryStrength(q, inter(), 0, 0, 0))
	assert.Equal(t, 0, boundaryStrength(q, nil, 0, 0, 0), "picture edge")

	nb := inter()
	nb.intra = true
	assert.Equal(t, 4, boundaryStrength(q, nb, 0, 0, 0))

	q.nz = 1 << h264.BlockIndex(1, 0)
	assert.Equal(t, 2, boundaryStrength(q, nil, 0, 1, 0))
	assert.Equal(t, 0, boundaryStrength(q, nil, 0, 2, 1))

	q.mv[0][h264.BlockIndex(2, 2)] = h264.MV{X: 4}
	assert.Equal(t, 1, boundaryStrength(q, nil, 0, 2, 2))
	q.ref[0][h264.BlockIndex(3, 3)] = b
	assert.Equal(t, 1, boundaryStrength(q, nil, 1, 3, 3))

	q.t8x8 = true
	assert.Equal(t, 0, boundaryStrength(q, nil, 0, 1, 0))
}

func TestMotionDiffersBi(t *testing.T) {
	a, b := &Picture{}, &Picture{}
	p := &mbState{}
	q := &mbState{}
	p.ref[0][0], p.ref[1][0] = a, b
	q.ref[0][0], q.ref[1][0] = b, a
	p.mv[0][0], p.mv[1][0] = h264.MV{X: 8}, h264.MV{Y: 8}
	q.mv[0][0], q.mv[1][0] = h264.MV{Y: 8}, h264.MV{X: 8}
	assert.False(t, motionDiffers(p, 0, q, 0), "swapped lists, same motion")

	q.mv[1][0] = h264.MV{X: 12}
	assert.True(t, motionDiffers(p, 0, q, 0))

	q.ref[1][0] = nil
	assert.True(t, motionDiffers(p, 0, q, 0), "different MV count")
}
