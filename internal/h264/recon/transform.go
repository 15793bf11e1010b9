package recon

import "github.com/deepteams/vcodec/internal/h264"

// Frame zig-zag scans: scan position to raster index.
var (
	zigzag4x4 = [16]int{0, 1, 4, 8, 5, 2, 3, 6, 9, 12, 13, 10, 7, 11, 14, 15}
	zigzag8x8 = [64]int{
		0, 1, 8, 16, 9, 2, 3, 10, 17, 24, 32, 25, 18, 11, 4, 5,
		12, 19, 26, 33, 40, 48, 41, 34, 27, 20, 13, 6, 7, 14, 21, 28,
		35, 42, 49, 56, 57, 50, 43, 36, 29, 22, 15, 23, 30, 37, 44, 51,
		58, 59, 52, 45, 38, 31, 39, 46, 53, 60, 61, 54, 47, 55, 62, 63,
	}
)

var normAdjust4x4 = [6][3]int32{
	{10, 16, 13}, {11, 18, 14}, {13, 20, 16}, {14, 23, 18}, {16, 25, 20}, {18, 29, 23},
}

var normAdjust8x8 = [6][6]int32{
	{20, 18, 32, 19, 25, 24},
	{22, 19, 35, 21, 28, 26},
	{26, 23, 42, 24, 33, 31},
	{28, 25, 45, 26, 35, 33},
	{32, 28, 51, 30, 40, 38},
	{36, 32, 58, 34, 46, 43},
}

// class4x4 returns the normAdjust column for raster position pos: 0 when
// both coordinates are even, 1 when both are odd, 2 otherwise.
func class4x4(pos int) int {
	i, j := pos>>2, pos&3
	switch {
	case i&1 == 0 && j&1 == 0:
		return 0
	case i&1 == 1 && j&1 == 1:
		return 1
	}
	return 2
}

func class8x8(pos int) int {
	i, j := pos>>3, pos&7
	switch {
	case i%4 == 0 && j%4 == 0:
		return 0
	case i%2 == 1 && j%2 == 1:
		return 1
	case i%4 == 2 && j%4 == 2:
		return 2
	case i%4 == 0 && j%2 == 1, i%2 == 1 && j%4 == 0:
		return 3
	case i%4 == 0 && j%4 == 2, i%4 == 2 && j%4 == 0:
		return 4
	}
	return 5
}

// Scaling list indices.
const (
	ListIntraY = iota
	ListIntraCb
	ListIntraCr
	ListInterY
	ListInterCb
	ListInterCr
)

// CoeffTransformer dequantises coefficient levels and applies the inverse
// transforms. LevelScale tables are indexed by scan position.
type CoeffTransformer struct {
	ls4 [6][6][16]int32
	ls8 [2][6][64]int32
}

// NewCoeffTransformer builds the LevelScale tables for a scaling matrix.
func NewCoeffTransformer(m *h264.ScalingMatrix) *CoeffTransformer {
	t := &CoeffTransformer{}
	for l := 0; l < 6; l++ {
		for q := 0; q < 6; q++ {
			for k := 0; k < 16; k++ {
				t.ls4[l][q][k] = int32(m.List4x4[l][k]) * normAdjust4x4[q][class4x4(zigzag4x4[k])]
			}
		}
	}
	for l := 0; l < 2; l++ {
		for q := 0; q < 6; q++ {
			for k := 0; k < 64; k++ {
				t.ls8[l][q][k] = int32(m.List8x8[l][k]) * normAdjust8x8[q][class8x8(zigzag8x8[k])]
			}
		}
	}
	return t
}

// Dequant4x4 scales the levels of a 4x4 block given in scan order and
// stores them in raster order. With acOnly the DC position is left zero.
func (t *CoeffTransformer) Dequant4x4(list, qp int, in *[16]int32, out *[16]int32, acOnly bool) {
	ls := &t.ls4[list][qp%6]
	shift := qp / 6
	*out = [16]int32{}
	k := 0
	if acOnly {
		k = 1
	}
	for ; k < 16; k++ {
		c := in[k]
		if c == 0 {
			continue
		}
		if shift >= 4 {
			out[zigzag4x4[k]] = c * ls[k] << (shift - 4)
		} else {
			out[zigzag4x4[k]] = (c*ls[k] + 1<<(3-shift)) >> (4 - shift)
		}
	}
}

// Dequant8x8 is Dequant4x4 for an 8x8 block. list is 0 for intra, 1 for
// inter.
func (t *CoeffTransformer) Dequant8x8(list, qp int, in *[64]int32, out *[64]int32) {
	ls := &t.ls8[list][qp%6]
	shift := qp / 6
	*out = [64]int32{}
	for k, c := range in {
		if c == 0 {
			continue
		}
		if shift >= 6 {
			out[zigzag8x8[k]] = c * ls[k] << (shift - 6)
		} else {
			out[zigzag8x8[k]] = (c*ls[k] + 1<<(5-shift)) >> (6 - shift)
		}
	}
}

// LumaDC inverts the Intra16x16 DC Hadamard transform. The result is
// indexed in raster order of 4x4 blocks.
func (t *CoeffTransformer) LumaDC(list, qp int, in *[16]int32, out *[16]int32) {
	var c [16]int32
	for k, v := range in {
		c[zigzag4x4[k]] = v
	}
	hadamard4x4(&c)
	ls := t.ls4[list][qp%6][0]
	shift := qp / 6
	for i, f := range c {
		if shift >= 6 {
			out[i] = f * ls << (shift - 6)
		} else {
			out[i] = (f*ls + 1<<(5-shift)) >> (6 - shift)
		}
	}
}

// ChromaDC inverts the 2x2 chroma DC transform for 4:2:0.
func (t *CoeffTransformer) ChromaDC(list, qp int, in *[4]int32, out *[4]int32) {
	c0, c1, c2, c3 := in[0], in[1], in[2], in[3]
	f := [4]int32{c0 + c1 + c2 + c3, c0 - c1 + c2 - c3, c0 + c1 - c2 - c3, c0 - c1 - c2 + c3}
	ls := t.ls4[list][qp%6][0]
	for i := range f {
		out[i] = ((f[i] * ls) << (qp / 6)) >> 5
	}
}

func hadamard4x4(c *[16]int32) {
	for i := 0; i < 4; i++ {
		r := c[i*4 : i*4+4]
		a, b, d, e := r[0]+r[1], r[0]-r[1], r[2]+r[3], r[2]-r[3]
		r[0], r[1], r[2], r[3] = a+d, a-d, b-e, b+e
	}
	for j := 0; j < 4; j++ {
		a, b := c[j]+c[4+j], c[j]-c[4+j]
		d, e := c[8+j]+c[12+j], c[8+j]-c[12+j]
		c[j], c[4+j], c[8+j], c[12+j] = a+d, a-d, b-e, b+e
	}
}

// IDCT4x4 applies the inverse 4x4 transform in place, including the final
// (x+32)>>6 rounding.
func IDCT4x4(b *[16]int32) {
	for i := 0; i < 16; i += 4 {
		d0, d1, d2, d3 := b[i], b[i+1], b[i+2], b[i+3]
		e, f := d0+d2, d0-d2
		g, h := d1>>1-d3, d1+d3>>1
		b[i], b[i+1], b[i+2], b[i+3] = e+h, f+g, f-g, e-h
	}
	for j := 0; j < 4; j++ {
		d0, d1, d2, d3 := b[j], b[4+j], b[8+j], b[12+j]
		e, f := d0+d2, d0-d2
		g, h := d1>>1-d3, d1+d3>>1
		b[j] = (e + h + 32) >> 6
		b[4+j] = (f + g + 32) >> 6
		b[8+j] = (f - g + 32) >> 6
		b[12+j] = (e - h + 32) >> 6
	}
}

func idct8(d *[8]int32) {
	a0 := d[0] + d[4]
	a4 := d[0] - d[4]
	a2 := d[2]>>1 - d[6]
	a6 := d[2] + d[6]>>1
	b0, b2, b4, b6 := a0+a6, a4+a2, a4-a2, a0-a6
	a1 := -d[3] + d[5] - d[7] - d[7]>>1
	a3 := d[1] + d[7] - d[3] - d[3]>>1
	a5 := -d[1] + d[7] + d[5] + d[5]>>1
	a7 := d[3] + d[5] + d[1] + d[1]>>1
	b1 := a1 + a7>>2
	b7 := a7 - a1>>2
	b3 := a3 + a5>>2
	b5 := a3>>2 - a5
	d[0], d[1], d[2], d[3] = b0+b7, b2+b5, b4+b3, b6+b1
	d[4], d[5], d[6], d[7] = b6-b1, b4-b3, b2-b5, b0-b7
}

// IDCT8x8 applies the inverse 8x8 transform in place.
func IDCT8x8(b *[64]int32) {
	var v [8]int32
	for i := 0; i < 64; i += 8 {
		copy(v[:], b[i:i+8])
		idct8(&v)
		copy(b[i:i+8], v[:])
	}
	for j := 0; j < 8; j++ {
		for i := range v {
			v[i] = b[i*8+j]
		}
		idct8(&v)
		for i := range v {
			b[i*8+j] = (v[i] + 32) >> 6
		}
	}
}

// chromaQP maps qPI to QPc.
var chromaQPTable = [22]int{29, 30, 31, 32, 32, 33, 34, 34, 35, 35, 36, 36, 37, 37, 37, 38, 38, 38, 39, 39, 39, 39}

// ChromaQP returns QPc for a luma QP and chroma_qp_index_offset.
func ChromaQP(qp, offset int) int {
	qpi := clampInt(qp+offset, 0, 51)
	if qpi < 30 {
		return qpi
	}
	return chromaQPTable[qpi-30]
}

// addResidual adds an n-wide residual block in raster order to dst.
func addResidual(dst []uint8, stride int, res []int32, n int) {
	for y := 0; y < n; y++ {
		row := dst[y*stride : y*stride+n]
		for x := range row {
			row[x] = clip1(int(row[x]) + int(res[y*n+x]))
		}
	}
}
