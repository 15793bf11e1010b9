package dsp

// Interp selects the sub-pixel interpolation filter of an inter
// prediction.
type Interp int

const (
	SixTap Interp = iota
	Bilinear
)

// sixTap holds the filter taps for each eighth-sample position. Odd
// positions only occur for chroma.
var sixTap = [8][6]int{
	{0, 0, 128, 0, 0, 0},
	{0, -6, 123, 12, -1, 0},
	{2, -11, 108, 36, -8, 1},
	{0, -9, 93, 50, -6, 0},
	{3, -16, 77, 77, -16, 3},
	{0, -6, 50, 93, -9, 0},
	{1, -8, 36, 108, -11, 2},
	{0, -1, 12, 123, -6, 0},
}

// RefPlane is a reference picture plane. Reads outside W x H repeat the
// nearest edge sample.
type RefPlane struct {
	Pix    []byte
	Stride int
	W, H   int
}

func (r *RefPlane) at(x, y int) int {
	x = clampInt(x, 0, r.W-1)
	y = clampInt(y, 0, r.H-1)
	return int(r.Pix[y*r.Stride+x])
}

// margin is the number of extra samples the six-tap filter needs before
// (2) and after (3) the block in each direction.
const margin = 5

// PredictBlock writes the w x h block located at (x, y) in ref, displaced
// by the fractions fx and fy in eighths of a sample, to dst.
func PredictBlock(dst []byte, dstOff, dstStride int, ref *RefPlane, x, y, fx, fy, w, h int, kind Interp) {
	if fx == 0 && fy == 0 {
		for j := 0; j < h; j++ {
			row := dst[dstOff+j*dstStride : dstOff+j*dstStride+w]
			if y+j >= 0 && y+j < ref.H && x >= 0 && x+w <= ref.W {
				copy(row, ref.Pix[(y+j)*ref.Stride+x:])
				continue
			}
			for i := range row {
				row[i] = uint8(ref.at(x+i, y+j))
			}
		}
		return
	}
	sw, sh := w+margin, h+margin
	src := make([]int, sw*sh)
	for j := 0; j < sh; j++ {
		for i := 0; i < sw; i++ {
			src[j*sw+i] = ref.at(x+i-2, y+j-2)
		}
	}
	// First pass: horizontal, over every row the vertical pass reads.
	mid := make([]int, w*sh)
	for j := 0; j < sh; j++ {
		for i := 0; i < w; i++ {
			mid[j*w+i] = tap(src[j*sw+i:], 1, fx, kind)
		}
	}
	for j := 0; j < h; j++ {
		for i := 0; i < w; i++ {
			dst[dstOff+j*dstStride+i] = uint8(tap(mid[j*w+i:], w, fy, kind))
		}
	}
}

// tap filters six samples spaced step apart, starting two before the
// output position, for sixTap; bilinear uses the centre pair.
func tap(s []int, step, frac int, kind Interp) int {
	var sum int
	if kind == Bilinear {
		sum = s[2*step]*(128-16*frac) + s[3*step]*16*frac
	} else {
		f := &sixTap[frac]
		for k := 0; k < 6; k++ {
			sum += s[k*step] * f[k]
		}
	}
	return int(Clip8b((sum + 64) >> 7))
}
