package recon

import (
	"github.com/deepteams/vcodec/internal/codecerr"
	"github.com/deepteams/vcodec/internal/h264"
)

// edges holds the neighbouring samples of a prediction block: top[x] is
// p[x,-1], left[y] is p[-1,y].
type edges struct {
	top        [32]int
	left       [16]int
	topLeft    int
	hasTop     bool
	hasLeft    bool
	hasTopLeft bool
}

func (e *edges) t(x int) int {
	if x < 0 {
		return e.topLeft
	}
	return e.top[x]
}

func (e *edges) l(y int) int {
	if y < 0 {
		return e.topLeft
	}
	return e.left[y]
}

// gather reads the edges of the n-wide block at (x, y). topLen samples are
// read from the top row; with !hasTopRight the samples beyond n repeat
// p[n-1,-1].
func gather(e *edges, plane []uint8, stride, x, y, n, topLen int, top, left, topLeft, topRight bool) {
	e.hasTop, e.hasLeft, e.hasTopLeft = top, left, topLeft
	if top {
		row := plane[(y-1)*stride+x:]
		for i := 0; i < topLen; i++ {
			if i >= n && !topRight {
				e.top[i] = e.top[n-1]
				continue
			}
			e.top[i] = int(row[i])
		}
	}
	if left {
		for j := 0; j < n; j++ {
			e.left[j] = int(plane[(y+j)*stride+x-1])
		}
	}
	if topLeft {
		e.topLeft = int(plane[(y-1)*stride+x-1])
	}
}

// filter8x8 applies the reference sample filtering of 8x8 intra
// prediction.
func (e *edges) filter8x8() {
	f := *e
	if e.hasTop {
		if e.hasTopLeft {
			f.top[0] = (e.topLeft + 2*e.top[0] + e.top[1] + 2) >> 2
		} else {
			f.top[0] = (3*e.top[0] + e.top[1] + 2) >> 2
		}
		for x := 1; x < 15; x++ {
			f.top[x] = (e.top[x-1] + 2*e.top[x] + e.top[x+1] + 2) >> 2
		}
		f.top[15] = (e.top[14] + 3*e.top[15] + 2) >> 2
	}
	if e.hasTopLeft {
		switch {
		case e.hasTop && e.hasLeft:
			f.topLeft = (e.top[0] + 2*e.topLeft + e.left[0] + 2) >> 2
		case e.hasTop:
			f.topLeft = (3*e.topLeft + e.top[0] + 2) >> 2
		case e.hasLeft:
			f.topLeft = (3*e.topLeft + e.left[0] + 2) >> 2
		}
	}
	if e.hasLeft {
		if e.hasTopLeft {
			f.left[0] = (e.topLeft + 2*e.left[0] + e.left[1] + 2) >> 2
		} else {
			f.left[0] = (3*e.left[0] + e.left[1] + 2) >> 2
		}
		for y := 1; y < 7; y++ {
			f.left[y] = (e.left[y-1] + 2*e.left[y] + e.left[y+1] + 2) >> 2
		}
		f.left[7] = (e.left[6] + 3*e.left[7] + 2) >> 2
	}
	*e = f
}

func needs(mode int, e *edges) bool {
	switch mode {
	case h264.IntraVertical, h264.IntraDiagonalDownLeft, h264.IntraVerticalLeft:
		return e.hasTop
	case h264.IntraHorizontal, h264.IntraHorizontalUp:
		return e.hasLeft
	case h264.IntraDiagonalDownRight, h264.IntraVerticalRight, h264.IntraHorizontalDown:
		return e.hasTop && e.hasLeft && e.hasTopLeft
	}
	return true
}

// predictNxN writes the 4x4 or 8x8 intra prediction of the given mode.
func predictNxN(dst []uint8, stride, n, mode int, e *edges) error {
	if mode > h264.IntraHorizontalUp || !needs(mode, e) {
		return codecerr.Malformed("intra_pred_mode", int64(mode), "prediction uses unavailable samples")
	}
	log2n := 2
	if n == 8 {
		log2n = 3
	}
	var dc int
	if mode == h264.IntraDC {
		dc = predDC(e, n, log2n)
	}
	for y := 0; y < n; y++ {
		row := dst[y*stride : y*stride+n]
		for x := range row {
			var v int
			switch mode {
			case h264.IntraVertical:
				v = e.t(x)
			case h264.IntraHorizontal:
				v = e.l(y)
			case h264.IntraDC:
				v = dc
			case h264.IntraDiagonalDownLeft:
				if x == n-1 && y == n-1 {
					v = (e.t(2*n-2) + 3*e.t(2*n-1) + 2) >> 2
				} else {
					v = (e.t(x+y) + 2*e.t(x+y+1) + e.t(x+y+2) + 2) >> 2
				}
			case h264.IntraDiagonalDownRight:
				switch {
				case x > y:
					v = (e.t(x-y-2) + 2*e.t(x-y-1) + e.t(x-y) + 2) >> 2
				case x < y:
					v = (e.l(y-x-2) + 2*e.l(y-x-1) + e.l(y-x) + 2) >> 2
				default:
					v = (e.t(0) + 2*e.topLeft + e.l(0) + 2) >> 2
				}
			case h264.IntraVerticalRight:
				z := 2*x - y
				switch {
				case z >= 0 && z&1 == 0:
					v = (e.t(x-y>>1-1) + e.t(x-y>>1) + 1) >> 1
				case z >= 0:
					v = (e.t(x-y>>1-2) + 2*e.t(x-y>>1-1) + e.t(x-y>>1) + 2) >> 2
				case z == -1:
					v = (e.l(0) + 2*e.topLeft + e.t(0) + 2) >> 2
				default:
					v = (e.l(y-2*x-1) + 2*e.l(y-2*x-2) + e.l(y-2*x-3) + 2) >> 2
				}
			case h264.IntraHorizontalDown:
				z := 2*y - x
				switch {
				case z >= 0 && z&1 == 0:
					v = (e.l(y-x>>1-1) + e.l(y-x>>1) + 1) >> 1
				case z >= 0:
					v = (e.l(y-x>>1-2) + 2*e.l(y-x>>1-1) + e.l(y-x>>1) + 2) >> 2
				case z == -1:
					v = (e.l(0) + 2*e.topLeft + e.t(0) + 2) >> 2
				default:
					v = (e.t(x-2*y-1) + 2*e.t(x-2*y-2) + e.t(x-2*y-3) + 2) >> 2
				}
			case h264.IntraVerticalLeft:
				i := x + y>>1
				if y&1 == 0 {
					v = (e.t(i) + e.t(i+1) + 1) >> 1
				} else {
					v = (e.t(i) + 2*e.t(i+1) + e.t(i+2) + 2) >> 2
				}
			case h264.IntraHorizontalUp:
				z := x + 2*y
				i := y + x>>1
				switch {
				case z > 2*n-3:
					v = e.l(n - 1)
				case z == 2*n-3:
					v = (e.l(n-2) + 3*e.l(n-1) + 2) >> 2
				case z&1 == 0:
					v = (e.l(i) + e.l(i+1) + 1) >> 1
				default:
					v = (e.l(i) + 2*e.l(i+1) + e.l(i+2) + 2) >> 2
				}
			}
			row[x] = uint8(v)
		}
	}
	return nil
}

func predDC(e *edges, n, log2n int) int {
	st, sl := 0, 0
	for i := 0; i < n; i++ {
		st += e.top[i]
		sl += e.left[i]
	}
	switch {
	case e.hasTop && e.hasLeft:
		return (st + sl + n) >> (log2n + 1)
	case e.hasLeft:
		return (sl + n>>1) >> log2n
	case e.hasTop:
		return (st + n>>1) >> log2n
	}
	return 128
}

// predict16x16 writes the Intra16x16 luma prediction.
func predict16x16(dst []uint8, stride, mode int, e *edges) error {
	switch mode {
	case h264.Intra16x16Vertical:
		if !e.hasTop {
			break
		}
		for y := 0; y < 16; y++ {
			for x := 0; x < 16; x++ {
				dst[y*stride+x] = uint8(e.top[x])
			}
		}
		return nil
	case h264.Intra16x16Horizontal:
		if !e.hasLeft {
			break
		}
		for y := 0; y < 16; y++ {
			for x := 0; x < 16; x++ {
				dst[y*stride+x] = uint8(e.left[y])
			}
		}
		return nil
	case h264.Intra16x16DC:
		v := uint8(predDC(e, 16, 4))
		for y := 0; y < 16; y++ {
			for x := 0; x < 16; x++ {
				dst[y*stride+x] = v
			}
		}
		return nil
	case h264.Intra16x16Plane:
		if !e.hasTop || !e.hasLeft || !e.hasTopLeft {
			break
		}
		plane(dst, stride, 16, 5, e)
		return nil
	}
	return codecerr.Malformed("intra16x16_pred_mode", int64(mode), "prediction uses unavailable samples")
}

// plane writes the plane prediction for a 16x16 luma (scale 5) or 8x8
// chroma (scale 34) block.
func plane(dst []uint8, stride, n, scale int, e *edges) {
	half := n / 2
	h, v := 0, 0
	for i := 0; i < half; i++ {
		h += (i + 1) * (e.t(half+i) - e.t(half-2-i))
		v += (i + 1) * (e.l(half+i) - e.l(half-2-i))
	}
	a := 16 * (e.left[n-1] + e.top[n-1])
	b, c := (scale*h+32)>>6, (scale*v+32)>>6
	for y := 0; y < n; y++ {
		for x := 0; x < n; x++ {
			dst[y*stride+x] = clip1((a + b*(x-half+1) + c*(y-half+1) + 16) >> 5)
		}
	}
}

// predictChroma writes the 8x8 chroma prediction of a 4:2:0 macroblock.
func predictChroma(dst []uint8, stride, mode int, e *edges) error {
	switch mode {
	case h264.ChromaDC:
		for blk := 0; blk < 4; blk++ {
			xo, yo := (blk&1)*4, (blk>>1)*4
			v := uint8(chromaDC(e, xo, yo))
			for y := 0; y < 4; y++ {
				for x := 0; x < 4; x++ {
					dst[(yo+y)*stride+xo+x] = v
				}
			}
		}
		return nil
	case h264.ChromaHorizontal:
		if !e.hasLeft {
			break
		}
		for y := 0; y < 8; y++ {
			for x := 0; x < 8; x++ {
				dst[y*stride+x] = uint8(e.left[y])
			}
		}
		return nil
	case h264.ChromaVertical:
		if !e.hasTop {
			break
		}
		for y := 0; y < 8; y++ {
			for x := 0; x < 8; x++ {
				dst[y*stride+x] = uint8(e.top[x])
			}
		}
		return nil
	case h264.ChromaPlane:
		if !e.hasTop || !e.hasLeft || !e.hasTopLeft {
			break
		}
		plane(dst, stride, 8, 34, e)
		return nil
	}
	return codecerr.Malformed("intra_chroma_pred_mode", int64(mode), "prediction uses unavailable samples")
}

// chromaDC returns the DC value of the chroma 4x4 block at (xo, yo). The
// top-right block prefers the top edge, the bottom-left block the left
// edge.
func chromaDC(e *edges, xo, yo int) int {
	st, sl := 0, 0
	for i := 0; i < 4; i++ {
		st += e.top[xo+i]
		sl += e.left[yo+i]
	}
	both := e.hasTop && e.hasLeft
	switch {
	case (xo == 0 && yo == 0) || (xo > 0 && yo > 0):
		switch {
		case both:
			return (st + sl + 4) >> 3
		case e.hasLeft:
			return (sl + 2) >> 2
		case e.hasTop:
			return (st + 2) >> 2
		}
	case xo > 0:
		switch {
		case e.hasTop:
			return (st + 2) >> 2
		case e.hasLeft:
			return (sl + 2) >> 2
		}
	default:
		switch {
		case e.hasLeft:
			return (sl + 2) >> 2
		case e.hasTop:
			return (st + 2) >> 2
		}
	}
	return 128
}
