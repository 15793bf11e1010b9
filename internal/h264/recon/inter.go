package recon

import "github.com/deepteams/vcodec/internal/h264"

// tapH returns the unscaled 6-tap value between (x, y) and (x+1, y).
func (p *Picture) tapH(x, y int) int {
	return p.lumaAt(x-2, y) - 5*p.lumaAt(x-1, y) + 20*p.lumaAt(x, y) +
		20*p.lumaAt(x+1, y) - 5*p.lumaAt(x+2, y) + p.lumaAt(x+3, y)
}

// tapV returns the unscaled 6-tap value between (x, y) and (x, y+1).
func (p *Picture) tapV(x, y int) int {
	return p.lumaAt(x, y-2) - 5*p.lumaAt(x, y-1) + 20*p.lumaAt(x, y) +
		20*p.lumaAt(x, y+1) - 5*p.lumaAt(x, y+2) + p.lumaAt(x, y+3)
}

func (p *Picture) halfH(x, y int) int { return int(clip1((p.tapH(x, y) + 16) >> 5)) }
func (p *Picture) halfV(x, y int) int { return int(clip1((p.tapV(x, y) + 16) >> 5)) }

// center returns the sample at (x+1/2, y+1/2).
func (p *Picture) center(x, y int) int {
	j := p.tapH(x, y-2) - 5*p.tapH(x, y-1) + 20*p.tapH(x, y) +
		20*p.tapH(x, y+1) - 5*p.tapH(x, y+2) + p.tapH(x, y+3)
	return int(clip1((j + 512) >> 10))
}

func avg(a, b int) int { return (a + b + 1) >> 1 }

// lumaSample interpolates the reference at integer position (x, y) plus a
// quarter-sample fraction (fx, fy).
func (p *Picture) lumaSample(x, y, fx, fy int) int {
	switch fx<<2 | fy {
	case 0:
		return p.lumaAt(x, y)
	case 1:
		return avg(p.lumaAt(x, y), p.halfV(x, y))
	case 2:
		return p.halfV(x, y)
	case 3:
		return avg(p.lumaAt(x, y+1), p.halfV(x, y))
	case 4:
		return avg(p.lumaAt(x, y), p.halfH(x, y))
	case 5:
		return avg(p.halfH(x, y), p.halfV(x, y))
	case 6:
		return avg(p.halfV(x, y), p.center(x, y))
	case 7:
		return avg(p.halfV(x, y), p.halfH(x, y+1))
	case 8:
		return p.halfH(x, y)
	case 9:
		return avg(p.halfH(x, y), p.center(x, y))
	case 10:
		return p.center(x, y)
	case 11:
		return avg(p.center(x, y), p.halfH(x, y+1))
	case 12:
		return avg(p.lumaAt(x+1, y), p.halfH(x, y))
	case 13:
		return avg(p.halfH(x, y), p.halfV(x+1, y))
	case 14:
		return avg(p.center(x, y), p.halfV(x+1, y))
	}
	return avg(p.halfV(x+1, y), p.halfH(x, y+1))
}

// predLuma fills dst (w*h samples, raster) with the motion-compensated luma
// block at picture position (x, y).
func predLuma(dst []int, ref *Picture, x, y, w, h int, mv h264.MV) {
	bx, by := x+int(mv.X>>2), y+int(mv.Y>>2)
	fx, fy := int(mv.X&3), int(mv.Y&3)
	for j := 0; j < h; j++ {
		for i := 0; i < w; i++ {
			dst[j*w+i] = ref.lumaSample(bx+i, by+j, fx, fy)
		}
	}
}

// predChroma is predLuma for a 4:2:0 chroma plane. Motion vectors are in
// eighth chroma samples.
func predChroma(dst []int, ref *Picture, plane []uint8, x, y, w, h int, mv h264.MV) {
	bx, by := x+int(mv.X>>3), y+int(mv.Y>>3)
	fx, fy := int(mv.X&7), int(mv.Y&7)
	for j := 0; j < h; j++ {
		for i := 0; i < w; i++ {
			a := ref.chromaAt(plane, bx+i, by+j)
			b := ref.chromaAt(plane, bx+i+1, by+j)
			c := ref.chromaAt(plane, bx+i, by+j+1)
			d := ref.chromaAt(plane, bx+i+1, by+j+1)
			dst[j*w+i] = ((8-fx)*(8-fy)*a + fx*(8-fy)*b + (8-fx)*fy*c + fx*fy*d + 32) >> 6
		}
	}
}

// weight is one explicit weighting factor.
type weight struct {
	w, o  int
	logWD int
}

func defaultWeight(logWD int) weight { return weight{w: 1 << logWD, logWD: logWD} }

// weightFor returns the explicit weight of refIdx in the table for
// component c (0 luma, 1 Cb, 2 Cr).
func weightFor(t *h264.PredWeightTable, list, refIdx, c int) weight {
	entries := t.L0
	if list == 1 {
		entries = t.L1
	}
	logWD := int(t.LumaLog2Denom)
	if c > 0 {
		logWD = int(t.ChromaLog2Denom)
	}
	if refIdx >= len(entries) {
		return defaultWeight(logWD)
	}
	e := &entries[refIdx]
	switch {
	case c == 0 && e.LumaFlag:
		return weight{w: int(e.LumaWeight), o: int(e.LumaOffset), logWD: logWD}
	case c > 0 && e.ChromaFlag:
		return weight{w: int(e.ChromaWeight[c-1]), o: int(e.ChromaOffset[c-1]), logWD: logWD}
	}
	return defaultWeight(logWD)
}

func weightOne(v int, w weight) uint8 {
	if w.logWD >= 1 {
		return clip1((v*w.w+1<<(w.logWD-1))>>w.logWD + w.o)
	}
	return clip1(v*w.w + w.o)
}

func weightBi(v0, v1 int, w0, w1 weight) uint8 {
	return clip1((v0*w0.w+v1*w1.w+1<<w0.logWD)>>(w0.logWD+1) + (w0.o+w1.o+1)>>1)
}

// store writes a w*h prediction into dst.
func store(dst []uint8, stride int, src []int, w, h int) {
	for j := 0; j < h; j++ {
		for i := 0; i < w; i++ {
			dst[j*stride+i] = uint8(src[j*w+i])
		}
	}
}
