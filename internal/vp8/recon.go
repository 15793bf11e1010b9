package vp8

import "github.com/deepteams/vcodec/internal/dsp"

const (
	yOff  = dsp.BPS + 8 // luma origin inside the work buffer
	uvOff = dsp.BPS + 8 // chroma origin inside the work buffers
)

// workBuf holds one macroblock plus the row above it and the column to its
// left, with room for the four above-right samples B_PRED reads.
type workBuf struct {
	y    [dsp.BPS * 17]byte
	u, v [dsp.BPS * 9]byte
}

// checkMode replaces DC prediction by the variant matching the available
// edges.
func checkMode(mbX, mbY int, mode uint8) uint8 {
	if mode != dsp.DCPred {
		return mode
	}
	switch {
	case mbX == 0 && mbY == 0:
		return dsp.DCPredNoTopLeft
	case mbX == 0:
		return dsp.DCPredNoLeft
	case mbY == 0:
		return dsp.DCPredNoTop
	}
	return dsp.DCPred
}

// loadEdges copies the unfiltered samples around the macroblock into the
// work buffer. Outside the frame the row above reads 127 and the column to
// the left 129.
func (s *state) loadEdges(mbX, mbY int) {
	w, cur := &s.work, s.cur
	loadPlaneEdges(w.y[:], yOff, cur.y, cur.yStride, mbX, mbY, 16, mbX == s.mbW-1)
	loadPlaneEdges(w.u[:], uvOff, cur.u, cur.uvStride, mbX, mbY, 8, false)
	loadPlaneEdges(w.v[:], uvOff, cur.v, cur.uvStride, mbX, mbY, 8, false)

	aboveRight := w.y[yOff-dsp.BPS+16 : yOff-dsp.BPS+20]
	for _, row := range [3]int{3, 7, 11} {
		copy(w.y[yOff+row*dsp.BPS+16:], aboveRight)
	}
}

func loadPlaneEdges(buf []byte, off int, pix []byte, stride, mbX, mbY, size int, lastCol bool) {
	top := buf[off-dsp.BPS-1 : off-dsp.BPS+size]
	extra := 0
	if size == 16 {
		extra = 4
	}
	right := buf[off-dsp.BPS+size : off-dsp.BPS+size+extra]
	x0 := mbX * size
	if mbY == 0 {
		fillBytes(top, 127)
		fillBytes(right, 127)
	} else {
		row := pix[(mbY*size-1)*stride:]
		if mbX > 0 {
			top[0] = row[x0-1]
		} else {
			top[0] = 129
		}
		copy(top[1:], row[x0:x0+size])
		if lastCol {
			fillBytes(right, row[x0+size-1])
		} else {
			copy(right, row[x0+size:])
		}
	}
	for j := 0; j < size; j++ {
		v := byte(129)
		if mbX > 0 {
			v = pix[(mbY*size+j)*stride+x0-1]
		}
		buf[off-1+j*dsp.BPS] = v
	}
}

func fillBytes(b []byte, v byte) {
	for i := range b {
		b[i] = v
	}
}

// addLuma adds the residual of luma block b to the prediction in the work
// buffer, picking the cheapest exact inverse transform.
func (s *state) addLuma(r *residual, b int) {
	c := r.coeffs[16*b : 16*b+16]
	dst := s.work.y[yOff+dsp.Scan[b]:]
	switch {
	case r.last[b] > 3:
		dsp.Transform(c, dst, false)
	case r.last[b] > 1:
		dsp.TransformAC3(c, dst)
	case c[0] != 0:
		dsp.TransformDC(c, dst)
	}
}

func (s *state) addChroma(r *residual) {
	for ch, dst := range [2][]byte{s.work.u[uvOff:], s.work.v[uvOff:]} {
		c := r.coeffs[256+64*ch : 320+64*ch]
		full := false
		for _, n := range r.last[16+4*ch : 20+4*ch] {
			full = full || n > 1
		}
		if full {
			dsp.TransformUV(c, dst)
		} else {
			dsp.TransformDCUV(c, dst)
		}
	}
}

// interpolation returns the sub-sample filter of the bitstream version.
func (s *state) interpolation() dsp.Interp {
	if s.version == 0 {
		return dsp.SixTap
	}
	return dsp.Bilinear
}

// predictInter builds the motion compensated prediction of an inter
// macroblock in the work buffers.
func (s *state) predictInter(mb *mbInfo, mbX, mbY int) {
	ref := s.refs[mb.ref]
	ry, ru, rv := ref.refPlanes()
	kind := s.interpolation()
	w := &s.work
	if mb.ymode != modeSplitMV {
		x, y := int(mb.mv.x), int(mb.mv.y)
		dsp.PredictBlock(w.y[:], yOff, dsp.BPS, ry, mbX*16+x>>2, mbY*16+y>>2, (x&3)*2, (y&3)*2, 16, 16, kind)
		cx, cy := s.chromaMV(x), s.chromaMV(y)
		for _, p := range [2]struct {
			buf []byte
			ref *dsp.RefPlane
		}{{w.u[:], ru}, {w.v[:], rv}} {
			dsp.PredictBlock(p.buf, uvOff, dsp.BPS, p.ref, mbX*8+cx>>3, mbY*8+cy>>3, cx&7, cy&7, 8, 8, kind)
		}
		return
	}
	for b, v := range mb.bmv {
		x, y := int(v.x), int(v.y)
		bx, by := mbX*16+(b&3)*4, mbY*16+(b>>2)*4
		dsp.PredictBlock(w.y[:], yOff+dsp.Scan[b], dsp.BPS, ry, bx+x>>2, by+y>>2, (x&3)*2, (y&3)*2, 4, 4, kind)
	}
	for j := 0; j < 2; j++ {
		for i := 0; i < 2; i++ {
			b := 8*j + 2*i
			sx := int(mb.bmv[b].x) + int(mb.bmv[b+1].x) + int(mb.bmv[b+4].x) + int(mb.bmv[b+5].x)
			sy := int(mb.bmv[b].y) + int(mb.bmv[b+1].y) + int(mb.bmv[b+4].y) + int(mb.bmv[b+5].y)
			cx, cy := s.splitChromaMV(sx), s.splitChromaMV(sy)
			bx, by := mbX*8+4*i, mbY*8+4*j
			off := uvOff + 4*i + 4*j*dsp.BPS
			dsp.PredictBlock(w.u[:], off, dsp.BPS, ru, bx+cx>>3, by+cy>>3, cx&7, cy&7, 4, 4, kind)
			dsp.PredictBlock(w.v[:], off, dsp.BPS, rv, bx+cx>>3, by+cy>>3, cx&7, cy&7, 4, 4, kind)
		}
	}
}

// chromaMV converts a quarter-sample luma component into eighth-sample
// chroma units.
func (s *state) chromaMV(v int) int {
	if s.version == 3 {
		return v &^ 7
	}
	return v
}

// splitChromaMV averages the sum of four luma sub-block components,
// rounding half away from zero.
func (s *state) splitChromaMV(sum int) int {
	t := 2 * sum
	if t < 0 {
		t -= 4
	} else {
		t += 4
	}
	return s.chromaMV(t / 8)
}

// reconstruct predicts the macroblock, adds its residual and stores the
// result in the current planes.
func (s *state) reconstruct(mb *mbInfo, mbX, mbY int, r *residual) {
	w := &s.work
	if mb.isInter() {
		s.predictInter(mb, mbX, mbY)
		for b := 0; b < 16; b++ {
			s.addLuma(r, b)
		}
	} else {
		s.loadEdges(mbX, mbY)
		if mb.ymode == dsp.BPred {
			for b := 0; b < 16; b++ {
				dsp.PredLuma4[mb.bmodes[b]](w.y[:], yOff+dsp.Scan[b])
				s.addLuma(r, b)
			}
		} else {
			dsp.PredLuma16[checkMode(mbX, mbY, mb.ymode)](w.y[:], yOff)
			for b := 0; b < 16; b++ {
				s.addLuma(r, b)
			}
		}
		mode := checkMode(mbX, mbY, mb.uvmode)
		dsp.PredChroma8[mode](w.u[:], uvOff)
		dsp.PredChroma8[mode](w.v[:], uvOff)
	}
	s.addChroma(r)
	s.store(mbX, mbY)
}

// store copies the work buffer into the current planes.
func (s *state) store(mbX, mbY int) {
	w, cur := &s.work, s.cur
	for j := 0; j < 16; j++ {
		copy(cur.y[(mbY*16+j)*cur.yStride+mbX*16:][:16], w.y[yOff+j*dsp.BPS:])
	}
	for j := 0; j < 8; j++ {
		o := (mbY*8+j)*cur.uvStride + mbX*8
		copy(cur.u[o:o+8], w.u[uvOff+j*dsp.BPS:])
		copy(cur.v[o:o+8], w.v[uvOff+j*dsp.BPS:])
	}
}
