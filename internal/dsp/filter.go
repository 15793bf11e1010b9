package dsp

// Loop filters. Each entry point takes the plane, the offset of the first
// sample on the q side of the edge and the plane stride. thresh is the
// edge limit, ithresh the interior limit and hevT the high edge variance
// threshold.

// taps reads the eight samples straddling an edge at off.
type taps struct {
	p3, p2, p1, p0, q0, q1, q2, q3 int
}

func load(p []byte, off, step int) taps {
	return taps{
		p3: int(p[off-4*step]), p2: int(p[off-3*step]),
		p1: int(p[off-2*step]), p0: int(p[off-step]),
		q0: int(p[off]), q1: int(p[off+step]),
		q2: int(p[off+2*step]), q3: int(p[off+3*step]),
	}
}

// simpleEdge reports whether 4*|p0-q0| + |p1-q1| stays within the limit.
func simpleEdge(p1, p0, q0, q1, limit int) bool {
	return 4*int(Kabs0(p0-q0))+int(Kabs0(p1-q1)) <= limit
}

func (t *taps) normalEdge(limit, ilimit int) bool {
	if !simpleEdge(t.p1, t.p0, t.q0, t.q1, limit) {
		return false
	}
	for _, d := range [...]int{t.p3 - t.p2, t.p2 - t.p1, t.p1 - t.p0, t.q3 - t.q2, t.q2 - t.q1, t.q1 - t.q0} {
		if int(Kabs0(d)) > ilimit {
			return false
		}
	}
	return true
}

func (t *taps) hev(thresh int) bool {
	return int(Kabs0(t.p1-t.p0)) > thresh || int(Kabs0(t.q1-t.q0)) > thresh
}

// common adjusts p0 and q0 only, using the outer taps in the filter value.
func common(p []byte, off, step int) {
	p1, p0 := int(p[off-2*step]), int(p[off-step])
	q0, q1 := int(p[off]), int(p[off+step])
	a := 3*(q0-p0) + int(Ksclip1(p1-q1))
	f1 := int(Ksclip2((a + 4) >> 3))
	f2 := int(Ksclip2((a + 3) >> 3))
	p[off-step] = Kclip1(p0 + f2)
	p[off] = Kclip1(q0 - f1)
}

// subblock adjusts two samples on each side of an inner edge.
func subblock(p []byte, off, step int, t *taps) {
	a := 3 * (t.q0 - t.p0)
	f1 := int(Ksclip2((a + 4) >> 3))
	f2 := int(Ksclip2((a + 3) >> 3))
	f3 := (f1 + 1) >> 1
	p[off-2*step] = Kclip1(t.p1 + f3)
	p[off-step] = Kclip1(t.p0 + f2)
	p[off] = Kclip1(t.q0 - f1)
	p[off+step] = Kclip1(t.q1 - f3)
}

// macroblock adjusts three samples on each side of a macroblock edge.
func macroblock(p []byte, off, step int, t *taps) {
	a := int(Ksclip1(3*(t.q0-t.p0) + int(Ksclip1(t.p1-t.q1))))
	w := [3]int{(27*a + 63) >> 7, (18*a + 63) >> 7, (9*a + 63) >> 7}
	p[off-3*step] = Kclip1(t.p2 + w[2])
	p[off-2*step] = Kclip1(t.p1 + w[1])
	p[off-step] = Kclip1(t.p0 + w[0])
	p[off] = Kclip1(t.q0 - w[0])
	p[off+step] = Kclip1(t.q1 - w[1])
	p[off+2*step] = Kclip1(t.q2 - w[2])
}

// normalLoop filters size samples along an edge. step crosses the edge and
// advance moves along it.
func normalLoop(p []byte, off, step, advance, size, thresh, ithresh, hevT int, mbEdge bool) {
	limit := 2*thresh + 1
	for i := 0; i < size; i, off = i+1, off+advance {
		t := load(p, off, step)
		if !t.normalEdge(limit, ithresh) {
			continue
		}
		switch {
		case t.hev(hevT):
			common(p, off, step)
		case mbEdge:
			macroblock(p, off, step, &t)
		default:
			subblock(p, off, step, &t)
		}
	}
}

func simpleLoop(p []byte, off, step, advance, thresh int) {
	limit := 2*thresh + 1
	for i := 0; i < 16; i, off = i+1, off+advance {
		if simpleEdge(int(p[off-2*step]), int(p[off-step]), int(p[off]), int(p[off+step]), limit) {
			common(p, off, step)
		}
	}
}

// SimpleVFilter16 filters the horizontal edge above the row at base.
func SimpleVFilter16(p []byte, base, stride, thresh int) {
	simpleLoop(p, base, stride, 1, thresh)
}

// SimpleHFilter16 filters the vertical edge left of the column at base.
func SimpleHFilter16(p []byte, base, stride, thresh int) {
	simpleLoop(p, base, 1, stride, thresh)
}

// SimpleVFilter16i filters the three inner horizontal edges of the
// macroblock whose top-left sample is at base.
func SimpleVFilter16i(p []byte, base, stride, thresh int) {
	for k := 4; k < 16; k += 4 {
		simpleLoop(p, base+k*stride, stride, 1, thresh)
	}
}

// SimpleHFilter16i filters the three inner vertical edges.
func SimpleHFilter16i(p []byte, base, stride, thresh int) {
	for k := 4; k < 16; k += 4 {
		simpleLoop(p, base+k, 1, stride, thresh)
	}
}

func VFilter16(p []byte, base, stride, thresh, ithresh, hevT int) {
	normalLoop(p, base, stride, 1, 16, thresh, ithresh, hevT, true)
}

func HFilter16(p []byte, base, stride, thresh, ithresh, hevT int) {
	normalLoop(p, base, 1, stride, 16, thresh, ithresh, hevT, true)
}

func VFilter16i(p []byte, base, stride, thresh, ithresh, hevT int) {
	for k := 4; k < 16; k += 4 {
		normalLoop(p, base+k*stride, stride, 1, 16, thresh, ithresh, hevT, false)
	}
}

func HFilter16i(p []byte, base, stride, thresh, ithresh, hevT int) {
	for k := 4; k < 16; k += 4 {
		normalLoop(p, base+k, 1, stride, 16, thresh, ithresh, hevT, false)
	}
}

// VFilter8 filters the top macroblock edge of both chroma planes.
func VFilter8(u, v []byte, uBase, vBase, stride, thresh, ithresh, hevT int) {
	normalLoop(u, uBase, stride, 1, 8, thresh, ithresh, hevT, true)
	normalLoop(v, vBase, stride, 1, 8, thresh, ithresh, hevT, true)
}

func HFilter8(u, v []byte, uBase, vBase, stride, thresh, ithresh, hevT int) {
	normalLoop(u, uBase, 1, stride, 8, thresh, ithresh, hevT, true)
	normalLoop(v, vBase, 1, stride, 8, thresh, ithresh, hevT, true)
}

// VFilter8i filters the single inner horizontal edge of both chroma
// planes.
func VFilter8i(u, v []byte, uBase, vBase, stride, thresh, ithresh, hevT int) {
	normalLoop(u, uBase+4*stride, stride, 1, 8, thresh, ithresh, hevT, false)
	normalLoop(v, vBase+4*stride, stride, 1, 8, thresh, ithresh, hevT, false)
}

func HFilter8i(u, v []byte, uBase, vBase, stride, thresh, ithresh, hevT int) {
	normalLoop(u, uBase+4, 1, stride, 8, thresh, ithresh, hevT, false)
	normalLoop(v, vBase+4, 1, stride, 8, thresh, ithresh, hevT, false)
}
