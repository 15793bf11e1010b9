package recon

import "github.com/deepteams/vcodec/internal/h264"

var alphaTable = [52]int{
	0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
	4, 4, 5, 6, 7, 8, 9, 10, 12, 13, 15, 17, 20, 22, 25, 28,
	32, 36, 40, 45, 50, 56, 63, 71, 80, 90, 101, 113, 127, 144, 162, 182,
	203, 226, 255, 255,
}

var betaTable = [52]int{
	0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
	2, 2, 2, 3, 3, 3, 3, 4, 4, 4, 6, 6, 7, 7, 8, 8,
	9, 9, 10, 10, 11, 11, 12, 12, 13, 13, 14, 14, 15, 15, 16, 16,
	17, 17, 18, 18,
}

// tc0Table is indexed by indexA and bS-1.
var tc0Table = [52][3]int{
	{0, 0, 0}, {0, 0, 0}, {0, 0, 0}, {0, 0, 0}, {0, 0, 0}, {0, 0, 0}, {0, 0, 0}, {0, 0, 0},
	{0, 0, 0}, {0, 0, 0}, {0, 0, 0}, {0, 0, 0}, {0, 0, 0}, {0, 0, 0}, {0, 0, 0}, {0, 0, 0},
	{0, 0, 0}, {0, 0, 1}, {0, 0, 1}, {0, 0, 1}, {0, 0, 1}, {0, 1, 1}, {0, 1, 1}, {1, 1, 1},
	{1, 1, 1}, {1, 1, 1}, {1, 1, 1}, {1, 1, 2}, {1, 1, 2}, {1, 1, 2}, {1, 1, 2}, {1, 2, 3},
	{1, 2, 3}, {2, 2, 3}, {2, 2, 4}, {2, 3, 4}, {2, 3, 4}, {3, 3, 5}, {3, 4, 6}, {3, 4, 6},
	{4, 5, 7}, {4, 5, 8}, {4, 6, 9}, {5, 7, 10}, {6, 8, 11}, {6, 8, 13}, {7, 10, 14}, {8, 11, 16},
	{9, 12, 18}, {10, 13, 20}, {11, 15, 23}, {13, 17, 25},
}

// Deblock runs the loop filter over every decoded macroblock of the
// picture, in address order.
func Deblock(p *Picture) {
	var bs [2][4][4]int
	for addr := range p.mbs {
		q := &p.mbs[addr]
		if !q.decoded || q.deblock.disable == 1 {
			continue
		}
		mbx, mby := addr%p.MbWidth, addr/p.MbWidth
		for dir := 0; dir < 2; dir++ {
			var nb *mbState
			if dir == 0 && mbx > 0 {
				nb = &p.mbs[addr-1]
			} else if dir == 1 && mby > 0 {
				nb = &p.mbs[addr-p.MbWidth]
			}
			if nb != nil && (!nb.decoded || (q.deblock.disable == 2 && nb.slice != q.slice)) {
				nb = nil
			}
			for e := 0; e < 4; e++ {
				for k := 0; k < 4; k++ {
					bs[dir][e][k] = boundaryStrength(q, nb, dir, e, k)
				}
			}
			p.filterLuma(q, nb, mbx, mby, dir, &bs[dir])
			if p.Chroma {
				p.filterChroma(q, nb, mbx, mby, dir, &bs[dir])
			}
		}
	}
}

// boundaryStrength returns bS for the k-th 4x4 block along edge e of the
// macroblock. dir 0 is a vertical edge. A zero bS disables filtering.
func boundaryStrength(q, nb *mbState, dir, e, k int) int {
	if e == 0 && nb == nil {
		return 0
	}
	if e&1 == 1 && q.t8x8 {
		return 0
	}
	x, y := e, k
	if dir == 1 {
		x, y = k, e
	}
	bq := h264.BlockIndex(x, y)
	p, bp := q, 0
	switch {
	case e > 0 && dir == 0:
		bp = h264.BlockIndex(x-1, y)
	case e > 0:
		bp = h264.BlockIndex(x, y-1)
	case dir == 0:
		p, bp = nb, h264.BlockIndex(3, y)
	default:
		p, bp = nb, h264.BlockIndex(x, 3)
	}
	switch {
	case p.intra || q.intra:
		if e == 0 {
			return 4
		}
		return 3
	case p.nz&(1<<bp) != 0 || q.nz&(1<<bq) != 0:
		return 2
	case motionDiffers(p, bp, q, bq):
		return 1
	}
	return 0
}

func mvFar(a, b h264.MV) bool {
	dx, dy := int(a.X)-int(b.X), int(a.Y)-int(b.Y)
	return dx >= 4 || dx <= -4 || dy >= 4 || dy <= -4
}

func motionDiffers(p *mbState, bp int, q *mbState, bq int) bool {
	p0, p1 := p.ref[0][bp], p.ref[1][bp]
	q0, q1 := q.ref[0][bq], q.ref[1][bq]
	np, nq := countRefs(p0, p1), countRefs(q0, q1)
	if np != nq {
		return true
	}
	if np == 1 {
		rp, mp := p0, p.mv[0][bp]
		if rp == nil {
			rp, mp = p1, p.mv[1][bp]
		}
		rq, mq := q0, q.mv[0][bq]
		if rq == nil {
			rq, mq = q1, q.mv[1][bq]
		}
		return rp != rq || mvFar(mp, mq)
	}
	if np == 0 {
		return false
	}
	pm0, pm1, qm0, qm1 := p.mv[0][bp], p.mv[1][bp], q.mv[0][bq], q.mv[1][bq]
	if !(p0 == q0 && p1 == q1) && !(p0 == q1 && p1 == q0) {
		return true
	}
	if p0 != p1 {
		if p0 == q0 {
			return mvFar(pm0, qm0) || mvFar(pm1, qm1)
		}
		return mvFar(pm0, qm1) || mvFar(pm1, qm0)
	}
	return (mvFar(pm0, qm0) || mvFar(pm1, qm1)) && (mvFar(pm0, qm1) || mvFar(pm1, qm0))
}

func countRefs(a, b *Picture) int {
	n := 0
	if a != nil {
		n++
	}
	if b != nil {
		n++
	}
	return n
}

type edgeFilter struct {
	alpha, beta int
	indexA      int
}

func newEdgeFilter(qp int, d deblockParams) edgeFilter {
	ia := clampInt(qp+d.alphaOffset, 0, 51)
	ib := clampInt(qp+d.betaOffset, 0, 51)
	return edgeFilter{alpha: alphaTable[ia], beta: betaTable[ib], indexA: ia}
}

func (p *Picture) filterLuma(q, nb *mbState, mbx, mby, dir int, bs *[4][4]int) {
	for e := 0; e < 4; e++ {
		qp := q.qp
		if e == 0 {
			if nb == nil {
				continue
			}
			qp = (nb.qp + q.qp + 1) >> 1
		}
		f := newEdgeFilter(qp, q.deblock)
		for i := 0; i < 16; i++ {
			s := bs[e][i>>2]
			if s == 0 {
				continue
			}
			x, y, step := mbx*16+4*e, mby*16+i, 1
			if dir == 1 {
				x, y, step = mbx*16+i, mby*16+4*e, p.YStride
			}
			f.filter(p.Y, y*p.YStride+x, step, s, false)
		}
	}
}

func (p *Picture) filterChroma(q, nb *mbState, mbx, mby, dir int, bs *[4][4]int) {
	for _, e := range [2]int{0, 2} {
		if e == 0 && nb == nil {
			continue
		}
		for c, plane := range [2][]uint8{p.Cb, p.Cr} {
			qp := q.chromaQP[c]
			if e == 0 {
				qp = (nb.chromaQP[c] + q.chromaQP[c] + 1) >> 1
			}
			f := newEdgeFilter(qp, q.deblock)
			for i := 0; i < 8; i++ {
				s := bs[e][i>>1]
				if s == 0 {
					continue
				}
				x, y, step := mbx*8+2*e, mby*8+i, 1
				if dir == 1 {
					x, y, step = mbx*8+i, mby*8+2*e, p.CStride
				}
				f.filter(plane, y*p.CStride+x, step, s, true)
			}
		}
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// filter applies the edge filter to one line of samples across the edge;
// q0 is the first sample past the edge and step the distance between
// samples of the line.
func (f *edgeFilter) filter(b []uint8, q0 int, step, bS int, chroma bool) {
	p0, p1 := int(b[q0-step]), int(b[q0-2*step])
	qv0, qv1 := int(b[q0]), int(b[q0+step])
	if abs(p0-qv0) >= f.alpha || abs(p1-p0) >= f.beta || abs(qv1-qv0) >= f.beta {
		return
	}
	var p2, q2 int
	var ap, aq int
	if !chroma {
		p2, q2 = int(b[q0-3*step]), int(b[q0+2*step])
		ap, aq = abs(p2-p0), abs(q2-qv0)
	}
	if bS < 4 {
		tc0 := tc0Table[f.indexA][bS-1]
		tc := tc0 + 1
		if !chroma {
			tc = tc0
			if ap < f.beta {
				tc++
			}
			if aq < f.beta {
				tc++
			}
		}
		delta := clampInt((((qv0-p0)<<2)+(p1-qv1)+4)>>3, -tc, tc)
		b[q0-step] = clip1(p0 + delta)
		b[q0] = clip1(qv0 - delta)
		if !chroma {
			if ap < f.beta {
				b[q0-2*step] = uint8(p1 + clampInt((p2+((p0+qv0+1)>>1)-(p1<<1))>>1, -tc0, tc0))
			}
			if aq < f.beta {
				b[q0+step] = uint8(qv1 + clampInt((q2+((p0+qv0+1)>>1)-(qv1<<1))>>1, -tc0, tc0))
			}
		}
		return
	}
	if chroma {
		b[q0-step] = uint8((2*p1 + p0 + qv1 + 2) >> 2)
		b[q0] = uint8((2*qv1 + qv0 + p1 + 2) >> 2)
		return
	}
	strong := abs(p0-qv0) < (f.alpha>>2)+2
	if ap < f.beta && strong {
		p3 := int(b[q0-4*step])
		b[q0-step] = uint8((p2 + 2*p1 + 2*p0 + 2*qv0 + qv1 + 4) >> 3)
		b[q0-2*step] = uint8((p2 + p1 + p0 + qv0 + 2) >> 2)
		b[q0-3*step] = uint8((2*p3 + 3*p2 + p1 + p0 + qv0 + 4) >> 3)
	} else {
		b[q0-step] = uint8((2*p1 + p0 + qv1 + 2) >> 2)
	}
	if aq < f.beta && strong {
		q3 := int(b[q0+3*step])
		b[q0] = uint8((p1 + 2*p0 + 2*qv0 + 2*qv1 + q2 + 4) >> 3)
		b[q0+step] = uint8((p0 + qv0 + qv1 + q2 + 2) >> 2)
		b[q0+2*step] = uint8((2*q3 + 3*q2 + qv1 + qv0 + p0 + 4) >> 3)
	} else {
		b[q0] = uint8((2*qv1 + qv0 + p1 + 2) >> 2)
	}
}
