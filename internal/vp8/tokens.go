package vp8

import (
	"github.com/deepteams/vcodec/internal/bitio"
	"github.com/deepteams/vcodec/internal/dsp"
)

// nzContext records which blocks along one macroblock edge carried tokens.
type nzContext struct {
	y    [4]uint8
	u, v [2]uint8
	y2   uint8
}

// clear resets the context of a macroblock without tokens. The Y2 entry
// only belongs to macroblocks that code a Y2 block.
func (c *nzContext) clear(withY2 bool) {
	y2 := c.y2
	*c = nzContext{}
	if !withY2 {
		c.y2 = y2
	}
}

// residual is the dequantised coefficient data of one macroblock: 16 luma
// blocks, then 4 U and 4 V blocks, each in raster order. last holds one
// past the last coded position of each block.
type residual struct {
	coeffs [384]int16
	last   [24]uint8
}

func (r *residual) reset() {
	r.coeffs = [384]int16{}
	r.last = [24]uint8{}
}

// getLargeValue decodes a token magnitude of at least 2.
func getLargeValue(br *bitio.BoolReader, p *[numProbas]uint8) int {
	if br.GetBit(p[3]) == 0 {
		if br.GetBit(p[4]) == 0 {
			return 2
		}
		return 3 + br.GetBit(p[5])
	}
	if br.GetBit(p[6]) == 0 {
		if br.GetBit(p[7]) == 0 {
			return 5 + br.GetBit(159)
		}
		v := 7 + 2*br.GetBit(165)
		return v + br.GetBit(145)
	}
	bit1 := br.GetBit(p[8])
	bit0 := br.GetBit(p[9+bit1])
	cat := 2*bit1 + bit0
	v := 0
	for _, prob := range cat3456[cat] {
		v = v + v + br.GetBit(prob)
	}
	return v + 3 + (8 << uint(cat))
}

// getCoeffs decodes the tokens of one block starting at position n into out
// (raster order, dequantised with dq). It returns one past the position of
// the last token.
func getCoeffs(br *bitio.BoolReader, probas *[numBands][numCtx][numProbas]uint8, ctx int, dq [2]int, n int, out []int16) int {
	p := &probas[bands[n]][ctx]
	for ; n < 16; n++ {
		if br.GetBit(p[0]) == 0 {
			return n
		}
		for br.GetBit(p[1]) == 0 {
			n++
			if n == 16 {
				return 16
			}
			p = &probas[bands[n]][0]
		}
		next := &probas[bands[n+1]]
		var v int
		if br.GetBit(p[2]) == 0 {
			v = 1
			p = &next[1]
		} else {
			v = getLargeValue(br, p)
			p = &next[2]
		}
		out[zigzag[n]] = int16(br.GetSigned(v) * dq[min(n, 1)])
	}
	return 16
}

// parseResiduals reads the coefficient tokens of one macroblock, updating
// the edge contexts. It reports whether any block carried tokens.
func (s *state) parseResiduals(br *bitio.BoolReader, mb *mbInfo, top, left *nzContext, r *residual) bool {
	q := &s.dqm[mb.segment]
	r.reset()
	coded := false
	first, ytype := 0, typeYWithDC
	if mb.hasY2() {
		var dc [16]int16
		ctx := int(top.y2 + left.y2)
		n := getCoeffs(br, &s.proba.coeff[typeY2], ctx, q.y2, 0, dc[:])
		nz := uint8(boolInt(n > 0))
		top.y2, left.y2 = nz, nz
		coded = n > 0
		dsp.TransformWHT(dc[:], r.coeffs[:])
		first, ytype = 1, typeYAfterY2
	}
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			b := 4*y + x
			ctx := int(top.y[x] + left.y[y])
			n := getCoeffs(br, &s.proba.coeff[ytype], ctx, q.y1, first, r.coeffs[16*b:])
			nz := uint8(boolInt(n > first))
			top.y[x], left.y[y] = nz, nz
			r.last[b] = uint8(n)
			coded = coded || n > first
		}
	}
	for ch, off := range [2]int{256, 320} {
		tc, lc := &top.u, &left.u
		if ch == 1 {
			tc, lc = &top.v, &left.v
		}
		for y := 0; y < 2; y++ {
			for x := 0; x < 2; x++ {
				b := 2*y + x
				ctx := int(tc[x] + lc[y])
				n := getCoeffs(br, &s.proba.coeff[typeUV], ctx, q.uv, 0, r.coeffs[off+16*b:])
				nz := uint8(boolInt(n > 0))
				tc[x], lc[y] = nz, nz
				r.last[16+4*ch+b] = uint8(n)
				coded = coded || n > 0
			}
		}
	}
	return coded
}

// tokenSink receives the branch decisions of the coefficient token tree.
type tokenSink interface {
	// branch codes bit at node i of the probabilities for (t, b, c).
	branch(t, b, c, i, bit int)
	// literal codes bit with a fixed probability.
	literal(bit int, prob uint8)
}

// putCoeffs is the inverse of getCoeffs for levels in coding order; last
// is one past the last non-zero level.
func putCoeffs(sink tokenSink, t, ctx int, levels []int16, first, last int) {
	n := first
	for n < 16 {
		b := int(bands[n])
		if n >= last {
			sink.branch(t, b, ctx, 0, 0)
			return
		}
		sink.branch(t, b, ctx, 0, 1)
		for levels[n] == 0 {
			sink.branch(t, b, ctx, 1, 0)
			n++
			b, ctx = int(bands[n]), 0
		}
		sink.branch(t, b, ctx, 1, 1)
		v, sign := int(levels[n]), 0
		if v < 0 {
			v, sign = -v, 1
		}
		if v == 1 {
			sink.branch(t, b, ctx, 2, 0)
			ctx = 1
		} else {
			sink.branch(t, b, ctx, 2, 1)
			putLargeValue(sink, t, b, ctx, v)
			ctx = 2
		}
		sink.literal(sign, 128)
		n++
	}
}

func putLargeValue(sink tokenSink, t, b, c, v int) {
	switch {
	case v <= 4:
		sink.branch(t, b, c, 3, 0)
		if v == 2 {
			sink.branch(t, b, c, 4, 0)
			return
		}
		sink.branch(t, b, c, 4, 1)
		sink.branch(t, b, c, 5, v-3)
	case v <= 10:
		sink.branch(t, b, c, 3, 1)
		sink.branch(t, b, c, 6, 0)
		if v <= 6 {
			sink.branch(t, b, c, 7, 0)
			sink.literal(v-5, 159)
			return
		}
		sink.branch(t, b, c, 7, 1)
		sink.literal((v-7)>>1, 165)
		sink.literal((v-7)&1, 145)
	default:
		sink.branch(t, b, c, 3, 1)
		sink.branch(t, b, c, 6, 1)
		cat := 3
		switch {
		case v <= 18:
			cat = 0
		case v <= 34:
			cat = 1
		case v <= 66:
			cat = 2
		}
		sink.branch(t, b, c, 8, cat>>1)
		sink.branch(t, b, c, 9+cat>>1, cat&1)
		extra := v - 3 - 8<<uint(cat)
		tab := cat3456[cat]
		for i, prob := range tab {
			sink.literal(extra>>uint(len(tab)-1-i)&1, prob)
		}
	}
}

// tokenWriter codes tokens with the frame probabilities.
type tokenWriter struct {
	bw    *bitio.BoolWriter
	proba *proba
}

func (w tokenWriter) branch(t, b, c, i, bit int) {
	w.bw.PutBit(bit, int(w.proba.coeff[t][b][c][i]))
}

func (w tokenWriter) literal(bit int, prob uint8) { w.bw.PutBit(bit, int(prob)) }

// tokenStats counts the branch decisions taken at each token tree node.
type tokenStats [numTypes][numBands][numCtx][numProbas][2]uint32

func (s *tokenStats) branch(t, b, c, i, bit int) { s[t][b][c][i][bit]++ }

func (s *tokenStats) literal(int, uint8) {}
