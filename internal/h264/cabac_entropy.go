package h264

import (
	"github.com/deepteams/vcodec/internal/bitio"
	"github.com/deepteams/vcodec/internal/cabac"
	"github.com/deepteams/vcodec/internal/codecerr"
)

// Context index offsets for frame-coded 4:2:0 slices.
const (
	ctxMbTypeSI     = 0
	ctxMbTypeI      = 3
	ctxSkipP        = 11
	ctxMbTypeP      = 14
	ctxMbTypePIntra = 17
	ctxSubMbTypeP   = 21
	ctxSkipB        = 24
	ctxMbTypeB      = 27
	ctxMbTypeBIntra = 32
	ctxSubMbTypeB   = 36
	ctxMvdX         = 40
	ctxMvdY         = 47
	ctxRefIdx       = 54
	ctxQPDelta      = 60
	ctxChromaPred   = 64
	ctxPrevIntra    = 68
	ctxRemIntra     = 69
	ctxCBPLuma      = 73
	ctxCBPChroma    = 77
	ctxCodedBlock   = 85
	ctxSig          = 105
	ctxLast         = 166
	ctxAbsLevel     = 227
	ctxT8x8         = 399
	ctxSig8x8       = 402
	ctxLast8x8      = 417
	ctxAbsLevel8x8  = 426
)

var (
	codedBlockCatOffset = [5]int{0, 4, 8, 12, 16}
	sigCatOffset        = [5]int{0, 15, 29, 44, 47}
	absCatOffset        = [5]int{0, 10, 20, 30, 39}

	sig8x8Inc = [63]uint8{
		0, 1, 2, 3, 4, 5, 5, 4, 4, 3, 3, 4, 4, 4, 5, 5,
		4, 4, 4, 4, 3, 3, 6, 7, 7, 7, 8, 9, 10, 9, 8, 7,
		7, 6, 11, 12, 13, 11, 6, 7, 8, 9, 14, 10, 9, 8, 6, 11,
		12, 13, 11, 6, 9, 14, 10, 9, 11, 12, 13, 11, 14, 10, 12,
	}
	last8x8Inc = [63]uint8{
		0, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1,
		2, 2, 2, 2, 2, 2, 2, 2, 2, 2, 2, 2, 2, 2, 2, 2,
		3, 3, 3, 3, 3, 3, 3, 3, 4, 4, 4, 4, 4, 4, 4, 4,
		5, 5, 5, 5, 6, 6, 6, 6, 7, 7, 7, 7, 8, 8, 8,
	}
)

// blockCtx returns the significance, last and level context bases and the
// context increment selector for a block category.
func blockCtx(cat blockCat) (sig, last, abs int) {
	if cat == catLuma8x8 {
		return ctxSig8x8, ctxLast8x8, ctxAbsLevel8x8
	}
	return ctxSig + sigCatOffset[cat], ctxLast + sigCatOffset[cat], ctxAbsLevel + absCatOffset[cat]
}

func sigInc(cat blockCat, i int) (sig, last int) {
	switch cat {
	case catLuma8x8:
		return int(sig8x8Inc[i]), int(last8x8Inc[i])
	case catChromaDC:
		// 4:2:0 chroma DC: NumC8x8 is 1.
		return min(i, 2), min(i, 2)
	}
	return i, i
}

func levelInc(cat blockCat, gt1, eq1 int, first bool) int {
	if first {
		if gt1 != 0 {
			return 0
		}
		return min(4, 1+eq1)
	}
	limit := 4
	if cat == catChromaDC {
		limit = 3
	}
	return 5 + min(limit, gt1)
}

type cabacReader struct {
	d   *cabac.Decoder
	ctx *sliceContext
}

// newCABACReader starts the engine on a byte-aligned reader positioned after
// cabac_alignment_one_bit.
func newCABACReader(r *bitio.Reader, ctx *sliceContext) *cabacReader {
	d := cabac.NewDecoder(r)
	d.InitContexts(ctx.hdr.Type.IsIntra(), int(ctx.hdr.CabacInitIdc), ctx.hdr.QP(ctx.pps))
	return &cabacReader{d: d, ctx: ctx}
}

func (c *cabacReader) bin(ctxIdx int) int { return c.d.DecodeDecision(ctxIdx) }

func (c *cabacReader) err() error { return c.d.Err() }

func (c *cabacReader) SkipMB() (bool, error) {
	base := ctxSkipP
	if c.ctx.hdr.Type == SliceB {
		base = ctxSkipB
	}
	return c.bin(base+c.ctx.skipInc()) == 1, c.err()
}

func (c *cabacReader) MoreData() (bool, error) {
	return c.d.DecodeTerminate() == 0, c.err()
}

// intraMBType decodes the I mb_type binarisation. base is ctxMbTypeI for I
// slices or the suffix offset in P and B slices.
func (c *cabacReader) intraMBType(base int, prefix bool) int {
	if prefix {
		if c.bin(base) == 0 {
			return 0
		}
	} else if c.bin(base+c.ctx.mbTypeIInc()) == 0 {
		return 0
	}
	if c.d.DecodeTerminate() == 1 {
		return 25
	}
	lumaCtx, chromaCtx, chroma2Ctx, predCtx0, predCtx1 := base+3, base+4, base+5, base+6, base+7
	if prefix {
		lumaCtx, chromaCtx, chroma2Ctx, predCtx0, predCtx1 = base+1, base+2, base+2, base+3, base+3
	}
	t := 1
	if c.bin(lumaCtx) == 1 {
		t += 12
	}
	if c.bin(chromaCtx) == 1 {
		t += 4
		if c.bin(chroma2Ctx) == 1 {
			t += 4
		}
	}
	t += c.bin(predCtx0) << 1
	t += c.bin(predCtx1)
	return t
}

func (c *cabacReader) MBType() (int, error) {
	switch c.ctx.hdr.Type {
	case SliceI:
		return c.intraMBType(ctxMbTypeI, false), c.err()
	case SliceP:
		if c.bin(ctxMbTypeP) == 1 {
			return 5 + c.intraMBType(ctxMbTypePIntra, true), c.err()
		}
		if c.bin(ctxMbTypeP+1) == 0 {
			return 3 * c.bin(ctxMbTypeP+2), c.err()
		}
		return 2 - c.bin(ctxMbTypeP+3), c.err()
	case SliceB:
		return c.bMBType(), c.err()
	}
	return 0, codecerr.Unsupportedf("CABAC mb_type in %s slices", c.ctx.hdr.Type)
}

func (c *cabacReader) bMBType() int {
	inc := 0
	for _, mb := range [2]*mbInfo{c.ctx.left, c.ctx.top} {
		if mb != nil && mb.kind != kindPSkip {
			inc++
		}
	}
	if c.bin(ctxMbTypeB+inc) == 0 {
		return 0
	}
	if c.bin(ctxMbTypeB+3) == 0 {
		return 1 + c.bin(ctxMbTypeB+5)
	}
	bits := c.bin(ctxMbTypeB+4) << 3
	bits |= c.bin(ctxMbTypeB+5) << 2
	bits |= c.bin(ctxMbTypeB+5) << 1
	bits |= c.bin(ctxMbTypeB + 5)
	switch {
	case bits < 8:
		return bits + 3
	case bits == 13:
		return 23 + c.intraMBType(ctxMbTypeBIntra, true)
	case bits == 14:
		return 11
	case bits == 15:
		return 22
	}
	return (bits<<1 | c.bin(ctxMbTypeB+5)) - 4
}

func (c *cabacReader) SubMBType() (int, error) {
	if c.ctx.hdr.Type == SliceP {
		switch {
		case c.bin(ctxSubMbTypeP) == 1:
			return 0, c.err()
		case c.bin(ctxSubMbTypeP+1) == 0:
			return 1, c.err()
		case c.bin(ctxSubMbTypeP+2) == 1:
			return 2, c.err()
		}
		return 3, c.err()
	}
	if c.bin(ctxSubMbTypeB) == 0 {
		return 0, c.err()
	}
	if c.bin(ctxSubMbTypeB+1) == 0 {
		return 1 + c.bin(ctxSubMbTypeB+3), c.err()
	}
	t := 3
	if c.bin(ctxSubMbTypeB+2) == 1 {
		if c.bin(ctxSubMbTypeB+3) == 1 {
			return 11 + c.bin(ctxSubMbTypeB+3), c.err()
		}
		t += 4
	}
	t += 2 * c.bin(ctxSubMbTypeB+3)
	t += c.bin(ctxSubMbTypeB + 3)
	return t, c.err()
}

func (c *cabacReader) TransformSize8x8() (bool, error) {
	return c.bin(ctxT8x8+c.ctx.t8x8Inc()) == 1, c.err()
}

func (c *cabacReader) PrevIntraPredFlag() (bool, error) {
	return c.bin(ctxPrevIntra) == 1, c.err()
}

func (c *cabacReader) RemIntraPredMode() (int, error) {
	v := c.bin(ctxRemIntra)
	v |= c.bin(ctxRemIntra) << 1
	v |= c.bin(ctxRemIntra) << 2
	return v, c.err()
}

func (c *cabacReader) IntraChromaPredMode() (int, error) {
	if c.bin(ctxChromaPred+c.ctx.chromaPredInc()) == 0 {
		return 0, c.err()
	}
	if c.bin(ctxChromaPred+3) == 0 {
		return 1, c.err()
	}
	return 2 + c.bin(ctxChromaPred+3), c.err()
}

func (c *cabacReader) RefIdx(list, x, y, maxIdx int) (int, error) {
	if c.bin(ctxRefIdx+c.ctx.refIdxInc(list, x, y)) == 0 {
		return 0, c.err()
	}
	v := 1
	ctx := ctxRefIdx + 4
	for c.bin(ctx) == 1 {
		v++
		ctx = ctxRefIdx + 5
		if v > 32 || c.err() != nil {
			return 0, c.malformed("ref_idx", v)
		}
	}
	if v > maxIdx {
		return 0, codecerr.Malformed("ref_idx", int64(v), "max %d", maxIdx)
	}
	return v, c.err()
}

func (c *cabacReader) malformed(name string, v int) error {
	if err := c.err(); err != nil {
		return err
	}
	return codecerr.Malformed(name, int64(v), "")
}

func (c *cabacReader) expGolomb(k int) (int, bool) {
	v := 0
	for c.d.DecodeBypass() == 1 {
		v += 1 << k
		k++
		if k >= 24 {
			return 0, false
		}
	}
	for k > 0 {
		k--
		v += c.d.DecodeBypass() << k
	}
	return v, true
}

func (c *cabacReader) MVD(list, x, y, comp int) (int, error) {
	base := ctxMvdX
	if comp == 1 {
		base = ctxMvdY
	}
	if c.bin(base+c.ctx.mvdInc(list, x, y, comp)) == 0 {
		return 0, c.err()
	}
	v := 1
	inc := 3
	for v < 9 && c.bin(base+inc) == 1 {
		v++
		if inc < 6 {
			inc++
		}
	}
	if v >= 9 {
		s, ok := c.expGolomb(3)
		if !ok {
			return 0, c.malformed("mvd", v)
		}
		v += s
	}
	if c.d.DecodeBypass() == 1 {
		v = -v
	}
	return v, c.err()
}

func (c *cabacReader) CBP() (CBP, error) {
	var cbp CBP
	for b8 := 0; b8 < 4; b8++ {
		if c.bin(ctxCBPLuma+c.ctx.cbpLumaInc(b8)) == 1 {
			cbp |= 1 << b8
			c.ctx.cur.cbp = cbp
		}
	}
	if t := c.ctx.sps.ChromaArrayType(); t == 1 || t == 2 {
		if c.bin(ctxCBPChroma+c.ctx.cbpChromaInc(0)) == 1 {
			cbp |= 1 << 4
			if c.bin(ctxCBPChroma+c.ctx.cbpChromaInc(1)) == 1 {
				cbp += 1 << 4
			}
		}
	}
	return cbp, c.err()
}

func (c *cabacReader) QPDelta() (int, error) {
	inc := 0
	if c.ctx.lastQPDelta != 0 {
		inc = 1
	}
	if c.bin(ctxQPDelta+inc) == 0 {
		return 0, c.err()
	}
	k := 1
	ctx := ctxQPDelta + 2
	for c.bin(ctx) == 1 {
		k++
		ctx = ctxQPDelta + 3
		if k > 52 {
			return 0, c.malformed("mb_qp_delta", k)
		}
	}
	if k&1 == 1 {
		return (k + 1) / 2, c.err()
	}
	return -k / 2, c.err()
}

func (c *cabacReader) Block(b blockRef, maxNumCoeff int, out []int32) (int, error) {
	out = out[:maxNumCoeff]
	clear(out)
	if b.cat != catLuma8x8 {
		if c.bin(ctxCodedBlock+codedBlockCatOffset[b.cat]+c.ctx.codedBlockInc(b)) == 0 {
			return 0, c.err()
		}
	}
	sigBase, lastBase, absBase := blockCtx(b.cat)
	var pos [64]int
	n := 0
	last := false
	for i := 0; i < maxNumCoeff-1; i++ {
		si, li := sigInc(b.cat, i)
		if c.bin(sigBase+si) == 1 {
			pos[n] = i
			n++
			if c.bin(lastBase+li) == 1 {
				last = true
				break
			}
		}
	}
	if !last {
		pos[n] = maxNumCoeff - 1
		n++
	}
	gt1, eq1 := 0, 0
	for k := n - 1; k >= 0; k-- {
		v := 0
		if c.bin(absBase+levelInc(b.cat, gt1, eq1, true)) == 1 {
			v = 1
			inc := levelInc(b.cat, gt1, eq1, false)
			for v < 14 && c.bin(absBase+inc) == 1 {
				v++
			}
			if v >= 14 {
				s, ok := c.expGolomb(0)
				if !ok {
					return 0, c.malformed("coeff_abs_level_minus1", v)
				}
				v += s
			}
		}
		level := int32(v + 1)
		if v == 0 {
			eq1++
		} else {
			gt1++
		}
		if c.d.DecodeBypass() == 1 {
			level = -level
		}
		out[pos[k]] = level
	}
	return n, c.err()
}

func (c *cabacReader) PCM(mb *IPCM) error {
	if err := readPCMSamples(c.d.Reader(), mb, c.ctx.sps.ChromaArrayType() != 0); err != nil {
		return err
	}
	c.d.InitEngine()
	return c.err()
}

type cabacWriter struct {
	e       *cabac.Encoder
	ctx     *sliceContext
	started bool
}

func newCABACWriter(w *bitio.Writer, ctx *sliceContext) *cabacWriter {
	w.AlignOne()
	e := cabac.NewEncoder(w)
	e.InitContexts(ctx.hdr.Type.IsIntra(), int(ctx.hdr.CabacInitIdc), ctx.hdr.QP(ctx.pps))
	return &cabacWriter{e: e, ctx: ctx}
}

func (c *cabacWriter) bin(ctxIdx, b int) { c.e.EncodeDecision(ctxIdx, b) }

func (c *cabacWriter) StartMB() error {
	if c.started {
		c.e.EncodeTerminate(0)
	}
	c.started = true
	return nil
}

func (c *cabacWriter) SkipMB(skip bool) error {
	base := ctxSkipP
	if c.ctx.hdr.Type == SliceB {
		base = ctxSkipB
	}
	c.bin(base+c.ctx.skipInc(), b2i(skip))
	return nil
}

func b2i(b bool) int {
	if b {
		return 1
	}
	return 0
}

func (c *cabacWriter) intraMBType(base int, prefix bool, t int) {
	first := base
	if !prefix {
		first = base + c.ctx.mbTypeIInc()
	}
	if t == 0 {
		c.bin(first, 0)
		return
	}
	c.bin(first, 1)
	if t == 25 {
		c.e.EncodeTerminate(1)
		return
	}
	c.e.EncodeTerminate(0)
	t--
	pred, chroma, luma := t%4, (t/4)%3, t/12
	if prefix {
		c.bin(base+1, luma)
		c.bin(base+2, b2i(chroma != 0))
		if chroma != 0 {
			c.bin(base+2, chroma-1)
		}
		c.bin(base+3, pred>>1)
		c.bin(base+3, pred&1)
		return
	}
	c.bin(base+3, luma)
	c.bin(base+4, b2i(chroma != 0))
	if chroma != 0 {
		c.bin(base+5, chroma-1)
	}
	c.bin(base+6, pred>>1)
	c.bin(base+7, pred&1)
}

func (c *cabacWriter) MBType(t int) error {
	switch c.ctx.hdr.Type {
	case SliceI:
		if t > 25 {
			return codecerr.Malformed("mb_type", int64(t), "")
		}
		c.intraMBType(ctxMbTypeI, false, t)
	case SliceP:
		if t >= 5 {
			c.bin(ctxMbTypeP, 1)
			c.intraMBType(ctxMbTypePIntra, true, t-5)
			return nil
		}
		c.bin(ctxMbTypeP, 0)
		switch t {
		case 0:
			c.bin(ctxMbTypeP+1, 0)
			c.bin(ctxMbTypeP+2, 0)
		case 1:
			c.bin(ctxMbTypeP+1, 1)
			c.bin(ctxMbTypeP+3, 1)
		case 2:
			c.bin(ctxMbTypeP+1, 1)
			c.bin(ctxMbTypeP+3, 0)
		case 3:
			c.bin(ctxMbTypeP+1, 0)
			c.bin(ctxMbTypeP+2, 1)
		default:
			return codecerr.Malformed("mb_type", int64(t), "P_8x8ref0 has no CABAC binarisation")
		}
	case SliceB:
		c.bMBType(t)
	default:
		return codecerr.Unsupportedf("CABAC mb_type in %s slices", c.ctx.hdr.Type)
	}
	return nil
}

func (c *cabacWriter) bMBType(t int) {
	inc := 0
	for _, mb := range [2]*mbInfo{c.ctx.left, c.ctx.top} {
		if mb != nil && mb.kind != kindPSkip {
			inc++
		}
	}
	if t == 0 {
		c.bin(ctxMbTypeB+inc, 0)
		return
	}
	c.bin(ctxMbTypeB+inc, 1)
	if t <= 2 {
		c.bin(ctxMbTypeB+3, 0)
		c.bin(ctxMbTypeB+5, t-1)
		return
	}
	c.bin(ctxMbTypeB+3, 1)
	bits4 := func(bits int) {
		c.bin(ctxMbTypeB+4, (bits>>3)&1)
		c.bin(ctxMbTypeB+5, (bits>>2)&1)
		c.bin(ctxMbTypeB+5, (bits>>1)&1)
		c.bin(ctxMbTypeB+5, bits&1)
	}
	switch {
	case t >= 23:
		bits4(13)
		c.intraMBType(ctxMbTypeBIntra, true, t-23)
	case t <= 10:
		bits4(t - 3)
	case t == 11:
		bits4(14)
	case t == 22:
		bits4(15)
	default:
		v := t + 4
		bits4(v >> 1)
		c.bin(ctxMbTypeB+5, v&1)
	}
}

func (c *cabacWriter) SubMBType(t int) error {
	if c.ctx.hdr.Type == SliceP {
		switch t {
		case 0:
			c.bin(ctxSubMbTypeP, 1)
		case 1:
			c.bin(ctxSubMbTypeP, 0)
			c.bin(ctxSubMbTypeP+1, 0)
		default:
			c.bin(ctxSubMbTypeP, 0)
			c.bin(ctxSubMbTypeP+1, 1)
			c.bin(ctxSubMbTypeP+2, b2i(t == 2))
		}
		return nil
	}
	b := ctxSubMbTypeB
	switch {
	case t == 0:
		c.bin(b, 0)
	case t <= 2:
		c.bin(b, 1)
		c.bin(b+1, 0)
		c.bin(b+3, t-1)
	case t <= 6:
		c.bin(b, 1)
		c.bin(b+1, 1)
		c.bin(b+2, 0)
		c.bin(b+3, (t-3)>>1)
		c.bin(b+3, (t-3)&1)
	case t <= 10:
		c.bin(b, 1)
		c.bin(b+1, 1)
		c.bin(b+2, 1)
		c.bin(b+3, 0)
		c.bin(b+3, (t-7)>>1)
		c.bin(b+3, (t-7)&1)
	default:
		c.bin(b, 1)
		c.bin(b+1, 1)
		c.bin(b+2, 1)
		c.bin(b+3, 1)
		c.bin(b+3, t-11)
	}
	return nil
}

func (c *cabacWriter) TransformSize8x8(f bool) error {
	c.bin(ctxT8x8+c.ctx.t8x8Inc(), b2i(f))
	return nil
}

func (c *cabacWriter) PrevIntraPredFlag(f bool) error {
	c.bin(ctxPrevIntra, b2i(f))
	return nil
}

func (c *cabacWriter) RemIntraPredMode(m int) error {
	c.bin(ctxRemIntra, m&1)
	c.bin(ctxRemIntra, (m>>1)&1)
	c.bin(ctxRemIntra, (m>>2)&1)
	return nil
}

func (c *cabacWriter) IntraChromaPredMode(m int) error {
	c.bin(ctxChromaPred+c.ctx.chromaPredInc(), b2i(m > 0))
	if m > 0 {
		c.bin(ctxChromaPred+3, b2i(m > 1))
	}
	if m > 1 {
		c.bin(ctxChromaPred+3, m-2)
	}
	return nil
}

func (c *cabacWriter) RefIdx(list, x, y, maxIdx, v int) error {
	c.bin(ctxRefIdx+c.ctx.refIdxInc(list, x, y), b2i(v > 0))
	ctx := ctxRefIdx + 4
	for i := 1; i <= v; i++ {
		c.bin(ctx, b2i(i < v))
		ctx = ctxRefIdx + 5
	}
	return nil
}

func (c *cabacWriter) expGolomb(v, k int) {
	for v >= 1<<k {
		c.e.EncodeBypass(1)
		v -= 1 << k
		k++
	}
	c.e.EncodeBypass(0)
	for k > 0 {
		k--
		c.e.EncodeBypass((v >> k) & 1)
	}
}

func (c *cabacWriter) MVD(list, x, y, comp, v int) error {
	base := ctxMvdX
	if comp == 1 {
		base = ctxMvdY
	}
	a := v
	if a < 0 {
		a = -a
	}
	c.bin(base+c.ctx.mvdInc(list, x, y, comp), b2i(a > 0))
	if a == 0 {
		return nil
	}
	inc := 3
	for i := 1; i < min(a, 9); i++ {
		c.bin(base+inc, 1)
		if inc < 6 {
			inc++
		}
	}
	if a < 9 {
		c.bin(base+inc, 0)
	} else {
		c.expGolomb(a-9, 3)
	}
	c.e.EncodeBypass(b2i(v < 0))
	return nil
}

func (c *cabacWriter) CBP(cbp CBP) error {
	for b8 := 0; b8 < 4; b8++ {
		c.bin(ctxCBPLuma+c.ctx.cbpLumaInc(b8), b2i(cbp.LumaCoded(b8)))
		c.ctx.cur.cbp = cbp & (1<<(b8+1) - 1)
	}
	c.ctx.cur.cbp = cbp
	if t := c.ctx.sps.ChromaArrayType(); t == 1 || t == 2 {
		ch := cbp.Chroma()
		c.bin(ctxCBPChroma+c.ctx.cbpChromaInc(0), b2i(ch > 0))
		if ch > 0 {
			c.bin(ctxCBPChroma+c.ctx.cbpChromaInc(1), b2i(ch > 1))
		}
	}
	return nil
}

func (c *cabacWriter) QPDelta(d int) error {
	inc := 0
	if c.ctx.lastQPDelta != 0 {
		inc = 1
	}
	var k int
	if d > 0 {
		k = 2*d - 1
	} else {
		k = -2 * d
	}
	c.bin(ctxQPDelta+inc, b2i(k > 0))
	ctx := ctxQPDelta + 2
	for i := 1; i <= k; i++ {
		c.bin(ctx, b2i(i < k))
		ctx = ctxQPDelta + 3
	}
	return nil
}

func (c *cabacWriter) Block(b blockRef, coeffs []int32) (int, error) {
	maxNumCoeff := len(coeffs)
	var pos [64]int
	n := 0
	for i, v := range coeffs {
		if v != 0 {
			pos[n] = i
			n++
		}
	}
	if b.cat != catLuma8x8 {
		c.bin(ctxCodedBlock+codedBlockCatOffset[b.cat]+c.ctx.codedBlockInc(b), b2i(n > 0))
		if n == 0 {
			return 0, nil
		}
	} else if n == 0 {
		return 0, codecerr.Malformed("coded_block_flag", 0, "8x8 block signalled coded without coefficients")
	}
	sigBase, lastBase, absBase := blockCtx(b.cat)
	last := pos[n-1]
	for i := 0; i < maxNumCoeff-1; i++ {
		si, li := sigInc(b.cat, i)
		sig := coeffs[i] != 0
		c.bin(sigBase+si, b2i(sig))
		if sig {
			c.bin(lastBase+li, b2i(i == last))
			if i == last {
				break
			}
		}
	}
	gt1, eq1 := 0, 0
	for k := n - 1; k >= 0; k-- {
		level := coeffs[pos[k]]
		v := int(level)
		if v < 0 {
			v = -v
		}
		v--
		c.bin(absBase+levelInc(b.cat, gt1, eq1, true), b2i(v > 0))
		if v > 0 {
			inc := levelInc(b.cat, gt1, eq1, false)
			for i := 1; i < min(v, 14); i++ {
				c.bin(absBase+inc, 1)
			}
			if v < 14 {
				c.bin(absBase+inc, 0)
			} else {
				c.expGolomb(v-14, 0)
			}
			gt1++
		} else {
			eq1++
		}
		c.e.EncodeBypass(b2i(level < 0))
	}
	return n, nil
}

func (c *cabacWriter) PCM(mb *IPCM) error {
	writePCMSamples(c.e.Writer(), mb, c.ctx.sps.ChromaArrayType() != 0)
	c.e.InitEngine()
	return nil
}

func (c *cabacWriter) Finish() error {
	c.e.Finish()
	return nil
}
