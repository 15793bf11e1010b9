package recon

import (
	"github.com/pkg/errors"

	"github.com/deepteams/vcodec/internal/codecerr"
	"github.com/deepteams/vcodec/internal/h264"
)

// Renderer reconstructs the macroblocks handed to it by a slice parser into
// Pic. Refs holds the reference picture lists of the current slice and must
// be set before the slice is parsed.
type Renderer struct {
	Pic  *Picture
	Refs [2][]*Picture

	slice       *h264.Slice
	sliceNum    int
	ct          *CoeffTransformer
	ctPPS       *h264.PPS
	explicit    bool
	constrained bool
	cqpOffset   [2]int
	deblock     deblockParams

	pred  [2][256]int
	cpred [2][64]int
	blk   [16]int32
	blk8  [64]int32
	edges edges
}

var _ h264.Handler = (*Renderer)(nil)

// NewRenderer returns a renderer writing into pic.
func NewRenderer(pic *Picture) *Renderer {
	return &Renderer{Pic: pic}
}

func (r *Renderer) StartSlice(s *h264.Slice) error {
	h, pps := s.Header, s.PPS
	if s.SPS.MbWidth() != r.Pic.MbWidth || s.SPS.MbHeight() != r.Pic.MbHeight {
		return codecerr.Malformed("pic_width_in_mbs_minus1", int64(s.SPS.PicWidthInMbsMinus1),
			"slice size differs from the picture")
	}
	if h.Type == h264.SliceB && pps.WeightedBipredIdc == 2 {
		return codecerr.Unsupported("implicit weighted prediction")
	}
	r.explicit = (h.Type == h264.SliceP && pps.WeightedPred) ||
		(h.Type == h264.SliceB && pps.WeightedBipredIdc == 1)
	if r.explicit && h.PredWeight == nil {
		return codecerr.Malformed("pred_weight_table", 0, "missing explicit weights")
	}
	if r.ct == nil || r.ctPPS != pps {
		m := pps.ScalingMatrix(s.SPS)
		r.ct = NewCoeffTransformer(&m)
		r.ctPPS = pps
	}
	r.slice = s
	r.sliceNum++
	r.constrained = pps.ConstrainedIntraPred
	r.cqpOffset = [2]int{pps.ChromaQPOffset(0), pps.ChromaQPOffset(1)}
	r.deblock = deblockParams{
		disable:     h.DisableDeblockingFilter,
		alphaOffset: int(h.SliceAlphaC0OffsetDiv2) * 2,
		betaOffset:  int(h.SliceBetaOffsetDiv2) * 2,
	}
	return nil
}

func (r *Renderer) begin(c *h264.MBCommon, intra bool) *mbState {
	st := &r.Pic.mbs[c.Addr]
	*st = mbState{
		decoded: true,
		intra:   intra,
		qp:      c.QP,
		slice:   r.sliceNum,
		deblock: r.deblock,
	}
	st.chromaQP = [2]int{ChromaQP(c.QP, r.cqpOffset[0]), ChromaQP(c.QP, r.cqpOffset[1])}
	return st
}

type mbAvail struct {
	left, top, topLeft, topRight bool
}

func (r *Renderer) usable(addr int) bool {
	return !r.constrained || r.Pic.mbs[addr].intra
}

func (r *Renderer) intraAvail(addr int) mbAvail {
	m, w := r.slice.Mapper, r.Pic.MbWidth
	return mbAvail{
		left:     m.LeftAvailable(addr) && r.usable(addr-1),
		top:      m.TopAvailable(addr) && r.usable(addr-w),
		topLeft:  m.TopLeftAvailable(addr) && r.usable(addr-w-1),
		topRight: m.TopRightAvailable(addr) && r.usable(addr-w+1),
	}
}

// blockAvail returns the neighbour availability of block (bx, by) in a
// macroblock split into n x n blocks.
func blockAvail(av mbAvail, bx, by, n int) (top, left, topLeft, topRight bool) {
	top = by > 0 || av.top
	left = bx > 0 || av.left
	switch {
	case bx > 0 && by > 0:
		topLeft = true
	case bx > 0:
		topLeft = av.top
	case by > 0:
		topLeft = av.left
	default:
		topLeft = av.topLeft
	}
	switch {
	case by == 0 && bx < n-1:
		topRight = av.top
	case by == 0:
		topRight = av.topRight
	case bx == n-1:
		topRight = false
	case n == 4:
		topRight = h264.BlockIndex(bx+1, by-1) < h264.BlockIndex(bx, by)
	default:
		topRight = true
	}
	return
}

func nonZero(c []int32) bool {
	for _, v := range c {
		if v != 0 {
			return true
		}
	}
	return false
}

func (r *Renderer) IntraNxN(mb *h264.IntraNxN) error {
	st := r.begin(&mb.MBCommon, true)
	st.t8x8 = mb.Transform8x8
	p := r.Pic
	x0, y0 := mb.MbX*16, mb.MbY*16
	av := r.intraAvail(mb.Addr)
	e := &r.edges
	if mb.Transform8x8 {
		for b8 := 0; b8 < 4; b8++ {
			bx, by := b8&1, b8>>1
			x, y := x0+bx*8, y0+by*8
			top, left, tl, tr := blockAvail(av, bx, by, 2)
			gather(e, p.Y, p.YStride, x, y, 8, 16, top, left, tl, tr)
			e.filter8x8()
			dst := p.Y[y*p.YStride+x:]
			if err := predictNxN(dst, p.YStride, 8, int(mb.PredModes[b8]), e); err != nil {
				return errors.Wrapf(err, "block %d", b8)
			}
			if nonZero(mb.Luma8x8[b8][:]) {
				st.nz |= 0xf << (4 * b8)
				r.ct.Dequant8x8(0, mb.QP, &mb.Luma8x8[b8], &r.blk8)
				IDCT8x8(&r.blk8)
				addResidual(dst, p.YStride, r.blk8[:], 8)
			}
		}
	} else {
		for b := 0; b < 16; b++ {
			bx, by := h264.BlockPos(b)
			x, y := x0+bx*4, y0+by*4
			top, left, tl, tr := blockAvail(av, bx, by, 4)
			gather(e, p.Y, p.YStride, x, y, 4, 8, top, left, tl, tr)
			dst := p.Y[y*p.YStride+x:]
			if err := predictNxN(dst, p.YStride, 4, int(mb.PredModes[b]), e); err != nil {
				return errors.Wrapf(err, "block %d", b)
			}
			if nonZero(mb.Luma[b][:]) {
				st.nz |= 1 << b
				r.ct.Dequant4x4(ListIntraY, mb.QP, &mb.Luma[b], &r.blk, false)
				IDCT4x4(&r.blk)
				addResidual(dst, p.YStride, r.blk[:], 4)
			}
		}
	}
	return r.intraChroma(st, &mb.MBCommon, int(mb.ChromaPred), av, &mb.Residual)
}

func (r *Renderer) Intra16x16(mb *h264.Intra16x16) error {
	st := r.begin(&mb.MBCommon, true)
	p := r.Pic
	x0, y0 := mb.MbX*16, mb.MbY*16
	av := r.intraAvail(mb.Addr)
	e := &r.edges
	gather(e, p.Y, p.YStride, x0, y0, 16, 16, av.top, av.left, av.topLeft, false)
	if err := predict16x16(p.Y[y0*p.YStride+x0:], p.YStride, int(mb.PredMode), e); err != nil {
		return err
	}
	var dc [16]int32
	r.ct.LumaDC(ListIntraY, mb.QP, &mb.LumaDC, &dc)
	for b := 0; b < 16; b++ {
		bx, by := h264.BlockPos(b)
		r.ct.Dequant4x4(ListIntraY, mb.QP, &mb.Luma[b], &r.blk, true)
		r.blk[0] = dc[by*4+bx]
		if !nonZero(r.blk[:]) {
			continue
		}
		st.nz |= 1 << b
		IDCT4x4(&r.blk)
		addResidual(p.Y[(y0+by*4)*p.YStride+x0+bx*4:], p.YStride, r.blk[:], 4)
	}
	return r.intraChroma(st, &mb.MBCommon, int(mb.ChromaPred), av, &mb.Residual)
}

func (r *Renderer) intraChroma(st *mbState, c *h264.MBCommon, mode int, av mbAvail, res *h264.Residual) error {
	p := r.Pic
	if !p.Chroma {
		return nil
	}
	x0, y0 := c.MbX*8, c.MbY*8
	for i, plane := range [2][]uint8{p.Cb, p.Cr} {
		gather(&r.edges, plane, p.CStride, x0, y0, 8, 8, av.top, av.left, av.topLeft, false)
		if err := predictChroma(plane[y0*p.CStride+x0:], p.CStride, mode, &r.edges); err != nil {
			return err
		}
		r.chromaResidual(st, plane, i, x0, y0, ListIntraCb+i, res)
	}
	return nil
}

func (r *Renderer) chromaResidual(st *mbState, plane []uint8, c, x0, y0, list int, res *h264.Residual) {
	p := r.Pic
	qp := st.chromaQP[c]
	var dc [4]int32
	r.ct.ChromaDC(list, qp, &res.ChromaDC[c], &dc)
	for b := 0; b < 4; b++ {
		r.ct.Dequant4x4(list, qp, &res.ChromaAC[c][b], &r.blk, true)
		r.blk[0] = dc[b]
		if !nonZero(r.blk[:]) {
			continue
		}
		IDCT4x4(&r.blk)
		addResidual(plane[(y0+(b>>1)*4)*p.CStride+x0+(b&1)*4:], p.CStride, r.blk[:], 4)
	}
}

func (r *Renderer) IPCM(mb *h264.IPCM) error {
	c := mb.MBCommon
	c.QP = 0
	st := r.begin(&c, true)
	st.nz = 0xffff
	p := r.Pic
	x0, y0 := mb.MbX*16, mb.MbY*16
	for y := 0; y < 16; y++ {
		copy(p.Y[(y0+y)*p.YStride+x0:][:16], mb.Luma[y*16:y*16+16])
	}
	if p.Chroma {
		for i, plane := range [2][]uint8{p.Cb, p.Cr} {
			for y := 0; y < 8; y++ {
				copy(plane[(mb.MbY*8+y)*p.CStride+mb.MbX*8:][:8], mb.Chroma[i][y*8:y*8+8])
			}
		}
	}
	return nil
}

func (r *Renderer) PSkip(mb *h264.PSkip) error {
	st := r.begin(&mb.MBCommon, false)
	return r.predictPart(st, &mb.MBCommon, 0, 0, 4, 4, h264.PredL0, [2]int8{0, -1}, [2]h264.MV{mb.MV})
}

func (r *Renderer) Inter(mb *h264.Inter) error {
	st := r.begin(&mb.MBCommon, false)
	st.t8x8 = mb.Transform8x8
	w4, h4 := mb.Shape.Size()
	for i := 0; i < mb.Shape.NumParts(); i++ {
		x4, y4 := 0, 0
		switch mb.Shape {
		case h264.Part16x8:
			y4 = 2 * i
		case h264.Part8x16:
			x4 = 2 * i
		}
		if err := r.predictPart(st, &mb.MBCommon, x4, y4, w4, h4, mb.Pred[i], mb.RefIdx[i], mb.MV[i]); err != nil {
			return errors.Wrapf(err, "partition %d", i)
		}
	}
	r.interResidual(st, &mb.MBCommon, mb.Transform8x8, &mb.Residual)
	return nil
}

func (r *Renderer) Inter8x8(mb *h264.Inter8x8) error {
	st := r.begin(&mb.MBCommon, false)
	st.t8x8 = mb.Transform8x8
	for b8 := range mb.Sub {
		sub := &mb.Sub[b8]
		w4, h4 := sub.Shape.Size()
		for j := 0; j < sub.Shape.NumParts(); j++ {
			x4, y4 := (b8&1)*2, (b8>>1)*2
			switch sub.Shape {
			case h264.Part8x4:
				y4 += j
			case h264.Part4x8:
				x4 += j
			case h264.Part4x4:
				x4, y4 = x4+j&1, y4+j>>1
			}
			mv := [2]h264.MV{sub.MV[0][j], sub.MV[1][j]}
			if err := r.predictPart(st, &mb.MBCommon, x4, y4, w4, h4, sub.Pred, sub.RefIdx, mv); err != nil {
				return errors.Wrapf(err, "sub-macroblock %d", b8)
			}
		}
	}
	r.interResidual(st, &mb.MBCommon, mb.Transform8x8, &mb.Residual)
	return nil
}

func (r *Renderer) ref(list int, idx int8) (*Picture, error) {
	refs := r.Refs[list]
	if idx < 0 || int(idx) >= len(refs) || refs[idx] == nil {
		elem := "ref_idx_l0"
		if list == 1 {
			elem = "ref_idx_l1"
		}
		return nil, codecerr.Malformed(elem, int64(idx), "no reference picture")
	}
	return refs[idx], nil
}

// predictPart motion-compensates the partition at (x4, y4) with size
// (w4, h4) in 4x4 block units and records its motion for deblocking.
func (r *Renderer) predictPart(st *mbState, c *h264.MBCommon, x4, y4, w4, h4 int, pred h264.PredDir, refIdx [2]int8, mv [2]h264.MV) error {
	p := r.Pic
	var pics [2]*Picture
	for list := 0; list < 2; list++ {
		if !pred.Uses(list) {
			continue
		}
		pic, err := r.ref(list, refIdx[list])
		if err != nil {
			return err
		}
		pics[list] = pic
		for y := y4; y < y4+h4; y++ {
			for x := x4; x < x4+w4; x++ {
				b := h264.BlockIndex(x, y)
				st.ref[list][b] = pic
				st.mv[list][b] = mv[list]
			}
		}
	}
	lx, ly, w, h := c.MbX*16+x4*4, c.MbY*16+y4*4, w4*4, h4*4
	for list, pic := range pics {
		if pic != nil {
			predLuma(r.pred[list][:w*h], pic, lx, ly, w, h, mv[list])
		}
	}
	r.combine(p.Y[ly*p.YStride+lx:], p.YStride, r.pred[0][:], r.pred[1][:], w, h, pred, refIdx, 0)
	if !p.Chroma {
		return nil
	}
	cx, cy, cw, ch := lx/2, ly/2, w/2, h/2
	for comp := 1; comp <= 2; comp++ {
		for list, pic := range pics {
			if pic == nil {
				continue
			}
			plane := pic.Cb
			if comp == 2 {
				plane = pic.Cr
			}
			predChroma(r.cpred[list][:cw*ch], pic, plane, cx, cy, cw, ch, mv[list])
		}
		dst := p.Cb
		if comp == 2 {
			dst = p.Cr
		}
		r.combine(dst[cy*p.CStride+cx:], p.CStride, r.cpred[0][:], r.cpred[1][:], cw, ch, pred, refIdx, comp)
	}
	return nil
}

func (r *Renderer) combine(dst []uint8, stride int, p0, p1 []int, w, h int, pred h264.PredDir, refIdx [2]int8, comp int) {
	if !r.explicit {
		switch pred {
		case h264.PredL0:
			store(dst, stride, p0, w, h)
		case h264.PredL1:
			store(dst, stride, p1, w, h)
		default:
			for j := 0; j < h; j++ {
				for i := 0; i < w; i++ {
					dst[j*stride+i] = uint8(avg(p0[j*w+i], p1[j*w+i]))
				}
			}
		}
		return
	}
	t := r.slice.Header.PredWeight
	switch pred {
	case h264.PredL0, h264.PredL1:
		list, src := 0, p0
		if pred == h264.PredL1 {
			list, src = 1, p1
		}
		wt := weightFor(t, list, int(refIdx[list]), comp)
		for j := 0; j < h; j++ {
			for i := 0; i < w; i++ {
				dst[j*stride+i] = weightOne(src[j*w+i], wt)
			}
		}
	default:
		w0 := weightFor(t, 0, int(refIdx[0]), comp)
		w1 := weightFor(t, 1, int(refIdx[1]), comp)
		for j := 0; j < h; j++ {
			for i := 0; i < w; i++ {
				dst[j*stride+i] = weightBi(p0[j*w+i], p1[j*w+i], w0, w1)
			}
		}
	}
}

func (r *Renderer) interResidual(st *mbState, c *h264.MBCommon, t8 bool, res *h264.Residual) {
	p := r.Pic
	x0, y0 := c.MbX*16, c.MbY*16
	if t8 {
		for b8 := 0; b8 < 4; b8++ {
			if !nonZero(res.Luma8x8[b8][:]) {
				continue
			}
			st.nz |= 0xf << (4 * b8)
			r.ct.Dequant8x8(1, c.QP, &res.Luma8x8[b8], &r.blk8)
			IDCT8x8(&r.blk8)
			addResidual(p.Y[(y0+(b8>>1)*8)*p.YStride+x0+(b8&1)*8:], p.YStride, r.blk8[:], 8)
		}
	} else {
		for b := 0; b < 16; b++ {
			if !nonZero(res.Luma[b][:]) {
				continue
			}
			st.nz |= 1 << b
			bx, by := h264.BlockPos(b)
			r.ct.Dequant4x4(ListInterY, c.QP, &res.Luma[b], &r.blk, false)
			IDCT4x4(&r.blk)
			addResidual(p.Y[(y0+by*4)*p.YStride+x0+bx*4:], p.YStride, r.blk[:], 4)
		}
	}
	if p.Chroma {
		for i, plane := range [2][]uint8{p.Cb, p.Cr} {
			r.chromaResidual(st, plane, i, c.MbX*8, c.MbY*8, ListInterCb+i, res)
		}
	}
}
