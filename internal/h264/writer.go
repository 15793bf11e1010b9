package h264

import (
	"github.com/pkg/errors"

	"github.com/deepteams/vcodec/internal/bitio"
	"github.com/deepteams/vcodec/internal/codecerr"
)

// SliceWriter serialises macroblocks into one slice NAL unit. It keeps the
// same neighbour context as SliceParser, so the caller supplies decoded
// values (prediction modes, motion vectors) and the writer derives the
// coded differences.
type SliceWriter struct {
	slice Slice
	w     *bitio.Writer
	ctx   *sliceContext
	ew    EntropyWriter

	idx   int
	begun bool
	done  bool
}

// NewSliceWriter writes the NAL header byte and slice header. Without
// num_ref_idx_active_override_flag the active reference counts of hdr are
// reset to the PPS defaults.
func NewSliceWriter(nal NALHeader, hdr *SliceHeader, sps *SPS, pps *PPS) (*SliceWriter, error) {
	if !nal.Type.IsSlice() {
		return nil, codecerr.Unsupportedf("NAL unit type %d (%s) as slice", nal.Type, nal.Type)
	}
	if err := checkSupported(sps, pps, hdr); err != nil {
		return nil, err
	}
	if !hdr.NumRefIdxActiveOverride {
		hdr.NumRefIdxL0ActiveMinus1 = pps.NumRefIdxL0DefaultActiveMinus1
		hdr.NumRefIdxL1ActiveMinus1 = pps.NumRefIdxL1DefaultActiveMinus1
	}
	m, err := NewMapper(sps, pps, hdr)
	if err != nil {
		return nil, err
	}
	w := bitio.NewWriter(sps.MbWidth() * sps.MbHeight() * 64)
	w.WriteBits(uint32(nal.Byte()), 8)
	if err := hdr.Write(w, nal, sps, pps); err != nil {
		return nil, errors.Wrap(err, "could not write slice header")
	}
	sw := &SliceWriter{
		slice: Slice{NAL: nal, Header: hdr, SPS: sps, PPS: pps, Mapper: m},
		w:     w,
	}
	sw.ctx = newSliceContext(&sw.slice)
	if pps.EntropyCodingMode {
		sw.ew = newCABACWriter(w, sw.ctx)
	} else {
		sw.ew = newCAVLCWriter(w, sw.ctx)
	}
	return sw, nil
}

// Slice returns the slice being written.
func (sw *SliceWriter) Slice() *Slice { return &sw.slice }

// NextAddress returns the address of the next macroblock, or -1 when the
// slice group is exhausted.
func (sw *SliceWriter) NextAddress() int {
	return sw.slice.Mapper.Address(sw.idx)
}

// QP returns the running QP that the next mb_qp_delta applies to.
func (sw *SliceWriter) QP() int { return sw.ctx.qp }

func (sw *SliceWriter) prepare() (int, error) {
	if sw.done {
		return 0, errors.New("h264: slice already finished")
	}
	addr := sw.NextAddress()
	if addr < 0 {
		return 0, codecerr.Malformed("slice_data", int64(sw.idx), "more macroblocks than the slice group holds")
	}
	if !sw.begun {
		sw.ctx.begin(addr)
		sw.begun = true
	}
	return addr, nil
}

// PredictSkipMV returns the motion vector a P_Skip macroblock at the next
// address would use.
func (sw *SliceWriter) PredictSkipMV() MV {
	if _, err := sw.prepare(); err != nil {
		return MV{}
	}
	return sw.ctx.predictSkipMV()
}

// Write appends mb at NextAddress. It fills the address fields and QP of
// mb, and the motion vector of a *PSkip.
func (sw *SliceWriter) Write(mb Macroblock) error {
	addr, err := sw.prepare()
	if err != nil {
		return err
	}
	c := sw.ctx
	common := mb.Common()
	common.Addr = addr
	common.MbX = c.mapper.MbX(addr)
	common.MbY = c.mapper.MbY(addr)
	if err := sw.ew.StartMB(); err != nil {
		return err
	}
	mw := mbWriter{ctx: c, ew: sw.ew}
	if err := mw.write(mb); err != nil {
		return errors.Wrapf(err, "could not write macroblock %d", addr)
	}
	c.commit()
	sw.idx++
	sw.begun = false
	return nil
}

// Finish terminates the slice data and returns the NAL unit without
// emulation prevention.
func (sw *SliceWriter) Finish() ([]byte, error) {
	if sw.done {
		return nil, errors.New("h264: slice already finished")
	}
	if sw.idx == 0 {
		return nil, errors.New("h264: slice has no macroblocks")
	}
	sw.done = true
	if err := sw.ew.Finish(); err != nil {
		return nil, err
	}
	return sw.w.Bytes(), nil
}

type mbWriter struct {
	ctx *sliceContext
	ew  EntropyWriter
}

func (w *mbWriter) intraBase() int {
	switch w.ctx.hdr.Type {
	case SliceP:
		return 5
	case SliceB:
		return 23
	}
	return 0
}

func (w *mbWriter) write(mb Macroblock) error {
	c := w.ctx
	intraSlice := c.hdr.Type.IsIntra()
	if s, ok := mb.(*PSkip); ok {
		if c.hdr.Type != SliceP {
			return codecerr.Unsupportedf("skipped macroblock in %s slice", c.hdr.Type)
		}
		if err := w.ew.SkipMB(true); err != nil {
			return err
		}
		c.cur.kind = kindPSkip
		s.MV = c.predictSkipMV()
		c.setMotion(0, 0, 0, 4, 4, 0, s.MV, MV{})
		c.lastQPDelta = 0
		s.QPDelta, s.QP = 0, c.qp
		return nil
	}
	if !intraSlice {
		if err := w.ew.SkipMB(false); err != nil {
			return err
		}
	}
	switch m := mb.(type) {
	case *IntraNxN:
		return w.intraNxN(m)
	case *Intra16x16:
		return w.intra16x16(m)
	case *IPCM:
		c.cur.kind = kindIPCM
		if err := w.ew.MBType(w.intraBase() + 25); err != nil {
			return err
		}
		c.lastQPDelta = 0
		m.QPDelta, m.QP = 0, c.qp
		return w.ew.PCM(m)
	case *Inter:
		if intraSlice {
			return codecerr.Malformed("mb_type", 0, "inter macroblock in I slice")
		}
		return w.inter(m)
	case *Inter8x8:
		if intraSlice {
			return codecerr.Malformed("mb_type", 0, "inter macroblock in I slice")
		}
		return w.inter8x8(m)
	}
	return errors.Errorf("h264: unknown macroblock type %T", mb)
}

func (w *mbWriter) intraMode(b int, m uint8) error {
	if m > IntraHorizontalUp {
		return codecerr.Malformed("intra_pred_mode", int64(m), "")
	}
	pred := w.ctx.predIntraMode(b)
	mode := int(m)
	if mode == pred {
		return w.ew.PrevIntraPredFlag(true)
	}
	if err := w.ew.PrevIntraPredFlag(false); err != nil {
		return err
	}
	if mode > pred {
		mode--
	}
	return w.ew.RemIntraPredMode(mode)
}

func (w *mbWriter) chromaPred(m uint8) error {
	if w.ctx.sps.ChromaArrayType() == 0 {
		return nil
	}
	if m > ChromaPlane {
		return codecerr.Malformed("intra_chroma_pred_mode", int64(m), "")
	}
	w.ctx.cur.chromaPred = m
	return w.ew.IntraChromaPredMode(int(m))
}

func (w *mbWriter) cbp(cbp CBP) error {
	if cbp.Chroma() > 2 || (w.ctx.sps.ChromaArrayType() == 0 && cbp.Chroma() != 0) {
		return codecerr.Malformed("coded_block_pattern", int64(cbp), "")
	}
	w.ctx.cur.cbp = cbp
	return w.ew.CBP(cbp)
}

func (w *mbWriter) intraNxN(mb *IntraNxN) error {
	c := w.ctx
	c.cur.kind = kindINxN
	if err := w.ew.MBType(w.intraBase()); err != nil {
		return err
	}
	if c.pps.Transform8x8Mode {
		if err := w.ew.TransformSize8x8(mb.Transform8x8); err != nil {
			return err
		}
		c.cur.t8x8 = mb.Transform8x8
	} else if mb.Transform8x8 {
		return codecerr.Malformed("transform_size_8x8_flag", 1, "8x8 transform disabled in PPS")
	}
	if mb.Transform8x8 {
		for b8 := 0; b8 < 4; b8++ {
			if err := w.intraMode(4*b8, mb.PredModes[b8]); err != nil {
				return err
			}
			for k := 0; k < 4; k++ {
				c.cur.predModes[4*b8+k] = mb.PredModes[b8]
			}
		}
	} else {
		for b := 0; b < 16; b++ {
			if err := w.intraMode(b, mb.PredModes[b]); err != nil {
				return err
			}
			c.cur.predModes[b] = mb.PredModes[b]
		}
	}
	if err := w.chromaPred(mb.ChromaPred); err != nil {
		return err
	}
	if err := w.cbp(mb.CBP); err != nil {
		return err
	}
	return w.residualLayer(&mb.MBCommon, &mb.Residual, mb.CBP, false, mb.Transform8x8)
}

func (w *mbWriter) intra16x16(mb *Intra16x16) error {
	c := w.ctx
	c.cur.kind = kindI16x16
	if mb.PredMode > Intra16x16Plane {
		return codecerr.Malformed("mb_type", int64(mb.PredMode), "intra 16x16 prediction mode")
	}
	luma := mb.CBP.Luma()
	if luma != 0 && luma != 15 || mb.CBP.Chroma() > 2 {
		return codecerr.Malformed("coded_block_pattern", int64(mb.CBP), "intra 16x16")
	}
	t := 1 + int(mb.PredMode) + 4*mb.CBP.Chroma()
	if luma == 15 {
		t += 12
	}
	if err := w.ew.MBType(w.intraBase() + t); err != nil {
		return err
	}
	c.cur.cbp = mb.CBP
	if err := w.chromaPred(mb.ChromaPred); err != nil {
		return err
	}
	return w.residualLayer(&mb.MBCommon, &mb.Residual, mb.CBP, true, false)
}

func (w *mbWriter) numRef(list int) int {
	if list == 0 {
		return int(w.ctx.hdr.NumRefIdxL0ActiveMinus1) + 1
	}
	return int(w.ctx.hdr.NumRefIdxL1ActiveMinus1) + 1
}

func (w *mbWriter) refIdx(list, x, y int, ref int8) error {
	n := w.numRef(list)
	if ref < 0 || int(ref) >= n {
		return codecerr.Malformed("ref_idx", int64(ref), "")
	}
	if n == 1 {
		return nil
	}
	return w.ew.RefIdx(list, x, y, n-1, int(ref))
}

func (w *mbWriter) mvd(list, x, y int, pred, mv MV) (MV, error) {
	dx, dy := int(mv.X)-int(pred.X), int(mv.Y)-int(pred.Y)
	if dx < -32768 || dx > 32767 || dy < -32768 || dy > 32767 {
		return MV{}, codecerr.Malformed("mvd", int64(dx), "motion vector difference overflows")
	}
	if err := w.ew.MVD(list, x, y, 0, dx); err != nil {
		return MV{}, err
	}
	if err := w.ew.MVD(list, x, y, 1, dy); err != nil {
		return MV{}, err
	}
	return MV{int16(dx), int16(dy)}, nil
}

func (w *mbWriter) fillRef(list, x, y, wd, h int, ref int8) {
	for j := y; j < y+h; j++ {
		for i := x; i < x+wd; i++ {
			w.ctx.cur.ref[list][BlockIndex(i, j)] = ref
		}
	}
}

func (w *mbWriter) interType(mb *Inter) (int, error) {
	if w.ctx.hdr.Type == SliceP {
		if mb.Shape > Part8x16 {
			return 0, codecerr.Malformed("mb_type", int64(mb.Shape), "partition shape")
		}
		for i := 0; i < mb.Shape.NumParts(); i++ {
			if mb.Pred[i] != PredL0 {
				return 0, codecerr.Malformed("mb_type", int64(mb.Pred[i]), "P slice prediction direction")
			}
		}
		return int(mb.Shape), nil
	}
	switch mb.Shape {
	case Part16x16:
		if mb.Pred[0] < PredL0 || mb.Pred[0] > PredBi {
			return 0, codecerr.Malformed("mb_type", int64(mb.Pred[0]), "prediction direction")
		}
		return int(mb.Pred[0]), nil
	case Part16x8, Part8x16:
		for k, p := range bPartPreds {
			if p == mb.Pred {
				t := 4 + 2*k
				if mb.Shape == Part8x16 {
					t++
				}
				return t, nil
			}
		}
		return 0, codecerr.Malformed("mb_type", int64(mb.Pred[0]), "prediction direction")
	}
	return 0, codecerr.Malformed("mb_type", int64(mb.Shape), "partition shape")
}

func (w *mbWriter) inter(mb *Inter) error {
	c := w.ctx
	c.cur.kind = kindInter
	t, err := w.interType(mb)
	if err != nil {
		return err
	}
	if err := w.ew.MBType(t); err != nil {
		return err
	}
	n := mb.Shape.NumParts()
	pw, ph := mb.Shape.Size()
	for list := 0; list < 2; list++ {
		for i := 0; i < n; i++ {
			if !mb.Pred[i].Uses(list) {
				mb.RefIdx[i][list] = -1
				continue
			}
			x, y := partOrigin(mb.Shape, i)
			if err := w.refIdx(list, x, y, mb.RefIdx[i][list]); err != nil {
				return err
			}
			w.fillRef(list, x, y, pw, ph, mb.RefIdx[i][list])
		}
	}
	for list := 0; list < 2; list++ {
		c.decoded = 0
		for i := 0; i < n; i++ {
			x, y := partOrigin(mb.Shape, i)
			if !mb.Pred[i].Uses(list) {
				c.setMotion(list, x, y, pw, ph, -1, MV{}, MV{})
				continue
			}
			ref := mb.RefIdx[i][list]
			pred := c.predictMV(list, x, y, pw, ref, mb.Shape, i)
			d, err := w.mvd(list, x, y, pred, mb.MV[i][list])
			if err != nil {
				return err
			}
			c.setMotion(list, x, y, pw, ph, ref, mb.MV[i][list], d)
		}
	}
	return w.interResidual(&mb.MBCommon, &mb.Residual, mb.CBP, mb.Transform8x8, true)
}

func (w *mbWriter) subType(sub *SubMB) (int, error) {
	if w.ctx.hdr.Type == SliceP {
		for t, s := range pSubShapes {
			if s == sub.Shape && sub.Pred == PredL0 {
				return t, nil
			}
		}
		return 0, codecerr.Malformed("sub_mb_type", int64(sub.Shape), "P slice")
	}
	for t := 1; t < len(bSubTypes); t++ {
		if bSubTypes[t].shape == sub.Shape && bSubTypes[t].pred == sub.Pred {
			return t, nil
		}
	}
	return 0, codecerr.Malformed("sub_mb_type", int64(sub.Shape), "B slice")
}

func (w *mbWriter) inter8x8(mb *Inter8x8) error {
	c := w.ctx
	c.cur.kind = kindInter
	t := 3
	switch {
	case mb.Ref0 && c.hdr.Type != SliceP:
		return codecerr.Malformed("mb_type", 4, "P_8x8ref0 outside P slice")
	case mb.Ref0 && c.pps.EntropyCodingMode:
		return codecerr.Malformed("mb_type", 4, "P_8x8ref0 has no CABAC binarisation")
	case mb.Ref0:
		t = 4
	case c.hdr.Type == SliceB:
		t = 22
	}
	if err := w.ew.MBType(t); err != nil {
		return err
	}
	noSub := true
	for i := range mb.Sub {
		st, err := w.subType(&mb.Sub[i])
		if err != nil {
			return err
		}
		if err := w.ew.SubMBType(st); err != nil {
			return err
		}
		if mb.Sub[i].Shape != Part8x8 {
			noSub = false
		}
	}
	for list := 0; list < 2; list++ {
		for i := range mb.Sub {
			sub := &mb.Sub[i]
			if !sub.Pred.Uses(list) {
				sub.RefIdx[list] = -1
				continue
			}
			sx, sy := 2*(i&1), 2*(i>>1)
			if mb.Ref0 {
				sub.RefIdx[list] = 0
			} else if err := w.refIdx(list, sx, sy, sub.RefIdx[list]); err != nil {
				return err
			}
			w.fillRef(list, sx, sy, 2, 2, sub.RefIdx[list])
		}
	}
	for list := 0; list < 2; list++ {
		c.decoded = 0
		for i := range mb.Sub {
			sub := &mb.Sub[i]
			sx, sy := 2*(i&1), 2*(i>>1)
			if !sub.Pred.Uses(list) {
				c.setMotion(list, sx, sy, 2, 2, -1, MV{}, MV{})
				continue
			}
			pw, ph := sub.Shape.Size()
			for j := 0; j < sub.Shape.NumParts(); j++ {
				ox, oy := partOrigin(sub.Shape, j)
				x, y := sx+ox, sy+oy
				pred := c.predictMV(list, x, y, pw, sub.RefIdx[list], sub.Shape, j)
				d, err := w.mvd(list, x, y, pred, sub.MV[list][j])
				if err != nil {
					return err
				}
				c.setMotion(list, x, y, pw, ph, sub.RefIdx[list], sub.MV[list][j], d)
			}
		}
	}
	return w.interResidual(&mb.MBCommon, &mb.Residual, mb.CBP, mb.Transform8x8, noSub)
}

func (w *mbWriter) interResidual(common *MBCommon, res *Residual, cbp CBP, t8, noSub bool) error {
	c := w.ctx
	if err := w.cbp(cbp); err != nil {
		return err
	}
	if cbp.Luma() > 0 && c.pps.Transform8x8Mode && noSub {
		if err := w.ew.TransformSize8x8(t8); err != nil {
			return err
		}
		c.cur.t8x8 = t8
	} else if t8 && cbp.Luma() > 0 {
		return codecerr.Malformed("transform_size_8x8_flag", 1, "not allowed for this macroblock")
	}
	return w.residualLayer(common, res, cbp, false, t8 && cbp.Luma() > 0)
}

func (w *mbWriter) residualLayer(common *MBCommon, res *Residual, cbp CBP, i16, t8 bool) error {
	c := w.ctx
	if cbp == 0 && !i16 {
		c.lastQPDelta = 0
		common.QPDelta, common.QP = 0, c.qp
		return nil
	}
	d := common.QPDelta
	if d < -26 || d > 25 {
		return codecerr.Malformed("mb_qp_delta", int64(d), "out of range [-26, 25]")
	}
	if err := w.ew.QPDelta(d); err != nil {
		return err
	}
	c.updateQP(d)
	common.QP = c.qp
	return w.residual(res, cbp, i16, t8)
}

func (w *mbWriter) residual(res *Residual, cbp CBP, i16, t8 bool) error {
	c := w.ctx
	cabacMode := c.pps.EntropyCodingMode
	if i16 {
		n, err := w.ew.Block(blockRef{cat: catLumaDC}, res.LumaDC[:])
		if err != nil {
			return err
		}
		if n > 0 {
			c.cur.dcFlags |= 1
		}
	}
	for b8 := 0; b8 < 4; b8++ {
		if !cbp.LumaCoded(b8) {
			continue
		}
		if t8 && cabacMode {
			n, err := w.ew.Block(blockRef{cat: catLuma8x8, idx: b8}, res.Luma8x8[b8][:])
			if err != nil {
				return err
			}
			for k := 0; k < 4; k++ {
				c.cur.nz[4*b8+k] = uint8(n)
			}
			continue
		}
		for k := 0; k < 4; k++ {
			b := 4*b8 + k
			var n int
			var err error
			switch {
			case i16:
				n, err = w.ew.Block(blockRef{cat: catLumaAC, idx: b}, res.Luma[b][1:])
			case t8:
				var blk [16]int32
				for i := range blk {
					blk[i] = res.Luma8x8[b8][4*i+k]
				}
				n, err = w.ew.Block(blockRef{cat: catLuma4x4, idx: b}, blk[:])
			default:
				n, err = w.ew.Block(blockRef{cat: catLuma4x4, idx: b}, res.Luma[b][:])
			}
			if err != nil {
				return err
			}
			c.cur.nz[b] = uint8(n)
		}
	}
	if c.sps.ChromaArrayType() == 0 || cbp.Chroma() == 0 {
		return nil
	}
	for comp := 0; comp < 2; comp++ {
		n, err := w.ew.Block(blockRef{cat: catChromaDC, comp: comp}, res.ChromaDC[comp][:])
		if err != nil {
			return err
		}
		if n > 0 {
			c.cur.dcFlags |= 2 << comp
		}
	}
	if cbp.Chroma() != 2 {
		return nil
	}
	for comp := 0; comp < 2; comp++ {
		for b := 0; b < 4; b++ {
			n, err := w.ew.Block(blockRef{cat: catChromaAC, idx: b, comp: comp}, res.ChromaAC[comp][b][1:])
			if err != nil {
				return err
			}
			c.cur.nzC[comp][b] = uint8(n)
		}
	}
	return nil
}
