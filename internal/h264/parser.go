package h264

import (
	"github.com/pkg/errors"

	"github.com/deepteams/vcodec/internal/bitio"
	"github.com/deepteams/vcodec/internal/codecerr"
)

// Slice describes the slice being parsed or written.
type Slice struct {
	NAL    NALHeader
	Header *SliceHeader
	SPS    *SPS
	PPS    *PPS
	Mapper Mapper
}

// Handler consumes the macroblocks of a slice in decoding order. The
// macroblock passed to a method is reused by the parser and is only valid
// until the method returns.
type Handler interface {
	StartSlice(s *Slice) error
	IntraNxN(mb *IntraNxN) error
	Intra16x16(mb *Intra16x16) error
	IPCM(mb *IPCM) error
	PSkip(mb *PSkip) error
	Inter(mb *Inter) error
	Inter8x8(mb *Inter8x8) error
}

// B partition prediction pairs for mb_type 4..21, two types per pair.
var bPartPreds = [9][2]PredDir{
	{PredL0, PredL0}, {PredL1, PredL1}, {PredL0, PredL1}, {PredL1, PredL0},
	{PredL0, PredBi}, {PredL1, PredBi}, {PredBi, PredL0}, {PredBi, PredL1},
	{PredBi, PredBi},
}

type subType struct {
	shape PartShape
	pred  PredDir
}

// B sub_mb_type 1..12; type 0 is B_Direct_8x8.
var bSubTypes = [13]subType{
	{},
	{Part8x8, PredL0}, {Part8x8, PredL1}, {Part8x8, PredBi},
	{Part8x4, PredL0}, {Part4x8, PredL0}, {Part8x4, PredL1}, {Part4x8, PredL1},
	{Part8x4, PredBi}, {Part4x8, PredBi},
	{Part4x4, PredL0}, {Part4x4, PredL1}, {Part4x4, PredBi},
}

var pSubShapes = [4]PartShape{Part8x8, Part8x4, Part4x8, Part4x4}

// partOrigin returns the top-left 4x4 block of partition i of shape s. For
// sub-macroblock shapes the origin is relative to the sub-macroblock.
func partOrigin(s PartShape, i int) (x, y int) {
	switch s {
	case Part16x8:
		return 0, 2 * i
	case Part8x16:
		return 2 * i, 0
	case Part8x4:
		return 0, i
	case Part4x8:
		return i, 0
	case Part4x4:
		return i & 1, i >> 1
	}
	return 0, 0
}

// checkSupported rejects coding tools outside the implemented profile
// subset.
func checkSupported(sps *SPS, pps *PPS, h *SliceHeader) error {
	switch {
	case h.FieldPic || sps.MbAdaptiveFrameField:
		return codecerr.Unsupported("field and MBAFF coding")
	case sps.ChromaArrayType() != 0 && sps.ChromaArrayType() != 1:
		return codecerr.Unsupportedf("chroma format %d", sps.ChromaFormatIdc)
	case sps.BitDepthLumaMinus8 != 0 || sps.BitDepthChromaMinus8 != 0:
		return codecerr.Unsupported("bit depth above 8")
	case h.Type == SliceSP || h.Type == SliceSI:
		return codecerr.Unsupportedf("%s slices", h.Type)
	case sps.QpprimeYZeroTransformBypass:
		return codecerr.Unsupported("transform bypass")
	}
	return nil
}

// SliceParser parses the macroblocks of one slice NAL unit.
type SliceParser struct {
	slice Slice
	r     *bitio.Reader
}

// NewSliceParser reads the NAL header and slice header of an unescaped
// slice NAL unit.
func NewSliceParser(nalu []byte, sets *ParamSets) (*SliceParser, error) {
	if len(nalu) < 2 {
		return nil, errors.Wrap(codecerr.ErrEndOfStream, "could not read slice")
	}
	nal := ParseNALHeader(nalu[0])
	if !nal.Type.IsSlice() {
		return nil, codecerr.Unsupportedf("NAL unit type %d (%s) as slice", nal.Type, nal.Type)
	}
	r := bitio.NewReader(nalu[1:])
	h, sps, pps, err := ReadSliceHeader(r, nal, sets)
	if err != nil {
		return nil, err
	}
	if err := checkSupported(sps, pps, h); err != nil {
		return nil, err
	}
	m, err := NewMapper(sps, pps, h)
	if err != nil {
		return nil, err
	}
	return &SliceParser{
		slice: Slice{NAL: nal, Header: h, SPS: sps, PPS: pps, Mapper: m},
		r:     r,
	}, nil
}

// Slice returns the parsed headers.
func (p *SliceParser) Slice() *Slice { return &p.slice }

// Parse walks slice_data(), handing every macroblock to h.
func (p *SliceParser) Parse(h Handler) error {
	s := &p.slice
	if err := h.StartSlice(s); err != nil {
		return err
	}
	ctx := newSliceContext(s)
	var er EntropyReader
	if s.PPS.EntropyCodingMode {
		for !p.r.ByteAligned() {
			if p.r.ReadBit() != 1 {
				return codecerr.Malformed("cabac_alignment_one_bit", 0, "")
			}
		}
		er = newCABACReader(p.r, ctx)
	} else {
		er = newCAVLCReader(p.r, ctx)
	}
	mp := &mbParser{ctx: ctx, er: er, h: h}
	for idx := 0; ; idx++ {
		addr := s.Mapper.Address(idx)
		if addr < 0 {
			return codecerr.Malformed("slice_data", int64(idx), "more macroblocks than the slice group holds")
		}
		ctx.begin(addr)
		if err := mp.parse(); err != nil {
			return errors.Wrapf(err, "could not parse macroblock %d", addr)
		}
		more, err := er.MoreData()
		if err != nil {
			return errors.Wrapf(err, "could not parse macroblock %d", addr)
		}
		if !more {
			return nil
		}
	}
}

// mbParser decodes macroblock_layer() into reusable variant structs.
type mbParser struct {
	ctx *sliceContext
	er  EntropyReader
	h   Handler

	intraNxN IntraNxN
	intra16  Intra16x16
	pcm      IPCM
	pskip    PSkip
	inter    Inter
	inter8   Inter8x8
}

func (p *mbParser) common() MBCommon {
	c := p.ctx
	return MBCommon{Addr: c.addr, MbX: c.mapper.MbX(c.addr), MbY: c.mapper.MbY(c.addr), QP: c.qp}
}

func (p *mbParser) parse() error {
	c := p.ctx
	st := c.hdr.Type
	if !st.IsIntra() {
		skip, err := p.er.SkipMB()
		if err != nil {
			return err
		}
		if skip {
			return p.skip()
		}
	}
	raw, err := p.er.MBType()
	if err != nil {
		return err
	}
	switch st {
	case SliceI:
		if raw > 25 {
			return codecerr.Malformed("mb_type", int64(raw), "I slice")
		}
		return p.intra(raw)
	case SliceP:
		switch {
		case raw > 30:
			return codecerr.Malformed("mb_type", int64(raw), "P slice")
		case raw >= 5:
			return p.intra(raw - 5)
		case raw == 3 || raw == 4:
			return p.inter8x8(raw == 4)
		}
		return p.interMB([3]PartShape{Part16x16, Part16x8, Part8x16}[raw], [2]PredDir{PredL0, PredL0})
	}
	switch {
	case raw > 48:
		return codecerr.Malformed("mb_type", int64(raw), "B slice")
	case raw >= 23:
		return p.intra(raw - 23)
	case raw == 0:
		return codecerr.Unsupported("B direct prediction")
	case raw <= 3:
		d := PredDir(raw)
		return p.interMB(Part16x16, [2]PredDir{d, d})
	case raw == 22:
		return p.inter8x8(false)
	}
	shape := Part16x8
	if raw&1 == 1 {
		shape = Part8x16
	}
	return p.interMB(shape, bPartPreds[(raw-4)/2])
}

func (p *mbParser) finish() {
	p.ctx.commit()
}

func (p *mbParser) skip() error {
	c := p.ctx
	if c.hdr.Type == SliceB {
		return codecerr.Unsupported("B direct prediction")
	}
	c.cur.kind = kindPSkip
	mv := c.predictSkipMV()
	c.setMotion(0, 0, 0, 4, 4, 0, mv, MV{})
	c.lastQPDelta = 0
	p.pskip = PSkip{MBCommon: p.common(), MV: mv}
	p.finish()
	return p.h.PSkip(&p.pskip)
}

func (p *mbParser) intraMode(b int) (uint8, error) {
	pred := p.ctx.predIntraMode(b)
	prev, err := p.er.PrevIntraPredFlag()
	if err != nil || prev {
		return uint8(pred), err
	}
	rem, err := p.er.RemIntraPredMode()
	if err != nil {
		return 0, err
	}
	if rem < pred {
		return uint8(rem), nil
	}
	return uint8(rem + 1), nil
}

func (p *mbParser) chromaPred() (uint8, error) {
	if p.ctx.sps.ChromaArrayType() == 0 {
		return 0, nil
	}
	m, err := p.er.IntraChromaPredMode()
	if err != nil {
		return 0, err
	}
	if m > 3 {
		return 0, codecerr.Malformed("intra_chroma_pred_mode", int64(m), "")
	}
	p.ctx.cur.chromaPred = uint8(m)
	return uint8(m), nil
}

func (p *mbParser) intra(t int) error {
	c := p.ctx
	switch {
	case t == 25:
		c.cur.kind = kindIPCM
		p.pcm = IPCM{MBCommon: p.common()}
		if err := p.er.PCM(&p.pcm); err != nil {
			return err
		}
		c.lastQPDelta = 0
		p.finish()
		return p.h.IPCM(&p.pcm)
	case t > 0:
		return p.intra16x16(t)
	}

	c.cur.kind = kindINxN
	mb := &p.intraNxN
	*mb = IntraNxN{MBCommon: p.common()}
	if c.pps.Transform8x8Mode {
		t8, err := p.er.TransformSize8x8()
		if err != nil {
			return err
		}
		mb.Transform8x8 = t8
		c.cur.t8x8 = t8
	}
	if mb.Transform8x8 {
		for b8 := 0; b8 < 4; b8++ {
			m, err := p.intraMode(4 * b8)
			if err != nil {
				return err
			}
			mb.PredModes[b8] = m
			for k := 0; k < 4; k++ {
				c.cur.predModes[4*b8+k] = m
			}
		}
	} else {
		for b := 0; b < 16; b++ {
			m, err := p.intraMode(b)
			if err != nil {
				return err
			}
			mb.PredModes[b] = m
			c.cur.predModes[b] = m
		}
	}
	var err error
	if mb.ChromaPred, err = p.chromaPred(); err != nil {
		return err
	}
	if mb.CBP, err = p.cbp(); err != nil {
		return err
	}
	if err := p.residualLayer(&mb.MBCommon, &mb.Residual, mb.CBP, false, mb.Transform8x8); err != nil {
		return err
	}
	p.finish()
	return p.h.IntraNxN(mb)
}

func (p *mbParser) intra16x16(t int) error {
	c := p.ctx
	c.cur.kind = kindI16x16
	mb := &p.intra16
	*mb = Intra16x16{MBCommon: p.common()}
	mb.PredMode = uint8((t - 1) % 4)
	mb.CBP = CBP(((t-1)/4)%3) << 4
	if t >= 13 {
		mb.CBP |= 15
	}
	c.cur.cbp = mb.CBP
	var err error
	if mb.ChromaPred, err = p.chromaPred(); err != nil {
		return err
	}
	if err := p.residualLayer(&mb.MBCommon, &mb.Residual, mb.CBP, true, false); err != nil {
		return err
	}
	p.finish()
	return p.h.Intra16x16(mb)
}

func (p *mbParser) cbp() (CBP, error) {
	cbp, err := p.er.CBP()
	if err != nil {
		return 0, err
	}
	if cbp.Chroma() > 2 {
		return 0, codecerr.Malformed("coded_block_pattern", int64(cbp), "")
	}
	p.ctx.cur.cbp = cbp
	return cbp, nil
}

// numRef returns num_ref_idx_lX_active_minus1 + 1.
func (p *mbParser) numRef(list int) int {
	if list == 0 {
		return int(p.ctx.hdr.NumRefIdxL0ActiveMinus1) + 1
	}
	return int(p.ctx.hdr.NumRefIdxL1ActiveMinus1) + 1
}

func (p *mbParser) refIdx(list, x, y int) (int8, error) {
	n := p.numRef(list)
	if n == 1 {
		return 0, nil
	}
	v, err := p.er.RefIdx(list, x, y, n-1)
	return int8(v), err
}

func (p *mbParser) mvd(list, x, y int) (MV, error) {
	dx, err := p.er.MVD(list, x, y, 0)
	if err != nil {
		return MV{}, err
	}
	dy, err := p.er.MVD(list, x, y, 1)
	if err != nil {
		return MV{}, err
	}
	if dx < -32768 || dx > 32767 {
		return MV{}, codecerr.Malformed("mvd_x", int64(dx), "out of range")
	}
	if dy < -32768 || dy > 32767 {
		return MV{}, codecerr.Malformed("mvd_y", int64(dy), "out of range")
	}
	return MV{int16(dx), int16(dy)}, nil
}

func addMV(pred, d MV) (MV, error) {
	x, y := int(pred.X)+int(d.X), int(pred.Y)+int(d.Y)
	if x < -32768 || x > 32767 || y < -32768 || y > 32767 {
		return MV{}, codecerr.Malformed("mvd", int64(d.X), "motion vector overflows")
	}
	return MV{int16(x), int16(y)}, nil
}

func (p *mbParser) fillRef(list, x, y, w, h int, ref int8) {
	for j := y; j < y+h; j++ {
		for i := x; i < x+w; i++ {
			p.ctx.cur.ref[list][BlockIndex(i, j)] = ref
		}
	}
}

func (p *mbParser) interMB(shape PartShape, preds [2]PredDir) error {
	c := p.ctx
	c.cur.kind = kindInter
	mb := &p.inter
	*mb = Inter{MBCommon: p.common(), Shape: shape, Pred: preds}
	n := shape.NumParts()
	w, h := shape.Size()
	for list := 0; list < 2; list++ {
		for i := 0; i < n; i++ {
			mb.RefIdx[i][list] = -1
			if !preds[i].Uses(list) {
				continue
			}
			x, y := partOrigin(shape, i)
			ref, err := p.refIdx(list, x, y)
			if err != nil {
				return err
			}
			mb.RefIdx[i][list] = ref
			p.fillRef(list, x, y, w, h, ref)
		}
	}
	for list := 0; list < 2; list++ {
		c.decoded = 0
		for i := 0; i < n; i++ {
			x, y := partOrigin(shape, i)
			if !preds[i].Uses(list) {
				c.setMotion(list, x, y, w, h, -1, MV{}, MV{})
				continue
			}
			ref := mb.RefIdx[i][list]
			pred := c.predictMV(list, x, y, w, ref, shape, i)
			d, err := p.mvd(list, x, y)
			if err != nil {
				return err
			}
			mv, err := addMV(pred, d)
			if err != nil {
				return err
			}
			mb.MV[i][list] = mv
			c.setMotion(list, x, y, w, h, ref, mv, d)
		}
	}
	if err := p.interResidual(&mb.MBCommon, &mb.Residual, &mb.CBP, &mb.Transform8x8, true); err != nil {
		return err
	}
	p.finish()
	return p.h.Inter(mb)
}

func (p *mbParser) inter8x8(ref0 bool) error {
	c := p.ctx
	c.cur.kind = kindInter
	mb := &p.inter8
	*mb = Inter8x8{MBCommon: p.common(), Ref0: ref0}
	noSub := true
	for i := range mb.Sub {
		t, err := p.er.SubMBType()
		if err != nil {
			return err
		}
		sub := &mb.Sub[i]
		if c.hdr.Type == SliceP {
			if t > 3 {
				return codecerr.Malformed("sub_mb_type", int64(t), "P slice")
			}
			sub.Shape, sub.Pred = pSubShapes[t], PredL0
		} else {
			switch {
			case t > 12:
				return codecerr.Malformed("sub_mb_type", int64(t), "B slice")
			case t == 0:
				return codecerr.Unsupported("B direct prediction")
			}
			sub.Shape, sub.Pred = bSubTypes[t].shape, bSubTypes[t].pred
		}
		if sub.Shape != Part8x8 {
			noSub = false
		}
	}
	for list := 0; list < 2; list++ {
		for i := range mb.Sub {
			sub := &mb.Sub[i]
			sub.RefIdx[list] = -1
			if !sub.Pred.Uses(list) {
				continue
			}
			sx, sy := 2*(i&1), 2*(i>>1)
			var ref int8
			if !ref0 {
				var err error
				if ref, err = p.refIdx(list, sx, sy); err != nil {
					return err
				}
			}
			sub.RefIdx[list] = ref
			p.fillRef(list, sx, sy, 2, 2, ref)
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
			w, h := sub.Shape.Size()
			for j := 0; j < sub.Shape.NumParts(); j++ {
				ox, oy := partOrigin(sub.Shape, j)
				x, y := sx+ox, sy+oy
				pred := c.predictMV(list, x, y, w, sub.RefIdx[list], sub.Shape, j)
				d, err := p.mvd(list, x, y)
				if err != nil {
					return err
				}
				mv, err := addMV(pred, d)
				if err != nil {
					return err
				}
				sub.MV[list][j] = mv
				c.setMotion(list, x, y, w, h, sub.RefIdx[list], mv, d)
			}
		}
	}
	if err := p.interResidual(&mb.MBCommon, &mb.Residual, &mb.CBP, &mb.Transform8x8, noSub); err != nil {
		return err
	}
	p.finish()
	return p.h.Inter8x8(mb)
}

func (p *mbParser) interResidual(common *MBCommon, res *Residual, cbp *CBP, t8 *bool, noSub bool) error {
	var err error
	if *cbp, err = p.cbp(); err != nil {
		return err
	}
	if cbp.Luma() > 0 && p.ctx.pps.Transform8x8Mode && noSub {
		if *t8, err = p.er.TransformSize8x8(); err != nil {
			return err
		}
		p.ctx.cur.t8x8 = *t8
	}
	return p.residualLayer(common, res, *cbp, false, *t8)
}

// residualLayer reads mb_qp_delta and residual() when the macroblock codes
// any residual.
func (p *mbParser) residualLayer(common *MBCommon, res *Residual, cbp CBP, i16 bool, t8 bool) error {
	c := p.ctx
	if cbp == 0 && !i16 {
		c.lastQPDelta = 0
		return nil
	}
	d, err := p.er.QPDelta()
	if err != nil {
		return err
	}
	if d < -26 || d > 25 {
		return codecerr.Malformed("mb_qp_delta", int64(d), "out of range [-26, 25]")
	}
	c.updateQP(d)
	common.QPDelta = d
	common.QP = c.qp
	return p.residual(res, cbp, i16, t8)
}

func (p *mbParser) block(b blockRef, out []int32) (int, error) {
	return p.er.Block(b, len(out), out)
}

func (p *mbParser) residual(res *Residual, cbp CBP, i16, t8 bool) error {
	c := p.ctx
	cabacMode := c.pps.EntropyCodingMode
	if i16 {
		n, err := p.block(blockRef{cat: catLumaDC}, res.LumaDC[:])
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
			n, err := p.block(blockRef{cat: catLuma8x8, idx: b8}, res.Luma8x8[b8][:])
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
				n, err = p.block(blockRef{cat: catLumaAC, idx: b}, res.Luma[b][1:])
			case t8:
				var blk [16]int32
				n, err = p.block(blockRef{cat: catLuma4x4, idx: b}, blk[:])
				for i, v := range blk {
					res.Luma8x8[b8][4*i+k] = v
				}
			default:
				n, err = p.block(blockRef{cat: catLuma4x4, idx: b}, res.Luma[b][:])
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
		n, err := p.block(blockRef{cat: catChromaDC, comp: comp}, res.ChromaDC[comp][:])
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
			n, err := p.block(blockRef{cat: catChromaAC, idx: b, comp: comp}, res.ChromaAC[comp][b][1:])
			if err != nil {
				return err
			}
			c.cur.nzC[comp][b] = uint8(n)
		}
	}
	return nil
}
