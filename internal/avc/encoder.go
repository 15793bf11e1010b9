package avc

import (
	"image"

	"github.com/pkg/errors"

	"github.com/deepteams/vcodec/internal/codecerr"
	"github.com/deepteams/vcodec/internal/h264"
	"github.com/deepteams/vcodec/internal/h264/recon"
)

// EncoderOptions configures an Encoder. Zero fields take the documented
// defaults.
type EncoderOptions struct {
	// QP is the constant quantisation parameter, 0..51. Default 26.
	QP int
	// CABAC selects CABAC entropy coding (Main profile) instead of CAVLC
	// (Baseline profile).
	CABAC bool
	// GOP is the distance between IDR pictures. Default 30.
	GOP int
	// SearchRange bounds the full-sample motion search. Default 8.
	SearchRange int
	// DisableDeblocking turns the in-loop deblocking filter off.
	DisableDeblocking bool
}

// Encoder produces a single-slice-per-picture H.264 stream: IDR pictures
// of Intra16x16 macroblocks and P pictures of P_L0_16x16 or P_Skip
// macroblocks. Mode and motion choices are plain SAD minimisation.
type Encoder struct {
	opts     EncoderOptions
	sps      *h264.SPS
	pps      *h264.PPS
	width    int
	height   int
	count    int // pictures since the last IDR
	frameNum uint32
	idrID    uint32
	ref      *recon.Picture

	srcY, srcCb, srcCr []uint8
}

// NewEncoder returns an encoder for width x height pictures. Odd sizes are
// coded with the next even size.
func NewEncoder(width, height int, opts *EncoderOptions) (*Encoder, error) {
	if width <= 0 || height <= 0 {
		return nil, errors.Errorf("avc: invalid picture size %dx%d", width, height)
	}
	e := &Encoder{width: width, height: height}
	if opts != nil {
		e.opts = *opts
	}
	if e.opts.QP == 0 {
		e.opts.QP = 26
	}
	if e.opts.QP < 0 || e.opts.QP > 51 {
		return nil, errors.Errorf("avc: QP %d out of range [0, 51]", e.opts.QP)
	}
	if e.opts.GOP <= 0 {
		e.opts.GOP = 30
	}
	if e.opts.SearchRange <= 0 {
		e.opts.SearchRange = 8
	}
	mbw, mbh := (width+15)/16, (height+15)/16
	sps := h264.NewSPS()
	sps.ProfileIdc = 66
	sps.ConstraintFlags = 0xc0
	if e.opts.CABAC {
		sps.ProfileIdc = 77
		sps.ConstraintFlags = 0x40
	}
	sps.LevelIdc = 40
	sps.PicOrderCntType = 2
	sps.MaxNumRefFrames = 1
	sps.PicWidthInMbsMinus1 = uint32(mbw - 1)
	sps.PicHeightInMapUnitsMinus1 = uint32(mbh - 1)
	sps.Direct8x8Inference = true
	if cr, cb := (16*mbw-width)/2, (16*mbh-height)/2; cr > 0 || cb > 0 {
		sps.FrameCropping = true
		sps.CropRight, sps.CropBottom = uint32(cr), uint32(cb)
	}
	e.sps = sps
	e.pps = &h264.PPS{
		EntropyCodingMode:       e.opts.CABAC,
		DeblockingFilterControl: e.opts.DisableDeblocking,
	}
	e.srcY = make([]uint8, 256*mbw*mbh)
	e.srcCb = make([]uint8, 64*mbw*mbh)
	e.srcCr = make([]uint8, 64*mbw*mbh)
	return e, nil
}

// SPS and PPS return the parameter sets the encoder emits.
func (e *Encoder) SPS() *h264.SPS { return e.sps }
func (e *Encoder) PPS() *h264.PPS { return e.pps }

// Reconstruction returns the decoded form of the last encoded picture. It
// stays valid until the next call to Encode.
func (e *Encoder) Reconstruction() *recon.Picture { return e.ref }

// Encode codes one 4:2:0 picture and returns its NAL units without
// emulation prevention. IDR pictures are preceded by the SPS and PPS.
func (e *Encoder) Encode(img *image.YCbCr) ([][]byte, error) {
	if img.SubsampleRatio != image.YCbCrSubsampleRatio420 {
		return nil, codecerr.Unsupportedf("subsample ratio %v", img.SubsampleRatio)
	}
	if img.Rect.Dx() != e.width || img.Rect.Dy() != e.height {
		return nil, errors.Errorf("avc: picture is %dx%d, encoder expects %dx%d",
			img.Rect.Dx(), img.Rect.Dy(), e.width, e.height)
	}
	e.loadSource(img)

	idr := e.count%e.opts.GOP == 0
	var out [][]byte
	nal := h264.NALHeader{RefIdc: 2, Type: h264.NALSlice}
	hdr := &h264.SliceHeader{Type: h264.SliceP, Marking: &h264.DecRefPicMarking{}}
	if idr {
		spsRBSP, err := e.sps.Marshal()
		if err != nil {
			return nil, err
		}
		ppsRBSP, err := e.pps.Marshal(e.sps)
		if err != nil {
			return nil, err
		}
		out = append(out,
			withHeader(h264.NALHeader{RefIdc: 3, Type: h264.NALSPS}, spsRBSP),
			withHeader(h264.NALHeader{RefIdc: 3, Type: h264.NALPPS}, ppsRBSP))
		nal = h264.NALHeader{RefIdc: 3, Type: h264.NALIDRSlice}
		hdr.Type = h264.SliceI
		hdr.IDRPicID = e.idrID
		e.idrID = (e.idrID + 1) & 0xffff
		e.count = 0
		e.frameNum = 0
	} else {
		e.frameNum = (e.frameNum + 1) % uint32(e.sps.MaxFrameNum())
	}
	hdr.RawSliceType = uint32(hdr.Type) + 5
	hdr.FrameNum = e.frameNum
	hdr.SliceQPDelta = int32(e.opts.QP - e.pps.InitQP())
	if e.opts.DisableDeblocking {
		hdr.DisableDeblockingFilter = 1
	}

	slice, pic, err := e.encodeSlice(nal, hdr)
	if err != nil {
		if pic != nil {
			pic.Release()
		}
		return nil, errors.Wrapf(err, "could not encode picture %d", e.count)
	}
	recon.Deblock(pic)
	pic.FrameNum = int(e.frameNum)
	pic.POC = 2 * e.count
	pic.IDR = idr
	if e.ref != nil {
		e.ref.Release()
	}
	e.ref = pic
	e.count++
	return append(out, slice), nil
}

func withHeader(h h264.NALHeader, rbsp []byte) []byte {
	return append([]byte{h.Byte()}, rbsp...)
}

// loadSource copies img into macroblock-aligned planes, replicating the
// right and bottom edges.
func (e *Encoder) loadSource(img *image.YCbCr) {
	w, h := e.sps.MbWidth()*16, e.sps.MbHeight()*16
	r := img.Rect
	for y := 0; y < h; y++ {
		sy := r.Min.Y + min(y, r.Dy()-1)
		for x := 0; x < w; x++ {
			sx := r.Min.X + min(x, r.Dx()-1)
			e.srcY[y*w+x] = img.Y[img.YOffset(sx, sy)]
		}
	}
	cw, ch := w/2, h/2
	for y := 0; y < ch; y++ {
		sy := r.Min.Y + min(2*y, r.Dy()-1)
		for x := 0; x < cw; x++ {
			sx := r.Min.X + min(2*x, r.Dx()-1)
			off := img.COffset(sx, sy)
			e.srcCb[y*cw+x] = img.Cb[off]
			e.srcCr[y*cw+x] = img.Cr[off]
		}
	}
}

func (e *Encoder) encodeSlice(nal h264.NALHeader, hdr *h264.SliceHeader) ([]byte, *recon.Picture, error) {
	sw, err := h264.NewSliceWriter(nal, hdr, e.sps, e.pps)
	if err != nil {
		return nil, nil, err
	}
	pic := recon.NewPicture(e.sps)
	r := recon.NewRenderer(pic)
	if hdr.Type == h264.SliceP {
		if e.ref == nil {
			return nil, pic, errors.New("avc: P picture without reference")
		}
		r.Refs[0] = []*recon.Picture{e.ref}
	}
	s := sw.Slice()
	if err := r.StartSlice(s); err != nil {
		return nil, pic, err
	}
	for addr := sw.NextAddress(); addr >= 0; addr = sw.NextAddress() {
		common := h264.MBCommon{
			Addr: addr,
			MbX:  s.Mapper.MbX(addr),
			MbY:  s.Mapper.MbY(addr),
			QP:   sw.QP(),
		}
		if hdr.Type == h264.SliceP {
			err = e.encodeInter(sw, r, common)
		} else {
			err = e.encodeIntra(sw, r, common)
		}
		if err != nil {
			return nil, pic, err
		}
	}
	data, err := sw.Finish()
	return data, pic, err
}

func (e *Encoder) encodeIntra(sw *h264.SliceWriter, r *recon.Renderer, common h264.MBCommon) error {
	mb := &h264.Intra16x16{MBCommon: common}
	best, bestLuma := -1, uint8(h264.Intra16x16DC)
	for _, mode := range []uint8{h264.Intra16x16DC, h264.Intra16x16Vertical, h264.Intra16x16Horizontal, h264.Intra16x16Plane} {
		mb.PredMode = mode
		if err := r.Intra16x16(mb); err != nil {
			continue
		}
		if cost := e.lumaSAD(r.Pic, common.MbX, common.MbY); best < 0 || cost < best {
			best, bestLuma = cost, mode
		}
	}
	mb.PredMode = bestLuma
	best = -1
	bestChroma := uint8(h264.ChromaDC)
	for _, mode := range []uint8{h264.ChromaDC, h264.ChromaHorizontal, h264.ChromaVertical, h264.ChromaPlane} {
		mb.ChromaPred = mode
		if err := r.Intra16x16(mb); err != nil {
			continue
		}
		if cost := e.chromaSAD(r.Pic, common.MbX, common.MbY); best < 0 || cost < best {
			best, bestChroma = cost, mode
		}
	}
	mb.ChromaPred = bestChroma
	if err := r.Intra16x16(mb); err != nil {
		return err
	}
	luma := e.lumaResidual(r.Pic, common, true, &mb.Residual)
	chroma := e.chromaResidual(r.Pic, common, true, &mb.Residual)
	mb.CBP = h264.CBP(chroma<<4) | h264.CBP(luma)
	if err := sw.Write(mb); err != nil {
		return err
	}
	return r.Intra16x16(mb)
}

func (e *Encoder) encodeInter(sw *h264.SliceWriter, r *recon.Renderer, common h264.MBCommon) error {
	mv := e.search(common.MbX, common.MbY)
	skipMV := sw.PredictSkipMV()
	mb := &h264.Inter{
		MBCommon: common,
		Shape:    h264.Part16x16,
		Pred:     [2]h264.PredDir{h264.PredL0, h264.PredL0},
		RefIdx:   [2][2]int8{{0, -1}, {-1, -1}},
	}
	mb.MV[0][0] = mv
	if err := r.Inter(mb); err != nil {
		return err
	}
	luma := e.lumaResidual(r.Pic, common, false, &mb.Residual)
	chroma := e.chromaResidual(r.Pic, common, false, &mb.Residual)
	mb.CBP = h264.CBP(chroma<<4) | h264.CBP(luma)
	if mb.CBP == 0 && mv == skipMV {
		skip := &h264.PSkip{MBCommon: common}
		if err := sw.Write(skip); err != nil {
			return err
		}
		return r.PSkip(skip)
	}
	if err := sw.Write(mb); err != nil {
		return err
	}
	return r.Inter(mb)
}

// search returns the full-sample motion vector with the least luma SAD
// inside the search window, preferring the earliest candidate on ties.
func (e *Encoder) search(mbx, mby int) h264.MV {
	ref := e.ref
	w := e.sps.MbWidth() * 16
	x0, y0 := mbx*16, mby*16
	rng := e.opts.SearchRange
	best, bestX, bestY := -1, 0, 0
	for dy := -rng; dy <= rng; dy++ {
		for dx := -rng; dx <= rng; dx++ {
			sad := 0
			for y := 0; y < 16 && (best < 0 || sad <= best); y++ {
				ry := clamp(y0+y+dy, 0, ref.Height()-1) * ref.YStride
				src := e.srcY[(y0+y)*w+x0:]
				for x := 0; x < 16; x++ {
					rx := clamp(x0+x+dx, 0, ref.Width()-1)
					sad += absDiff(int(src[x]), int(ref.Y[ry+rx]))
				}
			}
			if best < 0 || sad < best || (sad == best && dx*dx+dy*dy < bestX*bestX+bestY*bestY) {
				best, bestX, bestY = sad, dx, dy
			}
		}
	}
	return h264.MV{X: int16(4 * bestX), Y: int16(4 * bestY)}
}

func (e *Encoder) lumaSAD(p *recon.Picture, mbx, mby int) int {
	w := e.sps.MbWidth() * 16
	sad := 0
	for y := 0; y < 16; y++ {
		for x := 0; x < 16; x++ {
			px, py := mbx*16+x, mby*16+y
			sad += absDiff(int(e.srcY[py*w+px]), int(p.Y[py*p.YStride+px]))
		}
	}
	return sad
}

func (e *Encoder) chromaSAD(p *recon.Picture, mbx, mby int) int {
	cw := e.sps.MbWidth() * 8
	sad := 0
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			px, py := mbx*8+x, mby*8+y
			sad += absDiff(int(e.srcCb[py*cw+px]), int(p.Cb[py*p.CStride+px]))
			sad += absDiff(int(e.srcCr[py*cw+px]), int(p.Cr[py*p.CStride+px]))
		}
	}
	return sad
}

// diff4x4 loads the raster-order difference between the source and the
// prediction held in the picture plane.
func diff4x4(out *[16]int32, src []uint8, srcStride int, pred []uint8, predStride int) {
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			out[y*4+x] = int32(src[y*srcStride+x]) - int32(pred[y*predStride+x])
		}
	}
}

// lumaResidual codes the luma residual of the prediction already written
// to p and returns the luma coded_block_pattern.
func (e *Encoder) lumaResidual(p *recon.Picture, c h264.MBCommon, intra16 bool, res *h264.Residual) int {
	w := e.sps.MbWidth() * 16
	var dc [16]int32
	cbp := 0
	for b := 0; b < 16; b++ {
		bx, by := h264.BlockPos(b)
		x, y := c.MbX*16+bx*4, c.MbY*16+by*4
		var blk [16]int32
		diff4x4(&blk, e.srcY[y*w+x:], w, p.Y[y*p.YStride+x:], p.YStride)
		recon.Forward4x4(&blk)
		if intra16 {
			dc[by*4+bx] = blk[0]
			if recon.Quant4x4(&blk, c.QP, true, true, &res.Luma[b]) > 0 {
				cbp = 15
			}
			continue
		}
		if recon.Quant4x4(&blk, c.QP, false, false, &res.Luma[b]) > 0 {
			cbp |= 1 << (b / 4)
		}
	}
	if intra16 {
		recon.ForwardLumaDC(&dc)
		recon.QuantLumaDC(&dc, c.QP, &res.LumaDC)
		if cbp == 0 {
			res.Luma = [16][16]int32{}
		}
	}
	return cbp
}

// chromaResidual codes both chroma residuals and returns the chroma
// coded_block_pattern (0, 1 or 2).
func (e *Encoder) chromaResidual(p *recon.Picture, c h264.MBCommon, intra bool, res *h264.Residual) int {
	cw := e.sps.MbWidth() * 8
	qp := recon.ChromaQP(c.QP, e.pps.ChromaQPOffset(0))
	hasDC, hasAC := false, false
	for comp, planes := range [2][2][]uint8{{e.srcCb, p.Cb}, {e.srcCr, p.Cr}} {
		var dc [4]int32
		for b := 0; b < 4; b++ {
			x, y := c.MbX*8+(b&1)*4, c.MbY*8+(b>>1)*4
			var blk [16]int32
			diff4x4(&blk, planes[0][y*cw+x:], cw, planes[1][y*p.CStride+x:], p.CStride)
			recon.Forward4x4(&blk)
			dc[b] = blk[0]
			if recon.Quant4x4(&blk, qp, intra, true, &res.ChromaAC[comp][b]) > 0 {
				hasAC = true
			}
		}
		if recon.ForwardChromaDC(&dc, qp, intra, &res.ChromaDC[comp]) > 0 {
			hasDC = true
		}
	}
	switch {
	case hasAC:
		return 2
	case hasDC:
		return 1
	}
	return 0
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func absDiff(a, b int) int {
	if a > b {
		return a - b
	}
	return b - a
}
