package vp8

import (
	"image"
	"math"
	"math/bits"

	"github.com/pkg/errors"

	"github.com/deepteams/vcodec/internal/bitio"
	"github.com/deepteams/vcodec/internal/codecerr"
	"github.com/deepteams/vcodec/internal/dsp"
)

// EncoderOptions configures an Encoder. Zero fields take the documented
// defaults.
type EncoderOptions struct {
	// Quality, 1..100, selects the quantiser: 100 is the finest. Default 75.
	Quality int
	// FilterLevel is the loop filter level, 1..63. Zero derives it from
	// the quantiser.
	FilterLevel int
	// Sharpness of the loop filter, 0..7.
	Sharpness int
	// SimpleFilter selects the luma-only simple loop filter.
	SimpleFilter bool
	// DisableLoopFilter turns the loop filter off.
	DisableLoopFilter bool
	// Partitions is the number of token partitions: 1, 2, 4 or 8.
	// Default 1.
	Partitions int
	// KeyInterval is the distance between key frames. Default 30.
	KeyInterval int
	// SearchRange bounds the full-sample motion search. Default 8.
	SearchRange int
	// DisableBPred restricts intra macroblocks to the 16x16 modes.
	DisableBPred bool
}

// mbLevels are the quantised coefficients of one macroblock in coding
// order: 16 luma blocks, 4 U, 4 V, then Y2. last is one past the last
// non-zero level of each block.
type mbLevels struct {
	levels [25][16]int16
	last   [25]uint8
}

const y2Block = 24

// coded reports whether any block that will be transmitted has a level.
func (lv *mbLevels) coded(withY2 bool) bool {
	for b, n := range lv.last {
		if n > 0 && (b != y2Block || withY2) {
			return true
		}
	}
	return false
}

// Encoder produces a VP8 stream of key frames and inter frames predicted
// from the last frame. Intra macroblocks use the 16x16 modes or B_PRED;
// inter macroblocks use ZEROMV, NEARESTMV, NEARMV or a full-sample NEWMV.
// Every choice minimises prediction error plus a fixed mode bias.
type Encoder struct {
	state
	opts   EncoderOptions
	q      int
	count  int
	levels []mbLevels

	srcY, srcU, srcV []byte
	src              workBuf // source macroblock, laid out like the work buffer
	scratch          [dsp.BPS * 16]byte
}

// NewEncoder returns an encoder for width x height pictures.
func NewEncoder(width, height int, opts *EncoderOptions) (*Encoder, error) {
	if width <= 0 || height <= 0 || width > 0x3fff || height > 0x3fff {
		return nil, errors.Errorf("vp8: invalid picture size %dx%d", width, height)
	}
	e := &Encoder{}
	if opts != nil {
		e.opts = *opts
	}
	o := &e.opts
	if o.Quality == 0 {
		o.Quality = 75
	}
	if o.Quality < 1 || o.Quality > 100 {
		return nil, errors.Errorf("vp8: quality %d out of range [1, 100]", o.Quality)
	}
	if o.Sharpness < 0 || o.Sharpness > 7 {
		return nil, errors.Errorf("vp8: sharpness %d out of range [0, 7]", o.Sharpness)
	}
	if o.FilterLevel < 0 || o.FilterLevel > 63 {
		return nil, errors.Errorf("vp8: filter level %d out of range [0, 63]", o.FilterLevel)
	}
	if o.Partitions == 0 {
		o.Partitions = 1
	}
	if o.Partitions > 8 || bits.OnesCount(uint(o.Partitions)) != 1 {
		return nil, errors.Errorf("vp8: %d token partitions, want 1, 2, 4 or 8", o.Partitions)
	}
	if o.KeyInterval <= 0 {
		o.KeyInterval = 30
	}
	if o.SearchRange <= 0 {
		o.SearchRange = 8
	}
	e.q = (100 - o.Quality) * 127 / 99
	if o.FilterLevel == 0 {
		o.FilterLevel = max(e.q/3, 1)
	}

	e.setSize(width, height)
	n := e.mbW * e.mbH
	e.levels = make([]mbLevels, n)
	e.srcY = make([]byte, 256*n)
	e.srcU = make([]byte, 64*n)
	e.srcV = make([]byte, 64*n)
	return e, nil
}

// Close releases the reference frames.
func (e *Encoder) Close() {
	e.release()
}

// Reconstruction returns a copy of the last encoded frame as the decoder
// will reconstruct it. The frame belongs to the caller.
func (e *Encoder) Reconstruction() *Frame {
	p := e.refs[refLast]
	if p == nil {
		return nil
	}
	f := newFrame(p, e.width, e.height)
	f.Show, f.KeyFrame = true, e.keyFrame
	return f
}

// Encode codes one 4:2:0 picture into a compressed frame.
func (e *Encoder) Encode(img *image.YCbCr) ([]byte, error) {
	if img.SubsampleRatio != image.YCbCrSubsampleRatio420 {
		return nil, codecerr.Unsupportedf("subsample ratio %v", img.SubsampleRatio)
	}
	if img.Rect.Dx() != e.width || img.Rect.Dy() != e.height {
		return nil, errors.Errorf("vp8: picture is %dx%d, encoder expects %dx%d",
			img.Rect.Dx(), img.Rect.Dy(), e.width, e.height)
	}
	e.loadSource(img)

	e.keyFrame = e.count%e.opts.KeyInterval == 0
	if e.keyFrame {
		e.resetKeyFrame()
	}
	e.setupHeader()
	e.startFrame()
	for mbY := 0; mbY < e.mbH; mbY++ {
		for mbX := 0; mbX < e.mbW; mbX++ {
			e.encodeMB(mbX, mbY)
		}
	}
	e.filterFrame()
	data, err := e.writeFrame()
	if err != nil {
		e.cur.release()
		e.cur = nil
		return nil, errors.Wrapf(err, "could not encode frame %d", e.count)
	}
	e.updateRefs()
	e.count++
	return data, nil
}

// loadSource copies img into macroblock-aligned planes, replicating the
// right and bottom edges.
func (e *Encoder) loadSource(img *image.YCbCr) {
	w, h := e.mbW*16, e.mbH*16
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
			e.srcU[y*cw+x] = img.Cb[off]
			e.srcV[y*cw+x] = img.Cr[off]
		}
	}
}

func (e *Encoder) setupHeader() {
	h := &e.hdr
	h.colorSpace, h.clampType = 0, 0
	h.numParts = e.opts.Partitions
	h.quant = quantIndices{base: e.q}
	h.refreshEntropy = true
	if !e.keyFrame {
		h.refreshGolden, h.refreshAlt, h.refreshLast = false, false, true
		h.copyToGolden, h.copyToAlt = 0, 0
	}
	h.useSkip = true
	e.seg = segmentHeader{}
	e.filter = filterHeader{
		simple:    e.opts.SimpleFilter,
		level:     e.opts.FilterLevel,
		sharpness: e.opts.Sharpness,
	}
	if e.opts.DisableLoopFilter {
		e.filter.level = 0
	}
}

// loadSourceMB copies the source macroblock into the source work buffer.
func (e *Encoder) loadSourceMB(mbX, mbY int) {
	stride := 16 * e.mbW
	for j := 0; j < 16; j++ {
		copy(e.src.y[yOff+j*dsp.BPS:][:16], e.srcY[(mbY*16+j)*stride+mbX*16:])
	}
	for j := 0; j < 8; j++ {
		o := (mbY*8+j)*stride/2 + mbX*8
		copy(e.src.u[uvOff+j*dsp.BPS:][:8], e.srcU[o:])
		copy(e.src.v[uvOff+j*dsp.BPS:][:8], e.srcV[o:])
	}
}

// encodeMB decides the prediction of one macroblock, quantises its
// residual and reconstructs it the way the decoder will.
func (e *Encoder) encodeMB(mbX, mbY int) {
	idx := mbY*e.mbW + mbX
	mb := &e.mbs[idx]
	*mb = mbInfo{}
	e.segMap[idx] = 0
	lv := &e.levels[idx]
	*lv = mbLevels{}
	e.loadSourceMB(mbX, mbY)

	if !e.keyFrame && e.chooseInter(mb, mbX, mbY) {
		e.predictInter(mb, mbX, mbY)
		e.codeLuma16(lv)
	} else {
		e.chooseIntra(mb, mbX, mbY, lv)
	}
	e.codeChroma(lv)

	mb.coeffs = lv.coded(mb.hasY2())
	mb.skip = !mb.coeffs
	e.dequantize(mb, lv, &e.res)
	e.reconstruct(mb, mbX, mbY, &e.res)
}

// Mode biases, in units of the luma AC step.
const (
	nearBias  = 1
	newMVBias = 3
	intraBias = 6
	bpredBias = 4
)

// chooseInter picks the inter prediction from the last frame and reports
// whether it beats the best 16x16 intra prediction.
func (e *Encoder) chooseInter(mb *mbInfo, mbX, mbY int) bool {
	lambda := e.dqm[0].y1[1]
	near := e.census(mbX, mbY, refLast)
	ry, _, _ := e.refs[refLast].refPlanes()

	mode, mv := uint8(modeZeroMV), motionVector{}
	cost := e.interSAD(ry, mbX, mbY, mv)
	for _, c := range [2]struct {
		mode uint8
		mv   motionVector
	}{{modeNearestMV, near.nearest}, {modeNearMV, near.near}} {
		if c2 := e.interSAD(ry, mbX, mbY, c.mv) + nearBias*lambda; c2 < cost {
			mode, mv, cost = c.mode, c.mv, c2
		}
	}
	if v, sad := e.search(ry, mbX, mbY); v != mv {
		d := v.add(near.best.neg())
		if abs(int(d.x)) <= maxMVDelta && abs(int(d.y)) <= maxMVDelta && sad+newMVBias*lambda < cost {
			mode, mv, cost = modeNewMV, v, sad+newMVBias*lambda
		}
	}

	e.loadEdges(mbX, mbY)
	if _, intra := e.bestLuma16(mbX, mbY, sad16); intra+intraBias*lambda < cost {
		return false
	}
	mb.ref, mb.ymode, mb.mv = refLast, mode, mv
	for b := range mb.bmv {
		mb.bmv[b] = mv
	}
	return true
}

// search runs a full-sample search around the zero vector.
func (e *Encoder) search(ref *dsp.RefPlane, mbX, mbY int) (motionVector, int) {
	r := e.opts.SearchRange
	b := newMVBounds(mbX, mbY, e.mbW, e.mbH)
	best, bestSAD := motionVector{}, math.MaxInt
	for dy := -r; dy <= r; dy++ {
		for dx := -r; dx <= r; dx++ {
			v := motionVector{int16(4 * dx), int16(4 * dy)}
			if b.clamp(v) != v {
				continue
			}
			if sad := e.interSAD(ref, mbX, mbY, v); sad < bestSAD {
				best, bestSAD = v, sad
			}
		}
	}
	return best, bestSAD
}

// interSAD is the luma SAD of the prediction from ref displaced by v.
func (e *Encoder) interSAD(ref *dsp.RefPlane, mbX, mbY int, v motionVector) int {
	x, y := int(v.x), int(v.y)
	dsp.PredictBlock(e.scratch[:], 0, dsp.BPS, ref, mbX*16+x>>2, mbY*16+y>>2, (x&3)*2, (y&3)*2, 16, 16, e.interpolation())
	return sad16(e.src.y[yOff:], e.scratch[:])
}

func sad16(a, b []byte) int {
	s := 0
	for j := 0; j < 16; j++ {
		for i := 0; i < 16; i++ {
			s += abs(int(a[j*dsp.BPS+i]) - int(b[j*dsp.BPS+i]))
		}
	}
	return s
}

// sse returns the squared error between two BPS-strided w x h blocks.
func sse(a, b []byte, w, h int) int {
	s := 0
	for j := 0; j < h; j++ {
		for i := 0; i < w; i++ {
			d := int(a[j*dsp.BPS+i]) - int(b[j*dsp.BPS+i])
			s += d * d
		}
	}
	return s
}

func sse16(a, b []byte) int { return sse(a, b, 16, 16) }

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// bestLuma16 returns the 16x16 intra mode with the least distortion.
// The edges must already be loaded.
func (e *Encoder) bestLuma16(mbX, mbY int, dist func(a, b []byte) int) (uint8, int) {
	best, bestCost := uint8(dsp.DCPred), math.MaxInt
	for _, m := range [4]uint8{dsp.DCPred, dsp.TMPred, dsp.VPred, dsp.HPred} {
		if (m == dsp.VPred || m == dsp.TMPred) && mbY == 0 || (m == dsp.HPred || m == dsp.TMPred) && mbX == 0 {
			continue
		}
		dsp.PredLuma16[checkMode(mbX, mbY, m)](e.work.y[:], yOff)
		if c := dist(e.src.y[yOff:], e.work.y[yOff:]); c < bestCost {
			best, bestCost = m, c
		}
	}
	return best, bestCost
}

// chooseIntra picks the intra luma and chroma modes, leaving the chroma
// prediction in the work buffer and the luma levels in lv.
func (e *Encoder) chooseIntra(mb *mbInfo, mbX, mbY int, lv *mbLevels) {
	e.loadEdges(mbX, mbY)
	mode, cost := e.bestLuma16(mbX, mbY, sse16)
	if !e.opts.DisableBPred {
		lambda := e.dqm[0].y1[1]
		var trial mbLevels
		if e.tryBPred(mb, mbX, mbY, &trial)+bpredBias*lambda*lambda < cost {
			mb.ymode = dsp.BPred
			copy(lv.levels[:16], trial.levels[:16])
			copy(lv.last[:16], trial.last[:16])
			e.chooseChroma(mb, mbX, mbY)
			return
		}
	}
	mb.ymode = mode
	mb.bmodes = [16]uint8{}
	if e.keyFrame {
		for b := range mb.bmodes {
			mb.bmodes[b] = mode
		}
	}
	dsp.PredLuma16[checkMode(mbX, mbY, mode)](e.work.y[:], yOff)
	e.codeLuma16(lv)
	e.chooseChroma(mb, mbX, mbY)
}

// tryBPred codes the luma of the macroblock as 16 sub-blocks, each
// predicted from the reconstruction of the previous ones. It returns the
// summed prediction error.
func (e *Encoder) tryBPred(mb *mbInfo, mbX, mbY int, lv *mbLevels) int {
	w, q := &e.work, &e.dqm[0]
	var coeffs [16]int16
	total := 0
	for b := 0; b < 16; b++ {
		o := yOff + dsp.Scan[b]
		best, bestCost := uint8(dsp.BDCPred), math.MaxInt
		for m := uint8(0); m < numBModes; m++ {
			dsp.PredLuma4[m](w.y[:], o)
			if c := sse(e.src.y[o:], w.y[o:], 4, 4); c < bestCost {
				best, bestCost = m, c
			}
		}
		mb.bmodes[b] = best
		total += bestCost
		dsp.PredLuma4[best](w.y[:], o)
		dsp.FTransform(e.src.y[o:], w.y[o:], coeffs[:])
		lv.last[b] = uint8(dsp.QuantizeBlock(coeffs[:], lv.levels[b][:], q.y1, 0))
		dsp.DequantizeBlock(lv.levels[b][:], e.res.coeffs[16*b:16*b+16], q.y1)
		e.res.last[b] = lv.last[b]
		e.addLuma(&e.res, b)
	}
	return total
}

func (e *Encoder) chooseChroma(mb *mbInfo, mbX, mbY int) {
	w := &e.work
	best, bestCost := uint8(dsp.DCPred), math.MaxInt
	for _, m := range [4]uint8{dsp.DCPred, dsp.TMPred, dsp.VPred, dsp.HPred} {
		if (m == dsp.VPred || m == dsp.TMPred) && mbY == 0 || (m == dsp.HPred || m == dsp.TMPred) && mbX == 0 {
			continue
		}
		mode := checkMode(mbX, mbY, m)
		dsp.PredChroma8[mode](w.u[:], uvOff)
		dsp.PredChroma8[mode](w.v[:], uvOff)
		c := sse(e.src.u[uvOff:], w.u[uvOff:], 8, 8) + sse(e.src.v[uvOff:], w.v[uvOff:], 8, 8)
		if c < bestCost {
			best, bestCost = m, c
		}
	}
	mb.uvmode = best
	mode := checkMode(mbX, mbY, best)
	dsp.PredChroma8[mode](w.u[:], uvOff)
	dsp.PredChroma8[mode](w.v[:], uvOff)
}

// codeLuma16 quantises the luma residual against the prediction in the
// work buffer, sending the DCs through the Y2 block.
func (e *Encoder) codeLuma16(lv *mbLevels) {
	q := &e.dqm[0]
	var coeffs [16]int16
	var dc, wht [16]int16
	for b := 0; b < 16; b++ {
		o := yOff + dsp.Scan[b]
		dsp.FTransform(e.src.y[o:], e.work.y[o:], coeffs[:])
		dc[b] = coeffs[0]
		lv.last[b] = uint8(dsp.QuantizeBlock(coeffs[:], lv.levels[b][:], q.y1, 1))
	}
	dsp.FTransformWHT(dc[:], wht[:])
	lv.last[y2Block] = uint8(dsp.QuantizeBlock(wht[:], lv.levels[y2Block][:], q.y2, 0))
}

func (e *Encoder) codeChroma(lv *mbLevels) {
	q := &e.dqm[0]
	var coeffs [16]int16
	for ch, p := range [2][2][]byte{{e.src.u[:], e.work.u[:]}, {e.src.v[:], e.work.v[:]}} {
		for b := 0; b < 4; b++ {
			o := uvOff + 4*(b&1) + 4*dsp.BPS*(b>>1)
			dsp.FTransform(p[0][o:], p[1][o:], coeffs[:])
			i := 16 + 4*ch + b
			lv.last[i] = uint8(dsp.QuantizeBlock(coeffs[:], lv.levels[i][:], q.uv, 0))
		}
	}
}

// dequantize expands the levels of a macroblock into the residual the
// decoder reads from the bitstream.
func (s *state) dequantize(mb *mbInfo, lv *mbLevels, r *residual) {
	q := &s.dqm[mb.segment]
	r.reset()
	first := 0
	if mb.hasY2() {
		var dc [16]int16
		dsp.DequantizeBlock(lv.levels[y2Block][:], dc[:], q.y2)
		dsp.TransformWHT(dc[:], r.coeffs[:])
		first = 1
	}
	var tmp [16]int16
	for b := 0; b < 16; b++ {
		dsp.DequantizeBlock(lv.levels[b][:], tmp[:], q.y1)
		for n := first; n < 16; n++ {
			r.coeffs[16*b+dsp.Zigzag[n]] = tmp[dsp.Zigzag[n]]
		}
		r.last[b] = lv.last[b]
	}
	for b := 16; b < 24; b++ {
		dsp.DequantizeBlock(lv.levels[b][:], r.coeffs[16*b:16*b+16], q.uv)
		r.last[b] = lv.last[b]
	}
}

// emitTokens walks the macroblocks in raster order, tracking the token
// contexts the decoder will see, and sends the tokens of row y to sink(y).
func (e *Encoder) emitTokens(sink func(mbY int) tokenSink) {
	for i := range e.topNz {
		e.topNz[i] = nzContext{}
	}
	for mbY := 0; mbY < e.mbH; mbY++ {
		var left nzContext
		out := sink(mbY)
		for mbX := 0; mbX < e.mbW; mbX++ {
			mb := e.at(mbX, mbY)
			top := &e.topNz[mbX]
			if mb.skip {
				top.clear(mb.hasY2())
				left.clear(mb.hasY2())
				continue
			}
			putResiduals(out, mb, &e.levels[mbY*e.mbW+mbX], top, &left)
		}
	}
}

// putResiduals is the inverse of parseResiduals.
func putResiduals(sink tokenSink, mb *mbInfo, lv *mbLevels, top, left *nzContext) {
	first, ytype := 0, typeYWithDC
	if mb.hasY2() {
		n := int(lv.last[y2Block])
		putCoeffs(sink, typeY2, int(top.y2+left.y2), lv.levels[y2Block][:], 0, n)
		nz := uint8(boolInt(n > 0))
		top.y2, left.y2 = nz, nz
		first, ytype = 1, typeYAfterY2
	}
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			b := 4*y + x
			n := int(lv.last[b])
			putCoeffs(sink, ytype, int(top.y[x]+left.y[y]), lv.levels[b][:], first, n)
			nz := uint8(boolInt(n > first))
			top.y[x], left.y[y] = nz, nz
		}
	}
	for ch := 0; ch < 2; ch++ {
		tc, lc := &top.u, &left.u
		if ch == 1 {
			tc, lc = &top.v, &left.v
		}
		for y := 0; y < 2; y++ {
			for x := 0; x < 2; x++ {
				i := 16 + 4*ch + 2*y + x
				n := int(lv.last[i])
				putCoeffs(sink, typeUV, int(tc[x]+lc[y]), lv.levels[i][:], 0, n)
				nz := uint8(boolInt(n > 0))
				tc[x], lc[y] = nz, nz
			}
		}
	}
}

// bitCost is the cost in 1/256 bit of coding bit with probability p of a
// zero.
func bitCost(bit int, p uint8) int {
	n := int(p)
	if bit != 0 {
		n = 256 - n
	}
	if n == 0 {
		return 1 << 16
	}
	return int(math.Round(-math.Log2(float64(n)/256) * 256))
}

func branchCost(n0, n1 uint32, p uint8) int {
	return int(n0)*bitCost(0, p) + int(n1)*bitCost(1, p)
}

// coeffProbas returns the coefficient probabilities for the next frame,
// replacing a current one whenever the saving pays for its update.
func (e *Encoder) coeffProbas(stats *tokenStats) *[numTypes][numBands][numCtx][numProbas]uint8 {
	next := e.proba.coeff
	for t := range stats {
		for b := range stats[t] {
			for c := range stats[t][b] {
				for i, cnt := range stats[t][b][c] {
					total := cnt[0] + cnt[1]
					if total == 0 {
						continue
					}
					newP := uint8(255)
					if cnt[1] > 0 {
						newP = uint8(max(255-int(cnt[1])*255/int(total), 1))
					}
					old := e.proba.coeff[t][b][c][i]
					up := coeffsUpdateProba[t][b][c][i]
					oldCost := branchCost(cnt[0], cnt[1], old) + bitCost(0, up)
					newCost := branchCost(cnt[0], cnt[1], newP) + bitCost(1, up) + 8*256
					if oldCost > newCost {
						next[t][b][c][i] = newP
					}
				}
			}
		}
	}
	return &next
}

// ratio returns 255*n/total clamped to a usable probability.
func ratio(n, total int) uint8 {
	if total == 0 {
		return 128
	}
	return uint8(max(1, min(255*n/total, 255)))
}

// frameProbas derives the skip and reference probabilities from the
// decided macroblocks.
func (e *Encoder) frameProbas() {
	var coded, intra int
	for i := range e.mbs {
		mb := &e.mbs[i]
		coded += boolInt(!mb.skip)
		intra += boolInt(!mb.isInter())
	}
	h := &e.hdr
	h.skipProba = min(ratio(coded, len(e.mbs)), 254)
	h.intraProba = ratio(intra, len(e.mbs))
	h.lastProba = 255
	h.goldenProba = 128
}

// writeHeader is the inverse of parseHeader. The coefficient probabilities
// become next.
func (s *state) writeHeader(bw *bitio.BoolWriter, next *[numTypes][numBands][numCtx][numProbas]uint8) {
	h := &s.hdr
	if s.keyFrame {
		bw.PutBits(uint32(h.colorSpace), 1)
		bw.PutBits(uint32(h.clampType), 1)
	}
	s.seg.write(bw)
	s.filter.write(bw)
	bw.PutBits(uint32(bits.TrailingZeros(uint(h.numParts))), 2)
	h.quant.write(bw)
	if s.keyFrame {
		putFlag(bw, h.refreshEntropy)
	} else {
		putFlag(bw, h.refreshGolden)
		putFlag(bw, h.refreshAlt)
		if !h.refreshGolden {
			bw.PutBits(uint32(h.copyToGolden), 2)
		}
		if !h.refreshAlt {
			bw.PutBits(uint32(h.copyToAlt), 2)
		}
		putFlag(bw, h.signBias[refGolden])
		putFlag(bw, h.signBias[refAltRef])
		putFlag(bw, h.refreshEntropy)
		putFlag(bw, h.refreshLast)
	}
	if !h.refreshEntropy {
		s.saved = s.proba
	}
	s.proba.writeCoeffUpdates(bw, next)
	putFlag(bw, h.useSkip)
	if h.useSkip {
		bw.PutBits(uint32(h.skipProba), 8)
	}
	if !s.keyFrame {
		bw.PutBits(uint32(h.intraProba), 8)
		bw.PutBits(uint32(h.lastProba), 8)
		bw.PutBits(uint32(h.goldenProba), 8)
		putFlag(bw, false)
		putFlag(bw, false)
		for i := range mvUpdateProba {
			for _, p := range mvUpdateProba[i] {
				bw.PutBit(0, int(p))
			}
		}
	}
}

// writeFrame assembles the frame tag, the first partition and the token
// partitions.
func (e *Encoder) writeFrame() ([]byte, error) {
	var stats tokenStats
	e.emitTokens(func(int) tokenSink { return &stats })
	next := e.coeffProbas(&stats)
	e.frameProbas()

	n := e.mbW * e.mbH
	bw := bitio.NewBoolWriter(64 + 4*n)
	e.writeHeader(bw, next)
	for mbY := 0; mbY < e.mbH; mbY++ {
		for mbX := 0; mbX < e.mbW; mbX++ {
			e.writeModes(bw, mbX, mbY)
		}
	}
	first := bw.Finish()
	if err := bw.Err(); err != nil {
		return nil, err
	}
	if len(first) >= 1<<19 {
		return nil, errors.Errorf("vp8: first partition of %d bytes exceeds the frame tag limit", len(first))
	}

	writers := make([]*bitio.BoolWriter, e.hdr.numParts)
	for i := range writers {
		writers[i] = bitio.NewBoolWriter(64 * n / len(writers))
	}
	e.emitTokens(func(mbY int) tokenSink {
		return tokenWriter{bw: writers[mbY&(len(writers)-1)], proba: &e.proba}
	})
	parts := make([][]byte, len(writers))
	size := 0
	for i, w := range writers {
		parts[i] = w.Finish()
		if err := w.Err(); err != nil {
			return nil, err
		}
		size += len(parts[i])
	}

	tag := frameTag{
		keyFrame:      e.keyFrame,
		show:          true,
		firstPartSize: len(first),
		width:         e.width,
		height:        e.height,
	}
	out := make([]byte, 0, tag.size()+len(first)+3*len(parts)+size)
	out = tag.append(out)
	out = append(out, first...)
	for _, p := range parts[:len(parts)-1] {
		if len(p) >= 1<<24 {
			return nil, errors.Errorf("vp8: token partition of %d bytes is too large", len(p))
		}
		out = append(out, byte(len(p)), byte(len(p)>>8), byte(len(p)>>16))
	}
	for _, p := range parts {
		out = append(out, p...)
	}
	return out, nil
}
