package vp8

import (
	"encoding/binary"

	"github.com/deepteams/vcodec/internal/bitio"
	"github.com/deepteams/vcodec/internal/codecerr"
)

// Frame tag sizes.
const (
	tagSize      = 3
	keyFrameInfo = 7 // start code plus dimensions
)

var startCode = [3]byte{0x9d, 0x01, 0x2a}

// frameTag is the uncompressed data chunk that opens every frame.
type frameTag struct {
	keyFrame      bool
	version       int
	show          bool
	firstPartSize int
	// Key frames only.
	width, height  int
	xScale, yScale int
}

// size returns the number of bytes the tag occupies.
func (t *frameTag) size() int {
	if t.keyFrame {
		return tagSize + keyFrameInfo
	}
	return tagSize
}

func parseFrameTag(data []byte) (frameTag, error) {
	var t frameTag
	if len(data) < tagSize {
		return t, codecerr.ErrEndOfStream
	}
	bits := uint32(data[0]) | uint32(data[1])<<8 | uint32(data[2])<<16
	t.keyFrame = bits&1 == 0
	t.version = int(bits>>1) & 7
	t.show = bits>>4&1 == 1
	t.firstPartSize = int(bits >> 5)
	if t.version > 3 {
		return t, codecerr.Unsupportedf("vp8: bitstream version %d", t.version)
	}
	if !t.keyFrame {
		return t, nil
	}
	if len(data) < tagSize+keyFrameInfo {
		return t, codecerr.ErrEndOfStream
	}
	if data[3] != startCode[0] || data[4] != startCode[1] || data[5] != startCode[2] {
		return t, codecerr.Malformed("start_code", int64(data[3])<<16|int64(data[4])<<8|int64(data[5]), "bad key frame signature")
	}
	w := binary.LittleEndian.Uint16(data[6:])
	h := binary.LittleEndian.Uint16(data[8:])
	t.width, t.xScale = int(w&0x3fff), int(w>>14)
	t.height, t.yScale = int(h&0x3fff), int(h>>14)
	if t.width == 0 || t.height == 0 {
		return t, codecerr.Malformed("frame_size", int64(t.width)<<16|int64(t.height), "empty key frame")
	}
	return t, nil
}

func (t *frameTag) append(dst []byte) []byte {
	bits := uint32(t.firstPartSize)<<5 | uint32(t.version&7)<<1
	if !t.keyFrame {
		bits |= 1
	}
	if t.show {
		bits |= 1 << 4
	}
	dst = append(dst, byte(bits), byte(bits>>8), byte(bits>>16))
	if t.keyFrame {
		dst = append(dst, startCode[:]...)
		dst = binary.LittleEndian.AppendUint16(dst, uint16(t.width)|uint16(t.xScale)<<14)
		dst = binary.LittleEndian.AppendUint16(dst, uint16(t.height)|uint16(t.yScale)<<14)
	}
	return dst
}

// readOptionalSigned reads a flag and, when it is set, a magnitude of
// numBits followed by a sign.
func readOptionalSigned(br *bitio.BoolReader, numBits int) int {
	if br.GetBit(0x80) != 0 {
		return int(br.GetSignedValue(numBits))
	}
	return 0
}

func readFlag(br *bitio.BoolReader) bool { return br.GetBit(0x80) != 0 }

func putFlag(bw *bitio.BoolWriter, f bool) {
	if f {
		bw.PutBitUniform(1)
	} else {
		bw.PutBitUniform(0)
	}
}

// segmentHeader carries the segmentation state. The feature data persists
// from frame to frame until updated.
type segmentHeader struct {
	enabled    bool
	updateMap  bool
	updateData bool
	absDelta   bool
	quant      [numSegs]int8
	level      [numSegs]int8
	treeProba  [3]uint8
}

func (s *segmentHeader) parse(br *bitio.BoolReader) {
	s.enabled = readFlag(br)
	s.updateMap, s.updateData = false, false
	if !s.enabled {
		return
	}
	s.updateMap = readFlag(br)
	s.updateData = readFlag(br)
	if s.updateData {
		s.absDelta = readFlag(br)
		for i := range s.quant {
			s.quant[i] = int8(readOptionalSigned(br, 7))
		}
		for i := range s.level {
			s.level[i] = int8(readOptionalSigned(br, 6))
		}
	}
	if s.updateMap {
		for i := range s.treeProba {
			s.treeProba[i] = 255
			if readFlag(br) {
				s.treeProba[i] = uint8(br.GetValue(8))
			}
		}
	}
}

func (s *segmentHeader) write(bw *bitio.BoolWriter) {
	putFlag(bw, s.enabled)
	if !s.enabled {
		return
	}
	putFlag(bw, s.updateMap)
	putFlag(bw, s.updateData)
	if s.updateData {
		putFlag(bw, s.absDelta)
		for _, q := range s.quant {
			bw.PutSignedBits(int(q), 7)
		}
		for _, l := range s.level {
			bw.PutSignedBits(int(l), 6)
		}
	}
	if s.updateMap {
		for _, p := range s.treeProba {
			putFlag(bw, p != 255)
			if p != 255 {
				bw.PutBits(uint32(p), 8)
			}
		}
	}
}

// filterHeader holds the loop filter controls. The deltas persist across
// frames and are cleared by key frames.
type filterHeader struct {
	simple      bool
	level       int
	sharpness   int
	useDelta    bool
	updateDelta bool
	refDelta    [numLFDelta]int8
	modeDelta   [numLFDelta]int8
}

func (f *filterHeader) parse(br *bitio.BoolReader) {
	f.simple = readFlag(br)
	f.level = int(br.GetValue(6))
	f.sharpness = int(br.GetValue(3))
	f.useDelta = readFlag(br)
	f.updateDelta = false
	if !f.useDelta {
		return
	}
	f.updateDelta = readFlag(br)
	if !f.updateDelta {
		return
	}
	for i := range f.refDelta {
		if readFlag(br) {
			f.refDelta[i] = int8(br.GetSignedValue(6))
		}
	}
	for i := range f.modeDelta {
		if readFlag(br) {
			f.modeDelta[i] = int8(br.GetSignedValue(6))
		}
	}
}

func (f *filterHeader) write(bw *bitio.BoolWriter) {
	putFlag(bw, f.simple)
	bw.PutBits(uint32(f.level), 6)
	bw.PutBits(uint32(f.sharpness), 3)
	putFlag(bw, f.useDelta)
	if !f.useDelta {
		return
	}
	putFlag(bw, f.updateDelta)
	if !f.updateDelta {
		return
	}
	for _, d := range f.refDelta {
		bw.PutSignedBits(int(d), 6)
	}
	for _, d := range f.modeDelta {
		bw.PutSignedBits(int(d), 6)
	}
}

// quantIndices are the frame quantiser index and its per-component deltas.
type quantIndices struct {
	base                         int
	y1DC, y2DC, y2AC, uvDC, uvAC int
}

func (q *quantIndices) parse(br *bitio.BoolReader) {
	q.base = int(br.GetValue(7))
	q.y1DC = readOptionalSigned(br, 4)
	q.y2DC = readOptionalSigned(br, 4)
	q.y2AC = readOptionalSigned(br, 4)
	q.uvDC = readOptionalSigned(br, 4)
	q.uvAC = readOptionalSigned(br, 4)
}

func (q *quantIndices) write(bw *bitio.BoolWriter) {
	bw.PutBits(uint32(q.base), 7)
	for _, d := range [...]int{q.y1DC, q.y2DC, q.y2AC, q.uvDC, q.uvAC} {
		bw.PutSignedBits(d, 4)
	}
}

// quantMatrix holds the DC and AC step sizes of each block class for one
// segment.
type quantMatrix struct {
	y1, y2, uv [2]int
}

func clip(v, hi int) int {
	return max(0, min(v, hi))
}

// matrices derives the step sizes of every segment.
func (q *quantIndices) matrices(seg *segmentHeader) [numSegs]quantMatrix {
	var m [numSegs]quantMatrix
	for i := range m {
		base := q.base
		if seg.enabled {
			base = int(seg.quant[i])
			if !seg.absDelta {
				base += q.base
			}
		}
		base = clip(base, 127)
		m[i].y1 = [2]int{int(dcTable[clip(base+q.y1DC, 127)]), int(acTable[base])}
		m[i].y2 = [2]int{
			int(dcTable[clip(base+q.y2DC, 127)]) * 2,
			max(int(acTable[clip(base+q.y2AC, 127)])*101581>>16, 8),
		}
		m[i].uv = [2]int{int(dcTable[clip(base+q.uvDC, 117)]), int(acTable[clip(base+q.uvAC, 127)])}
	}
	return m
}

// proba is the entropy state carried from frame to frame.
type proba struct {
	coeff  [numTypes][numBands][numCtx][numProbas]uint8
	ymode  [4]uint8
	uvmode [3]uint8
	mv     [2][mvProbs]uint8
}

// reset installs the defaults that every key frame starts from.
func (p *proba) reset() {
	p.coeff = coeffsProba0
	p.ymode = yModeProba0
	p.uvmode = uvModeProba0
	p.mv = mvProba0
}

func (p *proba) parseCoeffUpdates(br *bitio.BoolReader) {
	for t := range p.coeff {
		for b := range p.coeff[t] {
			for c := range p.coeff[t][b] {
				for i := range p.coeff[t][b][c] {
					if br.GetBit(coeffsUpdateProba[t][b][c][i]) != 0 {
						p.coeff[t][b][c][i] = uint8(br.GetValue(8))
					}
				}
			}
		}
	}
}

// writeCoeffUpdates codes the difference between p and next, adopting next.
func (p *proba) writeCoeffUpdates(bw *bitio.BoolWriter, next *[numTypes][numBands][numCtx][numProbas]uint8) {
	for t := range p.coeff {
		for b := range p.coeff[t] {
			for c := range p.coeff[t][b] {
				for i, old := range p.coeff[t][b][c] {
					v := next[t][b][c][i]
					up := int(coeffsUpdateProba[t][b][c][i])
					if v == old {
						bw.PutBit(0, up)
						continue
					}
					bw.PutBit(1, up)
					bw.PutBits(uint32(v), 8)
					p.coeff[t][b][c][i] = v
				}
			}
		}
	}
}

func (p *proba) parseModeUpdates(br *bitio.BoolReader) {
	if readFlag(br) {
		for i := range p.ymode {
			p.ymode[i] = uint8(br.GetValue(8))
		}
	}
	if readFlag(br) {
		for i := range p.uvmode {
			p.uvmode[i] = uint8(br.GetValue(8))
		}
	}
}

func (p *proba) parseMVUpdates(br *bitio.BoolReader) {
	for i := range p.mv {
		for j := range p.mv[i] {
			if br.GetBit(mvUpdateProba[i][j]) != 0 {
				v := uint8(br.GetValue(7)) << 1
				if v == 0 {
					v = 1
				}
				p.mv[i][j] = v
			}
		}
	}
}

// frameHeader is the per-frame part of the first partition header.
type frameHeader struct {
	colorSpace int
	clampType  int
	numParts   int
	quant      quantIndices

	refreshEntropy bool
	refreshGolden  bool
	refreshAlt     bool
	refreshLast    bool
	copyToGolden   int // 1: last frame, 2: altref
	copyToAlt      int // 1: last frame, 2: golden
	signBias       [numRefs]bool

	useSkip     bool
	skipProba   uint8
	intraProba  uint8
	lastProba   uint8
	goldenProba uint8
}
