package vp8

import (
	"github.com/deepteams/vcodec/internal/bitio"
	"github.com/deepteams/vcodec/internal/dsp"
)

// mbInfo is the prediction state of one macroblock.
type mbInfo struct {
	ymode   uint8 // intra mode, dsp.BPred or an inter mode
	uvmode  uint8
	ref     uint8
	segment uint8
	skip    bool // coded mb_skip_coeff
	coeffs  bool // some block carries tokens
	split   uint8
	bmodes  [16]uint8
	mv      motionVector
	bmv     [16]motionVector
}

func (mb *mbInfo) isInter() bool { return mb.ref != refIntra }

// hasY2 reports whether the luma DCs travel in the second-order block.
func (mb *mbInfo) hasY2() bool {
	return mb.ymode != dsp.BPred && mb.ymode != modeSplitMV
}

// grid holds the macroblocks of the frame being coded.
type grid struct {
	mbW, mbH int
	mbs      []mbInfo
}

func (g *grid) resize(mbW, mbH int) {
	g.mbW, g.mbH = mbW, mbH
	if cap(g.mbs) < mbW*mbH {
		g.mbs = make([]mbInfo, mbW*mbH)
	}
	g.mbs = g.mbs[:mbW*mbH]
}

// at returns the macroblock at (mbX, mbY), or nil outside the frame.
func (g *grid) at(mbX, mbY int) *mbInfo {
	if mbX < 0 || mbY < 0 || mbX >= g.mbW || mbY >= g.mbH {
		return nil
	}
	return &g.mbs[mbY*g.mbW+mbX]
}

// census runs findNearMVs for the macroblock at (mbX, mbY).
func (s *state) census(mbX, mbY int, ref uint8) nearMVs {
	return findNearMVs(s.at(mbX, mbY-1), s.at(mbX-1, mbY), s.at(mbX-1, mbY-1),
		int(ref), &s.hdr.signBias, newMVBounds(mbX, mbY, s.mbW, s.mbH))
}

// bModeContext returns the above and left sub-block modes of block b,
// substituting B_DC outside the frame.
func (s *state) bModeContext(mb *mbInfo, mbX, mbY, b int) (top, left uint8) {
	top, left = dsp.BDCPred, dsp.BDCPred
	if b > 3 {
		top = mb.bmodes[b-4]
	} else if a := s.at(mbX, mbY-1); a != nil {
		top = a.bmodes[b+12]
	}
	if b&3 != 0 {
		left = mb.bmodes[b-1]
	} else if l := s.at(mbX-1, mbY); l != nil {
		left = l.bmodes[b+3]
	}
	return top, left
}

// neighbourSubMVs returns the vectors left of and above sub-block b.
func (s *state) neighbourSubMVs(mb *mbInfo, mbX, mbY, b int) (left, above motionVector) {
	if b&3 != 0 {
		left = mb.bmv[b-1]
	} else if l := s.at(mbX-1, mbY); l != nil {
		left = l.bmv[b+3]
	}
	if b > 3 {
		above = mb.bmv[b-4]
	} else if a := s.at(mbX, mbY-1); a != nil {
		above = a.bmv[b+12]
	}
	return left, above
}

// firstBlock returns the first sub-block of partition j.
func firstBlock(split uint8, j int) int {
	if split == 3 {
		return j
	}
	for b, p := range splitMap[split] {
		if int(p) == j {
			return b
		}
	}
	return 0
}

func fillPartition(mb *mbInfo, j int, v motionVector) {
	if mb.split == 3 {
		mb.bmv[j] = v
		return
	}
	for b, p := range splitMap[mb.split] {
		if int(p) == j {
			mb.bmv[b] = v
		}
	}
}

// parseModes reads the segment, skip flag and prediction modes of one
// macroblock from the first partition.
func (s *state) parseModes(br *bitio.BoolReader, mbX, mbY int) {
	idx := mbY*s.mbW + mbX
	mb := &s.mbs[idx]
	*mb = mbInfo{}
	switch {
	case s.seg.updateMap:
		s.segMap[idx] = uint8(br.ReadTree(segmentTree, s.seg.treeProba[:]))
	case s.keyFrame:
		s.segMap[idx] = 0
	}
	mb.segment = s.segMap[idx]
	if s.hdr.useSkip {
		mb.skip = br.GetBit(s.hdr.skipProba) != 0
	}

	if s.keyFrame {
		mb.ymode = uint8(br.ReadTree(kfYModeTree, kfYModeProba))
		if mb.ymode == dsp.BPred {
			for b := range mb.bmodes {
				top, left := s.bModeContext(mb, mbX, mbY, b)
				mb.bmodes[b] = uint8(br.ReadTree(bModeTree, bModesProba[top][left][:]))
			}
		} else {
			for b := range mb.bmodes {
				mb.bmodes[b] = mb.ymode
			}
		}
		mb.uvmode = uint8(br.ReadTree(uvModeTree, kfUVModeProba))
		return
	}

	if br.GetBit(s.hdr.intraProba) == 0 {
		mb.ymode = uint8(br.ReadTree(yModeTree, s.proba.ymode[:]))
		if mb.ymode == dsp.BPred {
			for b := range mb.bmodes {
				mb.bmodes[b] = uint8(br.ReadTree(bModeTree, interBModeProb))
			}
		}
		mb.uvmode = uint8(br.ReadTree(uvModeTree, s.proba.uvmode[:]))
		return
	}

	mb.ref = refLast
	if br.GetBit(s.hdr.lastProba) != 0 {
		mb.ref = refGolden + uint8(br.GetBit(s.hdr.goldenProba))
	}
	near := s.census(mbX, mbY, mb.ref)
	mb.ymode = uint8(br.ReadTree(mvRefTree, near.probas()))
	switch mb.ymode {
	case modeNearestMV:
		mb.mv = near.nearest
	case modeNearMV:
		mb.mv = near.near
	case modeNewMV:
		mb.mv = readMV(br, &s.proba.mv).add(near.best)
	case modeSplitMV:
		mb.split = uint8(br.ReadTree(splitTree, splitProba))
		for j := 0; j < splitCount[mb.split]; j++ {
			left, above := s.neighbourSubMVs(mb, mbX, mbY, firstBlock(mb.split, j))
			var v motionVector
			switch br.ReadTree(subMVRefTree, subMVContexts[subMVContext(left, above)][:]) {
			case subMVLeft:
				v = left
			case subMVAbove:
				v = above
			case subMVNew:
				v = readMV(br, &s.proba.mv).add(near.best)
			}
			fillPartition(mb, j, v)
		}
		mb.mv = mb.bmv[15]
		return
	}
	for b := range mb.bmv {
		mb.bmv[b] = mb.mv
	}
}

// writeModes is the inverse of parseModes for a macroblock whose fields
// are already decided. Inter vectors must be reachable from the census.
func (s *state) writeModes(bw *bitio.BoolWriter, mbX, mbY int) {
	mb := s.at(mbX, mbY)
	if s.seg.updateMap {
		bw.PutTree(segmentTree, s.seg.treeProba[:], int(mb.segment))
	}
	if s.hdr.useSkip {
		bw.PutBit(boolInt(mb.skip), int(s.hdr.skipProba))
	}

	if s.keyFrame {
		bw.PutTree(kfYModeTree, kfYModeProba, int(mb.ymode))
		if mb.ymode == dsp.BPred {
			for b, m := range mb.bmodes {
				top, left := s.bModeContext(mb, mbX, mbY, b)
				bw.PutTree(bModeTree, bModesProba[top][left][:], int(m))
			}
		}
		bw.PutTree(uvModeTree, kfUVModeProba, int(mb.uvmode))
		return
	}

	bw.PutBit(boolInt(mb.isInter()), int(s.hdr.intraProba))
	if !mb.isInter() {
		bw.PutTree(yModeTree, s.proba.ymode[:], int(mb.ymode))
		if mb.ymode == dsp.BPred {
			for _, m := range mb.bmodes {
				bw.PutTree(bModeTree, interBModeProb, int(m))
			}
		}
		bw.PutTree(uvModeTree, s.proba.uvmode[:], int(mb.uvmode))
		return
	}

	bw.PutBit(boolInt(mb.ref != refLast), int(s.hdr.lastProba))
	if mb.ref != refLast {
		bw.PutBit(boolInt(mb.ref == refAltRef), int(s.hdr.goldenProba))
	}
	near := s.census(mbX, mbY, mb.ref)
	bw.PutTree(mvRefTree, near.probas(), int(mb.ymode))
	switch mb.ymode {
	case modeNewMV:
		writeMV(bw, &s.proba.mv, mb.mv.add(near.best.neg()))
	case modeSplitMV:
		bw.PutTree(splitTree, splitProba, int(mb.split))
		for j := 0; j < splitCount[mb.split]; j++ {
			b := firstBlock(mb.split, j)
			left, above := s.neighbourSubMVs(mb, mbX, mbY, b)
			probs := subMVContexts[subMVContext(left, above)][:]
			switch v := mb.bmv[b]; {
			case v == left:
				bw.PutTree(subMVRefTree, probs, subMVLeft)
			case v == above:
				bw.PutTree(subMVRefTree, probs, subMVAbove)
			case v == motionVector{}:
				bw.PutTree(subMVRefTree, probs, subMVZero)
			default:
				bw.PutTree(subMVRefTree, probs, subMVNew)
				writeMV(bw, &s.proba.mv, v.add(near.best.neg()))
			}
		}
	}
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
