package vp8

// state is the bitstream state shared by the decoder and the encoder. Both
// sides run the same prediction and reconstruction on it, so the encoder's
// reference frames match the decoder's.
type state struct {
	grid
	width, height int
	keyFrame      bool
	version       int

	hdr    frameHeader
	seg    segmentHeader
	filter filterHeader
	proba  proba
	saved  proba
	dqm    [numSegs]quantMatrix
	segMap []uint8

	topNz  []nzContext
	leftNz nzContext

	cur  *planes
	refs [numRefs]*planes // indexed by refLast, refGolden, refAltRef

	work workBuf
	res  residual
}

// setSize prepares the state for key frames of the given size. Reference
// frames of another size are dropped.
func (s *state) setSize(width, height int) {
	mbW, mbH := (width+15)/16, (height+15)/16
	s.width, s.height = width, height
	if mbW == s.mbW && mbH == s.mbH && s.mbs != nil {
		return
	}
	s.resize(mbW, mbH)
	s.segMap = make([]uint8, mbW*mbH)
	s.topNz = make([]nzContext, mbW)
	s.dropRefs()
}

// resetKeyFrame installs the defaults every key frame starts from.
func (s *state) resetKeyFrame() {
	s.proba.reset()
	s.seg.absDelta = false
	s.seg.quant = [numSegs]int8{}
	s.seg.level = [numSegs]int8{}
	s.filter.refDelta = [numLFDelta]int8{}
	s.filter.modeDelta = [numLFDelta]int8{}
	s.hdr.signBias = [numRefs]bool{}
	s.hdr.refreshGolden, s.hdr.refreshAlt, s.hdr.refreshLast = true, true, true
	s.hdr.copyToGolden, s.hdr.copyToAlt = 0, 0
}

// startFrame allocates the frame being reconstructed and clears the token
// contexts.
func (s *state) startFrame() {
	s.cur = newPlanes(s.mbW, s.mbH)
	for i := range s.topNz {
		s.topNz[i] = nzContext{}
	}
	s.dqm = s.hdr.quant.matrices(&s.seg)
}

// updateRefs applies the buffer copies and refreshes of the finished frame
// and releases it.
func (s *state) updateRefs() {
	h := &s.hdr
	// Copies read the references as they were before this frame.
	golden, alt := s.refs[refGolden].retain(), s.refs[refAltRef].retain()
	switch h.copyToAlt {
	case 1:
		s.setRef(refAltRef, s.refs[refLast])
	case 2:
		s.setRef(refAltRef, golden)
	}
	switch h.copyToGolden {
	case 1:
		s.setRef(refGolden, s.refs[refLast])
	case 2:
		s.setRef(refGolden, alt)
	}
	golden.release()
	alt.release()
	if h.refreshGolden {
		s.setRef(refGolden, s.cur)
	}
	if h.refreshAlt {
		s.setRef(refAltRef, s.cur)
	}
	if h.refreshLast {
		s.setRef(refLast, s.cur)
	}
	s.cur.release()
	s.cur = nil
}

func (s *state) setRef(i int, p *planes) {
	if s.refs[i] == p {
		return
	}
	if p != nil {
		p.retain()
	}
	s.refs[i].release()
	s.refs[i] = p
}

func (s *state) dropRefs() {
	for i := range s.refs {
		s.refs[i].release()
		s.refs[i] = nil
	}
}

// release frees every buffer the state holds.
func (s *state) release() {
	s.dropRefs()
	s.cur.release()
	s.cur = nil
}
