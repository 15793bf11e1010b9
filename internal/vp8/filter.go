package vp8

import "github.com/deepteams/vcodec/internal/dsp"

// filterParams are the loop filter strengths of one macroblock.
type filterParams struct {
	limit  int // edge limit of the inner edges; macroblock edges add 4
	ilimit int
	hevT   int
	inner  bool
}

// filterLevel returns the loop filter level of mb, 0 meaning unfiltered.
func (s *state) filterLevel(mb *mbInfo) int {
	f := &s.filter
	level := f.level
	if s.seg.enabled {
		level = int(s.seg.level[mb.segment])
		if !s.seg.absDelta {
			level += f.level
		}
		level = clip(level, 63)
	}
	if !f.useDelta {
		return level
	}
	level += int(f.refDelta[mb.ref])
	switch {
	case mb.ref == refIntra:
		if mb.ymode == dsp.BPred {
			level += int(f.modeDelta[0])
		}
	case mb.ymode == modeZeroMV:
		level += int(f.modeDelta[1])
	case mb.ymode == modeSplitMV:
		level += int(f.modeDelta[3])
	default:
		level += int(f.modeDelta[2])
	}
	return clip(level, 63)
}

func (s *state) filterParams(mb *mbInfo) (filterParams, bool) {
	level := s.filterLevel(mb)
	if level == 0 {
		return filterParams{}, false
	}
	sharp := s.filter.sharpness
	ilimit := level
	if sharp > 0 {
		if sharp > 4 {
			ilimit >>= 2
		} else {
			ilimit >>= 1
		}
		ilimit = min(ilimit, 9-sharp)
	}
	ilimit = max(ilimit, 1)
	p := filterParams{
		limit:  2*level + ilimit,
		ilimit: ilimit,
		inner:  mb.ymode == dsp.BPred || mb.ymode == modeSplitMV || mb.coeffs,
	}
	switch {
	case level >= 40:
		p.hevT = 2
	case level >= 15:
		p.hevT = 1
	}
	if !s.keyFrame && level >= 20 {
		p.hevT++
	}
	return p, true
}

// filterFrame runs the loop filter over the reconstructed frame in raster
// order.
func (s *state) filterFrame() {
	if s.filter.level == 0 {
		return
	}
	cur := s.cur
	for mbY := 0; mbY < s.mbH; mbY++ {
		for mbX := 0; mbX < s.mbW; mbX++ {
			p, ok := s.filterParams(s.at(mbX, mbY))
			if !ok {
				continue
			}
			yo := mbY*16*cur.yStride + mbX*16
			if s.filter.simple {
				if mbX > 0 {
					dsp.SimpleHFilter16(cur.y, yo, cur.yStride, p.limit+4)
				}
				if p.inner {
					dsp.SimpleHFilter16i(cur.y, yo, cur.yStride, p.limit)
				}
				if mbY > 0 {
					dsp.SimpleVFilter16(cur.y, yo, cur.yStride, p.limit+4)
				}
				if p.inner {
					dsp.SimpleVFilter16i(cur.y, yo, cur.yStride, p.limit)
				}
				continue
			}
			uvo := mbY*8*cur.uvStride + mbX*8
			if mbX > 0 {
				dsp.HFilter16(cur.y, yo, cur.yStride, p.limit+4, p.ilimit, p.hevT)
				dsp.HFilter8(cur.u, cur.v, uvo, uvo, cur.uvStride, p.limit+4, p.ilimit, p.hevT)
			}
			if p.inner {
				dsp.HFilter16i(cur.y, yo, cur.yStride, p.limit, p.ilimit, p.hevT)
				dsp.HFilter8i(cur.u, cur.v, uvo, uvo, cur.uvStride, p.limit, p.ilimit, p.hevT)
			}
			if mbY > 0 {
				dsp.VFilter16(cur.y, yo, cur.yStride, p.limit+4, p.ilimit, p.hevT)
				dsp.VFilter8(cur.u, cur.v, uvo, uvo, cur.uvStride, p.limit+4, p.ilimit, p.hevT)
			}
			if p.inner {
				dsp.VFilter16i(cur.y, yo, cur.yStride, p.limit, p.ilimit, p.hevT)
				dsp.VFilter8i(cur.u, cur.v, uvo, uvo, cur.uvStride, p.limit, p.ilimit, p.hevT)
			}
		}
	}
}
