package avc

import "github.com/deepteams/vcodec/internal/h264"

// pocState carries the values of previous pictures that picture order
// count derivation depends on.
type pocState struct {
	prevMsb, prevLsb int // type 0, last reference picture
	prevFrameNum     int
	prevFrameNumOff  int
	prevMMCO5        bool
}

// compute returns TopFieldOrderCnt and BottomFieldOrderCnt of a frame and
// the FrameNumOffset used for types 1 and 2.
func (s *pocState) compute(sps *h264.SPS, nal h264.NALHeader, h *h264.SliceHeader) (top, bottom, frameNumOff int) {
	idr := nal.IsIDR()
	frameNum := int(h.FrameNum)
	if sps.PicOrderCntType != 0 {
		prev := s.prevFrameNumOff
		if s.prevMMCO5 {
			prev = 0
		}
		switch {
		case idr:
			frameNumOff = 0
		case s.prevFrameNum > frameNum:
			frameNumOff = prev + sps.MaxFrameNum()
		default:
			frameNumOff = prev
		}
	}
	switch sps.PicOrderCntType {
	case 0:
		prevMsb, prevLsb := s.prevMsb, s.prevLsb
		if idr {
			prevMsb, prevLsb = 0, 0
		}
		maxLsb := 1 << (sps.Log2MaxPicOrderCntLsbMinus4 + 4)
		lsb := int(h.PicOrderCntLsb)
		msb := prevMsb
		switch {
		case lsb < prevLsb && prevLsb-lsb >= maxLsb/2:
			msb = prevMsb + maxLsb
		case lsb > prevLsb && lsb-prevLsb > maxLsb/2:
			msb = prevMsb - maxLsb
		}
		top = msb + lsb
		bottom = top + int(h.DeltaPicOrderCntBottom)
	case 1:
		n := len(sps.OffsetForRefFrame)
		abs := 0
		if n != 0 {
			abs = frameNumOff + frameNum
		}
		if nal.RefIdc == 0 && abs > 0 {
			abs--
		}
		expected := 0
		if abs > 0 {
			delta := 0
			for _, o := range sps.OffsetForRefFrame {
				delta += int(o)
			}
			cycle, inCycle := (abs-1)/n, (abs-1)%n
			expected = cycle * delta
			for i := 0; i <= inCycle; i++ {
				expected += int(sps.OffsetForRefFrame[i])
			}
		}
		if nal.RefIdc == 0 {
			expected += int(sps.OffsetForNonRefPic)
		}
		top = expected + int(h.DeltaPicOrderCnt[0])
		bottom = top + int(sps.OffsetForTopToBottomField) + int(h.DeltaPicOrderCnt[1])
	default:
		switch {
		case idr:
			top = 0
		case nal.RefIdc == 0:
			top = 2*(frameNumOff+frameNum) - 1
		default:
			top = 2 * (frameNumOff + frameNum)
		}
		bottom = top
	}
	return top, bottom, frameNumOff
}

// update records a decoded picture. For pictures with MMCO 5 the caller
// passes the top field order count after the reset.
func (s *pocState) update(sps *h264.SPS, nal h264.NALHeader, h *h264.SliceHeader, top, frameNumOff int, mmco5 bool) {
	if nal.RefIdc != 0 && sps.PicOrderCntType == 0 {
		if mmco5 {
			s.prevMsb, s.prevLsb = 0, top
		} else {
			lsb := int(h.PicOrderCntLsb)
			s.prevMsb, s.prevLsb = top-lsb, lsb
		}
	}
	s.prevFrameNum = int(h.FrameNum)
	s.prevFrameNumOff = frameNumOff
	s.prevMMCO5 = mmco5
	if mmco5 {
		s.prevFrameNum = 0
	}
}
