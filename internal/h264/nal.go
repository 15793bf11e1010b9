// Package h264 implements the H.264/AVC syntax layer: NAL framing,
// parameter sets, slice headers and the macroblock-level slice parser with
// its mirrored writer. Both entropy coders (CAVLC and CABAC) plug into the
// parser through the EntropyReader and EntropyWriter interfaces.
package h264

import (
	"bytes"
)

// NALUnitType is nal_unit_type.
type NALUnitType uint8

const (
	NALSlice       NALUnitType = 1
	NALSliceDPA    NALUnitType = 2
	NALSliceDPB    NALUnitType = 3
	NALSliceDPC    NALUnitType = 4
	NALIDRSlice    NALUnitType = 5
	NALSEI         NALUnitType = 6
	NALSPS         NALUnitType = 7
	NALPPS         NALUnitType = 8
	NALAUD         NALUnitType = 9
	NALEndOfSeq    NALUnitType = 10
	NALEndOfStream NALUnitType = 11
	NALFiller      NALUnitType = 12
	NALSPSExt      NALUnitType = 13
	NALPrefix      NALUnitType = 14
	NALSubsetSPS   NALUnitType = 15
	NALAuxSlice    NALUnitType = 19
	NALSliceExt    NALUnitType = 20
)

var nalTypeNames = map[NALUnitType]string{
	NALSlice:       "slice",
	NALSliceDPA:    "slice partition A",
	NALSliceDPB:    "slice partition B",
	NALSliceDPC:    "slice partition C",
	NALIDRSlice:    "IDR slice",
	NALSEI:         "SEI",
	NALSPS:         "SPS",
	NALPPS:         "PPS",
	NALAUD:         "access unit delimiter",
	NALEndOfSeq:    "end of sequence",
	NALEndOfStream: "end of stream",
	NALFiller:      "filler",
	NALSPSExt:      "SPS extension",
	NALPrefix:      "prefix",
	NALSubsetSPS:   "subset SPS",
	NALAuxSlice:    "auxiliary slice",
	NALSliceExt:    "slice extension",
}

func (t NALUnitType) String() string {
	if s, ok := nalTypeNames[t]; ok {
		return s
	}
	return "reserved"
}

// IsSlice reports whether t carries coded slice data of the primary picture.
func (t NALUnitType) IsSlice() bool { return t == NALSlice || t == NALIDRSlice }

// NALHeader is the one-byte NAL unit header.
type NALHeader struct {
	ForbiddenZeroBit bool
	RefIdc           uint8
	Type             NALUnitType
}

// ParseNALHeader decodes the first byte of a NAL unit.
func ParseNALHeader(b byte) NALHeader {
	return NALHeader{
		ForbiddenZeroBit: b&0x80 != 0,
		RefIdc:           (b >> 5) & 3,
		Type:             NALUnitType(b & 0x1f),
	}
}

// Byte encodes the header.
func (h NALHeader) Byte() byte {
	b := h.RefIdc&3<<5 | byte(h.Type)&0x1f
	if h.ForbiddenZeroBit {
		b |= 0x80
	}
	return b
}

// IsIDR reports whether the unit is an IDR slice.
func (h NALHeader) IsIDR() bool { return h.Type == NALIDRSlice }

var startCode = []byte{0, 0, 1}

// SplitAnnexB splits an Annex B byte stream into NAL units. Start codes and
// trailing_zero_8bits are removed; emulation prevention bytes are kept.
func SplitAnnexB(stream []byte) [][]byte {
	var nals [][]byte
	i := bytes.Index(stream, startCode)
	if i < 0 {
		if len(stream) > 0 {
			return [][]byte{stream}
		}
		return nil
	}
	pos := i + 3
	for pos <= len(stream) {
		next := bytes.Index(stream[pos:], startCode)
		end := len(stream)
		if next >= 0 {
			end = pos + next
		}
		nal := bytes.TrimRight(stream[pos:end], "\x00")
		if len(nal) > 0 {
			nals = append(nals, nal)
		}
		if next < 0 {
			break
		}
		pos = end + 3
	}
	return nals
}

// AppendAnnexB appends each NAL unit to dst behind a four-byte start code.
func AppendAnnexB(dst []byte, nals ...[]byte) []byte {
	for _, n := range nals {
		dst = append(dst, 0, 0, 0, 1)
		dst = append(dst, n...)
	}
	return dst
}

// UnescapeRBSP removes emulation_prevention_three_byte from a NAL payload.
func UnescapeRBSP(ebsp []byte) []byte {
	if bytes.Index(ebsp, []byte{0, 0, 3}) < 0 {
		return ebsp
	}
	out := make([]byte, 0, len(ebsp))
	zeros := 0
	for _, b := range ebsp {
		if zeros >= 2 && b == 3 {
			zeros = 0
			continue
		}
		if b == 0 {
			zeros++
		} else {
			zeros = 0
		}
		out = append(out, b)
	}
	return out
}

// EscapeRBSP inserts emulation prevention bytes so that the payload never
// contains 0x000000..0x000003.
func EscapeRBSP(rbsp []byte) []byte {
	out := make([]byte, 0, len(rbsp)+len(rbsp)/64+1)
	zeros := 0
	for _, b := range rbsp {
		if zeros >= 2 && b <= 3 {
			out = append(out, 3)
			zeros = 0
		}
		if b == 0 {
			zeros++
		} else {
			zeros = 0
		}
		out = append(out, b)
	}
	return out
}
