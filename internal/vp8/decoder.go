// Package vp8 decodes and encodes VP8 frames: key and inter frames,
// segmentation, the loop filter and the golden and altref references.
package vp8

import (
	"github.com/pkg/errors"

	"github.com/deepteams/vcodec/internal/bitio"
	"github.com/deepteams/vcodec/internal/codecerr"
)

// ErrNoKeyFrame is returned for an inter frame that arrives before any key
// frame.
var ErrNoKeyFrame = errors.New("vp8: inter frame without a preceding key frame")

// FrameInfo is the uncompressed part of a frame header. Width and Height
// are only set for key frames.
type FrameInfo struct {
	KeyFrame      bool
	Show          bool
	Version       int
	Width, Height int
}

// Peek reads the frame tag without decoding the frame.
func Peek(data []byte) (FrameInfo, error) {
	t, err := parseFrameTag(data)
	if err != nil {
		return FrameInfo{}, err
	}
	return FrameInfo{
		KeyFrame: t.keyFrame,
		Show:     t.show,
		Version:  t.version,
		Width:    t.width,
		Height:   t.height,
	}, nil
}

// Decoder reconstructs a sequence of VP8 frames. It keeps the last, golden
// and altref references between calls and is not safe for concurrent use.
type Decoder struct {
	state
	started bool
}

// NewDecoder returns a decoder waiting for a key frame.
func NewDecoder() *Decoder {
	return &Decoder{}
}

// Close releases the reference frames.
func (d *Decoder) Close() {
	d.release()
	d.started = false
}

// DecodeFrame decodes one compressed frame. Frames that are not meant to
// be shown are decoded as well and returned with Show unset. The returned
// frame belongs to the caller.
func (d *Decoder) DecodeFrame(data []byte) (*Frame, error) {
	tag, err := parseFrameTag(data)
	if err != nil {
		return nil, err
	}
	if !tag.keyFrame && !d.started {
		return nil, ErrNoKeyFrame
	}
	data = data[tag.size():]
	if tag.firstPartSize > len(data) {
		return nil, errors.Wrapf(codecerr.ErrEndOfStream,
			"vp8: first partition needs %d bytes, %d left", tag.firstPartSize, len(data))
	}
	br := bitio.NewBoolReader(data[:tag.firstPartSize])
	d.keyFrame = tag.keyFrame
	if tag.keyFrame {
		d.started = false
		d.version = tag.version
		d.setSize(tag.width, tag.height)
		d.resetKeyFrame()
	}
	if err := d.parseHeader(br); err != nil {
		return nil, err
	}
	parts, err := splitPartitions(data[tag.firstPartSize:], d.hdr.numParts)
	if err != nil {
		return nil, err
	}

	d.startFrame()
	if err := d.decodeMacroblocks(br, parts); err != nil {
		d.cur.release()
		d.cur = nil
		return nil, err
	}
	d.filterFrame()
	f := newFrame(d.cur, d.width, d.height)
	f.KeyFrame, f.Show, f.Version = tag.keyFrame, tag.show, d.version
	d.updateRefs()
	if !d.hdr.refreshEntropy {
		d.proba = d.saved
	}
	d.started = true
	return f, nil
}

// parseHeader reads the frame header from the first partition.
func (s *state) parseHeader(br *bitio.BoolReader) error {
	h := &s.hdr
	if s.keyFrame {
		h.colorSpace = int(br.GetValue(1))
		h.clampType = int(br.GetValue(1))
	}
	s.seg.parse(br)
	s.filter.parse(br)
	h.numParts = 1 << br.GetValue(2)
	h.quant.parse(br)
	if s.keyFrame {
		h.refreshEntropy = readFlag(br)
	} else {
		h.refreshGolden = readFlag(br)
		h.refreshAlt = readFlag(br)
		h.copyToGolden, h.copyToAlt = 0, 0
		if !h.refreshGolden {
			h.copyToGolden = int(br.GetValue(2))
		}
		if !h.refreshAlt {
			h.copyToAlt = int(br.GetValue(2))
		}
		h.signBias[refGolden] = readFlag(br)
		h.signBias[refAltRef] = readFlag(br)
		h.refreshEntropy = readFlag(br)
		h.refreshLast = readFlag(br)
	}
	if !h.refreshEntropy {
		s.saved = s.proba
	}
	s.proba.parseCoeffUpdates(br)
	h.useSkip = readFlag(br)
	h.skipProba = 0
	if h.useSkip {
		h.skipProba = uint8(br.GetValue(8))
	}
	if !s.keyFrame {
		h.intraProba = uint8(br.GetValue(8))
		h.lastProba = uint8(br.GetValue(8))
		h.goldenProba = uint8(br.GetValue(8))
		s.proba.parseModeUpdates(br)
		s.proba.parseMVUpdates(br)
	}
	if br.EOF() {
		return errors.Wrap(codecerr.ErrEndOfStream, "vp8: frame header")
	}
	return nil
}

// splitPartitions cuts the token partitions out of buf. All but the last
// are preceded by their 3-byte sizes.
func splitPartitions(buf []byte, n int) ([]*bitio.BoolReader, error) {
	sizes := 3 * (n - 1)
	if len(buf) < sizes {
		return nil, errors.Wrapf(codecerr.ErrEndOfStream, "vp8: %d partition sizes", n-1)
	}
	parts := make([]*bitio.BoolReader, n)
	rest := buf[sizes:]
	for i := 0; i < n-1; i++ {
		size := int(buf[3*i]) | int(buf[3*i+1])<<8 | int(buf[3*i+2])<<16
		if size > len(rest) {
			return nil, errors.Wrapf(codecerr.ErrEndOfStream,
				"vp8: partition %d needs %d bytes, %d left", i, size, len(rest))
		}
		parts[i] = bitio.NewBoolReader(rest[:size])
		rest = rest[size:]
	}
	parts[n-1] = bitio.NewBoolReader(rest)
	return parts, nil
}

// decodeMacroblocks parses and reconstructs every macroblock in raster
// order. Row y reads its tokens from partition y mod len(parts).
func (s *state) decodeMacroblocks(br *bitio.BoolReader, parts []*bitio.BoolReader) error {
	for mbY := 0; mbY < s.mbH; mbY++ {
		tokens := parts[mbY&(len(parts)-1)]
		s.leftNz = nzContext{}
		for mbX := 0; mbX < s.mbW; mbX++ {
			s.parseModes(br, mbX, mbY)
			mb := s.at(mbX, mbY)
			top := &s.topNz[mbX]
			if mb.skip {
				top.clear(mb.hasY2())
				s.leftNz.clear(mb.hasY2())
				s.res.reset()
			} else {
				mb.coeffs = s.parseResiduals(tokens, mb, top, &s.leftNz, &s.res)
			}
			if tokens.EOF() {
				return errors.Wrapf(codecerr.ErrEndOfStream, "vp8: token partition at macroblock (%d, %d)", mbX, mbY)
			}
			s.reconstruct(mb, mbX, mbY, &s.res)
		}
		if br.EOF() {
			return errors.Wrapf(codecerr.ErrEndOfStream, "vp8: mode partition at row %d", mbY)
		}
	}
	return nil
}
