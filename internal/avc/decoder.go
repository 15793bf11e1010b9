// Package avc drives H.264 decoding and encoding above the slice layer:
// parameter-set storage, picture boundaries, picture order count,
// reference marking and reference list construction.
package avc

import (
	"github.com/pkg/errors"

	"github.com/deepteams/vcodec/internal/codecerr"
	"github.com/deepteams/vcodec/internal/h264"
	"github.com/deepteams/vcodec/internal/h264/recon"
)

// DecoderOptions configures a Decoder. The zero value decodes with the
// deblocking filter enabled.
type DecoderOptions struct {
	// SkipDeblocking leaves pictures unfiltered. Output then differs from
	// a conforming decoder once filtered pictures are used for reference.
	SkipDeblocking bool
}

// curPicture is the picture whose slices are being decoded.
type curPicture struct {
	pic         *recon.Picture
	r           *recon.Renderer
	sps         *h264.SPS
	nal         h264.NALHeader
	hdr         *h264.SliceHeader
	top         int
	frameNumOff int
}

// Decoder reconstructs pictures from a sequence of NAL units. It is not
// safe for concurrent use.
type Decoder struct {
	opts DecoderOptions
	sets *h264.ParamSets
	refs *dpb
	poc  pocState
	cur  *curPicture
}

// NewDecoder returns a decoder with an empty parameter-set store.
func NewDecoder(opts *DecoderOptions) *Decoder {
	d := &Decoder{sets: h264.NewParamSets(), refs: newDPB()}
	if opts != nil {
		d.opts = *opts
	}
	return d
}

// ParamSets exposes the parameter sets received so far.
func (d *Decoder) ParamSets() *h264.ParamSets { return d.sets }

// Decode consumes one NAL unit with emulation prevention bytes already
// removed. It returns the pictures completed by this unit, in decoding
// order. A slice error discards the picture being decoded.
func (d *Decoder) Decode(nalu []byte) ([]*recon.Picture, error) {
	if len(nalu) == 0 {
		return nil, errors.Wrap(codecerr.ErrEndOfStream, "empty NAL unit")
	}
	nal := h264.ParseNALHeader(nalu[0])
	if nal.ForbiddenZeroBit {
		return nil, codecerr.Malformed("forbidden_zero_bit", 1, "NAL unit marked as damaged")
	}
	switch nal.Type {
	case h264.NALSPS:
		out, err := d.flush()
		if err != nil {
			return out, err
		}
		sps, err := h264.ParseSPS(nalu[1:])
		if err != nil {
			return out, err
		}
		d.sets.PutSPS(sps)
		return out, nil
	case h264.NALPPS:
		out, err := d.flush()
		if err != nil {
			return out, err
		}
		pps, err := h264.ParsePPS(nalu[1:], d.sets)
		if err != nil {
			return out, err
		}
		d.sets.PutPPS(pps)
		return out, nil
	case h264.NALSlice, h264.NALIDRSlice:
		return d.slice(nalu)
	case h264.NALSliceDPA, h264.NALSliceDPB, h264.NALSliceDPC:
		return nil, codecerr.Unsupported("data partitioning")
	case h264.NALAUD, h264.NALEndOfSeq, h264.NALEndOfStream:
		return d.flush()
	}
	return nil, nil
}

// Flush finishes the picture in progress, if any.
func (d *Decoder) Flush() ([]*recon.Picture, error) {
	return d.flush()
}

func (d *Decoder) flush() ([]*recon.Picture, error) {
	if d.cur == nil {
		return nil, nil
	}
	pic, err := d.finish()
	if err != nil {
		return nil, err
	}
	return []*recon.Picture{pic}, nil
}

// newPicture implements the first-slice-of-picture detection of the
// standard, treating first_mb_in_slice == 0 as a new picture as well.
func (d *Decoder) newPicture(s *h264.Slice) bool {
	c := d.cur
	if c == nil {
		return true
	}
	a, b := c.hdr, s.Header
	switch {
	case b.FirstMbInSlice == 0,
		a.FrameNum != b.FrameNum,
		a.PPSID != b.PPSID,
		(c.nal.RefIdc == 0) != (s.NAL.RefIdc == 0),
		c.nal.IsIDR() != s.NAL.IsIDR(),
		c.nal.IsIDR() && a.IDRPicID != b.IDRPicID:
		return true
	}
	switch s.SPS.PicOrderCntType {
	case 0:
		return a.PicOrderCntLsb != b.PicOrderCntLsb || a.DeltaPicOrderCntBottom != b.DeltaPicOrderCntBottom
	case 1:
		return a.DeltaPicOrderCnt != b.DeltaPicOrderCnt
	}
	return false
}

func (d *Decoder) slice(nalu []byte) ([]*recon.Picture, error) {
	p, err := h264.NewSliceParser(nalu, d.sets)
	if err != nil {
		return nil, err
	}
	s := p.Slice()
	var out []*recon.Picture
	if d.newPicture(s) {
		if out, err = d.flush(); err != nil {
			return nil, err
		}
		d.start(s)
	}
	c := d.cur
	if c.sps != s.SPS {
		d.cur = nil
		return out, codecerr.Malformed("pic_parameter_set_id", int64(s.Header.PPSID), "slices of one picture use different SPSs")
	}
	if err := d.setRefs(s); err != nil {
		d.cur = nil
		return out, errors.Wrap(err, "could not build reference lists")
	}
	if err := p.Parse(c.r); err != nil {
		d.cur = nil
		return out, errors.Wrapf(err, "could not decode slice at macroblock %d", s.Header.FirstMbInSlice)
	}
	return out, nil
}

func (d *Decoder) start(s *h264.Slice) {
	top, bottom, off := d.poc.compute(s.SPS, s.NAL, s.Header)
	pic := recon.NewPicture(s.SPS)
	pic.FrameNum = int(s.Header.FrameNum)
	pic.POC = min(top, bottom)
	pic.IDR = s.NAL.IsIDR()
	d.cur = &curPicture{
		pic:         pic,
		r:           recon.NewRenderer(pic),
		sps:         s.SPS,
		nal:         s.NAL,
		hdr:         s.Header,
		top:         top,
		frameNumOff: off,
	}
}

func (d *Decoder) setRefs(s *h264.Slice) error {
	c, h := d.cur, s.Header
	c.r.Refs = [2][]*recon.Picture{}
	if h.Type.IsIntra() {
		return nil
	}
	maxNum := s.SPS.MaxFrameNum()
	lists := d.refs.initLists(h.Type, int(h.FrameNum), c.pic.POC, maxNum)
	l0, err := d.refs.modify(lists[0], h.RefPicListModificationL0, int(h.NumRefIdxL0ActiveMinus1)+1, int(h.FrameNum), maxNum)
	if err != nil {
		return err
	}
	c.r.Refs[0] = l0
	if h.Type == h264.SliceB {
		l1, err := d.refs.modify(lists[1], h.RefPicListModificationL1, int(h.NumRefIdxL1ActiveMinus1)+1, int(h.FrameNum), maxNum)
		if err != nil {
			return err
		}
		c.r.Refs[1] = l1
	}
	return nil
}

// finish deblocks the current picture, marks it for reference and updates
// the picture order count state.
func (d *Decoder) finish() (*recon.Picture, error) {
	c := d.cur
	d.cur = nil
	if !d.opts.SkipDeblocking {
		recon.Deblock(c.pic)
	}
	mmco5 := false
	if c.nal.RefIdc != 0 {
		var err error
		if mmco5, err = d.refs.mark(c.pic, c.sps, c.nal, c.hdr.Marking); err != nil {
			return nil, errors.Wrap(err, "could not mark reference picture")
		}
	}
	top := c.top
	if mmco5 {
		// The picture is treated as frame_num 0 with its POC rebased to 0.
		top -= c.pic.POC
		c.pic.POC = 0
		c.pic.FrameNum = 0
	}
	d.poc.update(c.sps, c.nal, c.hdr, top, c.frameNumOff, mmco5)
	return c.pic, nil
}
