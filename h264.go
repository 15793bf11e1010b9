package vcodec

import (
	"image"

	"github.com/pkg/errors"

	"github.com/deepteams/vcodec/internal/avc"
	"github.com/deepteams/vcodec/internal/codecerr"
	"github.com/deepteams/vcodec/internal/h264"
	"github.com/deepteams/vcodec/internal/h264/recon"
)

// H264DecoderOptions configures an H264Decoder.
type H264DecoderOptions = avc.DecoderOptions

// H264EncoderOptions configures an H264Encoder.
type H264EncoderOptions = avc.EncoderOptions

// H264Decoder reconstructs pictures from H.264 NAL units. It is not safe
// for concurrent use.
type H264Decoder struct {
	d *avc.Decoder
}

// NewH264Decoder returns a decoder; opts may be nil.
func NewH264Decoder(opts *H264DecoderOptions) *H264Decoder {
	return &H264Decoder{d: avc.NewDecoder(opts)}
}

// Decode consumes one NAL unit as carried in a byte stream or an RTP
// payload: without start code, with emulation prevention bytes. It returns
// the pictures this unit completes.
func (d *H264Decoder) Decode(nal []byte) ([]*Picture, error) {
	pics, err := d.d.Decode(h264.UnescapeRBSP(nal))
	return picturesFromH264(pics), err
}

// DecodeAnnexB decodes every NAL unit of an Annex B byte stream, stopping
// at the first error. The picture in progress at the end of the stream is
// kept until Flush or the next unit.
func (d *H264Decoder) DecodeAnnexB(stream []byte) ([]*Picture, error) {
	var out []*Picture
	for i, nal := range h264.SplitAnnexB(stream) {
		pics, err := d.Decode(nal)
		out = append(out, pics...)
		if err != nil {
			return out, errors.Wrapf(err, "NAL unit %d", i)
		}
	}
	return out, nil
}

// Flush returns the picture in progress, if any.
func (d *H264Decoder) Flush() ([]*Picture, error) {
	pics, err := d.d.Flush()
	return picturesFromH264(pics), err
}

func picturesFromH264(pics []*recon.Picture) []*Picture {
	if len(pics) == 0 {
		return nil
	}
	out := make([]*Picture, len(pics))
	for i, p := range pics {
		out[i] = pictureFromH264(p)
	}
	return out
}

// H264Parser walks H.264 slices without reconstructing them, handing each
// macroblock to a Handler. It keeps the parameter sets it has seen.
type H264Parser struct {
	sets *h264.ParamSets
}

// NewH264Parser returns a parser with an empty parameter-set store.
func NewH264Parser() *H264Parser {
	return &H264Parser{sets: h264.NewParamSets()}
}

// Parse consumes one NAL unit, with emulation prevention bytes. Parameter
// sets are stored, slices are walked through h and other units are
// ignored.
func (p *H264Parser) Parse(nal []byte, h Handler) error {
	if len(nal) == 0 {
		return errors.Wrap(codecerr.ErrEndOfStream, "empty NAL unit")
	}
	rbsp := h264.UnescapeRBSP(nal)
	switch hdr := h264.ParseNALHeader(rbsp[0]); hdr.Type {
	case h264.NALSPS:
		sps, err := h264.ParseSPS(rbsp[1:])
		if err != nil {
			return err
		}
		p.sets.PutSPS(sps)
	case h264.NALPPS:
		pps, err := h264.ParsePPS(rbsp[1:], p.sets)
		if err != nil {
			return err
		}
		p.sets.PutPPS(pps)
	case h264.NALSlice, h264.NALIDRSlice:
		sp, err := h264.NewSliceParser(rbsp, p.sets)
		if err != nil {
			return err
		}
		return sp.Parse(h)
	}
	return nil
}

// H264Encoder produces an H.264 stream with one slice per picture.
type H264Encoder struct {
	e *avc.Encoder
}

// NewH264Encoder returns an encoder for width x height pictures; opts may
// be nil.
func NewH264Encoder(width, height int, opts *H264EncoderOptions) (*H264Encoder, error) {
	e, err := avc.NewEncoder(width, height, opts)
	if err != nil {
		return nil, err
	}
	return &H264Encoder{e: e}, nil
}

// Encode codes one 4:2:0 picture. The NAL units carry emulation prevention
// bytes and no start codes; IDR pictures start with the SPS and PPS.
func (e *H264Encoder) Encode(img *image.YCbCr) ([][]byte, error) {
	nals, err := e.e.Encode(img)
	if err != nil {
		return nil, err
	}
	for i, n := range nals {
		nals[i] = h264.EscapeRBSP(n)
	}
	return nals, nil
}

// Reconstruction returns a copy of the last encoded picture as a decoder
// would reconstruct it.
func (e *H264Encoder) Reconstruction() *Picture {
	p := e.e.Reconstruction()
	if p == nil {
		return nil
	}
	return pictureFromH264(p)
}
