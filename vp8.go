package vcodec

import (
	"image"

	"github.com/deepteams/vcodec/internal/vp8"
)

// VP8EncoderOptions configures a VP8Encoder.
type VP8EncoderOptions = vp8.EncoderOptions

// VP8FrameInfo is the uncompressed header of a VP8 frame.
type VP8FrameInfo = vp8.FrameInfo

// ErrNoKeyFrame is returned for VP8 inter frames that arrive before the
// first key frame.
var ErrNoKeyFrame = vp8.ErrNoKeyFrame

// PeekVP8 reads the frame type and, for key frames, the picture size
// without decoding.
func PeekVP8(frame []byte) (VP8FrameInfo, error) {
	return vp8.Peek(frame)
}

// VP8Decoder reconstructs VP8 frames. It is not safe for concurrent use.
type VP8Decoder struct {
	d *vp8.Decoder
}

// NewVP8Decoder returns a decoder waiting for a key frame.
func NewVP8Decoder() *VP8Decoder {
	return &VP8Decoder{d: vp8.NewDecoder()}
}

// Decode decodes one compressed frame. Frames that are not meant for
// display are returned with Hidden set.
func (d *VP8Decoder) Decode(frame []byte) (*Picture, error) {
	f, err := d.d.DecodeFrame(frame)
	if err != nil {
		return nil, err
	}
	return pictureFromVP8(f), nil
}

// Close releases the reference frames.
func (d *VP8Decoder) Close() { d.d.Close() }

// VP8Encoder produces a VP8 stream of key and inter frames.
type VP8Encoder struct {
	e *vp8.Encoder
}

// NewVP8Encoder returns an encoder for width x height pictures; opts may
// be nil.
func NewVP8Encoder(width, height int, opts *VP8EncoderOptions) (*VP8Encoder, error) {
	e, err := vp8.NewEncoder(width, height, opts)
	if err != nil {
		return nil, err
	}
	return &VP8Encoder{e: e}, nil
}

// Encode codes one 4:2:0 picture into a compressed frame.
func (e *VP8Encoder) Encode(img *image.YCbCr) ([]byte, error) {
	return e.e.Encode(img)
}

// Reconstruction returns the last encoded frame as a decoder reconstructs
// it, or nil before the first frame.
func (e *VP8Encoder) Reconstruction() *Picture {
	f := e.e.Reconstruction()
	if f == nil {
		return nil
	}
	return pictureFromVP8(f)
}

// Close releases the reference frames.
func (e *VP8Encoder) Close() { e.e.Close() }
