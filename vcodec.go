package vcodec

import (
	"image"

	"github.com/deepteams/vcodec/internal/codecerr"
	"github.com/deepteams/vcodec/internal/h264"
	"github.com/deepteams/vcodec/internal/h264/recon"
	"github.com/deepteams/vcodec/internal/vp8"
)

// Errors shared by every codec. Use errors.Is to match them through the
// context the decoders add.
var (
	// ErrEndOfStream reports a NAL unit or frame that ends early.
	ErrEndOfStream = codecerr.ErrEndOfStream
	// ErrMalformed reports an impossible syntax element value.
	ErrMalformed = codecerr.ErrMalformed
	// ErrUnsupported reports valid syntax this package does not implement.
	ErrUnsupported = codecerr.ErrUnsupported
)

// SyntaxError names the syntax element behind an ErrMalformed.
type SyntaxError = codecerr.SyntaxError

// Picture is a decoded 4:2:0 picture. The planes cover whole macroblocks;
// Crop is the displayed area.
type Picture struct {
	Y, Cb, Cr        []byte
	YStride, CStride int
	Width, Height    int
	Crop             image.Rectangle

	// KeyFrame is set for H.264 IDR pictures and VP8 key frames.
	KeyFrame bool
	// FrameNum, POC and LongTerm are the H.264 picture identifiers.
	FrameNum int
	POC      int
	LongTerm bool
	// Hidden is set for VP8 frames that are decoded for reference only.
	Hidden bool
}

// Image returns the displayed area as an image.YCbCr sharing the planes.
func (p *Picture) Image() *image.YCbCr {
	img := &image.YCbCr{
		Y:              p.Y,
		Cb:             p.Cb,
		Cr:             p.Cr,
		YStride:        p.YStride,
		CStride:        p.CStride,
		SubsampleRatio: image.YCbCrSubsampleRatio420,
		Rect:           image.Rect(0, 0, p.Width, p.Height),
	}
	return img.SubImage(p.Crop).(*image.YCbCr)
}

// pictureFromH264 copies a decoder picture, which may still serve as a
// reference, into caller-owned planes.
func pictureFromH264(src *recon.Picture) *Picture {
	p := &Picture{
		Y:        append([]byte(nil), src.Y...),
		YStride:  src.YStride,
		CStride:  src.CStride,
		Width:    src.Width(),
		Height:   src.Height(),
		Crop:     src.Crop,
		KeyFrame: src.IDR,
		FrameNum: src.FrameNum,
		POC:      src.POC,
		LongTerm: src.LongTerm,
	}
	if src.Chroma {
		p.Cb = append([]byte(nil), src.Cb...)
		p.Cr = append([]byte(nil), src.Cr...)
	} else {
		n := src.CStride * src.Height() / 2
		p.Cb, p.Cr = make([]byte, n), make([]byte, n)
		for i := range p.Cb {
			p.Cb[i], p.Cr[i] = 128, 128
		}
	}
	return p
}

// pictureFromVP8 takes over the contents of f and releases it.
func pictureFromVP8(f *vp8.Frame) *Picture {
	defer f.Release()
	return &Picture{
		Y:        append([]byte(nil), f.Y...),
		Cb:       append([]byte(nil), f.U...),
		Cr:       append([]byte(nil), f.V...),
		YStride:  f.YStride,
		CStride:  f.UVStride,
		Width:    f.YStride,
		Height:   len(f.Y) / f.YStride,
		Crop:     image.Rect(0, 0, f.Width, f.Height),
		KeyFrame: f.KeyFrame,
		Hidden:   !f.Show,
	}
}

// Handler receives the macroblocks of an H.264 slice in decoding order.
// Returning an error stops the slice.
type Handler = h264.Handler

// Types passed to a Handler.
type (
	Slice       = h264.Slice
	SliceHeader = h264.SliceHeader
	Macroblock  = h264.Macroblock
	MBCommon    = h264.MBCommon
	IntraNxN    = h264.IntraNxN
	Intra16x16  = h264.Intra16x16
	IPCM        = h264.IPCM
	PSkip       = h264.PSkip
	Inter       = h264.Inter
	Inter8x8    = h264.Inter8x8
)
