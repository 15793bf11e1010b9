// Package recon turns parsed H.264 macroblocks into samples: residual
// dequantisation and inverse transforms, intra and inter prediction and the
// deblocking filter. Renderer implements h264.Handler.
package recon

import (
	"image"

	"github.com/deepteams/vcodec/internal/h264"
	"github.com/deepteams/vcodec/internal/pool"
)

// Picture is a decoded 4:2:0 (or 4:0:0) frame. The planes cover whole
// macroblocks; Crop gives the displayed area.
type Picture struct {
	Y, Cb, Cr        []uint8
	YStride, CStride int
	MbWidth          int
	MbHeight         int
	Crop             image.Rectangle
	Chroma           bool

	FrameNum int
	POC      int
	LongTerm bool
	IDR      bool

	mbs []mbState
}

// mbState is the per-macroblock information kept for deblocking and for
// use as an inter reference.
type mbState struct {
	decoded  bool
	intra    bool
	t8x8     bool
	qp       int // 0 for I_PCM
	slice    int
	nz       uint16 // 4x4 luma blocks with non-zero coefficients
	ref      [2][16]*Picture
	mv       [2][16]h264.MV
	deblock  deblockParams
	chromaQP [2]int
}

type deblockParams struct {
	disable     uint32
	alphaOffset int
	betaOffset  int
}

// NewPicture allocates a picture for the SPS. Planes come from the shared
// buffer pool and go back with Release.
func NewPicture(sps *h264.SPS) *Picture {
	w, h := sps.MbWidth(), sps.MbHeight()
	p := &Picture{
		YStride: 16 * w,
		MbWidth: w, MbHeight: h,
		Chroma: sps.ChromaArrayType() != 0,
		mbs:    make([]mbState, w*h),
	}
	cx, cy := sps.Crop()
	p.Crop = image.Rect(cx, cy, cx+sps.Width(), cy+sps.Height())
	p.Y = pool.GetFilled(16*w*16*h, 0)
	p.CStride = 8 * w
	if p.Chroma {
		p.Cb = pool.GetFilled(8*w*8*h, 128)
		p.Cr = pool.GetFilled(8*w*8*h, 128)
	}
	return p
}

// Release returns the planes to the buffer pool. The picture must not be
// used afterwards.
func (p *Picture) Release() {
	for _, b := range [][]uint8{p.Y, p.Cb, p.Cr} {
		if b != nil {
			pool.Put(b)
		}
	}
	p.Y, p.Cb, p.Cr = nil, nil, nil
}

// Width and Height return the full macroblock-aligned luma size.
func (p *Picture) Width() int  { return 16 * p.MbWidth }
func (p *Picture) Height() int { return 16 * p.MbHeight }

// Image returns the cropped picture as an image.YCbCr sharing the planes.
// Monochrome pictures get constant chroma planes.
func (p *Picture) Image() *image.YCbCr {
	img := &image.YCbCr{
		Y:              p.Y,
		Cb:             p.Cb,
		Cr:             p.Cr,
		YStride:        p.YStride,
		CStride:        p.CStride,
		SubsampleRatio: image.YCbCrSubsampleRatio420,
		Rect:           image.Rect(0, 0, p.Width(), p.Height()),
	}
	if !p.Chroma {
		gray := fill(make([]uint8, p.CStride*8*p.MbHeight), 128)
		img.Cb, img.Cr = gray, gray
	}
	return img.SubImage(p.Crop).(*image.YCbCr)
}

// lumaAt returns the sample at (x, y) with coordinates clamped to the
// picture.
func (p *Picture) lumaAt(x, y int) int {
	x = clampInt(x, 0, p.Width()-1)
	y = clampInt(y, 0, p.Height()-1)
	return int(p.Y[y*p.YStride+x])
}

func (p *Picture) chromaAt(plane []uint8, x, y int) int {
	x = clampInt(x, 0, 8*p.MbWidth-1)
	y = clampInt(y, 0, 8*p.MbHeight-1)
	return int(plane[y*p.CStride+x])
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clip1(v int) uint8 {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v)
}

func fill(b []uint8, v uint8) []uint8 {
	for i := range b {
		b[i] = v
	}
	return b
}
