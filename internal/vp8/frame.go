package vp8

import (
	"image"

	"github.com/deepteams/vcodec/internal/dsp"
	"github.com/deepteams/vcodec/internal/pool"
)

// planes is a macroblock-aligned 4:2:0 picture shared between the current
// frame and the reference slots. It is reference counted.
type planes struct {
	y, u, v           []byte
	yStride, uvStride int
	mbW, mbH          int
	refs              int
}

func newPlanes(mbW, mbH int) *planes {
	return &planes{
		y:        pool.Get(256 * mbW * mbH),
		u:        pool.Get(64 * mbW * mbH),
		v:        pool.Get(64 * mbW * mbH),
		yStride:  16 * mbW,
		uvStride: 8 * mbW,
		mbW:      mbW,
		mbH:      mbH,
		refs:     1,
	}
}

func (p *planes) retain() *planes {
	if p != nil {
		p.refs++
	}
	return p
}

func (p *planes) release() {
	if p == nil {
		return
	}
	if p.refs--; p.refs > 0 {
		return
	}
	pool.Put(p.y)
	pool.Put(p.u)
	pool.Put(p.v)
	p.y, p.u, p.v = nil, nil, nil
}

// refPlanes views the planes as motion compensation references.
func (p *planes) refPlanes() (y, u, v *dsp.RefPlane) {
	y = &dsp.RefPlane{Pix: p.y, Stride: p.yStride, W: 16 * p.mbW, H: 16 * p.mbH}
	u = &dsp.RefPlane{Pix: p.u, Stride: p.uvStride, W: 8 * p.mbW, H: 8 * p.mbH}
	v = &dsp.RefPlane{Pix: p.v, Stride: p.uvStride, W: 8 * p.mbW, H: 8 * p.mbH}
	return y, u, v
}

// Frame is a decoded VP8 picture. The planes cover whole macroblocks;
// Width and Height give the displayed area.
type Frame struct {
	Width, Height     int
	Y, U, V           []byte
	YStride, UVStride int
	KeyFrame          bool
	// Show is false for frames only meant as a future reference.
	Show    bool
	Version int
}

func newFrame(p *planes, width, height int) *Frame {
	f := &Frame{
		Width:    width,
		Height:   height,
		Y:        pool.Get(len(p.y)),
		U:        pool.Get(len(p.u)),
		V:        pool.Get(len(p.v)),
		YStride:  p.yStride,
		UVStride: p.uvStride,
	}
	copy(f.Y, p.y)
	copy(f.U, p.u)
	copy(f.V, p.v)
	return f
}

// Release returns the planes to the buffer pool. The frame must not be
// used afterwards.
func (f *Frame) Release() {
	for _, b := range [][]byte{f.Y, f.U, f.V} {
		if b != nil {
			pool.Put(b)
		}
	}
	f.Y, f.U, f.V = nil, nil, nil
}

// Image returns the displayed area as an image.YCbCr sharing the planes.
func (f *Frame) Image() *image.YCbCr {
	return &image.YCbCr{
		Y:              f.Y,
		Cb:             f.U,
		Cr:             f.V,
		YStride:        f.YStride,
		CStride:        f.UVStride,
		SubsampleRatio: image.YCbCrSubsampleRatio420,
		Rect:           image.Rect(0, 0, f.Width, f.Height),
	}
}
