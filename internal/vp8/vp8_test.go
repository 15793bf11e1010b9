package vp8

import (
	"image"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deepteams/vcodec/internal/codecerr"
)

// movingImage draws a textured gradient with a bright square that moves by
// (2*frame, frame) samples.
func movingImage(w, h, frame int, rng *rand.Rand) *image.YCbCr {
	img := image.NewYCbCr(image.Rect(0, 0, w, h), image.YCbCrSubsampleRatio420)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := 40 + (x*3+y*2)%120 + rng.Intn(3)
			if x >= 8+2*frame && x < 24+2*frame && y >= 6+frame && y < 22+frame {
				v = 220
			}
			img.Y[img.YOffset(x, y)] = uint8(v)
		}
	}
	for y := 0; y < h; y += 2 {
		for x := 0; x < w; x += 2 {
			off := img.COffset(x, y)
			img.Cb[off] = uint8(100 + x)
			img.Cr[off] = uint8(150 - y)
		}
	}
	return img
}

func encodeSequence(t *testing.T, opts *EncoderOptions, w, h, n int) ([][]byte, []*Frame) {
	t.Helper()
	enc, err := NewEncoder(w, h, opts)
	require.NoError(t, err)
	defer enc.Close()
	rng := rand.New(rand.NewSource(7))
	var frames [][]byte
	var recons []*Frame
	for i := 0; i < n; i++ {
		data, err := enc.Encode(movingImage(w, h, i, rng))
		require.NoError(t, err)
		frames = append(frames, data)
		recons = append(recons, enc.Reconstruction())
	}
	return frames, recons
}

func TestEncodeDecodeMatchesReconstruction(t *testing.T) {
	for _, tc := range []struct {
		name string
		opts EncoderOptions
	}{
		{"default", EncoderOptions{KeyInterval: 3}},
		{"simple-filter", EncoderOptions{Quality: 60, SimpleFilter: true, Sharpness: 3}},
		{"partitions", EncoderOptions{Quality: 90, Partitions: 4, KeyInterval: 4}},
		{"no-filter-16x16", EncoderOptions{Quality: 30, DisableLoopFilter: true, DisableBPred: true}},
		{"sharp", EncoderOptions{Quality: 50, Sharpness: 6, FilterLevel: 40, SearchRange: 4}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			frames, recons := encodeSequence(t, &tc.opts, 46, 38, 5)
			interval := tc.opts.KeyInterval
			if interval == 0 {
				interval = 30
			}
			dec := NewDecoder()
			defer dec.Close()
			for i, data := range frames {
				f, err := dec.DecodeFrame(data)
				require.NoError(t, err, "frame %d", i)
				assert.Equal(t, 46, f.Width)
				assert.Equal(t, 38, f.Height)
				assert.True(t, f.Show)
				assert.Equal(t, recons[i].Y, f.Y, "luma of frame %d", i)
				assert.Equal(t, recons[i].U, f.U, "U of frame %d", i)
				assert.Equal(t, recons[i].V, f.V, "V of frame %d", i)
				assert.Equal(t, i%interval == 0, f.KeyFrame, "frame %d", i)
				f.Release()
				recons[i].Release()
			}
		})
	}
}

func TestEncodeQuality(t *testing.T) {
	enc, err := NewEncoder(32, 32, &EncoderOptions{Quality: 95})
	require.NoError(t, err)
	img := movingImage(32, 32, 0, rand.New(rand.NewSource(1)))
	_, err = enc.Encode(img)
	require.NoError(t, err)
	rec := enc.Reconstruction()
	var sum int
	for y := 0; y < 32; y++ {
		for x := 0; x < 32; x++ {
			sum += abs(int(img.Y[img.YOffset(x, y)]) - int(rec.Y[y*rec.YStride+x]))
		}
	}
	assert.Less(t, sum/(32*32), 4, "mean absolute luma error at quality 95")
}

func TestStaticSceneSkips(t *testing.T) {
	enc, err := NewEncoder(48, 32, nil)
	require.NoError(t, err)
	img := image.NewYCbCr(image.Rect(0, 0, 48, 32), image.YCbCrSubsampleRatio420)
	for i := range img.Y {
		img.Y[i] = 128
	}
	for i := range img.Cb {
		img.Cb[i], img.Cr[i] = 128, 128
	}
	_, err = enc.Encode(img)
	require.NoError(t, err)
	second, err := enc.Encode(img)
	require.NoError(t, err)
	for i := range enc.mbs {
		mb := &enc.mbs[i]
		assert.True(t, mb.isInter(), "macroblock %d", i)
		assert.True(t, mb.skip, "macroblock %d", i)
		assert.Equal(t, uint8(modeZeroMV), mb.ymode, "macroblock %d", i)
	}
	assert.Less(t, len(second), 40)
}

func TestPeekKeyFrame(t *testing.T) {
	enc, err := NewEncoder(176, 144, nil)
	require.NoError(t, err)
	data, err := enc.Encode(movingImage(176, 144, 0, rand.New(rand.NewSource(5))))
	require.NoError(t, err)
	info, err := Peek(data)
	require.NoError(t, err)
	assert.Equal(t, FrameInfo{KeyFrame: true, Show: true, Width: 176, Height: 144}, info)
	assert.Equal(t, []byte{0x9d, 0x01, 0x2a}, data[3:6])
}

func TestSyntheticKeyFrameHeader(t *testing.T) {
	tag := frameTag{keyFrame: true, show: true, firstPartSize: 1234, width: 176, height: 144, xScale: 1}
	data := tag.append(nil)
	require.Len(t, data, 10)
	got, err := parseFrameTag(data)
	require.NoError(t, err)
	assert.Equal(t, tag, got)
}

func TestDecodeErrors(t *testing.T) {
	frames, recons := encodeSequence(t, &EncoderOptions{Quality: 90}, 32, 32, 2)
	for _, f := range recons {
		f.Release()
	}

	dec := NewDecoder()
	_, err := dec.DecodeFrame(frames[1])
	assert.ErrorIs(t, err, ErrNoKeyFrame)

	_, err = dec.DecodeFrame(frames[0][:2])
	assert.ErrorIs(t, err, codecerr.ErrEndOfStream)

	_, err = dec.DecodeFrame(frames[0][:20])
	assert.ErrorIs(t, err, codecerr.ErrEndOfStream)

	bad := append([]byte(nil), frames[0]...)
	bad[4] = 0
	_, err = dec.DecodeFrame(bad)
	assert.ErrorIs(t, err, codecerr.ErrMalformed)

	bad = append([]byte(nil), frames[0]...)
	bad[0] |= 7 << 1
	_, err = dec.DecodeFrame(bad)
	assert.ErrorIs(t, err, codecerr.ErrUnsupported)

	f, err := dec.DecodeFrame(frames[0])
	require.NoError(t, err)
	f.Release()
}

func TestHiddenFrameIsReported(t *testing.T) {
	frames, recons := encodeSequence(t, nil, 16, 16, 1)
	recons[0].Release()
	data := append([]byte(nil), frames[0]...)
	data[0] &^= 1 << 4
	dec := NewDecoder()
	f, err := dec.DecodeFrame(data)
	require.NoError(t, err)
	assert.False(t, f.Show)
	assert.True(t, f.KeyFrame)
}

func TestNewEncoderValidation(t *testing.T) {
	for _, tc := range []struct {
		w, h int
		opts EncoderOptions
	}{
		{0, 16, EncoderOptions{}},
		{16, 1 << 14, EncoderOptions{}},
		{16, 16, EncoderOptions{Quality: 101}},
		{16, 16, EncoderOptions{Partitions: 3}},
		{16, 16, EncoderOptions{Partitions: 16}},
		{16, 16, EncoderOptions{Sharpness: 8}},
		{16, 16, EncoderOptions{FilterLevel: 64}},
	} {
		_, err := NewEncoder(tc.w, tc.h, &tc.opts)
		assert.Error(t, err, "%dx%d %+v", tc.w, tc.h, tc.opts)
	}
	enc, err := NewEncoder(16, 16, nil)
	require.NoError(t, err)
	_, err = enc.Encode(image.NewYCbCr(image.Rect(0, 0, 16, 16), image.YCbCrSubsampleRatio444))
	assert.ErrorIs(t, err, codecerr.ErrUnsupported)
	_, err = enc.Encode(image.NewYCbCr(image.Rect(0, 0, 32, 16), image.YCbCrSubsampleRatio420))
	assert.Error(t, err)
}

func TestReferenceCopiesUsePreviousBuffers(t *testing.T) {
	s := newTestState(1, 1)
	last, golden, alt := newPlanes(1, 1), newPlanes(1, 1), newPlanes(1, 1)
	s.refs[refLast], s.refs[refGolden], s.refs[refAltRef] = last, golden, alt
	s.startFrame()
	cur := s.cur
	s.hdr.copyToGolden, s.hdr.copyToAlt = 2, 2
	s.hdr.refreshGolden, s.hdr.refreshAlt, s.hdr.refreshLast = false, false, true
	s.updateRefs()

	assert.Same(t, alt, s.refs[refGolden], "golden takes the old altref")
	assert.Same(t, golden, s.refs[refAltRef], "altref takes the old golden")
	assert.Same(t, cur, s.refs[refLast])
	assert.Nil(t, s.cur)
	assert.Equal(t, 1, golden.refs)
	assert.Equal(t, 1, alt.refs)
	s.release()
}
