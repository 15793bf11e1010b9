package vcodec

import (
	"image"
	"math/rand"
	"testing"

	"github.com/pion/rtp"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deepteams/vcodec/internal/h264"
)

func testImage(w, h, frame int, rng *rand.Rand) *image.YCbCr {
	img := image.NewYCbCr(image.Rect(0, 0, w, h), image.YCbCrSubsampleRatio420)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := 30 + (x*5+y*3)%150 + rng.Intn(4)
			if x >= 4+3*frame && x < 20+3*frame && y >= 4 && y < 20 {
				v = 230
			}
			img.Y[img.YOffset(x, y)] = uint8(v)
		}
	}
	for y := 0; y < h; y += 2 {
		for x := 0; x < w; x += 2 {
			off := img.COffset(x, y)
			img.Cb[off] = uint8(90 + x)
			img.Cr[off] = uint8(160 - y)
		}
	}
	return img
}

func flatImage(w, h int) *image.YCbCr {
	img := image.NewYCbCr(image.Rect(0, 0, w, h), image.YCbCrSubsampleRatio420)
	for i := range img.Y {
		img.Y[i] = 128
	}
	for i := range img.Cb {
		img.Cb[i], img.Cr[i] = 128, 128
	}
	return img
}

// encodeH264 returns the NAL units of each picture and the encoder's
// reconstructions.
func encodeH264(t *testing.T, opts *H264EncoderOptions, w, h, n int) ([][][]byte, []*Picture) {
	t.Helper()
	enc, err := NewH264Encoder(w, h, opts)
	require.NoError(t, err)
	rng := rand.New(rand.NewSource(3))
	var units [][][]byte
	var recons []*Picture
	for i := 0; i < n; i++ {
		nals, err := enc.Encode(testImage(w, h, i, rng))
		require.NoError(t, err)
		units = append(units, nals)
		recons = append(recons, enc.Reconstruction())
	}
	return units, recons
}

func assertSamePicture(t *testing.T, want, got *Picture, i int) {
	t.Helper()
	assert.Equal(t, want.Y, got.Y, "luma of picture %d", i)
	assert.Equal(t, want.Cb, got.Cb, "Cb of picture %d", i)
	assert.Equal(t, want.Cr, got.Cr, "Cr of picture %d", i)
	assert.Equal(t, want.Crop, got.Crop, "crop of picture %d", i)
}

func TestH264AnnexBRoundTrip(t *testing.T) {
	for _, tc := range []struct {
		name string
		opts H264EncoderOptions
	}{
		{"cavlc", H264EncoderOptions{QP: 26, GOP: 3}},
		{"cabac", H264EncoderOptions{QP: 30, GOP: 3, CABAC: true}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			units, recons := encodeH264(t, &tc.opts, 48, 32, 4)
			var stream []byte
			for _, nals := range units {
				stream = h264.AppendAnnexB(stream, nals...)
			}
			dec := NewH264Decoder(nil)
			pics, err := dec.DecodeAnnexB(stream)
			require.NoError(t, err)
			rest, err := dec.Flush()
			require.NoError(t, err)
			pics = append(pics, rest...)
			require.Len(t, pics, len(recons))
			for i, p := range pics {
				assertSamePicture(t, recons[i], p, i)
				assert.Equal(t, i%3 == 0, p.KeyFrame, "picture %d", i)
				assert.Equal(t, image.Rect(0, 0, 48, 32), p.Image().Rect)
			}
		})
	}
}

func TestH264OverRTP(t *testing.T) {
	units, recons := encodeH264(t, &H264EncoderOptions{QP: 24}, 48, 32, 3)
	pz := NewRTPPacketizer(96, 0x1234, 65530)
	dz := NewRTPDepacketizer()
	dec := NewH264Decoder(nil)
	var pics []*Picture
	for i, nals := range units {
		for _, pkt := range pz.PacketizeAccessUnit(nals, 200, uint32(3000*i)) {
			raw, err := pkt.Marshal()
			require.NoError(t, err)
			var in rtp.Packet
			require.NoError(t, in.Unmarshal(raw))
			for _, nal := range dz.Push(&in) {
				out, err := dec.Decode(nal)
				require.NoError(t, err)
				pics = append(pics, out...)
			}
		}
	}
	rest, err := dec.Flush()
	require.NoError(t, err)
	pics = append(pics, rest...)
	require.Len(t, pics, len(recons))
	for i, p := range pics {
		assertSamePicture(t, recons[i], p, i)
	}
	st := dz.Stats()
	assert.Zero(t, st.Corrupt)
	assert.Zero(t, st.Dropped)
}

func TestH264LostFragment(t *testing.T) {
	units, _ := encodeH264(t, &H264EncoderOptions{QP: 16}, 48, 32, 1)
	pkts := NewRTPPacketizer(96, 1, 0).PacketizeAccessUnit(units[0], 200, 0)
	require.Greater(t, len(pkts), 3, "the IDR slice must be fragmented")

	dz := NewRTPDepacketizer()
	dec := NewH264Decoder(nil)
	var errs []error
	for i, pkt := range pkts {
		if i == 2 {
			continue
		}
		for _, nal := range dz.Push(pkt) {
			if _, err := dec.Decode(nal); err != nil {
				errs = append(errs, err)
			}
		}
	}
	require.Len(t, errs, 1)
	assert.True(t, errors.Is(errs[0], ErrMalformed))
	assert.Equal(t, 1, dz.Stats().Corrupt)
}

// mbCounter counts the macroblock kinds of the slices it is handed.
type mbCounter struct {
	slices int
	counts map[string]int
}

func (c *mbCounter) StartSlice(*Slice) error { c.slices++; return nil }
func (c *mbCounter) IntraNxN(*IntraNxN) error { c.counts["intraNxN"]++; return nil }
func (c *mbCounter) Intra16x16(*Intra16x16) error { c.counts["intra16x16"]++; return nil }
func (c *mbCounter) IPCM(*IPCM) error { c.counts["ipcm"]++; return nil }
func (c *mbCounter) PSkip(*PSkip) error { c.counts["pskip"]++; return nil }
func (c *mbCounter) Inter(*Inter) error { c.counts["inter"]++; return nil }
func (c *mbCounter) Inter8x8(*Inter8x8) error { c.counts["inter8x8"]++; return nil }

func TestH264ParserHandler(t *testing.T) {
	for _, cabac := range []bool{false, true} {
		enc, err := NewH264Encoder(48, 32, &H264EncoderOptions{CABAC: cabac})
		require.NoError(t, err)
		p := NewH264Parser()
		for i, want := range []string{"intra16x16", "pskip"} {
			nals, err := enc.Encode(flatImage(48, 32))
			require.NoError(t, err)
			c := &mbCounter{counts: map[string]int{}}
			for _, nal := range nals {
				require.NoError(t, p.Parse(nal, c))
			}
			assert.Equal(t, 1, c.slices, "picture %d", i)
			assert.Equal(t, map[string]int{want: 6}, c.counts, "picture %d cabac=%v", i, cabac)
		}
	}
}

// stopHandler fails on the first macroblock.
type stopHandler struct{ mbCounter }

func (stopHandler) Intra16x16(*Intra16x16) error { return errors.New("stop") }

func TestH264ParserHandlerError(t *testing.T) {
	enc, err := NewH264Encoder(32, 32, nil)
	require.NoError(t, err)
	nals, err := enc.Encode(flatImage(32, 32))
	require.NoError(t, err)
	p := NewH264Parser()
	h := &stopHandler{mbCounter{counts: map[string]int{}}}
	require.NoError(t, p.Parse(nals[0], h))
	require.NoError(t, p.Parse(nals[1], h))
	assert.EqualError(t, errors.Cause(p.Parse(nals[2], h)), "stop")
	assert.ErrorIs(t, p.Parse(nil, h), ErrEndOfStream)
}

func TestVP8RoundTrip(t *testing.T) {
	enc, err := NewVP8Encoder(40, 24, &VP8EncoderOptions{Quality: 80, KeyInterval: 2})
	require.NoError(t, err)
	defer enc.Close()
	dec := NewVP8Decoder()
	defer dec.Close()
	rng := rand.New(rand.NewSource(9))
	for i := 0; i < 4; i++ {
		frame, err := enc.Encode(testImage(40, 24, i, rng))
		require.NoError(t, err)
		info, err := PeekVP8(frame)
		require.NoError(t, err)
		assert.Equal(t, i%2 == 0, info.KeyFrame)

		got, err := dec.Decode(frame)
		require.NoError(t, err)
		want := enc.Reconstruction()
		assertSamePicture(t, want, got, i)
		assert.Equal(t, image.Rect(0, 0, 40, 24), got.Crop)
		assert.Equal(t, 48, got.Width)
		assert.Equal(t, 32, got.Height)
		assert.Equal(t, info.KeyFrame, got.KeyFrame)
		assert.False(t, got.Hidden)
	}
}

func TestVP8HiddenAndErrors(t *testing.T) {
	enc, err := NewVP8Encoder(16, 16, nil)
	require.NoError(t, err)
	key, err := enc.Encode(flatImage(16, 16))
	require.NoError(t, err)
	inter, err := enc.Encode(flatImage(16, 16))
	require.NoError(t, err)

	dec := NewVP8Decoder()
	_, err = dec.Decode(inter)
	assert.True(t, errors.Is(err, ErrNoKeyFrame))
	_, err = dec.Decode(key[:5])
	assert.True(t, errors.Is(err, ErrEndOfStream))

	hidden := append([]byte(nil), key...)
	hidden[0] &^= 1 << 4
	p, err := dec.Decode(hidden)
	require.NoError(t, err)
	assert.True(t, p.Hidden)
	assert.True(t, p.KeyFrame)
}

func TestH264PictureLayout(t *testing.T) {
	units, _ := encodeH264(t, nil, 16, 16, 1)
	dec := NewH264Decoder(nil)
	for _, nal := range units[0] {
		_, err := dec.Decode(nal)
		require.NoError(t, err)
	}
	pics, err := dec.Flush()
	require.NoError(t, err)
	require.Len(t, pics, 1)
	assert.Len(t, pics[0].Cb, 8*8)
	img := pics[0].Image()
	assert.Equal(t, 16, img.Rect.Dx())
}
