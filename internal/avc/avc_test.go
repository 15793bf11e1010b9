package avc

import (
	"image"
	"math/rand"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deepteams/vcodec/internal/codecerr"
	"github.com/deepteams/vcodec/internal/h264"
	"github.com/deepteams/vcodec/internal/h264/recon"
)

// movingImage draws a smooth gradient with a bright square that moves by
// (2*frame, frame) samples, giving the encoder real motion to find.
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

type planes struct {
	y, cb, cr []uint8
}

func snapshot(p *recon.Picture) planes {
	return planes{
		y:  append([]uint8(nil), p.Y...),
		cb: append([]uint8(nil), p.Cb...),
		cr: append([]uint8(nil), p.Cr...),
	}
}

func encodeSequence(t *testing.T, opts *EncoderOptions, w, h, n int) ([][]byte, []planes) {
	t.Helper()
	enc, err := NewEncoder(w, h, opts)
	require.NoError(t, err)
	rng := rand.New(rand.NewSource(7))
	var nals [][]byte
	var recons []planes
	for i := 0; i < n; i++ {
		out, err := enc.Encode(movingImage(w, h, i, rng))
		require.NoError(t, err)
		nals = append(nals, out...)
		recons = append(recons, snapshot(enc.Reconstruction()))
	}
	return nals, recons
}

func decodeAll(t *testing.T, nals [][]byte) []*recon.Picture {
	t.Helper()
	dec := NewDecoder(nil)
	var pics []*recon.Picture
	for _, nal := range nals {
		out, err := dec.Decode(nal)
		require.NoError(t, err)
		pics = append(pics, out...)
	}
	out, err := dec.Flush()
	require.NoError(t, err)
	return append(pics, out...)
}

func TestEncodeDecodeMatchesReconstruction(t *testing.T) {
	for _, tc := range []struct {
		name string
		opts EncoderOptions
	}{
		{"cavlc", EncoderOptions{QP: 28, GOP: 3}},
		{"cabac", EncoderOptions{QP: 28, GOP: 3, CABAC: true}},
		{"cavlc-nodeblock", EncoderOptions{QP: 34, GOP: 4, DisableDeblocking: true}},
		{"cabac-lowqp", EncoderOptions{QP: 12, GOP: 10, CABAC: true, SearchRange: 4}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			nals, recons := encodeSequence(t, &tc.opts, 46, 38, 5)
			pics := decodeAll(t, nals)
			require.Len(t, pics, len(recons))
			for i, p := range pics {
				assert.Equal(t, recons[i].y, p.Y, "luma of picture %d", i)
				assert.Equal(t, recons[i].cb, p.Cb, "Cb of picture %d", i)
				assert.Equal(t, recons[i].cr, p.Cr, "Cr of picture %d", i)
				assert.Equal(t, 46, p.Crop.Dx())
				assert.Equal(t, 38, p.Crop.Dy())
			}
			assert.True(t, pics[0].IDR)
			assert.False(t, pics[1].IDR)
		})
	}
}

func TestEncodeQuality(t *testing.T) {
	enc, err := NewEncoder(32, 32, &EncoderOptions{QP: 10})
	require.NoError(t, err)
	img := movingImage(32, 32, 0, rand.New(rand.NewSource(1)))
	_, err = enc.Encode(img)
	require.NoError(t, err)
	rec := enc.Reconstruction()
	var sum int
	for y := 0; y < 32; y++ {
		for x := 0; x < 32; x++ {
			sum += absDiff(int(img.Y[img.YOffset(x, y)]), int(rec.Y[y*rec.YStride+x]))
		}
	}
	assert.Less(t, sum/(32*32), 3, "mean absolute luma error at QP 10")
}

func TestStaticSceneUsesSkip(t *testing.T) {
	enc, err := NewEncoder(32, 32, &EncoderOptions{QP: 30})
	require.NoError(t, err)
	img := image.NewYCbCr(image.Rect(0, 0, 32, 32), image.YCbCrSubsampleRatio420)
	for i := range img.Y {
		img.Y[i] = 128
	}
	for i := range img.Cb {
		img.Cb[i], img.Cr[i] = 128, 128
	}
	first, err := enc.Encode(img)
	require.NoError(t, err)
	second, err := enc.Encode(img)
	require.NoError(t, err)
	require.Len(t, second, 1)
	// Four skipped macroblocks collapse into a single mb_skip_run.
	assert.Less(t, len(second[0]), 8)
	assert.Len(t, first, 3)
}

func TestDecodeFramesMarkedForReference(t *testing.T) {
	nals, _ := encodeSequence(t, &EncoderOptions{GOP: 100}, 32, 32, 4)
	dec := NewDecoder(nil)
	for _, nal := range nals {
		_, err := dec.Decode(nal)
		require.NoError(t, err)
	}
	_, err := dec.Flush()
	require.NoError(t, err)
	short, long := dec.refs.counts()
	assert.Equal(t, 1, short, "sliding window keeps max_num_ref_frames")
	assert.Zero(t, long)
}

func TestDecodeUnknownPPS(t *testing.T) {
	nals, _ := encodeSequence(t, nil, 16, 16, 1)
	dec := NewDecoder(nil)
	_, err := dec.Decode(nals[2])
	require.Error(t, err)
	assert.ErrorIs(t, err, codecerr.ErrMalformed)
}

func TestDecodeTruncatedSlice(t *testing.T) {
	nals, _ := encodeSequence(t, &EncoderOptions{QP: 10}, 32, 32, 1)
	dec := NewDecoder(nil)
	for _, nal := range nals[:2] {
		_, err := dec.Decode(nal)
		require.NoError(t, err)
	}
	slice := nals[2]
	_, err := dec.Decode(slice[:len(slice)/2])
	require.Error(t, err)
	pics, err := dec.Flush()
	require.NoError(t, err)
	assert.Empty(t, pics, "a failed slice discards its picture")
}

func TestDecodeDamagedNAL(t *testing.T) {
	dec := NewDecoder(nil)
	_, err := dec.Decode([]byte{0x80 | byte(h264.NALSlice), 0})
	assert.ErrorIs(t, err, codecerr.ErrMalformed)
	_, err = dec.Decode(nil)
	assert.ErrorIs(t, err, codecerr.ErrEndOfStream)
	_, err = dec.Decode([]byte{byte(h264.NALSliceDPA)})
	assert.ErrorIs(t, err, codecerr.ErrUnsupported)
}

func TestNewEncoderValidation(t *testing.T) {
	_, err := NewEncoder(0, 16, nil)
	assert.Error(t, err)
	_, err = NewEncoder(16, 16, &EncoderOptions{QP: 60})
	assert.Error(t, err)
	enc, err := NewEncoder(16, 16, nil)
	require.NoError(t, err)
	_, err = enc.Encode(image.NewYCbCr(image.Rect(0, 0, 16, 16), image.YCbCrSubsampleRatio444))
	assert.ErrorIs(t, err, codecerr.ErrUnsupported)
}

func TestDecodeKnownAnswerStreams(t *testing.T) {
	for _, file := range []string{"cavlc_ip.264", "cabac_ip.264"} {
		t.Run(file, func(t *testing.T) {
			stream, err := os.ReadFile("../h264/testdata/" + file)
			require.NoError(t, err)
			var nals [][]byte
			for _, nal := range h264.SplitAnnexB(stream) {
				nals = append(nals, h264.UnescapeRBSP(nal))
			}
			pics := decodeAll(t, nals)
			require.Len(t, pics, 2)
			i, p := pics[0], pics[1]
			assert.True(t, i.IDR)
			assert.Equal(t, 1, p.FrameNum)

			// MB0 is DC predicted from 128 with luma DC levels {5, 0, -1}
			// at QP 26: +3 on the upper 4x4 rows and +5 on the lower ones.
			for y := 0; y < 16; y++ {
				want := uint8(131)
				if y >= 8 {
					want = 133
				}
				for x := 0; x < 16; x++ {
					require.Equal(t, want, i.Y[y*i.YStride+x], "sample (%d, %d)", x, y)
				}
			}
			// P MB1 is skipped with a zero vector and copies I MB1.
			for y := 0; y < 16; y++ {
				row := y*i.YStride + 16
				assert.Equal(t, i.Y[row:row+16], p.Y[y*p.YStride+16:y*p.YStride+32], "row %d", y)
			}
			for y := 0; y < 8; y++ {
				row := y*i.CStride + 8
				assert.Equal(t, i.Cb[row:row+8], p.Cb[y*p.CStride+8:y*p.CStride+16], "row %d", y)
			}
		})
	}
}
