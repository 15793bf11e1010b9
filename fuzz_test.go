package vcodec

import (
	"image"
	"math/rand"
	"testing"

	"github.com/deepteams/vcodec/internal/h264"
)

func addH264Seeds(f *testing.F) {
	f.Helper()
	for _, opts := range []H264EncoderOptions{{}, {CABAC: true}} {
		enc, err := NewH264Encoder(32, 32, &opts)
		if err != nil {
			continue
		}
		rng := rand.New(rand.NewSource(1))
		var stream []byte
		for i := 0; i < 2; i++ {
			nals, err := enc.Encode(testImage(32, 32, i, rng))
			if err != nil {
				break
			}
			stream = h264.AppendAnnexB(stream, nals...)
		}
		f.Add(stream)
	}
}

// FuzzH264Decode checks that no byte stream makes the decoder panic.
func FuzzH264Decode(f *testing.F) {
	addH264Seeds(f)
	f.Add([]byte{0, 0, 1, 0x67, 0x42})
	f.Fuzz(func(t *testing.T, data []byte) {
		dec := NewH264Decoder(nil)
		dec.DecodeAnnexB(data) //nolint:errcheck
		dec.Flush()            //nolint:errcheck
	})
}

// FuzzH264Parse walks slices with a counting handler.
func FuzzH264Parse(f *testing.F) {
	addH264Seeds(f)
	f.Fuzz(func(t *testing.T, data []byte) {
		p := NewH264Parser()
		c := &mbCounter{counts: map[string]int{}}
		for _, nal := range h264.SplitAnnexB(data) {
			p.Parse(nal, c) //nolint:errcheck
		}
	})
}

// FuzzVP8Decode feeds a key frame followed by the fuzzed frame.
func FuzzVP8Decode(f *testing.F) {
	enc, err := NewVP8Encoder(24, 24, nil)
	if err != nil {
		f.Fatal(err)
	}
	rng := rand.New(rand.NewSource(1))
	key, err := enc.Encode(testImage(24, 24, 0, rng))
	if err != nil {
		f.Fatal(err)
	}
	inter, err := enc.Encode(testImage(24, 24, 1, rng))
	if err != nil {
		f.Fatal(err)
	}
	f.Add(key)
	f.Add(inter)
	f.Add([]byte{0x10, 0, 0, 0x9d, 0x01, 0x2a, 1, 0, 1, 0})
	f.Fuzz(func(t *testing.T, data []byte) {
		if info, err := PeekVP8(data); err == nil && info.Width*info.Height > 1<<20 {
			t.Skip("frame too large")
		}
		dec := NewVP8Decoder()
		defer dec.Close()
		if _, err := dec.Decode(key); err != nil {
			t.Fatal(err)
		}
		if p, err := dec.Decode(data); err == nil {
			_ = p.Image().Bounds().Intersect(image.Rect(0, 0, 1<<14, 1<<14))
		}
	})
}
