package vcodec

import (
	"math/rand"
	"testing"

	"github.com/deepteams/vcodec/internal/h264"
)

const benchW, benchH = 320, 240

func benchEncodeH264(b *testing.B, opts *H264EncoderOptions) {
	rng := rand.New(rand.NewSource(1))
	img := testImage(benchW, benchH, 0, rng)
	enc, err := NewH264Encoder(benchW, benchH, opts)
	if err != nil {
		b.Fatal(err)
	}
	var size int
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		nals, err := enc.Encode(img)
		if err != nil {
			b.Fatal(err)
		}
		size = 0
		for _, n := range nals {
			size += len(n)
		}
	}
	b.SetBytes(int64(size))
}

func BenchmarkEncodeH264_CAVLC(b *testing.B) { benchEncodeH264(b, &H264EncoderOptions{GOP: 1}) }

func BenchmarkEncodeH264_CABAC(b *testing.B) {
	benchEncodeH264(b, &H264EncoderOptions{GOP: 1, CABAC: true})
}

func BenchmarkDecodeH264(b *testing.B) {
	rng := rand.New(rand.NewSource(1))
	enc, err := NewH264Encoder(benchW, benchH, &H264EncoderOptions{GOP: 8})
	if err != nil {
		b.Fatal(err)
	}
	var stream []byte
	for i := 0; i < 8; i++ {
		nals, err := enc.Encode(testImage(benchW, benchH, i, rng))
		if err != nil {
			b.Fatal(err)
		}
		stream = h264.AppendAnnexB(stream, nals...)
	}
	b.SetBytes(int64(len(stream)))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		dec := NewH264Decoder(nil)
		if _, err := dec.DecodeAnnexB(stream); err != nil {
			b.Fatal(err)
		}
		if _, err := dec.Flush(); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkEncodeVP8(b *testing.B) {
	rng := rand.New(rand.NewSource(1))
	img := testImage(benchW, benchH, 0, rng)
	enc, err := NewVP8Encoder(benchW, benchH, &VP8EncoderOptions{KeyInterval: 1})
	if err != nil {
		b.Fatal(err)
	}
	defer enc.Close()
	var size int
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		frame, err := enc.Encode(img)
		if err != nil {
			b.Fatal(err)
		}
		size = len(frame)
	}
	b.SetBytes(int64(size))
}

func BenchmarkDecodeVP8(b *testing.B) {
	rng := rand.New(rand.NewSource(1))
	enc, err := NewVP8Encoder(benchW, benchH, &VP8EncoderOptions{KeyInterval: 8})
	if err != nil {
		b.Fatal(err)
	}
	var frames [][]byte
	var total int
	for i := 0; i < 8; i++ {
		frame, err := enc.Encode(testImage(benchW, benchH, i, rng))
		if err != nil {
			b.Fatal(err)
		}
		frames = append(frames, frame)
		total += len(frame)
	}
	enc.Close()
	b.SetBytes(int64(total))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		dec := NewVP8Decoder()
		for _, f := range frames {
			if _, err := dec.Decode(f); err != nil {
				b.Fatal(err)
			}
		}
		dec.Close()
	}
}
