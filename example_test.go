package vcodec_test

import (
	"fmt"
	"image"

	"github.com/deepteams/vcodec"
)

func grey(w, h int) *image.YCbCr {
	img := image.NewYCbCr(image.Rect(0, 0, w, h), image.YCbCrSubsampleRatio420)
	for i := range img.Y {
		img.Y[i] = 128
	}
	for i := range img.Cb {
		img.Cb[i], img.Cr[i] = 128, 128
	}
	return img
}

func ExampleH264Encoder() {
	enc, err := vcodec.NewH264Encoder(64, 48, &vcodec.H264EncoderOptions{QP: 26})
	if err != nil {
		fmt.Println(err)
		return
	}
	nals, err := enc.Encode(grey(64, 48))
	if err != nil {
		fmt.Println(err)
		return
	}
	fmt.Printf("NAL units: %d\n", len(nals))

	dec := vcodec.NewH264Decoder(nil)
	for _, nal := range nals {
		if _, err := dec.Decode(nal); err != nil {
			fmt.Println(err)
			return
		}
	}
	pics, err := dec.Flush()
	if err != nil {
		fmt.Println(err)
		return
	}
	fmt.Printf("picture: %v key=%v\n", pics[0].Image().Bounds(), pics[0].KeyFrame)
	// Output:
	// NAL units: 3
	// picture: (0,0)-(64,48) key=true
}

func ExamplePeekVP8() {
	enc, err := vcodec.NewVP8Encoder(100, 60, nil)
	if err != nil {
		fmt.Println(err)
		return
	}
	defer enc.Close()
	frame, err := enc.Encode(grey(100, 60))
	if err != nil {
		fmt.Println(err)
		return
	}
	info, err := vcodec.PeekVP8(frame)
	if err != nil {
		fmt.Println(err)
		return
	}
	fmt.Printf("key=%v %dx%d\n", info.KeyFrame, info.Width, info.Height)
	// Output:
	// key=true 100x60
}

func ExampleRTPPacketizer() {
	enc, err := vcodec.NewH264Encoder(32, 32, nil)
	if err != nil {
		fmt.Println(err)
		return
	}
	nals, err := enc.Encode(grey(32, 32))
	if err != nil {
		fmt.Println(err)
		return
	}
	pkts := vcodec.NewRTPPacketizer(96, 0xcafe, 1).PacketizeAccessUnit(nals, 1200, 90000)
	dz := vcodec.NewRTPDepacketizer()
	var units int
	for _, pkt := range pkts {
		units += len(dz.Push(pkt))
	}
	fmt.Printf("units: %d marker: %v\n", units, pkts[len(pkts)-1].Marker)
	// Output:
	// units: 3 marker: true
}
