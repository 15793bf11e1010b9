// Package vcodec provides pure Go H.264 and VP8 video codecs.
//
// The package supports:
//   - H.264 decoding of progressive 8-bit 4:2:0 and 4:0:0 streams, CAVLC
//     and CABAC, I and P slices and B slices without direct prediction
//   - H.264 encoding of IDR and P pictures (CAVLC or CABAC)
//   - Walking H.264 slices macroblock by macroblock through a Handler
//   - VP8 decoding of key and inter frames with golden and altref
//     references
//   - VP8 encoding of key and inter frames
//   - RTP packetization and reassembly of H.264 NAL units
//
// Basic usage for decoding an Annex B stream:
//
//	dec := vcodec.NewH264Decoder(nil)
//	pics, err := dec.DecodeAnnexB(stream)
//
// Basic usage for encoding VP8:
//
//	enc, err := vcodec.NewVP8Encoder(width, height, &vcodec.VP8EncoderOptions{Quality: 80})
//	frame, err := enc.Encode(img)
package vcodec
