// Command vcodec encodes, decodes and inspects H.264 and VP8 streams.
//
// Usage:
//
//	vcodec info <input>                      Display stream parameters
//	vcodec decode [options] <input>          IVF or Annex B → raw I420
//	vcodec encode [options] <input.yuv>      raw I420 → IVF or Annex B
//
// Inputs are IVF files (VP8 or H.264) or H.264 Annex B byte streams. Use
// "-" for stdin and "-o -" for stdout.
package main

import (
	"bufio"
	"bytes"
	"flag"
	"fmt"
	"image"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"

	"github.com/deepteams/vcodec"
	"github.com/deepteams/vcodec/internal/h264"
	"github.com/deepteams/vcodec/internal/ivf"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "info":
		err = runInfo(os.Stdout, os.Args[2:])
	case "decode":
		err = runDecode(os.Args[2:])
	case "encode":
		err = runEncode(os.Args[2:])
	case "-h", "-help", "--help", "help":
		printUsage()
		return
	default:
		fmt.Fprintf(os.Stderr, "vcodec: unknown command %q\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "vcodec: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `Usage:
  vcodec info <input>                  Display stream parameters
  vcodec decode [options] <input>      Decode IVF or Annex B to raw I420
  vcodec encode [options] <input.yuv>  Encode raw I420 to IVF or Annex B

Use "-" as input to read from stdin, "-o -" to write to stdout.

Run "vcodec <command> -h" for command-specific options.
`)
}

// readInput reads the whole input; "-" is stdin.
func readInput(path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(path)
}

// createOutput opens path for writing; "-" is stdout, which is not closed.
func createOutput(path string) (io.WriteCloser, error) {
	if path == "-" {
		return nopWriteCloser{os.Stdout}, nil
	}
	return os.Create(path)
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }

func isIVF(data []byte) bool {
	return len(data) >= 4 && string(data[:4]) == "DKIF"
}

// --- info ---

func runInfo(w io.Writer, args []string) error {
	fs := flag.NewFlagSet("info", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 1 {
		return errors.New("info: missing input file\nUsage: vcodec info <input>")
	}
	data, err := readInput(fs.Arg(0))
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "File:    %s\n", fs.Arg(0))
	fmt.Fprintf(w, "Size:    %d bytes\n", len(data))
	if !isIVF(data) {
		fmt.Fprintf(w, "Format:  H.264 Annex B\n")
		return annexBInfo(w, data)
	}

	r, err := ivf.NewReader(bytes.NewReader(data))
	if err != nil {
		return err
	}
	hdr := r.Header()
	fmt.Fprintf(w, "Format:  IVF (%s)\n", ivf.FourCCString(hdr.FourCC))
	fmt.Fprintf(w, "Canvas:  %dx%d\n", hdr.Width, hdr.Height)
	fmt.Fprintf(w, "Rate:    %d/%d\n", hdr.Rate, hdr.Scale)
	fmt.Fprintf(w, "Frames:  %d (header)\n", hdr.Frames)

	var frames, keys, hidden int
	var annexB []byte
	for {
		f, err := r.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		frames++
		switch hdr.FourCC {
		case ivf.FourCCVP8:
			info, err := vcodec.PeekVP8(f.Payload)
			if err != nil {
				return errors.Wrapf(err, "frame %d", frames-1)
			}
			if info.KeyFrame {
				keys++
			}
			if !info.Show {
				hidden++
			}
		case ivf.FourCCH264:
			annexB = append(annexB, f.Payload...)
		}
	}
	fmt.Fprintf(w, "Frames:  %d (stored)\n", frames)
	if hdr.FourCC == ivf.FourCCVP8 {
		fmt.Fprintf(w, "Key:     %d\n", keys)
		fmt.Fprintf(w, "Hidden:  %d\n", hidden)
	}
	if hdr.FourCC != ivf.FourCCH264 {
		return nil
	}
	return annexBInfo(w, annexB)
}

// annexBInfo prints NAL unit counts and the first SPS of a byte stream.
func annexBInfo(w io.Writer, stream []byte) error {
	nals := h264.SplitAnnexB(stream)
	if len(nals) == 0 {
		return errors.Wrap(vcodec.ErrMalformed, "no NAL units found")
	}
	counts := make(map[h264.NALUnitType]int)
	var order []h264.NALUnitType
	var sps *h264.SPS
	for _, nal := range nals {
		if len(nal) == 0 {
			continue
		}
		t := h264.ParseNALHeader(nal[0]).Type
		if counts[t] == 0 {
			order = append(order, t)
		}
		counts[t]++
		if t == h264.NALSPS && sps == nil {
			var err error
			if sps, err = h264.ParseSPS(h264.UnescapeRBSP(nal)[1:]); err != nil {
				return errors.Wrap(err, "SPS")
			}
		}
	}
	if sps != nil {
		fmt.Fprintf(w, "Profile: %d level %d\n", sps.ProfileIdc, sps.LevelIdc)
		fmt.Fprintf(w, "Picture: %dx%d (%dx%d macroblocks)\n", sps.Width(), sps.Height(), sps.MbWidth(), sps.MbHeight())
		fmt.Fprintf(w, "Refs:    %d\n", sps.MaxNumRefFrames)
	}
	fmt.Fprintf(w, "NAL units: %d\n", len(nals))
	for _, t := range order {
		fmt.Fprintf(w, "  %-12s %d\n", t, counts[t])
	}
	return nil
}

// --- decode ---

func runDecode(args []string) error {
	fs := flag.NewFlagSet("decode", flag.ContinueOnError)
	output := fs.String("o", "", `output path (default: <input>.yuv, "-" for stdout)`)
	noDeblock := fs.Bool("nodeblock", false, "skip the H.264 deblocking filter")
	verbose := fs.Bool("v", false, "print per-picture diagnostics to stderr")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 1 {
		return errors.New("decode: missing input file\nUsage: vcodec decode [options] <input>")
	}
	inputPath := fs.Arg(0)
	outputPath := *output
	if outputPath == "" {
		if inputPath == "-" {
			outputPath = "-"
		} else {
			outputPath = strings.TrimSuffix(inputPath, filepath.Ext(inputPath)) + ".yuv"
		}
	}

	data, err := readInput(inputPath)
	if err != nil {
		return err
	}
	out, err := createOutput(outputPath)
	if err != nil {
		return err
	}
	defer out.Close()
	bw := bufio.NewWriter(out)

	d := &yuvSink{w: bw, verbose: *verbose}
	opts := &vcodec.H264DecoderOptions{SkipDeblocking: *noDeblock}
	if isIVF(data) {
		err = decodeIVF(d, data, opts)
	} else {
		err = decodeH264(d, data, opts)
	}
	if err != nil {
		return err
	}
	if err := bw.Flush(); err != nil {
		return err
	}
	if outputPath != "-" {
		fmt.Fprintf(os.Stderr, "Decoded %s → %s (%d pictures)\n", inputPath, outputPath, d.n)
	}
	return nil
}

// yuvSink writes the displayed area of decoded pictures as I420.
type yuvSink struct {
	w       io.Writer
	verbose bool
	n       int
}

func (s *yuvSink) write(pics ...*vcodec.Picture) error {
	for _, p := range pics {
		if s.verbose {
			kind := "P"
			if p.KeyFrame {
				kind = "I"
			}
			fmt.Fprintf(os.Stderr, "picture %d: %s frame_num=%d poc=%d %dx%d hidden=%v\n",
				s.n, kind, p.FrameNum, p.POC, p.Crop.Dx(), p.Crop.Dy(), p.Hidden)
		}
		if p.Hidden {
			continue
		}
		if err := writeI420(s.w, p.Image()); err != nil {
			return err
		}
		s.n++
	}
	return nil
}

func writeI420(w io.Writer, img *image.YCbCr) error {
	r := img.Rect
	for y := r.Min.Y; y < r.Max.Y; y++ {
		off := img.YOffset(r.Min.X, y)
		if _, err := w.Write(img.Y[off : off+r.Dx()]); err != nil {
			return err
		}
	}
	cw := (r.Max.X+1)/2 - r.Min.X/2
	for _, plane := range [][]byte{img.Cb, img.Cr} {
		for y := r.Min.Y / 2; y < (r.Max.Y+1)/2; y++ {
			off := img.COffset(r.Min.X, 2*y)
			if _, err := w.Write(plane[off : off+cw]); err != nil {
				return err
			}
		}
	}
	return nil
}

func decodeIVF(s *yuvSink, data []byte, opts *vcodec.H264DecoderOptions) error {
	r, err := ivf.NewReader(bytes.NewReader(data))
	if err != nil {
		return err
	}
	fourcc := r.Header().FourCC
	if fourcc != ivf.FourCCVP8 && fourcc != ivf.FourCCH264 {
		return errors.Wrapf(vcodec.ErrUnsupported, "IVF codec %q", ivf.FourCCString(fourcc))
	}
	vp8 := vcodec.NewVP8Decoder()
	defer vp8.Close()
	avc := vcodec.NewH264Decoder(opts)
	for i := 0; ; i++ {
		f, err := r.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		if fourcc == ivf.FourCCVP8 {
			p, err := vp8.Decode(f.Payload)
			if err != nil {
				return errors.Wrapf(err, "frame %d", i)
			}
			if err := s.write(p); err != nil {
				return err
			}
			continue
		}
		pics, err := avc.DecodeAnnexB(f.Payload)
		if err != nil {
			return errors.Wrapf(err, "frame %d", i)
		}
		if err := s.write(pics...); err != nil {
			return err
		}
	}
	if fourcc != ivf.FourCCH264 {
		return nil
	}
	pics, err := avc.Flush()
	if err != nil {
		return err
	}
	return s.write(pics...)
}

func decodeH264(s *yuvSink, stream []byte, opts *vcodec.H264DecoderOptions) error {
	dec := vcodec.NewH264Decoder(opts)
	pics, err := dec.DecodeAnnexB(stream)
	if err != nil {
		return err
	}
	if err := s.write(pics...); err != nil {
		return err
	}
	if pics, err = dec.Flush(); err != nil {
		return err
	}
	return s.write(pics...)
}

// --- encode ---

func runEncode(args []string) error {
	fs := flag.NewFlagSet("encode", flag.ContinueOnError)
	codec := fs.String("codec", "vp8", "codec: vp8 or h264")
	width := fs.Int("w", 0, "picture width")
	height := fs.Int("h", 0, "picture height")
	quality := fs.Int("q", 75, "quality 1-100")
	gop := fs.Int("gop", 30, "distance between key pictures")
	cabac := fs.Bool("cabac", false, "H.264: CABAC entropy coding")
	rate := fs.Int("fps", 30, "frame rate written to IVF output")
	output := fs.String("o", "", `output path (default: <input>.ivf or .264, "-" for stdout)`)
	verbose := fs.Bool("v", false, "print per-picture diagnostics to stderr")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 1 {
		return errors.New("encode: missing input file\nUsage: vcodec encode [options] <input.yuv>")
	}
	if *width <= 0 || *height <= 0 {
		return errors.New("encode: -w and -h are required")
	}
	if *quality < 1 || *quality > 100 {
		return errors.Errorf("encode: quality %d out of range 1-100", *quality)
	}
	if *codec != "vp8" && *codec != "h264" {
		return errors.Errorf("encode: unknown codec %q", *codec)
	}
	inputPath := fs.Arg(0)
	outputPath := *output
	if outputPath == "" {
		ext := ".ivf"
		if *codec == "h264" {
			ext = ".264"
		}
		if inputPath == "-" {
			outputPath = "-"
		} else {
			outputPath = strings.TrimSuffix(inputPath, filepath.Ext(inputPath)) + ext
		}
	}

	data, err := readInput(inputPath)
	if err != nil {
		return err
	}
	frames, err := splitI420(data, *width, *height)
	if err != nil {
		return err
	}

	out, err := createOutput(outputPath)
	if err != nil {
		return err
	}
	defer out.Close()

	var enc frameEncoder
	if *codec == "vp8" {
		e, err := vcodec.NewVP8Encoder(*width, *height, &vcodec.VP8EncoderOptions{Quality: *quality, KeyInterval: *gop})
		if err != nil {
			return err
		}
		defer e.Close()
		enc = vp8Encoder{e}
	} else {
		// Quality 100 maps to QP 1 and quality 1 to QP 51.
		qp := 1 + (100-*quality)*50/99
		e, err := vcodec.NewH264Encoder(*width, *height, &vcodec.H264EncoderOptions{QP: qp, GOP: *gop, CABAC: *cabac})
		if err != nil {
			return err
		}
		enc = h264Encoder{e}
	}

	// H.264 goes out as Annex B unless an IVF file is asked for.
	var iw *ivf.Writer
	bw := bufio.NewWriter(out)
	if *codec == "vp8" || strings.EqualFold(filepath.Ext(outputPath), ".ivf") {
		hdr := ivf.Header{
			FourCC: ivf.FourCCVP8,
			Width:  *width,
			Height: *height,
			Rate:   uint32(*rate),
			Scale:  1,
			Frames: uint32(len(frames)),
		}
		if *codec == "h264" {
			hdr.FourCC = ivf.FourCCH264
		}
		if iw, err = ivf.NewWriter(bw, hdr); err != nil {
			return err
		}
	}

	var total int
	for i, img := range frames {
		payload, key, err := enc.encode(img)
		if err != nil {
			return errors.Wrapf(err, "frame %d", i)
		}
		if *verbose {
			fmt.Fprintf(os.Stderr, "frame %d: key=%v %d bytes\n", i, key, len(payload))
		}
		total += len(payload)
		if iw != nil {
			err = iw.WriteFrame(uint64(i), payload)
		} else {
			_, err = bw.Write(payload)
		}
		if err != nil {
			return err
		}
	}
	if iw != nil {
		if err := iw.Close(); err != nil {
			return err
		}
	}
	if err := bw.Flush(); err != nil {
		return err
	}
	if outputPath != "-" {
		fmt.Fprintf(os.Stderr, "Encoded %s → %s (%d frames, %d bytes)\n", inputPath, outputPath, len(frames), total)
	}
	return nil
}

// splitI420 cuts raw I420 data into pictures of w x h.
func splitI420(data []byte, w, h int) ([]*image.YCbCr, error) {
	cw, ch := (w+1)/2, (h+1)/2
	size := w*h + 2*cw*ch
	if len(data) == 0 || len(data)%size != 0 {
		return nil, errors.Errorf("input size %d is not a multiple of the %dx%d I420 frame size %d", len(data), w, h, size)
	}
	var frames []*image.YCbCr
	for off := 0; off < len(data); off += size {
		frame := data[off : off+size]
		frames = append(frames, &image.YCbCr{
			Y:              frame[:w*h],
			Cb:             frame[w*h : w*h+cw*ch],
			Cr:             frame[w*h+cw*ch:],
			YStride:        w,
			CStride:        cw,
			SubsampleRatio: image.YCbCrSubsampleRatio420,
			Rect:           image.Rect(0, 0, w, h),
		})
	}
	return frames, nil
}

// frameEncoder codes one picture into the bytes written for it.
type frameEncoder interface {
	encode(img *image.YCbCr) (payload []byte, key bool, err error)
}

type vp8Encoder struct{ e *vcodec.VP8Encoder }

func (v vp8Encoder) encode(img *image.YCbCr) ([]byte, bool, error) {
	frame, err := v.e.Encode(img)
	if err != nil {
		return nil, false, err
	}
	info, err := vcodec.PeekVP8(frame)
	return frame, info.KeyFrame, err
}

type h264Encoder struct{ e *vcodec.H264Encoder }

func (h h264Encoder) encode(img *image.YCbCr) ([]byte, bool, error) {
	nals, err := h.e.Encode(img)
	if err != nil {
		return nil, false, err
	}
	return h264.AppendAnnexB(nil, nals...), len(nals) > 1, nil
}
