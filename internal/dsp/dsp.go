// Package dsp holds the VP8 sample-level primitives: inverse and forward
// transforms, intra predictors, sub-pixel inter predictors and the loop
// filters. Block routines work on a buffer plus an offset so that
// references above and to the left of a block stay at non-negative indices.
package dsp

// BPS is the stride of the macroblock work buffers.
const BPS = 32

// Intra prediction modes, in the order the bitstream trees produce them.
// The 16x16 and chroma modes share the first four values.
const (
	BDCPred = iota
	BTMPred
	BVEPred
	BHEPred
	BRDPred
	BVRPred
	BLDPred
	BVLPred
	BHDPred
	BHUPred
	NumBModes
)

// 16x16 luma and 8x8 chroma modes.
const (
	DCPred = BDCPred
	TMPred = BTMPred
	VPred  = BVEPred
	HPred  = BHEPred
	BPred  = NumBModes

	// DC variants used when the top row, the left column or both are
	// outside the frame.
	DCPredNoTop     = 4
	DCPredNoLeft    = 5
	DCPredNoTopLeft = 6
	numDCModes      = 7
)

// PredFunc predicts a block whose top-left sample is buf[off].
type PredFunc func(buf []byte, off int)

// Transform entry points. They default to the Go implementations; a
// platform file may replace them at init.
var (
	// Transform adds the inverse DCT of one (or two side-by-side) blocks
	// of coefficients to dst.
	Transform func(coeffs []int16, dst []byte, doTwo bool)
	// TransformAC3 is Transform for blocks whose only non-zero
	// coefficients are 0, 1 and 4.
	TransformAC3 func(coeffs []int16, dst []byte)
	// TransformDC is Transform for DC-only blocks.
	TransformDC func(coeffs []int16, dst []byte)
	// TransformUV handles the four 4x4 blocks of an 8x8 chroma block.
	TransformUV func(coeffs []int16, dst []byte)
	// TransformDCUV is TransformUV for DC-only chroma blocks.
	TransformDCUV func(coeffs []int16, dst []byte)
	// TransformWHT inverts the second-order luma DC transform, writing
	// the DC of block i to out[16*i].
	TransformWHT func(in, out []int16)

	// FTransform computes the DCT of src-ref.
	FTransform func(src, ref []byte, out []int16)
	// FTransformWHT computes the second-order transform of 16 DCs.
	FTransformWHT func(in, out []int16)
)

// Predictor tables indexed by mode.
var (
	PredLuma16  [numDCModes]PredFunc
	PredChroma8 [numDCModes]PredFunc
	PredLuma4   [NumBModes]PredFunc
)

// Scan gives the offset of each luma 4x4 block inside a BPS-strided
// macroblock buffer, in raster order.
var Scan [16]int

func init() {
	initClipTables()
	for i := range Scan {
		Scan[i] = (i&3)*4 + (i>>2)*4*BPS
	}

	Transform = transformTwo
	TransformAC3 = transformAC3
	TransformDC = transformDC
	TransformUV = transformUV
	TransformDCUV = transformDCUV
	TransformWHT = transformWHT
	FTransform = fTransform
	FTransformWHT = fTransformWHT

	initPredictors()
}
