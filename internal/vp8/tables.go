package vp8

import "github.com/deepteams/vcodec/internal/dsp"

// Coefficient probability layout.
const (
	numTypes   = 4  // Y after Y2, Y2, chroma, Y with DC
	numBands   = 8  // coefficient position bands
	numCtx     = 3  // neighbour non-zero context
	numProbas  = 11 // token tree nodes
	numBModes  = dsp.NumBModes
	numSegs    = 4
	maxParts   = 8
	numLFDelta = 4
	mvProbs    = 19
)

// Coefficient block types.
const (
	typeYAfterY2 = 0
	typeY2       = 1
	typeUV       = 2
	typeYWithDC  = 3
)

// Inter prediction modes, numbered after the intra modes so that a single
// byte holds the luma mode of any macroblock.
const (
	modeNearestMV = dsp.BPred + 1 + iota
	modeNearMV
	modeZeroMV
	modeNewMV
	modeSplitMV
)

// Sub-block motion vector modes of SPLITMV.
const (
	subMVLeft = iota
	subMVAbove
	subMVZero
	subMVNew
)

// Reference frames.
const (
	refIntra = iota
	refLast
	refGolden
	refAltRef
	numRefs
)

// Trees, in the layout read by bitio.BoolReader.ReadTree.
var (
	bModeTree = []int8{
		-dsp.BDCPred, 2,
		-dsp.BTMPred, 4,
		-dsp.BVEPred, 6,
		8, 12,
		-dsp.BHEPred, 10,
		-dsp.BRDPred, -dsp.BVRPred,
		-dsp.BLDPred, 14,
		-dsp.BVLPred, 16,
		-dsp.BHDPred, -dsp.BHUPred,
	}
	kfYModeTree = []int8{-dsp.BPred, 2, 4, 6, -dsp.DCPred, -dsp.VPred, -dsp.HPred, -dsp.TMPred}
	yModeTree   = []int8{-dsp.DCPred, 2, 4, 6, -dsp.VPred, -dsp.HPred, -dsp.TMPred, -dsp.BPred}
	uvModeTree  = []int8{-dsp.DCPred, 2, -dsp.VPred, 4, -dsp.HPred, -dsp.TMPred}
	segmentTree = []int8{2, 4, -0, -1, -2, -3}
	mvRefTree   = []int8{-modeZeroMV, 2, -modeNearestMV, 4, -modeNearMV, 6, -modeNewMV, -modeSplitMV}
	// Split partitionings: 0 top/bottom, 1 left/right, 2 quarters, 3 4x4.
	splitTree    = []int8{-3, 2, -2, 4, -0, -1}
	subMVRefTree = []int8{-subMVLeft, 2, -subMVAbove, 4, -subMVZero, -subMVNew}
	smallMVTree  = []int8{2, 8, 4, 6, -0, -1, -2, -3, 10, 12, -4, -5, -6, -7}
)

var (
	kfYModeProba   = []uint8{145, 156, 163, 128}
	kfUVModeProba  = []uint8{142, 114, 183}
	yModeProba0    = [4]uint8{112, 86, 140, 37}
	uvModeProba0   = [3]uint8{162, 101, 204}
	interBModeProb = []uint8{120, 90, 79, 133, 87, 85, 80, 111, 151}
	splitProba     = []uint8{110, 111, 150}
)

// modeContexts holds the inter mode probabilities indexed by the census
// weight of each candidate.
var modeContexts = [6][4]uint8{
	{7, 1, 1, 143},
	{14, 18, 14, 107},
	{135, 64, 57, 68},
	{60, 56, 128, 65},
	{159, 134, 128, 34},
	{234, 188, 128, 28},
}

// subMVContexts is indexed by subMVContext.
var subMVContexts = [5][3]uint8{
	{147, 136, 18},
	{106, 145, 1},
	{179, 121, 1},
	{223, 1, 34},
	{208, 1, 1},
}

// splitMap assigns each luma sub-block to a partition for the first three
// partitionings; the 4x4 partitioning uses the block index itself.
var splitMap = [3][16]uint8{
	{0, 0, 0, 0, 0, 0, 0, 0, 1, 1, 1, 1, 1, 1, 1, 1},
	{0, 0, 1, 1, 0, 0, 1, 1, 0, 0, 1, 1, 0, 0, 1, 1},
	{0, 0, 1, 1, 0, 0, 1, 1, 2, 2, 3, 3, 2, 2, 3, 3},
}

var splitCount = [4]int{2, 2, 4, 16}

// Motion vector probability layout.
const (
	mvpIsShort = 0
	mvpSign    = 1
	mvpShort   = 2
	mvpLong    = 9
	mvLongBits = 10
)

// mvProba0 are the default row and column probabilities.
var mvProba0 = [2][mvProbs]uint8{
	{162, 128, 225, 146, 172, 147, 214, 39, 156, 128, 129, 132, 75, 145, 178, 206, 239, 254, 254},
	{164, 128, 204, 170, 119, 235, 140, 230, 228, 128, 130, 130, 74, 148, 180, 203, 236, 254, 254},
}

var mvUpdateProba = [2][mvProbs]uint8{
	{237, 246, 253, 253, 254, 254, 254, 254, 254, 254, 254, 254, 254, 254, 250, 250, 252, 254, 254},
	{231, 243, 245, 253, 254, 254, 254, 254, 254, 254, 254, 254, 254, 254, 251, 251, 254, 254, 254},
}

// Extra-bit probabilities of the large coefficient categories.
var (
	cat3 = []uint8{173, 148, 140}
	cat4 = []uint8{176, 155, 140, 135}
	cat5 = []uint8{180, 157, 141, 134, 130}
	cat6 = []uint8{254, 254, 243, 230, 196, 177, 153, 140, 133, 130, 129}

	cat3456 = [4][]uint8{cat3, cat4, cat5, cat6}
)

// bands maps a coefficient position to its probability band. The extra
// entry lets the token loop look one position ahead.
var bands = [16 + 1]uint8{0, 1, 2, 3, 6, 4, 5, 6, 6, 6, 6, 6, 6, 6, 6, 7, 0}

// zigzag maps coding order to raster order within a 4x4 block.
var zigzag = dsp.Zigzag
