package h264

// EntropyReader decodes macroblock-layer syntax elements. The CAVLC and
// CABAC backends share the slice context for neighbour-dependent coding.
// Positions x and y are the top-left 4x4 block of the partition.
type EntropyReader interface {
	// SkipMB reports whether the next macroblock of a P or B slice is
	// skipped.
	SkipMB() (bool, error)
	// MoreData reports whether another macroblock follows in the slice.
	MoreData() (bool, error)
	MBType() (int, error)
	SubMBType() (int, error)
	TransformSize8x8() (bool, error)
	PrevIntraPredFlag() (bool, error)
	RemIntraPredMode() (int, error)
	IntraChromaPredMode() (int, error)
	RefIdx(list, x, y, maxIdx int) (int, error)
	MVD(list, x, y, comp int) (int, error)
	CBP() (CBP, error)
	QPDelta() (int, error)
	// Block decodes one residual block into out[:maxNumCoeff] and returns
	// the number of non-zero coefficients.
	Block(b blockRef, maxNumCoeff int, out []int32) (int, error)
	PCM(mb *IPCM) error
}

// EntropyWriter mirrors EntropyReader.
type EntropyWriter interface {
	// StartMB is called before the first element of every macroblock.
	StartMB() error
	SkipMB(skip bool) error
	MBType(t int) error
	SubMBType(t int) error
	TransformSize8x8(f bool) error
	PrevIntraPredFlag(f bool) error
	RemIntraPredMode(m int) error
	IntraChromaPredMode(m int) error
	RefIdx(list, x, y, maxIdx, v int) error
	MVD(list, x, y, comp, v int) error
	CBP(cbp CBP) error
	QPDelta(d int) error
	Block(b blockRef, coeffs []int32) (int, error)
	PCM(mb *IPCM) error
	// Finish terminates the slice data.
	Finish() error
}

// coded_block_pattern mapping for me(v), indexed by codeNum.
var (
	cbpIntra = [48]uint8{
		47, 31, 15, 0, 23, 27, 29, 30, 7, 11, 13, 14, 39, 43, 45, 46,
		16, 3, 5, 10, 12, 19, 21, 26, 28, 35, 37, 42, 44, 1, 2, 4,
		8, 17, 18, 20, 24, 6, 9, 22, 25, 32, 33, 34, 36, 40, 38, 41,
	}
	cbpInter = [48]uint8{
		0, 16, 1, 2, 4, 8, 32, 3, 5, 10, 12, 15, 47, 7, 11, 13,
		14, 6, 9, 31, 35, 37, 42, 44, 33, 34, 36, 40, 39, 43, 45, 46,
		17, 18, 20, 24, 19, 21, 26, 28, 23, 27, 29, 30, 22, 25, 38, 41,
	}
	cbpGrayIntra = [16]uint8{15, 0, 7, 11, 13, 14, 3, 5, 10, 12, 1, 2, 4, 8, 6, 9}
	cbpGrayInter = [16]uint8{0, 1, 2, 4, 8, 3, 5, 10, 12, 15, 7, 11, 13, 14, 6, 9}

	cbpIntraCode, cbpInterCode         [48]uint8
	cbpGrayIntraCode, cbpGrayInterCode [16]uint8
)

func init() {
	for i, v := range cbpIntra {
		cbpIntraCode[v] = uint8(i)
	}
	for i, v := range cbpInter {
		cbpInterCode[v] = uint8(i)
	}
	for i, v := range cbpGrayIntra {
		cbpGrayIntraCode[v] = uint8(i)
	}
	for i, v := range cbpGrayInter {
		cbpGrayInterCode[v] = uint8(i)
	}
}
