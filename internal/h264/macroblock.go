package h264

// MV is a motion vector in quarter luma samples.
type MV struct {
	X, Y int16
}

// PartShape is the size of a macroblock or sub-macroblock partition.
type PartShape uint8

const (
	Part16x16 PartShape = iota
	Part16x8
	Part8x16
	Part8x8
	Part8x4
	Part4x8
	Part4x4
)

// Size returns the partition width and height in 4x4 block units.
func (s PartShape) Size() (w, h int) {
	switch s {
	case Part16x16:
		return 4, 4
	case Part16x8:
		return 4, 2
	case Part8x16:
		return 2, 4
	case Part8x8:
		return 2, 2
	case Part8x4:
		return 2, 1
	case Part4x8:
		return 1, 2
	}
	return 1, 1
}

// NumParts returns how many partitions of this shape tile a 16x16
// macroblock (Part16x16..Part8x16) or an 8x8 sub-macroblock (Part8x8..).
func (s PartShape) NumParts() int {
	switch s {
	case Part16x16, Part8x8:
		return 1
	case Part16x8, Part8x16, Part8x4, Part4x8:
		return 2
	}
	return 4
}

// PredDir selects the reference lists a partition predicts from.
type PredDir uint8

const (
	PredL0 PredDir = 1
	PredL1 PredDir = 2
	PredBi PredDir = 3
)

// Uses reports whether the partition predicts from list (0 or 1).
func (d PredDir) Uses(list int) bool { return d&(1<<list) != 0 }

// Intra 16x16 and chroma prediction modes.
const (
	Intra16x16Vertical   = 0
	Intra16x16Horizontal = 1
	Intra16x16DC         = 2
	Intra16x16Plane      = 3

	ChromaDC         = 0
	ChromaHorizontal = 1
	ChromaVertical   = 2
	ChromaPlane      = 3
)

// Intra 4x4 and 8x8 prediction modes.
const (
	IntraVertical = iota
	IntraHorizontal
	IntraDC
	IntraDiagonalDownLeft
	IntraDiagonalDownRight
	IntraVerticalRight
	IntraHorizontalDown
	IntraVerticalLeft
	IntraHorizontalUp
)

// MBCommon carries the fields shared by every macroblock variant. The
// parser fills Addr, MbX, MbY and QP; QPDelta is the coded mb_qp_delta.
type MBCommon struct {
	Addr     int
	MbX, MbY int
	QPDelta  int
	QP       int
}

// Residual holds the transform coefficient levels of a macroblock in
// zig-zag scan order. Luma and ChromaAC are indexed by 4x4 block in the
// standard z-order; AC-only blocks (Intra16x16 luma and chroma) keep their
// coefficients at scan positions 1..15. Luma8x8 is used instead of Luma
// when the 8x8 transform is active.
type Residual struct {
	LumaDC   [16]int32
	Luma     [16][16]int32
	Luma8x8  [4][64]int32
	ChromaDC [2][4]int32
	ChromaAC [2][4][16]int32
}

// Macroblock is implemented by every macroblock variant: *IntraNxN,
// *Intra16x16, *IPCM, *PSkip, *Inter and *Inter8x8.
type Macroblock interface {
	Common() *MBCommon
}

func (m *MBCommon) Common() *MBCommon { return m }

// CBP packs coded_block_pattern: luma 8x8 bits 0..3, chroma in bits 4..5.
type CBP uint8

func (c CBP) Luma() int   { return int(c & 15) }
func (c CBP) Chroma() int { return int(c >> 4) }

// LumaCoded reports whether 8x8 block b8 carries residual.
func (c CBP) LumaCoded(b8 int) bool { return c&(1<<b8) != 0 }

// IntraNxN is I_NxN: 4x4 prediction, or 8x8 prediction when Transform8x8 is
// set. PredModes holds one mode per 4x4 block in z-order; with 8x8
// prediction only PredModes[0..3] are meaningful.
type IntraNxN struct {
	MBCommon
	Transform8x8 bool
	PredModes    [16]uint8
	ChromaPred   uint8
	CBP          CBP
	Residual
}

// Intra16x16 is I_16x16_<mode>_<cbp>. The luma CBP is 0 or 15.
type Intra16x16 struct {
	MBCommon
	PredMode   uint8
	ChromaPred uint8
	CBP        CBP
	Residual
}

// IPCM carries raw samples in raster order.
type IPCM struct {
	MBCommon
	Luma   [256]uint8
	Chroma [2][64]uint8
}

// PSkip is a skipped P macroblock. MV is the inferred motion vector with
// reference index 0.
type PSkip struct {
	MBCommon
	MV MV
}

// Inter is a P or B macroblock with one or two partitions. Arrays are
// indexed [partition][list].
type Inter struct {
	MBCommon
	Shape        PartShape // Part16x16, Part16x8 or Part8x16
	Pred         [2]PredDir
	RefIdx       [2][2]int8
	MV           [2][2]MV
	Transform8x8 bool
	CBP          CBP
	Residual
}

// SubMB is one 8x8 quadrant of an Inter8x8 macroblock. MV is indexed
// [list][sub-partition].
type SubMB struct {
	Shape  PartShape // Part8x8, Part8x4, Part4x8 or Part4x4
	Pred   PredDir
	RefIdx [2]int8
	MV     [2][4]MV
}

// Inter8x8 is P_8x8, P_8x8ref0 or B_8x8.
type Inter8x8 struct {
	MBCommon
	Ref0         bool
	Sub          [4]SubMB
	Transform8x8 bool
	CBP          CBP
	Residual
}

// Z-order position of each 4x4 luma block in 4x4 units.
var (
	blkX = [16]int{0, 1, 0, 1, 2, 3, 2, 3, 0, 1, 0, 1, 2, 3, 2, 3}
	blkY = [16]int{0, 0, 1, 1, 0, 0, 1, 1, 2, 2, 3, 3, 2, 2, 3, 3}
)

// BlockIndex returns the z-order index of the 4x4 block at (x, y).
func BlockIndex(x, y int) int {
	return (y>>1)*8 + (x>>1)*4 + (y&1)*2 + (x & 1)
}

// BlockPos returns the position of 4x4 block b in 4x4 units.
func BlockPos(b int) (x, y int) { return blkX[b], blkY[b] }
