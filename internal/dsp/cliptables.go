package dsp

// Clip and absolute-value lookup tables for the loop filters. Negative
// indices are emulated with fixed offsets into oversized arrays.

var (
	sclip1 [893 + 892 + 1]int8  // clips [-893, 892] to [-128, 127]
	sclip2 [112 + 112 + 1]int8  // clips [-112, 112] to [-16, 15]
	clip1  [255 + 511 + 1]uint8 // clips [-255, 511] to [0, 255]
	abs0   [255 + 255 + 1]uint8 // abs(x) for x in [-255, 255]
)

// Offsets for indexing with negative values.
const (
	sclip1Offset = 893
	sclip2Offset = 112
	clip1Offset  = 255
	abs0Offset   = 255
)

// Ksclip1 returns the value of v clipped to [-128, 127].
func Ksclip1(v int) int8 { return sclip1[sclip1Offset+v] }

// Ksclip2 returns the value of v clipped to [-16, 15].
func Ksclip2(v int) int8 { return sclip2[sclip2Offset+v] }

// Kclip1 returns the value of v clipped to [0, 255].
func Kclip1(v int) uint8 { return clip1[clip1Offset+v] }

// Kabs0 returns |v| for v in [-255, 255].
func Kabs0(v int) uint8 { return abs0[abs0Offset+v] }

// Clip8b clamps v to [0, 255].
func Clip8b(v int) uint8 {
	if uint(v) <= 255 {
		return uint8(v)
	}
	if v < 0 {
		return 0
	}
	return 255
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func initClipTables() {
	for i := -sclip1Offset; i < len(sclip1)-sclip1Offset; i++ {
		sclip1[sclip1Offset+i] = int8(clampInt(i, -128, 127))
	}
	for i := -sclip2Offset; i < len(sclip2)-sclip2Offset; i++ {
		sclip2[sclip2Offset+i] = int8(clampInt(i, -16, 15))
	}
	for i := -clip1Offset; i < len(clip1)-clip1Offset; i++ {
		clip1[clip1Offset+i] = uint8(clampInt(i, 0, 255))
	}
	for i := -abs0Offset; i < len(abs0)-abs0Offset; i++ {
		abs0[abs0Offset+i] = uint8(max(i, -i))
	}
}
