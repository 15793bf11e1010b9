package dsp

// Zigzag maps coding order to raster position within a 4x4 block.
var Zigzag = [16]int{0, 1, 4, 8, 5, 2, 3, 6, 9, 12, 13, 10, 7, 11, 14, 15}

// MaxLevel is the largest coefficient magnitude the token alphabet can
// express.
const MaxLevel = 2048

// Rounding biases in 1/256 of a step, for the DC and AC positions.
var quantBias = [2]int{96, 110}

// QuantizeBlock quantizes in, given in raster order, into levels in coding
// order. q holds the DC and AC step sizes. Positions before first are left
// zero. It returns one past the last non-zero level, or 0.
func QuantizeBlock(in []int16, levels []int16, q [2]int, first int) int {
	_ = in[15]
	_ = levels[15]
	last := 0
	for n := 0; n < 16; n++ {
		levels[n] = 0
		if n < first {
			continue
		}
		k := min(n, 1)
		v := int(in[Zigzag[n]])
		neg := v < 0
		if neg {
			v = -v
		}
		l := min((v*256+quantBias[k]*q[k])/(q[k]*256), MaxLevel)
		if l == 0 {
			continue
		}
		if neg {
			l = -l
		}
		levels[n] = int16(l)
		last = n + 1
	}
	return last
}

// DequantizeBlock expands levels in coding order into raster-order
// coefficients.
func DequantizeBlock(levels []int16, out []int16, q [2]int) {
	_ = levels[15]
	_ = out[15]
	for n := 0; n < 16; n++ {
		out[Zigzag[n]] = int16(int(levels[n]) * q[min(n, 1)])
	}
}
