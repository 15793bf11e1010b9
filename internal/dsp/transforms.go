package dsp

// Fixed-point rotation constants of the VP8 inverse DCT.
const (
	c1 = 20091 // (cos(pi/8)*sqrt(2) - 1) * 2^16
	c2 = 35468 // sin(pi/8)*sqrt(2) * 2^16
)

func mul1(a int) int { return ((a * c1) >> 16) + a }
func mul2(a int) int { return (a * c2) >> 16 }

// store adds x>>3 to dst[off] with saturation.
func store(dst []byte, off, x int) {
	dst[off] = Clip8b(int(dst[off]) + (x >> 3))
}

// transformOne adds the inverse DCT of in to the 4x4 block at dst.
func transformOne(in []int16, dst []byte) {
	_ = in[15]
	_ = dst[3+3*BPS]
	var tmp [16]int
	for i := 0; i < 4; i++ {
		a := int(in[i]) + int(in[8+i])
		b := int(in[i]) - int(in[8+i])
		c := mul2(int(in[4+i])) - mul1(int(in[12+i]))
		d := mul1(int(in[4+i])) + mul2(int(in[12+i]))
		tmp[i] = a + d
		tmp[4+i] = b + c
		tmp[8+i] = b - c
		tmp[12+i] = a - d
	}
	for j := 0; j < 4; j++ {
		t := tmp[4*j:]
		dc := t[0] + 4
		a := dc + t[2]
		b := dc - t[2]
		c := mul2(t[1]) - mul1(t[3])
		d := mul1(t[1]) + mul2(t[3])
		row := j * BPS
		store(dst, row, a+d)
		store(dst, row+1, b+c)
		store(dst, row+2, b-c)
		store(dst, row+3, a-d)
	}
}

func transformTwo(in []int16, dst []byte, doTwo bool) {
	transformOne(in, dst)
	if doTwo {
		transformOne(in[16:], dst[4:])
	}
}

func transformDC(in []int16, dst []byte) {
	dc := int(in[0]) + 4
	for j := 0; j < 4; j++ {
		for i := 0; i < 4; i++ {
			store(dst, i+j*BPS, dc)
		}
	}
}

func transformAC3(in []int16, dst []byte) {
	a := int(in[0]) + 4
	rows := [4]int{mul1(int(in[4])), mul2(int(in[4])), -mul2(int(in[4])), -mul1(int(in[4]))}
	cols := [4]int{mul1(int(in[1])), mul2(int(in[1])), -mul2(int(in[1])), -mul1(int(in[1]))}
	for j := 0; j < 4; j++ {
		for i := 0; i < 4; i++ {
			store(dst, i+j*BPS, a+rows[j]+cols[i])
		}
	}
}

// transformUV handles the four 4x4 blocks of one 8x8 chroma block, stored
// consecutively in in.
func transformUV(in []int16, dst []byte) {
	transformTwo(in, dst, true)
	transformTwo(in[32:], dst[4*BPS:], true)
}

func transformDCUV(in []int16, dst []byte) {
	for b := 0; b < 4; b++ {
		if in[16*b] != 0 {
			transformDC(in[16*b:], dst[(b&1)*4+(b>>1)*4*BPS:])
		}
	}
}

func transformWHT(in []int16, out []int16) {
	var tmp [16]int
	for i := 0; i < 4; i++ {
		a0 := int(in[i]) + int(in[12+i])
		a1 := int(in[4+i]) + int(in[8+i])
		a2 := int(in[4+i]) - int(in[8+i])
		a3 := int(in[i]) - int(in[12+i])
		tmp[i] = a0 + a1
		tmp[8+i] = a0 - a1
		tmp[4+i] = a3 + a2
		tmp[12+i] = a3 - a2
	}
	for i := 0; i < 4; i++ {
		t := tmp[4*i:]
		dc := t[0] + 3
		a0 := dc + t[3]
		a1 := t[1] + t[2]
		a2 := t[1] - t[2]
		a3 := dc - t[3]
		o := out[64*i:]
		o[0] = int16((a0 + a1) >> 3)
		o[16] = int16((a3 + a2) >> 3)
		o[32] = int16((a0 - a1) >> 3)
		o[48] = int16((a3 - a2) >> 3)
	}
}

func b2i(b bool) int {
	if b {
		return 1
	}
	return 0
}

// fTransform is the encoder's forward DCT of the 4x4 difference src-ref.
func fTransform(src, ref []byte, out []int16) {
	_ = src[3+3*BPS]
	_ = ref[3+3*BPS]
	_ = out[15]
	var tmp [16]int
	for j := 0; j < 4; j++ {
		row := j * BPS
		d0 := int(src[row]) - int(ref[row])
		d1 := int(src[row+1]) - int(ref[row+1])
		d2 := int(src[row+2]) - int(ref[row+2])
		d3 := int(src[row+3]) - int(ref[row+3])
		a0 := d0 + d3
		a1 := d1 + d2
		a2 := d1 - d2
		a3 := d0 - d3
		t := tmp[4*j:]
		t[0] = (a0 + a1) * 8
		t[1] = (a2*2217 + a3*5352 + 1812) >> 9
		t[2] = (a0 - a1) * 8
		t[3] = (a3*2217 - a2*5352 + 937) >> 9
	}
	for i := 0; i < 4; i++ {
		a0 := tmp[i] + tmp[12+i]
		a1 := tmp[4+i] + tmp[8+i]
		a2 := tmp[4+i] - tmp[8+i]
		a3 := tmp[i] - tmp[12+i]
		out[i] = int16((a0 + a1 + 7) >> 4)
		out[4+i] = int16((a2*2217+a3*5352+12000)>>16 + b2i(a3 != 0))
		out[8+i] = int16((a0 - a1 + 7) >> 4)
		out[12+i] = int16((a3*2217 - a2*5352 + 51000) >> 16)
	}
}

// fTransformWHT transforms 16 luma DCs given in raster order (in[4*row+col]).
func fTransformWHT(in []int16, out []int16) {
	var tmp [16]int
	for i := 0; i < 4; i++ {
		r := in[4*i:]
		a0 := int(r[0]) + int(r[2])
		a1 := int(r[1]) + int(r[3])
		a2 := int(r[1]) - int(r[3])
		a3 := int(r[0]) - int(r[2])
		tmp[4*i] = a0 + a1
		tmp[4*i+1] = a3 + a2
		tmp[4*i+2] = a3 - a2
		tmp[4*i+3] = a0 - a1
	}
	for i := 0; i < 4; i++ {
		a0 := tmp[i] + tmp[8+i]
		a1 := tmp[4+i] + tmp[12+i]
		a2 := tmp[4+i] - tmp[12+i]
		a3 := tmp[i] - tmp[8+i]
		out[i] = int16((a0 + a1) >> 1)
		out[4+i] = int16((a3 + a2) >> 1)
		out[8+i] = int16((a3 - a2) >> 1)
		out[12+i] = int16((a0 - a1) >> 1)
	}
}
