package recon

// Quantiser multipliers by qp%6 and position class (see class4x4).
var quantMF = [6][3]int32{
	{13107, 5243, 8066},
	{11916, 4660, 7490},
	{10082, 4194, 6554},
	{9362, 3647, 5825},
	{8192, 3355, 5243},
	{7282, 2893, 4559},
}

// Forward4x4 applies the forward core transform to a raster-order 4x4
// residual in place.
func Forward4x4(b *[16]int32) {
	for i := 0; i < 16; i += 4 {
		s03, d03 := b[i]+b[i+3], b[i]-b[i+3]
		s12, d12 := b[i+1]+b[i+2], b[i+1]-b[i+2]
		b[i], b[i+1], b[i+2], b[i+3] = s03+s12, 2*d03+d12, s03-s12, d03-2*d12
	}
	for j := 0; j < 4; j++ {
		s03, d03 := b[j]+b[12+j], b[j]-b[12+j]
		s12, d12 := b[4+j]+b[8+j], b[4+j]-b[8+j]
		b[j], b[4+j], b[8+j], b[12+j] = s03+s12, 2*d03+d12, s03-s12, d03-2*d12
	}
}

func quantize(v, mf int32, qbits uint, round int32) int32 {
	if v < 0 {
		return -((-v*mf + round) >> qbits)
	}
	return (v*mf + round) >> qbits
}

func deadZone(qbits uint, intra bool) int32 {
	if intra {
		return int32(1<<qbits) / 3
	}
	return int32(1<<qbits) / 6
}

// Quant4x4 quantises raster-order transform coefficients with a flat
// scaling matrix and stores the levels in scan order. With acOnly the DC
// level is left zero. It returns the number of non-zero levels.
func Quant4x4(in *[16]int32, qp int, intra, acOnly bool, out *[16]int32) int {
	qbits := uint(15 + qp/6)
	round := deadZone(qbits, intra)
	n := 0
	*out = [16]int32{}
	for k := 0; k < 16; k++ {
		if acOnly && k == 0 {
			continue
		}
		pos := zigzag4x4[k]
		out[k] = quantize(in[pos], quantMF[qp%6][class4x4(pos)], qbits, round)
		if out[k] != 0 {
			n++
		}
	}
	return n
}

// ForwardLumaDC transforms the raster-order DC coefficients of the sixteen
// 4x4 blocks of an Intra16x16 macroblock in place.
func ForwardLumaDC(dc *[16]int32) {
	hadamard4x4(dc)
	for i := range dc {
		dc[i] >>= 1
	}
}

// QuantLumaDC quantises transformed luma DC values into scan order.
func QuantLumaDC(in *[16]int32, qp int, out *[16]int32) int {
	qbits := uint(15 + qp/6)
	round := 2 * deadZone(qbits, true)
	n := 0
	for k := 0; k < 16; k++ {
		out[k] = quantize(in[zigzag4x4[k]], quantMF[qp%6][0], qbits+1, round)
		if out[k] != 0 {
			n++
		}
	}
	return n
}

// ForwardChromaDC transforms and quantises the four chroma DC
// coefficients of a 4:2:0 macroblock.
func ForwardChromaDC(in *[4]int32, qp int, intra bool, out *[4]int32) int {
	c0, c1, c2, c3 := in[0], in[1], in[2], in[3]
	f := [4]int32{c0 + c1 + c2 + c3, c0 - c1 + c2 - c3, c0 + c1 - c2 - c3, c0 - c1 - c2 + c3}
	qbits := uint(15 + qp/6)
	round := 2 * deadZone(qbits, intra)
	n := 0
	for i, v := range f {
		out[i] = quantize(v, quantMF[qp%6][0], qbits+1, round)
		if out[i] != 0 {
			n++
		}
	}
	return n
}
