package dsp

// Predictors write the block whose top-left sample is buf[off]. The top
// row sits at buf[off-BPS:], the left column at buf[off-1+j*BPS] and the
// corner at buf[off-1-BPS]. 4x4 predictors also read four samples above
// and to the right of the block.

func avg3(a, b, c uint8) uint8 {
	return uint8((int(a) + 2*int(b) + int(c) + 2) >> 2)
}

func avg2(a, b uint8) uint8 {
	return uint8((int(a) + int(b) + 1) >> 1)
}

func fill(buf []byte, off, size int, v uint8) {
	for j := 0; j < size; j++ {
		row := buf[off+j*BPS : off+j*BPS+size]
		for i := range row {
			row[i] = v
		}
	}
}

func sumTop(buf []byte, off, size int) int {
	s := 0
	for i := 0; i < size; i++ {
		s += int(buf[off-BPS+i])
	}
	return s
}

func sumLeft(buf []byte, off, size int) int {
	s := 0
	for j := 0; j < size; j++ {
		s += int(buf[off-1+j*BPS])
	}
	return s
}

// dcPred averages the available edges of a size x size block. shift is
// log2(size).
func dcPred(size, shift int, top, left bool) PredFunc {
	return func(buf []byte, off int) {
		var v int
		switch {
		case top && left:
			v = (sumTop(buf, off, size) + sumLeft(buf, off, size) + size) >> (shift + 1)
		case top:
			v = (sumTop(buf, off, size) + size>>1) >> shift
		case left:
			v = (sumLeft(buf, off, size) + size>>1) >> shift
		default:
			v = 128
		}
		fill(buf, off, size, uint8(v))
	}
}

func tmPred(size int) PredFunc {
	return func(buf []byte, off int) {
		tl := int(buf[off-1-BPS])
		top := buf[off-BPS : off-BPS+size]
		for j := 0; j < size; j++ {
			d := int(buf[off-1+j*BPS]) - tl
			row := buf[off+j*BPS : off+j*BPS+size]
			for i := range row {
				row[i] = Clip8b(d + int(top[i]))
			}
		}
	}
}

func vePred(size int) PredFunc {
	return func(buf []byte, off int) {
		top := buf[off-BPS : off-BPS+size]
		for j := 0; j < size; j++ {
			copy(buf[off+j*BPS:off+j*BPS+size], top)
		}
	}
}

func hePred(size int) PredFunc {
	return func(buf []byte, off int) {
		for j := 0; j < size; j++ {
			v := buf[off-1+j*BPS]
			row := buf[off+j*BPS : off+j*BPS+size]
			for i := range row {
				row[i] = v
			}
		}
	}
}

// edge4 gathers the neighbours of a 4x4 block as L3 L2 L1 L0 TL T0..T7,
// followed by T7 again.
type edge4 [14]uint8

func loadEdge(buf []byte, off int) *edge4 {
	var e edge4
	for j := 0; j < 4; j++ {
		e[3-j] = buf[off-1+j*BPS]
	}
	e[4] = buf[off-1-BPS]
	copy(e[5:13], buf[off-BPS:off-BPS+8])
	e[13] = e[12]
	return &e
}

func put4(buf []byte, off int, rows *[4][4]uint8) {
	for j := range rows {
		copy(buf[off+j*BPS:off+j*BPS+4], rows[j][:])
	}
}

func ve4(buf []byte, off int) {
	e := loadEdge(buf, off)
	var r [4][4]uint8
	for i := 0; i < 4; i++ {
		r[0][i] = avg3(e[4+i], e[5+i], e[6+i])
	}
	r[1], r[2], r[3] = r[0], r[0], r[0]
	put4(buf, off, &r)
}

func he4(buf []byte, off int) {
	e := loadEdge(buf, off)
	var r [4][4]uint8
	for j := 0; j < 4; j++ {
		below := e[0]
		if j < 3 {
			below = e[2-j]
		}
		v := avg3(e[4-j], e[3-j], below)
		r[j] = [4]uint8{v, v, v, v}
	}
	put4(buf, off, &r)
}

func rd4(buf []byte, off int) {
	e := loadEdge(buf, off)
	var r [4][4]uint8
	for j := 0; j < 4; j++ {
		for i := 0; i < 4; i++ {
			k := 3 - j + i
			r[j][i] = avg3(e[k], e[k+1], e[k+2])
		}
	}
	put4(buf, off, &r)
}

func ld4(buf []byte, off int) {
	t := loadEdge(buf, off)[5:]
	var r [4][4]uint8
	for j := 0; j < 4; j++ {
		for i := 0; i < 4; i++ {
			k := i + j
			r[j][i] = avg3(t[k], t[k+1], t[k+2])
		}
	}
	put4(buf, off, &r)
}

func vr4(buf []byte, off int) {
	e := loadEdge(buf, off)
	var r [4][4]uint8
	for i := 0; i < 4; i++ {
		r[0][i] = avg2(e[4+i], e[5+i])
		r[1][i] = avg3(e[3+i], e[4+i], e[5+i])
	}
	r[2][0] = avg3(e[2], e[3], e[4])
	r[3][0] = avg3(e[1], e[2], e[3])
	copy(r[2][1:], r[0][:3])
	copy(r[3][1:], r[1][:3])
	put4(buf, off, &r)
}

func vl4(buf []byte, off int) {
	t := loadEdge(buf, off)[5:]
	var r [4][4]uint8
	for i := 0; i < 4; i++ {
		r[0][i] = avg2(t[i], t[i+1])
		r[1][i] = avg3(t[i], t[i+1], t[i+2])
	}
	for i := 0; i < 3; i++ {
		r[2][i] = r[0][i+1]
		r[3][i] = r[1][i+1]
	}
	r[2][3] = avg3(t[4], t[5], t[6])
	r[3][3] = avg3(t[5], t[6], t[7])
	put4(buf, off, &r)
}

func hd4(buf []byte, off int) {
	e := loadEdge(buf, off)
	var r [4][4]uint8
	r[0][2] = avg3(e[4], e[5], e[6])
	r[0][3] = avg3(e[5], e[6], e[7])
	for j := 0; j < 4; j++ {
		r[j][0] = avg2(e[4-j], e[3-j])
		r[j][1] = avg3(e[5-j], e[4-j], e[3-j])
		if j > 0 {
			r[j][2], r[j][3] = r[j-1][0], r[j-1][1]
		}
	}
	put4(buf, off, &r)
}

func hu4(buf []byte, off int) {
	e := loadEdge(buf, off)
	l := [6]uint8{e[3], e[2], e[1], e[0], e[0], e[0]}
	var s [10]uint8
	for k := 0; k < 3; k++ {
		s[2*k] = avg2(l[k], l[k+1])
		s[2*k+1] = avg3(l[k], l[k+1], l[k+2])
	}
	for k := 6; k < len(s); k++ {
		s[k] = l[3]
	}
	var r [4][4]uint8
	for j := 0; j < 4; j++ {
		copy(r[j][:], s[2*j:2*j+4])
	}
	put4(buf, off, &r)
}

func initPredictors() {
	for _, p := range []struct {
		tab   *[numDCModes]PredFunc
		size  int
		shift int
	}{{&PredLuma16, 16, 4}, {&PredChroma8, 8, 3}} {
		p.tab[DCPred] = dcPred(p.size, p.shift, true, true)
		p.tab[TMPred] = tmPred(p.size)
		p.tab[VPred] = vePred(p.size)
		p.tab[HPred] = hePred(p.size)
		p.tab[DCPredNoTop] = dcPred(p.size, p.shift, false, true)
		p.tab[DCPredNoLeft] = dcPred(p.size, p.shift, true, false)
		p.tab[DCPredNoTopLeft] = dcPred(p.size, p.shift, false, false)
	}
	PredLuma4 = [NumBModes]PredFunc{
		BDCPred: dcPred(4, 2, true, true),
		BTMPred: tmPred(4),
		BVEPred: ve4,
		BHEPred: he4,
		BRDPred: rd4,
		BVRPred: vr4,
		BLDPred: ld4,
		BVLPred: vl4,
		BHDPred: hd4,
		BHUPred: hu4,
	}
}
