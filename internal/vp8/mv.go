package vp8

import "github.com/deepteams/vcodec/internal/bitio"

// motionVector is a luma displacement in quarter samples.
type motionVector struct {
	x, y int16
}

func (v motionVector) add(o motionVector) motionVector {
	return motionVector{v.x + o.x, v.y + o.y}
}

func (v motionVector) neg() motionVector {
	return motionVector{-v.x, -v.y}
}

// mvBounds limits the candidate vectors of one macroblock so that they
// point at most one macroblock outside the frame.
type mvBounds struct {
	minX, maxX, minY, maxY int
}

func newMVBounds(mbX, mbY, mbW, mbH int) mvBounds {
	return mvBounds{
		minX: -(mbX*16 + 16) * 4,
		maxX: ((mbW-1-mbX)*16 + 16) * 4,
		minY: -(mbY*16 + 16) * 4,
		maxY: ((mbH-1-mbY)*16 + 16) * 4,
	}
}

func (b mvBounds) clamp(v motionVector) motionVector {
	return motionVector{
		x: int16(max(b.minX, min(int(v.x), b.maxX))),
		y: int16(max(b.minY, min(int(v.y), b.maxY))),
	}
}

// Census slots.
const (
	cntZero = iota
	cntNearest
	cntNear
	cntSplit
)

// nearMVs is the result of the neighbour census of one inter macroblock.
type nearMVs struct {
	best, nearest, near motionVector
	cnt                 [4]int
}

// probas returns the mode tree probabilities for the census weights.
func (n *nearMVs) probas() []uint8 {
	p := make([]uint8, 4)
	for i := range p {
		p[i] = modeContexts[n.cnt[i]][i]
	}
	return p
}

// findNearMVs weighs the vectors of the above, left and above-left
// neighbours (nil when outside the frame) of a macroblock predicted from
// ref. The returned vectors are clamped to b.
func findNearMVs(above, left, aboveLeft *mbInfo, ref int, signBias *[numRefs]bool, b mvBounds) nearMVs {
	var (
		mvs [4]motionVector
		cnt [4]int
		cur int
	)
	for i, n := range [3]*mbInfo{above, left, aboveLeft} {
		if n == nil || n.ref == refIntra {
			continue
		}
		w := 2
		if i == 2 {
			w = 1
		}
		if n.mv == (motionVector{}) {
			cnt[cntZero] += w
			continue
		}
		v := n.mv
		if signBias[n.ref] != signBias[ref] {
			v = v.neg()
		}
		if cur == 0 || v != mvs[cur] {
			cur++
			mvs[cur] = v
		}
		cnt[cur] += w
	}
	if cnt[cntSplit] > 0 && mvs[cur] == mvs[cntNearest] {
		cnt[cntNearest]++
	}
	cnt[cntSplit] = 0
	for i, n := range [3]*mbInfo{above, left, aboveLeft} {
		if n != nil && n.ymode == modeSplitMV {
			cnt[cntSplit] += 2 - i/2
		}
	}
	if cnt[cntNear] > cnt[cntNearest] {
		cnt[cntNearest], cnt[cntNear] = cnt[cntNear], cnt[cntNearest]
		mvs[cntNearest], mvs[cntNear] = mvs[cntNear], mvs[cntNearest]
	}
	if cnt[cntNearest] >= cnt[cntZero] {
		mvs[cntZero] = mvs[cntNearest]
	}
	return nearMVs{
		best:    b.clamp(mvs[cntZero]),
		nearest: b.clamp(mvs[cntNearest]),
		near:    b.clamp(mvs[cntNear]),
		cnt:     cnt,
	}
}

// subMVContext selects the sub-block mode probabilities from the left and
// above sub-block vectors.
func subMVContext(l, a motionVector) int {
	zero := motionVector{}
	switch {
	case l == a && a == zero:
		return 4
	case l == a:
		return 3
	case a == zero:
		return 2
	case l == zero:
		return 1
	}
	return 0
}

func readMVComponent(br *bitio.BoolReader, p *[mvProbs]uint8) int16 {
	x := 0
	if br.GetBit(p[mvpIsShort]) != 0 {
		for i := 0; i < 3; i++ {
			x += br.GetBit(p[mvpLong+i]) << i
		}
		for i := mvLongBits - 1; i > 3; i-- {
			x += br.GetBit(p[mvpLong+i]) << i
		}
		if x&0xfff0 == 0 || br.GetBit(p[mvpLong+3]) != 0 {
			x += 8
		}
	} else {
		x = br.ReadTree(smallMVTree, p[mvpShort:])
	}
	if x != 0 && br.GetBit(p[mvpSign]) != 0 {
		x = -x
	}
	return int16(x)
}

// readMV reads a vector, row first.
func readMV(br *bitio.BoolReader, p *[2][mvProbs]uint8) motionVector {
	y := readMVComponent(br, &p[0])
	x := readMVComponent(br, &p[1])
	return motionVector{x: x, y: y}
}

func writeMVComponent(bw *bitio.BoolWriter, p *[mvProbs]uint8, v int16) {
	x := int(v)
	if x < 0 {
		x = -x
	}
	if x < 8 {
		bw.PutBit(0, int(p[mvpIsShort]))
		bw.PutTree(smallMVTree, p[mvpShort:], x)
		if x == 0 {
			return
		}
	} else {
		bw.PutBit(1, int(p[mvpIsShort]))
		for i := 0; i < 3; i++ {
			bw.PutBit(x>>i&1, int(p[mvpLong+i]))
		}
		for i := mvLongBits - 1; i > 3; i-- {
			bw.PutBit(x>>i&1, int(p[mvpLong+i]))
		}
		if x&0xfff0 != 0 {
			bw.PutBit(x>>3&1, int(p[mvpLong+3]))
		}
	}
	sign := 0
	if v < 0 {
		sign = 1
	}
	bw.PutBit(sign, int(p[mvpSign]))
}

func writeMV(bw *bitio.BoolWriter, p *[2][mvProbs]uint8, v motionVector) {
	writeMVComponent(bw, &p[0], v.y)
	writeMVComponent(bw, &p[1], v.x)
}

// maxMVDelta is the largest vector component difference the long form
// can carry.
const maxMVDelta = 1<<mvLongBits - 1
