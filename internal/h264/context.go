package h264

type mbKind uint8

const (
	kindNone mbKind = iota
	kindINxN
	kindI16x16
	kindIPCM
	kindPSkip
	kindInter
)

func (k mbKind) intra() bool { return k == kindINxN || k == kindI16x16 || k == kindIPCM }

// mbInfo is the neighbour record of one decoded macroblock.
type mbInfo struct {
	kind       mbKind
	t8x8       bool
	cbp        CBP
	dcFlags    uint8 // coded_block_flag of luma DC (bit 0), Cb DC (bit 1), Cr DC (bit 2)
	qp         int
	predModes  [16]uint8
	chromaPred uint8
	nz         [16]uint8
	nzC        [2][4]uint8
	ref        [2][16]int8
	mv         [2][16]MV
	mvd        [2][16][2]int16
}

func (m *mbInfo) clearMotion() {
	for l := range m.ref {
		for b := range m.ref[l] {
			m.ref[l][b] = -1
		}
	}
}

// sliceContext tracks neighbour state while a slice is parsed or written.
// Records are committed only after a macroblock completes.
type sliceContext struct {
	sps    *SPS
	pps    *PPS
	hdr    *SliceHeader
	mapper Mapper

	records []mbInfo
	cur     mbInfo
	addr    int

	left, top, topLeft, topRight *mbInfo

	qp          int
	lastQPDelta int
	// decoded marks the 4x4 blocks of cur whose motion for the list being
	// processed is final.
	decoded uint16
}

func newSliceContext(s *Slice) *sliceContext {
	return &sliceContext{
		sps:     s.SPS,
		pps:     s.PPS,
		hdr:     s.Header,
		mapper:  s.Mapper,
		records: make([]mbInfo, s.SPS.MbWidth()*s.SPS.MbHeight()),
		qp:      s.Header.QP(s.PPS),
	}
}

func (c *sliceContext) begin(addr int) {
	c.addr = addr
	c.cur = mbInfo{qp: c.qp}
	c.cur.clearMotion()
	c.decoded = 0
	w := c.sps.MbWidth()
	c.left, c.top, c.topLeft, c.topRight = nil, nil, nil, nil
	if c.mapper.LeftAvailable(addr) {
		c.left = &c.records[addr-1]
	}
	if c.mapper.TopAvailable(addr) {
		c.top = &c.records[addr-w]
	}
	if c.mapper.TopLeftAvailable(addr) {
		c.topLeft = &c.records[addr-w-1]
	}
	if c.mapper.TopRightAvailable(addr) {
		c.topRight = &c.records[addr-w+1]
	}
}

func (c *sliceContext) commit() {
	c.records[c.addr] = c.cur
}

// updateQP applies mb_qp_delta.
func (c *sliceContext) updateQP(delta int) {
	c.qp = (c.qp + delta + 52) % 52
	c.cur.qp = c.qp
	c.lastQPDelta = delta
}

// lumaAt returns the record holding the 4x4 luma block at (x, y), given in
// 4x4 units relative to the current macroblock, and the block's index in
// it. x and y range over -1..4; positions right of the current macroblock
// below its top row are never available.
func (c *sliceContext) lumaAt(x, y int) (*mbInfo, int) {
	var mb *mbInfo
	switch {
	case y < 0:
		switch {
		case x < 0:
			mb, x = c.topLeft, 3
		case x > 3:
			mb, x = c.topRight, 0
		default:
			mb = c.top
		}
		y = 3
	case x < 0:
		mb, x = c.left, 3
	case x > 3:
		return nil, 0
	default:
		mb = &c.cur
	}
	if mb == nil {
		return nil, 0
	}
	return mb, BlockIndex(x, y)
}

// chromaAt is lumaAt for the 2x2 grid of 4:2:0 chroma blocks.
func (c *sliceContext) chromaAt(x, y int) (*mbInfo, int) {
	var mb *mbInfo
	switch {
	case y < 0:
		mb, y = c.top, 1
	case x < 0:
		mb, x = c.left, 1
	default:
		mb = &c.cur
	}
	if mb == nil {
		return nil, 0
	}
	return mb, y*2 + x
}

func lumaNZ(mb *mbInfo, i int) int {
	switch mb.kind {
	case kindPSkip:
		return 0
	case kindIPCM:
		return 16
	}
	return int(mb.nz[i])
}

func chromaNZ(mb *mbInfo, comp, i int) int {
	switch mb.kind {
	case kindPSkip:
		return 0
	case kindIPCM:
		return 16
	}
	return int(mb.nzC[comp][i])
}

func combineNC(availA bool, nA int, availB bool, nB int) int {
	switch {
	case availA && availB:
		return (nA + nB + 1) >> 1
	case availA:
		return nA
	case availB:
		return nB
	}
	return 0
}

// lumaNC derives nC for the coeff_token of luma block b.
func (c *sliceContext) lumaNC(b int) int {
	x, y := blkX[b], blkY[b]
	a, ai := c.lumaAt(x-1, y)
	bm, bi := c.lumaAt(x, y-1)
	var nA, nB int
	if a != nil {
		nA = lumaNZ(a, ai)
	}
	if bm != nil {
		nB = lumaNZ(bm, bi)
	}
	return combineNC(a != nil, nA, bm != nil, nB)
}

func (c *sliceContext) chromaNC(comp, b int) int {
	x, y := b&1, b>>1
	a, ai := c.chromaAt(x-1, y)
	bm, bi := c.chromaAt(x, y-1)
	var nA, nB int
	if a != nil {
		nA = chromaNZ(a, comp, ai)
	}
	if bm != nil {
		nB = chromaNZ(bm, comp, bi)
	}
	return combineNC(a != nil, nA, bm != nil, nB)
}

// Residual block categories (ctxBlockCat).
type blockCat uint8

const (
	catLumaDC   blockCat = 0
	catLumaAC   blockCat = 1
	catLuma4x4  blockCat = 2
	catChromaDC blockCat = 3
	catChromaAC blockCat = 4
	catLuma8x8  blockCat = 5
)

// blockRef identifies a residual block: idx is the 4x4 z-order index for
// luma, the 8x8 index for catLuma8x8 and the 2x2 index for chroma AC.
type blockRef struct {
	cat  blockCat
	idx  int
	comp int
}

// codedBlockCond returns the coded_block_flag condition of a neighbour
// block for the CABAC context increment.
func (c *sliceContext) codedBlockCond(mb *mbInfo, b blockRef, i int) int {
	if mb == nil {
		if c.cur.kind.intra() {
			return 1
		}
		return 0
	}
	switch mb.kind {
	case kindIPCM:
		return 1
	case kindPSkip:
		return 0
	}
	var f bool
	switch b.cat {
	case catLumaDC:
		f = mb.dcFlags&1 != 0
	case catLumaAC, catLuma4x4:
		f = mb.nz[i] != 0
	case catChromaDC:
		f = mb.dcFlags&(2<<b.comp) != 0
	case catChromaAC:
		f = mb.nzC[b.comp][i] != 0
	}
	if f {
		return 1
	}
	return 0
}

func (c *sliceContext) codedBlockInc(b blockRef) int {
	var a, bm *mbInfo
	var ai, bi int
	switch b.cat {
	case catLumaDC, catChromaDC:
		a, bm = c.left, c.top
	case catLumaAC, catLuma4x4:
		x, y := blkX[b.idx], blkY[b.idx]
		a, ai = c.lumaAt(x-1, y)
		bm, bi = c.lumaAt(x, y-1)
	case catChromaAC:
		x, y := b.idx&1, b.idx>>1
		a, ai = c.chromaAt(x-1, y)
		bm, bi = c.chromaAt(x, y-1)
	}
	return c.codedBlockCond(a, b, ai) + 2*c.codedBlockCond(bm, b, bi)
}

func (c *sliceContext) constrainedInter(mb *mbInfo) bool {
	return c.pps.ConstrainedIntraPred && (mb.kind == kindInter || mb.kind == kindPSkip)
}

// predIntraMode returns predIntraNxNPredMode for the 4x4 block b; for 8x8
// prediction b is the first 4x4 block of the 8x8 block.
func (c *sliceContext) predIntraMode(b int) int {
	x, y := blkX[b], blkY[b]
	a, ai := c.lumaAt(x-1, y)
	bm, bi := c.lumaAt(x, y-1)
	if a == nil || bm == nil || c.constrainedInter(a) || c.constrainedInter(bm) {
		return IntraDC
	}
	modeOf := func(mb *mbInfo, i int) int {
		if mb.kind != kindINxN {
			return IntraDC
		}
		return int(mb.predModes[i])
	}
	return min(modeOf(a, ai), modeOf(bm, bi))
}

// mvCand is a motion vector prediction candidate.
type mvCand struct {
	avail bool
	ref   int8
	mv    MV
}

func (c *sliceContext) mvAt(list, x, y int) mvCand {
	if x >= 0 && x < 4 && y >= 0 && y < 4 {
		b := BlockIndex(x, y)
		if c.decoded&(1<<b) == 0 {
			return mvCand{ref: -1}
		}
		return mvCand{true, c.cur.ref[list][b], c.cur.mv[list][b]}
	}
	mb, i := c.lumaAt(x, y)
	if mb == nil {
		return mvCand{ref: -1}
	}
	if mb.kind.intra() {
		return mvCand{avail: true, ref: -1}
	}
	return mvCand{true, mb.ref[list][i], mb.mv[list][i]}
}

func median3(a, b, c int16) int16 {
	return max(min(a, b), min(max(a, b), c))
}

// predictMV derives mvpLX for the partition with top-left 4x4 block
// (x, y), width w in 4x4 units and reference ref. part is the partition
// index inside a 16x8 or 8x16 macroblock.
func (c *sliceContext) predictMV(list, x, y, w int, ref int8, shape PartShape, part int) MV {
	a := c.mvAt(list, x-1, y)
	b := c.mvAt(list, x, y-1)
	cc := c.mvAt(list, x+w, y-1)
	if !cc.avail {
		cc = c.mvAt(list, x-1, y-1)
	}
	switch shape {
	case Part16x8:
		if part == 0 && b.ref == ref {
			return b.mv
		}
		if part == 1 && a.ref == ref {
			return a.mv
		}
	case Part8x16:
		if part == 0 && a.ref == ref {
			return a.mv
		}
		if part == 1 && cc.ref == ref {
			return cc.mv
		}
	}
	if !b.avail && !cc.avail && a.avail {
		b, cc = a, a
	}
	n := 0
	var match MV
	for _, m := range [3]mvCand{a, b, cc} {
		if m.ref == ref {
			n++
			match = m.mv
		}
	}
	if n == 1 {
		return match
	}
	return MV{median3(a.mv.X, b.mv.X, cc.mv.X), median3(a.mv.Y, b.mv.Y, cc.mv.Y)}
}

// predictSkipMV derives the P_Skip motion vector of the current macroblock.
func (c *sliceContext) predictSkipMV() MV {
	a := c.mvAt(0, -1, 0)
	b := c.mvAt(0, 0, -1)
	if !a.avail || !b.avail {
		return MV{}
	}
	if a.ref == 0 && a.mv == (MV{}) || b.ref == 0 && b.mv == (MV{}) {
		return MV{}
	}
	return c.predictMV(0, 0, 0, 4, 0, Part16x16, 0)
}

// setMotion stores the motion of a partition and marks its blocks decoded.
func (c *sliceContext) setMotion(list, x, y, w, h int, ref int8, mv, mvd MV) {
	for j := y; j < y+h; j++ {
		for i := x; i < x+w; i++ {
			b := BlockIndex(i, j)
			c.cur.ref[list][b] = ref
			c.cur.mv[list][b] = mv
			c.cur.mvd[list][b] = [2]int16{mvd.X, mvd.Y}
			c.decoded |= 1 << b
		}
	}
}

func abs16(v int16) int {
	if v < 0 {
		return -int(v)
	}
	return int(v)
}

// mvdInc derives the ctxIdxInc of the first mvd bin from the absolute mvd
// sum of the neighbours left of and above block (x, y).
func (c *sliceContext) mvdInc(list, x, y, comp int) int {
	sum := 0
	for _, p := range [2][2]int{{x - 1, y}, {x, y - 1}} {
		mb, i := c.lumaAt(p[0], p[1])
		if mb == nil || mb.kind != kindInter {
			continue
		}
		sum += abs16(mb.mvd[list][i][comp])
	}
	switch {
	case sum < 3:
		return 0
	case sum > 32:
		return 2
	}
	return 1
}

func (c *sliceContext) refIdxInc(list, x, y int) int {
	cond := func(px, py int) int {
		mb, i := c.lumaAt(px, py)
		if mb == nil || mb.kind != kindInter {
			return 0
		}
		if mb.ref[list][i] > 0 {
			return 1
		}
		return 0
	}
	return cond(x-1, y) + 2*cond(x, y-1)
}

func (c *sliceContext) cbpLumaInc(b8 int) int {
	x, y := (b8&1)*2, (b8>>1)*2
	cond := func(px, py int) int {
		mb, i := c.lumaAt(px, py)
		if mb == nil || mb.kind == kindIPCM {
			return 0
		}
		if mb.kind != kindPSkip && mb.cbp.LumaCoded(i>>2) {
			return 0
		}
		return 1
	}
	return cond(x-1, y) + 2*cond(x, y-1)
}

func (c *sliceContext) cbpChromaInc(bin int) int {
	cond := func(mb *mbInfo) int {
		if mb == nil || mb.kind == kindPSkip {
			return 0
		}
		if mb.kind == kindIPCM {
			return 1
		}
		if bin == 0 && mb.cbp.Chroma() != 0 || bin == 1 && mb.cbp.Chroma() == 2 {
			return 1
		}
		return 0
	}
	return cond(c.left) + 2*cond(c.top) + 4*bin
}

func (c *sliceContext) skipInc() int {
	n := 0
	for _, mb := range [2]*mbInfo{c.left, c.top} {
		if mb != nil && mb.kind != kindPSkip {
			n++
		}
	}
	return n
}

func (c *sliceContext) mbTypeIInc() int {
	n := 0
	for _, mb := range [2]*mbInfo{c.left, c.top} {
		if mb != nil && mb.kind != kindINxN {
			n++
		}
	}
	return n
}

func (c *sliceContext) chromaPredInc() int {
	n := 0
	for _, mb := range [2]*mbInfo{c.left, c.top} {
		if mb != nil && mb.kind.intra() && mb.kind != kindIPCM && mb.chromaPred != 0 {
			n++
		}
	}
	return n
}

func (c *sliceContext) t8x8Inc() int {
	n := 0
	for _, mb := range [2]*mbInfo{c.left, c.top} {
		if mb != nil && mb.t8x8 {
			n++
		}
	}
	return n
}
