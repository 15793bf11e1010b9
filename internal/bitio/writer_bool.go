package bitio

import "github.com/pkg/errors"

// BoolWriter is the VP8 boolean entropy encoder, the counterpart of
// BoolReader. bottom holds the low end of the coding interval; the top byte
// is emitted every eight renormalisation shifts and carries ripple back
// into bytes already written.
type BoolWriter struct {
	buf    []byte
	rng    uint32 // 128..255 between symbols
	bottom uint32
	shifts int // renormalisation shifts until the next output byte
	err    error
}

// NewBoolWriter returns an encoder whose buffer starts with room for
// sizeHint bytes.
func NewBoolWriter(sizeHint int) *BoolWriter {
	return &BoolWriter{
		buf:    make([]byte, 0, max(sizeHint, 256)),
		rng:    255,
		shifts: 24,
	}
}

// PutBit encodes bit, which is 0 with probability prob/256. It returns
// bit.
func (bw *BoolWriter) PutBit(bit int, prob int) int {
	split := 1 + (bw.rng-1)*uint32(prob)>>8
	if bit != 0 {
		bw.bottom += split
		bw.rng -= split
	} else {
		bw.rng = split
	}
	for bw.rng < 128 {
		bw.rng <<= 1
		if bw.bottom&(1<<31) != 0 {
			bw.carry()
		}
		bw.bottom <<= 1
		if bw.shifts--; bw.shifts == 0 {
			bw.buf = append(bw.buf, byte(bw.bottom>>24))
			bw.bottom &= 1<<24 - 1
			bw.shifts = 8
		}
	}
	return bit
}

// carry adds one to the bytes written so far.
func (bw *BoolWriter) carry() {
	i := len(bw.buf) - 1
	for ; i >= 0 && bw.buf[i] == 0xff; i-- {
		bw.buf[i] = 0
	}
	if i >= 0 {
		bw.buf[i]++
	}
}

// PutBitUniform encodes bit with probability one half.
func (bw *BoolWriter) PutBitUniform(bit int) int {
	return bw.PutBit(bit, 0x80)
}

// PutBits encodes the low n bits of value, most significant first, each
// with probability one half. It matches BoolReader.GetValue.
func (bw *BoolWriter) PutBits(value uint32, n int) {
	for i := n - 1; i >= 0; i-- {
		bw.PutBitUniform(int(value>>uint(i)) & 1)
	}
}

// PutSignedBits encodes a presence flag and, for a non-zero value, its
// n-bit magnitude followed by the sign.
func (bw *BoolWriter) PutSignedBits(value int, n int) {
	if bw.PutBitUniform(boolToInt(value != 0)) == 0 {
		return
	}
	if value < 0 {
		bw.PutBits(uint32(-value)<<1|1, n+1)
	} else {
		bw.PutBits(uint32(value)<<1, n+1)
	}
}

// PutTree encodes symbol v with a tree in the layout read by
// BoolReader.ReadTree. A symbol missing from the tree is recorded as an
// error and encodes nothing.
func (bw *BoolWriter) PutTree(tree []int8, probs []uint8, v int) {
	path, ok := treePath(tree, v)
	if !ok {
		if bw.err == nil {
			bw.err = errors.Errorf("bitio: symbol %d is not in the tree", v)
		}
		return
	}
	i := 0
	for _, bit := range path {
		bw.PutBit(bit, int(probs[i>>1]))
		i = int(tree[i+bit])
	}
}

// treePath returns the branch decisions leading from the root to leaf -v.
func treePath(tree []int8, v int) ([]int, bool) {
	node := -1
	for j, t := range tree {
		if t <= 0 && int(-t) == v {
			node = j
			break
		}
	}
	if node < 0 {
		return nil, false
	}
	var path []int
	for {
		path = append(path, node&1)
		pair := node &^ 1
		if pair == 0 {
			break
		}
		parent := -1
		for k, t := range tree {
			if int(t) == pair {
				parent = k
				break
			}
		}
		if parent < 0 {
			return nil, false
		}
		node = parent
	}
	for l, r := 0, len(path)-1; l < r; l, r = l+1, r-1 {
		path[l], path[r] = path[r], path[l]
	}
	return path, true
}

// Finish pads the interval out to whole bytes and returns the encoded
// data. The writer must not be used afterwards.
func (bw *BoolWriter) Finish() []byte {
	v := bw.bottom
	if v&(1<<uint(32-bw.shifts)) != 0 {
		bw.carry()
	}
	v <<= uint(bw.shifts & 7)
	for c := bw.shifts >> 3; c > 0; c-- {
		v <<= 8
	}
	for c := 0; c < 4; c++ {
		bw.buf = append(bw.buf, byte(v>>24))
		v <<= 8
	}
	return bw.buf
}

// Err returns the first encoding error.
func (bw *BoolWriter) Err() error {
	return bw.err
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
