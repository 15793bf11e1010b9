// Package bitio provides bit-level I/O primitives for the codecs.
//
// It implements the VP8 boolean (arithmetic) coder with tree-coded symbols,
// and the MSB-first RBSP cursor used by H.264 with its Exp-Golomb codes.
package bitio

import (
	"encoding/binary"
	"math/bits"
)

// cacheBits is the number of look-ahead bits loaded at once.
const cacheBits = 56

// BoolReader is the VP8 boolean entropy decoder. A 64-bit register caches
// up to seven input bytes so that most symbols decode without touching the
// input.
type BoolReader struct {
	value uint64 // look-ahead bits; the live window starts at bit n
	rng   uint32 // interval size minus one, 127..254 between symbols
	n     int    // bits cached below the live window
	buf   []byte
	pos   int
	eof   bool
}

// NewBoolReader returns a decoder over data.
func NewBoolReader(data []byte) *BoolReader {
	br := &BoolReader{rng: 254, n: -8, buf: data}
	br.fill()
	return br
}

// fill loads seven bytes when eight are available and one byte otherwise.
// Past the end it shifts in zeros once and then sets eof.
func (br *BoolReader) fill() {
	switch {
	case br.pos+8 <= len(br.buf):
		in := bits.ReverseBytes64(binary.LittleEndian.Uint64(br.buf[br.pos:])) >> (64 - cacheBits)
		br.value = br.value<<cacheBits | in
		br.pos += cacheBits / 8
		br.n += cacheBits
	case br.pos < len(br.buf):
		br.value = br.value<<8 | uint64(br.buf[br.pos])
		br.pos++
		br.n += 8
	case !br.eof:
		br.value <<= 8
		br.n += 8
		br.eof = true
	default:
		br.n = 0
	}
}

// GetBit decodes one bit that is 0 with probability prob/256.
func (br *BoolReader) GetBit(prob uint8) int {
	if br.n < 0 {
		br.fill()
	}
	split := br.rng * uint32(prob) >> 8
	rng := split + 1
	bit := 0
	if uint32(br.value>>uint(br.n)) > split {
		bit = 1
		rng = br.rng - split
		br.value -= uint64(split+1) << uint(br.n)
	}
	shift := 7 ^ (bits.Len32(rng) - 1)
	br.rng = rng<<uint(shift) - 1
	br.n -= shift
	return bit
}

// GetSigned decodes a sign bit with probability one half and applies it
// to v.
func (br *BoolReader) GetSigned(v int) int {
	if br.GetBit(0x80) != 0 {
		return -v
	}
	return v
}

// GetValue decodes an n-bit unsigned value, most significant bit first.
func (br *BoolReader) GetValue(n int) uint32 {
	var v uint32
	for ; n > 0; n-- {
		v = v<<1 | uint32(br.GetBit(0x80))
	}
	return v
}

// GetSignedValue decodes an n-bit magnitude followed by its sign.
func (br *BoolReader) GetSignedValue(n int) int32 {
	v := int32(br.GetValue(n))
	if br.GetBit(0x80) != 0 {
		return -v
	}
	return v
}

// EOF reports whether decoding has run past the end of the input.
func (br *BoolReader) EOF() bool {
	return br.eof
}

// ReadTree decodes one symbol from a token tree. The tree is a flat array of
// node pairs; a positive entry is the index of the next pair, anything else
// is a leaf holding the negated symbol. probs[i>>1] is the probability of the
// branch at tree[i].
func (br *BoolReader) ReadTree(tree []int8, probs []uint8) int {
	i := 0
	for {
		i = int(tree[i+br.GetBit(probs[i>>1])])
		if i <= 0 {
			return -i
		}
	}
}
