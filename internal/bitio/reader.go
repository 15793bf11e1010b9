package bitio

import (
	"math/bits"

	"github.com/deepteams/vcodec/internal/codecerr"
)

// Reader is an MSB-first cursor over an RBSP byte buffer. Errors are sticky:
// once the cursor runs past the end every read returns zero and Err reports
// codecerr.ErrEndOfStream.
type Reader struct {
	buf []byte
	pos int // bit position
	err error
}

// NewReader returns a Reader positioned at the first bit of data.
func NewReader(data []byte) *Reader {
	return &Reader{buf: data}
}

// Err returns the first error encountered.
func (r *Reader) Err() error { return r.err }

// Pos returns the current bit position.
func (r *Reader) Pos() int { return r.pos }

// BitsLeft returns the number of unread bits.
func (r *Reader) BitsLeft() int { return len(r.buf)*8 - r.pos }

// ByteAligned reports whether the cursor sits on a byte boundary.
func (r *Reader) ByteAligned() bool { return r.pos&7 == 0 }

// Data returns the underlying buffer.
func (r *Reader) Data() []byte { return r.buf }

// BytePos returns the index of the byte holding the next bit.
func (r *Reader) BytePos() int { return r.pos >> 3 }

// SetError records err unless an error is already pending.
func (r *Reader) SetError(err error) {
	if r.err == nil {
		r.err = err
	}
}

func (r *Reader) fail() {
	r.SetError(codecerr.ErrEndOfStream)
	r.pos = len(r.buf) * 8
}

// ReadBit returns the next bit.
func (r *Reader) ReadBit() uint32 {
	if r.pos >= len(r.buf)*8 {
		r.fail()
		return 0
	}
	b := uint32(r.buf[r.pos>>3]>>(7-uint(r.pos&7))) & 1
	r.pos++
	return b
}

// ReadFlag returns the next bit as a bool.
func (r *Reader) ReadFlag() bool { return r.ReadBit() == 1 }

// ReadBits returns the next n bits (n <= 32) as an unsigned integer.
func (r *Reader) ReadBits(n int) uint32 {
	if n == 0 {
		return 0
	}
	if n > r.BitsLeft() {
		r.fail()
		return 0
	}
	var v uint32
	for n > 0 {
		off := uint(r.pos & 7)
		avail := 8 - int(off)
		take := avail
		if take > n {
			take = n
		}
		chunk := uint32(r.buf[r.pos>>3]<<off) >> (8 - uint(take))
		v = v<<uint(take) | chunk
		r.pos += take
		n -= take
	}
	return v
}

// PeekBits returns the next n bits without consuming them. Missing bits past
// the end of the buffer read as zero.
func (r *Reader) PeekBits(n int) uint32 {
	var v uint32
	for i := 0; i < n; i++ {
		p := r.pos + i
		v <<= 1
		if p < len(r.buf)*8 {
			v |= uint32(r.buf[p>>3]>>(7-uint(p&7))) & 1
		}
	}
	return v
}

// Skip advances the cursor by n bits.
func (r *Reader) Skip(n int) {
	if n > r.BitsLeft() {
		r.fail()
		return
	}
	r.pos += n
}

// ReadUE reads an unsigned Exp-Golomb code, ue(v).
func (r *Reader) ReadUE() uint32 {
	lz := 0
	for r.ReadBit() == 0 {
		if r.err != nil {
			return 0
		}
		lz++
		if lz > 31 {
			r.SetError(codecerr.Malformed("exp-golomb prefix", int64(lz), "too many leading zeros"))
			return 0
		}
	}
	if lz == 0 {
		return 0
	}
	return (1<<uint(lz) - 1) + r.ReadBits(lz)
}

// ReadSE reads a signed Exp-Golomb code, se(v).
func (r *Reader) ReadSE() int32 {
	k := r.ReadUE()
	if k&1 == 1 {
		return int32((k + 1) >> 1)
	}
	return -int32(k >> 1)
}

// ReadTE reads a truncated Exp-Golomb code with range [0, max], te(v).
func (r *Reader) ReadTE(max int) uint32 {
	if max > 1 {
		return r.ReadUE()
	}
	return r.ReadBit() ^ 1
}

// AlignZero skips to the next byte boundary.
func (r *Reader) AlignZero() {
	if r.pos&7 != 0 {
		r.Skip(8 - r.pos&7)
	}
}

// MoreRBSPData reports whether syntax data remains before the
// rbsp_stop_one_bit and its zero padding.
func (r *Reader) MoreRBSPData() bool {
	left := r.BitsLeft()
	if left <= 0 || r.err != nil {
		return false
	}
	// Find the last set bit in the buffer: that is the stop bit.
	last := len(r.buf) - 1
	for last >= 0 && r.buf[last] == 0 {
		last--
	}
	if last < 0 {
		return false
	}
	stop := last*8 + 7 - bits.TrailingZeros8(r.buf[last])
	return r.pos < stop
}
