package bitio

// Writer is the MSB-first counterpart of Reader.
type Writer struct {
	buf   []byte
	cur   uint32 // pending bits, right aligned
	nbits int    // number of pending bits in cur (0..7)
}

// NewWriter returns a Writer with room for sizeHint bytes.
func NewWriter(sizeHint int) *Writer {
	return &Writer{buf: make([]byte, 0, sizeHint)}
}

// WriteBit appends one bit.
func (w *Writer) WriteBit(b uint32) {
	w.cur = w.cur<<1 | b&1
	w.nbits++
	if w.nbits == 8 {
		w.buf = append(w.buf, byte(w.cur))
		w.cur = 0
		w.nbits = 0
	}
}

// WriteFlag appends a bool as one bit.
func (w *Writer) WriteFlag(f bool) {
	if f {
		w.WriteBit(1)
	} else {
		w.WriteBit(0)
	}
}

// WriteBits appends the n low bits of v, MSB first.
func (w *Writer) WriteBits(v uint32, n int) {
	for i := n - 1; i >= 0; i-- {
		w.WriteBit(v >> uint(i))
	}
}

// WriteUE appends v as ue(v).
func (w *Writer) WriteUE(v uint32) {
	x := uint64(v) + 1
	n := 0
	for t := x; t > 1; t >>= 1 {
		n++
	}
	w.WriteBits(0, n)
	for i := n; i >= 0; i-- {
		w.WriteBit(uint32(x >> uint(i)))
	}
}

// WriteSE appends v as se(v).
func (w *Writer) WriteSE(v int32) {
	if v > 0 {
		w.WriteUE(uint32(v)*2 - 1)
	} else {
		w.WriteUE(uint32(-int64(v)) * 2)
	}
}

// WriteTE appends v as te(v) with range [0, max].
func (w *Writer) WriteTE(v uint32, max int) {
	if max > 1 {
		w.WriteUE(v)
		return
	}
	w.WriteBit(v ^ 1)
}

// ByteAligned reports whether the next bit starts a byte.
func (w *Writer) ByteAligned() bool { return w.nbits == 0 }

// AlignZero pads with zero bits to the next byte boundary.
func (w *Writer) AlignZero() {
	for w.nbits != 0 {
		w.WriteBit(0)
	}
}

// AlignOne pads with one bits to the next byte boundary.
func (w *Writer) AlignOne() {
	for w.nbits != 0 {
		w.WriteBit(1)
	}
}

// WriteTrailingBits appends rbsp_stop_one_bit and zero alignment.
func (w *Writer) WriteTrailingBits() {
	w.WriteBit(1)
	w.AlignZero()
}

// WriteBytes appends whole bytes; the writer must be byte aligned.
func (w *Writer) WriteBytes(p []byte) {
	if w.nbits != 0 {
		for _, b := range p {
			w.WriteBits(uint32(b), 8)
		}
		return
	}
	w.buf = append(w.buf, p...)
}

// Len returns the number of bits written.
func (w *Writer) Len() int { return len(w.buf)*8 + w.nbits }

// Bytes returns the written bytes. A partial final byte is zero padded.
func (w *Writer) Bytes() []byte {
	if w.nbits == 0 {
		return w.buf
	}
	out := make([]byte, len(w.buf), len(w.buf)+1)
	copy(out, w.buf)
	return append(out, byte(w.cur<<(8-uint(w.nbits))))
}
