package cabac

import "github.com/deepteams/vcodec/internal/bitio"

// Encoder is the arithmetic encoding engine writing into a bitio.Writer.
type Encoder struct {
	w           *bitio.Writer
	low         uint32
	rng         uint32
	outstanding int
	firstBit    bool
	bins        int
	Ctx         Contexts
}

// NewEncoder returns an Encoder appending to w, which must be byte aligned.
func NewEncoder(w *bitio.Writer) *Encoder {
	e := &Encoder{w: w}
	e.InitEngine()
	return e
}

// InitEngine (re)starts the arithmetic encoder.
func (e *Encoder) InitEngine() {
	e.low = 0
	e.rng = 510
	e.outstanding = 0
	e.firstBit = true
}

// InitContexts initialises the context store for a slice.
func (e *Encoder) InitContexts(intra bool, cabacInitIdc, qp int) {
	e.Ctx.Init(intra, cabacInitIdc, qp)
}

// Writer returns the underlying bit writer.
func (e *Encoder) Writer() *bitio.Writer { return e.w }

// BinCount returns the number of bins encoded so far.
func (e *Encoder) BinCount() int { return e.bins }

func (e *Encoder) putBit(b uint32) {
	if e.firstBit {
		e.firstBit = false
	} else {
		e.w.WriteBit(b)
	}
	for ; e.outstanding > 0; e.outstanding-- {
		e.w.WriteBit(1 - b)
	}
}

func (e *Encoder) renorm() {
	for e.rng < 256 {
		switch {
		case e.low < 256:
			e.putBit(0)
		case e.low >= 512:
			e.low -= 512
			e.putBit(1)
		default:
			e.low -= 256
			e.outstanding++
		}
		e.rng <<= 1
		e.low <<= 1
	}
}

// EncodeDecision encodes bin with the context at ctxIdx.
func (e *Encoder) EncodeDecision(ctxIdx int, bin int) {
	c := &e.Ctx[ctxIdx]
	lps := uint32(rangeTabLPS[c.State][(e.rng>>6)&3])
	e.rng -= lps
	if uint8(bin&1) != c.MPS {
		e.low += e.rng
		e.rng = lps
		if c.State == 0 {
			c.MPS = 1 - c.MPS
		}
		c.State = transIdxLPS[c.State]
	} else {
		c.State = transIdxMPS[c.State]
	}
	e.renorm()
	e.bins++
}

// EncodeBypass encodes one equiprobable bin.
func (e *Encoder) EncodeBypass(bin int) {
	e.low <<= 1
	if bin != 0 {
		e.low += e.rng
	}
	switch {
	case e.low >= 1024:
		e.putBit(1)
		e.low -= 1024
	case e.low < 512:
		e.putBit(0)
	default:
		e.low -= 512
		e.outstanding++
	}
	e.bins++
}

// EncodeTerminate encodes a terminating bin. A 1 flushes the engine; the
// last bit written is then a 1 which doubles as rbsp_stop_one_bit at the
// end of a slice.
func (e *Encoder) EncodeTerminate(bin int) {
	e.rng -= 2
	e.bins++
	if bin != 0 {
		e.low += e.rng
		e.flush()
		return
	}
	e.renorm()
}

func (e *Encoder) flush() {
	e.rng = 2
	e.renorm()
	e.putBit((e.low >> 9) & 1)
	e.w.WriteBits(((e.low>>7)&3)|1, 2)
}

// Finish encodes a terminating 1 and pads the writer to a byte boundary.
func (e *Encoder) Finish() {
	e.EncodeTerminate(1)
	e.w.AlignZero()
}
