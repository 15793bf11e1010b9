package cabac

import "github.com/deepteams/vcodec/internal/bitio"

// Decoder is the arithmetic decoding engine. It consumes bits from a shared
// bitio.Reader so that the syntax layer can interleave raw reads (I_PCM
// samples) with arithmetic-coded bins.
type Decoder struct {
	r      *bitio.Reader
	rng    uint32
	offset uint32
	Ctx    Contexts
}

// NewDecoder returns a Decoder reading from r. The engine is initialised
// immediately; r must be byte aligned at the start of the arithmetic data.
func NewDecoder(r *bitio.Reader) *Decoder {
	d := &Decoder{r: r}
	d.InitEngine()
	return d
}

// InitEngine (re)starts the arithmetic decoder at the reader's position.
func (d *Decoder) InitEngine() {
	d.rng = 510
	d.offset = d.r.ReadBits(9)
}

// InitContexts initialises the context store for a slice.
func (d *Decoder) InitContexts(intra bool, cabacInitIdc, qp int) {
	d.Ctx.Init(intra, cabacInitIdc, qp)
}

// Err reports a read past the end of the slice data.
func (d *Decoder) Err() error { return d.r.Err() }

// Reader returns the underlying bit reader.
func (d *Decoder) Reader() *bitio.Reader { return d.r }

// DecodeDecision decodes one bin with the context at ctxIdx.
func (d *Decoder) DecodeDecision(ctxIdx int) int {
	c := &d.Ctx[ctxIdx]
	lps := uint32(rangeTabLPS[c.State][(d.rng>>6)&3])
	d.rng -= lps
	var bin int
	if d.offset >= d.rng {
		bin = int(1 - c.MPS)
		d.offset -= d.rng
		d.rng = lps
		if c.State == 0 {
			c.MPS = 1 - c.MPS
		}
		c.State = transIdxLPS[c.State]
	} else {
		bin = int(c.MPS)
		c.State = transIdxMPS[c.State]
	}
	for d.rng < 256 {
		d.rng <<= 1
		d.offset = d.offset<<1 | d.r.ReadBit()
	}
	return bin
}

// DecodeBypass decodes one equiprobable bin.
func (d *Decoder) DecodeBypass() int {
	d.offset = d.offset<<1 | d.r.ReadBit()
	if d.offset >= d.rng {
		d.offset -= d.rng
		return 1
	}
	return 0
}

// DecodeTerminate decodes end_of_slice_flag and the I_PCM marker. After a 1
// the reader is positioned just past the encoder's final flush bit.
func (d *Decoder) DecodeTerminate() int {
	d.rng -= 2
	if d.offset >= d.rng {
		return 1
	}
	for d.rng < 256 {
		d.rng <<= 1
		d.offset = d.offset<<1 | d.r.ReadBit()
	}
	return 0
}
