package h264

import (
	"github.com/deepteams/vcodec/internal/bitio"
	"github.com/deepteams/vcodec/internal/cavlc"
	"github.com/deepteams/vcodec/internal/codecerr"
)

type cavlcReader struct {
	r       *bitio.Reader
	ctx     *sliceContext
	skipRun int
}

func newCAVLCReader(r *bitio.Reader, ctx *sliceContext) *cavlcReader {
	return &cavlcReader{r: r, ctx: ctx, skipRun: -1}
}

func (d *cavlcReader) SkipMB() (bool, error) {
	if d.skipRun < 0 {
		run := d.r.ReadUE()
		if err := d.r.Err(); err != nil {
			return false, err
		}
		if int(run) > len(d.ctx.records) {
			return false, codecerr.Malformed("mb_skip_run", int64(run), "exceeds picture size")
		}
		d.skipRun = int(run)
	}
	if d.skipRun > 0 {
		d.skipRun--
		return true, nil
	}
	d.skipRun = -1
	return false, nil
}

func (d *cavlcReader) MoreData() (bool, error) {
	if d.skipRun > 0 {
		return true, nil
	}
	return d.r.MoreRBSPData(), d.r.Err()
}

func (d *cavlcReader) ue(name string, maxVal int) (int, error) {
	v := d.r.ReadUE()
	if err := d.r.Err(); err != nil {
		return 0, err
	}
	if int64(v) > int64(maxVal) {
		return 0, codecerr.Malformed(name, int64(v), "")
	}
	return int(v), nil
}

func (d *cavlcReader) MBType() (int, error) { return d.ue("mb_type", 48) }

func (d *cavlcReader) SubMBType() (int, error) { return d.ue("sub_mb_type", 12) }

func (d *cavlcReader) TransformSize8x8() (bool, error) {
	return d.r.ReadFlag(), d.r.Err()
}

func (d *cavlcReader) PrevIntraPredFlag() (bool, error) {
	return d.r.ReadFlag(), d.r.Err()
}

func (d *cavlcReader) RemIntraPredMode() (int, error) {
	return int(d.r.ReadBits(3)), d.r.Err()
}

func (d *cavlcReader) IntraChromaPredMode() (int, error) {
	return d.ue("intra_chroma_pred_mode", 3)
}

func (d *cavlcReader) RefIdx(list, x, y, maxIdx int) (int, error) {
	v := d.r.ReadTE(maxIdx)
	if err := d.r.Err(); err != nil {
		return 0, err
	}
	if int(v) > maxIdx {
		return 0, codecerr.Malformed("ref_idx", int64(v), "max %d", maxIdx)
	}
	return int(v), nil
}

func (d *cavlcReader) MVD(list, x, y, comp int) (int, error) {
	return int(d.r.ReadSE()), d.r.Err()
}

func (d *cavlcReader) CBP() (CBP, error) {
	intra := d.ctx.cur.kind.intra()
	gray := d.ctx.sps.ChromaArrayType() == 0 || d.ctx.sps.ChromaArrayType() == 3
	maxCode := 47
	if gray {
		maxCode = 15
	}
	code, err := d.ue("coded_block_pattern", maxCode)
	if err != nil {
		return 0, err
	}
	switch {
	case gray && intra:
		return CBP(cbpGrayIntra[code]), nil
	case gray:
		return CBP(cbpGrayInter[code]), nil
	case intra:
		return CBP(cbpIntra[code]), nil
	}
	return CBP(cbpInter[code]), nil
}

func (d *cavlcReader) QPDelta() (int, error) {
	return int(d.r.ReadSE()), d.r.Err()
}

func (d *cavlcReader) Block(b blockRef, maxNumCoeff int, out []int32) (int, error) {
	return cavlc.ReadBlock(d.r, d.ctx.blockNC(b), maxNumCoeff, out)
}

func (d *cavlcReader) PCM(mb *IPCM) error {
	return readPCMSamples(d.r, mb, d.ctx.sps.ChromaArrayType() != 0)
}

// blockNC derives nC for a CAVLC residual block.
func (c *sliceContext) blockNC(b blockRef) int {
	switch b.cat {
	case catLumaDC:
		return c.lumaNC(0)
	case catChromaDC:
		if c.sps.ChromaArrayType() == 2 {
			return cavlc.NCChromaDC422
		}
		return cavlc.NCChromaDC420
	case catChromaAC:
		return c.chromaNC(b.comp, b.idx)
	}
	return c.lumaNC(b.idx)
}

// readPCMSamples reads pcm_alignment_zero_bit and the raw samples; chroma
// is absent in monochrome streams.
func readPCMSamples(r *bitio.Reader, mb *IPCM, chroma bool) error {
	r.AlignZero()
	for i := range mb.Luma {
		mb.Luma[i] = uint8(r.ReadBits(8))
	}
	if !chroma {
		return r.Err()
	}
	for c := range mb.Chroma {
		for i := range mb.Chroma[c] {
			mb.Chroma[c][i] = uint8(r.ReadBits(8))
		}
	}
	return r.Err()
}

func writePCMSamples(w *bitio.Writer, mb *IPCM, chroma bool) {
	w.AlignZero()
	w.WriteBytes(mb.Luma[:])
	if !chroma {
		return
	}
	w.WriteBytes(mb.Chroma[0][:])
	w.WriteBytes(mb.Chroma[1][:])
}

type cavlcWriter struct {
	w       *bitio.Writer
	ctx     *sliceContext
	skipRun int
}

func newCAVLCWriter(w *bitio.Writer, ctx *sliceContext) *cavlcWriter {
	return &cavlcWriter{w: w, ctx: ctx}
}

func (e *cavlcWriter) StartMB() error { return nil }

func (e *cavlcWriter) SkipMB(skip bool) error {
	if skip {
		e.skipRun++
		return nil
	}
	e.w.WriteUE(uint32(e.skipRun))
	e.skipRun = 0
	return nil
}

func (e *cavlcWriter) MBType(t int) error {
	e.w.WriteUE(uint32(t))
	return nil
}

func (e *cavlcWriter) SubMBType(t int) error {
	e.w.WriteUE(uint32(t))
	return nil
}

func (e *cavlcWriter) TransformSize8x8(f bool) error {
	e.w.WriteFlag(f)
	return nil
}

func (e *cavlcWriter) PrevIntraPredFlag(f bool) error {
	e.w.WriteFlag(f)
	return nil
}

func (e *cavlcWriter) RemIntraPredMode(m int) error {
	e.w.WriteBits(uint32(m), 3)
	return nil
}

func (e *cavlcWriter) IntraChromaPredMode(m int) error {
	e.w.WriteUE(uint32(m))
	return nil
}

func (e *cavlcWriter) RefIdx(list, x, y, maxIdx, v int) error {
	e.w.WriteTE(uint32(v), maxIdx)
	return nil
}

func (e *cavlcWriter) MVD(list, x, y, comp, v int) error {
	e.w.WriteSE(int32(v))
	return nil
}

func (e *cavlcWriter) CBP(cbp CBP) error {
	intra := e.ctx.cur.kind.intra()
	gray := e.ctx.sps.ChromaArrayType() == 0 || e.ctx.sps.ChromaArrayType() == 3
	var code uint8
	switch {
	case gray && cbp > 15:
		return codecerr.Malformed("coded_block_pattern", int64(cbp), "chroma bits without chroma")
	case gray && intra:
		code = cbpGrayIntraCode[cbp]
	case gray:
		code = cbpGrayInterCode[cbp]
	case cbp > 47:
		return codecerr.Malformed("coded_block_pattern", int64(cbp), "")
	case intra:
		code = cbpIntraCode[cbp]
	default:
		code = cbpInterCode[cbp]
	}
	e.w.WriteUE(uint32(code))
	return nil
}

func (e *cavlcWriter) QPDelta(d int) error {
	e.w.WriteSE(int32(d))
	return nil
}

func (e *cavlcWriter) Block(b blockRef, coeffs []int32) (int, error) {
	return cavlc.WriteBlock(e.w, e.ctx.blockNC(b), coeffs)
}

func (e *cavlcWriter) PCM(mb *IPCM) error {
	writePCMSamples(e.w, mb, e.ctx.sps.ChromaArrayType() != 0)
	return nil
}

func (e *cavlcWriter) Finish() error {
	if e.skipRun > 0 {
		e.w.WriteUE(uint32(e.skipRun))
		e.skipRun = 0
	}
	e.w.WriteTrailingBits()
	return nil
}
