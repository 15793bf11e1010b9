package h264

import (
	"github.com/deepteams/vcodec/internal/bitio"
	"github.com/deepteams/vcodec/internal/codecerr"
)

// AspectRatioExtendedSAR is the aspect_ratio_idc that carries an explicit
// sar_width and sar_height.
const AspectRatioExtendedSAR = 255

// sampleAspectRatios maps aspect_ratio_idc 1..16 to sample aspect ratios.
var sampleAspectRatios = [17][2]uint16{
	{0, 0}, {1, 1}, {12, 11}, {10, 11}, {16, 11}, {40, 33}, {24, 11}, {20, 11},
	{32, 11}, {80, 33}, {18, 11}, {15, 11}, {64, 33}, {160, 99}, {4, 3}, {3, 2}, {2, 1},
}

// HRD is hrd_parameters().
type HRD struct {
	CpbCntMinus1                       uint32
	BitRateScale                       uint8
	CpbSizeScale                       uint8
	BitRateValueMinus1                 []uint32
	CpbSizeValueMinus1                 []uint32
	CbrFlag                            []bool
	InitialCpbRemovalDelayLengthMinus1 uint8
	CpbRemovalDelayLengthMinus1        uint8
	DpbOutputDelayLengthMinus1         uint8
	TimeOffsetLength                   uint8
}

// VUI is vui_parameters().
type VUI struct {
	AspectRatioInfoPresent bool
	AspectRatioIdc         uint8
	SarWidth, SarHeight    uint16

	OverscanInfoPresent bool
	OverscanAppropriate bool

	VideoSignalTypePresent   bool
	VideoFormat              uint8
	VideoFullRange           bool
	ColourDescriptionPresent bool
	ColourPrimaries          uint8
	TransferCharacteristics  uint8
	MatrixCoefficients       uint8

	ChromaLocInfoPresent           bool
	ChromaSampleLocTypeTopField    uint32
	ChromaSampleLocTypeBottomField uint32

	TimingInfoPresent bool
	NumUnitsInTick    uint32
	TimeScale         uint32
	FixedFrameRate    bool

	NalHRD           *HRD
	VclHRD           *HRD
	LowDelayHRD      bool
	PicStructPresent bool

	BitstreamRestriction           bool
	MotionVectorsOverPicBoundaries bool
	MaxBytesPerPicDenom            uint32
	MaxBitsPerMbDenom              uint32
	Log2MaxMvLengthHorizontal      uint32
	Log2MaxMvLengthVertical        uint32
	MaxNumReorderFrames            uint32
	MaxDecFrameBuffering           uint32
}

// SAR returns the sample aspect ratio, or 0:0 when unspecified.
func (v *VUI) SAR() (w, h uint16) {
	if v == nil || !v.AspectRatioInfoPresent {
		return 0, 0
	}
	if v.AspectRatioIdc == AspectRatioExtendedSAR {
		return v.SarWidth, v.SarHeight
	}
	if int(v.AspectRatioIdc) < len(sampleAspectRatios) {
		r := sampleAspectRatios[v.AspectRatioIdc]
		return r[0], r[1]
	}
	return 0, 0
}

func readHRD(r *bitio.Reader) (*HRD, error) {
	h := &HRD{CpbCntMinus1: r.ReadUE()}
	if err := codecerr.CheckRange("cpb_cnt_minus1", int64(h.CpbCntMinus1), 0, 31); err != nil {
		return nil, err
	}
	h.BitRateScale = uint8(r.ReadBits(4))
	h.CpbSizeScale = uint8(r.ReadBits(4))
	n := int(h.CpbCntMinus1) + 1
	h.BitRateValueMinus1 = make([]uint32, n)
	h.CpbSizeValueMinus1 = make([]uint32, n)
	h.CbrFlag = make([]bool, n)
	for i := 0; i < n; i++ {
		h.BitRateValueMinus1[i] = r.ReadUE()
		h.CpbSizeValueMinus1[i] = r.ReadUE()
		h.CbrFlag[i] = r.ReadFlag()
	}
	h.InitialCpbRemovalDelayLengthMinus1 = uint8(r.ReadBits(5))
	h.CpbRemovalDelayLengthMinus1 = uint8(r.ReadBits(5))
	h.DpbOutputDelayLengthMinus1 = uint8(r.ReadBits(5))
	h.TimeOffsetLength = uint8(r.ReadBits(5))
	return h, r.Err()
}

func writeHRD(w *bitio.Writer, h *HRD) error {
	if h.CpbCntMinus1 > 31 {
		return codecerr.Malformed("cpb_cnt_minus1", int64(h.CpbCntMinus1), "")
	}
	n := int(h.CpbCntMinus1) + 1
	if len(h.BitRateValueMinus1) < n || len(h.CpbSizeValueMinus1) < n || len(h.CbrFlag) < n {
		return codecerr.Malformed("cpb_cnt_minus1", int64(h.CpbCntMinus1), "missing per-CPB values")
	}
	w.WriteUE(h.CpbCntMinus1)
	w.WriteBits(uint32(h.BitRateScale), 4)
	w.WriteBits(uint32(h.CpbSizeScale), 4)
	for i := 0; i < n; i++ {
		w.WriteUE(h.BitRateValueMinus1[i])
		w.WriteUE(h.CpbSizeValueMinus1[i])
		w.WriteFlag(h.CbrFlag[i])
	}
	w.WriteBits(uint32(h.InitialCpbRemovalDelayLengthMinus1), 5)
	w.WriteBits(uint32(h.CpbRemovalDelayLengthMinus1), 5)
	w.WriteBits(uint32(h.DpbOutputDelayLengthMinus1), 5)
	w.WriteBits(uint32(h.TimeOffsetLength), 5)
	return nil
}

func readVUI(r *bitio.Reader) (*VUI, error) {
	v := &VUI{}
	if v.AspectRatioInfoPresent = r.ReadFlag(); v.AspectRatioInfoPresent {
		v.AspectRatioIdc = uint8(r.ReadBits(8))
		if v.AspectRatioIdc == AspectRatioExtendedSAR {
			v.SarWidth = uint16(r.ReadBits(16))
			v.SarHeight = uint16(r.ReadBits(16))
		}
	}
	if v.OverscanInfoPresent = r.ReadFlag(); v.OverscanInfoPresent {
		v.OverscanAppropriate = r.ReadFlag()
	}
	if v.VideoSignalTypePresent = r.ReadFlag(); v.VideoSignalTypePresent {
		v.VideoFormat = uint8(r.ReadBits(3))
		v.VideoFullRange = r.ReadFlag()
		if v.ColourDescriptionPresent = r.ReadFlag(); v.ColourDescriptionPresent {
			v.ColourPrimaries = uint8(r.ReadBits(8))
			v.TransferCharacteristics = uint8(r.ReadBits(8))
			v.MatrixCoefficients = uint8(r.ReadBits(8))
		}
	}
	if v.ChromaLocInfoPresent = r.ReadFlag(); v.ChromaLocInfoPresent {
		v.ChromaSampleLocTypeTopField = r.ReadUE()
		v.ChromaSampleLocTypeBottomField = r.ReadUE()
		if v.ChromaSampleLocTypeTopField > 5 || v.ChromaSampleLocTypeBottomField > 5 {
			return nil, codecerr.Malformed("chroma_sample_loc_type", int64(max(v.ChromaSampleLocTypeTopField, v.ChromaSampleLocTypeBottomField)), "")
		}
	}
	if v.TimingInfoPresent = r.ReadFlag(); v.TimingInfoPresent {
		v.NumUnitsInTick = r.ReadBits(32)
		v.TimeScale = r.ReadBits(32)
		v.FixedFrameRate = r.ReadFlag()
	}
	var err error
	if r.ReadFlag() {
		if v.NalHRD, err = readHRD(r); err != nil {
			return nil, err
		}
	}
	if r.ReadFlag() {
		if v.VclHRD, err = readHRD(r); err != nil {
			return nil, err
		}
	}
	if v.NalHRD != nil || v.VclHRD != nil {
		v.LowDelayHRD = r.ReadFlag()
	}
	v.PicStructPresent = r.ReadFlag()
	if v.BitstreamRestriction = r.ReadFlag(); v.BitstreamRestriction {
		v.MotionVectorsOverPicBoundaries = r.ReadFlag()
		v.MaxBytesPerPicDenom = r.ReadUE()
		v.MaxBitsPerMbDenom = r.ReadUE()
		v.Log2MaxMvLengthHorizontal = r.ReadUE()
		v.Log2MaxMvLengthVertical = r.ReadUE()
		v.MaxNumReorderFrames = r.ReadUE()
		v.MaxDecFrameBuffering = r.ReadUE()
	}
	return v, r.Err()
}

func writeVUI(w *bitio.Writer, v *VUI) error {
	w.WriteFlag(v.AspectRatioInfoPresent)
	if v.AspectRatioInfoPresent {
		w.WriteBits(uint32(v.AspectRatioIdc), 8)
		if v.AspectRatioIdc == AspectRatioExtendedSAR {
			w.WriteBits(uint32(v.SarWidth), 16)
			w.WriteBits(uint32(v.SarHeight), 16)
		}
	}
	w.WriteFlag(v.OverscanInfoPresent)
	if v.OverscanInfoPresent {
		w.WriteFlag(v.OverscanAppropriate)
	}
	w.WriteFlag(v.VideoSignalTypePresent)
	if v.VideoSignalTypePresent {
		w.WriteBits(uint32(v.VideoFormat), 3)
		w.WriteFlag(v.VideoFullRange)
		w.WriteFlag(v.ColourDescriptionPresent)
		if v.ColourDescriptionPresent {
			w.WriteBits(uint32(v.ColourPrimaries), 8)
			w.WriteBits(uint32(v.TransferCharacteristics), 8)
			w.WriteBits(uint32(v.MatrixCoefficients), 8)
		}
	}
	w.WriteFlag(v.ChromaLocInfoPresent)
	if v.ChromaLocInfoPresent {
		w.WriteUE(v.ChromaSampleLocTypeTopField)
		w.WriteUE(v.ChromaSampleLocTypeBottomField)
	}
	w.WriteFlag(v.TimingInfoPresent)
	if v.TimingInfoPresent {
		w.WriteBits(v.NumUnitsInTick, 32)
		w.WriteBits(v.TimeScale, 32)
		w.WriteFlag(v.FixedFrameRate)
	}
	for _, h := range []*HRD{v.NalHRD, v.VclHRD} {
		w.WriteFlag(h != nil)
		if h != nil {
			if err := writeHRD(w, h); err != nil {
				return err
			}
		}
	}
	if v.NalHRD != nil || v.VclHRD != nil {
		w.WriteFlag(v.LowDelayHRD)
	}
	w.WriteFlag(v.PicStructPresent)
	w.WriteFlag(v.BitstreamRestriction)
	if v.BitstreamRestriction {
		w.WriteFlag(v.MotionVectorsOverPicBoundaries)
		w.WriteUE(v.MaxBytesPerPicDenom)
		w.WriteUE(v.MaxBitsPerMbDenom)
		w.WriteUE(v.Log2MaxMvLengthHorizontal)
		w.WriteUE(v.Log2MaxMvLengthVertical)
		w.WriteUE(v.MaxNumReorderFrames)
		w.WriteUE(v.MaxDecFrameBuffering)
	}
	return nil
}
