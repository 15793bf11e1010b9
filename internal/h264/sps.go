package h264

import (
	"github.com/pkg/errors"

	"github.com/deepteams/vcodec/internal/bitio"
	"github.com/deepteams/vcodec/internal/codecerr"
)

// SPS is seq_parameter_set_data().
type SPS struct {
	ProfileIdc      uint8
	ConstraintFlags uint8 // constraint_set0..5 in bits 7..2, reserved_zero_2bits in 1..0
	LevelIdc        uint8
	ID              uint32

	ChromaFormatIdc             uint32
	SeparateColourPlane         bool
	BitDepthLumaMinus8          uint32
	BitDepthChromaMinus8        uint32
	QpprimeYZeroTransformBypass bool
	ScalingMatrixPresent        bool
	ScalingLists                []ScalingList

	Log2MaxFrameNumMinus4       uint32
	PicOrderCntType             uint32
	Log2MaxPicOrderCntLsbMinus4 uint32
	DeltaPicOrderAlwaysZero     bool
	OffsetForNonRefPic          int32
	OffsetForTopToBottomField   int32
	OffsetForRefFrame           []int32

	MaxNumRefFrames           uint32
	GapsInFrameNumAllowed     bool
	PicWidthInMbsMinus1       uint32
	PicHeightInMapUnitsMinus1 uint32
	FrameMbsOnly              bool
	MbAdaptiveFrameField      bool
	Direct8x8Inference        bool

	FrameCropping                            bool
	CropLeft, CropRight, CropTop, CropBottom uint32

	VUIPresent bool
	VUI        *VUI
}

// hasChromaInfo reports whether profile_idc carries the high profile fields.
func hasChromaInfo(profile uint8) bool {
	switch profile {
	case 100, 110, 122, 244, 44, 83, 86, 118, 128, 138, 139, 134, 135:
		return true
	}
	return false
}

// NewSPS returns an SPS with the inferred defaults of a 4:2:0 stream.
func NewSPS() *SPS {
	return &SPS{ChromaFormatIdc: 1, FrameMbsOnly: true}
}

// ChromaArrayType is 0 for monochrome or separate colour planes.
func (s *SPS) ChromaArrayType() int {
	if s.SeparateColourPlane {
		return 0
	}
	return int(s.ChromaFormatIdc)
}

func (s *SPS) MbWidth() int  { return int(s.PicWidthInMbsMinus1) + 1 }
func (s *SPS) MbHeight() int { return (int(s.PicHeightInMapUnitsMinus1) + 1) * s.frameHeightFactor() }

func (s *SPS) frameHeightFactor() int {
	if s.FrameMbsOnly {
		return 1
	}
	return 2
}

// PicSizeInMapUnits is the number of slice group map units.
func (s *SPS) PicSizeInMapUnits() int {
	return s.MbWidth() * (int(s.PicHeightInMapUnitsMinus1) + 1)
}

func (s *SPS) MaxFrameNum() int { return 1 << (s.Log2MaxFrameNumMinus4 + 4) }

// Width and Height return the cropped luma dimensions.
func (s *SPS) Width() int {
	cx := 1
	if s.ChromaArrayType() == 1 || s.ChromaArrayType() == 2 {
		cx = 2
	}
	return s.MbWidth()*16 - cx*int(s.CropLeft+s.CropRight)
}

func (s *SPS) Height() int {
	cy := s.frameHeightFactor()
	if s.ChromaArrayType() == 1 {
		cy *= 2
	}
	return s.MbHeight()*16 - cy*int(s.CropTop+s.CropBottom)
}

// Crop returns the luma crop offsets (left, top) in samples.
func (s *SPS) Crop() (x, y int) {
	cx, cy := 1, s.frameHeightFactor()
	if s.ChromaArrayType() == 1 || s.ChromaArrayType() == 2 {
		cx = 2
	}
	if s.ChromaArrayType() == 1 {
		cy *= 2
	}
	return cx * int(s.CropLeft), cy * int(s.CropTop)
}

// ScalingMatrix resolves the sequence-level scaling matrix.
func (s *SPS) ScalingMatrix() ScalingMatrix {
	if !s.ScalingMatrixPresent {
		return FlatScalingMatrix()
	}
	return resolveLists(s.ScalingLists, nil)
}

// ParseSPS parses an SPS RBSP (NAL header excluded).
func ParseSPS(rbsp []byte) (*SPS, error) {
	r := bitio.NewReader(rbsp)
	s, err := readSPS(r)
	if err != nil {
		return nil, errors.Wrap(err, "could not parse SPS")
	}
	return s, nil
}

func readSPS(r *bitio.Reader) (*SPS, error) {
	s := NewSPS()
	s.ProfileIdc = uint8(r.ReadBits(8))
	s.ConstraintFlags = uint8(r.ReadBits(8))
	s.LevelIdc = uint8(r.ReadBits(8))
	s.ID = r.ReadUE()
	if err := codecerr.CheckRange("seq_parameter_set_id", int64(s.ID), 0, 31); err != nil {
		return nil, err
	}
	if hasChromaInfo(s.ProfileIdc) {
		s.ChromaFormatIdc = r.ReadUE()
		if err := codecerr.CheckRange("chroma_format_idc", int64(s.ChromaFormatIdc), 0, 3); err != nil {
			return nil, err
		}
		if s.ChromaFormatIdc == 3 {
			s.SeparateColourPlane = r.ReadFlag()
		}
		s.BitDepthLumaMinus8 = r.ReadUE()
		s.BitDepthChromaMinus8 = r.ReadUE()
		if err := codecerr.CheckRange("bit_depth_luma_minus8", int64(s.BitDepthLumaMinus8), 0, 6); err != nil {
			return nil, err
		}
		if err := codecerr.CheckRange("bit_depth_chroma_minus8", int64(s.BitDepthChromaMinus8), 0, 6); err != nil {
			return nil, err
		}
		s.QpprimeYZeroTransformBypass = r.ReadFlag()
		if s.ScalingMatrixPresent = r.ReadFlag(); s.ScalingMatrixPresent {
			n := 8
			if s.ChromaFormatIdc == 3 {
				n = 12
			}
			var err error
			if s.ScalingLists, err = readScalingLists(r, n); err != nil {
				return nil, err
			}
		}
	}
	s.Log2MaxFrameNumMinus4 = r.ReadUE()
	if err := codecerr.CheckRange("log2_max_frame_num_minus4", int64(s.Log2MaxFrameNumMinus4), 0, 12); err != nil {
		return nil, err
	}
	s.PicOrderCntType = r.ReadUE()
	switch s.PicOrderCntType {
	case 0:
		s.Log2MaxPicOrderCntLsbMinus4 = r.ReadUE()
		if err := codecerr.CheckRange("log2_max_pic_order_cnt_lsb_minus4", int64(s.Log2MaxPicOrderCntLsbMinus4), 0, 12); err != nil {
			return nil, err
		}
	case 1:
		s.DeltaPicOrderAlwaysZero = r.ReadFlag()
		s.OffsetForNonRefPic = r.ReadSE()
		s.OffsetForTopToBottomField = r.ReadSE()
		n := r.ReadUE()
		if err := codecerr.CheckRange("num_ref_frames_in_pic_order_cnt_cycle", int64(n), 0, 255); err != nil {
			return nil, err
		}
		s.OffsetForRefFrame = make([]int32, n)
		for i := range s.OffsetForRefFrame {
			s.OffsetForRefFrame[i] = r.ReadSE()
		}
	case 2:
	default:
		return nil, codecerr.Malformed("pic_order_cnt_type", int64(s.PicOrderCntType), "")
	}
	s.MaxNumRefFrames = r.ReadUE()
	s.GapsInFrameNumAllowed = r.ReadFlag()
	s.PicWidthInMbsMinus1 = r.ReadUE()
	s.PicHeightInMapUnitsMinus1 = r.ReadUE()
	if s.PicWidthInMbsMinus1 > 1023 || s.PicHeightInMapUnitsMinus1 > 1023 {
		return nil, codecerr.Malformed("pic_width_in_mbs_minus1", int64(s.PicWidthInMbsMinus1), "picture too large")
	}
	if s.FrameMbsOnly = r.ReadFlag(); !s.FrameMbsOnly {
		s.MbAdaptiveFrameField = r.ReadFlag()
	}
	s.Direct8x8Inference = r.ReadFlag()
	if s.FrameCropping = r.ReadFlag(); s.FrameCropping {
		s.CropLeft = r.ReadUE()
		s.CropRight = r.ReadUE()
		s.CropTop = r.ReadUE()
		s.CropBottom = r.ReadUE()
	}
	if s.VUIPresent = r.ReadFlag(); s.VUIPresent {
		var err error
		if s.VUI, err = readVUI(r); err != nil {
			return nil, errors.Wrap(err, "could not read VUI")
		}
	}
	if err := r.Err(); err != nil {
		return nil, err
	}
	if s.FrameCropping && (s.Width() <= 0 || s.Height() <= 0) {
		return nil, codecerr.Malformed("frame_crop_offset", int64(s.CropRight+s.CropLeft), "crop exceeds picture")
	}
	return s, nil
}

// Marshal serialises the SPS as an RBSP including trailing bits.
func (s *SPS) Marshal() ([]byte, error) {
	w := bitio.NewWriter(32)
	if err := s.write(w); err != nil {
		return nil, errors.Wrap(err, "could not write SPS")
	}
	w.WriteTrailingBits()
	return w.Bytes(), nil
}

func (s *SPS) write(w *bitio.Writer) error {
	w.WriteBits(uint32(s.ProfileIdc), 8)
	w.WriteBits(uint32(s.ConstraintFlags), 8)
	w.WriteBits(uint32(s.LevelIdc), 8)
	w.WriteUE(s.ID)
	if hasChromaInfo(s.ProfileIdc) {
		w.WriteUE(s.ChromaFormatIdc)
		if s.ChromaFormatIdc == 3 {
			w.WriteFlag(s.SeparateColourPlane)
		}
		w.WriteUE(s.BitDepthLumaMinus8)
		w.WriteUE(s.BitDepthChromaMinus8)
		w.WriteFlag(s.QpprimeYZeroTransformBypass)
		w.WriteFlag(s.ScalingMatrixPresent)
		if s.ScalingMatrixPresent {
			n := 8
			if s.ChromaFormatIdc == 3 {
				n = 12
			}
			lists := make([]ScalingList, n)
			copy(lists, s.ScalingLists)
			if err := writeScalingLists(w, lists); err != nil {
				return err
			}
		}
	}
	w.WriteUE(s.Log2MaxFrameNumMinus4)
	w.WriteUE(s.PicOrderCntType)
	switch s.PicOrderCntType {
	case 0:
		w.WriteUE(s.Log2MaxPicOrderCntLsbMinus4)
	case 1:
		w.WriteFlag(s.DeltaPicOrderAlwaysZero)
		w.WriteSE(s.OffsetForNonRefPic)
		w.WriteSE(s.OffsetForTopToBottomField)
		w.WriteUE(uint32(len(s.OffsetForRefFrame)))
		for _, o := range s.OffsetForRefFrame {
			w.WriteSE(o)
		}
	}
	w.WriteUE(s.MaxNumRefFrames)
	w.WriteFlag(s.GapsInFrameNumAllowed)
	w.WriteUE(s.PicWidthInMbsMinus1)
	w.WriteUE(s.PicHeightInMapUnitsMinus1)
	w.WriteFlag(s.FrameMbsOnly)
	if !s.FrameMbsOnly {
		w.WriteFlag(s.MbAdaptiveFrameField)
	}
	w.WriteFlag(s.Direct8x8Inference)
	w.WriteFlag(s.FrameCropping)
	if s.FrameCropping {
		w.WriteUE(s.CropLeft)
		w.WriteUE(s.CropRight)
		w.WriteUE(s.CropTop)
		w.WriteUE(s.CropBottom)
	}
	w.WriteFlag(s.VUIPresent && s.VUI != nil)
	if s.VUIPresent && s.VUI != nil {
		return writeVUI(w, s.VUI)
	}
	return nil
}
