package h264

import (
	"math/bits"

	"github.com/pkg/errors"

	"github.com/deepteams/vcodec/internal/bitio"
	"github.com/deepteams/vcodec/internal/codecerr"
)

// Slice group map types.
const (
	SliceGroupInterleaved = 0
	SliceGroupDispersed   = 1
	SliceGroupForeground  = 2
	SliceGroupBoxOut      = 3
	SliceGroupRaster      = 4
	SliceGroupWipe        = 5
	SliceGroupExplicit    = 6
)

// PPS is pic_parameter_set_rbsp().
type PPS struct {
	ID                         uint32
	SPSID                      uint32
	EntropyCodingMode          bool // CABAC when set
	BottomFieldPicOrderPresent bool

	NumSliceGroupsMinus1       uint32
	SliceGroupMapType          uint32
	RunLengthMinus1            []uint32
	TopLeft                    []uint32
	BottomRight                []uint32
	SliceGroupChangeDirection  bool
	SliceGroupChangeRateMinus1 uint32
	PicSizeInMapUnitsMinus1    uint32
	SliceGroupID               []uint32

	NumRefIdxL0DefaultActiveMinus1 uint32
	NumRefIdxL1DefaultActiveMinus1 uint32
	WeightedPred                   bool
	WeightedBipredIdc              uint32
	PicInitQPMinus26               int32
	PicInitQSMinus26               int32
	ChromaQPIndexOffset            int32
	DeblockingFilterControl        bool
	ConstrainedIntraPred           bool
	RedundantPicCntPresent         bool

	// Extension holds the fields present only when more RBSP data follows
	// redundant_pic_cnt_present_flag.
	Extension                 bool
	Transform8x8Mode          bool
	ScalingMatrixPresent      bool
	ScalingLists              []ScalingList
	SecondChromaQPIndexOffset int32
}

// InitQP returns 26 + pic_init_qp_minus26.
func (p *PPS) InitQP() int { return 26 + int(p.PicInitQPMinus26) }

// ChromaQPOffset returns the offset for Cb (0) or Cr (1).
func (p *PPS) ChromaQPOffset(c int) int {
	if c == 1 && p.Extension {
		return int(p.SecondChromaQPIndexOffset)
	}
	return int(p.ChromaQPIndexOffset)
}

// ScalingMatrix resolves the picture-level matrix on top of the SPS one.
func (p *PPS) ScalingMatrix(sps *SPS) ScalingMatrix {
	if !p.ScalingMatrixPresent {
		return sps.ScalingMatrix()
	}
	if !sps.ScalingMatrixPresent {
		return resolveLists(p.ScalingLists, nil)
	}
	seq := sps.ScalingMatrix()
	return resolveLists(p.ScalingLists, &seq)
}

func (p *PPS) numScalingLists(sps *SPS) int {
	n := 6
	if p.Transform8x8Mode {
		if sps.ChromaFormatIdc == 3 {
			n += 6
		} else {
			n += 2
		}
	}
	return n
}

func sliceGroupIDBits(numGroupsMinus1 uint32) int {
	return bits.Len32(numGroupsMinus1)
}

// ParsePPS parses a PPS RBSP. The referenced SPS must already be stored in
// sets because the scaling list count depends on chroma_format_idc.
func ParsePPS(rbsp []byte, sets *ParamSets) (*PPS, error) {
	r := bitio.NewReader(rbsp)
	p, err := readPPS(r, sets)
	if err != nil {
		return nil, errors.Wrap(err, "could not parse PPS")
	}
	return p, nil
}

func readPPS(r *bitio.Reader, sets *ParamSets) (*PPS, error) {
	p := &PPS{}
	p.ID = r.ReadUE()
	if err := codecerr.CheckRange("pic_parameter_set_id", int64(p.ID), 0, 255); err != nil {
		return nil, err
	}
	p.SPSID = r.ReadUE()
	if err := codecerr.CheckRange("seq_parameter_set_id", int64(p.SPSID), 0, 31); err != nil {
		return nil, err
	}
	sps, err := sets.SPS(p.SPSID)
	if err != nil {
		return nil, err
	}
	p.EntropyCodingMode = r.ReadFlag()
	p.BottomFieldPicOrderPresent = r.ReadFlag()
	p.NumSliceGroupsMinus1 = r.ReadUE()
	if err := codecerr.CheckRange("num_slice_groups_minus1", int64(p.NumSliceGroupsMinus1), 0, 7); err != nil {
		return nil, err
	}
	if p.NumSliceGroupsMinus1 > 0 {
		if err := p.readSliceGroups(r, sps); err != nil {
			return nil, err
		}
	}
	p.NumRefIdxL0DefaultActiveMinus1 = r.ReadUE()
	p.NumRefIdxL1DefaultActiveMinus1 = r.ReadUE()
	if err := codecerr.CheckRange("num_ref_idx_l0_default_active_minus1", int64(p.NumRefIdxL0DefaultActiveMinus1), 0, 31); err != nil {
		return nil, err
	}
	if err := codecerr.CheckRange("num_ref_idx_l1_default_active_minus1", int64(p.NumRefIdxL1DefaultActiveMinus1), 0, 31); err != nil {
		return nil, err
	}
	p.WeightedPred = r.ReadFlag()
	p.WeightedBipredIdc = r.ReadBits(2)
	if p.WeightedBipredIdc == 3 {
		return nil, codecerr.Malformed("weighted_bipred_idc", 3, "")
	}
	p.PicInitQPMinus26 = r.ReadSE()
	p.PicInitQSMinus26 = r.ReadSE()
	p.ChromaQPIndexOffset = r.ReadSE()
	if err := codecerr.CheckRange("pic_init_qp_minus26", int64(p.PicInitQPMinus26), -26, 25); err != nil {
		return nil, err
	}
	if err := codecerr.CheckRange("pic_init_qs_minus26", int64(p.PicInitQSMinus26), -26, 25); err != nil {
		return nil, err
	}
	if err := codecerr.CheckRange("chroma_qp_index_offset", int64(p.ChromaQPIndexOffset), -12, 12); err != nil {
		return nil, err
	}
	p.DeblockingFilterControl = r.ReadFlag()
	p.ConstrainedIntraPred = r.ReadFlag()
	p.RedundantPicCntPresent = r.ReadFlag()
	if r.Err() == nil && r.MoreRBSPData() {
		p.Extension = true
		p.Transform8x8Mode = r.ReadFlag()
		if p.ScalingMatrixPresent = r.ReadFlag(); p.ScalingMatrixPresent {
			if p.ScalingLists, err = readScalingLists(r, p.numScalingLists(sps)); err != nil {
				return nil, err
			}
		}
		p.SecondChromaQPIndexOffset = r.ReadSE()
		if err := codecerr.CheckRange("second_chroma_qp_index_offset", int64(p.SecondChromaQPIndexOffset), -12, 12); err != nil {
			return nil, err
		}
	} else {
		p.SecondChromaQPIndexOffset = p.ChromaQPIndexOffset
	}
	return p, r.Err()
}

func (p *PPS) readSliceGroups(r *bitio.Reader, sps *SPS) error {
	p.SliceGroupMapType = r.ReadUE()
	n := int(p.NumSliceGroupsMinus1) + 1
	switch p.SliceGroupMapType {
	case SliceGroupInterleaved:
		p.RunLengthMinus1 = make([]uint32, n)
		for i := range p.RunLengthMinus1 {
			p.RunLengthMinus1[i] = r.ReadUE()
			if int(p.RunLengthMinus1[i]) >= sps.PicSizeInMapUnits() {
				return codecerr.Malformed("run_length_minus1", int64(p.RunLengthMinus1[i]), "exceeds picture size")
			}
		}
	case SliceGroupDispersed:
	case SliceGroupForeground:
		p.TopLeft = make([]uint32, n-1)
		p.BottomRight = make([]uint32, n-1)
		for i := 0; i < n-1; i++ {
			p.TopLeft[i] = r.ReadUE()
			p.BottomRight[i] = r.ReadUE()
			if p.TopLeft[i] > p.BottomRight[i] || int(p.BottomRight[i]) >= sps.PicSizeInMapUnits() {
				return codecerr.Malformed("bottom_right", int64(p.BottomRight[i]), "invalid foreground rectangle")
			}
			if p.TopLeft[i]%uint32(sps.MbWidth()) > p.BottomRight[i]%uint32(sps.MbWidth()) {
				return codecerr.Malformed("top_left", int64(p.TopLeft[i]), "invalid foreground rectangle")
			}
		}
	case SliceGroupBoxOut, SliceGroupRaster, SliceGroupWipe:
		p.SliceGroupChangeDirection = r.ReadFlag()
		p.SliceGroupChangeRateMinus1 = r.ReadUE()
		if int(p.SliceGroupChangeRateMinus1) >= sps.PicSizeInMapUnits() {
			return codecerr.Malformed("slice_group_change_rate_minus1", int64(p.SliceGroupChangeRateMinus1), "exceeds picture size")
		}
	case SliceGroupExplicit:
		p.PicSizeInMapUnitsMinus1 = r.ReadUE()
		if int(p.PicSizeInMapUnitsMinus1)+1 != sps.PicSizeInMapUnits() {
			return codecerr.Malformed("pic_size_in_map_units_minus1", int64(p.PicSizeInMapUnitsMinus1), "does not match SPS")
		}
		nb := sliceGroupIDBits(p.NumSliceGroupsMinus1)
		p.SliceGroupID = make([]uint32, p.PicSizeInMapUnitsMinus1+1)
		for i := range p.SliceGroupID {
			p.SliceGroupID[i] = r.ReadBits(nb)
			if p.SliceGroupID[i] > p.NumSliceGroupsMinus1 {
				return codecerr.Malformed("slice_group_id", int64(p.SliceGroupID[i]), "")
			}
		}
	default:
		return codecerr.Malformed("slice_group_map_type", int64(p.SliceGroupMapType), "")
	}
	return r.Err()
}

// Marshal serialises the PPS as an RBSP. sps supplies the scaling list
// count when the extension fields are present.
func (p *PPS) Marshal(sps *SPS) ([]byte, error) {
	w := bitio.NewWriter(16)
	w.WriteUE(p.ID)
	w.WriteUE(p.SPSID)
	w.WriteFlag(p.EntropyCodingMode)
	w.WriteFlag(p.BottomFieldPicOrderPresent)
	w.WriteUE(p.NumSliceGroupsMinus1)
	if p.NumSliceGroupsMinus1 > 0 {
		w.WriteUE(p.SliceGroupMapType)
		switch p.SliceGroupMapType {
		case SliceGroupInterleaved:
			for i := 0; i <= int(p.NumSliceGroupsMinus1); i++ {
				w.WriteUE(p.RunLengthMinus1[i])
			}
		case SliceGroupForeground:
			for i := 0; i < int(p.NumSliceGroupsMinus1); i++ {
				w.WriteUE(p.TopLeft[i])
				w.WriteUE(p.BottomRight[i])
			}
		case SliceGroupBoxOut, SliceGroupRaster, SliceGroupWipe:
			w.WriteFlag(p.SliceGroupChangeDirection)
			w.WriteUE(p.SliceGroupChangeRateMinus1)
		case SliceGroupExplicit:
			w.WriteUE(p.PicSizeInMapUnitsMinus1)
			nb := sliceGroupIDBits(p.NumSliceGroupsMinus1)
			for _, id := range p.SliceGroupID {
				w.WriteBits(id, nb)
			}
		}
	}
	w.WriteUE(p.NumRefIdxL0DefaultActiveMinus1)
	w.WriteUE(p.NumRefIdxL1DefaultActiveMinus1)
	w.WriteFlag(p.WeightedPred)
	w.WriteBits(p.WeightedBipredIdc, 2)
	w.WriteSE(p.PicInitQPMinus26)
	w.WriteSE(p.PicInitQSMinus26)
	w.WriteSE(p.ChromaQPIndexOffset)
	w.WriteFlag(p.DeblockingFilterControl)
	w.WriteFlag(p.ConstrainedIntraPred)
	w.WriteFlag(p.RedundantPicCntPresent)
	if p.Extension {
		w.WriteFlag(p.Transform8x8Mode)
		w.WriteFlag(p.ScalingMatrixPresent)
		if p.ScalingMatrixPresent {
			lists := make([]ScalingList, p.numScalingLists(sps))
			copy(lists, p.ScalingLists)
			if err := writeScalingLists(w, lists); err != nil {
				return nil, errors.Wrap(err, "could not write PPS")
			}
		}
		w.WriteSE(p.SecondChromaQPIndexOffset)
	}
	w.WriteTrailingBits()
	return w.Bytes(), nil
}
