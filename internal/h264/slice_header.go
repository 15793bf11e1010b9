package h264

import (
	"github.com/pkg/errors"

	"github.com/deepteams/vcodec/internal/bitio"
	"github.com/deepteams/vcodec/internal/codecerr"
)

// SliceType is slice_type modulo 5.
type SliceType uint8

const (
	SliceP  SliceType = 0
	SliceB  SliceType = 1
	SliceI  SliceType = 2
	SliceSP SliceType = 3
	SliceSI SliceType = 4
)

func (t SliceType) String() string {
	switch t {
	case SliceP:
		return "P"
	case SliceB:
		return "B"
	case SliceI:
		return "I"
	case SliceSP:
		return "SP"
	case SliceSI:
		return "SI"
	}
	return "?"
}

// IsIntra reports whether the slice carries only intra macroblocks.
func (t SliceType) IsIntra() bool { return t == SliceI || t == SliceSI }

// RefPicListModification is one modification_of_pic_nums_idc entry.
type RefPicListModification struct {
	Idc uint32 // 0..2; 3 terminates and is not stored
	// AbsDiffPicNumMinus1 for idc 0/1, LongTermPicNum for idc 2.
	Value uint32
}

// WeightEntry holds explicit weights for one reference index.
type WeightEntry struct {
	LumaFlag     bool
	LumaWeight   int32
	LumaOffset   int32
	ChromaFlag   bool
	ChromaWeight [2]int32
	ChromaOffset [2]int32
}

// PredWeightTable is pred_weight_table().
type PredWeightTable struct {
	LumaLog2Denom   uint32
	ChromaLog2Denom uint32
	L0, L1          []WeightEntry
}

// MMCO is one memory_management_control_operation.
type MMCO struct {
	Op                        uint32
	DifferenceOfPicNumsMinus1 uint32
	LongTermPicNum            uint32
	LongTermFrameIdx          uint32
	MaxLongTermFrameIdxPlus1  uint32
}

// DecRefPicMarking is dec_ref_pic_marking().
type DecRefPicMarking struct {
	NoOutputOfPriorPics bool
	LongTermReference   bool
	Adaptive            bool
	Ops                 []MMCO
}

// SliceHeader is slice_header().
type SliceHeader struct {
	FirstMbInSlice uint32
	RawSliceType   uint32
	Type           SliceType
	PPSID          uint32
	ColourPlaneID  uint32
	FrameNum       uint32
	FieldPic       bool
	BottomField    bool
	IDRPicID       uint32

	PicOrderCntLsb         uint32
	DeltaPicOrderCntBottom int32
	DeltaPicOrderCnt       [2]int32
	RedundantPicCnt        uint32

	DirectSpatialMVPred      bool
	NumRefIdxActiveOverride  bool
	NumRefIdxL0ActiveMinus1  uint32
	NumRefIdxL1ActiveMinus1  uint32
	RefPicListModificationL0 []RefPicListModification
	RefPicListModificationL1 []RefPicListModification
	ModifyL0, ModifyL1       bool
	PredWeight               *PredWeightTable
	Marking                  *DecRefPicMarking
	CabacInitIdc             uint32
	SliceQPDelta             int32
	SPForSwitch              bool
	SliceQSDelta             int32
	DisableDeblockingFilter  uint32
	SliceAlphaC0OffsetDiv2   int32
	SliceBetaOffsetDiv2      int32
	SliceGroupChangeCycle    uint32
}

// QP returns SliceQPY.
func (h *SliceHeader) QP(pps *PPS) int { return pps.InitQP() + int(h.SliceQPDelta) }

func (h *SliceHeader) hasRefLists() bool { return !h.Type.IsIntra() }

func sliceGroupChangeCycleBits(sps *SPS, pps *PPS) int {
	rate := int(pps.SliceGroupChangeRateMinus1) + 1
	size := sps.PicSizeInMapUnits()
	// Ceil(Log2(size/rate + 1)) without fractions.
	k := 0
	for (1<<k)*rate < size+rate {
		k++
	}
	return k
}

func usesChangeCycle(pps *PPS) bool {
	return pps.NumSliceGroupsMinus1 > 0 && pps.SliceGroupMapType >= SliceGroupBoxOut && pps.SliceGroupMapType <= SliceGroupWipe
}

// ReadSliceHeader parses slice_header() from r, resolving the parameter sets
// through sets. On success r is positioned at the first bit of slice_data().
func ReadSliceHeader(r *bitio.Reader, nal NALHeader, sets *ParamSets) (*SliceHeader, *SPS, *PPS, error) {
	h := &SliceHeader{}
	h.FirstMbInSlice = r.ReadUE()
	h.RawSliceType = r.ReadUE()
	if h.RawSliceType > 9 {
		return nil, nil, nil, codecerr.Malformed("slice_type", int64(h.RawSliceType), "")
	}
	h.Type = SliceType(h.RawSliceType % 5)
	h.PPSID = r.ReadUE()
	if err := r.Err(); err != nil {
		return nil, nil, nil, errors.Wrap(err, "could not read slice header")
	}
	sps, pps, err := sets.Lookup(h.PPSID)
	if err != nil {
		return nil, nil, nil, errors.Wrap(err, "could not read slice header")
	}
	if err := h.readRest(r, nal, sps, pps); err != nil {
		return nil, nil, nil, errors.Wrap(err, "could not read slice header")
	}
	return h, sps, pps, nil
}

func (h *SliceHeader) readRest(r *bitio.Reader, nal NALHeader, sps *SPS, pps *PPS) error {
	if nal.IsIDR() && h.Type != SliceI && h.Type != SliceSI {
		return codecerr.Malformed("slice_type", int64(h.RawSliceType), "IDR slice must be intra")
	}
	if int(h.FirstMbInSlice) >= sps.MbWidth()*sps.MbHeight() {
		return codecerr.Malformed("first_mb_in_slice", int64(h.FirstMbInSlice), "outside picture")
	}
	if sps.SeparateColourPlane {
		h.ColourPlaneID = r.ReadBits(2)
	}
	h.FrameNum = r.ReadBits(int(sps.Log2MaxFrameNumMinus4) + 4)
	if !sps.FrameMbsOnly {
		if h.FieldPic = r.ReadFlag(); h.FieldPic {
			h.BottomField = r.ReadFlag()
		}
	}
	if nal.IsIDR() {
		h.IDRPicID = r.ReadUE()
		if err := codecerr.CheckRange("idr_pic_id", int64(h.IDRPicID), 0, 65535); err != nil {
			return err
		}
	}
	switch sps.PicOrderCntType {
	case 0:
		h.PicOrderCntLsb = r.ReadBits(int(sps.Log2MaxPicOrderCntLsbMinus4) + 4)
		if pps.BottomFieldPicOrderPresent && !h.FieldPic {
			h.DeltaPicOrderCntBottom = r.ReadSE()
		}
	case 1:
		if !sps.DeltaPicOrderAlwaysZero {
			h.DeltaPicOrderCnt[0] = r.ReadSE()
			if pps.BottomFieldPicOrderPresent && !h.FieldPic {
				h.DeltaPicOrderCnt[1] = r.ReadSE()
			}
		}
	}
	if pps.RedundantPicCntPresent {
		h.RedundantPicCnt = r.ReadUE()
		if err := codecerr.CheckRange("redundant_pic_cnt", int64(h.RedundantPicCnt), 0, 127); err != nil {
			return err
		}
	}
	if h.Type == SliceB {
		h.DirectSpatialMVPred = r.ReadFlag()
	}
	h.NumRefIdxL0ActiveMinus1 = pps.NumRefIdxL0DefaultActiveMinus1
	h.NumRefIdxL1ActiveMinus1 = pps.NumRefIdxL1DefaultActiveMinus1
	if h.hasRefLists() {
		if h.NumRefIdxActiveOverride = r.ReadFlag(); h.NumRefIdxActiveOverride {
			h.NumRefIdxL0ActiveMinus1 = r.ReadUE()
			if h.Type == SliceB {
				h.NumRefIdxL1ActiveMinus1 = r.ReadUE()
			}
		}
		maxRef := int64(15)
		if h.FieldPic {
			maxRef = 31
		}
		if err := codecerr.CheckRange("num_ref_idx_l0_active_minus1", int64(h.NumRefIdxL0ActiveMinus1), 0, maxRef); err != nil {
			return err
		}
		if err := codecerr.CheckRange("num_ref_idx_l1_active_minus1", int64(h.NumRefIdxL1ActiveMinus1), 0, maxRef); err != nil {
			return err
		}
		var err error
		if h.ModifyL0, h.RefPicListModificationL0, err = readRefPicListModification(r); err != nil {
			return err
		}
		if h.Type == SliceB {
			if h.ModifyL1, h.RefPicListModificationL1, err = readRefPicListModification(r); err != nil {
				return err
			}
		}
	}
	if (pps.WeightedPred && (h.Type == SliceP || h.Type == SliceSP)) || (pps.WeightedBipredIdc == 1 && h.Type == SliceB) {
		var err error
		if h.PredWeight, err = h.readPredWeightTable(r, sps); err != nil {
			return err
		}
	}
	if nal.RefIdc != 0 {
		var err error
		if h.Marking, err = readDecRefPicMarking(r, nal.IsIDR()); err != nil {
			return err
		}
	}
	if pps.EntropyCodingMode && !h.Type.IsIntra() {
		h.CabacInitIdc = r.ReadUE()
		if err := codecerr.CheckRange("cabac_init_idc", int64(h.CabacInitIdc), 0, 2); err != nil {
			return err
		}
	}
	h.SliceQPDelta = r.ReadSE()
	if qp := h.QP(pps); qp < 0 || qp > 51 {
		return codecerr.Malformed("slice_qp_delta", int64(h.SliceQPDelta), "SliceQPY %d out of range", qp)
	}
	if h.Type == SliceSP || h.Type == SliceSI {
		if h.Type == SliceSP {
			h.SPForSwitch = r.ReadFlag()
		}
		h.SliceQSDelta = r.ReadSE()
	}
	if pps.DeblockingFilterControl {
		h.DisableDeblockingFilter = r.ReadUE()
		if err := codecerr.CheckRange("disable_deblocking_filter_idc", int64(h.DisableDeblockingFilter), 0, 2); err != nil {
			return err
		}
		if h.DisableDeblockingFilter != 1 {
			h.SliceAlphaC0OffsetDiv2 = r.ReadSE()
			h.SliceBetaOffsetDiv2 = r.ReadSE()
			if err := codecerr.CheckRange("slice_alpha_c0_offset_div2", int64(h.SliceAlphaC0OffsetDiv2), -6, 6); err != nil {
				return err
			}
			if err := codecerr.CheckRange("slice_beta_offset_div2", int64(h.SliceBetaOffsetDiv2), -6, 6); err != nil {
				return err
			}
		}
	}
	if usesChangeCycle(pps) {
		h.SliceGroupChangeCycle = r.ReadBits(sliceGroupChangeCycleBits(sps, pps))
	}
	return r.Err()
}

func readRefPicListModification(r *bitio.Reader) (bool, []RefPicListModification, error) {
	if !r.ReadFlag() {
		return false, nil, nil
	}
	var mods []RefPicListModification
	for {
		idc := r.ReadUE()
		if idc == 3 {
			break
		}
		if idc > 3 {
			return false, nil, codecerr.Malformed("modification_of_pic_nums_idc", int64(idc), "")
		}
		if len(mods) > 32 || r.Err() != nil {
			return false, nil, errors.Wrap(codecerr.Malformed("modification_of_pic_nums_idc", int64(idc), "unterminated list"), "could not read ref_pic_list_modification")
		}
		mods = append(mods, RefPicListModification{Idc: idc, Value: r.ReadUE()})
	}
	return true, mods, r.Err()
}

func (h *SliceHeader) readPredWeightTable(r *bitio.Reader, sps *SPS) (*PredWeightTable, error) {
	t := &PredWeightTable{}
	t.LumaLog2Denom = r.ReadUE()
	if err := codecerr.CheckRange("luma_log2_weight_denom", int64(t.LumaLog2Denom), 0, 7); err != nil {
		return nil, err
	}
	chroma := sps.ChromaArrayType() != 0
	if chroma {
		t.ChromaLog2Denom = r.ReadUE()
		if err := codecerr.CheckRange("chroma_log2_weight_denom", int64(t.ChromaLog2Denom), 0, 7); err != nil {
			return nil, err
		}
	}
	read := func(n uint32) ([]WeightEntry, error) {
		es := make([]WeightEntry, n+1)
		for i := range es {
			e := &es[i]
			e.LumaWeight = 1 << t.LumaLog2Denom
			if e.LumaFlag = r.ReadFlag(); e.LumaFlag {
				e.LumaWeight = r.ReadSE()
				e.LumaOffset = r.ReadSE()
				if e.LumaWeight < -128 || e.LumaWeight > 127 || e.LumaOffset < -128 || e.LumaOffset > 127 {
					return nil, codecerr.Malformed("luma_weight", int64(e.LumaWeight), "")
				}
			}
			e.ChromaWeight = [2]int32{1 << t.ChromaLog2Denom, 1 << t.ChromaLog2Denom}
			if !chroma {
				continue
			}
			if e.ChromaFlag = r.ReadFlag(); e.ChromaFlag {
				for j := 0; j < 2; j++ {
					e.ChromaWeight[j] = r.ReadSE()
					e.ChromaOffset[j] = r.ReadSE()
					if e.ChromaWeight[j] < -128 || e.ChromaWeight[j] > 127 || e.ChromaOffset[j] < -128 || e.ChromaOffset[j] > 127 {
						return nil, codecerr.Malformed("chroma_weight", int64(e.ChromaWeight[j]), "")
					}
				}
			}
		}
		return es, r.Err()
	}
	var err error
	if t.L0, err = read(h.NumRefIdxL0ActiveMinus1); err != nil {
		return nil, err
	}
	if h.Type == SliceB {
		if t.L1, err = read(h.NumRefIdxL1ActiveMinus1); err != nil {
			return nil, err
		}
	}
	return t, nil
}

func readDecRefPicMarking(r *bitio.Reader, idr bool) (*DecRefPicMarking, error) {
	m := &DecRefPicMarking{}
	if idr {
		m.NoOutputOfPriorPics = r.ReadFlag()
		m.LongTermReference = r.ReadFlag()
		return m, r.Err()
	}
	if m.Adaptive = r.ReadFlag(); !m.Adaptive {
		return m, r.Err()
	}
	for {
		op := MMCO{Op: r.ReadUE()}
		if op.Op == 0 {
			break
		}
		if op.Op > 6 {
			return nil, codecerr.Malformed("memory_management_control_operation", int64(op.Op), "")
		}
		if len(m.Ops) > 66 || r.Err() != nil {
			return nil, codecerr.Malformed("memory_management_control_operation", int64(op.Op), "unterminated list")
		}
		if op.Op == 1 || op.Op == 3 {
			op.DifferenceOfPicNumsMinus1 = r.ReadUE()
		}
		if op.Op == 2 {
			op.LongTermPicNum = r.ReadUE()
		}
		if op.Op == 3 || op.Op == 6 {
			op.LongTermFrameIdx = r.ReadUE()
		}
		if op.Op == 4 {
			op.MaxLongTermFrameIdxPlus1 = r.ReadUE()
		}
		m.Ops = append(m.Ops, op)
	}
	return m, r.Err()
}

// Write serialises the header in the field order ReadSliceHeader expects.
func (h *SliceHeader) Write(w *bitio.Writer, nal NALHeader, sps *SPS, pps *PPS) error {
	w.WriteUE(h.FirstMbInSlice)
	raw := h.RawSliceType
	if raw%5 != uint32(h.Type) {
		raw = uint32(h.Type)
	}
	w.WriteUE(raw)
	w.WriteUE(h.PPSID)
	if sps.SeparateColourPlane {
		w.WriteBits(h.ColourPlaneID, 2)
	}
	w.WriteBits(h.FrameNum, int(sps.Log2MaxFrameNumMinus4)+4)
	if !sps.FrameMbsOnly {
		w.WriteFlag(h.FieldPic)
		if h.FieldPic {
			w.WriteFlag(h.BottomField)
		}
	}
	if nal.IsIDR() {
		w.WriteUE(h.IDRPicID)
	}
	switch sps.PicOrderCntType {
	case 0:
		w.WriteBits(h.PicOrderCntLsb, int(sps.Log2MaxPicOrderCntLsbMinus4)+4)
		if pps.BottomFieldPicOrderPresent && !h.FieldPic {
			w.WriteSE(h.DeltaPicOrderCntBottom)
		}
	case 1:
		if !sps.DeltaPicOrderAlwaysZero {
			w.WriteSE(h.DeltaPicOrderCnt[0])
			if pps.BottomFieldPicOrderPresent && !h.FieldPic {
				w.WriteSE(h.DeltaPicOrderCnt[1])
			}
		}
	}
	if pps.RedundantPicCntPresent {
		w.WriteUE(h.RedundantPicCnt)
	}
	if h.Type == SliceB {
		w.WriteFlag(h.DirectSpatialMVPred)
	}
	if h.hasRefLists() {
		w.WriteFlag(h.NumRefIdxActiveOverride)
		if h.NumRefIdxActiveOverride {
			w.WriteUE(h.NumRefIdxL0ActiveMinus1)
			if h.Type == SliceB {
				w.WriteUE(h.NumRefIdxL1ActiveMinus1)
			}
		}
		writeRefPicListModification(w, h.ModifyL0, h.RefPicListModificationL0)
		if h.Type == SliceB {
			writeRefPicListModification(w, h.ModifyL1, h.RefPicListModificationL1)
		}
	}
	if (pps.WeightedPred && (h.Type == SliceP || h.Type == SliceSP)) || (pps.WeightedBipredIdc == 1 && h.Type == SliceB) {
		if h.PredWeight == nil {
			return codecerr.Malformed("pred_weight_table", 0, "missing")
		}
		h.writePredWeightTable(w, sps)
	}
	if nal.RefIdc != 0 {
		m := h.Marking
		if m == nil {
			m = &DecRefPicMarking{}
		}
		writeDecRefPicMarking(w, m, nal.IsIDR())
	}
	if pps.EntropyCodingMode && !h.Type.IsIntra() {
		w.WriteUE(h.CabacInitIdc)
	}
	w.WriteSE(h.SliceQPDelta)
	if h.Type == SliceSP || h.Type == SliceSI {
		if h.Type == SliceSP {
			w.WriteFlag(h.SPForSwitch)
		}
		w.WriteSE(h.SliceQSDelta)
	}
	if pps.DeblockingFilterControl {
		w.WriteUE(h.DisableDeblockingFilter)
		if h.DisableDeblockingFilter != 1 {
			w.WriteSE(h.SliceAlphaC0OffsetDiv2)
			w.WriteSE(h.SliceBetaOffsetDiv2)
		}
	}
	if usesChangeCycle(pps) {
		w.WriteBits(h.SliceGroupChangeCycle, sliceGroupChangeCycleBits(sps, pps))
	}
	return nil
}

func writeRefPicListModification(w *bitio.Writer, flag bool, mods []RefPicListModification) {
	w.WriteFlag(flag)
	if !flag {
		return
	}
	for _, m := range mods {
		w.WriteUE(m.Idc)
		w.WriteUE(m.Value)
	}
	w.WriteUE(3)
}

func (h *SliceHeader) writePredWeightTable(w *bitio.Writer, sps *SPS) {
	t := h.PredWeight
	w.WriteUE(t.LumaLog2Denom)
	chroma := sps.ChromaArrayType() != 0
	if chroma {
		w.WriteUE(t.ChromaLog2Denom)
	}
	write := func(es []WeightEntry, n uint32) {
		for i := 0; i <= int(n); i++ {
			var e WeightEntry
			if i < len(es) {
				e = es[i]
			}
			w.WriteFlag(e.LumaFlag)
			if e.LumaFlag {
				w.WriteSE(e.LumaWeight)
				w.WriteSE(e.LumaOffset)
			}
			if !chroma {
				continue
			}
			w.WriteFlag(e.ChromaFlag)
			if e.ChromaFlag {
				for j := 0; j < 2; j++ {
					w.WriteSE(e.ChromaWeight[j])
					w.WriteSE(e.ChromaOffset[j])
				}
			}
		}
	}
	write(t.L0, h.NumRefIdxL0ActiveMinus1)
	if h.Type == SliceB {
		write(t.L1, h.NumRefIdxL1ActiveMinus1)
	}
}

func writeDecRefPicMarking(w *bitio.Writer, m *DecRefPicMarking, idr bool) {
	if idr {
		w.WriteFlag(m.NoOutputOfPriorPics)
		w.WriteFlag(m.LongTermReference)
		return
	}
	w.WriteFlag(m.Adaptive)
	if !m.Adaptive {
		return
	}
	for _, op := range m.Ops {
		w.WriteUE(op.Op)
		if op.Op == 1 || op.Op == 3 {
			w.WriteUE(op.DifferenceOfPicNumsMinus1)
		}
		if op.Op == 2 {
			w.WriteUE(op.LongTermPicNum)
		}
		if op.Op == 3 || op.Op == 6 {
			w.WriteUE(op.LongTermFrameIdx)
		}
		if op.Op == 4 {
			w.WriteUE(op.MaxLongTermFrameIdxPlus1)
		}
	}
	w.WriteUE(0)
}
