package h264

import "github.com/deepteams/vcodec/internal/codecerr"

// ParamSets stores the active SPS and PPS tables keyed by id. A later set
// with the same id replaces the earlier one.
type ParamSets struct {
	sps map[uint32]*SPS
	pps map[uint32]*PPS
}

func NewParamSets() *ParamSets {
	return &ParamSets{sps: make(map[uint32]*SPS), pps: make(map[uint32]*PPS)}
}

func (p *ParamSets) PutSPS(s *SPS) { p.sps[s.ID] = s }
func (p *ParamSets) PutPPS(s *PPS) { p.pps[s.ID] = s }

// SPS returns the stored SPS or a SyntaxError for an unknown id.
func (p *ParamSets) SPS(id uint32) (*SPS, error) {
	s, ok := p.sps[id]
	if !ok {
		return nil, codecerr.Malformed("seq_parameter_set_id", int64(id), "unknown SPS")
	}
	return s, nil
}

// PPS returns the stored PPS or a SyntaxError for an unknown id.
func (p *ParamSets) PPS(id uint32) (*PPS, error) {
	s, ok := p.pps[id]
	if !ok {
		return nil, codecerr.Malformed("pic_parameter_set_id", int64(id), "unknown PPS")
	}
	return s, nil
}

// Lookup resolves a PPS id and the SPS it references.
func (p *ParamSets) Lookup(ppsID uint32) (*SPS, *PPS, error) {
	pps, err := p.PPS(ppsID)
	if err != nil {
		return nil, nil, err
	}
	sps, err := p.SPS(pps.SPSID)
	if err != nil {
		return nil, nil, err
	}
	return sps, pps, nil
}
