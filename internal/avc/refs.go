package avc

import (
	"sort"

	"github.com/deepteams/vcodec/internal/codecerr"
	"github.com/deepteams/vcodec/internal/h264"
	"github.com/deepteams/vcodec/internal/h264/recon"
)

// refFrame is a frame marked "used for reference".
type refFrame struct {
	pic   *recon.Picture
	ltIdx int // LongTermFrameIdx when pic.LongTerm
}

// dpb holds the reference frames of a decoding session.
type dpb struct {
	refs  []*refFrame
	maxLT int // MaxLongTermFrameIdx; -1 means no long-term frame indices
}

func newDPB() *dpb { return &dpb{maxLT: -1} }

func (d *dpb) clear() {
	d.refs = d.refs[:0]
}

// picNum returns PicNum for short-term and LongTermPicNum for long-term
// frames.
func (f *refFrame) picNum(curFrameNum, maxFrameNum int) int {
	if f.pic.LongTerm {
		return f.ltIdx
	}
	if f.pic.FrameNum > curFrameNum {
		return f.pic.FrameNum - maxFrameNum
	}
	return f.pic.FrameNum
}

func (d *dpb) counts() (short, long int) {
	for _, f := range d.refs {
		if f.pic.LongTerm {
			long++
		} else {
			short++
		}
	}
	return short, long
}

func (d *dpb) remove(i int) {
	d.refs = append(d.refs[:i], d.refs[i+1:]...)
}

func (d *dpb) find(long bool, num, curFrameNum, maxFrameNum int) int {
	for i, f := range d.refs {
		if f.pic.LongTerm == long && f.picNum(curFrameNum, maxFrameNum) == num {
			return i
		}
	}
	return -1
}

// dropLongTerm unmarks the long-term frame with LongTermFrameIdx idx,
// except keep.
func (d *dpb) dropLongTerm(idx int, keep *recon.Picture) {
	for i := 0; i < len(d.refs); i++ {
		f := d.refs[i]
		if f.pic.LongTerm && f.ltIdx == idx && f.pic != keep {
			d.remove(i)
			i--
		}
	}
}

// slidingWindow removes the short-term frame with the smallest
// FrameNumWrap when the DPB is full.
func (d *dpb) slidingWindow(maxRefs, curFrameNum, maxFrameNum int) {
	if maxRefs < 1 {
		maxRefs = 1
	}
	for {
		short, long := d.counts()
		if short+long < maxRefs || short == 0 {
			return
		}
		oldest, wrap := -1, 0
		for i, f := range d.refs {
			if f.pic.LongTerm {
				continue
			}
			if n := f.picNum(curFrameNum, maxFrameNum); oldest < 0 || n < wrap {
				oldest, wrap = i, n
			}
		}
		d.remove(oldest)
	}
}

// mark applies dec_ref_pic_marking for the current reference picture and
// inserts it. It reports whether MMCO 5 was executed.
func (d *dpb) mark(cur *recon.Picture, sps *h264.SPS, nal h264.NALHeader, m *h264.DecRefPicMarking) (bool, error) {
	curNum, maxNum := cur.FrameNum, sps.MaxFrameNum()
	if nal.IsIDR() {
		d.clear()
		cur.LongTerm = m != nil && m.LongTermReference
		if cur.LongTerm {
			d.maxLT = 0
		} else {
			d.maxLT = -1
		}
		d.refs = append(d.refs, &refFrame{pic: cur})
		return false, nil
	}
	mmco5, longTerm := false, false
	if m != nil && m.Adaptive {
		for _, op := range m.Ops {
			switch op.Op {
			case 1:
				num := curNum - int(op.DifferenceOfPicNumsMinus1+1)
				i := d.find(false, num, curNum, maxNum)
				if i < 0 {
					return false, codecerr.Malformed("difference_of_pic_nums_minus1", int64(op.DifferenceOfPicNumsMinus1), "no short-term picture")
				}
				d.remove(i)
			case 2:
				i := d.find(true, int(op.LongTermPicNum), curNum, maxNum)
				if i < 0 {
					return false, codecerr.Malformed("long_term_pic_num", int64(op.LongTermPicNum), "no long-term picture")
				}
				d.remove(i)
			case 3:
				num := curNum - int(op.DifferenceOfPicNumsMinus1+1)
				i := d.find(false, num, curNum, maxNum)
				if i < 0 || int(op.LongTermFrameIdx) > d.maxLT {
					return false, codecerr.Malformed("long_term_frame_idx", int64(op.LongTermFrameIdx), "cannot assign long-term index")
				}
				f := d.refs[i]
				d.dropLongTerm(int(op.LongTermFrameIdx), f.pic)
				f.pic.LongTerm, f.ltIdx = true, int(op.LongTermFrameIdx)
			case 4:
				d.maxLT = int(op.MaxLongTermFrameIdxPlus1) - 1
				for i := 0; i < len(d.refs); i++ {
					if f := d.refs[i]; f.pic.LongTerm && f.ltIdx > d.maxLT {
						d.remove(i)
						i--
					}
				}
			case 5:
				d.clear()
				d.maxLT = -1
				mmco5 = true
			case 6:
				if int(op.LongTermFrameIdx) > d.maxLT {
					return false, codecerr.Malformed("long_term_frame_idx", int64(op.LongTermFrameIdx), "exceeds MaxLongTermFrameIdx")
				}
				d.dropLongTerm(int(op.LongTermFrameIdx), cur)
				cur.LongTerm = true
				longTerm = true
				d.refs = append(d.refs, &refFrame{pic: cur, ltIdx: int(op.LongTermFrameIdx)})
			default:
				return false, codecerr.Malformed("memory_management_control_operation", int64(op.Op), "")
			}
		}
	} else {
		d.slidingWindow(int(sps.MaxNumRefFrames), curNum, maxNum)
	}
	if !longTerm {
		cur.LongTerm = false
		d.refs = append(d.refs, &refFrame{pic: cur})
	}
	return mmco5, nil
}

// initLists builds the initial reference picture lists of a P or B slice.
func (d *dpb) initLists(t h264.SliceType, curFrameNum, curPOC, maxFrameNum int) [2][]*recon.Picture {
	var short, long []*refFrame
	for _, f := range d.refs {
		if f.pic.LongTerm {
			long = append(long, f)
		} else {
			short = append(short, f)
		}
	}
	sort.SliceStable(long, func(i, j int) bool { return long[i].ltIdx < long[j].ltIdx })
	var lists [2][]*recon.Picture
	if t != h264.SliceB {
		sort.SliceStable(short, func(i, j int) bool {
			return short[i].picNum(curFrameNum, maxFrameNum) > short[j].picNum(curFrameNum, maxFrameNum)
		})
		for _, f := range short {
			lists[0] = append(lists[0], f.pic)
		}
		for _, f := range long {
			lists[0] = append(lists[0], f.pic)
		}
		return lists
	}
	var before, after []*recon.Picture
	for _, f := range short {
		if f.pic.POC < curPOC {
			before = append(before, f.pic)
		} else {
			after = append(after, f.pic)
		}
	}
	sort.SliceStable(before, func(i, j int) bool { return before[i].POC > before[j].POC })
	sort.SliceStable(after, func(i, j int) bool { return after[i].POC < after[j].POC })
	lists[0] = append(append(lists[0], before...), after...)
	lists[1] = append(append(lists[1], after...), before...)
	for _, f := range long {
		lists[0] = append(lists[0], f.pic)
		lists[1] = append(lists[1], f.pic)
	}
	if len(lists[1]) > 1 && samePictures(lists[0], lists[1]) {
		lists[1][0], lists[1][1] = lists[1][1], lists[1][0]
	}
	return lists
}

func samePictures(a, b []*recon.Picture) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// modify applies ref_pic_list_modification to list and sizes it to n
// entries; missing entries are nil.
func (d *dpb) modify(list []*recon.Picture, mods []h264.RefPicListModification, n, curFrameNum, maxFrameNum int) ([]*recon.Picture, error) {
	out := make([]*recon.Picture, n+1)
	copy(out, list)
	pred := curFrameNum
	for idx, m := range mods {
		if idx >= n {
			return nil, codecerr.Malformed("modification_of_pic_nums_idc", int64(m.Idc), "too many modifications")
		}
		var pic *recon.Picture
		switch m.Idc {
		case 0, 1:
			diff := int(m.Value) + 1
			noWrap := pred - diff
			if m.Idc == 0 {
				if noWrap < 0 {
					noWrap += maxFrameNum
				}
			} else {
				noWrap = pred + diff
				if noWrap >= maxFrameNum {
					noWrap -= maxFrameNum
				}
			}
			pred = noWrap
			num := noWrap
			if num > curFrameNum {
				num -= maxFrameNum
			}
			i := d.find(false, num, curFrameNum, maxFrameNum)
			if i < 0 {
				return nil, codecerr.Malformed("abs_diff_pic_num_minus1", int64(m.Value), "no short-term picture")
			}
			pic = d.refs[i].pic
		case 2:
			i := d.find(true, int(m.Value), curFrameNum, maxFrameNum)
			if i < 0 {
				return nil, codecerr.Malformed("long_term_pic_num", int64(m.Value), "no long-term picture")
			}
			pic = d.refs[i].pic
		default:
			return nil, codecerr.Malformed("modification_of_pic_nums_idc", int64(m.Idc), "")
		}
		copy(out[idx+1:], out[idx:n])
		out[idx] = pic
		k := idx + 1
		for j := idx + 1; j <= n; j++ {
			if out[j] != pic {
				out[k] = out[j]
				k++
			}
		}
		for ; k <= n; k++ {
			out[k] = nil
		}
	}
	return out[:n], nil
}
