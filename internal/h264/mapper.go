package h264

import "github.com/deepteams/vcodec/internal/codecerr"

// Mapper walks the macroblock addresses of one slice and answers neighbour
// availability. A neighbour is available when it lies inside the picture
// and belongs to the same slice and precedes the current macroblock in
// decoding order.
type Mapper interface {
	// Address returns the address of the idx-th macroblock of the slice,
	// or -1 when the slice group holds fewer macroblocks.
	Address(idx int) int
	// Next returns the address following addr in the slice group, or -1.
	Next(addr int) int
	MbX(addr int) int
	MbY(addr int) int
	LeftAvailable(addr int) bool
	TopAvailable(addr int) bool
	TopLeftAvailable(addr int) bool
	TopRightAvailable(addr int) bool
}

// NewMapper returns the mapper for a slice: a raster mapper when the PPS
// has a single slice group, otherwise a slice-group mapper.
func NewMapper(sps *SPS, pps *PPS, h *SliceHeader) (Mapper, error) {
	if pps.NumSliceGroupsMinus1 == 0 {
		return &rasterMapper{
			width: sps.MbWidth(),
			size:  sps.MbWidth() * sps.MbHeight(),
			first: int(h.FirstMbInSlice),
		}, nil
	}
	if !sps.FrameMbsOnly {
		return nil, codecerr.Unsupported("slice groups with field coding")
	}
	groups := SliceGroupMap(sps, pps, int(h.SliceGroupChangeCycle))
	m := &groupMapper{
		rasterMapper: rasterMapper{
			width: sps.MbWidth(),
			size:  len(groups),
			first: int(h.FirstMbInSlice),
		},
		groups: groups,
	}
	for a := m.first; a >= 0; a = m.Next(a) {
		m.order = append(m.order, a)
	}
	return m, nil
}

type rasterMapper struct {
	width, size, first int
}

func (m *rasterMapper) Address(idx int) int {
	if a := m.first + idx; a < m.size {
		return a
	}
	return -1
}

func (m *rasterMapper) Next(addr int) int {
	if addr+1 < m.size {
		return addr + 1
	}
	return -1
}

func (m *rasterMapper) MbX(addr int) int { return addr % m.width }
func (m *rasterMapper) MbY(addr int) int { return addr / m.width }

func (m *rasterMapper) avail(cur, n int) bool {
	return n >= m.first && n < cur
}

func (m *rasterMapper) LeftAvailable(addr int) bool {
	return addr%m.width > 0 && m.avail(addr, addr-1)
}

func (m *rasterMapper) TopAvailable(addr int) bool {
	return m.avail(addr, addr-m.width)
}

func (m *rasterMapper) TopLeftAvailable(addr int) bool {
	return addr%m.width > 0 && m.avail(addr, addr-m.width-1)
}

func (m *rasterMapper) TopRightAvailable(addr int) bool {
	return addr%m.width < m.width-1 && m.avail(addr, addr-m.width+1)
}

type groupMapper struct {
	rasterMapper
	groups []uint8
	order  []int
}

func (m *groupMapper) Address(idx int) int {
	if idx < len(m.order) {
		return m.order[idx]
	}
	return -1
}

func (m *groupMapper) Next(addr int) int {
	for i := addr + 1; i < m.size; i++ {
		if m.groups[i] == m.groups[addr] {
			return i
		}
	}
	return -1
}

func (m *groupMapper) avail(cur, n int) bool {
	return n >= m.first && n < cur && m.groups[n] == m.groups[cur]
}

func (m *groupMapper) LeftAvailable(addr int) bool {
	return addr%m.width > 0 && m.avail(addr, addr-1)
}

func (m *groupMapper) TopAvailable(addr int) bool {
	return m.avail(addr, addr-m.width)
}

func (m *groupMapper) TopLeftAvailable(addr int) bool {
	return addr%m.width > 0 && m.avail(addr, addr-m.width-1)
}

func (m *groupMapper) TopRightAvailable(addr int) bool {
	return addr%m.width < m.width-1 && m.avail(addr, addr-m.width+1)
}

// SliceGroupMap returns the slice group of every map unit of a frame
// picture for the PPS slice_group_map_type.
func SliceGroupMap(sps *SPS, pps *PPS, changeCycle int) []uint8 {
	w := sps.MbWidth()
	h := int(sps.PicHeightInMapUnitsMinus1) + 1
	size := w * h
	groups := make([]uint8, size)
	numGroups := int(pps.NumSliceGroupsMinus1) + 1
	if numGroups == 1 {
		return groups
	}
	dir := 0
	if pps.SliceGroupChangeDirection {
		dir = 1
	}
	unitsInGroup0 := min(changeCycle*(int(pps.SliceGroupChangeRateMinus1)+1), size)
	upperLeft := unitsInGroup0
	if dir == 1 {
		upperLeft = size - unitsInGroup0
	}

	switch pps.SliceGroupMapType {
	case SliceGroupInterleaved:
		for i := 0; i < size; {
			for g := 0; g < numGroups && i < size; g++ {
				run := int(pps.RunLengthMinus1[g]) + 1
				for j := 0; j < run && i+j < size; j++ {
					groups[i+j] = uint8(g)
				}
				i += run
			}
		}
	case SliceGroupDispersed:
		for i := range groups {
			groups[i] = uint8(((i % w) + ((i/w)*numGroups)/2) % numGroups)
		}
	case SliceGroupForeground:
		for i := range groups {
			groups[i] = uint8(numGroups - 1)
		}
		for g := numGroups - 2; g >= 0; g-- {
			tl, br := int(pps.TopLeft[g]), int(pps.BottomRight[g])
			for y := tl / w; y <= br/w; y++ {
				for x := tl % w; x <= br%w; x++ {
					groups[y*w+x] = uint8(g)
				}
			}
		}
	case SliceGroupBoxOut:
		boxOut(groups, w, h, dir, unitsInGroup0)
	case SliceGroupRaster:
		for i := range groups {
			if i < upperLeft {
				groups[i] = uint8(dir)
			} else {
				groups[i] = uint8(1 - dir)
			}
		}
	case SliceGroupWipe:
		k := 0
		for x := 0; x < w; x++ {
			for y := 0; y < h; y++ {
				if k < upperLeft {
					groups[y*w+x] = uint8(dir)
				} else {
					groups[y*w+x] = uint8(1 - dir)
				}
				k++
			}
		}
	case SliceGroupExplicit:
		for i := range groups {
			groups[i] = uint8(pps.SliceGroupID[i])
		}
	}
	return groups
}

// boxOut grows slice group 0 as a spiral from the picture centre.
func boxOut(groups []uint8, w, h, dir, units int) {
	for i := range groups {
		groups[i] = 1
	}
	x, y := (w-dir)/2, (h-dir)/2
	left, top, right, bottom := x, y, x, y
	xDir, yDir := dir-1, dir
	for k := 0; k < units; {
		vacant := groups[y*w+x] == 1
		if vacant {
			groups[y*w+x] = 0
			k++
		}
		switch {
		case xDir == -1 && x == left:
			left = max(left-1, 0)
			x = left
			xDir, yDir = 0, 2*dir-1
		case xDir == 1 && x == right:
			right = min(right+1, w-1)
			x = right
			xDir, yDir = 0, 1-2*dir
		case yDir == -1 && y == top:
			top = max(top-1, 0)
			y = top
			xDir, yDir = 1-2*dir, 0
		case yDir == 1 && y == bottom:
			bottom = min(bottom+1, h-1)
			y = bottom
			xDir, yDir = 2*dir-1, 0
		default:
			x += xDir
			y += yDir
		}
	}
}
