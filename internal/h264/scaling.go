package h264

import (
	"github.com/deepteams/vcodec/internal/bitio"
	"github.com/deepteams/vcodec/internal/codecerr"
)

// ScalingList is one scaling_list() entry of an SPS or PPS. Values are
// stored in zig-zag scan order.
type ScalingList struct {
	Present    bool
	UseDefault bool
	List       []uint8 // 16 or 64 entries when Present and !UseDefault
}

// ScalingMatrix holds the resolved weight lists. List4x4 is ordered Intra
// Y, Cb, Cr, Inter Y, Cb, Cr; List8x8 follows the bitstream order Intra Y,
// Inter Y, Intra Cb, Inter Cb, Intra Cr, Inter Cr.
type ScalingMatrix struct {
	List4x4 [6][16]uint8
	List8x8 [6][64]uint8
}

var (
	Default4x4Intra = [16]uint8{6, 13, 13, 20, 20, 20, 28, 28, 28, 28, 32, 32, 32, 37, 37, 42}
	Default4x4Inter = [16]uint8{10, 14, 14, 20, 20, 20, 24, 24, 24, 24, 27, 27, 27, 30, 30, 34}
	Default8x8Intra = [64]uint8{
		6, 10, 10, 13, 11, 13, 16, 16, 16, 16, 18, 18, 18, 18, 18, 23,
		23, 23, 23, 23, 23, 25, 25, 25, 25, 25, 25, 25, 27, 27, 27, 27,
		27, 27, 27, 27, 29, 29, 29, 29, 29, 29, 29, 31, 31, 31, 31, 31,
		31, 33, 33, 33, 33, 33, 36, 36, 36, 36, 38, 38, 38, 40, 40, 42,
	}
	Default8x8Inter = [64]uint8{
		9, 13, 13, 15, 13, 15, 17, 17, 17, 17, 19, 19, 19, 19, 19, 21,
		21, 21, 21, 21, 21, 22, 22, 22, 22, 22, 22, 22, 24, 24, 24, 24,
		24, 24, 24, 24, 25, 25, 25, 25, 25, 25, 25, 27, 27, 27, 27, 27,
		27, 28, 28, 28, 28, 28, 30, 30, 30, 30, 32, 32, 32, 33, 33, 35,
	}
)

// FlatScalingMatrix is the matrix used when no scaling lists are sent.
func FlatScalingMatrix() ScalingMatrix {
	var m ScalingMatrix
	for i := range m.List4x4 {
		for j := range m.List4x4[i] {
			m.List4x4[i][j] = 16
		}
		for j := range m.List8x8[i] {
			m.List8x8[i][j] = 16
		}
	}
	return m
}

func readScalingList(r *bitio.Reader, size int) (ScalingList, error) {
	sl := ScalingList{Present: true, List: make([]uint8, size)}
	last, next := 8, 8
	for j := 0; j < size; j++ {
		if next != 0 {
			delta := int(r.ReadSE())
			if err := codecerr.CheckRange("delta_scale", int64(delta), -128, 127); err != nil {
				return sl, err
			}
			next = (last + delta + 256) % 256
			if j == 0 && next == 0 {
				sl.UseDefault = true
				sl.List = nil
				return sl, r.Err()
			}
		}
		if next != 0 {
			sl.List[j] = uint8(next)
		} else {
			sl.List[j] = uint8(last)
		}
		last = int(sl.List[j])
	}
	return sl, r.Err()
}

func writeScalingList(w *bitio.Writer, sl ScalingList, size int) error {
	if sl.UseDefault {
		w.WriteSE(-8)
		return nil
	}
	if len(sl.List) != size {
		return codecerr.Malformed("scaling_list", int64(len(sl.List)), "want %d entries", size)
	}
	// Trailing repeats of the last explicit value are coded with one
	// delta that drives nextScale to zero.
	end := size
	for end > 1 && sl.List[end-1] == sl.List[end-2] {
		end--
	}
	last := 8
	for j := 0; j < size; j++ {
		v := int(sl.List[j])
		if v == 0 {
			return codecerr.Malformed("scaling_list", 0, "entry %d is zero", j)
		}
		if j == end && end < size {
			w.WriteSE(wrapDelta(-last))
			return nil
		}
		w.WriteSE(wrapDelta(v - last))
		last = v
	}
	return nil
}

func wrapDelta(d int) int32 {
	d = ((d+128)%256+256)%256 - 128
	return int32(d)
}

// readScalingLists reads n scaling_list() entries guarded by their present
// flags.
func readScalingLists(r *bitio.Reader, n int) ([]ScalingList, error) {
	lists := make([]ScalingList, n)
	for i := range lists {
		if !r.ReadFlag() {
			continue
		}
		size := 16
		if i >= 6 {
			size = 64
		}
		var err error
		if lists[i], err = readScalingList(r, size); err != nil {
			return nil, err
		}
	}
	return lists, r.Err()
}

func writeScalingLists(w *bitio.Writer, lists []ScalingList) error {
	for i, sl := range lists {
		w.WriteFlag(sl.Present)
		if !sl.Present {
			continue
		}
		size := 16
		if i >= 6 {
			size = 64
		}
		if err := writeScalingList(w, sl, size); err != nil {
			return err
		}
	}
	return nil
}

// resolveLists applies fall-back rule A (fallback == nil) or rule B
// (fallback holds the sequence-level matrix) to a set of transmitted lists.
func resolveLists(lists []ScalingList, fallback *ScalingMatrix) ScalingMatrix {
	var m ScalingMatrix
	get := func(i int) ScalingList {
		if i < len(lists) {
			return lists[i]
		}
		return ScalingList{}
	}
	for i := 0; i < 6; i++ {
		sl := get(i)
		switch {
		case sl.Present && sl.UseDefault:
			if i < 3 {
				m.List4x4[i] = Default4x4Intra
			} else {
				m.List4x4[i] = Default4x4Inter
			}
		case sl.Present:
			copy(m.List4x4[i][:], sl.List)
		case i == 0 || i == 3:
			switch {
			case fallback != nil:
				m.List4x4[i] = fallback.List4x4[i]
			case i == 0:
				m.List4x4[i] = Default4x4Intra
			default:
				m.List4x4[i] = Default4x4Inter
			}
		default:
			m.List4x4[i] = m.List4x4[i-1]
		}
	}
	for i := 0; i < 6; i++ {
		sl := get(6 + i)
		switch {
		case sl.Present && sl.UseDefault:
			if i%2 == 0 {
				m.List8x8[i] = Default8x8Intra
			} else {
				m.List8x8[i] = Default8x8Inter
			}
		case sl.Present:
			copy(m.List8x8[i][:], sl.List)
		case i < 2:
			switch {
			case fallback != nil:
				m.List8x8[i] = fallback.List8x8[i]
			case i == 0:
				m.List8x8[i] = Default8x8Intra
			default:
				m.List8x8[i] = Default8x8Inter
			}
		default:
			m.List8x8[i] = m.List8x8[i-2]
		}
	}
	return m
}
