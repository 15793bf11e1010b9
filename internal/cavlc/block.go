package cavlc

import (
	"github.com/pkg/errors"

	"github.com/deepteams/vcodec/internal/bitio"
	"github.com/deepteams/vcodec/internal/codecerr"
)

// Special nC values selecting the chroma DC coeff_token tables.
const (
	NCChromaDC420 = -1
	NCChromaDC422 = -2
)

// MaxLevel bounds the magnitude of a level the writer can code without the
// High profile level_prefix extension.
const MaxLevel = 2047

var (
	tokenTrees       [4]*BTree
	chromaDCTree     *BTree
	chroma422DCTree  *BTree
	totalZerosTrees  [15]*BTree
	chromaTZTrees    [3]*BTree
	chroma422TZTrees [7]*BTree
	runBeforeTrees   [7]*BTree
)

func init() {
	tokenTree := func(name string, lens, bits []uint8) *BTree {
		t := NewBTree(name)
		for i, l := range lens {
			if l == 0 {
				continue
			}
			mustInsert(t, uint32(bits[i]), int(l), i)
		}
		return t
	}
	for c := range tokenTrees {
		tokenTrees[c] = tokenTree("coeff_token", coeffTokenLen[c], coeffTokenBits[c])
	}
	chromaDCTree = tokenTree("coeff_token", chromaDCTokenLen, chromaDCTokenBits)
	chroma422DCTree = tokenTree("coeff_token", chroma422DCTokenLen, chroma422DCTokenBits)

	rows := func(name string, dst []*BTree, lens, bits [][]uint8) {
		for i := range dst {
			t := NewBTree(name)
			for v, l := range lens[i] {
				mustInsert(t, uint32(bits[i][v]), int(l), v)
			}
			dst[i] = t
		}
	}
	rows("total_zeros", totalZerosTrees[:], totalZerosLen, totalZerosBits)
	rows("total_zeros", chromaTZTrees[:], chromaDCTotalZerosLen, chromaDCTotalZerosBits)
	rows("total_zeros", chroma422TZTrees[:], chroma422DCTotalZerosLen, chroma422DCTotalZerosBits)
	rows("run_before", runBeforeTrees[:], runBeforeLen, runBeforeBits)
}

func tokenClass(nC int) int {
	switch {
	case nC < 2:
		return 0
	case nC < 4:
		return 1
	case nC < 8:
		return 2
	}
	return 3
}

func tokenTable(nC int) (*BTree, []uint8, []uint8) {
	switch nC {
	case NCChromaDC420:
		return chromaDCTree, chromaDCTokenLen, chromaDCTokenBits
	case NCChromaDC422:
		return chroma422DCTree, chroma422DCTokenLen, chroma422DCTokenBits
	}
	c := tokenClass(nC)
	return tokenTrees[c], coeffTokenLen[c], coeffTokenBits[c]
}

func totalZerosTable(maxNumCoeff, totalCoeff int) (*BTree, []uint8, []uint8) {
	i := totalCoeff - 1
	switch maxNumCoeff {
	case 4:
		return chromaTZTrees[i], chromaDCTotalZerosLen[i], chromaDCTotalZerosBits[i]
	case 8:
		return chroma422TZTrees[i], chroma422DCTotalZerosLen[i], chroma422DCTotalZerosBits[i]
	}
	return totalZerosTrees[i], totalZerosLen[i], totalZerosBits[i]
}

func runBeforeRow(zerosLeft int) int {
	if zerosLeft > 7 {
		return 6
	}
	return zerosLeft - 1
}

// ReadBlock decodes one residual block. nC is the predicted coefficient
// count (or NCChromaDC420/NCChromaDC422). out receives maxNumCoeff levels in
// scan order and is cleared first. It returns TotalCoeff(coeff_token).
func ReadBlock(r *bitio.Reader, nC, maxNumCoeff int, out []int32) (int, error) {
	out = out[:maxNumCoeff]
	clear(out)

	tree, _, _ := tokenTable(nC)
	token, err := tree.Read(r)
	if err != nil {
		return 0, err
	}
	totalCoeff, trailingOnes := token>>2, token&3
	if totalCoeff == 0 {
		return 0, nil
	}
	if totalCoeff > maxNumCoeff {
		return 0, codecerr.Malformed("TotalCoeff", int64(totalCoeff), "block holds %d coefficients", maxNumCoeff)
	}

	var levels [16]int32
	suffixLength := 0
	if totalCoeff > 10 && trailingOnes < 3 {
		suffixLength = 1
	}
	for i := 0; i < totalCoeff; i++ {
		if i < trailingOnes {
			levels[i] = 1 - 2*int32(r.ReadBit())
			continue
		}
		prefix := 0
		for r.ReadBit() == 0 {
			prefix++
			if prefix > 15 {
				if r.Err() != nil {
					return 0, r.Err()
				}
				return 0, codecerr.Malformed("level_prefix", int64(prefix), "")
			}
		}
		levelCode := min(15, prefix) << suffixLength
		if suffixLength > 0 || prefix >= 14 {
			size := suffixLength
			if prefix == 14 && suffixLength == 0 {
				size = 4
			} else if prefix >= 15 {
				size = prefix - 3
			}
			if size > 0 {
				levelCode += int(r.ReadBits(size))
			}
		}
		if prefix >= 15 && suffixLength == 0 {
			levelCode += 15
		}
		if i == trailingOnes && trailingOnes < 3 {
			levelCode += 2
		}
		if levelCode&1 == 0 {
			levels[i] = int32((levelCode + 2) >> 1)
		} else {
			levels[i] = int32((-levelCode - 1) >> 1)
		}
		if suffixLength == 0 {
			suffixLength = 1
		}
		if abs32(levels[i]) > 3<<(suffixLength-1) && suffixLength < 6 {
			suffixLength++
		}
	}

	zerosLeft := 0
	if totalCoeff < maxNumCoeff {
		tzTree, _, _ := totalZerosTable(maxNumCoeff, totalCoeff)
		if zerosLeft, err = tzTree.Read(r); err != nil {
			return 0, err
		}
		if zerosLeft > maxNumCoeff-totalCoeff {
			return 0, codecerr.Malformed("total_zeros", int64(zerosLeft), "with %d coefficients in %d", totalCoeff, maxNumCoeff)
		}
	}

	var runs [16]int
	for i := 0; i < totalCoeff-1; i++ {
		if zerosLeft > 0 {
			run, err := runBeforeTrees[runBeforeRow(zerosLeft)].Read(r)
			if err != nil {
				return 0, err
			}
			if run > zerosLeft {
				return 0, codecerr.Malformed("run_before", int64(run), "zerosLeft %d", zerosLeft)
			}
			runs[i] = run
			zerosLeft -= run
		}
	}
	runs[totalCoeff-1] = zerosLeft

	pos := -1
	for i := totalCoeff - 1; i >= 0; i-- {
		pos += runs[i] + 1
		out[pos] = levels[i]
	}
	if err := r.Err(); err != nil {
		return 0, err
	}
	return totalCoeff, nil
}

// WriteBlock codes coeffs (scan order, len(coeffs) == maxNumCoeff) with
// predicted count nC and returns the number of non-zero coefficients.
func WriteBlock(w *bitio.Writer, nC int, coeffs []int32) (int, error) {
	maxNumCoeff := len(coeffs)
	var levels [16]int32 // highest frequency first
	var pos [16]int
	totalCoeff := 0
	for i := maxNumCoeff - 1; i >= 0; i-- {
		if c := coeffs[i]; c != 0 {
			if abs32(c) > MaxLevel {
				return 0, errors.Errorf("cavlc: level %d exceeds %d", c, MaxLevel)
			}
			levels[totalCoeff] = c
			pos[totalCoeff] = i
			totalCoeff++
		}
	}
	trailingOnes := 0
	for trailingOnes < totalCoeff && trailingOnes < 3 && abs32(levels[trailingOnes]) == 1 {
		trailingOnes++
	}

	_, lens, bits := tokenTable(nC)
	idx := totalCoeff*4 + trailingOnes
	if idx >= len(lens) || lens[idx] == 0 {
		return 0, errors.Errorf("cavlc: %d coefficients do not fit nC %d", totalCoeff, nC)
	}
	w.WriteBits(uint32(bits[idx]), int(lens[idx]))
	if totalCoeff == 0 {
		return 0, nil
	}

	suffixLength := 0
	if totalCoeff > 10 && trailingOnes < 3 {
		suffixLength = 1
	}
	for i := 0; i < totalCoeff; i++ {
		if i < trailingOnes {
			if levels[i] < 0 {
				w.WriteBit(1)
			} else {
				w.WriteBit(0)
			}
			continue
		}
		level := int(levels[i])
		levelCode := 2*level - 2
		if level < 0 {
			levelCode = -2*level - 1
		}
		if i == trailingOnes && trailingOnes < 3 {
			levelCode -= 2
		}
		if err := writeLevel(w, levelCode, suffixLength); err != nil {
			return 0, err
		}
		if suffixLength == 0 {
			suffixLength = 1
		}
		if abs32(levels[i]) > 3<<(suffixLength-1) && suffixLength < 6 {
			suffixLength++
		}
	}

	totalZeros := pos[0] + 1 - totalCoeff
	if totalCoeff < maxNumCoeff {
		_, tzLens, tzBits := totalZerosTable(maxNumCoeff, totalCoeff)
		w.WriteBits(uint32(tzBits[totalZeros]), int(tzLens[totalZeros]))
	}
	zerosLeft := totalZeros
	for i := 0; i < totalCoeff-1 && zerosLeft > 0; i++ {
		run := pos[i] - pos[i+1] - 1
		row := runBeforeRow(zerosLeft)
		w.WriteBits(uint32(runBeforeBits[row][run]), int(runBeforeLen[row][run]))
		zerosLeft -= run
	}
	return totalCoeff, nil
}

func writeLevel(w *bitio.Writer, levelCode, suffixLength int) error {
	var prefix, suffix, size int
	switch {
	case suffixLength == 0 && levelCode < 14:
		prefix = levelCode
	case suffixLength == 0 && levelCode < 30:
		prefix, suffix, size = 14, levelCode-14, 4
	case suffixLength == 0:
		prefix, suffix, size = 15, levelCode-30, 12
	case levelCode>>suffixLength < 15:
		prefix, suffix, size = levelCode>>suffixLength, levelCode&(1<<suffixLength-1), suffixLength
	default:
		prefix, suffix, size = 15, levelCode-15<<suffixLength, 12
	}
	if suffix >= 1<<size && size > 0 {
		return errors.Errorf("cavlc: level code %d out of range", levelCode)
	}
	w.WriteBits(1, prefix+1)
	if size > 0 {
		w.WriteBits(uint32(suffix), size)
	}
	return nil
}

func abs32(v int32) int32 {
	if v < 0 {
		return -v
	}
	return v
}
