package vp8

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deepteams/vcodec/internal/bitio"
	"github.com/deepteams/vcodec/internal/dsp"
)

func newTestState(mbW, mbH int) *state {
	s := &state{}
	s.setSize(16*mbW, 16*mbH)
	s.proba.reset()
	return s
}

// randomModes fills s with a random but codable set of macroblock modes,
// in raster order so that census results are available.
func randomModes(s *state, rng *rand.Rand) {
	for mbY := 0; mbY < s.mbH; mbY++ {
		for mbX := 0; mbX < s.mbW; mbX++ {
			idx := mbY*s.mbW + mbX
			mb := &s.mbs[idx]
			*mb = mbInfo{}
			if s.seg.updateMap {
				s.segMap[idx] = uint8(rng.Intn(numSegs))
			}
			mb.segment = s.segMap[idx]
			mb.skip = s.hdr.useSkip && rng.Intn(2) == 0
			if s.keyFrame || rng.Intn(4) == 0 {
				randomIntra(s, mb, rng)
				continue
			}
			mb.ref = uint8(refLast + rng.Intn(3))
			near := s.census(mbX, mbY, mb.ref)
			mb.ymode = uint8(modeNearestMV + rng.Intn(5))
			switch mb.ymode {
			case modeNearestMV:
				mb.mv = near.nearest
			case modeNearMV:
				mb.mv = near.near
			case modeNewMV:
				mb.mv = near.best.add(randomMV(rng))
			case modeSplitMV:
				mb.split = uint8(rng.Intn(4))
				for j := 0; j < splitCount[mb.split]; j++ {
					var v motionVector
					switch rng.Intn(3) {
					case 1:
						v = near.best.add(randomMV(rng))
					case 2:
						v = mb.bmv[max(firstBlock(mb.split, j)-1, 0)]
					}
					fillPartition(mb, j, v)
				}
				mb.mv = mb.bmv[15]
				continue
			}
			for b := range mb.bmv {
				mb.bmv[b] = mb.mv
			}
		}
	}
}

func randomIntra(s *state, mb *mbInfo, rng *rand.Rand) {
	mb.ymode = uint8(rng.Intn(5))
	if mb.ymode == 4 {
		mb.ymode = dsp.BPred
	}
	if mb.ymode == dsp.BPred {
		for b := range mb.bmodes {
			mb.bmodes[b] = uint8(rng.Intn(numBModes))
		}
	} else if s.keyFrame {
		for b := range mb.bmodes {
			mb.bmodes[b] = mb.ymode
		}
	}
	mb.uvmode = uint8(rng.Intn(4))
}

func randomMV(rng *rand.Rand) motionVector {
	return motionVector{int16(rng.Intn(401) - 200), int16(rng.Intn(401) - 200)}
}

func TestModesRoundTrip(t *testing.T) {
	for _, tc := range []struct {
		name      string
		keyFrame  bool
		updateMap bool
		useSkip   bool
	}{
		{"key", true, false, true},
		{"key-segments", true, true, false},
		{"inter", false, false, true},
		{"inter-segments", false, true, true},
	} {
		t.Run(tc.name, func(t *testing.T) {
			rng := rand.New(rand.NewSource(11))
			src := newTestState(7, 5)
			src.keyFrame = tc.keyFrame
			src.seg = segmentHeader{enabled: tc.updateMap, updateMap: tc.updateMap, treeProba: [3]uint8{100, 30, 200}}
			src.hdr = frameHeader{
				useSkip: tc.useSkip, skipProba: 90,
				intraProba: 60, lastProba: 150, goldenProba: 120,
			}
			src.hdr.signBias[refGolden] = true
			randomModes(src, rng)

			bw := bitio.NewBoolWriter(0)
			for mbY := 0; mbY < src.mbH; mbY++ {
				for mbX := 0; mbX < src.mbW; mbX++ {
					src.writeModes(bw, mbX, mbY)
				}
			}
			br := bitio.NewBoolReader(bw.Finish())

			dst := newTestState(7, 5)
			dst.keyFrame, dst.seg, dst.hdr = src.keyFrame, src.seg, src.hdr
			for mbY := 0; mbY < dst.mbH; mbY++ {
				for mbX := 0; mbX < dst.mbW; mbX++ {
					dst.parseModes(br, mbX, mbY)
				}
			}
			require.False(t, br.EOF())
			for i := range src.mbs {
				assert.Equal(t, src.mbs[i], dst.mbs[i], "macroblock %d", i)
			}
			assert.Equal(t, src.segMap, dst.segMap)
		})
	}
}

func TestKeyFrameResetsSegmentMap(t *testing.T) {
	s := newTestState(2, 1)
	s.segMap[0], s.segMap[1] = 3, 2
	s.keyFrame = true
	bw := bitio.NewBoolWriter(0)
	for i := 0; i < 2; i++ {
		bw.PutTree(kfYModeTree, kfYModeProba, dsp.DCPred)
		bw.PutTree(uvModeTree, kfUVModeProba, dsp.DCPred)
	}
	br := bitio.NewBoolReader(bw.Finish())
	s.parseModes(br, 0, 0)
	s.parseModes(br, 1, 0)
	assert.Equal(t, []uint8{0, 0}, s.segMap)

	s.segMap[1] = 2
	s.keyFrame = false
	bw = bitio.NewBoolWriter(0)
	bw.PutBit(0, 128)
	bw.PutTree(yModeTree, s.proba.ymode[:], dsp.TMPred)
	bw.PutTree(uvModeTree, s.proba.uvmode[:], dsp.HPred)
	s.hdr.intraProba = 128
	s.parseModes(bitio.NewBoolReader(bw.Finish()), 1, 0)
	assert.Equal(t, uint8(2), s.mbs[1].segment, "inter frames keep the map")
	assert.Equal(t, uint8(dsp.TMPred), s.mbs[1].ymode)
	assert.Equal(t, uint8(dsp.HPred), s.mbs[1].uvmode)
}

func TestBModeContextOutsideFrame(t *testing.T) {
	s := newTestState(2, 2)
	mb := s.at(1, 1)
	left := s.at(0, 1)
	above := s.at(1, 0)
	for b := range left.bmodes {
		left.bmodes[b] = uint8(b % numBModes)
		above.bmodes[b] = uint8((b + 5) % numBModes)
	}
	top, l := s.bModeContext(mb, 1, 1, 0)
	assert.Equal(t, above.bmodes[12], top)
	assert.Equal(t, left.bmodes[3], l)

	corner := s.at(0, 0)
	corner.bmodes[1], corner.bmodes[4] = dsp.BVEPred, dsp.BHEPred
	top, l = s.bModeContext(corner, 0, 0, 5)
	assert.Equal(t, uint8(dsp.BVEPred), top, "inside the macroblock")
	assert.Equal(t, uint8(dsp.BHEPred), l, "inside the macroblock")
	top, l = s.bModeContext(s.at(0, 0), 0, 0, 0)
	assert.Equal(t, uint8(dsp.BDCPred), top)
	assert.Equal(t, uint8(dsp.BDCPred), l)
}

func TestFirstBlock(t *testing.T) {
	assert.Equal(t, 0, firstBlock(0, 0))
	assert.Equal(t, 8, firstBlock(0, 1), "16x8 bottom half")
	assert.Equal(t, 2, firstBlock(1, 1), "8x16 right half")
	assert.Equal(t, 10, firstBlock(2, 3), "bottom right quarter")
	assert.Equal(t, 13, firstBlock(3, 13))
}
