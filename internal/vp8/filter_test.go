package vp8

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/deepteams/vcodec/internal/dsp"
)

func TestFilterLevel(t *testing.T) {
	s := newTestState(1, 1)
	s.filter = filterHeader{
		level:     20,
		useDelta:  true,
		refDelta:  [numLFDelta]int8{2, -2, 0, 0},
		modeDelta: [numLFDelta]int8{4, -3, 1, 5},
	}
	s.seg = segmentHeader{enabled: true, level: [numSegs]int8{0, -5, 60, 0}}

	for _, tc := range []struct {
		name string
		mb   mbInfo
		want int
	}{
		{"intra b-pred", mbInfo{segment: 1, ymode: dsp.BPred}, 15 + 2 + 4},
		{"intra 16x16", mbInfo{segment: 0, ymode: dsp.TMPred}, 20 + 2},
		{"zero mv", mbInfo{ref: refLast, ymode: modeZeroMV}, 20 - 2 - 3},
		{"new mv", mbInfo{ref: refGolden, ymode: modeNewMV}, 20 + 1},
		{"split", mbInfo{ref: refAltRef, ymode: modeSplitMV}, 20 + 5},
		{"clipped", mbInfo{segment: 2, ref: refAltRef, ymode: modeSplitMV}, 63},
	} {
		assert.Equal(t, tc.want, s.filterLevel(&tc.mb), tc.name)
	}

	s.seg.absDelta = true
	assert.Equal(t, 0, s.filterLevel(&mbInfo{segment: 1, ref: refLast, ymode: modeNearMV}))
	s.filter.useDelta = false
	assert.Equal(t, 60, s.filterLevel(&mbInfo{segment: 2}))
}

func TestFilterParams(t *testing.T) {
	s := newTestState(1, 1)
	s.keyFrame = true
	s.filter = filterHeader{level: 32, sharpness: 5}

	p, ok := s.filterParams(&mbInfo{ymode: dsp.DCPred})
	assert.True(t, ok)
	assert.Equal(t, filterParams{limit: 68, ilimit: 4, hevT: 1}, p)

	p, _ = s.filterParams(&mbInfo{ymode: dsp.DCPred, coeffs: true})
	assert.True(t, p.inner)

	s.keyFrame = false
	p, _ = s.filterParams(&mbInfo{ref: refLast, ymode: modeSplitMV})
	assert.Equal(t, 2, p.hevT)
	assert.True(t, p.inner)

	s.filter = filterHeader{level: 50}
	p, _ = s.filterParams(&mbInfo{ref: refLast, ymode: modeZeroMV})
	assert.Equal(t, filterParams{limit: 150, ilimit: 50, hevT: 3}, p)

	s.filter.level = 0
	_, ok = s.filterParams(&mbInfo{})
	assert.False(t, ok)
}

func TestFilterFlatFrameUnchanged(t *testing.T) {
	s := newTestState(2, 2)
	s.keyFrame = true
	s.filter = filterHeader{level: 63}
	s.startFrame()
	defer s.release()
	for i := range s.cur.y {
		s.cur.y[i] = 90
	}
	for i := range s.cur.u {
		s.cur.u[i], s.cur.v[i] = 128, 128
	}
	for i := range s.mbs {
		s.mbs[i].ymode = dsp.BPred
	}
	s.filterFrame()
	for i, v := range s.cur.y {
		assert.Equal(t, uint8(90), v, "sample %d", i)
	}
}
