package vp8

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deepteams/vcodec/internal/bitio"
	"github.com/deepteams/vcodec/internal/codecerr"
)

func TestHeaderSectionsRoundTrip(t *testing.T) {
	seg := segmentHeader{
		enabled: true, updateMap: true, updateData: true, absDelta: true,
		quant:     [numSegs]int8{10, -20, 0, 127},
		level:     [numSegs]int8{0, 63, -63, 5},
		treeProba: [3]uint8{255, 12, 200},
	}
	lf := filterHeader{
		level: 34, sharpness: 5, useDelta: true, updateDelta: true,
		refDelta:  [numLFDelta]int8{2, 0, -2, -2},
		modeDelta: [numLFDelta]int8{4, -2, 2, 4},
	}
	quant := quantIndices{base: 60, y1DC: -3, y2DC: 15, y2AC: -15, uvAC: 1}

	bw := bitio.NewBoolWriter(0)
	seg.write(bw)
	lf.write(bw)
	quant.write(bw)
	br := bitio.NewBoolReader(bw.Finish())

	var gotSeg segmentHeader
	var gotLF filterHeader
	var gotQuant quantIndices
	gotSeg.parse(br)
	gotLF.parse(br)
	gotQuant.parse(br)
	require.False(t, br.EOF())
	assert.Equal(t, seg, gotSeg)
	assert.Equal(t, lf, gotLF)
	assert.Equal(t, quant, gotQuant)
}

func TestSegmentDataPersists(t *testing.T) {
	seg := segmentHeader{quant: [numSegs]int8{1, 2, 3, 4}, absDelta: true}
	bw := bitio.NewBoolWriter(0)
	(&segmentHeader{enabled: true}).write(bw)
	seg.parse(bitio.NewBoolReader(bw.Finish()))
	assert.True(t, seg.enabled)
	assert.False(t, seg.updateMap)
	assert.Equal(t, [numSegs]int8{1, 2, 3, 4}, seg.quant)
}

func TestCoeffUpdatesRoundTrip(t *testing.T) {
	var enc, dec proba
	enc.reset()
	dec.reset()
	next := enc.coeff
	next[typeY2][1][0][0] = 7
	next[typeUV][7][2][10] = 250
	next[typeYWithDC][0][1][3] = 1

	bw := bitio.NewBoolWriter(0)
	enc.writeCoeffUpdates(bw, &next)
	assert.Equal(t, next, enc.coeff)
	dec.parseCoeffUpdates(bitio.NewBoolReader(bw.Finish()))
	assert.Equal(t, next, dec.coeff)
}

func TestQuantMatrices(t *testing.T) {
	q := quantIndices{base: 0}
	m := q.matrices(&segmentHeader{})
	assert.Equal(t, [2]int{4, 4}, m[0].y1)
	assert.Equal(t, [2]int{8, 8}, m[0].y2, "Y2 AC has a floor of 8")
	assert.Equal(t, [2]int{4, 4}, m[0].uv)

	q = quantIndices{base: 127}
	m = q.matrices(&segmentHeader{})
	assert.Equal(t, [2]int{157, 284}, m[0].y1)
	assert.Equal(t, 132, m[0].uv[0], "chroma DC index stops at 117")

	seg := segmentHeader{enabled: true, quant: [numSegs]int8{-10, 0, 10, 100}}
	q = quantIndices{base: 50}
	m = q.matrices(&seg)
	assert.Equal(t, int(acTable[40]), m[0].y1[1])
	assert.Equal(t, int(acTable[50]), m[1].y1[1])
	assert.Equal(t, int(acTable[127]), m[3].y1[1])
}

func TestParseFrameTagErrors(t *testing.T) {
	_, err := parseFrameTag([]byte{0x10, 0x02})
	assert.ErrorIs(t, err, codecerr.ErrEndOfStream)

	tag := frameTag{keyFrame: true, show: true, firstPartSize: 10, width: 16, height: 16}
	data := tag.append(nil)
	data[5] = 0
	_, err = parseFrameTag(data)
	assert.ErrorIs(t, err, codecerr.ErrMalformed)

	inter := frameTag{show: true, firstPartSize: 99}
	got, err := parseFrameTag(inter.append(nil))
	require.NoError(t, err)
	assert.Equal(t, 3, got.size())
	assert.Equal(t, 99, got.firstPartSize)
}
