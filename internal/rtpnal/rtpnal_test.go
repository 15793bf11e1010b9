package rtpnal

import (
	"testing"

	"github.com/pion/rtp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testNAL returns a unit of the given header and size with no zero bytes,
// so that it never contains a start code.
func testNAL(header byte, size int) []byte {
	nal := make([]byte, size)
	nal[0] = header
	for i := 1; i < size; i++ {
		nal[i] = byte(i%251 + 1)
	}
	return nal
}

func packet(seq uint16, ts uint32, marker bool, payload ...byte) *rtp.Packet {
	return &rtp.Packet{
		Header:  rtp.Header{Version: 2, SequenceNumber: seq, Timestamp: ts, Marker: marker},
		Payload: payload,
	}
}

func fragments(t *testing.T, nal []byte, mtu int) []*rtp.Packet {
	t.Helper()
	pkts := NewPacketizer(96, 1, 100).Packetize(nal, mtu, 9000)
	require.Greater(t, len(pkts), 1)
	return pkts
}

func TestPacketizeRoundTrip(t *testing.T) {
	sps := testNAL(0x67, 10)
	pps := testNAL(0x68, 5)
	idr := testNAL(0x65, 3000)
	slice := testNAL(0x41, 100)

	p := NewPacketizer(96, 0xabcd, 65534)
	pkts := p.PacketizeAccessUnit([][]byte{sps, pps, idr, slice}, 1200, 3000)
	require.Len(t, pkts, 5)
	assert.Equal(t, byte(typeSTAPA), pkts[0].Payload[0]&0x1f)
	for i := 1; i < 4; i++ {
		assert.Equal(t, byte(typeFUA), pkts[i].Payload[0]&0x1f)
		assert.LessOrEqual(t, len(pkts[i].Payload), 1200)
	}
	for i, pkt := range pkts {
		assert.Equal(t, uint16(65534+i), pkt.SequenceNumber)
		assert.Equal(t, i == len(pkts)-1, pkt.Marker)
		assert.Equal(t, uint32(0xabcd), pkt.SSRC)
	}

	d := NewDepacketizer()
	var got [][]byte
	for _, pkt := range pkts {
		raw, err := pkt.Marshal()
		require.NoError(t, err)
		var parsed rtp.Packet
		require.NoError(t, parsed.Unmarshal(raw))
		got = append(got, d.Push(&parsed)...)
	}
	assert.Equal(t, [][]byte{sps, pps, idr, slice}, got)
	assert.Equal(t, Stats{Packets: 5, Units: 4}, d.Stats())
	assert.Empty(t, d.Flush())
}

func TestLostFragmentMarksUnit(t *testing.T) {
	idr := testNAL(0x65, 400)
	pkts := fragments(t, idr, 100)
	d := NewDepacketizer()
	var got [][]byte
	for i, pkt := range pkts {
		if i == 2 {
			continue
		}
		got = append(got, d.Push(pkt)...)
	}
	require.Len(t, got, 1)
	assert.Equal(t, byte(0x80|0x65), got[0][0])
	assert.Less(t, len(got[0]), len(idr))
	assert.Equal(t, 1, d.Stats().Corrupt)

	next := d.Push(packet(pkts[len(pkts)-1].SequenceNumber+1, 9000, true, 0x41, 1, 2))
	assert.Equal(t, [][]byte{{0x41, 1, 2}}, next)
}

func TestMissingStartMarksUnit(t *testing.T) {
	pkts := fragments(t, testNAL(0x65, 400), 100)
	d := NewDepacketizer()
	var got [][]byte
	for _, pkt := range pkts[1:] {
		got = append(got, d.Push(pkt)...)
	}
	require.Len(t, got, 1)
	assert.Equal(t, byte(0x80|0x65), got[0][0])
}

func TestStartWhilePending(t *testing.T) {
	d := NewDepacketizer()
	assert.Empty(t, d.Push(packet(1, 0, false, 0x7c, 0x85, 1, 2)))
	got := d.Push(packet(2, 0, false, 0x7c, 0x85, 3, 4))
	require.Len(t, got, 1)
	assert.Equal(t, []byte{0x80 | 0x65, 1, 2}, got[0])
	got = d.Push(packet(3, 0, false, 0x7c, 0x45, 5))
	assert.Equal(t, [][]byte{{0x65, 3, 4, 5}}, got)
}

func TestSingleNALInterruptsFragments(t *testing.T) {
	d := NewDepacketizer()
	d.Push(packet(1, 0, false, 0x7c, 0x85, 1))
	got := d.Push(packet(2, 0, false, 0x06, 9))
	assert.Equal(t, [][]byte{{0xe5, 1}, {0x06, 9}}, got)
}

func TestTimestampChangeBreaksUnit(t *testing.T) {
	d := NewDepacketizer()
	d.Push(packet(1, 0, false, 0x7c, 0x85, 1))
	got := d.Push(packet(2, 3000, false, 0x7c, 0x45, 2))
	assert.Equal(t, [][]byte{{0xe5, 1, 2}}, got)
}

func TestMarkerFlushesIncompleteUnit(t *testing.T) {
	d := NewDepacketizer()
	d.Push(packet(1, 0, false, 0x7c, 0x85, 1))
	got := d.Push(packet(2, 0, true, 0x7c, 0x05, 2))
	assert.Equal(t, [][]byte{{0xe5, 1, 2}}, got)
	assert.Empty(t, d.Flush())
}

func TestFlushPendingUnit(t *testing.T) {
	d := NewDepacketizer()
	d.Push(packet(1, 0, false, 0x5c, 0x81, 7, 7))
	assert.Equal(t, [][]byte{{0xc1, 7, 7}}, d.Flush())
	assert.Equal(t, Stats{Packets: 1, Units: 1, Corrupt: 1}, d.Stats())
}

func TestSTAPA(t *testing.T) {
	d := NewDepacketizer()
	got := d.Push(packet(1, 0, true, 0x78, 0, 2, 0x67, 1, 0, 0, 0, 3, 0x68, 2, 3))
	assert.Equal(t, [][]byte{{0x67, 1}, {0x68, 2, 3}}, got)

	got = d.Push(packet(2, 0, true, 0x78, 0, 0, 0, 1, 0x06))
	assert.Equal(t, [][]byte{{0x06}}, got, "empty aggregated unit is skipped")

	got = d.Push(packet(3, 0, true, 0x78, 0, 2, 0x67, 1, 0, 9, 0x68, 2))
	assert.Empty(t, got, "size past the payload drops the packet")
	assert.Equal(t, Stats{Packets: 3, Units: 3, Dropped: 1}, d.Stats())
}

func TestSTAPAFlushesPendingUnit(t *testing.T) {
	d := NewDepacketizer()
	d.Push(packet(1, 0, false, 0x7c, 0x85, 1))
	got := d.Push(packet(2, 0, true, 0x78, 0, 2, 0x67, 1))
	assert.Equal(t, [][]byte{{0xe5, 1}, {0x67, 1}}, got)
}

func TestFUAIndicatorForbiddenBit(t *testing.T) {
	d := NewDepacketizer()
	assert.Empty(t, d.Push(packet(1, 0, false, 0xfc, 0x85, 1)))
	got := d.Push(packet(2, 0, true, 0xfc, 0x45, 2))
	assert.Equal(t, [][]byte{{0xe5, 1, 2}}, got)
	assert.Equal(t, Stats{Packets: 2, Units: 1, Corrupt: 1}, d.Stats())
}

func TestFUAStartAndEndInOneFragment(t *testing.T) {
	d := NewDepacketizer()
	got := d.Push(packet(1, 0, true, 0x7c, 0xc5, 1, 2))
	assert.Equal(t, [][]byte{{0xe5, 1, 2}}, got)
	assert.Empty(t, d.Flush())
}

func TestDroppedPayloads(t *testing.T) {
	d := NewDepacketizer()
	assert.Empty(t, d.Push(nil))
	assert.Empty(t, d.Push(packet(1, 0, false)))
	assert.Empty(t, d.Push(packet(2, 0, false, 0x19, 0, 1)))
	assert.Empty(t, d.Push(packet(3, 0, false, 0x7c)))
	assert.Equal(t, Stats{Packets: 3, Dropped: 3}, d.Stats())
}

func TestPushCopiesPayload(t *testing.T) {
	d := NewDepacketizer()
	payload := []byte{0x41, 1, 2, 3}
	got := d.Push(packet(1, 0, true, payload...))
	payload[1] = 0xff
	assert.Equal(t, [][]byte{{0x41, 1, 2, 3}}, got)
}
