// Package rtpnal moves H.264 NAL units in and out of RTP payloads
// (RFC 6184 single NAL unit, STAP-A and FU-A packets).
package rtpnal

import (
	"encoding/binary"

	"github.com/pion/rtp"
	"github.com/pion/rtp/codecs"
)

// Payload structure types.
const (
	typeSTAPA = 24
	typeFUA   = 28

	fuStart = 0x80
	fuEnd   = 0x40

	// forbiddenBit marks a reassembled unit whose fragments went missing.
	forbiddenBit = 0x80
)

// Stats counts what a Depacketizer has seen.
type Stats struct {
	Packets int // packets pushed
	Units   int // NAL units emitted
	Corrupt int // emitted units carrying the forbidden bit
	Dropped int // packets with an unsupported, empty or malformed payload
}

// Depacketizer turns a sequence of RTP packets back into NAL units.
// Payloads are unpacked by codecs.H264Packet; the Depacketizer watches
// sequence numbers, timestamps and the FU-A start and end bits around it.
//
// Lost or inconsistent FU-A fragments never fail: the unit they belonged to
// is still emitted, with forbidden_zero_bit set, so that a decoder can
// conceal it. A Depacketizer is not safe for concurrent use.
type Depacketizer struct {
	h264 codecs.H264Packet

	// The pending FU-A unit is buffered inside h264.
	pending   bool
	broken    bool
	ts        uint32
	indicator byte
	fuType    byte

	seq    uint16
	seqSet bool

	stats Stats
}

// NewDepacketizer returns an empty Depacketizer.
func NewDepacketizer() *Depacketizer {
	return &Depacketizer{h264: codecs.H264Packet{IsAVC: true}}
}

// Stats returns the counters accumulated so far.
func (d *Depacketizer) Stats() Stats { return d.stats }

// Push consumes one packet and returns the NAL units it completes, without
// start codes. The returned slices are not retained by d.
func (d *Depacketizer) Push(pkt *rtp.Packet) [][]byte {
	if pkt == nil {
		return nil
	}
	d.stats.Packets++
	gap := d.seqSet && pkt.SequenceNumber != d.seq+1
	d.seq, d.seqSet = pkt.SequenceNumber, true

	var out [][]byte
	if d.pending && (gap || pkt.Timestamp != d.ts) {
		d.broken = true
	}
	payload := pkt.Payload
	if len(payload) == 0 {
		d.stats.Dropped++
		return nil
	}

	switch typ := payload[0] & 0x1f; {
	case typ >= 1 && typ <= typeSTAPA:
		out = d.flush(out)
		units, err := d.h264.Unmarshal(payload)
		if err != nil {
			// A STAP-A size running past the payload.
			d.stats.Dropped++
			break
		}
		out = d.split(out, units, false)
	case typ == typeFUA:
		out = d.pushFUA(out, pkt.Timestamp, payload)
	default:
		// STAP-B, MTAP and FU-B only occur in interleaved mode.
		d.stats.Dropped++
	}
	if pkt.Marker && d.pending {
		out = d.flush(out)
	}
	return out
}

// Flush returns the pending fragmented unit, if any. It is marked corrupt
// because its last fragment never arrived.
func (d *Depacketizer) Flush() [][]byte {
	return d.flush(nil)
}

// flush closes the pending unit with an empty end fragment, which makes
// h264 hand back what it buffered.
func (d *Depacketizer) flush(out [][]byte) [][]byte {
	if !d.pending {
		return out
	}
	d.broken = true
	return d.finishFUA(out, []byte{d.indicator, fuEnd | d.fuType})
}

func (d *Depacketizer) finishFUA(out [][]byte, payload []byte) [][]byte {
	units, err := d.h264.Unmarshal(payload)
	corrupt := d.broken || d.indicator&forbiddenBit != 0
	d.pending, d.broken = false, false
	if err != nil {
		d.stats.Dropped++
		return out
	}
	return d.split(out, units, corrupt)
}

// split emits the length-prefixed units produced by h264.
func (d *Depacketizer) split(out [][]byte, buf []byte, corrupt bool) [][]byte {
	for len(buf) >= 4 {
		size := int(binary.BigEndian.Uint32(buf))
		buf = buf[4:]
		if size > len(buf) {
			size = len(buf)
		}
		nal := buf[:size:size]
		buf = buf[size:]
		if size == 0 {
			continue
		}
		if corrupt {
			nal[0] |= forbiddenBit
		}
		if nal[0]&forbiddenBit != 0 {
			d.stats.Corrupt++
		}
		d.stats.Units++
		out = append(out, nal)
	}
	return out
}

func (d *Depacketizer) pushFUA(out [][]byte, ts uint32, payload []byte) [][]byte {
	if len(payload) < 2 {
		d.stats.Dropped++
		return out
	}
	header := payload[1]
	switch {
	case header&fuStart != 0:
		out = d.flush(out)
		d.pending, d.ts = true, ts
		// Start and end in one fragment is not allowed.
		d.broken = header&fuEnd != 0
	case !d.pending:
		d.pending, d.broken, d.ts = true, true, ts
	}
	d.indicator, d.fuType = payload[0], header&0x1f
	if header&fuEnd != 0 {
		return d.finishFUA(out, payload)
	}
	if _, err := d.h264.Unmarshal(payload); err != nil {
		d.stats.Dropped++
	}
	return out
}
