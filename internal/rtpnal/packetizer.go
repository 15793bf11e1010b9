package rtpnal

import (
	"github.com/pion/rtp"
	"github.com/pion/rtp/codecs"
)

// Packetizer wraps NAL units into RTP packets of one stream. SPS and PPS
// units are held back and sent as a STAP-A ahead of the next unit.
type Packetizer struct {
	PayloadType uint8
	SSRC        uint32

	seq       uint16
	payloader codecs.H264Payloader
}

// NewPacketizer returns a Packetizer whose first packet carries sequence
// number seq.
func NewPacketizer(payloadType uint8, ssrc uint32, seq uint16) *Packetizer {
	return &Packetizer{PayloadType: payloadType, SSRC: ssrc, seq: seq}
}

// Packetize splits nal into packets whose payloads are at most mtu bytes,
// fragmenting it as FU-A when needed. nal may also be an Annex B stream.
func (p *Packetizer) Packetize(nal []byte, mtu int, ts uint32) []*rtp.Packet {
	payloads := p.payloader.Payload(uint16(min(mtu, 0xffff)), nal)
	pkts := make([]*rtp.Packet, len(payloads))
	for i, payload := range payloads {
		pkts[i] = &rtp.Packet{
			Header: rtp.Header{
				Version:        2,
				PayloadType:    p.PayloadType,
				SequenceNumber: p.seq,
				Timestamp:      ts,
				SSRC:           p.SSRC,
			},
			Payload: payload,
		}
		p.seq++
	}
	return pkts
}

// PacketizeAccessUnit packetizes the units of one picture and sets the
// marker bit on its last packet.
func (p *Packetizer) PacketizeAccessUnit(nals [][]byte, mtu int, ts uint32) []*rtp.Packet {
	var pkts []*rtp.Packet
	for _, nal := range nals {
		pkts = append(pkts, p.Packetize(nal, mtu, ts)...)
	}
	if len(pkts) > 0 {
		pkts[len(pkts)-1].Marker = true
	}
	return pkts
}
