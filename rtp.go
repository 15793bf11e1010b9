package vcodec

import "github.com/deepteams/vcodec/internal/rtpnal"

// RTPDepacketizer reassembles H.264 NAL units from RTP packets. Units that
// lost fragments are still delivered, with forbidden_zero_bit set.
type RTPDepacketizer = rtpnal.Depacketizer

// RTPStats counts the packets and units seen by an RTPDepacketizer.
type RTPStats = rtpnal.Stats

// RTPPacketizer wraps H.264 NAL units into RTP packets.
type RTPPacketizer = rtpnal.Packetizer

// NewRTPDepacketizer returns an empty RTPDepacketizer.
func NewRTPDepacketizer() *RTPDepacketizer { return rtpnal.NewDepacketizer() }

// NewRTPPacketizer returns a packetizer for one stream whose first packet
// carries sequence number seq.
func NewRTPPacketizer(payloadType uint8, ssrc uint32, seq uint16) *RTPPacketizer {
	return rtpnal.NewPacketizer(payloadType, ssrc, seq)
}
