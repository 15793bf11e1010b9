// Package ivf reads and writes the IVF container: a 32-byte file header
// followed by frames, each prefixed with its size and timestamp.
package ivf

import (
	"encoding/binary"

	"github.com/pkg/errors"

	"github.com/deepteams/vcodec/internal/codecerr"
)

// FourCC creates a FourCC value from four bytes (little-endian).
func FourCC(a, b, c, d byte) uint32 {
	return uint32(a) | uint32(b)<<8 | uint32(c)<<16 | uint32(d)<<24
}

// Codec FourCC values.
var (
	FourCCVP8  = FourCC('V', 'P', '8', '0')
	FourCCH264 = FourCC('H', '2', '6', '4')
)

// Layout constants.
const (
	HeaderSize      = 32
	FrameHeaderSize = 12
	MaxFrameSize    = 1 << 28 // sanity bound on a single frame payload

	countOffset = 24
)

var signature = [4]byte{'D', 'K', 'I', 'F'}

// Common errors.
var (
	ErrInvalidSignature = errors.New("ivf: invalid DKIF signature")
	ErrInvalidHeader    = errors.New("ivf: invalid header size")
	ErrFrameTooLarge    = errors.New("ivf: frame too large")
)

// Header is the IVF file header. The frame rate is Rate/Scale.
type Header struct {
	FourCC        uint32
	Width, Height int
	Rate, Scale   uint32
	Frames        uint32 // frame count as written in the file
}

// ParseHeader validates and parses the file header. It returns the header
// and the number of bytes it occupies, which may exceed HeaderSize.
func ParseHeader(data []byte) (Header, int, error) {
	if len(data) < HeaderSize {
		return Header{}, 0, errors.Wrap(codecerr.ErrEndOfStream, "ivf: file header")
	}
	if [4]byte(data[0:4]) != signature {
		return Header{}, 0, ErrInvalidSignature
	}
	if v := binary.LittleEndian.Uint16(data[4:6]); v != 0 {
		return Header{}, 0, codecerr.Unsupportedf("ivf: version %d", v)
	}
	size := int(binary.LittleEndian.Uint16(data[6:8]))
	if size < HeaderSize {
		return Header{}, 0, ErrInvalidHeader
	}
	return Header{
		FourCC: binary.LittleEndian.Uint32(data[8:12]),
		Width:  int(binary.LittleEndian.Uint16(data[12:14])),
		Height: int(binary.LittleEndian.Uint16(data[14:16])),
		Rate:   binary.LittleEndian.Uint32(data[16:20]),
		Scale:  binary.LittleEndian.Uint32(data[20:24]),
		Frames: binary.LittleEndian.Uint32(data[24:28]),
	}, size, nil
}

// Append appends the encoded header to dst.
func (h *Header) Append(dst []byte) []byte {
	dst = append(dst, signature[:]...)
	dst = binary.LittleEndian.AppendUint16(dst, 0)
	dst = binary.LittleEndian.AppendUint16(dst, HeaderSize)
	dst = binary.LittleEndian.AppendUint32(dst, h.FourCC)
	dst = binary.LittleEndian.AppendUint16(dst, uint16(h.Width))
	dst = binary.LittleEndian.AppendUint16(dst, uint16(h.Height))
	dst = binary.LittleEndian.AppendUint32(dst, h.Rate)
	dst = binary.LittleEndian.AppendUint32(dst, h.Scale)
	dst = binary.LittleEndian.AppendUint32(dst, h.Frames)
	return binary.LittleEndian.AppendUint32(dst, 0)
}

// FourCCString returns a human-readable string for a FourCC value.
func FourCCString(fourcc uint32) string {
	b := [4]byte{
		byte(fourcc),
		byte(fourcc >> 8),
		byte(fourcc >> 16),
		byte(fourcc >> 24),
	}
	return string(b[:])
}

// Frame is one compressed frame with its presentation timestamp in
// Scale/Rate units.
type Frame struct {
	Timestamp uint64
	Payload   []byte
}
