package ivf

import (
	"encoding/binary"
	"io"

	"github.com/pkg/errors"

	"github.com/deepteams/vcodec/internal/codecerr"
)

// Reader reads frames from an IVF stream.
type Reader struct {
	r   io.Reader
	hdr Header
	n   int
}

// NewReader reads and validates the file header.
func NewReader(r io.Reader) (*Reader, error) {
	var buf [HeaderSize]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return nil, errors.Wrap(eofAsTruncation(err), "ivf: reading file header")
	}
	hdr, size, err := ParseHeader(buf[:])
	if err != nil {
		return nil, err
	}
	if size > HeaderSize {
		if _, err := io.CopyN(io.Discard, r, int64(size-HeaderSize)); err != nil {
			return nil, errors.Wrap(eofAsTruncation(err), "ivf: skipping header extension")
		}
	}
	return &Reader{r: r, hdr: hdr}, nil
}

// Header returns the file header.
func (r *Reader) Header() Header { return r.hdr }

// Next returns the next frame. It returns io.EOF after the last complete
// frame and an error wrapping codecerr.ErrEndOfStream for a cut-off one.
func (r *Reader) Next() (Frame, error) {
	var hdr [FrameHeaderSize]byte
	if _, err := io.ReadFull(r.r, hdr[:]); err != nil {
		if err == io.EOF {
			return Frame{}, io.EOF
		}
		return Frame{}, errors.Wrapf(eofAsTruncation(err), "ivf: frame %d header", r.n)
	}
	size := binary.LittleEndian.Uint32(hdr[0:4])
	if size > MaxFrameSize {
		return Frame{}, errors.Wrapf(ErrFrameTooLarge, "frame %d: %d bytes", r.n, size)
	}
	f := Frame{
		Timestamp: binary.LittleEndian.Uint64(hdr[4:12]),
		Payload:   make([]byte, size),
	}
	if _, err := io.ReadFull(r.r, f.Payload); err != nil {
		return Frame{}, errors.Wrapf(eofAsTruncation(err), "ivf: frame %d payload", r.n)
	}
	r.n++
	return f, nil
}

func eofAsTruncation(err error) error {
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		return codecerr.ErrEndOfStream
	}
	return err
}
