package ivf

import (
	"encoding/binary"
	"io"

	"github.com/pkg/errors"
)

// Writer writes an IVF stream. The frame count in the header is patched on
// Close when the destination is an io.WriteSeeker.
type Writer struct {
	w     io.Writer
	hdr   Header
	count uint32
	err   error
}

// NewWriter writes hdr and returns a Writer for the frames that follow.
func NewWriter(w io.Writer, hdr Header) (*Writer, error) {
	if _, err := w.Write(hdr.Append(nil)); err != nil {
		return nil, errors.Wrap(err, "ivf: writing file header")
	}
	return &Writer{w: w, hdr: hdr}, nil
}

// WriteFrame writes one frame. Errors are sticky.
func (w *Writer) WriteFrame(timestamp uint64, payload []byte) error {
	if w.err != nil {
		return w.err
	}
	if len(payload) > MaxFrameSize {
		return errors.Wrapf(ErrFrameTooLarge, "%d bytes", len(payload))
	}
	var hdr [FrameHeaderSize]byte
	binary.LittleEndian.PutUint32(hdr[0:4], uint32(len(payload)))
	binary.LittleEndian.PutUint64(hdr[4:12], timestamp)
	if _, err := w.w.Write(hdr[:]); err != nil {
		w.err = errors.Wrapf(err, "ivf: frame %d header", w.count)
		return w.err
	}
	if _, err := w.w.Write(payload); err != nil {
		w.err = errors.Wrapf(err, "ivf: frame %d payload", w.count)
		return w.err
	}
	w.count++
	return nil
}

// Count returns the number of frames written.
func (w *Writer) Count() uint32 { return w.count }

// Close records the frame count in the header if the destination can seek.
// It does not close the destination.
func (w *Writer) Close() error {
	if w.err != nil {
		return w.err
	}
	ws, ok := w.w.(io.WriteSeeker)
	if !ok {
		return nil
	}
	end, err := ws.Seek(0, io.SeekCurrent)
	if err != nil {
		return errors.Wrap(err, "ivf: locating end of stream")
	}
	var count [4]byte
	binary.LittleEndian.PutUint32(count[:], w.count)
	if _, err := ws.Seek(countOffset, io.SeekStart); err != nil {
		return errors.Wrap(err, "ivf: seeking to frame count")
	}
	if _, err := ws.Write(count[:]); err != nil {
		return errors.Wrap(err, "ivf: patching frame count")
	}
	_, err = ws.Seek(end, io.SeekStart)
	return errors.Wrap(err, "ivf: restoring stream position")
}
