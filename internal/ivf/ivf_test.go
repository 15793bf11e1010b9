package ivf

import (
	"bytes"
	"encoding/binary"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deepteams/vcodec/internal/codecerr"
)

var testHeader = Header{FourCC: FourCCVP8, Width: 176, Height: 144, Rate: 30, Scale: 1}

func TestHeaderLayout(t *testing.T) {
	data := testHeader.Append(nil)
	require.Len(t, data, HeaderSize)
	assert.Equal(t, "DKIF", string(data[0:4]))
	assert.Equal(t, uint16(32), binary.LittleEndian.Uint16(data[6:8]))
	assert.Equal(t, "VP80", FourCCString(binary.LittleEndian.Uint32(data[8:12])))

	got, n, err := ParseHeader(data)
	require.NoError(t, err)
	assert.Equal(t, HeaderSize, n)
	assert.Equal(t, testHeader, got)
}

func TestParseHeaderErrors(t *testing.T) {
	_, _, err := ParseHeader(make([]byte, 10))
	assert.ErrorIs(t, err, codecerr.ErrEndOfStream)

	data := testHeader.Append(nil)
	copy(data, "RIFF")
	_, _, err = ParseHeader(data)
	assert.ErrorIs(t, err, ErrInvalidSignature)

	data = testHeader.Append(nil)
	data[4] = 1
	_, _, err = ParseHeader(data)
	assert.ErrorIs(t, err, codecerr.ErrUnsupported)

	data = testHeader.Append(nil)
	data[6] = 16
	_, _, err = ParseHeader(data)
	assert.ErrorIs(t, err, ErrInvalidHeader)
}

func TestWriteReadFrames(t *testing.T) {
	var buf bytes.Buffer
	w, err := NewWriter(&buf, testHeader)
	require.NoError(t, err)
	frames := []Frame{
		{Timestamp: 0, Payload: []byte{1, 2, 3}},
		{Timestamp: 1, Payload: nil},
		{Timestamp: 1 << 40, Payload: bytes.Repeat([]byte{9}, 1000)},
	}
	for _, f := range frames {
		require.NoError(t, w.WriteFrame(f.Timestamp, f.Payload))
	}
	require.NoError(t, w.Close())
	assert.Equal(t, uint32(3), w.Count())
	assert.Equal(t, HeaderSize+3*FrameHeaderSize+1003, buf.Len())

	r, err := NewReader(&buf)
	require.NoError(t, err)
	assert.Equal(t, uint32(0), r.Header().Frames, "a plain writer cannot patch the count")
	for i, want := range frames {
		got, err := r.Next()
		require.NoError(t, err, "frame %d", i)
		assert.Equal(t, want.Timestamp, got.Timestamp)
		assert.Equal(t, len(want.Payload), len(got.Payload))
		assert.True(t, bytes.Equal(want.Payload, got.Payload))
	}
	_, err = r.Next()
	assert.Equal(t, io.EOF, err)
}

func TestClosePatchesFrameCount(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.ivf")
	f, err := os.Create(path)
	require.NoError(t, err)
	w, err := NewWriter(f, testHeader)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		require.NoError(t, w.WriteFrame(uint64(i), []byte{byte(i)}))
	}
	require.NoError(t, w.Close())
	require.NoError(t, w.WriteFrame(5, []byte{5}), "the stream position is restored")
	require.NoError(t, w.Close())
	require.NoError(t, f.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	hdr, _, err := ParseHeader(data)
	require.NoError(t, err)
	assert.Equal(t, uint32(6), hdr.Frames)
	assert.Len(t, data, HeaderSize+6*(FrameHeaderSize+1))
}

func TestTruncatedFrame(t *testing.T) {
	var buf bytes.Buffer
	w, err := NewWriter(&buf, testHeader)
	require.NoError(t, err)
	require.NoError(t, w.WriteFrame(0, make([]byte, 100)))
	data := buf.Bytes()

	r, err := NewReader(bytes.NewReader(data[:len(data)-10]))
	require.NoError(t, err)
	_, err = r.Next()
	assert.ErrorIs(t, err, codecerr.ErrEndOfStream)

	r, err = NewReader(bytes.NewReader(data[:HeaderSize+5]))
	require.NoError(t, err)
	_, err = r.Next()
	assert.ErrorIs(t, err, codecerr.ErrEndOfStream)

	_, err = NewReader(bytes.NewReader(data[:20]))
	assert.ErrorIs(t, err, codecerr.ErrEndOfStream)
}

func TestHeaderExtensionIsSkipped(t *testing.T) {
	data := testHeader.Append(nil)
	binary.LittleEndian.PutUint16(data[6:8], HeaderSize+4)
	data = append(data, 0xaa, 0xbb, 0xcc, 0xdd)
	data = binary.LittleEndian.AppendUint32(data, 2)
	data = binary.LittleEndian.AppendUint64(data, 7)
	data = append(data, 5, 6)

	r, err := NewReader(bytes.NewReader(data))
	require.NoError(t, err)
	f, err := r.Next()
	require.NoError(t, err)
	assert.Equal(t, Frame{Timestamp: 7, Payload: []byte{5, 6}}, f)
}

func TestOversizedFrame(t *testing.T) {
	data := testHeader.Append(nil)
	data = binary.LittleEndian.AppendUint32(data, MaxFrameSize+1)
	data = binary.LittleEndian.AppendUint64(data, 0)
	r, err := NewReader(bytes.NewReader(data))
	require.NoError(t, err)
	_, err = r.Next()
	assert.ErrorIs(t, err, ErrFrameTooLarge)
}
