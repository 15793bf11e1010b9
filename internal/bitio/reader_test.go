package bitio

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/deepteams/vcodec/internal/codecerr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReader_ReadBits(t *testing.T) {
	r := NewReader([]byte{0xA5, 0x0F, 0xF0})
	assert.EqualValues(t, 1, r.ReadBit())
	assert.EqualValues(t, 0x2, r.ReadBits(3))
	assert.EqualValues(t, 0x50, r.ReadBits(8))
	assert.EqualValues(t, 0xFF, r.ReadBits(8))
	assert.Equal(t, 4, r.BitsLeft())
	assert.NoError(t, r.Err())
	assert.EqualValues(t, 0, r.ReadBits(5))
	assert.True(t, errors.Is(r.Err(), codecerr.ErrEndOfStream))
}

func TestReader_KnownExpGolomb(t *testing.T) {
	// 1 | 010 | 011 | 00100 | 00101 -> 0, 1, 2, 3, 4
	w := NewWriter(4)
	w.WriteBits(0b1_010_011_00100_00101, 17)
	r := NewReader(w.Bytes())
	for want := uint32(0); want < 5; want++ {
		assert.Equal(t, want, r.ReadUE())
	}
	require.NoError(t, r.Err())
}

func TestExpGolombRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	ue := []uint32{0, 1, 2, 3, 7, 8, 254, 255, 256, 65535, 1 << 20, 1<<31 - 1, 1<<32 - 2}
	se := []int32{0, 1, -1, 2, -2, 127, -128, 1 << 20, -(1 << 20), 1<<31 - 1, -(1<<31 - 1)}
	for i := 0; i < 500; i++ {
		ue = append(ue, uint32(rng.Int63n(1<<32-1)))
		se = append(se, int32(rng.Int63n(1<<32-1)-(1<<31-1)))
	}
	w := NewWriter(0)
	for _, v := range ue {
		w.WriteUE(v)
	}
	for _, v := range se {
		w.WriteSE(v)
	}
	w.WriteTrailingBits()
	r := NewReader(w.Bytes())
	for _, v := range ue {
		if got := r.ReadUE(); got != v {
			t.Fatalf("ue: got %d want %d", got, v)
		}
	}
	for _, v := range se {
		if got := r.ReadSE(); got != v {
			t.Fatalf("se: got %d want %d", got, v)
		}
	}
	require.NoError(t, r.Err())
	assert.False(t, r.MoreRBSPData())
}

func TestTruncatedExpGolomb(t *testing.T) {
	w := NewWriter(0)
	w.WriteTE(0, 1)
	w.WriteTE(1, 1)
	w.WriteTE(5, 7)
	r := NewReader(w.Bytes())
	assert.EqualValues(t, 0, r.ReadTE(1))
	assert.EqualValues(t, 1, r.ReadTE(1))
	assert.EqualValues(t, 5, r.ReadTE(7))
	// te with range 1 is the inverted bit.
	assert.Equal(t, []byte{0b10_00110_0}, w.Bytes())
}

func TestMoreRBSPData(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		skip int
		want bool
	}{
		{"stop bit only", []byte{0x80}, 0, false},
		{"data then stop", []byte{0xC0}, 0, true},
		{"data consumed", []byte{0xC0}, 1, false},
		{"stop in next byte", []byte{0xFF, 0x80}, 7, true},
		{"trailing zero bytes", []byte{0x40, 0x00, 0x00}, 1, false},
		{"all zero", []byte{0x00}, 0, false},
		{"empty", nil, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewReader(tt.data)
			r.Skip(tt.skip)
			assert.Equal(t, tt.want, r.MoreRBSPData())
		})
	}
}

func TestReader_UEOverlongPrefix(t *testing.T) {
	r := NewReader(make([]byte, 8))
	r.buf[7] = 1
	r.ReadUE()
	assert.Error(t, r.Err())
}

func TestWriter_TrailingBits(t *testing.T) {
	w := NewWriter(0)
	w.WriteBits(0b101, 3)
	w.WriteTrailingBits()
	assert.Equal(t, []byte{0b1011_0000}, w.Bytes())
	assert.True(t, w.ByteAligned())
	w.WriteTrailingBits()
	assert.Equal(t, []byte{0b1011_0000, 0x80}, w.Bytes())
}
