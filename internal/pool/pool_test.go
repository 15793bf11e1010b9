package pool

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetLengthAndCapacity(t *testing.T) {
	for _, tc := range []struct {
		size   int
		minCap int
	}{
		{1, SizeQCIF},
		{176 * 144, SizeQCIF},
		{SizeQCIF + 1, SizeCIF},
		{352 * 288, SizeCIF},
		{720 * 576, SizeSD},
		{1280 * 720, SizeHD},
		{1920 * 1088, SizeFHD},
	} {
		b := Get(tc.size)
		assert.Len(t, b, tc.size)
		assert.GreaterOrEqual(t, cap(b), tc.minCap, "size %d", tc.size)
		Put(b)
	}
}

func TestLargeBuffersAreNotPooled(t *testing.T) {
	b := Get(SizeFHD + 1)
	assert.Len(t, b, SizeFHD+1)
	assert.Equal(t, SizeFHD+1, cap(b))
	Put(b)
}

func TestPutIgnoresForeignBuffers(t *testing.T) {
	Put(make([]byte, 100))
	Put(make([]byte, 0, SizeCIF+7))
	Put(nil)
	b := Get(SizeCIF)
	assert.Len(t, b, SizeCIF)
	Put(b)
}

func TestGetFilled(t *testing.T) {
	b := Get(4096)
	for i := range b {
		b[i] = 0xaa
	}
	Put(b)
	for _, v := range []byte{0, 128} {
		f := GetFilled(4096, v)
		for i, x := range f {
			if x != v {
				t.Fatalf("GetFilled(%d): byte %d = %d", v, i, x)
			}
		}
		Put(f)
	}
}

func TestConcurrentGetPut(t *testing.T) {
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				b := Get(1000 * (g + 1) * (i%5 + 1))
				b[0] = byte(i)
				Put(b)
			}
		}(g)
	}
	wg.Wait()
}
