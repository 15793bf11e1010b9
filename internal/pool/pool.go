// Package pool recycles picture plane buffers between frames. Buffers are
// bucketed by the plane sizes of common picture formats.
package pool

import "sync"

// Size classes, rounded up from the 4:2:0 planes of the usual formats.
const (
	SizeQCIF  = 1 << 15 // 176x144 luma
	SizeCIF   = 1 << 17 // 352x288 luma
	SizeSD    = 1 << 19 // 720x576 luma
	SizeHD    = 1 << 20 // 1280x720 luma
	SizeFHD   = 1 << 21 // 1920x1088 luma
	maxPooled = SizeFHD
)

var sizes = [...]int{SizeQCIF, SizeCIF, SizeSD, SizeHD, SizeFHD}

var pools [len(sizes)]sync.Pool

func init() {
	for i := range pools {
		sz := sizes[i]
		pools[i].New = func() any {
			b := make([]byte, sz)
			return &b
		}
	}
}

// bucket returns the pool serving size, or -1 when size is not pooled.
func bucket(size int) int {
	for i, sz := range sizes {
		if size <= sz {
			return i
		}
	}
	return -1
}

// Get returns a buffer of length size. Its contents are undefined. Buffers
// larger than the largest class are allocated directly.
func Get(size int) []byte {
	i := bucket(size)
	if i < 0 {
		return make([]byte, size)
	}
	bp := pools[i].Get().(*[]byte)
	return (*bp)[:size]
}

// GetFilled returns a buffer of length size with every byte set to v.
func GetFilled(size int, v byte) []byte {
	b := Get(size)
	if v == 0 {
		clear(b)
		return b
	}
	for i := range b {
		b[i] = v
	}
	return b
}

// Put hands a buffer obtained from Get back to its pool. Buffers whose
// capacity is not a size class are dropped.
func Put(b []byte) {
	c := cap(b)
	if c > maxPooled {
		return
	}
	i := bucket(c)
	if sizes[i] != c {
		return
	}
	b = b[:c]
	pools[i].Put(&b)
}
