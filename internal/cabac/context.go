// Package cabac implements the H.264 context-adaptive binary arithmetic
// coding engine: the context model store, the arithmetic decoder and its
// mirrored encoder. Binarisations live with the syntax layer in package h264.
package cabac

// NumContexts is the size of the context model store (ctxIdx 0..1023).
const NumContexts = 1024

// numInitContexts covers the contexts used by 4:2:0 frame coding.
const numInitContexts = 460

// Context is one probability model.
type Context struct {
	State uint8 // pStateIdx, 0..63
	MPS   uint8 // valMPS, 0 or 1
}

// Contexts is the full context model store of a slice.
type Contexts [NumContexts]Context

// Init derives every context from its (m, n) pair for the given slice QP.
// intra selects the I/SI table; otherwise cabacInitIdc picks one of the
// three P/B tables. Contexts beyond the 4:2:0 range start from (0, 0).
func (c *Contexts) Init(intra bool, cabacInitIdc, qp int) {
	tab := 0
	if !intra {
		tab = 1 + cabacInitIdc
	}
	qp = clip3(0, 51, qp)
	for i := range c {
		var m, n int
		if i < numInitContexts {
			m, n = int(initMN[tab][i][0]), int(initMN[tab][i][1])
		}
		pre := clip3(1, 126, ((m*qp)>>4)+n)
		if pre <= 63 {
			c[i] = Context{State: uint8(63 - pre), MPS: 0}
		} else {
			c[i] = Context{State: uint8(pre - 64), MPS: 1}
		}
	}
}

func clip3(lo, hi, v int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
