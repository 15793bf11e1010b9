// Package cavlc implements the H.264 context-adaptive variable length
// coefficient coder used by Baseline and Main profile slices.
package cavlc

import (
	"github.com/pkg/errors"

	"github.com/deepteams/vcodec/internal/bitio"
	"github.com/deepteams/vcodec/internal/codecerr"
)

// BTree is a binary prefix trie mapping bit strings to values. It is built
// once and is read-only afterwards, so it is safe for concurrent readers.
type BTree struct {
	name  string
	nodes []btNode
}

type btNode struct {
	child [2]int32 // 0 means absent; the root is never a child
	value int32
	leaf  bool
}

// NewBTree returns an empty trie. name is used in syntax errors.
func NewBTree(name string) *BTree {
	return &BTree{name: name, nodes: make([]btNode, 1, 64)}
}

// Insert adds the code of length bits. Codes must be prefix-free.
func (t *BTree) Insert(code uint32, length int, value int) error {
	if length <= 0 || length > 32 {
		return errors.Errorf("cavlc: %s: bad code length %d", t.name, length)
	}
	n := 0
	for i := length - 1; i >= 0; i-- {
		if t.nodes[n].leaf {
			return errors.Errorf("cavlc: %s: code %0*b extends a leaf", t.name, length, code)
		}
		b := (code >> uint(i)) & 1
		next := t.nodes[n].child[b]
		if next == 0 {
			t.nodes = append(t.nodes, btNode{})
			next = int32(len(t.nodes) - 1)
			t.nodes[n].child[b] = next
		}
		n = int(next)
	}
	if t.nodes[n].leaf || t.nodes[n].child != [2]int32{} {
		return errors.Errorf("cavlc: %s: code %0*b is a prefix of another", t.name, length, code)
	}
	t.nodes[n].leaf = true
	t.nodes[n].value = int32(value)
	return nil
}

// Read walks the trie one bit at a time. A path leaving the trie is a
// SyntaxError naming the table.
func (t *BTree) Read(r *bitio.Reader) (int, error) {
	n := 0
	depth := 0
	for !t.nodes[n].leaf {
		b := r.ReadBit()
		if err := r.Err(); err != nil {
			return 0, err
		}
		depth++
		next := t.nodes[n].child[b]
		if next == 0 {
			return 0, codecerr.Malformed(t.name, int64(depth), "no code matches")
		}
		n = int(next)
	}
	return int(t.nodes[n].value), nil
}

func mustInsert(t *BTree, code uint32, length int, value int) {
	if err := t.Insert(code, length, value); err != nil {
		panic(err)
	}
}
