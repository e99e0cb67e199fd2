package planner

import "github.com/aretw0/quire/pkg/domain"

// node is one search state together with the path that reached it.
type node struct {
	state  domain.WorldState
	g      float64
	h      int
	parent *node
	action domain.Action
	path   []int // catalog indices along the path
	seq    int   // insertion order
}

func (n *node) f() float64 { return n.g + float64(n.h) }

// less is the total frontier order.
func less(a, b *node) bool {
	if fa, fb := a.f(), b.f(); fa != fb {
		return fa < fb
	}
	if a.h != b.h {
		return a.h < b.h
	}
	if c := comparePaths(a.path, b.path); c != 0 {
		return c < 0
	}
	return a.seq < b.seq
}

// comparePaths orders paths lexicographically; a proper prefix sorts first.
func comparePaths(a, b []int) int {
	for i := 0; i < len(a) && i < len(b); i++ {
		if a[i] != b[i] {
			if a[i] < b[i] {
				return -1
			}
			return 1
		}
	}
	switch {
	case len(a) < len(b):
		return -1
	case len(a) > len(b):
		return 1
	}
	return 0
}

// queue implements heap.Interface over nodes.
type queue []*node

func (q queue) Len() int           { return len(q) }
func (q queue) Less(i, j int) bool { return less(q[i], q[j]) }
func (q queue) Swap(i, j int)      { q[i], q[j] = q[j], q[i] }

func (q *queue) Push(x any) { *q = append(*q, x.(*node)) }

func (q *queue) Pop() any {
	old := *q
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*q = old[:n-1]
	return item
}
