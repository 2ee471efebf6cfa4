package commitorder

import (
	"github.com/cespare/xxhash/v2"
)

type visitState uint8

const (
	notVisited visitState = iota
	inProgress
	visited
)

type node[T any] struct {
	key        string
	item       T
	dependents []string
	seen       map[string]struct{}
}

// Calculator orders nodes so that every dependency comes before its
// dependents. Nodes and edges are kept in insertion order, which makes the
// result deterministic for a given sequence of calls. A Calculator is not
// safe for concurrent use.
type Calculator[T any] struct {
	nodes []*node[T]
	index map[string]*node[T]

	digest      *xxhash.Digest
	fingerprint uint64
	orderedFor  uint64
	order       []string
	cyclic      bool
}

// New creates an empty calculator.
func New[T any]() *Calculator[T] {
	c := &Calculator[T]{}
	c.Clear()
	return c
}

// AddNode adds a node for key carrying item. It returns false if the key
// is already present; the existing item is kept.
func (c *Calculator[T]) AddNode(key string, item T) bool {
	if _, ok := c.index[key]; ok {
		return false
	}
	n := &node[T]{key: key, item: item, seen: make(map[string]struct{})}
	c.nodes = append(c.nodes, n)
	c.index[key] = n
	c.mix("n", key)
	return true
}

// HasNode reports whether key was added.
func (c *Calculator[T]) HasNode(key string) bool {
	_, ok := c.index[key]
	return ok
}

// Node returns the item of key.
func (c *Calculator[T]) Node(key string) (T, bool) {
	n, ok := c.index[key]
	if !ok {
		var zero T
		return zero, false
	}
	return n.item, true
}

// AddDependency records that dependency must be written before dependent.
// Both nodes must exist; repeated edges are ignored. Self edges are kept
// and tolerated like any other cycle.
func (c *Calculator[T]) AddDependency(dependency, dependent string) bool {
	from, ok := c.index[dependency]
	if !ok || !c.HasNode(dependent) {
		return false
	}
	if _, dup := from.seen[dependent]; dup {
		return true
	}
	from.seen[dependent] = struct{}{}
	from.dependents = append(from.dependents, dependent)
	c.mix("e", dependency, dependent)
	return true
}

func (c *Calculator[T]) mix(parts ...string) {
	for _, p := range parts {
		_, _ = c.digest.WriteString(p)
		_, _ = c.digest.Write([]byte{0})
	}
	c.fingerprint = c.digest.Sum64()
}

// Fingerprint identifies the current graph structure.
func (c *Calculator[T]) Fingerprint() uint64 {
	return c.fingerprint
}

// Order returns node keys with dependencies first. The result is
// recomputed only when nodes or edges were added since the last call.
//
// Cycles do not fail the sort: a node reached again while still being
// visited is skipped, so members of a cycle keep the order in which the
// depth-first walk discovered them.
func (c *Calculator[T]) Order() []string {
	if c.order != nil && c.orderedFor == c.fingerprint {
		return append([]string(nil), c.order...)
	}

	state := make(map[string]visitState, len(c.nodes))
	sorted := make([]string, 0, len(c.nodes))
	c.cyclic = false

	var visit func(n *node[T])
	visit = func(n *node[T]) {
		state[n.key] = inProgress
		for _, key := range n.dependents {
			switch state[key] {
			case notVisited:
				visit(c.index[key])
			case inProgress:
				c.cyclic = true
			}
		}
		state[n.key] = visited
		sorted = append(sorted, n.key)
	}

	for _, n := range c.nodes {
		if state[n.key] == notVisited {
			visit(n)
		}
	}

	for i, j := 0, len(sorted)-1; i < j; i, j = i+1, j-1 {
		sorted[i], sorted[j] = sorted[j], sorted[i]
	}

	c.order = sorted
	c.orderedFor = c.fingerprint
	return append([]string(nil), sorted...)
}

// Reverse returns Order backwards: dependents first, as deletes need.
func (c *Calculator[T]) Reverse() []string {
	order := c.Order()
	for i, j := 0, len(order)-1; i < j; i, j = i+1, j-1 {
		order[i], order[j] = order[j], order[i]
	}
	return order
}

// Items returns node items in Order.
func (c *Calculator[T]) Items() []T {
	keys := c.Order()
	items := make([]T, len(keys))
	for i, k := range keys {
		items[i] = c.index[k].item
	}
	return items
}

// Cyclic reports whether the last computed order had to break a cycle.
func (c *Calculator[T]) Cyclic() bool {
	c.Order()
	return c.cyclic
}

// Len returns the number of nodes.
func (c *Calculator[T]) Len() int {
	return len(c.nodes)
}

// Clear removes every node and edge.
func (c *Calculator[T]) Clear() {
	c.nodes = nil
	c.index = make(map[string]*node[T])
	c.digest = xxhash.New()
	c.fingerprint = c.digest.Sum64()
	c.order = nil
	c.orderedFor = 0
	c.cyclic = false
}
