// Package cache assigns stable ids to content nodes and keeps per-node
// caches whose entries are released together with the id.
//
// Nodes are owned by the host tree, so nothing here can tell on its own when
// one goes away. The sweeper calls Arena.Sweep with a reachability test;
// every id whose node fails the test is released and each Lifetime drops its
// entry for it.
package cache

import "golang.org/x/net/html"

// NodeID identifies a node within an Arena. Ids are never reused, not even
// across Clear, so a stale id can never alias a newer node.
type NodeID uint64

// Arena maps nodes to ids. It is not safe for concurrent use; callers run on
// the engine loop.
type Arena struct {
	ids   map[*html.Node]NodeID
	nodes map[NodeID]*html.Node
	next  NodeID
	gen   uint64

	onRelease []func(NodeID)
	onClear   []func()
}

// NewArena returns an empty arena at generation 0.
func NewArena() *Arena {
	return &Arena{
		ids:   make(map[*html.Node]NodeID),
		nodes: make(map[NodeID]*html.Node),
	}
}

// ID returns the id of n, assigning one on first sight.
func (a *Arena) ID(n *html.Node) NodeID {
	if id, ok := a.ids[n]; ok {
		return id
	}
	a.next++
	id := a.next
	a.ids[n] = id
	a.nodes[id] = n
	return id
}

// Lookup returns the id of n without assigning one.
func (a *Arena) Lookup(n *html.Node) (NodeID, bool) {
	id, ok := a.ids[n]
	return id, ok
}

// Node resolves an id back to its node.
func (a *Arena) Node(id NodeID) (*html.Node, bool) {
	n, ok := a.nodes[id]
	return n, ok
}

// Len is the number of live ids.
func (a *Arena) Len() int { return len(a.ids) }

// Generation increments on every Clear.
func (a *Arena) Generation() uint64 { return a.gen }

// OnRelease registers fn to run for every id released by Sweep.
func (a *Arena) OnRelease(fn func(NodeID)) {
	a.onRelease = append(a.onRelease, fn)
}

// OnClear registers fn to run on Clear.
func (a *Arena) OnClear(fn func()) {
	a.onClear = append(a.onClear, fn)
}

// Sweep releases every id whose node fails alive and returns them.
func (a *Arena) Sweep(alive func(*html.Node) bool) []NodeID {
	var dead []NodeID
	for n, id := range a.ids {
		if alive(n) {
			continue
		}
		dead = append(dead, id)
		delete(a.ids, n)
		delete(a.nodes, id)
	}
	for _, id := range dead {
		for _, fn := range a.onRelease {
			fn(id)
		}
	}
	return dead
}

// Clear forgets every node, bumps the generation and clears all caches.
func (a *Arena) Clear() {
	a.ids = make(map[*html.Node]NodeID)
	a.nodes = make(map[NodeID]*html.Node)
	a.gen++
	for _, fn := range a.onClear {
		fn()
	}
}
