package cache

import "golang.org/x/net/html"

// Lifetime is a node-keyed cache bound to an Arena. Entries disappear when
// the arena releases the node's id or is cleared; there is no other eviction.
type Lifetime[V any] struct {
	arena   *Arena
	entries map[NodeID]V
}

// NewLifetime creates a cache and subscribes it to a's release and clear
// events.
func NewLifetime[V any](a *Arena) *Lifetime[V] {
	l := &Lifetime[V]{arena: a, entries: make(map[NodeID]V)}
	a.OnRelease(func(id NodeID) { delete(l.entries, id) })
	a.OnClear(l.Clear)
	return l
}

// Get looks n up without assigning it an id.
func (l *Lifetime[V]) Get(n *html.Node) (V, bool) {
	var zero V
	id, ok := l.arena.Lookup(n)
	if !ok {
		return zero, false
	}
	v, ok := l.entries[id]
	return v, ok
}

// Set stores v for n.
func (l *Lifetime[V]) Set(n *html.Node, v V) {
	l.entries[l.arena.ID(n)] = v
}

// Delete drops the entry for n, if any.
func (l *Lifetime[V]) Delete(n *html.Node) {
	if id, ok := l.arena.Lookup(n); ok {
		delete(l.entries, id)
	}
}

// Len is the number of cached entries.
func (l *Lifetime[V]) Len() int { return len(l.entries) }

// Clear drops every entry.
func (l *Lifetime[V]) Clear() {
	l.entries = make(map[NodeID]V)
}
