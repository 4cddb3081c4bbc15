package cache

import (
	"testing"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

func elem(tag string) *html.Node {
	return &html.Node{Type: html.ElementNode, Data: tag, DataAtom: atom.Lookup([]byte(tag))}
}

func TestArenaStableIDs(t *testing.T) {
	a := NewArena()
	n1, n2 := elem("div"), elem("span")
	id1 := a.ID(n1)
	if a.ID(n1) != id1 {
		t.Fatal("id not stable")
	}
	if a.ID(n2) == id1 {
		t.Fatal("distinct nodes share an id")
	}
	if got, ok := a.Node(id1); !ok || got != n1 {
		t.Fatal("reverse lookup failed")
	}
	if _, ok := a.Lookup(elem("p")); ok {
		t.Fatal("lookup must not assign")
	}
}

func TestSweepReleasesLifetimeEntries(t *testing.T) {
	a := NewArena()
	l := NewLifetime[string](a)
	live, gone := elem("div"), elem("div")
	l.Set(live, "keep")
	l.Set(gone, "drop")

	dead := a.Sweep(func(n *html.Node) bool { return n == live })
	if len(dead) != 1 {
		t.Fatalf("want 1 released id, got %d", len(dead))
	}
	if l.Len() != 1 {
		t.Fatalf("lifetime cache should have 1 entry, got %d", l.Len())
	}
	if _, ok := l.Get(gone); ok {
		t.Fatal("entry for released node survived")
	}
	if v, ok := l.Get(live); !ok || v != "keep" {
		t.Fatal("entry for live node lost")
	}
}

func TestClearBumpsGeneration(t *testing.T) {
	a := NewArena()
	l := NewLifetime[bool](a)
	n := elem("div")
	l.Set(n, true)
	before := a.ID(n)

	a.Clear()
	if a.Generation() != 1 {
		t.Fatalf("generation = %d", a.Generation())
	}
	if l.Len() != 0 || a.Len() != 0 {
		t.Fatal("clear left entries behind")
	}
	if a.ID(n) == before {
		t.Fatal("id reused across generations")
	}
}
