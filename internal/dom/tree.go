// Package dom hosts the content tree the engine watches.
//
// A Tree wraps an x/net/html document, a logical location and a history
// stack. Every mutation made through it produces MutationRecords for
// matching observations, and every navigation notifies registered hooks.
// A Tree is not safe for concurrent use: the engine confines it to its loop
// goroutine and hosts mutate it through engine.Mutate.
package dom

import (
	"fmt"
	"io"
	"slices"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Tree is the mutable document plus its location.
type Tree struct {
	doc      *html.Node
	location string
	history  []string

	observations []*Observation
	navHooks     []*navHook
	dispatch     func(func())
}

// Option configures a Tree.
type Option func(*Tree)

// WithDispatcher sets how observation and navigation callbacks are
// delivered. The engine passes its scheduler's Post; the default runs the
// callback synchronously.
func WithDispatcher(fn func(func())) Option {
	return func(t *Tree) { t.dispatch = fn }
}

// New wraps doc. A nil doc yields an empty document.
func New(doc *html.Node, location string, opts ...Option) *Tree {
	if doc == nil {
		doc = emptyDocument()
	}
	t := &Tree{
		doc:      doc,
		location: location,
		history:  []string{location},
		dispatch: func(fn func()) { fn() },
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func emptyDocument() *html.Node {
	doc, err := html.Parse(strings.NewReader("<html><head></head><body></body></html>"))
	if err != nil {
		return &html.Node{Type: html.DocumentNode}
	}
	return doc
}

// Document is the root document node.
func (t *Tree) Document() *html.Node { return t.doc }

// Body is the <body> element, or the document if there is none.
func (t *Tree) Body() *html.Node {
	if b := SelectFirst(t.doc, "body"); b != nil {
		return b
	}
	return t.doc
}

// Location is the current logical location.
func (t *Tree) Location() string { return t.location }

// Find queries the whole document.
func (t *Tree) Find(selector string) []*html.Node {
	return Select(t.doc, selector)
}

// Contains reports whether n is still attached to the document.
func (t *Tree) Contains(n *html.Node) bool {
	return n != nil && IsAncestor(t.doc, n)
}

// AppendHTML parses fragment in the context of parent and appends the
// resulting nodes to it.
func (t *Tree) AppendHTML(parent *html.Node, fragment string) ([]*html.Node, error) {
	if parent == nil {
		return nil, fmt.Errorf("dom: append to nil parent")
	}
	ctx := parent
	if parent.Type != html.ElementNode {
		ctx = &html.Node{Type: html.ElementNode, Data: "div", DataAtom: atom.Div}
	}
	nodes, err := html.ParseFragment(strings.NewReader(fragment), ctx)
	if err != nil {
		return nil, fmt.Errorf("dom: parse fragment: %w", err)
	}
	for _, n := range nodes {
		parent.AppendChild(n)
	}
	if len(nodes) > 0 {
		t.record(MutationRecord{Type: ChildList, Target: parent, Added: nodes})
	}
	return nodes, nil
}

// AppendChild attaches an already-built node.
func (t *Tree) AppendChild(parent, child *html.Node) {
	if child.Parent != nil {
		t.Remove(child)
	}
	parent.AppendChild(child)
	t.record(MutationRecord{Type: ChildList, Target: parent, Added: []*html.Node{child}})
}

// Remove detaches n from its parent. Detached nodes are ignored.
func (t *Tree) Remove(n *html.Node) {
	if n == nil || n.Parent == nil {
		return
	}
	parent := n.Parent
	parent.RemoveChild(n)
	t.record(MutationRecord{Type: ChildList, Target: parent, Removed: []*html.Node{n}})
}

// SetAttr sets key on n, recording the change when the value differs.
func (t *Tree) SetAttr(n *html.Node, key, val string) {
	t.setAttr(n, key, val, false)
}

// RemoveAttr drops key from n.
func (t *Tree) RemoveAttr(n *html.Node, key string) {
	t.removeAttr(n, key, false)
}

func (t *Tree) setAttr(n *html.Node, key, val string, internal bool) {
	if n == nil || n.Type != html.ElementNode {
		return
	}
	for i, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			if a.Val == val {
				return
			}
			old := a.Val
			n.Attr[i].Val = val
			t.record(MutationRecord{Type: Attributes, Target: n, AttributeName: key, OldValue: old, Internal: internal})
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
	t.record(MutationRecord{Type: Attributes, Target: n, AttributeName: key, Internal: internal})
}

func (t *Tree) removeAttr(n *html.Node, key string, internal bool) {
	if n == nil {
		return
	}
	i := slices.IndexFunc(n.Attr, func(a html.Attribute) bool { return a.Namespace == "" && a.Key == key })
	if i < 0 {
		return
	}
	old := n.Attr[i].Val
	n.Attr = slices.Delete(n.Attr, i, i+1)
	t.record(MutationRecord{Type: Attributes, Target: n, AttributeName: key, OldValue: old, Internal: internal})
}

// ReplaceDocument swaps in a freshly loaded document at location. Existing
// observations keep pointing at nodes of the old document and receive
// nothing further; navigation hooks see a NavLoad event.
func (t *Tree) ReplaceDocument(doc *html.Node, location string) {
	if doc == nil {
		doc = emptyDocument()
	}
	t.doc = doc
	t.location = location
	t.history = []string{location}
	t.notify(NavEvent{Kind: NavLoad, Location: location})
}

// Render writes the current document as HTML.
func (t *Tree) Render(w io.Writer) error {
	return html.Render(w, t.doc)
}
