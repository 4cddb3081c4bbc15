package dom

import (
	"slices"

	"github.com/google/uuid"
	"golang.org/x/net/html"
)

// RecordType distinguishes structural from attribute records.
type RecordType int

const (
	ChildList RecordType = iota
	Attributes
)

func (t RecordType) String() string {
	if t == Attributes {
		return "attributes"
	}
	return "childList"
}

// MutationRecord describes one change made through the Tree.
type MutationRecord struct {
	Type          RecordType
	Target        *html.Node
	Added         []*html.Node
	Removed       []*html.Node
	AttributeName string
	OldValue      string
	// Internal is set on records written by Hide, Mark and Unmark.
	Internal bool
}

// Batch is what an observation callback receives: every record queued since
// the previous delivery.
type Batch struct {
	ID      uuid.UUID
	Records []MutationRecord
}

// ObserveOptions select which records reach an observation.
type ObserveOptions struct {
	ChildList bool
	Subtree   bool
	// Attributes enables attribute records; a non-empty AttributeFilter
	// implies it and restricts the names reported.
	Attributes      bool
	AttributeFilter []string
}

// Observation is a live subscription created by Tree.Observe.
type Observation struct {
	tree      *Tree
	root      *html.Node
	opts      ObserveOptions
	fn        func(Batch)
	queue     []MutationRecord
	scheduled bool
	connected bool
}

// Root is the observed node.
func (o *Observation) Root() *html.Node { return o.root }

// Connected reports whether Disconnect has not been called yet.
func (o *Observation) Connected() bool { return o != nil && o.connected }

// Disconnect stops delivery and drops queued records. Safe to call twice.
func (o *Observation) Disconnect() {
	if o == nil || !o.connected {
		return
	}
	o.connected = false
	o.queue = nil
	o.tree.observations = slices.DeleteFunc(o.tree.observations, func(x *Observation) bool { return x == o })
}

func (o *Observation) wants(r MutationRecord) bool {
	if r.Target != o.root && !(o.opts.Subtree && IsAncestor(o.root, r.Target)) {
		return false
	}
	switch r.Type {
	case ChildList:
		return o.opts.ChildList
	case Attributes:
		if len(o.opts.AttributeFilter) > 0 {
			return slices.Contains(o.opts.AttributeFilter, r.AttributeName)
		}
		return o.opts.Attributes
	}
	return false
}

func (o *Observation) flush() {
	o.scheduled = false
	if !o.connected || len(o.queue) == 0 {
		return
	}
	recs := o.queue
	o.queue = nil
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	o.fn(Batch{ID: id, Records: recs})
}

// Observe subscribes fn to changes under root. Records are delivered through
// the tree's dispatcher after the mutating call returns, batched per
// dispatch.
func (t *Tree) Observe(root *html.Node, opts ObserveOptions, fn func(Batch)) *Observation {
	o := &Observation{tree: t, root: root, opts: opts, fn: fn, connected: true}
	t.observations = append(t.observations, o)
	return o
}

func (t *Tree) record(r MutationRecord) {
	for _, o := range t.observations {
		if !o.wants(r) {
			continue
		}
		o.queue = append(o.queue, r)
		if !o.scheduled {
			o.scheduled = true
			t.dispatch(o.flush)
		}
	}
}
