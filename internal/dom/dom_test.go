package dom

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/html"
)

const feedHTML = `<html><head><title>t</title><script>var x = "Sponsored";</script></head>
<body><div role="main"><div role="feed" id="feed">
<div role="article" id="a1"><span>Hello</span></div>
</div></div></body></html>`

// queue collects dispatched callbacks so tests control delivery.
type queue struct{ fns []func() }

func (q *queue) post(fn func()) { q.fns = append(q.fns, fn) }

func (q *queue) drain() {
	for len(q.fns) > 0 {
		fn := q.fns[0]
		q.fns = q.fns[1:]
		fn()
	}
}

func newTree(t *testing.T, q *queue) *Tree {
	t.Helper()
	doc, err := ParseString(feedHTML)
	require.NoError(t, err)
	return New(doc, "https://example.test/", WithDispatcher(q.post))
}

func TestParseDropsScriptsAndDecodesCharset(t *testing.T) {
	latin1 := []byte("<html><body><p>caf\xe9</p></body></html>")
	doc, err := Parse(strings.NewReader(string(latin1)), "text/html; charset=ISO-8859-1")
	require.NoError(t, err)
	assert.Equal(t, "café", Text(SelectFirst(doc, "p")))

	doc, err = ParseString(feedHTML)
	require.NoError(t, err)
	assert.Empty(t, Select(doc, "script"))
	assert.NotContains(t, Text(doc), "Sponsored")
}

func TestObserveDeliversBatchedRecords(t *testing.T) {
	q := &queue{}
	tree := newTree(t, q)
	feed := SelectFirst(tree.Document(), "#feed")

	var got []Batch
	obs := tree.Observe(feed, ObserveOptions{ChildList: true, Subtree: true, AttributeFilter: []string{"class"}}, func(b Batch) {
		got = append(got, b)
	})

	_, err := tree.AppendHTML(feed, `<div role="article" id="a2"></div>`)
	require.NoError(t, err)
	a1 := SelectFirst(feed, "#a1")
	tree.SetAttr(a1, "class", "x")
	tree.SetAttr(a1, "title", "ignored by filter")
	assert.Empty(t, got, "delivery waits for the dispatcher")

	q.drain()
	require.Len(t, got, 1)
	recs := got[0].Records
	require.Len(t, recs, 2)
	assert.Equal(t, ChildList, recs[0].Type)
	assert.Len(t, recs[0].Added, 1)
	assert.Equal(t, Attributes, recs[1].Type)
	assert.Equal(t, "class", recs[1].AttributeName)
	assert.NotEqual(t, uuid.Nil, got[0].ID)

	obs.Disconnect()
	tree.Remove(a1)
	q.drain()
	assert.Len(t, got, 1, "no delivery after disconnect")
	assert.False(t, tree.Contains(a1))
}

func TestObserveOutsideRootIgnored(t *testing.T) {
	q := &queue{}
	tree := newTree(t, q)
	feed := SelectFirst(tree.Document(), "#feed")
	calls := 0
	tree.Observe(feed, ObserveOptions{ChildList: true, Subtree: true}, func(Batch) { calls++ })

	_, err := tree.AppendHTML(tree.Body(), `<aside>elsewhere</aside>`)
	require.NoError(t, err)
	q.drain()
	assert.Zero(t, calls)
}

func TestHideIsIdempotent(t *testing.T) {
	q := &queue{}
	tree := newTree(t, q)
	a1 := SelectFirst(tree.Document(), "#a1")
	tree.SetAttr(a1, "style", "color: red")

	assert.True(t, tree.Hide(a1, "Reels"))
	assert.False(t, tree.Hide(a1, "GIF"))
	assert.Equal(t, "Reels", HiddenReason(a1))
	style, _ := Attr(a1, "style")
	assert.Equal(t, "color: red; display: none !important", style)
	assert.False(t, tree.Hide(nil, "x"))
}

func TestHideRecordsAreInternal(t *testing.T) {
	q := &queue{}
	tree := newTree(t, q)
	feed := SelectFirst(tree.Document(), "#feed")
	a1 := SelectFirst(feed, "#a1")
	var recs []MutationRecord
	tree.Observe(feed, ObserveOptions{Subtree: true, AttributeFilter: []string{"style", ProcessedAttr}}, func(b Batch) {
		recs = append(recs, b.Records...)
	})

	tree.SetAttr(a1, "style", "color: red")
	tree.Mark(a1)
	tree.Hide(a1, "Reels")
	tree.Unmark(a1)
	q.drain()

	require.Len(t, recs, 4)
	assert.False(t, recs[0].Internal, "host write")
	for _, r := range recs[1:] {
		assert.True(t, r.Internal, r.AttributeName)
	}
	assert.Equal(t, "color: red", recs[2].OldValue)
}

func TestMarkers(t *testing.T) {
	tree := New(nil, "about:blank")
	n := &html.Node{Type: html.ElementNode, Data: "div"}
	assert.True(t, tree.Mark(n))
	assert.False(t, tree.Mark(n))
	tree.Unmark(n)
	assert.False(t, IsMarked(n))
}

func TestNavigationHooks(t *testing.T) {
	q := &queue{}
	tree := newTree(t, q)
	var events []NavEvent
	cancel := tree.OnNavigate(func(ev NavEvent) { events = append(events, ev) })

	tree.PushState("https://example.test/groups")
	tree.ReplaceState("https://example.test/groups?x=1")
	assert.True(t, tree.PopState())
	assert.False(t, tree.PopState())
	q.drain()

	require.Len(t, events, 3)
	assert.Equal(t, NavPush, events[0].Kind)
	assert.Equal(t, NavReplace, events[1].Kind)
	assert.Equal(t, NavPop, events[2].Kind)
	assert.Equal(t, "https://example.test/", tree.Location())

	cancel()
	tree.SetLocation("https://example.test/silent")
	tree.ReplaceDocument(nil, "https://example.test/reloaded")
	q.drain()
	assert.Len(t, events, 3)
	assert.NotNil(t, tree.Body())
}

func TestSnippetIsPlainText(t *testing.T) {
	doc, err := ParseString(`<div id="x"><b>Shop</b>   <a href="https://x.test/?utm_source=a">now &amp; save</a><img src="a.gif"></div>`)
	require.NoError(t, err)
	n := SelectFirst(doc, "#x")
	assert.Equal(t, "Shop now & save", Snippet(n, 0))
	assert.Equal(t, "Shop…", Snippet(n, 4))
	assert.True(t, MatchesOrContains(n, `a[href*="utm_"]`))
	assert.True(t, Matches(n, "div#x"))
	assert.False(t, Matches(n, "span"))
}
