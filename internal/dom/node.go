package dom

import (
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/net/html"
)

// Marker attributes written by the engine.
const (
	ProcessedAttr = "data-feedguard-processed"
	HiddenAttr    = "data-feedguard-hidden"
)

var strict = bluemonday.StrictPolicy()

// Attr returns the value of key on n.
func Attr(n *html.Node, key string) (string, bool) {
	if n == nil {
		return "", false
	}
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

// HasAttr reports whether n carries key.
func HasAttr(n *html.Node, key string) bool {
	_, ok := Attr(n, key)
	return ok
}

// IsElement reports whether n is an element with the given tag. An empty tag
// matches any element.
func IsElement(n *html.Node, tag string) bool {
	return n != nil && n.Type == html.ElementNode && (tag == "" || n.Data == tag)
}

// Text is the concatenated text content of n and its descendants.
func Text(n *html.Node) string {
	if n == nil {
		return ""
	}
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(c *html.Node) {
		if c.Type == html.TextNode {
			b.WriteString(c.Data)
			return
		}
		for k := c.FirstChild; k != nil; k = k.NextSibling {
			walk(k)
		}
	}
	walk(n)
	return b.String()
}

// Select returns the descendants of root matching selector. A malformed
// selector yields nil.
func Select(root *html.Node, selector string) []*html.Node {
	if root == nil {
		return nil
	}
	return goquery.NewDocumentFromNode(root).Find(selector).Nodes
}

// SelectFirst is Select limited to the first hit.
func SelectFirst(root *html.Node, selector string) *html.Node {
	nodes := Select(root, selector)
	if len(nodes) == 0 {
		return nil
	}
	return nodes[0]
}

// Matches reports whether n itself matches selector.
func Matches(n *html.Node, selector string) bool {
	if n == nil || n.Type != html.ElementNode {
		return false
	}
	return goquery.NewDocumentFromNode(n).Is(selector)
}

// MatchesOrContains reports whether n or one of its descendants matches.
func MatchesOrContains(n *html.Node, selector string) bool {
	return Matches(n, selector) || SelectFirst(n, selector) != nil
}

// IsAncestor reports whether root is n or one of its ancestors.
func IsAncestor(root, n *html.Node) bool {
	for p := n; p != nil; p = p.Parent {
		if p == root {
			return true
		}
	}
	return false
}

// OuterHTML renders n. Errors yield an empty string.
func OuterHTML(n *html.Node) string {
	if n == nil {
		return ""
	}
	var b strings.Builder
	if err := html.Render(&b, n); err != nil {
		return ""
	}
	return b.String()
}

// Snippet is a sanitized, whitespace-collapsed text preview of n, cut to max
// runes.
func Snippet(n *html.Node, max int) string {
	text := strict.Sanitize(OuterHTML(n))
	text = html.UnescapeString(text)
	text = strings.Join(strings.Fields(text), " ")
	if max > 0 && utf8.RuneCountInString(text) > max {
		r := []rune(text)
		text = string(r[:max]) + "…"
	}
	return text
}
