// Package container finds the feed-item boundary around a matched node.
package container

import (
	"log/slog"
	"slices"
	"strings"

	"golang.org/x/net/html"

	"feedguard/internal/dom"
)

// DefaultMaxDepth bounds the ancestor walk.
const DefaultMaxDepth = 12

// fingerprints are class names that mark a feed unit wrapper.
var fingerprints = []string{"x1yztbdb", "x1lliihq", "x1n2onr6", "x1qjc9v5"}

// Resolver walks ancestors looking for a feed-item container.
type Resolver struct {
	MaxDepth int
	Logger   *slog.Logger
}

// New returns a Resolver with the default depth.
func New(log *slog.Logger) *Resolver {
	return &Resolver{MaxDepth: DefaultMaxDepth, Logger: log}
}

// Resolve returns the nearest container at or above n, or n itself when
// none is found within MaxDepth levels. It never returns nil for a non-nil
// n.
func (r *Resolver) Resolve(n *html.Node) (out *html.Node) {
	defer func() {
		if p := recover(); p != nil {
			if r.Logger != nil {
				r.Logger.Debug("container: resolve failed", "err", p)
			}
			out = n
		}
	}()
	depth := r.MaxDepth
	if depth <= 0 {
		depth = DefaultMaxDepth
	}
	cur := n
	for i := 0; i < depth && cur != nil; i++ {
		if IsContainer(cur) {
			return cur
		}
		cur = cur.Parent
	}
	return n
}

// IsContainer reports whether n is a div that looks like a feed item.
func IsContainer(n *html.Node) bool {
	if !dom.IsElement(n, "div") {
		return false
	}
	if role, _ := dom.Attr(n, "role"); role == "article" {
		return true
	}
	if class, ok := dom.Attr(n, "class"); ok {
		classes := strings.Fields(class)
		for _, fp := range fingerprints {
			if slices.Contains(classes, fp) {
				return true
			}
		}
	}
	if pagelet, _ := dom.Attr(n, "data-pagelet"); strings.Contains(pagelet, "FeedUnit") {
		return true
	}
	return false
}
