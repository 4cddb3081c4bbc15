package engine

import (
	"context"
	"strings"

	"golang.org/x/net/html"

	"feedguard/internal/classifier"
	"feedguard/internal/dom"
	"feedguard/internal/loop"
	"feedguard/internal/models"
	"feedguard/internal/sponsored"
)

// maxReadyWaits bounds how many readiness intervals a scan will sit out.
const maxReadyWaits = 64

// ScanOptions configure a one-shot scan.
type ScanOptions struct {
	Options
	// Keywords is how many topic keywords to suggest from visible text.
	Keywords int
	// Rules are registered before the scan starts.
	Rules map[string]classifier.Predicate
}

// Report is the outcome of Scan.
type Report struct {
	models.ScanResult
	Diagnostics sponsored.Diagnostics `json:"diagnostics"`
}

// Scan runs the pipeline once over doc on a virtual clock. doc is modified
// in place; render it afterwards to get the filtered page. Pages without a
// recognizable feed root are scanned as a whole.
func Scan(ctx context.Context, doc *html.Node, location string, opts ScanOptions) (*Report, error) {
	m := loop.NewManual()
	e, err := New(doc, location, m, opts.Options)
	if err != nil {
		return nil, err
	}
	for name, p := range opts.Rules {
		if err := e.Register(name, p); err != nil {
			return nil, err
		}
	}
	e.Start()
	m.RunPending()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !e.Bound() {
		e.log.Debug("engine: no feed root, scanning document", "location", location)
		e.sweeper.Stop()
		e.manager.Destroy()
		m.RunPending()
		e.ProcessNow()
	}
	interval := e.opts.Engine.ReadyInterval
	for i := 0; e.Waiting() && i < maxReadyWaits; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		m.Advance(interval)
	}

	r := &Report{
		ScanResult: models.ScanResult{
			Source: location,
			Hidden: e.Hidden(),
			Stats:  e.Stats(),
		},
		Diagnostics: e.Diagnostics(),
	}
	if r.Hidden == nil {
		r.Hidden = []models.HiddenItem{}
	}
	if opts.Keywords > 0 {
		r.Keywords = classifier.SuggestKeywords(visibleText(e.tree), opts.Keywords, e.opts.Settings.BlockedKeywords)
	}
	e.sweeper.Stop()
	e.manager.Destroy()
	return r, nil
}

// visibleText is the body text outside hidden containers.
func visibleText(t *dom.Tree) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		switch {
		case n.Type == html.TextNode:
			b.WriteString(n.Data)
			b.WriteByte(' ')
			return
		case n.Type == html.ElementNode && dom.IsHidden(n):
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	if body := t.Body(); body != nil {
		walk(body)
	}
	return b.String()
}
