// Package classifier holds the ordered, settings-gated rule registry every
// content node is evaluated against.
package classifier

import (
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"golang.org/x/net/html"

	"feedguard/internal/dom"
	"feedguard/internal/models"
)

// ErrInvalidPredicate is returned by Register for a nil predicate or an
// empty name.
var ErrInvalidPredicate = errors.New("classifier: invalid predicate")

// Predicate returns a non-empty reason when n should be suppressed.
type Predicate func(n *html.Node, s *models.Settings) (string, error)

// Rule is one named registration.
type Rule struct {
	Name      string
	Predicate Predicate
}

// Registry evaluates rules in registration order; the first non-empty
// reason wins. It is not safe for concurrent mutation: register everything
// before publishing it through a Handle.
type Registry struct {
	rules []Rule
	index map[string]int
	log   *slog.Logger
}

// NewRegistry returns an empty registry logging through log.
func NewRegistry(log *slog.Logger) *Registry {
	if log == nil {
		log = slog.Default()
	}
	return &Registry{index: make(map[string]int), log: log}
}

// Register adds a rule. Re-registering a name swaps the predicate in place
// and keeps the original position.
func (r *Registry) Register(name string, p Predicate) error {
	if name == "" || p == nil {
		r.log.Warn("classifier: rejected registration", "rule", name, "reason", "predicate is not callable")
		return fmt.Errorf("%w: %q", ErrInvalidPredicate, name)
	}
	if i, ok := r.index[name]; ok {
		r.rules[i].Predicate = p
		return nil
	}
	r.index[name] = len(r.rules)
	r.rules = append(r.rules, Rule{Name: name, Predicate: p})
	return nil
}

// Apply returns the reason of the first enabled rule that matches n, or "".
func (r *Registry) Apply(n *html.Node, s *models.Settings) string {
	_, reason := r.Match(n, s)
	return reason
}

// Match is Apply that also names the rule that fired.
func (r *Registry) Match(n *html.Node, s *models.Settings) (rule, reason string) {
	for _, ru := range r.rules {
		if !s.Enabled(ru.Name) {
			continue
		}
		if reason := r.eval(ru, n, s); reason != "" {
			return ru.Name, reason
		}
	}
	return "", ""
}

func (r *Registry) eval(ru Rule, n *html.Node, s *models.Settings) (reason string) {
	defer func() {
		if p := recover(); p != nil {
			r.failed(ru.Name, n, s, fmt.Errorf("panic: %v", p))
			reason = ""
		}
	}()
	reason, err := ru.Predicate(n, s)
	if err != nil {
		r.failed(ru.Name, n, s, err)
		return ""
	}
	return reason
}

func (r *Registry) failed(rule string, n *html.Node, s *models.Settings, err error) {
	if s.Verbose() {
		r.log.Debug("classifier: predicate failed", "rule", rule, "err", err, "node", dom.Snippet(n, 120))
		return
	}
	r.log.Debug("classifier: predicate failed", "rule", rule, "err", err)
}

// List returns registered names in evaluation order.
func (r *Registry) List() []string {
	out := make([]string, len(r.rules))
	for i, ru := range r.rules {
		out[i] = ru.Name
	}
	return out
}

// Len is the number of registered rules.
func (r *Registry) Len() int { return len(r.rules) }

// Source yields the registry once it is available.
type Source interface {
	Registry() (*Registry, bool)
}

// Handle publishes a registry that is built asynchronously. Until Publish
// runs, Registry reports false.
type Handle struct {
	p atomic.Pointer[Registry]
}

// Publish makes r visible to readers.
func (h *Handle) Publish(r *Registry) { h.p.Store(r) }

// Registry returns the published registry.
func (h *Handle) Registry() (*Registry, bool) {
	r := h.p.Load()
	return r, r != nil
}

// Ready wraps an already-built registry as a Source.
func Ready(r *Registry) Source {
	h := &Handle{}
	h.Publish(r)
	return h
}
