package sponsored

import (
	"golang.org/x/net/html"

	"feedguard/internal/cache"
	"feedguard/internal/dom"
)

// PreChecker is the cheap marker-only test used to hide obvious ads before
// the registry is ready.
//
// Results live in a lifetime cache that empties itself as the arena
// releases node ids. Positive results are also indexed by the node's id or
// data-testid so a re-rendered copy of the same item is caught without a
// scan; that index holds plain strings and must be pruned by the sweeper.
type PreChecker struct {
	cache *cache.Lifetime[bool]
	keyed map[string]bool
}

// NewPreChecker binds the memo cache to arena.
func NewPreChecker(arena *cache.Arena) *PreChecker {
	return &PreChecker{
		cache: cache.NewLifetime[bool](arena),
		keyed: make(map[string]bool),
	}
}

// Key is the stable key of n: its id, else its data-testid.
func Key(n *html.Node) string {
	if v, ok := dom.Attr(n, "id"); ok && v != "" {
		return v
	}
	if v, ok := dom.Attr(n, "data-testid"); ok && v != "" {
		return v
	}
	return ""
}

// Check reports whether n or a descendant carries a trusted marker.
func (p *PreChecker) Check(n *html.Node) bool {
	if n == nil {
		return false
	}
	if v, ok := p.cache.Get(n); ok {
		return v
	}
	key := Key(n)
	if key != "" && p.keyed[key] {
		p.cache.Set(n, true)
		return true
	}
	hit := dom.MatchesOrContains(n, preCheckSelector)
	p.cache.Set(n, hit)
	if hit && key != "" {
		p.keyed[key] = true
	}
	return hit
}

// Len is the size of the memo cache.
func (p *PreChecker) Len() int { return p.cache.Len() }

// KeyedLen is the size of the keyed index.
func (p *PreChecker) KeyedLen() int { return len(p.keyed) }

// PruneKeyed drops index keys for which present reports false.
func (p *PreChecker) PruneKeyed(present func(key string) bool) int {
	removed := 0
	for k := range p.keyed {
		if !present(k) {
			delete(p.keyed, k)
			removed++
		}
	}
	return removed
}

// Clear empties the keyed index. The memo cache follows the arena.
func (p *PreChecker) Clear() {
	p.keyed = make(map[string]bool)
	p.cache.Clear()
}
