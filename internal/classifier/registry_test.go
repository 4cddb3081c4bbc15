package classifier

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/html"

	"feedguard/internal/dom"
	"feedguard/internal/models"
	"feedguard/pkg/logger"
)

func node(t *testing.T, markup string) *html.Node {
	t.Helper()
	doc, err := dom.ParseString(markup)
	require.NoError(t, err)
	n := dom.SelectFirst(doc, "#post")
	require.NotNil(t, n)
	return n
}

func always(reason string) Predicate {
	return func(*html.Node, *models.Settings) (string, error) { return reason, nil }
}

func TestRegisterRejectsNil(t *testing.T) {
	r := NewRegistry(logger.Discard())
	err := r.Register("broken", nil)
	assert.ErrorIs(t, err, ErrInvalidPredicate)
	assert.Empty(t, r.List())
}

func TestFirstMatchWinsInRegistrationOrder(t *testing.T) {
	r := NewRegistry(logger.Discard())
	require.NoError(t, r.Register("second", always("B")))
	require.NoError(t, r.Register("first", always("A")))
	s := &models.Settings{Rules: map[string]bool{"first": true, "second": true}}

	n := &html.Node{Type: html.ElementNode, Data: "div"}
	assert.Equal(t, "B", r.Apply(n, s))
	assert.Equal(t, []string{"second", "first"}, r.List())

	// Replacing keeps the slot.
	require.NoError(t, r.Register("second", always("B2")))
	assert.Equal(t, []string{"second", "first"}, r.List())
	assert.Equal(t, "B2", r.Apply(n, s))

	s.Rules["second"] = false
	assert.Equal(t, "A", r.Apply(n, s))
}

func TestFailingPredicatesCountAsNoMatch(t *testing.T) {
	r := NewRegistry(logger.Discard())
	require.NoError(t, r.Register("panics", func(*html.Node, *models.Settings) (string, error) { panic("boom") }))
	require.NoError(t, r.Register("errors", func(*html.Node, *models.Settings) (string, error) {
		return "ignored", errors.New("bad shape")
	}))
	require.NoError(t, r.Register("ok", always("OK")))
	s := &models.Settings{Verbosity: "verbose", Rules: map[string]bool{"panics": true, "errors": true, "ok": true}}

	rule, reason := r.Match(&html.Node{Type: html.ElementNode, Data: "div"}, s)
	assert.Equal(t, "ok", rule)
	assert.Equal(t, "OK", reason)
}

type spyDetector struct {
	calls int
	hit   bool
}

func (d *spyDetector) IsSponsored(*html.Node) bool {
	d.calls++
	return d.hit
}

func TestSponsoredRuleIsConfigGated(t *testing.T) {
	spy := &spyDetector{hit: true}
	r := NewRegistry(logger.Discard())
	require.NoError(t, RegisterDefaults(r, Defaults{Sponsored: spy}))
	assert.Equal(t, []string{
		models.RuleSponsored, models.RuleSuggested, models.RuleReels, models.RuleGIFs, models.RuleKeywords,
	}, r.List())

	n := node(t, `<div id="post"><span>Sponsored</span></div>`)
	s := models.DefaultSettings()
	s.BlockSponsored = false
	assert.Equal(t, "", r.Apply(n, &s))
	assert.Zero(t, spy.calls, "disabled rule must never be invoked")

	s.BlockSponsored = true
	assert.Equal(t, SponsoredReason, r.Apply(n, &s))
	assert.Equal(t, 1, spy.calls)
}

func TestBuiltinRules(t *testing.T) {
	r := NewRegistry(logger.Discard())
	loc := "https://www.facebook.com/"
	require.NoError(t, RegisterDefaults(r, Defaults{Sponsored: &spyDetector{}, Location: func() string { return loc }}))
	s := models.DefaultSettings()
	s.BlockKeywords = true
	s.BlockedKeywords = []string{"Crypto Giveaway"}

	cases := []struct {
		name   string
		markup string
		want   string
	}{
		{"suggested", `<div id="post"><span>Gợi ý cho bạn</span></div>`, "Suggested"},
		{"reel link", `<div id="post"><a href="/reel/123">watch</a></div>`, "Reels"},
		{"video with reel label", `<div id="post"><video></video><span>Reels</span></div>`, "Reels"},
		{"plain video", `<div id="post"><video></video><span>Holiday clip</span></div>`, ""},
		{"gif", `<div id="post"><img src="https://cdn.test/funny.gif"></div>`, "GIF"},
		{"keyword", `<div id="post"><p>Join the crypto-giveaway today</p></div>`, "Keyword: crypto giveaway"},
		{"clean", `<div id="post"><p>Lunch with friends</p></div>`, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, r.Apply(node(t, tc.markup), &s))
		})
	}
}

func TestReelsStricterOnProfilePages(t *testing.T) {
	r := NewRegistry(logger.Discard())
	require.NoError(t, RegisterDefaults(r, Defaults{
		Sponsored: &spyDetector{},
		Location:  func() string { return "https://www.facebook.com/someone" },
	}))
	s := models.DefaultSettings()

	loose := node(t, `<div id="post"><video></video><span>Reels</span></div>`)
	assert.Equal(t, "", r.Apply(loose, &s))

	anchored := node(t, `<div id="post" role="article"><video></video><span>Reels</span></div>`)
	assert.Equal(t, "Reels", r.Apply(anchored, &s))
}

func TestHandlePublishes(t *testing.T) {
	h := &Handle{}
	_, ok := h.Registry()
	assert.False(t, ok)
	reg := NewRegistry(logger.Discard())
	h.Publish(reg)
	got, ok := h.Registry()
	assert.True(t, ok)
	assert.Same(t, reg, got)
}
