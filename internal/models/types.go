package models

// Settings is the user configuration consumed read-only by the engine.
// Rule names used by the classifier registry map onto the Block* flags.
type Settings struct {
	BlockSponsored  bool     `json:"blockSponsored" yaml:"block_sponsored"`
	BlockSuggested  bool     `json:"blockSuggested" yaml:"block_suggested"`
	BlockReels      bool     `json:"blockReels" yaml:"block_reels"`
	BlockGIFs       bool     `json:"blockGIFs" yaml:"block_gifs"`
	BlockKeywords   bool     `json:"blockKeywords" yaml:"block_keywords"`
	BlockedKeywords []string `json:"blockedKeywords,omitempty" yaml:"blocked_keywords"`
	Verbosity       string   `json:"verbosity,omitempty" yaml:"verbosity"` // normal | verbose

	// Rules switches registered rules that have no dedicated flag above.
	Rules map[string]bool `json:"rules,omitempty" yaml:"rules"`
}

// Rule names, in the order the built-in rules register.
const (
	RuleSponsored = "blockSponsored"
	RuleSuggested = "blockSuggested"
	RuleReels     = "blockReels"
	RuleGIFs      = "blockGIFs"
	RuleKeywords  = "blockKeywords"
)

// DefaultSettings mirrors the defaults a fresh install starts with.
func DefaultSettings() Settings {
	return Settings{
		BlockSponsored: true,
		BlockSuggested: true,
		BlockReels:     true,
		BlockGIFs:      true,
		BlockKeywords:  false,
		Verbosity:      "normal",
	}
}

// Enabled reports whether the rule with the given name is switched on.
// Names without a dedicated flag are looked up in Rules and default to off.
func (s *Settings) Enabled(rule string) bool {
	if s == nil {
		return false
	}
	switch rule {
	case RuleSponsored:
		return s.BlockSponsored
	case RuleSuggested:
		return s.BlockSuggested
	case RuleReels:
		return s.BlockReels
	case RuleGIFs:
		return s.BlockGIFs
	case RuleKeywords:
		return s.BlockKeywords && len(s.BlockedKeywords) > 0
	default:
		return s.Rules[rule]
	}
}

// Verbose reports whether diagnostic output is requested.
func (s *Settings) Verbose() bool {
	return s != nil && s.Verbosity == "verbose"
}

// ClassificationResult is the memoized outcome for one node.
type ClassificationResult struct {
	Matched bool   `json:"matched"`
	Reason  string `json:"reason,omitempty"`
}

// Stats are the engine counters. Processed, Hidden and Sponsored reset on
// every rebind.
type Stats struct {
	Processed int `json:"processed"`
	Hidden    int `json:"hidden"`
	Sponsored int `json:"sponsored"`
	CacheSize int `json:"cacheSize"`
}

// HiddenItem describes one suppressed container.
type HiddenItem struct {
	Location string `json:"location"`
	Rule     string `json:"rule"`
	Reason   string `json:"reason"`
	Snippet  string `json:"snippet,omitempty"`
}

// ScanResult is one line of scan output.
type ScanResult struct {
	Source   string       `json:"source"`
	FetchMs  int64        `json:"fetchMs,omitempty"`
	Hidden   []HiddenItem `json:"hidden"`
	Stats    Stats        `json:"stats"`
	Keywords []string     `json:"keywords,omitempty"`
}
