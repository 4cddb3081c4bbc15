package classifier

import (
	"cmp"
	"slices"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"

	"feedguard/internal/textnorm"
)

// feedNoise is filler of English and Vietnamese feed text, post chrome
// included, never worth blocking on its own.
var feedNoise = map[string]struct{}{
	"the": {}, "and": {}, "for": {}, "with": {}, "from": {}, "that": {}, "this": {}, "are": {}, "was": {},
	"will": {}, "has": {}, "have": {}, "had": {}, "but": {}, "not": {}, "your": {}, "you": {}, "our": {},
	"like": {}, "comment": {}, "share": {}, "more": {}, "see": {}, "follow": {}, "reply": {},
	"và": {}, "của": {}, "là": {}, "có": {}, "cho": {}, "với": {}, "các": {}, "những": {}, "này": {}, "được": {},
	"một": {}, "không": {}, "trong": {}, "thì": {}, "đã": {}, "bạn": {}, "thích": {}, "bình": {}, "luận": {},
	"chia": {}, "sẻ": {}, "xem": {}, "thêm": {}, "trả": {}, "lời": {},
}

// related maps a blocked keyword to neighbours users usually want gone too.
var related = map[string][]string{
	"crypto":    {"bitcoin", "ethereum", "nft", "blockchain", "dogecoin", "binance", "coinbase"},
	"bitcoin":   {"crypto", "btc", "ethereum", "blockchain", "mining", "coinbase"},
	"quảng cáo": {"mua ngay", "giảm giá", "khuyến mãi", "sale", "ưu đãi", "miễn phí"},
	"game":      {"gaming", "esport", "pubg", "liên quân", "free fire", "lol", "steam"},
	"scam":      {"lừa đảo", "đa cấp", "kiếm tiền online", "việc làm tại nhà", "giàu nhanh"},
	"lừa đảo":   {"scam", "đa cấp", "kiếm tiền online", "việc làm tại nhà", "giàu nhanh"},
	"đa cấp":    {"mlm", "kinh doanh mạng lưới", "thu nhập thụ động", "cơ hội kinh doanh"},
	"chính trị": {"bầu cử", "đảng", "chính phủ", "quốc hội", "tổng thống", "thủ tướng"},
	"covid":     {"corona", "vaccine", "dịch bệnh", "khẩu trang", "giãn cách", "lockdown"},
	"vaccine":   {"tiêm chủng", "covid", "dịch bệnh", "y tế", "phòng bệnh"},
}

func canonical(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(norm.NFC.String(s))), " ")
}

// SuggestKeywords ranks the words of text by frequency and returns at most
// n of them. Words of fewer than three runes, bare numbers and feed noise
// are left out, as are words of a blocked phrase and words a blocked entry
// already matches. Ties sort alphabetically.
func SuggestKeywords(text string, n int, blocked []string) []string {
	if n <= 0 {
		return nil
	}
	covered := textnorm.NewMatcher(blocked...)
	split := func(r rune) bool { return !unicode.IsLetter(r) && !unicode.IsNumber(r) }
	phrase := map[string]struct{}{}
	for _, b := range blocked {
		for _, w := range strings.FieldsFunc(canonical(b), split) {
			phrase[w] = struct{}{}
		}
	}

	counts := map[string]int{}
	for _, w := range strings.FieldsFunc(canonical(text), split) {
		if utf8.RuneCountInString(w) < 3 || strings.IndexFunc(w, unicode.IsLetter) < 0 {
			continue
		}
		if _, noise := feedNoise[w]; noise {
			continue
		}
		if _, part := phrase[w]; part {
			continue
		}
		counts[w]++
	}

	words := make([]string, 0, len(counts))
	for w := range counts {
		if _, hit := covered.Match(w); hit {
			continue
		}
		words = append(words, w)
	}
	slices.SortFunc(words, func(a, b string) int {
		if c := cmp.Compare(counts[b], counts[a]); c != 0 {
			return c
		}
		return strings.Compare(a, b)
	})
	if len(words) > n {
		words = words[:n]
	}
	return words
}

// RelatedKeywords expands a blocklist with known neighbours of its entries
// and with the longer words of its phrases. Nothing already in existing is
// returned. Order follows existing.
func RelatedKeywords(existing []string) []string {
	have := make(map[string]struct{}, len(existing))
	for _, w := range existing {
		have[canonical(w)] = struct{}{}
	}
	var out []string
	add := func(w string) {
		if _, dup := have[w]; dup {
			return
		}
		have[w] = struct{}{}
		out = append(out, w)
	}
	for _, w := range existing {
		key := canonical(w)
		for _, r := range related[key] {
			add(r)
		}
		parts := strings.Fields(key)
		if len(parts) < 2 {
			continue
		}
		for _, p := range parts {
			if utf8.RuneCountInString(p) > 3 {
				add(p)
			}
		}
	}
	return out
}
