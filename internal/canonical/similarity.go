package canonical

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var foldTransformer = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Normalize lower-cases, strips diacritics and collapses whitespace so
// that "Señor Staff  Engineer" and "senor staff engineer" compare equal.
func Normalize(s string) string {
	if folded, _, err := transform.String(foldTransformer, s); err == nil {
		s = folded
	}
	s = strings.ToLower(s)
	return strings.Join(strings.Fields(s), " ")
}

// junk tokens carry no identity signal and are dropped before comparison
var fillerTokens = map[string]struct{}{
	"a": {}, "an": {}, "the": {}, "and": {}, "of": {}, "for": {},
	"inc": {}, "llc": {}, "ltd": {}, "gmbh": {}, "co": {},
}

func tokenSet(s string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, tok := range strings.FieldsFunc(Normalize(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		if _, skip := fillerTokens[tok]; skip {
			continue
		}
		set[tok] = struct{}{}
	}
	return set
}

// Similarity is token-set overlap (Jaccard) over normalized text, in
// [0,1]. Deterministic and symmetric; no dependence on token order.
func Similarity(a, b string) float64 {
	sa, sb := tokenSet(a), tokenSet(b)
	if len(sa) == 0 || len(sb) == 0 {
		return 0
	}
	inter := 0
	for tok := range sa {
		if _, ok := sb[tok]; ok {
			inter++
		}
	}
	union := len(sa) + len(sb) - inter
	return float64(inter) / float64(union)
}
