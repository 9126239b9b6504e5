// Package match provides the pure comparison functions behind identity
// resolution: display-name normalization, affiliation tokenization, and the
// fuzzy affiliation-overlap heuristic.
package match

import (
	"strings"
	"unicode"
)

// honorifics are the title prefixes stripped from display names. They are
// only removed as a whole leading word, optionally followed by a period, so
// names like "Dragon Ball" are never touched.
var honorifics = map[string]struct{}{
	"dr":         {},
	"prof":       {},
	"professor":  {},
	"ambassador": {},
	"mr":         {},
	"mrs":        {},
	"ms":         {},
	"sir":        {},
}

// genericInstitutionWords are too common to count as meaningful overlap
// between two affiliations on their own.
var genericInstitutionWords = map[string]struct{}{
	"the":        {},
	"and":        {},
	"for":        {},
	"university": {},
	"center":     {},
	"institute":  {},
	"school":     {},
	"college":    {},
}

// minTokenLength filters out low-information words such as "of" and "at".
const minTokenLength = 3

// containmentRatio is the fraction of the smaller token set that must appear
// in the intersection for two affiliations to match without any meaningful
// shared token ("Harvard" vs "Harvard University").
const containmentRatio = 0.5

// NormalizeName strips leading honorific and professional titles from a
// display name and collapses repeated whitespace. The result is the
// comparison key for identity matching; it is recomputed on every comparison
// and never persisted.
func NormalizeName(name string) string {
	fields := strings.Fields(name)

	for len(fields) > 0 {
		lead := strings.ToLower(strings.TrimSuffix(fields[0], "."))
		if _, ok := honorifics[lead]; !ok {
			break
		}
		fields = fields[1:]
	}

	return strings.Join(fields, " ")
}

// NameKey returns the case-insensitive grouping key for a display name.
func NameKey(name string) string {
	return strings.ToLower(NormalizeName(name))
}

// TokenizeAffiliation converts a free-text affiliation into a comparable
// token set: lowercased, punctuation treated as whitespace, tokens shorter
// than three characters discarded.
func TokenizeAffiliation(text string) map[string]struct{} {
	var sb strings.Builder
	sb.Grow(len(text))

	for _, r := range strings.ToLower(text) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			sb.WriteRune(r)
		} else {
			sb.WriteRune(' ')
		}
	}

	tokens := make(map[string]struct{})
	for _, tok := range strings.Fields(sb.String()) {
		if len(tok) >= minTokenLength {
			tokens[tok] = struct{}{}
		}
	}
	return tokens
}

// AffiliationsOverlap decides whether two affiliation strings likely denote
// the same organization. The policy favors recall: a missing affiliation on
// either side never forces a split, and abbreviation or suffix differences
// ("Harvard" vs "Harvard University") still match.
//
// Rules are evaluated in order, first applicable wins:
//  1. Both empty: match.
//  2. Exactly one empty: match.
//  3. Either token set empty after tokenization: match.
//  4. The token intersection contains a word that is not a generic
//     institution word: match.
//  5. The unfiltered intersection covers at least half of the smaller token
//     set: match.
//  6. Otherwise: no match.
func AffiliationsOverlap(a, b string) bool {
	a = strings.TrimSpace(a)
	b = strings.TrimSpace(b)

	if a == "" || b == "" {
		return true
	}

	tokensA := TokenizeAffiliation(a)
	tokensB := TokenizeAffiliation(b)
	if len(tokensA) == 0 || len(tokensB) == 0 {
		return true
	}

	intersection := 0
	for tok := range tokensA {
		if _, ok := tokensB[tok]; !ok {
			continue
		}
		intersection++
		if _, generic := genericInstitutionWords[tok]; !generic {
			return true
		}
	}

	smaller := len(tokensA)
	if len(tokensB) < smaller {
		smaller = len(tokensB)
	}

	return float64(intersection)/float64(smaller) >= containmentRatio
}
