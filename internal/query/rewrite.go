package query

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/blevesearch/bleve/v2"
	bleveQuery "github.com/blevesearch/bleve/v2/search/query"

	"github.com/localsearchd/localsearchd/internal/document"
)

// defaultProximitySlop and defaultPhraseBoost are §4.4's phrase-expansion
// constants: S and B in `( "t1 t2…"^B ) OR ( "t1 t2…"~S )`.
const (
	defaultProximitySlop = 3
	defaultPhraseBoost   = 2.0

	// adaptivePrefixMinLength is the |P| >= 4 threshold for scored
	// (wildcard) versus constant-score (prefix) trailing-wildcard rewrite.
	adaptivePrefixMinLength = 4
)

// phraseClause builds the query for a quoted phrase. A single-token
// phrase or one with an explicit slop is NOT expanded (§4.4); a
// multi-token phrase with no explicit slop is rewritten into the
// boosted-exact-OR-unboosted-proximity disjunction.
func phraseClause(field string, tokens []string, explicitSlop *int) bleveQuery.Query {
	phrase := strings.Join(tokens, " ")

	if len(tokens) < 2 {
		return matchPhraseQuery(field, phrase, 1.0)
	}
	if explicitSlop != nil {
		return phraseQueryWithSlop(field, phrase, *explicitSlop, 1.0)
	}

	exact := matchPhraseQuery(field, phrase, defaultPhraseBoost)
	proximity := phraseQueryWithSlop(field, phrase, defaultProximitySlop, 1.0)
	return bleve.NewDisjunctionQuery(exact, proximity)
}

func matchPhraseQuery(field, phrase string, boost float64) bleveQuery.Query {
	q := bleve.NewMatchPhraseQuery(phrase)
	if field != "" {
		q.SetField(field)
	}
	q.SetBoost(boost)
	return q
}

// phraseQueryWithSlop delegates proximity matching to bleve's own query
// string mini-language, whose documented `"t1 t2"~N` syntax is the
// supported way to express phrase slop — rather than poke at
// MatchPhraseQuery internals directly.
func phraseQueryWithSlop(field, phrase string, slop int, boost float64) bleveQuery.Query {
	qs := fmt.Sprintf(`"%s"~%d`, escapeQueryString(phrase), slop)
	if field != "" {
		qs = field + ":" + qs
	}
	q := bleve.NewQueryStringQuery(qs)
	q.SetBoost(boost)
	return q
}

func escapeQueryString(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	return s
}

// wildcardClause classifies a word token containing '*'/'?' per §4.4's
// three rewrite rules and builds the matching bleve query. A bare "*"
// (leading wildcard with an empty base) is rejected as meaningless per
// §8 rather than rewritten into a match-everything query.
func wildcardClause(field, term string, pos int) (bleveQuery.Query, error) {
	isLeading := strings.HasPrefix(term, "*") && !strings.HasSuffix(term, "*")
	isTrailingOnly := strings.HasSuffix(term, "*") && !strings.HasPrefix(term, "*") && !strings.Contains(term[:len(term)-1], "*") && !strings.Contains(term, "?")

	switch {
	case isLeading:
		base := strings.TrimPrefix(term, "*")
		// Leading-wildcard rewrite: "*vertrag" -> lowercase, reverse, and
		// match against content_reversed as a trailing-wildcard query
		// instead (e.g. "*vertrag" -> "gartrev*" on content_reversed),
		// since no index supports an efficient native leading wildcard.
		return adaptivePrefixQuery(document.FieldContentReversed, reverseString(strings.ToLower(base))), nil
	case isTrailingOnly:
		prefix := strings.ToLower(strings.TrimSuffix(term, "*"))
		return adaptivePrefixQuery(field, prefix), nil
	default:
		if term == "*" {
			return nil, &ParseError{Message: "leading wildcard requires a non-empty term", Position: pos}
		}
		// Infix wildcards (*x*), '?' single-char wildcards, or a mix of
		// both: the standard wildcard path, case-folded (§4.4 step 4).
		q := bleve.NewWildcardQuery(strings.ToLower(term))
		if field != "" {
			q.SetField(field)
		}
		return q, nil
	}
}

// adaptivePrefixQuery implements §4.4's adaptive prefix scoring: a
// prefix of 4 or more characters is expanded as a scored WildcardQuery
// (bleve scores multi-term expansions by normal term statistics);
// shorter prefixes use the constant-score PrefixQuery, a performance
// guard against broad, cheaply-matched prefixes.
func adaptivePrefixQuery(field, prefix string) bleveQuery.Query {
	if utf8.RuneCountInString(prefix) >= adaptivePrefixMinLength {
		q := bleve.NewWildcardQuery(prefix + "*")
		if field != "" {
			q.SetField(field)
		}
		return q
	}
	q := bleve.NewPrefixQuery(prefix)
	if field != "" {
		q.SetField(field)
	}
	return q
}

func reverseString(s string) string {
	runes := []rune(s)
	for i, j := 0, len(runes)-1; i < j; i, j = i+1, j-1 {
		runes[i], runes[j] = runes[j], runes[i]
	}
	return string(runes)
}
