package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	bleveQuery "github.com/blevesearch/bleve/v2/search/query"

	"github.com/localsearchd/localsearchd/internal/document"
)

func TestParseBareWordIsMatchQueryOnDefaultField(t *testing.T) {
	q, err := Parse("alpha", "title")
	require.NoError(t, err)
	mq, ok := q.(*bleveQuery.MatchQuery)
	require.True(t, ok, "expected *query.MatchQuery, got %T", q)
	assert.Equal(t, "alpha", mq.Match)
	assert.Equal(t, "title", mq.FieldVal)
}

// A bare word matched against the content field (the only field with
// analyzer shadows, per §3) expands into a disjunction across content and
// every one of its shadow fields, not a single MatchQuery.
func TestParseBareWordOnContentFieldExpandsAcrossShadowFields(t *testing.T) {
	q, err := Parse("vertrag", document.FieldContent)
	require.NoError(t, err)
	dq, ok := q.(*bleveQuery.DisjunctionQuery)
	require.True(t, ok, "expected a cross-field DisjunctionQuery, got %T", q)
	require.Len(t, dq.Disjuncts, len(document.ContentFields))

	var gotFields []string
	for _, d := range dq.Disjuncts {
		mq, ok := d.(*bleveQuery.MatchQuery)
		require.True(t, ok, "expected each disjunct to be a MatchQuery, got %T", d)
		assert.Equal(t, "vertrag", mq.Match)
		gotFields = append(gotFields, mq.FieldVal)
	}
	assert.ElementsMatch(t, document.ContentFields, gotFields)
}

func TestParseAndOperatorProducesConjunction(t *testing.T) {
	q, err := Parse("alpha AND bravo", document.FieldContent)
	require.NoError(t, err)
	_, ok := q.(*bleveQuery.ConjunctionQuery)
	assert.True(t, ok, "expected *query.ConjunctionQuery, got %T", q)
}

func TestParseOrOperatorProducesDisjunction(t *testing.T) {
	q, err := Parse("alpha OR bravo", document.FieldContent)
	require.NoError(t, err)
	_, ok := q.(*bleveQuery.DisjunctionQuery)
	assert.True(t, ok, "expected *query.DisjunctionQuery, got %T", q)
}

func TestParseImplicitJuxtapositionIsDisjunction(t *testing.T) {
	q, err := Parse("alpha bravo", document.FieldContent)
	require.NoError(t, err)
	_, ok := q.(*bleveQuery.DisjunctionQuery)
	assert.True(t, ok, "expected implicit juxtaposition to widen via OR, got %T", q)
}

func TestParseNotProducesBooleanQueryWithMustNot(t *testing.T) {
	q, err := Parse("NOT alpha", document.FieldContent)
	require.NoError(t, err)
	bq, ok := q.(*bleveQuery.BooleanQuery)
	require.True(t, ok, "expected *query.BooleanQuery, got %T", q)
	require.NotNil(t, bq.MustNot)
}

func TestParseParenthesesOverridePrecedence(t *testing.T) {
	q, err := Parse("(alpha OR bravo) AND charlie", document.FieldContent)
	require.NoError(t, err)
	cq, ok := q.(*bleveQuery.ConjunctionQuery)
	require.True(t, ok, "expected top-level conjunction, got %T", q)
	require.Len(t, cq.Conjuncts, 2)
	_, ok = cq.Conjuncts[0].(*bleveQuery.DisjunctionQuery)
	assert.True(t, ok, "expected first conjunct to be the parenthesized disjunction")
}

func TestParseFieldQualifierAppliesToTerm(t *testing.T) {
	q, err := Parse("author:smith", document.FieldContent)
	require.NoError(t, err)
	mq, ok := q.(*bleveQuery.MatchQuery)
	require.True(t, ok)
	assert.Equal(t, "author", mq.FieldVal)
	assert.Equal(t, "smith", mq.Match)
}

func TestParseSingleTokenPhraseIsNotExpanded(t *testing.T) {
	q, err := Parse(`"alpha"`, "title")
	require.NoError(t, err)
	_, ok := q.(*bleveQuery.MatchPhraseQuery)
	assert.True(t, ok, "expected a plain MatchPhraseQuery for a single-token phrase, got %T", q)
}

func TestParseMultiTokenPhraseWithoutSlopExpandsToDisjunction(t *testing.T) {
	q, err := Parse(`"alpha bravo"`, "title")
	require.NoError(t, err)
	dq, ok := q.(*bleveQuery.DisjunctionQuery)
	require.True(t, ok, "expected phrase expansion disjunction, got %T", q)
	require.Len(t, dq.Disjuncts, 2)
	exact, ok := dq.Disjuncts[0].(*bleveQuery.MatchPhraseQuery)
	require.True(t, ok)
	require.NotNil(t, exact.BoostVal)
	assert.Equal(t, defaultPhraseBoost, exact.BoostVal.Value())
}

func TestParseMultiTokenPhraseWithExplicitSlopIsNotExpanded(t *testing.T) {
	q, err := Parse(`"alpha bravo"~5`, "title")
	require.NoError(t, err)
	_, ok := q.(*bleveQuery.QueryStringQuery)
	assert.True(t, ok, "expected the slop escape hatch QueryStringQuery, got %T", q)
}

// A multi-token phrase matched against the content field expands both
// across its phrase-boost/proximity rewrite AND across content's shadow
// fields, giving an outer per-field disjunction of inner exact-OR-proximity
// disjunctions.
func TestParseMultiTokenPhraseOnContentFieldExpandsAcrossShadowFields(t *testing.T) {
	q, err := Parse(`"alpha bravo"`, document.FieldContent)
	require.NoError(t, err)
	outer, ok := q.(*bleveQuery.DisjunctionQuery)
	require.True(t, ok, "expected a cross-field DisjunctionQuery, got %T", q)
	require.Len(t, outer.Disjuncts, len(document.ContentFields))
	for _, d := range outer.Disjuncts {
		inner, ok := d.(*bleveQuery.DisjunctionQuery)
		require.True(t, ok, "expected each per-field disjunct to itself be the phrase-expansion disjunction, got %T", d)
		require.Len(t, inner.Disjuncts, 2)
	}
}

func TestParseTrailingWildcardLongPrefixUsesWildcardQuery(t *testing.T) {
	q, err := Parse("contr*", "title")
	require.NoError(t, err)
	wq, ok := q.(*bleveQuery.WildcardQuery)
	require.True(t, ok, "expected scored WildcardQuery for |P|>=4, got %T", q)
	assert.Equal(t, "contr*", wq.Wildcard)
}

func TestParseTrailingWildcardShortPrefixUsesPrefixQuery(t *testing.T) {
	q, err := Parse("co*", "title")
	require.NoError(t, err)
	pq, ok := q.(*bleveQuery.PrefixQuery)
	require.True(t, ok, "expected constant-score PrefixQuery for |P|<4, got %T", q)
	assert.Equal(t, "co", pq.Prefix)
}

func TestParseLeadingWildcardRewritesAgainstReversedField(t *testing.T) {
	q, err := Parse("*vertrag", document.FieldContent)
	require.NoError(t, err)
	wq, ok := q.(*bleveQuery.WildcardQuery)
	require.True(t, ok, "expected a WildcardQuery against content_reversed, got %T", q)
	assert.Equal(t, document.FieldContentReversed, wq.FieldVal)
	assert.Equal(t, "gartrev*", wq.Wildcard)
}

func TestParseInfixWildcardUsesStandardWildcardPath(t *testing.T) {
	q, err := Parse("c*t", "title")
	require.NoError(t, err)
	wq, ok := q.(*bleveQuery.WildcardQuery)
	require.True(t, ok)
	assert.Equal(t, "c*t", wq.Wildcard)
}

func TestParseWildcardBaseIsCaseFolded(t *testing.T) {
	q, err := Parse("CONTR*", "title")
	require.NoError(t, err)
	wq, ok := q.(*bleveQuery.WildcardQuery)
	require.True(t, ok)
	assert.Equal(t, "contr*", wq.Wildcard)
}

// A trailing/infix wildcard matched against the content field expands
// across content's shadow fields too, same as a plain bare word.
func TestParseTrailingWildcardOnContentFieldExpandsAcrossShadowFields(t *testing.T) {
	q, err := Parse("contr*", document.FieldContent)
	require.NoError(t, err)
	dq, ok := q.(*bleveQuery.DisjunctionQuery)
	require.True(t, ok, "expected a cross-field DisjunctionQuery, got %T", q)
	require.Len(t, dq.Disjuncts, len(document.ContentFields))
	for _, d := range dq.Disjuncts {
		wq, ok := d.(*bleveQuery.WildcardQuery)
		require.True(t, ok, "expected each disjunct to be a WildcardQuery, got %T", d)
		assert.Equal(t, "contr*", wq.Wildcard)
	}
}

func TestParseBareLeadingWildcardIsRejected(t *testing.T) {
	_, err := Parse("*", document.FieldContent)
	require.Error(t, err)
	var pe *ParseError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, 0, pe.Position)
}

func TestParseUnterminatedPhraseReportsCaretPosition(t *testing.T) {
	_, err := Parse(`"alpha bravo`, document.FieldContent)
	require.Error(t, err)
	var pe *ParseError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, 0, pe.Position)
}

func TestParseUnbalancedParenReportsCaretPosition(t *testing.T) {
	_, err := Parse("(alpha bravo", document.FieldContent)
	require.Error(t, err)
	var pe *ParseError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, 12, pe.Position)
}

func TestParseErrorCaretRendersUnderOffendingCharacter(t *testing.T) {
	pe := &ParseError{Message: "boom", Position: 3}
	rendered := pe.Caret("abcdef")
	assert.Contains(t, rendered, "abcdef")
	assert.Contains(t, rendered, "   ^ boom")
}
