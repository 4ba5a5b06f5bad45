package search

import (
	"fmt"
	"strconv"
	"time"

	"github.com/blevesearch/bleve/v2"
	bleveQuery "github.com/blevesearch/bleve/v2/search/query"

	"github.com/localsearchd/localsearchd/internal/errors"
)

// Operator names one of the §6.3 filter predicate kinds.
type Operator string

const (
	OpEq    Operator = "eq"
	OpNot   Operator = "not"
	OpIn    Operator = "in"
	OpNotIn Operator = "not_in"
	OpRange Operator = "range"
)

// Filter is one caller-supplied predicate from the §6.3 taxonomy.
type Filter struct {
	Field    string
	Operator Operator
	Value    string
	Values   []string
	From     string
	To       string
	AddedAt  int64
}

type fieldKind int

const (
	fieldUnknown fieldKind = iota
	fieldKeyword
	fieldNumeric
	fieldAnalyzedText
)

// fieldKinds classifies every IndexedDocument field (§3) for filter
// validation: `eq`/`in` require a non-analyzed keyword or numeric field,
// `range` requires numeric.
var fieldKinds = map[string]fieldKind{
	"path":                fieldKeyword,
	"file_name":           fieldAnalyzedText,
	"content":             fieldAnalyzedText,
	"content_reversed":    fieldAnalyzedText,
	"content_lemma_de":    fieldAnalyzedText,
	"content_lemma_en":    fieldAnalyzedText,
	"content_translit_de": fieldAnalyzedText,
	"file_extension":      fieldKeyword,
	"file_type":           fieldKeyword,
	"file_size":           fieldNumeric,
	"created_date":        fieldNumeric,
	"modified_date":       fieldNumeric,
	"indexed_date":        fieldNumeric,
	"title":               fieldAnalyzedText,
	"author":              fieldKeyword,
	"creator":             fieldAnalyzedText,
	"subject":             fieldAnalyzedText,
	"keywords":            fieldAnalyzedText,
	"language":            fieldKeyword,
	"content_hash":        fieldKeyword,
}

// FacetableFields lists the dimensions §3 marks facetable.
var FacetableFields = []string{"file_extension", "file_type", "author", "language"}

func kindOf(field string) fieldKind {
	if k, ok := fieldKinds[field]; ok {
		return k
	}
	return fieldUnknown
}

// isDateField reports whether field is one of the epoch-millisecond
// timestamp fields, the only ones whose range bounds may be given as
// ISO-8601 strings (§4.10).
func isDateField(field string) bool {
	switch field {
	case "created_date", "modified_date", "indexed_date":
		return true
	default:
		return false
	}
}

// dateLayouts are the three ISO-8601 forms §4.10 accepts for date-ms
// range bounds, tried in order from most to least specific.
var dateLayouts = []string{
	"2006-01-02T15:04:05Z",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

func parseDateMs(s string) (int64, bool) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC().UnixMilli(), true
		}
	}
	return 0, false
}

// fieldQuery pairs a built predicate with the field it filters on, so
// drill-sideways faceting (§4.10) can exclude a dimension's own filters
// when computing that dimension's counts.
type fieldQuery struct {
	field string
	query bleveQuery.Query
}

// BuildFilterQueries validates filters against the §6.3 taxonomy and
// returns one bleve query per filter. A validation failure returns a
// caller-facing *errors.SearchdError and no side effects (§7).
func BuildFilterQueries(filters []Filter) ([]fieldQuery, error) {
	out := make([]fieldQuery, 0, len(filters))
	for _, f := range filters {
		q, err := buildFilterQuery(f)
		if err != nil {
			return nil, err
		}
		out = append(out, fieldQuery{field: f.Field, query: q})
	}
	return out, nil
}

func buildFilterQuery(f Filter) (bleveQuery.Query, error) {
	switch f.Operator {
	case OpEq, OpNot:
		if f.Value == "" {
			return nil, errors.FilterValidationError(fmt.Sprintf("filter on %q requires a value", f.Field))
		}
		if err := requireKeywordOrNumeric(f.Field); err != nil {
			return nil, err
		}
		q, err := equalityQuery(f.Field, f.Value)
		if err != nil {
			return nil, err
		}
		if f.Operator == OpNot {
			return negate(q), nil
		}
		return q, nil

	case OpIn, OpNotIn:
		if len(f.Values) == 0 {
			return nil, errors.FilterValidationError(fmt.Sprintf("filter on %q requires at least one value", f.Field))
		}
		if err := requireKeywordOrNumeric(f.Field); err != nil {
			return nil, err
		}
		disjuncts := make([]bleveQuery.Query, 0, len(f.Values))
		for _, v := range f.Values {
			q, err := equalityQuery(f.Field, v)
			if err != nil {
				return nil, err
			}
			disjuncts = append(disjuncts, q)
		}
		dq := bleve.NewDisjunctionQuery(disjuncts...)
		if f.Operator == OpNotIn {
			return negate(dq), nil
		}
		return dq, nil

	case OpRange:
		if f.From == "" && f.To == "" {
			return nil, errors.FilterValidationError(fmt.Sprintf("range filter on %q requires from and/or to", f.Field))
		}
		if kindOf(f.Field) != fieldNumeric {
			return nil, errors.FilterValidationError("Range filter is only supported on numeric fields")
		}
		return rangeQuery(f.Field, f.From, f.To)

	default:
		return nil, errors.FilterValidationError(fmt.Sprintf("unsupported filter operator %q", f.Operator))
	}
}

func requireKeywordOrNumeric(field string) error {
	switch kindOf(field) {
	case fieldKeyword, fieldNumeric:
		return nil
	default:
		return errors.FilterValidationError("Cannot filter on analyzed field")
	}
}

func negate(q bleveQuery.Query) bleveQuery.Query {
	bq := bleve.NewBooleanQuery()
	bq.AddMust(bleve.NewMatchAllQuery())
	bq.AddMustNot(q)
	return bq
}

func equalityQuery(field, value string) (bleveQuery.Query, error) {
	if kindOf(field) == fieldNumeric {
		n, err := numericOrDate(field, value)
		if err != nil {
			return nil, err
		}
		q := bleve.NewNumericRangeInclusiveQuery(&n, &n, boolPtr(true), boolPtr(true))
		q.SetField(field)
		return q, nil
	}
	// Keyword fields are indexed verbatim (the "keyword" analyzer does not
	// fold case), so eq/in match the caller's value exactly rather than
	// lowercasing it.
	q := bleve.NewTermQuery(value)
	q.SetField(field)
	return q, nil
}

func rangeQuery(field, from, to string) (bleveQuery.Query, error) {
	var minVal, maxVal *float64
	if from != "" {
		v, err := numericOrDate(field, from)
		if err != nil {
			return nil, err
		}
		minVal = &v
	}
	if to != "" {
		v, err := numericOrDate(field, to)
		if err != nil {
			return nil, err
		}
		maxVal = &v
	}
	q := bleve.NewNumericRangeInclusiveQuery(minVal, maxVal, boolPtr(true), boolPtr(true))
	q.SetField(field)
	return q, nil
}

func numericOrDate(field, s string) (float64, error) {
	if n, err := strconv.ParseFloat(s, 64); err == nil {
		return n, nil
	}
	if isDateField(field) {
		if ms, ok := parseDateMs(s); ok {
			return float64(ms), nil
		}
	}
	return 0, errors.FilterValidationError(fmt.Sprintf("value %q is not numeric", s))
}

func boolPtr(b bool) *bool { return &b }
