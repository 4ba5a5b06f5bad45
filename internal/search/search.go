// Package search implements the Search Executor (§4.10): query parsing,
// filter composition with drill-sideways faceting, and passage
// highlighting, assembled into a single search(...) entry point.
package search

import (
	"strings"
	"time"

	"github.com/blevesearch/bleve/v2"
	bleveQuery "github.com/blevesearch/bleve/v2/search/query"

	"github.com/localsearchd/localsearchd/internal/configfile"
	"github.com/localsearchd/localsearchd/internal/document"
	"github.com/localsearchd/localsearchd/internal/gateway"
	"github.com/localsearchd/localsearchd/internal/query"
)

// storedFields lists every field the executor asks bleve to return
// alongside a hit (§3's stored subset, plus content for passage
// rendering).
var storedFields = []string{
	"path", "file_name", document.FieldContent, "file_extension", "file_type",
	"file_size", "created_date", "modified_date", "indexed_date",
	"title", "author", "creator", "subject", "keywords", "language", "content_hash",
}

// Request is one search(...) call (§4.10).
type Request struct {
	QueryText      string
	Filters        []Filter
	Page           int
	PageSize       int
	SortField      string // "" or "_score" -> relevance desc (default)
	SortDescending bool
}

// FacetValue is one (value, count) pair within a facet dimension.
type FacetValue struct {
	Value string
	Count int
}

// Document is one result row: the stored fields plus its highlighted
// passages.
type Document struct {
	Path     string
	Score    float64
	Fields   map[string]interface{}
	Passages []Passage
}

// Result is search(...)'s return value (§4.10 step 5).
type Result struct {
	TotalHits     uint64
	Documents     []Document
	Facets        map[string][]FacetValue
	ActiveFilters []Filter
	ElapsedMs     int64
}

// Executor runs searches against a gateway's underlying index.
type Executor struct {
	gw                   *gateway.Gateway
	maxPassages          int
	maxPassageCharLength int
}

// NewExecutor builds an Executor configured from cfg's highlighter
// limits (§6.4 maxPassages/maxPassageCharLength).
func NewExecutor(gw *gateway.Gateway, cfg configfile.Config) *Executor {
	maxPassages := cfg.MaxPassages
	if maxPassages <= 0 {
		maxPassages = 5
	}
	maxCharLength := cfg.MaxPassageCharLength
	if maxCharLength <= 0 {
		maxCharLength = 200
	}
	return &Executor{gw: gw, maxPassages: maxPassages, maxPassageCharLength: maxCharLength}
}

// Search executes req and returns the assembled result (§4.10).
func (e *Executor) Search(req Request) (Result, error) {
	start := time.Now()

	baseQuery, err := parseQuery(req.QueryText)
	if err != nil {
		return Result{}, err
	}

	filterQueries, err := BuildFilterQueries(req.Filters)
	if err != nil {
		return Result{}, err
	}

	pageSize := req.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}
	page := req.Page
	if page < 0 {
		page = 0
	}

	mainQuery := combineQueries(baseQuery, filterQueries, "")
	sr := bleve.NewSearchRequestOptions(mainQuery, pageSize, page*pageSize, false)
	sr.Fields = storedFields
	sr.IncludeLocations = true
	style := "html"
	sr.Highlight = bleve.NewHighlight()
	sr.Highlight.Style = &style
	sr.Highlight.Fields = []string{document.FieldContent}
	sr.SortBy(sortOrder(req))

	res, err := e.gw.Index().Search(sr)
	if err != nil {
		return Result{}, err
	}

	documents := make([]Document, 0, len(res.Hits))
	for _, hit := range res.Hits {
		content, _ := hit.Fields[document.FieldContent].(string)
		passages := buildPassages(content, hit.Locations, e.maxPassages, e.maxPassageCharLength)
		documents = append(documents, Document{
			Path:     hit.ID,
			Score:    hit.Score,
			Fields:   hit.Fields,
			Passages: passages,
		})
	}

	facets, err := e.computeFacets(baseQuery, filterQueries)
	if err != nil {
		return Result{}, err
	}

	return Result{
		TotalHits:     res.Total,
		Documents:     documents,
		Facets:        facets,
		ActiveFilters: req.Filters,
		ElapsedMs:     time.Since(start).Milliseconds(),
	}, nil
}

// computeFacets implements drill-sideways faceting (§4.10 step 3): each
// facetable dimension's counts are computed against a query that
// excludes that dimension's own filters while retaining every other
// filter, so the UI can always show alternative values for the
// dimension currently being narrowed.
func (e *Executor) computeFacets(baseQuery bleveQuery.Query, filterQueries []fieldQuery) (map[string][]FacetValue, error) {
	facets := make(map[string][]FacetValue, len(FacetableFields))
	for _, field := range FacetableFields {
		q := combineQueries(baseQuery, filterQueries, field)
		sr := bleve.NewSearchRequestOptions(q, 0, 0, false)
		sr.AddFacet(field, bleve.NewFacetRequest(field, 50))

		res, err := e.gw.Index().Search(sr)
		if err != nil {
			return nil, err
		}
		fr, ok := res.Facets[field]
		if !ok || fr == nil {
			facets[field] = nil
			continue
		}
		values := make([]FacetValue, 0, len(fr.Terms))
		for _, term := range fr.Terms {
			values = append(values, FacetValue{Value: term.Term, Count: term.Count})
		}
		facets[field] = values
	}
	return facets, nil
}

// combineQueries conjoins baseQuery with every filter EXCEPT those on
// excludeField (drill-sideways; pass "" to include every filter).
func combineQueries(baseQuery bleveQuery.Query, filterQueries []fieldQuery, excludeField string) bleveQuery.Query {
	clauses := []bleveQuery.Query{baseQuery}
	for _, fq := range filterQueries {
		if excludeField != "" && fq.field == excludeField {
			continue
		}
		clauses = append(clauses, fq.query)
	}
	if len(clauses) == 1 {
		return clauses[0]
	}
	return bleve.NewConjunctionQuery(clauses...)
}

// parseQuery implements §4.10 step 1: empty/null query text is a
// match-all; otherwise it is parsed via the Query Parser, defaulting
// bare terms to the content field.
func parseQuery(queryText string) (bleveQuery.Query, error) {
	if strings.TrimSpace(queryText) == "" {
		return bleve.NewMatchAllQuery(), nil
	}
	return query.Parse(queryText, document.FieldContent)
}

// sortOrder implements §4.10's sort keys: relevance descending by
// default, or any numeric field ascending/descending.
func sortOrder(req Request) []string {
	field := req.SortField
	if field == "" || field == "_score" {
		return []string{"-_score"}
	}
	if req.SortDescending {
		return []string{"-" + field}
	}
	return []string{field}
}
