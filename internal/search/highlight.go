package search

import (
	"sort"
	"strings"

	"github.com/blevesearch/bleve/v2/search"

	"github.com/localsearchd/localsearchd/internal/document"
)

// Passage is one highlighted match cluster from a document's content
// field (§4.10 step 4): formatted text with <em>…</em> marks, the
// cluster's raw byte offset, a relevance score (normalized so the best
// passage across a hit scores 1.0), the set of distinct matched terms,
// term coverage (the cluster's distinct terms over the distinct terms
// located anywhere in the hit's content field), and the cluster's
// normalized position within the document.
type Passage struct {
	Text               string
	Start              int
	Score              float64
	MatchedTerms       []string
	TermCoverage       float64
	NormalizedPosition float64
}

// clusterGapBytes is how close two term locations must be (in content
// bytes) to be folded into the same passage cluster, rather than
// starting a new one.
const clusterGapBytes = 80

type termHit struct {
	term  string
	start int
	end   int
}

// buildPassages derives passages from bleve's per-term locations for the
// content field, clustering nearby matches and rendering each cluster as
// one formatted snippet. maxPassages caps the result count (highest
// score first); maxCharLength caps the bytes of content each passage is
// cut from (the <em> marks come on top of that).
func buildPassages(content string, locations search.FieldTermLocationMap, maxPassages, maxCharLength int) []Passage {
	termLocs, ok := locations[document.FieldContent]
	if !ok || len(termLocs) == 0 {
		return nil
	}
	totalTerms := len(termLocs)

	var hits []termHit
	for term, locs := range termLocs {
		for _, loc := range locs {
			hits = append(hits, termHit{term: term, start: int(loc.Start), end: int(loc.End)})
		}
	}
	if len(hits) == 0 {
		return nil
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].start < hits[j].start })

	var clusters [][]termHit
	current := []termHit{hits[0]}
	for _, h := range hits[1:] {
		prev := current[len(current)-1]
		if h.start-prev.end > clusterGapBytes {
			clusters = append(clusters, current)
			current = []termHit{h}
			continue
		}
		current = append(current, h)
	}
	clusters = append(clusters, current)

	passages := make([]Passage, 0, len(clusters))
	contentLen := len(content)
	for _, cluster := range clusters {
		passages = append(passages, renderPassage(content, cluster, totalTerms, contentLen, maxCharLength))
	}

	sort.Slice(passages, func(i, j int) bool { return passages[i].Score > passages[j].Score })
	if len(passages) > maxPassages {
		passages = passages[:maxPassages]
	}
	normalizeScores(passages)
	return passages
}

func renderPassage(content string, cluster []termHit, totalTerms, contentLen, maxCharLength int) Passage {
	clusterStart := cluster[0].start
	clusterEnd := cluster[0].end
	matchedSet := map[string]struct{}{}
	for _, h := range cluster {
		if h.end > clusterEnd {
			clusterEnd = h.end
		}
		matchedSet[h.term] = struct{}{}
	}

	pad := (maxCharLength - (clusterEnd - clusterStart)) / 2
	if pad < 0 {
		pad = 0
	}
	windowStart := clusterStart - pad
	if windowStart < 0 {
		windowStart = 0
	}
	windowEnd := windowStart + maxCharLength
	if windowEnd > len(content) {
		windowEnd = len(content)
	}
	windowStart = clampByteOffset(content, windowStart)
	windowEnd = clampByteOffset(content, windowEnd)
	if windowEnd < windowStart {
		windowEnd = windowStart
	}

	var sb strings.Builder
	cursor := windowStart
	for _, h := range cluster {
		start, end := h.start, h.end
		if start < windowStart {
			start = windowStart
		}
		if end > windowEnd {
			end = windowEnd
		}
		if start >= end || start < cursor {
			continue
		}
		sb.WriteString(content[cursor:start])
		sb.WriteString("<em>")
		sb.WriteString(content[start:end])
		sb.WriteString("</em>")
		cursor = end
	}
	if cursor < windowEnd {
		sb.WriteString(content[cursor:windowEnd])
	}

	matchedTerms := make([]string, 0, len(matchedSet))
	for t := range matchedSet {
		matchedTerms = append(matchedTerms, t)
	}
	sort.Strings(matchedTerms)

	coverage := 1.0
	if totalTerms > 0 {
		coverage = float64(len(matchedSet)) / float64(totalTerms)
	}
	normalizedPos := 0.0
	if contentLen > 0 {
		normalizedPos = float64(clusterStart) / float64(contentLen)
	}

	return Passage{
		Text:               sb.String(),
		Start:              clusterStart,
		Score:              float64(len(matchedSet)),
		MatchedTerms:       matchedTerms,
		TermCoverage:       coverage,
		NormalizedPosition: normalizedPos,
	}
}

// clampByteOffset nudges a byte offset forward to the start of the next
// valid rune boundary, so window slicing never splits a multi-byte
// UTF-8 sequence.
func clampByteOffset(s string, offset int) int {
	if offset <= 0 {
		return 0
	}
	if offset >= len(s) {
		return len(s)
	}
	for offset < len(s) && !isRuneStart(s[offset]) {
		offset++
	}
	return offset
}

func isRuneStart(b byte) bool {
	return b&0xC0 != 0x80
}

// normalizeScores rescales passage scores so the best-scoring passage is
// exactly 1.0 (§4.10 step 4).
func normalizeScores(passages []Passage) {
	if len(passages) == 0 {
		return
	}
	best := passages[0].Score
	if best <= 0 {
		return
	}
	for i := range passages {
		passages[i].Score = passages[i].Score / best
	}
}
