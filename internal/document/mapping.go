package document

import (
	"fmt"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/custom"
	"github.com/blevesearch/bleve/v2/analysis/lang/de"
	"github.com/blevesearch/bleve/v2/analysis/lang/en"
	"github.com/blevesearch/bleve/v2/analysis/token/lowercase"
	"github.com/blevesearch/bleve/v2/analysis/token/reverse"
	"github.com/blevesearch/bleve/v2/analysis/tokenizer/unicode"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/registry"
)

const (
	// ReversedAnalyzerName tokenizes then reverses each token's
	// characters, enabling leading-wildcard queries to be rewritten as
	// trailing-wildcard queries against content_reversed (§4.4, §GLOSSARY).
	ReversedAnalyzerName = "content_reversed"

	// TranslitDEAnalyzerName applies the German digraph transliteration
	// (ae->ä, oe->ö, ue->ü) before lowercasing. No stemming is applied.
	TranslitDEAnalyzerName = "content_translit_de"

	translitDEFilterName = "de_digraph_translit"

	// FieldContent and FieldContentReversed name the two fields the Query
	// Parser's leading-wildcard rewrite needs to know by name (§4.4).
	FieldContent         = "content"
	FieldContentReversed = "content_reversed"

	// FieldContentLemmaDE, FieldContentLemmaEN, and FieldContentTranslitDE
	// are the always-present shadow fields of §3 that exist to enable
	// cross-form (inflected/transliterated, mixed-language) matching.
	FieldContentLemmaDE    = "content_lemma_de"
	FieldContentLemmaEN    = "content_lemma_en"
	FieldContentTranslitDE = "content_translit_de"
)

// ContentFields lists content and all of its analyzer shadow fields
// (everything but content_reversed, which exists solely to serve the
// leading-wildcard rewrite, not cross-form term matching). The Search
// Executor's bare-term handling queries all of these so an unqualified
// search also matches via the German-stemmed, English-stemmed, and
// digraph-transliterated forms of the indexed text (§3).
var ContentFields = []string{FieldContent, FieldContentLemmaDE, FieldContentLemmaEN, FieldContentTranslitDE}

func init() {
	_ = registry.RegisterTokenFilter(translitDEFilterName, deTranslitFilterConstructor)
}

// BuildIndexMapping constructs the bleve mapping for IndexedDocument: a
// standard default analyzer, plus the per-field analyzer dispatch
// described by §3 and the "plugin/polymorphism for per-field analysis"
// design note — a field-name-to-analyzer-variant map, not a type switch.
func BuildIndexMapping() (*mapping.IndexMappingImpl, error) {
	im := bleve.NewIndexMapping()

	if err := im.AddCustomAnalyzer(ReversedAnalyzerName, map[string]interface{}{
		"type":      custom.Name,
		"tokenizer": unicode.Name,
		"token_filters": []string{
			lowercase.Name,
			reverse.Name,
		},
	}); err != nil {
		return nil, fmt.Errorf("register %s analyzer: %w", ReversedAnalyzerName, err)
	}

	if err := im.AddCustomAnalyzer(TranslitDEAnalyzerName, map[string]interface{}{
		"type":      custom.Name,
		"tokenizer": unicode.Name,
		"token_filters": []string{
			translitDEFilterName,
			lowercase.Name,
		},
	}); err != nil {
		return nil, fmt.Errorf("register %s analyzer: %w", TranslitDEAnalyzerName, err)
	}

	doc := bleve.NewDocumentMapping()

	doc.AddFieldMappingsAt("path", keywordField(true))
	doc.AddFieldMappingsAt("file_name", textField(en.AnalyzerName, false))
	doc.AddFieldMappingsAt(FieldContent, termVectorTextField())
	doc.AddFieldMappingsAt(FieldContentReversed, textField(ReversedAnalyzerName, false))
	doc.AddFieldMappingsAt(FieldContentLemmaDE, textField(de.AnalyzerName, false))
	doc.AddFieldMappingsAt(FieldContentLemmaEN, textField(en.AnalyzerName, false))
	doc.AddFieldMappingsAt(FieldContentTranslitDE, textField(TranslitDEAnalyzerName, false))
	doc.AddFieldMappingsAt("file_extension", keywordField(true))
	doc.AddFieldMappingsAt("file_type", keywordField(true))
	doc.AddFieldMappingsAt("file_size", numericField())
	doc.AddFieldMappingsAt("created_date", numericField())
	doc.AddFieldMappingsAt("modified_date", numericField())
	doc.AddFieldMappingsAt("indexed_date", numericField())
	doc.AddFieldMappingsAt("title", textField(en.AnalyzerName, true))
	doc.AddFieldMappingsAt("author", keywordField(true))
	doc.AddFieldMappingsAt("creator", textField(en.AnalyzerName, true))
	doc.AddFieldMappingsAt("subject", textField(en.AnalyzerName, true))
	doc.AddFieldMappingsAt("keywords", textField(en.AnalyzerName, true))
	doc.AddFieldMappingsAt("language", keywordField(true))
	doc.AddFieldMappingsAt("content_hash", keywordField(true))

	im.DefaultMapping = doc
	im.DefaultAnalyzer = en.AnalyzerName
	return im, nil
}

func keywordField(store bool) *mapping.FieldMapping {
	f := bleve.NewTextFieldMapping()
	f.Analyzer = "keyword"
	f.Store = store
	f.IncludeInAll = false
	return f
}

func textField(analyzerName string, store bool) *mapping.FieldMapping {
	f := bleve.NewTextFieldMapping()
	f.Analyzer = analyzerName
	f.Store = store
	return f
}

// termVectorTextField is used for the `content` field, which needs term
// vectors with positions and offsets for highlighting (§3).
func termVectorTextField() *mapping.FieldMapping {
	f := bleve.NewTextFieldMapping()
	f.Analyzer = en.AnalyzerName
	f.Store = true
	f.IncludeTermVectors = true
	return f
}

func numericField() *mapping.FieldMapping {
	f := bleve.NewNumericFieldMapping()
	f.Store = true
	return f
}

// deTranslitFilterConstructor builds the digraph-transliteration token
// filter registered as translitDEFilterName.
func deTranslitFilterConstructor(config map[string]interface{}, cache *registry.Cache) (analysis.TokenFilter, error) {
	return &deTranslitFilter{}, nil
}

type deTranslitFilter struct{}

var deDigraphs = map[string]string{
	"ae": "ä",
	"oe": "ö",
	"ue": "ü",
}

func (f *deTranslitFilter) Filter(input analysis.TokenStream) analysis.TokenStream {
	for _, token := range input {
		token.Term = []byte(replaceDigraphs(string(token.Term)))
	}
	return input
}

// replaceDigraphs rewrites ae/oe/ue digraphs to their umlaut form,
// case-insensitively, leaving everything else untouched.
func replaceDigraphs(s string) string {
	runes := []rune(s)
	var out []rune
	for i := 0; i < len(runes); i++ {
		if i+1 < len(runes) {
			pair := string(toLowerRune(runes[i])) + string(toLowerRune(runes[i+1]))
			if repl, ok := deDigraphs[pair]; ok {
				out = append(out, []rune(repl)...)
				i++
				continue
			}
		}
		out = append(out, runes[i])
	}
	return string(out)
}

func toLowerRune(r rune) rune {
	if r >= 'A' && r <= 'Z' {
		return r + ('a' - 'A')
	}
	return r
}
