// Package document implements the Document Builder (§4.5): the
// deterministic transform from an extracted file to the IndexedDocument
// record stored by the Index Gateway.
package document

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/localsearchd/localsearchd/internal/extract"
	"github.com/localsearchd/localsearchd/internal/normalize"
)

// IndexedDocument is the logical record described by §3. Struct tags
// double as the bleve field names used by the index mapping.
type IndexedDocument struct {
	Path               string `json:"path"`
	FileName           string `json:"file_name"`
	Content            string `json:"content"`
	ContentReversed    string `json:"content_reversed"`
	ContentLemmaDE     string `json:"content_lemma_de"`
	ContentLemmaEN     string `json:"content_lemma_en"`
	ContentTranslitDE  string `json:"content_translit_de"`
	FileExtension      string `json:"file_extension"`
	FileType           string `json:"file_type"`
	FileSize           int64  `json:"file_size"`
	CreatedDate        int64  `json:"created_date"`
	ModifiedDate       int64  `json:"modified_date"`
	IndexedDate        int64  `json:"indexed_date"`
	Title              string `json:"title,omitempty"`
	Author             string `json:"author,omitempty"`
	Creator            string `json:"creator,omitempty"`
	Subject            string `json:"subject,omitempty"`
	Keywords           string `json:"keywords,omitempty"`
	Language           string `json:"language,omitempty"`
	ContentHash        string `json:"content_hash,omitempty"`
}

// metadataChain lists, per target field, the metadata keys to try in
// priority order. First non-empty value wins (§4.5).
var metadataChain = map[string][]string{
	"title":    {"dc:title", "title", "Title"},
	"author":   {"dc:creator", "meta:author", "Author", "author"},
	"creator":  {"meta:creator", "Creator", "creator"},
	"subject":  {"dc:subject", "subject", "Subject"},
	"keywords": {"meta:keyword", "keywords", "Keywords"},
}

// Build produces an IndexedDocument for path from its extracted content.
// Key fields are populated exactly once; timestamp reads that fail are
// omitted rather than failing the whole build (§4.5).
func Build(path string, extracted extract.ExtractedDocument, indexedAt time.Time) IndexedDocument {
	cleaned := normalize.Normalize(extracted.Content)

	doc := IndexedDocument{
		Path:         path,
		FileName:     filepath.Base(path),
		Content:      cleaned,
		FileType:     extracted.FileType,
		FileSize:     extracted.FileSize,
		IndexedDate:  indexedAt.UnixMilli(),
		Language:     extracted.DetectedLanguage,
	}

	doc.FileExtension = fileExtension(doc.FileName)

	for field, keys := range metadataChain {
		if v := firstNonEmpty(extracted.Metadata, keys); v != "" {
			setMetadataField(&doc, field, v)
		}
	}

	if !normalize.IsBlank(cleaned) {
		// content_reversed/content_lemma_*/content_translit_de all carry
		// the SAME cleaned string as content — it's the bleve field
		// mapping (see mapping.go) that assigns each field its own
		// analyzer (reverse-token, EN/DE stemmer, DE transliteration),
		// doing the actual per-field transform at tokenize time (§3 I2).
		doc.ContentReversed = cleaned
		doc.ContentLemmaDE = cleaned
		doc.ContentLemmaEN = cleaned
		doc.ContentTranslitDE = cleaned
		doc.ContentHash = contentHash(cleaned)
	}

	if info, err := os.Stat(path); err == nil {
		doc.ModifiedDate = info.ModTime().UnixMilli()
		// Go's os.FileInfo has no portable birth-time accessor; mtime is
		// the only timestamp guaranteed present on every platform, so
		// created_date uses it too rather than a per-OS syscall. Per the
		// decided Open Question, what matters is that this is always a
		// proper millisecond timestamp, never a filesystem-attribute hash.
		doc.CreatedDate = info.ModTime().UnixMilli()
	}

	return doc
}

// IsIndexable reports whether doc should be written to the gateway (§3 I4,
// §8 boundary behaviors): empty content after normalization is dropped.
func IsIndexable(doc IndexedDocument) bool {
	return !normalize.IsBlank(doc.Content)
}

func setMetadataField(doc *IndexedDocument, field, value string) {
	switch field {
	case "title":
		doc.Title = value
	case "author":
		doc.Author = value
	case "creator":
		doc.Creator = value
	case "subject":
		doc.Subject = value
	case "keywords":
		doc.Keywords = value
	}
}

func firstNonEmpty(metadata map[string]string, keys []string) string {
	for _, k := range keys {
		if v, ok := metadata[k]; ok && strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

// fileExtension returns the lowercased suffix after the final dot, empty
// if the basename has no dot or ends with one (§4.5).
func fileExtension(baseName string) string {
	idx := strings.LastIndex(baseName, ".")
	if idx < 0 || idx == len(baseName)-1 {
		return ""
	}
	return strings.ToLower(baseName[idx+1:])
}

func contentHash(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}
