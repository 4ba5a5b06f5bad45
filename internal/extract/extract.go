// Package extract implements the Content Extractor contract (§4.3): a
// pluggable interface for turning a file on disk into extracted text plus
// metadata, with a built-in plain-text/source-code extractor.
package extract

import (
	"context"

	"github.com/localsearchd/localsearchd/internal/errors"
)

// ExtractedDocument is the result of extracting a single file.
type ExtractedDocument struct {
	Content          string
	Metadata         map[string]string
	DetectedLanguage string // empty means absent (§4.3)
	FileType         string // detected MIME type
	FileSize         int64
}

// Options controls extraction behavior, mirroring the configuration
// surface's extractMetadata/detectLanguage/maxContentLength keys.
type Options struct {
	// MaxContentLength caps the number of characters read from content.
	// A negative value means unlimited.
	MaxContentLength int
	ExtractMetadata  bool
	DetectLanguage   bool
}

// Extractor turns a file path into an ExtractedDocument. Implementations
// must surface parse failures as a typed I/O error — callers (the
// Orchestrator) count them as failed files and continue rather than
// aborting the crawl.
type Extractor interface {
	Extract(ctx context.Context, path string, opts Options) (ExtractedDocument, error)
	// SupportsExtension reports whether this extractor handles the given
	// lowercased file extension (including the leading dot, or "" for
	// extensionless files).
	SupportsExtension(ext string) bool
}

// Registry dispatches extraction to the first registered Extractor whose
// SupportsExtension matches, falling back to a default extractor for
// unmatched extensions (§4.3 names this a pluggable external collaborator;
// the registry is this implementation's plugin-dispatch point, per the
// per-field analyzer dispatch-map pattern used elsewhere in this codebase).
type Registry struct {
	extractors []Extractor
	fallback   Extractor
}

// NewRegistry creates a Registry whose fallback is the built-in plain-text
// extractor.
func NewRegistry(extractors ...Extractor) *Registry {
	return &Registry{extractors: extractors, fallback: NewPlainTextExtractor()}
}

func (r *Registry) Extract(ctx context.Context, path string, opts Options) (ExtractedDocument, error) {
	ext := extensionOf(path)
	for _, e := range r.extractors {
		if e.SupportsExtension(ext) {
			doc, err := e.Extract(ctx, path, opts)
			if err != nil {
				return doc, errors.ExtractError(path, err)
			}
			return doc, nil
		}
	}
	doc, err := r.fallback.Extract(ctx, path, opts)
	if err != nil {
		return doc, errors.ExtractError(path, err)
	}
	return doc, nil
}
