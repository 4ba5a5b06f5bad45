package extract_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/localsearchd/localsearchd/internal/extract"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "doc.txt")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestExtractReadsFullContentWhenUncapped(t *testing.T) {
	path := writeFile(t, "hello world")
	e := extract.NewPlainTextExtractor()

	doc, err := e.Extract(context.Background(), path, extract.Options{MaxContentLength: -1})
	require.NoError(t, err)
	assert.Equal(t, "hello world", doc.Content)
	assert.Equal(t, int64(11), doc.FileSize)
}

func TestExtractCapsContentLength(t *testing.T) {
	path := writeFile(t, "hello world")
	e := extract.NewPlainTextExtractor()

	doc, err := e.Extract(context.Background(), path, extract.Options{MaxContentLength: 5})
	require.NoError(t, err)
	assert.Equal(t, "hello", doc.Content)
}

func TestExtractDetectsFileType(t *testing.T) {
	path := filepath.Join(t.TempDir(), "main.go")
	require.NoError(t, os.WriteFile(path, []byte("package main"), 0o644))

	e := extract.NewPlainTextExtractor()
	doc, err := e.Extract(context.Background(), path, extract.Options{MaxContentLength: -1})
	require.NoError(t, err)
	assert.Equal(t, "text/x-go", doc.FileType)
}

func TestExtractLanguageDetectionOffByDefault(t *testing.T) {
	path := writeFile(t, "the quick brown fox and the lazy dog")
	e := extract.NewPlainTextExtractor()

	doc, err := e.Extract(context.Background(), path, extract.Options{MaxContentLength: -1, DetectLanguage: false})
	require.NoError(t, err)
	assert.Empty(t, doc.DetectedLanguage)
}

func TestExtractDetectsEnglish(t *testing.T) {
	path := writeFile(t, "the quick brown fox and the lazy dog are in the park")
	e := extract.NewPlainTextExtractor()

	doc, err := e.Extract(context.Background(), path, extract.Options{MaxContentLength: -1, DetectLanguage: true})
	require.NoError(t, err)
	assert.Equal(t, "en", doc.DetectedLanguage)
}

func TestExtractDetectsGerman(t *testing.T) {
	path := writeFile(t, "der Hund und die Katze sind nicht auf dem Tisch")
	e := extract.NewPlainTextExtractor()

	doc, err := e.Extract(context.Background(), path, extract.Options{MaxContentLength: -1, DetectLanguage: true})
	require.NoError(t, err)
	assert.Equal(t, "de", doc.DetectedLanguage)
}

func TestExtractMissingFileReturnsIOError(t *testing.T) {
	e := extract.NewPlainTextExtractor()
	_, err := e.Extract(context.Background(), filepath.Join(t.TempDir(), "missing.txt"), extract.Options{MaxContentLength: -1})
	assert.Error(t, err)
}

func TestRegistryFallsBackToPlainText(t *testing.T) {
	path := writeFile(t, "hello")
	r := extract.NewRegistry()

	doc, err := r.Extract(context.Background(), path, extract.Options{MaxContentLength: -1})
	require.NoError(t, err)
	assert.Equal(t, "hello", doc.Content)
}
