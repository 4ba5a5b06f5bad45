package extract

import (
	"bufio"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/localsearchd/localsearchd/internal/errors"
)

// PlainTextExtractor reads a file as UTF-8 text, honoring MaxContentLength
// and the built-in best-effort language guesser. It has no file-format
// awareness beyond MIME-type labeling — it's the fallback every other
// extractor sits in front of.
type PlainTextExtractor struct{}

func NewPlainTextExtractor() *PlainTextExtractor {
	return &PlainTextExtractor{}
}

func (PlainTextExtractor) SupportsExtension(string) bool {
	return true
}

func (PlainTextExtractor) Extract(ctx context.Context, path string, opts Options) (ExtractedDocument, error) {
	info, err := os.Stat(path)
	if err != nil {
		return ExtractedDocument{}, errors.IOError(path, err)
	}
	if info.IsDir() {
		return ExtractedDocument{}, errors.IOError(path, errNotAFile)
	}

	f, err := os.Open(path)
	if err != nil {
		return ExtractedDocument{}, errors.IOError(path, err)
	}
	defer f.Close()

	content, err := readCapped(f, opts.MaxContentLength)
	if err != nil {
		return ExtractedDocument{}, errors.IOError(path, err)
	}

	doc := ExtractedDocument{
		Content:  content,
		FileType: MimeTypeForPath(path),
		FileSize: info.Size(),
		Metadata: map[string]string{},
	}

	if opts.DetectLanguage {
		if lang, ok := guessLanguage(content); ok {
			doc.DetectedLanguage = lang
		}
	}

	select {
	case <-ctx.Done():
		return ExtractedDocument{}, ctx.Err()
	default:
	}

	return doc, nil
}

var errNotAFile = stringErr("path is a directory")

type stringErr string

func (e stringErr) Error() string { return string(e) }

// readCapped reads r as UTF-8, stopping once maxChars runes have been
// read. A negative maxChars means unlimited (§4.3).
func readCapped(r io.Reader, maxChars int) (string, error) {
	if maxChars < 0 {
		data, err := io.ReadAll(r)
		if err != nil {
			return "", err
		}
		return string(data), nil
	}

	var b strings.Builder
	br := bufio.NewReader(r)
	count := 0
	for count < maxChars {
		ru, _, err := br.ReadRune()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", err
		}
		if ru == utf8.RuneError {
			continue
		}
		b.WriteRune(ru)
		count++
	}
	return b.String(), nil
}

func extensionOf(path string) string {
	return strings.ToLower(filepath.Ext(path))
}
