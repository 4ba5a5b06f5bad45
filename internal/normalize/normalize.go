// Package normalize implements the Text Normalizer: a pure function that
// takes raw extracted text to a canonical form suitable for indexing.
package normalize

import (
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

var namedEntities = map[string]rune{
	"amp": '&', "lt": '<', "gt": '>', "quot": '"', "apos": '\'',
	"nbsp": ' ', "copy": '©', "reg": '®', "trade": '™',
	"euro": '€', "pound": '£', "yen": '¥', "cent": '¢',
	"mdash": '—', "ndash": '–', "hellip": '…',
	"lsquo": '‘', "rsquo": '’', "ldquo": '“', "rdquo": '”',
	"laquo": '«', "raquo": '»', "bull": '•', "middot": '·',
	"deg": '°', "plusmn": '±', "times": '×', "divide": '÷',
	"frac12": '½', "frac14": '¼', "frac34": '¾',
	"para": '¶', "sect": '§', "dagger": '†', "Dagger": '‡',
}

// isNonStandardWhitespace reports whether r is one of the non-standard
// whitespace code points mapped to U+0020 by step 5: U+00A0, U+1680,
// U+2000-U+200B, U+202F, U+205F, U+3000, U+FEFF.
func isNonStandardWhitespace(r rune) bool {
	switch r {
	case 0x00A0, 0x1680, 0x202F, 0x205F, 0x3000, 0xFEFF:
		return true
	}
	return r >= 0x2000 && r <= 0x200B
}

func isStrippedControl(r rune) bool {
	switch {
	case r >= 0x00 && r <= 0x08:
		return true
	case r >= 0x0B && r <= 0x0C:
		return true
	case r >= 0x0E && r <= 0x1F:
		return true
	case r >= 0x7F && r <= 0x9F:
		return true
	default:
		return false
	}
}

// Normalize applies the canonicalization pipeline described by steps 1-7.
// It is idempotent: Normalize(Normalize(x)) == Normalize(x).
func Normalize(raw string) string {
	s := decodeHTMLEntities(raw)
	s = decodePercentEncoding(s)
	s = norm.NFKC.String(s)
	s = stripAndMapRunes(s)
	s = collapseWhitespace(s)
	return strings.TrimSpace(s)
}

// decodeHTMLEntities handles decimal, hex, and the closed named-entity set.
// Unknown or malformed entities are left exactly as they appear.
func decodeHTMLEntities(s string) string {
	var b strings.Builder
	b.Grow(len(s))

	i := 0
	for i < len(s) {
		if s[i] != '&' {
			b.WriteByte(s[i])
			i++
			continue
		}

		end := strings.IndexByte(s[i:], ';')
		if end < 0 || end > 32 {
			b.WriteByte(s[i])
			i++
			continue
		}
		body := s[i+1 : i+end]

		if r, ok := decodeEntityBody(body); ok {
			b.WriteRune(r)
			i += end + 1
			continue
		}

		b.WriteByte(s[i])
		i++
	}
	return b.String()
}

func decodeEntityBody(body string) (rune, bool) {
	switch {
	case strings.HasPrefix(body, "#x") || strings.HasPrefix(body, "#X"):
		v, err := strconv.ParseInt(body[2:], 16, 32)
		if err != nil {
			return 0, false
		}
		return rune(v), true
	case strings.HasPrefix(body, "#"):
		v, err := strconv.ParseInt(body[1:], 10, 32)
		if err != nil {
			return 0, false
		}
		return rune(v), true
	default:
		if r, ok := namedEntities[body]; ok {
			return r, true
		}
		return 0, false
	}
}

// decodePercentEncoding decodes %XX sequences with lookahead to complete
// multi-byte UTF-8 scalars. Invalid sequences pass through literally.
func decodePercentEncoding(s string) string {
	var b strings.Builder
	b.Grow(len(s))

	i := 0
	for i < len(s) {
		if s[i] != '%' || i+2 >= len(s) {
			b.WriteByte(s[i])
			i++
			continue
		}

		n, decoded, ok := decodePercentRun(s[i:])
		if !ok {
			b.WriteByte(s[i])
			i++
			continue
		}
		b.Write(decoded)
		i += n
	}
	return b.String()
}

// decodePercentRun decodes one or more consecutive %XX triples, consuming
// as many as form a valid UTF-8 sequence starting at the run's first byte.
func decodePercentRun(s string) (consumed int, decoded []byte, ok bool) {
	expected := utf8SeqLen(s)
	if expected == 0 {
		return 0, nil, false
	}

	buf := make([]byte, 0, expected)
	pos := 0
	for n := 0; n < expected; n++ {
		if pos+3 > len(s) || s[pos] != '%' {
			return 0, nil, false
		}
		v, err := strconv.ParseUint(s[pos+1:pos+3], 16, 8)
		if err != nil {
			return 0, nil, false
		}
		buf = append(buf, byte(v))
		pos += 3
	}
	if !utf8.Valid(buf) {
		return 0, nil, false
	}
	return pos, buf, true
}

// utf8SeqLen reports how many UTF-8 continuation bytes (including the
// lead byte) the first %XX byte of s implies, or 0 if s doesn't start
// with a valid percent-encoded byte.
func utf8SeqLen(s string) int {
	if len(s) < 3 || s[0] != '%' {
		return 0
	}
	v, err := strconv.ParseUint(s[1:3], 16, 8)
	if err != nil {
		return 0
	}
	lead := byte(v)
	switch {
	case lead < 0x80:
		return 1
	case lead&0xE0 == 0xC0:
		return 2
	case lead&0xF0 == 0xE0:
		return 3
	case lead&0xF8 == 0xF0:
		return 4
	default:
		return 0
	}
}

func stripAndMapRunes(s string) string {
	var b strings.Builder
	b.Grow(len(s))

	for _, r := range s {
		switch {
		case r == '\t' || r == '\n':
			b.WriteRune(r)
		case isStrippedControl(r):
			// dropped
		case isNonStandardWhitespace(r):
			b.WriteRune(' ')
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// collapseWhitespace collapses runs of tabs/spaces to a single space, then
// runs of newlines (with optional surrounding spaces) to a single newline.
func collapseWhitespace(s string) string {
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = collapseSpacesAndTabs(line)
	}
	joined := strings.Join(lines, "\n")

	var b strings.Builder
	b.Grow(len(joined))
	i := 0
	for i < len(joined) {
		c := joined[i]
		if c == '\n' || c == ' ' {
			j := i
			for j < len(joined) && (joined[j] == '\n' || joined[j] == ' ') {
				j++
			}
			if strings.ContainsRune(joined[i:j], '\n') {
				b.WriteByte('\n')
			} else {
				b.WriteByte(' ')
			}
			i = j
			continue
		}
		b.WriteByte(c)
		i++
	}
	return b.String()
}

func collapseSpacesAndTabs(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	inRun := false
	for _, r := range s {
		if r == ' ' || r == '\t' {
			if !inRun {
				b.WriteRune(' ')
				inRun = true
			}
			continue
		}
		inRun = false
		b.WriteRune(r)
	}
	return b.String()
}

// IsBlank reports whether s is empty or contains only whitespace — used
// after normalization to decide whether a document should be dropped
// from the index.
func IsBlank(s string) bool {
	for _, r := range s {
		if !unicode.IsSpace(r) {
			return false
		}
	}
	return true
}
