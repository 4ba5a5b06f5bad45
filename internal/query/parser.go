// Package query implements the hand-rolled query-string parser described
// in §4.4: a small recursive-descent grammar over AND/OR/NOT, parentheses,
// quoted phrases with optional proximity slop, field qualifiers, and
// wildcards — producing bleve search/query.Query trees directly, since
// bleve's own query-string parser does not implement the phrase-expansion,
// leading-wildcard, or adaptive-prefix-scoring rewrites this package needs.
package query

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/blevesearch/bleve/v2"
	bleveQuery "github.com/blevesearch/bleve/v2/search/query"

	"github.com/localsearchd/localsearchd/internal/document"
)

// ParseError reports a syntax error at a specific rune offset into the
// original query string, so callers can render a caret under the
// offending character (§4.4).
type ParseError struct {
	Message  string
	Position int
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("query syntax error at position %d: %s", e.Position, e.Message)
}

// Caret renders the original input with a caret ("^") under the error
// position, for display in CLI/MCP error output.
func (e *ParseError) Caret(input string) string {
	runes := []rune(input)
	pos := e.Position
	if pos > len(runes) {
		pos = len(runes)
	}
	return string(runes) + "\n" + strings.Repeat(" ", pos) + "^ " + e.Message
}

// Parse tokenizes and parses input, returning the equivalent bleve query.
// defaultField names the field that terms, phrases and wildcards without
// an explicit field qualifier are matched against.
func Parse(input, defaultField string) (bleveQuery.Query, error) {
	tokens, err := lex(input)
	if err != nil {
		return nil, err
	}
	p := &parser{tokens: tokens, defaultField: defaultField}
	q, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if p.peek().kind != tokEOF {
		return nil, &ParseError{Message: "unexpected trailing input", Position: p.peek().pos}
	}
	return q, nil
}

type parser struct {
	tokens       []token
	pos          int
	defaultField string
}

func (p *parser) peek() token {
	return p.tokens[p.pos]
}

func (p *parser) advance() token {
	t := p.tokens[p.pos]
	if p.pos < len(p.tokens)-1 {
		p.pos++
	}
	return t
}

// parseOr implements `OrExpr := AndExpr ((OR)? AndExpr)*` — an explicit OR
// and bare juxtaposition (no operator at all between two clauses) are
// both folded into the same disjunction, since juxtaposition's default
// combinator is OR (only an explicit AND narrows, per parseAnd).
func (p *parser) parseOr() (bleveQuery.Query, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	clauses := []bleveQuery.Query{left}
	for {
		if p.peek().kind == tokOr {
			p.advance()
		} else if !startsPrimary(p.peek().kind) {
			break
		}
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		clauses = append(clauses, right)
	}
	if len(clauses) == 1 {
		return clauses[0], nil
	}
	return bleve.NewDisjunctionQuery(clauses...), nil
}

func startsPrimary(k tokenKind) bool {
	switch k {
	case tokWord, tokPhrase, tokLParen, tokField, tokNot:
		return true
	default:
		return false
	}
}

// parseAnd implements `AndExpr := NotExpr (AND NotExpr)*`. Only an
// explicit AND token binds at this level; juxtaposition with no operator
// is handled one level up, in parseOr.
func (p *parser) parseAnd() (bleveQuery.Query, error) {
	left, err := p.parseNot()
	if err != nil {
		return nil, err
	}
	clauses := []bleveQuery.Query{left}
	for p.peek().kind == tokAnd {
		p.advance()
		right, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		clauses = append(clauses, right)
	}
	if len(clauses) == 1 {
		return clauses[0], nil
	}
	return bleve.NewConjunctionQuery(clauses...), nil
}

// parseNot implements `NotExpr := [NOT] Primary`. A negated primary
// becomes its own BooleanQuery that must match everything and must not
// match the primary; neighboring clauses are not folded into it.
func (p *parser) parseNot() (bleveQuery.Query, error) {
	if p.peek().kind == tokNot {
		p.advance()
		inner, err := p.parsePrimary()
		if err != nil {
			return nil, err
		}
		must := bleve.NewMatchAllQuery()
		bq := bleve.NewBooleanQuery()
		bq.AddMust(must)
		bq.AddMustNot(inner)
		return bq, nil
	}
	return p.parsePrimary()
}

// parsePrimary implements `Primary := '(' OrExpr ')' | [field ':'] Term`.
func (p *parser) parsePrimary() (bleveQuery.Query, error) {
	tok := p.peek()

	if tok.kind == tokLParen {
		p.advance()
		inner, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if p.peek().kind != tokRParen {
			return nil, &ParseError{Message: "expected ')'", Position: p.peek().pos}
		}
		p.advance()
		return inner, nil
	}

	field := p.defaultField
	explicitField := false
	if tok.kind == tokField {
		field = tok.text
		explicitField = true
		p.advance()
		tok = p.peek()
	}

	// An unqualified term matched against the default content field is
	// matched across content and all of its analyzer shadow fields (§3),
	// so stemmed/transliterated/mixed-language forms are reachable from a
	// plain search(query_text, …) call, not just a hand-written
	// field-qualified query.
	fields := []string{field}
	if !explicitField && field == document.FieldContent {
		fields = document.ContentFields
	}

	switch tok.kind {
	case tokPhrase:
		p.advance()
		tokens := strings.Fields(tok.text)
		var slop *int
		if p.peek().kind == tokTilde {
			st := p.advance()
			n, err := strconv.Atoi(st.text)
			if err != nil {
				return nil, &ParseError{Message: "invalid proximity value", Position: st.pos}
			}
			slop = &n
		}
		return disjoinAcrossFields(fields, func(f string) bleveQuery.Query {
			return phraseClause(f, tokens, slop)
		}), nil
	case tokWord:
		p.advance()
		term := tok.text
		if strings.ContainsAny(term, "*?") {
			// A leading wildcard always rewrites against the single shared
			// content_reversed field regardless of which field it was
			// matched against, so it is never exploded across the content
			// shadow fields — doing so would just OR the identical clause
			// with itself once per shadow field.
			if strings.HasPrefix(term, "*") && !strings.HasSuffix(term, "*") {
				return wildcardClause(field, term, tok.pos)
			}
			clauses := make([]bleveQuery.Query, 0, len(fields))
			for _, f := range fields {
				wq, err := wildcardClause(f, term, tok.pos)
				if err != nil {
					return nil, err
				}
				clauses = append(clauses, wq)
			}
			if len(clauses) == 1 {
				return clauses[0], nil
			}
			return bleve.NewDisjunctionQuery(clauses...), nil
		}
		return disjoinAcrossFields(fields, func(f string) bleveQuery.Query {
			q := bleve.NewMatchQuery(strings.ToLower(term))
			if f != "" {
				q.SetField(f)
			}
			return q
		}), nil
	default:
		return nil, &ParseError{Message: "expected a term, phrase, or '('", Position: tok.pos}
	}
}

// disjoinAcrossFields builds build(field) for every field and ORs the
// results together, returning the lone clause unwrapped when there is
// only one field.
func disjoinAcrossFields(fields []string, build func(field string) bleveQuery.Query) bleveQuery.Query {
	if len(fields) == 1 {
		return build(fields[0])
	}
	clauses := make([]bleveQuery.Query, 0, len(fields))
	for _, f := range fields {
		clauses = append(clauses, build(f))
	}
	return bleve.NewDisjunctionQuery(clauses...)
}
