package parser //nolint:revive // intentional: does not conflict with go/parser in internal package

import (
	"fmt"
	"strings"

	pg_query "github.com/pganalyze/pg_query_go/v6"
)

// source is one input with its quote-normalized form. Normalized offsets map
// back to the input through offs.
type source struct {
	orig   string
	norm   string
	offs   []int
	tokens []*pg_query.ScanToken
}

func newSource(sql string) (*source, error) {
	norm, offs := normalizeQuotes(sql)

	scan, err := pg_query.Scan(norm)
	if err != nil {
		return nil, fmt.Errorf("scanning SQL: %w", err)
	}

	return &source{
		orig:   sql,
		norm:   norm,
		offs:   offs,
		tokens: significantTokens(norm, scan.Tokens),
	}, nil
}

func (s *source) text(tok *pg_query.ScanToken) string {
	return tokenText(s.norm, tok)
}

func (s *source) is(tok *pg_query.ScanToken, word string) bool {
	return strings.EqualFold(s.text(tok), word)
}

// original returns the input text behind norm[start:end].
func (s *source) original(start, end int32) string {
	if s.offs == nil {
		return s.orig[start:end]
	}

	return s.orig[s.offs[start]:s.offs[end]]
}

// span returns the normalized text covered by toks.
func (s *source) span(toks []*pg_query.ScanToken) string {
	return s.norm[toks[0].Start:toks[len(toks)-1].End]
}

// splitUse detects a leading "USE <db>" and returns the database name and
// the tokens following the statement terminator.
func (s *source) splitUse() (string, []*pg_query.ScanToken, bool) {
	if len(s.tokens) < 2 || !s.is(s.tokens[0], "use") {
		return "", nil, false
	}

	db := UnquoteIdent(s.text(s.tokens[1]))

	for i, tok := range s.tokens[2:] {
		if s.text(tok) == ";" {
			return db, s.tokens[i+3:], true
		}
	}

	return db, nil, true
}

// statements splits tokens at semicolons and rewrites each statement for
// PostgreSQL.
func (s *source) statements(tokens []*pg_query.ScanToken) ([]Statement, error) {
	var (
		out []Statement
		seg []*pg_query.ScanToken
	)

	flush := func() error {
		if len(seg) == 0 {
			return nil
		}

		st, err := s.rewrite(seg)
		if err != nil {
			return err
		}

		out = append(out, st...)
		seg = nil

		return nil
	}

	for _, tok := range tokens {
		if s.text(tok) == ";" {
			if err := flush(); err != nil {
				return nil, err
			}

			continue
		}

		seg = append(seg, tok)
	}

	if err := flush(); err != nil {
		return nil, err
	}

	return out, nil
}

func (s *source) rewrite(seg []*pg_query.ScanToken) ([]Statement, error) {
	written := s.original(seg[0].Start, seg[len(seg)-1].End)

	switch {
	case len(seg) >= 2 && s.is(seg[0], "rename") && s.is(seg[1], "table"):
		return s.rewriteRename(seg, written)
	case len(seg) >= 2 && s.is(seg[0], "drop") && s.is(seg[1], "index"):
		return []Statement{s.rewriteDropIndex(seg, written)}, nil
	default:
		return []Statement{{Text: written, Exec: s.span(seg)}}, nil
	}
}

// rewriteRename turns "RENAME TABLE a TO b, c TO d" into one
// "ALTER TABLE a RENAME TO b" statement per pair. Each pair keeps its own
// RENAME TABLE text.
func (s *source) rewriteRename(seg []*pg_query.ScanToken, written string) ([]Statement, error) {
	var out []Statement

	for i := 2; i < len(seg); {
		srcStart := i
		for i < len(seg) && !s.is(seg[i], "to") {
			i++
		}

		if i >= len(seg) || i == srcStart {
			return nil, fmt.Errorf("%w: missing TO", ErrMalformedRename)
		}

		src := s.span(seg[srcStart:i])
		i++

		dstStart := i
		for i < len(seg) && s.text(seg[i]) != "," {
			i++
		}

		if i == dstStart {
			return nil, fmt.Errorf("%w: missing target name", ErrMalformedRename)
		}

		// PostgreSQL only accepts an unqualified new name.
		dst := s.text(seg[i-1])

		out = append(out, Statement{
			Text: "RENAME TABLE " + s.original(seg[srcStart].Start, seg[i-1].End),
			Exec: "ALTER TABLE " + src + " RENAME TO " + dst,
		})

		i++
	}

	if len(out) == 0 {
		return nil, fmt.Errorf("%w: no table pairs", ErrMalformedRename)
	}

	if len(out) == 1 {
		out[0].Text = written
	}

	return out, nil
}

// rewriteDropIndex cuts "ON [db.]table" and anything after it from
// DROP INDEX. Without an ON clause the statement is left alone.
func (s *source) rewriteDropIndex(seg []*pg_query.ScanToken, written string) Statement {
	st := Statement{Text: written, Exec: s.span(seg)}

	on := -1

	for i := 3; i < len(seg)-1; i++ {
		if s.is(seg[i], "on") {
			on = i
		}
	}

	if on < 0 {
		return st
	}

	j := on + 1
	for j+2 < len(seg) && s.text(seg[j+1]) == "." {
		j += 2
	}

	st.Exec = s.span(seg[:on])
	st.IndexTable = UnquoteIdent(s.text(seg[j]))

	return st
}

// significantTokens drops comment tokens.
func significantTokens(sql string, tokens []*pg_query.ScanToken) []*pg_query.ScanToken {
	out := make([]*pg_query.ScanToken, 0, len(tokens))

	for _, tok := range tokens {
		text := tokenText(sql, tok)
		if strings.HasPrefix(text, "--") || strings.HasPrefix(text, "/*") {
			continue
		}

		out = append(out, tok)
	}

	return out
}

// normalizeQuotes rewrites `ident` as "ident". String literals, quoted
// identifiers and comments are copied untouched. The returned offsets map
// each output byte, plus the end, to its input position; they are nil when
// nothing changed.
func normalizeQuotes(sql string) (string, []int) {
	if !strings.Contains(sql, "`") {
		return sql, nil
	}

	n := &normalizer{src: sql}
	n.out.Grow(len(sql))

	for i := 0; i < len(sql); i++ {
		c := sql[i]

		switch {
		case c == '\'' || c == '"':
			end := closingQuote(sql, i+1, c)
			n.copy(i, end)
			i = end - 1
		case c == '-' && i+1 < len(sql) && sql[i+1] == '-':
			end := strings.IndexByte(sql[i:], '\n')
			if end < 0 {
				end = len(sql) - i
			}

			n.copy(i, i+end)
			i += end - 1
		case c == '/' && i+1 < len(sql) && sql[i+1] == '*':
			end := strings.Index(sql[i+2:], "*/")
			if end < 0 {
				n.copy(i, len(sql))
				i = len(sql)

				continue
			}

			n.copy(i, i+end+4)
			i += end + 3
		case c == '`':
			i = n.backtick(i+1) - 1
		default:
			n.copy(i, i+1)
		}
	}

	n.offs = append(n.offs, len(sql))

	return n.out.String(), n.offs
}

type normalizer struct {
	src  string
	out  strings.Builder
	offs []int
}

func (n *normalizer) emit(b byte, at int) {
	n.out.WriteByte(b)
	n.offs = append(n.offs, at)
}

func (n *normalizer) copy(from, to int) {
	for i := from; i < to; i++ {
		n.emit(n.src[i], i)
	}
}

// backtick converts one backtick identifier starting at pos (just past the
// opening backtick) and returns the index past the closing one.
func (n *normalizer) backtick(pos int) int {
	n.emit('"', pos-1)

	for pos < len(n.src) {
		c := n.src[pos]

		switch {
		case c == '`' && pos+1 < len(n.src) && n.src[pos+1] == '`':
			n.emit('`', pos)
			pos += 2
		case c == '`':
			n.emit('"', pos)
			return pos + 1
		case c == '"':
			n.emit('"', pos)
			n.emit('"', pos)
			pos++
		default:
			n.emit(c, pos)
			pos++
		}
	}

	n.emit('"', pos)

	return pos
}

// closingQuote returns the index just past the quote that closes a literal
// opened before pos. A doubled quote is an escaped quote.
func closingQuote(sql string, pos int, quote byte) int {
	for pos < len(sql) {
		if sql[pos] == quote {
			if pos+1 < len(sql) && sql[pos+1] == quote {
				pos += 2
				continue
			}

			return pos + 1
		}

		pos++
	}

	return len(sql)
}
