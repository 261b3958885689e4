package parser //nolint:revive // intentional: does not conflict with go/parser in internal package

import (
	"fmt"
	"strings"

	pg_query "github.com/pganalyze/pg_query_go/v6"
)

// ParseResult holds the scanned tokens, the parsed AST and the SQL it came from.
type ParseResult struct {
	// Tokens are the lexer tokens of the quote-normalized input, USE prefix
	// included.
	Tokens []*pg_query.ScanToken
	Stmts  []*pg_query.RawStmt
	// SQL is the input exactly as given.
	SQL string
	// Normalized is the text handed to the PostgreSQL parser. Statement
	// locations in Stmts are offsets into it.
	Normalized string
	// UseDatabase is set when the input starts with a USE <db> statement.
	UseDatabase string

	statements []Statement
}

// Statement is one statement of a script.
type Statement struct {
	// Text is the statement as written, without its terminator.
	Text string
	// Exec is the PostgreSQL form of Text, the one sent to the server.
	Exec string
	// IndexTable is the table named in the ON clause of a MySQL-style
	// DROP INDEX. PostgreSQL does not accept the clause, so it is cut from
	// Exec and kept here.
	IndexTable string
}

// Parse parses a SQL string and returns the AST.
// Returns an empty result (zero statements) for empty or whitespace-only input.
//
// Before parsing, a few MySQL forms are rewritten into their PostgreSQL
// equivalents: backtick-quoted identifiers become double-quoted, a leading
// USE statement is stripped and reported in UseDatabase, RENAME TABLE
// becomes ALTER TABLE ... RENAME TO, and DROP INDEX loses its ON clause.
// Statements keeps the text as written next to each rewrite.
func Parse(sql string) (*ParseResult, error) {
	trimmed := strings.TrimSpace(sql)
	if trimmed == "" {
		return &ParseResult{SQL: sql}, nil
	}

	src, err := newSource(trimmed)
	if err != nil {
		return nil, err
	}

	result := &ParseResult{
		Tokens: src.tokens,
		SQL:    sql,
	}

	body := src.tokens
	if db, rest, ok := src.splitUse(); ok {
		result.UseDatabase = db
		body = rest
	}

	statements, err := src.statements(body)
	if err != nil {
		return nil, err
	}

	if len(statements) == 0 {
		return result, nil
	}

	execs := make([]string, len(statements))
	for i, st := range statements {
		execs[i] = st.Exec
	}

	result.Normalized = strings.Join(execs, ";\n") + ";"

	tree, err := pg_query.Parse(result.Normalized)
	if err != nil {
		return nil, fmt.Errorf("parsing SQL: %w", err)
	}

	result.Stmts = tree.Stmts
	result.statements = statements

	// A body splitting differently from the parser (semicolons inside
	// BEGIN ATOMIC) falls back to the parser's own boundaries.
	if len(tree.Stmts) != len(statements) {
		result.statements = result.fromLocations()
	}

	return result, nil
}

// LeadingUse returns the database of a leading USE statement. It succeeds
// even when the rest of sql does not parse.
func LeadingUse(sql string) (string, bool) {
	src, err := newSource(strings.TrimSpace(sql))
	if err != nil {
		return "", false
	}

	db, _, ok := src.splitUse()

	return db, ok
}

// Statements returns every parsed statement in order.
func (r *ParseResult) Statements() []Statement {
	return r.statements
}

// IndexTable returns the ON table of the idx-th statement, if it had one.
func (r *ParseResult) IndexTable(idx int) string {
	if idx < 0 || idx >= len(r.statements) {
		return ""
	}

	return r.statements[idx].IndexTable
}

// fromLocations slices Normalized by statement locations.
func (r *ParseResult) fromLocations() []Statement {
	out := make([]Statement, 0, len(r.Stmts))

	for _, stmt := range r.Stmts {
		start := int(stmt.StmtLocation)
		end := len(r.Normalized)

		if l := int(stmt.StmtLen); l > 0 {
			end = start + l
		}

		if start > len(r.Normalized) || end > len(r.Normalized) || start >= end {
			continue
		}

		text := strings.TrimSpace(r.Normalized[start:end])
		out = append(out, Statement{Text: text, Exec: text})
	}

	return out
}

func tokenText(sql string, tok *pg_query.ScanToken) string {
	start, end := int(tok.Start), int(tok.End)
	if start < 0 || end > len(sql) || start >= end {
		return ""
	}

	return sql[start:end]
}

// UnquoteIdent strips double quotes from a quoted identifier.
func UnquoteIdent(s string) string {
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		return strings.ReplaceAll(s[1:len(s)-1], `""`, `"`)
	}

	return s
}
