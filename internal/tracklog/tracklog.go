// Package tracklog reads and writes the append-only statement logs kept in
// tracking records.
//
// A log is a sequence of entries, each introduced by a header line:
//
//	# log 2024-01-02 15:04:05 alice
//	INSERT INTO orders VALUES (1);
//
// The format is shared with existing stored records and must not change.
package tracklog

import (
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/araddon/dateparse"
)

// Delimiter opens every log entry.
const Delimiter = "# log "

// TimeLayout is the timestamp layout used in entry headers.
const TimeLayout = "2006-01-02 15:04:05"

// timestampLen is the rune length of a TimeLayout timestamp.
const timestampLen = len(TimeLayout)

var whitespace = regexp.MustCompile(`\s+`) //nolint:gochecknoglobals // compiled once

// Entry is one parsed log entry.
type Entry struct {
	// Date is the raw header timestamp.
	Date      string
	At        time.Time
	Username  string
	Statement string
}

// Header returns the header line for an entry written at t by user.
func Header(t time.Time, user string) string {
	return Delimiter + t.Format(TimeLayout) + " " + whitespace.ReplaceAllString(user, " ") + "\n"
}

// Format renders a complete entry.
func Format(t time.Time, user, statement string) string {
	return Header(t, user) + statement + "\n"
}

// Parse splits log text into entries in stored order. Blank and truncated
// chunks are skipped.
func Parse(text string) []Entry {
	var entries []Entry

	for _, chunk := range strings.Split(text, Delimiter) {
		if strings.TrimSpace(chunk) == "" {
			continue
		}

		if e, ok := parseChunk(chunk); ok {
			entries = append(entries, e)
		}
	}

	return entries
}

// parseChunk holds all offset arithmetic of the format: the timestamp is the
// first 19 runes, the username runs from rune 20 to the first newline and the
// statement is everything after it.
func parseChunk(chunk string) (Entry, bool) {
	if utf8.RuneCountInString(chunk) < timestampLen {
		return Entry{}, false
	}

	runes := []rune(chunk)
	date := string(runes[:timestampLen])

	header, statement, _ := strings.Cut(string(runes[timestampLen:]), "\n")

	return Entry{
		Date:      date,
		At:        ParseTime(date),
		Username:  strings.TrimPrefix(header, " "),
		Statement: strings.TrimRight(statement, " \t\r\n"),
	}, true
}

// ParseTime reads a header timestamp in the local zone. Rows written by older
// tools sometimes carry other layouts, so anything dateparse understands is
// accepted too. Unreadable values yield the zero time.
func ParseTime(s string) time.Time {
	if t, err := time.ParseInLocation(TimeLayout, s, time.Local); err == nil {
		return t
	}

	if t, err := dateparse.ParseIn(s, time.Local); err == nil {
		return t
	}

	return time.Time{}
}

// Range returns the earliest first entry and the latest last entry of the
// two logs. An empty log, or an entry without a readable timestamp,
// contributes now.
func Range(ddl, dml []Entry, now time.Time) (time.Time, time.Time) {
	ddlFrom, ddlTo := bounds(ddl, now)
	dmlFrom, dmlTo := bounds(dml, now)

	from := ddlFrom
	if dmlFrom.Before(from) {
		from = dmlFrom
	}

	to := ddlTo
	if dmlTo.After(to) {
		to = dmlTo
	}

	return from, to
}

func bounds(entries []Entry, now time.Time) (time.Time, time.Time) {
	if len(entries) == 0 {
		return now, now
	}

	return orNow(entries[0].At, now), orNow(entries[len(entries)-1].At, now)
}

func orNow(t, now time.Time) time.Time {
	if t.IsZero() {
		return now
	}

	return t
}

// Filter keeps entries written within [since, until]. A zero bound is open.
func Filter(entries []Entry, since, until time.Time) []Entry {
	var out []Entry

	for _, e := range entries {
		if !since.IsZero() && e.At.Before(since) {
			continue
		}

		if !until.IsZero() && e.At.After(until) {
			continue
		}

		out = append(out, e)
	}

	return out
}
