package tracker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aqasim81/pgtrack/internal/classifier"
	"github.com/aqasim81/pgtrack/internal/store"
	"github.com/aqasim81/pgtrack/internal/tracklog"
)

// LogData is appended to a log by ChangeTrackingData: either preformatted
// LogText or LogLines rendered one header per line.
type LogData interface {
	render(now time.Time) string
}

// LogText is log text that already carries its headers.
type LogText string

func (t LogText) render(time.Time) string {
	return string(t)
}

// LogLine is one statement executed by a user.
type LogLine struct {
	Username  string
	Statement string
}

// LogLines are rendered with a fresh header each.
type LogLines []LogLine

func (l LogLines) render(now time.Time) string {
	var b strings.Builder

	for _, line := range l {
		b.WriteString(tracklog.Format(now, line.Username, line.Statement))
	}

	return b.String()
}

// TrackedData is the decoded content of one tracking version. Found is false
// when the version does not exist; every other field is then zero.
type TrackedData struct {
	Found          bool
	Database       string
	Table          string
	Version        int
	Active         bool
	DateFrom       time.Time
	DateTo         time.Time
	SchemaLog      []tracklog.Entry
	DataLog        []tracklog.Entry
	Statements     []string
	SchemaSnapshot []byte
}

// ChangeTrackingData appends data to the schema log (DDL) or the data log
// (DML) of one version.
func (c *Controller) ChangeTrackingData(
	ctx context.Context, db, table string, version int, kind classifier.Kind, data LogData,
) (bool, error) {
	var column store.Column

	switch kind {
	case classifier.DDL:
		column = store.SchemaLog
	case classifier.DML:
		column = store.DataLog
	default:
		return false, fmt.Errorf("%w: %q", ErrInvalidKind, kind)
	}

	vs, err := c.storeFor(ctx, nil)
	if err != nil || vs == nil {
		return false, err
	}

	now := c.now()

	err = vs.Append(ctx, store.AppendParams{
		Database: db,
		Table:    table,
		Version:  version,
		Column:   column,
		Text:     data.render(now),
		At:       now,
	})
	if err != nil {
		return false, err
	}

	return true, nil
}

// GetTrackedData decodes both logs of a version. DateFrom is the earlier of
// the two logs' first entries and DateTo the later of their last entries; an
// empty log contributes the current time.
func (c *Controller) GetTrackedData(ctx context.Context, db, table string, version int) (TrackedData, error) {
	vs, err := c.storeFor(ctx, nil)
	if err != nil || vs == nil {
		return TrackedData{}, err
	}

	r, err := vs.Get(ctx, db, table, version)
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return TrackedData{}, nil
		}

		return TrackedData{}, err
	}

	ddl := tracklog.Parse(r.SchemaLog)
	dml := tracklog.Parse(r.DataLog)
	from, to := tracklog.Range(ddl, dml, c.now())

	return TrackedData{
		Found:          true,
		Database:       r.Database,
		Table:          r.Table,
		Version:        r.Version,
		Active:         r.Active,
		DateFrom:       from,
		DateTo:         to,
		SchemaLog:      ddl,
		DataLog:        dml,
		Statements:     r.Statements,
		SchemaSnapshot: r.SchemaSnapshot,
	}, nil
}
