package tracker

import (
	"context"
	"strings"

	"github.com/aqasim81/pgtrack/internal/classifier"
	"github.com/aqasim81/pgtrack/internal/gateway"
	"github.com/aqasim81/pgtrack/internal/parser"
	"github.com/aqasim81/pgtrack/internal/store"
	"github.com/aqasim81/pgtrack/internal/tracklog"
)

// Hook returns the gateway hook that offers every statement executed for s
// to HandleQuery. Statements run while tracking is suspended are ignored.
func (c *Controller) Hook(s *Session) gateway.Hook {
	return func(ctx context.Context, sql string) {
		if suspended(ctx) || !c.IsActive(ctx, s) {
			return
		}

		c.HandleQuery(ctx, s, sql)
	}
}

// HandleQuery appends query to the log of the current version of the table
// it targets. It never fails: anything it cannot classify or track is
// dropped, and storage errors are logged.
func (c *Controller) HandleQuery(ctx context.Context, s *Session, query string) {
	if strings.Contains(query, store.NoTrack) {
		return
	}

	if !strings.HasSuffix(query, ";") {
		query += ";\n"
	}

	res, err := parser.Parse(query)
	if err != nil {
		if db, ok := parser.LeadingUse(query); ok {
			s.CurrentDatabase = db
		}

		c.logger.Debug("statement not parsed", "session", s.ID, "error", err)

		return
	}

	if res.UseDatabase != "" {
		s.CurrentDatabase = res.UseDatabase
	}

	stmt, ok := classifier.Classify(res)
	if ok && stmt.Database != "" {
		s.CurrentDatabase = stmt.Database
	}

	// The database is read after USE and CREATE/ALTER/DROP DATABASE took
	// effect, so CREATE DATABASE x in a session without one is kept under x.
	db := strings.Trim(s.CurrentDatabase, "`\"")
	if db == "" || !ok {
		return
	}

	if stmt.Table == "" && stmt.Database == "" {
		return
	}

	log := c.logger.With("session", s.ID, "db", db, "table", stmt.Table, "statement", stmt.Identifier)

	version, err := c.version(ctx, s, db, stmt.Table, stmt.Identifier)
	if err != nil {
		log.Warn("resolving tracking version", "error", err)
		return
	}

	if version == -1 && c.policy.AutoCreate {
		c.autoCreate(ctx, s, db, stmt, query)
	}

	if version == -1 || !c.IsTracked(ctx, s, db, stmt.Table) {
		return
	}

	column := store.DataLog
	if stmt.Kind == classifier.DDL {
		column = store.SchemaLog
	}

	now := c.now()

	err = c.appendLog(ctx, s, store.AppendParams{
		Database:   db,
		Table:      stmt.Table,
		Version:    version,
		Column:     column,
		Text:       "\n" + tracklog.Header(now, s.Username) + stripDatabase(query, db),
		At:         now,
		Identifier: stmt.Identifier,
		RenameTo:   stmt.RenameTo,
	})
	if err != nil {
		log.Warn("appending to tracking log", "error", err)
		return
	}

	if stmt.IsRename() {
		s.forget(db, stmt.Table)
		s.forget(db, stmt.RenameTo)
	}

	log.Debug("statement tracked", "version", version)
}

func (c *Controller) autoCreate(ctx context.Context, s *Session, db string, stmt classifier.Classified, query string) {
	var err error

	switch stmt.Identifier {
	case classifier.CreateTable:
		_, err = c.CreateVersion(ctx, s, db, stmt.Table, 1, nil, false)
	case classifier.CreateView:
		_, err = c.CreateVersion(ctx, s, db, stmt.Table, 1, nil, true)
	case classifier.CreateDatabase:
		_, err = c.CreateDatabaseVersion(ctx, s, db, 1, query, nil)
	}

	if err != nil {
		c.logger.Warn("creating tracking version", "session", s.ID, "db", db, "table", stmt.Table, "error", err)
	}
}

func (c *Controller) appendLog(ctx context.Context, s *Session, p store.AppendParams) error {
	vs, err := c.storeFor(ctx, s)
	if err != nil || vs == nil {
		return err
	}

	return vs.Append(ctx, p)
}

// stripDatabase removes `db`. and "db". qualifiers, with at most one
// whitespace before the dot, so stored statements are relative to the
// database.
func stripDatabase(query, db string) string {
	pairs := make([]string, 0, 2*2*(len(qualifierGaps)+1))

	for _, quoted := range []string{"`" + db + "`", `"` + db + `"`} {
		pairs = append(pairs, quoted+".", "")

		for _, gap := range qualifierGaps {
			pairs = append(pairs, quoted+gap+".", "")
		}
	}

	return strings.NewReplacer(pairs...).Replace(query)
}

var qualifierGaps = []string{" ", "\t", "\n", "\r", "\f"} //nolint:gochecknoglobals // read-only table
