package tracker

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/aqasim81/pgtrack/internal/classifier"
	"github.com/aqasim81/pgtrack/internal/store"
	"github.com/aqasim81/pgtrack/internal/tracklog"
)

// emptyLog is the initial content of a data log.
const emptyLog = "\n"

type exported struct {
	definition string
	snapshot   []byte
}

// CreateVersion starts tracking version of a table or view. The schema log
// is seeded with the exported definition, preceded by DROP ... IF EXISTS
// when the policy asks for it. The previous version is deactivated
// afterwards; the two writes are not atomic (see Repair).
func (c *Controller) CreateVersion(
	ctx context.Context, s *Session, db, table string, version int, statements []string, isView bool,
) (bool, error) {
	vs, err := c.storeFor(ctx, s)
	if err != nil || vs == nil {
		return false, err
	}

	if len(statements) == 0 {
		statements = c.policy.DefaultStatements
	}

	exp, err := withTrackingSuspended(ctx, s, func(ctx context.Context) (exported, error) {
		def, defErr := c.exporter.TableDefinition(ctx, db, table)
		if defErr != nil {
			return exported{}, defErr
		}

		snap, snapErr := c.exporter.Snapshot(ctx, db, table)

		return exported{definition: def, snapshot: snap}, snapErr
	})
	if err != nil {
		return false, fmt.Errorf("%w: %s.%s: %w", ErrExportFailed, db, table, err)
	}

	now := c.now()
	header := tracklog.Header(now, s.Username)

	var schema strings.Builder

	switch {
	case isView && c.policy.AddDropView:
		schema.WriteString(header + "DROP VIEW IF EXISTS " + pgx.Identifier{table}.Sanitize() + ";\n")
	case !isView && c.policy.AddDropTable:
		schema.WriteString(header + "DROP TABLE IF EXISTS " + pgx.Identifier{table}.Sanitize() + ";\n")
	}

	schema.WriteString(header + exp.definition)

	err = vs.Insert(ctx, store.Record{
		Database:       db,
		Table:          table,
		Version:        version,
		Active:         true,
		CreatedAt:      now,
		UpdatedAt:      now,
		SchemaSnapshot: exp.snapshot,
		SchemaLog:      schema.String(),
		DataLog:        emptyLog,
		Statements:     statements,
	})
	if err != nil {
		return false, err
	}

	s.forget(db, table)

	c.logger.Info("tracking version created", "session", s.ID, "db", db, "table", table, "version", version)

	return c.setActive(ctx, vs, db, table, version-1, false)
}

// CreateDatabaseVersion starts tracking version of a database. The schema
// log is seeded with query, the statement that triggered it.
func (c *Controller) CreateDatabaseVersion(
	ctx context.Context, s *Session, db string, version int, query string, statements []string,
) (bool, error) {
	vs, err := c.storeFor(ctx, s)
	if err != nil || vs == nil {
		return false, err
	}

	if len(statements) == 0 {
		statements = classifier.DatabaseIdentifiers()
	}

	now := c.now()
	header := tracklog.Header(now, s.Username)

	var schema strings.Builder

	if c.policy.AddDropDatabase {
		schema.WriteString(header + "DROP DATABASE IF EXISTS " + pgx.Identifier{db}.Sanitize() + ";\n")
	}

	schema.WriteString(header + query)

	err = vs.Insert(ctx, store.Record{
		Database:   db,
		Version:    version,
		Active:     true,
		CreatedAt:  now,
		UpdatedAt:  now,
		SchemaLog:  schema.String(),
		DataLog:    emptyLog,
		Statements: statements,
	})
	if err != nil {
		return false, err
	}

	s.forget(db, "")

	c.logger.Info("database tracking version created", "session", s.ID, "db", db, "version", version)

	return c.setActive(ctx, vs, db, "", version-1, false)
}

// DeleteTracking removes every version of a table, or only version when it
// is greater than zero.
func (c *Controller) DeleteTracking(ctx context.Context, db, table string, version int) (bool, error) {
	vs, err := c.storeFor(ctx, nil)
	if err != nil || vs == nil {
		return false, err
	}

	if err := vs.Delete(ctx, db, table, version); err != nil {
		return false, err
	}

	return true, nil
}

// ActivateTracking activates exactly one version.
func (c *Controller) ActivateTracking(ctx context.Context, db, table string, version int) (bool, error) {
	vs, err := c.storeFor(ctx, nil)
	if err != nil || vs == nil {
		return false, err
	}

	return c.setActive(ctx, vs, db, table, version, true)
}

// DeactivateTracking deactivates exactly one version.
func (c *Controller) DeactivateTracking(ctx context.Context, db, table string, version int) (bool, error) {
	vs, err := c.storeFor(ctx, nil)
	if err != nil || vs == nil {
		return false, err
	}

	return c.setActive(ctx, vs, db, table, version, false)
}

func (c *Controller) setActive(ctx context.Context, vs VersionStore, db, table string, version int, active bool) (bool, error) {
	if err := vs.SetActive(ctx, db, table, version, active); err != nil {
		return false, err
	}

	return true, nil
}

// GetVersion returns the highest version of a table, restricted to versions
// tracking identifier when it is non-empty. The active flag is not
// considered. It returns -1 when tracking is not configured or no version
// matches.
func (c *Controller) GetVersion(ctx context.Context, db, table, identifier string) (int, error) {
	return c.version(ctx, nil, db, table, identifier)
}

func (c *Controller) version(ctx context.Context, s *Session, db, table, identifier string) (int, error) {
	vs, err := c.storeFor(ctx, s)
	if err != nil {
		return -1, err
	}

	if vs == nil {
		return -1, nil
	}

	return vs.MaxVersion(ctx, db, table, identifier)
}

// ListVersions returns every version of a table without its logs.
func (c *Controller) ListVersions(ctx context.Context, db, table string) ([]store.Record, error) {
	vs, err := c.storeFor(ctx, nil)
	if err != nil || vs == nil {
		return nil, err
	}

	return vs.List(ctx, db, table)
}

// Repair leaves only the newest active version active for every table with
// more than one, and returns how many versions were deactivated.
func (c *Controller) Repair(ctx context.Context) (int64, error) {
	vs, err := c.storeFor(ctx, nil)
	if err != nil || vs == nil {
		return 0, err
	}

	n, err := vs.DeactivateStale(ctx)
	if err != nil {
		return 0, err
	}

	if n > 0 {
		c.logger.Info("deactivated stale tracking versions", "count", n)
	}

	return n, nil
}
