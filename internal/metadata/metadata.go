// Package metadata resolves where tracking records are stored for the
// current connection profile.
package metadata

import (
	"context"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5"
)

// Default storage location.
const (
	DefaultSchema = "pgtrack"
	DefaultTable  = "tracking"
)

// Feature names the table that holds tracking records.
type Feature struct {
	Schema string
	Table  string
}

// Identifier returns the quoted, schema-qualified table name.
func (f Feature) Identifier() string {
	return pgx.Identifier{f.Schema, f.Table}.Sanitize()
}

// Settings is the configured tracking location.
type Settings struct {
	Enabled bool
	Schema  string
	Table   string
}

// Row is the part of a pgx connection the resolver needs.
type Row interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Resolver reports the tracking feature of a connection profile. The answer
// is computed once and reused until Reset.
type Resolver struct {
	q        Row
	settings Settings

	mu       sync.Mutex
	resolved bool
	feature  *Feature
}

// NewResolver creates a Resolver checking the control connection q.
func NewResolver(q Row, s Settings) *Resolver {
	if s.Schema == "" {
		s.Schema = DefaultSchema
	}

	if s.Table == "" {
		s.Table = DefaultTable
	}

	return &Resolver{q: q, settings: s}
}

// Resolve returns the tracking feature, or nil when tracking is disabled in
// configuration or its table does not exist on the control server.
func (r *Resolver) Resolve(ctx context.Context) (*Feature, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.resolved {
		return r.feature, nil
	}

	if !r.settings.Enabled {
		r.resolved = true
		return nil, nil
	}

	f := &Feature{Schema: r.settings.Schema, Table: r.settings.Table}

	var exists bool

	err := r.q.QueryRow(ctx,
		`SELECT to_regclass($1) IS NOT NULL`,
		f.Identifier(),
	).Scan(&exists)
	if err != nil {
		return nil, fmt.Errorf("checking tracking table %s: %w", f.Identifier(), err)
	}

	r.resolved = true

	if exists {
		r.feature = f
	}

	return r.feature, nil
}

// Configured returns the configured location whether or not its table exists.
func (r *Resolver) Configured() Feature {
	return Feature{Schema: r.settings.Schema, Table: r.settings.Table}
}

// Reset drops the cached answer, e.g. after the table was created.
func (r *Resolver) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.resolved = false
	r.feature = nil
}

// Static always resolves to the same feature.
type Static struct {
	Feature *Feature
}

// Resolve returns the static feature.
func (s Static) Resolve(context.Context) (*Feature, error) {
	return s.Feature, nil
}
