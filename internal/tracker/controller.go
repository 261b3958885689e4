// Package tracker records the structural and data changes made to tracked
// tables. Every executed statement is offered to HandleQuery, which classifies
// it and appends it, with a timestamped header, to the log of the table's
// current tracking version.
package tracker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aqasim81/pgtrack/internal/classifier"
	"github.com/aqasim81/pgtrack/internal/metadata"
	"github.com/aqasim81/pgtrack/internal/store"
)

// VersionStore persists tracking records. *store.Store satisfies it.
type VersionStore interface {
	Insert(ctx context.Context, r store.Record) error
	SetActive(ctx context.Context, db, table string, version int, active bool) error
	Append(ctx context.Context, p store.AppendParams) error
	Delete(ctx context.Context, db, table string, version int) error
	MaxVersion(ctx context.Context, db, table, identifier string) (int, error)
	LatestActive(ctx context.Context, db, table string) (bool, error)
	Get(ctx context.Context, db, table string, version int) (*store.Record, error)
	List(ctx context.Context, db, table string) ([]store.Record, error)
	DeactivateStale(ctx context.Context) (int64, error)
}

// StoreOpener returns the store for a resolved tracking feature.
type StoreOpener func(f metadata.Feature) VersionStore

// FeatureResolver reports where tracking records live, or nil when tracking
// is not configured.
type FeatureResolver interface {
	Resolve(ctx context.Context) (*metadata.Feature, error)
}

// Exporter produces the definition and structural snapshot of a relation.
type Exporter interface {
	TableDefinition(ctx context.Context, db, table string) (string, error)
	Snapshot(ctx context.Context, db, table string) ([]byte, error)
}

// Policy controls version creation.
type Policy struct {
	// AutoCreate creates version 1 when an untracked table, view or
	// database is created.
	AutoCreate      bool
	AddDropTable    bool
	AddDropView     bool
	AddDropDatabase bool
	// DefaultStatements is the statement set of a version created without
	// an explicit one.
	DefaultStatements []string
}

// DefaultPolicy tracks every statement and seeds versions with DROP ... IF
// EXISTS, without auto-creation.
func DefaultPolicy() Policy {
	return Policy{
		AddDropTable:      true,
		AddDropView:       true,
		AddDropDatabase:   true,
		DefaultStatements: classifier.Identifiers(),
	}
}

// Controller implements the tracking operations. It holds no per-session
// state and may be shared.
type Controller struct {
	resolver FeatureResolver
	open     StoreOpener
	exporter Exporter
	policy   Policy
	now      func() time.Time
	logger   *slog.Logger
}

// Option configures a Controller.
type Option func(*Controller)

// WithPolicy sets the version creation policy.
func WithPolicy(p Policy) Option {
	return func(c *Controller) { c.policy = p }
}

// WithClock sets the time source for log headers and record dates.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) { c.logger = l }
}

// New creates a Controller.
func New(resolver FeatureResolver, open StoreOpener, exporter Exporter, opts ...Option) *Controller {
	c := &Controller{
		resolver: resolver,
		open:     open,
		exporter: exporter,
		policy:   DefaultPolicy(),
		now:      time.Now,
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.logger == nil {
		c.logger = slog.Default()
	}

	return c
}

// Enable turns tracking on for s. It must be called only once the resolver,
// store and exporter are usable.
func (c *Controller) Enable(s *Session) {
	s.enabled = true
	s.resetCache()
}

// Disable turns tracking off for s.
func (c *Controller) Disable(s *Session) {
	s.enabled = false
	s.resetCache()
}

// IsActive reports whether s tracks statements and a tracking table is
// configured.
func (c *Controller) IsActive(ctx context.Context, s *Session) bool {
	if !s.enabled {
		return false
	}

	f, err := c.feature(ctx, s)
	if err != nil {
		c.logger.Warn("resolving tracking feature", "session", s.ID, "error", err)
		return false
	}

	return f != nil
}

// IsTracked reports whether the newest version of a table is active. The
// answer is cached in s until tracking is toggled or a version is created.
func (c *Controller) IsTracked(ctx context.Context, s *Session, db, table string) bool {
	if !s.enabled {
		return false
	}

	key := tableKey{db: db, table: table}
	if v, ok := s.tracked[key]; ok {
		return v
	}

	f, err := c.feature(ctx, s)
	if err != nil {
		c.logger.Warn("resolving tracking feature", "session", s.ID, "error", err)
		return false
	}

	if f == nil {
		return false
	}

	active, err := c.open(*f).LatestActive(ctx, db, table)
	if err != nil {
		c.logger.Warn("checking tracking status", "session", s.ID, "db", db, "table", table, "error", err)
		return false
	}

	s.tracked[key] = active

	return active
}

// feature resolves the tracking feature with tracking suspended, so the
// resolver's own queries are never offered back to the tracker.
func (c *Controller) feature(ctx context.Context, s *Session) (*metadata.Feature, error) {
	f, err := withTrackingSuspended(ctx, s, c.resolver.Resolve)
	if err != nil {
		return nil, fmt.Errorf("resolving tracking feature: %w", err)
	}

	return f, nil
}

// storeFor returns the store of the configured feature, or nil.
func (c *Controller) storeFor(ctx context.Context, s *Session) (VersionStore, error) {
	f, err := c.feature(ctx, s)
	if err != nil || f == nil {
		return nil, err
	}

	return c.open(*f), nil
}
