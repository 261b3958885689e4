package tracker

import (
	"context"

	"github.com/google/uuid"
)

type tableKey struct {
	db    string
	table string
}

// Session carries the per-connection tracking state: the current database,
// the acting user, the enabled flag and the is-tracked cache. A Session
// belongs to one goroutine.
type Session struct {
	ID              uuid.UUID
	CurrentDatabase string
	Username        string

	enabled bool
	tracked map[tableKey]bool
}

// NewSession creates a disabled session connected to db as user.
func NewSession(db, user string) *Session {
	return &Session{
		ID:              uuid.New(),
		CurrentDatabase: db,
		Username:        user,
		tracked:         make(map[tableKey]bool),
	}
}

// Enabled reports the session's tracking flag.
func (s *Session) Enabled() bool {
	return s.enabled
}

func (s *Session) forget(db, table string) {
	delete(s.tracked, tableKey{db: db, table: table})
}

func (s *Session) resetCache() {
	s.tracked = make(map[tableKey]bool)
}

type suspendedKey struct{}

// withTrackingSuspended runs fn with the session's tracking flag cleared and
// with a context that marks tracking as suspended. The flag is restored on
// every return path, including panics.
func withTrackingSuspended[T any](ctx context.Context, s *Session, fn func(ctx context.Context) (T, error)) (T, error) {
	if s != nil {
		prev := s.enabled
		s.enabled = false

		defer func() { s.enabled = prev }()
	}

	return fn(context.WithValue(ctx, suspendedKey{}, true))
}

func suspended(ctx context.Context) bool {
	v, _ := ctx.Value(suspendedKey{}).(bool)
	return v
}
