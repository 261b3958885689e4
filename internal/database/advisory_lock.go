package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// RepairLockID is the advisory lock held while repairing tracking versions.
// It is derived from the bytes "pgtrack" so it does not collide with other
// tools sharing the server.
const RepairLockID int64 = 0x7067747261636b

// LockHandle pins the pooled connection that owns a session-level advisory
// lock. The lock lives as long as that connection is held.
type LockHandle struct {
	conn *pgxpool.Conn
	id   int64
}

// TryAcquireLock takes advisory lock id without waiting. It fails with
// ErrLockNotAcquired when another session holds it.
func TryAcquireLock(ctx context.Context, pool *pgxpool.Pool, id int64) (*LockHandle, error) {
	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquiring connection for lock %d: %w", id, err)
	}

	var ok bool

	if err := conn.QueryRow(ctx, "SELECT pg_try_advisory_lock($1)", id).Scan(&ok); err != nil {
		conn.Release()

		return nil, fmt.Errorf("trying lock %d: %w", id, err)
	}

	if !ok {
		conn.Release()

		return nil, fmt.Errorf("%w: lock %d", ErrLockNotAcquired, id)
	}

	return &LockHandle{conn: conn, id: id}, nil
}

// Release unlocks and hands the connection back. Only the first call does
// anything.
func (h *LockHandle) Release(ctx context.Context) error {
	if h == nil || h.conn == nil {
		return nil
	}

	conn := h.conn
	h.conn = nil

	defer conn.Release()

	if _, err := conn.Exec(ctx, "SELECT pg_advisory_unlock($1)", h.id); err != nil {
		return fmt.Errorf("unlocking %d: %w", h.id, err)
	}

	return nil
}
