package booking

import (
	"context"
	"fmt"
	"time"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"
)

const schema = `
CREATE TABLE IF NOT EXISTS booking (
	id           INTEGER PRIMARY KEY,
	telescope_id TEXT NOT NULL,
	user_id      TEXT NOT NULL,
	start_ts     INTEGER NOT NULL,
	end_ts       INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS booking_telescope_start
	ON booking (telescope_id, start_ts);
`

// Store persists bookings in SQLite. Timestamps are stored as Unix
// seconds in UTC. Store is safe for concurrent use; each call takes a
// pooled connection for its duration.
type Store struct {
	pool *sqlitex.Pool
}

// OpenStore opens (and creates, if needed) the booking database at
// path. Use ":memory:" with poolSize 1 in tests.
func OpenStore(path string, poolSize int) (*Store, error) {
	if poolSize <= 0 {
		poolSize = 4
	}
	pool, err := sqlitex.NewPool(path, sqlitex.PoolOptions{
		PoolSize: poolSize,
		PrepareConn: func(conn *sqlite.Conn) error {
			return sqlitex.ExecuteScript(conn, schema, nil)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("opening booking store %s: %w", path, err)
	}
	return &Store{pool: pool}, nil
}

// Close releases the connection pool.
func (s *Store) Close() error {
	return s.pool.Close()
}

// Insert stores a booking and returns its assigned id.
func (s *Store) Insert(ctx context.Context, b Booking) (int64, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return 0, err
	}
	defer s.pool.Put(conn)

	endTx, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return 0, err
	}
	defer endTx(&err)

	err = sqlitex.Execute(conn,
		`INSERT INTO booking (telescope_id, user_id, start_ts, end_ts) VALUES (?, ?, ?, ?)`,
		&sqlitex.ExecOptions{
			Args: []any{b.TelescopeID, b.UserID, b.Start.UTC().Unix(), b.End.UTC().Unix()},
		})
	if err != nil {
		return 0, err
	}
	return conn.LastInsertRowID(), nil
}

// Get fetches one booking by id, or ErrNotFound.
func (s *Store) Get(ctx context.Context, id int64) (Booking, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return Booking{}, err
	}
	defer s.pool.Put(conn)

	var b Booking
	found := false
	err = sqlitex.Execute(conn,
		`SELECT id, telescope_id, user_id, start_ts, end_ts FROM booking WHERE id = ?`,
		&sqlitex.ExecOptions{
			Args: []any{id},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				b = scanBooking(stmt)
				found = true
				return nil
			},
		})
	if err != nil {
		return Booking{}, err
	}
	if !found {
		return Booking{}, fmt.Errorf("%w: id %d", ErrNotFound, id)
	}
	return b, nil
}

// Delete removes one booking by id, or ErrNotFound.
func (s *Store) Delete(ctx context.Context, id int64) error {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return err
	}
	defer s.pool.Put(conn)

	if err := sqlitex.Execute(conn,
		`DELETE FROM booking WHERE id = ?`,
		&sqlitex.ExecOptions{Args: []any{id}}); err != nil {
		return err
	}
	if conn.Changes() == 0 {
		return fmt.Errorf("%w: id %d", ErrNotFound, id)
	}
	return nil
}

// ListTelescope returns every booking for one telescope, ordered by
// start time.
func (s *Store) ListTelescope(ctx context.Context, telescopeID string) ([]Booking, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, err
	}
	defer s.pool.Put(conn)

	var out []Booking
	err = sqlitex.Execute(conn,
		`SELECT id, telescope_id, user_id, start_ts, end_ts FROM booking
		 WHERE telescope_id = ? ORDER BY start_ts`,
		&sqlitex.ExecOptions{
			Args: []any{telescopeID},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				out = append(out, scanBooking(stmt))
				return nil
			},
		})
	return out, err
}

// ListRange returns every booking intersecting the half-open interval
// [from, to), across all telescopes.
func (s *Store) ListRange(ctx context.Context, from, to time.Time) ([]Booking, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, err
	}
	defer s.pool.Put(conn)

	var out []Booking
	err = sqlitex.Execute(conn,
		`SELECT id, telescope_id, user_id, start_ts, end_ts FROM booking
		 WHERE start_ts < ? AND end_ts > ? ORDER BY start_ts`,
		&sqlitex.ExecOptions{
			Args: []any{to.UTC().Unix(), from.UTC().Unix()},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				out = append(out, scanBooking(stmt))
				return nil
			},
		})
	return out, err
}

// DeleteUserBookings removes every booking owned by userID and returns
// how many were deleted.
func (s *Store) DeleteUserBookings(ctx context.Context, userID string) (int64, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return 0, err
	}
	defer s.pool.Put(conn)

	if err := sqlitex.Execute(conn,
		`DELETE FROM booking WHERE user_id = ?`,
		&sqlitex.ExecOptions{Args: []any{userID}}); err != nil {
		return 0, err
	}
	return int64(conn.Changes()), nil
}

func scanBooking(stmt *sqlite.Stmt) Booking {
	return Booking{
		ID:          stmt.ColumnInt64(0),
		TelescopeID: stmt.ColumnText(1),
		UserID:      stmt.ColumnText(2),
		Start:       time.Unix(stmt.ColumnInt64(3), 0).UTC(),
		End:         time.Unix(stmt.ColumnInt64(4), 0).UTC(),
	}
}
