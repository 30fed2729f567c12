// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package runstore

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/bureau-foundation/umlaut/lib/anomaly"
	"github.com/bureau-foundation/umlaut/lib/clock"
	"github.com/bureau-foundation/umlaut/lib/schema/telemetry"
	"github.com/bureau-foundation/umlaut/lib/sqlitepool"
)

const sqliteSchema = `
	CREATE TABLE IF NOT EXISTS sessions (
		id          TEXT PRIMARY KEY,
		name        TEXT NOT NULL,
		created_at  INTEGER NOT NULL,
		modified_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_sessions_name ON sessions(name);
	CREATE INDEX IF NOT EXISTS idx_sessions_modified ON sessions(modified_at);

	CREATE TABLE IF NOT EXISTS plot_points (
		seq        INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL REFERENCES sessions(id),
		plot       TEXT NOT NULL,
		series     TEXT NOT NULL,
		epoch      INTEGER NOT NULL,
		value      REAL NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_plot_points_session ON plot_points(session_id, seq);

	CREATE TABLE IF NOT EXISTS anomalies (
		session_id TEXT NOT NULL REFERENCES sessions(id),
		kind       TEXT NOT NULL,
		is_static  INTEGER NOT NULL DEFAULT 0,
		remarks    TEXT NOT NULL DEFAULT '',
		reference  TEXT,
		PRIMARY KEY (session_id, kind)
	);

	CREATE TABLE IF NOT EXISTS anomaly_epochs (
		session_id TEXT NOT NULL,
		kind       TEXT NOT NULL,
		epoch      INTEGER NOT NULL,
		PRIMARY KEY (session_id, kind, epoch),
		FOREIGN KEY (session_id, kind) REFERENCES anomalies(session_id, kind)
	);
`

// SQLiteConfig configures OpenSQLite.
type SQLiteConfig struct {
	// Path is the database file. Its directory must exist.
	Path string

	// PoolSize defaults to 4.
	PoolSize int

	// Clock stamps session creation and modification. Required.
	Clock clock.Clock

	// Logger is required.
	Logger *slog.Logger
}

// SQLiteStore is the default Store.
type SQLiteStore struct {
	pool   *sqlitepool.Pool
	clock  clock.Clock
	logger *slog.Logger
}

var _ Store = (*SQLiteStore)(nil)

// OpenSQLite opens (creating if needed) the database at config.Path.
func OpenSQLite(config SQLiteConfig) (*SQLiteStore, error) {
	if config.Clock == nil {
		return nil, fmt.Errorf("runstore: Clock is required")
	}
	if config.Logger == nil {
		return nil, fmt.Errorf("runstore: Logger is required")
	}
	size := config.PoolSize
	if size <= 0 {
		size = 4
	}

	pool, err := sqlitepool.Open(sqlitepool.Config{
		Path:     config.Path,
		PoolSize: size,
		Schema:   sqliteSchema,
		Logger:   config.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("runstore: %w", err)
	}
	return &SQLiteStore{pool: pool, clock: config.Clock, logger: config.Logger}, nil
}

// Close closes the connection pool.
func (s *SQLiteStore) Close() error {
	return s.pool.Close()
}

func (s *SQLiteStore) now() int64 {
	return s.clock.Now().UnixNano()
}

// write runs fn in an IMMEDIATE transaction.
func (s *SQLiteStore) write(ctx context.Context, fn func(conn *sqlite.Conn) error) (err error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("runstore: %w", err)
	}
	defer s.pool.Put(conn)

	endTransaction, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return fmt.Errorf("runstore: begin transaction: %w", err)
	}
	defer endTransaction(&err)
	return fn(conn)
}

func (s *SQLiteStore) read(ctx context.Context, fn func(conn *sqlite.Conn) error) error {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("runstore: %w", err)
	}
	defer s.pool.Put(conn)
	return fn(conn)
}

// ResolveSession implements Store.
func (s *SQLiteStore) ResolveSession(ctx context.Context, name string) (string, error) {
	if err := validateName(name); err != nil {
		return "", err
	}
	var id string
	err := s.write(ctx, func(conn *sqlite.Conn) error {
		now := s.now()
		err := sqlitex.Execute(conn,
			`SELECT id FROM sessions WHERE name = ? ORDER BY created_at, id LIMIT 1`,
			&sqlitex.ExecOptions{
				Args: []any{name},
				ResultFunc: func(stmt *sqlite.Stmt) error {
					id = stmt.ColumnText(0)
					return nil
				},
			})
		if err != nil {
			return fmt.Errorf("runstore: looking up session %q: %w", name, err)
		}
		if id != "" {
			return touchSession(conn, id, now)
		}
		id = NewID()
		return insertSession(conn, id, name, now)
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

// ResolveUniqueSession implements Store.
func (s *SQLiteStore) ResolveUniqueSession(ctx context.Context, name string) (string, error) {
	if err := validateName(name); err != nil {
		return "", err
	}
	var id string
	err := s.write(ctx, func(conn *sqlite.Conn) error {
		var existing []string
		err := sqlitex.Execute(conn,
			`SELECT name FROM sessions WHERE instr(name, ?) = 1`,
			&sqlitex.ExecOptions{
				Args: []any{name},
				ResultFunc: func(stmt *sqlite.Stmt) error {
					existing = append(existing, stmt.ColumnText(0))
					return nil
				},
			})
		if err != nil {
			return fmt.Errorf("runstore: scanning names for %q: %w", name, err)
		}
		unique := UniqueName(name, existing)
		if err := validateName(unique); err != nil {
			return err
		}
		id = NewID()
		return insertSession(conn, id, unique, s.now())
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

func insertSession(conn *sqlite.Conn, id, name string, now int64) error {
	err := sqlitex.Execute(conn,
		`INSERT INTO sessions (id, name, created_at, modified_at) VALUES (?, ?, ?, ?)`,
		&sqlitex.ExecOptions{Args: []any{id, name, now, now}})
	if err != nil {
		return fmt.Errorf("runstore: creating session %q: %w", name, err)
	}
	return nil
}

func touchSession(conn *sqlite.Conn, id string, now int64) error {
	err := sqlitex.Execute(conn,
		`UPDATE sessions SET modified_at = max(modified_at, ?) WHERE id = ?`,
		&sqlitex.ExecOptions{Args: []any{now, id}})
	if err != nil {
		return fmt.Errorf("runstore: touching session %s: %w", id, err)
	}
	return nil
}

// requireSession returns ErrSessionNotFound unless id exists.
func requireSession(conn *sqlite.Conn, id string) error {
	found := false
	err := sqlitex.Execute(conn, `SELECT 1 FROM sessions WHERE id = ?`, &sqlitex.ExecOptions{
		Args: []any{id},
		ResultFunc: func(*sqlite.Stmt) error {
			found = true
			return nil
		},
	})
	if err != nil {
		return fmt.Errorf("runstore: looking up session %s: %w", id, err)
	}
	if !found {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return nil
}

// Session implements Store.
func (s *SQLiteStore) Session(ctx context.Context, id string) (telemetry.Session, error) {
	canonical, err := ParseID(id)
	if err != nil {
		return telemetry.Session{}, err
	}
	var sessions []telemetry.Session
	err = s.read(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn,
			`SELECT id, name, created_at, modified_at FROM sessions WHERE id = ?`,
			&sqlitex.ExecOptions{
				Args:       []any{canonical},
				ResultFunc: collectSessions(&sessions),
			})
	})
	if err != nil {
		return telemetry.Session{}, fmt.Errorf("runstore: reading session %s: %w", canonical, err)
	}
	if len(sessions) == 0 {
		return telemetry.Session{}, fmt.Errorf("%w: %s", ErrSessionNotFound, canonical)
	}
	return sessions[0], nil
}

// Sessions implements Store.
func (s *SQLiteStore) Sessions(ctx context.Context) ([]telemetry.Session, error) {
	sessions := []telemetry.Session{}
	err := s.read(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn,
			`SELECT id, name, created_at, modified_at FROM sessions ORDER BY modified_at DESC, id`,
			&sqlitex.ExecOptions{ResultFunc: collectSessions(&sessions)})
	})
	if err != nil {
		return nil, fmt.Errorf("runstore: listing sessions: %w", err)
	}
	return sessions, nil
}

func collectSessions(into *[]telemetry.Session) func(*sqlite.Stmt) error {
	return func(stmt *sqlite.Stmt) error {
		*into = append(*into, telemetry.Session{
			ID:         stmt.ColumnText(0),
			Name:       stmt.ColumnText(1),
			CreatedAt:  time.Unix(0, stmt.ColumnInt64(2)).UTC(),
			ModifiedAt: time.Unix(0, stmt.ColumnInt64(3)).UTC(),
		})
		return nil
	}
}

// AppendPoints implements Store.
func (s *SQLiteStore) AppendPoints(ctx context.Context, id string, update telemetry.PlotUpdate) error {
	canonical, err := ParseID(id)
	if err != nil {
		return err
	}
	return s.write(ctx, func(conn *sqlite.Conn) error {
		if err := requireSession(conn, canonical); err != nil {
			return err
		}
		for _, entry := range update.Points() {
			err := sqlitex.Execute(conn,
				`INSERT INTO plot_points (session_id, plot, series, epoch, value) VALUES (?, ?, ?, ?, ?)`,
				&sqlitex.ExecOptions{Args: []any{
					canonical, entry.Plot, entry.Series, entry.Point.Epoch, entry.Point.Value,
				}})
			if err != nil {
				return fmt.Errorf("runstore: appending %s.%s: %w", entry.Plot, entry.Series, err)
			}
		}
		return touchSession(conn, canonical, s.now())
	})
}

// Plots implements Store.
func (s *SQLiteStore) Plots(ctx context.Context, id string) (telemetry.Plots, error) {
	canonical, err := ParseID(id)
	if err != nil {
		return nil, err
	}
	plots := telemetry.Plots{}
	err = s.read(ctx, func(conn *sqlite.Conn) error {
		if err := requireSession(conn, canonical); err != nil {
			return err
		}
		return sqlitex.Execute(conn,
			`SELECT plot, series, epoch, value FROM plot_points WHERE session_id = ? ORDER BY seq`,
			&sqlitex.ExecOptions{
				Args: []any{canonical},
				ResultFunc: func(stmt *sqlite.Stmt) error {
					plots.Add(stmt.ColumnText(0), stmt.ColumnText(1), telemetry.Point{
						Epoch: int(stmt.ColumnInt64(2)),
						Value: stmt.ColumnFloat(3),
					})
					return nil
				},
			})
	})
	if err != nil {
		return nil, err
	}
	return plots, nil
}

// MergeAnomalies implements Store.
func (s *SQLiteStore) MergeAnomalies(ctx context.Context, id string, anomalies []anomaly.Anomaly) error {
	canonical, err := ParseID(id)
	if err != nil {
		return err
	}
	return s.write(ctx, func(conn *sqlite.Conn) error {
		if err := requireSession(conn, canonical); err != nil {
			return err
		}
		for _, item := range anomalies {
			if err := mergeAnomaly(conn, canonical, item); err != nil {
				return err
			}
		}
		return touchSession(conn, canonical, s.now())
	})
}

func mergeAnomaly(conn *sqlite.Conn, sessionID string, item anomaly.Anomaly) error {
	var reference any
	if item.Reference != nil {
		data, err := json.Marshal(item.Reference)
		if err != nil {
			return fmt.Errorf("runstore: encoding reference: %w", err)
		}
		reference = string(data)
	}
	static := 0
	if item.IsStatic() {
		static = 1
	}

	err := sqlitex.Execute(conn, `
		INSERT INTO anomalies (session_id, kind, is_static, remarks, reference)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (session_id, kind) DO UPDATE SET
			is_static = max(is_static, excluded.is_static),
			remarks   = CASE WHEN excluded.remarks != '' THEN excluded.remarks ELSE remarks END,
			reference = coalesce(excluded.reference, reference)`,
		&sqlitex.ExecOptions{Args: []any{sessionID, string(item.Kind), static, item.Remarks, reference}})
	if err != nil {
		return fmt.Errorf("runstore: merging %s: %w", item.Kind, err)
	}

	for _, epoch := range item.Epochs {
		err := sqlitex.Execute(conn,
			`INSERT OR IGNORE INTO anomaly_epochs (session_id, kind, epoch) VALUES (?, ?, ?)`,
			&sqlitex.ExecOptions{Args: []any{sessionID, string(item.Kind), epoch}})
		if err != nil {
			return fmt.Errorf("runstore: adding epoch %d to %s: %w", epoch, item.Kind, err)
		}
	}
	return nil
}

// Anomalies implements Store.
func (s *SQLiteStore) Anomalies(ctx context.Context, id string) ([]anomaly.Anomaly, error) {
	canonical, err := ParseID(id)
	if err != nil {
		return nil, err
	}
	result := []anomaly.Anomaly{}
	err = s.read(ctx, func(conn *sqlite.Conn) error {
		if err := requireSession(conn, canonical); err != nil {
			return err
		}
		index := make(map[anomaly.Kind]int)
		err := sqlitex.Execute(conn,
			`SELECT kind, is_static, remarks, reference FROM anomalies WHERE session_id = ? ORDER BY kind`,
			&sqlitex.ExecOptions{
				Args: []any{canonical},
				ResultFunc: func(stmt *sqlite.Stmt) error {
					item := anomaly.Anomaly{
						Kind:    anomaly.Kind(stmt.ColumnText(0)),
						Remarks: stmt.ColumnText(2),
					}
					if stmt.ColumnInt(1) == 0 {
						item.Epochs = anomaly.Epochs()
					}
					if stmt.ColumnType(3) != sqlite.TypeNull {
						var location anomaly.Location
						if err := json.Unmarshal([]byte(stmt.ColumnText(3)), &location); err != nil {
							return fmt.Errorf("decoding reference for %s: %w", item.Kind, err)
						}
						item.Reference = &location
					}
					index[item.Kind] = len(result)
					result = append(result, item)
					return nil
				},
			})
		if err != nil {
			return fmt.Errorf("runstore: reading anomalies: %w", err)
		}
		return sqlitex.Execute(conn,
			`SELECT kind, epoch FROM anomaly_epochs WHERE session_id = ? ORDER BY kind, epoch`,
			&sqlitex.ExecOptions{
				Args: []any{canonical},
				ResultFunc: func(stmt *sqlite.Stmt) error {
					position, ok := index[anomaly.Kind(stmt.ColumnText(0))]
					if !ok || result[position].IsStatic() {
						return nil
					}
					result[position].Epochs = append(result[position].Epochs, stmt.ColumnInt(1))
					return nil
				},
			})
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}
