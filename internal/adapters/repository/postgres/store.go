// Package postgres provides a durable ActivityStore backed by PostgreSQL.
// Savepoints only exist inside a transaction block, so the store keeps one
// dedicated connection and opens a transaction lazily when the first
// savepoint is established, committing it when the last one resolves.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/yangxiaofu/the-owners-sim-sub008/internal/core/activity"
	"github.com/yangxiaofu/the-owners-sim-sub008/pkg/serialization"
)

// Store implements the engine's ActivityStore over a single pgx
// connection. The scheduler serializes access; the store is not safe for
// concurrent use.
type Store struct {
	conn       *pgx.Conn
	serializer *serialization.Serializer
	savepoints []string
}

// Connect opens the connection, runs migrations, and returns the store.
func Connect(ctx context.Context, dsn string, serializer *serialization.Serializer) (*Store, error) {
	if serializer == nil {
		serializer = serialization.DefaultSerializer()
	}
	conn, err := pgx.Connect(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	s := &Store{conn: conn, serializer: serializer}
	if err := s.migrate(ctx); err != nil {
		conn.Close(ctx)
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	schema := `
		CREATE TABLE IF NOT EXISTS activities (
			id UUID PRIMARY KEY,
			kind TEXT NOT NULL,
			team_id TEXT NOT NULL,
			resource TEXT NOT NULL DEFAULT '',
			date TIMESTAMPTZ NOT NULL,
			seq BIGINT NOT NULL DEFAULT 0,
			completed BOOLEAN NOT NULL DEFAULT FALSE,
			data BYTEA NOT NULL,
			created_at TIMESTAMPTZ NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_activities_date ON activities (date);
		CREATE INDEX IF NOT EXISTS idx_activities_completed ON activities (completed);

		CREATE TABLE IF NOT EXISTS results (
			activity_id UUID PRIMARY KEY REFERENCES activities (id),
			data BYTEA NOT NULL,
			created_at TIMESTAMPTZ NOT NULL
		);
	`
	if _, err := s.conn.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to create tables: %w", err)
	}
	return nil
}

func isSafeIdent(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') || c == '_' {
			continue
		}
		return false
	}
	return true
}

// Savepoint implements checkpoint.SavepointStore, beginning the backing
// transaction when this is the first open savepoint.
func (s *Store) Savepoint(ctx context.Context, name string) error {
	if !isSafeIdent(name) {
		return fmt.Errorf("invalid savepoint name: %q", name)
	}
	if len(s.savepoints) == 0 {
		if _, err := s.conn.Exec(ctx, "BEGIN"); err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}
	}
	if _, err := s.conn.Exec(ctx, "SAVEPOINT "+name); err != nil {
		return fmt.Errorf("failed to create savepoint %s: %w", name, err)
	}
	s.savepoints = append(s.savepoints, name)
	return nil
}

// Release implements checkpoint.SavepointStore, committing the backing
// transaction once no savepoints remain open.
func (s *Store) Release(ctx context.Context, name string) error {
	idx := s.find(name)
	if idx < 0 {
		return fmt.Errorf("unknown savepoint: %s", name)
	}
	if _, err := s.conn.Exec(ctx, "RELEASE SAVEPOINT "+name); err != nil {
		return fmt.Errorf("failed to release savepoint %s: %w", name, err)
	}
	s.savepoints = s.savepoints[:idx]
	if len(s.savepoints) == 0 {
		if _, err := s.conn.Exec(ctx, "COMMIT"); err != nil {
			return fmt.Errorf("failed to commit transaction: %w", err)
		}
	}
	return nil
}

// RollbackTo implements checkpoint.SavepointStore. SQL ROLLBACK TO keeps
// the savepoint open, so it is released afterwards to match the port's
// discard semantics.
func (s *Store) RollbackTo(ctx context.Context, name string) error {
	idx := s.find(name)
	if idx < 0 {
		return fmt.Errorf("unknown savepoint: %s", name)
	}
	if _, err := s.conn.Exec(ctx, "ROLLBACK TO SAVEPOINT "+name); err != nil {
		return fmt.Errorf("failed to rollback to savepoint %s: %w", name, err)
	}
	if _, err := s.conn.Exec(ctx, "RELEASE SAVEPOINT "+name); err != nil {
		return fmt.Errorf("failed to discard savepoint %s: %w", name, err)
	}
	s.savepoints = s.savepoints[:idx]
	if len(s.savepoints) == 0 {
		if _, err := s.conn.Exec(ctx, "COMMIT"); err != nil {
			return fmt.Errorf("failed to commit transaction: %w", err)
		}
	}
	return nil
}

// DeleteRecord implements checkpoint.SavepointStore. Unknown ids are a
// no-op.
func (s *Store) DeleteRecord(ctx context.Context, id string) error {
	switch {
	case strings.HasPrefix(id, "activity:"):
		_, err := s.conn.Exec(ctx, "DELETE FROM activities WHERE id = $1",
			strings.TrimPrefix(id, "activity:"))
		return err
	case strings.HasPrefix(id, "result:"):
		_, err := s.conn.Exec(ctx, "DELETE FROM results WHERE activity_id = $1",
			strings.TrimPrefix(id, "result:"))
		return err
	}
	return nil
}

// SaveActivity persists the activity row and returns its record id.
func (s *Store) SaveActivity(ctx context.Context, act *activity.Activity) (string, error) {
	data, err := s.serializer.Serialize(act)
	if err != nil {
		return "", fmt.Errorf("failed to serialize activity: %w", err)
	}
	_, err = s.conn.Exec(ctx, `
		INSERT INTO activities (id, kind, team_id, resource, date, seq, completed, data, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			kind = EXCLUDED.kind,
			team_id = EXCLUDED.team_id,
			resource = EXCLUDED.resource,
			date = EXCLUDED.date,
			seq = EXCLUDED.seq,
			completed = EXCLUDED.completed,
			data = EXCLUDED.data`,
		act.ID, string(act.Kind), act.TeamID, act.Resource,
		act.Date, act.Seq, act.Completed, data, act.CreatedAt)
	if err != nil {
		return "", fmt.Errorf("failed to save activity: %w", err)
	}
	return "activity:" + act.ID.String(), nil
}

// SaveResult persists the result row and returns its record id.
func (s *Store) SaveResult(ctx context.Context, res *activity.Result) (string, error) {
	data, err := s.serializer.Serialize(res)
	if err != nil {
		return "", fmt.Errorf("failed to serialize result: %w", err)
	}
	_, err = s.conn.Exec(ctx, `
		INSERT INTO results (activity_id, data, created_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (activity_id) DO UPDATE SET data = EXCLUDED.data`,
		res.ActivityID, data, res.Timestamp)
	if err != nil {
		return "", fmt.Errorf("failed to save result: %w", err)
	}
	return "result:" + res.ActivityID.String(), nil
}

// MarkCompleted flips the durable completion flag, keeping the serialized
// blob and the queryable column in sync.
func (s *Store) MarkCompleted(ctx context.Context, id uuid.UUID) error {
	act, err := s.GetActivity(ctx, id)
	if err != nil {
		return err
	}
	act.Completed = true
	data, err := s.serializer.Serialize(act)
	if err != nil {
		return fmt.Errorf("failed to serialize activity: %w", err)
	}
	_, err = s.conn.Exec(ctx,
		"UPDATE activities SET completed = TRUE, data = $1 WHERE id = $2", data, id)
	if err != nil {
		return fmt.Errorf("failed to mark activity completed: %w", err)
	}
	return nil
}

// GetActivity loads one activity row.
func (s *Store) GetActivity(ctx context.Context, id uuid.UUID) (*activity.Activity, error) {
	var data []byte
	err := s.conn.QueryRow(ctx, "SELECT data FROM activities WHERE id = $1", id).Scan(&data)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("activity %s not found", id)
		}
		return nil, fmt.Errorf("failed to load activity: %w", err)
	}
	var act activity.Activity
	if err := s.serializer.Deserialize(data, &act); err != nil {
		return nil, fmt.Errorf("failed to deserialize activity: %w", err)
	}
	return &act, nil
}

// ListPending returns every stored activity not yet completed, ordered by
// date then insertion sequence, for calendar rehydration on startup.
func (s *Store) ListPending(ctx context.Context) ([]*activity.Activity, error) {
	return s.listWhere(ctx, "completed = FALSE ORDER BY date, seq")
}

// ListByDay returns every stored activity scheduled for the given day.
func (s *Store) ListByDay(ctx context.Context, date time.Time) ([]*activity.Activity, error) {
	return s.listWhere(ctx, "date = $1 ORDER BY seq", activity.Day(date))
}

func (s *Store) listWhere(ctx context.Context, clause string, args ...any) ([]*activity.Activity, error) {
	rows, err := s.conn.Query(ctx, "SELECT data FROM activities WHERE "+clause, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list activities: %w", err)
	}
	defer rows.Close()

	var out []*activity.Activity
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("failed to scan activity row: %w", err)
		}
		var act activity.Activity
		if err := s.serializer.Deserialize(data, &act); err != nil {
			return nil, fmt.Errorf("failed to deserialize activity: %w", err)
		}
		out = append(out, &act)
	}
	return out, rows.Err()
}

// Close closes the connection, rolling back any still-open transaction.
func (s *Store) Close(ctx context.Context) error {
	if len(s.savepoints) > 0 {
		if _, err := s.conn.Exec(ctx, "ROLLBACK"); err != nil {
			return err
		}
		s.savepoints = nil
	}
	return s.conn.Close(ctx)
}

func (s *Store) find(name string) int {
	for i, sp := range s.savepoints {
		if sp == name {
			return i
		}
	}
	return -1
}
