// Package sqlite provides a durable ActivityStore backed by SQLite,
// mapping the savepoint port directly onto SQL SAVEPOINT / RELEASE /
// ROLLBACK TO statements.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/yangxiaofu/the-owners-sim-sub008/internal/core/activity"
	"github.com/yangxiaofu/the-owners-sim-sub008/pkg/serialization"
)

// Store implements the engine's ActivityStore over a single SQLite
// connection. Savepoints pin to a connection, so the pool is capped at
// one; the scheduler serializes access anyway.
type Store struct {
	db         *sqlx.DB
	serializer *serialization.Serializer
}

// Open opens (or creates) the database at path, applies WAL mode, and
// runs migrations.
func Open(path string, serializer *serialization.Serializer) (*Store, error) {
	if serializer == nil {
		serializer = serialization.DefaultSerializer()
	}
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)", path)
	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	db.SetMaxOpenConns(1)

	s := &Store{db: db, serializer: serializer}
	if err := s.migrate(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	schema := `
		CREATE TABLE IF NOT EXISTS activities (
			id TEXT PRIMARY KEY,
			kind TEXT NOT NULL,
			team_id TEXT NOT NULL,
			resource TEXT NOT NULL DEFAULT '',
			date INTEGER NOT NULL,
			seq INTEGER NOT NULL DEFAULT 0,
			completed INTEGER NOT NULL DEFAULT 0,
			data BLOB NOT NULL,
			created_at INTEGER NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_activities_date ON activities (date);
		CREATE INDEX IF NOT EXISTS idx_activities_completed ON activities (completed);

		CREATE TABLE IF NOT EXISTS results (
			activity_id TEXT PRIMARY KEY REFERENCES activities (id),
			data BLOB NOT NULL,
			created_at INTEGER NOT NULL
		);
	`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create tables: %w", err)
	}
	return nil
}

// isSafeIdent guards identifiers spliced into savepoint statements, which
// cannot be parameterized.
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

// Savepoint implements checkpoint.SavepointStore.
func (s *Store) Savepoint(ctx context.Context, name string) error {
	if !isSafeIdent(name) {
		return fmt.Errorf("invalid savepoint name: %q", name)
	}
	if _, err := s.db.ExecContext(ctx, "SAVEPOINT "+name); err != nil {
		return fmt.Errorf("failed to create savepoint %s: %w", name, err)
	}
	return nil
}

// Release implements checkpoint.SavepointStore.
func (s *Store) Release(ctx context.Context, name string) error {
	if !isSafeIdent(name) {
		return fmt.Errorf("invalid savepoint name: %q", name)
	}
	if _, err := s.db.ExecContext(ctx, "RELEASE SAVEPOINT "+name); err != nil {
		return fmt.Errorf("failed to release savepoint %s: %w", name, err)
	}
	return nil
}

// RollbackTo implements checkpoint.SavepointStore. SQL ROLLBACK TO keeps
// the savepoint on the stack, so it is released afterwards to match the
// port's discard semantics.
func (s *Store) RollbackTo(ctx context.Context, name string) error {
	if !isSafeIdent(name) {
		return fmt.Errorf("invalid savepoint name: %q", name)
	}
	if _, err := s.db.ExecContext(ctx, "ROLLBACK TO SAVEPOINT "+name); err != nil {
		return fmt.Errorf("failed to rollback to savepoint %s: %w", name, err)
	}
	if _, err := s.db.ExecContext(ctx, "RELEASE SAVEPOINT "+name); err != nil {
		return fmt.Errorf("failed to discard savepoint %s: %w", name, err)
	}
	return nil
}

// DeleteRecord implements checkpoint.SavepointStore. Unknown ids are a
// no-op: the savepoint rollback may already have removed the row.
func (s *Store) DeleteRecord(ctx context.Context, id string) error {
	table, key, ok := splitRecordID(id)
	if !ok {
		return nil
	}
	query := fmt.Sprintf("DELETE FROM %s WHERE %s = ?", table.name, table.keyColumn)
	if _, err := s.db.ExecContext(ctx, query, key); err != nil {
		return fmt.Errorf("failed to delete record %s: %w", id, err)
	}
	return nil
}

// SaveActivity persists the activity row and returns its record id.
func (s *Store) SaveActivity(ctx context.Context, act *activity.Activity) (string, error) {
	data, err := s.serializer.Serialize(act)
	if err != nil {
		return "", fmt.Errorf("failed to serialize activity: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO activities (id, kind, team_id, resource, date, seq, completed, data, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		act.ID.String(), string(act.Kind), act.TeamID, act.Resource,
		act.Date.Unix(), act.Seq, boolInt(act.Completed), data, act.CreatedAt.Unix())
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
	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO results (activity_id, data, created_at)
		VALUES (?, ?, ?)`,
		res.ActivityID.String(), data, res.Timestamp.Unix())
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
	_, err = s.db.ExecContext(ctx,
		"UPDATE activities SET completed = 1, data = ? WHERE id = ?", data, id.String())
	if err != nil {
		return fmt.Errorf("failed to mark activity completed: %w", err)
	}
	return nil
}

// GetActivity loads one activity row.
func (s *Store) GetActivity(ctx context.Context, id uuid.UUID) (*activity.Activity, error) {
	var data []byte
	err := s.db.QueryRowxContext(ctx,
		"SELECT data FROM activities WHERE id = ?", id.String()).Scan(&data)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("activity %s not found", id)
		}
		return nil, fmt.Errorf("failed to load activity: %w", err)
	}
	return s.decodeActivity(data)
}

// ListPending returns every stored activity not yet completed, ordered by
// date then insertion sequence, for calendar rehydration on startup.
func (s *Store) ListPending(ctx context.Context) ([]*activity.Activity, error) {
	return s.listWhere(ctx, "completed = 0 ORDER BY date, seq")
}

// ListByDay returns every stored activity scheduled for the given day.
func (s *Store) ListByDay(ctx context.Context, date time.Time) ([]*activity.Activity, error) {
	day := activity.Day(date)
	return s.listWhere(ctx, "date = ? ORDER BY seq", day.Unix())
}

func (s *Store) listWhere(ctx context.Context, clause string, args ...any) ([]*activity.Activity, error) {
	rows, err := s.db.QueryxContext(ctx, "SELECT data FROM activities WHERE "+clause, args...)
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
		act, err := s.decodeActivity(data)
		if err != nil {
			return nil, err
		}
		out = append(out, act)
	}
	return out, rows.Err()
}

func (s *Store) decodeActivity(data []byte) (*activity.Activity, error) {
	var act activity.Activity
	if err := s.serializer.Deserialize(data, &act); err != nil {
		return nil, fmt.Errorf("failed to deserialize activity: %w", err)
	}
	return &act, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

type recordTable struct {
	name      string
	keyColumn string
}

func splitRecordID(id string) (recordTable, string, bool) {
	switch {
	case strings.HasPrefix(id, "activity:"):
		return recordTable{name: "activities", keyColumn: "id"}, strings.TrimPrefix(id, "activity:"), true
	case strings.HasPrefix(id, "result:"):
		return recordTable{name: "results", keyColumn: "activity_id"}, strings.TrimPrefix(id, "result:"), true
	}
	return recordTable{}, "", false
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
