// Package sqlite provides single-file storage for world settings and the
// chat log, for tables run without a PostgreSQL server.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"

	"github.com/cory-johannsen/action-initiative/internal/chatlog"
)

const schema = `
CREATE TABLE IF NOT EXISTS world_settings (
	key        TEXT PRIMARY KEY,
	value      INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS chat_messages (
	id         TEXT PRIMARY KEY,
	speaker    TEXT NOT NULL,
	flavor     TEXT NOT NULL,
	formula    TEXT NOT NULL,
	dice       TEXT NOT NULL,
	total      INTEGER NOT NULL,
	created_at INTEGER NOT NULL
);`

// Store persists settings and chat messages in SQLite.
// It implements settings.Backend; ChatLog exposes the chatlog.Log side.
type Store struct {
	sqlDB *sql.DB
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Open opens the database at path and creates the tables if needed.
//
// Precondition: path must be non-empty; ":memory:" is not supported.
// Postcondition: Returns a ready Store or a non-nil error.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := sqlDB.Exec(schema); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// Get returns the value stored under key, or false when unset.
func (s *Store) Get(ctx context.Context, key string) (int64, bool, error) {
	var v int64
	err := s.sqlDB.QueryRowContext(ctx,
		`SELECT value FROM world_settings WHERE key = ?`, key,
	).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("querying setting %q: %w", key, err)
	}
	return v, true, nil
}

// Set upserts value under key.
func (s *Store) Set(ctx context.Context, key string, value int64) error {
	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO world_settings (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, toMillis(time.Now()),
	)
	if err != nil {
		return fmt.Errorf("storing setting %q: %w", key, err)
	}
	return nil
}

// PublishMessage inserts msg, assigning its id and timestamp when unset.
//
// Postcondition: Returns chatlog.ErrDuplicate when the id is already stored.
func (s *Store) PublishMessage(ctx context.Context, msg chatlog.Message) (chatlog.Message, error) {
	msg = chatlog.Prepare(msg, time.Now())
	// Stored at millisecond precision.
	msg.Created = fromMillis(toMillis(msg.Created))
	msg.Dice = append([]int(nil), msg.Dice...)
	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO chat_messages (id, speaker, flavor, formula, dice, total, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		msg.ID, msg.Speaker, msg.Flavor, msg.Formula, joinDice(msg.Dice), msg.Total, toMillis(msg.Created),
	)
	if err != nil {
		if isConstraintError(err) {
			return chatlog.Message{}, fmt.Errorf("%s: %w", msg.ID, chatlog.ErrDuplicate)
		}
		return chatlog.Message{}, fmt.Errorf("inserting chat message: %w", err)
	}
	return msg, nil
}

// GetMessage returns the message with id.
//
// Postcondition: Returns chatlog.ErrNotFound when no such message exists.
func (s *Store) GetMessage(ctx context.Context, id string) (chatlog.Message, error) {
	var (
		msg     chatlog.Message
		dice    string
		created int64
	)
	err := s.sqlDB.QueryRowContext(ctx,
		`SELECT id, speaker, flavor, formula, dice, total, created_at
		 FROM chat_messages WHERE id = ?`, id,
	).Scan(&msg.ID, &msg.Speaker, &msg.Flavor, &msg.Formula, &dice, &msg.Total, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return chatlog.Message{}, fmt.Errorf("%s: %w", id, chatlog.ErrNotFound)
	}
	if err != nil {
		return chatlog.Message{}, fmt.Errorf("querying chat message: %w", err)
	}
	msg.Dice, err = splitDice(dice)
	if err != nil {
		return chatlog.Message{}, fmt.Errorf("chat message %s: %w", id, err)
	}
	msg.Created = fromMillis(created)
	return msg, nil
}

// ChatLog returns a chatlog.Log over the same database handle.
func (s *Store) ChatLog() chatlog.Log { return chatStore{s} }

type chatStore struct{ s *Store }

func (c chatStore) Publish(ctx context.Context, msg chatlog.Message) (chatlog.Message, error) {
	return c.s.PublishMessage(ctx, msg)
}

func (c chatStore) Get(ctx context.Context, id string) (chatlog.Message, error) {
	return c.s.GetMessage(ctx, id)
}

func joinDice(dice []int) string {
	parts := make([]string, len(dice))
	for i, d := range dice {
		parts[i] = strconv.Itoa(d)
	}
	return strings.Join(parts, ",")
}

func splitDice(s string) ([]int, error) {
	if s == "" {
		return []int{}, nil
	}
	parts := strings.Split(s, ",")
	out := make([]int, len(parts))
	for i, p := range parts {
		v, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("parsing dice %q: %w", s, err)
		}
		out[i] = v
	}
	return out, nil
}

func isConstraintError(err error) bool {
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	return false
}
