// Package stats stores per-chat message counters and user profiles.
package stats

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/m3rciful/chatstats/core/logger"
)

// DefaultLanguage is the language column default.
const DefaultLanguage = "ru"

// Key addresses one record.
type Key struct {
	UserID int64
	ChatID int64
}

// Field enumerates the user-editable columns.
type Field int

const (
	FieldDisplayName Field = iota + 1
	FieldDescription
	FieldLanguage
)

func (f Field) String() string {
	switch f {
	case FieldDisplayName:
		return "display_name"
	case FieldDescription:
		return "description"
	case FieldLanguage:
		return "language"
	}
	return "unknown"
}

// column returns the column name and the value stored when the field is cleared.
func (f Field) column() (string, any, bool) {
	switch f {
	case FieldDisplayName:
		return "display_name", nil, true
	case FieldDescription:
		return "description", "", true
	case FieldLanguage:
		return "language", DefaultLanguage, true
	}
	return "", nil, false
}

// Record is one row of chat_members.
type Record struct {
	ID           int64   `db:"id"`
	UserID       int64   `db:"user_id"`
	ChatID       int64   `db:"chat_id"`
	DisplayName  *string `db:"display_name"`
	MessageCount int64   `db:"message_count"`
	Language     string  `db:"language"`
	Description  string  `db:"description"`
}

// Name returns the display name or an empty string when unset.
func (r Record) Name() string {
	if r.DisplayName == nil {
		return ""
	}
	return *r.DisplayName
}

const selectColumns = `id, user_id, chat_id, display_name, message_count, language, description`

// Store is the SQL-backed stats repository. Every mutation is a single upsert
// statement, so concurrent calls for the same key are serialized by the database.
type Store struct {
	db *sqlx.DB
}

// New wraps an open connection; the caller owns its lifecycle.
func New(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// Ensure inserts a default record for key if none exists.
func (s *Store) Ensure(ctx context.Context, key Key) error {
	const op = "ensure"
	start := time.Now()
	_, err := s.db.ExecContext(ctx, s.db.Rebind(
		`INSERT INTO chat_members (user_id, chat_id) VALUES (?, ?)
		 ON CONFLICT (user_id, chat_id) DO NOTHING`),
		key.UserID, key.ChatID)
	return s.done(ctx, op, key, start, err)
}

// Get returns the record for key; ok is false when it was never created.
func (s *Store) Get(ctx context.Context, key Key) (Record, bool, error) {
	const op = "get"
	start := time.Now()
	var rec Record
	err := s.db.GetContext(ctx, &rec, s.db.Rebind(
		`SELECT `+selectColumns+` FROM chat_members WHERE user_id = ? AND chat_id = ?`),
		key.UserID, key.ChatID)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, false, nil
	}
	if err := s.done(ctx, op, key, start, err); err != nil {
		return Record{}, false, err
	}
	return rec, true, nil
}

// IncrementCount adds one to the message counter, creating the record with a
// count of 1 when absent.
func (s *Store) IncrementCount(ctx context.Context, key Key) error {
	const op = "increment"
	start := time.Now()
	_, err := s.db.ExecContext(ctx, s.db.Rebind(
		`INSERT INTO chat_members (user_id, chat_id, message_count) VALUES (?, ?, 1)
		 ON CONFLICT (user_id, chat_id)
		 DO UPDATE SET message_count = chat_members.message_count + 1`),
		key.UserID, key.ChatID)
	return s.done(ctx, op, key, start, err)
}

// SetField overwrites one field, creating the record when absent.
// An empty value resets the field to its default.
func (s *Store) SetField(ctx context.Context, key Key, field Field, value string) error {
	col, def, ok := field.column()
	if !ok {
		return ErrUnknownField
	}
	var arg any = value
	if value == "" {
		arg = def
	}
	op := "set." + col
	start := time.Now()
	_, err := s.db.ExecContext(ctx, s.db.Rebind(
		`INSERT INTO chat_members (user_id, chat_id, `+col+`) VALUES (?, ?, ?)
		 ON CONFLICT (user_id, chat_id) DO UPDATE SET `+col+` = excluded.`+col),
		key.UserID, key.ChatID, arg)
	return s.done(ctx, op, key, start, err)
}

// ClearField resets one field to its default.
func (s *Store) ClearField(ctx context.Context, key Key, field Field) error {
	return s.SetField(ctx, key, field, "")
}

// Top returns up to limit records of a chat, highest count first, ties in
// insertion order.
func (s *Store) Top(ctx context.Context, chatID int64, limit int) ([]Record, error) {
	if limit <= 0 {
		return nil, nil
	}
	const op = "top"
	start := time.Now()
	var out []Record
	err := s.db.SelectContext(ctx, &out, s.db.Rebind(
		`SELECT `+selectColumns+` FROM chat_members WHERE chat_id = ?
		 ORDER BY message_count DESC, id ASC LIMIT ?`),
		chatID, limit)
	if err := s.done(ctx, op, Key{ChatID: chatID}, start, err); err != nil {
		return nil, err
	}
	return out, nil
}

// All returns every record across chats with the same ordering as Top.
func (s *Store) All(ctx context.Context) ([]Record, error) {
	const op = "all"
	start := time.Now()
	var out []Record
	err := s.db.SelectContext(ctx, &out,
		`SELECT `+selectColumns+` FROM chat_members ORDER BY message_count DESC, id ASC`)
	if err := s.done(ctx, op, Key{}, start, err); err != nil {
		return nil, err
	}
	return out, nil
}

// Ping checks that the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	start := time.Now()
	return s.done(ctx, "ping", Key{}, start, s.db.PingContext(ctx))
}

func (s *Store) done(ctx context.Context, op string, key Key, start time.Time, err error) error {
	if err == nil {
		if logger.ShouldSampleDebug() {
			logger.LogEvent(ctx, logger.Stats, slog.LevelDebug, "store."+op,
				slog.String("status", "ok"),
				slog.Duration("duration", logger.Took(start)),
			)
		}
		return nil
	}
	attrs := []slog.Attr{slog.String("status", "fail")}
	if key != (Key{}) {
		attrs = append(attrs, slog.Int64("key_user_id", key.UserID), slog.Int64("key_chat_id", key.ChatID))
	}
	attrs = append(attrs,
		slog.Duration("duration", logger.Took(start)),
		slog.String("err", err.Error()),
	)
	logger.LogEvent(ctx, logger.Stats, slog.LevelWarn, "store."+op, attrs...)
	return &StorageError{Op: op, Err: err}
}
