package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/sipeed/picobot/pkg/bus"
	"github.com/sipeed/picobot/pkg/storage"
)

const schema = `CREATE TABLE IF NOT EXISTS pending_commands (
	chat_id      INTEGER NOT NULL,
	user_id      INTEGER NOT NULL,
	command_id   TEXT    NOT NULL,
	partial_text TEXT    NOT NULL,
	finished     INTEGER NOT NULL DEFAULT 0,
	updated_at   INTEGER NOT NULL,
	PRIMARY KEY (chat_id, user_id)
)`

// SQLiteStore persists pending commands so a continuation survives a restart.
type SQLiteStore struct {
	db     *sql.DB
	ownsDB bool
	now    func() time.Time
}

// OpenSQLiteStore opens its own database at path.
func OpenSQLiteStore(ctx context.Context, path string) (*SQLiteStore, error) {
	db, err := storage.Open(ctx, path)
	if err != nil {
		return nil, err
	}
	s, err := NewSQLiteStore(ctx, db)
	if err != nil {
		db.Close()
		return nil, err
	}
	s.ownsDB = true
	return s, nil
}

// NewSQLiteStore uses an already opened database. Close does not close db.
func NewSQLiteStore(ctx context.Context, db *sql.DB) (*SQLiteStore, error) {
	if err := storage.Migrate(ctx, db, schema); err != nil {
		return nil, fmt.Errorf("state: %w", err)
	}
	return &SQLiteStore{db: db, now: time.Now}, nil
}

func (s *SQLiteStore) Get(ctx context.Context, key bus.ConversationKey) (*PendingCommand, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT command_id, partial_text, finished, updated_at FROM pending_commands WHERE chat_id = ? AND user_id = ?`,
		key.ChatID, key.UserID)
	return scanPending(row, key)
}

func (s *SQLiteStore) Save(ctx context.Context, p PendingCommand) error {
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = s.now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO pending_commands (chat_id, user_id, command_id, partial_text, finished, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (chat_id, user_id) DO UPDATE SET
			command_id = excluded.command_id,
			partial_text = excluded.partial_text,
			finished = excluded.finished,
			updated_at = excluded.updated_at`,
		p.Key.ChatID, p.Key.UserID, p.CommandID, p.PartialText, p.Finished, p.UpdatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("state: save: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Remove(ctx context.Context, key bus.ConversationKey) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM pending_commands WHERE chat_id = ? AND user_id = ?`, key.ChatID, key.UserID)
	if err != nil {
		return fmt.Errorf("state: remove: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Take(ctx context.Context, key bus.ConversationKey) (*PendingCommand, error) {
	row := s.db.QueryRowContext(ctx,
		`DELETE FROM pending_commands WHERE chat_id = ? AND user_id = ?
		RETURNING command_id, partial_text, finished, updated_at`,
		key.ChatID, key.UserID)
	return scanPending(row, key)
}

func (s *SQLiteStore) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM pending_commands WHERE updated_at < ?`, cutoff.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("state: purge: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("state: purge: %w", err)
	}
	return int(n), nil
}

func (s *SQLiteStore) Close() error {
	if s.ownsDB {
		return s.db.Close()
	}
	return nil
}

func scanPending(row *sql.Row, key bus.ConversationKey) (*PendingCommand, error) {
	var (
		p       = PendingCommand{Key: key}
		updated int64
	)
	err := row.Scan(&p.CommandID, &p.PartialText, &p.Finished, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("state: read: %w", err)
	}
	p.UpdatedAt = time.UnixMilli(updated)
	return &p, nil
}
