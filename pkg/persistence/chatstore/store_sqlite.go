package chatstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"

	"github.com/go-go-golems/coachchat/pkg/chatmsg"
)

// storedMessage drops chatmsg.Message's wire encoding so every field round-trips.
type storedMessage chatmsg.Message

type SQLiteStore struct {
	db *sql.DB
}

var _ Store = &SQLiteStore{}

func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	if dsn == "" {
		return nil, errors.New("sqlite chat store: empty dsn")
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}
	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func SQLiteDSNForFile(path string) (string, error) {
	if path == "" {
		return "", errors.New("sqlite chat store: empty path")
	}
	// WAL for concurrent readers + writer. busy_timeout to avoid transient SQLITE_BUSY.
	return fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000", path), nil
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteStore) migrate() error {
	if s == nil || s.db == nil {
		return errors.New("sqlite chat store: db is nil")
	}
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS chat_messages (
		  message_id TEXT PRIMARY KEY,
		  client_id TEXT NOT NULL,
		  kind TEXT NOT NULL,
		  position INTEGER NOT NULL,
		  created_at_ms INTEGER NOT NULL,
		  updated_at_ms INTEGER NOT NULL,
		  message_json TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS chat_messages_by_position
		  ON chat_messages(position);`,
		`CREATE INDEX IF NOT EXISTS chat_messages_by_client
		  ON chat_messages(client_id);`,
	}
	for _, st := range stmts {
		if _, err := s.db.Exec(st); err != nil {
			return errors.Wrap(err, "sqlite chat store: migrate")
		}
	}
	return nil
}

func (s *SQLiteStore) Add(ctx context.Context, msg chatmsg.Message, addToStart bool) error {
	if s == nil || s.db == nil {
		return errors.New("sqlite chat store: db is nil")
	}
	if strings.TrimSpace(msg.ID) == "" {
		return errors.New("sqlite chat store: message id is empty")
	}
	if msg.Kind == "" {
		return errors.New("sqlite chat store: message kind is empty")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	raw, err := json.Marshal(storedMessage(msg))
	if err != nil {
		return errors.Wrap(err, "sqlite chat store: marshal message")
	}

	position := `(SELECT COALESCE(MAX(position), 0) + 1 FROM chat_messages)`
	if addToStart {
		position = `(SELECT COALESCE(MIN(position), 0) - 1 FROM chat_messages)`
	}
	now := time.Now().UnixMilli()
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO chat_messages(message_id, client_id, kind, position, created_at_ms, updated_at_ms, message_json)
		VALUES(?, ?, ?, `+position+`, ?, ?, ?)
		ON CONFLICT(message_id) DO UPDATE SET
		  kind = excluded.kind,
		  updated_at_ms = excluded.updated_at_ms,
		  message_json = excluded.message_json
	`, msg.ID, chatmsg.ClientIDOf(msg.ID), string(msg.Kind), msg.CreatedAt, now, string(raw)); err != nil {
		return errors.Wrap(err, "sqlite chat store: add message")
	}
	return nil
}

func (s *SQLiteStore) Update(ctx context.Context, msg chatmsg.Message) (bool, error) {
	if s == nil || s.db == nil {
		return false, errors.New("sqlite chat store: db is nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	raw, err := json.Marshal(storedMessage(msg))
	if err != nil {
		return false, errors.Wrap(err, "sqlite chat store: marshal message")
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE chat_messages SET kind = ?, updated_at_ms = ?, message_json = ? WHERE message_id = ?
	`, string(msg.Kind), time.Now().UnixMilli(), string(raw), msg.ID)
	if err != nil {
		return false, errors.Wrap(err, "sqlite chat store: update message")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, "sqlite chat store: update message")
	}
	return n > 0, nil
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (chatmsg.Message, bool, error) {
	if s == nil || s.db == nil {
		return chatmsg.Message{}, false, errors.New("sqlite chat store: db is nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT message_json FROM chat_messages WHERE message_id = ?`, id).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return chatmsg.Message{}, false, nil
	}
	if err != nil {
		return chatmsg.Message{}, false, errors.Wrap(err, "sqlite chat store: get message")
	}
	m, err := decodeStored(raw)
	if err != nil {
		return chatmsg.Message{}, false, err
	}
	return m, true, nil
}

func (s *SQLiteStore) List(ctx context.Context) ([]chatmsg.Message, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("sqlite chat store: db is nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	rows, err := s.db.QueryContext(ctx, `SELECT message_json FROM chat_messages ORDER BY position ASC`)
	if err != nil {
		return nil, errors.Wrap(err, "sqlite chat store: list messages")
	}
	defer func() { _ = rows.Close() }()

	out := make([]chatmsg.Message, 0, 128)
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		m, err := decodeStored(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "sqlite chat store: iterate messages")
	}
	return out, nil
}

func (s *SQLiteStore) Reset(ctx context.Context) error {
	if s == nil || s.db == nil {
		return errors.New("sqlite chat store: db is nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM chat_messages`); err != nil {
		return errors.Wrap(err, "sqlite chat store: reset")
	}
	return nil
}

func decodeStored(raw string) (chatmsg.Message, error) {
	var m storedMessage
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return chatmsg.Message{}, errors.Wrap(err, "sqlite chat store: unmarshal message")
	}
	return chatmsg.Message(m), nil
}
