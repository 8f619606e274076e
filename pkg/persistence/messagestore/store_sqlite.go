package messagestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"

	"github.com/go-go-golems/coachchat/pkg/servermsg"
)

type SQLiteStore struct {
	db *sql.DB
}

var _ Store = &SQLiteStore{}

func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, errors.New("sqlite message store: empty dsn")
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

// SQLiteDSNForFile builds a DSN for a file-backed store.
func SQLiteDSNForFile(path string) (string, error) {
	if path == "" {
		return "", errors.New("sqlite message store: empty path")
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
		return errors.New("sqlite message store: db is nil")
	}
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS server_messages (
		  client_id TEXT PRIMARY KEY,
		  seq INTEGER NOT NULL,
		  client_version INTEGER NOT NULL,
		  client_read INTEGER NOT NULL DEFAULT 0,
		  content_hash TEXT NOT NULL,
		  hash_algorithm TEXT NOT NULL DEFAULT 'sha256-canonical-json-v1',
		  message_json TEXT NOT NULL,
		  updated_at_ms INTEGER NOT NULL
		);`,
		`CREATE UNIQUE INDEX IF NOT EXISTS server_messages_by_seq
		  ON server_messages(seq);`,
	}
	for _, st := range stmts {
		if _, err := s.db.Exec(st); err != nil {
			return errors.Wrap(err, "sqlite message store: migrate")
		}
	}
	return nil
}

func (s *SQLiteStore) Upsert(ctx context.Context, msg servermsg.ServerMessage) (Outcome, error) {
	if s == nil || s.db == nil {
		return Stale, errors.New("sqlite message store: db is nil")
	}
	if err := msg.Validate(); err != nil {
		return Stale, errors.Wrap(err, "sqlite message store")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	hash, err := ContentHash(msg)
	if err != nil {
		return Stale, err
	}
	raw, err := json.Marshal(msg)
	if err != nil {
		return Stale, errors.Wrap(err, "sqlite message store: marshal message")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Stale, err
	}
	defer func() { _ = tx.Rollback() }()

	var (
		storedJSON string
		storedHash string
	)
	err = tx.QueryRowContext(ctx, `SELECT message_json, content_hash FROM server_messages WHERE client_id = ?`, msg.ClientID).
		Scan(&storedJSON, &storedHash)
	now := time.Now().UnixMilli()

	switch {
	case errors.Is(err, sql.ErrNoRows):
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO server_messages(client_id, seq, client_version, client_read, content_hash, message_json, updated_at_ms)
			VALUES(?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM server_messages), ?, ?, ?, ?, ?)
		`, msg.ClientID, msg.ClientVersion, boolToInt(msg.ClientRead), hash, string(raw), now); err != nil {
			return Stale, errors.Wrap(err, "sqlite message store: insert message")
		}
		if err := tx.Commit(); err != nil {
			return Stale, err
		}
		return Inserted, nil
	case err != nil:
		return Stale, errors.Wrap(err, "sqlite message store: load message")
	}

	stored, err := servermsg.Decode([]byte(storedJSON))
	if err != nil {
		return Stale, errors.Wrap(err, "sqlite message store: stored message")
	}
	outcome := decide(stored, storedHash, msg, hash)
	if outcome != Updated {
		return outcome, nil
	}
	msg = keepClientState(stored, msg)
	raw, err = json.Marshal(msg)
	if err != nil {
		return Stale, errors.Wrap(err, "sqlite message store: marshal message")
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE server_messages
		SET client_version = ?, client_read = ?, content_hash = ?, message_json = ?, updated_at_ms = ?
		WHERE client_id = ?
	`, msg.ClientVersion, boolToInt(msg.ClientRead), hash, string(raw), now, msg.ClientID); err != nil {
		return Stale, errors.Wrap(err, "sqlite message store: update message")
	}
	if err := tx.Commit(); err != nil {
		return Stale, err
	}
	return Updated, nil
}

func (s *SQLiteStore) MarkRead(ctx context.Context, clientID string, fakeTimestamp *int64) error {
	if s == nil || s.db == nil {
		return errors.New("sqlite message store: db is nil")
	}
	clientID = strings.TrimSpace(clientID)
	if clientID == "" {
		return errors.New("sqlite message store: clientID is empty")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var raw string
	err = tx.QueryRowContext(ctx, `SELECT message_json FROM server_messages WHERE client_id = ?`, clientID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return errors.Errorf("sqlite message store: unknown message %q", clientID)
	}
	if err != nil {
		return errors.Wrap(err, "sqlite message store: load message")
	}
	msg, err := servermsg.Decode([]byte(raw))
	if err != nil {
		return errors.Wrap(err, "sqlite message store: stored message")
	}
	msg.ClientRead = true
	if fakeTimestamp != nil {
		v := servermsg.Millis(*fakeTimestamp)
		msg.FakeTimestamp = &v
	}
	updated, err := json.Marshal(msg)
	if err != nil {
		return errors.Wrap(err, "sqlite message store: marshal message")
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE server_messages SET client_read = 1, message_json = ?, updated_at_ms = ? WHERE client_id = ?
	`, string(updated), time.Now().UnixMilli(), clientID); err != nil {
		return errors.Wrap(err, "sqlite message store: mark read")
	}
	return tx.Commit()
}

func (s *SQLiteStore) Get(ctx context.Context, clientID string) (servermsg.ServerMessage, bool, error) {
	if s == nil || s.db == nil {
		return servermsg.ServerMessage{}, false, errors.New("sqlite message store: db is nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT message_json FROM server_messages WHERE client_id = ?`, clientID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return servermsg.ServerMessage{}, false, nil
	}
	if err != nil {
		return servermsg.ServerMessage{}, false, errors.Wrap(err, "sqlite message store: get message")
	}
	msg, err := servermsg.Decode([]byte(raw))
	if err != nil {
		return servermsg.ServerMessage{}, false, errors.Wrap(err, "sqlite message store: stored message")
	}
	return msg, true, nil
}

func (s *SQLiteStore) List(ctx context.Context) ([]servermsg.ServerMessage, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("sqlite message store: db is nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	rows, err := s.db.QueryContext(ctx, `SELECT message_json FROM server_messages ORDER BY seq ASC`)
	if err != nil {
		return nil, errors.Wrap(err, "sqlite message store: list messages")
	}
	defer func() { _ = rows.Close() }()

	out := make([]servermsg.ServerMessage, 0, 128)
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		msg, err := servermsg.Decode([]byte(raw))
		if err != nil {
			return nil, errors.Wrap(err, "sqlite message store: stored message")
		}
		out = append(out, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "sqlite message store: iterate messages")
	}
	return out, nil
}

func (s *SQLiteStore) Reset(ctx context.Context) error {
	if s == nil || s.db == nil {
		return errors.New("sqlite message store: db is nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM server_messages`); err != nil {
		return errors.Wrap(err, "sqlite message store: reset")
	}
	return nil
}

func boolToInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}
