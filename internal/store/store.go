// Package store is the sqlite-backed record store: user accounts, browser
// sessions, API keys and the per-user result pointer.
package store

import (
	"context"
	"database/sql"
	"time"

	_ "modernc.org/sqlite"
)

type Store struct {
	db *sql.DB
}

func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(5 * time.Minute)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`
CREATE TABLE IF NOT EXISTS users (
  username TEXT PRIMARY KEY,
  email TEXT NOT NULL DEFAULT '',
  password_hash TEXT NOT NULL,
  created_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS sessions (
  token_hash TEXT PRIMARY KEY,
  username TEXT NOT NULL,
  created_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS api_keys (
  key_id TEXT PRIMARY KEY,
  username TEXT NOT NULL,
  prefix TEXT NOT NULL,
  hashed_key TEXT NOT NULL,
  created_at DATETIME NOT NULL,
  last_used_at DATETIME
);

CREATE TABLE IF NOT EXISTS session_results (
  username TEXT PRIMARY KEY,
  result_name TEXT NOT NULL,
  updated_at DATETIME NOT NULL
);
`)
	return err
}

type UserRecord struct {
	Username     string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
}

type APIKeyRecord struct {
	ID         string
	Username   string
	Prefix     string
	HashedKey  string
	CreatedAt  time.Time
	LastUsedAt *time.Time
}

func (s *Store) CreateUser(ctx context.Context, u UserRecord) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO users(username, email, password_hash, created_at)
VALUES(?, ?, ?, ?);
`, u.Username, u.Email, u.PasswordHash, u.CreatedAt)
	return err
}

func (s *Store) GetUser(ctx context.Context, username string) (UserRecord, bool, error) {
	row := s.db.QueryRowContext(ctx, "SELECT username, email, password_hash, created_at FROM users WHERE username=?;", username)
	var u UserRecord
	err := row.Scan(&u.Username, &u.Email, &u.PasswordHash, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return UserRecord{}, false, nil
	}
	if err != nil {
		return UserRecord{}, false, err
	}
	return u, true, nil
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (UserRecord, bool, error) {
	row := s.db.QueryRowContext(ctx, "SELECT username, email, password_hash, created_at FROM users WHERE email=?;", email)
	var u UserRecord
	err := row.Scan(&u.Username, &u.Email, &u.PasswordHash, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return UserRecord{}, false, nil
	}
	if err != nil {
		return UserRecord{}, false, err
	}
	return u, true, nil
}

func (s *Store) DeleteUser(ctx context.Context, username string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM users WHERE username=?;", username)
	return err
}

func (s *Store) CreateSession(ctx context.Context, tokenHash, username string) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO sessions(token_hash, username, created_at) VALUES(?, ?, ?);
`, tokenHash, username, time.Now())
	return err
}

func (s *Store) GetSession(ctx context.Context, tokenHash string) (string, bool, error) {
	row := s.db.QueryRowContext(ctx, "SELECT username FROM sessions WHERE token_hash=?;", tokenHash)
	var username string
	err := row.Scan(&username)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return username, true, nil
}

func (s *Store) DeleteSession(ctx context.Context, tokenHash string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM sessions WHERE token_hash=?;", tokenHash)
	return err
}

func (s *Store) CreateAPIKey(ctx context.Context, r APIKeyRecord) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO api_keys(key_id, username, prefix, hashed_key, created_at)
VALUES(?, ?, ?, ?, ?);
`, r.ID, r.Username, r.Prefix, r.HashedKey, r.CreatedAt)
	return err
}

func (s *Store) GetAPIKeyByHash(ctx context.Context, hashedKey string) (APIKeyRecord, bool, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT key_id, username, prefix, hashed_key, created_at, last_used_at
FROM api_keys WHERE hashed_key=?;
`, hashedKey)
	var r APIKeyRecord
	err := row.Scan(&r.ID, &r.Username, &r.Prefix, &r.HashedKey, &r.CreatedAt, &r.LastUsedAt)
	if err == sql.ErrNoRows {
		return APIKeyRecord{}, false, nil
	}
	if err != nil {
		return APIKeyRecord{}, false, err
	}
	return r, true, nil
}

func (s *Store) UpdateAPIKeyLastUsed(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, "UPDATE api_keys SET last_used_at=? WHERE key_id=?;", time.Now(), id)
	return err
}

// SetResult records the latest result filename for a user, overwriting any
// prior pointer. Implements results.Pointers.
func (s *Store) SetResult(ctx context.Context, username, name string) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO session_results(username, result_name, updated_at)
VALUES(?, ?, ?)
ON CONFLICT(username) DO UPDATE SET
  result_name=excluded.result_name,
  updated_at=excluded.updated_at;
`, username, name, time.Now())
	return err
}

// GetResult implements results.Pointers.
func (s *Store) GetResult(ctx context.Context, username string) (string, bool, error) {
	row := s.db.QueryRowContext(ctx, "SELECT result_name FROM session_results WHERE username=?;", username)
	var name string
	err := row.Scan(&name)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return name, true, nil
}
