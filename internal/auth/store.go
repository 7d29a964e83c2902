// Package auth keeps the signed-in user's credentials and the few identity
// fields used to label messages. Values live in a SQLite database; if the
// database cannot be opened the store keeps working from memory for the
// rest of the process.
package auth

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	_ "github.com/glebarez/go-sqlite"

	"github.com/comigor/lumina/internal/logger"
)

const (
	keyAccessToken  = "access_token"
	keyRefreshToken = "refresh_token"
	keyUserName     = "user_name"
	keyUserEmail    = "user_email"
)

// Store persists credential and identity values.
type Store struct {
	mu     sync.Mutex
	db     *sql.DB
	memory map[string]string // in-memory fallback
	log    *slog.Logger

	// cleared holds keys whose database delete failed; they read as empty.
	cleared map[string]struct{}
}

// Open opens (creating if needed) the database at path. It never fails: a
// database that cannot be used is logged and replaced by memory.
func Open(path string) *Store {
	s := &Store{
		memory:  make(map[string]string),
		cleared: make(map[string]struct{}),
		log:     logger.L.With("component", "auth"),
	}
	db, err := openDB(path)
	if err != nil {
		s.log.Warn("sqlite unavailable; credentials kept in memory", "path", path, "error", err)
		return s
	}
	s.db = db
	s.log.Debug("sqlite credential store initialized", "path", path)
	return s
}

func openDB(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", "file:"+path+"?_busy_timeout=10000")
	if err != nil {
		return nil, err
	}
	// One connection keeps ":memory:" databases coherent.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS credentials (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);`); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// Close releases the database.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) get(key string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, gone := s.cleared[key]; gone {
		return ""
	}
	if s.db != nil {
		var v string
		err := s.db.QueryRow(`SELECT value FROM credentials WHERE key = ?;`, key).Scan(&v)
		if err == nil {
			return v
		}
		if !errors.Is(err, sql.ErrNoRows) {
			s.log.Error("credential lookup failed; using memory", "key", key, "error", err)
		}
	}
	return s.memory[key]
}

func (s *Store) set(values map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, v := range values {
		s.memory[k] = v
		delete(s.cleared, k)
	}
	if s.db == nil {
		return nil
	}
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	for k, v := range values {
		if _, err := tx.Exec(`INSERT INTO credentials (key, value) VALUES (?, ?)
			ON CONFLICT(key) DO UPDATE SET value = excluded.value;`, k, v); err != nil {
			tx.Rollback()
			return fmt.Errorf("store %s: %w", k, err)
		}
	}
	return tx.Commit()
}

func (s *Store) clear(keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var err error
	if s.db != nil {
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(keys)), ",")
		args := make([]any, len(keys))
		for i, k := range keys {
			args[i] = k
		}
		_, err = s.db.Exec(`DELETE FROM credentials WHERE key IN (`+placeholders+`);`, args...)
	}
	for _, k := range keys {
		delete(s.memory, k)
		if err != nil {
			s.cleared[k] = struct{}{}
		}
	}
	if err != nil {
		return fmt.Errorf("clear credentials: %w", err)
	}
	return nil
}

// Token returns the stored access token, or "" when signed out.
func (s *Store) Token() string {
	return s.get(keyAccessToken)
}

// SetTokens stores the tokens issued at sign-in.
func (s *Store) SetTokens(access, refresh string) error {
	return s.set(map[string]string{keyAccessToken: access, keyRefreshToken: refresh})
}

// ClearTokens forgets the tokens but keeps identity fields.
func (s *Store) ClearTokens() error {
	return s.clear(keyAccessToken, keyRefreshToken)
}

// Logout forgets everything the store holds.
func (s *Store) Logout() error {
	return s.clear(keyAccessToken, keyRefreshToken, keyUserName, keyUserEmail)
}

// Identity returns the stored profile, defaulting the name to "User".
func (s *Store) Identity() Identity {
	id := Identity{Name: s.get(keyUserName), Email: s.get(keyUserEmail)}
	if id.Name == "" {
		id.Name = defaultName
	}
	return id
}

// SetIdentity stores the profile fields.
func (s *Store) SetIdentity(id Identity) error {
	return s.set(map[string]string{keyUserName: id.Name, keyUserEmail: id.Email})
}
