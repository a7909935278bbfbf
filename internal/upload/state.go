package upload

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// StateDB remembers which exports a user already uploaded so unchanged files
// are not sent again.
type StateDB struct {
	db *sql.DB
}

// OpenStateDB opens (or creates) the SQLite state database at dir/uploads.db.
func OpenStateDB(dir string) (*StateDB, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating state dir %s: %w", dir, err)
	}

	db, err := sql.Open("sqlite", filepath.Join(dir, "uploads.db"))
	if err != nil {
		return nil, fmt.Errorf("opening upload state: %w", err)
	}
	db.SetMaxOpenConns(1)

	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS uploaded_exports (
		user_id     INTEGER NOT NULL,
		hash        TEXT NOT NULL,
		path        TEXT NOT NULL,
		sessions    INTEGER NOT NULL,
		uploaded_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (user_id, hash)
	)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating upload state table: %w", err)
	}

	return &StateDB{db: db}, nil
}

// IsUploaded reports whether userID already uploaded content with this hash.
func (s *StateDB) IsUploaded(userID int, hash string) (bool, error) {
	var count int
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM uploaded_exports WHERE user_id = ? AND hash = ?`,
		userID, hash,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("checking upload state: %w", err)
	}
	return count > 0, nil
}

// MarkUploaded records a successful upload.
func (s *StateDB) MarkUploaded(userID int, hash, path string, sessions int) error {
	_, err := s.db.Exec(
		`INSERT OR REPLACE INTO uploaded_exports (user_id, hash, path, sessions) VALUES (?, ?, ?, ?)`,
		userID, hash, path, sessions,
	)
	if err != nil {
		return fmt.Errorf("recording upload: %w", err)
	}
	return nil
}

// Close closes the state database.
func (s *StateDB) Close() error {
	return s.db.Close()
}

// Hash returns the hex SHA-256 of data.
func Hash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
