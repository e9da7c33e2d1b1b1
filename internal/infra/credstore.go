package infra

import (
	"database/sql"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"time"

	// Ensure sqlcipher driver is registered.
	_ "github.com/mutecomm/go-sqlcipher/v4"

	"github.com/eliteGoblin/applockd/internal/domain"
)

const credentialsDBName = "credentials.db"

// CredentialStore implements domain.SecretStore on a SQLCipher
// encrypted SQLite database. It holds the unlock password hash and any
// other secrets the daemon needs across restarts.
type CredentialStore struct {
	db     *sql.DB
	dbPath string
}

// NewCredentialStore opens (or creates) the encrypted credential
// database. The key is the SQLCipher passphrase via PRAGMA key.
func NewCredentialStore(dataDir string, key []byte) (*CredentialStore, error) {
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, credentialsDBName)
	keyHex := hex.EncodeToString(key)

	dsn := fmt.Sprintf("%s?_pragma_key=x'%s'&_pragma_cipher_page_size=4096", dbPath, keyHex)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open credential database: %w", err)
	}

	// A wrong key surfaces here, not at Open.
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect to credential database: %w", err)
	}

	store := &CredentialStore{db: db, dbPath: dbPath}
	if err := store.createTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}

	return store, nil
}

func (s *CredentialStore) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS secrets (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// GetSecret retrieves a secret by key.
func (s *CredentialStore) GetSecret(key string) (string, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM secrets WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", fmt.Errorf("secret %q not found", key)
	}
	return value, err
}

// SetSecret stores a secret, replacing any previous value.
func (s *CredentialStore) SetSecret(key, value string) error {
	now := time.Now().Unix()
	_, err := s.db.Exec(`INSERT OR REPLACE INTO secrets (key, value, created_at) VALUES (?, ?, ?)`,
		key, value, now)
	return err
}

// DeleteSecret removes a secret by key. Deleting a missing key is not
// an error.
func (s *CredentialStore) DeleteSecret(key string) error {
	_, err := s.db.Exec(`DELETE FROM secrets WHERE key = ?`, key)
	return err
}

// GetStorePath returns the database file path.
func (s *CredentialStore) GetStorePath() string {
	return s.dbPath
}

// Close releases the database connection.
func (s *CredentialStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Ensure CredentialStore implements domain.SecretStore.
var _ domain.SecretStore = (*CredentialStore)(nil)
