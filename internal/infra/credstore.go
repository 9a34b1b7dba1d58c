package infra

import (
	"database/sql"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"time"

	sqlcipher "github.com/mutecomm/go-sqlcipher/v4"

	"github.com/parentalcompanion/agentd/internal/domain"
)

// Ensure sqlcipher driver is registered.
var _ = sqlcipher.SQLiteDriver{}

const credentialsDBName = "credentials.db"

// SQLCipherStore implements domain.CredentialStore using a SQLCipher
// encrypted SQLite database. The device id and sync token live here so
// they are never readable off disk without the local key.
type SQLCipherStore struct {
	db     *sql.DB
	dbPath string
}

// OpenCredentialStore opens the encrypted database under dataDir with the
// device's local key, minting the key on first run.
func OpenCredentialStore(dataDir string) (*SQLCipherStore, error) {
	key, err := NewFileKeyProvider(dataDir).Ensure()
	if err != nil {
		return nil, err
	}
	return NewSQLCipherStore(dataDir, key)
}

// NewSQLCipherStore opens (or creates) the encrypted credential database.
// The key is used as the SQLCipher passphrase via PRAGMA key.
func NewSQLCipherStore(dataDir string, key []byte) (*SQLCipherStore, error) {
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, credentialsDBName)
	keyHex := hex.EncodeToString(key)

	dsn := fmt.Sprintf("%s?_pragma_key=x'%s'&_pragma_cipher_page_size=4096", dbPath, keyHex)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open encrypted database: %w", err)
	}

	// Verify the key actually decrypts the database.
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to encrypted database: %w", err)
	}

	store := &SQLCipherStore{db: db, dbPath: dbPath}
	if err := store.createTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return store, nil
}

func (s *SQLCipherStore) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS credentials (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// GetCredential retrieves a credential by key.
func (s *SQLCipherStore) GetCredential(key string) (string, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM credentials WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", fmt.Errorf("credential %q not found", key)
	}
	return value, err
}

// SetCredential stores a credential.
func (s *SQLCipherStore) SetCredential(key, value string) error {
	now := time.Now().Unix()
	_, err := s.db.Exec(`INSERT OR REPLACE INTO credentials (key, value, created_at) VALUES (?, ?, ?)`,
		key, value, now)
	return err
}

// Close releases the database connection.
func (s *SQLCipherStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Ensure SQLCipherStore implements domain.CredentialStore.
var _ domain.CredentialStore = (*SQLCipherStore)(nil)
