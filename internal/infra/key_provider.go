package infra

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/parentalcompanion/agentd/internal/domain"
)

const (
	keyFileName = "credentials.key"
	keySize     = 32 // 256-bit SQLCipher key
)

// FileKeyProvider keeps the credential-store key in a hex-encoded file
// next to the database, written with 0600 permissions. A first call to
// Ensure mints the key; later calls return the same bytes, so the
// encrypted database stays readable across restarts.
type FileKeyProvider struct {
	path string
}

// NewFileKeyProvider returns a provider rooted at the given data directory.
func NewFileKeyProvider(dataDir string) *FileKeyProvider {
	return &FileKeyProvider{path: filepath.Join(dataDir, keyFileName)}
}

// Ensure returns the stored key, minting a fresh one when no key file
// exists yet. A present but unreadable or corrupt file is an error, not
// a reason to mint: replacing the key would orphan the database.
func (p *FileKeyProvider) Ensure() ([]byte, error) {
	encoded, err := os.ReadFile(p.path)
	switch {
	case err == nil:
		return decodeKey(encoded)
	case os.IsNotExist(err):
		return p.mint()
	default:
		return nil, fmt.Errorf("failed to read key file: %w", err)
	}
}

func (p *FileKeyProvider) mint() ([]byte, error) {
	key := make([]byte, keySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("failed to generate key: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(p.path), 0700); err != nil {
		return nil, fmt.Errorf("failed to create key directory: %w", err)
	}
	if err := os.WriteFile(p.path, []byte(hex.EncodeToString(key)), 0600); err != nil {
		return nil, fmt.Errorf("failed to write key file: %w", err)
	}
	return key, nil
}

func decodeKey(encoded []byte) ([]byte, error) {
	key, err := hex.DecodeString(strings.TrimSpace(string(encoded)))
	if err != nil {
		return nil, fmt.Errorf("failed to decode key file: %w", err)
	}
	if len(key) != keySize {
		return nil, fmt.Errorf("key file holds %d bytes, want %d", len(key), keySize)
	}
	return key, nil
}

var _ domain.KeyProvider = (*FileKeyProvider)(nil)
