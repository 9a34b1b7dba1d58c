package infra

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"github.com/parentalcompanion/agentd/internal/domain"
)

const statusFileName = "status.json"

// StatusFile implements domain.StatusRegistry using a JSON file in the
// agent data directory. Writes are atomic (temp + rename) and guarded by
// a flock so the CLI never reads a half-written file.
type StatusFile struct {
	path string
}

// NewStatusFile creates a status registry in the given data directory.
func NewStatusFile(dataDir string) *StatusFile {
	return &StatusFile{path: filepath.Join(dataDir, statusFileName)}
}

// NewStatusFileWithPath creates a registry at a specific path (for testing).
func NewStatusFileWithPath(path string) *StatusFile {
	return &StatusFile{path: path}
}

// Path returns the status file path.
func (s *StatusFile) Path() string {
	return s.path
}

// Register saves the agent's PID and device id at startup.
func (s *StatusFile) Register(status domain.AgentStatus) error {
	return s.withLock(func() error {
		status.Version = 1
		if status.StartedAt == 0 {
			status.StartedAt = time.Now().Unix()
		}
		status.LastHeartbeat = time.Now().Unix()
		return s.atomicWrite(&status)
	})
}

// UpdateHeartbeat updates the timestamp for liveness checks.
func (s *StatusFile) UpdateHeartbeat() error {
	return s.withLock(func() error {
		status, err := s.read()
		if err != nil {
			return err
		}
		if status == nil {
			return fmt.Errorf("agent not registered")
		}
		status.LastHeartbeat = time.Now().Unix()
		return s.atomicWrite(status)
	})
}

// Get returns the persisted status, or nil if none exists.
func (s *StatusFile) Get() (*domain.AgentStatus, error) {
	return s.read()
}

// Clear removes the status file.
func (s *StatusFile) Clear() error {
	err := os.Remove(s.path)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

func (s *StatusFile) read() (*domain.AgentStatus, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var status domain.AgentStatus
	if err := json.Unmarshal(data, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// withLock runs fn holding an exclusive flock on a sibling lock file.
func (s *StatusFile) withLock(fn func() error) error {
	lockPath := s.path + ".lock"
	lockFile, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0600)
	if err != nil {
		return fmt.Errorf("failed to open lock file: %w", err)
	}
	defer lockFile.Close()

	if err := syscall.Flock(int(lockFile.Fd()), syscall.LOCK_EX); err != nil {
		return fmt.Errorf("failed to acquire lock: %w", err)
	}
	defer func() { _ = syscall.Flock(int(lockFile.Fd()), syscall.LOCK_UN) }()

	return fn()
}

// atomicWrite writes the status to file atomically (write + rename).
func (s *StatusFile) atomicWrite(status *domain.AgentStatus) error {
	data, err := json.Marshal(status)
	if err != nil {
		return err
	}

	tmpPath := fmt.Sprintf("%s.%d.tmp", s.path, os.Getpid())
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return err
	}

	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return nil
}

// Ensure StatusFile implements domain.StatusRegistry.
var _ domain.StatusRegistry = (*StatusFile)(nil)
