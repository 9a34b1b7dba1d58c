package infra

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parentalcompanion/agentd/internal/domain"
)

func newTestStatusFile(t *testing.T) *StatusFile {
	t.Helper()
	return NewStatusFileWithPath(filepath.Join(t.TempDir(), "status.json"))
}

func TestStatusFile_RegisterAndGet(t *testing.T) {
	sf := newTestStatusFile(t)

	err := sf.Register(domain.AgentStatus{
		PID:        1234,
		DeviceID:   "dev-1",
		AppVersion: "1.0.0",
	})
	require.NoError(t, err)

	status, err := sf.Get()
	require.NoError(t, err)
	require.NotNil(t, status)
	assert.Equal(t, 1234, status.PID)
	assert.Equal(t, "dev-1", status.DeviceID)
	assert.Equal(t, 1, status.Version)
	assert.NotZero(t, status.StartedAt)
	assert.NotZero(t, status.LastHeartbeat)
}

func TestStatusFile_GetWithoutRegister(t *testing.T) {
	sf := newTestStatusFile(t)

	status, err := sf.Get()
	require.NoError(t, err)
	assert.Nil(t, status)
}

func TestStatusFile_UpdateHeartbeat(t *testing.T) {
	sf := newTestStatusFile(t)

	require.NoError(t, sf.Register(domain.AgentStatus{PID: 1, DeviceID: "dev-1"}))

	before, err := sf.Get()
	require.NoError(t, err)

	require.NoError(t, sf.UpdateHeartbeat())

	after, err := sf.Get()
	require.NoError(t, err)
	assert.GreaterOrEqual(t, after.LastHeartbeat, before.LastHeartbeat)
	// Registration fields survive the heartbeat rewrite.
	assert.Equal(t, "dev-1", after.DeviceID)
}

func TestStatusFile_UpdateHeartbeatWithoutRegister(t *testing.T) {
	sf := newTestStatusFile(t)
	assert.Error(t, sf.UpdateHeartbeat())
}

func TestStatusFile_Clear(t *testing.T) {
	sf := newTestStatusFile(t)

	require.NoError(t, sf.Register(domain.AgentStatus{PID: 1, DeviceID: "dev-1"}))
	require.NoError(t, sf.Clear())

	status, err := sf.Get()
	require.NoError(t, err)
	assert.Nil(t, status)

	// Clearing twice is not an error.
	assert.NoError(t, sf.Clear())
}

func TestStatusFile_CorruptFile(t *testing.T) {
	sf := newTestStatusFile(t)
	require.NoError(t, os.WriteFile(sf.Path(), []byte("not json"), 0600))

	_, err := sf.Get()
	assert.Error(t, err)
}
