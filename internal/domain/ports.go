package domain

import "context"

// UsageSampler observes foreground-app identity and foreground durations
// since local midnight.
// Implementation: uses gopsutil to read the OS process table.
type UsageSampler interface {
	// Sample returns the current usage observation. An empty snapshot
	// means "no observation this cycle" and is not an error.
	Sample(ctx context.Context) (UsageSnapshot, error)
}

// PositionSampler obtains the device's current coordinates.
type PositionSampler interface {
	// Sample returns nil when no fix is available or location access is
	// absent; callers skip dependent evaluation for the cycle.
	Sample(ctx context.Context) (*Position, error)
}

// DeviceActuator issues enforcement actions on the managed device.
// Implementations are OS/UI collaborators; failures are logged, never
// propagated as fatal.
type DeviceActuator interface {
	// ShowLockScreen surfaces the lock-screen UI with an optional message.
	ShowLockScreen(message string) error

	// NavigateHome returns the device to the home screen.
	NavigateHome() error

	// ShowNotification displays a notification to the supervising party.
	ShowNotification(title, body string) error
}

// SyncClient produces writes toward the remote policy store. All writes
// are best-effort: a failure must never block or skip the next local
// enforcement decision.
type SyncClient interface {
	// PublishHeartbeat writes the online flag and lastSeen timestamp.
	PublishHeartbeat(ctx context.Context, online bool) error

	// PublishPosition writes the current location fix.
	PublishPosition(ctx context.Context, pos Position) error

	// PublishUsage writes aggregated and per-app foreground minutes.
	PublishUsage(ctx context.Context, totalMinutes int, perApp map[string]int) error

	// ClearLocateRequest acknowledges a consumed "locate now" request.
	// Best-effort: a lost clear re-triggers the fetch next cycle.
	ClearLocateRequest(ctx context.Context) error

	// PublishStatusFlag surfaces an enforcement fault to the
	// administrator. Best-effort, no delivery guarantee.
	PublishStatusFlag(ctx context.Context, flag string) error
}

// StatusRegistry persists the running agent's status for CLI inspection.
// Implementation: flock-guarded JSON file in the agent data directory.
type StatusRegistry interface {
	// Register saves the agent's PID and device id at startup.
	Register(status AgentStatus) error

	// UpdateHeartbeat updates the timestamp for liveness checks.
	UpdateHeartbeat() error

	// Get returns the persisted status, or nil if none exists.
	Get() (*AgentStatus, error)

	// Clear removes the status file (on clean shutdown).
	Clear() error

	// Path returns the status file path (for tests).
	Path() string
}

// CredentialStore keeps device identity and the sync token encrypted at
// rest. Seeded once by `agentd register`, read on every startup.
type CredentialStore interface {
	// GetCredential retrieves a credential by key.
	GetCredential(key string) (string, error)

	// SetCredential stores a credential.
	SetCredential(key, value string) error

	// Close releases the underlying database connection.
	Close() error
}

// KeyProvider yields the credential-store encryption key, minting one on
// first use when the device has none yet.
type KeyProvider interface {
	// Ensure returns the key, generating and persisting it if absent.
	Ensure() ([]byte, error)
}

// ProcessManager reports process liveness.
type ProcessManager interface {
	// IsRunning checks if a PID exists and is running.
	IsRunning(pid int) bool

	// GetCurrentPID returns the current process PID.
	GetCurrentPID() int
}
