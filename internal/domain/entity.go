// Package domain contains core business entities and interfaces.
// This is the innermost layer in Clean Architecture - no external dependencies.
package domain

import "time"

// ScreenTimePolicy is the daily screen-time budget for the managed device.
// UsedMinutes is the value last reported by the remote store; enforcement
// decisions use the locally sampled total, which is derived from the
// midnight-to-now window and therefore resets naturally at local midnight.
type ScreenTimePolicy struct {
	DailyLimitMinutes int
	UsedMinutes       int
}

// AppRule is the administrator-configured rule for a single application.
// A DailyLimitMinutes of 0 means unlimited.
type AppRule struct {
	PackageID         string
	DisplayName       string
	Blocked           bool
	DailyLimitMinutes int
	UsedMinutesToday  int
}

// ContactRule is one entry of the allowed-contact list.
type ContactRule struct {
	ContactID   string
	DisplayName string
	PhoneNumber string
	Allowed     bool
}

// Geofence is a circular area the administrator wants transition
// notifications for.
type Geofence struct {
	ID            string
	Name          string
	Latitude      float64
	Longitude     float64
	RadiusMeters  float32
	Active        bool
	NotifyOnEnter bool
	NotifyOnExit  bool
}

// UsageSnapshot is one observation of device usage. It is ephemeral and
// never persisted beyond the sampling cycle that produced it.
type UsageSnapshot struct {
	ForegroundPackageID     string
	TotalForegroundMinutes  int
	PerAppForegroundMinutes map[string]int
	SampledAt               time.Time
}

// Empty reports whether this snapshot carries no observation. Samplers
// return an empty snapshot (not an error) when the OS usage accounting
// is unavailable; the engine skips the cycle.
func (s UsageSnapshot) Empty() bool {
	return s.SampledAt.IsZero()
}

// Position is a single location fix.
type Position struct {
	Latitude       float64
	Longitude      float64
	AccuracyMeters float32
	Timestamp      time.Time
}

// Dimension identifies one independently-updatable facet of the policy.
type Dimension string

const (
	DimLock          Dimension = "lock"
	DimScreenTime    Dimension = "screen_time"
	DimAppRules      Dimension = "app_rules"
	DimContacts      Dimension = "contacts"
	DimGeofences     Dimension = "geofences"
	DimLocateRequest Dimension = "locate_request"
)

// PolicyEvent is one change notification from the remote store. Value
// carries the dimension's new value; the cache validates its dynamic type
// and drops mismatches without touching the previous value.
type PolicyEvent struct {
	Dimension Dimension
	Value     any
}

// FenceDirection is the direction of a geofence membership change.
type FenceDirection string

const (
	FenceEntered FenceDirection = "entered"
	FenceLeft    FenceDirection = "left"
)

// GeofenceTransition is an enter or exit detected between two position
// samples.
type GeofenceTransition struct {
	FenceID   string
	FenceName string
	Direction FenceDirection
}

// LockState is the engine's per-device lock state.
type LockState string

const (
	StateUnlocked LockState = "unlocked"
	StateLocked   LockState = "locked"
)

// LockCause records which rule triggered the last lock, for observability
// only. It does not change unlock semantics.
type LockCause string

const (
	CauseNone       LockCause = ""
	CauseAdmin      LockCause = "admin"
	CauseScreenTime LockCause = "screen_time"
)

// AgentStatus is the running agent's state, persisted to the status file
// for the CLI.
type AgentStatus struct {
	Version       int    `json:"version"`
	PID           int    `json:"pid"`
	DeviceID      string `json:"device_id"`
	StartedAt     int64  `json:"started_at"`
	LastHeartbeat int64  `json:"last_heartbeat"`
	AppVersion    string `json:"app_version,omitempty"`
}

// Credential store keys.
const (
	CredDeviceID  = "device_id"
	CredSyncToken = "sync_token"
)
