// Package usecase contains the enforcement decision logic.
package usecase

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/parentalcompanion/agentd/internal/domain"
	"github.com/parentalcompanion/agentd/internal/geofence"
	"github.com/parentalcompanion/agentd/internal/metrics"
	"github.com/parentalcompanion/agentd/internal/policy"
)

// Enforcer is the per-device enforcement engine: it consumes the policy
// cache plus usage and position observations, runs the decision rules and
// issues enforcement actions through the actuator.
//
// All methods are driven from the agent's single scheduling goroutine, so
// the engine's internal state (lock state, budget edge, geofence states)
// needs no locking. The cache it reads is updated concurrently and is
// safe per dimension.
type Enforcer struct {
	cache    *policy.Cache
	actuator domain.DeviceActuator
	sync     domain.SyncClient
	metrics  *metrics.Set
	logger   *zap.Logger

	state      domain.LockState
	lockCause  domain.LockCause
	overBudget bool
	lastDay    string

	lastSnapshot domain.UsageSnapshot
	fenceStates  map[string]bool
}

// NewEnforcer creates an enforcement engine in the Unlocked state with no
// geofence history (the first position sample after start is a baseline).
func NewEnforcer(
	cache *policy.Cache,
	actuator domain.DeviceActuator,
	sc domain.SyncClient,
	m *metrics.Set,
	logger *zap.Logger,
) *Enforcer {
	return &Enforcer{
		cache:       cache,
		actuator:    actuator,
		sync:        sc,
		metrics:     m,
		logger:      logger,
		state:       domain.StateUnlocked,
		fenceStates: make(map[string]bool),
	}
}

// State returns the current lock state.
func (e *Enforcer) State() domain.LockState {
	return e.state
}

// LockCause returns what triggered the last lock (observability only).
func (e *Enforcer) LockCause() domain.LockCause {
	return e.lockCause
}

// ObserveUsage runs the per-cycle app-block and time-limit checks against
// one usage observation. An empty snapshot means the OS accounting was
// unavailable; the cycle is skipped without error.
func (e *Enforcer) ObserveUsage(ctx context.Context, snap domain.UsageSnapshot) {
	if snap.Empty() {
		e.logger.Debug("no usage observation this cycle")
		return
	}

	e.rollDay(snap.SampledAt)
	e.lastSnapshot = snap
	e.metrics.ScreenTimeUsed.Set(float64(snap.TotalForegroundMinutes))

	// At most one return-to-home action per cycle: the blocked check wins
	// over the per-app budget when both apply.
	if pkg := snap.ForegroundPackageID; pkg != "" {
		if e.cache.BlockedPackages()[pkg] {
			e.goHome(pkg, "blocked")
		} else if limit, ok := e.cache.AppLimits()[pkg]; ok {
			if used := snap.PerAppForegroundMinutes[pkg]; used >= limit {
				e.goHome(pkg, "app_limit")
			}
		}
	}

	e.evaluateBudget()
}

// ReevaluateBudget re-runs the screen-time check against the last
// observation, for when the budget dimension changes between samples.
func (e *Enforcer) ReevaluateBudget() {
	if e.lastSnapshot.Empty() {
		return
	}
	e.evaluateBudget()
}

// evaluateBudget locks the device when total foreground time crosses the
// daily budget. The check is edge-triggered: re-entering Locked requires
// crossing from under to over, so an explicit administrator unlock while
// still over budget holds until the next day's reset.
func (e *Enforcer) evaluateBudget() {
	st := e.cache.ScreenTime()
	over := st.DailyLimitMinutes > 0 && e.lastSnapshot.TotalForegroundMinutes >= st.DailyLimitMinutes

	if over && !e.overBudget {
		e.lock(domain.CauseScreenTime, st)
	}
	e.overBudget = over
}

// ApplyLockFlag reacts to an administrator lock-flag change. Unlock is
// honored even while the device remains over its screen-time budget.
func (e *Enforcer) ApplyLockFlag(locked bool) {
	if locked {
		e.lock(domain.CauseAdmin, e.cache.ScreenTime())
	} else {
		e.unlock("administrator")
	}
}

// ObservePosition evaluates geofences against one position fix and
// notifies each detected transition. Not gated by lock state.
func (e *Enforcer) ObservePosition(ctx context.Context, pos domain.Position) {
	next, transitions := geofence.Evaluate(pos, e.cache.Geofences(), e.fenceStates)
	e.fenceStates = next

	for _, tr := range transitions {
		var title, body string
		switch tr.Direction {
		case domain.FenceEntered:
			title = fmt.Sprintf("Entered %s", tr.FenceName)
			body = "Managed device has entered the area"
		case domain.FenceLeft:
			title = fmt.Sprintf("Left %s", tr.FenceName)
			body = "Managed device has left the area"
		}

		if err := e.actuator.ShowNotification(title, body); err != nil {
			e.logger.Warn("geofence notification failed",
				zap.String("fence", tr.FenceID),
				zap.Error(err))
			continue
		}

		e.metrics.GeofenceTransitions.WithLabelValues(string(tr.Direction)).Inc()
		e.logger.Info("geofence transition",
			zap.String("fence", tr.FenceID),
			zap.String("direction", string(tr.Direction)))
	}
}

// PublishUsage republishes the aggregated and per-app foreground minutes
// to the remote store. Fire-and-forget: a failure is logged and surfaced
// as a best-effort status flag, never retried synchronously.
func (e *Enforcer) PublishUsage(ctx context.Context) {
	snap := e.lastSnapshot
	if snap.Empty() {
		return
	}

	perApp := make(map[string]int)
	for pkg := range e.cache.AppLimits() {
		if minutes, ok := snap.PerAppForegroundMinutes[pkg]; ok {
			perApp[pkg] = minutes
		}
	}

	if err := e.sync.PublishUsage(ctx, snap.TotalForegroundMinutes, perApp); err != nil {
		e.metrics.PublishFailures.Inc()
		e.logger.Warn("usage publish failed", zap.Error(err))
		// Best effort; a second failure is ignored.
		_ = e.sync.PublishStatusFlag(ctx, "usage_publish_failed")
	}
}

func (e *Enforcer) goHome(pkg, reason string) {
	if err := e.actuator.NavigateHome(); err != nil {
		e.logger.Warn("return-to-home action failed",
			zap.String("package", pkg),
			zap.Error(err))
		return
	}

	e.metrics.HomeActions.WithLabelValues(reason).Inc()
	e.logger.Info("returned device to home screen",
		zap.String("package", pkg),
		zap.String("reason", reason))
}

func (e *Enforcer) lock(cause domain.LockCause, st domain.ScreenTimePolicy) {
	if e.state == domain.StateLocked {
		// Already locked: one action per transition, never re-fired.
		return
	}

	e.state = domain.StateLocked
	e.lockCause = cause

	message := "Device locked by your administrator"
	if cause == domain.CauseScreenTime {
		message = fmt.Sprintf("Daily screen time of %d minutes is used up", st.DailyLimitMinutes)
	}

	if err := e.actuator.ShowLockScreen(message); err != nil {
		e.logger.Warn("lock screen action failed", zap.Error(err))
	}

	e.metrics.LockTransitions.WithLabelValues(string(cause)).Inc()
	e.logger.Info("device locked", zap.String("cause", string(cause)))
}

func (e *Enforcer) unlock(reason string) {
	if e.state == domain.StateUnlocked {
		return
	}

	e.state = domain.StateUnlocked
	e.lockCause = domain.CauseNone
	e.logger.Info("device unlocked", zap.String("reason", reason))
}

// rollDay resets the budget edge when the local calendar day changes. A
// lock held solely for screen time is released on the new day unless the
// administrator lock flag is still set.
func (e *Enforcer) rollDay(now time.Time) {
	day := now.Format("2006-01-02")
	if e.lastDay == "" {
		e.lastDay = day
		return
	}
	if day == e.lastDay {
		return
	}

	e.lastDay = day
	e.overBudget = false
	e.logger.Info("local midnight crossed, usage counters reset", zap.String("day", day))

	if e.state == domain.StateLocked && e.lockCause == domain.CauseScreenTime && !e.cache.Locked() {
		e.unlock("day_rollover")
	}
}
