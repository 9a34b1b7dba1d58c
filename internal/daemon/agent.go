// Package daemon runs the agent: one scheduling goroutine drives the
// enforcement engine from timers and remote policy events.
package daemon

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/parentalcompanion/agentd/internal/domain"
	"github.com/parentalcompanion/agentd/internal/metrics"
	"github.com/parentalcompanion/agentd/internal/policy"
	"github.com/parentalcompanion/agentd/internal/usecase"
)

// Config holds the agent's periodic timer settings.
type Config struct {
	UsagePoll    time.Duration // usage sampling + enforcement cycle
	UsagePublish time.Duration // usage republish to the remote store
	PositionPoll time.Duration // position sampling + geofence evaluation
	Heartbeat    time.Duration // liveness heartbeat (local + remote)
	WriteTimeout time.Duration // per-write deadline for remote writes
}

// DefaultConfig returns default agent timer settings.
func DefaultConfig() Config {
	return Config{
		UsagePoll:    2 * time.Second,
		UsagePublish: time.Minute,
		PositionPoll: 5 * time.Minute,
		Heartbeat:    30 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
}

// Agent wires the samplers, the policy cache, the enforcement engine and
// the sync collaborator together. A single goroutine consumes all timers
// and policy events, so every engine method runs serialized; only the
// cache is touched concurrently (by the commgate bridge) and it is safe
// per dimension.
type Agent struct {
	config   Config
	cache    *policy.Cache
	enforcer *usecase.Enforcer
	usage    domain.UsageSampler
	position domain.PositionSampler
	sync     domain.SyncClient
	registry domain.StatusRegistry
	events   <-chan domain.PolicyEvent
	metrics  *metrics.Set
	logger   *zap.Logger

	status          domain.AgentStatus
	droppedBaseline int64
}

// NewAgent creates an agent. The events channel is the remote policy
// feed; it may close early (poller shut down) without stopping the agent.
func NewAgent(
	config Config,
	cache *policy.Cache,
	enforcer *usecase.Enforcer,
	usage domain.UsageSampler,
	position domain.PositionSampler,
	sc domain.SyncClient,
	registry domain.StatusRegistry,
	events <-chan domain.PolicyEvent,
	m *metrics.Set,
	status domain.AgentStatus,
	logger *zap.Logger,
) *Agent {
	return &Agent{
		config:   config,
		cache:    cache,
		enforcer: enforcer,
		usage:    usage,
		position: position,
		sync:     sc,
		registry: registry,
		events:   events,
		metrics:  m,
		status:   status,
		logger:   logger,
	}
}

// Run starts the scheduling loop. It blocks until ctx is canceled, then
// flushes a final offline heartbeat and clears the status file.
func (a *Agent) Run(ctx context.Context) error {
	if err := a.registry.Register(a.status); err != nil {
		a.logger.Error("failed to register agent status", zap.Error(err))
		return err
	}
	defer a.shutdown()

	a.logger.Info("agent started",
		zap.Int("pid", a.status.PID),
		zap.String("device_id", a.status.DeviceID))

	// First cycle immediately; the tickers take over afterwards.
	a.tickHeartbeat(ctx)
	a.tickUsage(ctx)
	a.tickPosition(ctx)

	usageTicker := time.NewTicker(a.config.UsagePoll)
	publishTicker := time.NewTicker(a.config.UsagePublish)
	positionTicker := time.NewTicker(a.config.PositionPoll)
	heartbeatTicker := time.NewTicker(a.config.Heartbeat)

	defer func() {
		usageTicker.Stop()
		publishTicker.Stop()
		positionTicker.Stop()
		heartbeatTicker.Stop()
	}()

	events := a.events
	for {
		select {
		case <-ctx.Done():
			a.logger.Info("agent stopping")
			return ctx.Err()

		case ev, ok := <-events:
			if !ok {
				// Poller gone; local enforcement continues on the
				// last cached policy.
				a.logger.Warn("policy event feed closed")
				events = nil
				continue
			}
			a.handlePolicyEvent(ctx, ev)

		case <-usageTicker.C:
			a.tickUsage(ctx)

		case <-publishTicker.C:
			a.publishUsage(ctx)

		case <-positionTicker.C:
			a.tickPosition(ctx)

		case <-heartbeatTicker.C:
			a.tickHeartbeat(ctx)
		}
	}
}

// handlePolicyEvent commits one dimension change to the cache and runs
// the dimension's immediate reaction.
func (a *Agent) handlePolicyEvent(ctx context.Context, ev domain.PolicyEvent) {
	a.cache.Apply(ev)

	if dropped := a.cache.DroppedEvents(); dropped > a.droppedBaseline {
		a.metrics.DroppedPolicyEvents.Add(float64(dropped - a.droppedBaseline))
		a.droppedBaseline = dropped
		return
	}

	a.logger.Debug("policy updated", zap.String("dimension", string(ev.Dimension)))

	switch ev.Dimension {
	case domain.DimLock:
		a.enforcer.ApplyLockFlag(a.cache.Locked())

	case domain.DimScreenTime, domain.DimAppRules:
		// Re-check budgets between samples so a tightened limit takes
		// effect without waiting for the next usage tick.
		a.enforcer.ReevaluateBudget()

	case domain.DimLocateRequest:
		if a.cache.TakeLocateRequest() {
			a.locateNow(ctx)
		}
	}
}

// tickUsage runs one sample-and-enforce cycle.
func (a *Agent) tickUsage(ctx context.Context) {
	snap, err := a.usage.Sample(ctx)
	if err != nil {
		a.logger.Warn("usage sampling failed", zap.Error(err))
		return
	}
	a.enforcer.ObserveUsage(ctx, snap)
}

// tickPosition samples the position, evaluates geofences and republishes
// the fix. A nil fix skips the cycle.
func (a *Agent) tickPosition(ctx context.Context) {
	pos, err := a.position.Sample(ctx)
	if err != nil {
		a.logger.Warn("position sampling failed", zap.Error(err))
		return
	}
	if pos == nil {
		return
	}

	a.enforcer.ObservePosition(ctx, *pos)

	wctx, cancel := a.writeContext(ctx)
	defer cancel()
	if err := a.sync.PublishPosition(wctx, *pos); err != nil {
		a.metrics.PublishFailures.Inc()
		a.logger.Warn("position publish failed", zap.Error(err))
	}
}

// locateNow serves an on-demand location request: one fresh fix published
// immediately, then the remote request flag is cleared. Both writes are
// best-effort; a lost clear re-triggers the request next poll, which is
// harmless.
func (a *Agent) locateNow(ctx context.Context) {
	a.logger.Info("on-demand locate requested")

	pos, err := a.position.Sample(ctx)
	if err != nil || pos == nil {
		a.logger.Warn("locate request could not be served", zap.Error(err))
		return
	}

	wctx, cancel := a.writeContext(ctx)
	defer cancel()

	if err := a.sync.PublishPosition(wctx, *pos); err != nil {
		a.metrics.PublishFailures.Inc()
		a.logger.Warn("locate publish failed", zap.Error(err))
		return
	}
	if err := a.sync.ClearLocateRequest(wctx); err != nil {
		a.logger.Warn("locate clear failed", zap.Error(err))
	}
}

func (a *Agent) publishUsage(ctx context.Context) {
	wctx, cancel := a.writeContext(ctx)
	defer cancel()
	a.enforcer.PublishUsage(wctx)
}

// tickHeartbeat refreshes local liveness and the remote online flag.
func (a *Agent) tickHeartbeat(ctx context.Context) {
	if err := a.registry.UpdateHeartbeat(); err != nil {
		a.logger.Warn("failed to update heartbeat", zap.Error(err))
	}

	wctx, cancel := a.writeContext(ctx)
	defer cancel()
	if err := a.sync.PublishHeartbeat(wctx, true); err != nil {
		a.metrics.PublishFailures.Inc()
		a.logger.Debug("heartbeat publish failed", zap.Error(err))
	}
}

// shutdown flushes a final offline heartbeat on a fresh context (the run
// context is already canceled) and removes the status file.
func (a *Agent) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), a.config.WriteTimeout)
	defer cancel()

	if err := a.sync.PublishHeartbeat(ctx, false); err != nil {
		a.logger.Debug("offline heartbeat failed", zap.Error(err))
	}
	if err := a.registry.Clear(); err != nil {
		a.logger.Warn("failed to clear status file", zap.Error(err))
	}
	a.logger.Info("agent stopped")
}

func (a *Agent) writeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if a.config.WriteTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, a.config.WriteTimeout)
}

// Handle controls a running agent.
type Handle struct {
	cancel context.CancelFunc
	done   chan struct{}
	err    error
}

// Start runs the agent in a goroutine and returns a handle for shutdown.
func Start(agent *Agent) *Handle {
	ctx, cancel := context.WithCancel(context.Background())
	h := &Handle{cancel: cancel, done: make(chan struct{})}

	go func() {
		defer close(h.done)
		h.err = agent.Run(ctx)
	}()

	return h
}

// Stop cancels the agent and waits for the loop (including the shutdown
// flush) to finish, bounded by ctx.
func (h *Handle) Stop(ctx context.Context) error {
	h.cancel()
	select {
	case <-h.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
