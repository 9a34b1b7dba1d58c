// Package sampler implements the usage and position samplers.
package sampler

import (
	"context"
	"os"
	"time"

	"github.com/shirou/gopsutil/v3/process"
	"go.uber.org/zap"

	"github.com/parentalcompanion/agentd/internal/domain"
)

// UsageSampler derives foreground identity and per-app foreground minutes
// from the OS process table via gopsutil.
//
// Desktop systems expose no usage-stats service, so this is an
// approximation: "foreground" is the user-owned process that consumed the
// most CPU since the previous sample, and per-app minutes count process
// lifetime clipped to the midnight-to-now window. Both are monotonically
// non-decreasing within a day and reset naturally at local midnight.
type UsageSampler struct {
	logger *zap.Logger
	uid    int32
	now    func() time.Time

	prevCPU map[int32]float64
}

// NewUsageSampler creates a sampler for processes owned by the current user.
func NewUsageSampler(logger *zap.Logger) *UsageSampler {
	return &UsageSampler{
		logger:  logger,
		uid:     int32(os.Getuid()),
		now:     time.Now,
		prevCPU: make(map[int32]float64),
	}
}

// Sample returns the current usage observation. When the process table is
// unreadable it returns an empty snapshot, not an error: the caller treats
// that as "no observation this cycle".
func (s *UsageSampler) Sample(ctx context.Context) (domain.UsageSnapshot, error) {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		s.logger.Debug("process table unavailable", zap.Error(err))
		return domain.UsageSnapshot{}, nil
	}

	now := s.now()
	midnight := StartOfDay(now)
	elapsed := int(now.Sub(midnight).Minutes())

	perApp := make(map[string]int)
	nextCPU := make(map[int32]float64, len(procs))

	var foreground string
	var bestDelta float64

	for _, p := range procs {
		if !s.ownedByUser(ctx, p) {
			continue
		}

		name, err := p.NameWithContext(ctx)
		if err != nil || name == "" {
			continue // process may have exited
		}

		createMillis, err := p.CreateTimeWithContext(ctx)
		if err != nil {
			continue
		}
		started := time.UnixMilli(createMillis)
		from := started
		if from.Before(midnight) {
			from = midnight
		}
		minutes := int(now.Sub(from).Minutes())
		if minutes < 0 {
			minutes = 0
		}
		if minutes > perApp[name] {
			perApp[name] = minutes
		}

		times, err := p.TimesWithContext(ctx)
		if err != nil {
			continue
		}
		total := times.User + times.System
		nextCPU[p.Pid] = total
		if delta := total - s.prevCPU[p.Pid]; delta > bestDelta {
			bestDelta = delta
			foreground = name
		}
	}

	s.prevCPU = nextCPU

	// Total foreground time cannot exceed the sampling window.
	total := 0
	for _, m := range perApp {
		total += m
	}
	if total > elapsed {
		total = elapsed
	}

	return domain.UsageSnapshot{
		ForegroundPackageID:     foreground,
		TotalForegroundMinutes:  total,
		PerAppForegroundMinutes: perApp,
		SampledAt:               now,
	}, nil
}

func (s *UsageSampler) ownedByUser(ctx context.Context, p *process.Process) bool {
	uids, err := p.UidsWithContext(ctx)
	if err != nil {
		return false
	}
	for _, uid := range uids {
		if uid == s.uid {
			return true
		}
	}
	return false
}

// StartOfDay returns local midnight of the day containing t.
func StartOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// Ensure UsageSampler implements domain.UsageSampler.
var _ domain.UsageSampler = (*UsageSampler)(nil)
