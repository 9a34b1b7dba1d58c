// Package policy holds the locally cached device policy.
package policy

import (
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/parentalcompanion/agentd/internal/domain"
)

// Cache stores the latest known value of each policy dimension. Each
// dimension is replaced atomically and independently of the others, so
// readers never observe a torn update and never block. No cross-dimension
// locking exists: decisions never need two dimensions to be mutually
// consistent at the same instant.
//
// The cache is eventually consistent with the remote store; enforcement
// acts on whatever is cached at decision time.
type Cache struct {
	locked   atomic.Bool
	screen   atomic.Pointer[domain.ScreenTimePolicy]
	apps     atomic.Pointer[[]domain.AppRule]
	contacts atomic.Pointer[[]domain.ContactRule]
	fences   atomic.Pointer[[]domain.Geofence]
	locate   atomic.Bool

	dropped atomic.Int64

	logger *zap.Logger
}

// NewCache creates an empty cache. All dimensions start at their zero
// values until the first remote notification arrives.
func NewCache(logger *zap.Logger) *Cache {
	c := &Cache{logger: logger}
	c.screen.Store(&domain.ScreenTimePolicy{})
	apps := []domain.AppRule{}
	c.apps.Store(&apps)
	contacts := []domain.ContactRule{}
	c.contacts.Store(&contacts)
	fences := []domain.Geofence{}
	c.fences.Store(&fences)
	return c
}

// Apply replaces the cached value for exactly one dimension. A payload
// whose dynamic type does not match the dimension is dropped and the
// previous value retained.
func (c *Cache) Apply(ev domain.PolicyEvent) {
	switch ev.Dimension {
	case domain.DimLock:
		v, ok := ev.Value.(bool)
		if !ok {
			c.drop(ev)
			return
		}
		c.locked.Store(v)

	case domain.DimScreenTime:
		v, ok := ev.Value.(domain.ScreenTimePolicy)
		if !ok {
			c.drop(ev)
			return
		}
		c.screen.Store(&v)

	case domain.DimAppRules:
		v, ok := ev.Value.([]domain.AppRule)
		if !ok {
			c.drop(ev)
			return
		}
		c.apps.Store(&v)

	case domain.DimContacts:
		v, ok := ev.Value.([]domain.ContactRule)
		if !ok {
			c.drop(ev)
			return
		}
		c.contacts.Store(&v)

	case domain.DimGeofences:
		v, ok := ev.Value.([]domain.Geofence)
		if !ok {
			c.drop(ev)
			return
		}
		c.fences.Store(&v)

	case domain.DimLocateRequest:
		v, ok := ev.Value.(bool)
		if !ok {
			c.drop(ev)
			return
		}
		c.locate.Store(v)

	default:
		c.drop(ev)
	}
}

func (c *Cache) drop(ev domain.PolicyEvent) {
	c.dropped.Add(1)
	c.logger.Warn("dropping malformed policy update",
		zap.String("dimension", string(ev.Dimension)))
}

// Locked returns the cached administrator lock flag.
func (c *Cache) Locked() bool {
	return c.locked.Load()
}

// ScreenTime returns the cached screen-time budget.
func (c *Cache) ScreenTime() domain.ScreenTimePolicy {
	return *c.screen.Load()
}

// AppRules returns the cached per-app rule list.
func (c *Cache) AppRules() []domain.AppRule {
	return *c.apps.Load()
}

// Contacts returns the cached contact rule list.
func (c *Cache) Contacts() []domain.ContactRule {
	return *c.contacts.Load()
}

// Geofences returns the cached geofence list.
func (c *Cache) Geofences() []domain.Geofence {
	return *c.fences.Load()
}

// TakeLocateRequest consumes a pending "locate now" request. It returns
// true at most once per remote request; the remote flag itself is cleared
// separately via the sync client.
func (c *Cache) TakeLocateRequest() bool {
	return c.locate.CompareAndSwap(true, false)
}

// AllowedNumbers returns the phone numbers of all allowed contacts. The
// returned slice is a snapshot: it is not affected by later updates.
func (c *Cache) AllowedNumbers() []string {
	rules := c.Contacts()
	numbers := make([]string, 0, len(rules))
	for _, r := range rules {
		if r.Allowed && r.PhoneNumber != "" {
			numbers = append(numbers, r.PhoneNumber)
		}
	}
	return numbers
}

// BlockedPackages returns the set of blocked package ids.
func (c *Cache) BlockedPackages() map[string]bool {
	rules := c.AppRules()
	blocked := make(map[string]bool, len(rules))
	for _, r := range rules {
		if r.Blocked {
			blocked[r.PackageID] = true
		}
	}
	return blocked
}

// AppLimits returns the daily limit in minutes for every app carrying a
// nonzero limit.
func (c *Cache) AppLimits() map[string]int {
	rules := c.AppRules()
	limits := make(map[string]int)
	for _, r := range rules {
		if r.DailyLimitMinutes > 0 {
			limits[r.PackageID] = r.DailyLimitMinutes
		}
	}
	return limits
}

// DroppedEvents returns how many malformed updates were discarded.
func (c *Cache) DroppedEvents() int64 {
	return c.dropped.Load()
}
