package remote

import (
	"context"
	"reflect"
	"time"

	"go.uber.org/zap"

	"github.com/parentalcompanion/agentd/internal/domain"
)

// Watcher polls the remote policy document and emits one PolicyEvent per
// changed dimension. A single goroutine produces all events, so ordering
// per dimension is preserved. The first successful fetch hydrates every
// dimension.
type Watcher struct {
	client   *Client
	interval time.Duration
	logger   *zap.Logger

	prev *policyDocument
}

// NewWatcher creates a watcher polling at the given interval.
func NewWatcher(client *Client, interval time.Duration, logger *zap.Logger) *Watcher {
	return &Watcher{client: client, interval: interval, logger: logger}
}

// Watch starts polling and returns the event channel. The channel closes
// when ctx is canceled. A failed or malformed fetch skips the whole poll;
// the previous document stays authoritative and the next tick retries.
func (w *Watcher) Watch(ctx context.Context) <-chan domain.PolicyEvent {
	ch := make(chan domain.PolicyEvent, 16)

	go func() {
		defer close(ch)

		w.poll(ctx, ch)

		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				w.poll(ctx, ch)
			}
		}
	}()

	return ch
}

func (w *Watcher) poll(ctx context.Context, ch chan<- domain.PolicyEvent) {
	doc, err := w.client.FetchPolicy(ctx)
	if err != nil {
		w.logger.Debug("policy poll failed", zap.Error(err))
		return
	}

	for _, ev := range w.diff(doc) {
		select {
		case ch <- ev:
		case <-ctx.Done():
			return
		}
	}
	w.prev = doc
}

// diff compares the fresh document against the previous one dimension by
// dimension. With no previous document every dimension is emitted.
func (w *Watcher) diff(doc *policyDocument) []domain.PolicyEvent {
	var events []domain.PolicyEvent

	if w.prev == nil || doc.IsLocked != w.prev.IsLocked {
		events = append(events, domain.PolicyEvent{
			Dimension: domain.DimLock,
			Value:     doc.IsLocked,
		})
	}

	if w.prev == nil || doc.ScreenTime != w.prev.ScreenTime {
		events = append(events, domain.PolicyEvent{
			Dimension: domain.DimScreenTime,
			Value: domain.ScreenTimePolicy{
				DailyLimitMinutes: doc.ScreenTime.DailyLimitMinutes,
				UsedMinutes:       doc.ScreenTime.UsedMinutesToday,
			},
		})
	}

	if w.prev == nil || !reflect.DeepEqual(doc.Apps, w.prev.Apps) {
		rules := make([]domain.AppRule, 0, len(doc.Apps))
		for _, a := range doc.Apps {
			rules = append(rules, domain.AppRule{
				PackageID:         a.PackageID,
				DisplayName:       a.DisplayName,
				Blocked:           a.Blocked,
				DailyLimitMinutes: a.DailyLimitMinutes,
				UsedMinutesToday:  a.UsedMinutesToday,
			})
		}
		events = append(events, domain.PolicyEvent{
			Dimension: domain.DimAppRules,
			Value:     rules,
		})
	}

	if w.prev == nil || !reflect.DeepEqual(doc.Contacts, w.prev.Contacts) {
		rules := make([]domain.ContactRule, 0, len(doc.Contacts))
		for _, c := range doc.Contacts {
			rules = append(rules, domain.ContactRule{
				ContactID:   c.ContactID,
				DisplayName: c.DisplayName,
				PhoneNumber: c.PhoneNumber,
				Allowed:     c.Allowed,
			})
		}
		events = append(events, domain.PolicyEvent{
			Dimension: domain.DimContacts,
			Value:     rules,
		})
	}

	if w.prev == nil || !reflect.DeepEqual(doc.Geofences, w.prev.Geofences) {
		fences := make([]domain.Geofence, 0, len(doc.Geofences))
		for _, f := range doc.Geofences {
			fences = append(fences, domain.Geofence{
				ID:            f.ID,
				Name:          f.Name,
				Latitude:      f.Latitude,
				Longitude:     f.Longitude,
				RadiusMeters:  f.RadiusMeters,
				Active:        f.Active,
				NotifyOnEnter: f.NotifyOnEnter,
				NotifyOnExit:  f.NotifyOnExit,
			})
		}
		events = append(events, domain.PolicyEvent{
			Dimension: domain.DimGeofences,
			Value:     fences,
		})
	}

	// Locate requests are level-triggered: while the remote flag stays
	// set the dimension is re-emitted every poll, so a request whose
	// publish or clear failed is retried until the flag actually drops.
	if doc.RequestLocation {
		events = append(events, domain.PolicyEvent{
			Dimension: domain.DimLocateRequest,
			Value:     true,
		})
	} else if w.prev == nil || w.prev.RequestLocation {
		events = append(events, domain.PolicyEvent{
			Dimension: domain.DimLocateRequest,
			Value:     false,
		})
	}

	return events
}
