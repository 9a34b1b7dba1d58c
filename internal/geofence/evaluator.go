// Package geofence evaluates position samples against configured fences
// and detects enter/exit transitions between consecutive samples.
package geofence

import (
	"math"

	"github.com/parentalcompanion/agentd/internal/domain"
)

const earthRadiusMeters = 6371000.0

// Distance returns the great-circle distance in meters between two
// coordinates, using the haversine formula.
func Distance(lat1, lon1, lat2, lon2 float64) float64 {
	phi1 := lat1 * math.Pi / 180
	phi2 := lat2 * math.Pi / 180
	dPhi := (lat2 - lat1) * math.Pi / 180
	dLambda := (lon2 - lon1) * math.Pi / 180

	a := math.Sin(dPhi/2)*math.Sin(dPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(dLambda/2)*math.Sin(dLambda/2)
	return earthRadiusMeters * 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}

// Evaluate computes membership for every active fence and emits a
// transition when membership differs from the prior observation and the
// notify flag for that direction is set.
//
// A fence with no prior observation (cold start, newly added, or just
// reactivated) records a baseline and fires nothing this cycle. Inactive
// fences are skipped and their tracked state discarded, so reactivation
// starts from a clean slate. A distance exactly equal to the radius
// counts as inside.
func Evaluate(pos domain.Position, fences []domain.Geofence, prior map[string]bool) (map[string]bool, []domain.GeofenceTransition) {
	next := make(map[string]bool, len(fences))
	var transitions []domain.GeofenceTransition

	for _, f := range fences {
		if !f.Active {
			continue
		}

		dist := Distance(pos.Latitude, pos.Longitude, f.Latitude, f.Longitude)
		inside := dist <= float64(f.RadiusMeters)

		was, observed := prior[f.ID]
		if observed && inside != was {
			if inside && f.NotifyOnEnter {
				transitions = append(transitions, domain.GeofenceTransition{
					FenceID:   f.ID,
					FenceName: f.Name,
					Direction: domain.FenceEntered,
				})
			} else if !inside && f.NotifyOnExit {
				transitions = append(transitions, domain.GeofenceTransition{
					FenceID:   f.ID,
					FenceName: f.Name,
					Direction: domain.FenceLeft,
				})
			}
		}

		next[f.ID] = inside
	}

	return next, transitions
}
