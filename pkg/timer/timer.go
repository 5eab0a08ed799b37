// Package timer computes the advisory visit countdown shown for visitors
// that are timed in. The authoritative timer lives on the backend.
package timer

import (
	"time"

	"github.com/denysvitali/odi-gate/pkg/models"
)

const VisitWindow = 180 * time.Minute

type Tier string

const (
	TierCritical Tier = "critical"
	TierUrgent   Tier = "urgent"
	TierActive   Tier = "active"
)

type VisitTimer struct {
	TimeIn           time.Time `json:"timeIn"`
	RemainingMinutes int       `json:"timeRemainingMinutes"`
	Tier             Tier      `json:"tier"`
}

// RemainingMinutes is the visit window minus the whole minutes elapsed since
// timeIn, never negative.
func RemainingMinutes(timeIn, now time.Time) int {
	elapsed := int(now.Sub(timeIn) / time.Minute)
	if elapsed < 0 {
		elapsed = 0
	}
	remaining := int(VisitWindow/time.Minute) - elapsed
	if remaining < 0 {
		return 0
	}
	return remaining
}

func TierFor(remainingMinutes int) Tier {
	switch {
	case remainingMinutes < 10:
		return TierCritical
	case remainingMinutes < 30:
		return TierUrgent
	default:
		return TierActive
	}
}

func Compute(timeIn, now time.Time) VisitTimer {
	remaining := RemainingMinutes(timeIn, now)
	return VisitTimer{
		TimeIn:           timeIn,
		RemainingMinutes: remaining,
		Tier:             TierFor(remaining),
	}
}

// ForPerson returns the timer of a visit in progress, or false when the
// person is not currently timed in.
func ForPerson(p *models.PersonRecord, now time.Time) (VisitTimer, bool) {
	if p == nil || !p.HasTimedIn || p.HasTimedOut || p.TimeIn == nil {
		return VisitTimer{}, false
	}
	return Compute(*p.TimeIn, now), true
}
