// Package status adapts a scraped-status reconciliation machine to the
// simpler §3 Tender lifecycle: {published, closed, draft, cancelled},
// collapsed to a single read-time invariant — a published tender past
// its deadline reads as closed without a write.
package status

import (
	"time"

	"github.com/david/tender-finder/internal/models"
)

// Decision is the outcome of evaluating a tender's effective status at
// a point in time, along with the human-readable reason — kept as its
// own type (rather than inlining the computation at every call site)
// because §4.4's hard-filter step and §7's read-time invariant both
// need the same reasoning.
type Decision struct {
	EffectiveStatus models.TenderStatus
	Reason          string
}

// Evaluate applies the §3 invariant: "if status = published and
// deadline in past -> treat as closed on read".
func Evaluate(t models.Tender, now time.Time) Decision {
	if t.Status != models.TenderPublished {
		return Decision{EffectiveStatus: t.Status, Reason: "stored_status"}
	}
	if t.Deadline != nil && !t.Deadline.After(now) {
		return Decision{EffectiveStatus: models.TenderClosed, Reason: "deadline_passed"}
	}
	return Decision{EffectiveStatus: models.TenderPublished, Reason: "published_active"}
}

// IsOpenForMatching reports whether a tender should be considered a
// matching candidate at all: effectively published, with a deadline
// that is either absent (rolling/open-ended) or still within
// daysAhead days.
func IsOpenForMatching(t models.Tender, now time.Time, daysAhead int) bool {
	if Evaluate(t, now).EffectiveStatus != models.TenderPublished {
		return false
	}
	if t.Deadline == nil {
		return true
	}
	return t.DaysUntilDeadline(now) <= daysAhead
}
