package ledger

import (
	"time"

	"github.com/example/stock-ledger/internal/infrastructure/store"
)

// Claim is the pending claimed entry a caller holds on to. Its paired
// decrease entry is an implementation detail of the ledger.
type Claim = store.Entry

// Ledger is the replayed entry history of one resource. All availability
// figures are derived from the entries at query time; nothing is
// materialized per date.
type Ledger struct {
	ResourceID string
	Entries    []store.Entry
}

// Replay builds a ledger from the stored entries of a resource.
func Replay(resourceID string, entries []store.Entry) *Ledger {
	return &Ledger{ResourceID: resourceID, Entries: entries}
}

// Capacity sums completed increase and return entries: how big the stock
// could get if nothing had ever been taken. Decreases and claims are
// deliberately ignored; this figure serves reporting, not sale decisions.
func (l *Ledger) Capacity() int {
	total := 0
	for _, e := range l.Entries {
		if e.Status != store.StatusCompleted {
			continue
		}
		if e.Kind == store.KindIncrease || e.Kind == store.KindReturn {
			total += e.Quantity
		}
	}
	return total
}

// AvailableAt computes the units available at an instant.
//
// Completed non-claim entries count while unexpired. Pending claim markers
// whose window does not contain asOf add their quantity back, undoing the
// paired decrease for instants where the claim is not in force. This is how
// one ledger answers both "available now" and "available on day N", and how
// expired claims free stock with no write.
func (l *Ledger) AvailableAt(asOf time.Time) int {
	base := 0
	reinstated := 0
	for _, e := range l.Entries {
		switch {
		case e.Kind != store.KindClaimed && e.Status == store.StatusCompleted:
			if e.ExpiresAt == nil || e.ExpiresAt.After(asOf) {
				base += e.Quantity
			}
		case e.Kind == store.KindClaimed && e.Status == store.StatusPending:
			if !claimActiveAt(e, asOf) {
				reinstated += e.Quantity
			}
		}
	}
	if base+reinstated < 0 {
		return 0
	}
	return base + reinstated
}

// ClaimedAt sums pending claims whose window contains the instant.
func (l *Ledger) ClaimedAt(asOf time.Time) int {
	total := 0
	for _, e := range l.Entries {
		if e.Kind == store.KindClaimed && e.Status == store.StatusPending && claimActiveAt(e, asOf) {
			total += e.Quantity
		}
	}
	return total
}

// ActiveAndPlannedClaimed sums all unexpired pending claims regardless of
// their start date.
func (l *Ledger) ActiveAndPlannedClaimed(now time.Time) int {
	total := 0
	for _, e := range l.Entries {
		if e.Kind != store.KindClaimed || e.Status != store.StatusPending {
			continue
		}
		if e.ExpiresAt == nil || e.ExpiresAt.After(now) {
			total += e.Quantity
		}
	}
	return total
}

// FutureClaimed sums unexpired pending claims starting after the given
// instant.
func (l *Ledger) FutureClaimed(now time.Time, from time.Time) int {
	total := 0
	for _, e := range l.Entries {
		if e.Kind != store.KindClaimed || e.Status != store.StatusPending {
			continue
		}
		if e.ExpiresAt != nil && !e.ExpiresAt.After(now) {
			continue
		}
		if e.ClaimedFrom != nil && e.ClaimedFrom.After(from) {
			total += e.Quantity
		}
	}
	return total
}

// PendingClaims returns every pending claim entry.
func (l *Ledger) PendingClaims() []store.Entry {
	var claims []store.Entry
	for _, e := range l.Entries {
		if e.Kind == store.KindClaimed && e.Status == store.StatusPending {
			claims = append(claims, e)
		}
	}
	return claims
}

// PendingClaimsByReference returns pending claims attributed to a reference.
func (l *Ledger) PendingClaimsByReference(ref store.Reference) []store.Entry {
	var claims []store.Entry
	for _, e := range l.Entries {
		if e.Kind != store.KindClaimed || e.Status != store.StatusPending {
			continue
		}
		if e.Reference != nil && e.Reference.Type == ref.Type && e.Reference.ID == ref.ID {
			claims = append(claims, e)
		}
	}
	return claims
}

// findClaim returns the claim entry with the given id, if any.
func (l *Ledger) findClaim(claimID string) (store.Entry, bool) {
	for _, e := range l.Entries {
		if e.ID == claimID && e.Kind == store.KindClaimed {
			return e, true
		}
	}
	return store.Entry{}, false
}

// claimActiveAt reports whether a claim window contains the instant. The
// window is half-open: a claim expiring at T is already free at T.
func claimActiveAt(e store.Entry, t time.Time) bool {
	if e.ClaimedFrom != nil && e.ClaimedFrom.After(t) {
		return false
	}
	if e.ExpiresAt != nil && !e.ExpiresAt.After(t) {
		return false
	}
	return true
}

// boundariesWithin collects entry window boundaries strictly inside
// (from, until): pending claim starts and every expiry instant, including
// those of temporary decreases. These are the only instants where
// availability can change.
func (l *Ledger) boundariesWithin(from, until time.Time) []time.Time {
	var instants []time.Time
	add := func(t *time.Time) {
		if t != nil && t.After(from) && t.Before(until) {
			instants = append(instants, *t)
		}
	}
	for _, e := range l.Entries {
		switch {
		case e.Kind == store.KindClaimed && e.Status == store.StatusPending:
			add(e.ClaimedFrom)
			add(e.ExpiresAt)
		case e.Status == store.StatusCompleted:
			add(e.ExpiresAt)
		}
	}
	return instants
}
