package readmodel

import "time"

// Read store collections.
const (
	CollectionAvailability = "availability"
)

// AvailabilityReadModel is the denormalized availability summary kept by the
// projector. It reflects the ledger as of the last processed movement event;
// the read path tolerates this staleness.
type AvailabilityReadModel struct {
	ResourceID       string    `json:"resource_id"`
	Available        int       `json:"available"`
	CurrentlyClaimed int       `json:"currently_claimed"`
	PlannedClaimed   int       `json:"planned_claimed"`
	Capacity         int       `json:"capacity"`
	UpdatedAt        time.Time `json:"updated_at"`
}
