package store

import (
	"time"
)

// Kind classifies a stock movement.
type Kind string

const (
	KindIncrease Kind = "increase"
	KindDecrease Kind = "decrease"
	KindReturn   Kind = "return"
	KindClaimed  Kind = "claimed"
)

// Status tracks a pending claim marker. Every other entry is completed on
// creation.
type Status string

const (
	StatusCompleted Status = "completed"
	StatusPending   Status = "pending"
)

// Reference is an opaque (type, id) pair attributing an entry to an external
// object, e.g. an order. It is never interpreted.
type Reference struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

// Entry is one append-only stock movement for a resource. Entries are
// immutable once written except for Status, which flips from pending to
// completed when a claim is released. No entry is ever deleted.
type Entry struct {
	ID          string     `json:"id"`
	ResourceID  string     `json:"resource_id"`
	Quantity    int        `json:"quantity"` // positive adds capacity, negative removes it
	Kind        Kind       `json:"kind"`
	Status      Status     `json:"status"`
	ClaimedFrom *time.Time `json:"claimed_from,omitempty"` // nil = effective immediately
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`   // nil = permanent
	Note        string     `json:"note,omitempty"`
	Reference   *Reference `json:"reference,omitempty"`
	Version     int        `json:"version"`
	CreatedAt   time.Time  `json:"created_at"`
}

// Draft carries the caller-supplied fields of an entry; the store assigns
// ID, Version and CreatedAt on append.
type Draft struct {
	Quantity    int
	Kind        Kind
	Status      Status
	ClaimedFrom *time.Time
	ExpiresAt   *time.Time
	Note        string
	Reference   *Reference
}

// Movement event types published to Kafka.
const (
	EventEntryAppended = "EntryAppended"
	EventClaimReleased = "ClaimReleased"
)

// MovementEvent is the wire form of a ledger change, consumed by the
// projector and the low-stock notifier.
type MovementEvent struct {
	Type       string    `json:"type"`
	ResourceID string    `json:"resource_id"`
	Entry      *Entry    `json:"entry,omitempty"`    // set for EntryAppended
	EntryID    string    `json:"entry_id,omitempty"` // set for ClaimReleased
	Timestamp  time.Time `json:"timestamp"`
}
