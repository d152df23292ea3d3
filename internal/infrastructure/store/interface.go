package store

import (
	"context"
	"errors"
)

var ErrEntryNotFound = errors.New("ledger entry not found")

// EntryStoreInterface defines the interface for stock entry stores.
//
// Append writes all drafts atomically: either every entry of a claim pair is
// stored or none is. Release flips a pending claim entry to completed and
// appends the compensating return entry in the same unit of work; it returns
// false without writing anything when the claim is already completed.
type EntryStoreInterface interface {
	Append(ctx context.Context, resourceID string, drafts ...Draft) ([]Entry, error)
	Entries(ctx context.Context, resourceID string) ([]Entry, error)
	AllEntries(ctx context.Context) ([]Entry, error)
	Release(ctx context.Context, resourceID, claimID string, ret Draft) (bool, error)
}
