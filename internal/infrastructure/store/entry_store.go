package store

import (
	"context"
	"sync"
	"time"

	"github.com/example/stock-ledger/internal/infrastructure/kafka"
	"github.com/google/uuid"
)

// EntryStore keeps stock entries in memory and publishes movement events.
type EntryStore struct {
	mu       sync.RWMutex
	entries  map[string][]Entry // resourceID -> entries
	producer *kafka.Producer
}

func NewEntryStore(producer *kafka.Producer) *EntryStore {
	return &EntryStore{
		entries:  make(map[string][]Entry),
		producer: producer,
	}
}

// Append stores the drafts as entries of one resource and publishes them.
func (es *EntryStore) Append(ctx context.Context, resourceID string, drafts ...Draft) ([]Entry, error) {
	es.mu.Lock()
	version := len(es.entries[resourceID])
	appended := make([]Entry, 0, len(drafts))
	now := time.Now()
	for _, d := range drafts {
		version++
		entry := Entry{
			ID:          uuid.New().String(),
			ResourceID:  resourceID,
			Quantity:    d.Quantity,
			Kind:        d.Kind,
			Status:      d.Status,
			ClaimedFrom: d.ClaimedFrom,
			ExpiresAt:   d.ExpiresAt,
			Note:        d.Note,
			Reference:   d.Reference,
			Version:     version,
			CreatedAt:   now,
		}
		es.entries[resourceID] = append(es.entries[resourceID], entry)
		appended = append(appended, entry)
	}
	es.mu.Unlock()

	for i := range appended {
		if err := es.publishAppended(ctx, &appended[i]); err != nil {
			return nil, err
		}
	}

	return appended, nil
}

// Entries returns all entries of a resource in append order.
func (es *EntryStore) Entries(ctx context.Context, resourceID string) ([]Entry, error) {
	es.mu.RLock()
	defer es.mu.RUnlock()

	entries := make([]Entry, len(es.entries[resourceID]))
	copy(entries, es.entries[resourceID])
	return entries, nil
}

// AllEntries returns every entry across all resources, for replay.
func (es *EntryStore) AllEntries(ctx context.Context) ([]Entry, error) {
	es.mu.RLock()
	defer es.mu.RUnlock()

	var all []Entry
	for _, entries := range es.entries {
		all = append(all, entries...)
	}
	return all, nil
}

// Release completes a pending claim entry and appends the return draft.
// Returns false when the claim is already completed.
func (es *EntryStore) Release(ctx context.Context, resourceID, claimID string, ret Draft) (bool, error) {
	es.mu.Lock()

	idx := -1
	for i, e := range es.entries[resourceID] {
		if e.ID == claimID && e.Kind == KindClaimed {
			idx = i
			break
		}
	}
	if idx < 0 {
		es.mu.Unlock()
		return false, ErrEntryNotFound
	}
	if es.entries[resourceID][idx].Status != StatusPending {
		es.mu.Unlock()
		return false, nil
	}
	es.entries[resourceID][idx].Status = StatusCompleted

	version := len(es.entries[resourceID]) + 1
	entry := Entry{
		ID:          uuid.New().String(),
		ResourceID:  resourceID,
		Quantity:    ret.Quantity,
		Kind:        ret.Kind,
		Status:      ret.Status,
		ClaimedFrom: ret.ClaimedFrom,
		ExpiresAt:   ret.ExpiresAt,
		Note:        ret.Note,
		Reference:   ret.Reference,
		Version:     version,
		CreatedAt:   time.Now(),
	}
	es.entries[resourceID] = append(es.entries[resourceID], entry)
	es.mu.Unlock()

	if err := es.publishAppended(ctx, &entry); err != nil {
		return true, err
	}
	if es.producer != nil {
		event := MovementEvent{
			Type:       EventClaimReleased,
			ResourceID: resourceID,
			EntryID:    claimID,
			Timestamp:  time.Now(),
		}
		if err := es.producer.Publish(ctx, resourceID, event); err != nil {
			return true, err
		}
	}

	return true, nil
}

func (es *EntryStore) publishAppended(ctx context.Context, entry *Entry) error {
	if es.producer == nil {
		return nil
	}
	event := MovementEvent{
		Type:       EventEntryAppended,
		ResourceID: entry.ResourceID,
		Entry:      entry,
		Timestamp:  time.Now(),
	}
	return es.producer.Publish(ctx, entry.ResourceID, event)
}
