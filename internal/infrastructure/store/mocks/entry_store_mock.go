package mocks

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/example/stock-ledger/internal/infrastructure/store"
	"github.com/google/uuid"
)

// MockEntryStore is a mock implementation of EntryStoreInterface for testing
type MockEntryStore struct {
	mu      sync.RWMutex
	entries map[string][]store.Entry

	// For tracking calls in tests
	AppendCalls  []AppendCall
	ReleaseCalls []ReleaseCall
	AppendErr    error
	ReleaseErr   error
	failAfter    int // -1 = disabled

	// Now lets tests control the CreatedAt of appended entries
	Now func() time.Time
}

// AppendCall records parameters passed to Append
type AppendCall struct {
	ResourceID string
	Drafts     []store.Draft
}

// ReleaseCall records parameters passed to Release
type ReleaseCall struct {
	ResourceID string
	ClaimID    string
	Return     store.Draft
}

// NewMockEntryStore creates a new MockEntryStore
func NewMockEntryStore() *MockEntryStore {
	return &MockEntryStore{
		entries:     make(map[string][]store.Entry),
		AppendCalls: make([]AppendCall, 0),
		Now:         time.Now,
		failAfter:   -1,
	}
}

// FailAppendAfter makes Append fail once n calls have succeeded. A negative
// n disables the failure again.
func (m *MockEntryStore) FailAppendAfter(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failAfter = n
}

// Append stores entries in memory
func (m *MockEntryStore) Append(ctx context.Context, resourceID string, drafts ...store.Draft) ([]store.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.AppendCalls = append(m.AppendCalls, AppendCall{ResourceID: resourceID, Drafts: drafts})

	if m.AppendErr != nil {
		return nil, m.AppendErr
	}
	if m.failAfter >= 0 && len(m.AppendCalls) > m.failAfter {
		return nil, errors.New("append failed")
	}

	version := len(m.entries[resourceID])
	appended := make([]store.Entry, 0, len(drafts))
	for _, d := range drafts {
		version++
		entry := store.Entry{
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
			CreatedAt:   m.Now(),
		}
		m.entries[resourceID] = append(m.entries[resourceID], entry)
		appended = append(appended, entry)
	}
	return appended, nil
}

// Entries returns entries for a resource
func (m *MockEntryStore) Entries(ctx context.Context, resourceID string) ([]store.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entries := make([]store.Entry, len(m.entries[resourceID]))
	copy(entries, m.entries[resourceID])
	return entries, nil
}

// AllEntries returns every entry across all resources
func (m *MockEntryStore) AllEntries(ctx context.Context) ([]store.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var all []store.Entry
	for _, entries := range m.entries {
		all = append(all, entries...)
	}
	return all, nil
}

// Release completes a pending claim and appends the return draft
func (m *MockEntryStore) Release(ctx context.Context, resourceID, claimID string, ret store.Draft) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.ReleaseCalls = append(m.ReleaseCalls, ReleaseCall{ResourceID: resourceID, ClaimID: claimID, Return: ret})

	if m.ReleaseErr != nil {
		return false, m.ReleaseErr
	}

	idx := -1
	for i, e := range m.entries[resourceID] {
		if e.ID == claimID && e.Kind == store.KindClaimed {
			idx = i
			break
		}
	}
	if idx < 0 {
		return false, store.ErrEntryNotFound
	}
	if m.entries[resourceID][idx].Status != store.StatusPending {
		return false, nil
	}
	m.entries[resourceID][idx].Status = store.StatusCompleted

	entry := store.Entry{
		ID:         uuid.New().String(),
		ResourceID: resourceID,
		Quantity:   ret.Quantity,
		Kind:       ret.Kind,
		Status:     ret.Status,
		Note:       ret.Note,
		Reference:  ret.Reference,
		Version:    len(m.entries[resourceID]) + 1,
		CreatedAt:  m.Now(),
	}
	m.entries[resourceID] = append(m.entries[resourceID], entry)
	return true, nil
}

// Reset clears all entries and recorded calls
func (m *MockEntryStore) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = make(map[string][]store.Entry)
	m.AppendCalls = make([]AppendCall, 0)
	m.ReleaseCalls = nil
	m.AppendErr = nil
	m.ReleaseErr = nil
	m.failAfter = -1
}

// SetEntries sets entries directly for testing
func (m *MockEntryStore) SetEntries(resourceID string, entries []store.Entry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[resourceID] = entries
}
