package projection

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/example/stock-ledger/internal/domain/ledger"
	"github.com/example/stock-ledger/internal/infrastructure/store"
	"github.com/example/stock-ledger/internal/readmodel"
)

// Projector folds movement events into availability read models. It keeps
// its own copy of each resource's entries so a summary can be recomputed
// from the full ledger on every event; availability is not a counter that
// can be incremented, claims are windowed.
type Projector struct {
	readStore store.ReadStoreInterface
	clock     func() time.Time

	mu      sync.Mutex
	entries map[string][]store.Entry
	seen    map[string]bool // entry ids, replay and live consumption overlap
}

func NewProjector(readStore store.ReadStoreInterface) *Projector {
	return &Projector{
		readStore: readStore,
		clock:     time.Now,
		entries:   make(map[string][]store.Entry),
		seen:      make(map[string]bool),
	}
}

// HandleEvent processes one movement event from Kafka.
func (p *Projector) HandleEvent(ctx context.Context, key, value []byte) error {
	var event store.MovementEvent
	if err := json.Unmarshal(value, &event); err != nil {
		return err
	}

	log.Printf("[Projector] Received %s for resource %s", event.Type, event.ResourceID)

	switch event.Type {
	case store.EventEntryAppended:
		if event.Entry == nil {
			return nil
		}
		p.applyAppended(event.ResourceID, *event.Entry)
	case store.EventClaimReleased:
		p.applyReleased(event.ResourceID, event.EntryID)
	default:
		return nil
	}

	return p.project(event.ResourceID)
}

// Replay seeds the projector from stored entries, e.g. at boot before the
// consumer starts.
func (p *Projector) Replay(ctx context.Context, entryStore store.EntryStoreInterface) error {
	entries, err := entryStore.AllEntries(ctx)
	if err != nil {
		return err
	}

	touched := make(map[string]bool)
	for _, e := range entries {
		p.applyAppended(e.ResourceID, e)
		touched[e.ResourceID] = true
	}

	for resourceID := range touched {
		if err := p.project(resourceID); err != nil {
			return err
		}
	}
	log.Printf("[Projector] Replayed %d entries across %d resources", len(entries), len(touched))
	return nil
}

func (p *Projector) applyAppended(resourceID string, entry store.Entry) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.seen[entry.ID] {
		return
	}
	p.seen[entry.ID] = true
	p.entries[resourceID] = append(p.entries[resourceID], entry)
}

func (p *Projector) applyReleased(resourceID, entryID string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i, e := range p.entries[resourceID] {
		if e.ID == entryID {
			p.entries[resourceID][i].Status = store.StatusCompleted
			return
		}
	}
}

// project recomputes the availability summary of one resource.
func (p *Projector) project(resourceID string) error {
	p.mu.Lock()
	entries := make([]store.Entry, len(p.entries[resourceID]))
	copy(entries, p.entries[resourceID])
	p.mu.Unlock()

	l := ledger.Replay(resourceID, entries)
	now := p.clock()

	return p.readStore.Set(readmodel.CollectionAvailability, resourceID, &readmodel.AvailabilityReadModel{
		ResourceID:       resourceID,
		Available:        l.AvailableAt(now),
		CurrentlyClaimed: l.ClaimedAt(now),
		PlannedClaimed:   l.ActiveAndPlannedClaimed(now),
		Capacity:         l.Capacity(),
		UpdatedAt:        now,
	})
}
