package projection

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/example/stock-ledger/internal/infrastructure/store"
	"github.com/example/stock-ledger/internal/infrastructure/store/mocks"
	"github.com/example/stock-ledger/internal/readmodel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func newTestProjector() (*Projector, *store.ReadStore) {
	readStore := store.NewReadStore()
	p := NewProjector(readStore)
	p.clock = func() time.Time { return now }
	return p, readStore
}

func appendedEvent(t *testing.T, entry store.Entry) []byte {
	t.Helper()
	data, err := json.Marshal(store.MovementEvent{
		Type:       store.EventEntryAppended,
		ResourceID: entry.ResourceID,
		Entry:      &entry,
		Timestamp:  now,
	})
	require.NoError(t, err)
	return data
}

func releasedEvent(t *testing.T, resourceID, entryID string) []byte {
	t.Helper()
	data, err := json.Marshal(store.MovementEvent{
		Type:       store.EventClaimReleased,
		ResourceID: resourceID,
		EntryID:    entryID,
		Timestamp:  now,
	})
	require.NoError(t, err)
	return data
}

func availabilityOf(t *testing.T, readStore *store.ReadStore, resourceID string) *readmodel.AvailabilityReadModel {
	t.Helper()
	data, ok, err := readStore.Get(readmodel.CollectionAvailability, resourceID)
	require.NoError(t, err)
	require.True(t, ok)
	return data.(*readmodel.AvailabilityReadModel)
}

// ============================================
// HandleEvent Tests
// ============================================

func TestProjector_HandleEvent_BuildsAvailability(t *testing.T) {
	p, readStore := newTestProjector()
	ctx := context.Background()

	err := p.HandleEvent(ctx, []byte("res-1"), appendedEvent(t, store.Entry{
		ID: "e1", ResourceID: "res-1", Quantity: 10,
		Kind: store.KindIncrease, Status: store.StatusCompleted,
	}))
	require.NoError(t, err)

	err = p.HandleEvent(ctx, []byte("res-1"), appendedEvent(t, store.Entry{
		ID: "e2", ResourceID: "res-1", Quantity: -3,
		Kind: store.KindDecrease, Status: store.StatusCompleted,
	}))
	require.NoError(t, err)

	model := availabilityOf(t, readStore, "res-1")
	assert.Equal(t, 7, model.Available)
	assert.Equal(t, 10, model.Capacity)
	assert.Equal(t, now, model.UpdatedAt)
}

func TestProjector_HandleEvent_ClaimAndRelease(t *testing.T) {
	p, readStore := newTestProjector()
	ctx := context.Background()

	require.NoError(t, p.HandleEvent(ctx, nil, appendedEvent(t, store.Entry{
		ID: "e1", ResourceID: "res-1", Quantity: 10,
		Kind: store.KindIncrease, Status: store.StatusCompleted,
	})))
	require.NoError(t, p.HandleEvent(ctx, nil, appendedEvent(t, store.Entry{
		ID: "e2", ResourceID: "res-1", Quantity: -4,
		Kind: store.KindDecrease, Status: store.StatusCompleted,
	})))
	require.NoError(t, p.HandleEvent(ctx, nil, appendedEvent(t, store.Entry{
		ID: "e3", ResourceID: "res-1", Quantity: 4,
		Kind: store.KindClaimed, Status: store.StatusPending,
	})))

	model := availabilityOf(t, readStore, "res-1")
	assert.Equal(t, 6, model.Available)
	assert.Equal(t, 4, model.CurrentlyClaimed)
	assert.Equal(t, 4, model.PlannedClaimed)

	// Release: the claim marker completes and a return entry follows
	require.NoError(t, p.HandleEvent(ctx, nil, releasedEvent(t, "res-1", "e3")))
	require.NoError(t, p.HandleEvent(ctx, nil, appendedEvent(t, store.Entry{
		ID: "e4", ResourceID: "res-1", Quantity: 4,
		Kind: store.KindReturn, Status: store.StatusCompleted,
	})))

	model = availabilityOf(t, readStore, "res-1")
	assert.Equal(t, 10, model.Available)
	assert.Equal(t, 0, model.CurrentlyClaimed)
}

func TestProjector_HandleEvent_DeduplicatesEntries(t *testing.T) {
	p, readStore := newTestProjector()
	ctx := context.Background()

	event := appendedEvent(t, store.Entry{
		ID: "e1", ResourceID: "res-1", Quantity: 10,
		Kind: store.KindIncrease, Status: store.StatusCompleted,
	})

	// The same event can arrive twice when replay and live consumption
	// overlap
	require.NoError(t, p.HandleEvent(ctx, nil, event))
	require.NoError(t, p.HandleEvent(ctx, nil, event))

	model := availabilityOf(t, readStore, "res-1")
	assert.Equal(t, 10, model.Available)
}

func TestProjector_HandleEvent_UnknownTypeIsIgnored(t *testing.T) {
	p, readStore := newTestProjector()
	ctx := context.Background()

	data, err := json.Marshal(store.MovementEvent{Type: "SomethingElse", ResourceID: "res-1"})
	require.NoError(t, err)

	require.NoError(t, p.HandleEvent(ctx, nil, data))

	_, ok, err := readStore.Get(readmodel.CollectionAvailability, "res-1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestProjector_HandleEvent_InvalidJSON(t *testing.T) {
	p, _ := newTestProjector()

	err := p.HandleEvent(context.Background(), nil, []byte("not json"))

	assert.Error(t, err)
}

// ============================================
// Replay Tests
// ============================================

func TestProjector_Replay_SeedsFromStore(t *testing.T) {
	p, readStore := newTestProjector()
	ctx := context.Background()

	entryStore := mocks.NewMockEntryStore()
	entryStore.SetEntries("res-1", []store.Entry{
		{ID: "e1", ResourceID: "res-1", Quantity: 10, Kind: store.KindIncrease, Status: store.StatusCompleted},
		{ID: "e2", ResourceID: "res-1", Quantity: -2, Kind: store.KindDecrease, Status: store.StatusCompleted},
	})
	entryStore.SetEntries("res-2", []store.Entry{
		{ID: "e3", ResourceID: "res-2", Quantity: 5, Kind: store.KindIncrease, Status: store.StatusCompleted},
	})

	require.NoError(t, p.Replay(ctx, entryStore))

	assert.Equal(t, 8, availabilityOf(t, readStore, "res-1").Available)
	assert.Equal(t, 5, availabilityOf(t, readStore, "res-2").Available)
}

func TestProjector_Replay_ThenLiveEventsDeduplicate(t *testing.T) {
	p, readStore := newTestProjector()
	ctx := context.Background()

	entry := store.Entry{ID: "e1", ResourceID: "res-1", Quantity: 10, Kind: store.KindIncrease, Status: store.StatusCompleted}

	entryStore := mocks.NewMockEntryStore()
	entryStore.SetEntries("res-1", []store.Entry{entry})

	require.NoError(t, p.Replay(ctx, entryStore))

	// The same entry arrives again over Kafka
	require.NoError(t, p.HandleEvent(ctx, nil, appendedEvent(t, entry)))

	assert.Equal(t, 10, availabilityOf(t, readStore, "res-1").Available)
}
