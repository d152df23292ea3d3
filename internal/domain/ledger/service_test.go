package ledger

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/example/stock-ledger/internal/domain/resource"
	"github.com/example/stock-ledger/internal/infrastructure/store"
	"github.com/example/stock-ledger/internal/infrastructure/store/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func newTestService() (*Service, *mocks.MockEntryStore) {
	entryStore := mocks.NewMockEntryStore()
	entryStore.Now = func() time.Time { return now }
	service := NewServiceWithClock(entryStore, func() time.Time { return now })
	return service, entryStore
}

func managed(id string) *resource.Resource {
	return &resource.Resource{ID: id, Name: id, ManagesStock: true}
}

func unmanaged(id string) *resource.Resource {
	return &resource.Resource{ID: id, Name: id, ManagesStock: false}
}

// ============================================
// Increase Tests
// ============================================

func TestService_Increase_Success(t *testing.T) {
	service, entryStore := newTestService()
	ctx := context.Background()

	err := service.Increase(ctx, managed("res-1"), 10)

	require.NoError(t, err)
	require.Len(t, entryStore.AppendCalls, 1)
	require.Len(t, entryStore.AppendCalls[0].Drafts, 1)

	draft := entryStore.AppendCalls[0].Drafts[0]
	assert.Equal(t, 10, draft.Quantity)
	assert.Equal(t, store.KindIncrease, draft.Kind)
	assert.Equal(t, store.StatusCompleted, draft.Status)
}

func TestService_Increase_ZeroQuantity(t *testing.T) {
	service, entryStore := newTestService()
	ctx := context.Background()

	err := service.Increase(ctx, managed("res-1"), 0)

	assert.ErrorIs(t, err, ErrInvalidQuantity)
	assert.Empty(t, entryStore.AppendCalls)
}

func TestService_Increase_UnmanagedResourceIsNoOp(t *testing.T) {
	service, entryStore := newTestService()
	ctx := context.Background()

	err := service.Increase(ctx, unmanaged("res-1"), 10)

	require.NoError(t, err)
	assert.Empty(t, entryStore.AppendCalls)
}

// ============================================
// Decrease Tests
// ============================================

func TestService_Decrease_Success(t *testing.T) {
	service, entryStore := newTestService()
	ctx := context.Background()
	res := managed("res-1")

	require.NoError(t, service.Increase(ctx, res, 10))
	err := service.Decrease(ctx, res, 4, nil)

	require.NoError(t, err)
	draft := entryStore.AppendCalls[1].Drafts[0]
	assert.Equal(t, -4, draft.Quantity)
	assert.Equal(t, store.KindDecrease, draft.Kind)
	assert.Nil(t, draft.ExpiresAt)

	stock, err := service.AvailableStock(ctx, res)
	require.NoError(t, err)
	assert.Equal(t, resource.Bounded(6), stock)
}

func TestService_Decrease_InsufficientStock(t *testing.T) {
	service, _ := newTestService()
	ctx := context.Background()
	res := managed("res-1")

	require.NoError(t, service.Increase(ctx, res, 10))
	err := service.Decrease(ctx, res, 15, nil)

	var insufficient *InsufficientStockError
	require.ErrorAs(t, err, &insufficient)
	assert.Equal(t, 10, insufficient.Available)
	assert.Equal(t, 15, insufficient.Requested)
	assert.ErrorIs(t, err, ErrInsufficientStock)
}

func TestService_Decrease_Temporary(t *testing.T) {
	service, _ := newTestService()
	ctx := context.Background()
	res := managed("res-1")
	until := now.Add(48 * time.Hour)

	require.NoError(t, service.Increase(ctx, res, 10))
	require.NoError(t, service.Decrease(ctx, res, 3, &until))

	stock, err := service.AvailableStockAt(ctx, res, now.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, resource.Bounded(7), stock)

	// The decrease expires on its own
	stock, err = service.AvailableStockAt(ctx, res, until)
	require.NoError(t, err)
	assert.Equal(t, resource.Bounded(10), stock)
}

// ============================================
// Claim Tests
// ============================================

func TestService_Claim_AppendsEntryPair(t *testing.T) {
	service, entryStore := newTestService()
	ctx := context.Background()
	res := managed("res-1")
	ref := &store.Reference{Type: "order", ID: "order-1"}

	require.NoError(t, service.Increase(ctx, res, 10))

	claim, err := service.Claim(ctx, res, 3, ClaimOptions{Reference: ref, Note: "checkout"})

	require.NoError(t, err)
	require.NotNil(t, claim)
	assert.Equal(t, store.KindClaimed, claim.Kind)
	assert.Equal(t, store.StatusPending, claim.Status)
	assert.Equal(t, 3, claim.Quantity)

	// Both entries of the pair arrive in a single append
	require.Len(t, entryStore.AppendCalls, 2)
	drafts := entryStore.AppendCalls[1].Drafts
	require.Len(t, drafts, 2)

	assert.Equal(t, -3, drafts[0].Quantity)
	assert.Equal(t, store.KindDecrease, drafts[0].Kind)
	assert.Equal(t, store.StatusCompleted, drafts[0].Status)
	assert.Equal(t, ref, drafts[0].Reference)

	assert.Equal(t, 3, drafts[1].Quantity)
	assert.Equal(t, store.KindClaimed, drafts[1].Kind)
	assert.Equal(t, store.StatusPending, drafts[1].Status)
	assert.Equal(t, "checkout", drafts[1].Note)
}

func TestService_Claim_InsufficientStock(t *testing.T) {
	service, entryStore := newTestService()
	ctx := context.Background()
	res := managed("res-1")

	require.NoError(t, service.Increase(ctx, res, 2))
	entryStore.AppendCalls = nil

	claim, err := service.Claim(ctx, res, 3, ClaimOptions{})

	assert.Nil(t, claim)
	var insufficient *InsufficientStockError
	require.ErrorAs(t, err, &insufficient)
	assert.Equal(t, 2, insufficient.Available)
	assert.Equal(t, 3, insufficient.Requested)
	assert.Empty(t, entryStore.AppendCalls)
}

func TestService_Claim_WindowedChecksAvailabilityAtStart(t *testing.T) {
	service, _ := newTestService()
	ctx := context.Background()
	res := managed("res-1")

	require.NoError(t, service.Increase(ctx, res, 10))

	// First claim holds days 5-10
	from1, until1 := now.AddDate(0, 0, 5), now.AddDate(0, 0, 10)
	_, err := service.Claim(ctx, res, 8, ClaimOptions{From: &from1, Until: &until1})
	require.NoError(t, err)

	// A claim for days 12-15 sees full stock at its own start
	from2, until2 := now.AddDate(0, 0, 12), now.AddDate(0, 0, 15)
	claim, err := service.Claim(ctx, res, 10, ClaimOptions{From: &from2, Until: &until2})
	require.NoError(t, err)
	require.NotNil(t, claim)

	// But a claim overlapping days 5-10 does not
	from3, until3 := now.AddDate(0, 0, 6), now.AddDate(0, 0, 8)
	_, err = service.Claim(ctx, res, 5, ClaimOptions{From: &from3, Until: &until3})
	var insufficient *InsufficientStockError
	require.ErrorAs(t, err, &insufficient)
	assert.Equal(t, 2, insufficient.Available)
}

func TestService_Claim_ZeroQuantity(t *testing.T) {
	service, _ := newTestService()
	ctx := context.Background()

	_, err := service.Claim(ctx, managed("res-1"), 0, ClaimOptions{})

	assert.ErrorIs(t, err, ErrInvalidQuantity)
}

func TestService_Claim_UnmanagedResourceReturnsNil(t *testing.T) {
	service, entryStore := newTestService()
	ctx := context.Background()

	claim, err := service.Claim(ctx, unmanaged("res-1"), 3, ClaimOptions{})

	require.NoError(t, err)
	assert.Nil(t, claim)
	assert.Empty(t, entryStore.AppendCalls)
}

// ============================================
// Release Tests
// ============================================

func TestService_Release_Success(t *testing.T) {
	service, entryStore := newTestService()
	ctx := context.Background()
	res := managed("res-1")

	require.NoError(t, service.Increase(ctx, res, 10))
	claim, err := service.Claim(ctx, res, 3, ClaimOptions{Note: "checkout"})
	require.NoError(t, err)

	released, err := service.Release(ctx, res, claim.ID)

	require.NoError(t, err)
	assert.True(t, released)
	require.Len(t, entryStore.ReleaseCalls, 1)
	assert.Equal(t, claim.ID, entryStore.ReleaseCalls[0].ClaimID)
	assert.Equal(t, store.KindReturn, entryStore.ReleaseCalls[0].Return.Kind)
	assert.Equal(t, 3, entryStore.ReleaseCalls[0].Return.Quantity)

	stock, err := service.AvailableStock(ctx, res)
	require.NoError(t, err)
	assert.Equal(t, resource.Bounded(10), stock)
}

func TestService_Release_Idempotent(t *testing.T) {
	service, _ := newTestService()
	ctx := context.Background()
	res := managed("res-1")

	require.NoError(t, service.Increase(ctx, res, 10))
	claim, err := service.Claim(ctx, res, 3, ClaimOptions{})
	require.NoError(t, err)

	released, err := service.Release(ctx, res, claim.ID)
	require.NoError(t, err)
	assert.True(t, released)

	// Second release is a no-op and must not inflate availability
	released, err = service.Release(ctx, res, claim.ID)
	require.NoError(t, err)
	assert.False(t, released)

	stock, err := service.AvailableStock(ctx, res)
	require.NoError(t, err)
	assert.Equal(t, resource.Bounded(10), stock)
}

func TestService_Release_UnknownClaim(t *testing.T) {
	service, _ := newTestService()
	ctx := context.Background()
	res := managed("res-1")

	require.NoError(t, service.Increase(ctx, res, 10))

	released, err := service.Release(ctx, res, "no-such-claim")

	assert.False(t, released)
	assert.ErrorIs(t, err, store.ErrEntryNotFound)
}

// ============================================
// Serialization Tests
// ============================================

func TestService_Claim_ConcurrentCallersNeverOversell(t *testing.T) {
	service, _ := newTestService()
	ctx := context.Background()
	res := managed("res-1")

	require.NoError(t, service.Increase(ctx, res, 1))

	// Everyone races for the last unit; the per-resource lock makes the
	// availability check and the append one critical section
	const callers = 10
	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded, insufficient := 0, 0

	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			claim, err := service.Claim(ctx, res, 1, ClaimOptions{})

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil && claim != nil:
				succeeded++
			case errors.Is(err, ErrInsufficientStock):
				insufficient++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, succeeded)
	assert.Equal(t, callers-1, insufficient)

	stock, err := service.AvailableStock(ctx, res)
	require.NoError(t, err)
	assert.Equal(t, resource.Bounded(0), stock)
}

// ============================================
// Conservation Tests
// ============================================

func TestService_StockConservation(t *testing.T) {
	service, _ := newTestService()
	ctx := context.Background()
	res := managed("res-1")

	require.NoError(t, service.Increase(ctx, res, 100))
	require.NoError(t, service.Decrease(ctx, res, 10, nil)) // permanent

	from, until := now.AddDate(0, 0, 5), now.AddDate(0, 0, 10)
	_, err := service.Claim(ctx, res, 20, ClaimOptions{From: &from, Until: &until})
	require.NoError(t, err)
	_, err = service.Claim(ctx, res, 5, ClaimOptions{})
	require.NoError(t, err)

	capacity, err := service.Capacity(ctx, res)
	require.NoError(t, err)
	require.Equal(t, 100, capacity)

	// At every instant, available + claimed + permanently removed units
	// account for the full capacity
	const permanentlyRemoved = 10
	instants := []time.Time{
		now.AddDate(0, 0, 2),  // before the windowed claim
		now.AddDate(0, 0, 7),  // inside it
		now.AddDate(0, 0, 12), // after it expired
	}
	for _, asOf := range instants {
		stock, err := service.AvailableStockAt(ctx, res, asOf)
		require.NoError(t, err)

		l, err := service.load(ctx, res.ID)
		require.NoError(t, err)

		total := stock.Units() + l.ClaimedAt(asOf) + permanentlyRemoved
		assert.Equal(t, capacity, total, "at %s", asOf)
	}
}

// ============================================
// Query Tests
// ============================================

func TestService_AvailableStock_Unmanaged(t *testing.T) {
	service, _ := newTestService()
	ctx := context.Background()

	stock, err := service.AvailableStock(ctx, unmanaged("res-1"))

	require.NoError(t, err)
	assert.True(t, stock.IsUnbounded())
}

func TestService_CurrentlyClaimedAndPlanned(t *testing.T) {
	service, _ := newTestService()
	ctx := context.Background()
	res := managed("res-1")

	require.NoError(t, service.Increase(ctx, res, 100))

	_, err := service.Claim(ctx, res, 5, ClaimOptions{})
	require.NoError(t, err)

	from, until := now.AddDate(0, 0, 5), now.AddDate(0, 0, 10)
	_, err = service.Claim(ctx, res, 20, ClaimOptions{From: &from, Until: &until})
	require.NoError(t, err)

	current, err := service.CurrentlyClaimed(ctx, res)
	require.NoError(t, err)
	assert.Equal(t, 5, current)

	planned, err := service.ActiveAndPlannedClaimed(ctx, res)
	require.NoError(t, err)
	assert.Equal(t, 25, planned)

	future, err := service.FutureClaimed(ctx, res, nil)
	require.NoError(t, err)
	assert.Equal(t, 20, future)
}

func TestService_AvailableForWindow_DipsInsideWindow(t *testing.T) {
	service, _ := newTestService()
	ctx := context.Background()
	res := managed("res-1")

	require.NoError(t, service.Increase(ctx, res, 10))

	// Claim holding days 3-6
	from, until := now.AddDate(0, 0, 3), now.AddDate(0, 0, 6)
	_, err := service.Claim(ctx, res, 4, ClaimOptions{From: &from, Until: &until})
	require.NoError(t, err)

	// Window starts before the claim: the dip inside still counts
	stock, err := service.AvailableForWindow(ctx, res, now.AddDate(0, 0, 1), now.AddDate(0, 0, 8))
	require.NoError(t, err)
	assert.Equal(t, resource.Bounded(6), stock)

	// Window entirely after the claim
	stock, err = service.AvailableForWindow(ctx, res, now.AddDate(0, 0, 6), now.AddDate(0, 0, 8))
	require.NoError(t, err)
	assert.Equal(t, resource.Bounded(10), stock)
}

func TestService_IsAvailableForBooking(t *testing.T) {
	service, _ := newTestService()
	ctx := context.Background()
	res := managed("res-1")

	require.NoError(t, service.Increase(ctx, res, 10))

	from, until := now.AddDate(0, 0, 3), now.AddDate(0, 0, 6)
	_, err := service.Claim(ctx, res, 4, ClaimOptions{From: &from, Until: &until})
	require.NoError(t, err)

	ok, err := service.IsAvailableForBooking(ctx, res, now.AddDate(0, 0, 2), now.AddDate(0, 0, 7), 6)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = service.IsAvailableForBooking(ctx, res, now.AddDate(0, 0, 2), now.AddDate(0, 0, 7), 7)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestService_PendingClaimsByReference(t *testing.T) {
	service, _ := newTestService()
	ctx := context.Background()
	res := managed("res-1")
	ref := store.Reference{Type: "order", ID: "order-1"}

	require.NoError(t, service.Increase(ctx, res, 10))

	claim, err := service.Claim(ctx, res, 2, ClaimOptions{Reference: &ref})
	require.NoError(t, err)
	_, err = service.Claim(ctx, res, 1, ClaimOptions{Reference: &store.Reference{Type: "order", ID: "order-2"}})
	require.NoError(t, err)

	claims, err := service.PendingClaimsByReference(ctx, res, ref)
	require.NoError(t, err)
	require.Len(t, claims, 1)
	assert.Equal(t, claim.ID, claims[0].ID)
}
