package ledger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/example/stock-ledger/internal/domain/resource"
	"github.com/example/stock-ledger/internal/infrastructure/store"
)

// ClaimOptions carries the optional fields of a claim.
type ClaimOptions struct {
	Reference *store.Reference
	From      *time.Time // nil = effective immediately
	Until     *time.Time // nil = permanent, release() required
	Note      string
}

// Service is the single source of truth for a resource's capacity over
// time. Mutating operations serialize per resource: the availability check
// and the entry append happen under one lock, so two callers cannot both
// observe the last unit and both claim it.
type Service struct {
	entryStore store.EntryStoreInterface
	clock      func() time.Time
	locks      keyedMutex
}

func NewService(es store.EntryStoreInterface) *Service {
	return NewServiceWithClock(es, time.Now)
}

func NewServiceWithClock(es store.EntryStoreInterface, clock func() time.Time) *Service {
	return &Service{entryStore: es, clock: clock}
}

// Now returns the service clock's current instant.
func (s *Service) Now() time.Time {
	return s.clock()
}

// load replays the stored entries of a resource.
func (s *Service) load(ctx context.Context, resourceID string) (*Ledger, error) {
	entries, err := s.entryStore.Entries(ctx, resourceID)
	if err != nil {
		return nil, fmt.Errorf("failed to load entries: %w", err)
	}
	return Replay(resourceID, entries), nil
}

// Increase appends a completed increase entry. No-op for resources that do
// not manage stock.
func (s *Service) Increase(ctx context.Context, res *resource.Resource, qty int) error {
	if qty <= 0 {
		return ErrInvalidQuantity
	}
	if !res.ManagesStock {
		return nil
	}

	unlock := s.locks.lock(res.ID)
	defer unlock()

	_, err := s.entryStore.Append(ctx, res.ID, store.Draft{
		Quantity: qty,
		Kind:     store.KindIncrease,
		Status:   store.StatusCompleted,
	})
	return err
}

// Decrease appends a completed decrease entry, optionally expiring at
// until so the capacity returns automatically. Fails when the requested
// quantity exceeds the stock available now.
func (s *Service) Decrease(ctx context.Context, res *resource.Resource, qty int, until *time.Time) error {
	if qty <= 0 {
		return ErrInvalidQuantity
	}
	if !res.ManagesStock {
		return nil
	}

	unlock := s.locks.lock(res.ID)
	defer unlock()

	l, err := s.load(ctx, res.ID)
	if err != nil {
		return err
	}
	if available := l.AvailableAt(s.clock()); available < qty {
		return &InsufficientStockError{Available: available, Requested: qty}
	}

	_, err = s.entryStore.Append(ctx, res.ID, store.Draft{
		Quantity:  -qty,
		Kind:      store.KindDecrease,
		Status:    store.StatusCompleted,
		ExpiresAt: until,
	})
	return err
}

// Capacity reports how big the resource's stock could get if nothing had
// ever been taken.
func (s *Service) Capacity(ctx context.Context, res *resource.Resource) (int, error) {
	l, err := s.load(ctx, res.ID)
	if err != nil {
		return 0, err
	}
	return l.Capacity(), nil
}

// AvailableStock reports the stock available now.
func (s *Service) AvailableStock(ctx context.Context, res *resource.Resource) (resource.Stock, error) {
	return s.AvailableStockAt(ctx, res, s.clock())
}

// AvailableStockAt reports the stock available at an instant, past or
// future.
func (s *Service) AvailableStockAt(ctx context.Context, res *resource.Resource, asOf time.Time) (resource.Stock, error) {
	if !res.ManagesStock {
		return resource.Unbounded(), nil
	}
	l, err := s.load(ctx, res.ID)
	if err != nil {
		return resource.Stock{}, err
	}
	return resource.Bounded(l.AvailableAt(asOf)), nil
}

// CurrentlyClaimed sums the pending claims in force right now.
func (s *Service) CurrentlyClaimed(ctx context.Context, res *resource.Resource) (int, error) {
	if !res.ManagesStock {
		return 0, nil
	}
	l, err := s.load(ctx, res.ID)
	if err != nil {
		return 0, err
	}
	return l.ClaimedAt(s.clock()), nil
}

// ActiveAndPlannedClaimed sums all unexpired pending claims, including
// those starting in the future.
func (s *Service) ActiveAndPlannedClaimed(ctx context.Context, res *resource.Resource) (int, error) {
	if !res.ManagesStock {
		return 0, nil
	}
	l, err := s.load(ctx, res.ID)
	if err != nil {
		return 0, err
	}
	return l.ActiveAndPlannedClaimed(s.clock()), nil
}

// FutureClaimed sums unexpired pending claims starting after from
// (default: after now).
func (s *Service) FutureClaimed(ctx context.Context, res *resource.Resource, from *time.Time) (int, error) {
	if !res.ManagesStock {
		return 0, nil
	}
	l, err := s.load(ctx, res.ID)
	if err != nil {
		return 0, err
	}
	start := s.clock()
	if from != nil {
		start = *from
	}
	return l.FutureClaimed(s.clock(), start), nil
}

// Claim reserves qty units, optionally windowed to [From, Until). It
// appends the entry pair atomically: a completed decrease that drops
// availability inside the window, and the pending claim marker carrying the
// window. Returns the claim, or nil for resources that do not manage stock.
func (s *Service) Claim(ctx context.Context, res *resource.Resource, qty int, opts ClaimOptions) (*Claim, error) {
	if qty <= 0 {
		return nil, ErrInvalidQuantity
	}
	if !res.ManagesStock {
		return nil, nil
	}

	unlock := s.locks.lock(res.ID)
	defer unlock()

	l, err := s.load(ctx, res.ID)
	if err != nil {
		return nil, err
	}

	asOf := s.clock()
	if opts.From != nil {
		asOf = *opts.From
	}
	if available := l.AvailableAt(asOf); available < qty {
		return nil, &InsufficientStockError{Available: available, Requested: qty}
	}

	entries, err := s.entryStore.Append(ctx, res.ID,
		store.Draft{
			Quantity:  -qty,
			Kind:      store.KindDecrease,
			Status:    store.StatusCompleted,
			Note:      opts.Note,
			Reference: opts.Reference,
		},
		store.Draft{
			Quantity:    qty,
			Kind:        store.KindClaimed,
			Status:      store.StatusPending,
			ClaimedFrom: opts.From,
			ExpiresAt:   opts.Until,
			Note:        opts.Note,
			Reference:   opts.Reference,
		},
	)
	if err != nil {
		return nil, err
	}

	claim := entries[1]
	return &claim, nil
}

// Release frees a claim: the claim marker flips to completed and a return
// entry reinstates the paired decrease. Returns false when the claim was
// already released; releasing twice never changes availability.
func (s *Service) Release(ctx context.Context, res *resource.Resource, claimID string) (bool, error) {
	if !res.ManagesStock {
		return false, nil
	}

	unlock := s.locks.lock(res.ID)
	defer unlock()

	l, err := s.load(ctx, res.ID)
	if err != nil {
		return false, err
	}
	claim, ok := l.findClaim(claimID)
	if !ok {
		return false, store.ErrEntryNotFound
	}
	if claim.Status != store.StatusPending {
		return false, nil
	}

	return s.entryStore.Release(ctx, res.ID, claimID, store.Draft{
		Quantity:  claim.Quantity,
		Kind:      store.KindReturn,
		Status:    store.StatusCompleted,
		Note:      claim.Note,
		Reference: claim.Reference,
	})
}

// PendingClaimsByReference returns the pending claims attributed to an
// external reference, e.g. all claims of one order.
func (s *Service) PendingClaimsByReference(ctx context.Context, res *resource.Resource, ref store.Reference) ([]Claim, error) {
	if !res.ManagesStock {
		return nil, nil
	}
	l, err := s.load(ctx, res.ID)
	if err != nil {
		return nil, err
	}
	return l.PendingClaimsByReference(ref), nil
}

// AvailableForWindow reports the minimum availability over [from, until).
func (s *Service) AvailableForWindow(ctx context.Context, res *resource.Resource, from, until time.Time) (resource.Stock, error) {
	if !res.ManagesStock {
		return resource.Unbounded(), nil
	}
	l, err := s.load(ctx, res.ID)
	if err != nil {
		return resource.Stock{}, err
	}

	min := l.AvailableAt(from)
	for _, t := range l.boundariesWithin(from, until) {
		if v := l.AvailableAt(t); v < min {
			min = v
		}
	}
	return resource.Bounded(min), nil
}

// IsAvailableForBooking reports whether qty units are free over the whole
// window [from, until).
func (s *Service) IsAvailableForBooking(ctx context.Context, res *resource.Resource, from, until time.Time, qty int) (bool, error) {
	stock, err := s.AvailableForWindow(ctx, res, from, until)
	if err != nil {
		return false, err
	}
	return stock.AtLeast(qty), nil
}

// keyedMutex serializes per resource id.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func (k *keyedMutex) lock(id string) func() {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*sync.Mutex)
	}
	l, ok := k.locks[id]
	if !ok {
		l = &sync.Mutex{}
		k.locks[id] = l
	}
	k.mu.Unlock()

	l.Lock()
	return l.Unlock
}
