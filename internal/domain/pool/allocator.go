package pool

import (
	"context"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/example/stock-ledger/internal/domain/ledger"
	"github.com/example/stock-ledger/internal/domain/resource"
	"github.com/example/stock-ledger/internal/infrastructure/store"
	"github.com/example/stock-ledger/internal/pricing"
	"github.com/shopspring/decimal"
)

// Allocator presents several single-item ledgers as one allocatable
// resource. Items are ranked by the pool's pricing strategy; the exact same
// ranking drives both quoting and claiming, so the unit a customer was
// quoted is the unit that gets claimed.
type Allocator struct {
	pool    *resource.Resource
	members []*resource.Resource
	ledger  *ledger.Service
	prices  pricing.Source
}

func NewAllocator(pool *resource.Resource, members []*resource.Resource, ledgerSvc *ledger.Service, prices pricing.Source) (*Allocator, error) {
	if !pool.IsPool {
		return nil, ErrNotPoolResource
	}
	return &Allocator{
		pool:    pool,
		members: members,
		ledger:  ledgerSvc,
		prices:  prices,
	}, nil
}

// candidate is one member with its resolved price and the quantity it can
// contribute to the requested window.
type candidate struct {
	item      *resource.Resource
	price     *decimal.Decimal
	onSale    bool
	qty       int
	unbounded bool
}

// candidates resolves quantity and price for every member. With a window,
// the quantity is found by probing downward from the stock available at the
// window start until the whole window can hold it; that accounts for
// members whose stock is itself claim-windowed.
func (a *Allocator) candidates(ctx context.Context, from, until *time.Time) ([]candidate, error) {
	poolPrice, err := a.prices.Price(ctx, a.pool.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve pool price: %w", err)
	}

	candidates := make([]candidate, 0, len(a.members))
	for _, item := range a.members {
		c := candidate{item: item}

		if !item.ManagesStock {
			c.unbounded = true
		} else {
			qty, err := a.memberQuantity(ctx, item, from, until)
			if err != nil {
				return nil, err
			}
			c.qty = qty
		}

		price, err := a.prices.Price(ctx, item.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve price for %s: %w", item.ID, err)
		}
		if price == nil {
			price = poolPrice
		}
		if price != nil {
			p := price.Unit
			c.price = &p
			c.onSale = price.OnSale
		}

		candidates = append(candidates, c)
	}
	return candidates, nil
}

func (a *Allocator) memberQuantity(ctx context.Context, item *resource.Resource, from, until *time.Time) (int, error) {
	asOf := a.ledger.Now()
	if from != nil {
		asOf = *from
	}
	stock, err := a.ledger.AvailableStockAt(ctx, item, asOf)
	if err != nil {
		return 0, err
	}

	if from == nil || until == nil {
		return stock.Units(), nil
	}

	for qty := stock.Units(); qty > 0; qty-- {
		ok, err := a.ledger.IsAvailableForBooking(ctx, item, *from, *until, qty)
		if err != nil {
			return 0, err
		}
		if ok {
			return qty, nil
		}
	}
	return 0, nil
}

// rank orders candidates by the pool's pricing strategy: LOWEST ascending,
// HIGHEST descending, unpriced items last, catalog order preserved between
// equals. AVERAGE has no ranking and keeps catalog order.
func (a *Allocator) rank(candidates []candidate) []candidate {
	ranked := make([]candidate, len(candidates))
	copy(ranked, candidates)

	switch a.pool.PricingStrategy {
	case resource.PricingLowest:
		sort.SliceStable(ranked, func(i, j int) bool {
			return lessByPrice(ranked[i], ranked[j], false)
		})
	case resource.PricingHighest:
		sort.SliceStable(ranked, func(i, j int) bool {
			return lessByPrice(ranked[i], ranked[j], true)
		})
	}
	return ranked
}

func lessByPrice(x, y candidate, descending bool) bool {
	if x.price == nil {
		return false
	}
	if y.price == nil {
		return true
	}
	if descending {
		return x.price.GreaterThan(*y.price)
	}
	return x.price.LessThan(*y.price)
}

// slot is one allocatable unit of a ranked candidate.
type slot struct {
	item   *resource.Resource
	price  *decimal.Decimal
	onSale bool
}

// rankedSlots expands ranked candidates into per-unit slots.
func rankedSlots(ranked []candidate) []slot {
	var slots []slot
	for _, c := range ranked {
		for i := 0; i < c.qty; i++ {
			slots = append(slots, slot{item: c.item, price: c.price, onSale: c.onSale})
		}
	}
	return slots
}

// Availability reports how many units the pool can allocate. Members that
// do not manage stock count as present but unbounded: the pool is unbounded
// only when every member is, otherwise unbounded members contribute nothing
// to the sum.
func (a *Allocator) Availability(ctx context.Context, from, until *time.Time) (resource.Stock, error) {
	if len(a.members) == 0 {
		return resource.Stock{}, ErrPoolHasNoMembers
	}

	candidates, err := a.candidates(ctx, from, until)
	if err != nil {
		return resource.Stock{}, err
	}
	return availabilityOf(candidates), nil
}

func availabilityOf(candidates []candidate) resource.Stock {
	total := 0
	allUnbounded := true
	for _, c := range candidates {
		if !c.unbounded {
			allUnbounded = false
			total += c.qty
		}
	}
	if allUnbounded && len(candidates) > 0 {
		return resource.Unbounded()
	}
	return resource.Bounded(total)
}

// ClaimPool claims qty units, one from each of the first qty ranked unit
// slots, through each member's own ledger. The ranking is the one quoting
// used. If any member claim fails the ones already made in this call are
// released again, so a pool claim is all or nothing.
func (a *Allocator) ClaimPool(ctx context.Context, qty int, opts ledger.ClaimOptions) ([]*ledger.Claim, error) {
	if qty <= 0 {
		return nil, ledger.ErrInvalidQuantity
	}
	if len(a.members) == 0 {
		return nil, ErrPoolHasNoMembers
	}

	candidates, err := a.candidates(ctx, opts.From, opts.Until)
	if err != nil {
		return nil, err
	}

	available := availabilityOf(candidates)
	if available.IsUnbounded() {
		// Every member is unbounded: claiming is a no-op on each of them.
		return nil, nil
	}
	if !available.AtLeast(qty) {
		return nil, &ledger.InsufficientStockError{Available: available.Units(), Requested: qty}
	}

	slots := rankedSlots(a.rank(candidates))

	var done []claimedUnit
	for _, s := range slots[:qty] {
		claim, err := a.ledger.Claim(ctx, s.item, 1, opts)
		if err != nil {
			a.rollback(ctx, done)
			return nil, fmt.Errorf("pool claim failed on %s: %w", s.item.ID, err)
		}
		done = append(done, claimedUnit{item: s.item, claim: claim})
	}

	claims := make([]*ledger.Claim, 0, len(done))
	for _, d := range done {
		claims = append(claims, d.claim)
	}
	return claims, nil
}

type claimedUnit struct {
	item  *resource.Resource
	claim *ledger.Claim
}

// rollback releases the claims made earlier in a failed pool claim so no
// partial allocation is left behind.
func (a *Allocator) rollback(ctx context.Context, done []claimedUnit) {
	for _, d := range done {
		if d.claim == nil {
			continue
		}
		if _, err := a.ledger.Release(ctx, d.item, d.claim.ID); err != nil {
			log.Printf("[Pool] Failed to roll back claim %s on %s: %v", d.claim.ID, d.item.ID, err)
		}
	}
}

// ReleasePool releases every pending claim tagged with the reference across
// all members and returns how many were released.
func (a *Allocator) ReleasePool(ctx context.Context, ref store.Reference) (int, error) {
	released := 0
	for _, item := range a.members {
		claims, err := a.ledger.PendingClaimsByReference(ctx, item, ref)
		if err != nil {
			return released, err
		}
		for _, claim := range claims {
			ok, err := a.ledger.Release(ctx, item, claim.ID)
			if err != nil {
				return released, err
			}
			if ok {
				released++
			}
		}
	}
	return released, nil
}

// ValidateConfiguration checks the pool for unsafe or ambiguous setups.
// Genuinely unsafe states come back as errors; ambiguous ones as warnings.
func (a *Allocator) ValidateConfiguration(ctx context.Context) ([]string, error) {
	if a.pool.ManagesStock {
		return nil, &InvalidPoolConfigurationError{Reason: "pool resource must not manage stock itself"}
	}
	if len(a.members) == 0 {
		return nil, ErrPoolHasNoMembers
	}

	var warnings []string

	managed, unmanaged := 0, 0
	for _, item := range a.members {
		if item.ManagesStock {
			managed++
		} else {
			unmanaged++
		}
	}
	if managed > 0 && unmanaged > 0 {
		warnings = append(warnings, fmt.Sprintf("pool mixes %d stock-managed and %d unmanaged members; unmanaged members never contribute to bounded availability", managed, unmanaged))
	}

	poolPrice, err := a.prices.Price(ctx, a.pool.ID)
	if err != nil {
		return warnings, err
	}
	if poolPrice == nil {
		for _, item := range a.members {
			price, err := a.prices.Price(ctx, item.ID)
			if err != nil {
				return warnings, err
			}
			if price == nil {
				warnings = append(warnings, fmt.Sprintf("member %s has no price and the pool has no default; it will sort last and cannot be quoted", item.ID))
			}
		}
	}

	return warnings, nil
}
