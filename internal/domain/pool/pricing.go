package pool

import (
	"context"
	"time"

	"github.com/example/stock-ledger/internal/domain/ledger"
	"github.com/example/stock-ledger/internal/domain/resource"
	"github.com/shopspring/decimal"
)

// Quote is the price of one allocatable unit and the single item it would
// come from. AVERAGE quotes blend all items and carry no item id.
type Quote struct {
	ItemID string          `json:"item_id,omitempty"`
	Price  decimal.Decimal `json:"price"`
	OnSale bool            `json:"on_sale"`
}

// Allocation records units already earmarked for a specific single item,
// e.g. by a cart in progress.
type Allocation struct {
	ItemID   string `json:"item_id"`
	Quantity int    `json:"quantity"`
}

// QuoteNextUnit prices the unit a caller would get after skip units have
// already been committed: the ranked unit slots are walked past skip and
// the next slot's price is returned, scaled to the booking window. AVERAGE
// pools have no ranking to skip through and return one quantity-weighted
// blended price instead.
func (a *Allocator) QuoteNextUnit(ctx context.Context, skip int, from, until *time.Time) (*Quote, error) {
	if len(a.members) == 0 {
		return nil, ErrPoolHasNoMembers
	}

	candidates, err := a.candidates(ctx, from, until)
	if err != nil {
		return nil, err
	}

	if availabilityOf(candidates).IsUnbounded() {
		return unboundedQuote(candidates, from, until)
	}
	if a.pool.PricingStrategy == resource.PricingAverage {
		return averageQuote(candidates, from, until)
	}

	slots := rankedSlots(a.rank(candidates))
	if skip >= len(slots) {
		return nil, &ledger.InsufficientStockError{Available: len(slots), Requested: skip + 1}
	}

	next := slots[skip]
	if next.price == nil {
		return nil, ErrNoPriceForUnit
	}

	return &Quote{
		ItemID: next.item.ID,
		Price:  scaleToWindow(*next.price, from, until),
		OnSale: next.onSale,
	}, nil
}

// QuoteNextUnitGivenReservationState refines QuoteNextUnit for an
// in-progress reservation: quantities already earmarked are subtracted per
// specific item, not per price tier, so repeated quoting converges on the
// exact item ClaimPool will take even when two items share a price.
func (a *Allocator) QuoteNextUnitGivenReservationState(ctx context.Context, pending []Allocation, from, until *time.Time) (*Quote, error) {
	if len(a.members) == 0 {
		return nil, ErrPoolHasNoMembers
	}

	candidates, err := a.candidates(ctx, from, until)
	if err != nil {
		return nil, err
	}

	if availabilityOf(candidates).IsUnbounded() {
		// Unbounded units are never consumed; earmarks change nothing.
		return unboundedQuote(candidates, from, until)
	}

	remaining := make(map[string]int, len(pending))
	for _, p := range pending {
		remaining[p.ItemID] += p.Quantity
	}
	for i := range candidates {
		if take := remaining[candidates[i].item.ID]; take > 0 {
			if take > candidates[i].qty {
				take = candidates[i].qty
			}
			candidates[i].qty -= take
		}
	}

	if a.pool.PricingStrategy == resource.PricingAverage {
		return averageQuote(candidates, from, until)
	}

	slots := rankedSlots(a.rank(candidates))
	if len(slots) == 0 {
		return nil, &ledger.InsufficientStockError{Available: 0, Requested: 1}
	}

	next := slots[0]
	if next.price == nil {
		return nil, ErrNoPriceForUnit
	}

	return &Quote{
		ItemID: next.item.ID,
		Price:  scaleToWindow(*next.price, from, until),
		OnSale: next.onSale,
	}, nil
}

// unboundedQuote prices a pool whose members are all unbounded. No unit is
// ever consumed from such a pool, so every quote is the first priced member
// in catalog order.
func unboundedQuote(candidates []candidate, from, until *time.Time) (*Quote, error) {
	for _, c := range candidates {
		if c.price != nil {
			return &Quote{
				ItemID: c.item.ID,
				Price:  scaleToWindow(*c.price, from, until),
				OnSale: c.onSale,
			}, nil
		}
	}
	return nil, ErrNoPriceForUnit
}

// averageQuote blends all priced, available units into one
// quantity-weighted price.
func averageQuote(candidates []candidate, from, until *time.Time) (*Quote, error) {
	total := decimal.Zero
	units := 0
	onSale := false
	for _, c := range candidates {
		if c.price == nil || c.qty == 0 {
			continue
		}
		total = total.Add(c.price.Mul(decimal.NewFromInt(int64(c.qty))))
		units += c.qty
		onSale = onSale || c.onSale
	}
	if units == 0 {
		return nil, &ledger.InsufficientStockError{Available: 0, Requested: 1}
	}

	avg := total.Div(decimal.NewFromInt(int64(units)))
	return &Quote{
		Price:  scaleToWindow(avg, from, until),
		OnSale: onSale,
	}, nil
}

// scaleToWindow converts a per-day unit price to the booking window length
// (exact minutes over 1440) and rounds to cents. Without a window the unit
// price itself is quoted.
func scaleToWindow(unit decimal.Decimal, from, until *time.Time) decimal.Decimal {
	if from == nil || until == nil || !until.After(*from) {
		return unit.Round(2)
	}
	minutes := int64(until.Sub(*from) / time.Minute)
	factor := decimal.NewFromInt(minutes).Div(decimal.NewFromInt(24 * 60))
	return unit.Mul(factor).Round(2)
}
