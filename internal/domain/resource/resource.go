package resource

import "errors"

var (
	ErrNotFound = errors.New("resource not found")
)

// PricingStrategy decides the order in which a pool allocates its members.
type PricingStrategy string

const (
	PricingLowest  PricingStrategy = "lowest"
	PricingHighest PricingStrategy = "highest"
	PricingAverage PricingStrategy = "average"
)

// MembershipKind tags the direction of a pool relation so a single item can
// belong to more than one pool.
type MembershipKind string

const (
	MembershipSingle MembershipKind = "single" // pool -> item
	MembershipPool   MembershipKind = "pool"   // item -> pool
)

// Membership links a pool resource to one of its single items.
type Membership struct {
	PoolID string         `json:"pool_id"`
	ItemID string         `json:"item_id"`
	Kind   MembershipKind `json:"kind"`
}

// Resource is a product, a single item, or a pool. The catalog owns its
// lifecycle; this package only reads and writes the stock-related fields.
type Resource struct {
	ID                string `json:"id"`
	Name              string `json:"name"`
	ManagesStock      bool   `json:"manages_stock"`
	LowStockThreshold *int   `json:"low_stock_threshold,omitempty"`

	// Pool-only fields. A pool never manages stock itself; only its
	// members track physical units.
	IsPool          bool            `json:"is_pool"`
	PricingStrategy PricingStrategy `json:"pricing_strategy,omitempty"`
	MemberIDs       []string        `json:"member_ids,omitempty"`
}
