package pricing

import (
	"context"
	"sync"

	"github.com/shopspring/decimal"
)

// Price is the configured unit price of a resource per day.
type Price struct {
	Unit   decimal.Decimal `json:"unit"`
	OnSale bool            `json:"on_sale"`
}

// Source resolves the price of a resource. A nil result with nil error
// means the resource has no configured price.
type Source interface {
	Price(ctx context.Context, resourceID string) (*Price, error)
}

// Store is a Source whose prices can be configured at runtime.
type Store interface {
	Source
	Set(resourceID string, unit decimal.Decimal, onSale bool)
}

// StaticSource is an in-memory price table.
type StaticSource struct {
	mu     sync.RWMutex
	prices map[string]Price
}

func NewStaticSource() *StaticSource {
	return &StaticSource{prices: make(map[string]Price)}
}

func (s *StaticSource) Set(resourceID string, unit decimal.Decimal, onSale bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prices[resourceID] = Price{Unit: unit, OnSale: onSale}
}

func (s *StaticSource) Price(ctx context.Context, resourceID string) (*Price, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.prices[resourceID]
	if !ok {
		return nil, nil
	}
	return &p, nil
}
