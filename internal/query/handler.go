package query

import (
	"context"
	"log"

	"github.com/example/stock-ledger/internal/infrastructure/cache"
	"github.com/example/stock-ledger/internal/infrastructure/store"
	"github.com/example/stock-ledger/internal/readmodel"
)

// Handler serves availability summaries from the projected read models,
// optionally fronted by the Redis cache. It never touches the write side.
type Handler struct {
	readStore store.ReadStoreInterface
	cache     *cache.AvailabilityCache // nil = no caching
}

func NewHandler(readStore store.ReadStoreInterface, availabilityCache *cache.AvailabilityCache) *Handler {
	return &Handler{readStore: readStore, cache: availabilityCache}
}

// GetAvailability returns the projected availability summary of a resource.
func (h *Handler) GetAvailability(ctx context.Context, resourceID string) (*readmodel.AvailabilityReadModel, bool) {
	if h.cache != nil {
		model, ok, err := h.cache.Get(ctx, resourceID)
		if err != nil {
			log.Printf("[Query] Cache error for %s: %v", resourceID, err)
		} else if ok {
			return model, true
		}
	}

	data, ok, err := h.readStore.Get(readmodel.CollectionAvailability, resourceID)
	if err != nil {
		log.Printf("[Query] Error getting availability %s: %v", resourceID, err)
		return nil, false
	}
	if !ok {
		return nil, false
	}

	model := data.(*readmodel.AvailabilityReadModel)
	if h.cache != nil {
		if err := h.cache.Set(ctx, model); err != nil {
			log.Printf("[Query] Failed to cache availability %s: %v", resourceID, err)
		}
	}
	return model, true
}

// ListAvailability returns every projected availability summary.
func (h *Handler) ListAvailability(ctx context.Context) []*readmodel.AvailabilityReadModel {
	items, err := h.readStore.GetAll(readmodel.CollectionAvailability)
	if err != nil {
		log.Printf("[Query] Error listing availability: %v", err)
		return nil
	}

	models := make([]*readmodel.AvailabilityReadModel, 0, len(items))
	for _, item := range items {
		models = append(models, item.(*readmodel.AvailabilityReadModel))
	}
	return models
}
