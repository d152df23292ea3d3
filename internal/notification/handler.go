package notification

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/example/stock-ledger/internal/domain/ledger"
	"github.com/example/stock-ledger/internal/domain/resource"
	"github.com/example/stock-ledger/internal/email"
	"github.com/example/stock-ledger/internal/infrastructure/store"
)

// Handler watches movement events and alerts when a managed resource drops
// below its low-stock threshold. One alert per crossing: the flag resets
// once stock recovers to the threshold.
type Handler struct {
	emailService *email.Service
	registry     resource.RegistryInterface
	entryStore   store.EntryStoreInterface
	alertTo      string
	clock        func() time.Time

	mu      sync.Mutex
	alerted map[string]bool
}

// NewHandler creates a new notification handler
func NewHandler(emailSvc *email.Service, registry resource.RegistryInterface, entryStore store.EntryStoreInterface, alertTo string) *Handler {
	return &Handler{
		emailService: emailSvc,
		registry:     registry,
		entryStore:   entryStore,
		alertTo:      alertTo,
		clock:        time.Now,
		alerted:      make(map[string]bool),
	}
}

// HandleEvent processes an event from Kafka
func (h *Handler) HandleEvent(ctx context.Context, key, value []byte) error {
	var event store.MovementEvent
	if err := json.Unmarshal(value, &event); err != nil {
		log.Printf("[Notifier] Failed to unmarshal event: %v", err)
		return err
	}

	res, err := h.registry.Get(event.ResourceID)
	if err != nil {
		// Resources outside the registry are not ours to watch.
		return nil
	}
	if !res.ManagesStock || res.LowStockThreshold == nil {
		return nil
	}

	entries, err := h.entryStore.Entries(ctx, res.ID)
	if err != nil {
		log.Printf("[Notifier] Failed to load entries for %s: %v", res.ID, err)
		return err
	}

	available := ledger.Replay(res.ID, entries).AvailableAt(h.clock())
	threshold := *res.LowStockThreshold

	h.mu.Lock()
	alreadyAlerted := h.alerted[res.ID]
	if available < threshold {
		h.alerted[res.ID] = true
	} else {
		h.alerted[res.ID] = false
	}
	h.mu.Unlock()

	if available >= threshold || alreadyAlerted {
		return nil
	}

	log.Printf("[Notifier] Resource %s below threshold: %d < %d", res.ID, available, threshold)
	if err := h.emailService.SendLowStockAlert(h.alertTo, res.ID, res.Name, available, threshold); err != nil {
		log.Printf("[Notifier] Failed to send alert for %s: %v", res.ID, err)
		return err
	}
	return nil
}
