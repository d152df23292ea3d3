package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/example/stock-ledger/internal/domain/ledger"
	"github.com/example/stock-ledger/internal/domain/pool"
	"github.com/example/stock-ledger/internal/domain/resource"
	"github.com/example/stock-ledger/internal/infrastructure/store"
	"github.com/example/stock-ledger/internal/pricing"
	"github.com/example/stock-ledger/internal/query"
	"github.com/shopspring/decimal"
)

type Handlers struct {
	registry     resource.RegistryInterface
	ledgerSvc    *ledger.Service
	queryHandler *query.Handler
	prices       pricing.Store
}

func NewHandlers(registry resource.RegistryInterface, ledgerSvc *ledger.Service, queryHandler *query.Handler, prices pricing.Store) *Handlers {
	return &Handlers{
		registry:     registry,
		ledgerSvc:    ledgerSvc,
		queryHandler: queryHandler,
		prices:       prices,
	}
}

// Resource handlers

func (h *Handlers) RegisterResource(w http.ResponseWriter, r *http.Request) {
	var res resource.Resource
	if err := json.NewDecoder(r.Body).Decode(&res); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if res.ID == "" {
		http.Error(w, "id is required", http.StatusBadRequest)
		return
	}
	if res.IsPool && res.ManagesStock {
		http.Error(w, "a pool must not manage stock itself", http.StatusBadRequest)
		return
	}

	h.registry.Register(&res)
	respondJSON(w, http.StatusCreated, &res)
}

func (h *Handlers) GetAvailability(w http.ResponseWriter, r *http.Request) {
	res, ok := h.resourceFromPath(w, r, "/resources/")
	if !ok {
		return
	}

	q := r.URL.Query()
	from, until, err := windowParams(q)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var stock resource.Stock
	switch {
	case from != nil && until != nil:
		stock, err = h.ledgerSvc.AvailableForWindow(r.Context(), res, *from, *until)
	case q.Get("as_of") != "":
		var asOf time.Time
		asOf, err = time.Parse(time.RFC3339, q.Get("as_of"))
		if err != nil {
			http.Error(w, "as_of must be RFC3339", http.StatusBadRequest)
			return
		}
		stock, err = h.ledgerSvc.AvailableStockAt(r.Context(), res, asOf)
	default:
		stock, err = h.ledgerSvc.AvailableStock(r.Context(), res)
	}
	if err != nil {
		respondDomainError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"resource_id": res.ID,
		"available":   stock,
		"unbounded":   stock.IsUnbounded(),
	})
}

// GetAvailabilitySummary serves the projected (possibly stale) summary.
func (h *Handlers) GetAvailabilitySummary(w http.ResponseWriter, r *http.Request) {
	id := extractPathParam(r.URL.Path, "/resources/")
	id = strings.TrimSuffix(id, "/summary")

	model, ok := h.queryHandler.GetAvailability(r.Context(), id)
	if !ok {
		http.Error(w, "No availability summary", http.StatusNotFound)
		return
	}
	respondJSON(w, http.StatusOK, model)
}

func (h *Handlers) GetClaimed(w http.ResponseWriter, r *http.Request) {
	res, ok := h.resourceFromPath(w, r, "/resources/")
	if !ok {
		return
	}

	current, err := h.ledgerSvc.CurrentlyClaimed(r.Context(), res)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	planned, err := h.ledgerSvc.ActiveAndPlannedClaimed(r.Context(), res)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	var from *time.Time
	if v := r.URL.Query().Get("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			http.Error(w, "from must be RFC3339", http.StatusBadRequest)
			return
		}
		from = &t
	}
	future, err := h.ledgerSvc.FutureClaimed(r.Context(), res, from)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]int{
		"currently_claimed":          current,
		"active_and_planned_claimed": planned,
		"future_claimed":             future,
	})
}

func (h *Handlers) GetCapacity(w http.ResponseWriter, r *http.Request) {
	res, ok := h.resourceFromPath(w, r, "/resources/")
	if !ok {
		return
	}

	capacity, err := h.ledgerSvc.Capacity(r.Context(), res)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]int{"capacity": capacity})
}

func (h *Handlers) GetCalendar(w http.ResponseWriter, r *http.Request) {
	res, ok := h.resourceFromPath(w, r, "/resources/")
	if !ok {
		return
	}

	from, err := time.Parse("2006-01-02", r.URL.Query().Get("from"))
	if err != nil {
		http.Error(w, "from must be YYYY-MM-DD", http.StatusBadRequest)
		return
	}
	until, err := time.Parse("2006-01-02", r.URL.Query().Get("until"))
	if err != nil {
		http.Error(w, "until must be YYYY-MM-DD", http.StatusBadRequest)
		return
	}

	cal, err := h.ledgerSvc.Calendar(r.Context(), res, from, until)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, cal)
}

func (h *Handlers) GetDayTimeline(w http.ResponseWriter, r *http.Request) {
	res, ok := h.resourceFromPath(w, r, "/resources/")
	if !ok {
		return
	}

	date, err := time.Parse("2006-01-02", r.URL.Query().Get("date"))
	if err != nil {
		http.Error(w, "date must be YYYY-MM-DD", http.StatusBadRequest)
		return
	}

	points, err := h.ledgerSvc.DayTimeline(r.Context(), res, date)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, points)
}

func (h *Handlers) IncreaseStock(w http.ResponseWriter, r *http.Request) {
	res, ok := h.resourceFromPath(w, r, "/resources/")
	if !ok {
		return
	}

	var req struct {
		Quantity int `json:"quantity"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := h.ledgerSvc.Increase(r.Context(), res, req.Quantity); err != nil {
		respondDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *Handlers) DecreaseStock(w http.ResponseWriter, r *http.Request) {
	res, ok := h.resourceFromPath(w, r, "/resources/")
	if !ok {
		return
	}

	var req struct {
		Quantity int        `json:"quantity"`
		Until    *time.Time `json:"until,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := h.ledgerSvc.Decrease(r.Context(), res, req.Quantity, req.Until); err != nil {
		respondDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// SetPrice configures the per-day unit price of a resource or pool. Pool
// prices double as the default for unpriced members.
func (h *Handlers) SetPrice(w http.ResponseWriter, r *http.Request) {
	res, ok := h.resourceFromPath(w, r, "/resources/")
	if !ok {
		return
	}

	var req struct {
		Unit   decimal.Decimal `json:"unit"`
		OnSale bool            `json:"on_sale"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.Unit.IsNegative() {
		http.Error(w, "unit must not be negative", http.StatusBadRequest)
		return
	}

	h.prices.Set(res.ID, req.Unit, req.OnSale)
	respondJSON(w, http.StatusOK, map[string]any{
		"resource_id": res.ID,
		"unit":        req.Unit,
		"on_sale":     req.OnSale,
	})
}

func (h *Handlers) GetPrice(w http.ResponseWriter, r *http.Request) {
	res, ok := h.resourceFromPath(w, r, "/resources/")
	if !ok {
		return
	}

	price, err := h.prices.Price(r.Context(), res.ID)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	if price == nil {
		http.Error(w, "No price configured", http.StatusNotFound)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"resource_id": res.ID,
		"unit":        price.Unit,
		"on_sale":     price.OnSale,
	})
}

// Claim handlers

type claimRequest struct {
	Quantity  int              `json:"quantity"`
	From      *time.Time       `json:"from,omitempty"`
	Until     *time.Time       `json:"until,omitempty"`
	Note      string           `json:"note,omitempty"`
	Reference *store.Reference `json:"reference,omitempty"`
}

func (h *Handlers) CreateClaim(w http.ResponseWriter, r *http.Request) {
	res, ok := h.resourceFromPath(w, r, "/resources/")
	if !ok {
		return
	}

	var req claimRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	claim, err := h.ledgerSvc.Claim(r.Context(), res, req.Quantity, ledger.ClaimOptions{
		Reference: req.Reference,
		From:      req.From,
		Until:     req.Until,
		Note:      req.Note,
	})
	if err != nil {
		respondDomainError(w, err)
		return
	}
	if claim == nil {
		// Resource does not manage stock; nothing to claim.
		w.WriteHeader(http.StatusNoContent)
		return
	}
	respondJSON(w, http.StatusCreated, claim)
}

func (h *Handlers) ReleaseClaim(w http.ResponseWriter, r *http.Request) {
	// /resources/{id}/claims/{claimID}/release
	rest := extractPathParam(r.URL.Path, "/resources/")
	parts := strings.Split(rest, "/")
	if len(parts) != 4 || parts[1] != "claims" || parts[3] != "release" {
		http.Error(w, "Not found", http.StatusNotFound)
		return
	}

	res, err := h.registry.Get(parts[0])
	if err != nil {
		http.Error(w, "Resource not found", http.StatusNotFound)
		return
	}

	released, err := h.ledgerSvc.Release(r.Context(), res, parts[2])
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"released": released})
}

// Pool handlers

func (h *Handlers) allocatorFromPath(w http.ResponseWriter, r *http.Request) (*pool.Allocator, bool) {
	id := extractPathParam(r.URL.Path, "/pools/")
	if i := strings.IndexByte(id, '/'); i >= 0 {
		id = id[:i]
	}

	p, err := h.registry.Get(id)
	if err != nil {
		http.Error(w, "Pool not found", http.StatusNotFound)
		return nil, false
	}
	members, err := h.registry.Members(id)
	if err != nil {
		http.Error(w, "Pool not found", http.StatusNotFound)
		return nil, false
	}

	alloc, err := pool.NewAllocator(p, members, h.ledgerSvc, h.prices)
	if err != nil {
		respondDomainError(w, err)
		return nil, false
	}
	return alloc, true
}

func (h *Handlers) GetPoolAvailability(w http.ResponseWriter, r *http.Request) {
	alloc, ok := h.allocatorFromPath(w, r)
	if !ok {
		return
	}

	from, until, err := windowParams(r.URL.Query())
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	stock, err := alloc.Availability(r.Context(), from, until)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"available": stock,
		"unbounded": stock.IsUnbounded(),
	})
}

func (h *Handlers) QuotePool(w http.ResponseWriter, r *http.Request) {
	alloc, ok := h.allocatorFromPath(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	skip := 0
	if v := q.Get("skip"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			http.Error(w, "skip must be a non-negative integer", http.StatusBadRequest)
			return
		}
		skip = n
	}
	from, until, err := windowParams(q)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	quote, err := alloc.QuoteNextUnit(r.Context(), skip, from, until)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, quote)
}

func (h *Handlers) QuotePoolWithState(w http.ResponseWriter, r *http.Request) {
	alloc, ok := h.allocatorFromPath(w, r)
	if !ok {
		return
	}

	var req struct {
		Allocations []pool.Allocation `json:"allocations"`
		From        *time.Time        `json:"from,omitempty"`
		Until       *time.Time        `json:"until,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	quote, err := alloc.QuoteNextUnitGivenReservationState(r.Context(), req.Allocations, req.From, req.Until)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, quote)
}

func (h *Handlers) ClaimPool(w http.ResponseWriter, r *http.Request) {
	alloc, ok := h.allocatorFromPath(w, r)
	if !ok {
		return
	}

	var req claimRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	claims, err := alloc.ClaimPool(r.Context(), req.Quantity, ledger.ClaimOptions{
		Reference: req.Reference,
		From:      req.From,
		Until:     req.Until,
		Note:      req.Note,
	})
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, claims)
}

func (h *Handlers) ReleasePool(w http.ResponseWriter, r *http.Request) {
	alloc, ok := h.allocatorFromPath(w, r)
	if !ok {
		return
	}

	var req struct {
		Reference store.Reference `json:"reference"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	released, err := alloc.ReleasePool(r.Context(), req.Reference)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]int{"released": released})
}

func (h *Handlers) ValidatePool(w http.ResponseWriter, r *http.Request) {
	alloc, ok := h.allocatorFromPath(w, r)
	if !ok {
		return
	}

	warnings, err := alloc.ValidateConfiguration(r.Context())
	if err != nil {
		respondDomainError(w, err)
		return
	}
	if warnings == nil {
		warnings = []string{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"valid": true, "warnings": warnings})
}

// Helpers

func (h *Handlers) resourceFromPath(w http.ResponseWriter, r *http.Request, prefix string) (*resource.Resource, bool) {
	id := extractPathParam(r.URL.Path, prefix)
	if i := strings.IndexByte(id, '/'); i >= 0 {
		id = id[:i]
	}

	res, err := h.registry.Get(id)
	if err != nil {
		http.Error(w, "Resource not found", http.StatusNotFound)
		return nil, false
	}
	return res, true
}

func windowParams(q map[string][]string) (*time.Time, *time.Time, error) {
	parse := func(key string) (*time.Time, error) {
		values := q[key]
		if len(values) == 0 || values[0] == "" {
			return nil, nil
		}
		t, err := time.Parse(time.RFC3339, values[0])
		if err != nil {
			return nil, errors.New(key + " must be RFC3339")
		}
		return &t, nil
	}

	from, err := parse("from")
	if err != nil {
		return nil, nil, err
	}
	until, err := parse("until")
	if err != nil {
		return nil, nil, err
	}
	return from, until, nil
}

func respondDomainError(w http.ResponseWriter, err error) {
	var insufficient *ledger.InsufficientStockError
	if errors.As(err, &insufficient) {
		respondJSON(w, http.StatusConflict, map[string]any{
			"error":     "insufficient stock",
			"available": insufficient.Available,
			"requested": insufficient.Requested,
		})
		return
	}

	switch {
	case errors.Is(err, ledger.ErrInvalidQuantity):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, store.ErrEntryNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, resource.ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, pool.ErrNotPoolResource),
		errors.Is(err, pool.ErrPoolHasNoMembers),
		errors.Is(err, pool.ErrInvalidPoolConfiguration),
		errors.Is(err, pool.ErrNoPriceForUnit):
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func extractPathParam(path, prefix string) string {
	return strings.TrimPrefix(path, prefix)
}
