package api

import (
	"net/http"
	"strings"

	"github.com/example/stock-ledger/internal/api/middleware"
	"github.com/example/stock-ledger/internal/auth"
)

func NewRouter(handlers *Handlers, jwtService *auth.JWTService) http.Handler {
	mux := http.NewServeMux()

	authRequired := middleware.AuthMiddleware(jwtService)
	protect := func(h http.HandlerFunc) http.Handler {
		return authRequired(h)
	}

	// Resources
	mux.Handle("/resources", protect(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			handlers.RegisterResource(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	}))

	mux.HandleFunc("/resources/", func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Path
		switch {
		case strings.HasSuffix(path, "/availability") && r.Method == http.MethodGet:
			handlers.GetAvailability(w, r)
		case strings.HasSuffix(path, "/summary") && r.Method == http.MethodGet:
			handlers.GetAvailabilitySummary(w, r)
		case strings.HasSuffix(path, "/claimed") && r.Method == http.MethodGet:
			handlers.GetClaimed(w, r)
		case strings.HasSuffix(path, "/capacity") && r.Method == http.MethodGet:
			handlers.GetCapacity(w, r)
		case strings.HasSuffix(path, "/calendar") && r.Method == http.MethodGet:
			handlers.GetCalendar(w, r)
		case strings.HasSuffix(path, "/timeline") && r.Method == http.MethodGet:
			handlers.GetDayTimeline(w, r)
		case strings.HasSuffix(path, "/price") && r.Method == http.MethodGet:
			handlers.GetPrice(w, r)
		case strings.HasSuffix(path, "/price") && r.Method == http.MethodPut:
			protect(handlers.SetPrice).ServeHTTP(w, r)
		case strings.HasSuffix(path, "/increase") && r.Method == http.MethodPost:
			protect(handlers.IncreaseStock).ServeHTTP(w, r)
		case strings.HasSuffix(path, "/decrease") && r.Method == http.MethodPost:
			protect(handlers.DecreaseStock).ServeHTTP(w, r)
		case strings.HasSuffix(path, "/claims") && r.Method == http.MethodPost:
			protect(handlers.CreateClaim).ServeHTTP(w, r)
		case strings.HasSuffix(path, "/release") && r.Method == http.MethodPost:
			protect(handlers.ReleaseClaim).ServeHTTP(w, r)
		default:
			http.Error(w, "Not found", http.StatusNotFound)
		}
	})

	// Pools
	mux.HandleFunc("/pools/", func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Path
		switch {
		case strings.HasSuffix(path, "/availability") && r.Method == http.MethodGet:
			handlers.GetPoolAvailability(w, r)
		case strings.HasSuffix(path, "/quote") && r.Method == http.MethodGet:
			handlers.QuotePool(w, r)
		case strings.HasSuffix(path, "/quote") && r.Method == http.MethodPost:
			handlers.QuotePoolWithState(w, r)
		case strings.HasSuffix(path, "/validate") && r.Method == http.MethodGet:
			handlers.ValidatePool(w, r)
		case strings.HasSuffix(path, "/claims") && r.Method == http.MethodPost:
			protect(handlers.ClaimPool).ServeHTTP(w, r)
		case strings.HasSuffix(path, "/release") && r.Method == http.MethodPost:
			protect(handlers.ReleasePool).ServeHTTP(w, r)
		default:
			http.Error(w, "Not found", http.StatusNotFound)
		}
	})

	return withLogging(mux)
}

func withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		println("[API]", r.Method, r.URL.Path)
		next.ServeHTTP(w, r)
	})
}
