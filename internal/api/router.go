/**
 * @description
 * This file sets up the HTTP router for the transaction-service. It defines
 * the API endpoints, associates them with their handlers, and applies
 * middleware for logging, panic recovery, timeouts, and CORS.
 *
 * @dependencies
 * - github.com/go-chi/chi/v5: A lightweight and idiomatic router for Go.
 */

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// TransactionRoutes creates and returns the router for the transaction
// service.
func TransactionRoutes(h *TransactionHandlers) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(withCORS)

	r.Get("/health", h.HealthHandler)

	r.Post("/transactions", h.CreateTransactionHandler)
	r.Get("/transactions", h.ListHandler)
	r.Get("/transactions/{identity}", h.HistoryHandler)

	return r
}

// withCORS mirrors the permissive CORS policy of the other services in the
// platform; browser clients call this API directly.
func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
