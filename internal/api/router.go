/**
 * @description
 * This file sets up the HTTP router for the rental-control service. It defines the
 * API endpoints, associates them with their corresponding handlers, and applies
 * standard middleware. The API gateway proxies the `/aluguel` path prefix to this
 * service unchanged, so the routes are mounted under that prefix by main.
 *
 * @dependencies
 * - net/http: Standard Go library for HTTP functionality.
 * - github.com/go-chi/chi/v5: A lightweight and idiomatic router for Go.
 */

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// RentalRoutes creates and returns a new router for the rental service.
func RentalRoutes(h *RentalHandlers) http.Handler {
	r := chi.NewRouter()

	// Add standard middleware for logging, panic recovery, and timeouts.
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	// Health check endpoint
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("healthy"))
	})

	r.Post("/", h.StartRentalHandler)
	r.Get("/", h.ListRentalsHandler)
	r.Get("/{id}", h.GetRentalHandler)
	r.Get("/usuario/{userID}", h.ListRentalsByUserHandler)
	r.Get("/patinete/{scooterID}", h.ListRentalsByScooterHandler)
	r.Patch("/{id}", h.EndRentalHandler)
	r.Delete("/{id}", h.DeleteRentalHandler)

	return r
}
