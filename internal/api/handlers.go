/**
 * @description
 * This file contains the HTTP handlers for the rental-control service's API
 * endpoints. Handlers are responsible for parsing incoming requests, calling the
 * appropriate methods on the application service, and writing the HTTP response.
 * They act as the bridge between the web layer and the orchestration logic.
 *
 * @dependencies
 * - encoding/json, log, net/http: Standard Go libraries.
 * - github.com/go-chi/chi/v5: For URL parameter extraction.
 * - internal/app, internal/domain, internal/store: For service logic, models, and custom errors.
 */

package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/patinete/aluguel-service/internal/app"
	"github.com/patinete/aluguel-service/internal/domain"
	"github.com/patinete/aluguel-service/internal/store"
)

// RentalHandlers holds the application service that handlers will use.
type RentalHandlers struct {
	service *app.Service
}

// NewRentalHandlers creates a new instance of RentalHandlers.
func NewRentalHandlers(service *app.Service) *RentalHandlers {
	return &RentalHandlers{service: service}
}

// startRentalResponse is sent back once a rental has been committed. Warnings
// lists side effects that could not be completed; their presence does not turn
// the response into a failure, but it must never be silently dropped either.
type startRentalResponse struct {
	RentalID  int64    `json:"rental_id"`
	ScooterID string   `json:"scooter_id"`
	Message   string   `json:"message"`
	Warnings  []string `json:"warnings,omitempty"`
}

// endRentalResponse carries the computed amount for a closed rental.
type endRentalResponse struct {
	RentalID    int64    `json:"rental_id"`
	AmountCents int64    `json:"amount_cents"`
	Message     string   `json:"message"`
	Warnings    []string `json:"warnings,omitempty"`
}

// StartRentalHandler handles POST / and opens a new rental.
func (h *RentalHandlers) StartRentalHandler(w http.ResponseWriter, r *http.Request) {
	var req domain.StartRentalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Printf("level=warn component=api endpoint=start_rental outcome=reject reason=invalid_json err=%v", err)
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.ScooterID == "" || req.UserID == "" || req.Card == "" {
		h.writeError(w, http.StatusBadRequest, "scooter_id, user_id and card are required")
		return
	}

	result, err := h.service.StartRental(r.Context(), app.StartRentalInput{
		ScooterID: req.ScooterID,
		UserID:    req.UserID,
		Card:      req.Card,
	})
	if err != nil {
		h.writeServiceError(w, "start_rental", err)
		return
	}

	message := "Rental started"
	if len(result.Warnings) > 0 {
		message = "Rental started with degraded side effects"
	}
	h.writeJSON(w, http.StatusOK, startRentalResponse{
		RentalID:  result.Rental.ID,
		ScooterID: result.Rental.ScooterID,
		Message:   message,
		Warnings:  result.Warnings,
	})
}

// EndRentalHandler handles PATCH /{id} and closes a rental.
func (h *RentalHandlers) EndRentalHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := h.rentalID(w, r)
	if !ok {
		return
	}

	var req domain.EndRentalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Printf("level=warn component=api endpoint=end_rental outcome=reject reason=invalid_json rental_id=%d err=%v", id, err)
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.EndedAt.IsZero() {
		h.writeError(w, http.StatusBadRequest, "ended_at is required")
		return
	}

	result, err := h.service.EndRental(r.Context(), app.EndRentalInput{
		RentalID: id,
		EndedAt:  req.EndedAt,
		Lat:      req.Lat,
		Lng:      req.Lng,
	})
	if err != nil {
		h.writeServiceError(w, "end_rental", err)
		return
	}

	message := "Rental closed"
	if len(result.Warnings) > 0 {
		message = "Rental closed with degraded side effects"
	}
	h.writeJSON(w, http.StatusOK, endRentalResponse{
		RentalID:    result.Rental.ID,
		AmountCents: *result.Rental.AmountCents,
		Message:     message,
		Warnings:    result.Warnings,
	})
}

// GetRentalHandler handles GET /{id}.
func (h *RentalHandlers) GetRentalHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := h.rentalID(w, r)
	if !ok {
		return
	}
	rental, err := h.service.GetRental(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, "get_rental", err)
		return
	}
	h.writeJSON(w, http.StatusOK, rental)
}

// ListRentalsHandler handles GET /. An empty store is a 200 with an empty list,
// not an error.
func (h *RentalHandlers) ListRentalsHandler(w http.ResponseWriter, r *http.Request) {
	rentals, err := h.service.ListRentals(r.Context())
	if err != nil {
		h.writeServiceError(w, "list_rentals", err)
		return
	}
	h.writeJSON(w, http.StatusOK, rentals)
}

// ListRentalsByUserHandler handles GET /usuario/{userID}.
func (h *RentalHandlers) ListRentalsByUserHandler(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	rentals, err := h.service.ListRentalsByUser(r.Context(), userID)
	if err != nil {
		h.writeServiceError(w, "list_rentals_by_user", err)
		return
	}
	if len(rentals) == 0 {
		h.writeError(w, http.StatusNotFound, "No rentals found for user")
		return
	}
	h.writeJSON(w, http.StatusOK, rentals)
}

// ListRentalsByScooterHandler handles GET /patinete/{scooterID}.
func (h *RentalHandlers) ListRentalsByScooterHandler(w http.ResponseWriter, r *http.Request) {
	scooterID := chi.URLParam(r, "scooterID")
	rentals, err := h.service.ListRentalsByScooter(r.Context(), scooterID)
	if err != nil {
		h.writeServiceError(w, "list_rentals_by_scooter", err)
		return
	}
	if len(rentals) == 0 {
		h.writeError(w, http.StatusNotFound, "No rentals found for scooter")
		return
	}
	h.writeJSON(w, http.StatusOK, rentals)
}

// DeleteRentalHandler handles DELETE /{id}.
func (h *RentalHandlers) DeleteRentalHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := h.rentalID(w, r)
	if !ok {
		return
	}
	if err := h.service.DeleteRental(r.Context(), id); err != nil {
		h.writeServiceError(w, "delete_rental", err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"message": "Rental removed"})
}

func (h *RentalHandlers) rentalID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid rental id")
		return 0, false
	}
	return id, true
}

// writeServiceError maps the service error taxonomy onto HTTP status codes:
// not-found 404, conflict 409, invalid argument 400, dependency failure 502,
// everything else 500.
func (h *RentalHandlers) writeServiceError(w http.ResponseWriter, endpoint string, err error) {
	switch {
	case errors.Is(err, app.ErrScooterNotFound):
		h.writeError(w, http.StatusNotFound, "Scooter not found")
	case errors.Is(err, app.ErrUserNotFound):
		h.writeError(w, http.StatusNotFound, "User not found")
	case errors.Is(err, store.ErrRentalNotFound):
		h.writeError(w, http.StatusNotFound, "Rental not found")
	case errors.Is(err, app.ErrScooterUnavailable):
		h.writeError(w, http.StatusConflict, "Scooter is not available")
	case errors.Is(err, app.ErrRentalAlreadyClosed):
		h.writeError(w, http.StatusConflict, "Rental is already closed")
	case errors.Is(err, app.ErrInvalidRentalPeriod):
		h.writeError(w, http.StatusBadRequest, "Rental end time must be after its start time")
	case errors.Is(err, app.ErrDependencyUnavailable):
		h.writeError(w, http.StatusBadGateway, "An external dependency is unavailable")
	default:
		log.Printf("level=error component=api endpoint=%s msg=\"unhandled service error\" err=%v", endpoint, err)
		h.writeError(w, http.StatusInternalServerError, "Internal error")
	}
}

func (h *RentalHandlers) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Printf("level=error component=api msg=\"response encode failed\" err=%v", err)
	}
}

func (h *RentalHandlers) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
