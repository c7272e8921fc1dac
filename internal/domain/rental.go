/**
 * @description
 * This file defines the core domain models for the rental-control service.
 * These structs represent the main entities and data transfer objects (DTOs)
 * used throughout the service's business logic, database interactions, and API layers.
 *
 * @notes
 * - Using distinct types for API requests, database models, and external service
 *   payloads ensures clear separation of concerns and type safety.
 * - Amounts are stored as `int64` to represent the value in the smallest currency
 *   unit (cents), which avoids floating-point inaccuracies with billing data.
 */

package domain

import "time"

// Scooter availability states as reported by the scooter registry.
const (
	AvailabilityAvailable    = "available"
	AvailabilityInUse        = "in_use"
	AvailabilityOutOfService = "out_of_service"
)

// Rental represents one scooter borrowed by one user for an interval, with a
// computed cost. This struct maps directly to the `rentals` table.
//
// EndedAt and AmountCents are nil while the rental is open and are always set
// together in a single update when it closes.
type Rental struct {
	ID          int64      `json:"id"`
	ScooterID   string     `json:"scooter_id"`
	UserID      string     `json:"user_id"`
	Card        string     `json:"card"`
	StartedAt   time.Time  `json:"started_at"`
	EndedAt     *time.Time `json:"ended_at,omitempty"`
	AmountCents *int64     `json:"amount_cents,omitempty"`
}

// Closed reports whether the rental has already been billed and ended.
func (r *Rental) Closed() bool {
	return r.EndedAt != nil
}

// StartRentalRequest is the DTO for incoming rental creation API requests.
type StartRentalRequest struct {
	ScooterID string `json:"scooter_id"`
	UserID    string `json:"user_id"`
	Card      string `json:"card"`
}

// EndRentalRequest is the DTO for closing a rental. EndedAt is required;
// Lat/Lng report the scooter's final position and are optional.
type EndRentalRequest struct {
	EndedAt time.Time `json:"ended_at"`
	Lat     *float64  `json:"lat,omitempty"`
	Lng     *float64  `json:"lng,omitempty"`
}

// Scooter mirrors the record owned by the scooter registry. The rental-control
// service never persists it; it is read to check preconditions and patched to
// flip availability.
type Scooter struct {
	Serial       string  `json:"serial"`
	Availability string  `json:"availability"`
	Lat          float64 `json:"lat"`
	Lng          float64 `json:"lng"`
}

// User mirrors the record owned by the user registry.
type User struct {
	CPF   string `json:"cpf"`
	Name  string `json:"nome"`
	Email string `json:"email"`
	Phone string `json:"telefone"`
}
