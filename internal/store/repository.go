/**
 * @description
 * This file defines the `Repository` interface, which specifies the contract for all
 * data access operations required by the rental-control service. By defining an
 * interface, we decouple the orchestration logic from the specific database
 * implementation (SQLite), making the code more modular and easier to test.
 *
 * @dependencies
 * - context, time: Standard Go libraries.
 * - internal/domain: For the service's domain models.
 */

package store

import (
	"context"
	"errors"
	"time"

	"github.com/patinete/aluguel-service/internal/domain"
)

var (
	ErrRentalNotFound = errors.New("rental not found")
)

// Repository defines the set of methods for interacting with the rental store.
//
// CloseRental and DeleteRental return the number of rows changed instead of an
// error for the zero-row case, so callers can tell "id does not exist" apart
// from a storage failure.
type Repository interface {
	// CreateRental inserts a new open rental and returns its assigned id.
	CreateRental(ctx context.Context, rental *domain.Rental) (int64, error)
	FindRentalByID(ctx context.Context, id int64) (*domain.Rental, error)
	ListRentals(ctx context.Context) ([]domain.Rental, error)
	ListRentalsByUser(ctx context.Context, userID string) ([]domain.Rental, error)
	ListRentalsByScooter(ctx context.Context, scooterID string) ([]domain.Rental, error)
	// CloseRental sets ended_at and amount_cents together, atomically, and only
	// on a rental that is still open.
	CloseRental(ctx context.Context, id int64, endedAt time.Time, amountCents int64) (int64, error)
	DeleteRental(ctx context.Context, id int64) (int64, error)
}
