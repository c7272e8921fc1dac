/**
 * @description
 * This file contains the core business logic for the rental-control service. The
 * `Service` struct orchestrates the rental lifecycle, coordinating between the local
 * rental store and the external collaborators (scooter registry, user registry, lock
 * controller, payment service).
 *
 * Key features:
 * - Implements the two sagas: StartRental and EndRental.
 * - Precondition lookups run concurrently and abort the operation with no mutation
 *   anywhere when they fail.
 * - The local store write is linearized before any external side effect is issued;
 *   the side effects themselves run in parallel and are all awaited before the
 *   response is finalized.
 * - Side-effect failures never roll back the committed rental row. They are logged,
 *   surfaced as warnings in the result, and published to the event bus so the drift
 *   can be reconciled out-of-band.
 *
 * @dependencies
 * - context, errors, fmt, log, time: Standard Go libraries.
 * - golang.org/x/sync/errgroup: Parallel precondition checks.
 * - internal/domain, internal/store: For domain models and data access.
 * - pkg/scooterclient, pkg/userclient, pkg/rabbitmq: For external service communication.
 */

package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/patinete/aluguel-service/internal/domain"
	"github.com/patinete/aluguel-service/internal/store"
	"github.com/patinete/aluguel-service/pkg/paymentclient"
	"github.com/patinete/aluguel-service/pkg/rabbitmq"
	"github.com/patinete/aluguel-service/pkg/scooterclient"
	"github.com/patinete/aluguel-service/pkg/userclient"
)

var (
	ErrScooterNotFound       = errors.New("scooter not found")
	ErrUserNotFound          = errors.New("user not found")
	ErrScooterUnavailable    = errors.New("scooter is not available")
	ErrRentalAlreadyClosed   = errors.New("rental is already closed")
	ErrInvalidRentalPeriod   = errors.New("rental end time must be after its start time")
	ErrDependencyUnavailable = errors.New("external dependency unavailable")
)

// ScooterRegistry is the subset of the scooter registry client used by the service.
type ScooterRegistry interface {
	GetScooter(ctx context.Context, serial string) (*scooterclient.Scooter, error)
	UpdateScooter(ctx context.Context, serial string, patch scooterclient.Patch) error
}

// UserRegistry is the subset of the user registry client used by the service.
type UserRegistry interface {
	GetUser(ctx context.Context, userID string) (*userclient.User, error)
}

// LockController drives a scooter's physical lock.
type LockController interface {
	SetLock(ctx context.Context, serial string, locked bool) error
}

// PaymentSubmitter records a charge with the payment service.
type PaymentSubmitter interface {
	Submit(ctx context.Context, payment paymentclient.Payment) error
}

// Service provides the core business logic for rentals.
type Service struct {
	repo     store.Repository
	scooters ScooterRegistry
	users    UserRegistry
	locks    LockController
	payments PaymentSubmitter
	events   rabbitmq.Publisher
	pricing  Pricing

	// retryBackoff is the wait before the single retry of an idempotent side
	// effect. Overridden in tests.
	retryBackoff time.Duration
	now          func() time.Time
}

// NewService creates a new rental service instance with all of its dependencies
// injected.
func NewService(
	repo store.Repository,
	scooters ScooterRegistry,
	users UserRegistry,
	locks LockController,
	payments PaymentSubmitter,
	events rabbitmq.Publisher,
	pricing Pricing,
) *Service {
	return &Service{
		repo:         repo,
		scooters:     scooters,
		users:        users,
		locks:        locks,
		payments:     payments,
		events:       events,
		pricing:      pricing,
		retryBackoff: 500 * time.Millisecond,
		now:          time.Now,
	}
}

// StartRentalInput carries the validated fields of a rental creation request.
type StartRentalInput struct {
	ScooterID string
	UserID    string
	Card      string
}

// StartRentalResult is the outcome of a successful StartRental. Warnings lists
// the side effects that could not be completed; the rental itself is committed
// regardless.
type StartRentalResult struct {
	Rental   *domain.Rental
	Warnings []string
}

// StartRental opens a rental: it checks that the scooter and user exist and that
// the scooter is available, commits the rental row, and then unlocks the scooter
// and marks it in use.
func (s *Service) StartRental(ctx context.Context, input StartRentalInput) (*StartRentalResult, error) {
	// 1. Precondition lookups against independent registries, in parallel.
	// Any failure here aborts the operation before anything is mutated.
	var (
		scooter *scooterclient.Scooter
		g, gctx = errgroup.WithContext(ctx)
	)
	g.Go(func() error {
		found, err := s.scooters.GetScooter(gctx, input.ScooterID)
		if err != nil {
			if errors.Is(err, scooterclient.ErrScooterNotFound) {
				return ErrScooterNotFound
			}
			return fmt.Errorf("%w: scooter lookup: %v", ErrDependencyUnavailable, err)
		}
		scooter = found
		return nil
	})
	g.Go(func() error {
		if _, err := s.users.GetUser(gctx, input.UserID); err != nil {
			if errors.Is(err, userclient.ErrUserNotFound) {
				return ErrUserNotFound
			}
			return fmt.Errorf("%w: user lookup: %v", ErrDependencyUnavailable, err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		log.Printf("level=warn component=app operation=start_rental outcome=reject scooter_id=%s user_id=%s err=%v", input.ScooterID, input.UserID, err)
		return nil, err
	}

	if scooter.Availability != domain.AvailabilityAvailable {
		log.Printf("level=warn component=app operation=start_rental outcome=reject reason=unavailable scooter_id=%s availability=%s", input.ScooterID, scooter.Availability)
		return nil, ErrScooterUnavailable
	}

	// 2. Commit the rental row before any external mutation is issued, so a
	// client-visible success always has local state behind it.
	rental := &domain.Rental{
		ScooterID: input.ScooterID,
		UserID:    input.UserID,
		Card:      input.Card,
		StartedAt: s.now().UTC(),
	}
	if _, err := s.repo.CreateRental(ctx, rental); err != nil {
		return nil, fmt.Errorf("failed to create rental record: %w", err)
	}
	log.Printf("level=info component=app operation=start_rental outcome=committed rental_id=%d scooter_id=%s user_id=%s", rental.ID, input.ScooterID, input.UserID)

	// 3. Physical side effects, in parallel, all awaited. Failures are warnings,
	// never rollbacks: the rental record is the source of truth.
	inUse := domain.AvailabilityInUse
	warnings := s.runSideEffects(ctx, rental, []sideEffect{
		{
			name:  "unlock_scooter",
			retry: true,
			run: func(ctx context.Context) error {
				return s.locks.SetLock(ctx, rental.ScooterID, false)
			},
		},
		{
			name:  "mark_scooter_in_use",
			retry: true,
			run: func(ctx context.Context) error {
				return s.scooters.UpdateScooter(ctx, rental.ScooterID, scooterclient.Patch{Availability: &inUse})
			},
		},
	})

	s.publishEvent(ctx, rabbitmq.RentalStartedKey, rabbitmq.RentalEvent{
		RentalID:  rental.ID,
		ScooterID: rental.ScooterID,
		UserID:    rental.UserID,
	})

	return &StartRentalResult{Rental: rental, Warnings: warnings}, nil
}

// EndRentalInput carries the validated fields of a rental close request.
type EndRentalInput struct {
	RentalID int64
	EndedAt  time.Time
	Lat      *float64
	Lng      *float64
}

// EndRentalResult is the outcome of a successful EndRental.
type EndRentalResult struct {
	Rental   *domain.Rental
	Warnings []string
}

// EndRental closes a rental: it computes the cost, atomically stamps the row
// with end time and amount, and then locks the scooter, returns it to the
// available pool, and submits the payment.
//
// Closing an already-closed rental fails with ErrRentalAlreadyClosed; the
// recorded amount is never recomputed and the payment is never re-submitted.
func (s *Service) EndRental(ctx context.Context, input EndRentalInput) (*EndRentalResult, error) {
	rental, err := s.repo.FindRentalByID(ctx, input.RentalID)
	if err != nil {
		return nil, err
	}
	if rental.Closed() {
		log.Printf("level=warn component=app operation=end_rental outcome=reject reason=already_closed rental_id=%d", rental.ID)
		return nil, ErrRentalAlreadyClosed
	}

	amountCents, err := s.pricing.CostCents(rental.StartedAt, input.EndedAt)
	if err != nil {
		return nil, err
	}

	endedAt := input.EndedAt.UTC()
	changed, err := s.repo.CloseRental(ctx, rental.ID, endedAt, amountCents)
	if err != nil {
		return nil, fmt.Errorf("failed to close rental record: %w", err)
	}
	if changed == 0 {
		// The row was deleted or closed by a concurrent request between the
		// lookup and the update.
		if current, findErr := s.repo.FindRentalByID(ctx, rental.ID); findErr == nil && current.Closed() {
			return nil, ErrRentalAlreadyClosed
		}
		return nil, store.ErrRentalNotFound
	}
	rental.EndedAt = &endedAt
	rental.AmountCents = &amountCents
	log.Printf("level=info component=app operation=end_rental outcome=committed rental_id=%d amount_cents=%d", rental.ID, amountCents)

	available := domain.AvailabilityAvailable
	warnings := s.runSideEffects(ctx, rental, []sideEffect{
		{
			name:  "lock_scooter",
			retry: true,
			run: func(ctx context.Context) error {
				return s.locks.SetLock(ctx, rental.ScooterID, true)
			},
		},
		{
			name:  "mark_scooter_available",
			retry: true,
			run: func(ctx context.Context) error {
				patch := scooterclient.Patch{Availability: &available, Lat: input.Lat, Lng: input.Lng}
				return s.scooters.UpdateScooter(ctx, rental.ScooterID, patch)
			},
		},
		{
			// Payment is at-most-once: a timeout cannot be told apart from a
			// submission that went through, so it is never retried.
			name: "submit_payment",
			run: func(ctx context.Context) error {
				return s.payments.Submit(ctx, paymentclient.Payment{
					UserID: rental.UserID,
					Amount: float64(amountCents) / 100,
					Card:   rental.Card,
				})
			},
		},
	})

	s.publishEvent(ctx, rabbitmq.RentalFinishedKey, rabbitmq.RentalEvent{
		RentalID:    rental.ID,
		ScooterID:   rental.ScooterID,
		UserID:      rental.UserID,
		AmountCents: &amountCents,
	})

	return &EndRentalResult{Rental: rental, Warnings: warnings}, nil
}

// GetRental returns one rental by id.
func (s *Service) GetRental(ctx context.Context, id int64) (*domain.Rental, error) {
	return s.repo.FindRentalByID(ctx, id)
}

// ListRentals returns every rental on record.
func (s *Service) ListRentals(ctx context.Context) ([]domain.Rental, error) {
	return s.repo.ListRentals(ctx)
}

// ListRentalsByUser returns all rentals of one user.
func (s *Service) ListRentalsByUser(ctx context.Context, userID string) ([]domain.Rental, error) {
	return s.repo.ListRentalsByUser(ctx, userID)
}

// ListRentalsByScooter returns all rentals of one scooter.
func (s *Service) ListRentalsByScooter(ctx context.Context, scooterID string) ([]domain.Rental, error) {
	return s.repo.ListRentalsByScooter(ctx, scooterID)
}

// DeleteRental removes a rental record. This is an administrative path and does
// not touch any external service.
func (s *Service) DeleteRental(ctx context.Context, id int64) error {
	changed, err := s.repo.DeleteRental(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to delete rental record: %w", err)
	}
	if changed == 0 {
		return store.ErrRentalNotFound
	}
	return nil
}

// sideEffect is one external mutation attempted after the local commit.
// Effects marked retry get a single bounded retry; payment submission must not.
type sideEffect struct {
	name  string
	retry bool
	run   func(ctx context.Context) error
}

// runSideEffects attempts every effect in parallel and waits for all of them.
// Each failure is logged, published to the event bus, and returned as a warning
// string for the response payload.
func (s *Service) runSideEffects(ctx context.Context, rental *domain.Rental, effects []sideEffect) []string {
	results := make([]error, len(effects))
	var wg sync.WaitGroup
	for i, effect := range effects {
		wg.Add(1)
		go func(i int, effect sideEffect) {
			defer wg.Done()
			results[i] = s.attempt(ctx, effect)
		}(i, effect)
	}
	wg.Wait()

	var warnings []string
	for i, err := range results {
		if err == nil {
			continue
		}
		effect := effects[i]
		log.Printf("level=error component=app operation=side_effect effect=%s rental_id=%d scooter_id=%s err=%v", effect.name, rental.ID, rental.ScooterID, err)
		warnings = append(warnings, fmt.Sprintf("%s failed: %v", effect.name, err))
		s.publishEvent(ctx, rabbitmq.RentalSideEffectFailedKey, rabbitmq.RentalEvent{
			RentalID:  rental.ID,
			ScooterID: rental.ScooterID,
			UserID:    rental.UserID,
			Effect:    effect.name,
			Reason:    err.Error(),
		})
	}
	return warnings
}

// attempt runs one effect, retrying idempotent ones once after a short backoff.
func (s *Service) attempt(ctx context.Context, effect sideEffect) error {
	err := effect.run(ctx)
	if err == nil || !effect.retry {
		return err
	}
	select {
	case <-time.After(s.retryBackoff):
	case <-ctx.Done():
		return err
	}
	if retryErr := effect.run(ctx); retryErr != nil {
		return retryErr
	}
	return nil
}

func (s *Service) publishEvent(ctx context.Context, routingKey string, event rabbitmq.RentalEvent) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishRentalEvent(ctx, routingKey, event); err != nil {
		log.Printf("level=warn component=app msg=\"event publish failed\" routing_key=%s rental_id=%d err=%v", routingKey, event.RentalID, err)
	}
}
