package app

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/patinete/aluguel-service/internal/domain"
	"github.com/patinete/aluguel-service/internal/store"
	"github.com/patinete/aluguel-service/pkg/paymentclient"
	"github.com/patinete/aluguel-service/pkg/rabbitmq"
	"github.com/patinete/aluguel-service/pkg/scooterclient"
	"github.com/patinete/aluguel-service/pkg/userclient"
)

// fakeRepo is an in-memory Repository used to observe the orchestrator's store
// mutations without a database.
type fakeRepo struct {
	mu        sync.Mutex
	nextID    int64
	rentals   map[int64]*domain.Rental
	createErr error
	closeErr  error
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{rentals: map[int64]*domain.Rental{}}
}

func (r *fakeRepo) CreateRental(ctx context.Context, rental *domain.Rental) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.createErr != nil {
		return 0, r.createErr
	}
	r.nextID++
	rental.ID = r.nextID
	stored := *rental
	r.rentals[rental.ID] = &stored
	return rental.ID, nil
}

func (r *fakeRepo) FindRentalByID(ctx context.Context, id int64) (*domain.Rental, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rental, ok := r.rentals[id]
	if !ok {
		return nil, store.ErrRentalNotFound
	}
	copied := *rental
	return &copied, nil
}

func (r *fakeRepo) ListRentals(ctx context.Context) ([]domain.Rental, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rentals := []domain.Rental{}
	for _, rental := range r.rentals {
		rentals = append(rentals, *rental)
	}
	return rentals, nil
}

func (r *fakeRepo) ListRentalsByUser(ctx context.Context, userID string) ([]domain.Rental, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rentals := []domain.Rental{}
	for _, rental := range r.rentals {
		if rental.UserID == userID {
			rentals = append(rentals, *rental)
		}
	}
	return rentals, nil
}

func (r *fakeRepo) ListRentalsByScooter(ctx context.Context, scooterID string) ([]domain.Rental, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rentals := []domain.Rental{}
	for _, rental := range r.rentals {
		if rental.ScooterID == scooterID {
			rentals = append(rentals, *rental)
		}
	}
	return rentals, nil
}

func (r *fakeRepo) CloseRental(ctx context.Context, id int64, endedAt time.Time, amountCents int64) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closeErr != nil {
		return 0, r.closeErr
	}
	rental, ok := r.rentals[id]
	if !ok || rental.EndedAt != nil {
		return 0, nil
	}
	ended := endedAt
	rental.EndedAt = &ended
	rental.AmountCents = &amountCents
	return 1, nil
}

func (r *fakeRepo) DeleteRental(ctx context.Context, id int64) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.rentals[id]; !ok {
		return 0, nil
	}
	delete(r.rentals, id)
	return 1, nil
}

func (r *fakeRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rentals)
}

type stubScooters struct {
	mu      sync.Mutex
	scooter *scooterclient.Scooter
	getErr  error

	updateErr      error
	updateFailures int
	updates        []scooterclient.Patch
}

func (s *stubScooters) GetScooter(ctx context.Context, serial string) (*scooterclient.Scooter, error) {
	if s.getErr != nil {
		return nil, s.getErr
	}
	return s.scooter, nil
}

func (s *stubScooters) UpdateScooter(ctx context.Context, serial string, patch scooterclient.Patch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.updateFailures > 0 {
		s.updateFailures--
		return errors.New("registry timeout")
	}
	if s.updateErr != nil {
		return s.updateErr
	}
	s.updates = append(s.updates, patch)
	return nil
}

func (s *stubScooters) recordedUpdates() []scooterclient.Patch {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]scooterclient.Patch{}, s.updates...)
}

type stubUsers struct {
	getErr error
}

func (s *stubUsers) GetUser(ctx context.Context, userID string) (*userclient.User, error) {
	if s.getErr != nil {
		return nil, s.getErr
	}
	return &userclient.User{CPF: userID}, nil
}

type stubLocks struct {
	mu       sync.Mutex
	err      error
	failures int
	calls    []bool
}

func (s *stubLocks) SetLock(ctx context.Context, serial string, locked bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, locked)
	if s.failures > 0 {
		s.failures--
		return errors.New("controller timeout")
	}
	return s.err
}

func (s *stubLocks) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

type stubPayments struct {
	mu       sync.Mutex
	err      error
	payments []paymentclient.Payment
}

func (s *stubPayments) Submit(ctx context.Context, payment paymentclient.Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.payments = append(s.payments, payment)
	return s.err
}

func (s *stubPayments) submitted() []paymentclient.Payment {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]paymentclient.Payment{}, s.payments...)
}

type stubEvents struct {
	mu     sync.Mutex
	events []rabbitmq.RentalEvent
	keys   []string
}

func (s *stubEvents) Publish(ctx context.Context, exchange, routingKey string, body interface{}) error {
	return nil
}

func (s *stubEvents) PublishRentalEvent(ctx context.Context, routingKey string, event rabbitmq.RentalEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keys = append(s.keys, routingKey)
	s.events = append(s.events, event)
	return nil
}

func (s *stubEvents) Close() {}

func (s *stubEvents) published() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string{}, s.keys...)
}

type serviceFixture struct {
	service  *Service
	repo     *fakeRepo
	scooters *stubScooters
	users    *stubUsers
	locks    *stubLocks
	payments *stubPayments
	events   *stubEvents
}

func newServiceFixture() *serviceFixture {
	f := &serviceFixture{
		repo: newFakeRepo(),
		scooters: &stubScooters{
			scooter: &scooterclient.Scooter{Serial: "77", Availability: domain.AvailabilityAvailable},
		},
		users:    &stubUsers{},
		locks:    &stubLocks{},
		payments: &stubPayments{},
		events:   &stubEvents{},
	}
	f.service = NewService(f.repo, f.scooters, f.users, f.locks, f.payments, f.events, DefaultPricing)
	f.service.retryBackoff = 0
	f.service.now = func() time.Time {
		return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	}
	return f
}

func startInput() StartRentalInput {
	return StartRentalInput{ScooterID: "77", UserID: "123", Card: "4111"}
}

func TestStartRentalCreatesRentalAndFlipsAvailability(t *testing.T) {
	f := newServiceFixture()

	result, err := f.service.StartRental(context.Background(), startInput())
	if err != nil {
		t.Fatalf("StartRental returned error: %v", err)
	}
	if result.Rental.ID == 0 {
		t.Fatal("expected an assigned rental id")
	}
	if result.Rental.EndedAt != nil || result.Rental.AmountCents != nil {
		t.Fatal("expected a new rental to be open with no amount")
	}
	if len(result.Warnings) != 0 {
		t.Fatalf("expected no warnings, got %v", result.Warnings)
	}
	if f.repo.count() != 1 {
		t.Fatalf("expected exactly one rental row, got %d", f.repo.count())
	}

	updates := f.scooters.recordedUpdates()
	if len(updates) != 1 || updates[0].Availability == nil || *updates[0].Availability != domain.AvailabilityInUse {
		t.Fatalf("expected one availability update to in_use, got %+v", updates)
	}
	calls := f.locks.callCount()
	if calls != 1 {
		t.Fatalf("expected one lock controller call, got %d", calls)
	}
	if f.locks.calls[0] {
		t.Fatal("expected the scooter to be unlocked on start")
	}
}

func TestStartRentalRejectsUnavailableScooter(t *testing.T) {
	f := newServiceFixture()
	f.scooters.scooter.Availability = domain.AvailabilityInUse

	_, err := f.service.StartRental(context.Background(), startInput())
	if !errors.Is(err, ErrScooterUnavailable) {
		t.Fatalf("expected ErrScooterUnavailable, got %v", err)
	}
	if f.repo.count() != 0 {
		t.Fatalf("expected zero rental rows, got %d", f.repo.count())
	}
	if f.locks.callCount() != 0 {
		t.Fatal("expected no lock controller calls")
	}
}

func TestStartRentalRejectsMissingScooter(t *testing.T) {
	f := newServiceFixture()
	f.scooters.getErr = scooterclient.ErrScooterNotFound

	_, err := f.service.StartRental(context.Background(), startInput())
	if !errors.Is(err, ErrScooterNotFound) {
		t.Fatalf("expected ErrScooterNotFound, got %v", err)
	}
	if f.repo.count() != 0 {
		t.Fatalf("expected zero rental rows, got %d", f.repo.count())
	}
}

func TestStartRentalRejectsMissingUser(t *testing.T) {
	f := newServiceFixture()
	f.users.getErr = userclient.ErrUserNotFound

	_, err := f.service.StartRental(context.Background(), startInput())
	if !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
	if f.repo.count() != 0 {
		t.Fatalf("expected zero rental rows, got %d", f.repo.count())
	}
}

func TestStartRentalAbortsWhenPreconditionLookupFails(t *testing.T) {
	f := newServiceFixture()
	f.users.getErr = errors.New("registry timeout")

	_, err := f.service.StartRental(context.Background(), startInput())
	if !errors.Is(err, ErrDependencyUnavailable) {
		t.Fatalf("expected ErrDependencyUnavailable, got %v", err)
	}
	if f.repo.count() != 0 {
		t.Fatalf("expected zero rental rows, got %d", f.repo.count())
	}
}

func TestStartRentalKeepsRentalWhenSideEffectsFail(t *testing.T) {
	f := newServiceFixture()
	// Both attempts of both effects fail.
	f.locks.failures = 2
	f.scooters.updateFailures = 2

	result, err := f.service.StartRental(context.Background(), startInput())
	if err != nil {
		t.Fatalf("StartRental returned error: %v", err)
	}
	if len(result.Warnings) != 2 {
		t.Fatalf("expected two warnings, got %v", result.Warnings)
	}
	if f.repo.count() != 1 {
		t.Fatal("expected the rental row to stay committed")
	}

	keys := f.events.published()
	failed := 0
	for _, key := range keys {
		if key == rabbitmq.RentalSideEffectFailedKey {
			failed++
		}
	}
	if failed != 2 {
		t.Fatalf("expected two side-effect failure events, got %v", keys)
	}
}

func TestStartRentalRetriesIdempotentSideEffectsOnce(t *testing.T) {
	f := newServiceFixture()
	// First unlock attempt fails, the retry succeeds.
	f.locks.failures = 1

	result, err := f.service.StartRental(context.Background(), startInput())
	if err != nil {
		t.Fatalf("StartRental returned error: %v", err)
	}
	if len(result.Warnings) != 0 {
		t.Fatalf("expected retry to clear the warning, got %v", result.Warnings)
	}
	if f.locks.callCount() != 2 {
		t.Fatalf("expected two lock controller calls, got %d", f.locks.callCount())
	}
}

func openRental(t *testing.T, f *serviceFixture) *domain.Rental {
	t.Helper()
	result, err := f.service.StartRental(context.Background(), startInput())
	if err != nil {
		t.Fatalf("StartRental returned error: %v", err)
	}
	return result.Rental
}

func TestEndRentalComputesAmountAndSubmitsPayment(t *testing.T) {
	f := newServiceFixture()
	rental := openRental(t, f)

	result, err := f.service.EndRental(context.Background(), EndRentalInput{
		RentalID: rental.ID,
		EndedAt:  rental.StartedAt.Add(10 * time.Minute),
	})
	if err != nil {
		t.Fatalf("EndRental returned error: %v", err)
	}
	if result.Rental.AmountCents == nil || *result.Rental.AmountCents != 650 {
		t.Fatalf("expected 650 cents for a 10 minute rental, got %v", result.Rental.AmountCents)
	}
	if result.Rental.EndedAt == nil {
		t.Fatal("expected the rental to be closed")
	}

	payments := f.payments.submitted()
	if len(payments) != 1 {
		t.Fatalf("expected exactly one payment submission, got %d", len(payments))
	}
	if payments[0].Amount != 6.5 || payments[0].UserID != "123" || payments[0].Card != "4111" {
		t.Fatalf("unexpected payment payload: %+v", payments[0])
	}

	stored, err := f.repo.FindRentalByID(context.Background(), rental.ID)
	if err != nil {
		t.Fatalf("FindRentalByID returned error: %v", err)
	}
	if stored.EndedAt == nil || stored.AmountCents == nil {
		t.Fatal("expected ended_at and amount to be persisted together")
	}
}

func TestEndRentalLocksScooterAndReportsPosition(t *testing.T) {
	f := newServiceFixture()
	rental := openRental(t, f)

	lat, lng := -23.55, -46.63
	_, err := f.service.EndRental(context.Background(), EndRentalInput{
		RentalID: rental.ID,
		EndedAt:  rental.StartedAt.Add(5 * time.Minute),
		Lat:      &lat,
		Lng:      &lng,
	})
	if err != nil {
		t.Fatalf("EndRental returned error: %v", err)
	}

	updates := f.scooters.recordedUpdates()
	// First update is the in_use flip from StartRental.
	if len(updates) != 2 {
		t.Fatalf("expected two availability updates, got %d", len(updates))
	}
	final := updates[1]
	if final.Availability == nil || *final.Availability != domain.AvailabilityAvailable {
		t.Fatalf("expected availability to return to available, got %+v", final)
	}
	if final.Lat == nil || *final.Lat != lat || final.Lng == nil || *final.Lng != lng {
		t.Fatalf("expected the final position to be forwarded, got %+v", final)
	}

	calls := f.locks.calls
	if len(calls) != 2 || !calls[1] {
		t.Fatalf("expected the scooter to be locked on end, got %v", calls)
	}
}

func TestEndRentalIsNotRepeatable(t *testing.T) {
	f := newServiceFixture()
	rental := openRental(t, f)

	input := EndRentalInput{RentalID: rental.ID, EndedAt: rental.StartedAt.Add(10 * time.Minute)}
	if _, err := f.service.EndRental(context.Background(), input); err != nil {
		t.Fatalf("first EndRental returned error: %v", err)
	}

	_, err := f.service.EndRental(context.Background(), input)
	if !errors.Is(err, ErrRentalAlreadyClosed) {
		t.Fatalf("expected ErrRentalAlreadyClosed, got %v", err)
	}
	if len(f.payments.submitted()) != 1 {
		t.Fatalf("expected the payment to be submitted exactly once, got %d", len(f.payments.submitted()))
	}
}

func TestEndRentalRejectsUnknownRental(t *testing.T) {
	f := newServiceFixture()

	_, err := f.service.EndRental(context.Background(), EndRentalInput{
		RentalID: 42,
		EndedAt:  time.Now(),
	})
	if !errors.Is(err, store.ErrRentalNotFound) {
		t.Fatalf("expected ErrRentalNotFound, got %v", err)
	}
	if len(f.payments.submitted()) != 0 {
		t.Fatal("expected no payment submission")
	}
}

func TestEndRentalRejectsNonPositiveDuration(t *testing.T) {
	f := newServiceFixture()
	rental := openRental(t, f)

	_, err := f.service.EndRental(context.Background(), EndRentalInput{
		RentalID: rental.ID,
		EndedAt:  rental.StartedAt,
	})
	if !errors.Is(err, ErrInvalidRentalPeriod) {
		t.Fatalf("expected ErrInvalidRentalPeriod, got %v", err)
	}

	stored, err := f.repo.FindRentalByID(context.Background(), rental.ID)
	if err != nil {
		t.Fatalf("FindRentalByID returned error: %v", err)
	}
	if stored.Closed() {
		t.Fatal("expected the rental to stay open")
	}
	if len(f.payments.submitted()) != 0 {
		t.Fatal("expected no payment submission")
	}
}

func TestEndRentalNeverRetriesPayment(t *testing.T) {
	f := newServiceFixture()
	rental := openRental(t, f)
	f.payments.err = errors.New("payment service timeout")

	result, err := f.service.EndRental(context.Background(), EndRentalInput{
		RentalID: rental.ID,
		EndedAt:  rental.StartedAt.Add(10 * time.Minute),
	})
	if err != nil {
		t.Fatalf("EndRental returned error: %v", err)
	}
	if len(f.payments.submitted()) != 1 {
		t.Fatalf("expected exactly one payment attempt, got %d", len(f.payments.submitted()))
	}
	if len(result.Warnings) != 1 {
		t.Fatalf("expected one warning for the failed payment, got %v", result.Warnings)
	}

	stored, err := f.repo.FindRentalByID(context.Background(), rental.ID)
	if err != nil {
		t.Fatalf("FindRentalByID returned error: %v", err)
	}
	if !stored.Closed() {
		t.Fatal("expected the rental to stay closed despite the payment failure")
	}
}

func TestRentalLifecyclePublishesEvents(t *testing.T) {
	f := newServiceFixture()
	rental := openRental(t, f)

	if _, err := f.service.EndRental(context.Background(), EndRentalInput{
		RentalID: rental.ID,
		EndedAt:  rental.StartedAt.Add(time.Minute),
	}); err != nil {
		t.Fatalf("EndRental returned error: %v", err)
	}

	keys := f.events.published()
	if len(keys) != 2 || keys[0] != rabbitmq.RentalStartedKey || keys[1] != rabbitmq.RentalFinishedKey {
		t.Fatalf("expected started and finished events, got %v", keys)
	}
}

func TestDeleteRentalReportsNotFound(t *testing.T) {
	f := newServiceFixture()

	if err := f.service.DeleteRental(context.Background(), 7); !errors.Is(err, store.ErrRentalNotFound) {
		t.Fatalf("expected ErrRentalNotFound, got %v", err)
	}

	rental := openRental(t, f)
	if err := f.service.DeleteRental(context.Background(), rental.ID); err != nil {
		t.Fatalf("DeleteRental returned error: %v", err)
	}
	if f.repo.count() != 0 {
		t.Fatal("expected the rental row to be removed")
	}
}
