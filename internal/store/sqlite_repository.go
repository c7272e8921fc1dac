/**
 * @description
 * This file contains the SQLite implementation of the `Repository` interface. The
 * rental store is the only state owned by the rental-control service; it lives in a
 * local database file opened with WAL mode so concurrent request handlers can read
 * and write safely.
 *
 * @dependencies
 * - database/sql: Standard Go database access.
 * - modernc.org/sqlite: Pure-Go SQLite driver (registered as "sqlite").
 * - internal/domain: For the service's domain models.
 */

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/patinete/aluguel-service/internal/domain"
)

const createRentalsTable = `
CREATE TABLE IF NOT EXISTS rentals (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	scooter_id TEXT NOT NULL,
	user_id TEXT NOT NULL,
	card TEXT NOT NULL,
	started_at TIMESTAMP NOT NULL,
	ended_at TIMESTAMP,
	amount_cents INTEGER
)`

// SQLiteRepository is the SQLite-backed implementation of Repository.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository opens (or creates) the rental database at the given path
// and ensures the schema exists.
func NewSQLiteRepository(path string) (*SQLiteRepository, error) {
	// WAL mode and a busy timeout so concurrent handlers do not trip over the
	// single-writer lock.
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening rental database: %w", err)
	}

	if _, err := db.Exec(createRentalsTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating rentals table: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

// Close closes the underlying database handle.
func (r *SQLiteRepository) Close() error {
	return r.db.Close()
}

// CreateRental inserts a new open rental row and returns the assigned id.
func (r *SQLiteRepository) CreateRental(ctx context.Context, rental *domain.Rental) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`INSERT INTO rentals (scooter_id, user_id, card, started_at) VALUES (?, ?, ?, ?)`,
		rental.ScooterID, rental.UserID, rental.Card, rental.StartedAt.UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("inserting rental: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("reading inserted rental id: %w", err)
	}
	rental.ID = id
	return id, nil
}

// FindRentalByID returns the rental with the given id, or ErrRentalNotFound.
func (r *SQLiteRepository) FindRentalByID(ctx context.Context, id int64) (*domain.Rental, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, scooter_id, user_id, card, started_at, ended_at, amount_cents
		 FROM rentals WHERE id = ?`, id)

	rental, err := scanRental(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRentalNotFound
		}
		return nil, fmt.Errorf("querying rental %d: %w", id, err)
	}
	return rental, nil
}

// ListRentals returns every rental. An empty table yields an empty slice and a
// nil error.
func (r *SQLiteRepository) ListRentals(ctx context.Context) ([]domain.Rental, error) {
	return r.queryRentals(ctx,
		`SELECT id, scooter_id, user_id, card, started_at, ended_at, amount_cents
		 FROM rentals ORDER BY id`)
}

// ListRentalsByUser returns all rentals belonging to a user.
func (r *SQLiteRepository) ListRentalsByUser(ctx context.Context, userID string) ([]domain.Rental, error) {
	return r.queryRentals(ctx,
		`SELECT id, scooter_id, user_id, card, started_at, ended_at, amount_cents
		 FROM rentals WHERE user_id = ? ORDER BY id`, userID)
}

// ListRentalsByScooter returns all rentals of a scooter.
func (r *SQLiteRepository) ListRentalsByScooter(ctx context.Context, scooterID string) ([]domain.Rental, error) {
	return r.queryRentals(ctx,
		`SELECT id, scooter_id, user_id, card, started_at, ended_at, amount_cents
		 FROM rentals WHERE scooter_id = ? ORDER BY id`, scooterID)
}

// CloseRental sets ended_at and amount_cents in a single update, guarded so an
// already-closed rental is never rewritten. Returns the number of rows changed.
func (r *SQLiteRepository) CloseRental(ctx context.Context, id int64, endedAt time.Time, amountCents int64) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE rentals SET ended_at = ?, amount_cents = ? WHERE id = ? AND ended_at IS NULL`,
		endedAt.UTC(), amountCents, id,
	)
	if err != nil {
		return 0, fmt.Errorf("closing rental %d: %w", id, err)
	}
	changed, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("reading rows affected for rental %d: %w", id, err)
	}
	return changed, nil
}

// DeleteRental removes a rental row. Returns the number of rows changed.
func (r *SQLiteRepository) DeleteRental(ctx context.Context, id int64) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM rentals WHERE id = ?`, id)
	if err != nil {
		return 0, fmt.Errorf("deleting rental %d: %w", id, err)
	}
	changed, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("reading rows affected for rental %d: %w", id, err)
	}
	return changed, nil
}

func (r *SQLiteRepository) queryRentals(ctx context.Context, query string, args ...any) ([]domain.Rental, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying rentals: %w", err)
	}
	defer rows.Close()

	rentals := []domain.Rental{}
	for rows.Next() {
		rental, err := scanRental(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning rental row: %w", err)
		}
		rentals = append(rentals, *rental)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating rental rows: %w", err)
	}
	return rentals, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRental(row rowScanner) (*domain.Rental, error) {
	var (
		rental  domain.Rental
		endedAt sql.NullTime
		amount  sql.NullInt64
	)
	err := row.Scan(&rental.ID, &rental.ScooterID, &rental.UserID, &rental.Card,
		&rental.StartedAt, &endedAt, &amount)
	if err != nil {
		return nil, err
	}
	if endedAt.Valid {
		t := endedAt.Time
		rental.EndedAt = &t
	}
	if amount.Valid {
		v := amount.Int64
		rental.AmountCents = &v
	}
	return &rental, nil
}
