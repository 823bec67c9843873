package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/stwalsh4118/solosafe/api/internal/database"
	"github.com/stwalsh4118/solosafe/api/internal/models"
)

// locationMatchPredicate is the single location matching policy shared by the
// resolver and the report search. $1..$3 are the normalized country, city and
// neighborhood; a NULL neighborhood matches only NULL.
// The table alias must be "l".
const locationMatchPredicate = `l.country = $1 AND l.city = $2 AND l.neighborhood IS NOT DISTINCT FROM $3`

// LocationRepository defines the data access operations for locations.
type LocationRepository interface {
	// ResolveOrCreate returns the location matching the normalized key,
	// inserting it when absent. Runs in its own transaction.
	ResolveOrCreate(ctx context.Context, key models.LocationKey) (*models.Location, bool, error)

	// FindByKey returns the location matching the normalized key.
	// Returns nil, nil if none exists (not an error).
	FindByKey(ctx context.Context, key models.LocationKey) (*models.Location, error)
}

// locationRepository is the concrete implementation of LocationRepository.
type locationRepository struct {
	db *database.Database
}

// NewLocationRepository creates a new instance of LocationRepository.
func NewLocationRepository(db *database.Database) LocationRepository {
	return &locationRepository{
		db: db,
	}
}

func (r *locationRepository) ResolveOrCreate(ctx context.Context, key models.LocationKey) (*models.Location, bool, error) {
	var (
		loc     *models.Location
		created bool
	)
	err := r.db.WithTx(ctx, database.ReadWrite, func(tx pgx.Tx) error {
		var err error
		loc, created, err = resolveOrCreateLocation(ctx, tx, key)
		return err
	})
	if err != nil {
		return nil, false, err
	}
	return loc, created, nil
}

func (r *locationRepository) FindByKey(ctx context.Context, key models.LocationKey) (*models.Location, error) {
	var loc *models.Location
	err := r.db.WithTx(ctx, database.ReadOnly, func(tx pgx.Tx) error {
		var err error
		loc, err = findLocation(ctx, tx, key.Normalize())
		return err
	})
	if err != nil {
		return nil, err
	}
	return loc, nil
}

// findLocation looks a location up by its normalized key. Ties resolve to the
// lowest id.
func findLocation(ctx context.Context, q database.Querier, key models.LocationKey) (*models.Location, error) {
	query := `
		SELECT l.id, l.country, l.city, l.neighborhood
		FROM locations l
		WHERE ` + locationMatchPredicate + `
		ORDER BY l.id
		LIMIT 1
	`

	var loc models.Location
	err := q.QueryRow(ctx, query, key.Country, key.City, key.Neighborhood).Scan(
		&loc.ID,
		&loc.Country,
		&loc.City,
		&loc.Neighborhood,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query location (%s): %w", describeKey(key), err)
	}
	return &loc, nil
}

// resolveOrCreateLocation is the lookup-else-insert step. It must run inside a
// transaction: the new row's id is visible to later statements of the same
// transaction before commit. The bool result reports whether a row was inserted.
//
// A concurrent writer may insert the same key between the lookup and the insert.
// The unique index turns that into a no-op insert, after which the winner's row is
// read back.
func resolveOrCreateLocation(ctx context.Context, q database.Querier, key models.LocationKey) (*models.Location, bool, error) {
	key = key.Normalize()

	loc, err := findLocation(ctx, q, key)
	if err != nil {
		return nil, false, err
	}
	if loc != nil {
		return loc, false, nil
	}

	insert := `
		INSERT INTO locations (country, city, neighborhood)
		VALUES ($1, $2, $3)
		ON CONFLICT DO NOTHING
		RETURNING id
	`

	created := models.Location{
		Country:      key.Country,
		City:         key.City,
		Neighborhood: key.Neighborhood,
	}
	err = q.QueryRow(ctx, insert, key.Country, key.City, key.Neighborhood).Scan(&created.ID)
	if err == nil {
		return &created, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, false, fmt.Errorf("failed to insert location (%s): %w", describeKey(key), err)
	}

	loc, err = findLocation(ctx, q, key)
	if err != nil {
		return nil, false, err
	}
	if loc == nil {
		return nil, false, fmt.Errorf("location (%s) conflicted on insert but was not found", describeKey(key))
	}
	return loc, false, nil
}

func describeKey(key models.LocationKey) string {
	if key.Neighborhood == nil {
		return fmt.Sprintf("country=%q, city=%q", key.Country, key.City)
	}
	return fmt.Sprintf("country=%q, city=%q, neighborhood=%q", key.Country, key.City, *key.Neighborhood)
}
