package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stwalsh4118/solosafe/api/internal/database"
	"github.com/stwalsh4118/solosafe/api/internal/models"
)

// ErrUnknownLocation is returned by Create when the location id does not exist.
var ErrUnknownLocation = errors.New("unknown location")

// foreignKeyViolation is the PostgreSQL SQLSTATE for a failed FK check.
const foreignKeyViolation = "23503"

// SearchQuery selects reports for one normalized location.
// An empty Tags set matches every report; otherwise a report must carry all of them.
type SearchQuery struct {
	Tags     models.TagSet
	Location models.LocationKey
	Limit    int
	Offset   int
}

// SearchResult is one page of matching reports plus the total match count.
type SearchResult struct {
	Items      []models.ReportWithLocation
	TotalCount int
}

// ReportRepository defines the interface for safety report data access.
// Reports are append-only; there is no update or delete.
type ReportRepository interface {
	// Create appends a report for an existing location.
	// The foreign key rejects unknown location ids.
	Create(ctx context.Context, report models.NewReport) (*models.SafetyReport, error)

	// CreateWithLocation resolves (or creates) the location and appends the report
	// in a single transaction. The bool reports whether the location was new.
	// report.LocationID is ignored.
	CreateWithLocation(ctx context.Context, key models.LocationKey, report models.NewReport) (*models.ReportWithLocation, bool, error)

	// Search returns reports at the location carrying every requested tag,
	// newest first (ties by id descending). Returns an empty page, not an error,
	// when nothing matches.
	Search(ctx context.Context, q SearchQuery) (*SearchResult, error)

	// Digests scans every report with its location for aggregation.
	Digests(ctx context.Context) ([]models.ReportDigest, error)
}

// reportRepository is the concrete implementation of ReportRepository.
type reportRepository struct {
	db *database.Database
}

// NewReportRepository creates a new instance of ReportRepository.
func NewReportRepository(db *database.Database) ReportRepository {
	return &reportRepository{
		db: db,
	}
}

func (r *reportRepository) Create(ctx context.Context, report models.NewReport) (*models.SafetyReport, error) {
	var created *models.SafetyReport
	err := r.db.WithTx(ctx, database.ReadWrite, func(tx pgx.Tx) error {
		var err error
		created, err = insertReport(ctx, tx, report)
		return err
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

func (r *reportRepository) CreateWithLocation(ctx context.Context, key models.LocationKey, report models.NewReport) (*models.ReportWithLocation, bool, error) {
	var (
		result      models.ReportWithLocation
		newLocation bool
	)
	err := r.db.WithTx(ctx, database.ReadWrite, func(tx pgx.Tx) error {
		loc, created, err := resolveOrCreateLocation(ctx, tx, key)
		if err != nil {
			return err
		}
		report.LocationID = loc.ID

		saved, err := insertReport(ctx, tx, report)
		if err != nil {
			return err
		}

		result = models.ReportWithLocation{Report: *saved, Location: *loc}
		newLocation = created
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return &result, newLocation, nil
}

func insertReport(ctx context.Context, q database.Querier, report models.NewReport) (*models.SafetyReport, error) {
	query := `
		INSERT INTO safety_reports (
			location_id, safety_score, title, body, tags, author_initials, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, COALESCE($7, now()))
		RETURNING id, created_at
	`

	saved := models.SafetyReport{
		LocationID:     report.LocationID,
		SafetyScore:    report.SafetyScore,
		Title:          report.Title,
		Body:           report.Body,
		Tags:           models.NewTagSet(report.Tags.Sorted()...),
		AuthorInitials: report.AuthorInitials,
	}

	// A zero CreatedAt falls back to the database clock.
	var createdAt any
	if !report.CreatedAt.IsZero() {
		createdAt = report.CreatedAt
	}

	err := q.QueryRow(ctx, query,
		report.LocationID,
		report.SafetyScore,
		report.Title,
		report.Body,
		report.Tags.String(),
		report.AuthorInitials,
		createdAt,
	).Scan(&saved.ID, &saved.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == foreignKeyViolation {
			return nil, fmt.Errorf("%w: %d", ErrUnknownLocation, report.LocationID)
		}
		return nil, fmt.Errorf("failed to insert report for location %d: %w", report.LocationID, err)
	}

	return &saved, nil
}

func (r *reportRepository) Search(ctx context.Context, q SearchQuery) (*SearchResult, error) {
	key := q.Location.Normalize()
	tags := q.Tags.Strings()

	// $4 is a text[]; an empty array is contained in every tag array.
	filter := `
		FROM safety_reports r
		JOIN locations l ON l.id = r.location_id
		WHERE ` + locationMatchPredicate + `
		AND string_to_array(r.tags, ',') @> $4::text[]
	`
	countQuery := `SELECT COUNT(*) ` + filter
	pageQuery := `
		SELECT
			r.id,
			r.location_id,
			r.safety_score,
			r.title,
			r.body,
			r.tags,
			r.author_initials,
			r.created_at,
			l.id,
			l.country,
			l.city,
			l.neighborhood
		` + filter + `
		ORDER BY r.created_at DESC, r.id DESC
		LIMIT $5 OFFSET $6
	`

	result := &SearchResult{Items: []models.ReportWithLocation{}}

	err := r.db.WithTx(ctx, database.ReadOnly, func(tx pgx.Tx) error {
		if err := tx.QueryRow(ctx, countQuery, key.Country, key.City, key.Neighborhood, tags).
			Scan(&result.TotalCount); err != nil {
			return fmt.Errorf("failed to count reports (%s): %w", describeKey(key), err)
		}
		if result.TotalCount == 0 || q.Offset >= result.TotalCount {
			return nil
		}

		rows, err := tx.Query(ctx, pageQuery,
			key.Country, key.City, key.Neighborhood, tags, q.Limit, q.Offset)
		if err != nil {
			return fmt.Errorf("failed to query reports (%s): %w", describeKey(key), err)
		}
		defer rows.Close()

		for rows.Next() {
			var item models.ReportWithLocation
			err := rows.Scan(
				&item.Report.ID,
				&item.Report.LocationID,
				&item.Report.SafetyScore,
				&item.Report.Title,
				&item.Report.Body,
				&item.Report.Tags,
				&item.Report.AuthorInitials,
				&item.Report.CreatedAt,
				&item.Location.ID,
				&item.Location.Country,
				&item.Location.City,
				&item.Location.Neighborhood,
			)
			if err != nil {
				return fmt.Errorf("failed to scan report row: %w", err)
			}
			result.Items = append(result.Items, item)
		}

		if err := rows.Err(); err != nil {
			return fmt.Errorf("error iterating report rows: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

func (r *reportRepository) Digests(ctx context.Context) ([]models.ReportDigest, error) {
	query := `
		SELECT r.safety_score, r.tags, l.country, l.city
		FROM safety_reports r
		JOIN locations l ON l.id = r.location_id
		ORDER BY r.id
	`

	digests := []models.ReportDigest{}

	err := r.db.WithTx(ctx, database.ReadOnly, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, query)
		if err != nil {
			return fmt.Errorf("failed to scan reports for analytics: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			var d models.ReportDigest
			if err := rows.Scan(&d.SafetyScore, &d.Tags, &d.Country, &d.City); err != nil {
				return fmt.Errorf("failed to scan report digest: %w", err)
			}
			digests = append(digests, d)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}

	return digests, nil
}
