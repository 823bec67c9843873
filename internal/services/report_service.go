package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jonboulle/clockwork"
	"github.com/stwalsh4118/solosafe/api/internal/logger"
	"github.com/stwalsh4118/solosafe/api/internal/models"
	"github.com/stwalsh4118/solosafe/api/internal/observability"
	"github.com/stwalsh4118/solosafe/api/internal/repository"
)

// PageSize is the fixed number of reports per search page.
const PageSize = 20

// LocationInput is free-text geography as typed by a user.
type LocationInput struct {
	Country      string `json:"country" validate:"required,max=100"`
	City         string `json:"city" validate:"required,max=100"`
	Neighborhood string `json:"neighborhood" validate:"max=100"`
}

// ReportContent is the user-supplied body of a report.
// Tags must come from the fixed vocabulary.
type ReportContent struct {
	Title          string   `json:"title" validate:"required,max=200"`
	Body           string   `json:"body" validate:"required,max=5000"`
	AuthorInitials string   `json:"author_initials" validate:"max=10"`
	Tags           []string `json:"tags" validate:"dive,oneof=harassment pickpocketing night_transit accommodation rideshare police_response scams catcalling other"`
	SafetyScore    int      `json:"safety_score" validate:"min=1,max=5"`
}

// SubmitReportInput is a full form submission: where and what.
type SubmitReportInput struct {
	LocationInput
	ReportContent
}

// SearchInput holds the search form. Page is 1-indexed.
type SearchInput struct {
	LocationInput
	Tags []string `json:"tags" validate:"dive,oneof=harassment pickpocketing night_transit accommodation rideshare police_response scams catcalling other"`
	Page int      `json:"page"`
}

// SearchPage is one page of search results.
type SearchPage struct {
	Items      []models.ReportWithLocation
	TotalCount int
	Page       int
	PageSize   int
	TotalPages int
}

// Empty reports whether no report matched at all.
func (p *SearchPage) Empty() bool {
	return p.TotalCount == 0
}

// ReportService defines the business operations on locations and reports.
type ReportService interface {
	// ResolveLocation normalizes the input and returns the matching location,
	// creating it when absent. The bool reports whether it was created.
	// Returns a *ValidationError (ErrInvalidLocation) for missing country/city.
	ResolveLocation(ctx context.Context, in LocationInput) (*models.Location, bool, error)

	// SubmitReport validates the form, resolves the location and stores the report
	// in one transaction.
	// Returns a *ValidationError (ErrInvalidReport) before touching storage.
	SubmitReport(ctx context.Context, in SubmitReportInput) (*models.ReportWithLocation, error)

	// AddReport appends a report to an existing location.
	// Returns ErrLocationNotFound when locationID does not exist.
	AddReport(ctx context.Context, locationID int64, in ReportContent) (*models.SafetyReport, error)

	// SearchReports returns one page of reports for a location, newest first.
	// Returns ErrInvalidPage for page < 1 and an empty page when nothing matches.
	SearchReports(ctx context.Context, in SearchInput) (*SearchPage, error)
}

// reportService is the concrete implementation of ReportService.
type reportService struct {
	reports   repository.ReportRepository
	locations repository.LocationRepository
	clock     clockwork.Clock
	metrics   *observability.Metrics
	log       *logger.Logger
}

// NewReportService creates a new instance of ReportService.
func NewReportService(
	reports repository.ReportRepository,
	locations repository.LocationRepository,
	clock clockwork.Clock,
	metrics *observability.Metrics,
	log *logger.Logger,
) ReportService {
	return &reportService{
		reports:   reports,
		locations: locations,
		clock:     clock,
		metrics:   metrics,
		log:       log,
	}
}

func (s *reportService) ResolveLocation(ctx context.Context, in LocationInput) (*models.Location, bool, error) {
	in = in.trimmed()
	if verr := checkStruct(ErrInvalidLocation, in); verr != nil {
		s.rejected("resolve", verr)
		return nil, false, verr
	}

	key := models.NormalizeLocation(in.Country, in.City, in.Neighborhood)
	loc, created, err := s.locations.ResolveOrCreate(ctx, key)
	if err != nil {
		s.log.Error("Failed to resolve location", err, keyFields(key))
		return nil, false, fmt.Errorf("failed to resolve location: %w", err)
	}

	if created {
		s.metrics.LocationsCreated.Inc()
		s.log.Info("Location created", map[string]interface{}{
			"location_id": loc.ID,
			"label":       loc.DetailedLabel(),
		})
	}

	return loc, created, nil
}

func (s *reportService) SubmitReport(ctx context.Context, in SubmitReportInput) (*models.ReportWithLocation, error) {
	in.LocationInput = in.LocationInput.trimmed()
	in.ReportContent = in.ReportContent.trimmed()

	if verr := checkStruct(ErrInvalidReport, in); verr != nil {
		s.rejected("submit", verr)
		return nil, verr
	}

	key := models.NormalizeLocation(in.Country, in.City, in.Neighborhood)
	report, err := s.newReport(in.ReportContent)
	if err != nil {
		return nil, err
	}

	saved, createdLocation, err := s.reports.CreateWithLocation(ctx, key, report)
	if err != nil {
		s.log.Error("Failed to store report", err, keyFields(key))
		return nil, fmt.Errorf("failed to store report: %w", err)
	}

	s.metrics.ReportsSubmitted.Inc()
	if createdLocation {
		s.metrics.LocationsCreated.Inc()
	}

	s.log.Info("Report submitted", map[string]interface{}{
		"report_id":        saved.Report.ID,
		"location_id":      saved.Location.ID,
		"location":         saved.Location.DetailedLabel(),
		"location_created": createdLocation,
		"safety_score":     saved.Report.SafetyScore,
		"tags":             saved.Report.Tags.String(),
	})

	return saved, nil
}

func (s *reportService) AddReport(ctx context.Context, locationID int64, in ReportContent) (*models.SafetyReport, error) {
	in = in.trimmed()
	if verr := checkStruct(ErrInvalidReport, in); verr != nil {
		s.rejected("submit", verr)
		return nil, verr
	}
	if locationID < 1 {
		return nil, fmt.Errorf("%w: %d", ErrLocationNotFound, locationID)
	}

	report, err := s.newReport(in)
	if err != nil {
		return nil, err
	}
	report.LocationID = locationID

	saved, err := s.reports.Create(ctx, report)
	if err != nil {
		if errors.Is(err, repository.ErrUnknownLocation) {
			s.log.Warn("Report for unknown location", map[string]interface{}{
				"location_id": locationID,
			})
			return nil, fmt.Errorf("%w: %d", ErrLocationNotFound, locationID)
		}
		s.log.Error("Failed to store report", err, map[string]interface{}{
			"location_id": locationID,
		})
		return nil, fmt.Errorf("failed to store report: %w", err)
	}

	s.metrics.ReportsSubmitted.Inc()
	s.log.Info("Report added", map[string]interface{}{
		"report_id":    saved.ID,
		"location_id":  locationID,
		"safety_score": saved.SafetyScore,
	})

	return saved, nil
}

func (s *reportService) SearchReports(ctx context.Context, in SearchInput) (*SearchPage, error) {
	in.LocationInput = in.LocationInput.trimmed()
	in.Tags = cleanTags(in.Tags)

	if verr := checkStruct(ErrInvalidSearch, in); verr != nil {
		s.rejected("search", verr)
		return nil, verr
	}
	if in.Page < 1 {
		s.metrics.ValidationFailures.WithLabelValues("search").Inc()
		s.log.Warn("Invalid page requested", map[string]interface{}{
			"page": in.Page,
		})
		return nil, fmt.Errorf("%w: got %d", ErrInvalidPage, in.Page)
	}

	tags, err := models.ParseTagList(in.Tags)
	if err != nil {
		return nil, &ValidationError{Kind: ErrInvalidSearch, Fields: map[string]string{"tags": err.Error()}}
	}

	key := models.NormalizeLocation(in.Country, in.City, in.Neighborhood)
	fields := keyFields(key)
	fields["tags"] = tags.String()
	fields["page"] = in.Page

	s.log.Debug("Searching reports", fields)

	result, err := s.reports.Search(ctx, repository.SearchQuery{
		Location: key,
		Tags:     tags,
		Limit:    PageSize,
		Offset:   (in.Page - 1) * PageSize,
	})
	if err != nil {
		s.log.Error("Failed to search reports", err, fields)
		return nil, fmt.Errorf("failed to search reports: %w", err)
	}

	page := &SearchPage{
		Items:      result.Items,
		TotalCount: result.TotalCount,
		Page:       in.Page,
		PageSize:   PageSize,
		TotalPages: (result.TotalCount + PageSize - 1) / PageSize,
	}
	if page.Items == nil {
		page.Items = []models.ReportWithLocation{}
	}

	outcome := "results"
	if page.Empty() {
		outcome = "empty"
	}
	s.metrics.Searches.WithLabelValues(outcome).Inc()

	fields["total_count"] = page.TotalCount
	fields["count"] = len(page.Items)
	s.log.Info("Reports searched", fields)

	return page, nil
}

// newReport converts validated content into a storable report stamped with the
// service clock.
func (s *reportService) newReport(in ReportContent) (models.NewReport, error) {
	tags, err := models.ParseTagList(in.Tags)
	if err != nil {
		return models.NewReport{}, &ValidationError{Kind: ErrInvalidReport, Fields: map[string]string{"tags": err.Error()}}
	}

	var initials *string
	if in.AuthorInitials != "" {
		initials = &in.AuthorInitials
	}

	return models.NewReport{
		SafetyScore:    in.SafetyScore,
		Title:          in.Title,
		Body:           in.Body,
		Tags:           tags,
		AuthorInitials: initials,
		CreatedAt:      s.clock.Now().UTC(),
	}, nil
}

func (s *reportService) rejected(operation string, verr *ValidationError) {
	s.metrics.ValidationFailures.WithLabelValues(operation).Inc()
	s.log.Warn("Rejected invalid input", map[string]interface{}{
		"operation": operation,
		"fields":    verr.Fields,
	})
}

func (in LocationInput) trimmed() LocationInput {
	return LocationInput{
		Country:      strings.TrimSpace(in.Country),
		City:         strings.TrimSpace(in.City),
		Neighborhood: strings.TrimSpace(in.Neighborhood),
	}
}

func (in ReportContent) trimmed() ReportContent {
	return ReportContent{
		Title:          strings.TrimSpace(in.Title),
		Body:           strings.TrimSpace(in.Body),
		AuthorInitials: strings.TrimSpace(in.AuthorInitials),
		Tags:           cleanTags(in.Tags),
		SafetyScore:    in.SafetyScore,
	}
}

// cleanTags lowercases and trims tag tokens and drops blanks.
func cleanTags(raw []string) []string {
	tags := make([]string, 0, len(raw))
	for _, t := range raw {
		if t = strings.ToLower(strings.TrimSpace(t)); t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}

func keyFields(key models.LocationKey) map[string]interface{} {
	fields := map[string]interface{}{
		"country": key.Country,
		"city":    key.City,
	}
	if key.Neighborhood != nil {
		fields["neighborhood"] = *key.Neighborhood
	}
	return fields
}
