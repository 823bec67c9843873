package services

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/stwalsh4118/solosafe/api/internal/logger"
	"github.com/stwalsh4118/solosafe/api/internal/models"
	"github.com/stwalsh4118/solosafe/api/internal/observability"
	"github.com/stwalsh4118/solosafe/api/internal/repository"
)

// MockReportRepository is a mock implementation of ReportRepository for testing
type MockReportRepository struct {
	mock.Mock
}

func (m *MockReportRepository) Create(ctx context.Context, report models.NewReport) (*models.SafetyReport, error) {
	args := m.Called(ctx, report)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.SafetyReport), args.Error(1)
}

func (m *MockReportRepository) CreateWithLocation(ctx context.Context, key models.LocationKey, report models.NewReport) (*models.ReportWithLocation, bool, error) {
	args := m.Called(ctx, key, report)
	if args.Get(0) == nil {
		return nil, args.Bool(1), args.Error(2)
	}
	return args.Get(0).(*models.ReportWithLocation), args.Bool(1), args.Error(2)
}

func (m *MockReportRepository) Search(ctx context.Context, q repository.SearchQuery) (*repository.SearchResult, error) {
	args := m.Called(ctx, q)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*repository.SearchResult), args.Error(1)
}

func (m *MockReportRepository) Digests(ctx context.Context) ([]models.ReportDigest, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.ReportDigest), args.Error(1)
}

// MockLocationRepository is a mock implementation of LocationRepository for testing
type MockLocationRepository struct {
	mock.Mock
}

func (m *MockLocationRepository) ResolveOrCreate(ctx context.Context, key models.LocationKey) (*models.Location, bool, error) {
	args := m.Called(ctx, key)
	if args.Get(0) == nil {
		return nil, args.Bool(1), args.Error(2)
	}
	return args.Get(0).(*models.Location), args.Bool(1), args.Error(2)
}

func (m *MockLocationRepository) FindByKey(ctx context.Context, key models.LocationKey) (*models.Location, error) {
	args := m.Called(ctx, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Location), args.Error(1)
}

var fixedNow = time.Date(2025, 3, 14, 9, 30, 0, 0, time.UTC)

type reportFixture struct {
	reports   *MockReportRepository
	locations *MockLocationRepository
	metrics   *observability.Metrics
	service   ReportService
}

func newReportFixture() *reportFixture {
	f := &reportFixture{
		reports:   new(MockReportRepository),
		locations: new(MockLocationRepository),
		metrics:   observability.NewMetricsForTesting(),
	}
	f.service = NewReportService(
		f.reports,
		f.locations,
		clockwork.NewFakeClockAt(fixedNow),
		f.metrics,
		logger.New("test"),
	)
	return f
}

func strPtr(s string) *string {
	return &s
}

func validSubmission() SubmitReportInput {
	return SubmitReportInput{
		LocationInput: LocationInput{
			Country:      "  portugal ",
			City:         "lisbon",
			Neighborhood: " bairro   alto ",
		},
		ReportContent: ReportContent{
			Title:          "Late tram home",
			Body:           "Felt fine on the 28 after midnight.",
			AuthorInitials: "A.B.",
			Tags:           []string{"Night_Transit", " harassment "},
			SafetyScore:    4,
		},
	}
}

func TestSubmitReport_Success(t *testing.T) {
	// Arrange
	f := newReportFixture()
	ctx := context.Background()

	expectedKey := models.LocationKey{Country: "Portugal", City: "Lisbon", Neighborhood: strPtr("Bairro Alto")}
	expectedReport := models.NewReport{
		SafetyScore:    4,
		Title:          "Late tram home",
		Body:           "Felt fine on the 28 after midnight.",
		Tags:           models.NewTagSet(models.TagNightTransit, models.TagHarassment),
		AuthorInitials: strPtr("A.B."),
		CreatedAt:      fixedNow,
	}
	saved := &models.ReportWithLocation{
		Report: models.SafetyReport{
			ID:          7,
			LocationID:  3,
			SafetyScore: 4,
			Title:       expectedReport.Title,
			Body:        expectedReport.Body,
			Tags:        expectedReport.Tags,
			CreatedAt:   fixedNow,
		},
		Location: models.Location{ID: 3, Country: "Portugal", City: "Lisbon", Neighborhood: strPtr("Bairro Alto")},
	}

	f.reports.On("CreateWithLocation", ctx, expectedKey, expectedReport).Return(saved, true, nil)

	// Act
	result, err := f.service.SubmitReport(ctx, validSubmission())

	// Assert
	require.NoError(t, err)
	assert.Equal(t, int64(7), result.Report.ID)
	assert.Equal(t, int64(3), result.Location.ID)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.ReportsSubmitted))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.LocationsCreated))
	f.reports.AssertExpectations(t)
}

func TestSubmitReport_ExistingLocationDoesNotCountAsCreated(t *testing.T) {
	f := newReportFixture()
	ctx := context.Background()

	saved := &models.ReportWithLocation{
		Report:   models.SafetyReport{ID: 8, LocationID: 3},
		Location: models.Location{ID: 3, Country: "Portugal", City: "Lisbon"},
	}
	f.reports.On("CreateWithLocation", ctx, mock.Anything, mock.Anything).Return(saved, false, nil)

	_, err := f.service.SubmitReport(ctx, validSubmission())

	require.NoError(t, err)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.ReportsSubmitted))
	assert.Equal(t, 0.0, testutil.ToFloat64(f.metrics.LocationsCreated))
}

func TestSubmitReport_AnonymousAndUntagged(t *testing.T) {
	f := newReportFixture()
	ctx := context.Background()

	in := validSubmission()
	in.AuthorInitials = "   "
	in.Tags = nil
	in.Neighborhood = ""

	f.reports.On("CreateWithLocation", ctx,
		models.LocationKey{Country: "Portugal", City: "Lisbon"},
		mock.MatchedBy(func(r models.NewReport) bool {
			return r.AuthorInitials == nil && r.Tags.Len() == 0
		}),
	).Return(&models.ReportWithLocation{}, false, nil)

	_, err := f.service.SubmitReport(ctx, in)

	require.NoError(t, err)
	f.reports.AssertExpectations(t)
}

func TestSubmitReport_ValidationErrors(t *testing.T) {
	testCases := []struct {
		name   string
		mutate func(*SubmitReportInput)
		field  string
	}{
		{
			name:   "Missing country",
			mutate: func(in *SubmitReportInput) { in.Country = "  " },
			field:  "country",
		},
		{
			name:   "Missing city",
			mutate: func(in *SubmitReportInput) { in.City = "" },
			field:  "city",
		},
		{
			name:   "Missing title",
			mutate: func(in *SubmitReportInput) { in.Title = "\t" },
			field:  "title",
		},
		{
			name:   "Missing body",
			mutate: func(in *SubmitReportInput) { in.Body = "" },
			field:  "body",
		},
		{
			name:   "Score too low",
			mutate: func(in *SubmitReportInput) { in.SafetyScore = 0 },
			field:  "safety_score",
		},
		{
			name:   "Score too high",
			mutate: func(in *SubmitReportInput) { in.SafetyScore = 6 },
			field:  "safety_score",
		},
		{
			name:   "Unknown tag",
			mutate: func(in *SubmitReportInput) { in.Tags = []string{"scams", "aliens"} },
			field:  "tags[1]",
		},
		{
			name:   "Initials too long",
			mutate: func(in *SubmitReportInput) { in.AuthorInitials = "ABCDEFGHIJK" },
			field:  "author_initials",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			// Arrange
			f := newReportFixture()
			in := validSubmission()
			tc.mutate(&in)

			// Act
			result, err := f.service.SubmitReport(context.Background(), in)

			// Assert
			require.Error(t, err)
			assert.Nil(t, result)
			assert.ErrorIs(t, err, ErrInvalidReport)

			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Contains(t, verr.Fields, tc.field)

			assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.ValidationFailures.WithLabelValues("submit")))
			// Repository should not be called for validation errors
			f.reports.AssertNotCalled(t, "CreateWithLocation")
		})
	}
}

func TestSubmitReport_ScoreBoundaries(t *testing.T) {
	for _, score := range []int{models.MinSafetyScore, models.MaxSafetyScore} {
		t.Run(fmt.Sprintf("score %d", score), func(t *testing.T) {
			f := newReportFixture()
			ctx := context.Background()
			f.reports.On("CreateWithLocation", ctx, mock.Anything, mock.Anything).
				Return(&models.ReportWithLocation{}, false, nil)

			in := validSubmission()
			in.SafetyScore = score
			_, err := f.service.SubmitReport(ctx, in)

			assert.NoError(t, err)
		})
	}
}

func TestSubmitReport_RepositoryError(t *testing.T) {
	f := newReportFixture()
	ctx := context.Background()

	dbError := errors.New("database connection failed")
	f.reports.On("CreateWithLocation", ctx, mock.Anything, mock.Anything).Return(nil, false, dbError)

	result, err := f.service.SubmitReport(ctx, validSubmission())

	assert.Nil(t, result)
	assert.ErrorIs(t, err, dbError)
	assert.Contains(t, err.Error(), "failed to store report")
	assert.Equal(t, 0.0, testutil.ToFloat64(f.metrics.ReportsSubmitted))
}

func TestResolveLocation_NormalizesInput(t *testing.T) {
	f := newReportFixture()
	ctx := context.Background()

	key := models.LocationKey{Country: "Japan", City: "Tokyo", Neighborhood: strPtr("Shibuya")}
	loc := &models.Location{ID: 1, Country: "Japan", City: "Tokyo", Neighborhood: strPtr("Shibuya")}
	f.locations.On("ResolveOrCreate", ctx, key).Return(loc, true, nil)

	got, created, err := f.service.ResolveLocation(ctx, LocationInput{
		Country:      " japan",
		City:         "TOKYO ",
		Neighborhood: "shibuya",
	})

	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, loc, got)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.LocationsCreated))
	f.locations.AssertExpectations(t)
}

func TestResolveLocation_MissingCity(t *testing.T) {
	f := newReportFixture()

	got, created, err := f.service.ResolveLocation(context.Background(), LocationInput{Country: "Japan"})

	assert.Nil(t, got)
	assert.False(t, created)
	assert.ErrorIs(t, err, ErrInvalidLocation)
	f.locations.AssertNotCalled(t, "ResolveOrCreate")
}

func TestResolveLocation_RepositoryError(t *testing.T) {
	f := newReportFixture()
	ctx := context.Background()

	dbError := errors.New("connection reset")
	f.locations.On("ResolveOrCreate", ctx, mock.Anything).Return(nil, false, dbError)

	_, _, err := f.service.ResolveLocation(ctx, LocationInput{Country: "Japan", City: "Tokyo"})

	assert.ErrorIs(t, err, dbError)
	assert.Contains(t, err.Error(), "failed to resolve location")
}

func TestAddReport_Success(t *testing.T) {
	f := newReportFixture()
	ctx := context.Background()

	f.reports.On("Create", ctx, mock.MatchedBy(func(r models.NewReport) bool {
		return r.LocationID == 42 && r.CreatedAt.Equal(fixedNow) && r.Tags.Has(models.TagScams)
	})).Return(&models.SafetyReport{ID: 9, LocationID: 42, SafetyScore: 2}, nil)

	report, err := f.service.AddReport(ctx, 42, ReportContent{
		Title:       "Fake taxi",
		Body:        "Driver refused the meter.",
		Tags:        []string{"scams"},
		SafetyScore: 2,
	})

	require.NoError(t, err)
	assert.Equal(t, int64(9), report.ID)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.ReportsSubmitted))
	f.reports.AssertExpectations(t)
}

func TestAddReport_UnknownLocation(t *testing.T) {
	f := newReportFixture()
	ctx := context.Background()

	f.reports.On("Create", ctx, mock.Anything).
		Return(nil, fmt.Errorf("%w: 999", repository.ErrUnknownLocation))

	report, err := f.service.AddReport(ctx, 999, ReportContent{
		Title:       "Anything",
		Body:        "Anything at all.",
		SafetyScore: 3,
	})

	assert.Nil(t, report)
	assert.ErrorIs(t, err, ErrLocationNotFound)
}

func TestAddReport_NonPositiveLocationID(t *testing.T) {
	f := newReportFixture()

	_, err := f.service.AddReport(context.Background(), 0, ReportContent{
		Title:       "Anything",
		Body:        "Anything at all.",
		SafetyScore: 3,
	})

	assert.ErrorIs(t, err, ErrLocationNotFound)
	f.reports.AssertNotCalled(t, "Create")
}

func TestSearchReports_FirstPage(t *testing.T) {
	f := newReportFixture()
	ctx := context.Background()

	items := make([]models.ReportWithLocation, PageSize)
	f.reports.On("Search", ctx, repository.SearchQuery{
		Location: models.LocationKey{Country: "Portugal", City: "Lisbon"},
		Tags:     models.NewTagSet(),
		Limit:    PageSize,
		Offset:   0,
	}).Return(&repository.SearchResult{Items: items, TotalCount: 25}, nil)

	page, err := f.service.SearchReports(ctx, SearchInput{
		LocationInput: LocationInput{Country: "portugal", City: "lisbon"},
		Page:          1,
	})

	require.NoError(t, err)
	assert.Len(t, page.Items, PageSize)
	assert.Equal(t, 25, page.TotalCount)
	assert.Equal(t, 1, page.Page)
	assert.Equal(t, PageSize, page.PageSize)
	assert.Equal(t, 2, page.TotalPages)
	assert.False(t, page.Empty())
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Searches.WithLabelValues("results")))
	f.reports.AssertExpectations(t)
}

func TestSearchReports_PageOffsetAndTags(t *testing.T) {
	f := newReportFixture()
	ctx := context.Background()

	f.reports.On("Search", ctx, repository.SearchQuery{
		Location: models.LocationKey{Country: "Portugal", City: "Lisbon", Neighborhood: strPtr("Alfama")},
		Tags:     models.NewTagSet(models.TagScams, models.TagPickpocketing),
		Limit:    PageSize,
		Offset:   40,
	}).Return(&repository.SearchResult{Items: []models.ReportWithLocation{}, TotalCount: 41}, nil)

	page, err := f.service.SearchReports(ctx, SearchInput{
		LocationInput: LocationInput{Country: "Portugal", City: "Lisbon", Neighborhood: "alfama"},
		Tags:          []string{"SCAMS", "pickpocketing", " "},
		Page:          3,
	})

	require.NoError(t, err)
	assert.Equal(t, 3, page.TotalPages)
	f.reports.AssertExpectations(t)
}

func TestSearchReports_NoResults(t *testing.T) {
	f := newReportFixture()
	ctx := context.Background()

	f.reports.On("Search", ctx, mock.Anything).Return(&repository.SearchResult{}, nil)

	page, err := f.service.SearchReports(ctx, SearchInput{
		LocationInput: LocationInput{Country: "Chile", City: "Santiago"},
		Page:          1,
	})

	require.NoError(t, err)
	assert.True(t, page.Empty())
	assert.NotNil(t, page.Items)
	assert.Empty(t, page.Items)
	assert.Equal(t, 0, page.TotalPages)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Searches.WithLabelValues("empty")))
}

func TestSearchReports_InvalidPage(t *testing.T) {
	for _, p := range []int{0, -1} {
		t.Run(fmt.Sprintf("page %d", p), func(t *testing.T) {
			f := newReportFixture()

			page, err := f.service.SearchReports(context.Background(), SearchInput{
				LocationInput: LocationInput{Country: "Chile", City: "Santiago"},
				Page:          p,
			})

			assert.Nil(t, page)
			assert.ErrorIs(t, err, ErrInvalidPage)
			f.reports.AssertNotCalled(t, "Search")
		})
	}
}

func TestSearchReports_MissingLocation(t *testing.T) {
	f := newReportFixture()

	_, err := f.service.SearchReports(context.Background(), SearchInput{
		LocationInput: LocationInput{Country: "Chile"},
		Page:          1,
	})

	assert.ErrorIs(t, err, ErrInvalidSearch)
	f.reports.AssertNotCalled(t, "Search")
}

func TestSearchReports_UnknownTag(t *testing.T) {
	f := newReportFixture()

	_, err := f.service.SearchReports(context.Background(), SearchInput{
		LocationInput: LocationInput{Country: "Chile", City: "Santiago"},
		Tags:          []string{"weather"},
		Page:          1,
	})

	assert.ErrorIs(t, err, ErrInvalidSearch)
	f.reports.AssertNotCalled(t, "Search")
}

func TestSearchReports_ContextCancellation(t *testing.T) {
	f := newReportFixture()

	ctx, cancel := context.WithCancel(context.Background())
	cancel() // Cancel context immediately

	f.reports.On("Search", ctx, mock.Anything).Return(nil, context.Canceled)

	page, err := f.service.SearchReports(ctx, SearchInput{
		LocationInput: LocationInput{Country: "Chile", City: "Santiago"},
		Page:          1,
	})

	assert.Nil(t, page)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestValidationError_Message(t *testing.T) {
	verr := &ValidationError{
		Kind:   ErrInvalidReport,
		Fields: map[string]string{"title": "is required", "body": "is required"},
	}

	assert.Equal(t, "invalid report: body: is required; title: is required", verr.Error())
	assert.True(t, errors.Is(verr, ErrInvalidReport))
	assert.False(t, errors.Is(verr, ErrInvalidSearch))
}
