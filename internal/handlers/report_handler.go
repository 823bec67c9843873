package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	apierrors "github.com/stwalsh4118/solosafe/api/internal/errors"
	"github.com/stwalsh4118/solosafe/api/internal/middleware"
	"github.com/stwalsh4118/solosafe/api/internal/models"
	"github.com/stwalsh4118/solosafe/api/internal/services"
)

// NoResultsMessage accompanies a search response that matched nothing.
const NoResultsMessage = "No reports match this location and tags yet"

// ReportHandler handles location and report HTTP requests.
type ReportHandler struct {
	service services.ReportService
}

// NewReportHandler creates a new ReportHandler instance.
func NewReportHandler(service services.ReportService) *ReportHandler {
	return &ReportHandler{
		service: service,
	}
}

// LocationRequest is the body of POST /api/v1/locations.
type LocationRequest struct {
	Country      string `json:"country" binding:"required,max=100"`
	City         string `json:"city" binding:"required,max=100"`
	Neighborhood string `json:"neighborhood" binding:"max=100"`
}

// ReportContentRequest is the body of POST /api/v1/locations/:id/reports.
// SafetyScore defaults to 3 when omitted.
type ReportContentRequest struct {
	SafetyScore    *int     `json:"safety_score" binding:"omitempty,min=1,max=5"`
	Title          string   `json:"title" binding:"required,max=200"`
	Body           string   `json:"body" binding:"required,max=5000"`
	AuthorInitials string   `json:"author_initials" binding:"max=10"`
	Tags           []string `json:"tags"`
}

// SubmitReportRequest is the body of POST /api/v1/reports.
type SubmitReportRequest struct {
	LocationRequest
	ReportContentRequest
}

// SearchRequest represents the query parameters for GET /api/v1/reports.
// Tags may repeat (?tags=a&tags=b) or be comma-separated (?tags=a,b).
type SearchRequest struct {
	Country      string   `form:"country" binding:"required"`
	City         string   `form:"city" binding:"required"`
	Neighborhood string   `form:"neighborhood"`
	Tags         []string `form:"tags"`
	Page         int      `form:"page,default=1"`
}

// LocationData is a location in API responses.
type LocationData struct {
	Neighborhood *string `json:"neighborhood"`
	Country      string  `json:"country"`
	City         string  `json:"city"`
	Label        string  `json:"label"`
	ID           int64   `json:"id"`
}

// ReportData is a report in API responses.
type ReportData struct {
	CreatedAt      time.Time `json:"created_at"`
	AuthorInitials *string   `json:"author_initials"`
	Title          string    `json:"title"`
	Body           string    `json:"body"`
	Stars          string    `json:"stars"`
	Tags           []string  `json:"tags"`
	ID             int64     `json:"id"`
	LocationID     int64     `json:"location_id"`
	SafetyScore    int       `json:"safety_score"`
}

// ReportWithLocationData is a report together with where it was filed.
type ReportWithLocationData struct {
	Location LocationData `json:"location"`
	ReportData
}

// LocationResponse is returned by POST /api/v1/locations.
type LocationResponse struct {
	Location LocationData `json:"location"`
	Created  bool         `json:"created"`
}

// ReportResponse wraps a single report.
type ReportResponse struct {
	Report ReportWithLocationData `json:"report"`
}

// AddedReportResponse wraps a report appended to a known location.
type AddedReportResponse struct {
	Report ReportData `json:"report"`
}

// SearchResponse is one page of GET /api/v1/reports.
type SearchResponse struct {
	Reports    []ReportWithLocationData `json:"reports"`
	Message    string                   `json:"message,omitempty"`
	Count      int                      `json:"count"`
	TotalCount int                      `json:"total_count"`
	Page       int                      `json:"page"`
	PageSize   int                      `json:"page_size"`
	TotalPages int                      `json:"total_pages"`
}

// TagsResponse lists the tag vocabulary in display order.
type TagsResponse struct {
	Tags []string `json:"tags"`
}

// ResolveLocation handles POST /api/v1/locations.
// Returns 201 when the location was created, 200 when it already existed.
func (h *ReportHandler) ResolveLocation(c *gin.Context) {
	var req LocationRequest
	if !bindJSON(c, &req) {
		return
	}

	loc, created, err := h.service.ResolveLocation(c.Request.Context(), services.LocationInput{
		Country:      req.Country,
		City:         req.City,
		Neighborhood: req.Neighborhood,
	})
	if err != nil {
		if handleValidation(c, err) {
			return
		}
		apierrors.InternalServerError(c, "Failed to resolve location", err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	c.JSON(status, LocationResponse{
		Location: mapLocation(loc),
		Created:  created,
	})
}

// SubmitReport handles POST /api/v1/reports.
// It resolves the location from the free-text fields and stores the report.
func (h *ReportHandler) SubmitReport(c *gin.Context) {
	var req SubmitReportRequest
	if !bindJSON(c, &req) {
		return
	}

	saved, err := h.service.SubmitReport(c.Request.Context(), services.SubmitReportInput{
		LocationInput: services.LocationInput{
			Country:      req.Country,
			City:         req.City,
			Neighborhood: req.Neighborhood,
		},
		ReportContent: req.content(),
	})
	if err != nil {
		if handleValidation(c, err) {
			return
		}
		apierrors.InternalServerError(c, "Failed to submit report", err)
		return
	}

	c.JSON(http.StatusCreated, ReportResponse{
		Report: mapReportWithLocation(saved),
	})
}

// AddReport handles POST /api/v1/locations/:id/reports.
func (h *ReportHandler) AddReport(c *gin.Context) {
	locationID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || locationID < 1 {
		apierrors.BadRequest(c, "Location id must be a positive integer", map[string]interface{}{
			"id": c.Param("id"),
		})
		return
	}

	var req ReportContentRequest
	if !bindJSON(c, &req) {
		return
	}

	saved, err := h.service.AddReport(c.Request.Context(), locationID, req.content())
	if err != nil {
		if errors.Is(err, services.ErrLocationNotFound) {
			apierrors.NotFound(c, "Location not found")
			return
		}
		if handleValidation(c, err) {
			return
		}
		apierrors.InternalServerError(c, "Failed to add report", err)
		return
	}

	c.JSON(http.StatusCreated, AddedReportResponse{
		Report: mapReport(saved),
	})
}

// Search handles GET /api/v1/reports.
// An empty result is a 200 with a message, not a 404.
func (h *ReportHandler) Search(c *gin.Context) {
	var req SearchRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		var validationErrors validator.ValidationErrors
		if errors.As(err, &validationErrors) {
			apierrors.ValidationError(c, validationErrors)
			return
		}
		apierrors.BadRequest(c, "Invalid query parameters", nil)
		return
	}

	if log := middleware.GetLogger(c); log != nil {
		log.Debug("Processing report search", map[string]interface{}{
			"country": req.Country,
			"city":    req.City,
			"page":    req.Page,
		})
	}

	page, err := h.service.SearchReports(c.Request.Context(), services.SearchInput{
		LocationInput: services.LocationInput{
			Country:      req.Country,
			City:         req.City,
			Neighborhood: req.Neighborhood,
		},
		Tags: splitTags(req.Tags),
		Page: req.Page,
	})
	if err != nil {
		if errors.Is(err, services.ErrInvalidPage) {
			apierrors.BadRequest(c, err.Error(), map[string]interface{}{"page": req.Page})
			return
		}
		if handleValidation(c, err) {
			return
		}
		apierrors.InternalServerError(c, "Failed to search reports", err)
		return
	}

	reports := make([]ReportWithLocationData, 0, len(page.Items))
	for i := range page.Items {
		reports = append(reports, mapReportWithLocation(&page.Items[i]))
	}

	response := SearchResponse{
		Reports:    reports,
		Count:      len(reports),
		TotalCount: page.TotalCount,
		Page:       page.Page,
		PageSize:   page.PageSize,
		TotalPages: page.TotalPages,
	}
	if page.Empty() {
		response.Message = NoResultsMessage
	}

	c.JSON(http.StatusOK, response)
}

// ListTags handles GET /api/v1/tags.
func (h *ReportHandler) ListTags(c *gin.Context) {
	vocab := models.Vocabulary()
	tags := make([]string, len(vocab))
	for i, t := range vocab {
		tags[i] = string(t)
	}
	c.JSON(http.StatusOK, TagsResponse{Tags: tags})
}

func (r ReportContentRequest) content() services.ReportContent {
	score := models.DefaultSafetyScore
	if r.SafetyScore != nil {
		score = *r.SafetyScore
	}
	return services.ReportContent{
		Title:          r.Title,
		Body:           r.Body,
		AuthorInitials: r.AuthorInitials,
		Tags:           r.Tags,
		SafetyScore:    score,
	}
}

// bindJSON binds the request body, writing a 400 and returning false on failure.
func bindJSON(c *gin.Context, dst interface{}) bool {
	err := c.ShouldBindJSON(dst)
	if err == nil {
		return true
	}
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		apierrors.ValidationError(c, validationErrors)
		return false
	}
	apierrors.BadRequest(c, "Request body must be valid JSON", nil)
	return false
}

// handleValidation writes a 400 for service-level validation failures.
func handleValidation(c *gin.Context, err error) bool {
	var verr *services.ValidationError
	if errors.As(err, &verr) {
		apierrors.FieldErrors(c, verr.Fields)
		return true
	}
	return false
}

// splitTags flattens repeated and comma-separated tag parameters.
func splitTags(raw []string) []string {
	var tags []string
	for _, r := range raw {
		for _, part := range strings.Split(r, ",") {
			if part = strings.TrimSpace(part); part != "" {
				tags = append(tags, part)
			}
		}
	}
	return tags
}

func mapLocation(loc *models.Location) LocationData {
	return LocationData{
		ID:           loc.ID,
		Country:      loc.Country,
		City:         loc.City,
		Neighborhood: loc.Neighborhood,
		Label:        loc.DetailedLabel(),
	}
}

func mapReport(r *models.SafetyReport) ReportData {
	return ReportData{
		ID:             r.ID,
		LocationID:     r.LocationID,
		SafetyScore:    r.SafetyScore,
		Stars:          models.Stars(r.SafetyScore),
		Title:          r.Title,
		Body:           r.Body,
		Tags:           r.Tags.Strings(),
		AuthorInitials: r.AuthorInitials,
		CreatedAt:      r.CreatedAt,
	}
}

func mapReportWithLocation(r *models.ReportWithLocation) ReportWithLocationData {
	return ReportWithLocationData{
		ReportData: mapReport(&r.Report),
		Location:   mapLocation(&r.Location),
	}
}
