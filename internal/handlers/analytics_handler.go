package handlers

import (
	"errors"
	"math"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	apierrors "github.com/stwalsh4118/solosafe/api/internal/errors"
	"github.com/stwalsh4118/solosafe/api/internal/services"
)

// AnalyticsHandler serves the dashboard aggregates.
type AnalyticsHandler struct {
	service services.AnalyticsService
}

// NewAnalyticsHandler creates a new AnalyticsHandler instance.
func NewAnalyticsHandler(service services.AnalyticsService) *AnalyticsHandler {
	return &AnalyticsHandler{
		service: service,
	}
}

// SummaryRequest represents the query parameters for the summary endpoint.
// TopK 0 (or absent) means the server default.
type SummaryRequest struct {
	TopK int `form:"top_k" binding:"min=0"`
}

// LocationRiskData is one row of the risk ranking.
type LocationRiskData struct {
	Location     string  `json:"location"`
	AverageScore float64 `json:"average_score"`
	ReportCount  int     `json:"report_count"`
}

// SummaryResponse is the dashboard payload. HasData false means there are no
// reports yet and GlobalAverage is null.
type SummaryResponse struct {
	GlobalAverage *float64           `json:"global_average"`
	TagCounts     map[string]int     `json:"tag_counts"`
	RiskRanking   []LocationRiskData `json:"risk_ranking"`
	ReportCount   int                `json:"report_count"`
	HasData       bool               `json:"has_data"`
}

// Summary handles GET /api/v1/analytics/summary.
func (h *AnalyticsHandler) Summary(c *gin.Context) {
	var req SummaryRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		var validationErrors validator.ValidationErrors
		if errors.As(err, &validationErrors) {
			apierrors.ValidationError(c, validationErrors)
			return
		}
		apierrors.BadRequest(c, "Invalid query parameters", nil)
		return
	}

	summary, err := h.service.Summary(c.Request.Context(), req.TopK)
	if err != nil {
		if errors.Is(err, services.ErrInvalidTopK) {
			apierrors.BadRequest(c, err.Error(), map[string]interface{}{"top_k": req.TopK})
			return
		}
		apierrors.InternalServerError(c, "Failed to compute analytics summary", err)
		return
	}

	response := SummaryResponse{
		TagCounts:   make(map[string]int, len(summary.TagCounts)),
		RiskRanking: make([]LocationRiskData, 0, len(summary.RiskRanking)),
		ReportCount: summary.ReportCount,
		HasData:     summary.HasData(),
	}
	if summary.GlobalAverage != nil {
		avg := round2(*summary.GlobalAverage)
		response.GlobalAverage = &avg
	}
	for tag, n := range summary.TagCounts {
		response.TagCounts[string(tag)] = n
	}
	for _, r := range summary.RiskRanking {
		response.RiskRanking = append(response.RiskRanking, LocationRiskData{
			Location:     r.Label,
			AverageScore: round2(r.AverageScore),
			ReportCount:  r.ReportCount,
		})
	}

	c.JSON(http.StatusOK, response)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
