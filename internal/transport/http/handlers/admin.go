package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/arklim/continuous-auth/internal/core/domain"
	"github.com/arklim/continuous-auth/internal/core/port"
	"github.com/arklim/continuous-auth/internal/usecase"
)

func newAlertListResponse(alerts []domain.SecurityAlert) AlertListResponse {
	payloads := make([]AlertPayload, 0, len(alerts))
	for _, alert := range alerts {
		payloads = append(payloads, newAlertPayload(alert))
	}
	return AlertListResponse{Alerts: payloads, Count: len(payloads)}
}

const defaultAlertPageSize = 50

// AdminHandler exposes operator endpoints for threshold tuning, alert review,
// and aggregate statistics.
type AdminHandler struct {
	engine *usecase.AuthEngine
	alerts port.AlertRepository
}

// NewAdminHandler constructs an admin handler. The alert repository is
// optional; without it alert queries fall back to the in-memory history.
func NewAdminHandler(engine *usecase.AuthEngine, alerts port.AlertRepository) *AdminHandler {
	return &AdminHandler{engine: engine, alerts: alerts}
}

// RegisterRoutes binds operator routes to the provided router group.
func (h *AdminHandler) RegisterRoutes(r *gin.RouterGroup) {
	if r == nil {
		return
	}

	r.POST("/thresholds/feedback", h.ThresholdFeedback)
	r.GET("/alerts", h.ListAlerts)
	r.GET("/stats", h.Stats)
}

// ThresholdFeedback godoc
// @Summary Apply threshold feedback
// @Description Applies operator feedback to a context's adaptive threshold adjustment.
// @Tags Admin
// @Accept json
// @Produce json
// @Security Bearer
// @Param request body ThresholdFeedbackRequest true "Feedback"
// @Success 200 {object} ThresholdFeedbackResponse
// @Failure 400 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/v1/admin/thresholds/feedback [post]
func (h *AdminHandler) ThresholdFeedback(c *gin.Context) {
	var req ThresholdFeedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "feedback is required"))
		return
	}

	adjustment, err := h.engine.AdjustThreshold(c.Request.Context(), req.Context, usecase.Feedback(req.Feedback), req.ObservedConfidence)
	if err != nil {
		if errors.Is(err, usecase.ErrUnknownFeedback) {
			c.JSON(http.StatusBadRequest, NewErrorResponse(c, "feedback must be false_positive or false_negative"))
			return
		}
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "failed to adjust threshold"))
		return
	}

	contextName := req.Context
	if contextName == "" {
		contextName = usecase.DefaultContext
	}

	c.JSON(http.StatusOK, ThresholdFeedbackResponse{
		Context:    contextName,
		Adjustment: adjustment,
	})
}

// ListAlerts godoc
// @Summary List security alerts
// @Description Lists recent alerts, optionally filtered to one session. Served from the persistent store when available.
// @Tags Admin
// @Produce json
// @Security Bearer
// @Param session_id query string false "Session identifier"
// @Param limit query int false "Maximum number of alerts"
// @Success 200 {object} AlertListResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/v1/admin/alerts [get]
func (h *AdminHandler) ListAlerts(c *gin.Context) {
	limit := defaultAlertPageSize
	if raw := c.Query("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	sessionID := c.Query("session_id")

	// The persistent store is preferred; on failure the in-memory history
	// still serves a best-effort view.
	if h.alerts != nil {
		var alerts []domain.SecurityAlert
		var err error
		if sessionID != "" {
			alerts, err = h.alerts.ListBySession(c.Request.Context(), sessionID, limit)
		} else {
			alerts, err = h.alerts.ListRecent(c.Request.Context(), limit)
		}
		if err == nil {
			c.JSON(http.StatusOK, newAlertListResponse(alerts))
			return
		}
	}

	recent := h.engine.RecentAlerts(limit)
	if sessionID != "" {
		filtered := recent[:0]
		for _, alert := range recent {
			if alert.SessionID == sessionID {
				filtered = append(filtered, alert)
			}
		}
		recent = filtered
	}

	c.JSON(http.StatusOK, newAlertListResponse(recent))
}

// Stats godoc
// @Summary Aggregate statistics
// @Description Reports evaluation counters accumulated since process start.
// @Tags Admin
// @Produce json
// @Security Bearer
// @Success 200 {object} StatsResponse
// @Router /api/v1/admin/stats [get]
func (h *AdminHandler) Stats(c *gin.Context) {
	stats := h.engine.Stats()
	c.JSON(http.StatusOK, StatsResponse{
		Total:             stats.Total,
		Successful:        stats.Successful,
		Challenged:        stats.Challenged,
		Failed:            stats.Failed,
		AverageConfidence: stats.AverageConfidence,
	})
}
