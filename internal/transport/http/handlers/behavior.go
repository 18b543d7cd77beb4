package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/arklim/continuous-auth/internal/core/domain"
	"github.com/arklim/continuous-auth/internal/infra/scoring"
)

// BehaviorHandler ingests behavioral feature snapshots into the scoring
// pipeline.
type BehaviorHandler struct {
	features *scoring.FeatureStore
	scorer   *scoring.BaselineScorer
}

// NewBehaviorHandler constructs a behavior ingest handler.
func NewBehaviorHandler(features *scoring.FeatureStore, scorer *scoring.BaselineScorer) *BehaviorHandler {
	return &BehaviorHandler{features: features, scorer: scorer}
}

// RegisterRoutes binds the ingest route to the provided router group.
func (h *BehaviorHandler) RegisterRoutes(r *gin.RouterGroup) {
	if r == nil {
		return
	}

	r.POST("/samples", h.IngestSample)
}

// IngestSample godoc
// @Summary Submit a behavioral sample
// @Description Appends one feature snapshot to the session's sliding window and folds it into the user baseline.
// @Tags Behavior
// @Accept json
// @Produce json
// @Param request body BehaviorSampleRequest true "Feature snapshot"
// @Success 202 {object} BehaviorSampleResponse
// @Failure 400 {object} ErrorResponse
// @Router /api/v1/behavior/samples [post]
func (h *BehaviorHandler) IngestSample(c *gin.Context) {
	var req BehaviorSampleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "session_id and features are required"))
		return
	}

	features := domain.FeatureVector(req.Features)
	if err := h.features.Ingest(c.Request.Context(), req.SessionID, features); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "feature snapshot must not be empty"))
		return
	}

	if h.scorer != nil {
		h.scorer.Observe(features)
	}

	c.JSON(http.StatusAccepted, BehaviorSampleResponse{
		SessionID:   req.SessionID,
		SampleCount: h.features.SampleCount(req.SessionID),
	})
}
