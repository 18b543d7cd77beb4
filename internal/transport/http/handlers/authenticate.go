package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/arklim/continuous-auth/internal/core/domain"
	"github.com/arklim/continuous-auth/internal/usecase"
)

// AuthenticateHandler exposes the continuous evaluation endpoint.
type AuthenticateHandler struct {
	engine *usecase.AuthEngine
}

// NewAuthenticateHandler constructs an authenticate handler.
func NewAuthenticateHandler(engine *usecase.AuthEngine) *AuthenticateHandler {
	return &AuthenticateHandler{engine: engine}
}

// RegisterRoutes binds the evaluation route to the provided router group.
func (h *AuthenticateHandler) RegisterRoutes(r *gin.RouterGroup, middlewares ...gin.HandlerFunc) {
	if r == nil {
		return
	}

	chain := append([]gin.HandlerFunc{}, middlewares...)
	chain = append(chain, h.Authenticate)
	r.POST("/authenticate", chain...)
}

// Authenticate godoc
// @Summary Evaluate a session
// @Description Runs one continuous-authentication pass for the session.
// @Tags Authentication
// @Accept json
// @Produce json
// @Param request body AuthenticateRequest true "Evaluation request"
// @Success 200 {object} AuthenticateResponse
// @Failure 400 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/v1/auth/authenticate [post]
func (h *AuthenticateHandler) Authenticate(c *gin.Context) {
	var req AuthenticateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "session_id is required"))
		return
	}

	result, err := h.engine.Authenticate(c.Request.Context(), usecase.AuthenticateRequest{
		SessionID:         req.SessionID,
		DeviceFingerprint: req.DeviceFingerprint,
		Context:           req.Context,
		Signals: domain.ContextSignals{
			DeviceMismatch: req.DeviceMismatch,
			LocationChange: req.LocationChange,
			TimeAnomaly:    req.TimeAnomaly,
		},
	})
	if err != nil {
		// Invalid sessions surface inside the result as a logout decision;
		// an error here means the evaluation itself broke.
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "authentication failed"))
		return
	}

	c.JSON(http.StatusOK, AuthenticateResponse{
		Success:            result.Success,
		UserID:             result.UserID,
		SessionID:          result.SessionID,
		CombinedConfidence: result.CombinedConfidence,
		Decision:           string(result.Decision),
		Message:            result.Message,
		ChallengeID:        result.ChallengeID,
		RequiresUserAction: result.RequiresUserAction,
		Assessment:         newAssessmentPayload(result.Assessment),
	})
}
