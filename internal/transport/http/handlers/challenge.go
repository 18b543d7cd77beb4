package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/arklim/continuous-auth/internal/core/domain"
	"github.com/arklim/continuous-auth/internal/usecase"
)

// ChallengeHandler exposes step-up challenge resolution endpoints.
type ChallengeHandler struct {
	engine *usecase.AuthEngine
}

// NewChallengeHandler constructs a challenge handler.
func NewChallengeHandler(engine *usecase.AuthEngine) *ChallengeHandler {
	return &ChallengeHandler{engine: engine}
}

// RegisterRoutes binds challenge routes to the provided router group.
func (h *ChallengeHandler) RegisterRoutes(r *gin.RouterGroup, respondMiddlewares ...gin.HandlerFunc) {
	if r == nil {
		return
	}

	chain := append([]gin.HandlerFunc{}, respondMiddlewares...)
	chain = append(chain, h.Respond)
	r.POST("/:challenge_id/response", chain...)
}

// Respond godoc
// @Summary Answer a challenge
// @Description Resolves the caller's answer against a pending step-up challenge.
// @Tags Challenges
// @Accept json
// @Produce json
// @Param challenge_id path string true "Challenge identifier"
// @Param request body ChallengeResponseRequest true "Challenge answer"
// @Success 200 {object} ChallengeOutcomeResponse
// @Failure 400 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/v1/challenges/{challenge_id}/response [post]
func (h *ChallengeHandler) Respond(c *gin.Context) {
	challengeID := c.Param("challenge_id")

	var req ChallengeResponseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid challenge answer payload"))
		return
	}

	outcome, err := h.engine.HandleChallengeResponse(c.Request.Context(), challengeID, domain.ChallengeAnswer{
		PIN:                 req.PIN,
		BiometricConfidence: req.BiometricConfidence,
		Code:                req.Code,
	})
	if err != nil {
		if errors.Is(err, usecase.ErrMissingAnswer) {
			c.JSON(http.StatusBadRequest, NewErrorResponse(c, "answer does not match challenge type"))
			return
		}
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "failed to process challenge response"))
		return
	}

	c.JSON(http.StatusOK, ChallengeOutcomeResponse{
		ChallengeID:       outcome.ChallengeID,
		Type:              string(outcome.Type),
		Success:           outcome.Success,
		Completed:         outcome.Completed,
		AttemptsRemaining: outcome.AttemptsRemaining,
		Message:           outcome.Message,
	})
}
