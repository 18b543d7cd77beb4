package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/arklim/continuous-auth/internal/usecase"
)

// SessionHandler exposes endpoints for session lifecycle management.
type SessionHandler struct {
	engine *usecase.AuthEngine
}

// NewSessionHandler constructs a session handler.
func NewSessionHandler(engine *usecase.AuthEngine) *SessionHandler {
	return &SessionHandler{engine: engine}
}

// RegisterRoutes binds session management routes to the provided router group.
func (h *SessionHandler) RegisterRoutes(r *gin.RouterGroup, createMiddlewares ...gin.HandlerFunc) {
	if r == nil {
		return
	}

	createHandlers := append([]gin.HandlerFunc{}, createMiddlewares...)
	createHandlers = append(createHandlers, h.CreateSession)
	r.POST("", createHandlers...)
	r.GET("/:session_id", h.SessionStatus)
	r.DELETE("/:session_id", h.EndSession)
}

// CreateSession godoc
// @Summary Register a session
// @Description Registers a new continuously-authenticated session for a user.
// @Tags Sessions
// @Accept json
// @Produce json
// @Param request body SessionCreateRequest true "Session registration request"
// @Success 201 {object} SessionPayload
// @Failure 400 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/v1/sessions [post]
func (h *SessionHandler) CreateSession(c *gin.Context) {
	var req SessionCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "user_id is required"))
		return
	}

	session, err := h.engine.CreateSession(c.Request.Context(), req.UserID, req.DeviceFingerprint, req.IPAddress)
	if err != nil {
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "failed to create session"))
		return
	}

	c.JSON(http.StatusCreated, newSessionPayload(*session))
}

// SessionStatus godoc
// @Summary Inspect a session
// @Description Returns the read-only state of a registered session.
// @Tags Sessions
// @Produce json
// @Param session_id path string true "Session identifier"
// @Success 200 {object} SessionStatusResponse
// @Failure 404 {object} ErrorResponse
// @Router /api/v1/sessions/{session_id} [get]
func (h *SessionHandler) SessionStatus(c *gin.Context) {
	sessionID := c.Param("session_id")

	status, err := h.engine.GetSessionStatus(sessionID)
	if err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrSessionNotFound, Status: http.StatusNotFound, Message: "session not found"},
		}, http.StatusInternalServerError, "failed to load session")
		return
	}

	c.JSON(http.StatusOK, SessionStatusResponse{
		SessionID:           status.SessionID,
		UserID:              status.UserID,
		CreatedAt:           status.CreatedAt,
		ExpiresAt:           status.ExpiresAt,
		LastActivity:        status.LastActivity,
		DurationSeconds:     status.Duration.Seconds(),
		AuthenticationCount: status.AuthenticationCount,
		IsActive:            status.IsActive,
	})
}

// EndSession godoc
// @Summary End a session
// @Description Invalidates a registered session on explicit logout.
// @Tags Sessions
// @Produce json
// @Param session_id path string true "Session identifier"
// @Success 200 {object} MessageResponse
// @Failure 404 {object} ErrorResponse
// @Router /api/v1/sessions/{session_id} [delete]
func (h *SessionHandler) EndSession(c *gin.Context) {
	sessionID := c.Param("session_id")

	if ok := h.engine.EndSession(c.Request.Context(), sessionID, "user_logout"); !ok {
		c.JSON(http.StatusNotFound, NewErrorResponse(c, "session not found"))
		return
	}

	c.JSON(http.StatusOK, MessageResponse{Message: "session ended"})
}
