package handlers

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/arklim/continuous-auth/internal/core/domain"
)

// ErrorResponse represents a generic error payload with trace ID for debugging.
type ErrorResponse struct {
	Error   string `json:"error"`
	TraceID string `json:"trace_id,omitempty"`
}

// NewErrorResponse creates an error response with trace ID from context
func NewErrorResponse(c *gin.Context, errorMsg string) ErrorResponse {
	traceID, _ := c.Get("trace_id")
	traceIDStr, _ := traceID.(string)

	return ErrorResponse{
		Error:   errorMsg,
		TraceID: traceIDStr,
	}
}

// MessageResponse represents a simple message payload.
type MessageResponse struct {
	Message string `json:"message"`
}

// SessionCreateRequest defines the payload for registering a session.
type SessionCreateRequest struct {
	UserID            string  `json:"user_id" binding:"required"`
	DeviceFingerprint *string `json:"device_fingerprint"`
	IPAddress         *string `json:"ip_address"`
}

// SessionPayload provides a compact view of a registered session.
type SessionPayload struct {
	ID                  string    `json:"id"`
	UserID              string    `json:"user_id"`
	CreatedAt           time.Time `json:"created_at"`
	ExpiresAt           time.Time `json:"expires_at"`
	LastActivity        time.Time `json:"last_activity"`
	AuthenticationCount int64     `json:"authentication_count"`
}

func newSessionPayload(session domain.Session) SessionPayload {
	return SessionPayload{
		ID:                  session.ID,
		UserID:              session.UserID,
		CreatedAt:           session.CreatedAt,
		ExpiresAt:           session.ExpiresAt,
		LastActivity:        session.LastActivity,
		AuthenticationCount: session.AuthenticationCount,
	}
}

// SessionStatusResponse reports the read-only state of a session.
type SessionStatusResponse struct {
	SessionID           string    `json:"session_id"`
	UserID              string    `json:"user_id"`
	CreatedAt           time.Time `json:"created_at"`
	ExpiresAt           time.Time `json:"expires_at"`
	LastActivity        time.Time `json:"last_activity"`
	DurationSeconds     float64   `json:"duration_seconds"`
	AuthenticationCount int64     `json:"authentication_count"`
	IsActive            bool      `json:"is_active"`
}

// AuthenticateRequest carries the inputs of one continuous evaluation pass.
type AuthenticateRequest struct {
	SessionID         string  `json:"session_id" binding:"required"`
	DeviceFingerprint *string `json:"device_fingerprint"`
	Context           string  `json:"context"`
	DeviceMismatch    bool    `json:"device_mismatch"`
	LocationChange    bool    `json:"location_change"`
	TimeAnomaly       bool    `json:"time_anomaly"`
}

// AssessmentPayload summarizes the risk assessment attached to a decision.
type AssessmentPayload struct {
	AlertID            string   `json:"alert_id"`
	Severity           string   `json:"severity"`
	RiskFactors        []string `json:"risk_factors"`
	RecommendedActions []string `json:"recommended_actions"`
}

// AuthenticateResponse describes the outcome of one evaluation pass.
type AuthenticateResponse struct {
	Success            bool               `json:"success"`
	UserID             string             `json:"user_id"`
	SessionID          string             `json:"session_id"`
	CombinedConfidence float64            `json:"combined_confidence"`
	Decision           string             `json:"decision"`
	Message            string             `json:"message"`
	ChallengeID        *string            `json:"challenge_id,omitempty"`
	RequiresUserAction bool               `json:"requires_user_action"`
	Assessment         *AssessmentPayload `json:"assessment,omitempty"`
}

func newAssessmentPayload(alert *domain.SecurityAlert) *AssessmentPayload {
	if alert == nil {
		return nil
	}
	factors := make([]string, 0, len(alert.RiskFactors))
	for _, f := range alert.RiskFactors {
		factors = append(factors, string(f))
	}
	actions := make([]string, 0, len(alert.RecommendedActions))
	for _, a := range alert.RecommendedActions {
		actions = append(actions, string(a))
	}
	return &AssessmentPayload{
		AlertID:            alert.ID,
		Severity:           string(alert.Severity),
		RiskFactors:        factors,
		RecommendedActions: actions,
	}
}

// ChallengeResponseRequest carries the caller's answer to a pending challenge.
// Only the field matching the challenge type is consulted.
type ChallengeResponseRequest struct {
	PIN                 *string  `json:"pin"`
	BiometricConfidence *float64 `json:"biometric_confidence"`
	Code                *string  `json:"code"`
}

// ChallengeOutcomeResponse reports the result of one challenge attempt.
type ChallengeOutcomeResponse struct {
	ChallengeID       string `json:"challenge_id"`
	Type              string `json:"type"`
	Success           bool   `json:"success"`
	Completed         bool   `json:"completed"`
	AttemptsRemaining int    `json:"attempts_remaining"`
	Message           string `json:"message"`
}

// BehaviorSampleRequest carries one behavioral feature snapshot for a session.
type BehaviorSampleRequest struct {
	SessionID string             `json:"session_id" binding:"required"`
	Features  map[string]float64 `json:"features" binding:"required"`
}

// BehaviorSampleResponse acknowledges an ingested snapshot.
type BehaviorSampleResponse struct {
	SessionID   string `json:"session_id"`
	SampleCount int    `json:"sample_count"`
}

// ThresholdFeedbackRequest applies operator feedback to a context's adaptive
// threshold adjustment.
type ThresholdFeedbackRequest struct {
	Context            string  `json:"context"`
	Feedback           string  `json:"feedback" binding:"required"`
	ObservedConfidence float64 `json:"observed_confidence"`
}

// ThresholdFeedbackResponse reports the resulting cumulative adjustment.
type ThresholdFeedbackResponse struct {
	Context    string  `json:"context"`
	Adjustment float64 `json:"adjustment"`
}

// AlertPayload is the API view of a recorded security alert.
type AlertPayload struct {
	ID                 string    `json:"id"`
	UserID             string    `json:"user_id"`
	SessionID          string    `json:"session_id"`
	Severity           string    `json:"severity"`
	RiskFactors        []string  `json:"risk_factors"`
	RecommendedActions []string  `json:"recommended_actions"`
	CombinedConfidence float64   `json:"combined_confidence"`
	AnomalyScore       float64   `json:"anomaly_score"`
	Context            string    `json:"context"`
	Timestamp          time.Time `json:"timestamp"`
}

func newAlertPayload(alert domain.SecurityAlert) AlertPayload {
	payload := AlertPayload{
		ID:                 alert.ID,
		UserID:             alert.UserID,
		SessionID:          alert.SessionID,
		Severity:           string(alert.Severity),
		RiskFactors:        make([]string, 0, len(alert.RiskFactors)),
		RecommendedActions: make([]string, 0, len(alert.RecommendedActions)),
		CombinedConfidence: alert.CombinedConfidence,
		AnomalyScore:       alert.AnomalyScore,
		Context:            alert.Context,
		Timestamp:          alert.Timestamp,
	}
	for _, f := range alert.RiskFactors {
		payload.RiskFactors = append(payload.RiskFactors, string(f))
	}
	for _, a := range alert.RecommendedActions {
		payload.RecommendedActions = append(payload.RecommendedActions, string(a))
	}
	return payload
}

// AlertListResponse wraps a page of alerts.
type AlertListResponse struct {
	Alerts []AlertPayload `json:"alerts"`
	Count  int            `json:"count"`
}

// StatsResponse reports aggregate evaluation counters since process start.
type StatsResponse struct {
	Total             int64   `json:"total"`
	Successful        int64   `json:"successful"`
	Challenged        int64   `json:"challenged"`
	Failed            int64   `json:"failed"`
	AverageConfidence float64 `json:"average_confidence"`
}

// HealthResponse describes the service health payload.
type HealthResponse struct {
	Status    string    `json:"status"`
	StartedAt time.Time `json:"started_at"`
	Timestamp time.Time `json:"timestamp"`
}

// ReadyResponse describes readiness probe results with dependency checks.
type ReadyResponse struct {
	Status    string            `json:"status"`
	Checks    map[string]string `json:"checks,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}
