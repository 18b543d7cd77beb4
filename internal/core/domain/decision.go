package domain

// Decision is the engine's verdict for one authentication pass.
type Decision string

const (
	DecisionContinue  Decision = "continue"
	DecisionMonitor   Decision = "monitor"
	DecisionChallenge Decision = "challenge"
	DecisionLogout    Decision = "logout"
)

// ConfidenceLevel is the tier the combined confidence landed in relative to
// the effective thresholds.
type ConfidenceLevel string

const (
	ConfidenceHigh    ConfidenceLevel = "high"
	ConfidenceMedium  ConfidenceLevel = "medium"
	ConfidenceLow     ConfidenceLevel = "low"
	ConfidenceVeryLow ConfidenceLevel = "very_low"
)

var decisionMessages = map[Decision]string{
	DecisionContinue:  "authentication successful - continuing normal operation",
	DecisionMonitor:   "authentication successful - enhanced monitoring enabled",
	DecisionChallenge: "additional authentication required",
	DecisionLogout:    "authentication failed - session terminated",
}

// Message returns the human-readable explanation for the decision.
func (d Decision) Message() string {
	if msg, ok := decisionMessages[d]; ok {
		return msg
	}
	return "unknown decision"
}

// Succeeded reports whether the decision represents a passing evaluation.
func (d Decision) Succeeded() bool {
	return d == DecisionContinue || d == DecisionMonitor
}

// AuthenticationResult is the computed record returned to the caller for each
// Authenticate invocation. It is not persisted state.
type AuthenticationResult struct {
	Success            bool
	UserID             string
	SessionID          string
	CombinedConfidence float64
	Decision           Decision
	Message            string
	Assessment         *SecurityAlert
	ChallengeID        *string
	RequiresUserAction bool
}
