package domain

import "time"

// SessionCreatedEvent captures the start of a continuous-authentication session.
type SessionCreatedEvent struct {
	EventID           string
	SessionID         string
	UserID            string
	DeviceFingerprint *string
	IPAddress         *string
	CreatedAt         time.Time
	ExpiresAt         time.Time
}

// SessionRevokedEvent captures the termination of a session, whatever the trigger.
type SessionRevokedEvent struct {
	EventID   string
	SessionID string
	UserID    string
	Reason    string
	RevokedAt time.Time
}

// ChallengeCreatedEvent captures the issuance of a step-up challenge. For
// out-of-band challenges DeliveryCode carries the one-time code for the
// delivery channel; it is never stored in clear by the engine.
type ChallengeCreatedEvent struct {
	EventID      string
	ChallengeID  string
	Type         ChallengeType
	UserID       string
	SessionID    string
	CreatedAt    time.Time
	ExpiresAt    time.Time
	DeliveryCode *string
}

// ChallengeResolvedEvent captures the terminal outcome of a challenge.
type ChallengeResolvedEvent struct {
	EventID     string
	ChallengeID string
	Type        ChallengeType
	UserID      string
	SessionID   string
	Successful  bool
	Exhausted   bool
	ResolvedAt  time.Time
}

// RiskAlertEvent mirrors a SecurityAlert onto the audit stream.
type RiskAlertEvent struct {
	EventID            string
	AlertID            string
	UserID             string
	SessionID          string
	Severity           Severity
	RiskFactors        []RiskFactor
	RecommendedActions []ResponseAction
	CombinedConfidence float64
	AnomalyScore       float64
	Context            string
	RaisedAt           time.Time
}

// ThresholdAdjustedEvent captures operator feedback applied to a context's
// adaptive threshold adjustment.
type ThresholdAdjustedEvent struct {
	EventID            string
	Context            string
	Feedback           string
	ObservedConfidence float64
	Adjustment         float64
	AdjustedAt         time.Time
}
