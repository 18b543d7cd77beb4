package domain

import "time"

// Severity is the qualitative risk tier of an alert.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

var severityRank = map[Severity]int{
	SeverityInfo:     0,
	SeverityLow:      1,
	SeverityMedium:   2,
	SeverityHigh:     3,
	SeverityCritical: 4,
}

// AtLeast reports whether s is at or above the supplied tier.
func (s Severity) AtLeast(other Severity) bool {
	return severityRank[s] >= severityRank[other]
}

// Escalate raises s to at least the supplied tier, never lowering it.
func (s Severity) Escalate(to Severity) Severity {
	if s.AtLeast(to) {
		return s
	}
	return to
}

// ResponseAction is a graduated security response recommended by the risk
// assessor. The action-composition algorithm depends on exhaustive, stable
// matching over this closed set.
type ResponseAction string

const (
	ActionContinue           ResponseAction = "continue"
	ActionMonitor            ResponseAction = "monitor"
	ActionChallengePIN       ResponseAction = "challenge_pin"
	ActionChallengeBiometric ResponseAction = "challenge_biometric"
	ActionChallengeOutOfBand ResponseAction = "challenge_out_of_band"
	ActionRestrictFunctions  ResponseAction = "restrict_functions"
	ActionLockSession        ResponseAction = "lock_session"
	ActionLogout             ResponseAction = "logout"
	ActionAlertAdmin         ResponseAction = "alert_admin"
)

// ChallengeTypeFor maps a step-up action to the challenge type it demands.
func (a ResponseAction) ChallengeTypeFor() (ChallengeType, bool) {
	switch a {
	case ActionChallengePIN:
		return ChallengePIN, true
	case ActionChallengeBiometric:
		return ChallengeBiometric, true
	case ActionChallengeOutOfBand:
		return ChallengeOutOfBand, true
	default:
		return "", false
	}
}

// RiskFactor names one independent contributor to an alert.
type RiskFactor string

const (
	RiskVeryLowConfidence   RiskFactor = "very_low_behavioral_confidence"
	RiskLowConfidence       RiskFactor = "low_behavioral_confidence"
	RiskHighAnomalyScore    RiskFactor = "high_anomaly_score"
	RiskFingerprintMismatch RiskFactor = "device_fingerprint_mismatch"
	RiskLocationChange      RiskFactor = "location_change"
	RiskTimeAnomaly         RiskFactor = "time_anomaly"
)

// ContextSignals are contextual booleans supplied by the caller alongside an
// authentication request. Each maps 1:1 to a risk factor when true.
type ContextSignals struct {
	DeviceMismatch bool
	LocationChange bool
	TimeAnomaly    bool
}

// SecurityAlert is the output of one risk evaluation. Never mutated after
// creation.
type SecurityAlert struct {
	ID                 string
	UserID             string
	SessionID          string
	Severity           Severity
	RiskFactors        []RiskFactor
	RecommendedActions []ResponseAction
	CombinedConfidence float64
	AnomalyScore       float64
	Context            string
	Timestamp          time.Time
}

// HasFactor reports whether the alert carries the supplied risk factor.
func (a SecurityAlert) HasFactor(factor RiskFactor) bool {
	for _, f := range a.RiskFactors {
		if f == factor {
			return true
		}
	}
	return false
}
