package domain

import "time"

// Session identifies one continuously-authenticated principal bound to a device.
type Session struct {
	ID                  string
	UserID              string
	DeviceFingerprint   *string
	IPAddress           *string
	CreatedAt           time.Time
	ExpiresAt           time.Time
	LastActivity        time.Time
	AuthenticationCount int64
}

// IsValid reports whether the session is still usable at the supplied moment.
// A session is valid while it is inside its absolute lifetime and has seen
// activity within the idle window. Becoming invalid is terminal.
func (s Session) IsValid(at time.Time, idleTimeout time.Duration) bool {
	if !at.Before(s.ExpiresAt) {
		return false
	}
	if idleTimeout > 0 && at.Sub(s.LastActivity) >= idleTimeout {
		return false
	}
	return true
}

// Touch refreshes the activity timestamp when the session is used.
func (s *Session) Touch(at time.Time) {
	s.LastActivity = at
}

// RecordAuthentication marks one completed authentication pass.
func (s *Session) RecordAuthentication(at time.Time) {
	s.LastActivity = at
	s.AuthenticationCount++
}

// SessionStatus is the read-only view of a session returned to callers.
type SessionStatus struct {
	SessionID           string
	UserID              string
	CreatedAt           time.Time
	ExpiresAt           time.Time
	LastActivity        time.Time
	Duration            time.Duration
	AuthenticationCount int64
	IsActive            bool
}
