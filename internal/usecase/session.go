package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/arklim/continuous-auth/internal/core/domain"
	"github.com/arklim/continuous-auth/internal/core/port"
	"github.com/arklim/continuous-auth/internal/infra/security"
)

var (
	// ErrSessionNotFound indicates that the requested session does not exist.
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionExpired indicates the session passed its absolute or idle limit.
	ErrSessionExpired = errors.New("session expired")
	// ErrFingerprintMismatch indicates the presented device fingerprint does not
	// match the one the session was created with. The session is invalidated.
	ErrFingerprintMismatch = errors.New("device fingerprint mismatch")
	// ErrSessionCapacity indicates the per-user session limit could not be
	// enforced by evicting the oldest session.
	ErrSessionCapacity = errors.New("session capacity exceeded")
)

// SessionConfig bounds session lifetimes and per-user concurrency.
type SessionConfig struct {
	AbsoluteTimeout      time.Duration
	IdleTimeout          time.Duration
	MaxConcurrentPerUser int
}

// SessionService owns the in-memory session registry. All mutation goes
// through its synchronized operations; callers receive copies.
type SessionService struct {
	mu       sync.RWMutex
	sessions map[string]*domain.Session

	cfg    SessionConfig
	events port.EventPublisher
	logger *zap.Logger
	now    func() time.Time
}

// NewSessionService constructs a SessionService.
func NewSessionService(cfg SessionConfig, events port.EventPublisher, logger *zap.Logger) *SessionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.AbsoluteTimeout <= 0 {
		cfg.AbsoluteTimeout = 30 * time.Minute
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = 15 * time.Minute
	}
	if cfg.MaxConcurrentPerUser <= 0 {
		cfg.MaxConcurrentPerUser = 3
	}

	service := &SessionService{
		sessions: make(map[string]*domain.Session),
		cfg:      cfg,
		events:   events,
		logger:   logger,
	}
	service.now = func() time.Time { return time.Now().UTC() }
	return service
}

// WithClock overrides the internal clock for deterministic tests.
func (s *SessionService) WithClock(clock func() time.Time) {
	if clock != nil {
		s.now = clock
	}
}

// Create issues a new session for the user. When the user is already at the
// concurrency limit the oldest session is evicted first.
func (s *SessionService) Create(ctx context.Context, userID string, deviceFingerprint, ipAddress *string) (*domain.Session, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, fmt.Errorf("user id is required")
	}

	now := s.now()

	id, err := security.GenerateSecureToken(32)
	if err != nil {
		return nil, fmt.Errorf("generate session id: %w", err)
	}

	s.mu.Lock()
	evicted := s.enforceCapacityLocked(userID)
	if evicted == nil {
		s.mu.Unlock()
		return nil, ErrSessionCapacity
	}

	session := &domain.Session{
		ID:                id,
		UserID:            userID,
		DeviceFingerprint: copyString(deviceFingerprint),
		IPAddress:         copyString(ipAddress),
		CreatedAt:         now,
		ExpiresAt:         now.Add(s.cfg.AbsoluteTimeout),
		LastActivity:      now,
	}
	s.sessions[id] = session
	created := *session
	s.mu.Unlock()

	for _, old := range evicted {
		s.logger.Info("evicted oldest session for user",
			zap.String("user_id", userID),
			zap.String("session_id", old.ID),
		)
		s.publishRevoked(ctx, old, "concurrent_session_limit")
	}

	if s.events != nil {
		event := domain.SessionCreatedEvent{
			EventID:           uuid.NewString(),
			SessionID:         created.ID,
			UserID:            created.UserID,
			DeviceFingerprint: created.DeviceFingerprint,
			IPAddress:         created.IPAddress,
			CreatedAt:         created.CreatedAt,
			ExpiresAt:         created.ExpiresAt,
		}
		if err := s.events.PublishSessionCreated(ctx, event); err != nil {
			s.logger.Warn("publish session created failed", zap.String("session_id", created.ID), zap.Error(err))
		}
	}

	return &created, nil
}

// Validate checks absolute expiry, idle expiry, and fingerprint equality, then
// refreshes the activity timestamp. A fingerprint mismatch invalidates the
// session immediately; there is no partial trust.
func (s *SessionService) Validate(ctx context.Context, sessionID string, deviceFingerprint *string) (*domain.Session, error) {
	now := s.now()

	s.mu.Lock()
	session, ok := s.sessions[sessionID]
	if !ok {
		s.mu.Unlock()
		return nil, ErrSessionNotFound
	}

	if !session.IsValid(now, s.cfg.IdleTimeout) {
		delete(s.sessions, sessionID)
		expired := *session
		s.mu.Unlock()
		s.publishRevoked(ctx, &expired, "expired")
		return nil, ErrSessionExpired
	}

	if deviceFingerprint != nil && session.DeviceFingerprint != nil &&
		*deviceFingerprint != *session.DeviceFingerprint {
		delete(s.sessions, sessionID)
		mismatched := *session
		s.mu.Unlock()
		s.logger.Warn("session fingerprint mismatch", zap.String("session_id", sessionID))
		s.publishRevoked(ctx, &mismatched, "fingerprint_mismatch")
		return nil, ErrFingerprintMismatch
	}

	session.Touch(now)
	validated := *session
	s.mu.Unlock()

	return &validated, nil
}

// RecordAuthentication bumps the authentication counter for the session and
// returns the new count.
func (s *SessionService) RecordAuthentication(sessionID string) (int64, error) {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[sessionID]
	if !ok {
		return 0, ErrSessionNotFound
	}
	session.RecordAuthentication(now)
	return session.AuthenticationCount, nil
}

// Invalidate removes the session. Returns false when it did not exist.
func (s *SessionService) Invalidate(ctx context.Context, sessionID, reason string) bool {
	s.mu.Lock()
	session, ok := s.sessions[sessionID]
	if ok {
		delete(s.sessions, sessionID)
	}
	s.mu.Unlock()

	if !ok {
		return false
	}

	s.publishRevoked(ctx, session, reason)
	return true
}

// Status returns the read-only view of a session without refreshing activity.
func (s *SessionService) Status(sessionID string) (*domain.SessionStatus, error) {
	now := s.now()

	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.sessions[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}

	return &domain.SessionStatus{
		SessionID:           session.ID,
		UserID:              session.UserID,
		CreatedAt:           session.CreatedAt,
		ExpiresAt:           session.ExpiresAt,
		LastActivity:        session.LastActivity,
		Duration:            now.Sub(session.CreatedAt),
		AuthenticationCount: session.AuthenticationCount,
		IsActive:            session.IsValid(now, s.cfg.IdleTimeout),
	}, nil
}

// CleanupExpired sweeps every session failing the validity predicate and
// returns how many were removed.
func (s *SessionService) CleanupExpired(ctx context.Context) int {
	now := s.now()

	s.mu.Lock()
	var expired []*domain.Session
	for id, session := range s.sessions {
		if !session.IsValid(now, s.cfg.IdleTimeout) {
			expired = append(expired, session)
			delete(s.sessions, id)
		}
	}
	s.mu.Unlock()

	for _, session := range expired {
		s.publishRevoked(ctx, session, "expired")
	}

	return len(expired)
}

// Count returns the number of live sessions in the registry.
func (s *SessionService) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// enforceCapacityLocked evicts the oldest sessions of the user until one slot
// is free. Returns the evicted sessions, or nil when eviction failed to make
// room. Caller holds the write lock.
func (s *SessionService) enforceCapacityLocked(userID string) []*domain.Session {
	evicted := make([]*domain.Session, 0, 1)
	for {
		var owned []*domain.Session
		for _, session := range s.sessions {
			if session.UserID == userID {
				owned = append(owned, session)
			}
		}
		if len(owned) < s.cfg.MaxConcurrentPerUser {
			return evicted
		}

		oldest := owned[0]
		for _, session := range owned[1:] {
			if session.CreatedAt.Before(oldest.CreatedAt) {
				oldest = session
			}
		}
		if _, ok := s.sessions[oldest.ID]; !ok {
			return nil
		}
		delete(s.sessions, oldest.ID)
		evicted = append(evicted, oldest)
	}
}

func (s *SessionService) publishRevoked(ctx context.Context, session *domain.Session, reason string) {
	if s.events == nil || session == nil {
		return
	}
	event := domain.SessionRevokedEvent{
		EventID:   uuid.NewString(),
		SessionID: session.ID,
		UserID:    session.UserID,
		Reason:    reason,
		RevokedAt: s.now(),
	}
	if err := s.events.PublishSessionRevoked(ctx, event); err != nil {
		s.logger.Warn("publish session revoked failed", zap.String("session_id", session.ID), zap.Error(err))
	}
}

func copyString(v *string) *string {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}
