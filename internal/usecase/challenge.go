package usecase

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/arklim/continuous-auth/internal/core/domain"
	"github.com/arklim/continuous-auth/internal/core/port"
	"github.com/arklim/continuous-auth/internal/infra/security"
)

var (
	// ErrChallengeNotFound is returned when the challenge ID is unknown or
	// already reclaimed.
	ErrChallengeNotFound = errors.New("challenge not found")
	// ErrInvalidChallengeType is returned for an unrecognized challenge type.
	ErrInvalidChallengeType = errors.New("invalid challenge type")
	// ErrMissingAnswer is returned when the answer lacks the field the
	// challenge type requires.
	ErrMissingAnswer = errors.New("answer does not match challenge type")
)

const (
	defaultMaxAttempts      = 3
	defaultChallengeTimeout = 5 * time.Minute
	oobCodeDigits           = 6

	// biometricAcceptThreshold is the minimum match confidence accepted for a
	// biometric challenge.
	biometricAcceptThreshold = 0.8
)

// ChallengeConfig tunes the step-up challenge lifecycle.
type ChallengeConfig struct {
	MaxAttempts int
	Timeout     time.Duration
}

func (c *ChallengeConfig) applyDefaults() {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = defaultMaxAttempts
	}
	if c.Timeout <= 0 {
		c.Timeout = defaultChallengeTimeout
	}
}

// ChallengeOutcome is the result of one response attempt (or a replay against
// an already-completed challenge).
type ChallengeOutcome struct {
	ChallengeID       string
	Type              domain.ChallengeType
	UserID            string
	SessionID         string
	Success           bool
	Completed         bool
	Exhausted         bool
	AttemptsRemaining int
	Message           string
}

// ChallengeService owns the step-up challenge registry: creation, response
// validation with bounded attempts, lazy expiry, and terminal-state
// immutability.
type ChallengeService struct {
	cfg         ChallengeConfig
	credentials port.CredentialStore
	events      port.EventPublisher
	logger      *zap.Logger

	mu         sync.RWMutex
	challenges map[string]*domain.Challenge

	now func() time.Time
}

// NewChallengeService constructs the registry. credentials may be nil when no
// PIN challenges will be issued.
func NewChallengeService(cfg ChallengeConfig, credentials port.CredentialStore, events port.EventPublisher, logger *zap.Logger) *ChallengeService {
	cfg.applyDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ChallengeService{
		cfg:         cfg,
		credentials: credentials,
		events:      events,
		logger:      logger,
		challenges:  make(map[string]*domain.Challenge),
		now:         time.Now,
	}
}

// WithClock overrides the time source. Test helper.
func (s *ChallengeService) WithClock(now func() time.Time) *ChallengeService {
	s.now = now
	return s
}

// Create registers a new pending challenge. For out-of-band challenges a
// one-time numeric code is generated, stored only as a digest, and handed to
// the delivery channel through the published event.
func (s *ChallengeService) Create(ctx context.Context, challengeType domain.ChallengeType, userID, sessionID string) (domain.Challenge, error) {
	if !domain.ValidChallengeType(challengeType) {
		return domain.Challenge{}, fmt.Errorf("%w: %q", ErrInvalidChallengeType, challengeType)
	}

	now := s.now().UTC()
	challenge := &domain.Challenge{
		ID:                uuid.NewString(),
		Type:              challengeType,
		UserID:            userID,
		SessionID:         sessionID,
		CreatedAt:         now,
		ExpiresAt:         now.Add(s.cfg.Timeout),
		AttemptsRemaining: s.cfg.MaxAttempts,
	}

	var deliveryCode *string
	if challengeType == domain.ChallengeOutOfBand {
		code, err := security.GenerateNumericCode(oobCodeDigits)
		if err != nil {
			return domain.Challenge{}, fmt.Errorf("generate out-of-band code: %w", err)
		}
		challenge.SecretHash = security.HashToken(code)
		deliveryCode = &code
	}

	s.mu.Lock()
	s.challenges[challenge.ID] = challenge
	created := *challenge
	s.mu.Unlock()

	s.logger.Info("challenge created",
		zap.String("challenge_id", created.ID),
		zap.String("type", string(created.Type)),
		zap.String("session_id", sessionID),
	)

	if s.events != nil {
		if err := s.events.PublishChallengeCreated(ctx, domain.ChallengeCreatedEvent{
			EventID:      uuid.NewString(),
			ChallengeID:  created.ID,
			Type:         created.Type,
			UserID:       userID,
			SessionID:    sessionID,
			CreatedAt:    created.CreatedAt,
			ExpiresAt:    created.ExpiresAt,
			DeliveryCode: deliveryCode,
		}); err != nil {
			s.logger.Warn("failed to publish challenge created event", zap.Error(err))
		}
	}

	return created, nil
}

// ValidateResponse evaluates one answer against a pending challenge. Replays
// against a completed challenge return the stored outcome without touching
// state; expired challenges are reclaimed on access.
func (s *ChallengeService) ValidateResponse(ctx context.Context, challengeID string, answer domain.ChallengeAnswer) (ChallengeOutcome, error) {
	s.mu.RLock()
	challenge, ok := s.challenges[challengeID]
	var challengeType domain.ChallengeType
	var userID string
	if ok {
		challengeType = challenge.Type
		userID = challenge.UserID
	}
	s.mu.RUnlock()

	if !ok {
		return ChallengeOutcome{}, ErrChallengeNotFound
	}

	// Resolve the stored PIN hash outside the registry lock; verification
	// itself is CPU-bound and cheap compared to the fetch.
	var pinHash string
	if challengeType == domain.ChallengePIN && answer.PIN != nil {
		if s.credentials == nil {
			return ChallengeOutcome{}, errors.New("no credential store configured for pin challenges")
		}
		hash, err := s.credentials.PINHash(ctx, userID)
		if err != nil {
			return ChallengeOutcome{}, fmt.Errorf("resolve pin credential: %w", err)
		}
		pinHash = hash
	}

	s.mu.Lock()
	challenge, ok = s.challenges[challengeID]
	if !ok {
		s.mu.Unlock()
		return ChallengeOutcome{}, ErrChallengeNotFound
	}

	now := s.now().UTC()
	if !challenge.IsCompleted && challenge.IsExpired(now) {
		delete(s.challenges, challengeID)
		s.mu.Unlock()
		return ChallengeOutcome{
			ChallengeID: challengeID,
			Type:        challenge.Type,
			UserID:      challenge.UserID,
			SessionID:   challenge.SessionID,
			Completed:   true,
			Message:     "challenge expired",
		}, nil
	}

	if challenge.IsCompleted {
		outcome := ChallengeOutcome{
			ChallengeID: challengeID,
			Type:        challenge.Type,
			UserID:      challenge.UserID,
			SessionID:   challenge.SessionID,
			Success:     challenge.IsSuccessful,
			Completed:   true,
			Exhausted:   challenge.AttemptsRemaining <= 0,
			Message:     "challenge already completed",
		}
		s.mu.Unlock()
		return outcome, nil
	}

	correct, err := evaluateAnswer(challenge, answer, pinHash)
	if err != nil {
		s.mu.Unlock()
		return ChallengeOutcome{}, err
	}

	var outcome ChallengeOutcome
	var resolved *domain.ChallengeResolvedEvent

	if correct {
		challenge.Complete(true)
		outcome = ChallengeOutcome{
			ChallengeID:       challengeID,
			Type:              challenge.Type,
			UserID:            challenge.UserID,
			SessionID:         challenge.SessionID,
			Success:           true,
			Completed:         true,
			AttemptsRemaining: challenge.AttemptsRemaining,
			Message:           "challenge completed successfully",
		}
		resolved = &domain.ChallengeResolvedEvent{Successful: true}
	} else {
		challenge.AttemptsRemaining--
		if challenge.AttemptsRemaining <= 0 {
			challenge.AttemptsRemaining = 0
			challenge.Complete(false)
			outcome = ChallengeOutcome{
				ChallengeID: challengeID,
				Type:        challenge.Type,
				UserID:      challenge.UserID,
				SessionID:   challenge.SessionID,
				Completed:   true,
				Exhausted:   true,
				Message:     "maximum attempts exceeded",
			}
			resolved = &domain.ChallengeResolvedEvent{Successful: false, Exhausted: true}
		} else {
			outcome = ChallengeOutcome{
				ChallengeID:       challengeID,
				Type:              challenge.Type,
				UserID:            challenge.UserID,
				SessionID:         challenge.SessionID,
				AttemptsRemaining: challenge.AttemptsRemaining,
				Message:           fmt.Sprintf("invalid response - %d attempts remaining", challenge.AttemptsRemaining),
			}
		}
	}
	challengeCopy := *challenge
	s.mu.Unlock()

	if resolved != nil && s.events != nil {
		resolved.EventID = uuid.NewString()
		resolved.ChallengeID = challengeCopy.ID
		resolved.Type = challengeCopy.Type
		resolved.UserID = challengeCopy.UserID
		resolved.SessionID = challengeCopy.SessionID
		resolved.ResolvedAt = now
		if err := s.events.PublishChallengeResolved(ctx, *resolved); err != nil {
			s.logger.Warn("failed to publish challenge resolved event", zap.Error(err))
		}
	}

	return outcome, nil
}

// Get returns a copy of the challenge.
func (s *ChallengeService) Get(challengeID string) (domain.Challenge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	challenge, ok := s.challenges[challengeID]
	if !ok {
		return domain.Challenge{}, ErrChallengeNotFound
	}
	return *challenge, nil
}

// PendingForSession returns the first pending, unexpired challenge bound to
// the session, if any.
func (s *ChallengeService) PendingForSession(sessionID string) (domain.Challenge, bool) {
	now := s.now().UTC()

	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, challenge := range s.challenges {
		if challenge.SessionID == sessionID && !challenge.IsCompleted && !challenge.IsExpired(now) {
			return *challenge, true
		}
	}
	return domain.Challenge{}, false
}

// CleanupExpired reclaims expired and completed challenges, returning the
// number removed.
func (s *ChallengeService) CleanupExpired(ctx context.Context) int {
	now := s.now().UTC()

	s.mu.Lock()
	removed := 0
	for id, challenge := range s.challenges {
		if challenge.IsCompleted || challenge.IsExpired(now) {
			delete(s.challenges, id)
			removed++
		}
	}
	s.mu.Unlock()

	if removed > 0 {
		s.logger.Debug("reclaimed challenges", zap.Int("count", removed))
	}
	return removed
}

// Count returns the number of tracked challenges.
func (s *ChallengeService) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.challenges)
}

func evaluateAnswer(challenge *domain.Challenge, answer domain.ChallengeAnswer, pinHash string) (bool, error) {
	switch challenge.Type {
	case domain.ChallengePIN:
		if answer.PIN == nil {
			return false, ErrMissingAnswer
		}
		ok, err := security.VerifyPIN(*answer.PIN, pinHash)
		if err != nil {
			return false, fmt.Errorf("verify pin: %w", err)
		}
		return ok, nil
	case domain.ChallengeBiometric:
		if answer.BiometricConfidence == nil {
			return false, ErrMissingAnswer
		}
		return *answer.BiometricConfidence >= biometricAcceptThreshold, nil
	case domain.ChallengeOutOfBand:
		if answer.Code == nil {
			return false, ErrMissingAnswer
		}
		digest := security.HashToken(*answer.Code)
		return subtle.ConstantTimeCompare([]byte(digest), []byte(challenge.SecretHash)) == 1, nil
	default:
		return false, fmt.Errorf("%w: %q", ErrInvalidChallengeType, challenge.Type)
	}
}
