package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/arklim/continuous-auth/internal/core/domain"
	"github.com/arklim/continuous-auth/internal/core/port"
	"github.com/arklim/continuous-auth/internal/infra/security"
)

func newTestChallengeService(creds *staticCredentials, events *recordingPublisher) (*ChallengeService, *time.Time) {
	var store port.CredentialStore
	if creds != nil {
		store = creds
	}
	var publisher port.EventPublisher
	if events != nil {
		publisher = events
	}

	svc := NewChallengeService(ChallengeConfig{
		MaxAttempts: 3,
		Timeout:     5 * time.Minute,
	}, store, publisher, nil)

	current := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	svc.WithClock(func() time.Time { return current })
	return svc, &current
}

func strPtr(v string) *string     { return &v }
func floatPtr(v float64) *float64 { return &v }

func TestChallengeCreateRejectsUnknownType(t *testing.T) {
	svc, _ := newTestChallengeService(nil, nil)

	if _, err := svc.Create(context.Background(), domain.ChallengeType("retina"), "u", "s"); !errors.Is(err, ErrInvalidChallengeType) {
		t.Fatalf("expected ErrInvalidChallengeType, got %v", err)
	}
}

func TestChallengeUnknownID(t *testing.T) {
	svc, _ := newTestChallengeService(nil, nil)

	if _, err := svc.ValidateResponse(context.Background(), "missing", domain.ChallengeAnswer{}); !errors.Is(err, ErrChallengeNotFound) {
		t.Fatalf("expected ErrChallengeNotFound, got %v", err)
	}
}

func TestPINChallengeSuccess(t *testing.T) {
	hash, err := security.HashPIN("4821")
	if err != nil {
		t.Fatalf("HashPIN returned error: %v", err)
	}
	events := &recordingPublisher{}
	svc, _ := newTestChallengeService(&staticCredentials{hash: hash}, events)

	challenge, err := svc.Create(context.Background(), domain.ChallengePIN, "u", "s")
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	if challenge.AttemptsRemaining != 3 {
		t.Fatalf("expected 3 attempts, got %d", challenge.AttemptsRemaining)
	}

	outcome, err := svc.ValidateResponse(context.Background(), challenge.ID, domain.ChallengeAnswer{PIN: strPtr("4821")})
	if err != nil {
		t.Fatalf("ValidateResponse returned error: %v", err)
	}
	if !outcome.Success || !outcome.Completed {
		t.Fatalf("expected successful completion, got %+v", outcome)
	}

	if len(events.challengeResolved) != 1 || !events.challengeResolved[0].Successful {
		t.Fatalf("expected one successful resolution event, got %+v", events.challengeResolved)
	}
}

func TestPINChallengeExhaustsAttempts(t *testing.T) {
	hash, err := security.HashPIN("4821")
	if err != nil {
		t.Fatalf("HashPIN returned error: %v", err)
	}
	events := &recordingPublisher{}
	svc, _ := newTestChallengeService(&staticCredentials{hash: hash}, events)

	challenge, err := svc.Create(context.Background(), domain.ChallengePIN, "u", "s")
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}

	wrong := domain.ChallengeAnswer{PIN: strPtr("0000")}
	for attempt := 1; attempt <= 2; attempt++ {
		outcome, err := svc.ValidateResponse(context.Background(), challenge.ID, wrong)
		if err != nil {
			t.Fatalf("attempt %d returned error: %v", attempt, err)
		}
		if outcome.Completed {
			t.Fatalf("attempt %d should not complete: %+v", attempt, outcome)
		}
		if outcome.AttemptsRemaining != 3-attempt {
			t.Fatalf("attempt %d: expected %d remaining, got %d", attempt, 3-attempt, outcome.AttemptsRemaining)
		}
	}

	outcome, err := svc.ValidateResponse(context.Background(), challenge.ID, wrong)
	if err != nil {
		t.Fatalf("final attempt returned error: %v", err)
	}
	if !outcome.Completed || outcome.Success || !outcome.Exhausted {
		t.Fatalf("expected exhausted failure, got %+v", outcome)
	}
	if outcome.Message != "maximum attempts exceeded" {
		t.Fatalf("unexpected message: %q", outcome.Message)
	}

	// A correct answer after exhaustion replays the stored failure.
	replay, err := svc.ValidateResponse(context.Background(), challenge.ID, domain.ChallengeAnswer{PIN: strPtr("4821")})
	if err != nil {
		t.Fatalf("replay returned error: %v", err)
	}
	if replay.Success || !replay.Completed {
		t.Fatalf("expected stored failure on replay, got %+v", replay)
	}
	if replay.Message != "challenge already completed" {
		t.Fatalf("unexpected replay message: %q", replay.Message)
	}

	// Exactly one terminal resolution event despite the replay.
	if len(events.challengeResolved) != 1 || !events.challengeResolved[0].Exhausted {
		t.Fatalf("expected one exhausted resolution event, got %+v", events.challengeResolved)
	}
}

func TestChallengeIdempotentReplayAfterSuccess(t *testing.T) {
	svc, _ := newTestChallengeService(nil, nil)

	challenge, err := svc.Create(context.Background(), domain.ChallengeBiometric, "u", "s")
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}

	first, err := svc.ValidateResponse(context.Background(), challenge.ID, domain.ChallengeAnswer{BiometricConfidence: floatPtr(0.92)})
	if err != nil {
		t.Fatalf("first response returned error: %v", err)
	}
	if !first.Success {
		t.Fatalf("expected success, got %+v", first)
	}

	second, err := svc.ValidateResponse(context.Background(), challenge.ID, domain.ChallengeAnswer{BiometricConfidence: floatPtr(0.1)})
	if err != nil {
		t.Fatalf("second response returned error: %v", err)
	}
	if !second.Success || second.Message != "challenge already completed" {
		t.Fatalf("expected stored success on replay, got %+v", second)
	}
}

func TestBiometricThreshold(t *testing.T) {
	svc, _ := newTestChallengeService(nil, nil)

	challenge, err := svc.Create(context.Background(), domain.ChallengeBiometric, "u", "s")
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}

	outcome, err := svc.ValidateResponse(context.Background(), challenge.ID, domain.ChallengeAnswer{BiometricConfidence: floatPtr(0.79)})
	if err != nil {
		t.Fatalf("ValidateResponse returned error: %v", err)
	}
	if outcome.Success {
		t.Fatal("confidence below the acceptance threshold must fail")
	}

	outcome, err = svc.ValidateResponse(context.Background(), challenge.ID, domain.ChallengeAnswer{BiometricConfidence: floatPtr(0.8)})
	if err != nil {
		t.Fatalf("ValidateResponse returned error: %v", err)
	}
	if !outcome.Success {
		t.Fatal("confidence at the acceptance threshold must pass")
	}
}

func TestOutOfBandCodeRoundTrip(t *testing.T) {
	events := &recordingPublisher{}
	svc, _ := newTestChallengeService(nil, events)

	challenge, err := svc.Create(context.Background(), domain.ChallengeOutOfBand, "u", "s")
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	if challenge.SecretHash == "" {
		t.Fatal("expected a stored code digest")
	}

	if len(events.challengeCreated) != 1 || events.challengeCreated[0].DeliveryCode == nil {
		t.Fatalf("expected delivery code in created event, got %+v", events.challengeCreated)
	}
	code := *events.challengeCreated[0].DeliveryCode
	if len(code) != 6 {
		t.Fatalf("expected 6-digit code, got %q", code)
	}
	if security.HashToken(code) != challenge.SecretHash {
		t.Fatal("stored digest does not match delivered code")
	}

	wrong, err := svc.ValidateResponse(context.Background(), challenge.ID, domain.ChallengeAnswer{Code: strPtr("999999")})
	if err != nil {
		t.Fatalf("ValidateResponse returned error: %v", err)
	}
	if wrong.Success {
		t.Fatal("wrong code must fail")
	}

	right, err := svc.ValidateResponse(context.Background(), challenge.ID, domain.ChallengeAnswer{Code: &code})
	if err != nil {
		t.Fatalf("ValidateResponse returned error: %v", err)
	}
	if !right.Success {
		t.Fatalf("expected success with delivered code, got %+v", right)
	}
}

func TestChallengeExpiryReclaimedOnAccess(t *testing.T) {
	svc, current := newTestChallengeService(nil, nil)

	challenge, err := svc.Create(context.Background(), domain.ChallengeBiometric, "u", "s")
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}

	*current = current.Add(5*time.Minute + time.Second)

	outcome, err := svc.ValidateResponse(context.Background(), challenge.ID, domain.ChallengeAnswer{BiometricConfidence: floatPtr(0.95)})
	if err != nil {
		t.Fatalf("ValidateResponse returned error: %v", err)
	}
	if outcome.Success || outcome.Message != "challenge expired" {
		t.Fatalf("expected expiry, got %+v", outcome)
	}

	// Reclaimed: the id is gone.
	if _, err := svc.ValidateResponse(context.Background(), challenge.ID, domain.ChallengeAnswer{}); !errors.Is(err, ErrChallengeNotFound) {
		t.Fatalf("expected ErrChallengeNotFound, got %v", err)
	}
}

func TestChallengeAnswerTypeMismatch(t *testing.T) {
	svc, _ := newTestChallengeService(nil, nil)

	challenge, err := svc.Create(context.Background(), domain.ChallengeBiometric, "u", "s")
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}

	if _, err := svc.ValidateResponse(context.Background(), challenge.ID, domain.ChallengeAnswer{PIN: strPtr("1234")}); !errors.Is(err, ErrMissingAnswer) {
		t.Fatalf("expected ErrMissingAnswer, got %v", err)
	}
}

func TestChallengeCleanupExpired(t *testing.T) {
	svc, current := newTestChallengeService(nil, nil)

	if _, err := svc.Create(context.Background(), domain.ChallengeBiometric, "u", "s1"); err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	if _, err := svc.Create(context.Background(), domain.ChallengeOutOfBand, "u", "s2"); err != nil {
		t.Fatalf("Create returned error: %v", err)
	}

	*current = current.Add(6 * time.Minute)
	if removed := svc.CleanupExpired(context.Background()); removed != 2 {
		t.Fatalf("expected 2 reclaimed, got %d", removed)
	}
	if svc.Count() != 0 {
		t.Fatalf("expected empty registry, got %d", svc.Count())
	}
}

func TestPendingForSession(t *testing.T) {
	svc, _ := newTestChallengeService(nil, nil)

	challenge, err := svc.Create(context.Background(), domain.ChallengeBiometric, "u", "s1")
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}

	pending, ok := svc.PendingForSession("s1")
	if !ok || pending.ID != challenge.ID {
		t.Fatalf("expected pending challenge for s1, got %v %+v", ok, pending)
	}
	if _, ok := svc.PendingForSession("s2"); ok {
		t.Fatal("did not expect a pending challenge for s2")
	}

	if _, err := svc.ValidateResponse(context.Background(), challenge.ID, domain.ChallengeAnswer{BiometricConfidence: floatPtr(0.9)}); err != nil {
		t.Fatalf("ValidateResponse returned error: %v", err)
	}
	if _, ok := svc.PendingForSession("s1"); ok {
		t.Fatal("completed challenge must not be pending")
	}
}
