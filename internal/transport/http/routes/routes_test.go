package routes_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/arklim/continuous-auth/internal/infra/config"
	"github.com/arklim/continuous-auth/internal/infra/scoring"
	httproutes "github.com/arklim/continuous-auth/internal/transport/http/routes"
	"github.com/arklim/continuous-auth/internal/usecase"
)

func newTestDependencies(t *testing.T) httproutes.Dependencies {
	t.Helper()

	logger := zap.NewNop()

	thresholds, err := usecase.NewThresholdStore(usecase.BaseThresholds{High: 0.9, Medium: 0.7, Low: 0.5}, 0.1)
	if err != nil {
		t.Fatalf("failed to build threshold store: %v", err)
	}

	features := scoring.NewFeatureStore(scoring.FeatureStoreConfig{HistoryCap: 100, MinSamples: 5})
	scorer := scoring.NewBaselineScorer()

	sessions := usecase.NewSessionService(usecase.SessionConfig{
		AbsoluteTimeout:      30 * time.Minute,
		IdleTimeout:          15 * time.Minute,
		MaxConcurrentPerUser: 3,
	}, nil, logger)
	challenges := usecase.NewChallengeService(usecase.ChallengeConfig{}, nil, nil, logger)

	engine := usecase.NewAuthEngine(usecase.EngineDeps{
		Sessions:   sessions,
		Challenges: challenges,
		Thresholds: thresholds,
		Risk:       usecase.NewRiskAssessor(thresholds, logger),
		Features:   features,
		Scorer:     scorer,
		Logger:     logger,
	})

	return httproutes.Dependencies{
		Config:         &config.AppConfig{App: config.AppSettings{Env: "test"}},
		Logger:         logger,
		Engine:         engine,
		Features:       features,
		BaselineScorer: scorer,
	}
}

func TestHealthEndpoint(t *testing.T) {
	gin.SetMode(gin.TestMode)

	r := httproutes.Register(newTestDependencies(t))
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/healthz", nil)

	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
}

func TestSessionLifecycleOverHTTP(t *testing.T) {
	gin.SetMode(gin.TestMode)

	r := httproutes.Register(newTestDependencies(t))

	body := bytes.NewBufferString(`{"user_id":"user-1"}`)
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodPost, "/api/v1/sessions", body)
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", w.Code, w.Body.String())
	}

	var created struct {
		ID     string `json:"id"`
		UserID string `json:"user_id"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &created); err != nil {
		t.Fatalf("failed to decode create response: %v", err)
	}
	if created.UserID != "user-1" || created.ID == "" {
		t.Fatalf("unexpected session payload: %+v", created)
	}

	w = httptest.NewRecorder()
	req, _ = http.NewRequest(http.MethodGet, "/api/v1/sessions/"+created.ID, nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}

	w = httptest.NewRecorder()
	req, _ = http.NewRequest(http.MethodDelete, "/api/v1/sessions/"+created.ID, nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}

	w = httptest.NewRecorder()
	req, _ = http.NewRequest(http.MethodGet, "/api/v1/sessions/"+created.ID, nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("expected status 404 after logout, got %d", w.Code)
	}
}

func TestAuthenticateMonitorsWhileBaselineCollects(t *testing.T) {
	gin.SetMode(gin.TestMode)

	r := httproutes.Register(newTestDependencies(t))

	body := bytes.NewBufferString(`{"user_id":"user-2"}`)
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodPost, "/api/v1/sessions", body)
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d", w.Code)
	}

	var created struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &created); err != nil {
		t.Fatalf("failed to decode create response: %v", err)
	}

	sample := fmt.Sprintf(`{"session_id":%q,"features":{"typing_speed":60}}`, created.ID)
	w = httptest.NewRecorder()
	req, _ = http.NewRequest(http.MethodPost, "/api/v1/behavior/samples", bytes.NewBufferString(sample))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	if w.Code != http.StatusAccepted {
		t.Fatalf("expected status 202, got %d: %s", w.Code, w.Body.String())
	}

	auth := fmt.Sprintf(`{"session_id":%q}`, created.ID)
	w = httptest.NewRecorder()
	req, _ = http.NewRequest(http.MethodPost, "/api/v1/auth/authenticate", bytes.NewBufferString(auth))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	var result struct {
		Decision string `json:"decision"`
		Success  bool   `json:"success"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &result); err != nil {
		t.Fatalf("failed to decode authenticate response: %v", err)
	}
	if result.Decision != "monitor" {
		t.Fatalf("expected monitor decision during baseline collection, got %q", result.Decision)
	}
	if !result.Success {
		t.Fatalf("expected a passing evaluation, got %+v", result)
	}
}

func TestAuthenticateUnknownSessionReturnsLogout(t *testing.T) {
	gin.SetMode(gin.TestMode)

	r := httproutes.Register(newTestDependencies(t))

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodPost, "/api/v1/auth/authenticate", bytes.NewBufferString(`{"session_id":"missing"}`))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	// An unknown session is a negative evaluation, not an error: the caller
	// receives a logout decision over a successful response.
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	var result struct {
		Decision string `json:"decision"`
		Success  bool   `json:"success"`
		Message  string `json:"message"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &result); err != nil {
		t.Fatalf("failed to decode authenticate response: %v", err)
	}
	if result.Decision != "logout" || result.Success {
		t.Fatalf("expected logout decision, got %+v", result)
	}
	if result.Message != "session validation failed" {
		t.Fatalf("unexpected message %q", result.Message)
	}
}

func TestChallengeResponseUnknownChallenge(t *testing.T) {
	gin.SetMode(gin.TestMode)

	r := httproutes.Register(newTestDependencies(t))

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodPost, "/api/v1/challenges/missing/response", bytes.NewBufferString(`{"pin":"0000"}`))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	var outcome struct {
		Success   bool   `json:"success"`
		Completed bool   `json:"completed"`
		Message   string `json:"message"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &outcome); err != nil {
		t.Fatalf("failed to decode challenge response: %v", err)
	}
	if outcome.Success || !outcome.Completed || outcome.Message != "challenge not found" {
		t.Fatalf("expected terminal not-found outcome, got %+v", outcome)
	}
}
