package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/arklim/continuous-auth/internal/core/domain"
	"github.com/arklim/continuous-auth/internal/core/port"
	"github.com/arklim/continuous-auth/internal/infra/config"
)

const schemaVersion = "1.0"

// EventPublisher implements port.EventPublisher using Kafka.
type EventPublisher struct {
	producer *Producer
	logger   *zap.Logger
	appCfg   config.AppSettings
}

// NewEventPublisher constructs a Kafka-backed event publisher.
func NewEventPublisher(producer *Producer, appCfg config.AppSettings, logger *zap.Logger) *EventPublisher {
	return &EventPublisher{producer: producer, appCfg: appCfg, logger: logger}
}

type envelopeMetadata map[string]string

type eventEnvelope struct {
	EventID   string           `json:"event_id"`
	EventType string           `json:"event_type"`
	UserID    string           `json:"user_id,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
	Version   string           `json:"version"`
	Payload   any              `json:"payload"`
	Metadata  envelopeMetadata `json:"metadata,omitempty"`
}

func (p *EventPublisher) publish(ctx context.Context, eventID, eventType, userID string, ts time.Time, payload any) error {
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	id := eventID
	if id == "" {
		id = uuid.NewString()
	}

	metadata := envelopeMetadata{
		"service":     p.appCfg.Name,
		"environment": p.appCfg.Env,
	}

	if span := trace.SpanFromContext(ctx); span != nil {
		if sc := span.SpanContext(); sc.IsValid() {
			metadata["trace_id"] = sc.TraceID().String()
		}
	}

	envelope := eventEnvelope{
		EventID:   id,
		EventType: eventType,
		UserID:    userID,
		Timestamp: ts.UTC(),
		Version:   schemaVersion,
		Payload:   payload,
		Metadata:  metadata,
	}

	bytes, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("marshal event envelope: %w", err)
	}

	message := &sarama.ProducerMessage{
		Topic: p.producer.TopicName(eventType),
		Value: sarama.ByteEncoder(bytes),
	}

	select {
	case p.producer.Producer().Input() <- message:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// PublishSessionCreated publishes auth.session.created events.
func (p *EventPublisher) PublishSessionCreated(ctx context.Context, event domain.SessionCreatedEvent) error {
	payload := struct {
		SessionID         string    `json:"session_id"`
		UserID            string    `json:"user_id"`
		DeviceFingerprint *string   `json:"device_fingerprint,omitempty"`
		IPAddress         *string   `json:"ip_address,omitempty"`
		CreatedAt         time.Time `json:"created_at"`
		ExpiresAt         time.Time `json:"expires_at"`
	}{
		SessionID:         event.SessionID,
		UserID:            event.UserID,
		DeviceFingerprint: event.DeviceFingerprint,
		IPAddress:         event.IPAddress,
		CreatedAt:         event.CreatedAt.UTC(),
		ExpiresAt:         event.ExpiresAt.UTC(),
	}

	return p.publish(ctx, event.EventID, "auth.session.created", event.UserID, event.CreatedAt, payload)
}

// PublishSessionRevoked publishes auth.session.revoked events.
func (p *EventPublisher) PublishSessionRevoked(ctx context.Context, event domain.SessionRevokedEvent) error {
	payload := struct {
		SessionID string    `json:"session_id"`
		UserID    string    `json:"user_id"`
		Reason    string    `json:"reason"`
		RevokedAt time.Time `json:"revoked_at"`
	}{
		SessionID: event.SessionID,
		UserID:    event.UserID,
		Reason:    event.Reason,
		RevokedAt: event.RevokedAt.UTC(),
	}

	return p.publish(ctx, event.EventID, "auth.session.revoked", event.UserID, event.RevokedAt, payload)
}

// PublishChallengeCreated publishes auth.challenge.created events. The
// delivery code for out-of-band challenges rides in the payload for the
// delivery channel consumer; it is never persisted by this service.
func (p *EventPublisher) PublishChallengeCreated(ctx context.Context, event domain.ChallengeCreatedEvent) error {
	payload := struct {
		ChallengeID  string    `json:"challenge_id"`
		Type         string    `json:"type"`
		UserID       string    `json:"user_id"`
		SessionID    string    `json:"session_id"`
		CreatedAt    time.Time `json:"created_at"`
		ExpiresAt    time.Time `json:"expires_at"`
		DeliveryCode *string   `json:"delivery_code,omitempty"`
	}{
		ChallengeID:  event.ChallengeID,
		Type:         string(event.Type),
		UserID:       event.UserID,
		SessionID:    event.SessionID,
		CreatedAt:    event.CreatedAt.UTC(),
		ExpiresAt:    event.ExpiresAt.UTC(),
		DeliveryCode: event.DeliveryCode,
	}

	return p.publish(ctx, event.EventID, "auth.challenge.created", event.UserID, event.CreatedAt, payload)
}

// PublishChallengeResolved publishes auth.challenge.resolved events.
func (p *EventPublisher) PublishChallengeResolved(ctx context.Context, event domain.ChallengeResolvedEvent) error {
	payload := struct {
		ChallengeID string    `json:"challenge_id"`
		Type        string    `json:"type"`
		UserID      string    `json:"user_id"`
		SessionID   string    `json:"session_id"`
		Successful  bool      `json:"successful"`
		Exhausted   bool      `json:"exhausted"`
		ResolvedAt  time.Time `json:"resolved_at"`
	}{
		ChallengeID: event.ChallengeID,
		Type:        string(event.Type),
		UserID:      event.UserID,
		SessionID:   event.SessionID,
		Successful:  event.Successful,
		Exhausted:   event.Exhausted,
		ResolvedAt:  event.ResolvedAt.UTC(),
	}

	return p.publish(ctx, event.EventID, "auth.challenge.resolved", event.UserID, event.ResolvedAt, payload)
}

// PublishRiskAlert publishes auth.risk.alert events.
func (p *EventPublisher) PublishRiskAlert(ctx context.Context, event domain.RiskAlertEvent) error {
	factors := make([]string, 0, len(event.RiskFactors))
	for _, f := range event.RiskFactors {
		factors = append(factors, string(f))
	}
	actions := make([]string, 0, len(event.RecommendedActions))
	for _, a := range event.RecommendedActions {
		actions = append(actions, string(a))
	}

	payload := struct {
		AlertID            string    `json:"alert_id"`
		UserID             string    `json:"user_id"`
		SessionID          string    `json:"session_id"`
		Severity           string    `json:"severity"`
		RiskFactors        []string  `json:"risk_factors"`
		RecommendedActions []string  `json:"recommended_actions"`
		CombinedConfidence float64   `json:"combined_confidence"`
		AnomalyScore       float64   `json:"anomaly_score"`
		Context            string    `json:"context"`
		RaisedAt           time.Time `json:"raised_at"`
	}{
		AlertID:            event.AlertID,
		UserID:             event.UserID,
		SessionID:          event.SessionID,
		Severity:           string(event.Severity),
		RiskFactors:        factors,
		RecommendedActions: actions,
		CombinedConfidence: event.CombinedConfidence,
		AnomalyScore:       event.AnomalyScore,
		Context:            event.Context,
		RaisedAt:           event.RaisedAt.UTC(),
	}

	return p.publish(ctx, event.EventID, "auth.risk.alert", event.UserID, event.RaisedAt, payload)
}

// PublishThresholdAdjusted publishes auth.threshold.adjusted events.
func (p *EventPublisher) PublishThresholdAdjusted(ctx context.Context, event domain.ThresholdAdjustedEvent) error {
	payload := struct {
		Context            string    `json:"context"`
		Feedback           string    `json:"feedback"`
		ObservedConfidence float64   `json:"observed_confidence"`
		Adjustment         float64   `json:"adjustment"`
		AdjustedAt         time.Time `json:"adjusted_at"`
	}{
		Context:            event.Context,
		Feedback:           event.Feedback,
		ObservedConfidence: event.ObservedConfidence,
		Adjustment:         event.Adjustment,
		AdjustedAt:         event.AdjustedAt.UTC(),
	}

	return p.publish(ctx, event.EventID, "auth.threshold.adjusted", "", event.AdjustedAt, payload)
}

var _ port.EventPublisher = (*EventPublisher)(nil)
