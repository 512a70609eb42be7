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

	"github.com/arklim/social-platform-policy/internal/core/domain"
	"github.com/arklim/social-platform-policy/internal/core/port"
)

// Event type constants for audit topics
const (
	EventTypeDecisionEvaluated = "policy.decision.evaluated"
	EventTypeMutationApplied   = "policy.mutation.applied"
	EventTypeDelegationChanged = "policy.delegation.changed"
	EventTypeRoleAutoAssigned  = "policy.role.auto_assigned"
)

// eventEnvelope wraps all audit events with common metadata
type eventEnvelope struct {
	EventID   string         `json:"event_id"`
	EventType string         `json:"event_type"`
	Timestamp time.Time      `json:"timestamp"`
	Version   string         `json:"version"`
	Payload   any            `json:"payload"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// AuditPublisher publishes policy audit events to Kafka topics
type AuditPublisher struct {
	producer    *Producer
	logger      *zap.Logger
	serviceName string
	environment string
}

var _ port.AuditPublisher = (*AuditPublisher)(nil)

// NewAuditPublisher creates a Kafka-backed audit event publisher
func NewAuditPublisher(producer *Producer, logger *zap.Logger, serviceName, environment string) *AuditPublisher {
	return &AuditPublisher{
		producer:    producer,
		logger:      logger,
		serviceName: serviceName,
		environment: environment,
	}
}

// PublishDecision emits the audit record for a single access decision.
func (p *AuditPublisher) PublishDecision(ctx context.Context, event domain.DecisionEvent) error {
	payload := map[string]any{
		"principal_id":  event.PrincipalID,
		"resource_type": event.ResourceType,
		"resource_id":   event.ResourceID,
		"operation":     event.Operation,
		"granted":       event.Granted,
		"reason":        event.Reason,
		"decided_at":    event.DecidedAt,
	}
	if event.MatchedRoleID != "" {
		payload["matched_role_id"] = event.MatchedRoleID
	}
	if event.FailedCondition != "" {
		payload["failed_condition"] = event.FailedCondition
	}
	if event.OriginIP != "" {
		payload["origin_ip"] = event.OriginIP
	}
	for k, v := range event.Metadata {
		payload[k] = v
	}

	return p.publish(ctx, EventTypeDecisionEvaluated, event.EventID, event.PrincipalID, payload)
}

// PublishPolicyMutation emits an audit record for a policy graph change.
func (p *AuditPublisher) PublishPolicyMutation(ctx context.Context, event domain.PolicyMutationEvent) error {
	payload := map[string]any{
		"operation":   event.Operation,
		"actor_id":    event.ActorID,
		"target_type": event.TargetType,
		"target_id":   event.TargetID,
		"result":      event.Result,
		"occurred_at": event.OccurredAt,
	}
	for k, v := range event.Metadata {
		payload[k] = v
	}

	return p.publish(ctx, EventTypeMutationApplied, event.EventID, event.TargetID, payload)
}

// PublishDelegationChanged emits an audit record for delegation lifecycle transitions.
func (p *AuditPublisher) PublishDelegationChanged(ctx context.Context, event domain.DelegationChangedEvent) error {
	payload := map[string]any{
		"delegation_id": event.DelegationID,
		"delegator_id":  event.DelegatorID,
		"delegatee_id":  event.DelegateeID,
		"role_id":       event.RoleID,
		"action":        event.Action,
		"expires_at":    event.ExpiresAt,
		"occurred_at":   event.OccurredAt,
	}

	return p.publish(ctx, EventTypeDelegationChanged, event.EventID, event.DelegationID, payload)
}

// PublishRoleAutoAssigned emits an audit record when an assignment rule grants a role.
func (p *AuditPublisher) PublishRoleAutoAssigned(ctx context.Context, event domain.RoleAutoAssignedEvent) error {
	payload := map[string]any{
		"principal_id": event.PrincipalID,
		"role_id":      event.RoleID,
		"rule_id":      event.RuleID,
		"trigger_type": event.TriggerType,
		"occurred_at":  event.OccurredAt,
	}

	return p.publish(ctx, EventTypeRoleAutoAssigned, event.EventID, event.PrincipalID, payload)
}

// publish wraps the payload in an envelope and sends it to the async producer
func (p *AuditPublisher) publish(ctx context.Context, eventType, eventID, key string, payload any) error {
	if eventID == "" {
		eventID = uuid.NewString()
	}

	envelope := eventEnvelope{
		EventID:   eventID,
		EventType: eventType,
		Timestamp: time.Now().UTC(),
		Version:   "1.0",
		Payload:   payload,
		Metadata: map[string]any{
			"service":     p.serviceName,
			"environment": p.environment,
		},
	}

	// Propagate trace context for downstream correlation
	if span := trace.SpanFromContext(ctx); span.SpanContext().IsValid() {
		envelope.Metadata["trace_id"] = span.SpanContext().TraceID().String()
	}

	data, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("marshal event envelope: %w", err)
	}

	message := &sarama.ProducerMessage{
		Topic: p.producer.TopicName(eventType),
		Key:   sarama.StringEncoder(key),
		Value: sarama.ByteEncoder(data),
		Headers: []sarama.RecordHeader{
			{Key: []byte("event_type"), Value: []byte(eventType)},
			{Key: []byte("event_id"), Value: []byte(eventID)},
		},
	}

	select {
	case p.producer.Producer().Input() <- message:
		p.logger.Debug("audit event queued",
			zap.String("event_type", eventType),
			zap.String("event_id", eventID),
		)
		return nil
	case <-ctx.Done():
		return fmt.Errorf("publish %s: %w", eventType, ctx.Err())
	}
}
