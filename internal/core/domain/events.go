package domain

import "time"

// DecisionEvent is the audit record emitted for every access decision.
type DecisionEvent struct {
	EventID         string
	PrincipalID     string
	ResourceType    string
	ResourceID      string
	Operation       string
	Granted         bool
	Reason          string
	MatchedRoleID   string
	FailedCondition string
	OriginIP        string
	DecidedAt       time.Time
	Metadata        map[string]any
}

// PolicyMutationEvent is emitted whenever the policy graph changes
// (hierarchy edges, bindings, overrides, rules).
type PolicyMutationEvent struct {
	EventID    string
	Operation  string
	ActorID    string
	TargetType string
	TargetID   string
	Result     string
	OccurredAt time.Time
	Metadata   map[string]any
}

// DelegationChangedEvent is emitted when a delegation is created, revoked,
// or swept as expired.
type DelegationChangedEvent struct {
	EventID      string
	DelegationID string
	DelegatorID  string
	DelegateeID  string
	RoleID       string
	Action       string
	ExpiresAt    time.Time
	OccurredAt   time.Time
}

// RoleAutoAssignedEvent is emitted when an assignment rule grants a role.
type RoleAutoAssignedEvent struct {
	EventID     string
	PrincipalID string
	RoleID      string
	RuleID      string
	TriggerType string
	OccurredAt  time.Time
}
