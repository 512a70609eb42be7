package handlers

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/arklim/social-platform-policy/internal/core/domain"
)

// ErrorResponse represents a generic error payload with trace ID for debugging.
type ErrorResponse struct {
	Error   string `json:"error"`
	TraceID string `json:"trace_id,omitempty"`
}

// NewErrorResponse creates an error response with trace ID from context
func NewErrorResponse(c *gin.Context, errorMsg string) ErrorResponse {
	traceID, _ := c.Get("trace_id")
	traceIDStr, _ := traceID.(string)

	return ErrorResponse{
		Error:   errorMsg,
		TraceID: traceIDStr,
	}
}

// MessageResponse represents a simple message payload.
type MessageResponse struct {
	Message string `json:"message"`
}

// AccessContextPayload carries the runtime facts a decision is evaluated
// against. Timestamp defaults to the server clock when omitted.
type AccessContextPayload struct {
	Timestamp      *time.Time `json:"timestamp,omitempty"`
	OriginIP       string     `json:"origin_ip,omitempty"`
	DeviceType     string     `json:"device_type,omitempty"`
	UserAgent      string     `json:"user_agent,omitempty"`
	DeviceVerified bool       `json:"device_verified,omitempty"`
}

// DecisionRequest defines the payload for the access decision endpoint.
type DecisionRequest struct {
	PrincipalID  string               `json:"principal_id"`
	ResourceType string               `json:"resource_type" binding:"required"`
	ResourceID   string               `json:"resource_id"`
	Operation    string               `json:"operation" binding:"required"`
	Context      AccessContextPayload `json:"context"`
}

// DecisionResponse describes the structured outcome of a decision.
type DecisionResponse struct {
	Granted         bool   `json:"granted"`
	Reason          string `json:"reason"`
	ConditionsMet   bool   `json:"conditions_met"`
	MatchedRoleID   string `json:"matched_role_id,omitempty"`
	FailedCondition string `json:"failed_condition,omitempty"`
}

// RoleCreateRequest defines the payload for creating a role.
type RoleCreateRequest struct {
	Name        string  `json:"name" binding:"required"`
	Description *string `json:"description,omitempty"`
}

// RolePayload summarizes a role entity.
type RolePayload struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Description *string `json:"description,omitempty"`
}

// RoleListResponse wraps multiple roles.
type RoleListResponse struct {
	Roles []RolePayload `json:"roles"`
}

// PermissionCreateRequest defines the payload for registering a permission.
type PermissionCreateRequest struct {
	ResourceType string  `json:"resource_type" binding:"required"`
	Operation    string  `json:"operation" binding:"required"`
	ResourceID   *string `json:"resource_id,omitempty"`
	Description  *string `json:"description,omitempty"`
}

// PermissionPayload describes a permission in API responses.
type PermissionPayload struct {
	ID           string  `json:"id"`
	Name         string  `json:"name"`
	ResourceType string  `json:"resource_type"`
	Operation    string  `json:"operation"`
	ResourceID   *string `json:"resource_id,omitempty"`
	Description  *string `json:"description,omitempty"`
}

// PermissionListResponse wraps multiple permissions.
type PermissionListResponse struct {
	Permissions []PermissionPayload `json:"permissions"`
}

// RolePermissionsRequest grants or revokes permissions on a role.
type RolePermissionsRequest struct {
	PermissionIDs []string `json:"permission_ids" binding:"required"`
}

// RolePermissionsResponse reports how many grants were affected.
type RolePermissionsResponse struct {
	RoleID   string `json:"role_id"`
	Affected int    `json:"affected"`
}

// PrincipalRoleRequest assigns a role to a principal.
type PrincipalRoleRequest struct {
	RoleID string `json:"role_id" binding:"required"`
}

// EffectivePermissionPayload is one resolved permission with provenance.
type EffectivePermissionPayload struct {
	Permission    PermissionPayload `json:"permission"`
	InheritedFrom string            `json:"inherited_from,omitempty"`
}

// EffectivePermissionsResponse lists a role's resolved permission set.
type EffectivePermissionsResponse struct {
	RoleID      string                       `json:"role_id"`
	Permissions []EffectivePermissionPayload `json:"permissions"`
}

// HierarchyEdgeCreateRequest defines the payload for adding a hierarchy edge.
type HierarchyEdgeCreateRequest struct {
	ParentRoleID           string   `json:"parent_role_id" binding:"required"`
	ChildRoleID            string   `json:"child_role_id" binding:"required"`
	InheritanceType        string   `json:"inheritance_type" binding:"required"`
	InheritedPermissionIDs []string `json:"inherited_permission_ids,omitempty"`
}

// HierarchyEdgePayload describes a hierarchy edge in API responses.
type HierarchyEdgePayload struct {
	ID                     string    `json:"id"`
	ParentRoleID           string    `json:"parent_role_id"`
	ChildRoleID            string    `json:"child_role_id"`
	InheritanceType        string    `json:"inheritance_type"`
	InheritedPermissionIDs []string  `json:"inherited_permission_ids,omitempty"`
	Active                 bool      `json:"active"`
	CreatedAt              time.Time `json:"created_at"`
}

// BindingCreateRequest attaches runtime conditions to a role's permission grant.
type BindingCreateRequest struct {
	RoleID       string                   `json:"role_id" binding:"required"`
	PermissionID string                   `json:"permission_id" binding:"required"`
	Conditions   domain.BindingConditions `json:"conditions"`
}

// BindingPayload describes a conditional binding in API responses.
type BindingPayload struct {
	ID           string                   `json:"id"`
	RoleID       string                   `json:"role_id"`
	PermissionID string                   `json:"permission_id"`
	Conditions   domain.BindingConditions `json:"conditions"`
	Active       bool                     `json:"active"`
	CreatedAt    time.Time                `json:"created_at"`
}

// OverrideCreateRequest defines the payload for creating an override.
type OverrideCreateRequest struct {
	RoleID       string                    `json:"role_id" binding:"required"`
	PermissionID string                    `json:"permission_id" binding:"required"`
	OverrideType string                    `json:"override_type" binding:"required"`
	Conditions   *domain.BindingConditions `json:"conditions,omitempty"`
}

// OverridePayload describes an override in API responses.
type OverridePayload struct {
	ID           string                    `json:"id"`
	RoleID       string                    `json:"role_id"`
	PermissionID string                    `json:"permission_id"`
	OverrideType string                    `json:"override_type"`
	Conditions   *domain.BindingConditions `json:"conditions,omitempty"`
	Active       bool                      `json:"active"`
	CreatedAt    time.Time                 `json:"created_at"`
}

// DelegationCreateRequest defines the payload for delegating a role.
type DelegationCreateRequest struct {
	DelegateeID string    `json:"delegatee_id" binding:"required"`
	RoleID      string    `json:"role_id" binding:"required"`
	ExpiresAt   time.Time `json:"expires_at" binding:"required"`
}

// DelegationPayload describes a delegation in API responses.
type DelegationPayload struct {
	ID          string    `json:"id"`
	DelegatorID string    `json:"delegator_id"`
	DelegateeID string    `json:"delegatee_id"`
	RoleID      string    `json:"role_id"`
	DelegatedAt time.Time `json:"delegated_at"`
	ExpiresAt   time.Time `json:"expires_at"`
	State       string    `json:"state"`
}

// RuleCreateRequest defines the payload for creating an assignment rule.
type RuleCreateRequest struct {
	Name         string                `json:"name" binding:"required"`
	Description  *string               `json:"description,omitempty"`
	TriggerType  string                `json:"trigger_type" binding:"required"`
	TargetRoleID string                `json:"target_role_id" binding:"required"`
	Conditions   domain.RuleConditions `json:"conditions"`
}

// RulePayload describes an assignment rule in API responses.
type RulePayload struct {
	ID           string                `json:"id"`
	Name         string                `json:"name"`
	Description  *string               `json:"description,omitempty"`
	TriggerType  string                `json:"trigger_type"`
	TargetRoleID string                `json:"target_role_id"`
	Conditions   domain.RuleConditions `json:"conditions"`
	Active       bool                  `json:"active"`
	CreatedAt    time.Time             `json:"created_at"`
}

// EventRequest notifies the engine of a principal lifecycle event.
type EventRequest struct {
	TriggerType string            `json:"trigger_type" binding:"required"`
	PrincipalID string            `json:"principal_id" binding:"required"`
	Attributes  map[string]string `json:"attributes,omitempty"`
}

// EventResponse lists the roles assignment rules granted for the event.
type EventResponse struct {
	AssignedRoleIDs []string `json:"assigned_role_ids"`
}

// HealthResponse describes the service health payload.
type HealthResponse struct {
	Status    string    `json:"status"`
	StartedAt time.Time `json:"started_at"`
	Timestamp time.Time `json:"timestamp"`
}

// ReadyResponse describes readiness probe results with dependency checks.
type ReadyResponse struct {
	Status    string            `json:"status"`
	Checks    map[string]string `json:"checks,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

func newRolePayload(role domain.Role) RolePayload {
	return RolePayload{
		ID:          role.ID,
		Name:        role.Name,
		Description: role.Description,
	}
}

func newPermissionPayload(permission domain.Permission) PermissionPayload {
	return PermissionPayload{
		ID:           permission.ID,
		Name:         permission.Name(),
		ResourceType: permission.ResourceType,
		Operation:    permission.Operation,
		ResourceID:   permission.ResourceID,
		Description:  permission.Description,
	}
}

func newEffectivePermissionPayload(effective domain.EffectivePermission) EffectivePermissionPayload {
	return EffectivePermissionPayload{
		Permission:    newPermissionPayload(effective.Permission),
		InheritedFrom: effective.InheritedFrom,
	}
}

func newEdgePayload(edge domain.RoleHierarchyEdge) HierarchyEdgePayload {
	return HierarchyEdgePayload{
		ID:                     edge.ID,
		ParentRoleID:           edge.ParentRoleID,
		ChildRoleID:            edge.ChildRoleID,
		InheritanceType:        string(edge.InheritanceType),
		InheritedPermissionIDs: edge.InheritedPermissionIDs,
		Active:                 edge.Active,
		CreatedAt:              edge.CreatedAt,
	}
}

func newBindingPayload(binding domain.ConditionalPermissionBinding) BindingPayload {
	return BindingPayload{
		ID:           binding.ID,
		RoleID:       binding.RoleID,
		PermissionID: binding.PermissionID,
		Conditions:   binding.Conditions,
		Active:       binding.Active,
		CreatedAt:    binding.CreatedAt,
	}
}

func newOverridePayload(override domain.PermissionOverride) OverridePayload {
	return OverridePayload{
		ID:           override.ID,
		RoleID:       override.RoleID,
		PermissionID: override.PermissionID,
		OverrideType: string(override.OverrideType),
		Conditions:   override.Conditions,
		Active:       override.Active,
		CreatedAt:    override.CreatedAt,
	}
}

func newDelegationPayload(delegation domain.RoleDelegation, now time.Time) DelegationPayload {
	return DelegationPayload{
		ID:          delegation.ID,
		DelegatorID: delegation.DelegatorID,
		DelegateeID: delegation.DelegateeID,
		RoleID:      delegation.RoleID,
		DelegatedAt: delegation.DelegatedAt,
		ExpiresAt:   delegation.ExpiresAt,
		State:       string(delegation.State(now)),
	}
}

func newRulePayload(rule domain.RoleAssignmentRule) RulePayload {
	return RulePayload{
		ID:           rule.ID,
		Name:         rule.Name,
		Description:  rule.Description,
		TriggerType:  rule.TriggerType,
		TargetRoleID: rule.TargetRoleID,
		Conditions:   rule.Conditions,
		Active:       rule.Active,
		CreatedAt:    rule.CreatedAt,
	}
}
