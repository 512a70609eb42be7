package domain

import "time"

// Role defines a named bundle of directly granted permissions.
type Role struct {
	ID          string
	Name        string
	Description *string
}

// Permission defines one recognized capability as a (resource type, operation)
// pair, optionally scoped to a single resource instance.
type Permission struct {
	ID           string
	ResourceType string
	Operation    string
	ResourceID   *string
	Description  *string
}

// Name returns the canonical "resource_type:operation" form of the permission.
func (p Permission) Name() string {
	return p.ResourceType + ":" + p.Operation
}

// Matches reports whether the permission covers the requested resource type,
// operation and resource instance. A permission without a resource scope
// covers every instance of its resource type.
func (p Permission) Matches(resourceType, resourceID, operation string) bool {
	if p.ResourceType != resourceType || p.Operation != operation {
		return false
	}
	if p.ResourceID != nil && *p.ResourceID != resourceID {
		return false
	}
	return true
}

// RolePermission links a role with a directly granted permission.
type RolePermission struct {
	RoleID       string
	PermissionID string
}

// Principal is an authenticated actor whose access is being decided. The
// identity layer owns authentication; the engine only consumes the resolved
// principal record.
type Principal struct {
	ID         string
	CreatedAt  time.Time
	Attributes map[string]string
}

// RoleGrantSource describes how a principal came to hold a role.
type RoleGrantSource string

const (
	GrantSourceDirect     RoleGrantSource = "direct"
	GrantSourceDelegation RoleGrantSource = "delegation"
	GrantSourceRule       RoleGrantSource = "rule"
)

// PrincipalRole assigns a role to a principal with provenance, so that
// delegated grants can be expiry-checked lazily and rule grants stay
// idempotent.
type PrincipalRole struct {
	PrincipalID  string
	RoleID       string
	AssignedAt   time.Time
	Source       RoleGrantSource
	DelegationID *string
	RuleID       *string
}

// InheritanceType controls how much of a parent role's resolved permission
// set flows down a hierarchy edge.
type InheritanceType string

const (
	InheritanceFull    InheritanceType = "full"
	InheritancePartial InheritanceType = "partial"
	InheritanceNone    InheritanceType = "none"
)

// Valid reports whether the inheritance type is one of the recognized values.
func (t InheritanceType) Valid() bool {
	switch t {
	case InheritanceFull, InheritancePartial, InheritanceNone:
		return true
	}
	return false
}

// RoleHierarchyEdge is a directed parent -> child relation. The child
// inherits from the parent according to InheritanceType. The edge set must
// remain acyclic; cycles are a configuration error rejected at creation time.
// Partial inheritance uses InheritedPermissionIDs as an inclusion list.
type RoleHierarchyEdge struct {
	ID                     string
	ParentRoleID           string
	ChildRoleID            string
	InheritanceType        InheritanceType
	InheritedPermissionIDs []string
	Active                 bool
	CreatedAt              time.Time
}

// EffectivePermission is a permission a role confers after hierarchy
// resolution. InheritedFrom names the ancestor role the permission came
// through; it is empty for directly granted permissions.
type EffectivePermission struct {
	Permission    Permission `json:"permission"`
	InheritedFrom string     `json:"inherited_from,omitempty"`
}

// TimeCondition restricts a grant to a time window. All configured
// sub-constraints apply conjunctively; an absent sub-constraint always passes.
type TimeCondition struct {
	StartTime *time.Time `json:"start_time,omitempty"`
	EndTime   *time.Time `json:"end_time,omitempty"`
	// DaysOfWeek entries are numbered 0=Monday through 6=Sunday.
	DaysOfWeek []int `json:"days_of_week,omitempty"`
	HoursOfDay []int `json:"hours_of_day,omitempty"`
}

// IPCondition restricts a grant by origin address. Block lists take
// precedence over allow lists; an empty allow list means unrestricted.
type IPCondition struct {
	AllowedIPs   []string `json:"allowed_ips,omitempty"`
	BlockedIPs   []string `json:"blocked_ips,omitempty"`
	AllowedCIDRs []string `json:"allowed_cidrs,omitempty"`
	BlockedCIDRs []string `json:"blocked_cidrs,omitempty"`
}

// DeviceCondition restricts a grant by device descriptor. Type and user
// agent matching is case-insensitive; RequireVerification demands that the
// identity layer has already verified the device.
type DeviceCondition struct {
	AllowedDeviceTypes  []string `json:"allowed_device_types,omitempty"`
	AllowedUserAgents   []string `json:"allowed_user_agents,omitempty"`
	BlockedUserAgents   []string `json:"blocked_user_agents,omitempty"`
	RequireVerification bool     `json:"require_verification,omitempty"`
}

// BindingConditions groups the three condition categories. Absent categories
// are vacuously satisfied; present categories must all pass.
type BindingConditions struct {
	Time   *TimeCondition   `json:"time,omitempty"`
	IP     *IPCondition     `json:"ip,omitempty"`
	Device *DeviceCondition `json:"device,omitempty"`
}

// Empty reports whether no condition category is configured.
func (c BindingConditions) Empty() bool {
	return c.Time == nil && c.IP == nil && c.Device == nil
}

// ConditionalPermissionBinding attaches runtime conditions to a role's grant
// of a permission.
type ConditionalPermissionBinding struct {
	ID           string
	RoleID       string
	PermissionID string
	Conditions   BindingConditions
	Active       bool
	CreatedAt    time.Time
}

// OverrideType distinguishes explicit allows from explicit denies.
type OverrideType string

const (
	OverrideAllow OverrideType = "allow"
	OverrideDeny  OverrideType = "deny"
)

// Valid reports whether the override type is recognized.
func (t OverrideType) Valid() bool {
	return t == OverrideAllow || t == OverrideDeny
}

// PermissionOverride supersedes inherited or direct grants for one
// (role, permission) pair. Deny always beats any grant.
type PermissionOverride struct {
	ID           string
	RoleID       string
	PermissionID string
	OverrideType OverrideType
	Conditions   *BindingConditions
	Active       bool
	CreatedAt    time.Time
}

// DelegationState captures the lifecycle of a delegation. There is no
// transition out of expired or revoked.
type DelegationState string

const (
	DelegationActive  DelegationState = "active"
	DelegationExpired DelegationState = "expired"
	DelegationRevoked DelegationState = "revoked"
)

// RoleDelegation is a time-bounded, revocable grant of a role from one
// principal to another.
type RoleDelegation struct {
	ID          string
	DelegatorID string
	DelegateeID string
	RoleID      string
	DelegatedAt time.Time
	ExpiresAt   time.Time
	Active      bool
	RevokedAt   *time.Time
}

// State derives the delegation lifecycle state at the given instant. Expiry
// is evaluated lazily: a delegation past ExpiresAt is expired even if no
// sweep has marked it yet.
func (d RoleDelegation) State(now time.Time) DelegationState {
	if d.RevokedAt != nil {
		return DelegationRevoked
	}
	if !d.Active || now.After(d.ExpiresAt) {
		return DelegationExpired
	}
	return DelegationActive
}

// RuleConditions are the predicates an assignment rule evaluates against a
// principal and the triggering event's attributes. All configured predicates
// must hold.
type RuleConditions struct {
	CreatedAfter  *time.Time        `json:"created_after,omitempty"`
	CreatedBefore *time.Time        `json:"created_before,omitempty"`
	HasRole       string            `json:"has_role,omitempty"`
	Attributes    map[string]string `json:"attributes,omitempty"`
}

// RoleAssignmentRule auto-assigns a role when an event of TriggerType occurs
// and the rule's conditions hold for the principal.
type RoleAssignmentRule struct {
	ID           string
	Name         string
	Description  *string
	TriggerType  string
	TargetRoleID string
	Conditions   RuleConditions
	Active       bool
	CreatedAt    time.Time
}

// AccessContext carries the request-scoped runtime facts a decision is
// evaluated against.
type AccessContext struct {
	Now            time.Time
	OriginIP       string
	DeviceType     string
	UserAgent      string
	DeviceVerified bool
}

// PermissionResult is the structured outcome of every decision. The engine
// never persists it; one is produced for every call, including failures.
type PermissionResult struct {
	Granted         bool
	Reason          string
	ConditionsMet   bool
	MatchedRoleID   string
	FailedCondition string
}
