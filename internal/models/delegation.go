package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/datatypes"
)

// DelegationGrant represents a time-bounded transfer of approval authority
// from a delegator to a delegate.
type DelegationGrant struct {
	ID       uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	TenantID string    `gorm:"type:varchar(255);not null;index" json:"tenantId"`

	// Parties. Names and roles are snapshots taken at grant time; the
	// identity directory is not consulted by this service.
	DelegatorID   uuid.UUID `gorm:"type:uuid;not null;index" json:"delegatorId"`
	DelegatorName string    `gorm:"type:varchar(255)" json:"delegatorName,omitempty"`
	DelegatorRole string    `gorm:"type:varchar(50)" json:"delegatorRole,omitempty"`
	DelegateID    uuid.UUID `gorm:"type:uuid;not null;index" json:"delegateId"`
	DelegateName  string    `gorm:"type:varchar(255)" json:"delegateName,omitempty"`
	DelegateRole  string    `gorm:"type:varchar(50)" json:"delegateRole,omitempty"`

	// Scope. When both WorkflowItemIDs and Categories are empty the grant is
	// unscoped and covers everything the delegator could approve.
	Kind            string         `gorm:"type:varchar(30);not null;default:'full'" json:"kind"`
	WorkflowItemIDs pq.StringArray `gorm:"type:uuid[]" json:"workflowItemIds,omitempty"`
	Categories      pq.StringArray `gorm:"type:text[]" json:"categories,omitempty"`

	Reason string `gorm:"type:text" json:"reason,omitempty"`

	// Validity window. Calendar dates, both inclusive; EndDate is treated as
	// end-of-day for all instant comparisons.
	StartDate time.Time `gorm:"type:date;not null" json:"startDate"`
	EndDate   time.Time `gorm:"type:date;not null" json:"endDate"`

	Limits datatypes.JSON `gorm:"type:jsonb" json:"limits,omitempty"`

	// StatusMarker is bookkeeping for the expiry sweep only. It is never the
	// source of truth for reads; StatusAt is.
	StatusMarker string `gorm:"type:varchar(20);not null;default:'scheduled';index" json:"-"`

	Version int `gorm:"not null;default:1" json:"version"` // Optimistic locking

	RevokedAt    *time.Time `json:"revokedAt,omitempty"`
	RevokedBy    *uuid.UUID `gorm:"type:uuid" json:"revokedBy,omitempty"`
	RevokeReason string     `gorm:"type:text" json:"revokeReason,omitempty"`

	CreatedBy uuid.UUID `gorm:"type:uuid" json:"createdBy"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updatedAt"`
}

// TableName returns the table name for DelegationGrant
func (DelegationGrant) TableName() string {
	return "delegation_grants"
}

// Delegation kind constants
const (
	KindFull              = "full"
	KindSpecificWorkflows = "specific_workflows"
	KindTemporary         = "temporary"
)

// Workflow category constants
const (
	CategoryPurchase = "purchase"
	CategoryTimeOff  = "time_off"
	CategoryPermit   = "permit"
	CategoryExpense  = "expense"
	CategoryContract = "contract"
	CategoryCustom   = "custom"
)

// Status constants
const (
	StatusScheduled = "scheduled"
	StatusActive    = "active"
	StatusExpired   = "expired"
	StatusRevoked   = "revoked"
)

// StartOfDay returns midnight UTC of t's calendar date.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// EndOfDay returns the last instant of t's calendar date in UTC.
func EndOfDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 23, 59, 59, int(time.Second-time.Nanosecond), time.UTC)
}

// StatusAt derives the grant's status at the given instant. Revocation wins
// over the date window; the window is inclusive on both ends.
func (g *DelegationGrant) StatusAt(now time.Time) string {
	if g.RevokedAt != nil {
		return StatusRevoked
	}
	if now.Before(StartOfDay(g.StartDate)) {
		return StatusScheduled
	}
	if now.After(EndOfDay(g.EndDate)) {
		return StatusExpired
	}
	return StatusActive
}

// IsActiveAt reports whether the grant is in effect at the given instant.
func (g *DelegationGrant) IsActiveAt(now time.Time) bool {
	return g.StatusAt(now) == StatusActive
}

// IsTerminalAt reports whether the grant can no longer change state.
func (g *DelegationGrant) IsTerminalAt(now time.Time) bool {
	status := g.StatusAt(now)
	return status == StatusRevoked || status == StatusExpired
}

// DelegationLimits narrows what a delegate may approve under a grant. Stored
// as a JSONB document on the grant; a nil/empty document means no limits.
type DelegationLimits struct {
	MaxApprovalAmount         *float64 `json:"max_approval_amount,omitempty"`
	MaxApprovalsPerDay        *int     `json:"max_approvals_per_day,omitempty"`
	MaxTierLevel              *int     `json:"max_tier_level,omitempty"`
	ExcludeCategories         []string `json:"exclude_categories,omitempty"`
	ExcludeHighPriority       bool     `json:"exclude_high_priority,omitempty"`
	AllowReDelegation         *bool    `json:"allow_re_delegation,omitempty"` // nil means true
	RestrictToSameDepartment  bool     `json:"restrict_to_same_department,omitempty"`
	RequireJustificationAbove *float64 `json:"require_justification_above,omitempty"`
}

// ReDelegationAllowed reports whether the limits permit the delegate to pass
// authority on. Defaults to true when unset.
func (l *DelegationLimits) ReDelegationAllowed() bool {
	return l == nil || l.AllowReDelegation == nil || *l.AllowReDelegation
}

// ExcludesCategory reports whether the category is blocked by the limits.
func (l *DelegationLimits) ExcludesCategory(category string) bool {
	if l == nil || category == "" {
		return false
	}
	for _, c := range l.ExcludeCategories {
		if c == category {
			return true
		}
	}
	return false
}

// ParseLimits decodes the grant's limits document. Returns nil when the grant
// carries no limits.
func (g *DelegationGrant) ParseLimits() (*DelegationLimits, error) {
	if len(g.Limits) == 0 || string(g.Limits) == "null" {
		return nil, nil
	}
	var limits DelegationLimits
	if err := json.Unmarshal(g.Limits, &limits); err != nil {
		return nil, err
	}
	return &limits, nil
}

// Audit event type constants
const (
	AuditActionCreated      = "created"
	AuditActionModified     = "modified"
	AuditActionRevoked      = "revoked"
	AuditActionExpired      = "expired"
	AuditActionApprovalUsed = "approval_used"
)
