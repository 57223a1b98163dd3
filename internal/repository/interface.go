package repository

import (
	"context"
	"time"

	"delegation-service/internal/models"
	"github.com/google/uuid"
)

// GrantFilter narrows ListGrants. Status is the derived lifecycle status and
// is translated to stored-field predicates against the caller's clock.
type GrantFilter struct {
	Status      string
	DelegatorID *uuid.UUID
	DelegateID  *uuid.UUID
	Kind        string
	Limit       int
	Offset      int
}

// PartyCount is one row of a grants-per-party aggregation.
type PartyCount struct {
	UserID uuid.UUID `gorm:"column:user_id" json:"userId"`
	Name   string    `gorm:"column:name" json:"name"`
	Count  int64     `gorm:"column:grant_count" json:"count"`
}

// LedgerAggregate is the proxy-approval rollup for one grant.
type LedgerAggregate struct {
	GrantID uuid.UUID `gorm:"column:grant_id"`
	Count   int64     `gorm:"column:approval_count"`
	Total   float64   `gorm:"column:total_amount"`
}

// CandidateUser is a party known to the grant store that could receive a
// delegation. Identity is opaque to this service.
type CandidateUser struct {
	ID   uuid.UUID `gorm:"column:id" json:"id"`
	Name string    `gorm:"column:name" json:"name"`
	Role string    `gorm:"column:role" json:"role,omitempty"`
}

// DelegationRepositoryInterface defines the persistence contract consumed by
// the service layer. Implementations must keep single-grant mutations
// linearizable per grant id (optimistic CAS on version / conditional updates).
type DelegationRepositoryInterface interface {
	CreateGrant(ctx context.Context, grant *models.DelegationGrant) error
	GetGrantByID(ctx context.Context, id uuid.UUID) (*models.DelegationGrant, error)
	ListGrants(ctx context.Context, tenantID string, filter GrantFilter, now time.Time) ([]models.DelegationGrant, int64, error)
	UpdateGrantWithLock(ctx context.Context, grant *models.DelegationGrant) error
	RevokeGrant(ctx context.Context, id, revokedBy uuid.UUID, reason string, now time.Time) error
	DeleteGrant(ctx context.Context, id uuid.UUID) error

	ActiveGrantsByDelegate(ctx context.Context, tenantID string, delegateID uuid.UUID, now time.Time) ([]models.DelegationGrant, error)
	ActiveGrantsByDelegator(ctx context.Context, tenantID string, delegatorID uuid.UUID, now time.Time) ([]models.DelegationGrant, error)
	OverlappingGrants(ctx context.Context, tenantID string, delegatorID uuid.UUID, start, end time.Time, excludeID *uuid.UUID, now time.Time) ([]models.DelegationGrant, error)

	ExpiryCandidates(ctx context.Context, now time.Time) ([]models.DelegationGrant, error)
	ClaimExpiry(ctx context.Context, id uuid.UUID, fromMarker string) (bool, error)

	CreateProxyApproval(ctx context.Context, record *models.ProxyApprovalRecord) error
	ListProxyApprovalsByGrant(ctx context.Context, grantID uuid.UUID) ([]models.ProxyApprovalRecord, error)
	CountProxyApprovals(ctx context.Context, tenantID string) (int64, error)
	CountProxyApprovalsForDay(ctx context.Context, tenantID string, grantID uuid.UUID, day time.Time) (int64, error)
	AggregateProxyApprovals(ctx context.Context, tenantID string, grantIDs []uuid.UUID) ([]LedgerAggregate, error)

	CreateAuditEntry(ctx context.Context, entry *models.DelegationAuditEntry) error
	AuditTrail(ctx context.Context, grantID uuid.UUID) ([]models.DelegationAuditEntry, error)

	TopDelegators(ctx context.Context, tenantID string, limit int) ([]PartyCount, error)
	TopDelegates(ctx context.Context, tenantID string, limit int) ([]PartyCount, error)
	EligibleParties(ctx context.Context, tenantID string, excludeUser *uuid.UUID, search string) ([]CandidateUser, error)
}
