package models

import (
	"time"

	"github.com/google/uuid"
)

// DelegationAuditEntry is one lifecycle event on a grant. The audit trail is
// append-only; entries are only ever removed when their grant is hard-deleted.
type DelegationAuditEntry struct {
	ID        uuid.UUID  `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	TenantID  string     `gorm:"type:varchar(255);not null;index" json:"tenantId"`
	GrantID   uuid.UUID  `gorm:"type:uuid;not null;index" json:"grantId"`
	Action    string     `gorm:"type:varchar(30);not null;index" json:"action"`
	ActorID   *uuid.UUID `gorm:"type:uuid" json:"actorId,omitempty"`
	ActorName string     `gorm:"type:varchar(255)" json:"actorName,omitempty"`
	Detail    string     `gorm:"type:text" json:"detail,omitempty"`

	// Set when the entry was produced by a proxy approval.
	ProxyApprovalID *uuid.UUID `gorm:"type:uuid" json:"proxyApprovalId,omitempty"`

	CreatedAt time.Time `gorm:"autoCreateTime;index" json:"createdAt"`
}

// TableName returns the table name for DelegationAuditEntry
func (DelegationAuditEntry) TableName() string {
	return "delegation_audit_entries"
}

// SystemActorName is the actor recorded for sweep-driven transitions.
const SystemActorName = "system"

// DelegationHistoryEntry summarizes a grant that has ended. It is derived on
// read from the grant and its proxy-approval ledger, never stored.
type DelegationHistoryEntry struct {
	GrantID             uuid.UUID  `json:"grantId"`
	DelegatorID         uuid.UUID  `json:"delegatorId"`
	DelegatorName       string     `json:"delegatorName,omitempty"`
	DelegateID          uuid.UUID  `json:"delegateId"`
	DelegateName        string     `json:"delegateName,omitempty"`
	Kind                string     `json:"kind"`
	StartDate           time.Time  `json:"startDate"`
	EndDate             time.Time  `json:"endDate"`
	FinalStatus         string     `json:"finalStatus"`
	EndedAt             time.Time  `json:"endedAt"`
	RevokeReason        string     `json:"revokeReason,omitempty"`
	RevokedBy           *uuid.UUID `json:"revokedBy,omitempty"`
	ApprovalsProcessed  int64      `json:"approvalsProcessed"`
	TotalApprovalAmount float64    `json:"totalApprovalAmount"`
}
