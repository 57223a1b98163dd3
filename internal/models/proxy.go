package models

import (
	"time"

	"github.com/google/uuid"
)

// ProxyApprovalRecord is one approval action taken by a delegate under a
// grant. Records are append-only: they are never updated or deleted, and
// they survive hard deletion of the grant that authorized them.
type ProxyApprovalRecord struct {
	ID       uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	TenantID string    `gorm:"type:varchar(255);not null;index" json:"tenantId"`
	GrantID  uuid.UUID `gorm:"type:uuid;not null;index" json:"grantId"`

	// The approvable item the action was taken on.
	ApprovalID        uuid.UUID `gorm:"type:uuid;not null;index" json:"approvalId"`
	ApprovalReference string    `gorm:"type:varchar(100)" json:"approvalReference,omitempty"`
	Category          string    `gorm:"type:varchar(30)" json:"category,omitempty"`

	OriginalApproverID   uuid.UUID `gorm:"type:uuid;not null;index" json:"originalApproverId"`
	OriginalApproverName string    `gorm:"type:varchar(255)" json:"originalApproverName,omitempty"`
	ProxyApproverID      uuid.UUID `gorm:"type:uuid;not null;index" json:"proxyApproverId"`
	ProxyApproverName    string    `gorm:"type:varchar(255)" json:"proxyApproverName,omitempty"`

	DelegationKind string   `gorm:"type:varchar(30)" json:"delegationKind,omitempty"`
	Action         string   `gorm:"type:varchar(20);not null" json:"action"`
	Amount         *float64 `gorm:"type:numeric(14,2)" json:"amount,omitempty"`
	Comment        string   `gorm:"type:text" json:"comment,omitempty"`

	CreatedAt time.Time `gorm:"autoCreateTime;index" json:"createdAt"`
}

// TableName returns the table name for ProxyApprovalRecord
func (ProxyApprovalRecord) TableName() string {
	return "proxy_approval_records"
}

// Proxy action constants
const (
	ProxyActionApproved = "approved"
	ProxyActionRejected = "rejected"
	ProxyActionReturned = "returned"
)

// ActionLabel returns the human-readable verb for audit detail lines.
func (r *ProxyApprovalRecord) ActionLabel() string {
	switch r.Action {
	case ProxyActionApproved:
		return "Approved"
	case ProxyActionRejected:
		return "Rejected"
	case ProxyActionReturned:
		return "Returned"
	}
	return r.Action
}
