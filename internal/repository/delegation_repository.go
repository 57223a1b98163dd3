package repository

import (
	"context"
	"errors"
	"time"

	"delegation-service/internal/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrVersionConflict = errors.New("version conflict - record was modified by another request")
)

// DelegationRepository handles database operations for delegation grants,
// the proxy-approval ledger, and the audit trail.
type DelegationRepository struct {
	db *gorm.DB
}

// Ensure DelegationRepository implements the interface
var _ DelegationRepositoryInterface = (*DelegationRepository)(nil)

// NewDelegationRepository creates a new DelegationRepository
func NewDelegationRepository(db *gorm.DB) *DelegationRepository {
	return &DelegationRepository{db: db}
}

// --- Grant Methods ---

// CreateGrant creates a new delegation grant
func (r *DelegationRepository) CreateGrant(ctx context.Context, grant *models.DelegationGrant) error {
	return r.db.WithContext(ctx).Create(grant).Error
}

// GetGrantByID retrieves a grant by ID
func (r *DelegationRepository) GetGrantByID(ctx context.Context, id uuid.UUID) (*models.DelegationGrant, error) {
	var grant models.DelegationGrant
	err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&grant).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &grant, nil
}

// ListGrants retrieves grants for a tenant with optional filters. The status
// filter is the derived lifecycle status, translated to predicates over the
// stored fields relative to now.
func (r *DelegationRepository) ListGrants(ctx context.Context, tenantID string, filter GrantFilter, now time.Time) ([]models.DelegationGrant, int64, error) {
	var grants []models.DelegationGrant
	var total int64

	query := r.db.WithContext(ctx).Model(&models.DelegationGrant{}).
		Where("tenant_id = ?", tenantID)

	query = applyStatusPredicate(query, filter.Status, now)

	if filter.DelegatorID != nil {
		query = query.Where("delegator_id = ?", *filter.DelegatorID)
	}
	if filter.DelegateID != nil {
		query = query.Where("delegate_id = ?", *filter.DelegateID)
	}
	if filter.Kind != "" {
		query = query.Where("kind = ?", filter.Kind)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}

	err := query.
		Order("created_at DESC").
		Limit(limit).
		Offset(filter.Offset).
		Find(&grants).Error

	return grants, total, err
}

// applyStatusPredicate translates a derived status into stored-field
// conditions. StartDate/EndDate are stored as midnight-UTC dates, so
// "expired" means the end date's day lies strictly before now's day.
func applyStatusPredicate(query *gorm.DB, status string, now time.Time) *gorm.DB {
	dayFloor := models.StartOfDay(now)

	switch status {
	case models.StatusRevoked:
		return query.Where("revoked_at IS NOT NULL")
	case models.StatusScheduled:
		return query.Where("revoked_at IS NULL AND start_date > ?", now)
	case models.StatusExpired:
		return query.Where("revoked_at IS NULL AND end_date < ?", dayFloor)
	case models.StatusActive:
		return query.Where("revoked_at IS NULL AND start_date <= ? AND end_date >= ?", now, dayFloor)
	}
	return query
}

// UpdateGrantWithLock updates a grant with optimistic locking
func (r *DelegationRepository) UpdateGrantWithLock(ctx context.Context, grant *models.DelegationGrant) error {
	oldVersion := grant.Version
	grant.Version = oldVersion + 1
	grant.UpdatedAt = time.Now()

	result := r.db.WithContext(ctx).Model(&models.DelegationGrant{}).
		Where("id = ? AND version = ?", grant.ID, oldVersion).
		Select("delegate_id", "delegate_name", "delegate_role", "kind",
			"workflow_item_ids", "categories", "reason", "start_date", "end_date",
			"limits", "status_marker", "version", "updated_at").
		Updates(grant)

	if result.Error != nil {
		grant.Version = oldVersion
		return result.Error
	}

	if result.RowsAffected == 0 {
		grant.Version = oldVersion
		return ErrVersionConflict
	}

	return nil
}

// RevokeGrant revokes a grant. The conditional update doubles as the
// terminal-state guard: a grant already revoked is not matched.
func (r *DelegationRepository) RevokeGrant(ctx context.Context, id, revokedBy uuid.UUID, reason string, now time.Time) error {
	result := r.db.WithContext(ctx).Model(&models.DelegationGrant{}).
		Where("id = ? AND revoked_at IS NULL", id).
		Updates(map[string]interface{}{
			"revoked_at":    now,
			"revoked_by":    revokedBy,
			"revoke_reason": reason,
			"status_marker": models.StatusRevoked,
			"updated_at":    now,
		})

	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		return ErrNotFound
	}

	return nil
}

// DeleteGrant hard-deletes a grant and its audit entries. Proxy approval
// records are deliberately left in place as permanent fact.
func (r *DelegationRepository) DeleteGrant(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("grant_id = ?", id).Delete(&models.DelegationAuditEntry{}).Error; err != nil {
			return err
		}

		result := tx.Where("id = ?", id).Delete(&models.DelegationGrant{})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// ActiveGrantsByDelegate finds grants currently in effect where the user is
// the delegate.
func (r *DelegationRepository) ActiveGrantsByDelegate(ctx context.Context, tenantID string, delegateID uuid.UUID, now time.Time) ([]models.DelegationGrant, error) {
	var grants []models.DelegationGrant
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND delegate_id = ?", tenantID, delegateID).
		Where("revoked_at IS NULL AND start_date <= ? AND end_date >= ?", now, models.StartOfDay(now)).
		Order("start_date ASC").
		Find(&grants).Error
	return grants, err
}

// ActiveGrantsByDelegator finds grants currently in effect where the user is
// the delegator.
func (r *DelegationRepository) ActiveGrantsByDelegator(ctx context.Context, tenantID string, delegatorID uuid.UUID, now time.Time) ([]models.DelegationGrant, error) {
	var grants []models.DelegationGrant
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND delegator_id = ?", tenantID, delegatorID).
		Where("revoked_at IS NULL AND start_date <= ? AND end_date >= ?", now, models.StartOfDay(now)).
		Order("start_date ASC").
		Find(&grants).Error
	return grants, err
}

// OverlappingGrants finds non-revoked, non-expired grants from the same
// delegator whose window intersects [start, end] (closed intervals).
func (r *DelegationRepository) OverlappingGrants(ctx context.Context, tenantID string, delegatorID uuid.UUID, start, end time.Time, excludeID *uuid.UUID, now time.Time) ([]models.DelegationGrant, error) {
	var grants []models.DelegationGrant

	query := r.db.WithContext(ctx).
		Where("tenant_id = ? AND delegator_id = ?", tenantID, delegatorID).
		Where("revoked_at IS NULL").
		Where("end_date >= ?", models.StartOfDay(now)).
		Where("start_date <= ? AND end_date >= ?", models.StartOfDay(end), models.StartOfDay(start))

	if excludeID != nil {
		query = query.Where("id != ?", *excludeID)
	}

	err := query.Order("start_date ASC").Find(&grants).Error
	return grants, err
}

// --- Expiry Sweep Methods ---

// ExpiryCandidates finds grants whose persisted marker has not caught up with
// a lapsed validity window.
func (r *DelegationRepository) ExpiryCandidates(ctx context.Context, now time.Time) ([]models.DelegationGrant, error) {
	var grants []models.DelegationGrant
	err := r.db.WithContext(ctx).
		Where("status_marker NOT IN ?", []string{models.StatusExpired, models.StatusRevoked}).
		Where("revoked_at IS NULL").
		Where("end_date < ?", models.StartOfDay(now)).
		Find(&grants).Error
	return grants, err
}

// ClaimExpiry transitions a grant's persisted marker to expired using a
// compare-and-set on the prior marker, so concurrent sweep instances cannot
// both claim the same grant. Returns true if this caller won the claim.
func (r *DelegationRepository) ClaimExpiry(ctx context.Context, id uuid.UUID, fromMarker string) (bool, error) {
	result := r.db.WithContext(ctx).Model(&models.DelegationGrant{}).
		Where("id = ? AND status_marker = ? AND revoked_at IS NULL", id, fromMarker).
		Updates(map[string]interface{}{
			"status_marker": models.StatusExpired,
			"updated_at":    time.Now(),
		})

	if result.Error != nil {
		return false, result.Error
	}

	return result.RowsAffected > 0, nil
}

// --- Proxy Approval Ledger Methods ---

// CreateProxyApproval appends a ledger record. No update or delete methods
// exist for the ledger by design.
func (r *DelegationRepository) CreateProxyApproval(ctx context.Context, record *models.ProxyApprovalRecord) error {
	return r.db.WithContext(ctx).Create(record).Error
}

// ListProxyApprovalsByGrant retrieves the ledger for one grant, most recent first
func (r *DelegationRepository) ListProxyApprovalsByGrant(ctx context.Context, grantID uuid.UUID) ([]models.ProxyApprovalRecord, error) {
	var records []models.ProxyApprovalRecord
	err := r.db.WithContext(ctx).
		Where("grant_id = ?", grantID).
		Order("created_at DESC").
		Find(&records).Error
	return records, err
}

// CountProxyApprovals counts all proxy approvals for a tenant
func (r *DelegationRepository) CountProxyApprovals(ctx context.Context, tenantID string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.ProxyApprovalRecord{}).
		Where("tenant_id = ?", tenantID).
		Count(&count).Error
	return count, err
}

// CountProxyApprovalsForDay counts ledger records for a grant on the calendar
// day containing the given instant. Used for max_approvals_per_day checks.
func (r *DelegationRepository) CountProxyApprovalsForDay(ctx context.Context, tenantID string, grantID uuid.UUID, day time.Time) (int64, error) {
	dayStart := models.StartOfDay(day)
	dayEnd := dayStart.Add(24 * time.Hour)

	var count int64
	err := r.db.WithContext(ctx).Model(&models.ProxyApprovalRecord{}).
		Where("tenant_id = ? AND grant_id = ?", tenantID, grantID).
		Where("created_at >= ? AND created_at < ?", dayStart, dayEnd).
		Count(&count).Error
	return count, err
}

// AggregateProxyApprovals computes count and amount sum per grant for the
// given grant ids. Rows with no amount contribute zero to the sum.
func (r *DelegationRepository) AggregateProxyApprovals(ctx context.Context, tenantID string, grantIDs []uuid.UUID) ([]LedgerAggregate, error) {
	if len(grantIDs) == 0 {
		return nil, nil
	}

	var aggregates []LedgerAggregate
	err := r.db.WithContext(ctx).Model(&models.ProxyApprovalRecord{}).
		Select("grant_id, COUNT(*) AS approval_count, COALESCE(SUM(amount), 0) AS total_amount").
		Where("tenant_id = ? AND grant_id IN ?", tenantID, grantIDs).
		Group("grant_id").
		Scan(&aggregates).Error
	return aggregates, err
}

// --- Audit Methods ---

// CreateAuditEntry appends an audit entry
func (r *DelegationRepository) CreateAuditEntry(ctx context.Context, entry *models.DelegationAuditEntry) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

// AuditTrail retrieves audit entries for a grant, most recent first
func (r *DelegationRepository) AuditTrail(ctx context.Context, grantID uuid.UUID) ([]models.DelegationAuditEntry, error) {
	var entries []models.DelegationAuditEntry
	err := r.db.WithContext(ctx).
		Where("grant_id = ?", grantID).
		Order("created_at DESC").
		Find(&entries).Error
	return entries, err
}

// --- Stats & Directory Methods ---

// TopDelegators returns the parties who have issued the most grants
func (r *DelegationRepository) TopDelegators(ctx context.Context, tenantID string, limit int) ([]PartyCount, error) {
	var rows []PartyCount
	err := r.db.WithContext(ctx).Model(&models.DelegationGrant{}).
		Select("delegator_id AS user_id, MAX(delegator_name) AS name, COUNT(*) AS grant_count").
		Where("tenant_id = ?", tenantID).
		Group("delegator_id").
		Order("grant_count DESC").
		Limit(limit).
		Scan(&rows).Error
	return rows, err
}

// TopDelegates returns the parties who have received the most grants
func (r *DelegationRepository) TopDelegates(ctx context.Context, tenantID string, limit int) ([]PartyCount, error) {
	var rows []PartyCount
	err := r.db.WithContext(ctx).Model(&models.DelegationGrant{}).
		Select("delegate_id AS user_id, MAX(delegate_name) AS name, COUNT(*) AS grant_count").
		Where("tenant_id = ?", tenantID).
		Group("delegate_id").
		Order("grant_count DESC").
		Limit(limit).
		Scan(&rows).Error
	return rows, err
}

// EligibleParties returns the distinct parties known to the grant store.
// The identity directory is out of scope for this service; deployments with
// a directory would substitute this query for a directory lookup.
func (r *DelegationRepository) EligibleParties(ctx context.Context, tenantID string, excludeUser *uuid.UUID, search string) ([]CandidateUser, error) {
	var candidates []CandidateUser

	query := r.db.WithContext(ctx).Raw(`
		SELECT DISTINCT id, name, role FROM (
			SELECT delegator_id AS id, delegator_name AS name, delegator_role AS role
			FROM delegation_grants WHERE tenant_id = @tenant
			UNION
			SELECT delegate_id, delegate_name, delegate_role
			FROM delegation_grants WHERE tenant_id = @tenant
		) parties
		WHERE (@exclude::uuid IS NULL OR id != @exclude::uuid)
		  AND (@search = '' OR name ILIKE '%' || @search || '%')
		ORDER BY name ASC
	`, map[string]interface{}{
		"tenant":  tenantID,
		"exclude": excludeUser,
		"search":  search,
	})

	err := query.Scan(&candidates).Error
	return candidates, err
}
