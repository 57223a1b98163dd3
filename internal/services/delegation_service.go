package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"delegation-service/internal/events"
	"delegation-service/internal/models"
	"delegation-service/internal/repository"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"
)

var (
	ErrGrantNotFound      = errors.New("delegation grant not found")
	ErrInvalidWindow      = errors.New("start date must not be after end date")
	ErrAlreadyTerminal    = errors.New("delegation grant is already expired or revoked")
	ErrSelfDelegation     = errors.New("cannot delegate to yourself")
	ErrInvalidProxyAction = errors.New("invalid proxy approval action")
)

// Actor identifies who performed an operation, for audit attribution.
// Identity is opaque to this service.
type Actor struct {
	ID   uuid.UUID
	Name string
	Role string
}

// SystemActor is used for sweep-driven transitions
var SystemActor = Actor{Name: models.SystemActorName}

// DelegationService handles delegation business logic
type DelegationService struct {
	repo      repository.DelegationRepositoryInterface
	publisher *events.Publisher
	logger    *logrus.Logger
	now       func() time.Time
}

// NewDelegationService creates a new DelegationService
func NewDelegationService(repo repository.DelegationRepositoryInterface, publisher *events.Publisher, logger *logrus.Logger) *DelegationService {
	if logger == nil {
		logger = logrus.New()
	}
	return &DelegationService{
		repo:      repo,
		publisher: publisher,
		logger:    logger,
		now:       time.Now,
	}
}

// SetClock overrides the service clock. Test hook only.
func (s *DelegationService) SetClock(now func() time.Time) {
	s.now = now
}

// PartyInput is an identity snapshot supplied by the caller
type PartyInput struct {
	ID   uuid.UUID `json:"id" binding:"required"`
	Name string    `json:"name"`
	Role string    `json:"role"`
}

// CreateGrantInput represents input for creating a delegation grant
type CreateGrantInput struct {
	Delegator       PartyInput               `json:"delegator"`
	Delegate        PartyInput               `json:"delegate" binding:"required"`
	Kind            string                   `json:"kind"`
	WorkflowItemIDs []string                 `json:"workflowItemIds"`
	Categories      []string                 `json:"categories"`
	Reason          string                   `json:"reason"`
	StartDate       time.Time                `json:"startDate" binding:"required"`
	EndDate         time.Time                `json:"endDate" binding:"required"`
	Limits          *models.DelegationLimits `json:"limits"`
}

// CreateGrant creates a delegation grant. Overlapping grants from the same
// delegator are returned alongside the created grant as advisory data; they
// never block creation.
func (s *DelegationService) CreateGrant(ctx context.Context, tenantID string, actor Actor, input CreateGrantInput) (*models.DelegationGrant, []models.DelegationGrant, error) {
	now := s.now()

	start := models.StartOfDay(input.StartDate)
	end := models.StartOfDay(input.EndDate)
	if start.After(end) {
		return nil, nil, ErrInvalidWindow
	}

	if input.Delegator.ID == input.Delegate.ID {
		return nil, nil, ErrSelfDelegation
	}

	kind := input.Kind
	if kind == "" {
		kind = models.KindFull
	}

	conflicts, err := s.repo.OverlappingGrants(ctx, tenantID, input.Delegator.ID, start, end, nil, now)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to check for overlapping grants: %w", err)
	}

	limitsJSON, err := marshalLimits(input.Limits)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to marshal limits: %w", err)
	}

	grant := &models.DelegationGrant{
		TenantID:        tenantID,
		DelegatorID:     input.Delegator.ID,
		DelegatorName:   input.Delegator.Name,
		DelegatorRole:   input.Delegator.Role,
		DelegateID:      input.Delegate.ID,
		DelegateName:    input.Delegate.Name,
		DelegateRole:    input.Delegate.Role,
		Kind:            kind,
		WorkflowItemIDs: pq.StringArray(input.WorkflowItemIDs),
		Categories:      pq.StringArray(input.Categories),
		Reason:          input.Reason,
		StartDate:       start,
		EndDate:         end,
		Limits:          limitsJSON,
		CreatedBy:       actor.ID,
		Version:         1,
	}
	grant.StatusMarker = grant.StatusAt(now)

	if err := s.repo.CreateGrant(ctx, grant); err != nil {
		return nil, nil, fmt.Errorf("failed to create grant: %w", err)
	}

	detail := fmt.Sprintf("Delegated to %s from %s to %s",
		partyLabel(grant.DelegateName, grant.DelegateID),
		start.Format("2006-01-02"), end.Format("2006-01-02"))
	s.recordAudit(ctx, grant, models.AuditActionCreated, actor, detail, nil)

	s.publishEvent(events.EventDelegationCreated, grant, "")

	return grant, conflicts, nil
}

// UpdateGrantInput represents a partial update to a grant. Nil fields are
// left untouched.
type UpdateGrantInput struct {
	Kind            *string                  `json:"kind"`
	WorkflowItemIDs *[]string                `json:"workflowItemIds"`
	Categories      *[]string                `json:"categories"`
	Reason          *string                  `json:"reason"`
	StartDate       *time.Time               `json:"startDate"`
	EndDate         *time.Time               `json:"endDate"`
	Limits          *models.DelegationLimits `json:"limits"`
}

// UpdateGrant mutates an existing grant and appends a modification audit
// entry. Terminal grants cannot be modified.
func (s *DelegationService) UpdateGrant(ctx context.Context, tenantID string, grantID uuid.UUID, actor Actor, input UpdateGrantInput) (*models.DelegationGrant, error) {
	now := s.now()

	grant, err := s.getTenantGrant(ctx, tenantID, grantID)
	if err != nil {
		return nil, err
	}

	if grant.IsTerminalAt(now) {
		return nil, ErrAlreadyTerminal
	}

	var changed []string

	if input.Kind != nil && *input.Kind != grant.Kind {
		grant.Kind = *input.Kind
		changed = append(changed, "kind")
	}
	if input.WorkflowItemIDs != nil {
		grant.WorkflowItemIDs = pq.StringArray(*input.WorkflowItemIDs)
		changed = append(changed, "workflow items")
	}
	if input.Categories != nil {
		grant.Categories = pq.StringArray(*input.Categories)
		changed = append(changed, "categories")
	}
	if input.Reason != nil {
		grant.Reason = *input.Reason
		changed = append(changed, "reason")
	}
	if input.StartDate != nil {
		grant.StartDate = models.StartOfDay(*input.StartDate)
		changed = append(changed, "start date")
	}
	if input.EndDate != nil {
		grant.EndDate = models.StartOfDay(*input.EndDate)
		changed = append(changed, "end date")
	}
	if input.Limits != nil {
		limitsJSON, err := marshalLimits(input.Limits)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal limits: %w", err)
		}
		grant.Limits = limitsJSON
		changed = append(changed, "limits")
	}

	if grant.StartDate.After(grant.EndDate) {
		return nil, ErrInvalidWindow
	}

	if len(changed) == 0 {
		return grant, nil
	}

	// Keep the sweep bookkeeping in step with a moved window, but never set
	// the marker to expired here: the sweep owns that transition and its
	// audit entry.
	if status := grant.StatusAt(now); status == models.StatusScheduled || status == models.StatusActive {
		grant.StatusMarker = status
	}

	if err := s.repo.UpdateGrantWithLock(ctx, grant); err != nil {
		return nil, err
	}

	detail := fmt.Sprintf("Updated %s", strings.Join(changed, ", "))
	s.recordAudit(ctx, grant, models.AuditActionModified, actor, detail, nil)

	s.publishEvent(events.EventDelegationModified, grant, "")

	return grant, nil
}

// RevokeGrant revokes a grant. Revocation is terminal; an already revoked or
// expired grant returns ErrAlreadyTerminal.
func (s *DelegationService) RevokeGrant(ctx context.Context, tenantID string, grantID uuid.UUID, actor Actor, reason string) (*models.DelegationGrant, error) {
	now := s.now()

	grant, err := s.getTenantGrant(ctx, tenantID, grantID)
	if err != nil {
		return nil, err
	}

	if grant.IsTerminalAt(now) {
		return nil, ErrAlreadyTerminal
	}

	if err := s.repo.RevokeGrant(ctx, grantID, actor.ID, reason, now); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			// Lost a race against a concurrent revoke.
			return nil, ErrAlreadyTerminal
		}
		return nil, err
	}

	grant, err = s.repo.GetGrantByID(ctx, grantID)
	if err != nil {
		return nil, err
	}

	detail := "Delegation revoked"
	if reason != "" {
		detail = fmt.Sprintf("Delegation revoked: %s", reason)
	}
	s.recordAudit(ctx, grant, models.AuditActionRevoked, actor, detail, nil)

	s.publishEvent(events.EventDelegationRevoked, grant, "")

	return grant, nil
}

// DeleteGrant hard-deletes a grant together with its audit trail. Proxy
// approval records stay behind as permanent fact.
func (s *DelegationService) DeleteGrant(ctx context.Context, tenantID string, grantID uuid.UUID) error {
	if _, err := s.getTenantGrant(ctx, tenantID, grantID); err != nil {
		return err
	}

	if err := s.repo.DeleteGrant(ctx, grantID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrGrantNotFound
		}
		return err
	}
	return nil
}

// GetGrant retrieves a grant by ID
func (s *DelegationService) GetGrant(ctx context.Context, tenantID string, grantID uuid.UUID) (*models.DelegationGrant, error) {
	return s.getTenantGrant(ctx, tenantID, grantID)
}

// ListGrants lists grants with optional filters
func (s *DelegationService) ListGrants(ctx context.Context, tenantID string, filter repository.GrantFilter) ([]models.DelegationGrant, int64, error) {
	return s.repo.ListGrants(ctx, tenantID, filter, s.now())
}

// ActiveGrants groups a user's currently effective grants by direction
type ActiveGrants struct {
	DelegatedFrom []models.DelegationGrant `json:"delegatedFrom"` // user is the delegator
	DelegatedTo   []models.DelegationGrant `json:"delegatedTo"`   // user is the delegate
}

// ActiveGrantsFor returns the grants currently in effect for a user, in both
// directions.
func (s *DelegationService) ActiveGrantsFor(ctx context.Context, tenantID string, userID uuid.UUID) (*ActiveGrants, error) {
	now := s.now()

	outgoing, err := s.repo.ActiveGrantsByDelegator(ctx, tenantID, userID, now)
	if err != nil {
		return nil, err
	}
	incoming, err := s.repo.ActiveGrantsByDelegate(ctx, tenantID, userID, now)
	if err != nil {
		return nil, err
	}

	return &ActiveGrants{DelegatedFrom: outgoing, DelegatedTo: incoming}, nil
}

// EligibleDelegates lists candidate recipients known to the grant store
func (s *DelegationService) EligibleDelegates(ctx context.Context, tenantID string, excludeUser *uuid.UUID, search string) ([]repository.CandidateUser, error) {
	return s.repo.EligibleParties(ctx, tenantID, excludeUser, search)
}

// Stats summarizes the delegation engine for a tenant
type Stats struct {
	Total                  int64                   `json:"total"`
	Active                 int64                   `json:"active"`
	Scheduled              int64                   `json:"scheduled"`
	Expired                int64                   `json:"expired"`
	Revoked                int64                   `json:"revoked"`
	ApprovalsViaDelegation int64                   `json:"approvalsViaDelegation"`
	TopDelegators          []repository.PartyCount `json:"topDelegators"`
	TopDelegates           []repository.PartyCount `json:"topDelegates"`
}

// GetStats computes delegation statistics for a tenant
func (s *DelegationService) GetStats(ctx context.Context, tenantID string) (*Stats, error) {
	stats := &Stats{}

	countFor := func(status string) (int64, error) {
		_, total, err := s.repo.ListGrants(ctx, tenantID, repository.GrantFilter{Status: status, Limit: 1}, s.now())
		return total, err
	}

	var err error
	if stats.Total, err = countFor(""); err != nil {
		return nil, err
	}
	if stats.Active, err = countFor(models.StatusActive); err != nil {
		return nil, err
	}
	if stats.Scheduled, err = countFor(models.StatusScheduled); err != nil {
		return nil, err
	}
	if stats.Expired, err = countFor(models.StatusExpired); err != nil {
		return nil, err
	}
	if stats.Revoked, err = countFor(models.StatusRevoked); err != nil {
		return nil, err
	}

	if stats.ApprovalsViaDelegation, err = s.repo.CountProxyApprovals(ctx, tenantID); err != nil {
		return nil, err
	}
	if stats.TopDelegators, err = s.repo.TopDelegators(ctx, tenantID, 5); err != nil {
		return nil, err
	}
	if stats.TopDelegates, err = s.repo.TopDelegates(ctx, tenantID, 5); err != nil {
		return nil, err
	}

	return stats, nil
}

// CheckConflicts finds grants from the same delegator overlapping the
// candidate window. Advisory: the caller decides whether to block or warn.
func (s *DelegationService) CheckConflicts(ctx context.Context, tenantID string, delegatorID uuid.UUID, start, end time.Time, excludeGrantID *uuid.UUID) ([]models.DelegationGrant, error) {
	startDay := models.StartOfDay(start)
	endDay := models.StartOfDay(end)
	if startDay.After(endDay) {
		return nil, ErrInvalidWindow
	}
	return s.repo.OverlappingGrants(ctx, tenantID, delegatorID, startDay, endDay, excludeGrantID, s.now())
}

// EligibilityResult is the outcome of a re-delegation check
type EligibilityResult struct {
	CanReceive          bool                    `json:"canReceive"`
	HasActiveDelegation bool                    `json:"hasActiveDelegation"`
	ExistingGrant       *models.DelegationGrant `json:"existingGrant,omitempty"`
	Reason              string                  `json:"reason,omitempty"`
}

// CheckReDelegation decides whether a candidate may currently receive a new
// grant. A candidate is blocked only in the two-hop chain case: they already
// hold inbound authority that forbids re-delegation, and the party who gave
// it to them is themselves operating on delegated authority. Everything else
// is allowed, at most with a warning.
func (s *DelegationService) CheckReDelegation(ctx context.Context, tenantID string, candidateID uuid.UUID) (*EligibilityResult, error) {
	now := s.now()
	result := &EligibilityResult{CanReceive: true}

	inbound, err := s.repo.ActiveGrantsByDelegate(ctx, tenantID, candidateID, now)
	if err != nil {
		return nil, err
	}

	if len(inbound) > 0 {
		result.HasActiveDelegation = true
		result.ExistingGrant = &inbound[0]

		for i := range inbound {
			grant := &inbound[i]

			limits, err := grant.ParseLimits()
			if err != nil {
				return nil, fmt.Errorf("failed to parse limits for grant %s: %w", grant.ID, err)
			}
			if limits.ReDelegationAllowed() {
				continue
			}

			upstream, err := s.repo.ActiveGrantsByDelegate(ctx, tenantID, grant.DelegatorID, now)
			if err != nil {
				return nil, err
			}
			if len(upstream) > 0 {
				result.CanReceive = false
				result.ExistingGrant = grant
				result.Reason = fmt.Sprintf(
					"existing delegation from %s does not allow re-delegation",
					partyLabel(grant.DelegatorName, grant.DelegatorID))
				return result, nil
			}
		}
	}

	outgoing, err := s.repo.ActiveGrantsByDelegator(ctx, tenantID, candidateID, now)
	if err != nil {
		return nil, err
	}
	if len(outgoing) > 0 {
		result.Reason = "candidate has delegated their own authority away and may be out of office"
	}

	return result, nil
}

// ValidateGrantLimits checks a proposed approval action against a grant's
// limits. On top of the pure rules this consults the ledger for the
// max_approvals_per_day restriction.
func (s *DelegationService) ValidateGrantLimits(ctx context.Context, tenantID string, grantID uuid.UUID, amount *float64, category string, tierLevel *int) (*ValidationResult, error) {
	grant, err := s.getTenantGrant(ctx, tenantID, grantID)
	if err != nil {
		return nil, err
	}

	limits, err := grant.ParseLimits()
	if err != nil {
		return nil, fmt.Errorf("failed to parse limits for grant %s: %w", grant.ID, err)
	}

	result := ValidateLimits(limits, amount, category, tierLevel)

	if limits != nil && limits.MaxApprovalsPerDay != nil {
		used, err := s.repo.CountProxyApprovalsForDay(ctx, tenantID, grantID, s.now())
		if err != nil {
			return nil, err
		}
		if used >= int64(*limits.MaxApprovalsPerDay) {
			result.Errors = append(result.Errors,
				fmt.Sprintf("daily approval limit of %d reached (%d used today)", *limits.MaxApprovalsPerDay, used))
			result.IsValid = false
		}
	}

	return &result, nil
}

// RecordProxyApprovalInput represents input for recording a proxy approval
type RecordProxyApprovalInput struct {
	GrantID           uuid.UUID `json:"grantId" binding:"required"`
	ApprovalID        uuid.UUID `json:"approvalId" binding:"required"`
	ApprovalReference string    `json:"approvalReference"`
	Category          string    `json:"category"`
	Action            string    `json:"action" binding:"required"`
	Amount            *float64  `json:"amount"`
	Comment           string    `json:"comment"`
}

// RecordProxyApproval appends an immutable ledger record plus the correlated
// approval_used audit entry. No validation happens here: callers run
// ValidateGrantLimits first, and the recorded action stands as historical
// fact even if the grant is revoked a moment later.
func (s *DelegationService) RecordProxyApproval(ctx context.Context, tenantID string, input RecordProxyApprovalInput) (*models.ProxyApprovalRecord, error) {
	switch input.Action {
	case models.ProxyActionApproved, models.ProxyActionRejected, models.ProxyActionReturned:
	default:
		return nil, ErrInvalidProxyAction
	}

	grant, err := s.getTenantGrant(ctx, tenantID, input.GrantID)
	if err != nil {
		return nil, err
	}

	record := &models.ProxyApprovalRecord{
		TenantID:             tenantID,
		GrantID:              grant.ID,
		ApprovalID:           input.ApprovalID,
		ApprovalReference:    input.ApprovalReference,
		Category:             input.Category,
		OriginalApproverID:   grant.DelegatorID,
		OriginalApproverName: grant.DelegatorName,
		ProxyApproverID:      grant.DelegateID,
		ProxyApproverName:    grant.DelegateName,
		DelegationKind:       grant.Kind,
		Action:               input.Action,
		Amount:               input.Amount,
		Comment:              input.Comment,
	}

	if err := s.repo.CreateProxyApproval(ctx, record); err != nil {
		return nil, fmt.Errorf("failed to record proxy approval: %w", err)
	}

	reference := input.ApprovalReference
	if reference == "" {
		reference = input.ApprovalID.String()
	}
	detail := fmt.Sprintf("%s %s on behalf of %s",
		record.ActionLabel(), reference, partyLabel(grant.DelegatorName, grant.DelegatorID))

	actor := Actor{ID: grant.DelegateID, Name: grant.DelegateName, Role: grant.DelegateRole}
	s.recordAudit(ctx, grant, models.AuditActionApprovalUsed, actor, detail, &record.ID)

	s.publishEvent(events.EventDelegationProxyUsed, grant, record.ID.String())

	return record, nil
}

// ListProxyApprovals retrieves the ledger for a grant
func (s *DelegationService) ListProxyApprovals(ctx context.Context, tenantID string, grantID uuid.UUID) ([]models.ProxyApprovalRecord, error) {
	if _, err := s.getTenantGrant(ctx, tenantID, grantID); err != nil {
		return nil, err
	}
	return s.repo.ListProxyApprovalsByGrant(ctx, grantID)
}

// AuditTrail retrieves the audit trail for a grant, most recent first
func (s *DelegationService) AuditTrail(ctx context.Context, tenantID string, grantID uuid.UUID) ([]models.DelegationAuditEntry, error) {
	if _, err := s.getTenantGrant(ctx, tenantID, grantID); err != nil {
		return nil, err
	}
	return s.repo.AuditTrail(ctx, grantID)
}

// HistoryFilter narrows the history listing
type HistoryFilter struct {
	DelegatorID *uuid.UUID
	DelegateID  *uuid.UUID
}

// History derives summaries for grants that have ended. The aggregation runs
// against the ledger on every call so it is always consistent with it.
func (s *DelegationService) History(ctx context.Context, tenantID string, filter HistoryFilter) ([]models.DelegationHistoryEntry, error) {
	now := s.now()

	var ended []models.DelegationGrant
	for _, status := range []string{models.StatusExpired, models.StatusRevoked} {
		grants, _, err := s.repo.ListGrants(ctx, tenantID, repository.GrantFilter{
			Status:      status,
			DelegatorID: filter.DelegatorID,
			DelegateID:  filter.DelegateID,
			Limit:       200,
		}, now)
		if err != nil {
			return nil, err
		}
		ended = append(ended, grants...)
	}

	if len(ended) == 0 {
		return []models.DelegationHistoryEntry{}, nil
	}

	ids := make([]uuid.UUID, len(ended))
	for i, g := range ended {
		ids[i] = g.ID
	}

	aggregates, err := s.repo.AggregateProxyApprovals(ctx, tenantID, ids)
	if err != nil {
		return nil, err
	}
	byGrant := make(map[uuid.UUID]repository.LedgerAggregate, len(aggregates))
	for _, a := range aggregates {
		byGrant[a.GrantID] = a
	}

	entries := make([]models.DelegationHistoryEntry, len(ended))
	for i, g := range ended {
		status := g.StatusAt(now)

		endedAt := models.EndOfDay(g.EndDate)
		if g.RevokedAt != nil {
			endedAt = *g.RevokedAt
		}

		agg := byGrant[g.ID]
		entries[i] = models.DelegationHistoryEntry{
			GrantID:             g.ID,
			DelegatorID:         g.DelegatorID,
			DelegatorName:       g.DelegatorName,
			DelegateID:          g.DelegateID,
			DelegateName:        g.DelegateName,
			Kind:                g.Kind,
			StartDate:           g.StartDate,
			EndDate:             g.EndDate,
			FinalStatus:         status,
			EndedAt:             endedAt,
			RevokeReason:        g.RevokeReason,
			RevokedBy:           g.RevokedBy,
			ApprovalsProcessed:  agg.Count,
			TotalApprovalAmount: agg.Total,
		}
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].EndedAt.After(entries[j].EndedAt)
	})

	return entries, nil
}

// SweepExpirations transitions lapsed grants to expired, appending one
// lifecycle audit entry per grant. Idempotent: the per-grant marker CAS
// ensures at most one sweep instance claims a given grant, and per-grant
// failures are logged and skipped rather than halting the sweep.
func (s *DelegationService) SweepExpirations(ctx context.Context, now time.Time) (int, error) {
	candidates, err := s.repo.ExpiryCandidates(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("failed to find expiry candidates: %w", err)
	}

	expired := 0
	for i := range candidates {
		grant := &candidates[i]

		if grant.StatusAt(now) != models.StatusExpired {
			continue
		}

		claimed, err := s.repo.ClaimExpiry(ctx, grant.ID, grant.StatusMarker)
		if err != nil {
			s.logger.WithField("grantId", grant.ID).WithError(err).Error("Failed to claim grant for expiry")
			continue
		}
		if !claimed {
			continue
		}

		detail := fmt.Sprintf("Delegation expired (validity window ended %s)", grant.EndDate.Format("2006-01-02"))
		s.recordAudit(ctx, grant, models.AuditActionExpired, SystemActor, detail, nil)

		s.publishEvent(events.EventDelegationExpired, grant, "")
		expired++
	}

	return expired, nil
}

// --- Helper Methods ---

func (s *DelegationService) getTenantGrant(ctx context.Context, tenantID string, grantID uuid.UUID) (*models.DelegationGrant, error) {
	grant, err := s.repo.GetGrantByID(ctx, grantID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrGrantNotFound
		}
		return nil, err
	}
	if grant.TenantID != tenantID {
		return nil, ErrGrantNotFound
	}
	return grant, nil
}

func (s *DelegationService) recordAudit(ctx context.Context, grant *models.DelegationGrant, action string, actor Actor, detail string, proxyApprovalID *uuid.UUID) {
	entry := &models.DelegationAuditEntry{
		TenantID:        grant.TenantID,
		GrantID:         grant.ID,
		Action:          action,
		ActorName:       actor.Name,
		Detail:          detail,
		ProxyApprovalID: proxyApprovalID,
	}
	if actor.ID != uuid.Nil {
		actorID := actor.ID
		entry.ActorID = &actorID
	}

	// Best effort - don't fail the operation if the audit write fails
	if err := s.repo.CreateAuditEntry(ctx, entry); err != nil {
		s.logger.WithFields(logrus.Fields{
			"grantId": grant.ID,
			"action":  action,
		}).WithError(err).Error("Failed to write audit entry")
	}
}

func (s *DelegationService) publishEvent(eventType string, grant *models.DelegationGrant, proxyApprovalID string) {
	if s.publisher == nil {
		return
	}

	s.publisher.Publish(&events.DelegationEvent{
		EventType:       eventType,
		TenantID:        grant.TenantID,
		GrantID:         grant.ID.String(),
		DelegatorID:     grant.DelegatorID.String(),
		DelegateID:      grant.DelegateID.String(),
		Kind:            grant.Kind,
		Status:          grant.StatusAt(s.now()),
		ProxyApprovalID: proxyApprovalID,
	})
}

func marshalLimits(limits *models.DelegationLimits) (datatypes.JSON, error) {
	if limits == nil {
		return nil, nil
	}
	data, err := json.Marshal(limits)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(data), nil
}

func partyLabel(name string, id uuid.UUID) string {
	if name != "" {
		return name
	}
	return id.String()
}
