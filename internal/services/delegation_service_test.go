package services

import (
	"context"
	"testing"
	"time"

	"delegation-service/internal/models"
	"delegation-service/internal/repository"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"gorm.io/datatypes"
)

// MockDelegationRepository is a mock implementation of DelegationRepositoryInterface
type MockDelegationRepository struct {
	mock.Mock
}

// Ensure MockDelegationRepository implements the interface
var _ repository.DelegationRepositoryInterface = (*MockDelegationRepository)(nil)

func (m *MockDelegationRepository) CreateGrant(ctx context.Context, grant *models.DelegationGrant) error {
	args := m.Called(ctx, grant)
	if args.Error(0) == nil && grant.ID == uuid.Nil {
		grant.ID = uuid.New()
		grant.CreatedAt = time.Now()
	}
	return args.Error(0)
}

func (m *MockDelegationRepository) GetGrantByID(ctx context.Context, id uuid.UUID) (*models.DelegationGrant, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.DelegationGrant), args.Error(1)
}

func (m *MockDelegationRepository) ListGrants(ctx context.Context, tenantID string, filter repository.GrantFilter, now time.Time) ([]models.DelegationGrant, int64, error) {
	args := m.Called(ctx, tenantID, filter, now)
	return args.Get(0).([]models.DelegationGrant), args.Get(1).(int64), args.Error(2)
}

func (m *MockDelegationRepository) UpdateGrantWithLock(ctx context.Context, grant *models.DelegationGrant) error {
	args := m.Called(ctx, grant)
	return args.Error(0)
}

func (m *MockDelegationRepository) RevokeGrant(ctx context.Context, id, revokedBy uuid.UUID, reason string, now time.Time) error {
	args := m.Called(ctx, id, revokedBy, reason, now)
	return args.Error(0)
}

func (m *MockDelegationRepository) DeleteGrant(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockDelegationRepository) ActiveGrantsByDelegate(ctx context.Context, tenantID string, delegateID uuid.UUID, now time.Time) ([]models.DelegationGrant, error) {
	args := m.Called(ctx, tenantID, delegateID, now)
	return args.Get(0).([]models.DelegationGrant), args.Error(1)
}

func (m *MockDelegationRepository) ActiveGrantsByDelegator(ctx context.Context, tenantID string, delegatorID uuid.UUID, now time.Time) ([]models.DelegationGrant, error) {
	args := m.Called(ctx, tenantID, delegatorID, now)
	return args.Get(0).([]models.DelegationGrant), args.Error(1)
}

func (m *MockDelegationRepository) OverlappingGrants(ctx context.Context, tenantID string, delegatorID uuid.UUID, start, end time.Time, excludeID *uuid.UUID, now time.Time) ([]models.DelegationGrant, error) {
	args := m.Called(ctx, tenantID, delegatorID, start, end, excludeID, now)
	return args.Get(0).([]models.DelegationGrant), args.Error(1)
}

func (m *MockDelegationRepository) ExpiryCandidates(ctx context.Context, now time.Time) ([]models.DelegationGrant, error) {
	args := m.Called(ctx, now)
	return args.Get(0).([]models.DelegationGrant), args.Error(1)
}

func (m *MockDelegationRepository) ClaimExpiry(ctx context.Context, id uuid.UUID, fromMarker string) (bool, error) {
	args := m.Called(ctx, id, fromMarker)
	return args.Bool(0), args.Error(1)
}

func (m *MockDelegationRepository) CreateProxyApproval(ctx context.Context, record *models.ProxyApprovalRecord) error {
	args := m.Called(ctx, record)
	if args.Error(0) == nil && record.ID == uuid.Nil {
		record.ID = uuid.New()
		record.CreatedAt = time.Now()
	}
	return args.Error(0)
}

func (m *MockDelegationRepository) ListProxyApprovalsByGrant(ctx context.Context, grantID uuid.UUID) ([]models.ProxyApprovalRecord, error) {
	args := m.Called(ctx, grantID)
	return args.Get(0).([]models.ProxyApprovalRecord), args.Error(1)
}

func (m *MockDelegationRepository) CountProxyApprovals(ctx context.Context, tenantID string) (int64, error) {
	args := m.Called(ctx, tenantID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockDelegationRepository) CountProxyApprovalsForDay(ctx context.Context, tenantID string, grantID uuid.UUID, day time.Time) (int64, error) {
	args := m.Called(ctx, tenantID, grantID, day)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockDelegationRepository) AggregateProxyApprovals(ctx context.Context, tenantID string, grantIDs []uuid.UUID) ([]repository.LedgerAggregate, error) {
	args := m.Called(ctx, tenantID, grantIDs)
	return args.Get(0).([]repository.LedgerAggregate), args.Error(1)
}

func (m *MockDelegationRepository) CreateAuditEntry(ctx context.Context, entry *models.DelegationAuditEntry) error {
	args := m.Called(ctx, entry)
	return args.Error(0)
}

func (m *MockDelegationRepository) AuditTrail(ctx context.Context, grantID uuid.UUID) ([]models.DelegationAuditEntry, error) {
	args := m.Called(ctx, grantID)
	return args.Get(0).([]models.DelegationAuditEntry), args.Error(1)
}

func (m *MockDelegationRepository) TopDelegators(ctx context.Context, tenantID string, limit int) ([]repository.PartyCount, error) {
	args := m.Called(ctx, tenantID, limit)
	return args.Get(0).([]repository.PartyCount), args.Error(1)
}

func (m *MockDelegationRepository) TopDelegates(ctx context.Context, tenantID string, limit int) ([]repository.PartyCount, error) {
	args := m.Called(ctx, tenantID, limit)
	return args.Get(0).([]repository.PartyCount), args.Error(1)
}

func (m *MockDelegationRepository) EligibleParties(ctx context.Context, tenantID string, excludeUser *uuid.UUID, search string) ([]repository.CandidateUser, error) {
	args := m.Called(ctx, tenantID, excludeUser, search)
	return args.Get(0).([]repository.CandidateUser), args.Error(1)
}

// Fixed clock for deterministic lifecycle tests.
var testNow = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

func newTestService(repo repository.DelegationRepositoryInterface) *DelegationService {
	svc := NewDelegationService(repo, nil, nil)
	svc.SetClock(func() time.Time { return testNow })
	return svc
}

func day(offset int) time.Time {
	return models.StartOfDay(testNow).AddDate(0, 0, offset)
}

// Helper function to create a grant active around testNow
func createTestGrant(tenantID string, delegatorID, delegateID uuid.UUID) *models.DelegationGrant {
	return &models.DelegationGrant{
		ID:            uuid.New(),
		TenantID:      tenantID,
		DelegatorID:   delegatorID,
		DelegatorName: "Dana Reyes",
		DelegateID:    delegateID,
		DelegateName:  "Sam Okafor",
		Kind:          models.KindFull,
		StartDate:     day(-5),
		EndDate:       day(5),
		StatusMarker:  models.StatusActive,
		Version:       1,
	}
}

// ===========================================
// Create Grant Tests
// ===========================================

func TestCreateGrant_Success(t *testing.T) {
	ctx := context.Background()
	tenantID := "tenant-123"
	actor := Actor{ID: uuid.New(), Name: "Dana Reyes", Role: "manager"}

	mockRepo := new(MockDelegationRepository)
	service := newTestService(mockRepo)

	mockRepo.On("OverlappingGrants", ctx, tenantID, actor.ID, day(0), day(7), (*uuid.UUID)(nil), testNow).
		Return([]models.DelegationGrant{}, nil)
	mockRepo.On("CreateGrant", ctx, mock.AnythingOfType("*models.DelegationGrant")).
		Return(nil)
	mockRepo.On("CreateAuditEntry", ctx, mock.AnythingOfType("*models.DelegationAuditEntry")).
		Return(nil)

	input := CreateGrantInput{
		Delegator: PartyInput{ID: actor.ID, Name: actor.Name},
		Delegate:  PartyInput{ID: uuid.New(), Name: "Sam Okafor"},
		StartDate: day(0),
		EndDate:   day(7),
		Reason:    "Annual leave",
	}

	grant, conflicts, err := service.CreateGrant(ctx, tenantID, actor, input)

	assert.NoError(t, err)
	assert.NotNil(t, grant)
	assert.Empty(t, conflicts)
	assert.Equal(t, models.KindFull, grant.Kind)
	assert.Equal(t, models.StatusActive, grant.StatusAt(testNow))
	assert.Equal(t, actor.ID, grant.CreatedBy)
	mockRepo.AssertExpectations(t)
}

func TestCreateGrant_InvalidWindow(t *testing.T) {
	ctx := context.Background()
	actor := Actor{ID: uuid.New()}

	mockRepo := new(MockDelegationRepository)
	service := newTestService(mockRepo)

	input := CreateGrantInput{
		Delegator: PartyInput{ID: actor.ID},
		Delegate:  PartyInput{ID: uuid.New()},
		StartDate: day(7),
		EndDate:   day(0),
	}

	_, _, err := service.CreateGrant(ctx, "tenant-123", actor, input)

	assert.ErrorIs(t, err, ErrInvalidWindow)
	mockRepo.AssertNotCalled(t, "CreateGrant")
}

func TestCreateGrant_SingleDayWindowAllowed(t *testing.T) {
	ctx := context.Background()
	tenantID := "tenant-123"
	actor := Actor{ID: uuid.New()}

	mockRepo := new(MockDelegationRepository)
	service := newTestService(mockRepo)

	mockRepo.On("OverlappingGrants", ctx, tenantID, actor.ID, day(0), day(0), (*uuid.UUID)(nil), testNow).
		Return([]models.DelegationGrant{}, nil)
	mockRepo.On("CreateGrant", ctx, mock.AnythingOfType("*models.DelegationGrant")).Return(nil)
	mockRepo.On("CreateAuditEntry", ctx, mock.AnythingOfType("*models.DelegationAuditEntry")).Return(nil)

	input := CreateGrantInput{
		Delegator: PartyInput{ID: actor.ID},
		Delegate:  PartyInput{ID: uuid.New()},
		StartDate: day(0),
		EndDate:   day(0),
	}

	grant, _, err := service.CreateGrant(ctx, tenantID, actor, input)

	assert.NoError(t, err)
	assert.Equal(t, models.StatusActive, grant.StatusAt(testNow))
}

func TestCreateGrant_SelfDelegation(t *testing.T) {
	ctx := context.Background()
	actor := Actor{ID: uuid.New()}

	mockRepo := new(MockDelegationRepository)
	service := newTestService(mockRepo)

	input := CreateGrantInput{
		Delegator: PartyInput{ID: actor.ID},
		Delegate:  PartyInput{ID: actor.ID},
		StartDate: day(0),
		EndDate:   day(7),
	}

	_, _, err := service.CreateGrant(ctx, "tenant-123", actor, input)

	assert.ErrorIs(t, err, ErrSelfDelegation)
}

func TestCreateGrant_ReturnsConflictsButStillCreates(t *testing.T) {
	ctx := context.Background()
	tenantID := "tenant-123"
	actor := Actor{ID: uuid.New()}

	mockRepo := new(MockDelegationRepository)
	service := newTestService(mockRepo)

	existing := *createTestGrant(tenantID, actor.ID, uuid.New())
	mockRepo.On("OverlappingGrants", ctx, tenantID, actor.ID, day(0), day(7), (*uuid.UUID)(nil), testNow).
		Return([]models.DelegationGrant{existing}, nil)
	mockRepo.On("CreateGrant", ctx, mock.AnythingOfType("*models.DelegationGrant")).Return(nil)
	mockRepo.On("CreateAuditEntry", ctx, mock.AnythingOfType("*models.DelegationAuditEntry")).Return(nil)

	input := CreateGrantInput{
		Delegator: PartyInput{ID: actor.ID},
		Delegate:  PartyInput{ID: uuid.New()},
		StartDate: day(0),
		EndDate:   day(7),
	}

	grant, conflicts, err := service.CreateGrant(ctx, tenantID, actor, input)

	// Overlaps are advisory, never blocking
	assert.NoError(t, err)
	assert.NotNil(t, grant)
	assert.Len(t, conflicts, 1)
	assert.Equal(t, existing.ID, conflicts[0].ID)
	mockRepo.AssertExpectations(t)
}

// ===========================================
// Revoke Grant Tests
// ===========================================

func TestRevokeGrant_Success(t *testing.T) {
	ctx := context.Background()
	tenantID := "tenant-123"
	actor := Actor{ID: uuid.New(), Name: "Dana Reyes"}

	mockRepo := new(MockDelegationRepository)
	service := newTestService(mockRepo)

	grant := createTestGrant(tenantID, actor.ID, uuid.New())
	revoked := *grant
	revokedAt := testNow
	revoked.RevokedAt = &revokedAt
	revoked.RevokedBy = &actor.ID
	revoked.RevokeReason = "returned early"

	mockRepo.On("GetGrantByID", ctx, grant.ID).Return(grant, nil).Once()
	mockRepo.On("RevokeGrant", ctx, grant.ID, actor.ID, "returned early", testNow).Return(nil)
	mockRepo.On("GetGrantByID", ctx, grant.ID).Return(&revoked, nil).Once()
	mockRepo.On("CreateAuditEntry", ctx, mock.AnythingOfType("*models.DelegationAuditEntry")).Return(nil)

	result, err := service.RevokeGrant(ctx, tenantID, grant.ID, actor, "returned early")

	assert.NoError(t, err)
	assert.Equal(t, models.StatusRevoked, result.StatusAt(testNow))
	mockRepo.AssertExpectations(t)
}

func TestRevokeGrant_AlreadyRevoked(t *testing.T) {
	ctx := context.Background()
	tenantID := "tenant-123"
	actor := Actor{ID: uuid.New()}

	mockRepo := new(MockDelegationRepository)
	service := newTestService(mockRepo)

	grant := createTestGrant(tenantID, actor.ID, uuid.New())
	revokedAt := testNow.Add(-time.Hour)
	grant.RevokedAt = &revokedAt

	mockRepo.On("GetGrantByID", ctx, grant.ID).Return(grant, nil)

	_, err := service.RevokeGrant(ctx, tenantID, grant.ID, actor, "")

	assert.ErrorIs(t, err, ErrAlreadyTerminal)
	mockRepo.AssertNotCalled(t, "RevokeGrant")
}

func TestRevokeGrant_AlreadyExpired(t *testing.T) {
	ctx := context.Background()
	tenantID := "tenant-123"
	actor := Actor{ID: uuid.New()}

	mockRepo := new(MockDelegationRepository)
	service := newTestService(mockRepo)

	grant := createTestGrant(tenantID, actor.ID, uuid.New())
	grant.StartDate = day(-10)
	grant.EndDate = day(-2)

	mockRepo.On("GetGrantByID", ctx, grant.ID).Return(grant, nil)

	_, err := service.RevokeGrant(ctx, tenantID, grant.ID, actor, "")

	assert.ErrorIs(t, err, ErrAlreadyTerminal)
}

func TestRevokeGrant_LosesRaceToConcurrentRevoke(t *testing.T) {
	ctx := context.Background()
	tenantID := "tenant-123"
	actor := Actor{ID: uuid.New()}

	mockRepo := new(MockDelegationRepository)
	service := newTestService(mockRepo)

	grant := createTestGrant(tenantID, actor.ID, uuid.New())

	mockRepo.On("GetGrantByID", ctx, grant.ID).Return(grant, nil)
	mockRepo.On("RevokeGrant", ctx, grant.ID, actor.ID, "", testNow).
		Return(repository.ErrNotFound)

	_, err := service.RevokeGrant(ctx, tenantID, grant.ID, actor, "")

	assert.ErrorIs(t, err, ErrAlreadyTerminal)
}

func TestRevokeGrant_NotFound(t *testing.T) {
	ctx := context.Background()
	id := uuid.New()

	mockRepo := new(MockDelegationRepository)
	service := newTestService(mockRepo)

	mockRepo.On("GetGrantByID", ctx, id).Return(nil, repository.ErrNotFound)

	_, err := service.RevokeGrant(ctx, "tenant-123", id, Actor{ID: uuid.New()}, "")

	assert.ErrorIs(t, err, ErrGrantNotFound)
}

// ===========================================
// Update Grant Tests
// ===========================================

func TestUpdateGrant_TerminalGrantRejected(t *testing.T) {
	ctx := context.Background()
	tenantID := "tenant-123"

	mockRepo := new(MockDelegationRepository)
	service := newTestService(mockRepo)

	grant := createTestGrant(tenantID, uuid.New(), uuid.New())
	revokedAt := testNow.Add(-time.Minute)
	grant.RevokedAt = &revokedAt

	mockRepo.On("GetGrantByID", ctx, grant.ID).Return(grant, nil)

	reason := "changed"
	_, err := service.UpdateGrant(ctx, tenantID, grant.ID, Actor{ID: uuid.New()}, UpdateGrantInput{Reason: &reason})

	assert.ErrorIs(t, err, ErrAlreadyTerminal)
	mockRepo.AssertNotCalled(t, "UpdateGrantWithLock")
}

func TestUpdateGrant_WindowValidatedAfterPatch(t *testing.T) {
	ctx := context.Background()
	tenantID := "tenant-123"

	mockRepo := new(MockDelegationRepository)
	service := newTestService(mockRepo)

	grant := createTestGrant(tenantID, uuid.New(), uuid.New())
	mockRepo.On("GetGrantByID", ctx, grant.ID).Return(grant, nil)

	badEnd := day(-10)
	_, err := service.UpdateGrant(ctx, tenantID, grant.ID, Actor{ID: uuid.New()}, UpdateGrantInput{EndDate: &badEnd})

	assert.ErrorIs(t, err, ErrInvalidWindow)
}

func TestUpdateGrant_Success(t *testing.T) {
	ctx := context.Background()
	tenantID := "tenant-123"
	actor := Actor{ID: uuid.New(), Name: "Dana Reyes"}

	mockRepo := new(MockDelegationRepository)
	service := newTestService(mockRepo)

	grant := createTestGrant(tenantID, actor.ID, uuid.New())

	mockRepo.On("GetGrantByID", ctx, grant.ID).Return(grant, nil)
	mockRepo.On("UpdateGrantWithLock", ctx, mock.AnythingOfType("*models.DelegationGrant")).Return(nil)
	mockRepo.On("CreateAuditEntry", ctx, mock.MatchedBy(func(e *models.DelegationAuditEntry) bool {
		return e.Action == models.AuditActionModified
	})).Return(nil)

	newEnd := day(10)
	updated, err := service.UpdateGrant(ctx, tenantID, grant.ID, actor, UpdateGrantInput{EndDate: &newEnd})

	assert.NoError(t, err)
	assert.Equal(t, day(10), updated.EndDate)
	mockRepo.AssertExpectations(t)
}

// ===========================================
// Re-delegation Tests
// ===========================================

func TestCheckReDelegation_NoGrants(t *testing.T) {
	ctx := context.Background()
	tenantID := "tenant-123"
	candidate := uuid.New()

	mockRepo := new(MockDelegationRepository)
	service := newTestService(mockRepo)

	mockRepo.On("ActiveGrantsByDelegate", ctx, tenantID, candidate, testNow).
		Return([]models.DelegationGrant{}, nil)
	mockRepo.On("ActiveGrantsByDelegator", ctx, tenantID, candidate, testNow).
		Return([]models.DelegationGrant{}, nil)

	result, err := service.CheckReDelegation(ctx, tenantID, candidate)

	assert.NoError(t, err)
	assert.True(t, result.CanReceive)
	assert.False(t, result.HasActiveDelegation)
	assert.Empty(t, result.Reason)
}

func TestCheckReDelegation_BlockedByChain(t *testing.T) {
	ctx := context.Background()
	tenantID := "tenant-123"
	candidate := uuid.New()
	upstream := uuid.New()

	mockRepo := new(MockDelegationRepository)
	service := newTestService(mockRepo)

	// Candidate holds a no-re-delegation grant from upstream, and upstream is
	// themselves operating on delegated authority.
	inbound := *createTestGrant(tenantID, upstream, candidate)
	inbound.Limits = datatypes.JSON(`{"allow_re_delegation": false}`)
	chain := *createTestGrant(tenantID, uuid.New(), upstream)

	mockRepo.On("ActiveGrantsByDelegate", ctx, tenantID, candidate, testNow).
		Return([]models.DelegationGrant{inbound}, nil)
	mockRepo.On("ActiveGrantsByDelegate", ctx, tenantID, upstream, testNow).
		Return([]models.DelegationGrant{chain}, nil)

	result, err := service.CheckReDelegation(ctx, tenantID, candidate)

	assert.NoError(t, err)
	assert.False(t, result.CanReceive)
	assert.True(t, result.HasActiveDelegation)
	assert.Equal(t, inbound.ID, result.ExistingGrant.ID)
	assert.Contains(t, result.Reason, "does not allow re-delegation")
}

func TestCheckReDelegation_InboundWithoutChainAllowed(t *testing.T) {
	ctx := context.Background()
	tenantID := "tenant-123"
	candidate := uuid.New()
	upstream := uuid.New()

	mockRepo := new(MockDelegationRepository)
	service := newTestService(mockRepo)

	inbound := *createTestGrant(tenantID, upstream, candidate)
	inbound.Limits = datatypes.JSON(`{"allow_re_delegation": false}`)

	mockRepo.On("ActiveGrantsByDelegate", ctx, tenantID, candidate, testNow).
		Return([]models.DelegationGrant{inbound}, nil)
	// Upstream holds their authority directly, so the restriction has no chain to bite on.
	mockRepo.On("ActiveGrantsByDelegate", ctx, tenantID, upstream, testNow).
		Return([]models.DelegationGrant{}, nil)
	mockRepo.On("ActiveGrantsByDelegator", ctx, tenantID, candidate, testNow).
		Return([]models.DelegationGrant{}, nil)

	result, err := service.CheckReDelegation(ctx, tenantID, candidate)

	assert.NoError(t, err)
	assert.True(t, result.CanReceive)
	assert.True(t, result.HasActiveDelegation)
}

func TestCheckReDelegation_OutgoingGrantWarnsButAllows(t *testing.T) {
	ctx := context.Background()
	tenantID := "tenant-123"
	candidate := uuid.New()

	mockRepo := new(MockDelegationRepository)
	service := newTestService(mockRepo)

	outgoing := *createTestGrant(tenantID, candidate, uuid.New())

	mockRepo.On("ActiveGrantsByDelegate", ctx, tenantID, candidate, testNow).
		Return([]models.DelegationGrant{}, nil)
	mockRepo.On("ActiveGrantsByDelegator", ctx, tenantID, candidate, testNow).
		Return([]models.DelegationGrant{outgoing}, nil)

	result, err := service.CheckReDelegation(ctx, tenantID, candidate)

	assert.NoError(t, err)
	assert.True(t, result.CanReceive)
	assert.Contains(t, result.Reason, "out of office")
}

// ===========================================
// Proxy Approval Tests
// ===========================================

func TestRecordProxyApproval_AppendsLedgerAndAudit(t *testing.T) {
	ctx := context.Background()
	tenantID := "tenant-123"

	mockRepo := new(MockDelegationRepository)
	service := newTestService(mockRepo)

	grant := createTestGrant(tenantID, uuid.New(), uuid.New())
	amount := 1200.0

	mockRepo.On("GetGrantByID", ctx, grant.ID).Return(grant, nil)
	mockRepo.On("CreateProxyApproval", ctx, mock.MatchedBy(func(r *models.ProxyApprovalRecord) bool {
		return r.GrantID == grant.ID &&
			r.OriginalApproverID == grant.DelegatorID &&
			r.ProxyApproverID == grant.DelegateID
	})).Return(nil)
	mockRepo.On("CreateAuditEntry", ctx, mock.MatchedBy(func(e *models.DelegationAuditEntry) bool {
		return e.Action == models.AuditActionApprovalUsed &&
			e.ProxyApprovalID != nil &&
			e.GrantID == grant.ID
	})).Return(nil)

	record, err := service.RecordProxyApproval(ctx, tenantID, RecordProxyApprovalInput{
		GrantID:           grant.ID,
		ApprovalID:        uuid.New(),
		ApprovalReference: "PO-1042",
		Action:            models.ProxyActionApproved,
		Amount:            &amount,
	})

	assert.NoError(t, err)
	assert.NotNil(t, record)
	assert.Equal(t, grant.DelegatorName, record.OriginalApproverName)
	mockRepo.AssertExpectations(t)
}

func TestRecordProxyApproval_InvalidAction(t *testing.T) {
	ctx := context.Background()

	mockRepo := new(MockDelegationRepository)
	service := newTestService(mockRepo)

	_, err := service.RecordProxyApproval(ctx, "tenant-123", RecordProxyApprovalInput{
		GrantID:    uuid.New(),
		ApprovalID: uuid.New(),
		Action:     "escalated",
	})

	assert.ErrorIs(t, err, ErrInvalidProxyAction)
	mockRepo.AssertNotCalled(t, "CreateProxyApproval")
}

func TestRecordProxyApproval_GrantMissing(t *testing.T) {
	ctx := context.Background()
	grantID := uuid.New()

	mockRepo := new(MockDelegationRepository)
	service := newTestService(mockRepo)

	mockRepo.On("GetGrantByID", ctx, grantID).Return(nil, repository.ErrNotFound)

	_, err := service.RecordProxyApproval(ctx, "tenant-123", RecordProxyApprovalInput{
		GrantID:    grantID,
		ApprovalID: uuid.New(),
		Action:     models.ProxyActionApproved,
	})

	assert.ErrorIs(t, err, ErrGrantNotFound)
}

// ===========================================
// Validate Grant Limits Tests
// ===========================================

func TestValidateGrantLimits_DailyLimitReached(t *testing.T) {
	ctx := context.Background()
	tenantID := "tenant-123"

	mockRepo := new(MockDelegationRepository)
	service := newTestService(mockRepo)

	grant := createTestGrant(tenantID, uuid.New(), uuid.New())
	grant.Limits = datatypes.JSON(`{"max_approvals_per_day": 3}`)

	mockRepo.On("GetGrantByID", ctx, grant.ID).Return(grant, nil)
	mockRepo.On("CountProxyApprovalsForDay", ctx, tenantID, grant.ID, testNow).
		Return(int64(3), nil)

	result, err := service.ValidateGrantLimits(ctx, tenantID, grant.ID, nil, "", nil)

	assert.NoError(t, err)
	assert.False(t, result.IsValid)
	assert.Contains(t, result.Errors[0], "daily approval limit")
}

func TestValidateGrantLimits_NoLimits(t *testing.T) {
	ctx := context.Background()
	tenantID := "tenant-123"

	mockRepo := new(MockDelegationRepository)
	service := newTestService(mockRepo)

	grant := createTestGrant(tenantID, uuid.New(), uuid.New())

	mockRepo.On("GetGrantByID", ctx, grant.ID).Return(grant, nil)

	amount := 99999.0
	result, err := service.ValidateGrantLimits(ctx, tenantID, grant.ID, &amount, "purchase", nil)

	assert.NoError(t, err)
	assert.True(t, result.IsValid)
	assert.Empty(t, result.Errors)
	assert.Empty(t, result.Warnings)
	mockRepo.AssertNotCalled(t, "CountProxyApprovalsForDay")
}

// ===========================================
// History Tests
// ===========================================

func TestHistory_AggregatesLedgerPerGrant(t *testing.T) {
	ctx := context.Background()
	tenantID := "tenant-123"

	mockRepo := new(MockDelegationRepository)
	service := newTestService(mockRepo)

	expired := *createTestGrant(tenantID, uuid.New(), uuid.New())
	expired.StartDate = day(-30)
	expired.EndDate = day(-20)

	revoked := *createTestGrant(tenantID, uuid.New(), uuid.New())
	revokedAt := testNow.Add(-48 * time.Hour)
	revoked.RevokedAt = &revokedAt
	revoked.RevokeReason = "returned early"

	quiet := *createTestGrant(tenantID, uuid.New(), uuid.New())
	quiet.StartDate = day(-60)
	quiet.EndDate = day(-50)

	mockRepo.On("ListGrants", ctx, tenantID, mock.MatchedBy(func(f repository.GrantFilter) bool {
		return f.Status == models.StatusExpired
	}), testNow).Return([]models.DelegationGrant{expired, quiet}, int64(2), nil)
	mockRepo.On("ListGrants", ctx, tenantID, mock.MatchedBy(func(f repository.GrantFilter) bool {
		return f.Status == models.StatusRevoked
	}), testNow).Return([]models.DelegationGrant{revoked}, int64(1), nil)

	mockRepo.On("AggregateProxyApprovals", ctx, tenantID, mock.AnythingOfType("[]uuid.UUID")).
		Return([]repository.LedgerAggregate{
			{GrantID: expired.ID, Count: 1, Total: 100},
			{GrantID: revoked.ID, Count: 2, Total: 250},
			// quiet grant has no ledger rows at all
		}, nil)

	entries, err := service.History(ctx, tenantID, HistoryFilter{})

	assert.NoError(t, err)
	assert.Len(t, entries, 3)

	byGrant := make(map[uuid.UUID]models.DelegationHistoryEntry)
	var totalCount int64
	var totalAmount float64
	for _, e := range entries {
		byGrant[e.GrantID] = e
		totalCount += e.ApprovalsProcessed
		totalAmount += e.TotalApprovalAmount
	}

	assert.Equal(t, int64(3), totalCount)
	assert.Equal(t, 350.0, totalAmount)
	assert.Equal(t, int64(0), byGrant[quiet.ID].ApprovalsProcessed)
	assert.Equal(t, 0.0, byGrant[quiet.ID].TotalApprovalAmount)

	assert.Equal(t, models.StatusExpired, byGrant[expired.ID].FinalStatus)
	assert.Equal(t, models.StatusRevoked, byGrant[revoked.ID].FinalStatus)
	assert.Equal(t, revokedAt, byGrant[revoked.ID].EndedAt)
	assert.Equal(t, models.EndOfDay(expired.EndDate), byGrant[expired.ID].EndedAt)
}

// ===========================================
// Sweep Tests
// ===========================================

func TestSweepExpirations_ClaimsEachCandidateOnce(t *testing.T) {
	ctx := context.Background()

	mockRepo := new(MockDelegationRepository)
	service := newTestService(mockRepo)

	lapsedA := *createTestGrant("tenant-123", uuid.New(), uuid.New())
	lapsedA.StartDate = day(-10)
	lapsedA.EndDate = day(-1)
	lapsedB := *createTestGrant("tenant-456", uuid.New(), uuid.New())
	lapsedB.StartDate = day(-20)
	lapsedB.EndDate = day(-5)

	mockRepo.On("ExpiryCandidates", ctx, testNow).
		Return([]models.DelegationGrant{lapsedA, lapsedB}, nil)
	mockRepo.On("ClaimExpiry", ctx, lapsedA.ID, models.StatusActive).Return(true, nil)
	mockRepo.On("ClaimExpiry", ctx, lapsedB.ID, models.StatusActive).Return(true, nil)
	mockRepo.On("CreateAuditEntry", ctx, mock.MatchedBy(func(e *models.DelegationAuditEntry) bool {
		return e.Action == models.AuditActionExpired && e.ActorName == models.SystemActorName
	})).Return(nil).Twice()

	expired, err := service.SweepExpirations(ctx, testNow)

	assert.NoError(t, err)
	assert.Equal(t, 2, expired)
	mockRepo.AssertExpectations(t)
}

func TestSweepExpirations_SecondRunIsNoOp(t *testing.T) {
	ctx := context.Background()

	mockRepo := new(MockDelegationRepository)
	service := newTestService(mockRepo)

	mockRepo.On("ExpiryCandidates", ctx, testNow).
		Return([]models.DelegationGrant{}, nil)

	expired, err := service.SweepExpirations(ctx, testNow)

	assert.NoError(t, err)
	assert.Equal(t, 0, expired)
	mockRepo.AssertNotCalled(t, "ClaimExpiry")
	mockRepo.AssertNotCalled(t, "CreateAuditEntry")
}

func TestSweepExpirations_SkipsLostClaims(t *testing.T) {
	ctx := context.Background()

	mockRepo := new(MockDelegationRepository)
	service := newTestService(mockRepo)

	lapsed := *createTestGrant("tenant-123", uuid.New(), uuid.New())
	lapsed.StartDate = day(-10)
	lapsed.EndDate = day(-1)

	mockRepo.On("ExpiryCandidates", ctx, testNow).
		Return([]models.DelegationGrant{lapsed}, nil)
	// Another instance already claimed it.
	mockRepo.On("ClaimExpiry", ctx, lapsed.ID, models.StatusActive).Return(false, nil)

	expired, err := service.SweepExpirations(ctx, testNow)

	assert.NoError(t, err)
	assert.Equal(t, 0, expired)
	mockRepo.AssertNotCalled(t, "CreateAuditEntry")
}

// ===========================================
// Stats Tests
// ===========================================

func TestGetStats(t *testing.T) {
	ctx := context.Background()
	tenantID := "tenant-123"

	mockRepo := new(MockDelegationRepository)
	service := newTestService(mockRepo)

	totals := map[string]int64{
		"":                     10,
		models.StatusActive:    4,
		models.StatusScheduled: 2,
		models.StatusExpired:   3,
		models.StatusRevoked:   1,
	}
	for status, total := range totals {
		status, total := status, total
		mockRepo.On("ListGrants", ctx, tenantID, mock.MatchedBy(func(f repository.GrantFilter) bool {
			return f.Status == status && f.Limit == 1
		}), testNow).Return([]models.DelegationGrant{}, total, nil)
	}

	mockRepo.On("CountProxyApprovals", ctx, tenantID).Return(int64(42), nil)
	mockRepo.On("TopDelegators", ctx, tenantID, 5).Return([]repository.PartyCount{}, nil)
	mockRepo.On("TopDelegates", ctx, tenantID, 5).Return([]repository.PartyCount{}, nil)

	stats, err := service.GetStats(ctx, tenantID)

	assert.NoError(t, err)
	assert.Equal(t, int64(10), stats.Total)
	assert.Equal(t, int64(4), stats.Active)
	assert.Equal(t, int64(2), stats.Scheduled)
	assert.Equal(t, int64(3), stats.Expired)
	assert.Equal(t, int64(1), stats.Revoked)
	assert.Equal(t, int64(42), stats.ApprovalsViaDelegation)
}

// ===========================================
// Tenant Isolation Tests
// ===========================================

func TestGetGrant_WrongTenant(t *testing.T) {
	ctx := context.Background()

	mockRepo := new(MockDelegationRepository)
	service := newTestService(mockRepo)

	grant := createTestGrant("tenant-123", uuid.New(), uuid.New())
	mockRepo.On("GetGrantByID", ctx, grant.ID).Return(grant, nil)

	_, err := service.GetGrant(ctx, "tenant-456", grant.ID)

	assert.ErrorIs(t, err, ErrGrantNotFound)
}
