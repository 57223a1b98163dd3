package services

import (
	"testing"

	"delegation-service/internal/models"
	"github.com/stretchr/testify/assert"
)

func floatPtr(v float64) *float64 { return &v }
func intPtr(v int) *int           { return &v }

func TestValidateLimits_NilLimitsAlwaysValid(t *testing.T) {
	result := ValidateLimits(nil, floatPtr(1000000), "contract", intPtr(99))

	assert.True(t, result.IsValid)
	assert.Empty(t, result.Errors)
	assert.Empty(t, result.Warnings)
}

func TestValidateLimits_AmountThresholds(t *testing.T) {
	limits := &models.DelegationLimits{MaxApprovalAmount: floatPtr(5000)}

	// Comfortably under the limit: clean pass
	result := ValidateLimits(limits, floatPtr(4000), "", nil)
	assert.True(t, result.IsValid)
	assert.Empty(t, result.Errors)
	assert.Empty(t, result.Warnings)

	// Within 10% of the limit: warning only
	result = ValidateLimits(limits, floatPtr(4600), "", nil)
	assert.True(t, result.IsValid)
	assert.Empty(t, result.Errors)
	assert.Len(t, result.Warnings, 1)

	// Over the limit: error, and no redundant proximity warning
	result = ValidateLimits(limits, floatPtr(5001), "", nil)
	assert.False(t, result.IsValid)
	assert.Len(t, result.Errors, 1)
	assert.Empty(t, result.Warnings)
}

func TestValidateLimits_ExactlyAtLimitPasses(t *testing.T) {
	limits := &models.DelegationLimits{MaxApprovalAmount: floatPtr(5000)}

	result := ValidateLimits(limits, floatPtr(5000), "", nil)

	// At the boundary the amount is allowed, but it trips the proximity warning
	assert.True(t, result.IsValid)
	assert.Empty(t, result.Errors)
	assert.Len(t, result.Warnings, 1)
}

func TestValidateLimits_NoAmountSkipsAmountRules(t *testing.T) {
	limits := &models.DelegationLimits{
		MaxApprovalAmount:         floatPtr(5000),
		RequireJustificationAbove: floatPtr(1000),
	}

	result := ValidateLimits(limits, nil, "", nil)

	assert.True(t, result.IsValid)
	assert.Empty(t, result.Warnings)
}

func TestValidateLimits_JustificationWarning(t *testing.T) {
	limits := &models.DelegationLimits{RequireJustificationAbove: floatPtr(1000)}

	result := ValidateLimits(limits, floatPtr(1500), "", nil)

	assert.True(t, result.IsValid)
	assert.Len(t, result.Warnings, 1)
	assert.Contains(t, result.Warnings[0], "justification")
}

func TestValidateLimits_ExcludedCategory(t *testing.T) {
	limits := &models.DelegationLimits{
		ExcludeCategories: []string{models.CategoryContract, models.CategoryPermit},
	}

	result := ValidateLimits(limits, nil, models.CategoryContract, nil)
	assert.False(t, result.IsValid)
	assert.Contains(t, result.Errors[0], "excluded")

	result = ValidateLimits(limits, nil, models.CategoryPurchase, nil)
	assert.True(t, result.IsValid)

	// An empty category never matches an exclusion
	result = ValidateLimits(limits, nil, "", nil)
	assert.True(t, result.IsValid)
}

func TestValidateLimits_TierLevel(t *testing.T) {
	limits := &models.DelegationLimits{MaxTierLevel: intPtr(2)}

	result := ValidateLimits(limits, nil, "", intPtr(3))
	assert.False(t, result.IsValid)
	assert.Contains(t, result.Errors[0], "tier level")

	result = ValidateLimits(limits, nil, "", intPtr(2))
	assert.True(t, result.IsValid)
}

func TestValidateLimits_HighPriorityAlwaysWarns(t *testing.T) {
	limits := &models.DelegationLimits{ExcludeHighPriority: true}

	result := ValidateLimits(limits, floatPtr(10), "", nil)

	assert.True(t, result.IsValid)
	assert.Len(t, result.Warnings, 1)
	assert.Contains(t, result.Warnings[0], "high-priority")
}

func TestValidateLimits_MultipleFindingsAccumulate(t *testing.T) {
	limits := &models.DelegationLimits{
		MaxApprovalAmount:         floatPtr(5000),
		RequireJustificationAbove: floatPtr(1000),
		ExcludeCategories:         []string{models.CategoryContract},
		MaxTierLevel:              intPtr(1),
		ExcludeHighPriority:       true,
	}

	result := ValidateLimits(limits, floatPtr(6000), models.CategoryContract, intPtr(5))

	assert.False(t, result.IsValid)
	assert.Len(t, result.Errors, 3)   // amount, category, tier
	assert.Len(t, result.Warnings, 2) // justification, high priority
}
