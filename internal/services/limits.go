package services

import (
	"fmt"

	"delegation-service/internal/models"
)

// ValidationResult is the outcome of checking a proposed approval action
// against a grant's limits. Warnings never block; IsValid is false only when
// at least one error fired.
type ValidationResult struct {
	IsValid  bool     `json:"isValid"`
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
}

// Amounts within this fraction of the maximum raise a warning before the
// hard limit is hit.
const amountWarningRatio = 0.9

// ValidateLimits checks a proposed approval action against a grant's limits.
// Pure and deterministic: no limits means always valid, and every rule is
// evaluated independently so multiple findings can fire at once.
func ValidateLimits(limits *models.DelegationLimits, amount *float64, category string, tierLevel *int) ValidationResult {
	result := ValidationResult{
		Errors:   []string{},
		Warnings: []string{},
	}

	if limits == nil {
		result.IsValid = true
		return result
	}

	if limits.MaxApprovalAmount != nil && amount != nil {
		max := *limits.MaxApprovalAmount
		switch {
		case *amount > max:
			result.Errors = append(result.Errors,
				fmt.Sprintf("amount %.2f exceeds the maximum approval amount of %.2f", *amount, max))
		case *amount > max*amountWarningRatio:
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("amount %.2f is within 10%% of the maximum approval amount of %.2f", *amount, max))
		}
	}

	if limits.RequireJustificationAbove != nil && amount != nil && *amount > *limits.RequireJustificationAbove {
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("amount %.2f exceeds %.2f and requires a justification comment", *amount, *limits.RequireJustificationAbove))
	}

	if limits.ExcludesCategory(category) {
		result.Errors = append(result.Errors,
			fmt.Sprintf("category %q is excluded from this delegation", category))
	}

	if limits.MaxTierLevel != nil && tierLevel != nil && *tierLevel > *limits.MaxTierLevel {
		result.Errors = append(result.Errors,
			fmt.Sprintf("tier level %d exceeds the maximum tier level of %d", *tierLevel, *limits.MaxTierLevel))
	}

	// The validator cannot observe item priority, so this rule stays
	// advisory: remind the caller whenever the restriction is set.
	if limits.ExcludeHighPriority {
		result.Warnings = append(result.Warnings,
			"high-priority items require the original approver and must not be approved by proxy")
	}

	result.IsValid = len(result.Errors) == 0
	return result
}
