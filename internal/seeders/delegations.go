package seeders

import (
	"log"
	"time"

	"delegation-service/internal/models"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Fixed IDs so reseeding updates instead of duplicating.
var (
	seedDelegator = uuid.MustParse("5e3f1a62-0d3e-4a11-9c70-1f1d2b6a0001")
	seedDelegate  = uuid.MustParse("5e3f1a62-0d3e-4a11-9c70-1f1d2b6a0002")
	seedManager   = uuid.MustParse("5e3f1a62-0d3e-4a11-9c70-1f1d2b6a0003")

	seedGrantActive    = uuid.MustParse("8a9b0c1d-2e3f-4a5b-8c7d-9e0f1a2b0001")
	seedGrantScheduled = uuid.MustParse("8a9b0c1d-2e3f-4a5b-8c7d-9e0f1a2b0002")
)

// SeedDemoDelegations creates or updates a small set of demo grants under
// tenant 'demo'. Intended for local development only.
func SeedDemoDelegations(db *gorm.DB) error {
	today := models.StartOfDay(time.Now().UTC())

	grants := []models.DelegationGrant{
		{
			ID:            seedGrantActive,
			TenantID:      "demo",
			DelegatorID:   seedDelegator,
			DelegatorName: "Dana Reyes",
			DelegatorRole: "manager",
			DelegateID:    seedDelegate,
			DelegateName:  "Sam Okafor",
			DelegateRole:  "senior_agent",
			Kind:          models.KindFull,
			Reason:        "Annual leave",
			StartDate:     today.AddDate(0, 0, -3),
			EndDate:       today.AddDate(0, 0, 7),
			Limits: datatypes.JSON(`{
				"max_approval_amount": 5000,
				"require_justification_above": 1000,
				"allow_re_delegation": false
			}`),
			StatusMarker: models.StatusActive,
			CreatedBy:    seedDelegator,
			Version:      1,
		},
		{
			ID:            seedGrantScheduled,
			TenantID:      "demo",
			DelegatorID:   seedManager,
			DelegatorName: "Priya Natarajan",
			DelegatorRole: "admin",
			DelegateID:    seedDelegate,
			DelegateName:  "Sam Okafor",
			DelegateRole:  "senior_agent",
			Kind:          models.KindTemporary,
			Categories:    pq.StringArray{models.CategoryExpense, models.CategoryTimeOff},
			Reason:        "Conference travel",
			StartDate:     today.AddDate(0, 0, 14),
			EndDate:       today.AddDate(0, 0, 18),
			StatusMarker:  models.StatusScheduled,
			CreatedBy:     seedManager,
			Version:       1,
		},
	}

	for _, grant := range grants {
		result := db.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"start_date", "end_date", "limits", "reason", "updated_at"}),
		}).Create(&grant)

		if result.Error != nil {
			log.Printf("Failed to seed delegation %s: %v", grant.ID, result.Error)
			return result.Error
		}
		log.Printf("Seeded delegation: %s -> %s (tenant: %s)", grant.DelegatorName, grant.DelegateName, grant.TenantID)
	}

	return nil
}
