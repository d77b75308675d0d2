package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	MinTotalCapacityMl = 100
	MaxTotalCapacityMl = 2000
	MaxNotesLength     = 500
)

// DonorCapacity tracks how much a donor has declared and how much is left.
// Version guards the conditional decrement in the capacity service.
type DonorCapacity struct {
	ID                  uuid.UUID         `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	DonorID             uuid.UUID         `gorm:"column:donor_id;type:uuid;not null;uniqueIndex" json:"donor_id"`
	BloodGroup          BloodGroup        `gorm:"column:blood_group;type:varchar(3);not null;index" json:"blood_group"`
	TotalCapacityMl     int               `gorm:"column:total_capacity_ml;not null" json:"total_capacity_ml"`
	AvailableCapacityMl int               `gorm:"column:available_capacity_ml;not null" json:"available_capacity_ml"`
	LastDonationAt      *time.Time        `gorm:"column:last_donation_at" json:"last_donation_at"`
	NextEligibleAt      *time.Time        `gorm:"column:next_eligible_at;index" json:"next_eligible_at"`
	DonationFrequency   DonationFrequency `gorm:"column:donation_frequency;type:varchar(10);not null" json:"donation_frequency"`
	HealthStatus        HealthStatus      `gorm:"column:health_status;type:varchar(10);not null" json:"health_status"`
	Restrictions        datatypes.JSON    `gorm:"column:restrictions" json:"restrictions"`
	Notes               string            `gorm:"column:notes" json:"notes"`
	IsActive            bool              `gorm:"column:is_active;not null;index" json:"is_active"`
	Version             int               `gorm:"column:version;not null" json:"-"`
	CreatedAt           time.Time         `gorm:"column:created_at" json:"created_at"`
	UpdatedAt           time.Time         `gorm:"column:updated_at" json:"updated_at"`
}

func (DonorCapacity) TableName() string {
	return "donor_capacities"
}

func (c *DonorCapacity) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}

// BeforeSave keeps 0 <= available <= total on every struct write.
func (c *DonorCapacity) BeforeSave(tx *gorm.DB) error {
	c.AvailableCapacityMl = ClampAvailable(c.AvailableCapacityMl, c.TotalCapacityMl)
	return nil
}

// ClampAvailable bounds available to [0, total].
func ClampAvailable(available, total int) int {
	if available > total {
		return total
	}
	if available < 0 {
		return 0
	}
	return available
}

// RestrictionsJSON encodes restrictions for the JSON column; nil becomes [].
func RestrictionsJSON(restrictions []string) datatypes.JSON {
	if restrictions == nil {
		restrictions = []string{}
	}
	b, _ := json.Marshal(restrictions)
	return datatypes.JSON(b)
}

// CapacityView is a DonorCapacity plus the values derived from it at read time.
type CapacityView struct {
	DonorCapacity
	DonatedMl             int  `json:"donated_ml"`
	UtilizationPercentage int  `json:"utilization_percentage"`
	IsEligible            bool `json:"is_eligible"`
	DaysUntilEligible     int  `json:"days_until_eligible"`
}

func NewCapacityView(c DonorCapacity, now time.Time) CapacityView {
	return CapacityView{
		DonorCapacity:         c,
		DonatedMl:             DonatedMl(c),
		UtilizationPercentage: UtilizationPercentage(c),
		IsEligible:            IsEligible(c, now),
		DaysUntilEligible:     DaysUntilEligible(c, now),
	}
}
