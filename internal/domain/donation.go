package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	MinDonationMl = 100
	MaxDonationMl = 500
)

// Donation links one `in` ledger entry to the subscription edge that allowed it.
type Donation struct {
	ID             uuid.UUID      `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	DonorID        uuid.UUID      `gorm:"column:donor_id;type:uuid;not null;index" json:"donor_id"`
	OrganisationID uuid.UUID      `gorm:"column:organisation_id;type:uuid;not null;index" json:"organisation_id"`
	SubscriptionID uuid.UUID      `gorm:"column:subscription_id;type:uuid;not null;index" json:"subscription_id"`
	LedgerEntryID  string         `gorm:"column:ledger_entry_id;type:varchar(26)" json:"ledger_entry_id"`
	BloodGroup     BloodGroup     `gorm:"column:blood_group;type:varchar(3);not null" json:"blood_group"`
	QuantityMl     int            `gorm:"column:quantity_ml;not null" json:"quantity_ml"`
	DonationType   DonationType   `gorm:"column:donation_type;type:varchar(20);not null" json:"donation_type"`
	Status         DonationStatus `gorm:"column:status;type:varchar(10);not null" json:"status"`
	DonationDate   time.Time      `gorm:"column:donation_date;not null;index" json:"donation_date"`
	Notes          string         `gorm:"column:notes" json:"notes,omitempty"`
	Screening      datatypes.JSON `gorm:"column:screening" json:"screening,omitempty"`
	IdempotencyKey *string        `gorm:"column:idempotency_key;uniqueIndex" json:"-"`
	RequestHash    string         `gorm:"column:request_hash" json:"-"`
	CreatedAt      time.Time      `gorm:"column:created_at" json:"created_at"`
	UpdatedAt      time.Time      `gorm:"column:updated_at" json:"updated_at"`
}

func (Donation) TableName() string {
	return "donations"
}

// BeforeCreate re-reads the subscription edge inside the writing transaction,
// so an unsubscribe that commits between the gate check and this insert still
// blocks the donation.
func (d *Donation) BeforeCreate(tx *gorm.DB) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	var n int64
	err := tx.Session(&gorm.Session{NewDB: true}).
		Model(&Relationship{}).
		Where("id = ? AND subject_id = ? AND object_id = ? AND status = ?", d.SubscriptionID, d.DonorID, d.OrganisationID, StatusActive).
		Count(&n).Error
	if err != nil {
		return err
	}
	if n == 0 {
		return NewError(ErrSubscriptionRequired, "Active subscription required to make a donation")
	}
	return nil
}

// BloodPressure is part of a pre-donation screening.
type BloodPressure struct {
	Systolic  int `json:"systolic"`
	Diastolic int `json:"diastolic"`
}

// Screening holds optional medical measurements taken before donating.
type Screening struct {
	Hemoglobin    *float64       `json:"hemoglobin,omitempty"`
	BloodPressure *BloodPressure `json:"blood_pressure,omitempty"`
	Temperature   *float64       `json:"temperature,omitempty"`
	Weight        *float64       `json:"weight,omitempty"`
}

func (s Screening) Validate() error {
	if s.Hemoglobin != nil {
		if *s.Hemoglobin < 12 {
			return InvalidRange("Hemoglobin too low")
		}
		if *s.Hemoglobin > 20 {
			return InvalidRange("Hemoglobin too high")
		}
	}
	if s.Temperature != nil {
		if *s.Temperature < 36 {
			return InvalidRange("Temperature too low")
		}
		if *s.Temperature > 37.5 {
			return InvalidRange("Temperature too high")
		}
	}
	if s.Weight != nil && *s.Weight < 50 {
		return InvalidRange("Weight too low for donation")
	}
	return nil
}

func (s Screening) JSON() datatypes.JSON {
	b, _ := json.Marshal(s)
	return datatypes.JSON(b)
}
