package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Party is a directory record owned by the identity service. The ledger only
// reads it to resolve roles and counterparty emails.
type Party struct {
	ID               uuid.UUID `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	Role             Role      `gorm:"column:role;type:varchar(20);not null;index" json:"role"`
	Name             string    `gorm:"column:name" json:"name,omitempty"`
	OrganisationName string    `gorm:"column:organisation_name" json:"organisation_name,omitempty"`
	HospitalName     string    `gorm:"column:hospital_name" json:"hospital_name,omitempty"`
	Email            string    `gorm:"column:email;not null;uniqueIndex" json:"email"`
	Phone            string    `gorm:"column:phone" json:"phone,omitempty"`
	Address          string    `gorm:"column:address" json:"address,omitempty"`
	BloodGroup       *string   `gorm:"column:blood_group;type:varchar(3)" json:"blood_group,omitempty"`
	CreatedAt        time.Time `gorm:"column:created_at" json:"created_at"`
	UpdatedAt        time.Time `gorm:"column:updated_at" json:"updated_at"`
}

func (Party) TableName() string {
	return "parties"
}

func (p *Party) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}

// DisplayName picks the name field that matches the party's role.
func (p Party) DisplayName() string {
	switch p.Role {
	case RoleOrganisation:
		return p.OrganisationName
	case RoleHospital:
		return p.HospitalName
	}
	return p.Name
}
