package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"gorm.io/gorm"
)

var errImmutableEntry = errors.New("ledger entries are append-only")

// LedgerEntry is one immutable movement of blood in or out of an organisation's stock.
// IDs are ULIDs so entries written in the same instant still sort by insertion.
type LedgerEntry struct {
	ID                string     `gorm:"column:id;type:varchar(26);primaryKey" json:"id"`
	OrganisationID    uuid.UUID  `gorm:"column:organisation_id;type:uuid;not null;index:idx_ledger_scope,priority:1" json:"organisation_id"`
	BloodGroup        BloodGroup `gorm:"column:blood_group;type:varchar(3);not null;index:idx_ledger_scope,priority:2" json:"blood_group"`
	Direction         Direction  `gorm:"column:direction;type:varchar(3);not null" json:"direction"`
	QuantityMl        int        `gorm:"column:quantity_ml;not null" json:"quantity_ml"`
	CounterpartyID    uuid.UUID  `gorm:"column:counterparty_id;type:uuid;not null;index" json:"counterparty_id"`
	CounterpartyEmail string     `gorm:"column:counterparty_email;not null" json:"counterparty_email"`
	DonationID        *uuid.UUID `gorm:"column:donation_id;type:uuid" json:"donation_id,omitempty"`
	CreatedAt         time.Time  `gorm:"column:created_at;not null;index" json:"created_at"`
}

func (LedgerEntry) TableName() string {
	return "ledger_entries"
}

func (e *LedgerEntry) BeforeCreate(tx *gorm.DB) error {
	if e.ID == "" {
		if e.CreatedAt.IsZero() {
			e.CreatedAt = time.Now().UTC()
		}
		id, err := ulid.New(ulid.Timestamp(e.CreatedAt), ulid.DefaultEntropy())
		if err != nil {
			return err
		}
		e.ID = id.String()
	}
	return nil
}

func (e *LedgerEntry) BeforeUpdate(tx *gorm.DB) error { return errImmutableEntry }

func (e *LedgerEntry) BeforeDelete(tx *gorm.DB) error { return errImmutableEntry }

// Balance is the derived stock for one (organisation, blood group) scope.
type Balance struct {
	BloodGroup BloodGroup `json:"blood_group"`
	TotalIn    int        `json:"total_in"`
	TotalOut   int        `json:"total_out"`
	Available  int        `json:"available"`
}
