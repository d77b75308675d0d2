package capacity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"bloodbank-ledger/internal/application/directory"
	"bloodbank-ledger/internal/domain"
	"bloodbank-ledger/internal/infrastructure/locks"
	"bloodbank-ledger/internal/infrastructure/metrics"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

type Service struct {
	DB        *gorm.DB
	Directory *directory.Service
	Locks     locks.Locker
	Metrics   *metrics.Metrics
	Now       func() time.Time
}

// Settings is a donor's declared capacity. Empty optional fields keep the
// stored value on update and take defaults on create.
type Settings struct {
	BloodGroup        string
	TotalCapacityMl   int
	DonationFrequency domain.DonationFrequency
	HealthStatus      domain.HealthStatus
	Restrictions      []string
	Notes             *string
	IsActive          *bool
}

// LockKey serializes writes to one donor's capacity record.
func LockKey(donorID uuid.UUID) string {
	return "capacity:" + donorID.String()
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func (s Settings) validate() (domain.BloodGroup, error) {
	if s.TotalCapacityMl < domain.MinTotalCapacityMl || s.TotalCapacityMl > domain.MaxTotalCapacityMl {
		return "", domain.InvalidRange(fmt.Sprintf("Total capacity must be between %dml and %dml", domain.MinTotalCapacityMl, domain.MaxTotalCapacityMl))
	}
	group, err := domain.ParseBloodGroup(s.BloodGroup)
	if err != nil {
		return "", err
	}
	if s.DonationFrequency != "" && !s.DonationFrequency.Valid() {
		return "", domain.InvalidRange("Donation frequency must be monthly, quarterly, biannual or annual")
	}
	if s.HealthStatus != "" && !s.HealthStatus.Valid() {
		return "", domain.InvalidRange("Health status must be excellent, good, fair or restricted")
	}
	if s.Notes != nil && len(*s.Notes) > domain.MaxNotesLength {
		return "", domain.InvalidRange(fmt.Sprintf("Notes cannot exceed %d characters", domain.MaxNotesLength))
	}
	return group, nil
}

// SetCapacity creates the donor's record or updates it. On update the amount
// already donated is carried over to the new total.
func (s *Service) SetCapacity(ctx context.Context, donorID uuid.UUID, in Settings) (domain.CapacityView, error) {
	group, err := in.validate()
	if err != nil {
		return domain.CapacityView{}, err
	}
	if _, err := s.Directory.ResolveRole(ctx, donorID, domain.RoleDonor); err != nil {
		return domain.CapacityView{}, err
	}
	release, err := s.acquire(ctx, donorID)
	if err != nil {
		return domain.CapacityView{}, err
	}
	defer release()

	var c domain.DonorCapacity
	created := false
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Where("donor_id = ?", donorID).First(&c).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			created = true
			c = domain.DonorCapacity{
				DonorID:             donorID,
				TotalCapacityMl:     in.TotalCapacityMl,
				AvailableCapacityMl: in.TotalCapacityMl,
				DonationFrequency:   domain.FrequencyQuarterly,
				HealthStatus:        domain.HealthGood,
				Restrictions:        domain.RestrictionsJSON(nil),
				IsActive:            true,
			}
		case err != nil:
			return err
		default:
			donated := domain.DonatedMl(c)
			c.TotalCapacityMl = in.TotalCapacityMl
			c.AvailableCapacityMl = max(0, in.TotalCapacityMl-donated)
			c.Version++
		}
		c.BloodGroup = group
		if in.DonationFrequency != "" {
			c.DonationFrequency = in.DonationFrequency
		}
		if in.HealthStatus != "" {
			c.HealthStatus = in.HealthStatus
		}
		if in.Restrictions != nil {
			c.Restrictions = domain.RestrictionsJSON(in.Restrictions)
		}
		if in.Notes != nil {
			c.Notes = strings.TrimSpace(*in.Notes)
		}
		if in.IsActive != nil {
			c.IsActive = *in.IsActive
		}
		if created {
			return tx.Create(&c).Error
		}
		return tx.Save(&c).Error
	})
	if err != nil {
		return domain.CapacityView{}, err
	}
	log.Info().Str("donor_id", donorID.String()).Bool("created", created).
		Int("total_ml", c.TotalCapacityMl).Int("available_ml", c.AvailableCapacityMl).Msg("capacity set")
	return domain.NewCapacityView(c, s.now()), nil
}

func (s *Service) Get(ctx context.Context, donorID uuid.UUID) (domain.CapacityView, error) {
	c, err := s.load(s.DB.WithContext(ctx), donorID)
	if err != nil {
		return domain.CapacityView{}, err
	}
	return domain.NewCapacityView(c, s.now()), nil
}

func (s *Service) load(tx *gorm.DB, donorID uuid.UUID) (domain.DonorCapacity, error) {
	var c domain.DonorCapacity
	if err := tx.Where("donor_id = ?", donorID).First(&c).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c, domain.NotFound("Donor capacity not found. Please set your capacity first.")
		}
		return c, err
	}
	return c, nil
}

// ApplyDonation decrements the donor's available capacity and starts the cooldown.
func (s *Service) ApplyDonation(ctx context.Context, donorID uuid.UUID, amountMl int) (domain.CapacityView, error) {
	release, err := s.acquire(ctx, donorID)
	if err != nil {
		return domain.CapacityView{}, err
	}
	defer release()

	var c domain.DonorCapacity
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		c, err = s.ApplyDonationTx(ctx, tx, donorID, amountMl)
		return err
	})
	if err != nil {
		return domain.CapacityView{}, err
	}
	return domain.NewCapacityView(c, s.now()), nil
}

// ApplyDonationTx is ApplyDonation inside tx; the caller holds LockKey(donorID).
// The decrement only lands if the row still has the version and headroom we read.
func (s *Service) ApplyDonationTx(ctx context.Context, tx *gorm.DB, donorID uuid.UUID, amountMl int) (domain.DonorCapacity, error) {
	if amountMl <= 0 {
		return domain.DonorCapacity{}, domain.NewError(domain.ErrInvalidQuantity, "Donation amount must be positive")
	}
	c, err := s.load(tx, donorID)
	if err != nil {
		return c, err
	}
	if amountMl > c.AvailableCapacityMl {
		s.Metrics.IncCapacityRejection()
		return c, &domain.InsufficientCapacityError{Available: c.AvailableCapacityMl, Requested: amountMl}
	}

	now := s.now()
	next := domain.NextEligibleAt(now, c.DonationFrequency)
	res := tx.Session(&gorm.Session{SkipHooks: true}).Model(&domain.DonorCapacity{}).
		Where("donor_id = ? AND version = ? AND available_capacity_ml >= ?", donorID, c.Version, amountMl).
		Updates(map[string]interface{}{
			"available_capacity_ml": gorm.Expr("available_capacity_ml - ?", amountMl),
			"last_donation_at":      now,
			"next_eligible_at":      next,
			"version":               gorm.Expr("version + 1"),
			"updated_at":            now,
		})
	if res.Error != nil {
		return c, res.Error
	}
	if res.RowsAffected == 0 {
		return c, domain.Conflict("Donor capacity changed, please retry")
	}

	c.AvailableCapacityMl -= amountMl
	c.LastDonationAt = &now
	c.NextEligibleAt = &next
	c.Version++
	c.UpdatedAt = now
	return c, nil
}

// Reset restores full capacity and clears the eligibility window.
func (s *Service) Reset(ctx context.Context, donorID uuid.UUID) (domain.CapacityView, error) {
	release, err := s.acquire(ctx, donorID)
	if err != nil {
		return domain.CapacityView{}, err
	}
	defer release()

	var c domain.DonorCapacity
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		if c, err = s.load(tx, donorID); err != nil {
			return err
		}
		c.AvailableCapacityMl = c.TotalCapacityMl
		c.LastDonationAt = nil
		c.NextEligibleAt = nil
		c.Version++
		return tx.Save(&c).Error
	})
	if err != nil {
		return domain.CapacityView{}, err
	}
	return domain.NewCapacityView(c, s.now()), nil
}

func (s *Service) acquire(ctx context.Context, donorID uuid.UUID) (func(), error) {
	release, err := s.Locks.Acquire(ctx, LockKey(donorID))
	if err != nil && errors.Is(err, domain.ErrConflict) {
		s.Metrics.IncLockConflict("capacity")
	}
	return release, err
}
