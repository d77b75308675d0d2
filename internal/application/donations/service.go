// Package donations runs the donation workflow: subscription gate, capacity
// decrement, ledger append and donation record in one transaction.
package donations

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"bloodbank-ledger/internal/application/capacity"
	"bloodbank-ledger/internal/application/directory"
	"bloodbank-ledger/internal/application/ledger"
	"bloodbank-ledger/internal/application/subscriptions"
	"bloodbank-ledger/internal/domain"
	"bloodbank-ledger/internal/infrastructure/locks"
	"bloodbank-ledger/internal/infrastructure/metrics"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/blake2b"
	"gorm.io/gorm"
)

type Service struct {
	DB            *gorm.DB
	Directory     *directory.Service
	Subscriptions *subscriptions.Service
	Ledger        *ledger.Service
	Capacity      *capacity.Service
	Locks         locks.Locker
	Metrics       *metrics.Metrics
	Now           func() time.Time
}

type DonateRequest struct {
	DonorID        uuid.UUID
	OrganisationID uuid.UUID
	BloodGroup     string
	AmountMl       int
	DonationType   domain.DonationType
	Notes          string
	Screening      *domain.Screening
	IdempotencyKey string
}

// Result is what a donation produced. Replayed is set when an earlier
// request with the same idempotency key is returned instead.
type Result struct {
	Donation domain.Donation      `json:"donation"`
	Entry    *domain.LedgerEntry  `json:"ledger_entry,omitempty"`
	Capacity *domain.CapacityView `json:"capacity,omitempty"`
	Replayed bool                 `json:"replayed"`
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func (r *DonateRequest) normalize() (domain.BloodGroup, error) {
	group, err := domain.ParseBloodGroup(r.BloodGroup)
	if err != nil {
		return "", err
	}
	if r.AmountMl < domain.MinDonationMl || r.AmountMl > domain.MaxDonationMl {
		return "", domain.InvalidRange(fmt.Sprintf("Donation amount must be between %dml and %dml", domain.MinDonationMl, domain.MaxDonationMl))
	}
	if r.DonationType == "" {
		r.DonationType = domain.DonationWholeBlood
	}
	if !r.DonationType.Valid() {
		return "", domain.InvalidRange("Donation type must be whole_blood, plasma, platelets or red_cells")
	}
	r.Notes = strings.TrimSpace(r.Notes)
	if len(r.Notes) > domain.MaxNotesLength {
		return "", domain.InvalidRange(fmt.Sprintf("Notes cannot exceed %d characters", domain.MaxNotesLength))
	}
	if r.Screening != nil {
		if err := r.Screening.Validate(); err != nil {
			return "", err
		}
	}
	r.IdempotencyKey = strings.TrimSpace(r.IdempotencyKey)
	return group, nil
}

// IdempotencyLockKey serialises requests sharing a key even when their
// donor and organisation differ.
func IdempotencyLockKey(key string) string {
	return "idempotency:" + key
}

// fingerprint identifies the request body behind an idempotency key.
func (r DonateRequest) fingerprint(group domain.BloodGroup) string {
	screening := ""
	if r.Screening != nil {
		screening = string(r.Screening.JSON())
	}
	sum := blake2b.Sum256([]byte(strings.Join([]string{
		r.DonorID.String(), r.OrganisationID.String(), string(group),
		fmt.Sprint(r.AmountMl), string(r.DonationType), r.Notes, screening,
	}, "\x1f")))
	return hex.EncodeToString(sum[:])
}

// Donate records one donation. Nothing is written unless every step succeeds.
func (s *Service) Donate(ctx context.Context, req DonateRequest) (Result, error) {
	res, err := s.donate(ctx, req)
	switch {
	case err == nil && res.Replayed:
		s.Metrics.IncDonation("replayed")
	case err == nil:
		s.Metrics.IncDonation("completed")
		s.Metrics.ObserveEntry(string(res.Entry.Direction), string(res.Entry.BloodGroup), res.Entry.QuantityMl)
		log.Info().Str("donation_id", res.Donation.ID.String()).Str("donor_id", req.DonorID.String()).
			Str("organisation_id", req.OrganisationID.String()).Int("amount_ml", req.AmountMl).Msg("donation recorded")
	case isRejection(err):
		s.Metrics.IncDonation("rejected")
	default:
		s.Metrics.IncDonation("failed")
	}
	return res, err
}

func (s *Service) donate(ctx context.Context, req DonateRequest) (Result, error) {
	group, err := req.normalize()
	if err != nil {
		return Result{}, err
	}
	hash := ""
	if req.IdempotencyKey != "" {
		hash = req.fingerprint(group)
		if res, found, err := s.replay(s.DB.WithContext(ctx), req.IdempotencyKey, hash); found || err != nil {
			return res, err
		}
	}

	if _, err := s.Directory.ResolveRole(ctx, req.DonorID, domain.RoleDonor); err != nil {
		return Result{}, err
	}
	if _, err := s.Directory.ResolveRole(ctx, req.OrganisationID, domain.RoleOrganisation); err != nil {
		return Result{}, err
	}

	keys := []string{
		subscriptions.PairKey(req.DonorID, req.OrganisationID),
		capacity.LockKey(req.DonorID),
		ledger.ScopeKey(req.OrganisationID, group),
	}
	if req.IdempotencyKey != "" {
		keys = append(keys, IdempotencyLockKey(req.IdempotencyKey))
	}
	release, err := s.Locks.Acquire(ctx, keys...)
	if err != nil {
		if errors.Is(err, domain.ErrConflict) {
			s.Metrics.IncLockConflict("donation")
		}
		return Result{}, err
	}
	defer release()

	var res Result
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if req.IdempotencyKey != "" {
			replayed, found, err := s.replay(tx, req.IdempotencyKey, hash)
			if err != nil {
				return err
			}
			if found {
				res = replayed
				return nil
			}
		}

		edge, active, err := s.Subscriptions.ActiveTx(tx, req.DonorID, req.OrganisationID)
		if err != nil {
			return err
		}
		if !active {
			return domain.NewError(domain.ErrSubscriptionRequired, "You must be subscribed to this organisation to donate")
		}

		capRecord, err := s.Capacity.ApplyDonationTx(ctx, tx, req.DonorID, req.AmountMl)
		if err != nil {
			return err
		}

		donationID := uuid.New()
		entry, err := s.Ledger.AppendEntryTx(ctx, tx, ledger.EntryInput{
			OrganisationID: req.OrganisationID,
			BloodGroup:     string(group),
			Direction:      domain.DirectionIn,
			QuantityMl:     req.AmountMl,
			CounterpartyID: req.DonorID,
			DonationID:     &donationID,
		})
		if err != nil {
			return err
		}

		now := s.now()
		donation := domain.Donation{
			ID:             donationID,
			DonorID:        req.DonorID,
			OrganisationID: req.OrganisationID,
			SubscriptionID: edge.ID,
			LedgerEntryID:  entry.ID,
			BloodGroup:     group,
			QuantityMl:     req.AmountMl,
			DonationType:   req.DonationType,
			Status:         domain.DonationCompleted,
			DonationDate:   now,
			Notes:          req.Notes,
			RequestHash:    hash,
		}
		if req.Screening != nil {
			donation.Screening = req.Screening.JSON()
		}
		if req.IdempotencyKey != "" {
			key := req.IdempotencyKey
			donation.IdempotencyKey = &key
		}
		if err := tx.Create(&donation).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return domain.Conflict("Idempotency key is in use by another request, retry")
			}
			return err
		}

		view := domain.NewCapacityView(capRecord, now)
		res = Result{Donation: donation, Entry: &entry, Capacity: &view}
		return nil
	})
	if err != nil {
		return Result{}, err
	}
	return res, nil
}

// replay looks up a donation already stored under key.
func (s *Service) replay(tx *gorm.DB, key, hash string) (Result, bool, error) {
	var d domain.Donation
	err := tx.Where("idempotency_key = ?", key).First(&d).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Result{}, false, nil
	}
	if err != nil {
		return Result{}, false, err
	}
	if d.RequestHash != hash {
		return Result{}, true, domain.Conflict("Idempotency key was already used for a different donation")
	}
	return Result{Donation: d, Replayed: true}, true, nil
}

// Dispense sends blood from an organisation's stock to a hospital.
func (s *Service) Dispense(ctx context.Context, hospitalID, organisationID uuid.UUID, bloodGroup string, amountMl int) (domain.LedgerEntry, error) {
	entry, err := s.Ledger.AppendEntry(ctx, ledger.EntryInput{
		OrganisationID: organisationID,
		BloodGroup:     bloodGroup,
		Direction:      domain.DirectionOut,
		QuantityMl:     amountMl,
		CounterpartyID: hospitalID,
	})
	if err != nil {
		return entry, err
	}
	log.Info().Str("entry_id", entry.ID).Str("hospital_id", hospitalID.String()).
		Str("organisation_id", organisationID.String()).Int("amount_ml", amountMl).Msg("blood dispensed")
	return entry, nil
}

func isRejection(err error) bool {
	var de *domain.Error
	var stock *domain.InsufficientStockError
	var capErr *domain.InsufficientCapacityError
	return errors.As(err, &de) || errors.As(err, &stock) || errors.As(err, &capErr)
}
