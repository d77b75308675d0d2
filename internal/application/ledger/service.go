package ledger

import (
	"context"
	"errors"
	"strings"
	"time"

	"bloodbank-ledger/internal/application/directory"
	"bloodbank-ledger/internal/domain"
	"bloodbank-ledger/internal/infrastructure/locks"
	"bloodbank-ledger/internal/infrastructure/metrics"
	"bloodbank-ledger/internal/pkg/validation"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

const defaultRecent = 3

type Service struct {
	DB        *gorm.DB
	Directory *directory.Service
	Locks     locks.Locker
	Metrics   *metrics.Metrics
	Now       func() time.Time
}

// EntryInput is what a caller supplies; the counterparty email is filled from the directory.
type EntryInput struct {
	OrganisationID uuid.UUID
	BloodGroup     string
	Direction      domain.Direction
	QuantityMl     int
	CounterpartyID uuid.UUID
	DonationID     *uuid.UUID
}

// EntryFilter narrows ListEntries. Zero fields are ignored.
type EntryFilter struct {
	OrganisationID *uuid.UUID
	BloodGroup     domain.BloodGroup
	Direction      domain.Direction
	Email          string
	From           *time.Time
	To             *time.Time
	Limit          int
}

// ScopeKey is the lock key serializing balance checks for one stock scope.
func ScopeKey(organisationID uuid.UUID, group domain.BloodGroup) string {
	return "ledger:" + organisationID.String() + ":" + string(group)
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

type directionTotal struct {
	Direction domain.Direction
	Total     int
}

// Balance sums the scope's entries at call time.
func (s *Service) Balance(ctx context.Context, organisationID uuid.UUID, bloodGroup string) (domain.Balance, error) {
	group, err := domain.ParseBloodGroup(bloodGroup)
	if err != nil {
		return domain.Balance{}, err
	}
	return s.BalanceTx(s.DB.WithContext(ctx), organisationID, group)
}

// BalanceTx is Balance against tx.
func (s *Service) BalanceTx(tx *gorm.DB, organisationID uuid.UUID, group domain.BloodGroup) (domain.Balance, error) {
	var rows []directionTotal
	err := tx.Model(&domain.LedgerEntry{}).
		Select("direction, COALESCE(SUM(quantity_ml), 0) AS total").
		Where("organisation_id = ? AND blood_group = ?", organisationID, group).
		Group("direction").
		Scan(&rows).Error
	if err != nil {
		return domain.Balance{}, err
	}
	b := domain.Balance{BloodGroup: group}
	for _, r := range rows {
		switch r.Direction {
		case domain.DirectionIn:
			b.TotalIn = r.Total
		case domain.DirectionOut:
			b.TotalOut = r.Total
		}
	}
	b.Available = b.TotalIn - b.TotalOut
	return b, nil
}

// Summary returns a balance for each of the eight blood groups, zeros included.
func (s *Service) Summary(ctx context.Context, organisationID uuid.UUID) ([]domain.Balance, error) {
	var rows []struct {
		BloodGroup domain.BloodGroup
		Direction  domain.Direction
		Total      int
	}
	err := s.DB.WithContext(ctx).Model(&domain.LedgerEntry{}).
		Select("blood_group, direction, COALESCE(SUM(quantity_ml), 0) AS total").
		Where("organisation_id = ?", organisationID).
		Group("blood_group, direction").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	byGroup := make(map[domain.BloodGroup]*domain.Balance, len(domain.BloodGroups))
	out := make([]domain.Balance, len(domain.BloodGroups))
	for i, g := range domain.BloodGroups {
		out[i] = domain.Balance{BloodGroup: g}
		byGroup[g] = &out[i]
	}
	for _, r := range rows {
		b, ok := byGroup[r.BloodGroup]
		if !ok {
			continue
		}
		if r.Direction == domain.DirectionIn {
			b.TotalIn = r.Total
		} else {
			b.TotalOut = r.Total
		}
	}
	for i := range out {
		out[i].Available = out[i].TotalIn - out[i].TotalOut
	}
	return out, nil
}

// AppendEntry validates and writes one entry under the scope lock.
func (s *Service) AppendEntry(ctx context.Context, in EntryInput) (domain.LedgerEntry, error) {
	group, err := domain.ParseBloodGroup(in.BloodGroup)
	if err != nil {
		return domain.LedgerEntry{}, err
	}
	release, err := s.Locks.Acquire(ctx, ScopeKey(in.OrganisationID, group))
	if err != nil {
		if errors.Is(err, domain.ErrConflict) {
			s.Metrics.IncLockConflict("ledger")
		}
		return domain.LedgerEntry{}, err
	}
	defer release()

	var entry domain.LedgerEntry
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		entry, err = s.AppendEntryTx(ctx, tx, in)
		return err
	})
	if err != nil {
		return domain.LedgerEntry{}, err
	}
	s.Metrics.ObserveEntry(string(entry.Direction), string(entry.BloodGroup), entry.QuantityMl)
	return entry, nil
}

// AppendEntryTx runs the checks and insert inside tx. The caller must hold
// ScopeKey for the entry's scope until tx commits.
func (s *Service) AppendEntryTx(ctx context.Context, tx *gorm.DB, in EntryInput) (domain.LedgerEntry, error) {
	if in.QuantityMl <= 0 {
		return domain.LedgerEntry{}, domain.NewError(domain.ErrInvalidQuantity, "Quantity must be a positive number of millilitres")
	}
	group, err := domain.ParseBloodGroup(in.BloodGroup)
	if err != nil {
		return domain.LedgerEntry{}, err
	}
	var counterpartyRole domain.Role
	switch in.Direction {
	case domain.DirectionIn:
		counterpartyRole = domain.RoleDonor
	case domain.DirectionOut:
		counterpartyRole = domain.RoleHospital
	default:
		return domain.LedgerEntry{}, domain.InvalidRange("Direction must be in or out")
	}

	dir := s.Directory.WithTx(tx)
	if _, err := dir.ResolveRole(ctx, in.OrganisationID, domain.RoleOrganisation); err != nil {
		return domain.LedgerEntry{}, asInvalidCounterparty(err, "Organisation not found")
	}
	counterparty, err := dir.ResolveRole(ctx, in.CounterpartyID, counterpartyRole)
	if err != nil {
		if in.Direction == domain.DirectionIn {
			return domain.LedgerEntry{}, asInvalidCounterparty(err, "Donor not found")
		}
		return domain.LedgerEntry{}, asInvalidCounterparty(err, "Hospital not found")
	}

	if in.Direction == domain.DirectionOut {
		bal, err := s.BalanceTx(tx, in.OrganisationID, group)
		if err != nil {
			return domain.LedgerEntry{}, err
		}
		if in.QuantityMl > bal.Available {
			s.Metrics.IncStockRejection(string(group))
			log.Warn().Str("organisation_id", in.OrganisationID.String()).Str("blood_group", string(group)).
				Int("available", bal.Available).Int("requested", in.QuantityMl).Msg("dispense rejected")
			return domain.LedgerEntry{}, &domain.InsufficientStockError{BloodGroup: group, Available: bal.Available, Requested: in.QuantityMl}
		}
	}

	entry := domain.LedgerEntry{
		OrganisationID:    in.OrganisationID,
		BloodGroup:        group,
		Direction:         in.Direction,
		QuantityMl:        in.QuantityMl,
		CounterpartyID:    counterparty.ID,
		CounterpartyEmail: counterparty.Email,
		DonationID:        in.DonationID,
		CreatedAt:         s.now(),
	}
	if err := tx.Create(&entry).Error; err != nil {
		return domain.LedgerEntry{}, err
	}
	return entry, nil
}

func asInvalidCounterparty(err error, message string) error {
	if errors.Is(err, domain.ErrNotFound) {
		return domain.NewError(domain.ErrInvalidCounterparty, message)
	}
	return err
}

// ListEntries returns matching entries newest first.
func (s *Service) ListEntries(ctx context.Context, f EntryFilter) ([]domain.LedgerEntry, error) {
	q := s.DB.WithContext(ctx).Model(&domain.LedgerEntry{})
	if f.OrganisationID != nil {
		q = q.Where("organisation_id = ?", *f.OrganisationID)
	}
	if f.BloodGroup != "" {
		q = q.Where("blood_group = ?", f.BloodGroup)
	}
	if f.Direction != "" {
		q = q.Where("direction = ?", f.Direction)
	}
	if email := strings.TrimSpace(f.Email); email != "" {
		q = q.Where(`LOWER(counterparty_email) LIKE ? ESCAPE '\'`, validation.ContainsPattern(email))
	}
	if f.From != nil {
		q = q.Where("created_at >= ?", f.From.UTC())
	}
	if f.To != nil {
		q = q.Where("created_at <= ?", f.To.UTC())
	}
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}
	out := []domain.LedgerEntry{}
	err := q.Order("created_at DESC").Order("id DESC").Find(&out).Error
	return out, err
}

// Recent returns the organisation's latest n entries (3 when n <= 0).
func (s *Service) Recent(ctx context.Context, organisationID uuid.UUID, n int) ([]domain.LedgerEntry, error) {
	if n <= 0 {
		n = defaultRecent
	}
	return s.ListEntries(ctx, EntryFilter{OrganisationID: &organisationID, Limit: n})
}
