package ledger

import (
	"context"

	"bloodbank-ledger/internal/domain"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

// DonorsOf lists donors who have given to the organisation.
func (s *Service) DonorsOf(ctx context.Context, organisationID uuid.UUID) ([]domain.Party, error) {
	ids, err := s.pluckEntries(ctx, "counterparty_id", "organisation_id = ? AND direction = ?", organisationID, domain.DirectionIn)
	if err != nil {
		return nil, err
	}
	return s.Directory.FindMany(ctx, ids)
}

// OrganisationsOfDonor lists organisations the donor has given to.
func (s *Service) OrganisationsOfDonor(ctx context.Context, donorID uuid.UUID) ([]domain.Party, error) {
	ids, err := s.pluckEntries(ctx, "organisation_id", "counterparty_id = ? AND direction = ?", donorID, domain.DirectionIn)
	if err != nil {
		return nil, err
	}
	return s.Directory.FindMany(ctx, ids)
}

// HospitalsOf unions hospitals the organisation has dispensed to with
// hospitals linked by a subscription in either direction. With no link at
// all it falls back to every hospital so a new organisation can pick one.
func (s *Service) HospitalsOf(ctx context.Context, organisationID uuid.UUID) ([]domain.Party, error) {
	return s.linked(ctx, organisationID, domain.RoleHospital, "organisation_id = ? AND direction = ?", "counterparty_id")
}

// OrganisationsOfHospital is HospitalsOf seen from the hospital.
func (s *Service) OrganisationsOfHospital(ctx context.Context, hospitalID uuid.UUID) ([]domain.Party, error) {
	return s.linked(ctx, hospitalID, domain.RoleOrganisation, "counterparty_id = ? AND direction = ?", "organisation_id")
}

func (s *Service) linked(ctx context.Context, partyID uuid.UUID, otherRole domain.Role, entryWhere, entryColumn string) ([]domain.Party, error) {
	var fromEntries, following, followers []uuid.UUID
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		fromEntries, err = s.pluckEntries(gctx, entryColumn, entryWhere, partyID, domain.DirectionOut)
		return err
	})
	g.Go(func() error {
		return s.activeEdges(gctx).
			Where("subject_id = ? AND object_role = ?", partyID, otherRole).
			Distinct("object_id").Pluck("object_id", &following).Error
	})
	g.Go(func() error {
		return s.activeEdges(gctx).
			Where("object_id = ? AND subject_role = ?", partyID, otherRole).
			Distinct("subject_id").Pluck("subject_id", &followers).Error
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	ids := unionIDs(fromEntries, following, followers)
	if len(ids) == 0 {
		return s.Directory.ListByRole(ctx, otherRole)
	}
	return s.Directory.FindMany(ctx, ids)
}

func (s *Service) pluckEntries(ctx context.Context, column, where string, args ...interface{}) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := s.DB.WithContext(ctx).Model(&domain.LedgerEntry{}).
		Where(where, args...).
		Distinct(column).Pluck(column, &ids).Error
	return ids, err
}

func (s *Service) activeEdges(ctx context.Context) *gorm.DB {
	return s.DB.WithContext(ctx).Model(&domain.Relationship{}).Where("status = ?", domain.StatusActive)
}

func unionIDs(sets ...[]uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{})
	var out []uuid.UUID
	for _, set := range sets {
		for _, id := range set {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	return out
}
