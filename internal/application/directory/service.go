// Package directory reads parties from the identity service's table.
// The ledger never writes parties; registration lives elsewhere.
package directory

import (
	"context"
	"errors"

	"bloodbank-ledger/internal/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Service struct {
	DB *gorm.DB
}

// WithTx returns a Service bound to tx.
func (s *Service) WithTx(tx *gorm.DB) *Service {
	return &Service{DB: tx}
}

func (s *Service) db(ctx context.Context) *gorm.DB {
	return s.DB.WithContext(ctx)
}

// Resolve returns the party with id or a NotFound error.
func (s *Service) Resolve(ctx context.Context, id uuid.UUID) (domain.Party, error) {
	var p domain.Party
	if err := s.db(ctx).Where("id = ?", id).First(&p).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return p, domain.NotFound("Party not found")
		}
		return p, err
	}
	return p, nil
}

// ResolveRole is Resolve plus a role check. A party with a different role is reported as not found.
func (s *Service) ResolveRole(ctx context.Context, id uuid.UUID, role domain.Role) (domain.Party, error) {
	p, err := s.Resolve(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return p, domain.NotFound(roleLabel(role) + " not found")
		}
		return p, err
	}
	if p.Role != role {
		return domain.Party{}, domain.NotFound(roleLabel(role) + " not found")
	}
	return p, nil
}

// FindMany loads the parties in ids, skipping unknown ones.
func (s *Service) FindMany(ctx context.Context, ids []uuid.UUID) ([]domain.Party, error) {
	out := []domain.Party{}
	if len(ids) == 0 {
		return out, nil
	}
	err := s.db(ctx).Where("id IN ?", ids).Order("created_at DESC").Find(&out).Error
	return out, err
}

func (s *Service) ListByRole(ctx context.Context, role domain.Role) ([]domain.Party, error) {
	out := []domain.Party{}
	err := s.db(ctx).Where("role = ?", role).Order("created_at DESC").Find(&out).Error
	return out, err
}

func roleLabel(role domain.Role) string {
	switch role {
	case domain.RoleDonor:
		return "Donor"
	case domain.RoleHospital:
		return "Hospital"
	case domain.RoleOrganisation:
		return "Organisation"
	case domain.RoleAdmin:
		return "Admin"
	}
	return "Party"
}
