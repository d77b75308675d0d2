package donations

import (
	"context"
	"strings"
	"time"

	"bloodbank-ledger/internal/domain"
	"bloodbank-ledger/internal/pkg/validation"

	"github.com/google/uuid"
)

type Filter struct {
	OrganisationID uuid.UUID
	BloodGroup     domain.BloodGroup
	DonationType   domain.DonationType
	DonorEmail     string
	From           *time.Time
	To             *time.Time
}

// DonationView carries the party on the other side of the donation.
type DonationView struct {
	domain.Donation
	Donor        *domain.Party `json:"donor,omitempty"`
	Organisation *domain.Party `json:"organisation,omitempty"`
}

// ListForOrganisation returns donations received by an organisation, newest first.
func (s *Service) ListForOrganisation(ctx context.Context, f Filter) ([]DonationView, error) {
	q := s.DB.WithContext(ctx).Where("organisation_id = ?", f.OrganisationID)
	if f.BloodGroup != "" {
		q = q.Where("blood_group = ?", f.BloodGroup)
	}
	if f.DonationType != "" {
		q = q.Where("donation_type = ?", f.DonationType)
	}
	if email := strings.TrimSpace(f.DonorEmail); email != "" {
		donors := s.DB.Model(&domain.Party{}).Select("id").
			Where(`LOWER(email) LIKE ? ESCAPE '\'`, validation.ContainsPattern(email))
		q = q.Where("donor_id IN (?)", donors)
	}
	if f.From != nil {
		q = q.Where("donation_date >= ?", f.From.UTC())
	}
	if f.To != nil {
		q = q.Where("donation_date <= ?", f.To.UTC())
	}
	var rows []domain.Donation
	if err := q.Order("donation_date DESC").Find(&rows).Error; err != nil {
		return nil, err
	}
	return s.attach(ctx, rows, func(d domain.Donation) uuid.UUID { return d.DonorID }, func(v *DonationView, p domain.Party) { v.Donor = &p })
}

// ListForDonor returns a donor's donations, newest first.
func (s *Service) ListForDonor(ctx context.Context, donorID uuid.UUID) ([]DonationView, error) {
	var rows []domain.Donation
	if err := s.DB.WithContext(ctx).Where("donor_id = ?", donorID).Order("donation_date DESC").Find(&rows).Error; err != nil {
		return nil, err
	}
	return s.attach(ctx, rows, func(d domain.Donation) uuid.UUID { return d.OrganisationID }, func(v *DonationView, p domain.Party) { v.Organisation = &p })
}

func (s *Service) attach(ctx context.Context, rows []domain.Donation, key func(domain.Donation) uuid.UUID, set func(*DonationView, domain.Party)) ([]DonationView, error) {
	ids := make([]uuid.UUID, 0, len(rows))
	for _, d := range rows {
		ids = append(ids, key(d))
	}
	parties, err := s.Directory.FindMany(ctx, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[uuid.UUID]domain.Party, len(parties))
	for _, p := range parties {
		byID[p.ID] = p
	}
	out := make([]DonationView, 0, len(rows))
	for _, d := range rows {
		v := DonationView{Donation: d}
		if p, ok := byID[key(d)]; ok {
			set(&v, p)
		}
		out = append(out, v)
	}
	return out, nil
}
