package capacity

import (
	"context"
	"errors"
	"math"
	"time"

	"bloodbank-ledger/internal/domain"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

type DonorFilter struct {
	BloodGroup   domain.BloodGroup
	MinCapacity  int
	OnlyEligible bool
}

// DonorCapacityView pairs a capacity view with its donor's directory record.
type DonorCapacityView struct {
	domain.CapacityView
	Donor domain.Party `json:"donor"`
}

// ListDonors returns active donors, most available capacity first.
func (s *Service) ListDonors(ctx context.Context, f DonorFilter) ([]DonorCapacityView, error) {
	q := s.DB.WithContext(ctx).Where("is_active = ?", true)
	if f.BloodGroup != "" {
		q = q.Where("blood_group = ?", f.BloodGroup)
	}
	if f.MinCapacity > 0 {
		q = q.Where("available_capacity_ml >= ?", f.MinCapacity)
	}
	var rows []domain.DonorCapacity
	if err := q.Order("available_capacity_ml DESC").Find(&rows).Error; err != nil {
		return nil, err
	}

	now := s.now()
	ids := make([]uuid.UUID, 0, len(rows))
	views := make([]domain.CapacityView, 0, len(rows))
	for _, c := range rows {
		v := domain.NewCapacityView(c, now)
		if f.OnlyEligible && !v.IsEligible {
			continue
		}
		views = append(views, v)
		ids = append(ids, c.DonorID)
	}
	donors, err := s.Directory.FindMany(ctx, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[uuid.UUID]domain.Party, len(donors))
	for _, d := range donors {
		byID[d.ID] = d
	}
	out := make([]DonorCapacityView, 0, len(views))
	for _, v := range views {
		out = append(out, DonorCapacityView{CapacityView: v, Donor: byID[v.DonorID]})
	}
	return out, nil
}

type CapacityStats struct {
	TotalCapacityMl       int `json:"total_capacity_ml"`
	AvailableCapacityMl   int `json:"available_capacity_ml"`
	DonatedMl             int `json:"donated_ml"`
	UtilizationPercentage int `json:"utilization_percentage"`
}

type HistoryStats struct {
	TotalDonations  int64               `json:"total_donations"`
	TotalVolumeMl   int                 `json:"total_volume_ml"`
	AverageVolumeMl int                 `json:"average_volume_ml"`
	LastDonation    *domain.LedgerEntry `json:"last_donation"`
}

type EligibilityStats struct {
	IsEligible        bool                     `json:"is_eligible"`
	NextEligibleAt    *time.Time               `json:"next_eligible_at"`
	DaysUntilEligible int                      `json:"days_until_eligible"`
	DonationFrequency domain.DonationFrequency `json:"donation_frequency"`
}

type historyTotals struct {
	Count int64
	Total int
}

type Stats struct {
	Capacity    CapacityStats    `json:"capacity"`
	History     HistoryStats     `json:"donation_history"`
	Eligibility EligibilityStats `json:"eligibility"`
}

// Stats combines the capacity record with the donor's incoming ledger history.
func (s *Service) Stats(ctx context.Context, donorID uuid.UUID) (Stats, error) {
	var (
		c    domain.DonorCapacity
		agg  historyTotals
		last *domain.LedgerEntry
	)
	history := func(ctx context.Context) *gorm.DB {
		return s.DB.WithContext(ctx).Model(&domain.LedgerEntry{}).
			Where("counterparty_id = ? AND direction = ?", donorID, domain.DirectionIn)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		c, err = s.load(s.DB.WithContext(gctx), donorID)
		return err
	})
	g.Go(func() error {
		return history(gctx).Select("COUNT(*) AS count, COALESCE(SUM(quantity_ml), 0) AS total").Scan(&agg).Error
	})
	g.Go(func() error {
		var e domain.LedgerEntry
		err := history(gctx).Order("created_at DESC").Order("id DESC").First(&e).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		last = &e
		return nil
	})
	if err := g.Wait(); err != nil {
		return Stats{}, err
	}

	now := s.now()
	avg := 0
	if agg.Count > 0 {
		avg = int(math.Round(float64(agg.Total) / float64(agg.Count)))
	}
	return Stats{
		Capacity: CapacityStats{
			TotalCapacityMl:       c.TotalCapacityMl,
			AvailableCapacityMl:   c.AvailableCapacityMl,
			DonatedMl:             domain.DonatedMl(c),
			UtilizationPercentage: domain.UtilizationPercentage(c),
		},
		History: HistoryStats{
			TotalDonations:  agg.Count,
			TotalVolumeMl:   agg.Total,
			AverageVolumeMl: avg,
			LastDonation:    last,
		},
		Eligibility: EligibilityStats{
			IsEligible:        domain.IsEligible(c, now),
			NextEligibleAt:    c.NextEligibleAt,
			DaysUntilEligible: domain.DaysUntilEligible(c, now),
			DonationFrequency: c.DonationFrequency,
		},
	}, nil
}
