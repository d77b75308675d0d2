package capacity

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"bloodbank-ledger/internal/application/directory"
	"bloodbank-ledger/internal/domain"
	"bloodbank-ledger/internal/infrastructure/locks"
	"bloodbank-ledger/internal/testutil"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

var clock = time.Date(2024, time.January, 15, 10, 0, 0, 0, time.UTC)

func newService(db *gorm.DB) *Service {
	return &Service{
		DB:        db,
		Directory: &directory.Service{DB: db},
		Locks:     locks.NewLocal(5 * time.Second),
		Now:       testutil.FixedClock(clock),
	}
}

func TestSetCapacity_CreateDefaults(t *testing.T) {
	db := testutil.OpenDB(t)
	svc := newService(db)
	donor := testutil.Donor(t, db, "alice", domain.OPositive)

	v, err := svc.SetCapacity(context.Background(), donor.ID, Settings{BloodGroup: "O+", TotalCapacityMl: 500})
	require.NoError(t, err)
	assert.Equal(t, 500, v.AvailableCapacityMl)
	assert.Equal(t, domain.FrequencyQuarterly, v.DonationFrequency)
	assert.Equal(t, domain.HealthGood, v.HealthStatus)
	assert.True(t, v.IsActive)
	assert.True(t, v.IsEligible)
	assert.JSONEq(t, `[]`, string(v.Restrictions))
}

func TestSetCapacity_ReductionPreservesUsage(t *testing.T) {
	db := testutil.OpenDB(t)
	svc := newService(db)
	donor := testutil.Donor(t, db, "alice", domain.OPositive)
	ctx := context.Background()

	_, err := svc.SetCapacity(ctx, donor.ID, Settings{BloodGroup: "O+", TotalCapacityMl: 500})
	require.NoError(t, err)
	_, err = svc.ApplyDonation(ctx, donor.ID, 200)
	require.NoError(t, err)

	v, err := svc.SetCapacity(ctx, donor.ID, Settings{BloodGroup: "O+", TotalCapacityMl: 400})
	require.NoError(t, err)
	assert.Equal(t, 400, v.TotalCapacityMl)
	assert.Equal(t, 200, v.AvailableCapacityMl)
	assert.Equal(t, 200, v.DonatedMl)

	// shrinking below what was donated floors at zero
	v, err = svc.SetCapacity(ctx, donor.ID, Settings{BloodGroup: "O+", TotalCapacityMl: 150})
	require.NoError(t, err)
	assert.Equal(t, 0, v.AvailableCapacityMl)
	assert.False(t, v.IsEligible)

	v, err = svc.SetCapacity(ctx, donor.ID, Settings{BloodGroup: "O+", TotalCapacityMl: 2000})
	require.NoError(t, err)
	assert.Equal(t, 2000, v.TotalCapacityMl)
	assert.LessOrEqual(t, v.AvailableCapacityMl, v.TotalCapacityMl)
	assert.GreaterOrEqual(t, v.AvailableCapacityMl, 0)
}

func TestSetCapacity_Validation(t *testing.T) {
	db := testutil.OpenDB(t)
	svc := newService(db)
	donor := testutil.Donor(t, db, "alice", domain.OPositive)
	hospital := testutil.Party(t, db, domain.RoleHospital, "City")
	ctx := context.Background()

	for _, total := range []int{0, 99, 2001} {
		_, err := svc.SetCapacity(ctx, donor.ID, Settings{BloodGroup: "O+", TotalCapacityMl: total})
		assert.True(t, errors.Is(err, domain.ErrInvalidRange), "total %d", total)
	}
	_, err := svc.SetCapacity(ctx, donor.ID, Settings{BloodGroup: "X", TotalCapacityMl: 500})
	assert.True(t, errors.Is(err, domain.ErrInvalidBloodGroup))

	_, err = svc.SetCapacity(ctx, donor.ID, Settings{BloodGroup: "O+", TotalCapacityMl: 500, DonationFrequency: "weekly"})
	assert.True(t, errors.Is(err, domain.ErrInvalidRange))

	long := string(make([]byte, domain.MaxNotesLength+1))
	_, err = svc.SetCapacity(ctx, donor.ID, Settings{BloodGroup: "O+", TotalCapacityMl: 500, Notes: &long})
	assert.True(t, errors.Is(err, domain.ErrInvalidRange))

	_, err = svc.SetCapacity(ctx, hospital.ID, Settings{BloodGroup: "O+", TotalCapacityMl: 500})
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestApplyDonation_StartsCooldown(t *testing.T) {
	db := testutil.OpenDB(t)
	svc := newService(db)
	donor := testutil.Donor(t, db, "alice", domain.OPositive)
	ctx := context.Background()

	_, err := svc.SetCapacity(ctx, donor.ID, Settings{BloodGroup: "O+", TotalCapacityMl: 500})
	require.NoError(t, err)

	v, err := svc.ApplyDonation(ctx, donor.ID, 300)
	require.NoError(t, err)
	assert.Equal(t, 200, v.AvailableCapacityMl)
	require.NotNil(t, v.NextEligibleAt)
	assert.Equal(t, time.Date(2024, time.April, 15, 10, 0, 0, 0, time.UTC), v.NextEligibleAt.UTC())
	assert.False(t, v.IsEligible)
	assert.Equal(t, 91, v.DaysUntilEligible)

	stored, err := svc.Get(ctx, donor.ID)
	require.NoError(t, err)
	assert.Equal(t, 200, stored.AvailableCapacityMl)
	assert.Equal(t, 1, stored.Version)

	svc.Now = testutil.FixedClock(time.Date(2024, time.April, 15, 10, 0, 0, 0, time.UTC))
	stored, err = svc.Get(ctx, donor.ID)
	require.NoError(t, err)
	assert.True(t, stored.IsEligible)
}

func TestApplyDonation_Rejections(t *testing.T) {
	db := testutil.OpenDB(t)
	svc := newService(db)
	donor := testutil.Donor(t, db, "alice", domain.OPositive)
	ctx := context.Background()

	_, err := svc.ApplyDonation(ctx, donor.ID, 100)
	assert.True(t, errors.Is(err, domain.ErrNotFound))

	_, err = svc.SetCapacity(ctx, donor.ID, Settings{BloodGroup: "O+", TotalCapacityMl: 250})
	require.NoError(t, err)

	_, err = svc.ApplyDonation(ctx, donor.ID, 300)
	var capErr *domain.InsufficientCapacityError
	require.True(t, errors.As(err, &capErr))
	assert.Equal(t, 250, capErr.Available)

	_, err = svc.ApplyDonation(ctx, donor.ID, 0)
	assert.True(t, errors.Is(err, domain.ErrInvalidQuantity))
}

func TestApplyDonation_ConcurrentNeverBelowZero(t *testing.T) {
	db := testutil.OpenDB(t)
	svc := newService(db)
	donor := testutil.Donor(t, db, "alice", domain.OPositive)
	ctx := context.Background()
	_, err := svc.SetCapacity(ctx, donor.ID, Settings{BloodGroup: "O+", TotalCapacityMl: 1000})
	require.NoError(t, err)

	var wg sync.WaitGroup
	var mu sync.Mutex
	ok := 0
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.ApplyDonation(ctx, donor.ID, 300); err == nil {
				mu.Lock()
				ok++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 3, ok)
	v, err := svc.Get(ctx, donor.ID)
	require.NoError(t, err)
	assert.Equal(t, 100, v.AvailableCapacityMl)
}

func TestApplyDonationTx_StaleVersionIsConflict(t *testing.T) {
	db := testutil.OpenDB(t)
	svc := newService(db)
	donor := testutil.Donor(t, db, "alice", domain.OPositive)
	ctx := context.Background()
	_, err := svc.SetCapacity(ctx, donor.ID, Settings{BloodGroup: "O+", TotalCapacityMl: 500})
	require.NoError(t, err)

	// Bump the version between the read and the conditional update.
	bump := func(tx *gorm.DB) {
		if tx.Statement.Table == "donor_capacities" {
			tx.Session(&gorm.Session{NewDB: true, SkipHooks: true}).Exec("UPDATE donor_capacities SET version = version + 1 WHERE donor_id = ?", donor.ID)
		}
	}
	require.NoError(t, db.Callback().Query().After("gorm:query").Register("test:bump_version", bump))
	defer func() { _ = db.Callback().Query().Remove("test:bump_version") }()

	err = db.Transaction(func(tx *gorm.DB) error {
		_, err := svc.ApplyDonationTx(ctx, tx, donor.ID, 100)
		return err
	})
	assert.True(t, errors.Is(err, domain.ErrConflict))
}

func TestReset(t *testing.T) {
	db := testutil.OpenDB(t)
	svc := newService(db)
	donor := testutil.Donor(t, db, "alice", domain.OPositive)
	ctx := context.Background()
	_, err := svc.SetCapacity(ctx, donor.ID, Settings{BloodGroup: "O+", TotalCapacityMl: 500})
	require.NoError(t, err)
	_, err = svc.ApplyDonation(ctx, donor.ID, 450)
	require.NoError(t, err)

	v, err := svc.Reset(ctx, donor.ID)
	require.NoError(t, err)
	assert.Equal(t, 500, v.AvailableCapacityMl)
	assert.Nil(t, v.LastDonationAt)
	assert.Nil(t, v.NextEligibleAt)
	assert.True(t, v.IsEligible)

	_, err = svc.Reset(ctx, uuid.New())
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestListDonorsAndStats(t *testing.T) {
	db := testutil.OpenDB(t)
	svc := newService(db)
	org := testutil.Party(t, db, domain.RoleOrganisation, "Bank")
	alice := testutil.Donor(t, db, "alice", domain.OPositive)
	bob := testutil.Donor(t, db, "bob", domain.OPositive)
	carol := testutil.Donor(t, db, "carol", domain.ANegative)
	ctx := context.Background()
	inactive := false

	_, err := svc.SetCapacity(ctx, alice.ID, Settings{BloodGroup: "O+", TotalCapacityMl: 500})
	require.NoError(t, err)
	_, err = svc.SetCapacity(ctx, bob.ID, Settings{BloodGroup: "O+", TotalCapacityMl: 900})
	require.NoError(t, err)
	_, err = svc.SetCapacity(ctx, carol.ID, Settings{BloodGroup: "A-", TotalCapacityMl: 700, IsActive: &inactive})
	require.NoError(t, err)
	_, err = svc.ApplyDonation(ctx, bob.ID, 300)
	require.NoError(t, err)

	all, err := svc.ListDonors(ctx, DonorFilter{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, bob.ID, all[0].DonorID)
	assert.Equal(t, "bob", all[0].Donor.Name)

	eligible, err := svc.ListDonors(ctx, DonorFilter{BloodGroup: domain.OPositive, OnlyEligible: true})
	require.NoError(t, err)
	require.Len(t, eligible, 1)
	assert.Equal(t, alice.ID, eligible[0].DonorID)

	big, err := svc.ListDonors(ctx, DonorFilter{MinCapacity: 550})
	require.NoError(t, err)
	require.Len(t, big, 1)
	assert.Equal(t, bob.ID, big[0].DonorID)

	for i, qty := range []int{300, 250} {
		require.NoError(t, db.Create(&domain.LedgerEntry{
			OrganisationID: org.ID, BloodGroup: domain.OPositive, Direction: domain.DirectionIn, QuantityMl: qty,
			CounterpartyID: bob.ID, CounterpartyEmail: bob.Email, CreatedAt: clock.Add(time.Duration(i) * time.Hour),
		}).Error)
	}
	st, err := svc.Stats(ctx, bob.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), st.History.TotalDonations)
	assert.Equal(t, 550, st.History.TotalVolumeMl)
	assert.Equal(t, 275, st.History.AverageVolumeMl)
	require.NotNil(t, st.History.LastDonation)
	assert.Equal(t, 250, st.History.LastDonation.QuantityMl)
	assert.Equal(t, 300, st.Capacity.DonatedMl)
	assert.Equal(t, 33, st.Capacity.UtilizationPercentage)
	assert.False(t, st.Eligibility.IsEligible)

	st, err = svc.Stats(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), st.History.TotalDonations)
	assert.Nil(t, st.History.LastDonation)

	_, err = svc.Stats(ctx, uuid.New())
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}
