// Package testutil holds fixtures shared by service and handler tests.
package testutil

import (
	"fmt"
	"testing"
	"time"

	"bloodbank-ledger/internal/domain"
	"bloodbank-ledger/internal/infrastructure/database"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// OpenDB returns a migrated in-memory SQLite database.
func OpenDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.Open("sqlite://:memory:")
	require.NoError(t, err)
	require.NoError(t, database.AutoMigrate(db))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

// Redis starts a miniredis server and a client pointed at it.
func Redis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb, mr
}

// Party inserts a directory record with a unique email.
func Party(t *testing.T, db *gorm.DB, role domain.Role, name string) domain.Party {
	t.Helper()
	p := domain.Party{
		ID:    uuid.New(),
		Role:  role,
		Email: fmt.Sprintf("%s-%s@example.com", name, uuid.NewString()[:8]),
	}
	switch role {
	case domain.RoleOrganisation:
		p.OrganisationName = name
	case domain.RoleHospital:
		p.HospitalName = name
	default:
		p.Name = name
	}
	require.NoError(t, db.Create(&p).Error)
	return p
}

// Donor inserts a donor party with a blood group.
func Donor(t *testing.T, db *gorm.DB, name string, group domain.BloodGroup) domain.Party {
	t.Helper()
	p := Party(t, db, domain.RoleDonor, name)
	g := string(group)
	require.NoError(t, db.Model(&p).UpdateColumn("blood_group", g).Error)
	p.BloodGroup = &g
	return p
}

// Subscribe writes an active edge directly, bypassing the service.
func Subscribe(t *testing.T, db *gorm.DB, subject, object domain.Party) domain.Relationship {
	t.Helper()
	r := domain.Relationship{
		SubjectID:     subject.ID,
		SubjectRole:   subject.Role,
		ObjectID:      object.ID,
		ObjectRole:    object.Role,
		Status:        domain.StatusActive,
		SubscribedAt:  time.Now().UTC(),
		Notifications: domain.DefaultNotificationPreferences(),
	}
	require.NoError(t, db.Create(&r).Error)
	return r
}

// FixedClock returns a Now func pinned to t.
func FixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}
