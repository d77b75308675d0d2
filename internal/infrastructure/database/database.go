package database

import (
	"strings"

	"bloodbank-ledger/internal/domain"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

const sqlitePrefix = "sqlite://"

// Open opens a GORM DB from DSN. "sqlite://<path>" (or "sqlite://:memory:")
// selects the embedded driver; anything else is treated as a Postgres URL.
// PreferSimpleProtocol disables prepared statement caching to avoid 42P05
// ("prepared statement already exists") behind connection poolers (e.g. PgBouncer).
// Unique violations surface as gorm.ErrDuplicatedKey on both drivers.
func Open(dsn string) (*gorm.DB, error) {
	if strings.HasPrefix(dsn, sqlitePrefix) {
		return openSQLite(strings.TrimPrefix(dsn, sqlitePrefix))
	}
	return gorm.Open(postgres.New(postgres.Config{
		DSN:                  dsn,
		PreferSimpleProtocol: true,
	}), &gorm.Config{TranslateError: true})
}

// SQLite allows one writer at a time; a single connection also keeps
// ":memory:" databases shared across the pool.
func openSQLite(path string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{TranslateError: true})
	if err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)
	return db, nil
}

// AutoMigrate creates or updates the ledger tables.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&domain.Party{},
		&domain.Relationship{},
		&domain.LedgerEntry{},
		&domain.DonorCapacity{},
		&domain.Donation{},
	)
}
