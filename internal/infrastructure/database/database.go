package database

import (
	"captable-backend/internal/domain"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// Open opens a GORM DB from DSN.
// PreferSimpleProtocol disables prepared statement caching to avoid 42P05
// ("prepared statement already exists") when using connection poolers (e.g. PgBouncer, Render).
func Open(dsn string) (*gorm.DB, error) {
	return gorm.Open(postgres.New(postgres.Config{
		DSN:                  dsn,
		PreferSimpleProtocol: true,
	}), &gorm.Config{})
}

// AutoMigrate runs migrations for every persisted model.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&domain.User{},
		&domain.Company{},
		&domain.Investor{},
		&domain.ShareClass{},
		&domain.Holding{},
		&domain.ConvertibleSecurity{},
		&domain.DistributionComputation{},
		&domain.DistributionOutput{},
		&domain.TenderOffer{},
		&domain.Bid{},
		&domain.Distribution{},
		&domain.SettlementBatch{},
		&domain.LedgerEvent{},
	)
}
