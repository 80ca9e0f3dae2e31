package captable

import (
	"context"
	"testing"
	"time"

	"captable-backend/internal/domain"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func setupSnapshotTest(t *testing.T) (*Service, *gorm.DB, uuid.UUID) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&domain.Company{}, &domain.Investor{}, &domain.ShareClass{},
		&domain.Holding{}, &domain.ConvertibleSecurity{},
	))
	company := domain.Company{Name: "Snap Co", Currency: "usd"}
	require.NoError(t, db.Create(&company).Error)
	return &Service{DB: db}, db, company.CompanyID
}

func TestSnapshotAsOf_OrdersClassesBySeniority(t *testing.T) {
	svc, db, companyID := setupSnapshotTest(t)

	junior, senior := 1, 0
	require.NoError(t, db.Create(&domain.ShareClass{
		CompanyID: companyID, Name: "Common", IsCommon: true, ConversionBps: 10000,
	}).Error)
	require.NoError(t, db.Create(&domain.ShareClass{
		CompanyID: companyID, Name: "Series B", SeniorityRank: &junior, ConversionBps: 10000,
	}).Error)
	require.NoError(t, db.Create(&domain.ShareClass{
		CompanyID: companyID, Name: "Series A", SeniorityRank: &senior, ConversionBps: 10000,
	}).Error)

	snap, err := svc.SnapshotAsOf(context.Background(), companyID, time.Now())
	require.NoError(t, err)
	require.Len(t, snap.Classes, 3)
	assert.Equal(t, "Series A", snap.Classes[0].Name)
	assert.Equal(t, "Series B", snap.Classes[1].Name)
	assert.Equal(t, "Common", snap.Classes[2].Name, "common sorts last")
}

func TestSnapshotAsOf_FiltersByAcquisitionDate(t *testing.T) {
	svc, db, companyID := setupSnapshotTest(t)

	class := domain.ShareClass{CompanyID: companyID, Name: "Common", IsCommon: true, ConversionBps: 10000}
	require.NoError(t, db.Create(&class).Error)
	investor := domain.Investor{CompanyID: companyID, LegalName: "Early", Email: "e@snap.test"}
	require.NoError(t, db.Create(&investor).Error)

	asOf := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, db.Create(&domain.Holding{
		InvestorID: investor.InvestorID, ShareClassID: class.ShareClassID,
		ShareCount: 100, InvestmentCents: 100_00, AcquiredAt: asOf.AddDate(0, -1, 0),
	}).Error)
	require.NoError(t, db.Create(&domain.Holding{
		InvestorID: investor.InvestorID, ShareClassID: class.ShareClassID,
		ShareCount: 900, InvestmentCents: 900_00, AcquiredAt: asOf.AddDate(0, 1, 0),
	}).Error)

	snap, err := svc.SnapshotAsOf(context.Background(), companyID, asOf)
	require.NoError(t, err)
	assert.Equal(t, int64(100), snap.TotalShares())
	assert.Equal(t, int64(100_00), snap.TotalInvestment())
}

func TestSnapshotAsOf_ConvertedNotesDropOut(t *testing.T) {
	svc, db, companyID := setupSnapshotTest(t)

	investor := domain.Investor{CompanyID: companyID, LegalName: "Note Holder", Email: "n@snap.test"}
	require.NoError(t, db.Create(&investor).Error)

	asOf := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	before := asOf.AddDate(0, -1, 0)
	after := asOf.AddDate(0, 1, 0)

	// Converted before the snapshot: gone. Converted after, or never: present.
	require.NoError(t, db.Create(&domain.ConvertibleSecurity{
		CompanyID: companyID, InvestorID: investor.InvestorID,
		PrincipalCents: 100_00, AsConvertedShares: 10, ConvertedAt: &before,
	}).Error)
	require.NoError(t, db.Create(&domain.ConvertibleSecurity{
		CompanyID: companyID, InvestorID: investor.InvestorID,
		PrincipalCents: 200_00, AsConvertedShares: 20, ConvertedAt: &after,
	}).Error)
	require.NoError(t, db.Create(&domain.ConvertibleSecurity{
		CompanyID: companyID, InvestorID: investor.InvestorID,
		PrincipalCents: 300_00, AsConvertedShares: 30,
	}).Error)

	snap, err := svc.SnapshotAsOf(context.Background(), companyID, asOf)
	require.NoError(t, err)
	require.Len(t, snap.Convertibles, 2)
	assert.Equal(t, int64(500_00), snap.TotalInvestment())
	assert.Equal(t, int64(50), snap.TotalShares())
}

func TestSnapshotAsOf_UnknownCompany(t *testing.T) {
	svc, _, _ := setupSnapshotTest(t)
	_, err := svc.SnapshotAsOf(context.Background(), uuid.New(), time.Now())
	assert.ErrorIs(t, err, ErrCompanyNotFound)
}
