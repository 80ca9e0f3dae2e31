package tender

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

func setupServiceTest(t *testing.T) (*Service, *gorm.DB) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&domain.Company{}, &domain.Investor{}, &domain.ShareClass{},
		&domain.Holding{}, &domain.TenderOffer{}, &domain.Bid{},
		&domain.Distribution{}, &domain.LedgerEvent{},
	))
	return &Service{DB: db}, db
}

type fixture struct {
	companyID    uuid.UUID
	shareClassID uuid.UUID
	sellers      []domain.Investor
}

func seedSellers(t *testing.T, db *gorm.DB, shareCounts ...int64) fixture {
	company := domain.Company{Name: "Buyback Co", Currency: "usd"}
	require.NoError(t, db.Create(&company).Error)
	class := domain.ShareClass{CompanyID: company.CompanyID, Name: "Common", IsCommon: true, ConversionBps: 10000}
	require.NoError(t, db.Create(&class).Error)

	fx := fixture{companyID: company.CompanyID, shareClassID: class.ShareClassID}
	for i, count := range shareCounts {
		inv := domain.Investor{
			CompanyID: company.CompanyID,
			LegalName: "Seller " + string(rune('A'+i)),
			Email:     string(rune('a'+i)) + "@buyback.test",
		}
		require.NoError(t, db.Create(&inv).Error)
		require.NoError(t, db.Create(&domain.Holding{
			InvestorID: inv.InvestorID, ShareClassID: class.ShareClassID,
			ShareCount: count, InvestmentCents: count, AcquiredAt: time.Now().Add(-24 * time.Hour),
		}).Error)
		fx.sellers = append(fx.sellers, inv)
	}
	return fx
}

func openAuction(t *testing.T, svc *Service, fx fixture, budget int64) *domain.TenderOffer {
	offer, err := svc.Open(context.Background(), OpenInput{
		CompanyID:   fx.companyID,
		StartsAt:    time.Now().Add(-time.Hour),
		EndsAt:      time.Now().Add(time.Hour),
		Mode:        domain.TenderAuction,
		BudgetCents: budget,
	})
	require.NoError(t, err)
	return offer
}

func TestPlaceBid_RejectsOverPosition(t *testing.T) {
	svc, db := setupServiceTest(t)
	fx := seedSellers(t, db, 100)
	offer := openAuction(t, svc, fx, 1_000_00)

	_, err := svc.PlaceBid(context.Background(), PlaceBidInput{
		TenderID: offer.TenderID, InvestorID: fx.sellers[0].InvestorID,
		ShareClassID: fx.shareClassID, RequestedShares: 101, PriceCents: 10_00,
	})
	assert.ErrorIs(t, err, ErrInsufficientShares)

	// Cumulative bids across the same tender count against the position.
	_, err = svc.PlaceBid(context.Background(), PlaceBidInput{
		TenderID: offer.TenderID, InvestorID: fx.sellers[0].InvestorID,
		ShareClassID: fx.shareClassID, RequestedShares: 60, PriceCents: 10_00,
	})
	require.NoError(t, err)
	_, err = svc.PlaceBid(context.Background(), PlaceBidInput{
		TenderID: offer.TenderID, InvestorID: fx.sellers[0].InvestorID,
		ShareClassID: fx.shareClassID, RequestedShares: 41, PriceCents: 9_00,
	})
	assert.ErrorIs(t, err, ErrInsufficientShares)
}

func TestPlaceBid_RejectsOutsideWindow(t *testing.T) {
	svc, db := setupServiceTest(t)
	fx := seedSellers(t, db, 100)

	offer, err := svc.Open(context.Background(), OpenInput{
		CompanyID:   fx.companyID,
		StartsAt:    time.Now().Add(-2 * time.Hour),
		EndsAt:      time.Now().Add(-time.Hour),
		Mode:        domain.TenderAuction,
		BudgetCents: 1_000_00,
	})
	require.NoError(t, err)

	_, err = svc.PlaceBid(context.Background(), PlaceBidInput{
		TenderID: offer.TenderID, InvestorID: fx.sellers[0].InvestorID,
		ShareClassID: fx.shareClassID, RequestedShares: 10, PriceCents: 10_00,
	})
	assert.ErrorIs(t, err, ErrWindowClosed)
}

func TestFinalize_UniformPriceAndPayables(t *testing.T) {
	svc, db := setupServiceTest(t)
	fx := seedSellers(t, db, 100, 200, 100)
	offer := openAuction(t, svc, fx, 4_000_00)

	prices := []int64{20_00, 18_00, 15_00}
	for i, inv := range fx.sellers {
		_, err := svc.PlaceBid(context.Background(), PlaceBidInput{
			TenderID: offer.TenderID, InvestorID: inv.InvestorID,
			ShareClassID: fx.shareClassID,
			RequestedShares: []int64{100, 200, 100}[i], PriceCents: prices[i],
		})
		require.NoError(t, err)
	}

	finalized, dists, err := svc.Finalize(context.Background(), offer.TenderID, "ops@buyback.test")
	require.NoError(t, err)
	assert.Equal(t, domain.TenderFinalized, finalized.Status)
	assert.Equal(t, int64(18_00), finalized.ClearingPriceCents)

	// Everyone fills at the uniform clearing price, not at their own bid.
	byInvestor := map[uuid.UUID]int64{}
	for _, d := range dists {
		byInvestor[d.InvestorID] = d.AmountCents
	}
	assert.Equal(t, int64(100*18_00), byInvestor[fx.sellers[0].InvestorID])
	assert.Equal(t, int64(122*18_00), byInvestor[fx.sellers[1].InvestorID])
	_, hasC := byInvestor[fx.sellers[2].InvestorID]
	assert.False(t, hasC, "bid below clearing price gets nothing")

	var total int64
	for _, d := range dists {
		total += d.AmountCents
	}
	assert.LessOrEqual(t, total, offer.BudgetCents)

	var bids []domain.Bid
	require.NoError(t, db.Where("tender_id = ?", offer.TenderID).Order("price_cents DESC").Find(&bids).Error)
	assert.Equal(t, int64(100), bids[0].AcceptedShares)
	assert.Equal(t, int64(122), bids[1].AcceptedShares)
	assert.Equal(t, int64(0), bids[2].AcceptedShares)
}

func TestFinalize_Idempotent(t *testing.T) {
	svc, db := setupServiceTest(t)
	fx := seedSellers(t, db, 100)
	offer := openAuction(t, svc, fx, 4_000_00)
	_, err := svc.PlaceBid(context.Background(), PlaceBidInput{
		TenderID: offer.TenderID, InvestorID: fx.sellers[0].InvestorID,
		ShareClassID: fx.shareClassID, RequestedShares: 100, PriceCents: 10_00,
	})
	require.NoError(t, err)

	_, first, err := svc.Finalize(context.Background(), offer.TenderID, "")
	require.NoError(t, err)
	require.Len(t, first, 1)

	again, second, err := svc.Finalize(context.Background(), offer.TenderID, "")
	require.NoError(t, err)
	assert.Equal(t, domain.TenderFinalized, again.Status)
	require.Len(t, second, 1)
	assert.Equal(t, first[0].DistributionID, second[0].DistributionID)

	var count int64
	require.NoError(t, db.Model(&domain.Distribution{}).
		Where("tender_id = ?", offer.TenderID).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestFinalize_ClosesBidding(t *testing.T) {
	svc, db := setupServiceTest(t)
	fx := seedSellers(t, db, 100)
	offer := openAuction(t, svc, fx, 4_000_00)

	_, _, err := svc.Finalize(context.Background(), offer.TenderID, "")
	require.NoError(t, err)

	_, err = svc.PlaceBid(context.Background(), PlaceBidInput{
		TenderID: offer.TenderID, InvestorID: fx.sellers[0].InvestorID,
		ShareClassID: fx.shareClassID, RequestedShares: 10, PriceCents: 10_00,
	})
	assert.ErrorIs(t, err, ErrTenderClosed)
}

func TestPreview_HasNoSideEffects(t *testing.T) {
	svc, db := setupServiceTest(t)
	fx := seedSellers(t, db, 100)
	offer := openAuction(t, svc, fx, 4_000_00)
	_, err := svc.PlaceBid(context.Background(), PlaceBidInput{
		TenderID: offer.TenderID, InvestorID: fx.sellers[0].InvestorID,
		ShareClassID: fx.shareClassID, RequestedShares: 100, PriceCents: 10_00,
	})
	require.NoError(t, err)

	result, bids, err := svc.Preview(context.Background(), offer.TenderID)
	require.NoError(t, err)
	assert.Equal(t, int64(10_00), result.ClearingPriceCents)
	require.Len(t, bids, 1)

	var stored domain.Bid
	require.NoError(t, db.Where("tender_id = ?", offer.TenderID).First(&stored).Error)
	assert.Equal(t, int64(0), stored.AcceptedShares, "preview must not lock accepted counts")
	var dists int64
	require.NoError(t, db.Model(&domain.Distribution{}).
		Where("tender_id = ?", offer.TenderID).Count(&dists).Error)
	assert.Equal(t, int64(0), dists)

	var reloaded domain.TenderOffer
	require.NoError(t, db.Where("tender_id = ?", offer.TenderID).First(&reloaded).Error)
	assert.Equal(t, domain.TenderOpen, reloaded.Status)
}

func TestFinalize_FixedPriceMode(t *testing.T) {
	svc, db := setupServiceTest(t)
	fx := seedSellers(t, db, 60, 50)
	offer, err := svc.Open(context.Background(), OpenInput{
		CompanyID:       fx.companyID,
		StartsAt:        time.Now().Add(-time.Hour),
		EndsAt:          time.Now().Add(time.Hour),
		Mode:            domain.TenderFixedPrice,
		FixedPriceCents: 10_00,
		BudgetCents:     1_050_00,
	})
	require.NoError(t, err)

	for i, inv := range fx.sellers {
		_, err := svc.PlaceBid(context.Background(), PlaceBidInput{
			TenderID: offer.TenderID, InvestorID: inv.InvestorID,
			ShareClassID: fx.shareClassID,
			RequestedShares: []int64{60, 50}[i], PriceCents: 10_00,
		})
		require.NoError(t, err)
	}

	finalized, dists, err := svc.Finalize(context.Background(), offer.TenderID, "")
	require.NoError(t, err)
	assert.Equal(t, int64(10_00), finalized.ClearingPriceCents)

	// First-come-first-served at the fixed price: 60 full, then 45 of 50.
	byInvestor := map[uuid.UUID]int64{}
	for _, d := range dists {
		byInvestor[d.InvestorID] = d.AmountCents
	}
	assert.Equal(t, int64(600_00), byInvestor[fx.sellers[0].InvestorID])
	assert.Equal(t, int64(450_00), byInvestor[fx.sellers[1].InvestorID])
}
