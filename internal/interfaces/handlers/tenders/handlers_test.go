package tenders

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"captable-backend/internal/application/tender"
	"captable-backend/internal/domain"

	"github.com/glebarez/sqlite"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func setupTendersTest(t *testing.T) (*Handlers, *gorm.DB) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&domain.Company{}, &domain.Investor{}, &domain.ShareClass{},
		&domain.Holding{}, &domain.TenderOffer{}, &domain.Bid{},
		&domain.Distribution{}, &domain.LedgerEvent{},
	))
	return &Handlers{Service: &tender.Service{DB: db}}, db
}

func seedSeller(t *testing.T, db *gorm.DB, shares int64) (uuid.UUID, uuid.UUID, uuid.UUID) {
	company := domain.Company{Name: "Tender Co", Currency: "usd"}
	require.NoError(t, db.Create(&company).Error)
	investor := domain.Investor{CompanyID: company.CompanyID, LegalName: "Seller", Email: "seller@tender.test"}
	require.NoError(t, db.Create(&investor).Error)
	class := domain.ShareClass{CompanyID: company.CompanyID, Name: "Common", IsCommon: true, ConversionBps: 10000}
	require.NoError(t, db.Create(&class).Error)
	require.NoError(t, db.Create(&domain.Holding{
		InvestorID: investor.InvestorID, ShareClassID: class.ShareClassID,
		ShareCount: shares, InvestmentCents: shares, AcquiredAt: time.Now().Add(-time.Hour),
	}).Error)
	return company.CompanyID, investor.InvestorID, class.ShareClassID
}

func post(t *testing.T, app *fiber.App, path string, body interface{}) (*map[string]interface{}, int) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest("POST", path, reader)
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)
	var out map[string]interface{}
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return &out, resp.StatusCode
}

func TestOpen_RejectsBadMode(t *testing.T) {
	h, db := setupTendersTest(t)
	companyID, _, _ := seedSeller(t, db, 100)
	app := fiber.New()
	app.Post("/tenders", h.Open)

	_, code := post(t, app, "/tenders", map[string]interface{}{
		"company_id":   companyID.String(),
		"starts_at":    time.Now().Format(time.RFC3339),
		"ends_at":      time.Now().Add(time.Hour).Format(time.RFC3339),
		"mode":         "dutch",
		"budget_cents": 1000,
	})
	assert.Equal(t, fiber.StatusBadRequest, code)
}

func TestTenderLifecycle(t *testing.T) {
	h, db := setupTendersTest(t)
	companyID, investorID, classID := seedSeller(t, db, 100)
	app := fiber.New()
	app.Post("/tenders", h.Open)
	app.Post("/tenders/:tender_id/bids", h.PlaceBid)
	app.Post("/tenders/:tender_id/preview", h.Preview)
	app.Post("/tenders/:tender_id/finalize", h.Finalize)

	out, code := post(t, app, "/tenders", map[string]interface{}{
		"company_id":   companyID.String(),
		"starts_at":    time.Now().Add(-time.Minute).Format(time.RFC3339),
		"ends_at":      time.Now().Add(time.Hour).Format(time.RFC3339),
		"mode":         "auction",
		"budget_cents": 4_000_00,
	})
	require.Equal(t, fiber.StatusCreated, code)
	data := (*out)["data"].(map[string]interface{})
	tenderID := data["tender_id"].(string)

	// Over-position bid rejected.
	_, code = post(t, app, "/tenders/"+tenderID+"/bids", map[string]interface{}{
		"investor_id": investorID.String(), "share_class_id": classID.String(),
		"requested_shares": 101, "price_cents": 10_00,
	})
	assert.Equal(t, fiber.StatusBadRequest, code)

	// Valid bid.
	_, code = post(t, app, "/tenders/"+tenderID+"/bids", map[string]interface{}{
		"investor_id": investorID.String(), "share_class_id": classID.String(),
		"requested_shares": 100, "price_cents": 10_00,
	})
	require.Equal(t, fiber.StatusCreated, code)

	// Preview computes the clearing without locking anything.
	out, code = post(t, app, "/tenders/"+tenderID+"/preview", nil)
	require.Equal(t, fiber.StatusOK, code)
	preview := (*out)["data"].(map[string]interface{})["result"].(map[string]interface{})
	assert.Equal(t, float64(10_00), preview["clearing_price_cents"])

	// Finalize locks bids and pays the seller.
	out, code = post(t, app, "/tenders/"+tenderID+"/finalize", nil)
	require.Equal(t, fiber.StatusOK, code)
	final := (*out)["data"].(map[string]interface{})
	dists := final["distributions"].([]interface{})
	require.Len(t, dists, 1)

	// Bidding after finalize is rejected.
	_, code = post(t, app, "/tenders/"+tenderID+"/bids", map[string]interface{}{
		"investor_id": investorID.String(), "share_class_id": classID.String(),
		"requested_shares": 1, "price_cents": 10_00,
	})
	assert.Equal(t, fiber.StatusConflict, code)
}

func TestPreview_UnknownTender(t *testing.T) {
	h, _ := setupTendersTest(t)
	app := fiber.New()
	app.Post("/tenders/:tender_id/preview", h.Preview)

	_, code := post(t, app, "/tenders/"+uuid.NewString()+"/preview", nil)
	assert.Equal(t, fiber.StatusNotFound, code)
}
