package tenders

import (
	"errors"
	"time"

	"captable-backend/internal/application/tender"
	"captable-backend/internal/domain"
	"captable-backend/internal/middleware"
	"captable-backend/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

type Handlers struct {
	Service *tender.Service
}

// OpenRequest body for POST /api/v1/tenders.
type OpenRequest struct {
	CompanyID             string `json:"company_id"`
	StartsAt              string `json:"starts_at"`
	EndsAt                string `json:"ends_at"`
	Mode                  string `json:"mode"`
	FixedPriceCents       int64  `json:"fixed_price_cents"`
	MinimumValuationCents int64  `json:"minimum_valuation_cents"`
	BudgetCents           int64  `json:"budget_cents"`
}

// POST /api/v1/tenders — open a tender offer
func (h *Handlers) Open(c *fiber.Ctx) error {
	var req OpenRequest
	if err := c.BodyParser(&req); err != nil {
		return response.Error(c, "Invalid request body", fiber.StatusBadRequest, nil)
	}
	companyID, err := uuid.Parse(req.CompanyID)
	if err != nil {
		return response.Error(c, "Invalid company_id format", fiber.StatusBadRequest, nil)
	}
	startsAt, err := time.Parse(time.RFC3339, req.StartsAt)
	if err != nil {
		return response.Error(c, "Invalid starts_at format", fiber.StatusBadRequest, nil)
	}
	endsAt, err := time.Parse(time.RFC3339, req.EndsAt)
	if err != nil {
		return response.Error(c, "Invalid ends_at format", fiber.StatusBadRequest, nil)
	}
	mode := domain.TenderMode(req.Mode)
	if mode != domain.TenderAuction && mode != domain.TenderFixedPrice {
		return response.Error(c, "mode must be auction or fixed_price", fiber.StatusBadRequest, nil)
	}

	offer, err := h.Service.Open(c.Context(), tender.OpenInput{
		CompanyID:             companyID,
		StartsAt:              startsAt,
		EndsAt:                endsAt,
		Mode:                  mode,
		FixedPriceCents:       req.FixedPriceCents,
		MinimumValuationCents: req.MinimumValuationCents,
		BudgetCents:           req.BudgetCents,
	})
	if err != nil {
		// Open only fails on validation; the service returns typed reasons.
		return response.Error(c, err.Error(), fiber.StatusBadRequest, nil)
	}
	return response.SuccessCreated(c, "Tender offer opened successfully", offer, nil)
}

// BidRequest body for POST /api/v1/tenders/:tender_id/bids.
type BidRequest struct {
	InvestorID      string `json:"investor_id"`
	ShareClassID    string `json:"share_class_id"`
	RequestedShares int64  `json:"requested_shares"`
	PriceCents      int64  `json:"price_cents"`
}

// POST /api/v1/tenders/:tender_id/bids — place a bid inside the window
func (h *Handlers) PlaceBid(c *fiber.Ctx) error {
	tenderID, err := uuid.Parse(c.Params("tender_id"))
	if err != nil {
		return response.Error(c, "Invalid tender_id format", fiber.StatusBadRequest, nil)
	}
	var req BidRequest
	if err := c.BodyParser(&req); err != nil {
		return response.Error(c, "Invalid request body", fiber.StatusBadRequest, nil)
	}
	investorID, err := uuid.Parse(req.InvestorID)
	if err != nil {
		return response.Error(c, "Invalid investor_id format", fiber.StatusBadRequest, nil)
	}
	shareClassID, err := uuid.Parse(req.ShareClassID)
	if err != nil {
		return response.Error(c, "Invalid share_class_id format", fiber.StatusBadRequest, nil)
	}

	bid, err := h.Service.PlaceBid(c.Context(), tender.PlaceBidInput{
		TenderID:        tenderID,
		InvestorID:      investorID,
		ShareClassID:    shareClassID,
		RequestedShares: req.RequestedShares,
		PriceCents:      req.PriceCents,
	})
	if err != nil {
		switch {
		case errors.Is(err, tender.ErrTenderNotFound):
			return response.Error(c, err.Error(), fiber.StatusNotFound, nil)
		case errors.Is(err, tender.ErrTenderClosed), errors.Is(err, tender.ErrWindowClosed):
			return response.Error(c, err.Error(), fiber.StatusConflict, nil)
		case errors.Is(err, tender.ErrInvalidBid), errors.Is(err, tender.ErrInsufficientShares):
			return response.Error(c, err.Error(), fiber.StatusBadRequest, nil)
		default:
			return response.Error(c, "Internal Server Error", fiber.StatusInternalServerError, nil)
		}
	}
	return response.SuccessCreated(c, "Bid placed successfully", bid, nil)
}

// POST /api/v1/tenders/:tender_id/preview — run the clearing engine, no side effects
func (h *Handlers) Preview(c *fiber.Ctx) error {
	tenderID, err := uuid.Parse(c.Params("tender_id"))
	if err != nil {
		return response.Error(c, "Invalid tender_id format", fiber.StatusBadRequest, nil)
	}
	result, bids, err := h.Service.Preview(c.Context(), tenderID)
	if err != nil {
		if errors.Is(err, tender.ErrTenderNotFound) {
			return response.Error(c, err.Error(), fiber.StatusNotFound, nil)
		}
		return response.Error(c, "Internal Server Error", fiber.StatusInternalServerError, nil)
	}
	return response.Success(c, "Clearing preview computed successfully", fiber.Map{
		"result": result,
		"bids":   bids,
	}, nil)
}

// POST /api/v1/tenders/:tender_id/finalize — clear and lock bids, one-shot
func (h *Handlers) Finalize(c *fiber.Ctx) error {
	tenderID, err := uuid.Parse(c.Params("tender_id"))
	if err != nil {
		return response.Error(c, "Invalid tender_id format", fiber.StatusBadRequest, nil)
	}
	offer, dists, err := h.Service.Finalize(c.Context(), tenderID, actorEmail(c))
	if err != nil {
		if errors.Is(err, tender.ErrTenderNotFound) {
			return response.Error(c, err.Error(), fiber.StatusNotFound, nil)
		}
		return response.Error(c, "Internal Server Error", fiber.StatusInternalServerError, nil)
	}
	return response.Success(c, "Tender offer finalized successfully", fiber.Map{
		"offer":         offer,
		"distributions": dists,
	}, nil)
}

func actorEmail(c *fiber.Ctx) string {
	if m, ok := middleware.GetUser(c).(map[string]interface{}); ok {
		if email, ok := m["email"].(string); ok {
			return email
		}
	}
	return ""
}
