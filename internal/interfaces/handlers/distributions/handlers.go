package distributions

import (
	"errors"

	"captable-backend/internal/application/settlement"
	"captable-backend/internal/middleware"
	"captable-backend/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

type Handlers struct {
	Service *settlement.Service
}

// GET /api/v1/distributions?company_id=&status=
func (h *Handlers) List(c *fiber.Ctx) error {
	companyID, err := uuid.Parse(c.Query("company_id"))
	if err != nil {
		return response.Error(c, "Invalid company_id format", fiber.StatusBadRequest, nil)
	}
	dists, err := h.Service.List(c.Context(), companyID, c.Query("status"))
	if err != nil {
		return response.Error(c, "Internal Server Error", fiber.StatusInternalServerError, nil)
	}
	return response.Success(c, "Distributions fetched successfully", dists, nil)
}

// POST /api/v1/distributions/:distribution_id/ready — verified destination, release for batching
func (h *Handlers) MarkReady(c *fiber.Ctx) error {
	distributionID, err := uuid.Parse(c.Params("distribution_id"))
	if err != nil {
		return response.Error(c, "Invalid distribution_id format", fiber.StatusBadRequest, nil)
	}
	dist, err := h.Service.MarkReady(c.Context(), distributionID)
	if err != nil {
		switch {
		case errors.Is(err, settlement.ErrDistributionNotFound):
			return response.Error(c, err.Error(), fiber.StatusNotFound, nil)
		case errors.Is(err, settlement.ErrPayoutNotVerified):
			return response.Error(c, err.Error(), fiber.StatusConflict, nil)
		default:
			return response.Error(c, err.Error(), fiber.StatusConflict, nil)
		}
	}
	return response.Success(c, "Distribution marked ready", dist, nil)
}

// SubmitBatchRequest body for POST /api/v1/distributions/submit-batch.
type SubmitBatchRequest struct {
	CompanyID string `json:"company_id"`
}

// POST /api/v1/distributions/submit-batch — fund and start processing all Ready records
func (h *Handlers) SubmitBatch(c *fiber.Ctx) error {
	var req SubmitBatchRequest
	if err := c.BodyParser(&req); err != nil {
		return response.Error(c, "Invalid request body", fiber.StatusBadRequest, nil)
	}
	companyID, err := uuid.Parse(req.CompanyID)
	if err != nil {
		return response.Error(c, "Invalid company_id format", fiber.StatusBadRequest, nil)
	}
	batch, err := h.Service.SubmitBatch(c.Context(), companyID, actorEmail(c))
	if err != nil {
		if errors.Is(err, settlement.ErrNothingToSubmit) {
			return response.Error(c, err.Error(), fiber.StatusConflict, nil)
		}
		// Funding or transfer failure: batch is marked failed, members stay ready.
		return response.Error(c, err.Error(), fiber.StatusBadGateway, nil)
	}
	return response.Success(c, "Settlement batch funded successfully", batch, nil)
}

// POST /api/v1/distributions/:distribution_id/retry — operator retry of a Failed payout
func (h *Handlers) Retry(c *fiber.Ctx) error {
	distributionID, err := uuid.Parse(c.Params("distribution_id"))
	if err != nil {
		return response.Error(c, "Invalid distribution_id format", fiber.StatusBadRequest, nil)
	}
	dist, err := h.Service.Retry(c.Context(), distributionID, actorEmail(c))
	if err != nil {
		switch {
		case errors.Is(err, settlement.ErrDistributionNotFound):
			return response.Error(c, err.Error(), fiber.StatusNotFound, nil)
		case errors.Is(err, settlement.ErrNotFailed), errors.Is(err, settlement.ErrRetriesExhausted):
			return response.Error(c, err.Error(), fiber.StatusConflict, nil)
		default:
			return response.Error(c, "Internal Server Error", fiber.StatusInternalServerError, nil)
		}
	}
	return response.Success(c, "Distribution queued for retry", dist, nil)
}

func actorEmail(c *fiber.Ctx) string {
	if m, ok := middleware.GetUser(c).(map[string]interface{}); ok {
		if email, ok := m["email"].(string); ok {
			return email
		}
	}
	return ""
}
