package computations

import (
	"errors"
	"time"

	"captable-backend/internal/application/waterfall"
	"captable-backend/internal/middleware"
	"captable-backend/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

type Handlers struct {
	Service *waterfall.Service
}

// CreateRequest body for POST /api/v1/computations.
type CreateRequest struct {
	CompanyID        string `json:"company_id"`
	TotalCents       int64  `json:"total_cents"`
	IssuanceDate     string `json:"issuance_date"`
	ReturnOfCapital  bool   `json:"return_of_capital"`
	QualifiedRateBps int64  `json:"qualified_rate_bps"`
	SnapshotAsOf     string `json:"snapshot_as_of"`
}

// POST /api/v1/computations — create a draft computation
func (h *Handlers) Create(c *fiber.Ctx) error {
	var req CreateRequest
	if err := c.BodyParser(&req); err != nil {
		return response.Error(c, "Invalid request body", fiber.StatusBadRequest, nil)
	}
	companyID, err := uuid.Parse(req.CompanyID)
	if err != nil {
		return response.Error(c, "Invalid company_id format", fiber.StatusBadRequest, nil)
	}
	issuance, err := parseDate(req.IssuanceDate)
	if err != nil {
		return response.Error(c, "Invalid issuance_date format", fiber.StatusBadRequest, nil)
	}
	asOf := issuance
	if req.SnapshotAsOf != "" {
		if asOf, err = parseDate(req.SnapshotAsOf); err != nil {
			return response.Error(c, "Invalid snapshot_as_of format", fiber.StatusBadRequest, nil)
		}
	}

	comp, err := h.Service.CreateDraft(c.Context(), waterfall.CreateDraftInput{
		CompanyID:        companyID,
		TotalCents:       req.TotalCents,
		IssuanceDate:     issuance,
		ReturnOfCapital:  req.ReturnOfCapital,
		QualifiedRateBps: req.QualifiedRateBps,
		SnapshotAsOf:     asOf,
	})
	if err != nil {
		if errors.Is(err, waterfall.ErrZeroTotal) {
			return response.Error(c, err.Error(), fiber.StatusBadRequest, nil)
		}
		return response.Error(c, "Internal Server Error", fiber.StatusInternalServerError, nil)
	}
	return response.SuccessCreated(c, "Computation created successfully", comp, nil)
}

// GET /api/v1/computations?company_id=
func (h *Handlers) List(c *fiber.Ctx) error {
	companyID, err := uuid.Parse(c.Query("company_id"))
	if err != nil {
		return response.Error(c, "Invalid company_id format", fiber.StatusBadRequest, nil)
	}
	comps, err := h.Service.List(c.Context(), companyID)
	if err != nil {
		return response.Error(c, "Internal Server Error", fiber.StatusInternalServerError, nil)
	}
	return response.Success(c, "Computations fetched successfully", comps, nil)
}

// GET /api/v1/computations/:computation_id — computation with its outputs
func (h *Handlers) Get(c *fiber.Ctx) error {
	computationID, err := uuid.Parse(c.Params("computation_id"))
	if err != nil {
		return response.Error(c, "Invalid computation_id format", fiber.StatusBadRequest, nil)
	}
	comp, outputs, err := h.Service.Get(c.Context(), computationID)
	if err != nil {
		if errors.Is(err, waterfall.ErrComputationNotFound) {
			return response.Error(c, err.Error(), fiber.StatusNotFound, nil)
		}
		return response.Error(c, "Internal Server Error", fiber.StatusInternalServerError, nil)
	}
	return response.Success(c, "Computation fetched successfully", fiber.Map{
		"computation": comp,
		"outputs":     outputs,
	}, nil)
}

// POST /api/v1/computations/:computation_id/compute — run the waterfall over a draft
func (h *Handlers) Compute(c *fiber.Ctx) error {
	computationID, err := uuid.Parse(c.Params("computation_id"))
	if err != nil {
		return response.Error(c, "Invalid computation_id format", fiber.StatusBadRequest, nil)
	}
	outputs, err := h.Service.Recompute(c.Context(), computationID)
	if err != nil {
		return response.Error(c, err.Error(), computeStatus(err), nil)
	}
	return response.Success(c, "Computation computed successfully", outputs, nil)
}

// POST /api/v1/computations/:computation_id/finalize — one-shot finalize
func (h *Handlers) Finalize(c *fiber.Ctx) error {
	computationID, err := uuid.Parse(c.Params("computation_id"))
	if err != nil {
		return response.Error(c, "Invalid computation_id format", fiber.StatusBadRequest, nil)
	}
	dists, err := h.Service.Finalize(c.Context(), computationID, actorEmail(c))
	if err != nil {
		switch {
		case errors.Is(err, waterfall.ErrComputationNotFound):
			return response.Error(c, err.Error(), fiber.StatusNotFound, nil)
		case errors.Is(err, waterfall.ErrNotComputed):
			return response.Error(c, err.Error(), fiber.StatusConflict, nil)
		default:
			return response.Error(c, "Internal Server Error", fiber.StatusInternalServerError, nil)
		}
	}
	return response.Success(c, "Computation finalized successfully", dists, nil)
}

func computeStatus(err error) int {
	switch {
	case errors.Is(err, waterfall.ErrComputationNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, waterfall.ErrNotDraft):
		return fiber.StatusConflict
	case errors.Is(err, waterfall.ErrEmptySnapshot),
		errors.Is(err, waterfall.ErrZeroShares),
		errors.Is(err, waterfall.ErrZeroInvestment),
		errors.Is(err, waterfall.ErrMissingSeniority),
		errors.Is(err, waterfall.ErrNoResidualClaimant):
		return fiber.StatusUnprocessableEntity
	default:
		return fiber.StatusInternalServerError
	}
}

func parseDate(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", s)
}

func actorEmail(c *fiber.Ctx) string {
	if m, ok := middleware.GetUser(c).(map[string]interface{}); ok {
		if email, ok := m["email"].(string); ok {
			return email
		}
	}
	return ""
}
