package taxtotals

import (
	"errors"
	"strconv"

	"captable-backend/internal/application/taxtotals"
	"captable-backend/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

type Handlers struct {
	Service *taxtotals.Service
}

// GET /api/v1/tax-totals?company_id=&year= — per-investor annual totals
func (h *Handlers) Annual(c *fiber.Ctx) error {
	companyID, err := uuid.Parse(c.Query("company_id"))
	if err != nil {
		return response.Error(c, "Invalid company_id format", fiber.StatusBadRequest, nil)
	}
	year, err := strconv.Atoi(c.Query("year"))
	if err != nil {
		return response.Error(c, "year is required", fiber.StatusBadRequest, nil)
	}
	totals, err := h.Service.AnnualTotals(c.Context(), companyID, year)
	if err != nil {
		if errors.Is(err, taxtotals.ErrBadYear) {
			return response.Error(c, err.Error(), fiber.StatusBadRequest, nil)
		}
		return response.Error(c, "Internal Server Error", fiber.StatusInternalServerError, nil)
	}
	return response.Success(c, "Annual totals fetched successfully", fiber.Map{
		"year":   year,
		"totals": totals,
	}, nil)
}
