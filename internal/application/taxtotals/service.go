package taxtotals

import (
	"context"
	"errors"
	"time"

	"captable-backend/internal/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Service exposes the per-recipient annual totals the external tax filing
// exporter consumes. Only completed return-of-capital distributions count
// toward the filed amount; withheld tax aggregates across everything paid.
type Service struct {
	DB *gorm.DB
}

var ErrBadYear = errors.New("year must be a four-digit calendar year")

// AnnualTotal is one investor's calendar-year line, the stable queryable
// shape behind the fixed-width export.
type AnnualTotal struct {
	InvestorID           uuid.UUID `json:"investor_id"`
	LegalName            string    `json:"legal_name"`
	ReturnOfCapitalCents int64     `json:"return_of_capital_cents"`
	WithheldCents        int64     `json:"withheld_cents"`
	CompletedCount       int       `json:"completed_count"`
}

// AnnualTotals aggregates a company's completed distributions for one
// calendar year, keyed by investor and ordered by investor ID.
func (s *Service) AnnualTotals(ctx context.Context, companyID uuid.UUID, year int) ([]AnnualTotal, error) {
	if year < 1000 || year > 9999 {
		return nil, ErrBadYear
	}
	start := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(1, 0, 0)

	var completed []domain.Distribution
	if err := s.DB.WithContext(ctx).
		Where("company_id = ? AND status = ? AND completed_at >= ? AND completed_at < ?",
			companyID, domain.DistributionCompleted, start, end).
		Order("investor_id").
		Find(&completed).Error; err != nil {
		return nil, err
	}
	if len(completed) == 0 {
		return []AnnualTotal{}, nil
	}

	// Return-of-capital status lives on the computation; tender proceeds are
	// sale consideration and never count as return of capital.
	rocComputations := map[uuid.UUID]bool{}
	for _, d := range completed {
		if d.ComputationID == nil {
			continue
		}
		if _, seen := rocComputations[*d.ComputationID]; seen {
			continue
		}
		var comp domain.DistributionComputation
		if err := s.DB.WithContext(ctx).
			Where("computation_id = ?", *d.ComputationID).
			First(&comp).Error; err != nil {
			return nil, err
		}
		rocComputations[*d.ComputationID] = comp.ReturnOfCapital
	}

	byInvestor := map[uuid.UUID]*AnnualTotal{}
	var order []uuid.UUID
	for _, d := range completed {
		line, ok := byInvestor[d.InvestorID]
		if !ok {
			line = &AnnualTotal{InvestorID: d.InvestorID}
			byInvestor[d.InvestorID] = line
			order = append(order, d.InvestorID)
		}
		line.WithheldCents += d.WithheldCents
		line.CompletedCount++
		if d.ComputationID != nil && rocComputations[*d.ComputationID] {
			line.ReturnOfCapitalCents += d.AmountCents
		}
	}

	totals := make([]AnnualTotal, 0, len(order))
	for _, id := range order {
		var investor domain.Investor
		if err := s.DB.WithContext(ctx).Where("investor_id = ?", id).First(&investor).Error; err == nil {
			byInvestor[id].LegalName = investor.LegalName
		}
		totals = append(totals, *byInvestor[id])
	}
	return totals, nil
}
