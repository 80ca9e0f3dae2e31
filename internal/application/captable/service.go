package captable

import (
	"context"
	"errors"
	"sort"
	"time"

	"captable-backend/internal/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Service assembles cap table snapshots from the relational store.
type Service struct {
	DB *gorm.DB
}

var ErrCompanyNotFound = errors.New("Company not found")

// SnapshotAsOf builds the read-only snapshot used by computations: every
// share class of the company, holdings acquired on or before asOf, and
// convertibles that were not yet converted at asOf.
func (s *Service) SnapshotAsOf(ctx context.Context, companyID uuid.UUID, asOf time.Time) (*Snapshot, error) {
	var company domain.Company
	if err := s.DB.WithContext(ctx).Where("company_id = ?", companyID).First(&company).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, ErrCompanyNotFound
		}
		return nil, err
	}

	var classes []domain.ShareClass
	if err := s.DB.WithContext(ctx).
		Where("company_id = ?", companyID).
		Find(&classes).Error; err != nil {
		return nil, err
	}

	snap := &Snapshot{CompanyID: companyID, AsOf: asOf}
	for _, cl := range classes {
		var holdings []domain.Holding
		if err := s.DB.WithContext(ctx).
			Where("share_class_id = ? AND acquired_at <= ?", cl.ShareClassID, asOf).
			Order("holding_id").
			Find(&holdings).Error; err != nil {
			return nil, err
		}
		view := ClassView{
			ShareClassID:  cl.ShareClassID,
			Name:          cl.Name,
			SeniorityRank: cl.SeniorityRank,
			PreferenceBps: cl.PreferenceBps,
			Participating: cl.Participating,
			ConversionBps: cl.ConversionBps,
			HurdleBps:     cl.DividendHurdleBps,
			IsCommon:      cl.IsCommon,
		}
		for _, h := range holdings {
			view.Holdings = append(view.Holdings, HoldingView{
				InvestorID:      h.InvestorID,
				ShareCount:      h.ShareCount,
				InvestmentCents: h.InvestmentCents,
			})
		}
		snap.Classes = append(snap.Classes, view)
	}

	// A note converted after asOf still counts as a note at asOf.
	var convertibles []domain.ConvertibleSecurity
	if err := s.DB.WithContext(ctx).
		Where("company_id = ? AND (converted_at IS NULL OR converted_at > ?)", companyID, asOf).
		Order("convertible_id").
		Find(&convertibles).Error; err != nil {
		return nil, err
	}
	for _, cv := range convertibles {
		// AsConvertedShares is maintained on the record from the note's cap
		// and discount terms at issuance; the snapshot does not reprice it.
		snap.Convertibles = append(snap.Convertibles, ConvertibleView{
			InvestorID:        cv.InvestorID,
			PrincipalCents:    cv.PrincipalCents,
			AsConvertedShares: cv.AsConvertedShares,
		})
	}

	// Stable class order: seniority rank ascending (common last), then ID.
	sort.SliceStable(snap.Classes, func(i, j int) bool {
		a, b := snap.Classes[i], snap.Classes[j]
		switch {
		case a.SeniorityRank == nil && b.SeniorityRank == nil:
			return a.ShareClassID.String() < b.ShareClassID.String()
		case a.SeniorityRank == nil:
			return false
		case b.SeniorityRank == nil:
			return true
		case *a.SeniorityRank != *b.SeniorityRank:
			return *a.SeniorityRank < *b.SeniorityRank
		default:
			return a.ShareClassID.String() < b.ShareClassID.String()
		}
	})

	return snap, nil
}
