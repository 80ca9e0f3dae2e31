package tender

import (
	"context"
	"errors"
	"sort"
	"time"

	"captable-backend/internal/application/audit"
	"captable-backend/internal/domain"
	"captable-backend/internal/pkg/money"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// Service manages tender offers: opening, bid intake, clearing previews and
// the one-shot finalize that locks bids and spawns seller payables.
type Service struct {
	DB                      *gorm.DB
	RetentionThresholdCents int64
}

var (
	ErrTenderNotFound     = errors.New("Tender offer not found")
	ErrTenderClosed       = errors.New("Tender offer is not open")
	ErrWindowClosed       = errors.New("Tender window is not accepting bids")
	ErrInsufficientShares = errors.New("Bid exceeds shares held in this class")
)

// OpenInput describes a new tender offer.
type OpenInput struct {
	CompanyID             uuid.UUID
	StartsAt              time.Time
	EndsAt                time.Time
	Mode                  domain.TenderMode
	FixedPriceCents       int64
	MinimumValuationCents int64
	BudgetCents           int64
}

// Open creates a tender offer in the open state.
func (s *Service) Open(ctx context.Context, input OpenInput) (*domain.TenderOffer, error) {
	if input.BudgetCents <= 0 {
		return nil, ErrInvalidBudget
	}
	if input.Mode == domain.TenderFixedPrice && input.FixedPriceCents <= 0 {
		return nil, ErrBadFixedPrice
	}
	if !input.EndsAt.After(input.StartsAt) {
		return nil, errors.New("Tender window must end after it starts")
	}
	offer := domain.TenderOffer{
		CompanyID:             input.CompanyID,
		StartsAt:              input.StartsAt,
		EndsAt:                input.EndsAt,
		Mode:                  input.Mode,
		FixedPriceCents:       input.FixedPriceCents,
		MinimumValuationCents: input.MinimumValuationCents,
		BudgetCents:           input.BudgetCents,
		Status:                domain.TenderOpen,
	}
	if err := s.DB.WithContext(ctx).Create(&offer).Error; err != nil {
		return nil, err
	}
	return &offer, nil
}

// PlaceBidInput is one seller's offer into an open window.
type PlaceBidInput struct {
	TenderID        uuid.UUID
	InvestorID      uuid.UUID
	ShareClassID    uuid.UUID
	RequestedShares int64
	PriceCents      int64
}

// PlaceBid validates the bid against the window and the seller's actual
// position before persisting. A bid for more shares than held is rejected
// with no state created.
func (s *Service) PlaceBid(ctx context.Context, input PlaceBidInput) (*domain.Bid, error) {
	if input.RequestedShares <= 0 || input.PriceCents <= 0 {
		return nil, ErrInvalidBid
	}

	var bid domain.Bid
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var offer domain.TenderOffer
		if err := tx.Where("tender_id = ?", input.TenderID).First(&offer).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return ErrTenderNotFound
			}
			return err
		}
		if offer.Status != domain.TenderOpen {
			return ErrTenderClosed
		}
		now := time.Now()
		if now.Before(offer.StartsAt) || !now.Before(offer.EndsAt) {
			return ErrWindowClosed
		}

		var held int64
		if err := tx.Model(&domain.Holding{}).
			Where("investor_id = ? AND share_class_id = ?", input.InvestorID, input.ShareClassID).
			Select("COALESCE(SUM(share_count), 0)").
			Scan(&held).Error; err != nil {
			return err
		}
		var alreadyBid int64
		if err := tx.Model(&domain.Bid{}).
			Where("tender_id = ? AND investor_id = ? AND share_class_id = ?", input.TenderID, input.InvestorID, input.ShareClassID).
			Select("COALESCE(SUM(requested_shares), 0)").
			Scan(&alreadyBid).Error; err != nil {
			return err
		}
		if input.RequestedShares+alreadyBid > held {
			return ErrInsufficientShares
		}

		bid = domain.Bid{
			TenderID:        input.TenderID,
			InvestorID:      input.InvestorID,
			ShareClassID:    input.ShareClassID,
			RequestedShares: input.RequestedShares,
			PriceCents:      input.PriceCents,
			SubmittedAt:     now,
		}
		return tx.Create(&bid).Error
	})
	if err != nil {
		return nil, err
	}
	return &bid, nil
}

// Preview runs the clearing engine over the current bids without touching
// any state. Safe to call repeatedly while the window is open.
func (s *Service) Preview(ctx context.Context, tenderID uuid.UUID) (*ClearResult, []domain.Bid, error) {
	var offer domain.TenderOffer
	if err := s.DB.WithContext(ctx).Where("tender_id = ?", tenderID).First(&offer).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil, ErrTenderNotFound
		}
		return nil, nil, err
	}
	var bids []domain.Bid
	if err := s.DB.WithContext(ctx).
		Where("tender_id = ?", tenderID).
		Order("bid_id").
		Find(&bids).Error; err != nil {
		return nil, nil, err
	}
	result, err := Clear(clearInputFor(offer, bids))
	if err != nil {
		return nil, nil, err
	}
	return result, bids, nil
}

// Finalize clears the auction and locks every bid, exactly once. The status
// flip is a conditional UPDATE in the same transaction as the bid writes and
// payable creation; a repeated finalize observes zero rows affected and
// returns the stored result with no side effects.
func (s *Service) Finalize(ctx context.Context, tenderID uuid.UUID, actorEmail string) (*domain.TenderOffer, []domain.Distribution, error) {
	var offer domain.TenderOffer
	var distributions []domain.Distribution

	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("tender_id = ?", tenderID).First(&offer).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return ErrTenderNotFound
			}
			return err
		}

		now := time.Now()
		res := tx.Model(&domain.TenderOffer{}).
			Where("tender_id = ? AND status = ?", tenderID, domain.TenderOpen).
			Updates(map[string]interface{}{"status": domain.TenderFinalized, "finalized_at": now})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			// Already finalized: return what the first finalize produced.
			if err := tx.Where("tender_id = ?", tenderID).First(&offer).Error; err != nil {
				return err
			}
			return tx.Where("tender_id = ?", tenderID).
				Order("investor_id").
				Find(&distributions).Error
		}

		var bids []domain.Bid
		if err := tx.Where("tender_id = ?", tenderID).Order("bid_id").Find(&bids).Error; err != nil {
			return err
		}
		result, err := Clear(clearInputFor(offer, bids))
		if err != nil {
			return err
		}

		offer.Status = domain.TenderFinalized
		offer.FinalizedAt = &now
		offer.ClearingPriceCents = result.ClearingPriceCents
		if err := tx.Model(&domain.TenderOffer{}).
			Where("tender_id = ?", tenderID).
			Update("clearing_price_cents", result.ClearingPriceCents).Error; err != nil {
			return err
		}

		// Accepted counts are written exactly once, here.
		proceeds := map[uuid.UUID]int64{}
		for i, bid := range bids {
			accepted := result.AcceptedShares[i]
			if err := tx.Model(&domain.Bid{}).
				Where("bid_id = ?", bid.BidID).
				Update("accepted_shares", accepted).Error; err != nil {
				return err
			}
			if accepted > 0 {
				proceeds[bid.InvestorID] += accepted * result.ClearingPriceCents
			}
		}

		for _, investorID := range sortedInvestorIDs(proceeds) {
			amount := proceeds[investorID]
			var investor domain.Investor
			if err := tx.Where("investor_id = ?", investorID).First(&investor).Error; err != nil {
				return err
			}
			withheld := money.ApplyBps(amount, investor.TaxWithholdingBps)
			net := amount - withheld
			dist := domain.Distribution{
				CompanyID:     offer.CompanyID,
				TenderID:      &offer.TenderID,
				InvestorID:    investorID,
				AmountCents:   amount,
				WithheldCents: withheld,
				NetCents:      net,
				Status:        domain.DistributionIssued,
			}
			if net < s.RetentionThresholdCents {
				dist.Status = domain.DistributionRetained
			}
			if err := tx.Create(&dist).Error; err != nil {
				return err
			}
			distributions = append(distributions, dist)
		}

		return audit.Append(tx, offer.CompanyID, domain.EventTenderFinalized, tenderID, actorEmail, map[string]interface{}{
			"clearing_price_cents": result.ClearingPriceCents,
			"total_shares":         result.TotalShares,
			"total_cost_cents":     result.TotalCostCents,
			"sellers":              len(distributions),
		})
	})
	if err != nil {
		return nil, nil, err
	}

	log.Info().
		Str("tender_id", tenderID.String()).
		Int64("clearing_price_cents", offer.ClearingPriceCents).
		Int("sellers", len(distributions)).
		Msg("tender offer finalized")
	return &offer, distributions, nil
}

func clearInputFor(offer domain.TenderOffer, bids []domain.Bid) ClearInput {
	input := ClearInput{
		Mode:            offer.Mode,
		BudgetCents:     offer.BudgetCents,
		FixedPriceCents: offer.FixedPriceCents,
	}
	for _, b := range bids {
		input.Bids = append(input.Bids, BidInput{
			BidID:           b.BidID,
			RequestedShares: b.RequestedShares,
			PriceCents:      b.PriceCents,
			SubmittedAt:     b.SubmittedAt,
		})
	}
	return input
}

func sortedInvestorIDs(m map[uuid.UUID]int64) []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
	return ids
}
