package settlement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"captable-backend/internal/application/audit"
	"captable-backend/internal/domain"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// Service drives Distributions through the settlement state machine. All
// transitions are conditional UPDATEs keyed on the current status, so two
// concurrent callers cannot both advance the same record.
type Service struct {
	DB              *gorm.DB
	Provider        Provider
	Clock           clockwork.Clock
	MaxRetries      int
	ProviderTimeout time.Duration
}

var (
	ErrDistributionNotFound = errors.New("Distribution not found")
	ErrPayoutNotVerified    = errors.New("Recipient payout destination is not verified")
	ErrNotFailed            = errors.New("Only failed distributions can be retried")
	ErrRetriesExhausted     = errors.New("Distribution exhausted retries and needs manual intervention")
	ErrNothingToSubmit      = errors.New("No ready distributions to submit")
	ErrBatchNotFunded       = errors.New("Settlement batch is not funded")
)

func (s *Service) clock() clockwork.Clock {
	if s.Clock == nil {
		return clockwork.NewRealClock()
	}
	return s.Clock
}

func (s *Service) providerTimeout() time.Duration {
	if s.ProviderTimeout <= 0 {
		return 30 * time.Second
	}
	return s.ProviderTimeout
}

func (s *Service) maxRetries() int {
	if s.MaxRetries <= 0 {
		return 3
	}
	return s.MaxRetries
}

// MarkReady advances Issued -> Ready once the recipient's payout destination
// is verified. Unverified recipients keep their record in Issued.
func (s *Service) MarkReady(ctx context.Context, distributionID uuid.UUID) (*domain.Distribution, error) {
	var dist domain.Distribution
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("distribution_id = ?", distributionID).First(&dist).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return ErrDistributionNotFound
			}
			return err
		}
		var investor domain.Investor
		if err := tx.Where("investor_id = ?", dist.InvestorID).First(&investor).Error; err != nil {
			return err
		}
		if !investor.PayoutVerified {
			return ErrPayoutNotVerified
		}
		if err := dist.TransitionTo(domain.DistributionReady); err != nil {
			return err
		}
		res := tx.Model(&domain.Distribution{}).
			Where("distribution_id = ? AND status = ?", distributionID, domain.DistributionIssued).
			Update("status", domain.DistributionReady)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("illegal distribution transition %s -> %s", dist.Status, domain.DistributionReady)
		}
		return audit.Append(tx, dist.CompanyID, domain.EventDistributionMoved, distributionID, "", map[string]interface{}{
			"from": domain.DistributionIssued, "to": domain.DistributionReady,
		})
	})
	if err != nil {
		return nil, err
	}
	return &dist, nil
}

// SubmitBatch groups a company's Ready distributions behind one funding pull.
// Funds are debited into the holding account and moved to the disbursement
// rail before any member advances to Processing; if funding fails, the batch
// is marked failed and every member stays Ready.
func (s *Service) SubmitBatch(ctx context.Context, companyID uuid.UUID, actorEmail string) (*domain.SettlementBatch, error) {
	var batch domain.SettlementBatch
	var members []domain.Distribution

	// Create the batch and attach members first so the funding reference is
	// durable before any provider call.
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var company domain.Company
		if err := tx.Where("company_id = ?", companyID).First(&company).Error; err != nil {
			return err
		}
		if err := tx.Where("company_id = ? AND status = ?", companyID, domain.DistributionReady).
			Order("distribution_id").
			Find(&members).Error; err != nil {
			return err
		}
		if len(members) == 0 {
			return ErrNothingToSubmit
		}
		var total int64
		for _, m := range members {
			total += m.NetCents
		}
		batch = domain.SettlementBatch{
			CompanyID:  companyID,
			TotalCents: total,
			Currency:   company.Currency,
			Status:     domain.BatchFunding,
		}
		if err := tx.Create(&batch).Error; err != nil {
			return err
		}
		ids := make([]uuid.UUID, len(members))
		for i, m := range members {
			ids[i] = m.DistributionID
		}
		return tx.Model(&domain.Distribution{}).
			Where("distribution_id IN ?", ids).
			Update("batch_id", batch.BatchID).Error
	})
	if err != nil {
		return nil, err
	}

	callCtx, cancel := context.WithTimeout(ctx, s.providerTimeout())
	defer cancel()
	if err := s.Provider.FundingPull(callCtx, batch.FundingReference, batch.TotalCents, batch.Currency); err != nil {
		s.failBatch(ctx, batch.BatchID, err)
		return nil, err
	}
	if err := s.Provider.Transfer(callCtx, "xfer_"+batch.BatchID.String(), batch.TotalCents, batch.Currency); err != nil {
		s.failBatch(ctx, batch.BatchID, err)
		return nil, err
	}

	// Funding confirmed: only now do members advance Ready -> Processing.
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := s.clock().Now()
		if err := tx.Model(&domain.SettlementBatch{}).
			Where("batch_id = ? AND status = ?", batch.BatchID, domain.BatchFunding).
			Updates(map[string]interface{}{"status": domain.BatchFunded, "funded_at": now}).Error; err != nil {
			return err
		}
		batch.Status = domain.BatchFunded
		batch.FundedAt = &now
		if err := tx.Model(&domain.Distribution{}).
			Where("batch_id = ? AND status = ?", batch.BatchID, domain.DistributionReady).
			Update("status", domain.DistributionProcessing).Error; err != nil {
			return err
		}
		return audit.Append(tx, companyID, domain.EventBatchFunded, batch.BatchID, actorEmail, map[string]interface{}{
			"total_cents": batch.TotalCents,
			"members":     len(members),
		})
	})
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("batch_id", batch.BatchID.String()).
		Int64("total_cents", batch.TotalCents).
		Int("members", len(members)).
		Msg("settlement batch funded")
	return &batch, nil
}

func (s *Service) failBatch(ctx context.Context, batchID uuid.UUID, cause error) {
	log.Error().Err(cause).Str("batch_id", batchID.String()).Msg("batch funding failed")
	if err := s.DB.WithContext(ctx).Model(&domain.SettlementBatch{}).
		Where("batch_id = ?", batchID).
		Update("status", domain.BatchFailed).Error; err != nil {
		log.Error().Err(err).Str("batch_id", batchID.String()).Msg("could not mark batch failed")
	}
}

// Settle executes the payout for one Processing distribution. It reconciles
// against the provider first: if the provider already completed the payout
// for this reference (a retry after an async success), the record completes
// without a second submission.
func (s *Service) Settle(ctx context.Context, distributionID uuid.UUID) error {
	var dist domain.Distribution
	if err := s.DB.WithContext(ctx).Where("distribution_id = ?", distributionID).First(&dist).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return ErrDistributionNotFound
		}
		return err
	}
	if dist.Status != domain.DistributionProcessing {
		return fmt.Errorf("distribution %s is %s, not processing", distributionID, dist.Status)
	}
	if dist.BatchID == nil {
		return ErrBatchNotFunded
	}
	var batch domain.SettlementBatch
	if err := s.DB.WithContext(ctx).Where("batch_id = ?", *dist.BatchID).First(&batch).Error; err != nil {
		return err
	}
	if batch.Status != domain.BatchFunded {
		return ErrBatchNotFunded
	}

	var investor domain.Investor
	if err := s.DB.WithContext(ctx).Where("investor_id = ?", dist.InvestorID).First(&investor).Error; err != nil {
		return err
	}
	destination := ""
	if investor.PayoutProviderRef != nil {
		destination = *investor.PayoutProviderRef
	}

	callCtx, cancel := context.WithTimeout(ctx, s.providerTimeout())
	defer cancel()

	status, err := s.Provider.GetStatus(callCtx, dist.PayoutReference)
	if err == nil && status == ProviderSucceeded {
		return s.complete(ctx, &dist)
	}
	if err == nil && status == ProviderPending {
		// In flight on the provider side; leave Processing alone.
		return nil
	}

	if err := s.Provider.Payout(callCtx, dist.PayoutReference, destination, dist.NetCents, batch.Currency); err != nil {
		return s.fail(ctx, &dist, err)
	}
	return s.complete(ctx, &dist)
}

func (s *Service) complete(ctx context.Context, dist *domain.Distribution) error {
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := s.clock().Now()
		res := tx.Model(&domain.Distribution{}).
			Where("distribution_id = ? AND status = ?", dist.DistributionID, domain.DistributionProcessing).
			Updates(map[string]interface{}{"status": domain.DistributionCompleted, "completed_at": now})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil // someone else already moved it
		}
		log.Info().
			Str("distribution_id", dist.DistributionID.String()).
			Int64("net_cents", dist.NetCents).
			Msg("distribution completed")
		return audit.Append(tx, dist.CompanyID, domain.EventDistributionMoved, dist.DistributionID, "", map[string]interface{}{
			"from": domain.DistributionProcessing, "to": domain.DistributionCompleted,
		})
	})
}

func (s *Service) fail(ctx context.Context, dist *domain.Distribution, cause error) error {
	msg := cause.Error()
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&domain.Distribution{}).
			Where("distribution_id = ? AND status = ?", dist.DistributionID, domain.DistributionProcessing).
			Updates(map[string]interface{}{"status": domain.DistributionFailed, "last_error": msg})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}
		return audit.Append(tx, dist.CompanyID, domain.EventDistributionMoved, dist.DistributionID, "", map[string]interface{}{
			"from": domain.DistributionProcessing, "to": domain.DistributionFailed, "error": msg,
		})
	})
	if err != nil {
		return err
	}
	log.Warn().
		Str("distribution_id", dist.DistributionID.String()).
		Str("error", msg).
		Msg("distribution payout failed")
	return cause
}

// Retry re-enters Failed -> Processing, bounded by the retry budget. Beyond
// the budget the record stays Failed and surfaces as needing manual
// intervention; it is never retried automatically.
func (s *Service) Retry(ctx context.Context, distributionID uuid.UUID, actorEmail string) (*domain.Distribution, error) {
	var dist domain.Distribution
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("distribution_id = ?", distributionID).First(&dist).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return ErrDistributionNotFound
			}
			return err
		}
		if dist.Status != domain.DistributionFailed {
			return ErrNotFailed
		}
		if dist.RetryCount >= s.maxRetries() {
			return ErrRetriesExhausted
		}
		res := tx.Model(&domain.Distribution{}).
			Where("distribution_id = ? AND status = ?", distributionID, domain.DistributionFailed).
			Updates(map[string]interface{}{
				"status":      domain.DistributionProcessing,
				"retry_count": gorm.Expr("retry_count + 1"),
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFailed
		}
		dist.Status = domain.DistributionProcessing
		dist.RetryCount++
		return audit.Append(tx, dist.CompanyID, domain.EventDistributionMoved, distributionID, actorEmail, map[string]interface{}{
			"from": domain.DistributionFailed, "to": domain.DistributionProcessing, "retry": dist.RetryCount,
		})
	})
	if err != nil {
		return nil, err
	}
	return &dist, nil
}

// List returns distributions filtered by computation, tender or status.
func (s *Service) List(ctx context.Context, companyID uuid.UUID, status string) ([]domain.Distribution, error) {
	q := s.DB.WithContext(ctx).Where("company_id = ?", companyID)
	if status != "" {
		q = q.Where("status = ?", status)
	}
	var dists []domain.Distribution
	err := q.Order("distribution_id").Find(&dists).Error
	return dists, err
}
