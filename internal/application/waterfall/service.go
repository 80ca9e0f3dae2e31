package waterfall

import (
	"context"
	"errors"
	"time"

	"captable-backend/internal/application/audit"
	"captable-backend/internal/application/captable"
	"captable-backend/internal/domain"
	"captable-backend/internal/pkg/money"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// Service runs distribution computations: draft creation, recomputation, and
// the one-shot finalize that spawns Distribution records.
type Service struct {
	DB       *gorm.DB
	Captable *captable.Service
	// RetentionThresholdCents is the de-minimis floor: distributions whose
	// net falls below it are retained instead of paid out.
	RetentionThresholdCents int64
}

var (
	ErrComputationNotFound = errors.New("Computation not found")
	ErrNotDraft            = errors.New("Computation is not a draft")
	ErrNotComputed         = errors.New("Computation has no outputs; run compute first")
)

// CreateDraftInput for a new draft computation.
type CreateDraftInput struct {
	CompanyID        uuid.UUID
	TotalCents       int64
	IssuanceDate     time.Time
	ReturnOfCapital  bool
	QualifiedRateBps int64
	SnapshotAsOf     time.Time
}

// CreateDraft persists a draft computation. Drafts carry no outputs until
// Recompute runs; they are freely discardable.
func (s *Service) CreateDraft(ctx context.Context, input CreateDraftInput) (*domain.DistributionComputation, error) {
	if input.TotalCents <= 0 {
		return nil, ErrZeroTotal
	}
	comp := domain.DistributionComputation{
		CompanyID:        input.CompanyID,
		TotalCents:       input.TotalCents,
		IssuanceDate:     input.IssuanceDate,
		ReturnOfCapital:  input.ReturnOfCapital,
		QualifiedRateBps: input.QualifiedRateBps,
		SnapshotAsOf:     input.SnapshotAsOf,
		Status:           domain.ComputationDraft,
	}
	if err := s.DB.WithContext(ctx).Create(&comp).Error; err != nil {
		return nil, err
	}
	return &comp, nil
}

// Get returns a computation with its outputs.
func (s *Service) Get(ctx context.Context, computationID uuid.UUID) (*domain.DistributionComputation, []domain.DistributionOutput, error) {
	var comp domain.DistributionComputation
	if err := s.DB.WithContext(ctx).Where("computation_id = ?", computationID).First(&comp).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil, ErrComputationNotFound
		}
		return nil, nil, err
	}
	var outputs []domain.DistributionOutput
	if err := s.DB.WithContext(ctx).
		Where("computation_id = ?", computationID).
		Order("investor_id").
		Find(&outputs).Error; err != nil {
		return nil, nil, err
	}
	return &comp, outputs, nil
}

// List returns a company's computations, newest first.
func (s *Service) List(ctx context.Context, companyID uuid.UUID) ([]domain.DistributionComputation, error) {
	var comps []domain.DistributionComputation
	err := s.DB.WithContext(ctx).
		Where("company_id = ?", companyID).
		Order(`"createdAt" DESC`).
		Find(&comps).Error
	return comps, err
}

// Recompute runs the waterfall against a fresh snapshot and replaces any
// previous draft outputs in one transaction. Safe to race: losers simply
// overwrite with the identical result.
func (s *Service) Recompute(ctx context.Context, computationID uuid.UUID) ([]domain.DistributionOutput, error) {
	var comp domain.DistributionComputation
	if err := s.DB.WithContext(ctx).Where("computation_id = ?", computationID).First(&comp).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, ErrComputationNotFound
		}
		return nil, err
	}
	if comp.Status != domain.ComputationDraft {
		return nil, ErrNotDraft
	}

	snap, err := s.Captable.SnapshotAsOf(ctx, comp.CompanyID, comp.SnapshotAsOf)
	if err != nil {
		return nil, err
	}
	lines, err := Compute(ComputeInput{
		TotalCents:       comp.TotalCents,
		ReturnOfCapital:  comp.ReturnOfCapital,
		QualifiedRateBps: comp.QualifiedRateBps,
		Snapshot:         snap,
	})
	if err != nil {
		var rec *ErrReconciliation
		if errors.As(err, &rec) {
			log.Error().
				Str("computation_id", computationID.String()).
				Int64("want_cents", rec.Want).
				Int64("got_cents", rec.Got).
				Msg("waterfall reconciliation mismatch")
		}
		return nil, err
	}

	outputs := make([]domain.DistributionOutput, 0, len(lines))
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("computation_id = ?", computationID).
			Delete(&domain.DistributionOutput{}).Error; err != nil {
			return err
		}
		for _, l := range lines {
			out := domain.DistributionOutput{
				ComputationID:  computationID,
				InvestorID:     l.InvestorID,
				PreferredCents: l.PreferredCents,
				CommonCents:    l.CommonCents,
				QualifiedCents: l.QualifiedCents,
				TotalCents:     l.TotalCents,
			}
			if err := tx.Create(&out).Error; err != nil {
				return err
			}
			outputs = append(outputs, out)
		}
		now := time.Now()
		return tx.Model(&domain.DistributionComputation{}).
			Where("computation_id = ?", computationID).
			Update("computed_at", now).Error
	})
	if err != nil {
		return nil, err
	}
	return outputs, nil
}

// Finalize turns a computed draft into durable Distribution records, exactly
// once. The status flip is a conditional UPDATE inside the transaction, so a
// concurrent or repeated finalize finds zero rows affected and returns the
// already-created distributions instead of creating duplicates.
func (s *Service) Finalize(ctx context.Context, computationID uuid.UUID, actorEmail string) ([]domain.Distribution, error) {
	var distributions []domain.Distribution

	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var comp domain.DistributionComputation
		if err := tx.Where("computation_id = ?", computationID).First(&comp).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return ErrComputationNotFound
			}
			return err
		}

		now := time.Now()
		res := tx.Model(&domain.DistributionComputation{}).
			Where("computation_id = ? AND status = ?", computationID, domain.ComputationDraft).
			Updates(map[string]interface{}{"status": domain.ComputationFinalized, "finalized_at": now})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			// Already finalized: idempotent path, hand back existing rows.
			return tx.Where("computation_id = ?", computationID).
				Order("investor_id").
				Find(&distributions).Error
		}

		var outputs []domain.DistributionOutput
		if err := tx.Where("computation_id = ?", computationID).
			Order("investor_id").
			Find(&outputs).Error; err != nil {
			return err
		}
		if len(outputs) == 0 {
			return ErrNotComputed
		}

		for _, out := range outputs {
			var investor domain.Investor
			if err := tx.Where("investor_id = ?", out.InvestorID).First(&investor).Error; err != nil {
				return err
			}
			withheld := money.ApplyBps(out.TotalCents, investor.TaxWithholdingBps)
			net := out.TotalCents - withheld
			dist := domain.Distribution{
				CompanyID:     comp.CompanyID,
				ComputationID: &computationID,
				InvestorID:    out.InvestorID,
				AmountCents:   out.TotalCents,
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

		payload := map[string]interface{}{
			"total_cents":       comp.TotalCents,
			"return_of_capital": comp.ReturnOfCapital,
			"recipients":        len(distributions),
		}
		return audit.Append(tx, comp.CompanyID, domain.EventComputationFinalized, computationID, actorEmail, payload)
	})
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("computation_id", computationID.String()).
		Int("distributions", len(distributions)).
		Msg("computation finalized")
	return distributions, nil
}
