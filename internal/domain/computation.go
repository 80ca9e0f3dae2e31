package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ComputationStatus is the lifecycle of a DistributionComputation.
type ComputationStatus string

const (
	ComputationDraft     ComputationStatus = "draft"
	ComputationFinalized ComputationStatus = "finalized"
)

// DistributionComputation is one dividend run against a cap table snapshot.
// Drafts are freely recomputable; a finalized computation is immutable and
// owns the Distribution records it spawned.
type DistributionComputation struct {
	ComputationID    uuid.UUID         `gorm:"column:computation_id;type:uuid;primaryKey" json:"computation_id"`
	CompanyID        uuid.UUID         `gorm:"column:company_id;type:uuid;not null;index" json:"company_id"`
	TotalCents       int64             `gorm:"column:total_cents;not null" json:"total_cents"`
	IssuanceDate     time.Time         `gorm:"column:issuance_date;not null" json:"issuance_date"`
	ReturnOfCapital  bool              `gorm:"column:return_of_capital;not null;default:false" json:"return_of_capital"`
	QualifiedRateBps int64             `gorm:"column:qualified_rate_bps;not null;default:0" json:"qualified_rate_bps"`
	SnapshotAsOf     time.Time         `gorm:"column:snapshot_as_of;not null" json:"snapshot_as_of"`
	Status           ComputationStatus `gorm:"column:status;type:varchar(20);not null;default:draft" json:"status"`
	ComputedAt       *time.Time        `gorm:"column:computed_at" json:"computed_at"`
	FinalizedAt      *time.Time        `gorm:"column:finalized_at" json:"finalized_at"`
	CreatedAt        time.Time         `gorm:"column:createdAt" json:"createdAt"`
	UpdatedAt        time.Time         `gorm:"column:updatedAt" json:"updatedAt"`
}

func (DistributionComputation) TableName() string {
	return "DistributionComputations"
}

func (dc *DistributionComputation) BeforeCreate(tx *gorm.DB) error {
	if dc.ComputationID == uuid.Nil {
		dc.ComputationID = uuid.New()
	}
	return nil
}

// DistributionOutput is one investor's line in a computed breakdown.
// Across a computation, sum(total_cents) equals the computation total exactly.
type DistributionOutput struct {
	OutputID       uuid.UUID `gorm:"column:output_id;type:uuid;primaryKey" json:"output_id"`
	ComputationID  uuid.UUID `gorm:"column:computation_id;type:uuid;not null;index" json:"computation_id"`
	InvestorID     uuid.UUID `gorm:"column:investor_id;type:uuid;not null;index" json:"investor_id"`
	PreferredCents int64     `gorm:"column:preferred_cents;not null;default:0" json:"preferred_cents"`
	CommonCents    int64     `gorm:"column:common_cents;not null;default:0" json:"common_cents"`
	QualifiedCents int64     `gorm:"column:qualified_cents;not null;default:0" json:"qualified_cents"`
	TotalCents     int64     `gorm:"column:total_cents;not null" json:"total_cents"`
	CreatedAt      time.Time `gorm:"column:createdAt" json:"createdAt"`
	UpdatedAt      time.Time `gorm:"column:updatedAt" json:"updatedAt"`
}

func (DistributionOutput) TableName() string {
	return "DistributionOutputs"
}

func (do *DistributionOutput) BeforeCreate(tx *gorm.DB) error {
	if do.OutputID == uuid.Nil {
		do.OutputID = uuid.New()
	}
	return nil
}
