package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// DistributionStatus is a closed state machine:
//
//	issued -> ready -> processing -> completed
//	                              -> failed -> processing (retry)
//	issued/ready -> retained (below de-minimis threshold)
//
// Transitions go through Distribution.TransitionTo so an illegal edge is an
// error, not a silent string write.
type DistributionStatus string

const (
	DistributionIssued     DistributionStatus = "issued"
	DistributionReady      DistributionStatus = "ready"
	DistributionProcessing DistributionStatus = "processing"
	DistributionCompleted  DistributionStatus = "completed"
	DistributionFailed     DistributionStatus = "failed"
	DistributionRetained   DistributionStatus = "retained"
)

var distributionEdges = map[DistributionStatus][]DistributionStatus{
	DistributionIssued:     {DistributionReady, DistributionRetained},
	DistributionReady:      {DistributionProcessing, DistributionRetained},
	DistributionProcessing: {DistributionCompleted, DistributionFailed},
	DistributionFailed:     {DistributionProcessing},
	DistributionCompleted:  {},
	DistributionRetained:   {},
}

// CanTransition reports whether from -> to is a legal edge.
func (s DistributionStatus) CanTransition(to DistributionStatus) bool {
	for _, next := range distributionEdges[s] {
		if next == to {
			return true
		}
	}
	return false
}

// Terminal reports whether the status has no outgoing edges besides retry.
func (s DistributionStatus) Terminal() bool {
	return s == DistributionCompleted || s == DistributionRetained
}

// Distribution is the payable owed to one investor under one finalized
// computation or tender offer (exactly one of the two references is set).
// PayoutReference is the stable idempotency key used for every provider call
// about this record.
type Distribution struct {
	DistributionID  uuid.UUID          `gorm:"column:distribution_id;type:uuid;primaryKey" json:"distribution_id"`
	CompanyID       uuid.UUID          `gorm:"column:company_id;type:uuid;not null;index" json:"company_id"`
	ComputationID   *uuid.UUID         `gorm:"column:computation_id;type:uuid;index" json:"computation_id"`
	TenderID        *uuid.UUID         `gorm:"column:tender_id;type:uuid;index" json:"tender_id"`
	InvestorID      uuid.UUID          `gorm:"column:investor_id;type:uuid;not null;index" json:"investor_id"`
	AmountCents     int64              `gorm:"column:amount_cents;not null" json:"amount_cents"`
	WithheldCents   int64              `gorm:"column:withheld_cents;not null;default:0" json:"withheld_cents"`
	NetCents        int64              `gorm:"column:net_cents;not null" json:"net_cents"`
	Status          DistributionStatus `gorm:"column:status;type:varchar(20);not null;default:issued" json:"status"`
	RetryCount      int                `gorm:"column:retry_count;not null;default:0" json:"retry_count"`
	PayoutReference string             `gorm:"column:payout_reference;uniqueIndex;not null" json:"payout_reference"`
	BatchID         *uuid.UUID         `gorm:"column:batch_id;type:uuid;index" json:"batch_id"`
	LastError       *string            `gorm:"column:last_error" json:"last_error"`
	CompletedAt     *time.Time         `gorm:"column:completed_at" json:"completed_at"`
	CreatedAt       time.Time          `gorm:"column:createdAt" json:"createdAt"`
	UpdatedAt       time.Time          `gorm:"column:updatedAt" json:"updatedAt"`
}

func (Distribution) TableName() string {
	return "Distributions"
}

func (d *Distribution) BeforeCreate(tx *gorm.DB) error {
	if d.DistributionID == uuid.Nil {
		d.DistributionID = uuid.New()
	}
	if d.PayoutReference == "" {
		d.PayoutReference = PayoutReference(d.DistributionID)
	}
	return nil
}

// TransitionTo mutates Status if the edge is legal.
func (d *Distribution) TransitionTo(to DistributionStatus) error {
	if !d.Status.CanTransition(to) {
		return fmt.Errorf("illegal distribution transition %s -> %s", d.Status, to)
	}
	d.Status = to
	return nil
}

// PayoutReference derives the provider idempotency key from the distribution
// ID. It is stable across retries and process restarts.
func PayoutReference(distributionID uuid.UUID) string {
	return "dist_" + distributionID.String()
}

// BatchStatus is the funding lifecycle of a SettlementBatch.
type BatchStatus string

const (
	BatchPending BatchStatus = "pending"
	BatchFunding BatchStatus = "funding"
	BatchFunded  BatchStatus = "funded"
	BatchFailed  BatchStatus = "failed"
)

// SettlementBatch groups ready distributions behind a single funding pull.
// Transfer-out never runs for a batch that is not funded.
type SettlementBatch struct {
	BatchID          uuid.UUID   `gorm:"column:batch_id;type:uuid;primaryKey" json:"batch_id"`
	CompanyID        uuid.UUID   `gorm:"column:company_id;type:uuid;not null;index" json:"company_id"`
	TotalCents       int64       `gorm:"column:total_cents;not null" json:"total_cents"`
	Currency         string      `gorm:"column:currency;type:varchar(3);not null;default:usd" json:"currency"`
	Status           BatchStatus `gorm:"column:status;type:varchar(20);not null;default:pending" json:"status"`
	FundingReference string      `gorm:"column:funding_reference;uniqueIndex;not null" json:"funding_reference"`
	FundedAt         *time.Time  `gorm:"column:funded_at" json:"funded_at"`
	CreatedAt        time.Time   `gorm:"column:createdAt" json:"createdAt"`
	UpdatedAt        time.Time   `gorm:"column:updatedAt" json:"updatedAt"`
}

func (SettlementBatch) TableName() string {
	return "SettlementBatches"
}

func (b *SettlementBatch) BeforeCreate(tx *gorm.DB) error {
	if b.BatchID == uuid.Nil {
		b.BatchID = uuid.New()
	}
	if b.FundingReference == "" {
		b.FundingReference = "fund_" + b.BatchID.String()
	}
	return nil
}
