package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// TenderMode selects how the buyback price is determined.
type TenderMode string

const (
	TenderAuction    TenderMode = "auction"
	TenderFixedPrice TenderMode = "fixed_price"
)

// TenderStatus is the lifecycle of a TenderOffer.
type TenderStatus string

const (
	TenderOpen      TenderStatus = "open"
	TenderFinalized TenderStatus = "finalized"
)

// TenderOffer is a stock buyback window. Bids accumulate while open;
// finalization runs the clearing engine exactly once and locks every bid.
type TenderOffer struct {
	TenderID              uuid.UUID    `gorm:"column:tender_id;type:uuid;primaryKey" json:"tender_id"`
	CompanyID             uuid.UUID    `gorm:"column:company_id;type:uuid;not null;index" json:"company_id"`
	StartsAt              time.Time    `gorm:"column:starts_at;not null" json:"starts_at"`
	EndsAt                time.Time    `gorm:"column:ends_at;not null" json:"ends_at"`
	Mode                  TenderMode   `gorm:"column:mode;type:varchar(20);not null" json:"mode"`
	FixedPriceCents       int64        `gorm:"column:fixed_price_cents;not null;default:0" json:"fixed_price_cents"`
	MinimumValuationCents int64        `gorm:"column:minimum_valuation_cents;not null;default:0" json:"minimum_valuation_cents"`
	BudgetCents           int64        `gorm:"column:budget_cents;not null" json:"budget_cents"`
	Status                TenderStatus `gorm:"column:status;type:varchar(20);not null;default:open" json:"status"`
	ClearingPriceCents    int64        `gorm:"column:clearing_price_cents;not null;default:0" json:"clearing_price_cents"`
	FinalizedAt           *time.Time   `gorm:"column:finalized_at" json:"finalized_at"`
	CreatedAt             time.Time    `gorm:"column:createdAt" json:"createdAt"`
	UpdatedAt             time.Time    `gorm:"column:updatedAt" json:"updatedAt"`
}

func (TenderOffer) TableName() string {
	return "TenderOffers"
}

func (to *TenderOffer) BeforeCreate(tx *gorm.DB) error {
	if to.TenderID == uuid.Nil {
		to.TenderID = uuid.New()
	}
	return nil
}

// Bid is one seller's offer into a tender. AcceptedShares is written by the
// clearing engine during finalization, exactly once; the invariant
// 0 <= accepted <= requested always holds.
type Bid struct {
	BidID           uuid.UUID `gorm:"column:bid_id;type:uuid;primaryKey" json:"bid_id"`
	TenderID        uuid.UUID `gorm:"column:tender_id;type:uuid;not null;index" json:"tender_id"`
	InvestorID      uuid.UUID `gorm:"column:investor_id;type:uuid;not null;index" json:"investor_id"`
	ShareClassID    uuid.UUID `gorm:"column:share_class_id;type:uuid;not null" json:"share_class_id"`
	RequestedShares int64     `gorm:"column:requested_shares;not null" json:"requested_shares"`
	PriceCents      int64     `gorm:"column:price_cents;not null" json:"price_cents"`
	SubmittedAt     time.Time `gorm:"column:submitted_at;not null" json:"submitted_at"`
	AcceptedShares  int64     `gorm:"column:accepted_shares;not null;default:0" json:"accepted_shares"`
	CreatedAt       time.Time `gorm:"column:createdAt" json:"createdAt"`
	UpdatedAt       time.Time `gorm:"column:updatedAt" json:"updatedAt"`
}

func (Bid) TableName() string {
	return "Bids"
}

func (b *Bid) BeforeCreate(tx *gorm.DB) error {
	if b.BidID == uuid.Nil {
		b.BidID = uuid.New()
	}
	return nil
}
