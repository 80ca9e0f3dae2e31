package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ShareClass is one tier of the cap table. Rates and multiples are stored in
// basis points (10000 = 1.0x / 100%) so the waterfall never touches floats.
// A class is immutable once shares have been issued against it.
type ShareClass struct {
	ShareClassID      uuid.UUID `gorm:"column:share_class_id;type:uuid;primaryKey" json:"share_class_id"`
	CompanyID         uuid.UUID `gorm:"column:company_id;type:uuid;not null;index" json:"company_id"`
	Name              string    `gorm:"column:name;not null" json:"name"`
	SeniorityRank     *int      `gorm:"column:seniority_rank" json:"seniority_rank"` // lower = paid first; nil only valid for common
	PreferenceBps     int64     `gorm:"column:preference_bps;not null;default:0" json:"preference_bps"`
	Participating     bool      `gorm:"column:participating;not null;default:false" json:"participating"`
	ConversionBps     int64     `gorm:"column:conversion_bps;not null;default:10000" json:"conversion_bps"` // common shares per preferred share
	DividendHurdleBps *int64    `gorm:"column:dividend_hurdle_bps" json:"dividend_hurdle_bps"`
	IsCommon          bool      `gorm:"column:is_common;not null;default:false" json:"is_common"`
	CreatedAt         time.Time `gorm:"column:createdAt" json:"createdAt"`
	UpdatedAt         time.Time `gorm:"column:updatedAt" json:"updatedAt"`
}

func (ShareClass) TableName() string {
	return "ShareClasses"
}

func (sc *ShareClass) BeforeCreate(tx *gorm.DB) error {
	if sc.ShareClassID == uuid.Nil {
		sc.ShareClassID = uuid.New()
	}
	return nil
}

// Holding is an investor's position in a share class.
type Holding struct {
	HoldingID       uuid.UUID `gorm:"column:holding_id;type:uuid;primaryKey" json:"holding_id"`
	InvestorID      uuid.UUID `gorm:"column:investor_id;type:uuid;not null;index" json:"investor_id"`
	ShareClassID    uuid.UUID `gorm:"column:share_class_id;type:uuid;not null;index" json:"share_class_id"`
	ShareCount      int64     `gorm:"column:share_count;not null;default:0" json:"share_count"`
	InvestmentCents int64     `gorm:"column:investment_cents;not null;default:0" json:"investment_cents"`
	AcquiredAt      time.Time `gorm:"column:acquired_at;not null" json:"acquired_at"`
	CreatedAt       time.Time `gorm:"column:createdAt" json:"createdAt"`
	UpdatedAt       time.Time `gorm:"column:updatedAt" json:"updatedAt"`
}

func (Holding) TableName() string {
	return "Holdings"
}

func (h *Holding) BeforeCreate(tx *gorm.DB) error {
	if h.HoldingID == uuid.Nil {
		h.HoldingID = uuid.New()
	}
	return nil
}

// ConvertibleSecurity is a note or SAFE. Until converted it contributes an
// as-converted share count to the waterfall; once converted it points at the
// realized Holding and is excluded so the principal is never counted twice.
type ConvertibleSecurity struct {
	ConvertibleID     uuid.UUID  `gorm:"column:convertible_id;type:uuid;primaryKey" json:"convertible_id"`
	InvestorID        uuid.UUID  `gorm:"column:investor_id;type:uuid;not null;index" json:"investor_id"`
	CompanyID         uuid.UUID  `gorm:"column:company_id;type:uuid;not null;index" json:"company_id"`
	PrincipalCents    int64      `gorm:"column:principal_cents;not null" json:"principal_cents"`
	ValuationCapCents int64      `gorm:"column:valuation_cap_cents;not null" json:"valuation_cap_cents"`
	DiscountBps       int64      `gorm:"column:discount_bps;not null;default:0" json:"discount_bps"`
	AsConvertedShares int64      `gorm:"column:as_converted_shares;not null;default:0" json:"as_converted_shares"`
	ConvertedAt       *time.Time `gorm:"column:converted_at" json:"converted_at"`
	HoldingID         *uuid.UUID `gorm:"column:holding_id;type:uuid" json:"holding_id"` // set when converted
	CreatedAt         time.Time  `gorm:"column:createdAt" json:"createdAt"`
	UpdatedAt         time.Time  `gorm:"column:updatedAt" json:"updatedAt"`
}

func (ConvertibleSecurity) TableName() string {
	return "ConvertibleSecurities"
}

func (cs *ConvertibleSecurity) BeforeCreate(tx *gorm.DB) error {
	if cs.ConvertibleID == uuid.Nil {
		cs.ConvertibleID = uuid.New()
	}
	return nil
}
