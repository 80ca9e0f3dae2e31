package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Company is the issuing entity that owns a cap table and runs distributions.
type Company struct {
	CompanyID uuid.UUID `gorm:"column:company_id;type:uuid;primaryKey" json:"company_id"`
	Name      string    `gorm:"column:name;not null" json:"name"`
	Currency  string    `gorm:"column:currency;type:varchar(3);not null;default:usd" json:"currency"`
	CreatedAt time.Time `gorm:"column:createdAt" json:"createdAt"`
	UpdatedAt time.Time `gorm:"column:updatedAt" json:"updatedAt"`
}

func (Company) TableName() string {
	return "Companies"
}

func (co *Company) BeforeCreate(tx *gorm.DB) error {
	if co.CompanyID == uuid.Nil {
		co.CompanyID = uuid.New()
	}
	return nil
}

// Investor is a distribution recipient: a shareholder or convertible holder.
type Investor struct {
	InvestorID         uuid.UUID `gorm:"column:investor_id;type:uuid;primaryKey" json:"investor_id"`
	CompanyID          uuid.UUID `gorm:"column:company_id;type:uuid;not null;index" json:"company_id"`
	LegalName          string    `gorm:"column:legal_name;not null" json:"legal_name"`
	Email              string    `gorm:"column:email;not null" json:"email"`
	PayoutVerified     bool      `gorm:"column:payout_verified;not null;default:false" json:"payout_verified"`
	PayoutProviderRef  *string   `gorm:"column:payout_provider_ref" json:"payout_provider_ref"`
	TaxWithholdingBps  int64     `gorm:"column:tax_withholding_bps;not null;default:0" json:"tax_withholding_bps"`
	CreatedAt          time.Time `gorm:"column:createdAt" json:"createdAt"`
	UpdatedAt          time.Time `gorm:"column:updatedAt" json:"updatedAt"`
}

func (Investor) TableName() string {
	return "Investors"
}

func (inv *Investor) BeforeCreate(tx *gorm.DB) error {
	if inv.InvestorID == uuid.Nil {
		inv.InvestorID = uuid.New()
	}
	return nil
}
