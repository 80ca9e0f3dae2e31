package captable

import (
	"time"

	"github.com/google/uuid"
)

// Snapshot is a read-only view of a company's cap table as of a point in
// time. The waterfall calculator and the clearing engine consume snapshots;
// nothing in the engine mutates one.
type Snapshot struct {
	CompanyID uuid.UUID
	AsOf      time.Time
	Classes   []ClassView
	// Convertibles holds only securities not yet converted as of AsOf; a
	// converted note is represented by its realized Holding instead.
	Convertibles []ConvertibleView
}

// ClassView is one share class plus the positions issued against it.
type ClassView struct {
	ShareClassID  uuid.UUID
	Name          string
	SeniorityRank *int // nil only for common
	PreferenceBps int64
	Participating bool
	ConversionBps int64
	HurdleBps     *int64
	IsCommon      bool
	Holdings      []HoldingView
}

// HoldingView is one investor's position within a class.
type HoldingView struct {
	InvestorID      uuid.UUID
	ShareCount      int64
	InvestmentCents int64
}

// ConvertibleView is an unconverted note's contribution to the snapshot.
type ConvertibleView struct {
	InvestorID        uuid.UUID
	PrincipalCents    int64
	AsConvertedShares int64
}

// TotalShares sums common, as-converted preferred and convertible shares.
func (s *Snapshot) TotalShares() int64 {
	var n int64
	for _, cl := range s.Classes {
		for _, h := range cl.Holdings {
			n += h.ShareCount
		}
	}
	for _, cv := range s.Convertibles {
		n += cv.AsConvertedShares
	}
	return n
}

// TotalInvestment sums holding investments plus unconverted principal.
func (s *Snapshot) TotalInvestment() int64 {
	var n int64
	for _, cl := range s.Classes {
		for _, h := range cl.Holdings {
			n += h.InvestmentCents
		}
	}
	for _, cv := range s.Convertibles {
		n += cv.PrincipalCents
	}
	return n
}
