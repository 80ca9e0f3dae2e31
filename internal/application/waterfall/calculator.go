package waterfall

import (
	"errors"
	"fmt"
	"sort"

	"captable-backend/internal/application/captable"
	"captable-backend/internal/pkg/money"

	"github.com/google/uuid"
)

// OutputLine is one investor's computed breakdown. QualifiedCents is a
// presentation split over the same total, never additional money.
type OutputLine struct {
	InvestorID     uuid.UUID
	PreferredCents int64
	CommonCents    int64
	QualifiedCents int64
	TotalCents     int64
}

// ComputeInput carries everything Compute needs; the function reads nothing
// else, so the same input always produces the same output.
type ComputeInput struct {
	TotalCents       int64
	ReturnOfCapital  bool
	QualifiedRateBps int64
	Snapshot         *captable.Snapshot
}

var (
	ErrZeroTotal          = errors.New("distribution total must be positive")
	ErrEmptySnapshot      = errors.New("snapshot has no holdings or convertibles")
	ErrZeroShares         = errors.New("snapshot shares sum to zero")
	ErrZeroInvestment     = errors.New("snapshot investment sums to zero")
	ErrMissingSeniority   = errors.New("preferred class with issued shares has no seniority rank")
	ErrNoResidualClaimant = errors.New("residual pool has no common or participating claimant")
)

// ErrReconciliation marks a conservation failure. It is a defect, never a
// user error: money would be unaccounted for, so the computation is aborted
// rather than clamped.
type ErrReconciliation struct {
	Want, Got int64
}

func (e *ErrReconciliation) Error() string {
	return fmt.Sprintf("waterfall reconciliation failed: allocated %s of %s",
		money.Format(e.Got), money.Format(e.Want))
}

// Compute allocates a cash distribution across the snapshot.
//
// Non-return-of-capital: classes are paid in ascending seniority rank. Each
// class claims min(preference x class investment, remaining pool); within a
// class, owners split the claim pro-rata to their fraction of the class's
// investment. Whatever survives the preference stack is shared pro-rata by
// share count across common, participating preferred (as-converted) and
// unconverted notes (as-converted).
//
// Return-of-capital: the waterfall is skipped entirely and the pool is split
// pro-rata to original investment, note principal included.
//
// Cents lost to integer division go to the holders with the largest
// fractional remainder, ties to the lowest investor ID, so the outputs sum
// to the input exactly.
func Compute(input ComputeInput) ([]OutputLine, error) {
	if err := validate(input); err != nil {
		return nil, err
	}

	lines := map[uuid.UUID]*OutputLine{}
	line := func(id uuid.UUID) *OutputLine {
		if l, ok := lines[id]; ok {
			return l
		}
		l := &OutputLine{InvestorID: id}
		lines[id] = l
		return l
	}

	if input.ReturnOfCapital {
		if err := allocateReturnOfCapital(input, line); err != nil {
			return nil, err
		}
	} else {
		if err := allocateWaterfall(input, line); err != nil {
			return nil, err
		}
	}

	out := make([]OutputLine, 0, len(lines))
	for _, l := range lines {
		l.TotalCents = l.PreferredCents + l.CommonCents
		if input.QualifiedRateBps > 0 && !input.ReturnOfCapital {
			q := money.ApplyBps(l.PreferredCents, input.QualifiedRateBps)
			if q > l.TotalCents {
				q = l.TotalCents
			}
			l.QualifiedCents = q
		}
		out = append(out, *l)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].InvestorID.String() < out[j].InvestorID.String()
	})

	var allocated int64
	for _, l := range out {
		allocated += l.TotalCents
	}
	if allocated != input.TotalCents {
		return nil, &ErrReconciliation{Want: input.TotalCents, Got: allocated}
	}
	return out, nil
}

func validate(input ComputeInput) error {
	if input.TotalCents <= 0 {
		return ErrZeroTotal
	}
	snap := input.Snapshot
	if snap == nil {
		return ErrEmptySnapshot
	}
	holdings := 0
	for _, cl := range snap.Classes {
		holdings += len(cl.Holdings)
		if !cl.IsCommon && cl.SeniorityRank == nil && len(cl.Holdings) > 0 {
			return ErrMissingSeniority
		}
	}
	if holdings == 0 && len(snap.Convertibles) == 0 {
		return ErrEmptySnapshot
	}
	if input.ReturnOfCapital {
		if snap.TotalInvestment() == 0 {
			return ErrZeroInvestment
		}
		return nil
	}
	if snap.TotalShares() == 0 {
		return ErrZeroShares
	}
	return nil
}

func allocateWaterfall(input ComputeInput, line func(uuid.UUID) *OutputLine) error {
	snap := input.Snapshot
	remaining := input.TotalCents

	// Preference stack: snapshot classes are already ordered by rank.
	for _, cl := range snap.Classes {
		if cl.IsCommon || cl.PreferenceBps == 0 || remaining == 0 {
			continue
		}
		byInvestor := investorInvestments(cl)
		if len(byInvestor) == 0 {
			continue
		}
		var classInvestment int64
		for _, s := range byInvestor {
			classInvestment += s.Weight
		}
		claim := money.ApplyBps(classInvestment, cl.PreferenceBps)
		if cl.HurdleBps != nil {
			// A declared dividend hurdle caps the class's dividend claim.
			claim = money.Min(claim, money.ApplyBps(classInvestment, *cl.HurdleBps))
		}
		claim = money.Min(claim, remaining)
		if claim == 0 {
			continue
		}
		amounts, err := money.Allocate(claim, byInvestor)
		if err != nil {
			return err
		}
		for i, s := range byInvestor {
			line(uuid.MustParse(s.ID)).PreferredCents += amounts[i]
		}
		remaining -= claim
	}

	if remaining == 0 {
		return nil
	}

	// Residual pool: common shares, participating preferred as-converted,
	// unconverted notes as-converted.
	residual := residualShares(snap)
	if len(residual) == 0 {
		return ErrNoResidualClaimant
	}
	amounts, err := money.Allocate(remaining, residual)
	if err != nil {
		return err
	}
	for i, s := range residual {
		line(uuid.MustParse(s.ID)).CommonCents += amounts[i]
	}
	return nil
}

func allocateReturnOfCapital(input ComputeInput, line func(uuid.UUID) *OutputLine) error {
	snap := input.Snapshot
	byInvestor := map[string]int64{}
	for _, cl := range snap.Classes {
		for _, h := range cl.Holdings {
			byInvestor[h.InvestorID.String()] += h.InvestmentCents
		}
	}
	for _, cv := range snap.Convertibles {
		byInvestor[cv.InvestorID.String()] += cv.PrincipalCents
	}
	shares := sortedShares(byInvestor)
	amounts, err := money.Allocate(input.TotalCents, shares)
	if err != nil {
		return err
	}
	for i, s := range shares {
		line(uuid.MustParse(s.ID)).CommonCents += amounts[i]
	}
	return nil
}

// investorInvestments aggregates a class's holdings per investor, ordered by
// investor ID for deterministic remainder assignment.
func investorInvestments(cl captable.ClassView) []money.Share {
	byInvestor := map[string]int64{}
	for _, h := range cl.Holdings {
		byInvestor[h.InvestorID.String()] += h.InvestmentCents
	}
	return sortedShares(byInvestor)
}

func residualShares(snap *captable.Snapshot) []money.Share {
	byInvestor := map[string]int64{}
	for _, cl := range snap.Classes {
		for _, h := range cl.Holdings {
			switch {
			case cl.IsCommon:
				byInvestor[h.InvestorID.String()] += h.ShareCount
			case cl.Participating:
				byInvestor[h.InvestorID.String()] += asConverted(h.ShareCount, cl.ConversionBps)
			}
		}
	}
	for _, cv := range snap.Convertibles {
		if cv.AsConvertedShares > 0 {
			byInvestor[cv.InvestorID.String()] += cv.AsConvertedShares
		}
	}
	shares := sortedShares(byInvestor)
	// Drop zero-weight entries so a class of zero-share rows cannot make
	// Allocate fail while real claimants exist.
	filtered := shares[:0]
	var weight int64
	for _, s := range shares {
		if s.Weight > 0 {
			filtered = append(filtered, s)
			weight += s.Weight
		}
	}
	if weight == 0 {
		return nil
	}
	return filtered
}

func asConverted(shareCount, conversionBps int64) int64 {
	if conversionBps == 0 {
		conversionBps = money.BpsDenominator
	}
	return money.ApplyBps(shareCount, conversionBps)
}

func sortedShares(byID map[string]int64) []money.Share {
	shares := make([]money.Share, 0, len(byID))
	for id, w := range byID {
		shares = append(shares, money.Share{ID: id, Weight: w})
	}
	sort.Slice(shares, func(i, j int) bool { return shares[i].ID < shares[j].ID })
	return shares
}
