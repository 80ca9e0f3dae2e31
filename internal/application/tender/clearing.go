package tender

import (
	"errors"
	"sort"
	"time"

	"captable-backend/internal/domain"
	"captable-backend/internal/pkg/money"

	"github.com/google/uuid"
)

// BidInput is one bid as seen by the clearing engine.
type BidInput struct {
	BidID           uuid.UUID
	RequestedShares int64
	PriceCents      int64
	SubmittedAt     time.Time
}

// ClearInput is the full problem statement for one clearing run.
type ClearInput struct {
	Mode            domain.TenderMode
	BudgetCents     int64
	FixedPriceCents int64 // fixed_price mode only
	MinPriceCents   int64 // bids below this are never accepted
	Bids            []BidInput
}

// ClearResult reports the uniform clearing price and per-bid acceptance,
// aligned with the input bid order. An empty clearing (no viable trade) is a
// zero result, not an error.
type ClearResult struct {
	ClearingPriceCents int64   `json:"clearing_price_cents"`
	AcceptedShares     []int64 `json:"accepted_shares"`
	TotalShares        int64   `json:"total_shares"`
	TotalCostCents     int64   `json:"total_cost_cents"`
}

var (
	ErrInvalidBid    = errors.New("bid has non-positive shares or price")
	ErrInvalidBudget = errors.New("budget must not be negative")
	ErrBadFixedPrice = errors.New("fixed price mode requires a positive price")
)

// Clear determines the clearing price and accepted share count per bid.
//
// Auction mode is a uniform-price descending auction: bids sort by price
// descending, submission time ascending, bid ID ascending; shares fill
// greedily from the top until the budget runs out; the clearing price is the
// marginal (lowest) filled bid's price and every accepted bid settles at it.
// When repricing the fill to the uniform clearing price would break the
// budget, the marginal price tier is cut back pro-rata by requested shares,
// leftover single shares by largest remainder then lowest bid ID.
//
// Fixed-price mode accepts bids in submission order at the given price until
// the budget crosses; the crossing bid is partially accepted for the whole
// shares the remaining budget affords.
func Clear(input ClearInput) (*ClearResult, error) {
	if input.BudgetCents < 0 {
		return nil, ErrInvalidBudget
	}
	for _, b := range input.Bids {
		if b.RequestedShares <= 0 || b.PriceCents <= 0 {
			return nil, ErrInvalidBid
		}
	}

	result := &ClearResult{AcceptedShares: make([]int64, len(input.Bids))}
	if len(input.Bids) == 0 || input.BudgetCents == 0 {
		return result, nil
	}

	switch input.Mode {
	case domain.TenderFixedPrice:
		return clearFixedPrice(input, result)
	default:
		return clearAuction(input, result)
	}
}

func clearFixedPrice(input ClearInput, result *ClearResult) (*ClearResult, error) {
	price := input.FixedPriceCents
	if price <= 0 {
		return nil, ErrBadFixedPrice
	}
	order := sortedIndexes(input.Bids, func(a, b BidInput) bool {
		if !a.SubmittedAt.Equal(b.SubmittedAt) {
			return a.SubmittedAt.Before(b.SubmittedAt)
		}
		return a.BidID.String() < b.BidID.String()
	})

	remaining := input.BudgetCents
	for _, i := range order {
		bid := input.Bids[i]
		if bid.PriceCents < input.MinPriceCents {
			continue
		}
		affordable := remaining / price
		accept := money.Min(bid.RequestedShares, affordable)
		if accept == 0 {
			continue
		}
		result.AcceptedShares[i] = accept
		result.TotalShares += accept
		remaining -= accept * price
	}
	if result.TotalShares > 0 {
		result.ClearingPriceCents = price
		result.TotalCostCents = result.TotalShares * price
	}
	return result, nil
}

func clearAuction(input ClearInput, result *ClearResult) (*ClearResult, error) {
	order := sortedIndexes(input.Bids, func(a, b BidInput) bool {
		if a.PriceCents != b.PriceCents {
			return a.PriceCents > b.PriceCents
		}
		if !a.SubmittedAt.Equal(b.SubmittedAt) {
			return a.SubmittedAt.Before(b.SubmittedAt)
		}
		return a.BidID.String() < b.BidID.String()
	})

	viable := order[:0]
	for _, i := range order {
		if input.Bids[i].PriceCents >= input.MinPriceCents {
			viable = append(viable, i)
		}
	}
	if len(viable) == 0 {
		return result, nil
	}

	// First pass: greedy fill at each bid's own price to find the marginal
	// (lowest) filled price.
	clearingPrice := int64(0)
	remaining := input.BudgetCents
	for _, i := range viable {
		bid := input.Bids[i]
		accept := money.Min(bid.RequestedShares, remaining/bid.PriceCents)
		if accept == 0 {
			break
		}
		remaining -= accept * bid.PriceCents
		clearingPrice = bid.PriceCents
		if accept < bid.RequestedShares {
			break
		}
	}
	if clearingPrice == 0 {
		return result, nil
	}

	// Second pass: everyone settles at the clearing price, so acceptance is
	// rechecked against what the budget affords at that uniform price. Bids
	// above the clearing price fill first; the tier at the clearing price
	// splits whatever is left pro-rata by requested shares.
	affordable := input.BudgetCents / clearingPrice
	var aboveTier []int
	var tier []int
	for _, i := range viable {
		switch {
		case input.Bids[i].PriceCents > clearingPrice:
			aboveTier = append(aboveTier, i)
		case input.Bids[i].PriceCents == clearingPrice:
			tier = append(tier, i)
		}
	}

	sharesLeft := affordable
	for _, i := range aboveTier {
		accept := money.Min(input.Bids[i].RequestedShares, sharesLeft)
		result.AcceptedShares[i] = accept
		sharesLeft -= accept
	}

	var tierDemand int64
	for _, i := range tier {
		tierDemand += input.Bids[i].RequestedShares
	}
	if tierDemand <= sharesLeft {
		for _, i := range tier {
			result.AcceptedShares[i] = input.Bids[i].RequestedShares
		}
		sharesLeft -= tierDemand
	} else if sharesLeft > 0 {
		shares := make([]money.Share, len(tier))
		for k, i := range tier {
			shares[k] = money.Share{ID: input.Bids[i].BidID.String(), Weight: input.Bids[i].RequestedShares}
		}
		amounts, err := money.Allocate(sharesLeft, shares)
		if err != nil {
			return nil, err
		}
		for k, i := range tier {
			result.AcceptedShares[i] = amounts[k]
		}
		sharesLeft = 0
	}

	for _, n := range result.AcceptedShares {
		result.TotalShares += n
	}
	if result.TotalShares == 0 {
		return &ClearResult{AcceptedShares: result.AcceptedShares}, nil
	}
	result.ClearingPriceCents = clearingPrice
	result.TotalCostCents = result.TotalShares * clearingPrice
	return result, nil
}

func sortedIndexes(bids []BidInput, less func(a, b BidInput) bool) []int {
	order := make([]int, len(bids))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return less(bids[order[a]], bids[order[b]])
	})
	return order
}
