package tender

import (
	"testing"
	"time"

	"captable-backend/internal/domain"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	bidA = uuid.MustParse("00000000-0000-0000-0000-0000000000a1")
	bidB = uuid.MustParse("00000000-0000-0000-0000-0000000000b2")
	bidC = uuid.MustParse("00000000-0000-0000-0000-0000000000c3")
	bidD = uuid.MustParse("00000000-0000-0000-0000-0000000000d4")

	t0 = time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
)

// The worked auction example: A 100@$20, B 200@$18, C 100@$15, budget $4,000.
// Clearing price is $18; at that price the budget affords 222 shares, so A
// fills fully and B is cut to 122. Total cost 222*18 = $3,996 <= budget.
func TestClear_AuctionWorkedExample(t *testing.T) {
	result, err := Clear(ClearInput{
		Mode:        domain.TenderAuction,
		BudgetCents: 4_000_00,
		Bids: []BidInput{
			{BidID: bidA, RequestedShares: 100, PriceCents: 20_00, SubmittedAt: t0},
			{BidID: bidB, RequestedShares: 200, PriceCents: 18_00, SubmittedAt: t0.Add(time.Minute)},
			{BidID: bidC, RequestedShares: 100, PriceCents: 15_00, SubmittedAt: t0.Add(2 * time.Minute)},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(18_00), result.ClearingPriceCents)
	assert.Equal(t, []int64{100, 122, 0}, result.AcceptedShares)
	assert.Equal(t, int64(222), result.TotalShares)
	assert.Equal(t, int64(3_996_00), result.TotalCostCents)
	assert.LessOrEqual(t, result.TotalCostCents, int64(4_000_00))
}

func TestClear_AuctionAllDemandSatisfied(t *testing.T) {
	result, err := Clear(ClearInput{
		Mode:        domain.TenderAuction,
		BudgetCents: 100_000_00,
		Bids: []BidInput{
			{BidID: bidA, RequestedShares: 100, PriceCents: 20_00, SubmittedAt: t0},
			{BidID: bidB, RequestedShares: 100, PriceCents: 18_00, SubmittedAt: t0},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(18_00), result.ClearingPriceCents)
	assert.Equal(t, []int64{100, 100}, result.AcceptedShares)
	assert.Equal(t, int64(200*18_00), result.TotalCostCents)
}

func TestClear_AuctionUniformPriceNotOwnBid(t *testing.T) {
	// The $20 bidder settles at the $18 clearing price, shown by total cost.
	result, err := Clear(ClearInput{
		Mode:        domain.TenderAuction,
		BudgetCents: 10_000_00,
		Bids: []BidInput{
			{BidID: bidA, RequestedShares: 50, PriceCents: 20_00, SubmittedAt: t0},
			{BidID: bidB, RequestedShares: 50, PriceCents: 18_00, SubmittedAt: t0},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(18_00), result.ClearingPriceCents)
	assert.Equal(t, int64(100*18_00), result.TotalCostCents)
}

func TestClear_MarginalTierProRata(t *testing.T) {
	// Four identical bids at the clearing price with budget for 90 shares:
	// 100 requested each, 360 total demand, pro-rata gives 22 each, the two
	// leftovers go to the lowest bid IDs.
	result, err := Clear(ClearInput{
		Mode:        domain.TenderAuction,
		BudgetCents: 90_0, // 900 cents, $0.10 bids
		Bids: []BidInput{
			{BidID: bidD, RequestedShares: 90, PriceCents: 10, SubmittedAt: t0},
			{BidID: bidB, RequestedShares: 90, PriceCents: 10, SubmittedAt: t0},
			{BidID: bidC, RequestedShares: 90, PriceCents: 10, SubmittedAt: t0},
			{BidID: bidA, RequestedShares: 90, PriceCents: 10, SubmittedAt: t0},
		},
	})
	require.NoError(t, err)
	// 900 / 10 = 90 shares affordable, 360 demanded, equal weights: 22 each
	// with 2 leftover shares to bidA and bidB (lowest IDs).
	assert.Equal(t, int64(10), result.ClearingPriceCents)
	assert.Equal(t, int64(90), result.TotalShares)
	byID := map[uuid.UUID]int64{
		bidD: result.AcceptedShares[0],
		bidB: result.AcceptedShares[1],
		bidC: result.AcceptedShares[2],
		bidA: result.AcceptedShares[3],
	}
	assert.Equal(t, int64(23), byID[bidA])
	assert.Equal(t, int64(23), byID[bidB])
	assert.Equal(t, int64(22), byID[bidC])
	assert.Equal(t, int64(22), byID[bidD])
	assert.LessOrEqual(t, result.TotalCostCents, int64(900))
}

func TestClear_BudgetBoundAdversarialIdenticalTopBids(t *testing.T) {
	bids := make([]BidInput, 50)
	for i := range bids {
		bids[i] = BidInput{BidID: uuid.New(), RequestedShares: 997, PriceCents: 333, SubmittedAt: t0}
	}
	result, err := Clear(ClearInput{Mode: domain.TenderAuction, BudgetCents: 1_000_003, Bids: bids})
	require.NoError(t, err)
	assert.LessOrEqual(t, result.TotalCostCents, int64(1_000_003))
	for i, accepted := range result.AcceptedShares {
		assert.LessOrEqual(t, accepted, bids[i].RequestedShares)
		assert.GreaterOrEqual(t, accepted, int64(0))
	}
}

func TestClear_NoOverAcceptance(t *testing.T) {
	result, err := Clear(ClearInput{
		Mode:        domain.TenderAuction,
		BudgetCents: 1_000_000_00,
		Bids: []BidInput{
			{BidID: bidA, RequestedShares: 3, PriceCents: 100, SubmittedAt: t0},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(3), result.AcceptedShares[0])
}

func TestClear_TieBreakBySubmissionThenID(t *testing.T) {
	// Same price, budget for one bid only: earlier submission wins; on equal
	// times the lower bid ID wins the greedy position.
	result, err := Clear(ClearInput{
		Mode:        domain.TenderAuction,
		BudgetCents: 100_00,
		Bids: []BidInput{
			{BidID: bidB, RequestedShares: 100, PriceCents: 1_00, SubmittedAt: t0.Add(time.Second)},
			{BidID: bidA, RequestedShares: 100, PriceCents: 1_00, SubmittedAt: t0},
		},
	})
	require.NoError(t, err)
	// Both are in the marginal tier; pro-rata splits 100 affordable shares
	// 50/50 because requested counts are equal.
	assert.Equal(t, int64(50), result.AcceptedShares[0])
	assert.Equal(t, int64(50), result.AcceptedShares[1])
}

func TestClear_EmptyClearingIsNotAnError(t *testing.T) {
	result, err := Clear(ClearInput{Mode: domain.TenderAuction, BudgetCents: 5, Bids: []BidInput{
		{BidID: bidA, RequestedShares: 10, PriceCents: 100, SubmittedAt: t0},
	}})
	require.NoError(t, err)
	assert.Equal(t, int64(0), result.ClearingPriceCents)
	assert.Equal(t, int64(0), result.TotalShares)

	result, err = Clear(ClearInput{Mode: domain.TenderAuction, BudgetCents: 1000, Bids: nil})
	require.NoError(t, err)
	assert.Equal(t, int64(0), result.TotalShares)
}

func TestClear_MinimumPriceExcludesBids(t *testing.T) {
	result, err := Clear(ClearInput{
		Mode:          domain.TenderAuction,
		BudgetCents:   10_000_00,
		MinPriceCents: 10_00,
		Bids: []BidInput{
			{BidID: bidA, RequestedShares: 10, PriceCents: 12_00, SubmittedAt: t0},
			{BidID: bidB, RequestedShares: 10, PriceCents: 8_00, SubmittedAt: t0},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(12_00), result.ClearingPriceCents)
	assert.Equal(t, []int64{10, 0}, result.AcceptedShares)
}

func TestClear_FixedPricePartialFill(t *testing.T) {
	result, err := Clear(ClearInput{
		Mode:            domain.TenderFixedPrice,
		BudgetCents:     1_050_00,
		FixedPriceCents: 10_00,
		Bids: []BidInput{
			{BidID: bidA, RequestedShares: 60, PriceCents: 10_00, SubmittedAt: t0},
			{BidID: bidB, RequestedShares: 60, PriceCents: 10_00, SubmittedAt: t0.Add(time.Minute)},
			{BidID: bidC, RequestedShares: 60, PriceCents: 10_00, SubmittedAt: t0.Add(2 * time.Minute)},
		},
	})
	require.NoError(t, err)
	// $1,050 affords 105 shares at $10: first bid full, second partial for
	// 45 whole shares, third zero.
	assert.Equal(t, int64(10_00), result.ClearingPriceCents)
	assert.Equal(t, []int64{60, 45, 0}, result.AcceptedShares)
	assert.Equal(t, int64(1_050_00), result.TotalCostCents)
}

func TestClear_FixedPriceRequiresPrice(t *testing.T) {
	_, err := Clear(ClearInput{
		Mode:        domain.TenderFixedPrice,
		BudgetCents: 100,
		Bids:        []BidInput{{BidID: bidA, RequestedShares: 1, PriceCents: 10, SubmittedAt: t0}},
	})
	assert.ErrorIs(t, err, ErrBadFixedPrice)
}

func TestClear_RejectsMalformedBids(t *testing.T) {
	_, err := Clear(ClearInput{
		Mode:        domain.TenderAuction,
		BudgetCents: 100,
		Bids:        []BidInput{{BidID: bidA, RequestedShares: 0, PriceCents: 10, SubmittedAt: t0}},
	})
	assert.ErrorIs(t, err, ErrInvalidBid)

	_, err = Clear(ClearInput{
		Mode:        domain.TenderAuction,
		BudgetCents: -1,
		Bids:        nil,
	})
	assert.ErrorIs(t, err, ErrInvalidBudget)
}

func TestClear_Determinism(t *testing.T) {
	bids := []BidInput{
		{BidID: bidC, RequestedShares: 31, PriceCents: 777, SubmittedAt: t0},
		{BidID: bidA, RequestedShares: 47, PriceCents: 777, SubmittedAt: t0},
		{BidID: bidB, RequestedShares: 59, PriceCents: 991, SubmittedAt: t0},
		{BidID: bidD, RequestedShares: 13, PriceCents: 777, SubmittedAt: t0},
	}
	first, err := Clear(ClearInput{Mode: domain.TenderAuction, BudgetCents: 77_777, Bids: bids})
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		again, err := Clear(ClearInput{Mode: domain.TenderAuction, BudgetCents: 77_777, Bids: bids})
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}
