package money

import (
	"errors"
	"fmt"
	"math/big"
	"sort"
)

// Cents is the fixed-point money unit used across the engine. All amounts are
// integer cents; there is no floating point anywhere in an allocation path.
type Cents = int64

// Bps denominates rates in basis points (10000 = 100%).
const BpsDenominator = 10000

var (
	ErrZeroWeight     = errors.New("allocation weights sum to zero")
	ErrNegativeAmount = errors.New("amount must not be negative")
)

// Share is one participant in a pro-rata allocation. ID is the stable
// tie-break key (lowest ID wins leftover cents on equal remainders).
type Share struct {
	ID     string
	Weight int64
}

// Allocate splits total across shares in proportion to their weights using
// the largest-remainder method: each share gets floor(total*w/W), then the
// leftover cents go one-by-one to the shares with the largest remainder,
// ties broken by lowest ID. The returned amounts always sum to exactly total.
//
// Intermediate products use big.Int so a large pool against a large weight
// cannot overflow int64.
func Allocate(total Cents, shares []Share) ([]Cents, error) {
	if total < 0 {
		return nil, ErrNegativeAmount
	}
	var weightSum int64
	for _, s := range shares {
		if s.Weight < 0 {
			return nil, fmt.Errorf("negative weight for %s", s.ID)
		}
		weightSum += s.Weight
	}
	if weightSum == 0 {
		return nil, ErrZeroWeight
	}

	amounts := make([]Cents, len(shares))
	remainders := make([]*big.Int, len(shares))
	bigTotal := big.NewInt(total)
	bigSum := big.NewInt(weightSum)
	var allocated int64
	for i, s := range shares {
		p := new(big.Int).Mul(bigTotal, big.NewInt(s.Weight))
		q, r := new(big.Int).QuoRem(p, bigSum, new(big.Int))
		amounts[i] = q.Int64()
		remainders[i] = r
		allocated += amounts[i]
	}

	leftover := total - allocated
	if leftover == 0 {
		return amounts, nil
	}

	order := make([]int, len(shares))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		cmp := remainders[order[a]].Cmp(remainders[order[b]])
		if cmp != 0 {
			return cmp > 0
		}
		return shares[order[a]].ID < shares[order[b]].ID
	})
	for i := int64(0); i < leftover; i++ {
		amounts[order[i%int64(len(order))]]++
	}
	return amounts, nil
}

// ApplyBps returns amount scaled by a basis-point rate, rounded down.
// ApplyBps(12345, 10000) == 12345; ApplyBps(100, 150) == 1.
func ApplyBps(amount Cents, bps int64) Cents {
	p := new(big.Int).Mul(big.NewInt(amount), big.NewInt(bps))
	return new(big.Int).Quo(p, big.NewInt(BpsDenominator)).Int64()
}

// Min returns the smaller of two amounts.
func Min(a, b Cents) Cents {
	if a < b {
		return a
	}
	return b
}

// Format renders cents as a dollar string for logs and API metadata.
func Format(amount Cents) string {
	sign := ""
	if amount < 0 {
		sign = "-"
		amount = -amount
	}
	return fmt.Sprintf("%s$%d.%02d", sign, amount/100, amount%100)
}
