package fee

import (
	"fmt"
	"math/big"
	"sync"
)

const (
	// BpsDenominator is the basis-point scale: 10_000 bps = 100%
	BpsDenominator = 10_000

	// MaxFeeBps caps the platform fee at 10%
	MaxFeeBps = 1000
)

// Breakdown is the result of splitting a settlement amount
type Breakdown struct {
	Fee int64 // platform fee, truncated toward zero
	Net int64 // amount - fee
}

// int128 pool for intermediate products (amount * bps can exceed int64)
var int128Pool = &sync.Pool{
	New: func() interface{} {
		return new(big.Int)
	},
}

func getInt128() *big.Int {
	return int128Pool.Get().(*big.Int)
}

func putInt128(v *big.Int) {
	v.SetInt64(0) // Clear before returning to pool
	int128Pool.Put(v)
}

// ValidateBps checks a fee rate against the cap
func ValidateBps(feeBps int64) error {
	if feeBps < 0 {
		return fmt.Errorf("fee_bps must be >= 0, got %d", feeBps)
	}
	if feeBps > MaxFeeBps {
		return fmt.Errorf("fee_bps %d exceeds cap %d", feeBps, MaxFeeBps)
	}
	return nil
}

// Split computes fee = amount * feeBps / 10_000 with integer truncation.
// The product is taken over int128 so large amounts cannot overflow.
// Split(1_000_000, 250) = {Fee: 25_000, Net: 975_000}.
func Split(amount int64, feeBps int64) (Breakdown, error) {
	if amount <= 0 {
		return Breakdown{}, fmt.Errorf("amount must be positive, got %d", amount)
	}
	if err := ValidateBps(feeBps); err != nil {
		return Breakdown{}, err
	}

	feeAmount := mulDiv(amount, feeBps, BpsDenominator)

	return Breakdown{
		Fee: feeAmount,
		Net: amount - feeAmount,
	}, nil
}

// mulDiv performs a * b / denom over int128, truncating toward zero
func mulDiv(a, b, denom int64) int64 {
	product := getInt128()
	product.Mul(big.NewInt(a), big.NewInt(b))

	quotient := getInt128()
	quotient.Quo(product, big.NewInt(denom))

	result := quotient.Int64()

	putInt128(product)
	putInt128(quotient)

	return result
}
