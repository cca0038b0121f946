package factory

import (
	"fmt"
	"math"
	"math/big"

	"github.com/Klingon-tech/klingnet-launchpad/pkg/types"
)

var maxUint64 = new(big.Int).SetUint64(math.MaxUint64)

// ScaleSupply converts a whole-token supply to base units. Zero selects
// DefaultSupply. Supplies whose base-unit value does not fit in 64 bits
// are rejected before scaling.
func ScaleSupply(human *big.Int) (uint64, error) {
	if human == nil || human.Sign() == 0 {
		return DefaultSupply * UnitsPerToken, nil
	}
	if human.Sign() < 0 {
		return 0, fmt.Errorf("%w: negative supply", ErrInvalidSupply)
	}
	if !human.IsUint64() || human.Uint64() > math.MaxUint64/UnitsPerToken {
		return 0, fmt.Errorf("%w: %s tokens overflows base units", ErrInvalidSupply, human)
	}
	return human.Uint64() * UnitsPerToken, nil
}

// QuoteUnits returns floor(payment × TokensPerCoin / 10^18). Results that
// do not fit in 64 bits fail with ErrInvalidSupply.
func QuoteUnits(payment *big.Int) (uint64, error) {
	if payment == nil || payment.Sign() <= 0 {
		return 0, nil
	}
	q := new(big.Int).Mul(payment, new(big.Int).SetUint64(TokensPerCoin))
	q.Quo(q, types.Coin())
	if q.Cmp(maxUint64) > 0 {
		return 0, fmt.Errorf("%w: quote for %s overflows", ErrInvalidSupply, payment)
	}
	return q.Uint64(), nil
}
