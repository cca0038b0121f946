package types

import (
	"fmt"
	"math/big"
	"strings"
)

// CoinDecimals is the number of decimal places of the native coin.
// 1 coin = 10^18 base units (wei). All native values are in base units.
const CoinDecimals = 18

// Coin returns the number of base units in one whole native coin.
func Coin() *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(CoinDecimals), nil)
}

// ParseUnits parses a non-negative base-unit integer string.
func ParseUnits(s string) (*big.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("empty amount")
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", s)
	}
	if v.Sign() < 0 {
		return nil, fmt.Errorf("negative amount")
	}
	return v, nil
}

// ParseCoin converts a decimal coin string ("0.5", "12") to base units.
func ParseCoin(s string) (*big.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("empty amount")
	}
	if strings.HasPrefix(s, "-") {
		return nil, fmt.Errorf("negative amount")
	}

	parts := strings.SplitN(s, ".", 2)
	whole, ok := new(big.Int).SetString(parts[0], 10)
	if !ok {
		return nil, fmt.Errorf("invalid whole part %q", parts[0])
	}
	result := whole.Mul(whole, Coin())

	if len(parts) == 2 && parts[1] != "" {
		fracStr := parts[1]
		if len(fracStr) > CoinDecimals {
			return nil, fmt.Errorf("too many decimal places (max %d)", CoinDecimals)
		}
		fracStr += strings.Repeat("0", CoinDecimals-len(fracStr))
		frac, ok := new(big.Int).SetString(fracStr, 10)
		if !ok {
			return nil, fmt.Errorf("invalid fractional part %q", parts[1])
		}
		result.Add(result, frac)
	}
	return result, nil
}

// FormatCoin renders base units as a decimal coin string with trailing
// zeros trimmed ("0.5", "12").
func FormatCoin(units *big.Int) string {
	if units == nil {
		return "0"
	}
	whole, frac := new(big.Int).QuoRem(units, Coin(), new(big.Int))
	if frac.Sign() == 0 {
		return whole.String()
	}
	fs := frac.String()
	fs = strings.Repeat("0", CoinDecimals-len(fs)) + fs
	return whole.String() + "." + strings.TrimRight(fs, "0")
}
