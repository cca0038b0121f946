package main

import (
	"encoding/json"
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"github.com/Klingon-tech/klingnet-launchpad/internal/token"
	"github.com/Klingon-tech/klingnet-launchpad/pkg/types"
)

// formatCoinString renders a base-unit integer string as coins. Values
// that do not parse are returned unchanged.
func formatCoinString(units string) string {
	v, err := types.ParseUnits(units)
	if err != nil {
		return units
	}
	return types.FormatCoin(v)
}

// formatTokenUnits renders token base units with token.Decimals places,
// trimming trailing zeros.
func formatTokenUnits(units uint64) string {
	s := strconv.FormatUint(units, 10)
	if len(s) <= token.Decimals {
		s = strings.Repeat("0", token.Decimals-len(s)+1) + s
	}
	whole, frac := s[:len(s)-token.Decimals], strings.TrimRight(s[len(s)-token.Decimals:], "0")
	if frac == "" {
		return whole
	}
	return whole + "." + frac
}

// parseTokenUnits converts a decimal token amount ("1.5") to base units.
func parseTokenUnits(s string) (uint64, error) {
	s = strings.TrimSpace(s)
	whole, frac, _ := strings.Cut(s, ".")
	if whole == "" && frac == "" {
		return 0, fmt.Errorf("empty amount")
	}
	if len(frac) > token.Decimals {
		return 0, fmt.Errorf("more than %d decimal places", token.Decimals)
	}
	digits := whole + frac + strings.Repeat("0", token.Decimals-len(frac))
	if strings.ContainsFunc(digits, func(r rune) bool { return r < '0' || r > '9' }) {
		return 0, fmt.Errorf("not a decimal number")
	}
	units, err := strconv.ParseUint(digits, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("amount out of range")
	}
	if units == 0 {
		return 0, fmt.Errorf("amount must be positive")
	}
	return units, nil
}

func jsonUint(n uint64) json.Number {
	return json.Number(strconv.FormatUint(n, 10))
}

func jsonBig(n *big.Int) json.Number {
	return json.Number(n.String())
}
