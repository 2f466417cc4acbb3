// Package units converts between human-readable decimal amounts and
// integer base units (wei).
package units

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

// EtherDecimals is the number of decimals of one ether expressed in wei.
const EtherDecimals = 18

var (
	ErrInvalidAmount  = errors.New("popdeploy: invalid amount")
	ErrNegativeAmount = errors.New("popdeploy: negative amount")
	ErrTooPrecise     = errors.New("popdeploy: amount has too many decimal places")
)

// ParseEther scales a decimal ether amount to wei.
func ParseEther(s string) (*big.Int, error) {
	return ParseUnits(s, EtherDecimals)
}

// ParseUnits scales a decimal amount by 10^decimals. The result must be a
// non-negative integer; fractional remainders are an error, not rounded.
func ParseUnits(s string, decimals int32) (*big.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("%w: empty string", ErrInvalidAmount)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	if d.IsNegative() {
		return nil, fmt.Errorf("%w: %s", ErrNegativeAmount, s)
	}
	scaled := d.Shift(decimals)
	if !scaled.Equal(scaled.Truncate(0)) {
		return nil, fmt.Errorf("%w: %s with %d decimals", ErrTooPrecise, s, decimals)
	}
	return scaled.BigInt(), nil
}

// FormatEther renders a wei amount as a decimal ether string.
func FormatEther(wei *big.Int) string {
	return FormatUnits(wei, EtherDecimals)
}

// FormatUnits renders an integer amount divided by 10^decimals.
func FormatUnits(v *big.Int, decimals int32) string {
	if v == nil {
		return "0"
	}
	return decimal.NewFromBigInt(v, -decimals).String()
}
