package numbers

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

// WeiPerEther is the number of decimal places between ether and wei.
const WeiPerEther = 18

// NewBig257 returns a new big.Int with a size of 257 bits
// This allows us to fully support math on uint256 numbers.
func NewBig257() *big.Int {
	return big.NewInt(257)
}

// ParseEtherToWei converts a decimal ether amount like "0.01" into wei.
// Amounts with more than 18 fractional digits or a negative sign are rejected.
func ParseEtherToWei(amountStr string) (*big.Int, error) {
	amount, err := decimal.NewFromString(strings.TrimSpace(amountStr))
	if err != nil {
		return nil, fmt.Errorf("invalid ether amount '%s': %w", amountStr, err)
	}
	if amount.IsNegative() {
		return nil, fmt.Errorf("invalid ether amount '%s': must not be negative", amountStr)
	}
	wei := amount.Shift(WeiPerEther)
	if !wei.Equal(wei.Truncate(0)) {
		return nil, fmt.Errorf("invalid ether amount '%s': more than %d decimals", amountStr, WeiPerEther)
	}
	return wei.BigInt(), nil
}

// FormatWeiAsEther renders a wei amount as a decimal ether string without trailing zeros.
func FormatWeiAsEther(wei *big.Int) string {
	if wei == nil {
		return "0"
	}
	return decimal.NewFromBigInt(wei, -WeiPerEther).String()
}

// ParseUint256 parses a base-10 unsigned integer string of arbitrary size.
func ParseUint256(s string) (*big.Int, error) {
	v, ok := NewBig257().SetString(strings.TrimSpace(s), 10)
	if !ok || v.Sign() < 0 {
		return nil, fmt.Errorf("invalid unsigned integer '%s'", s)
	}
	return v, nil
}
