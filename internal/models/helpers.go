package models

import (
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

func GenerateEventID(at time.Time) string {
	return fmt.Sprintf("evt_%s_%d",
		at.Format("20060102"),
		uuid.New().ID())
}

func GenerateRequestID() RequestID {
	return RequestID(fmt.Sprintf("req_%s", uuid.NewString()))
}

// NewAmount converts an integer amount for JSON output. Decimals marshal as
// strings so large values survive JavaScript clients.
func NewAmount(x *big.Int) decimal.Decimal {
	if x == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(x, 0)
}

// Amounts are uint256 values, at most 78 decimal digits.
const (
	maxAmountDigits = 78
	maxAmountBits   = 256
	maxAmountInput  = 128
)

// ParseAmount accepts a non-negative integer written in decimal, with an
// optional exponent ("1e18"). Values outside the uint256 range are rejected
// before they are expanded.
func ParseAmount(s string) (*big.Int, error) {
	if len(s) > maxAmountInput {
		return nil, errors.Wrapf(ErrInvalidRequest, "amount is %d bytes long", len(s))
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, errors.Wrapf(ErrInvalidRequest, "amount %q: %v", s, err)
	}
	exp := int64(d.Exponent())
	if exp < -maxAmountDigits || int64(len(d.Coefficient().String()))+exp > maxAmountDigits {
		return nil, errors.Wrapf(ErrInvalidRequest, "amount %q is out of range", s)
	}
	if d.IsNegative() {
		return nil, errors.Wrapf(ErrInvalidRequest, "amount %q is negative", s)
	}
	if !d.Equal(d.Truncate(0)) {
		return nil, errors.Wrapf(ErrInvalidRequest, "amount %q is not an integer", s)
	}
	v := d.BigInt()
	if v.BitLen() > maxAmountBits {
		return nil, errors.Wrapf(ErrInvalidRequest, "amount %q is out of range", s)
	}
	return v, nil
}

// FormatUnits renders an integer amount in whole token units, e.g. wei as ether.
func FormatUnits(x *big.Int, decimals int32) string {
	if x == nil {
		return "0"
	}
	return decimal.NewFromBigInt(x, -decimals).String()
}

func MinInt(a, b *big.Int) *big.Int {
	if a.Cmp(b) <= 0 {
		return new(big.Int).Set(a)
	}
	return new(big.Int).Set(b)
}
