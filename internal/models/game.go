package models

import (
	"math/big"
	"time"

	"github.com/pkg/errors"
)

const (
	// MinGameDuration is the shortest window a game may be configured with.
	MinGameDuration = 5 * time.Minute

	// FeeIncrementDecimals is the fixed-point precision of GameConfig.FeeIncrement:
	// an increment of 10^20 doubles the fee on every attempt.
	FeeIncrementDecimals = 20

	PercentBase = 100
)

// FeeIncrementScale is 10^FeeIncrementDecimals.
var FeeIncrementScale = new(big.Int).Exp(big.NewInt(10), big.NewInt(FeeIncrementDecimals), nil)

type GameConfig struct {
	BaseFee               *big.Int      `json:"base_fee"`
	FeeIncrement          *big.Int      `json:"fee_increment"`
	FeeCeiling            *big.Int      `json:"fee_ceiling"`
	Duration              time.Duration `json:"duration"`
	StartTime             time.Time     `json:"start_time"`
	PoolSharePercent      int           `json:"pool_share_percent"`
	DeveloperSharePercent int           `json:"developer_share_percent"`
}

func (c GameConfig) EndTime() time.Time {
	return c.StartTime.Add(c.Duration)
}

// Clone returns a copy that shares no big.Int with c.
func (c GameConfig) Clone() GameConfig {
	out := c
	out.BaseFee = cloneInt(c.BaseFee)
	out.FeeIncrement = cloneInt(c.FeeIncrement)
	out.FeeCeiling = cloneInt(c.FeeCeiling)
	return out
}

func (c *GameConfig) Validate() error {
	switch {
	case c.BaseFee == nil || c.BaseFee.Sign() < 0:
		return errors.Wrap(ErrInvalidConfiguration, "base fee must be non-negative")
	case c.FeeIncrement == nil || c.FeeIncrement.Sign() < 0:
		return errors.Wrap(ErrInvalidConfiguration, "fee increment must be non-negative")
	case c.FeeCeiling == nil || c.FeeCeiling.Sign() <= 0:
		return errors.Wrap(ErrInvalidConfiguration, "fee ceiling must be positive")
	case c.Duration < MinGameDuration:
		return errors.Wrapf(ErrInvalidConfiguration, "duration %s is below minimum %s", c.Duration, MinGameDuration)
	case !validPercent(c.PoolSharePercent):
		return errors.Wrapf(ErrInvalidConfiguration, "pool share %d%% out of range", c.PoolSharePercent)
	case !validPercent(c.DeveloperSharePercent):
		return errors.Wrapf(ErrInvalidConfiguration, "developer share %d%% out of range", c.DeveloperSharePercent)
	case c.PoolSharePercent+c.DeveloperSharePercent != PercentBase:
		return errors.Wrapf(ErrInvalidConfiguration, "shares sum to %d%%, want 100%%",
			c.PoolSharePercent+c.DeveloperSharePercent)
	}
	return nil
}

func validPercent(p int) bool {
	return p >= 0 && p <= PercentBase
}

// ValidatePercent checks an admin supplied percentage.
func ValidatePercent(p int) error {
	if !validPercent(p) {
		return errors.Wrapf(ErrInvalidConfiguration, "percentage %d out of range", p)
	}
	return nil
}

func cloneInt(x *big.Int) *big.Int {
	if x == nil {
		return nil
	}
	return new(big.Int).Set(x)
}
