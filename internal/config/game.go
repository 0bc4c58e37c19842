package config

import (
	"fmt"
	"math/big"
	"time"

	"github.com/BurntSushi/toml"

	"promptpot-backend/internal/models"
)

// GameFile is the TOML description of one game.
//
//	base_fee = "1000000000000000"
//	fee_increment = "1000000000000000000"   # 1% in 1e20 fixed point
//	fee_ceiling = "1000000000000000000"
//	duration = "72h"
//	start_time = "2026-11-01T00:00:00Z"     # empty: start on launch
//	pool_share_percent = 90
//	developer_share_percent = 10
//	min_slippage_percent = 2
//
//	[[models]]
//	id = 11
//	gas_budget = 5000000
//	local_fee = "0"
type GameFile struct {
	BaseFee               string      `toml:"base_fee"`
	FeeIncrement          string      `toml:"fee_increment"`
	FeeCeiling            string      `toml:"fee_ceiling"`
	Duration              string      `toml:"duration"`
	StartTime             string      `toml:"start_time"`
	PoolSharePercent      int         `toml:"pool_share_percent"`
	DeveloperSharePercent int         `toml:"developer_share_percent"`
	MinSlippagePercent    int         `toml:"min_slippage_percent"`
	SystemPrompt          string      `toml:"system_prompt"`
	Models                []ModelFile `toml:"models"`
}

type ModelFile struct {
	ID        uint64 `toml:"id"`
	GasBudget uint64 `toml:"gas_budget"`
	// LocalFee is the callback fee the in-process oracle charges.
	LocalFee string `toml:"local_fee"`
}

func LoadGame(path string) (*GameFile, error) {
	var gf GameFile
	if _, err := toml.DecodeFile(path, &gf); err != nil {
		return nil, fmt.Errorf("failed to read game config %s: %v", path, err)
	}
	return &gf, nil
}

// GameConfig converts the file into a ledger configuration. An empty start
// time means the game starts at now.
func (gf *GameFile) GameConfig(now time.Time) (models.GameConfig, error) {
	var cfg models.GameConfig
	amounts := []struct {
		name string
		raw  string
		dst  **big.Int
	}{
		{"base_fee", gf.BaseFee, &cfg.BaseFee},
		{"fee_increment", gf.FeeIncrement, &cfg.FeeIncrement},
		{"fee_ceiling", gf.FeeCeiling, &cfg.FeeCeiling},
	}
	for _, a := range amounts {
		v, err := models.ParseAmount(a.raw)
		if err != nil {
			return models.GameConfig{}, fmt.Errorf("%s: %v", a.name, err)
		}
		*a.dst = v
	}

	d, err := time.ParseDuration(gf.Duration)
	if err != nil {
		return models.GameConfig{}, fmt.Errorf("duration: %v", err)
	}
	cfg.Duration = d

	cfg.StartTime = now
	if gf.StartTime != "" {
		if cfg.StartTime, err = time.Parse(time.RFC3339, gf.StartTime); err != nil {
			return models.GameConfig{}, fmt.Errorf("start_time: %v", err)
		}
	}
	cfg.PoolSharePercent = gf.PoolSharePercent
	cfg.DeveloperSharePercent = gf.DeveloperSharePercent
	return cfg, nil
}

// LocalFees returns the per-model fees for the in-process oracle.
func (gf *GameFile) LocalFees() (map[uint64]*big.Int, error) {
	fees := make(map[uint64]*big.Int, len(gf.Models))
	for _, m := range gf.Models {
		if m.LocalFee == "" {
			continue
		}
		fee, err := models.ParseAmount(m.LocalFee)
		if err != nil {
			return nil, fmt.Errorf("model %d local_fee: %v", m.ID, err)
		}
		fees[m.ID] = fee
	}
	return fees, nil
}
