package config

import (
	"fmt"
	"math/big"
	"os"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"promptpot-backend/internal/models"
)

const (
	OracleModeLocal = "local"
	OracleModeHTTP  = "http"

	VaultModeMemory = "memory"
	VaultModeRedis  = "redis"
)

type Config struct {
	Env  string
	Port string

	RedisURL  string
	RedisPass string
	RedisDB   int

	JWTSecret string
	JWTTTL    time.Duration

	AdminAddress    common.Address
	DeveloperWallet common.Address
	ContractAddress common.Address

	OracleMode    string
	OracleAddress common.Address
	OracleURL     string
	OracleToken   string
	CallbackURL   string
	// LocalPhrase makes the local oracle award 100 to prompts containing it.
	LocalPhrase string

	VaultMode      string
	InitialFunding *big.Int

	GameConfigPath string

	LogLevel  string
	LogFormat string

	StateSyncInterval     time.Duration
	DeadlineCheckInterval time.Duration
}

// Load reads the process configuration from the environment. Call
// godotenv.Load first to pick up a .env file.
func Load() (*Config, error) {
	cfg := &Config{
		Env:            getEnv("APP_ENV", "development"),
		Port:           getEnv("PORT", "8080"),
		RedisURL:       getEnv("REDIS_URL", "localhost:6379"),
		RedisPass:      os.Getenv("REDIS_PASSWORD"),
		JWTSecret:      os.Getenv("JWT_SECRET"),
		OracleMode:     getEnv("ORACLE_MODE", OracleModeLocal),
		OracleURL:      os.Getenv("ORACLE_URL"),
		OracleToken:    os.Getenv("ORACLE_TOKEN"),
		CallbackURL:    getEnv("CALLBACK_URL", "http://localhost:8080/oracle/callback"),
		LocalPhrase:    os.Getenv("LOCAL_ORACLE_PHRASE"),
		VaultMode:      getEnv("VAULT_MODE", VaultModeRedis),
		GameConfigPath: getEnv("GAME_CONFIG", "game.toml"),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		LogFormat:      getEnv("LOG_FORMAT", "color"),
	}

	var err error
	if cfg.RedisDB, err = strconv.Atoi(getEnv("REDIS_DB", "0")); err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %v", err)
	}
	if cfg.JWTTTL, err = time.ParseDuration(getEnv("JWT_TTL", "24h")); err != nil {
		return nil, fmt.Errorf("invalid JWT_TTL: %v", err)
	}
	if cfg.StateSyncInterval, err = time.ParseDuration(getEnv("STATE_SYNC_INTERVAL", "30s")); err != nil {
		return nil, fmt.Errorf("invalid STATE_SYNC_INTERVAL: %v", err)
	}
	if cfg.DeadlineCheckInterval, err = time.ParseDuration(getEnv("DEADLINE_CHECK_INTERVAL", "10s")); err != nil {
		return nil, fmt.Errorf("invalid DEADLINE_CHECK_INTERVAL: %v", err)
	}
	if cfg.InitialFunding, err = models.ParseAmount(getEnv("INITIAL_FUNDING", "0")); err != nil {
		return nil, fmt.Errorf("invalid INITIAL_FUNDING: %v", err)
	}

	addrs := []struct {
		env      string
		dst      *common.Address
		required bool
	}{
		{"ADMIN_ADDRESS", &cfg.AdminAddress, true},
		{"DEVELOPER_WALLET", &cfg.DeveloperWallet, true},
		{"ORACLE_ADDRESS", &cfg.OracleAddress, true},
		{"CONTRACT_ADDRESS", &cfg.ContractAddress, false},
	}
	for _, a := range addrs {
		if *a.dst, err = parseAddress(a.env, a.required); err != nil {
			return nil, err
		}
	}
	if cfg.ContractAddress == (common.Address{}) {
		cfg.ContractAddress = common.HexToAddress("0x00000000000000000000000000000000000c0de1")
	}

	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}
	switch cfg.OracleMode {
	case OracleModeLocal, OracleModeHTTP:
	default:
		return nil, fmt.Errorf("invalid ORACLE_MODE %q", cfg.OracleMode)
	}
	switch cfg.VaultMode {
	case VaultModeMemory, VaultModeRedis:
	default:
		return nil, fmt.Errorf("invalid VAULT_MODE %q", cfg.VaultMode)
	}

	return cfg, nil
}

func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

func parseAddress(env string, required bool) (common.Address, error) {
	raw := os.Getenv(env)
	if raw == "" {
		if required {
			return common.Address{}, fmt.Errorf("%s is required", env)
		}
		return common.Address{}, nil
	}
	if !common.IsHexAddress(raw) {
		return common.Address{}, fmt.Errorf("%s: %q is not a hex address", env, raw)
	}
	return common.HexToAddress(raw), nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}
