package config

import (
	"fmt"

	logging "github.com/ipfs/go-log/v2"
)

// SetupLogging configures every named logger of the process.
func SetupLogging(cfg *Config) error {
	level, err := logging.LevelFromString(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("invalid LOG_LEVEL %q: %v", cfg.LogLevel, err)
	}

	format := logging.ColorizedOutput
	switch cfg.LogFormat {
	case "json":
		format = logging.JSONOutput
	case "plain":
		format = logging.PlaintextOutput
	}

	logging.SetupLogging(logging.Config{
		Format: format,
		Level:  level,
		Stderr: true,
	})
	return nil
}
