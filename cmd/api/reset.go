package main

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"promptpot-backend/internal/services"
)

// ResetCmd clears persisted game state so the next serve starts a new game.
func ResetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Delete the saved snapshot and event journal",
		RunE:  runReset,
	}
	cmd.Flags().StringSlice("unthrottle", nil, "addresses whose rate limits are also cleared")
	return cmd
}

func runReset(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	unthrottle, _ := cmd.Flags().GetStringSlice("unthrottle")

	redisService, err := services.NewRedisService(cfg)
	if err != nil {
		return err
	}
	defer redisService.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
	defer cancel()

	if err := redisService.DeleteSnapshot(ctx); err != nil {
		return err
	}
	if err := redisService.DeleteEvents(ctx); err != nil {
		return err
	}
	for _, addr := range unthrottle {
		if !common.IsHexAddress(addr) {
			return fmt.Errorf("%q is not an address", addr)
		}
		for _, action := range []string{"attempt", "refund"} {
			if err := redisService.ClearRateLimit(ctx, common.HexToAddress(addr), action); err != nil {
				return err
			}
		}
	}
	log.Infow("game state cleared", "contract", cfg.ContractAddress.Hex(), "unthrottled", len(unthrottle))
	return nil
}
