package main

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"promptpot-backend/internal/services"
)

// TokenCmd mints a bearer token for development and for the oracle service.
func TokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a JWT for an address",
		RunE:  runToken,
	}
	cmd.Flags().StringP("address", "a", "", "address the token authenticates")
	cmd.MarkFlagRequired("address")
	cmd.Flags().StringP("role", "r", string(services.RolePlayer), "player, admin or oracle")
	return cmd
}

func runToken(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	addr, _ := cmd.Flags().GetString("address")
	role, _ := cmd.Flags().GetString("role")

	if !common.IsHexAddress(addr) {
		return fmt.Errorf("%q is not an address", addr)
	}

	token, err := services.NewJWTService(cfg).GenerateToken(common.HexToAddress(addr), services.Role(role))
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), token)
	return nil
}
