package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"promptpot-backend/internal/config"
	"promptpot-backend/internal/handlers"
	"promptpot-backend/internal/models"
	"promptpot-backend/internal/services"
)

func ServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the game API",
		RunE:  runServe,
	}
	cmd.Flags().String("game", "", "game config file (overrides GAME_CONFIG)")
	cmd.Flags().Bool("fresh", false, "ignore a saved snapshot and launch a new game")
	return cmd
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	envFile, _ := cmd.Flags().GetString("env-file")
	if err := godotenv.Load(envFile); err != nil {
		log.Infow("no .env file found, using environment variables", "path", envFile)
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := config.SetupLogging(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if path, _ := cmd.Flags().GetString("game"); path != "" {
		cfg.GameConfigPath = path
	}
	fresh, _ := cmd.Flags().GetBool("fresh")

	gameFile, err := config.LoadGame(cfg.GameConfigPath)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	redisService, err := services.NewRedisService(cfg)
	if err != nil {
		return err
	}
	defer redisService.Close()

	var vault interface {
		services.Vault
		handlers.Depositor
	}
	switch cfg.VaultMode {
	case config.VaultModeMemory:
		vault = services.NewMemoryVault(cfg.ContractAddress)
		// Balances do not survive a restart, so neither can the ledger.
		fresh = true
	default:
		vault = services.NewRedisVault(redisService, cfg.ContractAddress)
	}

	hub := handlers.NewWebSocketHub()
	defer hub.Close()
	journal := services.NewEventJournal(redisService)
	defer journal.Close()
	events := services.MultiBroadcaster{journal, hub}

	var oracle services.Oracle
	var localOracle *services.LocalOracle
	switch cfg.OracleMode {
	case config.OracleModeHTTP:
		if oracle, err = services.NewHTTPOracle(cfg); err != nil {
			return err
		}
	default:
		fees, err := gameFile.LocalFees()
		if err != nil {
			return err
		}
		localOracle = services.NewLocalOracle(services.LocalOracleConfig{
			Address: cfg.OracleAddress,
			Fees:    fees,
			Delay:   2 * time.Second,
		}, services.PhraseScorer{Phrase: cfg.LocalPhrase})
		oracle = localOracle
	}

	deps := services.LedgerDeps{
		Oracle:         oracle,
		Vault:          vault,
		Broadcaster:    events,
		CallbackTarget: cfg.CallbackURL,
	}
	ledger, err := openLedger(ctx, cfg, gameFile, deps, vault, redisService, fresh)
	if err != nil {
		return err
	}

	if localOracle != nil {
		localOracle.Attach(ledger)
		defer localOracle.Close()
	}

	scheduler, err := services.NewScheduler(ledger, events, redisService, services.SchedulerConfig{
		DeadlineCheck: cfg.DeadlineCheckInterval,
		StateSync:     cfg.StateSyncInterval,
	})
	if err != nil {
		return err
	}
	scheduler.Start()
	defer func() {
		if err := scheduler.Shutdown(); err != nil {
			log.Warnw("scheduler shutdown", "err", err)
		}
		saveCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		scheduler.SyncState(saveCtx)
	}()

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := handlers.NewRouter(handlers.RouterConfig{
		Game:      handlers.NewGameHandler(ledger, vault, redisService, redisService),
		User:      handlers.NewUserHandler(ledger, vault),
		WebSocket: handlers.NewWebSocketHandler(ledger, hub),
		JWT:       services.NewJWTService(cfg),
		Limiter:   redisService,
		Faucet:    !cfg.IsProduction(),
	})

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Infow("server starting", "port", cfg.Port, "oracle", cfg.OracleMode, "vault", cfg.VaultMode)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Infow("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// openLedger restores the saved game or launches the one described by the
// game file, funding the prize pool first.
func openLedger(ctx context.Context, cfg *config.Config, gameFile *config.GameFile, deps services.LedgerDeps,
	vault handlers.Depositor, redisService *services.RedisService, fresh bool) (*services.GameLedger, error) {
	if !fresh {
		snap, err := redisService.LoadSnapshot(ctx)
		if err != nil {
			return nil, err
		}
		if snap != nil {
			return services.RestoreGameLedger(deps, snap)
		}
	}

	gameConfig, err := gameFile.GameConfig(time.Now())
	if err != nil {
		return nil, err
	}
	if err := redisService.DeleteEvents(ctx); err != nil {
		log.Warnw("old event journal not cleared", "err", err)
	}
	if cfg.InitialFunding.Sign() > 0 {
		if err := vault.Deposit(ctx, cfg.ContractAddress, cfg.InitialFunding); err != nil {
			return nil, err
		}
	}

	ledger, err := services.NewGameLedger(deps, services.InitParams{
		Config:          gameConfig,
		Admin:           cfg.AdminAddress,
		DeveloperWallet: cfg.DeveloperWallet,
		InitialFunding:  cfg.InitialFunding,
		SystemPrompt:    gameFile.SystemPrompt,
	})
	if err != nil {
		return nil, err
	}

	if err := ledger.SetMinSlippagePercent(cfg.AdminAddress, gameFile.MinSlippagePercent); err != nil {
		return nil, err
	}
	for _, m := range gameFile.Models {
		if err := ledger.SetCallbackGasBudget(cfg.AdminAddress, m.ID, m.GasBudget); err != nil {
			return nil, err
		}
	}

	if err := redisService.SaveSnapshot(ctx, ledger.Snapshot()); err != nil {
		return nil, err
	}
	log.Infow("game launched", "models", len(gameFile.Models), "pool", models.FormatUnits(ledger.Pool(), 18))
	return ledger, nil
}
