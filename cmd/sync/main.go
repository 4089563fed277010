// Package main mirrors the marketplace program's accounts from a cluster into
// the local ledger so settlements can be dry-run against real state.
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"solana-nft-market/internal/bootstrap"
	"solana-nft-market/internal/chainsync"
	"solana-nft-market/internal/config"
	"solana-nft-market/internal/logger"
	"solana-nft-market/internal/marketplace"
	"solana-nft-market/internal/solana"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		zap.L().Fatal("load config", zap.Error(err))
	}

	app := &cli.App{
		Name:  "sync",
		Usage: "import marketplace program accounts and follow live updates",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "rpc", Value: cfg.Solana.RPCEndpoint, EnvVars: []string{"SOLANA_RPC_ENDPOINT"}, Usage: "JSON-RPC endpoint"},
			&cli.StringFlag{Name: "ws", Value: cfg.Solana.WSEndpoint, EnvVars: []string{"SOLANA_WS_ENDPOINT"}, Usage: "websocket endpoint, empty for a one-shot import"},
			&cli.StringFlag{Name: "program", Value: cfg.ProgramID, EnvVars: []string{"PROGRAM_ID"}, Usage: "marketplace program id"},
			&cli.BoolFlag{Name: "resume", Usage: "skip the full import and follow from the saved slot"},
			&cli.Int64Flag{Name: "slot-lag", Value: 2, Usage: "slots to wait before applying an update"},
			&cli.DurationFlag{Name: "flush-interval", Value: 2 * time.Second, Usage: "force-apply finalized slots at this interval"},
		},
		Action: func(c *cli.Context) error {
			cfg.Solana.RPCEndpoint = c.String("rpc")
			cfg.Solana.WSEndpoint = c.String("ws")
			cfg.ProgramID = c.String("program")
			return run(c.Context, cfg, chainsync.RunnerOptions{
				SkipImport:    c.Bool("resume"),
				SlotLagWindow: c.Int64("slot-lag"),
				FlushInterval: c.Duration("flush-interval"),
			})
		},
	}

	if err := app.Run(os.Args); err != nil {
		zap.L().Fatal("sync failed", zap.Error(err))
	}
}

func run(parent context.Context, cfg *config.Config, opts chainsync.RunnerOptions) error {
	log := logger.Must(logger.Options{Path: cfg.LogFile, Debug: cfg.Debug})
	defer log.Sync()

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	programID, err := solana.ParsePublicKey(cfg.ProgramID)
	if err != nil {
		return err
	}

	stores, err := bootstrap.OpenStores(ctx, cfg, true, log)
	if err != nil {
		return err
	}
	defer stores.Close()

	opts.Logger = log
	runner, closeWS, err := bootstrap.NewSyncRunner(ctx, cfg, stores, marketplace.NewDeriver(programID), opts)
	if err != nil {
		return err
	}
	defer closeWS()

	err = runner.Run(ctx)
	if errors.Is(err, context.Canceled) {
		log.Info("sync stopped")
		return nil
	}
	return err
}
