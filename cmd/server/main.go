// Package main runs the settlement HTTP API, optionally mirroring cluster
// state into the ledger while it serves.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"solana-nft-market/internal/api"
	"solana-nft-market/internal/bootstrap"
	"solana-nft-market/internal/chainsync"
	"solana-nft-market/internal/config"
	"solana-nft-market/internal/logger"
	"solana-nft-market/internal/observability"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		zap.L().Fatal("load config", zap.Error(err))
	}

	app := &cli.App{
		Name:  "server",
		Usage: "serve the marketplace settlement API",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "http-addr", Value: cfg.HTTPAddr, EnvVars: []string{"HTTP_ADDR"}, Usage: "API listen address"},
			&cli.StringFlag{Name: "metrics-addr", Value: cfg.MetricsAddr, EnvVars: []string{"METRICS_ADDR"}, Usage: "Prometheus listen address, empty to serve /metrics on the API only"},
			&cli.BoolFlag{Name: "memory", Value: cfg.UseMemory, EnvVars: []string{"USE_MEMORY"}, Usage: "use in-memory stores"},
			&cli.BoolFlag{Name: "migrate", Value: true, Usage: "apply embedded migrations on start"},
			&cli.BoolFlag{Name: "dev-faucet", Value: cfg.DevFaucet, EnvVars: []string{"DEV_FAUCET"}, Usage: "enable POST /v1/dev/airdrop"},
			&cli.BoolFlag{Name: "sync", Usage: "mirror program accounts from SOLANA_RPC_ENDPOINT while serving"},
		},
		Action: func(c *cli.Context) error {
			cfg.HTTPAddr = c.String("http-addr")
			cfg.MetricsAddr = c.String("metrics-addr")
			cfg.UseMemory = c.Bool("memory")
			cfg.DevFaucet = c.Bool("dev-faucet")
			return run(c.Context, cfg, c.Bool("migrate"), c.Bool("sync"))
		},
	}

	if err := app.Run(os.Args); err != nil {
		zap.L().Fatal("server exited", zap.Error(err))
	}
}

func run(parent context.Context, cfg *config.Config, migrate, sync bool) error {
	log := logger.Must(logger.Options{Path: cfg.LogFile, Debug: cfg.Debug})
	defer log.Sync()

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	stores, err := bootstrap.OpenStores(ctx, cfg, migrate, log)
	if err != nil {
		return err
	}
	defer stores.Close()

	proc, err := bootstrap.NewProcessor(cfg, stores, log)
	if err != nil {
		return err
	}

	srv := api.NewServer(api.Options{
		Processor:   proc,
		Settlements: stores.Settlements,
		DevFaucet:   cfg.DevFaucet,
		Logger:      log,
	})
	if cfg.DevFaucet {
		log.Warn("dev faucet enabled")
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return serve(ctx, log, cfg.HTTPAddr, srv.Router()) })
	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", observability.Handler())
		g.Go(func() error { return serve(ctx, log, cfg.MetricsAddr, mux) })
	}
	if sync {
		runner, closeWS, err := bootstrap.NewSyncRunner(ctx, cfg, stores, proc.Program().Seeds(), chainsync.RunnerOptions{Logger: log})
		if err != nil {
			return err
		}
		defer closeWS()
		g.Go(func() error {
			err := runner.Run(ctx)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	}

	log.Info("server started",
		zap.String("http_addr", cfg.HTTPAddr),
		zap.String("program", proc.Program().ID().String()),
		zap.Bool("memory", cfg.UseMemory),
		zap.Bool("sync", sync))
	return g.Wait()
}

func serve(ctx context.Context, log *zap.Logger, addr string, h http.Handler) error {
	s := &http.Server{Addr: addr, Handler: h, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.Shutdown(shutdownCtx)
	}()
	log.Info("listening", zap.String("addr", addr))
	if err := s.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
