// Package main writes a settlement report: a markdown summary plus CSV exports.
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"solana-nft-market/internal/bootstrap"
	"solana-nft-market/internal/config"
	"solana-nft-market/internal/logger"
	"solana-nft-market/internal/reporting"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		zap.L().Fatal("load config", zap.Error(err))
	}

	app := &cli.App{
		Name:  "report",
		Usage: "generate settlement reports",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "output-dir", Value: "docs", Usage: "output directory for generated files"},
			&cli.TimestampFlag{Name: "since", Layout: time.RFC3339, Usage: "include settlements at or after this time"},
			&cli.TimestampFlag{Name: "until", Layout: time.RFC3339, Usage: "include settlements at or before this time"},
		},
		Action: func(c *cli.Context) error {
			var start, end int64
			if ts := c.Timestamp("since"); ts != nil {
				start = ts.Unix()
			}
			if ts := c.Timestamp("until"); ts != nil {
				end = ts.Unix()
			}
			return run(c.Context, cfg, c.String("output-dir"), start, end)
		},
	}

	if err := app.Run(os.Args); err != nil {
		zap.L().Fatal("report failed", zap.Error(err))
	}
}

func run(ctx context.Context, cfg *config.Config, outputDir string, start, end int64) error {
	log := logger.Must(logger.Options{Path: cfg.LogFile, Debug: cfg.Debug})
	defer log.Sync()

	stores, err := bootstrap.OpenStores(ctx, cfg, false, log)
	if err != nil {
		return err
	}
	defer stores.Close()

	report, err := reporting.NewGenerator(stores.Settlements, stores.Events).Generate(ctx, start, end)
	if err != nil {
		return fmt.Errorf("generate report: %w", err)
	}

	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	if err := os.WriteFile(filepath.Join(outputDir, "SETTLEMENTS.md"), []byte(reporting.RenderMarkdown(report)), 0o644); err != nil {
		return fmt.Errorf("write markdown: %w", err)
	}
	if err := writeCSV(filepath.Join(outputDir, "settlements.csv"), func(f *os.File) error {
		return reporting.WriteSettlementsCSV(f, report.Settlements)
	}); err != nil {
		return err
	}
	if err := writeCSV(filepath.Join(outputDir, "marketplaces.csv"), func(f *os.File) error {
		return reporting.WriteMarketplacesCSV(f, report.Marketplaces)
	}); err != nil {
		return err
	}

	log.Info("report written",
		zap.String("dir", outputDir),
		zap.Int("settlements", report.Summary.TotalSettlements),
		zap.String("volume_sol", report.Summary.Volume.StringFixed(9)))
	return nil
}

func writeCSV(path string, write func(*os.File) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := write(f); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}
