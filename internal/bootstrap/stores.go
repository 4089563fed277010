// Package bootstrap wires configuration into stores and the processor for the binaries.
package bootstrap

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"solana-nft-market/internal/config"
	"solana-nft-market/internal/marketplace"
	"solana-nft-market/internal/processor"
	"solana-nft-market/internal/solana"
	"solana-nft-market/internal/storage"
	chstore "solana-nft-market/internal/storage/clickhouse"
	"solana-nft-market/internal/storage/memory"
	"solana-nft-market/internal/storage/migrations"
	pgstore "solana-nft-market/internal/storage/postgres"
)

// ErrNoPostgres is returned when persistent stores are requested without a DSN.
var ErrNoPostgres = errors.New("POSTGRES_DSN is required unless USE_MEMORY=true")

// Stores holds every storage implementation a binary may need.
// Events is nil when no ClickHouse DSN is configured.
type Stores struct {
	Ledger      storage.Ledger
	Settlements storage.SettlementStore
	Events      storage.SettlementEventStore
	Progress    storage.SyncProgressStore

	pool   *pgstore.Pool
	chConn *chstore.Conn
}

// Close releases database connections.
func (s *Stores) Close() {
	if s.chConn != nil {
		_ = s.chConn.Close()
	}
	if s.pool != nil {
		s.pool.Close()
	}
}

// OpenStores connects the configured backends. With migrate set, embedded
// migrations run before the stores are returned.
func OpenStores(ctx context.Context, cfg *config.Config, migrate bool, logger *zap.Logger) (*Stores, error) {
	if cfg.UseMemory {
		logger.Info("using in-memory stores")
		return &Stores{
			Ledger:      memory.NewLedger(memory.LedgerOptions{}),
			Settlements: memory.NewSettlementStore(),
			Events:      memory.NewSettlementEventStore(),
			Progress:    memory.NewSyncProgressStore(),
		}, nil
	}
	if cfg.PostgresDSN == "" {
		return nil, ErrNoPostgres
	}

	pool, err := pgstore.NewPool(ctx, cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	stores := &Stores{
		Ledger:      pgstore.NewLedger(pool, nil),
		Settlements: pgstore.NewSettlementStore(pool),
		Progress:    pgstore.NewSyncProgressStore(pool),
		pool:        pool,
	}
	if migrate {
		if err := migrations.RunPostgresMigrations(ctx, pool, logger); err != nil {
			stores.Close()
			return nil, fmt.Errorf("postgres migrations: %w", err)
		}
	}

	if cfg.ClickhouseDSN != "" {
		var conn *chstore.Conn
		if migrate {
			conn, err = migrations.RunClickhouseMigrations(ctx, cfg.ClickhouseDSN, logger)
		} else {
			conn, err = chstore.NewConn(ctx, cfg.ClickhouseDSN)
		}
		if err != nil {
			stores.Close()
			return nil, fmt.Errorf("connect to clickhouse: %w", err)
		}
		stores.chConn = conn
		stores.Events = chstore.NewSettlementEventStore(conn)
	}
	return stores, nil
}

// NewProcessor builds the marketplace program and processor over stores.
func NewProcessor(cfg *config.Config, stores *Stores, logger *zap.Logger) (*processor.Processor, error) {
	programID, err := solana.ParsePublicKey(cfg.ProgramID)
	if err != nil {
		return nil, fmt.Errorf("PROGRAM_ID: %w", err)
	}
	opts := processor.Options{
		Ledger:          stores.Ledger,
		Program:         marketplace.New(programID, marketplace.Options{Logger: logger}),
		SettlementStore: stores.Settlements,
		EventStore:      stores.Events,
		Logger:          logger,
	}
	return processor.New(opts), nil
}
