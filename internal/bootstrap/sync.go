package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"time"

	"solana-nft-market/internal/chainsync"
	"solana-nft-market/internal/config"
	"solana-nft-market/internal/marketplace"
	"solana-nft-market/internal/solana"
)

// ErrNoRPCEndpoint is returned when a chain mirror is requested without an RPC endpoint.
var ErrNoRPCEndpoint = errors.New("SOLANA_RPC_ENDPOINT is required to sync")

// NewSyncRunner builds a chain mirror over stores. Live updates are followed
// when SOLANA_WS_ENDPOINT is set. The returned func closes the websocket.
// opts.Importer and opts.WS are filled in here.
func NewSyncRunner(ctx context.Context, cfg *config.Config, stores *Stores, seeds *marketplace.Deriver, opts chainsync.RunnerOptions) (*chainsync.Runner, func(), error) {
	if cfg.Solana.RPCEndpoint == "" {
		return nil, nil, ErrNoRPCEndpoint
	}
	rpc := solana.NewHTTPClient(cfg.Solana.RPCEndpoint,
		solana.WithTimeout(time.Duration(cfg.Solana.Timeout)*time.Second),
		solana.WithMaxRetries(cfg.Solana.MaxRetries))

	opts.Importer = chainsync.NewImporter(chainsync.ImporterOptions{
		RPC:      rpc,
		Ledger:   stores.Ledger,
		Progress: stores.Progress,
		Deriver:  seeds,
		Logger:   opts.Logger,
	})

	closeWS := func() {}
	if cfg.Solana.WSEndpoint != "" {
		var wsOpts []solana.WSOption
		if opts.Logger != nil {
			wsOpts = append(wsOpts, solana.WithWSLogger(opts.Logger.Named("ws")))
		}
		ws, err := solana.NewWSClient(ctx, cfg.Solana.WSEndpoint, wsOpts...)
		if err != nil {
			return nil, nil, fmt.Errorf("connect websocket: %w", err)
		}
		opts.WS = ws
		closeWS = func() { _ = ws.Close() }
	}
	return chainsync.NewRunner(opts), closeWS, nil
}
