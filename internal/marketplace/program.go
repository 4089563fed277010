// Package marketplace implements the marketplace program: the registry write
// path and bid settlement. Every instruction runs inside a caller-owned
// storage.LedgerTx; the caller commits or rolls back.
package marketplace

import (
	"go.uber.org/zap"

	"solana-nft-market/internal/solana"
)

// Options configures a Program.
type Options struct {
	Logger *zap.Logger
}

// Program is the marketplace program bound to its on-ledger id.
type Program struct {
	id     solana.PublicKey
	seeds  *Deriver
	logger *zap.Logger
}

// New creates a Program for programID.
func New(programID solana.PublicKey, opts Options) *Program {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Program{
		id:     programID,
		seeds:  NewDeriver(programID),
		logger: logger.Named("marketplace"),
	}
}

// ID returns the program id.
func (p *Program) ID() solana.PublicKey {
	return p.id
}

// Seeds returns the program's address deriver.
func (p *Program) Seeds() *Deriver {
	return p.seeds
}
