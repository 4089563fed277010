package chainsync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"solana-nft-market/internal/domain"
	"solana-nft-market/internal/layout"
	"solana-nft-market/internal/marketplace"
	"solana-nft-market/internal/observability"
	"solana-nft-market/internal/solana"
	"solana-nft-market/internal/storage"
)

// ImporterOptions contains configuration for creating an Importer.
type ImporterOptions struct {
	RPC      solana.RPCClient
	Ledger   storage.Ledger
	Progress storage.SyncProgressStore // optional
	Deriver  *marketplace.Deriver
	Logger   *zap.Logger
}

// Importer copies the marketplace program's accounts, and the token accounts
// and mints they reference, from a cluster into the local ledger.
type Importer struct {
	rpc      solana.RPCClient
	ledger   storage.Ledger
	progress storage.SyncProgressStore
	deriver  *marketplace.Deriver
	logger   *zap.Logger
}

// ImportResult summarizes one import pass.
type ImportResult struct {
	Slot            uint64 // cluster slot observed before fetching
	ProgramAccounts int
	Referenced      int // vaults, mints and treasuries
	Listings        int
	Missing         []solana.PublicKey // referenced addresses the cluster did not return
}

// NewImporter creates a new importer.
func NewImporter(opts ImporterOptions) *Importer {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Importer{
		rpc:      opts.RPC,
		ledger:   opts.Ledger,
		progress: opts.Progress,
		deriver:  opts.Deriver,
		logger:   logger.Named("chainsync"),
	}
}

// ImportProgram fetches every program account and writes the snapshot in one
// ledger transaction. Sync progress is saved only after the commit.
func (im *Importer) ImportProgram(ctx context.Context) (*ImportResult, error) {
	programID := im.deriver.ProgramID()

	start := time.Now()
	slot, err := im.rpc.GetSlot(ctx)
	observability.RecordRPCLatency("getSlot", time.Since(start).Seconds())
	if err != nil {
		return nil, fmt.Errorf("get slot: %w", err)
	}
	observability.UpdateHighestSlot(slot)

	start = time.Now()
	keyed, err := im.rpc.GetProgramAccounts(ctx, programID.String())
	observability.RecordRPCLatency("getProgramAccounts", time.Since(start).Seconds())
	if err != nil {
		return nil, fmt.Errorf("get program accounts: %w", err)
	}

	result := &ImportResult{Slot: uint64(slot)}
	accounts := make([]*domain.Account, 0, len(keyed))
	var refs []solana.PublicKey
	seen := make(map[solana.PublicKey]bool)

	for _, ka := range keyed {
		acct, err := toAccount(ka.Pubkey, ka.Account)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, acct)
		seen[acct.Address] = true

		more, isListing, err := im.references(acct)
		if err != nil {
			im.logger.Warn("skipping references of undecodable account",
				zap.String("address", acct.Address.String()), zap.Error(err))
			continue
		}
		if isListing {
			result.Listings++
		}
		refs = append(refs, more...)
	}
	result.ProgramAccounts = len(accounts)

	for _, ref := range refs {
		if seen[ref] {
			continue
		}
		seen[ref] = true

		acct, err := im.fetch(ctx, ref)
		if err != nil {
			return nil, err
		}
		if acct == nil {
			result.Missing = append(result.Missing, ref)
			continue
		}
		accounts = append(accounts, acct)
		result.Referenced++
	}

	if err := im.write(ctx, accounts); err != nil {
		return nil, err
	}
	observability.RecordAccountsImported("rpc", len(accounts))

	if err := im.saveProgress(ctx, result.Slot); err != nil {
		return nil, err
	}

	im.logger.Info("imported program accounts",
		zap.String("program", programID.String()),
		zap.Uint64("slot", result.Slot),
		zap.Int("program_accounts", result.ProgramAccounts),
		zap.Int("referenced", result.Referenced),
		zap.Int("listings", result.Listings),
		zap.Int("missing", len(result.Missing)))
	return result, nil
}

// references lists the non-program accounts a record depends on.
func (im *Importer) references(acct *domain.Account) ([]solana.PublicKey, bool, error) {
	switch {
	case layout.HasDiscriminator(acct.Data, layout.ListingDiscriminator):
		listing, err := layout.DecodeListing(acct.Data)
		if err != nil {
			return nil, false, err
		}
		vault, _, err := im.deriver.VaultAuthority(listing.Mint)
		if err != nil {
			return nil, false, err
		}
		return []solana.PublicKey{listing.Mint, vault}, true, nil

	case layout.HasDiscriminator(acct.Data, layout.MarketplaceDiscriminator):
		treasury, _, err := im.deriver.Treasury(acct.Address)
		if err != nil {
			return nil, false, err
		}
		return []solana.PublicKey{treasury}, false, nil
	}
	return nil, false, nil
}

// fetch returns nil when the cluster has no account at address.
func (im *Importer) fetch(ctx context.Context, address solana.PublicKey) (*domain.Account, error) {
	start := time.Now()
	info, err := im.rpc.GetAccountInfo(ctx, address.String())
	observability.RecordRPCLatency("getAccountInfo", time.Since(start).Seconds())
	if err != nil {
		return nil, fmt.Errorf("get account %s: %w", address, err)
	}
	if info == nil {
		return nil, nil
	}
	return toAccount(address.String(), *info)
}

func (im *Importer) write(ctx context.Context, accounts []*domain.Account) error {
	tx, err := im.ledger.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin ledger tx: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, acct := range accounts {
		if err := tx.Put(ctx, acct); err != nil {
			return fmt.Errorf("put account %s: %w", acct.Address, err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit import: %w", err)
	}
	return nil
}

func (im *Importer) saveProgress(ctx context.Context, slot uint64) error {
	if im.progress == nil {
		return nil
	}
	err := im.progress.SetLastSynced(ctx, &storage.SyncProgress{
		ProgramID: im.deriver.ProgramID().String(),
		Slot:      slot,
	})
	if err != nil {
		return fmt.Errorf("save sync progress: %w", err)
	}
	observability.RecordSyncCompleted(time.Now().Unix())
	return nil
}

// lastSynced returns 0 when no progress has been saved.
func (im *Importer) lastSynced(ctx context.Context) (uint64, error) {
	if im.progress == nil {
		return 0, nil
	}
	p, err := im.progress.GetLastSynced(ctx, im.deriver.ProgramID().String())
	if errors.Is(err, storage.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("load sync progress: %w", err)
	}
	return p.Slot, nil
}

// toAccount converts an RPC account into a ledger account.
func toAccount(pubkey string, info solana.AccountInfo) (*domain.Account, error) {
	address, err := solana.ParsePublicKey(pubkey)
	if err != nil {
		return nil, fmt.Errorf("parse address %q: %w", pubkey, err)
	}
	owner, err := solana.ParsePublicKey(info.Owner)
	if err != nil {
		return nil, fmt.Errorf("parse owner of %s: %w", pubkey, err)
	}
	data, err := info.DecodeData()
	if err != nil {
		return nil, fmt.Errorf("account %s: %w", pubkey, err)
	}
	return &domain.Account{
		Address:    address,
		Lamports:   info.Lamports,
		Owner:      owner,
		Data:       data,
		Executable: info.Executable,
	}, nil
}
