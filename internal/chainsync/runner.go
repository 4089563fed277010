package chainsync

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"solana-nft-market/internal/domain"
	"solana-nft-market/internal/layout"
	"solana-nft-market/internal/observability"
	"solana-nft-market/internal/solana"
	"solana-nft-market/internal/storage"
)

// RunnerOptions contains configuration for creating a Runner.
type RunnerOptions struct {
	Importer *Importer
	WS       solana.WSClient // nil runs a single import
	// SlotLagWindow is how many slots to wait before applying an update. Default: 2.
	SlotLagWindow int64
	// FlushInterval forces finalized slots to be applied. Default: 2s.
	FlushInterval time.Duration
	// SkipImport resumes from saved progress without a fresh snapshot.
	SkipImport bool
	Logger     *zap.Logger
}

// Runner keeps the local ledger in step with the cluster: a full import,
// then programSubscribe notifications applied in slot order.
type Runner struct {
	importer      *Importer
	ws            solana.WSClient
	slotLagWindow int64
	flushInterval time.Duration
	skipImport    bool
	logger        *zap.Logger

	// Updates grouped by slot; a later update of the same address in one
	// slot replaces the earlier one.
	buffer      map[int64]map[string]solana.AccountNotification
	highestSlot int64
	applied     uint64 // highest slot written to the ledger
}

// NewRunner creates a new sync runner.
func NewRunner(opts RunnerOptions) *Runner {
	slotLagWindow := opts.SlotLagWindow
	if slotLagWindow == 0 {
		slotLagWindow = 2
	}
	flushInterval := opts.FlushInterval
	if flushInterval == 0 {
		flushInterval = 2 * time.Second
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		importer:      opts.Importer,
		ws:            opts.WS,
		slotLagWindow: slotLagWindow,
		flushInterval: flushInterval,
		skipImport:    opts.SkipImport,
		logger:        logger.Named("chainsync"),
		buffer:        make(map[int64]map[string]solana.AccountNotification),
	}
}

// Run imports the program and then follows live updates.
// It blocks until ctx is cancelled or the subscription ends.
func (r *Runner) Run(ctx context.Context) error {
	if r.skipImport {
		slot, err := r.importer.lastSynced(ctx)
		if err != nil {
			return err
		}
		r.applied = slot
	} else {
		res, err := r.importer.ImportProgram(ctx)
		if err != nil {
			return fmt.Errorf("import program: %w", err)
		}
		r.applied = res.Slot
	}

	if r.ws == nil {
		return nil
	}

	programID := r.importer.deriver.ProgramID().String()
	updates, err := r.ws.SubscribeProgram(ctx, solana.ProgramFilter{ProgramID: programID})
	if err != nil {
		return fmt.Errorf("subscribe program: %w", err)
	}
	r.logger.Info("following program updates",
		zap.String("program", programID),
		zap.Uint64("from_slot", r.applied),
		zap.Int64("slot_lag_window", r.slotLagWindow))

	flushTicker := time.NewTicker(r.flushInterval)
	defer flushTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			if err := r.flushAll(context.WithoutCancel(ctx)); err != nil {
				r.logger.Error("unapplied slots left at shutdown",
					zap.Uint64("applied", r.applied), zap.Int("pending_slots", len(r.buffer)))
			}
			r.logger.Info("runner stopping")
			return ctx.Err()

		case n, ok := <-updates:
			if !ok {
				_ = r.flushAll(ctx)
				return errors.New("program subscription closed")
			}
			r.bufferUpdate(ctx, n)

		case <-flushTicker.C:
			_ = r.applyFinalized(ctx)
		}
	}
}

// bufferUpdate holds a notification until its slot falls behind the lag window.
// Updates at or below the applied slot are already reflected in the ledger.
func (r *Runner) bufferUpdate(ctx context.Context, n solana.AccountNotification) {
	if n.Slot <= int64(r.applied) {
		r.logger.Debug("dropping stale update",
			zap.String("address", n.Pubkey), zap.Int64("slot", n.Slot))
		return
	}
	bySlot, ok := r.buffer[n.Slot]
	if !ok {
		bySlot = make(map[string]solana.AccountNotification)
		r.buffer[n.Slot] = bySlot
	}
	bySlot[n.Pubkey] = n

	if n.Slot > r.highestSlot {
		r.highestSlot = n.Slot
		observability.UpdateHighestSlot(n.Slot)
		_ = r.applyFinalized(ctx)
	}
}

func (r *Runner) applyFinalized(ctx context.Context) error {
	return r.applyThrough(ctx, r.highestSlot-r.slotLagWindow)
}

func (r *Runner) flushAll(ctx context.Context) error {
	return r.applyThrough(ctx, r.highestSlot)
}

// applyThrough applies buffered slots up to finalized in slot order. It stops
// at the first slot that fails: that slot and every later one stay buffered
// for the next flush, so progress never moves past an unapplied update.
func (r *Runner) applyThrough(ctx context.Context, finalized int64) error {
	var slots []int64
	for slot := range r.buffer {
		if slot <= finalized {
			slots = append(slots, slot)
		}
	}
	sort.Slice(slots, func(i, j int) bool { return slots[i] < slots[j] })

	for _, slot := range slots {
		if err := r.applySlot(ctx, slot, r.buffer[slot]); err != nil {
			r.logger.Warn("apply slot failed, will retry",
				zap.Int64("slot", slot),
				zap.Int("pending_slots", len(r.buffer)),
				zap.Error(err))
			return err
		}
		delete(r.buffer, slot)
	}
	return nil
}

// applySlot writes one slot's updates in a single ledger transaction. An
// account with zero lamports was closed on the cluster and is removed.
// A malformed notification is skipped; fetch and ledger errors fail the slot.
func (r *Runner) applySlot(ctx context.Context, slot int64, updates map[string]solana.AccountNotification) error {
	var accounts []*domain.Account
	var closed []solana.PublicKey
	var refs []solana.PublicKey
	for _, n := range updates {
		acct, err := toAccount(n.Pubkey, n.Account)
		if err != nil {
			r.logger.Warn("skipping malformed update", zap.String("address", n.Pubkey), zap.Error(err))
			continue
		}
		if acct.Lamports == 0 {
			closed = append(closed, acct.Address)
			continue
		}
		accounts = append(accounts, acct)
		if layout.HasDiscriminator(acct.Data, layout.ListingDiscriminator) {
			more, _, err := r.importer.references(acct)
			if err != nil {
				r.logger.Warn("undecodable listing update", zap.String("address", n.Pubkey), zap.Error(err))
				continue
			}
			refs = append(refs, more...)
		}
	}

	// A new listing brings a new vault and possibly a new mint.
	for _, ref := range refs {
		acct, err := r.importer.fetch(ctx, ref)
		if err != nil {
			return err
		}
		if acct != nil {
			accounts = append(accounts, acct)
		}
	}

	tx, err := r.importer.ledger.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin ledger tx: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, acct := range accounts {
		if err := tx.Put(ctx, acct); err != nil {
			return fmt.Errorf("put account %s: %w", acct.Address, err)
		}
	}
	for _, address := range closed {
		if err := tx.Delete(ctx, address); err != nil && !errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("delete account %s: %w", address, err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit slot %d: %w", slot, err)
	}
	observability.RecordAccountsImported("ws", len(accounts)+len(closed))

	r.applied = uint64(slot)
	if err := r.importer.saveProgress(ctx, r.applied); err != nil {
		// The slot is committed; a later slot saves progress again.
		r.logger.Warn("save sync progress", zap.Uint64("slot", r.applied), zap.Error(err))
	}
	r.logger.Debug("applied slot",
		zap.Int64("slot", slot),
		zap.Int("updated", len(accounts)),
		zap.Int("closed", len(closed)))
	return nil
}
