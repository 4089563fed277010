package memory

import (
	"context"
	"crypto/sha256"
	"errors"
	"testing"
	"time"

	"solana-nft-market/internal/domain"
	"solana-nft-market/internal/solana"
	"solana-nft-market/internal/storage"
)

func addr(label string) solana.PublicKey {
	return solana.PublicKey(sha256.Sum256([]byte(label)))
}

func fixedNow() time.Time {
	return time.Unix(1_700_000_000, 0)
}

func TestLedger_CommitVisibility(t *testing.T) {
	ledger := NewLedger(LedgerOptions{Now: fixedNow})
	ctx := context.Background()

	tx, err := ledger.Begin(ctx)
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if tx.Clock().Slot != 1 || tx.Clock().UnixTimestamp != 1_700_000_000 {
		t.Errorf("unexpected clock %+v", tx.Clock())
	}

	acct := &domain.Account{Address: addr("a"), Lamports: 100, Owner: solana.SystemProgramID}
	if err := tx.Put(ctx, acct); err != nil {
		t.Fatalf("Put: %v", err)
	}

	// Caller mutations after Put do not leak into the ledger
	acct.Lamports = 1

	got, err := tx.Get(ctx, addr("a"))
	if err != nil {
		t.Fatalf("Get in tx: %v", err)
	}
	if got.Lamports != 100 {
		t.Errorf("lamports = %d, want 100", got.Lamports)
	}

	if err := tx.Commit(ctx); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	tx2, err := ledger.Begin(ctx)
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	defer tx2.Rollback(ctx)

	if tx2.Clock().Slot != 2 {
		t.Errorf("slot = %d, want 2", tx2.Clock().Slot)
	}
	got, err = tx2.Get(ctx, addr("a"))
	if err != nil {
		t.Fatalf("Get after commit: %v", err)
	}
	if got.Lamports != 100 {
		t.Errorf("lamports = %d, want 100", got.Lamports)
	}
}

func TestLedger_RollbackDiscards(t *testing.T) {
	ledger := NewLedger(LedgerOptions{Now: fixedNow, GenesisSlot: 10})
	ctx := context.Background()

	seed, _ := ledger.Begin(ctx)
	seed.Put(ctx, &domain.Account{Address: addr("keep"), Lamports: 5})
	seed.Commit(ctx)

	tx, _ := ledger.Begin(ctx)
	tx.Put(ctx, &domain.Account{Address: addr("new"), Lamports: 7})
	if err := tx.Delete(ctx, addr("keep")); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := tx.Get(ctx, addr("keep")); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("deleted account visible in tx: %v", err)
	}
	if err := tx.Rollback(ctx); err != nil {
		t.Fatalf("Rollback: %v", err)
	}

	check, _ := ledger.Begin(ctx)
	defer check.Rollback(ctx)

	if check.Clock().Slot != 12 {
		t.Errorf("rolled back tx must not advance slot, got %d", check.Clock().Slot)
	}
	if _, err := check.Get(ctx, addr("new")); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("rolled back write visible: %v", err)
	}
	if _, err := check.Get(ctx, addr("keep")); err != nil {
		t.Errorf("rolled back delete applied: %v", err)
	}
}

func TestLedger_TxDone(t *testing.T) {
	ledger := NewLedger(LedgerOptions{})
	ctx := context.Background()

	tx, _ := ledger.Begin(ctx)
	if err := tx.Commit(ctx); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	if err := tx.Commit(ctx); !errors.Is(err, storage.ErrTxDone) {
		t.Errorf("second Commit: expected ErrTxDone, got %v", err)
	}
	if err := tx.Rollback(ctx); err != nil {
		t.Errorf("Rollback after Commit should be a no-op, got %v", err)
	}
	if err := tx.Put(ctx, &domain.Account{Address: addr("x")}); !errors.Is(err, storage.ErrTxDone) {
		t.Errorf("Put after Commit: expected ErrTxDone, got %v", err)
	}
	if _, err := tx.Get(ctx, addr("x")); !errors.Is(err, storage.ErrTxDone) {
		t.Errorf("Get after Commit: expected ErrTxDone, got %v", err)
	}
}

func TestLedger_DeleteMissing(t *testing.T) {
	ledger := NewLedger(LedgerOptions{})
	ctx := context.Background()

	tx, _ := ledger.Begin(ctx)
	defer tx.Rollback(ctx)

	if err := tx.Delete(ctx, addr("missing")); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if err := tx.Put(ctx, &domain.Account{}); !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput for zero address, got %v", err)
	}
}

func TestLedger_Serialized(t *testing.T) {
	ledger := NewLedger(LedgerOptions{})
	ctx := context.Background()

	tx, _ := ledger.Begin(ctx)

	started := make(chan struct{})
	acquired := make(chan storage.LedgerTx)
	go func() {
		close(started)
		next, err := ledger.Begin(ctx)
		if err != nil {
			t.Errorf("Begin: %v", err)
			close(acquired)
			return
		}
		acquired <- next
	}()

	<-started
	select {
	case <-acquired:
		t.Fatal("second transaction began while first was open")
	case <-time.After(50 * time.Millisecond):
	}

	tx.Commit(ctx)

	select {
	case next := <-acquired:
		if next == nil {
			t.Fatal("second Begin failed")
		}
		if next.Clock().Slot != 2 {
			t.Errorf("slot = %d, want 2", next.Clock().Slot)
		}
		next.Rollback(ctx)
	case <-time.After(2 * time.Second):
		t.Fatal("second transaction never began")
	}
}

func TestLedger_BeginContextCancelled(t *testing.T) {
	ledger := NewLedger(LedgerOptions{})
	ctx := context.Background()

	tx, _ := ledger.Begin(ctx)
	defer tx.Rollback(ctx)

	waitCtx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()

	if _, err := ledger.Begin(waitCtx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected DeadlineExceeded, got %v", err)
	}
}

func TestLedger_GetByOwner(t *testing.T) {
	ledger := NewLedger(LedgerOptions{})
	ctx := context.Background()
	program := addr("program")

	seed, _ := ledger.Begin(ctx)
	seed.Put(ctx, &domain.Account{Address: addr("a"), Owner: program})
	seed.Put(ctx, &domain.Account{Address: addr("b"), Owner: program})
	seed.Put(ctx, &domain.Account{Address: addr("c"), Owner: solana.SystemProgramID})
	seed.Commit(ctx)

	tx, _ := ledger.Begin(ctx)
	defer tx.Rollback(ctx)

	tx.Delete(ctx, addr("a"))
	tx.Put(ctx, &domain.Account{Address: addr("d"), Owner: program})

	accounts, err := tx.GetByOwner(ctx, program)
	if err != nil {
		t.Fatalf("GetByOwner: %v", err)
	}
	if len(accounts) != 2 {
		t.Fatalf("expected 2 accounts, got %d", len(accounts))
	}
	for _, a := range accounts {
		if a.Address == addr("a") {
			t.Error("deleted account returned")
		}
	}
}
