package postgres

import (
	"context"
	"crypto/sha256"
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-nft-market/internal/domain"
	"solana-nft-market/internal/solana"
	"solana-nft-market/internal/storage"
)

func testAddr(label string) solana.PublicKey {
	return solana.PublicKey(sha256.Sum256([]byte(label)))
}

func TestLedger_PutGetCommit(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	ledger := NewLedger(pool, fixedClock(1_700_000_000))

	tx, err := ledger.Begin(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), tx.Clock().Slot)
	assert.Equal(t, int64(1_700_000_000), tx.Clock().UnixTimestamp)

	acct := &domain.Account{
		Address:  testAddr("listing"),
		Lamports: 1_795_680,
		Owner:    testAddr("program"),
		Data:     []byte{1, 2, 3},
	}
	require.NoError(t, tx.Put(ctx, acct))

	got, err := tx.Get(ctx, acct.Address)
	require.NoError(t, err)
	assert.Equal(t, acct.Lamports, got.Lamports)
	assert.Equal(t, acct.Data, got.Data)

	require.NoError(t, tx.Commit(ctx))
	assert.ErrorIs(t, tx.Commit(ctx), storage.ErrTxDone)
	assert.NoError(t, tx.Rollback(ctx))

	tx2, err := ledger.Begin(ctx)
	require.NoError(t, err)
	defer tx2.Rollback(ctx)

	assert.Equal(t, uint64(2), tx2.Clock().Slot)

	got, err = tx2.Get(ctx, acct.Address)
	require.NoError(t, err)
	assert.Equal(t, acct.Owner, got.Owner)
	assert.Equal(t, acct.Address, got.Address)
}

func TestLedger_RollbackDiscards(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	ledger := NewLedger(pool, nil)

	tx, err := ledger.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.Put(ctx, &domain.Account{Address: testAddr("a"), Lamports: 10}))
	require.NoError(t, tx.Rollback(ctx))

	tx2, err := ledger.Begin(ctx)
	require.NoError(t, err)
	defer tx2.Rollback(ctx)

	assert.Equal(t, uint64(1), tx2.Clock().Slot, "rollback must not advance the clock")
	_, err = tx2.Get(ctx, testAddr("a"))
	assert.ErrorIs(t, err, storage.ErrNotFound)
	assert.ErrorIs(t, tx2.Delete(ctx, testAddr("a")), storage.ErrNotFound)
}

func TestLedger_RejectsOversizedLamports(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	tx, err := NewLedger(pool, nil).Begin(ctx)
	require.NoError(t, err)
	defer tx.Rollback(ctx)

	err = tx.Put(ctx, &domain.Account{Address: testAddr("big"), Lamports: math.MaxInt64 + 1})
	assert.ErrorIs(t, err, storage.ErrInvalidInput)
}

func TestLedger_GetByOwner(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	ledger := NewLedger(pool, nil)
	program := testAddr("program")

	tx, err := ledger.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.Put(ctx, &domain.Account{Address: testAddr("a"), Owner: program}))
	require.NoError(t, tx.Put(ctx, &domain.Account{Address: testAddr("b"), Owner: program}))
	require.NoError(t, tx.Put(ctx, &domain.Account{Address: testAddr("c"), Owner: solana.SystemProgramID}))
	require.NoError(t, tx.Commit(ctx))

	tx2, err := ledger.Begin(ctx)
	require.NoError(t, err)
	defer tx2.Rollback(ctx)

	accounts, err := tx2.GetByOwner(ctx, program)
	require.NoError(t, err)
	assert.Len(t, accounts, 2)
}

func TestLedger_ConcurrentTransfersSerialize(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	ledger := NewLedger(pool, nil)
	source := testAddr("source")

	tx, err := ledger.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.Put(ctx, &domain.Account{Address: source, Lamports: 1000}))
	require.NoError(t, tx.Commit(ctx))

	// Each worker debits 100 in a read-modify-write; lost updates would leave > 0.
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tx, err := ledger.Begin(ctx)
			if !assert.NoError(t, err) {
				return
			}
			defer tx.Rollback(ctx)

			acct, err := tx.Get(ctx, source)
			if !assert.NoError(t, err) {
				return
			}
			acct.Lamports -= 100
			assert.NoError(t, tx.Put(ctx, acct))
			assert.NoError(t, tx.Commit(ctx))
		}()
	}
	wg.Wait()

	check, err := ledger.Begin(ctx)
	require.NoError(t, err)
	defer check.Rollback(ctx)

	acct, err := check.Get(ctx, source)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), acct.Lamports)
	assert.Equal(t, uint64(12), check.Clock().Slot)
}
