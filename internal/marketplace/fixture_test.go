package marketplace

import (
	"context"
	"crypto/sha256"
	"testing"
	"time"

	"solana-nft-market/internal/programs"
	"solana-nft-market/internal/solana"
	"solana-nft-market/internal/storage"
	"solana-nft-market/internal/storage/memory"
)

var testProgramID = solana.MustPublicKey("GhsHMdEPyjZGGzRsjgTtvhQx5XUwV8mWnKDKeJZtaKc4")

const (
	testMarketplaceName = "tulip"
	startingLamports    = 10_000_000_000
)

func key(label string) solana.PublicKey {
	return solana.PublicKey(sha256.Sum256([]byte(label)))
}

// fixture is a ledger with one marketplace, one whitelisted collection and
// helpers to list NFTs on it.
type fixture struct {
	t       *testing.T
	ctx     context.Context
	ledger  *memory.Ledger
	program *Program
	now     time.Time

	admin      solana.Signer
	maker      solana.Signer
	taker      solana.Signer
	authority  solana.Signer
	collection solana.PublicKey

	marketplace solana.PublicKey
	whitelist   solana.PublicKey
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		t:          t,
		ctx:        context.Background(),
		program:    New(testProgramID, Options{}),
		now:        time.Unix(1_700_000_000, 0),
		admin:      solana.NewKeySigner(key("admin")),
		maker:      solana.NewKeySigner(key("maker-S")),
		taker:      solana.NewKeySigner(key("taker-B")),
		authority:  solana.NewKeySigner(key("mint-authority")),
		collection: key("collection"),
	}
	f.ledger = memory.NewLedger(memory.LedgerOptions{Now: func() time.Time { return f.now }})

	f.update(func(tx storage.LedgerTx) {
		for _, s := range []solana.Signer{f.admin, f.maker, f.taker} {
			f.must(programs.Airdrop(f.ctx, tx, s.Key(), startingLamports))
		}
		_, err := programs.InitializeMint(f.ctx, tx, f.admin, solana.NewKeySigner(f.collection), 0, f.authority.Key())
		f.must(err)

		f.marketplace, err = f.program.InitializeMarketplace(f.ctx, tx, f.admin, testMarketplaceName, 250)
		f.must(err)
		f.whitelist, err = f.program.WhitelistCollection(f.ctx, tx, f.admin, f.marketplace, f.collection)
		f.must(err)
	})
	return f
}

func (f *fixture) must(err error) {
	f.t.Helper()
	if err != nil {
		f.t.Fatalf("fixture: %v", err)
	}
}

// update runs fn in a committed transaction.
func (f *fixture) update(fn func(tx storage.LedgerTx)) {
	f.t.Helper()
	tx, err := f.ledger.Begin(f.ctx)
	f.must(err)
	defer tx.Rollback(f.ctx)
	fn(tx)
	f.must(tx.Commit(f.ctx))
}

// view runs fn in a transaction that is rolled back.
func (f *fixture) view(fn func(tx storage.LedgerTx)) {
	f.t.Helper()
	tx, err := f.ledger.Begin(f.ctx)
	f.must(err)
	defer tx.Rollback(f.ctx)
	fn(tx)
}

// list mints a fresh NFT labelled label to the maker and lists it.
func (f *fixture) list(label string, price uint64, expiry int64) (solana.PublicKey, *ListResult) {
	f.t.Helper()
	mint := key(label)
	var res *ListResult
	f.update(func(tx storage.LedgerTx) {
		_, err := programs.InitializeMint(f.ctx, tx, f.maker, solana.NewKeySigner(mint), 0, f.authority.Key())
		f.must(err)
		ata, _, err := programs.CreateAssociatedTokenAccountIdempotent(f.ctx, tx, f.maker, f.maker.Key(), mint)
		f.must(err)
		f.must(programs.MintTo(f.ctx, tx, mint, ata, f.authority, 1))

		res, err = f.program.List(f.ctx, tx, f.maker, ListParams{
			Marketplace:    f.marketplace,
			CollectionMint: f.collection,
			Mint:           mint,
			MakerATA:       ata,
			Price:          price,
			Expiry:         expiry,
		})
		f.must(err)
	})
	return mint, res
}

func (f *fixture) bidAccounts(mint solana.PublicKey) BidAccounts {
	f.t.Helper()
	accts, err := f.program.Seeds().DeriveBidAccounts(testMarketplaceName, f.collection, mint, f.maker.Key(), f.taker.Key())
	f.must(err)
	return accts
}

// bid runs a bid and commits it on success.
func (f *fixture) bid(accts BidAccounts) (*Receipt, error) {
	f.t.Helper()
	tx, err := f.ledger.Begin(f.ctx)
	f.must(err)
	defer tx.Rollback(f.ctx)

	receipt, err := f.program.Bid(f.ctx, tx, f.taker, accts)
	if err != nil {
		return nil, err
	}
	f.must(tx.Commit(f.ctx))
	return receipt, nil
}

func (f *fixture) balance(address solana.PublicKey) uint64 {
	f.t.Helper()
	var b uint64
	f.view(func(tx storage.LedgerTx) {
		var err error
		b, err = programs.Balance(f.ctx, tx, address)
		f.must(err)
	})
	return b
}

// tokens returns the amount held by a token account, or -1 if it does not exist.
func (f *fixture) tokens(address solana.PublicKey) int64 {
	f.t.Helper()
	amount := int64(-1)
	f.view(func(tx storage.LedgerTx) {
		ta, _, err := programs.LoadTokenAccount(f.ctx, tx, address)
		if err == nil {
			amount = int64(ta.Amount)
		}
	})
	return amount
}

func (f *fixture) exists(address solana.PublicKey) bool {
	f.t.Helper()
	found := false
	f.view(func(tx storage.LedgerTx) {
		_, err := tx.Get(f.ctx, address)
		found = err == nil
	})
	return found
}

// snapshot captures lamports of every given address.
func (f *fixture) snapshot(addrs ...solana.PublicKey) map[solana.PublicKey]uint64 {
	f.t.Helper()
	out := make(map[solana.PublicKey]uint64, len(addrs))
	for _, a := range addrs {
		out[a] = f.balance(a)
	}
	return out
}
