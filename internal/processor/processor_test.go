package processor

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"solana-nft-market/internal/domain"
	"solana-nft-market/internal/idhash"
	"solana-nft-market/internal/layout"
	"solana-nft-market/internal/marketplace"
	"solana-nft-market/internal/observability"
	"solana-nft-market/internal/programs"
	"solana-nft-market/internal/solana"
	"solana-nft-market/internal/storage"
	"solana-nft-market/internal/storage/memory"
)

var testProgramID = solana.MustPublicKey("GhsHMdEPyjZGGzRsjgTtvhQx5XUwV8mWnKDKeJZtaKc4")

const testMarketplaceName = "tulip"

type wallet struct {
	key  solana.PublicKey
	priv ed25519.PrivateKey
}

func newWallet(label string) wallet {
	seed := sha256.Sum256([]byte(label))
	priv := ed25519.NewKeyFromSeed(seed[:])
	var key solana.PublicKey
	copy(key[:], priv.Public().(ed25519.PublicKey))
	return wallet{key: key, priv: priv}
}

func (w wallet) signer() solana.Signer {
	return solana.NewKeySigner(w.key)
}

// testBidExpiry is ten minutes past the test ledger clock.
const testBidExpiry int64 = 1_700_000_000 + 600

func (w wallet) signBid(listing solana.PublicKey, price uint64, expiresAt int64) []byte {
	return ed25519.Sign(w.priv, BidMessage(listing, w.key, price, expiresAt))
}

type env struct {
	ctx         context.Context
	proc        *Processor
	settlements *memory.SettlementStore
	events      *memory.SettlementEventStore

	admin, maker wallet
	collection   solana.PublicKey
	marketplace  solana.PublicKey
}

func newEnv(t *testing.T) *env {
	t.Helper()
	e := &env{
		ctx:         context.Background(),
		settlements: memory.NewSettlementStore(),
		events:      memory.NewSettlementEventStore(),
		admin:       newWallet("admin"),
		maker:       newWallet("maker"),
	}
	now := func() time.Time { return time.Unix(1_700_000_000, 0) }
	e.proc = New(Options{
		Ledger:          memory.NewLedger(memory.LedgerOptions{Now: now}),
		Program:         marketplace.New(testProgramID, marketplace.Options{}),
		SettlementStore: e.settlements,
		EventStore:      e.events,
		Now:             now,
	})

	e.airdrop(t, e.admin.key)
	e.airdrop(t, e.maker.key)

	collection := newWallet("collection")
	if _, err := e.proc.MintAsset(e.ctx, e.admin.signer(), collection.signer(), e.admin.signer(), e.admin.key, 0); err != nil {
		t.Fatalf("MintAsset collection: %v", err)
	}
	e.collection = collection.key

	var err error
	e.marketplace, err = e.proc.InitializeMarketplace(e.ctx, e.admin.signer(), testMarketplaceName, 100)
	if err != nil {
		t.Fatalf("InitializeMarketplace: %v", err)
	}
	if _, err := e.proc.WhitelistCollection(e.ctx, e.admin.signer(), e.marketplace, e.collection); err != nil {
		t.Fatalf("WhitelistCollection: %v", err)
	}
	return e
}

func (e *env) airdrop(t *testing.T, to solana.PublicKey) {
	t.Helper()
	if _, err := e.proc.Airdrop(e.ctx, to, 10_000_000_000); err != nil {
		t.Fatalf("Airdrop: %v", err)
	}
}

func (e *env) list(t *testing.T, label string, price uint64) (solana.PublicKey, *marketplace.ListResult) {
	t.Helper()
	mint := newWallet(label)
	ata, err := e.proc.MintAsset(e.ctx, e.maker.signer(), mint.signer(), e.maker.signer(), e.maker.key, 1)
	if err != nil {
		t.Fatalf("MintAsset: %v", err)
	}
	res, err := e.proc.List(e.ctx, e.maker.signer(), marketplace.ListParams{
		Marketplace:    e.marketplace,
		CollectionMint: e.collection,
		Mint:           mint.key,
		MakerATA:       ata,
		Price:          price,
	})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	return mint.key, res
}

func (e *env) request(mint, listing solana.PublicKey, price uint64, taker wallet) BidRequest {
	return BidRequest{
		MarketplaceName: testMarketplaceName,
		CollectionMint:  e.collection,
		Mint:            mint,
		Taker:           taker.key,
		Price:           price,
		ExpiresAt:       testBidExpiry,
		Signature:       taker.signBid(listing, price, testBidExpiry),
	}
}

func TestSubmitBid_RecordsSettlement(t *testing.T) {
	e := newEnv(t)
	mint, res := e.list(t, "nft-A", 500)
	taker := newWallet("taker")
	e.airdrop(t, taker.key)

	s, err := e.proc.SubmitBid(e.ctx, e.request(mint, res.Listing, 500, taker))
	if err != nil {
		t.Fatalf("SubmitBid: %v", err)
	}

	if s.Price != 500 || s.Maker != e.maker.key.String() || s.Taker != taker.key.String() {
		t.Errorf("unexpected settlement %+v", s)
	}
	if s.VaultRent != programs.RentExemptMinimum(layout.TokenAccountSize) || s.ListingRent != programs.RentExemptMinimum(layout.ListingSize) {
		t.Errorf("unexpected reclaimed deposits: vault=%d listing=%d", s.VaultRent, s.ListingRent)
	}
	if want := idhash.ComputeSettlementID(res.Listing.String(), taker.key.String(), s.Slot); s.SettlementID != want {
		t.Errorf("settlement id = %s, want %s", s.SettlementID, want)
	}
	if s.UnixTimestamp != 1_700_000_000 || s.CreatedAt != 1_700_000_000_000 {
		t.Errorf("unexpected timestamps: %d %d", s.UnixTimestamp, s.CreatedAt)
	}

	stored, err := e.settlements.GetByID(e.ctx, s.SettlementID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if stored.Listing != res.Listing.String() {
		t.Errorf("stored listing = %s", stored.Listing)
	}
	events, _ := e.events.GetByMarketplace(e.ctx, e.marketplace.String())
	if len(events) != 1 {
		t.Errorf("expected 1 analytics event, got %d", len(events))
	}

	view, err := e.proc.GetListing(e.ctx, res.Listing)
	if err != nil {
		t.Fatalf("GetListing: %v", err)
	}
	if view.State != domain.ListingStateSettled || view.Listing != nil {
		t.Errorf("listing view = %+v, want settled", view)
	}
}

func TestSubmitBid_InvalidSignature(t *testing.T) {
	e := newEnv(t)
	mint, res := e.list(t, "nft-A", 500)
	taker := newWallet("taker")
	e.airdrop(t, taker.key)

	req := e.request(mint, res.Listing, 500, taker)
	req.Signature = newWallet("someone-else").signBid(res.Listing, 500, testBidExpiry)

	failures := observability.DefaultMetrics.ValidationFailures.WithLabelValues(marketplace.CheckBidSignature, string(marketplace.KindAuthorization))
	before := testutil.ToFloat64(failures)

	_, err := e.proc.SubmitBid(e.ctx, req)
	if !errors.Is(err, marketplace.ErrInvalidSignature) {
		t.Fatalf("expected InvalidSignature, got %v", err)
	}
	if me := marketplace.Classify(err); me.Check != marketplace.CheckBidSignature {
		t.Errorf("check = %q, want %q", me.Check, marketplace.CheckBidSignature)
	}
	if got := testutil.ToFloat64(failures) - before; got != 1 {
		t.Errorf("bid_signature failures increased by %v, want 1", got)
	}

	view, err := e.proc.GetListing(e.ctx, res.Listing)
	if err != nil {
		t.Fatalf("GetListing: %v", err)
	}
	if view.State != domain.ListingStateOpen {
		t.Errorf("state = %s, want OPEN", view.State)
	}
}

func TestSubmitBid_RollsBackOnFailure(t *testing.T) {
	e := newEnv(t)
	mint, res := e.list(t, "nft-A", 500)
	taker := newWallet("poor-taker")
	// Enough for the receiving account deposit but not the price
	if _, err := e.proc.Airdrop(e.ctx, taker.key, programs.RentExemptMinimum(layout.TokenAccountSize)+499); err != nil {
		t.Fatalf("Airdrop: %v", err)
	}
	before, _ := e.proc.Balance(e.ctx, taker.key)

	_, err := e.proc.SubmitBid(e.ctx, e.request(mint, res.Listing, 500, taker))
	if marketplace.KindOf(err) != marketplace.KindInsufficientFunds {
		t.Fatalf("expected insufficient funds, got %v", err)
	}

	after, _ := e.proc.Balance(e.ctx, taker.key)
	if after != before {
		t.Errorf("taker balance changed %d -> %d", before, after)
	}
	ata, _, _ := programs.AssociatedTokenAddress(taker.key, mint)
	err = e.proc.View(e.ctx, func(tx storage.LedgerTx) error {
		_, err := tx.Get(e.ctx, ata)
		return err
	})
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("receiving account must not survive a rolled back bid: %v", err)
	}
	all, _ := e.settlements.GetAll(e.ctx)
	if len(all) != 0 {
		t.Errorf("expected no settlements, got %d", len(all))
	}
}

func TestSubmitBid_ConcurrentBidsSettleOnce(t *testing.T) {
	e := newEnv(t)
	mint, res := e.list(t, "nft-A", 500)

	const bidders = 10
	takers := make([]wallet, bidders)
	for i := range takers {
		takers[i] = newWallet("taker-" + string(rune('a'+i)))
		e.airdrop(t, takers[i].key)
	}

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		settled  int
		notFound int
	)
	for _, taker := range takers {
		wg.Add(1)
		go func(taker wallet) {
			defer wg.Done()
			_, err := e.proc.SubmitBid(e.ctx, e.request(mint, res.Listing, 500, taker))

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				settled++
			case errors.Is(err, marketplace.ErrAccountNotInitialized):
				notFound++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(taker)
	}
	wg.Wait()

	if settled != 1 || notFound != bidders-1 {
		t.Errorf("settled=%d notFound=%d, want 1 and %d", settled, notFound, bidders-1)
	}
	all, _ := e.settlements.GetAll(e.ctx)
	if len(all) != 1 {
		t.Errorf("expected exactly 1 settlement record, got %d", len(all))
	}
}

func TestGetListing_Open(t *testing.T) {
	e := newEnv(t)
	mint, res := e.list(t, "nft-A", 500)

	view, err := e.proc.GetListing(e.ctx, res.Listing)
	if err != nil {
		t.Fatalf("GetListing: %v", err)
	}
	if view.State != domain.ListingStateOpen || view.Listing.Mint != mint || view.Listing.Price != 500 {
		t.Errorf("unexpected view %+v", view)
	}
}

func TestGetListing_Unknown(t *testing.T) {
	e := newEnv(t)
	_, err := e.proc.GetListing(e.ctx, newWallet("nothing").key)
	if !errors.Is(err, marketplace.ErrAccountNotInitialized) {
		t.Errorf("expected AccountNotInitialized, got %v", err)
	}
}

func TestExecute_RollbackOnError(t *testing.T) {
	e := newEnv(t)
	target := newWallet("target").key
	boom := errors.New("boom")

	_, err := e.proc.Execute(e.ctx, func(tx storage.LedgerTx) error {
		if err := programs.Airdrop(e.ctx, tx, target, 1); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if b, _ := e.proc.Balance(e.ctx, target); b != 0 {
		t.Errorf("balance = %d, want 0 after rollback", b)
	}
}

// commitFailLedger hands out transactions whose Commit fails and whose
// Rollback reports a lost connection after undoing the writes.
type commitFailLedger struct{ storage.Ledger }

type commitFailTx struct{ storage.LedgerTx }

func (l commitFailLedger) Begin(ctx context.Context) (storage.LedgerTx, error) {
	tx, err := l.Ledger.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return commitFailTx{tx}, nil
}

func (tx commitFailTx) Commit(context.Context) error {
	return errors.New("commit: serialization failure")
}

func (tx commitFailTx) Rollback(ctx context.Context) error {
	_ = tx.LedgerTx.Rollback(ctx)
	return errors.New("rollback: connection lost")
}

func TestExecute_CommitFailureLogsRollbackError(t *testing.T) {
	e := newEnv(t)
	core, logs := observer.New(zap.WarnLevel)
	proc := New(Options{
		Ledger:  commitFailLedger{e.proc.ledger},
		Program: e.proc.program,
		Logger:  zap.New(core),
	})
	target := newWallet("target").key

	_, err := proc.Execute(e.ctx, func(tx storage.LedgerTx) error {
		return programs.Airdrop(e.ctx, tx, target, 1)
	})
	if err == nil || !strings.Contains(err.Error(), "commit ledger tx") {
		t.Fatalf("err = %v, want commit failure", err)
	}
	entries := logs.FilterMessage("rollback after failed commit").All()
	if len(entries) != 1 {
		t.Fatalf("got %d rollback warnings, want 1", len(entries))
	}
	if b, _ := e.proc.Balance(e.ctx, target); b != 0 {
		t.Errorf("balance = %d, want 0", b)
	}
}

func TestBidMessage(t *testing.T) {
	listing, taker := newWallet("l").key, newWallet("t").key
	msg := BidMessage(listing, taker, 500_000_000, 1_700_000_600)

	if len(msg) != BidMessageSize || len(msg) != 3+64+16 || string(msg[:3]) != "bid" {
		t.Fatalf("unexpected message layout %x", msg)
	}
	if solana.PublicKey(msg[3:35]) != listing || solana.PublicKey(msg[35:67]) != taker {
		t.Error("listing and taker not embedded in order")
	}
	if binary.LittleEndian.Uint64(msg[67:75]) != 500_000_000 {
		t.Error("price not embedded")
	}
	if int64(binary.LittleEndian.Uint64(msg[75:])) != 1_700_000_600 {
		t.Error("expiry not embedded")
	}
	if bytes.Equal(msg, BidMessage(listing, taker, 9_000_000_000, 1_700_000_600)) {
		t.Error("message does not bind the price")
	}
}

// sellBack returns the NFT from taker to the maker's token account.
func (e *env) sellBack(t *testing.T, mint solana.PublicKey, taker wallet) solana.PublicKey {
	t.Helper()
	takerATA, _, _ := programs.AssociatedTokenAddress(taker.key, mint)
	makerATA, _, _ := programs.AssociatedTokenAddress(e.maker.key, mint)
	_, err := e.proc.Execute(e.ctx, func(tx storage.LedgerTx) error {
		return programs.TokenTransfer(e.ctx, tx, takerATA, makerATA, taker.signer(), 1)
	})
	if err != nil {
		t.Fatalf("TokenTransfer: %v", err)
	}
	return makerATA
}

func (e *env) relist(t *testing.T, mint, makerATA solana.PublicKey, price uint64) {
	t.Helper()
	_, err := e.proc.List(e.ctx, e.maker.signer(), marketplace.ListParams{
		Marketplace:    e.marketplace,
		CollectionMint: e.collection,
		Mint:           mint,
		MakerATA:       makerATA,
		Price:          price,
	})
	if err != nil {
		t.Fatalf("relist: %v", err)
	}
}

func TestSubmitBid_SignedPriceBindsRelist(t *testing.T) {
	e := newEnv(t)
	mint, res := e.list(t, "nft-A", 500)
	taker := newWallet("taker")
	e.airdrop(t, taker.key)

	req := e.request(mint, res.Listing, 500, taker)
	if _, err := e.proc.SubmitBid(e.ctx, req); err != nil {
		t.Fatalf("SubmitBid: %v", err)
	}
	e.relist(t, mint, e.sellBack(t, mint, taker), 9_000_000_000)
	before, _ := e.proc.Balance(e.ctx, taker.key)

	_, err := e.proc.SubmitBid(e.ctx, req)
	if !errors.Is(err, marketplace.ErrBidAlreadyUsed) {
		t.Fatalf("expected BidAlreadyUsed, got %v", err)
	}

	// A fresh processor has no memory of the settlement; the price still binds.
	fresh := New(Options{Ledger: e.proc.ledger, Program: e.proc.program})
	_, err = fresh.SubmitBid(e.ctx, req)
	if !errors.Is(err, marketplace.ErrPriceMismatch) {
		t.Fatalf("expected PriceMismatch, got %v", err)
	}
	if me := marketplace.Classify(err); me.Kind != marketplace.KindAuthorization || me.Check != marketplace.CheckBidTerms {
		t.Errorf("unexpected classification %+v", me)
	}

	after, _ := e.proc.Balance(e.ctx, taker.key)
	if after != before {
		t.Errorf("taker balance changed %d -> %d", before, after)
	}
	view, err := e.proc.GetListing(e.ctx, res.Listing)
	if err != nil {
		t.Fatalf("GetListing: %v", err)
	}
	if view.State != domain.ListingStateOpen || view.Listing.Price != 9_000_000_000 {
		t.Errorf("relisted listing = %+v, want open at 9 SOL", view)
	}
}

func TestSubmitBid_ReusedSignatureSamePrice(t *testing.T) {
	e := newEnv(t)
	mint, res := e.list(t, "nft-A", 500)
	taker := newWallet("taker")
	e.airdrop(t, taker.key)

	req := e.request(mint, res.Listing, 500, taker)
	if _, err := e.proc.SubmitBid(e.ctx, req); err != nil {
		t.Fatalf("SubmitBid: %v", err)
	}
	e.relist(t, mint, e.sellBack(t, mint, taker), 500)

	if _, err := e.proc.SubmitBid(e.ctx, req); !errors.Is(err, marketplace.ErrBidAlreadyUsed) {
		t.Fatalf("expected BidAlreadyUsed, got %v", err)
	}
	// A new signature for the same terms settles.
	req.ExpiresAt = testBidExpiry + 1
	req.Signature = taker.signBid(res.Listing, 500, req.ExpiresAt)
	if _, err := e.proc.SubmitBid(e.ctx, req); err != nil {
		t.Fatalf("fresh signature: %v", err)
	}
}

func TestSubmitBid_Terms(t *testing.T) {
	const now int64 = 1_700_000_000
	tests := []struct {
		name      string
		price     uint64
		expiresAt int64
		want      *marketplace.Error
	}{
		{name: "expired at the clock", price: 500, expiresAt: now, want: marketplace.ErrExpired},
		{name: "beyond the validity window", price: 500, expiresAt: now + 25*3600, want: marketplace.ErrMaxExpiryExceeded},
		{name: "lower price", price: 400, expiresAt: now + 60, want: marketplace.ErrPriceMismatch},
		{name: "higher price", price: 600, expiresAt: now + 60, want: marketplace.ErrPriceMismatch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEnv(t)
			mint, res := e.list(t, "nft-A", 500)
			taker := newWallet("taker")
			e.airdrop(t, taker.key)

			req := e.request(mint, res.Listing, tt.price, taker)
			req.ExpiresAt = tt.expiresAt
			req.Signature = taker.signBid(res.Listing, tt.price, tt.expiresAt)

			_, err := e.proc.SubmitBid(e.ctx, req)
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %s, got %v", tt.want.Name, err)
			}
			if me := marketplace.Classify(err); me.Kind != tt.want.Kind || me.Check != marketplace.CheckBidTerms {
				t.Errorf("unexpected classification %+v", me)
			}
			view, err := e.proc.GetListing(e.ctx, res.Listing)
			if err != nil || view.State != domain.ListingStateOpen {
				t.Errorf("listing should stay open: %+v %v", view, err)
			}
		})
	}
}

func TestSubmitBid_InvalidMarketplaceName(t *testing.T) {
	e := newEnv(t)
	mint, res := e.list(t, "nft-A", 500)
	taker := newWallet("taker")

	req := e.request(mint, res.Listing, 500, taker)
	req.MarketplaceName = strings.Repeat("x", 33)

	_, err := e.proc.SubmitBid(e.ctx, req)
	if !errors.Is(err, marketplace.ErrInvalidName) {
		t.Fatalf("expected InvalidName, got %v", err)
	}
	me := marketplace.Classify(err)
	if me.Kind != marketplace.KindConfiguration || me.Check != marketplace.CheckBidAccounts {
		t.Errorf("unexpected classification %+v", me)
	}
}
