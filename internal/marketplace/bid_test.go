package marketplace

import (
	"errors"
	"testing"
	"time"

	"solana-nft-market/internal/layout"
	"solana-nft-market/internal/programs"
	"solana-nft-market/internal/solana"
	"solana-nft-market/internal/storage"
)

var (
	vaultRent   = programs.RentExemptMinimum(layout.TokenAccountSize)
	listingRent = programs.RentExemptMinimum(layout.ListingSize)
)

func TestBid_SettlesListing(t *testing.T) {
	f := newFixture(t)
	mint, res := f.list("nft-A", 500, 0)
	accts := f.bidAccounts(mint)

	// Receiving account already exists, so only the settlement legs move lamports
	f.update(func(tx storage.LedgerTx) {
		_, _, err := programs.CreateAssociatedTokenAccountIdempotent(f.ctx, tx, f.taker, f.taker.Key(), mint)
		f.must(err)
	})

	watched := []solana.PublicKey{
		f.maker.Key(), f.taker.Key(), f.admin.Key(), accts.Treasury, accts.Marketplace, accts.Whitelist, accts.TakerATA,
	}
	before := f.snapshot(watched...)

	receipt, err := f.bid(accts)
	if err != nil {
		t.Fatalf("Bid: %v", err)
	}

	if receipt.Price != 500 {
		t.Errorf("receipt price = %d, want 500", receipt.Price)
	}
	if receipt.VaultRent != vaultRent {
		t.Errorf("vault rent = %d, want %d", receipt.VaultRent, vaultRent)
	}
	if receipt.ListingRent != listingRent {
		t.Errorf("listing rent = %d, want %d", receipt.ListingRent, listingRent)
	}
	if receipt.TakerATACreated {
		t.Error("taker token account should have been reused")
	}

	after := f.snapshot(watched...)
	want := map[solana.PublicKey]uint64{
		f.maker.Key(): before[f.maker.Key()] + 500 + vaultRent + listingRent,
		f.taker.Key(): before[f.taker.Key()] - 500,
	}
	for _, a := range watched {
		expected, changed := want[a]
		if !changed {
			expected = before[a]
		}
		if after[a] != expected {
			t.Errorf("balance of %s = %d, want %d", a, after[a], expected)
		}
	}

	if got := f.tokens(accts.TakerATA); got != 1 {
		t.Errorf("taker holds %d units, want 1", got)
	}
	if f.exists(res.Vault) {
		t.Error("vault still exists")
	}
	if f.exists(res.Listing) {
		t.Error("listing still exists")
	}
}

func TestBid_CreatesTakerTokenAccount(t *testing.T) {
	f := newFixture(t)
	mint, _ := f.list("nft-A", 500, 0)
	accts := f.bidAccounts(mint)

	takerBefore := f.balance(f.taker.Key())
	receipt, err := f.bid(accts)
	if err != nil {
		t.Fatalf("Bid: %v", err)
	}
	if !receipt.TakerATACreated {
		t.Error("expected taker token account to be created")
	}

	want := takerBefore - 500 - programs.RentExemptMinimum(layout.TokenAccountSize)
	if got := f.balance(f.taker.Key()); got != want {
		t.Errorf("taker balance = %d, want %d", got, want)
	}
	if got := f.tokens(accts.TakerATA); got != 1 {
		t.Errorf("taker holds %d units, want 1", got)
	}
}

func TestBid_VaultFromOtherAsset(t *testing.T) {
	f := newFixture(t)
	mintA, resA := f.list("nft-A", 500, 0)
	_, resB := f.list("nft-A-prime", 700, 0)

	accts := f.bidAccounts(mintA)
	accts.Vault = resB.Vault

	watched := []solana.PublicKey{f.maker.Key(), f.taker.Key(), resA.Vault, resB.Vault, resA.Listing}
	before := f.snapshot(watched...)

	_, err := f.bid(accts)
	if !errors.Is(err, ErrConstraintSeeds) {
		t.Fatalf("expected ConstraintSeeds, got %v", err)
	}
	if KindOf(err) != KindAuthorization {
		t.Errorf("kind = %s, want %s", KindOf(err), KindAuthorization)
	}
	var me *Error
	if errors.As(err, &me) && me.Check != CheckVault {
		t.Errorf("failed check = %q, want %q", me.Check, CheckVault)
	}

	after := f.snapshot(watched...)
	for _, a := range watched {
		if before[a] != after[a] {
			t.Errorf("balance of %s changed: %d -> %d", a, before[a], after[a])
		}
	}
	if got := f.tokens(resA.Vault); got != 1 {
		t.Errorf("vault A holds %d, want 1", got)
	}
	if got := f.tokens(resB.Vault); got != 1 {
		t.Errorf("vault A' holds %d, want 1", got)
	}
}

func TestBid_SecondSettlementFails(t *testing.T) {
	f := newFixture(t)
	mint, _ := f.list("nft-A", 500, 0)
	accts := f.bidAccounts(mint)

	if _, err := f.bid(accts); err != nil {
		t.Fatalf("first Bid: %v", err)
	}
	takerBefore := f.balance(f.taker.Key())

	_, err := f.bid(accts)
	if !errors.Is(err, ErrAccountNotInitialized) {
		t.Fatalf("expected AccountNotInitialized, got %v", err)
	}
	if KindOf(err) != KindAccountNotFound {
		t.Errorf("kind = %s, want %s", KindOf(err), KindAccountNotFound)
	}
	if got := f.balance(f.taker.Key()); got != takerBefore {
		t.Errorf("taker balance changed: %d -> %d", takerBefore, got)
	}
}

func TestBid_Expiry(t *testing.T) {
	f := newFixture(t)
	expiry := f.now.Unix() + 60
	mint, res := f.list("nft-A", 500, expiry)
	accts := f.bidAccounts(mint)

	f.now = f.now.Add(time.Minute)

	_, err := f.bid(accts)
	if !errors.Is(err, ErrExpired) {
		t.Fatalf("expected Expired, got %v", err)
	}
	if KindOf(err) != KindExpiry {
		t.Errorf("kind = %s, want %s", KindOf(err), KindExpiry)
	}
	if !f.exists(res.Listing) {
		t.Error("expired listing must remain on the ledger")
	}
}

func TestBid_BeforeExpirySucceeds(t *testing.T) {
	f := newFixture(t)
	mint, _ := f.list("nft-A", 500, f.now.Unix()+60)

	f.now = f.now.Add(59 * time.Second)
	if _, err := f.bid(f.bidAccounts(mint)); err != nil {
		t.Fatalf("Bid: %v", err)
	}
}

func TestBid_Rejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(f *fixture, a *BidAccounts)
		want   error
		check  string
	}{
		{
			name:   "wrong maker",
			mutate: func(f *fixture, a *BidAccounts) { a.Maker = key("someone-else") },
			want:   ErrConstraintHasOne,
			check:  CheckListingMaker,
		},
		{
			name:   "wrong treasury",
			mutate: func(f *fixture, a *BidAccounts) { a.Treasury = key("fake-treasury") },
			want:   ErrConstraintSeeds,
			check:  CheckTreasury,
		},
		{
			name:   "unknown marketplace",
			mutate: func(f *fixture, a *BidAccounts) { a.Marketplace = key("fake-marketplace") },
			want:   ErrAccountNotInitialized,
			check:  CheckMarketplace,
		},
		{
			name:   "collection not matching whitelist",
			mutate: func(f *fixture, a *BidAccounts) { a.CollectionMint = key("other-collection") },
			want:   ErrConstraintSeeds,
			check:  CheckWhitelist,
		},
		{
			name: "taker account for another wallet",
			mutate: func(f *fixture, a *BidAccounts) {
				ata, _, _ := programs.AssociatedTokenAddress(key("someone-else"), a.MakerMint)
				a.TakerATA = ata
			},
			want:  ErrConstraintAssociated,
			check: CheckTakerTokenAcct,
		},
		{
			name:   "taker mismatch",
			mutate: func(f *fixture, a *BidAccounts) { a.Taker = key("impostor") },
			want:   ErrConstraintSigner,
			check:  CheckTakerSigner,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			mint, res := f.list("nft-A", 500, 0)
			accts := f.bidAccounts(mint)
			tt.mutate(f, &accts)

			_, err := f.bid(accts)
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
			var me *Error
			if !errors.As(err, &me) {
				t.Fatalf("expected *Error, got %T", err)
			}
			if me.Check != tt.check {
				t.Errorf("check = %q, want %q", me.Check, tt.check)
			}
			if !f.exists(res.Listing) || f.tokens(res.Vault) != 1 {
				t.Error("listing must be untouched after a rejected bid")
			}
		})
	}
}

func TestBid_InsufficientFunds(t *testing.T) {
	f := newFixture(t)
	mint, res := f.list("nft-A", startingLamports+1, 0)

	_, err := f.bid(f.bidAccounts(mint))
	if !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("expected InsufficientFunds, got %v", err)
	}
	if KindOf(err) != KindInsufficientFunds {
		t.Errorf("kind = %s, want %s", KindOf(err), KindInsufficientFunds)
	}
	if got := f.balance(f.taker.Key()); got != startingLamports {
		t.Errorf("taker balance = %d, want %d", got, startingLamports)
	}
	if f.tokens(res.Vault) != 1 {
		t.Error("vault must still hold the asset")
	}
}

func TestBid_UnsignedTaker(t *testing.T) {
	f := newFixture(t)
	mint, _ := f.list("nft-A", 500, 0)

	tx, err := f.ledger.Begin(f.ctx)
	f.must(err)
	defer tx.Rollback(f.ctx)

	_, err = f.program.Bid(f.ctx, tx, solana.Signer{}, f.bidAccounts(mint))
	if !errors.Is(err, ErrConstraintSigner) {
		t.Fatalf("expected ConstraintSigner, got %v", err)
	}
}

func TestResolveBidAccounts(t *testing.T) {
	f := newFixture(t)
	mint, res := f.list("nft-A", 500, 0)

	f.view(func(tx storage.LedgerTx) {
		accts, err := f.program.ResolveBidAccounts(f.ctx, tx, testMarketplaceName, f.collection, mint, f.taker.Key())
		if err != nil {
			t.Fatalf("ResolveBidAccounts: %v", err)
		}
		if accts.Maker != f.maker.Key() {
			t.Errorf("maker = %s, want %s", accts.Maker, f.maker.Key())
		}
		if accts.Listing != res.Listing || accts.Vault != res.Vault || accts.Whitelist != f.whitelist {
			t.Errorf("derived accounts do not match the listing: %+v", accts)
		}
	})
}

func TestBidCheckNames_Order(t *testing.T) {
	want := []string{
		CheckTakerSigner, CheckMarketplace, CheckTreasury, CheckWhitelist, CheckListing,
		CheckListingMaker, CheckVault, CheckMints, CheckListingExpiry, CheckTakerTokenAcct,
	}
	got := BidCheckNames()
	if len(got) != len(want) {
		t.Fatalf("got %d checks, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("check %d = %s, want %s", i, got[i], want[i])
		}
	}
}
