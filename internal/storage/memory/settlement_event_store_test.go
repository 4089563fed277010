package memory

import (
	"context"
	"errors"
	"testing"

	"solana-nft-market/internal/domain"
	"solana-nft-market/internal/storage"
)

func TestSettlementEventStore_InsertBulk(t *testing.T) {
	store := NewSettlementEventStore()
	ctx := context.Background()

	events := []*domain.Settlement{
		{SettlementID: "e2", Marketplace: "m1", Price: 200, Slot: 2, UnixTimestamp: 20},
		{SettlementID: "e1", Marketplace: "m1", Price: 100, Slot: 1, UnixTimestamp: 10},
		{SettlementID: "e3", Marketplace: "m2", Price: 50, Slot: 3, UnixTimestamp: 30},
	}
	if err := store.InsertBulk(ctx, events); err != nil {
		t.Fatalf("InsertBulk failed: %v", err)
	}

	got, err := store.GetByMarketplace(ctx, "m1")
	if err != nil {
		t.Fatalf("GetByMarketplace failed: %v", err)
	}
	if len(got) != 2 || got[0].SettlementID != "e1" {
		t.Errorf("unexpected events: %+v", got)
	}

	volume, err := store.VolumeByMarketplace(ctx, 0, 25)
	if err != nil {
		t.Fatalf("VolumeByMarketplace failed: %v", err)
	}
	if volume["m1"] != 300 || volume["m2"] != 0 {
		t.Errorf("unexpected volume: %v", volume)
	}
}

func TestSettlementEventStore_DuplicateBatch(t *testing.T) {
	store := NewSettlementEventStore()
	ctx := context.Background()

	err := store.InsertBulk(ctx, []*domain.Settlement{
		{SettlementID: "e1"},
		{SettlementID: "e1"},
	})
	if !errors.Is(err, storage.ErrDuplicateKey) {
		t.Fatalf("Expected ErrDuplicateKey, got %v", err)
	}

	// Failed batch leaves the store empty
	got, _ := store.GetByMarketplace(ctx, "")
	if len(got) != 0 {
		t.Errorf("partial batch applied: %d events", len(got))
	}
}
