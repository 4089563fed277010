package memory

import (
	"context"
	"errors"
	"testing"

	"solana-nft-market/internal/domain"
	"solana-nft-market/internal/storage"
)

func TestSettlementStore_InsertAndGet(t *testing.T) {
	store := NewSettlementStore()
	ctx := context.Background()

	s := &domain.Settlement{
		SettlementID: "s1",
		Listing:      "listing1",
		Maker:        "maker",
		Taker:        "taker",
		Price:        500,
		Slot:         3,
	}

	if err := store.Insert(ctx, s); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	got, err := store.GetByID(ctx, "s1")
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if got.Price != 500 {
		t.Errorf("Price mismatch: got %d, want 500", got.Price)
	}

	byListing, err := store.GetByListing(ctx, "listing1")
	if err != nil {
		t.Fatalf("GetByListing failed: %v", err)
	}
	if len(byListing) != 1 {
		t.Errorf("expected 1 settlement for listing, got %d", len(byListing))
	}
}

func TestSettlementStore_DuplicateKey(t *testing.T) {
	store := NewSettlementStore()
	ctx := context.Background()

	s := &domain.Settlement{SettlementID: "s1"}
	if err := store.Insert(ctx, s); err != nil {
		t.Fatalf("First insert failed: %v", err)
	}
	if err := store.Insert(ctx, s); !errors.Is(err, storage.ErrDuplicateKey) {
		t.Errorf("Expected ErrDuplicateKey, got %v", err)
	}
	if err := store.Insert(ctx, &domain.Settlement{}); !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput, got %v", err)
	}
}

func TestSettlementStore_NotFound(t *testing.T) {
	store := NewSettlementStore()

	_, err := store.GetByID(context.Background(), "nonexistent")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestSettlementStore_GetByTimeRange(t *testing.T) {
	store := NewSettlementStore()
	ctx := context.Background()

	for _, s := range []*domain.Settlement{
		{SettlementID: "s3", Slot: 30, UnixTimestamp: 300},
		{SettlementID: "s1", Slot: 10, UnixTimestamp: 100},
		{SettlementID: "s2", Slot: 20, UnixTimestamp: 200},
	} {
		if err := store.Insert(ctx, s); err != nil {
			t.Fatalf("Insert failed: %v", err)
		}
	}

	got, err := store.GetByTimeRange(ctx, 100, 200)
	if err != nil {
		t.Fatalf("GetByTimeRange failed: %v", err)
	}
	if len(got) != 2 || got[0].SettlementID != "s1" || got[1].SettlementID != "s2" {
		t.Errorf("unexpected result: %+v", got)
	}

	all, _ := store.GetAll(ctx)
	if len(all) != 3 || all[2].SettlementID != "s3" {
		t.Errorf("GetAll not ordered by slot: %+v", all)
	}
}
