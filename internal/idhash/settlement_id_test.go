package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"testing"
)

func TestComputeSettlementID(t *testing.T) {
	tests := []struct {
		name    string
		listing string
		taker   string
		slot    uint64
	}{
		{
			name:    "basic settlement",
			listing: "4Nd1mBQtrMJVYVfKf2PJy9NZUZdTAsp7D4xWLs4gDB4T",
			taker:   "9WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM",
			slot:    250_000_001,
		},
		{
			name:    "genesis slot",
			listing: "listing",
			taker:   "taker",
			slot:    0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ComputeSettlementID(tt.listing, tt.taker, tt.slot)

			if len(got) != 64 {
				t.Errorf("ComputeSettlementID() length = %d, want 64", len(got))
			}

			got2 := ComputeSettlementID(tt.listing, tt.taker, tt.slot)
			if got != got2 {
				t.Errorf("ComputeSettlementID() not deterministic: %s != %s", got, got2)
			}
		})
	}
}

func TestComputeSettlementID_Formula(t *testing.T) {
	sum := sha256.Sum256([]byte("L|T|42"))
	want := hex.EncodeToString(sum[:])

	if got := ComputeSettlementID("L", "T", 42); got != want {
		t.Errorf("ComputeSettlementID() = %s, want %s", got, want)
	}
}

func TestComputeSettlementID_Uniqueness(t *testing.T) {
	base := ComputeSettlementID("L", "T", 42)

	variants := map[string]string{
		"listing": ComputeSettlementID("L2", "T", 42),
		"taker":   ComputeSettlementID("L", "T2", 42),
		"slot":    ComputeSettlementID("L", "T", 43),
	}
	for field, id := range variants {
		if id == base {
			t.Errorf("changing %s did not change the id", field)
		}
	}
}
