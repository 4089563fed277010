package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// ComputeSettlementID computes a deterministic settlement_id using SHA256.
// Formula: SHA256(listing|taker|slot)
// Returns hex-encoded hash (64 characters).
func ComputeSettlementID(listing, taker string, slot uint64) string {
	data := fmt.Sprintf("%s|%s|%d", listing, taker, slot)

	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}
