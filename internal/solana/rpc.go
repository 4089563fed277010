package solana

import (
	"context"
	"encoding/base64"
	"fmt"
)

// RPCClient defines the subset of the Solana JSON-RPC HTTP interface used to
// mirror marketplace accounts.
type RPCClient interface {
	// GetAccountInfo retrieves a single account. Returns nil if the account does not exist.
	GetAccountInfo(ctx context.Context, pubkey string) (*AccountInfo, error)

	// GetProgramAccounts retrieves every account owned by a program.
	GetProgramAccounts(ctx context.Context, programID string) ([]KeyedAccount, error)

	// GetSlot retrieves the current slot.
	GetSlot(ctx context.Context) (int64, error)
}

// AccountInfo represents Solana account information.
type AccountInfo struct {
	Lamports   uint64 `json:"lamports"`
	Owner      string `json:"owner"`
	Data       string `json:"data"` // base64 encoded
	Executable bool   `json:"executable"`
	RentEpoch  uint64 `json:"rentEpoch"`
}

// KeyedAccount pairs an account with its address.
type KeyedAccount struct {
	Pubkey  string
	Account AccountInfo
}

// DecodeData returns the raw account data.
func (a AccountInfo) DecodeData() ([]byte, error) {
	if a.Data == "" {
		return nil, nil
	}
	data, err := base64.StdEncoding.DecodeString(a.Data)
	if err != nil {
		return nil, fmt.Errorf("decode account data: %w", err)
	}
	return data, nil
}
