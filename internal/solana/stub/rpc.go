package stub

import (
	"context"
	"sort"
	"sync"

	"solana-nft-market/internal/solana"
)

// RPCClient implements solana.RPCClient for testing.
type RPCClient struct {
	mu       sync.RWMutex
	Accounts map[string]*solana.AccountInfo
	Slot     int64
}

var _ solana.RPCClient = (*RPCClient)(nil)

// NewRPCClient creates a new stub RPC client.
func NewRPCClient() *RPCClient {
	return &RPCClient{
		Accounts: make(map[string]*solana.AccountInfo),
	}
}

// GetAccountInfo returns the stored account, or nil if the address is unknown.
func (c *RPCClient) GetAccountInfo(_ context.Context, pubkey string) (*solana.AccountInfo, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	info, ok := c.Accounts[pubkey]
	if !ok {
		return nil, nil
	}
	cp := *info
	return &cp, nil
}

// GetProgramAccounts returns every stored account owned by programID, sorted by address.
func (c *RPCClient) GetProgramAccounts(_ context.Context, programID string) ([]solana.KeyedAccount, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var out []solana.KeyedAccount
	for key, info := range c.Accounts {
		if info.Owner != programID {
			continue
		}
		out = append(out, solana.KeyedAccount{Pubkey: key, Account: *info})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Pubkey < out[j].Pubkey })
	return out, nil
}

// GetSlot returns the configured slot.
func (c *RPCClient) GetSlot(_ context.Context) (int64, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Slot, nil
}

// AddAccount adds an account to the stub store.
func (c *RPCClient) AddAccount(pubkey string, info solana.AccountInfo) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Accounts[pubkey] = &info
}
