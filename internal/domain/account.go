package domain

import "solana-nft-market/internal/solana"

// Account is a ledger entry: a balance plus owner-interpreted data.
// Corresponds to ledger_accounts table in PostgreSQL.
type Account struct {
	Address    solana.PublicKey // account address
	Lamports   uint64           // native balance
	Owner      solana.PublicKey // program that may mutate Data and debit Lamports
	Data       []byte           // record bytes, layout defined by Owner
	Executable bool
}

// Clone returns a deep copy of the account.
func (a *Account) Clone() *Account {
	if a == nil {
		return nil
	}
	cp := *a
	if a.Data != nil {
		cp.Data = make([]byte, len(a.Data))
		copy(cp.Data, a.Data)
	}
	return &cp
}

// Clock is the ledger time observed by a transaction.
type Clock struct {
	Slot          uint64 // monotonically increasing per committed transaction
	UnixTimestamp int64  // seconds
}
