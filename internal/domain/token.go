package domain

import "solana-nft-market/internal/solana"

// TokenAccountState mirrors the token program account state byte.
type TokenAccountState uint8

const (
	TokenAccountUninitialized TokenAccountState = iota
	TokenAccountInitialized
	TokenAccountFrozen
)

// Mint is a token-program mint. NFTs have Decimals 0 and Supply 1.
type Mint struct {
	MintAuthority   *solana.PublicKey // nil once authority is revoked
	Supply          uint64
	Decimals        uint8
	IsInitialized   bool
	FreezeAuthority *solana.PublicKey
}

// TokenAccount holds Amount units of Mint on behalf of Owner.
type TokenAccount struct {
	Mint            solana.PublicKey
	Owner           solana.PublicKey // authority allowed to transfer and close
	Amount          uint64
	Delegate        *solana.PublicKey
	State           TokenAccountState
	IsNative        *uint64
	DelegatedAmount uint64
	CloseAuthority  *solana.PublicKey
}
