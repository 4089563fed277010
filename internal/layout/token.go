package layout

import (
	"fmt"

	"solana-nft-market/internal/domain"
)

// SPL token program account sizes.
const (
	MintSize         = 82
	TokenAccountSize = 165
)

// EncodeMint serializes an SPL mint.
// Layout: mintAuthority COption<Pubkey>(36) | supply u64 | decimals u8 |
// isInitialized bool | freezeAuthority COption<Pubkey>(36).
func EncodeMint(m *domain.Mint) []byte {
	w := newWriter(MintSize)
	w.optionPubkey(m.MintAuthority)
	w.u64(m.Supply)
	w.u8(m.Decimals)
	w.bool(m.IsInitialized)
	w.optionPubkey(m.FreezeAuthority)
	return w.buf
}

// DecodeMint parses an SPL mint.
func DecodeMint(data []byte) (*domain.Mint, error) {
	if len(data) != MintSize {
		return nil, fmt.Errorf("decode mint: %w: %d bytes", ErrInvalidSize, len(data))
	}
	r := newReader(data)
	m := &domain.Mint{
		MintAuthority:   r.optionPubkey(),
		Supply:          r.u64(),
		Decimals:        r.u8(),
		IsInitialized:   r.bool(),
		FreezeAuthority: r.optionPubkey(),
	}
	if r.err != nil {
		return nil, fmt.Errorf("decode mint: %w", r.err)
	}
	if !m.IsInitialized {
		return nil, fmt.Errorf("decode mint: uninitialized")
	}
	return m, nil
}

// EncodeTokenAccount serializes an SPL token account.
// Layout: mint(32) | owner(32) | amount u64 | delegate COption<Pubkey>(36) |
// state u8 | isNative COption<u64>(12) | delegatedAmount u64 |
// closeAuthority COption<Pubkey>(36).
func EncodeTokenAccount(a *domain.TokenAccount) []byte {
	w := newWriter(TokenAccountSize)
	w.pubkey(a.Mint)
	w.pubkey(a.Owner)
	w.u64(a.Amount)
	w.optionPubkey(a.Delegate)
	w.u8(uint8(a.State))
	w.optionU64(a.IsNative)
	w.u64(a.DelegatedAmount)
	w.optionPubkey(a.CloseAuthority)
	return w.buf
}

// DecodeTokenAccount parses an SPL token account.
func DecodeTokenAccount(data []byte) (*domain.TokenAccount, error) {
	if len(data) != TokenAccountSize {
		return nil, fmt.Errorf("decode token account: %w: %d bytes", ErrInvalidSize, len(data))
	}
	r := newReader(data)
	a := &domain.TokenAccount{
		Mint:            r.pubkey(),
		Owner:           r.pubkey(),
		Amount:          r.u64(),
		Delegate:        r.optionPubkey(),
		State:           domain.TokenAccountState(r.u8()),
		IsNative:        r.optionU64(),
		DelegatedAmount: r.u64(),
		CloseAuthority:  r.optionPubkey(),
	}
	if r.err != nil {
		return nil, fmt.Errorf("decode token account: %w", r.err)
	}
	if a.State == domain.TokenAccountUninitialized {
		return nil, fmt.Errorf("decode token account: uninitialized")
	}
	return a, nil
}
