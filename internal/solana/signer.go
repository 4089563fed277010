package solana

import (
	"crypto/ed25519"
	"fmt"
)

// Signer is a transaction-scoped authority capability.
//
// A Signer exists either because a keyholder's signature was verified
// (NewKeySigner after VerifySignature) or because the program re-derived an
// address from its seeds (SignAs). It is never persisted.
type Signer struct {
	key     PublicKey
	derived bool
}

// Key returns the address this capability signs for.
func (s Signer) Key() PublicKey {
	return s.key
}

// IsDerived reports whether the signer is a program derived address.
func (s Signer) IsDerived() bool {
	return s.derived
}

// IsValid reports whether the signer was produced by a constructor.
func (s Signer) IsValid() bool {
	return !s.key.IsZero()
}

// NewKeySigner wraps a keyholder whose signature has already been verified.
func NewKeySigner(key PublicKey) Signer {
	return Signer{key: key}
}

// SignAs produces a capability for a derived address. The seeds (bump
// included) must re-derive exactly the given address under programID.
func SignAs(programID, derived PublicKey, seeds ...[]byte) (Signer, error) {
	addr, err := CreateProgramAddress(seeds, programID)
	if err != nil {
		return Signer{}, fmt.Errorf("sign as %s: %w", derived, err)
	}
	if addr != derived {
		return Signer{}, fmt.Errorf("sign as %s: seeds derive %s: %w", derived, addr, ErrInvalidSeeds)
	}
	return Signer{key: derived, derived: true}, nil
}

// VerifySignature checks an ed25519 signature by key over message.
func VerifySignature(key PublicKey, message, signature []byte) bool {
	if len(signature) != ed25519.SignatureSize {
		return false
	}
	return ed25519.Verify(ed25519.PublicKey(key[:]), message, signature)
}
