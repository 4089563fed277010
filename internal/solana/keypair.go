package solana

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"os"
)

// Keypair is an ed25519 wallet key.
type Keypair struct {
	private ed25519.PrivateKey
}

// GenerateKeypair creates a fresh random keypair.
func GenerateKeypair() (Keypair, error) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return Keypair{}, fmt.Errorf("generate keypair: %w", err)
	}
	return Keypair{private: priv}, nil
}

// KeypairFromSeed derives a keypair from a 32-byte seed.
func KeypairFromSeed(seed []byte) (Keypair, error) {
	if len(seed) != ed25519.SeedSize {
		return Keypair{}, fmt.Errorf("keypair seed is %d bytes, want %d", len(seed), ed25519.SeedSize)
	}
	return Keypair{private: ed25519.NewKeyFromSeed(seed)}, nil
}

// LoadKeypair reads a keypair file in the solana-keygen format: a JSON array
// of 64 bytes, seed followed by public key.
func LoadKeypair(path string) (Keypair, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Keypair{}, fmt.Errorf("read keypair: %w", err)
	}
	var b []byte
	var ints []int
	if err := json.Unmarshal(raw, &ints); err != nil {
		return Keypair{}, fmt.Errorf("parse keypair %s: %w", path, err)
	}
	if len(ints) != ed25519.PrivateKeySize {
		return Keypair{}, fmt.Errorf("keypair %s has %d bytes, want %d", path, len(ints), ed25519.PrivateKeySize)
	}
	for _, v := range ints {
		if v < 0 || v > 255 {
			return Keypair{}, fmt.Errorf("keypair %s: byte out of range", path)
		}
		b = append(b, byte(v))
	}
	kp, err := KeypairFromSeed(b[:ed25519.SeedSize])
	if err != nil {
		return Keypair{}, err
	}
	if string(kp.private[ed25519.SeedSize:]) != string(b[ed25519.SeedSize:]) {
		return Keypair{}, fmt.Errorf("keypair %s: public key does not match seed", path)
	}
	return kp, nil
}

// Save writes the keypair in the solana-keygen format with owner-only permissions.
func (k Keypair) Save(path string) error {
	ints := make([]int, len(k.private))
	for i, v := range k.private {
		ints[i] = int(v)
	}
	data, err := json.Marshal(ints)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

// PublicKey returns the wallet address.
func (k Keypair) PublicKey() PublicKey {
	var key PublicKey
	copy(key[:], k.private[ed25519.SeedSize:])
	return key
}

// Sign signs message.
func (k Keypair) Sign(message []byte) []byte {
	return ed25519.Sign(k.private, message)
}

// Signer returns the signer capability of the keyholder.
func (k Keypair) Signer() Signer {
	return NewKeySigner(k.PublicKey())
}
