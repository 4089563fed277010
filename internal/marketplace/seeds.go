package marketplace

import (
	"encoding/hex"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"

	"solana-nft-market/internal/solana"
)

// Seed tags.
const (
	MarketplaceSeed = "marketplace"
	TreasurySeed    = "treasury"
	AuthSeed        = "auth"
)

// Deriver computes the program's derived addresses. Bump searches are cached
// because every bid re-derives the same handful of addresses.
type Deriver struct {
	programID solana.PublicKey
	cache     *cache.Cache
}

type derived struct {
	address solana.PublicKey
	bump    uint8
}

// NewDeriver creates a Deriver for programID.
func NewDeriver(programID solana.PublicKey) *Deriver {
	return &Deriver{
		programID: programID,
		cache:     cache.New(30*time.Minute, time.Hour),
	}
}

// ProgramID returns the program the Deriver derives for.
func (d *Deriver) ProgramID() solana.PublicKey {
	return d.programID
}

func (d *Deriver) find(seeds ...[]byte) (solana.PublicKey, uint8, error) {
	parts := make([]string, len(seeds))
	for i, s := range seeds {
		parts[i] = hex.EncodeToString(s)
	}
	cacheKey := strings.Join(parts, "|")

	if v, ok := d.cache.Get(cacheKey); ok {
		hit := v.(derived)
		return hit.address, hit.bump, nil
	}

	address, bump, err := solana.FindProgramAddress(seeds, d.programID)
	if err != nil {
		return solana.PublicKey{}, 0, err
	}
	d.cache.Set(cacheKey, derived{address: address, bump: bump}, cache.DefaultExpiration)
	return address, bump, nil
}

// Marketplace derives ["marketplace", name].
func (d *Deriver) Marketplace(name string) (solana.PublicKey, uint8, error) {
	return d.find([]byte(MarketplaceSeed), []byte(name))
}

// Treasury derives ["treasury", marketplace].
func (d *Deriver) Treasury(marketplace solana.PublicKey) (solana.PublicKey, uint8, error) {
	return d.find([]byte(TreasurySeed), marketplace[:])
}

// VaultAuthority derives ["auth", mint]. The vault token account lives at this
// address and names itself as owner.
func (d *Deriver) VaultAuthority(mint solana.PublicKey) (solana.PublicKey, uint8, error) {
	return d.find([]byte(AuthSeed), mint[:])
}

// Whitelist derives [marketplace, collection_mint].
func (d *Deriver) Whitelist(marketplace, collectionMint solana.PublicKey) (solana.PublicKey, uint8, error) {
	return d.find(marketplace[:], collectionMint[:])
}

// Listing derives [whitelist, mint].
func (d *Deriver) Listing(whitelist, mint solana.PublicKey) (solana.PublicKey, uint8, error) {
	return d.find(whitelist[:], mint[:])
}

// verify re-derives an address from seeds plus the recorded bump.
func (d *Deriver) verify(address solana.PublicKey, bump uint8, seeds ...[]byte) bool {
	withBump := append(append([][]byte{}, seeds...), []byte{bump})
	got, err := solana.CreateProgramAddress(withBump, d.programID)
	return err == nil && got == address
}

// VaultSigner returns the capability for the vault authority of mint.
// It is valid only for the transaction that requested it.
func (d *Deriver) VaultSigner(vault, mint solana.PublicKey, authBump uint8) (solana.Signer, error) {
	return solana.SignAs(d.programID, vault, []byte(AuthSeed), mint[:], []byte{authBump})
}
