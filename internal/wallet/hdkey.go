package wallet

import (
	"fmt"

	"github.com/tyler-smith/go-bip32"

	"github.com/Klingon-tech/klingnet-launchpad/pkg/crypto"
	"github.com/Klingon-tech/klingnet-launchpad/pkg/types"
)

// Derivation path constants for m/44'/8888'/0'/0/index.
const (
	PurposeBIP44  = bip32.FirstHardenedChild + 44
	CoinType      = bip32.FirstHardenedChild + 8888
	AccountZero   = bip32.FirstHardenedChild
	ChainExternal = 0
)

// HDKey is a BIP-32 extended key.
type HDKey struct {
	key *bip32.Key
}

// NewMasterKey creates a master key from a 64-byte seed.
func NewMasterKey(seed []byte) (*HDKey, error) {
	if len(seed) != SeedSize {
		return nil, fmt.Errorf("seed must be %d bytes, got %d", SeedSize, len(seed))
	}
	master, err := bip32.NewMasterKey(seed)
	if err != nil {
		return nil, fmt.Errorf("create master key: %w", err)
	}
	return &HDKey{key: master}, nil
}

// Child derives the child at index. Add bip32.FirstHardenedChild for a
// hardened child.
func (k *HDKey) Child(index uint32) (*HDKey, error) {
	child, err := k.key.NewChildKey(index)
	if err != nil {
		return nil, fmt.Errorf("derive child %d: %w", index, err)
	}
	return &HDKey{key: child}, nil
}

// Account derives the signing key of account index from a master key.
func (k *HDKey) Account(index uint32) (*HDKey, error) {
	cur := k
	for _, idx := range []uint32{PurposeBIP44, CoinType, AccountZero, ChainExternal, index} {
		next, err := cur.Child(idx)
		if err != nil {
			return nil, err
		}
		cur = next
	}
	return cur, nil
}

// AccountPath renders the derivation path of account index.
func AccountPath(index uint32) string {
	return fmt.Sprintf("m/44'/8888'/0'/0/%d", index)
}

// PrivateKey returns the secp256k1 signing key. Fails on a neutered key.
func (k *HDKey) PrivateKey() (*crypto.PrivateKey, error) {
	if !k.key.IsPrivate {
		return nil, fmt.Errorf("public-only key cannot sign")
	}
	// bip32 stores private keys as 33 bytes with a leading zero.
	raw := k.key.Key
	if len(raw) == 33 && raw[0] == 0 {
		raw = raw[1:]
	}
	return crypto.PrivateKeyFromBytes(raw)
}

// PublicKey returns the compressed 33-byte public key.
func (k *HDKey) PublicKey() []byte {
	return k.key.PublicKey().Key
}

// Address is the ledger address of this key.
func (k *HDKey) Address() types.Address {
	return crypto.AddressFromPubKey(k.PublicKey())
}

// IsPrivate reports whether the key can sign.
func (k *HDKey) IsPrivate() bool {
	return k.key.IsPrivate
}

// Depth returns the derivation depth (0 for master).
func (k *HDKey) Depth() uint8 {
	return k.key.Depth
}

// Neuter returns a public-only copy.
func (k *HDKey) Neuter() *HDKey {
	return &HDKey{key: k.key.PublicKey()}
}
