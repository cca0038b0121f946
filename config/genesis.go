package config

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
	"os"

	"github.com/Klingon-tech/klingnet-launchpad/pkg/crypto"
	"github.com/Klingon-tech/klingnet-launchpad/pkg/types"
)

// Genesis holds the ledger's initial state and protocol rules.
// It is immutable once the ledger has been initialized.
type Genesis struct {
	ChainID   string `json:"chain_id"`
	ChainName string `json:"chain_name"`
	Symbol    string `json:"symbol,omitempty"` // Native coin symbol.
	Timestamp uint64 `json:"timestamp"`

	// Owner is the factory owner, the only address allowed to withdraw
	// purchase proceeds. The factory lives at ContractAddress(owner, 0).
	Owner string `json:"owner"`

	// Initial native allocations (address -> balance in base units, decimal).
	Alloc map[string]string `json:"alloc"`

	Protocol ProtocolConfig `json:"protocol"`
}

// ProtocolConfig holds rules every node serving this ledger must share.
type ProtocolConfig struct {
	Relayer RelayerRules `json:"relayer"`
}

// RelayerRules bounds user-decryption consents.
type RelayerRules struct {
	// MaxConsentDays is the longest validity window a consent may request.
	MaxConsentDays uint32 `json:"max_consent_days"`
}

// =============================================================================
// Testnet Identity
//
// Derived from the well-known BIP-39 test mnemonic (DO NOT use on mainnet):
//
//	abandon abandon abandon abandon abandon abandon abandon abandon
//	abandon abandon abandon abandon abandon abandon abandon abandon
//	abandon abandon abandon abandon abandon abandon abandon art
//
// Derivation path: m/44'/8888'/0'/0/0 (no passphrase)
// =============================================================================

const (
	// TestnetMnemonic is the well-known seed phrase for the testnet owner.
	TestnetMnemonic = "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon art"

	// TestnetOwnerPubKey is the compressed public key (hex) derived from TestnetMnemonic.
	TestnetOwnerPubKey = "030bef68f8657df88098a0546da1712c88b459788bea1a6bbe964004166a25144f"

	// mainnetOwnerPubKey controls the mainnet factory.
	mainnetOwnerPubKey = "03cba4d0ee4c55f5ea620393a6e6e9dafe959bfa6ddff964221126a3e41ad0487d"
)

// OwnerFromPubKey returns the address of a hex-encoded compressed public key.
func OwnerFromPubKey(pubHex string) types.Address {
	b, err := hex.DecodeString(pubHex)
	if err != nil {
		panic(fmt.Sprintf("bad built-in public key %q: %v", pubHex, err))
	}
	return crypto.AddressFromPubKey(b)
}

// coins returns n whole coins in base units as a decimal string.
func coins(n int64) string {
	return new(big.Int).Mul(big.NewInt(n), types.Coin()).String()
}

// MainnetGenesis returns the mainnet genesis configuration.
func MainnetGenesis() *Genesis {
	return &Genesis{
		ChainID:   "launchpad-mainnet-1",
		ChainName: "Launchpad Mainnet",
		Symbol:    "KLP",
		Timestamp: 1790000000,
		Owner:     OwnerFromPubKey(mainnetOwnerPubKey).String(),
		Alloc:     map[string]string{},
		Protocol: ProtocolConfig{
			Relayer: RelayerRules{MaxConsentDays: 365},
		},
	}
}

// TestnetGenesis returns the testnet genesis configuration.
func TestnetGenesis() *Genesis {
	g := MainnetGenesis()
	g.ChainID = "launchpad-testnet-1"
	g.ChainName = "Launchpad Testnet"

	owner := OwnerFromPubKey(TestnetOwnerPubKey).String()
	g.Owner = owner
	g.Alloc = map[string]string{
		owner: coins(1_000_000),
	}
	return g
}

// GenesisFor returns the genesis config for the given network.
func GenesisFor(network NetworkType) *Genesis {
	switch network {
	case Testnet:
		return TestnetGenesis()
	default:
		return MainnetGenesis()
	}
}

// LoadGenesis loads genesis configuration from a file.
func LoadGenesis(path string) (*Genesis, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading genesis file: %w", err)
	}

	var g Genesis
	if err := json.Unmarshal(data, &g); err != nil {
		return nil, fmt.Errorf("parsing genesis file: %w", err)
	}
	if err := g.Validate(); err != nil {
		return nil, fmt.Errorf("invalid genesis: %w", err)
	}
	return &g, nil
}

// Save writes the genesis configuration to a file.
func (g *Genesis) Save(path string) error {
	data, err := json.MarshalIndent(g, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding genesis: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing genesis file: %w", err)
	}
	return nil
}

// OwnerAddress parses the factory owner.
func (g *Genesis) OwnerAddress() (types.Address, error) {
	return types.ParseAddress(g.Owner)
}

// Allocations parses the initial native balances.
func (g *Genesis) Allocations() (map[types.Address]*big.Int, error) {
	out := make(map[types.Address]*big.Int, len(g.Alloc))
	for addrStr, v := range g.Alloc {
		addr, err := types.ParseAddress(addrStr)
		if err != nil {
			return nil, fmt.Errorf("invalid alloc address %q: %w", addrStr, err)
		}
		amount, err := types.ParseUnits(v)
		if err != nil {
			return nil, fmt.Errorf("invalid alloc amount for %s: %w", addrStr, err)
		}
		out[addr] = amount
	}
	return out, nil
}

// Validate checks that the genesis configuration is valid.
func (g *Genesis) Validate() error {
	if g.ChainID == "" {
		return fmt.Errorf("chain_id is required")
	}
	owner, err := g.OwnerAddress()
	if err != nil {
		return fmt.Errorf("invalid owner: %w", err)
	}
	if owner.IsZero() {
		return fmt.Errorf("owner must not be the zero address")
	}
	if _, err := g.Allocations(); err != nil {
		return err
	}
	if g.Protocol.Relayer.MaxConsentDays == 0 {
		return fmt.Errorf("relayer.max_consent_days must be positive")
	}
	return nil
}

// Hash returns a BLAKE3 hash of the genesis configuration.
// Used to detect a data directory initialized from a different genesis.
func (g *Genesis) Hash() (types.Hash, error) {
	data, err := json.Marshal(g)
	if err != nil {
		return types.Hash{}, err
	}
	return crypto.Hash(data), nil
}
