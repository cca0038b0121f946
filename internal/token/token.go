// Package token implements the confidential token contract.
//
// Supply is public: the cap and the minted counter are cleartext.
// Balances are ciphertext handles held by the coprocessor, and transfers
// move encrypted amounts without revealing them. Only the factory that
// deployed a token may mint it.
package token

import (
	"errors"
	"fmt"

	"github.com/Klingon-tech/klingnet-launchpad/internal/ledger"
	"github.com/Klingon-tech/klingnet-launchpad/internal/storage"
	"github.com/Klingon-tech/klingnet-launchpad/pkg/types"
)

// Kind is the ledger contract kind of confidential tokens.
const Kind = "confidential-token"

// Decimals of every launchpad token: 1 token = 10^6 base units.
const Decimals = 6

// Token errors.
var (
	ErrInvalidFactory       = errors.New("caller is not the token factory")
	ErrInvalidRecipient     = errors.New("invalid recipient")
	ErrInvalidAmount        = errors.New("amount must be positive")
	ErrMintingExceedsSupply = errors.New("minting exceeds max supply")
	ErrInvalidSupply        = errors.New("max supply must be positive")
	ErrAlreadyInitialized   = errors.New("token already initialized")
)

// Metadata describes a deployed token. MintedSupply is authoritative.
type Metadata struct {
	Name         string        `json:"name"`
	Symbol       string        `json:"symbol"`
	Decimals     uint8         `json:"decimals"`
	Factory      types.Address `json:"factory"`
	Creator      types.Address `json:"creator"`
	MaxSupply    uint64        `json:"max_supply"`
	MintedSupply uint64        `json:"minted_supply"`
}

// RemainingSupply returns MaxSupply - MintedSupply.
func (m *Metadata) RemainingSupply() uint64 {
	return m.MaxSupply - m.MintedSupply
}

// Params are the constructor arguments of a token.
type Params struct {
	Name      string
	Symbol    string
	Creator   types.Address
	MaxSupply uint64
}

// Contract storage keys.
var (
	keyMeta       = []byte("meta")
	prefixBalance = []byte("bal/")
)

func balanceKey(holder types.Address) []byte {
	return append(append([]byte{}, prefixBalance...), holder[:]...)
}

// Init writes the initial state of a token being deployed. It must run
// inside the deployment, so the deployer (tx.Caller) becomes the sole
// minter.
func Init(tx *ledger.Txn, p Params) error {
	if p.MaxSupply == 0 {
		return ErrInvalidSupply
	}
	if ok, err := tx.Has(keyMeta); err != nil {
		return err
	} else if ok {
		return ErrAlreadyInitialized
	}
	return putMeta(tx, &Metadata{
		Name:      p.Name,
		Symbol:    p.Symbol,
		Decimals:  Decimals,
		Factory:   tx.Caller(),
		Creator:   p.Creator,
		MaxSupply: p.MaxSupply,
	})
}

func getMeta(tx *ledger.Txn) (*Metadata, error) {
	var m Metadata
	if err := tx.GetJSON(keyMeta, &m); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("token %s not initialized", tx.Self())
		}
		return nil, err
	}
	return &m, nil
}

func putMeta(tx *ledger.Txn, m *Metadata) error {
	return tx.PutJSON(keyMeta, m)
}

// balance returns the encrypted balance of holder; ok is false when the
// holder has never received tokens.
func balance(tx *ledger.Txn, holder types.Address) (types.Handle, bool, error) {
	data, err := tx.Get(balanceKey(holder))
	if errors.Is(err, storage.ErrNotFound) {
		return types.Handle{}, false, nil
	}
	if err != nil {
		return types.Handle{}, false, err
	}
	if len(data) != types.HashSize {
		return types.Handle{}, false, fmt.Errorf("corrupt balance of %s", holder)
	}
	var h types.Handle
	copy(h[:], data)
	return h, true, nil
}

func setBalance(tx *ledger.Txn, holder types.Address, h types.Handle) error {
	return tx.Put(balanceKey(holder), h[:])
}
