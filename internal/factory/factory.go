// Package factory implements the launchpad factory contract.
//
// The factory deploys confidential tokens, keeps an append-only catalog
// of them, and sells each token at a fixed rate in the native coin. It is
// the sole minter of every token it creates. Proceeds stay in the factory
// until its owner withdraws them.
package factory

import (
	"errors"
	"math/big"

	"github.com/Klingon-tech/klingnet-launchpad/pkg/types"
)

// Kind is the ledger contract kind of the factory.
const Kind = "launchpad-factory"

// Factory errors.
var (
	ErrInvalidSupply       = errors.New("invalid supply")
	ErrTokenNotFound       = errors.New("token not found")
	ErrNoTokensToMint      = errors.New("payment buys no tokens")
	ErrInsufficientSupply  = errors.New("insufficient remaining supply")
	ErrNotOwner            = errors.New("caller is not the factory owner")
	ErrInvalidRecipient    = errors.New("invalid recipient")
	ErrInsufficientBalance = errors.New("insufficient factory balance")
	ErrTransferFailed      = errors.New("native transfer failed")
)

// Supply and pricing constants.
const (
	// DefaultSupply is used when a token is created with supply 0.
	DefaultSupply uint64 = 10_000_000
	// UnitsPerToken is 10^token.Decimals.
	UnitsPerToken uint64 = 1_000_000
	// TokensPerCoin is the number of base units one native coin buys.
	TokensPerCoin uint64 = DefaultSupply * UnitsPerToken
)

// TokenRecord is the catalog entry of a created token. MintedSupply is
// refreshed from the token whenever a record is read.
type TokenRecord struct {
	Token        types.Address `json:"token"`
	Name         string        `json:"name"`
	Symbol       string        `json:"symbol"`
	MaxSupply    uint64        `json:"max_supply"`
	MintedSupply uint64        `json:"minted_supply"`
	Creator      types.Address `json:"creator"`
	Height       uint64        `json:"height"`
}

// Info summarizes the factory.
type Info struct {
	Address       types.Address `json:"address"`
	Owner         types.Address `json:"owner"`
	Balance       string        `json:"balance"`
	TokenCount    uint64        `json:"token_count"`
	TokensPerCoin uint64        `json:"tokens_per_coin"`
	DefaultSupply uint64        `json:"default_supply"`
}

// Event names.
const (
	EventCreation   = "creation"
	EventPurchase   = "purchase"
	EventWithdrawal = "withdrawal"
)

// CreationEvent is emitted by CreateToken.
type CreationEvent struct {
	Token     types.Address `json:"token"`
	Creator   types.Address `json:"creator"`
	Name      string        `json:"name"`
	Symbol    string        `json:"symbol"`
	MaxSupply uint64        `json:"max_supply"`
}

// PurchaseEvent is emitted by BuyTokens. Payment is in native base units.
type PurchaseEvent struct {
	Buyer   types.Address `json:"buyer"`
	Token   types.Address `json:"token"`
	Payment string        `json:"payment"`
	Minted  uint64        `json:"minted"`
}

// WithdrawalEvent is emitted by Withdraw.
type WithdrawalEvent struct {
	Recipient types.Address `json:"recipient"`
	Amount    string        `json:"amount"`
}

// PaymentOf parses the payment of a purchase event.
func (e PurchaseEvent) PaymentOf() *big.Int {
	v, ok := new(big.Int).SetString(e.Payment, 10)
	if !ok {
		return new(big.Int)
	}
	return v
}

// AmountOf parses the amount of a withdrawal event.
func (e WithdrawalEvent) AmountOf() *big.Int {
	v, ok := new(big.Int).SetString(e.Amount, 10)
	if !ok {
		return new(big.Int)
	}
	return v
}
