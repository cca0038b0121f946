package token

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/rs/zerolog"

	"github.com/Klingon-tech/klingnet-launchpad/internal/fhe"
	"github.com/Klingon-tech/klingnet-launchpad/internal/ledger"
	klog "github.com/Klingon-tech/klingnet-launchpad/internal/log"
	"github.com/Klingon-tech/klingnet-launchpad/pkg/types"
)

// Contract methods.
const (
	MethodMint          = "mint"
	MethodInfo          = "info"
	MethodRemaining     = "remaining"
	MethodMinted        = "minted"
	MethodBalanceOf     = "balanceOf"
	MethodTransfer      = "transfer"
	MethodTransferInput = "transferInput"
)

// EventTransfer is emitted by every confidential transfer. The amount
// stays encrypted, so only the parties are public.
const EventTransfer = "transfer"

// TransferEvent is the payload of EventTransfer.
type TransferEvent struct {
	From types.Address `json:"from"`
	To   types.Address `json:"to"`
}

// MintArgs are the arguments of MethodMint.
type MintArgs struct {
	To     types.Address `json:"to"`
	Amount uint64        `json:"amount"`
}

// HolderArgs are the arguments of MethodBalanceOf.
type HolderArgs struct {
	Holder types.Address `json:"holder"`
}

// TransferArgs are the arguments of MethodTransfer.
type TransferArgs struct {
	To     types.Address `json:"to"`
	Amount types.Handle  `json:"amount"`
}

// TransferInputArgs are the arguments of MethodTransferInput. Input is
// a value sealed with fhe.EncryptInput for (caller, token).
type TransferInputArgs struct {
	To    types.Address `json:"to"`
	Input types.Bytes   `json:"input"`
}

// Contract is the behavior of every confidential token instance.
type Contract struct {
	fhe    fhe.Capability
	logger zerolog.Logger
}

// New creates the token contract kind over a confidential capability.
func New(capability fhe.Capability) *Contract {
	return &Contract{fhe: capability, logger: klog.Token}
}

// Payable is false for every method: tokens never hold native value.
func (c *Contract) Payable(string) bool { return false }

// Invoke dispatches a token method.
func (c *Contract) Invoke(tx *ledger.Txn, method string, args json.RawMessage) (any, error) {
	switch method {
	case MethodMint:
		var a MintArgs
		if err := ledger.DecodeArgs(args, &a); err != nil {
			return nil, err
		}
		return c.Mint(tx, a.To, a.Amount)
	case MethodInfo:
		return getMeta(tx)
	case MethodRemaining:
		return c.RemainingSupply(tx)
	case MethodMinted:
		m, err := getMeta(tx)
		if err != nil {
			return nil, err
		}
		return m.MintedSupply, nil
	case MethodBalanceOf:
		var a HolderArgs
		if err := ledger.DecodeArgs(args, &a); err != nil {
			return nil, err
		}
		h, _, err := balance(tx, a.Holder)
		return h, err
	case MethodTransfer:
		var a TransferArgs
		if err := ledger.DecodeArgs(args, &a); err != nil {
			return nil, err
		}
		return c.Transfer(tx, a.To, a.Amount)
	case MethodTransferInput:
		var a TransferInputArgs
		if err := ledger.DecodeArgs(args, &a); err != nil {
			return nil, err
		}
		amount, err := c.fhe.VerifyInput(tx, tx.Caller(), a.Input)
		if err != nil {
			return nil, err
		}
		return c.transfer(tx, a.To, amount)
	}
	return nil, fmt.Errorf("%w: token.%s", ledger.ErrUnknownMethod, method)
}

// Mint creates amount new base units for to. Only the bound factory may
// call it. The returned handle is the encrypted minted amount.
func (c *Contract) Mint(tx *ledger.Txn, to types.Address, amount uint64) (types.Handle, error) {
	m, err := getMeta(tx)
	if err != nil {
		return types.Handle{}, err
	}
	if tx.Caller() != m.Factory {
		return types.Handle{}, fmt.Errorf("%w: %s", ErrInvalidFactory, tx.Caller())
	}
	if to.IsZero() {
		return types.Handle{}, ErrInvalidRecipient
	}
	if amount == 0 {
		return types.Handle{}, ErrInvalidAmount
	}
	if amount > math.MaxUint64-m.MintedSupply || m.MintedSupply+amount > m.MaxSupply {
		return types.Handle{}, fmt.Errorf("%w: minted %d + %d > %d",
			ErrMintingExceedsSupply, m.MintedSupply, amount, m.MaxSupply)
	}
	m.MintedSupply += amount
	if err := putMeta(tx, m); err != nil {
		return types.Handle{}, err
	}

	minted, err := c.fhe.TrivialEncrypt(tx, amount)
	if err != nil {
		return types.Handle{}, err
	}
	bal, err := c.credit(tx, to, minted)
	if err != nil {
		return types.Handle{}, err
	}
	for _, who := range []types.Address{to, tx.Caller()} {
		if err := c.fhe.Allow(tx, minted, who); err != nil {
			return types.Handle{}, err
		}
	}

	c.logger.Debug().
		Str("token", tx.Self().String()).
		Str("to", to.String()).
		Uint64("amount", amount).
		Str("balance", bal.String()).
		Msg("Minted")
	return minted, nil
}

// RemainingSupply returns the number of base units still mintable.
func (c *Contract) RemainingSupply(tx *ledger.Txn) (uint64, error) {
	m, err := getMeta(tx)
	if err != nil {
		return 0, err
	}
	return m.RemainingSupply(), nil
}

// Transfer moves an encrypted amount from the caller to to. The caller
// must be allowed on amount. If the balance does not cover it, an
// encrypted zero moves instead, so the outcome stays private.
func (c *Contract) Transfer(tx *ledger.Txn, to types.Address, amount types.Handle) (types.Handle, error) {
	ok, err := c.fhe.IsAllowed(tx, amount, tx.Caller())
	if err != nil {
		return types.Handle{}, err
	}
	if !ok {
		return types.Handle{}, fmt.Errorf("%w: %s for %s", fhe.ErrNotAllowed, amount, tx.Caller())
	}
	return c.transfer(tx, to, amount)
}

func (c *Contract) transfer(tx *ledger.Txn, to types.Address, amount types.Handle) (types.Handle, error) {
	from := tx.Caller()
	if to.IsZero() {
		return types.Handle{}, ErrInvalidRecipient
	}

	fromBal, ok, err := balance(tx, from)
	if err != nil {
		return types.Handle{}, err
	}
	if !ok {
		if fromBal, err = c.fhe.TrivialEncrypt(tx, 0); err != nil {
			return types.Handle{}, err
		}
	}
	zero, err := c.fhe.TrivialEncrypt(tx, 0)
	if err != nil {
		return types.Handle{}, err
	}
	covered, err := c.fhe.Le(tx, amount, fromBal)
	if err != nil {
		return types.Handle{}, err
	}
	moved, err := c.fhe.Select(tx, covered, amount, zero)
	if err != nil {
		return types.Handle{}, err
	}
	newFrom, err := c.fhe.Sub(tx, fromBal, moved)
	if err != nil {
		return types.Handle{}, err
	}
	if err := c.fhe.Allow(tx, newFrom, from); err != nil {
		return types.Handle{}, err
	}
	if err := setBalance(tx, from, newFrom); err != nil {
		return types.Handle{}, err
	}
	if _, err := c.credit(tx, to, moved); err != nil {
		return types.Handle{}, err
	}
	for _, who := range []types.Address{from, to} {
		if err := c.fhe.Allow(tx, moved, who); err != nil {
			return types.Handle{}, err
		}
	}

	if err := tx.Emit(EventTransfer, TransferEvent{From: from, To: to}); err != nil {
		return types.Handle{}, err
	}
	return moved, nil
}

// credit adds amount to the encrypted balance of holder.
func (c *Contract) credit(tx *ledger.Txn, holder types.Address, amount types.Handle) (types.Handle, error) {
	bal, ok, err := balance(tx, holder)
	if err != nil {
		return types.Handle{}, err
	}
	if !ok {
		// A balance always gets its own handle, never one shared with an amount.
		if bal, err = c.fhe.TrivialEncrypt(tx, 0); err != nil {
			return types.Handle{}, err
		}
	}
	next, err := c.fhe.Add(tx, bal, amount)
	if err != nil {
		return types.Handle{}, err
	}
	if err := c.fhe.Allow(tx, next, holder); err != nil {
		return types.Handle{}, err
	}
	return next, setBalance(tx, holder, next)
}
