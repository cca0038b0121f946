// Package fhe provides the confidential-arithmetic capability used by
// token contracts.
//
// Contracts never see cleartext. They hold opaque handles and combine
// them through a Capability; every operation checks that the running
// contract is allowed on each operand and grants it the result. Values
// are unsigned 64-bit integers with wrapping arithmetic. Booleans are
// encrypted 0 or 1.
package fhe

import (
	"errors"

	"github.com/Klingon-tech/klingnet-launchpad/internal/ledger"
	"github.com/Klingon-tech/klingnet-launchpad/pkg/types"
)

// Errors returned by the capability.
var (
	ErrNotAllowed    = errors.New("not allowed on ciphertext")
	ErrUnknownHandle = errors.New("unknown ciphertext handle")
	ErrBadInput      = errors.New("invalid encrypted input")
	ErrCorrupt       = errors.New("ciphertext failed authentication")
)

// Capability is the arithmetic available to contracts. The running
// contract (tx.Self()) is the caller of every operation.
type Capability interface {
	// TrivialEncrypt encrypts a public value.
	TrivialEncrypt(tx *ledger.Txn, value uint64) (types.Handle, error)
	// Add returns a + b mod 2^64.
	Add(tx *ledger.Txn, a, b types.Handle) (types.Handle, error)
	// Sub returns a - b mod 2^64.
	Sub(tx *ledger.Txn, a, b types.Handle) (types.Handle, error)
	// Le returns the encrypted boolean a <= b.
	Le(tx *ledger.Txn, a, b types.Handle) (types.Handle, error)
	// Select returns a if cond is true, else b.
	Select(tx *ledger.Txn, cond, a, b types.Handle) (types.Handle, error)
	// VerifyInput accepts a value user encrypted for the running contract.
	VerifyInput(tx *ledger.Txn, user types.Address, input []byte) (types.Handle, error)
	// Allow grants who access to h. The caller must already be allowed.
	Allow(tx *ledger.Txn, h types.Handle, who types.Address) error
	// IsAllowed reports whether who may use h.
	IsAllowed(tx *ledger.Txn, h types.Handle, who types.Address) (bool, error)
}

// Decryptor reveals cleartexts. It is reserved for the decryption relayer,
// which enforces holder consent before calling Reveal.
type Decryptor interface {
	IsAllowed(tx *ledger.Txn, h types.Handle, who types.Address) (bool, error)
	Reveal(tx *ledger.Txn, h types.Handle) (uint64, error)
	PublicKey() []byte
}
