package fhe

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/chacha20poly1305"

	"github.com/Klingon-tech/klingnet-launchpad/internal/ledger"
	klog "github.com/Klingon-tech/klingnet-launchpad/internal/log"
	"github.com/Klingon-tech/klingnet-launchpad/internal/storage"
	"github.com/Klingon-tech/klingnet-launchpad/pkg/crypto"
	"github.com/Klingon-tech/klingnet-launchpad/pkg/types"
)

// KDF contexts.
const (
	sealContext  = "launchpad fhe ciphertext v1"
	InputContext = "launchpad fhe input v1"
)

// Ledger keyspace of the coprocessor.
const namespace = "f/"

// Opcodes mixed into handle derivation.
const (
	opTrivial byte = iota + 1
	opAdd
	opSub
	opLe
	opSelect
	opInput
)

// Coprocessor implements Capability and Decryptor. Ciphertexts are sealed
// under a key derived from the network key and stored in ledger state, so
// they commit or roll back with the call that produced them.
type Coprocessor struct {
	key    *crypto.PrivateKey
	sealer []byte
	logger zerolog.Logger
}

// NewCoprocessor creates a coprocessor holding the network key.
func NewCoprocessor(key *crypto.PrivateKey) (*Coprocessor, error) {
	if key == nil {
		return nil, fmt.Errorf("network key is nil")
	}
	return &Coprocessor{
		key:    key,
		sealer: crypto.DeriveKey(sealContext, key.Serialize()),
		logger: klog.FHE,
	}, nil
}

// PublicKey returns the network public key clients encrypt inputs to.
func (c *Coprocessor) PublicKey() []byte {
	return c.key.PublicKey()
}

func ctKey(h types.Handle) []byte {
	return append([]byte("c/"), h[:]...)
}

func aclKey(h types.Handle, who types.Address) []byte {
	k := append([]byte("a/"), h[:]...)
	return append(k, who[:]...)
}

// newHandle derives a fresh handle unique within the chain.
func newHandle(tx *ledger.Txn, op byte) types.Handle {
	buf := make([]byte, 0, len(tx.ChainID())+17)
	buf = append(buf, tx.ChainID()...)
	buf = binary.BigEndian.AppendUint64(buf, tx.Height())
	buf = binary.BigEndian.AppendUint64(buf, tx.NextSequence())
	buf = append(buf, op)
	return types.Handle(crypto.Hash(buf))
}

// store seals value under a new handle and allows the running contract.
func (c *Coprocessor) store(tx *ledger.Txn, op byte, value uint64) (types.Handle, error) {
	h := newHandle(tx, op)
	aead, err := chacha20poly1305.NewX(c.sealer)
	if err != nil {
		return types.Handle{}, fmt.Errorf("create cipher: %w", err)
	}
	// Handles never repeat, so a nonce taken from the handle is unique.
	nonce := crypto.Hash(h[:])
	sealed := aead.Seal(nil, nonce[:aead.NonceSize()], binary.BigEndian.AppendUint64(nil, value), h[:])

	ns := tx.Namespace(namespace)
	if err := ns.Put(ctKey(h), sealed); err != nil {
		return types.Handle{}, err
	}
	if err := ns.Put(aclKey(h, tx.Self()), []byte{1}); err != nil {
		return types.Handle{}, err
	}
	return h, nil
}

// load decrypts h without an access check.
func (c *Coprocessor) load(tx *ledger.Txn, h types.Handle) (uint64, error) {
	sealed, err := tx.Namespace(namespace).Get(ctKey(h))
	if errors.Is(err, storage.ErrNotFound) {
		return 0, fmt.Errorf("%w: %s", ErrUnknownHandle, h)
	}
	if err != nil {
		return 0, err
	}
	aead, err := chacha20poly1305.NewX(c.sealer)
	if err != nil {
		return 0, fmt.Errorf("create cipher: %w", err)
	}
	nonce := crypto.Hash(h[:])
	plain, err := aead.Open(nil, nonce[:aead.NonceSize()], sealed, h[:])
	if err != nil || len(plain) != 8 {
		return 0, fmt.Errorf("%w: %s", ErrCorrupt, h)
	}
	return binary.BigEndian.Uint64(plain), nil
}

// operand loads h after checking the running contract may use it.
func (c *Coprocessor) operand(tx *ledger.Txn, h types.Handle) (uint64, error) {
	ok, err := c.IsAllowed(tx, h, tx.Self())
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, fmt.Errorf("%w: %s for %s", ErrNotAllowed, h, tx.Self())
	}
	return c.load(tx, h)
}

func (c *Coprocessor) apply(tx *ledger.Txn, op byte, a, b types.Handle, fn func(x, y uint64) uint64) (types.Handle, error) {
	x, err := c.operand(tx, a)
	if err != nil {
		return types.Handle{}, err
	}
	y, err := c.operand(tx, b)
	if err != nil {
		return types.Handle{}, err
	}
	return c.store(tx, op, fn(x, y))
}

// TrivialEncrypt encrypts a public value.
func (c *Coprocessor) TrivialEncrypt(tx *ledger.Txn, value uint64) (types.Handle, error) {
	return c.store(tx, opTrivial, value)
}

// Add returns a + b, wrapping on overflow.
func (c *Coprocessor) Add(tx *ledger.Txn, a, b types.Handle) (types.Handle, error) {
	return c.apply(tx, opAdd, a, b, func(x, y uint64) uint64 { return x + y })
}

// Sub returns a - b, wrapping on underflow.
func (c *Coprocessor) Sub(tx *ledger.Txn, a, b types.Handle) (types.Handle, error) {
	return c.apply(tx, opSub, a, b, func(x, y uint64) uint64 { return x - y })
}

// Le returns encrypted 1 if a <= b, else encrypted 0.
func (c *Coprocessor) Le(tx *ledger.Txn, a, b types.Handle) (types.Handle, error) {
	return c.apply(tx, opLe, a, b, func(x, y uint64) uint64 {
		if x <= y {
			return 1
		}
		return 0
	})
}

// Select returns a fresh ciphertext of a if cond is nonzero, else of b.
func (c *Coprocessor) Select(tx *ledger.Txn, cond, a, b types.Handle) (types.Handle, error) {
	flag, err := c.operand(tx, cond)
	if err != nil {
		return types.Handle{}, err
	}
	return c.apply(tx, opSelect, a, b, func(x, y uint64) uint64 {
		if flag != 0 {
			return x
		}
		return y
	})
}

// VerifyInput opens an input that user sealed for the running contract
// with EncryptInput. The box is bound to (user, contract) so it cannot be
// replayed by another account or into another contract.
func (c *Coprocessor) VerifyInput(tx *ledger.Txn, user types.Address, input []byte) (types.Handle, error) {
	plain, err := c.key.Open(input, InputContext, inputAAD(user, tx.Self()))
	if err != nil {
		return types.Handle{}, fmt.Errorf("%w: %v", ErrBadInput, err)
	}
	if len(plain) != 8 {
		return types.Handle{}, fmt.Errorf("%w: payload is %d bytes", ErrBadInput, len(plain))
	}
	return c.store(tx, opInput, binary.BigEndian.Uint64(plain))
}

// Allow grants who access to h.
func (c *Coprocessor) Allow(tx *ledger.Txn, h types.Handle, who types.Address) error {
	ok, err := c.IsAllowed(tx, h, tx.Self())
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s for %s", ErrNotAllowed, h, tx.Self())
	}
	return tx.Namespace(namespace).Put(aclKey(h, who), []byte{1})
}

// IsAllowed reports whether who is on the access list of h.
func (c *Coprocessor) IsAllowed(tx *ledger.Txn, h types.Handle, who types.Address) (bool, error) {
	return tx.Namespace(namespace).Has(aclKey(h, who))
}

// Reveal decrypts h. Callers are responsible for authorization.
func (c *Coprocessor) Reveal(tx *ledger.Txn, h types.Handle) (uint64, error) {
	v, err := c.load(tx, h)
	if err != nil {
		return 0, err
	}
	c.logger.Debug().Str("handle", h.String()).Msg("Ciphertext revealed")
	return v, nil
}

func inputAAD(user, contract types.Address) []byte {
	aad := make([]byte, 0, 2*types.AddressSize)
	aad = append(aad, user[:]...)
	return append(aad, contract[:]...)
}

// EncryptInput seals value so that only contract, called by user, can
// import it through VerifyInput. networkKey is the coprocessor public key.
func EncryptInput(networkKey []byte, user, contract types.Address, value uint64) ([]byte, error) {
	return crypto.SealTo(networkKey, InputContext, binary.BigEndian.AppendUint64(nil, value), inputAAD(user, contract))
}

var (
	_ Capability = (*Coprocessor)(nil)
	_ Decryptor  = (*Coprocessor)(nil)
)
