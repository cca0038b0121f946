package ledger

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"

	"github.com/Klingon-tech/klingnet-launchpad/internal/storage"
	"github.com/Klingon-tech/klingnet-launchpad/pkg/crypto"
	"github.com/Klingon-tech/klingnet-launchpad/pkg/types"
)

// maxCallDepth bounds nested contract calls.
const maxCallDepth = 16

// frame is one level of the contract call stack.
type frame struct {
	caller types.Address
	self   types.Address
	value  *big.Int
}

// Txn is the state overlay of a single ledger call. Reads see the
// committed state plus the call's own writes; nothing reaches storage
// until the ledger commits the overlay as one batch.
type Txn struct {
	l        *Ledger
	readOnly bool
	height   uint64
	origin   types.Address

	writes  map[string][]byte
	order   []string
	events  []Event
	counter uint64
	frames  []frame
}

func (l *Ledger) newTxn(readOnly bool, origin types.Address) *Txn {
	return &Txn{
		l:        l,
		readOnly: readOnly,
		height:   l.height + 1,
		origin:   origin,
		writes:   make(map[string][]byte),
	}
}

func (tx *Txn) top() frame {
	if len(tx.frames) == 0 {
		return frame{value: new(big.Int)}
	}
	return tx.frames[len(tx.frames)-1]
}

// Caller returns the address that invoked the running contract. For the
// outermost frame this is the signer of the call.
func (tx *Txn) Caller() types.Address { return tx.top().caller }

// Self returns the address of the running contract.
func (tx *Txn) Self() types.Address { return tx.top().self }

// Origin returns the external account that started the call.
func (tx *Txn) Origin() types.Address { return tx.origin }

// Value returns the native value attached to the running frame.
func (tx *Txn) Value() *big.Int { return new(big.Int).Set(tx.top().value) }

// Height returns the height the call commits at.
func (tx *Txn) Height() uint64 { return tx.height }

// ChainID returns the ledger's chain identifier.
func (tx *Txn) ChainID() string { return tx.l.chainID }

// ReadOnly reports whether writes are rejected.
func (tx *Txn) ReadOnly() bool { return tx.readOnly }

// NextSequence returns a counter unique within the call, for deriving
// identifiers of values created by it.
func (tx *Txn) NextSequence() uint64 {
	tx.counter++
	return tx.counter
}

// ── raw overlay ──────────────────────────────────────────────────────

func (tx *Txn) getRaw(key []byte) ([]byte, error) {
	if v, ok := tx.writes[string(key)]; ok {
		if v == nil {
			return nil, storage.ErrNotFound
		}
		return append([]byte{}, v...), nil
	}
	return tx.l.db.Get(key)
}

func (tx *Txn) hasRaw(key []byte) (bool, error) {
	if v, ok := tx.writes[string(key)]; ok {
		return v != nil, nil
	}
	return tx.l.db.Has(key)
}

func (tx *Txn) putRaw(key, value []byte) error {
	if tx.readOnly {
		return ErrReadOnly
	}
	k := string(key)
	if _, ok := tx.writes[k]; !ok {
		tx.order = append(tx.order, k)
	}
	tx.writes[k] = append([]byte{}, value...)
	return nil
}

func (tx *Txn) putJSON(key []byte, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %q: %w", key, err)
	}
	return tx.putRaw(key, data)
}

// ── contract storage ─────────────────────────────────────────────────

// Get reads a key from the running contract's storage.
// Returns storage.ErrNotFound if the key does not exist.
func (tx *Txn) Get(key []byte) ([]byte, error) {
	return tx.getRaw(storageKey(tx.Self(), key))
}

// Has reports whether key exists in the running contract's storage.
func (tx *Txn) Has(key []byte) (bool, error) {
	return tx.hasRaw(storageKey(tx.Self(), key))
}

// Put writes a key to the running contract's storage.
func (tx *Txn) Put(key, value []byte) error {
	return tx.putRaw(storageKey(tx.Self(), key), value)
}

// GetJSON reads and decodes a JSON value from contract storage.
func (tx *Txn) GetJSON(key []byte, v any) error {
	data, err := tx.Get(key)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

// PutJSON encodes v as JSON and writes it to contract storage.
func (tx *Txn) PutJSON(key []byte, v any) error {
	return tx.putJSON(storageKey(tx.Self(), key), v)
}

// State is a keyspace inside the call overlay.
type State interface {
	Get(key []byte) ([]byte, error)
	Has(key []byte) (bool, error)
	Put(key, value []byte) error
}

// Namespace returns a State over a ledger-wide keyspace that is not tied
// to a contract. Writes commit with the call like any other write.
func (tx *Txn) Namespace(prefix string) State {
	return &namespace{tx: tx, prefix: []byte(prefix)}
}

type namespace struct {
	tx     *Txn
	prefix []byte
}

func (n *namespace) key(k []byte) []byte {
	return append(append([]byte{}, n.prefix...), k...)
}

func (n *namespace) Get(key []byte) ([]byte, error) { return n.tx.getRaw(n.key(key)) }
func (n *namespace) Has(key []byte) (bool, error)   { return n.tx.hasRaw(n.key(key)) }
func (n *namespace) Put(key, value []byte) error    { return n.tx.putRaw(n.key(key), value) }

// ── accounts ─────────────────────────────────────────────────────────

func (tx *Txn) account(addr types.Address) (Account, error) {
	data, err := tx.getRaw(accountKey(addr))
	if errors.Is(err, storage.ErrNotFound) {
		return Account{Balance: new(big.Int)}, nil
	}
	if err != nil {
		return Account{}, err
	}
	var acct Account
	if err := json.Unmarshal(data, &acct); err != nil {
		return Account{}, fmt.Errorf("decode account %s: %w", addr, err)
	}
	return acct, nil
}

func (tx *Txn) setAccount(addr types.Address, acct Account) error {
	return tx.putJSON(accountKey(addr), acct)
}

// Account returns the native account state of addr.
func (tx *Txn) Account(addr types.Address) (Account, error) {
	return tx.account(addr)
}

// Balance returns the native balance of addr.
func (tx *Txn) Balance(addr types.Address) (*big.Int, error) {
	acct, err := tx.account(addr)
	if err != nil {
		return nil, err
	}
	return acct.Balance, nil
}

// move debits from and credits to without any acceptance checks.
func (tx *Txn) move(from, to types.Address, amount *big.Int) error {
	if amount.Sign() == 0 {
		return nil
	}
	if amount.Sign() < 0 {
		return fmt.Errorf("negative transfer amount")
	}
	src, err := tx.account(from)
	if err != nil {
		return err
	}
	if src.Balance.Cmp(amount) < 0 {
		return fmt.Errorf("%w: %s has %s, needs %s", ErrInsufficientFunds, from, src.Balance, amount)
	}
	src.Balance = new(big.Int).Sub(src.Balance, amount)
	if err := tx.setAccount(from, src); err != nil {
		return err
	}
	dst, err := tx.account(to)
	if err != nil {
		return err
	}
	dst.Balance = new(big.Int).Add(dst.Balance, amount)
	return tx.setAccount(to, dst)
}

// Transfer sends native value from the running contract to to.
// Contracts accept plain transfers only if they are payable for the
// empty method; otherwise the transfer fails with ErrTransferRejected.
func (tx *Txn) Transfer(to types.Address, amount *big.Int) error {
	if tx.readOnly {
		return ErrReadOnly
	}
	c, ok, err := tx.contractAt(to)
	if err != nil {
		return err
	}
	if ok && !c.Payable("") {
		return fmt.Errorf("%w: %s", ErrTransferRejected, to)
	}
	return tx.move(tx.Self(), to, amount)
}

// ── contracts ────────────────────────────────────────────────────────

// KindOf returns the contract kind deployed at addr, or "" for a plain account.
func (tx *Txn) KindOf(addr types.Address) (string, error) {
	data, err := tx.getRaw(kindKey(addr))
	if errors.Is(err, storage.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (tx *Txn) contractAt(addr types.Address) (Contract, bool, error) {
	kind, err := tx.KindOf(addr)
	if err != nil || kind == "" {
		return nil, false, err
	}
	c, ok := tx.l.kinds[kind]
	if !ok {
		return nil, false, fmt.Errorf("%w: %q at %s", ErrUnknownKind, kind, addr)
	}
	return c, true, nil
}

// enter pushes a frame, moves the attached value and runs fn.
func (tx *Txn) enter(caller, to types.Address, method string, value *big.Int, fn func() (any, error)) (any, error) {
	if len(tx.frames) >= maxCallDepth {
		return nil, ErrCallDepth
	}
	if value == nil {
		value = new(big.Int)
	}
	if value.Sign() != 0 {
		if tx.readOnly {
			return nil, ErrReadOnly
		}
		c, ok, err := tx.contractAt(to)
		if err != nil {
			return nil, err
		}
		if ok && !c.Payable(method) {
			return nil, fmt.Errorf("%w: %s", ErrNotPayable, method)
		}
		if err := tx.move(caller, to, value); err != nil {
			return nil, err
		}
	}

	tx.frames = append(tx.frames, frame{caller: caller, self: to, value: value})
	defer func() { tx.frames = tx.frames[:len(tx.frames)-1] }()
	return fn()
}

// invoke dispatches method on the contract at to. A call with no method
// to a plain account is a native transfer and returns nil.
func (tx *Txn) invoke(to types.Address, method string, args json.RawMessage) (any, error) {
	c, ok, err := tx.contractAt(to)
	if err != nil {
		return nil, err
	}
	if !ok {
		if method == "" {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %s", ErrUnknownContract, to)
	}
	return c.Invoke(tx, method, args)
}

// Call invokes method on another contract with the running contract as
// caller, attaching value from its balance. args is JSON-encoded.
func (tx *Txn) Call(to types.Address, method string, args any, value *big.Int) (any, error) {
	raw, err := encodeArgs(args)
	if err != nil {
		return nil, err
	}
	return tx.enter(tx.Self(), to, method, value, func() (any, error) {
		return tx.invoke(to, method, raw)
	})
}

// Deploy creates a contract of the given kind. Its address derives from
// the running contract's address and deployment nonce; init runs with
// the new contract as Self and the deployer as Caller.
func (tx *Txn) Deploy(kind string, init func(tx *Txn) error) (types.Address, error) {
	if tx.readOnly {
		return types.Address{}, ErrReadOnly
	}
	if _, ok := tx.l.kinds[kind]; !ok {
		return types.Address{}, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}

	deployer := tx.Self()
	acct, err := tx.account(deployer)
	if err != nil {
		return types.Address{}, err
	}
	addr := crypto.ContractAddress(deployer, acct.Nonce)
	if existing, err := tx.KindOf(addr); err != nil {
		return types.Address{}, err
	} else if existing != "" {
		return types.Address{}, fmt.Errorf("%w: %s", ErrAddressInUse, addr)
	}

	acct.Nonce++
	if err := tx.setAccount(deployer, acct); err != nil {
		return types.Address{}, err
	}
	if err := tx.putRaw(kindKey(addr), []byte(kind)); err != nil {
		return types.Address{}, err
	}
	if init != nil {
		_, err := tx.enter(deployer, addr, "", nil, func() (any, error) {
			return nil, init(tx)
		})
		if err != nil {
			return types.Address{}, err
		}
	}
	return addr, nil
}

// Emit records an event from the running contract. Events are stored
// and delivered to subscribers only if the call commits.
func (tx *Txn) Emit(name string, data any) error {
	if tx.readOnly {
		return ErrReadOnly
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encode event %s: %w", name, err)
	}
	tx.events = append(tx.events, Event{
		Seq:      tx.l.nextEvent + uint64(len(tx.events)),
		Height:   tx.height,
		Contract: tx.Self(),
		Name:     name,
		Data:     raw,
	})
	return nil
}

// Events returns the events emitted so far in this call.
func (tx *Txn) Events() []Event {
	out := make([]Event, len(tx.events))
	copy(out, tx.events)
	return out
}

func encodeArgs(args any) (json.RawMessage, error) {
	switch a := args.(type) {
	case nil:
		return nil, nil
	case json.RawMessage:
		return a, nil
	default:
		raw, err := json.Marshal(a)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidArgs, err)
		}
		return raw, nil
	}
}

// DecodeArgs unmarshals call arguments, mapping failures to ErrInvalidArgs.
func DecodeArgs(args json.RawMessage, v any) error {
	if len(args) == 0 {
		args = json.RawMessage("{}")
	}
	if err := json.Unmarshal(args, v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidArgs, err)
	}
	return nil
}
