// Package ledger implements the single sequential ledger that every
// contract call runs on.
//
// Mutating calls hold one exclusive lock for their whole execution and
// commit their writes, events and receipt as one atomic storage batch.
// A failing call leaves no trace in contract state.
package ledger

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/rs/zerolog"

	"github.com/Klingon-tech/klingnet-launchpad/config"
	klog "github.com/Klingon-tech/klingnet-launchpad/internal/log"
	"github.com/Klingon-tech/klingnet-launchpad/internal/storage"
	"github.com/Klingon-tech/klingnet-launchpad/pkg/call"
	"github.com/Klingon-tech/klingnet-launchpad/pkg/types"
)

// Contract is the behavior shared by every deployed instance of a kind.
// Instance state lives in the Txn's contract storage keyed by tx.Self().
type Contract interface {
	// Invoke runs method with JSON-encoded args.
	Invoke(tx *Txn, method string, args json.RawMessage) (any, error)
	// Payable reports whether method accepts attached native value.
	// The empty method stands for a plain native transfer.
	Payable(method string) bool
}

// Message is an authenticated request to run a method at To.
type Message struct {
	From   types.Address
	To     types.Address
	Method string
	Args   json.RawMessage
	Value  *big.Int
}

// Result is the outcome of a committed call.
type Result struct {
	Height uint64
	Value  any
	Events []Event
}

// CallObserver is notified after every executed call, committed or not.
type CallObserver func(msg Message, err error)

// Ledger is the sequential state machine.
type Ledger struct {
	mu       sync.RWMutex // Held exclusively by mutating calls.
	notifyMu sync.Mutex   // Orders subscriber delivery across calls.

	db        storage.Store
	chainID   string
	height    uint64
	nextEvent uint64
	kinds     map[string]Contract

	subsMu    sync.RWMutex
	subs      []func(Event)
	observers []CallObserver

	logger zerolog.Logger
}

// New opens a ledger over db, recovering height and counters.
func New(db storage.Store) (*Ledger, error) {
	if db == nil {
		return nil, fmt.Errorf("storage db is nil")
	}
	l := &Ledger{
		db:     db,
		kinds:  make(map[string]Contract),
		logger: klog.Ledger,
	}

	var err error
	if l.height, err = readUint64(db, keyHeight); err != nil {
		return nil, fmt.Errorf("recover height: %w", err)
	}
	if l.nextEvent, err = readUint64(db, keyNextEvent); err != nil {
		return nil, fmt.Errorf("recover event sequence: %w", err)
	}
	chainID, err := db.Get(keyChainID)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("recover chain id: %w", err)
	}
	l.chainID = string(chainID)
	return l, nil
}

func readUint64(db storage.DB, key []byte) (uint64, error) {
	data, err := db.Get(key)
	if errors.Is(err, storage.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	if len(data) != 8 {
		return 0, fmt.Errorf("corrupt counter %q", key)
	}
	return binary.BigEndian.Uint64(data), nil
}

// RegisterKind makes a contract kind deployable. Kinds must be
// registered before the ledger serves calls.
func (l *Ledger) RegisterKind(kind string, c Contract) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.kinds[kind] = c
}

// Subscribe registers fn to receive every committed event in order.
// fn runs synchronously after the commit; it may read the ledger but
// must not submit calls.
func (l *Ledger) Subscribe(fn func(Event)) {
	l.subsMu.Lock()
	defer l.subsMu.Unlock()
	l.subs = append(l.subs, fn)
}

// Observe registers fn to be told about every executed call.
func (l *Ledger) Observe(fn CallObserver) {
	l.subsMu.Lock()
	defer l.subsMu.Unlock()
	l.observers = append(l.observers, fn)
}

// ChainID returns the chain identifier set by genesis.
func (l *Ledger) ChainID() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.chainID
}

// Height returns the number of committed calls since genesis.
func (l *Ledger) Height() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.height
}

// Initialized reports whether genesis has been applied.
func (l *Ledger) Initialized() (bool, error) {
	return l.db.Has(keyGenesis)
}

// InitFromGenesis applies genesis allocations and runs install with the
// owner as the running account, so contracts it deploys derive their
// addresses from the owner. On a ledger already initialized from the
// same genesis it does nothing.
func (l *Ledger) InitFromGenesis(gen *config.Genesis, install func(tx *Txn) error) error {
	if err := gen.Validate(); err != nil {
		return fmt.Errorf("invalid genesis: %w", err)
	}
	hash, err := gen.Hash()
	if err != nil {
		return fmt.Errorf("hash genesis: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	existing, err := l.db.Get(keyGenesis)
	switch {
	case err == nil:
		if len(existing) != types.HashSize || types.Hash(existing) != hash {
			return ErrGenesisMismatch
		}
		return nil
	case !errors.Is(err, storage.ErrNotFound):
		return fmt.Errorf("read genesis marker: %w", err)
	}

	owner, _ := gen.OwnerAddress()
	alloc, _ := gen.Allocations()

	tx := l.newTxn(false, owner)
	tx.height = 0
	for addr, amount := range alloc {
		acct, err := tx.account(addr)
		if err != nil {
			return err
		}
		acct.Balance = new(big.Int).Add(acct.Balance, amount)
		if err := tx.setAccount(addr, acct); err != nil {
			return err
		}
	}
	l.chainID = gen.ChainID
	if install != nil {
		_, err := tx.enter(types.Address{}, owner, "", nil, func() (any, error) {
			return nil, install(tx)
		})
		if err != nil {
			l.chainID = ""
			return fmt.Errorf("genesis install: %w", err)
		}
	}
	tx.putRaw(keyGenesis, hash[:])
	tx.putRaw(keyChainID, []byte(gen.ChainID))

	if err := l.commit(tx); err != nil {
		l.chainID = ""
		return err
	}
	l.logger.Info().
		Str("chain_id", gen.ChainID).
		Str("owner", owner.String()).
		Int("allocations", len(alloc)).
		Msg("Genesis applied")
	return nil
}

// commit writes the overlay, its events and the new counters in one
// batch. On success the in-memory counters advance. Caller holds mu.
func (l *Ledger) commit(tx *Txn) error {
	defer klog.Benchmark("commit")()

	for _, ev := range tx.events {
		if err := tx.putJSON(eventKey(ev.Seq), ev); err != nil {
			return err
		}
	}
	next := l.nextEvent + uint64(len(tx.events))
	if err := tx.putRaw(keyHeight, binary.BigEndian.AppendUint64(nil, tx.height)); err != nil {
		return err
	}
	if err := tx.putRaw(keyNextEvent, binary.BigEndian.AppendUint64(nil, next)); err != nil {
		return err
	}

	batch := l.db.NewBatch()
	for _, k := range tx.order {
		v := tx.writes[k]
		var err error
		if v == nil {
			err = batch.Delete([]byte(k))
		} else {
			err = batch.Put([]byte(k), v)
		}
		if err != nil {
			return fmt.Errorf("stage write: %w", err)
		}
	}
	if err := batch.Commit(); err != nil {
		return fmt.Errorf("commit height %d: %w", tx.height, err)
	}
	l.height = tx.height
	l.nextEvent = next
	return nil
}

// run executes msg against a fresh overlay. Caller holds mu.
func (l *Ledger) run(msg Message, fn func(tx *Txn) (any, error)) (*Txn, any, error) {
	tx := l.newTxn(false, msg.From)
	res, err := tx.enter(msg.From, msg.To, msg.Method, msg.Value, func() (any, error) {
		if fn != nil {
			return fn(tx)
		}
		return tx.invoke(msg.To, msg.Method, msg.Args)
	})
	return tx, res, err
}

// release unlocks mu and delivers events in commit order.
func (l *Ledger) release(msg Message, events []Event, err error) {
	l.notifyMu.Lock()
	l.mu.Unlock()
	defer l.notifyMu.Unlock()

	l.subsMu.RLock()
	subs := l.subs
	observers := l.observers
	l.subsMu.RUnlock()

	for _, ev := range events {
		for _, fn := range subs {
			fn(ev)
		}
	}
	for _, fn := range observers {
		fn(msg, err)
	}
}

// Execute runs fn as a single call from msg.From to msg.To, attaching
// msg.Value. With a nil fn the contract at msg.To is invoked with
// msg.Method and msg.Args. Either every write, transfer and event of the
// call commits, or the call returns an error and nothing changes.
func (l *Ledger) Execute(msg Message, fn func(tx *Txn) (any, error)) (*Result, error) {
	l.mu.Lock()
	if l.chainID == "" {
		l.mu.Unlock()
		return nil, ErrNotInitialized
	}

	tx, res, err := l.run(msg, fn)
	if err == nil {
		err = l.commit(tx)
	}
	if err != nil {
		l.logger.Debug().Err(err).
			Str("from", msg.From.String()).
			Str("to", msg.To.String()).
			Str("method", msg.Method).
			Msg("Call failed")
		l.release(msg, nil, err)
		return nil, err
	}

	out := &Result{Height: tx.height, Value: res, Events: tx.Events()}
	l.release(msg, out.Events, nil)
	return out, nil
}

// Apply invokes msg.Method on the contract at msg.To.
func (l *Ledger) Apply(msg Message) (*Result, error) {
	return l.Execute(msg, nil)
}

// Submit executes a signed call. Calls with a bad signature, wrong chain
// or wrong nonce are rejected without a trace. Otherwise the nonce is
// consumed and a receipt is stored whether or not execution succeeds:
// a reverted call keeps only the nonce bump and the receipt. The
// returned error reports the execution failure of a recorded call.
func (l *Ledger) Submit(c *call.Call) (*Receipt, error) {
	if err := c.Verify(); err != nil {
		return nil, err
	}
	from := c.Sender()
	msg := Message{From: from, To: c.To, Method: c.Method, Args: c.Args, Value: c.AttachedValue()}

	l.mu.Lock()
	if l.chainID == "" {
		l.mu.Unlock()
		return nil, ErrNotInitialized
	}
	if c.ChainID != l.chainID {
		l.mu.Unlock()
		return nil, fmt.Errorf("%w: got %q, ledger is %q", ErrWrongChain, c.ChainID, l.chainID)
	}

	probe := l.newTxn(true, from)
	acct, err := probe.account(from)
	if err != nil {
		l.mu.Unlock()
		return nil, err
	}
	if c.Nonce != acct.Nonce {
		l.mu.Unlock()
		return nil, fmt.Errorf("%w: got %d, expected %d", ErrBadNonce, c.Nonce, acct.Nonce)
	}

	tx, res, execErr := l.run(msg, nil)
	var result json.RawMessage
	if execErr == nil && res != nil {
		if result, err = json.Marshal(res); err != nil {
			execErr = fmt.Errorf("encode result: %w", err)
		}
	}
	if execErr != nil {
		tx = l.newTxn(false, from)
		result = nil
	}

	acct, err = tx.account(from)
	if err != nil {
		l.mu.Unlock()
		return nil, err
	}
	acct.Nonce++
	if err := tx.setAccount(from, acct); err != nil {
		l.release(msg, nil, err)
		return nil, err
	}

	rcpt := &Receipt{
		CallHash: c.Hash(),
		From:     from,
		To:       c.To,
		Method:   c.Method,
		Nonce:    c.Nonce,
		Height:   tx.height,
		Status:   StatusOK,
		Result:   result,
		Events:   tx.Events(),
	}
	if execErr != nil {
		rcpt.Status = StatusReverted
		rcpt.Error = execErr.Error()
	}
	if err := tx.putJSON(receiptKey(rcpt.CallHash), rcpt); err != nil {
		l.release(msg, nil, err)
		return nil, err
	}

	if err := l.commit(tx); err != nil {
		l.release(msg, nil, err)
		return nil, err
	}

	lvl := zerolog.InfoLevel
	if execErr != nil {
		lvl = zerolog.DebugLevel
	}
	l.logger.WithLevel(lvl).Err(execErr).
		Str("call", rcpt.CallHash.String()).
		Str("from", from.String()).
		Str("method", c.Method).
		Uint64("height", rcpt.Height).
		Str("status", rcpt.Status).
		Msg("Call recorded")

	l.release(msg, rcpt.Events, execErr)
	return rcpt, execErr
}

// View runs fn against a read-only snapshot of committed state.
func (l *Ledger) View(fn func(tx *Txn) error) error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return fn(l.newTxn(true, types.Address{}))
}

// Query invokes a read-only method on the contract at to. Any attempt
// to write fails with ErrReadOnly.
func (l *Ledger) Query(from, to types.Address, method string, args any) (any, error) {
	raw, err := encodeArgs(args)
	if err != nil {
		return nil, err
	}
	var out any
	err = l.View(func(tx *Txn) error {
		res, err := tx.enter(from, to, method, nil, func() (any, error) {
			return tx.invoke(to, method, raw)
		})
		out = res
		return err
	})
	return out, err
}

// Account returns the committed native state of addr.
func (l *Ledger) Account(addr types.Address) (Account, error) {
	var acct Account
	err := l.View(func(tx *Txn) error {
		var err error
		acct, err = tx.account(addr)
		return err
	})
	return acct, err
}

// KindOf returns the contract kind at addr, or "" for a plain account.
func (l *Ledger) KindOf(addr types.Address) (string, error) {
	var kind string
	err := l.View(func(tx *Txn) error {
		var err error
		kind, err = tx.KindOf(addr)
		return err
	})
	return kind, err
}

// Receipt returns the stored receipt of a submitted call.
func (l *Ledger) Receipt(hash types.Hash) (*Receipt, error) {
	data, err := l.db.Get(receiptKey(hash))
	if err != nil {
		return nil, err
	}
	var r Receipt
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("decode receipt: %w", err)
	}
	return &r, nil
}

// Events returns committed events with Seq >= from, in order, optionally
// filtered by name. limit <= 0 means no limit.
func (l *Ledger) Events(from uint64, limit int, name string) ([]Event, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []Event
	errStop := errors.New("stop")
	err := l.db.ForEachFrom(prefixEvent, eventKey(from), func(key, value []byte) error {
		if len(key) != len(prefixEvent)+8 {
			return nil
		}
		var ev Event
		if err := json.Unmarshal(value, &ev); err != nil {
			return fmt.Errorf("decode event: %w", err)
		}
		if name != "" && ev.Name != name {
			return nil
		}
		out = append(out, ev)
		if limit > 0 && len(out) >= limit {
			return errStop
		}
		return nil
	})
	if err != nil && !errors.Is(err, errStop) {
		return nil, err
	}
	return out, nil
}
