package ledger

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"testing"

	"github.com/Klingon-tech/klingnet-launchpad/config"
	klog "github.com/Klingon-tech/klingnet-launchpad/internal/log"
	"github.com/Klingon-tech/klingnet-launchpad/internal/storage"
	"github.com/Klingon-tech/klingnet-launchpad/pkg/call"
	"github.com/Klingon-tech/klingnet-launchpad/pkg/crypto"
	"github.com/Klingon-tech/klingnet-launchpad/pkg/types"
)

var errBoom = errors.New("boom")

// counter is a small contract used to exercise the ledger.
type counter struct{}

func (counter) Payable(method string) bool { return method == "deposit" }

func (counter) Invoke(tx *Txn, method string, args json.RawMessage) (any, error) {
	switch method {
	case "inc", "deposit":
		n, err := readCount(tx)
		if err != nil {
			return nil, err
		}
		n++
		if err := tx.Put([]byte("n"), binary.BigEndian.AppendUint64(nil, n)); err != nil {
			return nil, err
		}
		if err := tx.Emit("inc", map[string]uint64{"n": n}); err != nil {
			return nil, err
		}
		return n, nil
	case "get":
		return readCount(tx)
	case "fail":
		tx.Put([]byte("n"), binary.BigEndian.AppendUint64(nil, 999))
		tx.Emit("inc", nil)
		return nil, errBoom
	case "pay":
		var a struct {
			To     types.Address `json:"to"`
			Amount string        `json:"amount"`
		}
		if err := DecodeArgs(args, &a); err != nil {
			return nil, err
		}
		amt, _ := new(big.Int).SetString(a.Amount, 10)
		return nil, tx.Transfer(a.To, amt)
	case "spawn":
		return tx.Deploy("counter", func(child *Txn) error {
			return child.Put([]byte("n"), binary.BigEndian.AppendUint64(nil, 100))
		})
	case "poke":
		var a struct {
			Target types.Address `json:"target"`
		}
		if err := DecodeArgs(args, &a); err != nil {
			return nil, err
		}
		return tx.Call(a.Target, "inc", nil, nil)
	case "whoami":
		return tx.Caller(), nil
	}
	return nil, ErrUnknownMethod
}

func readCount(tx *Txn) (uint64, error) {
	data, err := tx.Get([]byte("n"))
	if errors.Is(err, storage.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(data), nil
}

type env struct {
	l       *Ledger
	db      *storage.MemoryDB
	gen     *config.Genesis
	owner   types.Address
	ownerSK *crypto.PrivateKey
	counter types.Address
}

func coins(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), types.Coin())
}

func setup(t *testing.T) *env {
	t.Helper()
	klog.Init("error", false, "")

	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatal(err)
	}
	owner := crypto.AddressFromPubKey(key.PublicKey())
	gen := config.TestnetGenesis()
	gen.Owner = owner.String()
	gen.Alloc = map[string]string{owner.String(): coins(10).String()}

	db := storage.NewMemory()
	l, err := New(db)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	l.RegisterKind("counter", counter{})

	var addr types.Address
	err = l.InitFromGenesis(gen, func(tx *Txn) error {
		var err error
		addr, err = tx.Deploy("counter", nil)
		return err
	})
	if err != nil {
		t.Fatalf("InitFromGenesis: %v", err)
	}
	return &env{l: l, db: db, gen: gen, owner: owner, ownerSK: key, counter: addr}
}

func (e *env) balance(t *testing.T, addr types.Address) *big.Int {
	t.Helper()
	acct, err := e.l.Account(addr)
	if err != nil {
		t.Fatalf("Account: %v", err)
	}
	return acct.Balance
}

func (e *env) count(t *testing.T, addr types.Address) uint64 {
	t.Helper()
	v, err := e.l.Query(types.Address{}, addr, "get", nil)
	if err != nil {
		t.Fatalf("Query get: %v", err)
	}
	return v.(uint64)
}

func TestGenesis(t *testing.T) {
	e := setup(t)

	if e.counter != crypto.ContractAddress(e.owner, 0) {
		t.Errorf("genesis contract at %s, want ContractAddress(owner, 0)", e.counter)
	}
	if e.balance(t, e.owner).Cmp(coins(10)) != 0 {
		t.Errorf("owner balance = %s, want 10 coins", e.balance(t, e.owner))
	}
	if e.l.ChainID() != e.gen.ChainID {
		t.Errorf("chain id = %q", e.l.ChainID())
	}
	if kind, _ := e.l.KindOf(e.counter); kind != "counter" {
		t.Errorf("kind = %q, want counter", kind)
	}
	// The genesis deployment spends the owner's first nonce.
	if acct, err := e.l.Account(e.owner); err != nil || acct.Nonce != 1 {
		t.Errorf("owner nonce after genesis = %d, %v; want 1", acct.Nonce, err)
	}

	// Same genesis again is a no-op.
	if err := e.l.InitFromGenesis(e.gen, nil); err != nil {
		t.Errorf("re-init with same genesis: %v", err)
	}
	if e.balance(t, e.owner).Cmp(coins(10)) != 0 {
		t.Error("re-init must not credit allocations twice")
	}

	other := *e.gen
	other.ChainID = "other-chain"
	if err := e.l.InitFromGenesis(&other, nil); !errors.Is(err, ErrGenesisMismatch) {
		t.Errorf("different genesis: got %v, want ErrGenesisMismatch", err)
	}
}

func TestExecute_NotInitialized(t *testing.T) {
	l, _ := New(storage.NewMemory())
	if _, err := l.Apply(Message{Method: "inc"}); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("got %v, want ErrNotInitialized", err)
	}
}

func TestExecute_Commit(t *testing.T) {
	e := setup(t)
	before := e.l.Height()

	res, err := e.l.Apply(Message{From: e.owner, To: e.counter, Method: "inc"})
	if err != nil {
		t.Fatalf("inc: %v", err)
	}
	if res.Value.(uint64) != 1 {
		t.Errorf("result = %v, want 1", res.Value)
	}
	if res.Height != before+1 || e.l.Height() != before+1 {
		t.Errorf("height = %d, want %d", e.l.Height(), before+1)
	}
	if len(res.Events) != 1 || res.Events[0].Contract != e.counter {
		t.Errorf("events = %+v", res.Events)
	}
	if e.count(t, e.counter) != 1 {
		t.Error("write not committed")
	}
}

func TestExecute_RollbackOnError(t *testing.T) {
	e := setup(t)
	e.l.Apply(Message{From: e.owner, To: e.counter, Method: "inc"})
	height := e.l.Height()

	var got []Event
	e.l.Subscribe(func(ev Event) { got = append(got, ev) })

	_, err := e.l.Apply(Message{From: e.owner, To: e.counter, Method: "fail"})
	if !errors.Is(err, errBoom) {
		t.Fatalf("fail: got %v, want errBoom", err)
	}
	if e.count(t, e.counter) != 1 {
		t.Error("failed call leaked a write")
	}
	if e.l.Height() != height {
		t.Error("failed call advanced the height")
	}
	if len(got) != 0 {
		t.Error("failed call delivered events")
	}
	evs, _ := e.l.Events(0, 0, "")
	if len(evs) != 1 {
		t.Errorf("stored events = %d, want 1", len(evs))
	}
}

func TestExecute_Value(t *testing.T) {
	e := setup(t)

	_, err := e.l.Apply(Message{From: e.owner, To: e.counter, Method: "deposit", Value: coins(2)})
	if err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if e.balance(t, e.counter).Cmp(coins(2)) != 0 {
		t.Errorf("contract balance = %s, want 2 coins", e.balance(t, e.counter))
	}
	if e.balance(t, e.owner).Cmp(coins(8)) != 0 {
		t.Errorf("owner balance = %s, want 8 coins", e.balance(t, e.owner))
	}

	_, err = e.l.Apply(Message{From: e.owner, To: e.counter, Method: "inc", Value: coins(1)})
	if !errors.Is(err, ErrNotPayable) {
		t.Errorf("value to non-payable method: got %v, want ErrNotPayable", err)
	}

	_, err = e.l.Apply(Message{From: e.owner, To: e.counter, Method: "deposit", Value: coins(100)})
	if !errors.Is(err, ErrInsufficientFunds) {
		t.Errorf("overspend: got %v, want ErrInsufficientFunds", err)
	}
	if e.balance(t, e.owner).Cmp(coins(8)) != 0 {
		t.Error("rejected calls must not move value")
	}
}

func TestExecute_PlainTransfer(t *testing.T) {
	e := setup(t)
	bob := types.Address{0xb0}

	if _, err := e.l.Apply(Message{From: e.owner, To: bob, Value: coins(3)}); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if e.balance(t, bob).Cmp(coins(3)) != 0 {
		t.Errorf("bob balance = %s", e.balance(t, bob))
	}
	if _, err := e.l.Apply(Message{From: e.owner, To: bob, Method: "inc"}); !errors.Is(err, ErrUnknownContract) {
		t.Errorf("method on plain account: got %v, want ErrUnknownContract", err)
	}
}

func TestTxn_TransferRejectedByContract(t *testing.T) {
	e := setup(t)
	e.l.Apply(Message{From: e.owner, To: e.counter, Method: "deposit", Value: coins(2)})

	res, err := e.l.Apply(Message{From: e.owner, To: e.counter, Method: "spawn"})
	if err != nil {
		t.Fatalf("spawn: %v", err)
	}
	child := res.Value.(types.Address)

	args := json.RawMessage(fmt.Sprintf(`{"to":%q,"amount":%q}`, child, coins(1).String()))
	_, err = e.l.Apply(Message{From: e.owner, To: e.counter, Method: "pay", Args: args})
	if !errors.Is(err, ErrTransferRejected) {
		t.Errorf("pay to contract: got %v, want ErrTransferRejected", err)
	}

	bob := types.Address{0xb0}
	args = json.RawMessage(fmt.Sprintf(`{"to":%q,"amount":%q}`, bob, coins(1).String()))
	if _, err := e.l.Apply(Message{From: e.owner, To: e.counter, Method: "pay", Args: args}); err != nil {
		t.Fatalf("pay to account: %v", err)
	}
	if e.balance(t, bob).Cmp(coins(1)) != 0 || e.balance(t, e.counter).Cmp(coins(1)) != 0 {
		t.Error("contract payout not applied")
	}
}

func TestTxn_DeployAndNestedCall(t *testing.T) {
	e := setup(t)

	res, err := e.l.Apply(Message{From: e.owner, To: e.counter, Method: "spawn"})
	if err != nil {
		t.Fatalf("spawn: %v", err)
	}
	child := res.Value.(types.Address)
	if child != crypto.ContractAddress(e.counter, 0) {
		t.Errorf("child at %s, want ContractAddress(parent, 0)", child)
	}
	if e.count(t, child) != 100 {
		t.Error("init did not write to child storage")
	}

	res, _ = e.l.Apply(Message{From: e.owner, To: e.counter, Method: "spawn"})
	if res.Value.(types.Address) != crypto.ContractAddress(e.counter, 1) {
		t.Error("second deployment should use nonce 1")
	}

	args := json.RawMessage(fmt.Sprintf(`{"target":%q}`, child))
	if _, err := e.l.Apply(Message{From: e.owner, To: e.counter, Method: "poke", Args: args}); err != nil {
		t.Fatalf("poke: %v", err)
	}
	if e.count(t, child) != 101 || e.count(t, e.counter) != 0 {
		t.Error("nested call wrote to the wrong storage")
	}

	who, err := e.l.Query(e.owner, e.counter, "whoami", nil)
	if err != nil || who.(types.Address) != e.owner {
		t.Errorf("whoami = %v, %v", who, err)
	}
}

func TestView_ReadOnly(t *testing.T) {
	e := setup(t)
	err := e.l.View(func(tx *Txn) error {
		return tx.Namespace("x/").Put([]byte("k"), []byte("v"))
	})
	if !errors.Is(err, ErrReadOnly) {
		t.Errorf("write in View: got %v, want ErrReadOnly", err)
	}
	if _, err := e.l.Query(e.owner, e.counter, "inc", nil); !errors.Is(err, ErrReadOnly) {
		t.Errorf("mutating Query: got %v, want ErrReadOnly", err)
	}
}

func signed(t *testing.T, e *env, nonce uint64, method string) *call.Call {
	t.Helper()
	c, err := call.New(e.gen.ChainID, nonce, e.counter, method, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := c.Sign(e.ownerSK); err != nil {
		t.Fatal(err)
	}
	return c
}

func TestSubmit(t *testing.T) {
	e := setup(t)
	// Genesis deployment used nonce 0.
	start := uint64(1)

	rcpt, err := e.l.Submit(signed(t, e, start, "inc"))
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if rcpt.Status != StatusOK || string(rcpt.Result) != "1" {
		t.Errorf("receipt = %+v", rcpt)
	}

	stored, err := e.l.Receipt(rcpt.CallHash)
	if err != nil {
		t.Fatalf("Receipt: %v", err)
	}
	if stored.Height != rcpt.Height || len(stored.Events) != 1 {
		t.Errorf("stored receipt = %+v", stored)
	}

	if _, err := e.l.Submit(signed(t, e, start, "inc")); !errors.Is(err, ErrBadNonce) {
		t.Errorf("replay: got %v, want ErrBadNonce", err)
	}

	rcpt, err = e.l.Submit(signed(t, e, start+1, "fail"))
	if !errors.Is(err, errBoom) {
		t.Fatalf("failing submit: got %v, want errBoom", err)
	}
	if rcpt == nil || rcpt.Status != StatusReverted || rcpt.Error == "" {
		t.Fatalf("reverted receipt = %+v", rcpt)
	}
	if len(rcpt.Events) != 0 {
		t.Error("reverted receipt must not carry events")
	}
	acct, _ := e.l.Account(e.owner)
	if acct.Nonce != start+2 {
		t.Errorf("nonce = %d, want %d (consumed by the reverted call)", acct.Nonce, start+2)
	}
	if e.count(t, e.counter) != 1 {
		t.Error("reverted call leaked state")
	}
}

func TestSubmit_Rejections(t *testing.T) {
	e := setup(t)

	c := signed(t, e, 1, "inc")
	c.Nonce = 2 // invalidates the signature
	if _, err := e.l.Submit(c); !errors.Is(err, call.ErrBadSignature) {
		t.Errorf("tampered call: got %v, want ErrBadSignature", err)
	}

	c, _ = call.New("other-chain", 1, e.counter, "inc", nil, nil)
	c.Sign(e.ownerSK)
	if _, err := e.l.Submit(c); !errors.Is(err, ErrWrongChain) {
		t.Errorf("foreign chain: got %v, want ErrWrongChain", err)
	}

	acct, _ := e.l.Account(e.owner)
	if acct.Nonce != 1 {
		t.Errorf("rejected calls must not consume the nonce, got %d", acct.Nonce)
	}
}

// failingStore fails batch commits while fail is set.
type failingStore struct {
	*storage.MemoryDB
	fail bool
}

func (s *failingStore) NewBatch() storage.Batch {
	return &failingBatch{Batch: s.MemoryDB.NewBatch(), store: s}
}

type failingBatch struct {
	storage.Batch
	store *failingStore
}

func (b *failingBatch) Commit() error {
	if b.store.fail {
		return errBoom
	}
	return b.Batch.Commit()
}

func TestSubmit_StoreFailure(t *testing.T) {
	e := setup(t)
	fs := &failingStore{MemoryDB: e.db, fail: true}
	l, err := New(fs)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	l.RegisterKind("counter", counter{})

	var observed error
	l.Observe(func(_ Message, err error) { observed = err })
	if _, err := l.Submit(signed(t, e, 1, "inc")); !errors.Is(err, errBoom) {
		t.Fatalf("Submit with failing store: got %v, want errBoom", err)
	}
	if !errors.Is(observed, errBoom) {
		t.Errorf("observer saw %v, want errBoom", observed)
	}
	if _, err := l.Receipt(signed(t, e, 1, "inc").Hash()); err == nil {
		t.Error("receipt stored by a failed commit")
	}

	// The lock was released and nothing was consumed.
	fs.fail = false
	rcpt, err := l.Submit(signed(t, e, 1, "inc"))
	if err != nil {
		t.Fatalf("Submit after recovery: %v", err)
	}
	if rcpt.Nonce != 1 {
		t.Errorf("receipt nonce = %d, want 1", rcpt.Nonce)
	}
	if acct, _ := l.Account(e.owner); acct.Nonce != 2 {
		t.Errorf("nonce = %d, want 2", acct.Nonce)
	}
}

func TestEvents_OrderAndFilter(t *testing.T) {
	e := setup(t)
	var delivered []uint64
	e.l.Subscribe(func(ev Event) { delivered = append(delivered, ev.Seq) })

	for i := 0; i < 5; i++ {
		if _, err := e.l.Apply(Message{From: e.owner, To: e.counter, Method: "inc"}); err != nil {
			t.Fatal(err)
		}
	}

	all, err := e.l.Events(0, 0, "")
	if err != nil {
		t.Fatalf("Events: %v", err)
	}
	if len(all) != 5 {
		t.Fatalf("events = %d, want 5", len(all))
	}
	for i, ev := range all {
		if ev.Seq != uint64(i) || delivered[i] != uint64(i) {
			t.Errorf("event %d has seq %d (delivered %d)", i, ev.Seq, delivered[i])
		}
	}

	page, _ := e.l.Events(2, 2, "inc")
	if len(page) != 2 || page[0].Seq != 2 || page[1].Seq != 3 {
		t.Errorf("page = %+v", page)
	}
	if tail, _ := e.l.Events(4, 0, ""); len(tail) != 1 || tail[0].Seq != 4 {
		t.Errorf("tail from 4 = %+v", tail)
	}
	if past, _ := e.l.Events(9, 0, ""); len(past) != 0 {
		t.Errorf("events past the end = %+v", past)
	}
	if none, _ := e.l.Events(0, 0, "purchase"); len(none) != 0 {
		t.Error("name filter not applied")
	}
}

func TestExecute_Concurrent(t *testing.T) {
	e := setup(t)
	const workers, each = 8, 25

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < each; i++ {
				if _, err := e.l.Apply(Message{From: e.owner, To: e.counter, Method: "inc"}); err != nil {
					t.Error(err)
					return
				}
			}
		}()
	}
	wg.Wait()

	if got := e.count(t, e.counter); got != workers*each {
		t.Errorf("count = %d, want %d (lost updates)", got, workers*each)
	}
}

func TestObserve(t *testing.T) {
	e := setup(t)
	var failed, ok int
	e.l.Observe(func(msg Message, err error) {
		if err != nil {
			failed++
		} else {
			ok++
		}
	})
	e.l.Apply(Message{From: e.owner, To: e.counter, Method: "inc"})
	e.l.Apply(Message{From: e.owner, To: e.counter, Method: "fail"})
	if ok != 1 || failed != 1 {
		t.Errorf("observed ok=%d failed=%d", ok, failed)
	}
}

func TestLedger_Reopen(t *testing.T) {
	dir := t.TempDir()
	db, err := storage.NewBadger(dir)
	if err != nil {
		t.Fatal(err)
	}

	gen := config.TestnetGenesis()
	l, _ := New(db)
	l.RegisterKind("counter", counter{})
	var addr types.Address
	l.InitFromGenesis(gen, func(tx *Txn) error {
		addr, err = tx.Deploy("counter", nil)
		return err
	})
	owner, _ := gen.OwnerAddress()
	l.Apply(Message{From: owner, To: addr, Method: "inc"})
	l.Apply(Message{From: owner, To: addr, Method: "inc"})
	height := l.Height()
	db.Close()

	db, err = storage.NewBadger(dir)
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	l, err = New(db)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	l.RegisterKind("counter", counter{})

	if l.Height() != height || l.ChainID() != gen.ChainID {
		t.Errorf("recovered height=%d chain=%q, want %d %q", l.Height(), l.ChainID(), height, gen.ChainID)
	}
	res, err := l.Apply(Message{From: owner, To: addr, Method: "inc"})
	if err != nil {
		t.Fatal(err)
	}
	if res.Value.(uint64) != 3 || res.Events[0].Seq != 2 {
		t.Errorf("after reopen: value=%v seq=%d", res.Value, res.Events[0].Seq)
	}
}
