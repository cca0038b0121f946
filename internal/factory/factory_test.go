package factory

import (
	"encoding/json"
	"errors"
	"math"
	"math/big"
	"sync"
	"testing"

	"github.com/Klingon-tech/klingnet-launchpad/config"
	"github.com/Klingon-tech/klingnet-launchpad/internal/fhe"
	"github.com/Klingon-tech/klingnet-launchpad/internal/ledger"
	"github.com/Klingon-tech/klingnet-launchpad/internal/storage"
	"github.com/Klingon-tech/klingnet-launchpad/internal/token"
	"github.com/Klingon-tech/klingnet-launchpad/pkg/call"
	"github.com/Klingon-tech/klingnet-launchpad/pkg/crypto"
	"github.com/Klingon-tech/klingnet-launchpad/pkg/types"
)

type env struct {
	l       *ledger.Ledger
	cop     *fhe.Coprocessor
	factory types.Address
	owner   types.Address
	alice   types.Address
	bob     types.Address
	aliceSK *crypto.PrivateKey
	chainID string
}

func coins(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), types.Coin())
}

func mustCoin(t *testing.T, s string) *big.Int {
	t.Helper()
	v, err := types.ParseCoin(s)
	if err != nil {
		t.Fatal(err)
	}
	return v
}

func newKeyAddr(t *testing.T) (*crypto.PrivateKey, types.Address) {
	t.Helper()
	k, err := crypto.GenerateKey()
	if err != nil {
		t.Fatal(err)
	}
	return k, crypto.AddressFromPubKey(k.PublicKey())
}

func setup(t *testing.T) *env {
	t.Helper()
	_, owner := newKeyAddr(t)
	aliceSK, alice := newKeyAddr(t)
	_, bob := newKeyAddr(t)

	gen := config.TestnetGenesis()
	gen.Owner = owner.String()
	gen.Alloc = map[string]string{
		alice.String(): coins(100).String(),
		bob.String():   coins(100).String(),
	}

	l, err := ledger.New(storage.NewMemory())
	if err != nil {
		t.Fatal(err)
	}
	netKey, _ := crypto.GenerateKey()
	cop, _ := fhe.NewCoprocessor(netKey)
	l.RegisterKind(token.Kind, token.New(cop))
	l.RegisterKind(Kind, New())

	var addr types.Address
	err = l.InitFromGenesis(gen, func(tx *ledger.Txn) error {
		addr, err = Install(tx)
		return err
	})
	if err != nil {
		t.Fatalf("genesis: %v", err)
	}
	return &env{
		l: l, cop: cop, factory: addr, owner: owner,
		alice: alice, bob: bob, aliceSK: aliceSK, chainID: gen.ChainID,
	}
}

func args(v any) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return data
}

func (e *env) create(from types.Address, name, symbol, supply string) (types.Address, error) {
	res, err := e.l.Apply(ledger.Message{
		From:   from,
		To:     e.factory,
		Method: MethodCreateToken,
		Args:   args(CreateArgs{Name: name, Symbol: symbol, Supply: json.Number(supply)}),
	})
	if err != nil {
		return types.Address{}, err
	}
	return res.Value.(types.Address), nil
}

func (e *env) mustCreate(t *testing.T, from types.Address, supply string) types.Address {
	t.Helper()
	tok, err := e.create(from, "Launch", "LCH", supply)
	if err != nil {
		t.Fatalf("createToken: %v", err)
	}
	return tok
}

func (e *env) buy(from, tok types.Address, payment *big.Int) (uint64, error) {
	res, err := e.l.Apply(ledger.Message{
		From:   from,
		To:     e.factory,
		Method: MethodBuyTokens,
		Args:   args(TokenArgs{Token: tok}),
		Value:  payment,
	})
	if err != nil {
		return 0, err
	}
	return res.Value.(uint64), nil
}

func (e *env) query(t *testing.T, method string, a any) (any, error) {
	t.Helper()
	return e.l.Query(e.alice, e.factory, method, a)
}

func (e *env) remaining(t *testing.T, tok types.Address) uint64 {
	t.Helper()
	v, err := e.query(t, MethodRemaining, TokenArgs{Token: tok})
	if err != nil {
		t.Fatalf("remaining: %v", err)
	}
	return v.(uint64)
}

func (e *env) details(t *testing.T, tok types.Address) *TokenRecord {
	t.Helper()
	v, err := e.query(t, MethodDetails, TokenArgs{Token: tok})
	if err != nil {
		t.Fatalf("details: %v", err)
	}
	return v.(*TokenRecord)
}

func (e *env) balance(t *testing.T, addr types.Address) *big.Int {
	t.Helper()
	acct, err := e.l.Account(addr)
	if err != nil {
		t.Fatal(err)
	}
	return acct.Balance
}

func (e *env) decrypted(t *testing.T, tok, holder types.Address) uint64 {
	t.Helper()
	v, err := e.l.Query(holder, tok, token.MethodBalanceOf, token.HolderArgs{Holder: holder})
	if err != nil {
		t.Fatalf("balanceOf: %v", err)
	}
	h := v.(types.Handle)
	if h.IsZero() {
		return 0
	}
	var out uint64
	err = e.l.View(func(tx *ledger.Txn) error {
		out, err = e.cop.Reveal(tx, h)
		return err
	})
	if err != nil {
		t.Fatalf("reveal: %v", err)
	}
	return out
}

func TestInstall(t *testing.T) {
	e := setup(t)
	if e.factory != crypto.ContractAddress(e.owner, 0) {
		t.Errorf("factory at %s, want ContractAddress(owner, 0)", e.factory)
	}
	v, err := e.query(t, MethodInfo, nil)
	if err != nil {
		t.Fatalf("info: %v", err)
	}
	info := v.(*Info)
	if info.Owner != e.owner || info.Address != e.factory || info.TokenCount != 0 || info.Balance != "0" {
		t.Errorf("info = %+v", info)
	}
}

func TestCreateToken_DefaultSupply(t *testing.T) {
	e := setup(t)

	res, err := e.l.Apply(ledger.Message{
		From:   e.alice,
		To:     e.factory,
		Method: MethodCreateToken,
		Args:   args(CreateArgs{Name: "Moon", Symbol: "MOON"}),
	})
	if err != nil {
		t.Fatalf("createToken: %v", err)
	}
	tok := res.Value.(types.Address)

	if got := e.remaining(t, tok); got != 10_000_000_000_000 {
		t.Errorf("remaining = %d, want 10_000_000_000_000", got)
	}
	rec := e.details(t, tok)
	if rec.Name != "Moon" || rec.Symbol != "MOON" || rec.Creator != e.alice || rec.Token != tok {
		t.Errorf("record = %+v", rec)
	}
	if rec.MaxSupply != 10_000_000_000_000 || rec.MintedSupply != 0 {
		t.Errorf("supply = %d/%d", rec.MintedSupply, rec.MaxSupply)
	}

	if len(res.Events) != 1 || res.Events[0].Name != EventCreation {
		t.Fatalf("events = %+v", res.Events)
	}
	var ev CreationEvent
	if err := res.Events[0].Decode(&ev); err != nil {
		t.Fatal(err)
	}
	want := CreationEvent{Token: tok, Creator: e.alice, Name: "Moon", Symbol: "MOON", MaxSupply: rec.MaxSupply}
	if ev != want {
		t.Errorf("creation event = %+v, want %+v", ev, want)
	}

	kind, _ := e.l.KindOf(tok)
	if kind != token.Kind {
		t.Errorf("deployed kind = %q", kind)
	}
	meta, err := e.l.Query(e.alice, tok, token.MethodInfo, nil)
	if err != nil {
		t.Fatal(err)
	}
	if m := meta.(*token.Metadata); m.Factory != e.factory || m.Creator != e.alice {
		t.Errorf("token bound to factory=%s creator=%s", m.Factory, m.Creator)
	}
}

func TestCreateToken_Supply(t *testing.T) {
	maxHuman := new(big.Int).SetUint64(math.MaxUint64 / UnitsPerToken)
	tests := []struct {
		name    string
		supply  string
		want    uint64
		wantErr bool
	}{
		{"zero uses default", "0", 10_000_000_000_000, false},
		{"one", "1", 1_000_000, false},
		{"large", "21000000", 21_000_000_000_000, false},
		{"largest that fits", maxHuman.String(), maxHuman.Uint64() * UnitsPerToken, false},
		{"overflows after scaling", new(big.Int).Add(maxHuman, big.NewInt(1)).String(), 0, true},
		{"overflows uint64", "340282366920938463463374607431768211456", 0, true},
		{"negative", "-1", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := setup(t)
			tok, err := e.create(e.alice, "T", "T", tt.supply)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidSupply) {
					t.Fatalf("got %v, want ErrInvalidSupply", err)
				}
				all, _ := e.query(t, MethodListAll, nil)
				if len(all.([]TokenRecord)) != 0 {
					t.Error("rejected creation left a catalog entry")
				}
				return
			}
			if err != nil {
				t.Fatalf("createToken: %v", err)
			}
			if got := e.remaining(t, tok); got != tt.want {
				t.Errorf("remaining = %d, want %d", got, tt.want)
			}
			if got := e.details(t, tok).MaxSupply; got != tt.want {
				t.Errorf("maxSupply = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestQuote(t *testing.T) {
	e := setup(t)
	tok := e.mustCreate(t, e.alice, "0")

	quote := func(p *big.Int) (uint64, error) {
		v, err := e.query(t, MethodQuote, QuoteArgs{Token: tok, Payment: json.Number(p.String())})
		if err != nil {
			return 0, err
		}
		return v.(uint64), nil
	}

	tests := []struct {
		payment *big.Int
		want    uint64
	}{
		{mustCoin(t, "0.5"), 5_000_000_000_000},
		{mustCoin(t, "1"), 10_000_000_000_000},
		{big.NewInt(1), 0},
		{big.NewInt(99_999), 0},
		{big.NewInt(100_000), 1},
		{big.NewInt(250_000), 2},
	}
	for _, tt := range tests {
		got, err := quote(tt.payment)
		if err != nil {
			t.Fatalf("quote(%s): %v", tt.payment, err)
		}
		if got != tt.want {
			t.Errorf("quote(%s) = %d, want %d", tt.payment, got, tt.want)
		}
	}

	for _, p := range []int64{1, 7, 150_001, 333_333_333, 1_000_000_000_000_007} {
		one, _ := quote(big.NewInt(p))
		two, _ := quote(big.NewInt(2 * p))
		if two < one || two > 2*one+1 {
			t.Errorf("quote(2×%d)=%d not within [quote(p), 2·quote(p)+1] for quote(p)=%d", p, two, one)
		}
		if two < 2*one {
			t.Errorf("quote(2×%d)=%d < 2·%d: floor must not lose more on a larger payment", p, two, one)
		}
	}

	if _, err := e.query(t, MethodQuote, QuoteArgs{Token: types.Address{0x01}, Payment: "1"}); !errors.Is(err, ErrTokenNotFound) {
		t.Errorf("unknown token: got %v, want ErrTokenNotFound", err)
	}
	huge := new(big.Int).Mul(coins(1), new(big.Int).SetUint64(math.MaxUint64))
	if _, err := quote(huge); !errors.Is(err, ErrInvalidSupply) {
		t.Errorf("overflowing quote: got %v, want ErrInvalidSupply", err)
	}
}

func TestScenario(t *testing.T) {
	e := setup(t)

	big1 := e.mustCreate(t, e.alice, "0")
	if got := e.details(t, big1).MaxSupply; got != 10_000_000_000_000 {
		t.Fatalf("cap = %d", got)
	}
	minted, err := e.buy(e.bob, big1, mustCoin(t, "0.5"))
	if err != nil {
		t.Fatalf("buy: %v", err)
	}
	if minted != 5_000_000_000_000 {
		t.Errorf("minted = %d, want 5_000_000_000_000", minted)
	}
	if got := e.decrypted(t, big1, e.bob); got != minted {
		t.Errorf("bob's decrypted balance = %d", got)
	}

	small := e.mustCreate(t, e.alice, "1")
	if got := e.details(t, small).MaxSupply; got != 1_000_000 {
		t.Fatalf("cap = %d", got)
	}
	before := e.balance(t, e.bob)
	if _, err := e.buy(e.bob, small, mustCoin(t, "1")); !errors.Is(err, ErrInsufficientSupply) {
		t.Fatalf("got %v, want ErrInsufficientSupply", err)
	}
	if e.balance(t, e.bob).Cmp(before) != 0 {
		t.Error("rejected purchase kept the payment")
	}
	if got := e.remaining(t, small); got != 1_000_000 {
		t.Errorf("rejected purchase changed remaining: %d", got)
	}
	if got := e.details(t, small).MintedSupply; got != 0 {
		t.Errorf("rejected purchase changed minted: %d", got)
	}
}

func TestBuyTokens_Events(t *testing.T) {
	e := setup(t)
	tok := e.mustCreate(t, e.alice, "0")

	payment := mustCoin(t, "0.25")
	res, err := e.l.Apply(ledger.Message{
		From: e.bob, To: e.factory, Method: MethodBuyTokens,
		Args: args(TokenArgs{Token: tok}), Value: payment,
	})
	if err != nil {
		t.Fatal(err)
	}
	var ev PurchaseEvent
	last := res.Events[len(res.Events)-1]
	if last.Name != EventPurchase || last.Contract != e.factory {
		t.Fatalf("last event = %+v", last)
	}
	last.Decode(&ev)
	if ev.Buyer != e.bob || ev.Token != tok || ev.PaymentOf().Cmp(payment) != 0 || ev.Minted != 2_500_000_000_000 {
		t.Errorf("purchase event = %+v", ev)
	}
	if e.balance(t, e.factory).Cmp(payment) != 0 {
		t.Errorf("factory holds %s, want %s", e.balance(t, e.factory), payment)
	}
	if got := e.details(t, tok).MintedSupply; got != ev.Minted {
		t.Errorf("record minted = %d", got)
	}
}

func TestBuyTokens_Errors(t *testing.T) {
	e := setup(t)
	tok := e.mustCreate(t, e.alice, "0")
	before := e.balance(t, e.bob)

	if _, err := e.buy(e.bob, types.Address{0x42}, coins(1)); !errors.Is(err, ErrTokenNotFound) {
		t.Errorf("unknown token: got %v, want ErrTokenNotFound", err)
	}
	if _, err := e.buy(e.bob, tok, nil); !errors.Is(err, ErrNoTokensToMint) {
		t.Errorf("no payment: got %v, want ErrNoTokensToMint", err)
	}
	if _, err := e.buy(e.bob, tok, big.NewInt(99_999)); !errors.Is(err, ErrNoTokensToMint) {
		t.Errorf("dust payment: got %v, want ErrNoTokensToMint", err)
	}
	if _, err := e.buy(e.bob, tok, coins(1000)); !errors.Is(err, ledger.ErrInsufficientFunds) {
		t.Errorf("overspend: got %v, want ErrInsufficientFunds", err)
	}
	if e.balance(t, e.bob).Cmp(before) != 0 {
		t.Error("failed purchases moved native value")
	}

	_, err := e.l.Apply(ledger.Message{
		From: e.bob, To: e.factory, Method: MethodCreateToken,
		Args: args(CreateArgs{Name: "x", Symbol: "x"}), Value: coins(1),
	})
	if !errors.Is(err, ledger.ErrNotPayable) {
		t.Errorf("value on createToken: got %v, want ErrNotPayable", err)
	}
}

func TestBuyTokens_CannotMintDirectly(t *testing.T) {
	e := setup(t)
	tok := e.mustCreate(t, e.alice, "1")
	_, err := e.l.Apply(ledger.Message{
		From: e.alice, To: tok, Method: token.MethodMint,
		Args: args(token.MintArgs{To: e.alice, Amount: 1}),
	})
	if !errors.Is(err, token.ErrInvalidFactory) {
		t.Errorf("creator minting directly: got %v, want ErrInvalidFactory", err)
	}
}

func TestBuyTokens_SupplyInvariant(t *testing.T) {
	e := setup(t)
	tok := e.mustCreate(t, e.alice, "3") // 3_000_000 units

	payment := big.NewInt(70_000_000_000) // 700_000 units
	var last uint64
	var failures int
	for i := 0; i < 6; i++ {
		buyer := e.alice
		if i%2 == 1 {
			buyer = e.bob
		}
		_, err := e.buy(buyer, tok, payment)
		if errors.Is(err, ErrInsufficientSupply) {
			failures++
		} else if err != nil {
			t.Fatalf("buy %d: %v", i, err)
		}
		rec := e.details(t, tok)
		if rec.MintedSupply < last || rec.MintedSupply > rec.MaxSupply {
			t.Fatalf("minted %d after %d (cap %d)", rec.MintedSupply, last, rec.MaxSupply)
		}
		last = rec.MintedSupply
	}
	if last != 2_800_000 || failures != 2 {
		t.Errorf("minted = %d with %d failures, want 2_800_000 and 2", last, failures)
	}

	// Exactly the remainder still sells.
	if _, err := e.buy(e.bob, tok, big.NewInt(20_000_000_000)); err != nil {
		t.Fatalf("buy remainder: %v", err)
	}
	if got := e.remaining(t, tok); got != 0 {
		t.Errorf("remaining = %d", got)
	}

	sum := e.decrypted(t, tok, e.alice) + e.decrypted(t, tok, e.bob)
	if sum != 3_000_000 {
		t.Errorf("sum of decrypted balances = %d, want minted 3_000_000", sum)
	}
}

func TestBuyTokens_Concurrent(t *testing.T) {
	e := setup(t)
	tok := e.mustCreate(t, e.alice, "10") // 10_000_000 units
	payment := big.NewInt(10_000_000_000) // 100_000 units

	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0
	for w := 0; w < 8; w++ {
		wg.Add(1)
		buyer := e.alice
		if w%2 == 1 {
			buyer = e.bob
		}
		go func() {
			defer wg.Done()
			for i := 0; i < 20; i++ {
				if _, err := e.buy(buyer, tok, payment); err == nil {
					mu.Lock()
					succeeded++
					mu.Unlock()
				} else if !errors.Is(err, ErrInsufficientSupply) {
					t.Error(err)
					return
				}
			}
		}()
	}
	wg.Wait()

	rec := e.details(t, tok)
	if succeeded != 100 || rec.MintedSupply != rec.MaxSupply {
		t.Errorf("succeeded=%d minted=%d cap=%d", succeeded, rec.MintedSupply, rec.MaxSupply)
	}
}

func TestListings(t *testing.T) {
	e := setup(t)
	a1 := e.mustCreate(t, e.alice, "1")
	b1 := e.mustCreate(t, e.bob, "2")
	a2 := e.mustCreate(t, e.alice, "3")
	e.buy(e.bob, a2, big.NewInt(100_000_000)) // 1_000 units

	v, err := e.query(t, MethodListAll, nil)
	if err != nil {
		t.Fatal(err)
	}
	all := v.([]TokenRecord)
	if len(all) != 3 || all[0].Token != a1 || all[1].Token != b1 || all[2].Token != a2 {
		t.Fatalf("listAll order = %+v", all)
	}
	if all[2].MintedSupply != 1_000 {
		t.Errorf("listAll minted = %d, want live 1_000", all[2].MintedSupply)
	}

	v, err = e.query(t, MethodListPage, PageArgs{Offset: 1, Limit: 1})
	if err != nil {
		t.Fatalf("listPage: %v", err)
	}
	page := v.(*TokenPage)
	if page.Total != 3 || len(page.Tokens) != 1 || page.Tokens[0].Token != b1 {
		t.Errorf("listPage(1, 1) = %+v", page)
	}
	v, _ = e.query(t, MethodListPage, PageArgs{Offset: 2})
	if page = v.(*TokenPage); len(page.Tokens) != 1 || page.Tokens[0].MintedSupply != 1_000 {
		t.Errorf("listPage(2, 0) = %+v, want live a2", page)
	}
	v, _ = e.query(t, MethodListPage, PageArgs{Offset: 5})
	if page = v.(*TokenPage); len(page.Tokens) != 0 || page.Total != 3 {
		t.Errorf("listPage past end = %+v", page)
	}
	if _, err := e.query(t, MethodListPage, PageArgs{Limit: -1}); !errors.Is(err, ledger.ErrInvalidArgs) {
		t.Errorf("negative limit: got %v, want ErrInvalidArgs", err)
	}

	v, _ = e.query(t, MethodListByCreator, CreatorArgs{Creator: e.alice})
	mine := v.([]TokenRecord)
	if len(mine) != 2 || mine[0].Token != a1 || mine[1].Token != a2 {
		t.Errorf("listByCreator(alice) = %+v", mine)
	}
	v, _ = e.query(t, MethodListByCreator, CreatorArgs{Creator: e.owner})
	if len(v.([]TokenRecord)) != 0 {
		t.Error("owner created nothing")
	}

	if _, err := e.query(t, MethodDetails, TokenArgs{Token: types.Address{0x99}}); !errors.Is(err, ErrTokenNotFound) {
		t.Errorf("details unknown: got %v", err)
	}
	if _, err := e.query(t, MethodRemaining, TokenArgs{Token: types.Address{0x99}}); !errors.Is(err, ErrTokenNotFound) {
		t.Errorf("remaining unknown: got %v", err)
	}
}

func TestWithdraw(t *testing.T) {
	e := setup(t)
	tok := e.mustCreate(t, e.alice, "100000000")
	if _, err := e.buy(e.bob, tok, coins(2)); err != nil {
		t.Fatal(err)
	}
	recipient := types.Address{0x77}

	withdraw := func(from, to types.Address, amount string) (*ledger.Result, error) {
		return e.l.Apply(ledger.Message{
			From: from, To: e.factory, Method: MethodWithdraw,
			Args: args(WithdrawArgs{To: to, Amount: json.Number(amount)}),
		})
	}

	if _, err := withdraw(e.alice, recipient, "0"); !errors.Is(err, ErrNotOwner) {
		t.Errorf("non-owner: got %v, want ErrNotOwner", err)
	}
	if _, err := withdraw(e.owner, types.Address{}, "0"); !errors.Is(err, ErrInvalidRecipient) {
		t.Errorf("zero recipient: got %v, want ErrInvalidRecipient", err)
	}
	if _, err := withdraw(e.owner, recipient, coins(3).String()); !errors.Is(err, ErrInsufficientBalance) {
		t.Errorf("overdraw: got %v, want ErrInsufficientBalance", err)
	}
	if _, err := withdraw(e.owner, tok, "1"); !errors.Is(err, ErrTransferFailed) {
		t.Errorf("to non-payable contract: got %v, want ErrTransferFailed", err)
	}
	if _, err := withdraw(e.owner, recipient, "-1"); !errors.Is(err, ledger.ErrInvalidArgs) {
		t.Errorf("negative amount: got %v, want ErrInvalidArgs", err)
	}
	if e.balance(t, e.factory).Cmp(coins(2)) != 0 {
		t.Fatal("failed withdrawals changed the balance")
	}

	if _, err := withdraw(e.owner, recipient, coins(1).String()); err != nil {
		t.Fatalf("partial: %v", err)
	}
	if e.balance(t, recipient).Cmp(coins(1)) != 0 || e.balance(t, e.factory).Cmp(coins(1)) != 0 {
		t.Error("partial withdrawal not applied")
	}

	res, err := withdraw(e.owner, recipient, "0")
	if err != nil {
		t.Fatalf("drain: %v", err)
	}
	if e.balance(t, e.factory).Sign() != 0 || e.balance(t, recipient).Cmp(coins(2)) != 0 {
		t.Error("zero amount must drain the factory")
	}
	var ev WithdrawalEvent
	res.Events[0].Decode(&ev)
	if res.Events[0].Name != EventWithdrawal || ev.Recipient != recipient || ev.AmountOf().Cmp(coins(1)) != 0 {
		t.Errorf("withdrawal event = %+v", ev)
	}
}

func TestSignedPurchase(t *testing.T) {
	e := setup(t)
	tok := e.mustCreate(t, e.bob, "0")

	c, err := call.New(e.chainID, 0, e.factory, MethodBuyTokens, TokenArgs{Token: tok}, mustCoin(t, "0.1"))
	if err != nil {
		t.Fatal(err)
	}
	if err := c.Sign(e.aliceSK); err != nil {
		t.Fatal(err)
	}
	rcpt, err := e.l.Submit(c)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if rcpt.Status != ledger.StatusOK || string(rcpt.Result) != "1000000000000" {
		t.Errorf("receipt = %+v", rcpt)
	}
	if got := e.decrypted(t, tok, e.alice); got != 1_000_000_000_000 {
		t.Errorf("alice balance = %d", got)
	}
}
