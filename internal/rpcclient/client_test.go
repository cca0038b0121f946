package rpcclient

import (
	"context"
	"encoding/json"
	"math/big"
	"testing"
	"time"

	"github.com/Klingon-tech/klingnet-launchpad/config"
	"github.com/Klingon-tech/klingnet-launchpad/internal/factory"
	"github.com/Klingon-tech/klingnet-launchpad/internal/fhe"
	"github.com/Klingon-tech/klingnet-launchpad/internal/ledger"
	klog "github.com/Klingon-tech/klingnet-launchpad/internal/log"
	"github.com/Klingon-tech/klingnet-launchpad/internal/rpc"
	"github.com/Klingon-tech/klingnet-launchpad/internal/storage"
	"github.com/Klingon-tech/klingnet-launchpad/internal/token"
	"github.com/Klingon-tech/klingnet-launchpad/pkg/call"
	"github.com/Klingon-tech/klingnet-launchpad/pkg/crypto"
	"github.com/Klingon-tech/klingnet-launchpad/pkg/types"
)

type testEnv struct {
	client  *Client
	genesis *config.Genesis
	factory types.Address
	user    types.Address
	userSK  *crypto.PrivateKey
}

func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()
	klog.Init("error", false, "")

	userSK, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	user := crypto.AddressFromPubKey(userSK.PublicKey())

	gen := config.TestnetGenesis()
	gen.ChainID = "launchpad-test-client"
	gen.Alloc = map[string]string{
		user.String(): new(big.Int).Mul(big.NewInt(50), types.Coin()).String(),
	}

	l, err := ledger.New(storage.NewMemory())
	if err != nil {
		t.Fatalf("create ledger: %v", err)
	}
	netKey, _ := crypto.GenerateKey()
	cop, _ := fhe.NewCoprocessor(netKey)
	l.RegisterKind(token.Kind, token.New(cop))
	l.RegisterKind(factory.Kind, factory.New())

	var factoryAddr types.Address
	err = l.InitFromGenesis(gen, func(tx *ledger.Txn) error {
		factoryAddr, err = factory.Install(tx)
		return err
	})
	if err != nil {
		t.Fatalf("init genesis: %v", err)
	}

	// Create and start RPC server on random port.
	srv := rpc.New("127.0.0.1:0", l, gen, factoryAddr, nil)
	if err := srv.Start(); err != nil {
		t.Fatalf("start rpc: %v", err)
	}
	t.Cleanup(func() { srv.Stop() })

	return &testEnv{
		client:  New("http://" + srv.Addr() + "/"),
		genesis: gen,
		factory: factoryAddr,
		user:    user,
		userSK:  userSK,
	}
}

func TestClient_ChainGetInfo(t *testing.T) {
	env := setupTestEnv(t)

	var result rpc.ChainInfoResult
	if err := env.client.Call("chain_getInfo", nil, &result); err != nil {
		t.Fatalf("Call error: %v", err)
	}

	if result.ChainID != "launchpad-test-client" {
		t.Errorf("chain_id = %q, want %q", result.ChainID, "launchpad-test-client")
	}
	if result.Factory != env.factory {
		t.Errorf("factory = %s, want %s", result.Factory, env.factory)
	}
}

func TestClient_AccountGet(t *testing.T) {
	env := setupTestEnv(t)

	var acct rpc.AccountResult
	if err := env.client.Call("account_get", rpc.AddressParam{Address: env.user.String()}, &acct); err != nil {
		t.Fatalf("Call error: %v", err)
	}
	if acct.Balance != "50000000000000000000" {
		t.Errorf("balance = %s, want 50 coins", acct.Balance)
	}
}

func TestClient_SubmitAndReverted(t *testing.T) {
	env := setupTestEnv(t)

	c, _ := call.New(env.genesis.ChainID, 0, env.factory, factory.MethodCreateToken,
		factory.CreateArgs{Name: "Moon", Symbol: "MOON"}, nil)
	if err := c.Sign(env.userSK); err != nil {
		t.Fatal(err)
	}
	var res rpc.SubmitResult
	if err := env.client.Call("call_submit", rpc.CallSubmitParam{Call: c}, &res); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if res.Receipt.Status != ledger.StatusOK {
		t.Errorf("status = %q", res.Receipt.Status)
	}

	// Withdrawing as a non-owner is recorded and reverts.
	c, _ = call.New(env.genesis.ChainID, 1, env.factory, factory.MethodWithdraw,
		factory.WithdrawArgs{To: env.user}, nil)
	c.Sign(env.userSK)
	err := env.client.Call("call_submit", rpc.CallSubmitParam{Call: c}, nil)
	if !IsReverted(err) {
		t.Fatalf("expected reverted error, got %v", err)
	}
	var rcpt ledger.Receipt
	if err := json.Unmarshal(err.(*RPCError).Data, &rcpt); err != nil {
		t.Fatalf("decode receipt: %v", err)
	}
	if rcpt.Status != ledger.StatusReverted || rcpt.Nonce != 1 {
		t.Errorf("receipt = %+v", rcpt)
	}
}

func TestClient_GetToken_NotFound(t *testing.T) {
	env := setupTestEnv(t)

	var raw json.RawMessage
	err := env.client.Call("factory_getToken", rpc.TokenParam{Token: types.Address{0x01}.String()}, &raw)
	if err == nil {
		t.Fatal("expected error for unknown token")
	}

	rpcErr, ok := err.(*RPCError)
	if !ok {
		t.Fatalf("expected RPCError, got %T: %v", err, err)
	}
	if rpcErr.Code != -32000 {
		t.Errorf("error code = %d, want -32000", rpcErr.Code)
	}
}

func TestClient_RelayerDisabled(t *testing.T) {
	env := setupTestEnv(t)

	err := env.client.Call("relayer_getPublicKey", nil, nil)
	rpcErr, ok := err.(*RPCError)
	if !ok || rpcErr.Code != -32000 {
		t.Fatalf("expected not-found error, got %v", err)
	}
}

func TestClient_Call_InvalidEndpoint(t *testing.T) {
	client := New("http://127.0.0.1:1/") // nothing listens on port 1

	var result rpc.ChainInfoResult
	err := client.Call("chain_getInfo", nil, &result)
	if err == nil {
		t.Fatal("expected connection error")
	}
}

func TestClient_CallContext_Canceled(t *testing.T) {
	env := setupTestEnv(t)

	ctx, cancel := context.WithTimeout(context.Background(), time.Nanosecond)
	defer cancel()
	time.Sleep(time.Millisecond)
	if err := env.client.CallContext(ctx, "chain_getInfo", nil, nil); err == nil {
		t.Fatal("expected error from expired context")
	}
}

func TestClient_Call_MethodNotFound(t *testing.T) {
	env := setupTestEnv(t)

	var raw json.RawMessage
	err := env.client.Call("nonexistent_method", nil, &raw)
	if err == nil {
		t.Fatal("expected error for unknown method")
	}

	rpcErr, ok := err.(*RPCError)
	if !ok {
		t.Fatalf("expected RPCError, got %T: %v", err, err)
	}
	if rpcErr.Code != -32601 {
		t.Errorf("error code = %d, want -32601", rpcErr.Code)
	}
}

func TestClient_BatchCall(t *testing.T) {
	env := setupTestEnv(t)

	var info rpc.ChainInfoResult
	var acct rpc.AccountResult
	elems := []BatchElem{
		{Method: "chain_getInfo", Result: &info},
		{Method: "account_get", Params: rpc.AddressParam{Address: env.user.String()}, Result: &acct},
		{Method: "no_suchMethod"},
	}
	if err := env.client.BatchCall(context.Background(), elems); err != nil {
		t.Fatalf("BatchCall: %v", err)
	}
	if elems[0].Error != nil || info.ChainID != "launchpad-test-client" {
		t.Errorf("chain_getInfo: err=%v chain=%q", elems[0].Error, info.ChainID)
	}
	if elems[1].Error != nil || acct.Address != env.user.String() {
		t.Errorf("account_get: err=%v addr=%s", elems[1].Error, acct.Address)
	}
	rpcErr, ok := elems[2].Error.(*RPCError)
	if !ok || rpcErr.Code != -32601 {
		t.Errorf("unknown method error = %v", elems[2].Error)
	}

	if err := env.client.BatchCall(context.Background(), nil); err != nil {
		t.Errorf("empty batch: %v", err)
	}
}
