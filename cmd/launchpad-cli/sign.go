package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"math/big"

	"github.com/Klingon-tech/klingnet-launchpad/internal/ledger"
	"github.com/Klingon-tech/klingnet-launchpad/internal/rpc"
	"github.com/Klingon-tech/klingnet-launchpad/internal/rpcclient"
	"github.com/Klingon-tech/klingnet-launchpad/pkg/call"
	"github.com/Klingon-tech/klingnet-launchpad/pkg/crypto"
	"github.com/Klingon-tech/klingnet-launchpad/pkg/types"
)

// signerFlags selects the wallet account used to sign a call.
type signerFlags struct {
	wallet  *string
	account *uint
}

func addSignerFlags(fs *flag.FlagSet) *signerFlags {
	return &signerFlags{
		wallet:  fs.String("wallet", "", "Wallet name"),
		account: fs.Uint("account", 0, "Account index within the wallet"),
	}
}

// unlock prompts for the wallet password and returns the account key.
func (s *signerFlags) unlock(ksDir string) (*crypto.PrivateKey, types.Address) {
	if *s.wallet == "" {
		fatal("--wallet is required")
	}
	password, err := readPassword("Enter password: ")
	if err != nil {
		fatal("read password: %v", err)
	}
	sk, err := openKeystore(ksDir).Signer(*s.wallet, password, uint32(*s.account))
	if err != nil {
		fatal("unlock wallet: %v", err)
	}
	return sk, crypto.AddressFromPubKey(sk.PublicKey())
}

// address returns the recorded address of the account without unlocking.
func (s *signerFlags) address(ksDir string) types.Address {
	acct, err := openKeystore(ksDir).Account(*s.wallet, uint32(*s.account))
	if err != nil {
		fatal("wallet account: %v", err)
	}
	return acct.Address
}

func chainInfo(client *rpcclient.Client) rpc.ChainInfoResult {
	var info rpc.ChainInfoResult
	if err := client.Call("chain_getInfo", nil, &info); err != nil {
		fatal("chain_getInfo: %v", err)
	}
	return info
}

// submit signs a call with the sender's next nonce and submits it. A
// reverted call prints its receipt and exits.
func submit(client *rpcclient.Client, sk *crypto.PrivateKey, to types.Address, method string, args any, value *big.Int) *ledger.Receipt {
	sender := crypto.AddressFromPubKey(sk.PublicKey())

	var info rpc.ChainInfoResult
	var acct rpc.AccountResult
	batch := []rpcclient.BatchElem{
		{Method: "chain_getInfo", Result: &info},
		{Method: "account_get", Params: rpc.AddressParam{Address: sender.String()}, Result: &acct},
	}
	if err := client.BatchCall(context.Background(), batch); err != nil {
		fatal("rpc: %v", err)
	}
	for _, e := range batch {
		if e.Error != nil {
			fatal("%s: %v", e.Method, e.Error)
		}
	}

	c, err := call.New(info.ChainID, acct.Nonce, to, method, args, value)
	if err != nil {
		fatal("build call: %v", err)
	}
	if err := c.Sign(sk); err != nil {
		fatal("sign call: %v", err)
	}

	var res rpc.SubmitResult
	err = client.Call("call_submit", rpc.CallSubmitParam{Call: c}, &res)
	if rpcclient.IsReverted(err) {
		var re *rpcclient.RPCError
		errors.As(err, &re)
		var rcpt ledger.Receipt
		if json.Unmarshal(re.Data, &rcpt) == nil {
			printReceipt(&rcpt)
		}
		fatal("call reverted: %s", re.Message)
	}
	if err != nil {
		fatal("call_submit: %v", err)
	}
	return res.Receipt
}

// decodeResult unmarshals a committed call's return value.
func decodeResult(r *ledger.Receipt, v any) {
	if err := json.Unmarshal(r.Result, v); err != nil {
		fatal("decode %s result: %v", r.Method, err)
	}
}

func mustAddress(s, what string) types.Address {
	addr, err := types.ParseAddress(s)
	if err != nil {
		fatal("invalid %s %q: %v", what, s, err)
	}
	return addr
}

func mustCoin(s string) *big.Int {
	v, err := types.ParseCoin(s)
	if err != nil {
		fatal("invalid amount %q: %v", s, err)
	}
	return v
}

func printSubmitted(r *ledger.Receipt) {
	fmt.Printf("Call:     %s\n", r.CallHash)
	fmt.Printf("Height:   %d\n", r.Height)
}
