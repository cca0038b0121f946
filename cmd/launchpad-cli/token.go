package main

import (
	"flag"
	"fmt"
	"time"

	"github.com/Klingon-tech/klingnet-launchpad/internal/factory"
	"github.com/Klingon-tech/klingnet-launchpad/internal/fhe"
	"github.com/Klingon-tech/klingnet-launchpad/internal/relayer"
	"github.com/Klingon-tech/klingnet-launchpad/internal/rpc"
	"github.com/Klingon-tech/klingnet-launchpad/internal/rpcclient"
	"github.com/Klingon-tech/klingnet-launchpad/internal/token"
	"github.com/Klingon-tech/klingnet-launchpad/pkg/types"
)

func cmdToken(client *rpcclient.Client, args []string, ksDir string) {
	const usageLine = "Usage: launchpad-cli token <list|info|remaining|mine|quote|create|buy|balance|transfer> [args]"
	if len(args) < 1 {
		fatal(usageLine)
	}

	switch args[0] {
	case "list":
		cmdTokenList(client, args[1:])
	case "info":
		cmdTokenInfo(client, args[1:])
	case "remaining":
		cmdTokenRemaining(client, args[1:])
	case "mine":
		cmdTokenMine(client, args[1:], ksDir)
	case "quote":
		cmdTokenQuote(client, args[1:])
	case "create":
		cmdTokenCreate(client, args[1:], ksDir)
	case "buy":
		cmdTokenBuy(client, args[1:], ksDir)
	case "balance":
		cmdTokenBalance(client, args[1:], ksDir)
	case "transfer":
		cmdTokenTransfer(client, args[1:], ksDir)
	default:
		fatal("Unknown token command: %s\n%s", args[0], usageLine)
	}
}

// ── Catalog reads ───────────────────────────────────────────────────────

func cmdTokenList(client *rpcclient.Client, args []string) {
	fs := flag.NewFlagSet("token list", flag.ExitOnError)
	offset := fs.Int("offset", 0, "Skip this many tokens")
	limit := fs.Int("limit", 0, "Maximum tokens (0 = all)")
	fs.Parse(args)

	var res rpc.TokenListResult
	if err := client.Call("factory_listTokens", rpc.PageParam{Offset: *offset, Limit: *limit}, &res); err != nil {
		fatal("factory_listTokens: %v", err)
	}
	printTokenTable(res.Tokens)
	fmt.Printf("\n%d of %d tokens\n", len(res.Tokens), res.Total)
}

func cmdTokenMine(client *rpcclient.Client, args []string, ksDir string) {
	fs := flag.NewFlagSet("token mine", flag.ExitOnError)
	creator := fs.String("creator", "", "Creator address")
	sf := addSignerFlags(fs)
	fs.Parse(args)

	who := *creator
	if who == "" {
		who = sf.address(ksDir).String()
	}
	var res rpc.TokenListResult
	if err := client.Call("factory_getTokensByCreator", rpc.CreatorParam{Creator: who}, &res); err != nil {
		fatal("factory_getTokensByCreator: %v", err)
	}
	printTokenTable(res.Tokens)
}

func cmdTokenInfo(client *rpcclient.Client, args []string) {
	if len(args) != 1 {
		fatal("Usage: launchpad-cli token info <token>")
	}
	var rec factory.TokenRecord
	if err := client.Call("factory_getToken", rpc.TokenParam{Token: args[0]}, &rec); err != nil {
		fatal("factory_getToken: %v", err)
	}
	fmt.Printf("Token:     %s\n", rec.Token)
	fmt.Printf("Name:      %s\n", rec.Name)
	fmt.Printf("Symbol:    %s\n", rec.Symbol)
	fmt.Printf("Supply:    %s\n", formatTokenUnits(rec.MaxSupply))
	fmt.Printf("Minted:    %s\n", formatTokenUnits(rec.MintedSupply))
	fmt.Printf("Creator:   %s\n", rec.Creator)
	fmt.Printf("Height:    %d\n", rec.Height)
}

func cmdTokenRemaining(client *rpcclient.Client, args []string) {
	if len(args) != 1 {
		fatal("Usage: launchpad-cli token remaining <token>")
	}
	var res rpc.RemainingResult
	if err := client.Call("factory_remaining", rpc.TokenParam{Token: args[0]}, &res); err != nil {
		fatal("factory_remaining: %v", err)
	}
	fmt.Printf("Remaining: %s (%d base units)\n", formatTokenUnits(res.Remaining), res.Remaining)
}

func cmdTokenQuote(client *rpcclient.Client, args []string) {
	fs := flag.NewFlagSet("token quote", flag.ExitOnError)
	tok := fs.String("token", "", "Token address")
	amount := fs.String("amount", "", "Payment in coins")
	fs.Parse(args)
	if *tok == "" || *amount == "" {
		fatal("Usage: launchpad-cli token quote --token <t> --amount <coins>")
	}

	var res rpc.QuoteResult
	param := rpc.QuoteParam{Token: *tok, Payment: mustCoin(*amount).String()}
	if err := client.Call("factory_quote", param, &res); err != nil {
		fatal("factory_quote: %v", err)
	}
	fmt.Printf("%s coins buys %s tokens\n", *amount, formatTokenUnits(res.Units))
}

// ── Signed calls ────────────────────────────────────────────────────────

func cmdTokenCreate(client *rpcclient.Client, args []string, ksDir string) {
	fs := flag.NewFlagSet("token create", flag.ExitOnError)
	sf := addSignerFlags(fs)
	name := fs.String("name", "", "Token name")
	symbol := fs.String("symbol", "", "Token symbol")
	supply := fs.Uint64("supply", 0, "Max supply in whole tokens (0 = default)")
	fs.Parse(args)
	if *name == "" || *symbol == "" {
		fatal("Usage: launchpad-cli token create --wallet <w> --name <n> --symbol <SYM> [--supply <tokens>]")
	}

	sk, _ := sf.unlock(ksDir)
	defer sk.Zero()

	create := factory.CreateArgs{Name: *name, Symbol: *symbol}
	if *supply > 0 {
		create.Supply = jsonUint(*supply)
	}
	r := submit(client, sk, chainInfo(client).Factory, factory.MethodCreateToken, create, nil)
	var tok types.Address
	decodeResult(r, &tok)
	printSubmitted(r)
	fmt.Printf("Token:    %s\n", tok)
}

func cmdTokenBuy(client *rpcclient.Client, args []string, ksDir string) {
	fs := flag.NewFlagSet("token buy", flag.ExitOnError)
	sf := addSignerFlags(fs)
	tok := fs.String("token", "", "Token address")
	amount := fs.String("amount", "", "Payment in coins")
	fs.Parse(args)
	if *tok == "" || *amount == "" {
		fatal("Usage: launchpad-cli token buy --wallet <w> --token <t> --amount <coins>")
	}
	tokAddr := mustAddress(*tok, "token")
	payment := mustCoin(*amount)

	sk, _ := sf.unlock(ksDir)
	defer sk.Zero()

	r := submit(client, sk, chainInfo(client).Factory, factory.MethodBuyTokens, factory.TokenArgs{Token: tokAddr}, payment)
	var units uint64
	decodeResult(r, &units)
	printSubmitted(r)
	fmt.Printf("Bought:   %s tokens\n", formatTokenUnits(units))
}

// cmdTokenBalance reads the holder's balance handle and asks the relayer
// to re-encrypt it to a throwaway key only this process holds.
func cmdTokenBalance(client *rpcclient.Client, args []string, ksDir string) {
	fs := flag.NewFlagSet("token balance", flag.ExitOnError)
	sf := addSignerFlags(fs)
	tok := fs.String("token", "", "Token address")
	days := fs.Uint("days", 1, "Consent validity in days")
	fs.Parse(args)
	if *tok == "" {
		fatal("Usage: launchpad-cli token balance --wallet <w> --token <t>")
	}
	tokAddr := mustAddress(*tok, "token")

	sk, user := sf.unlock(ksDir)
	defer sk.Zero()

	var bh rpc.BalanceHandleResult
	param := rpc.BalanceHandleParam{Token: tokAddr.String(), Holder: user.String()}
	if err := client.Call("token_getBalanceHandle", param, &bh); err != nil {
		fatal("token_getBalanceHandle: %v", err)
	}
	if bh.Handle.IsZero() {
		fmt.Println("Balance:  0")
		return
	}

	kp, err := relayer.GenerateKeypair()
	if err != nil {
		fatal("generate keypair: %v", err)
	}
	defer kp.Zero()

	// Start a minute early to tolerate clock skew with the node.
	consent, err := relayer.SignConsent(sk, relayer.Consent{
		PublicKey:      kp.PublicKey(),
		Contracts:      []types.Address{tokAddr},
		StartTimestamp: time.Now().Add(-time.Minute).Unix(),
		DurationDays:   uint32(*days),
	})
	if err != nil {
		fatal("sign consent: %v", err)
	}
	req := &relayer.Request{
		User:    user,
		Handles: []relayer.HandleRef{{Handle: bh.Handle, Contract: tokAddr}},
		Consent: *consent,
	}

	var res relayer.Result
	if err := client.Call("relayer_userDecrypt", rpc.UserDecryptParam{Request: req}, &res); err != nil {
		fatal("relayer_userDecrypt: %v", err)
	}
	values, err := relayer.Open(kp, user, &res)
	if err != nil {
		fatal("open relayer response: %v", err)
	}
	fmt.Printf("Balance:  %s\n", formatTokenUnits(values[bh.Handle]))
}

// cmdTokenTransfer seals the amount to the coprocessor key so the ledger
// never sees it in clear.
func cmdTokenTransfer(client *rpcclient.Client, args []string, ksDir string) {
	fs := flag.NewFlagSet("token transfer", flag.ExitOnError)
	sf := addSignerFlags(fs)
	tok := fs.String("token", "", "Token address")
	to := fs.String("to", "", "Recipient address")
	amount := fs.String("amount", "", "Amount in tokens")
	fs.Parse(args)
	if *tok == "" || *to == "" || *amount == "" {
		fatal("Usage: launchpad-cli token transfer --wallet <w> --token <t> --to <addr> --amount <tokens>")
	}
	tokAddr := mustAddress(*tok, "token")
	recipient := mustAddress(*to, "recipient")
	units, err := parseTokenUnits(*amount)
	if err != nil {
		fatal("invalid amount %q: %v", *amount, err)
	}

	sk, user := sf.unlock(ksDir)
	defer sk.Zero()

	var key rpc.RelayerKeyResult
	if err := client.Call("relayer_getPublicKey", nil, &key); err != nil {
		fatal("relayer_getPublicKey: %v", err)
	}
	input, err := fhe.EncryptInput(key.PublicKey, user, tokAddr, units)
	if err != nil {
		fatal("encrypt amount: %v", err)
	}

	r := submit(client, sk, tokAddr, token.MethodTransferInput, token.TransferInputArgs{To: recipient, Input: input}, nil)
	printSubmitted(r)
	fmt.Printf("Sent %s tokens to %s (amount encrypted)\n", *amount, recipient)
}

func cmdWithdraw(client *rpcclient.Client, args []string, ksDir string) {
	fs := flag.NewFlagSet("withdraw", flag.ExitOnError)
	sf := addSignerFlags(fs)
	to := fs.String("to", "", "Recipient address")
	amount := fs.String("amount", "", "Amount in coins (default: everything)")
	fs.Parse(args)
	if *to == "" {
		fatal("Usage: launchpad-cli withdraw --wallet <w> --to <addr> [--amount <coins>]")
	}
	w := factory.WithdrawArgs{To: mustAddress(*to, "recipient")}
	if *amount != "" {
		w.Amount = jsonBig(mustCoin(*amount))
	}

	sk, _ := sf.unlock(ksDir)
	defer sk.Zero()

	r := submit(client, sk, chainInfo(client).Factory, factory.MethodWithdraw, w, nil)
	printSubmitted(r)
	for _, ev := range r.Events {
		var we factory.WithdrawalEvent
		if ev.Name == factory.EventWithdrawal && ev.Decode(&we) == nil {
			fmt.Printf("Withdrew: %s to %s\n", types.FormatCoin(we.AmountOf()), we.Recipient)
		}
	}
}

func printTokenTable(recs []factory.TokenRecord) {
	if len(recs) == 0 {
		fmt.Println("No tokens.")
		return
	}
	fmt.Printf("%-42s %-10s %-20s %18s %18s\n", "TOKEN", "SYMBOL", "NAME", "MINTED", "SUPPLY")
	for _, r := range recs {
		fmt.Printf("%-42s %-10s %-20s %18s %18s\n",
			r.Token, r.Symbol, r.Name, formatTokenUnits(r.MintedSupply), formatTokenUnits(r.MaxSupply))
	}
}
