// launchpad-cli is a command-line client for a launchpadd node.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/Klingon-tech/klingnet-launchpad/config"
	"github.com/Klingon-tech/klingnet-launchpad/internal/factory"
	"github.com/Klingon-tech/klingnet-launchpad/internal/ledger"
	"github.com/Klingon-tech/klingnet-launchpad/internal/rpc"
	"github.com/Klingon-tech/klingnet-launchpad/internal/rpcclient"
)

// globals are the flags accepted before the subcommand.
type globals struct {
	rpcURL  string
	dataDir string
	network string
}

// keystoreDir matches launchpadd's layout: <datadir>/<network>/keystore.
func (g globals) keystoreDir() string {
	cfg := config.Default(config.NetworkType(g.network))
	cfg.DataDir = g.dataDir
	return cfg.KeystoreDir()
}

// parseGlobals consumes --rpc, --datadir and --network ahead of the
// subcommand and returns the remaining arguments.
func parseGlobals(args []string) (globals, []string) {
	g := globals{dataDir: config.DefaultDataDir(), network: string(config.Mainnet)}
	for len(args) > 0 {
		name, value, ok := splitFlag(args)
		if !ok {
			break
		}
		switch name {
		case "rpc":
			g.rpcURL = value
		case "datadir":
			g.dataDir = value
		case "network":
			g.network = strings.ToLower(value)
		case "testnet":
			g.network = string(config.Testnet)
		}
		if name == "testnet" || strings.Contains(args[0], "=") {
			args = args[1:]
		} else {
			args = args[2:]
		}
	}
	if g.rpcURL == "" {
		cfg := config.Default(config.NetworkType(g.network))
		g.rpcURL = fmt.Sprintf("http://127.0.0.1:%d", cfg.RPC.Port)
	}
	return g, args
}

// splitFlag recognizes one global flag at args[0].
func splitFlag(args []string) (name, value string, ok bool) {
	arg := args[0]
	if arg == "--testnet" {
		return "testnet", "", true
	}
	for _, n := range []string{"rpc", "datadir", "network"} {
		if v, found := strings.CutPrefix(arg, "--"+n+"="); found {
			return n, v, true
		}
		if arg == "--"+n && len(args) > 1 {
			return n, args[1], true
		}
	}
	return "", "", false
}

func main() {
	g, args := parseGlobals(os.Args[1:])
	if len(args) == 0 {
		usage()
		os.Exit(1)
	}

	client := rpcclient.New(g.rpcURL)
	cmd, cmdArgs := args[0], args[1:]

	switch cmd {
	case "status":
		cmdStatus(client)
	case "account":
		cmdAccount(client, cmdArgs)
	case "receipt":
		cmdReceipt(client, cmdArgs)
	case "wallet":
		cmdWallet(cmdArgs, g.keystoreDir())
	case "factory":
		cmdFactory(client, cmdArgs)
	case "token":
		cmdToken(client, cmdArgs, g.keystoreDir())
	case "withdraw":
		cmdWithdraw(client, cmdArgs, g.keystoreDir())
	case "events":
		cmdEvents(client, cmdArgs)
	case "help", "--help", "-h":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, `Usage: launchpad-cli [global flags] <command> [flags]

Global flags:
  --rpc <url>         RPC endpoint (default: http://127.0.0.1:8745, testnet 8845)
  --datadir <path>    Data directory (default: ~/.launchpad)
  --network <net>     mainnet (default) or testnet
  --testnet           Shorthand for --network=testnet

Commands:
  status                          Show ledger status
  account <address>               Show balance, nonce and kind of an address
  receipt <call_hash>             Show the receipt of a submitted call

  wallet create --name <n>        Create a new wallet
  wallet import --name <n> --mnemonic "..."
                                  Import a wallet from a mnemonic
  wallet list                     List wallets
  wallet address --wallet <w>     List wallet accounts
  wallet new-account --wallet <w> [--label <l>]
                                  Derive the next account

  factory info                    Show factory address, owner and balance

  token list [--offset n] [--limit n]
                                  List launched tokens
  token info <token>              Show a token record
  token remaining <token>         Show unminted base units
  token mine [--creator <addr> | --wallet <w>]
                                  List tokens created by an address
  token quote --token <t> --amount <coins>
                                  Quote a purchase
  token create --wallet <w> --name <n> --symbol <SYM> [--supply <tokens>]
                                  Launch a token through the factory
  token buy --wallet <w> --token <t> --amount <coins>
                                  Buy tokens with native coin
  token balance --wallet <w> --token <t>
                                  Decrypt your balance through the relayer
  token transfer --wallet <w> --token <t> --to <addr> --amount <tokens>
                                  Send an encrypted amount

  withdraw --wallet <w> --to <addr> [--amount <coins>]
                                  Withdraw factory proceeds (owner only)
  events [--from n] [--limit n] [--name <event>]
                                  List ledger events

Signing commands accept --account <index> (default 0).
`)
}

// ── status ──────────────────────────────────────────────────────────────

func cmdStatus(client *rpcclient.Client) {
	var info rpc.ChainInfoResult
	if err := client.Call("chain_getInfo", nil, &info); err != nil {
		fatal("chain_getInfo: %v", err)
	}
	fmt.Printf("Chain:    %s (%s)\n", info.ChainID, info.ChainName)
	fmt.Printf("Symbol:   %s\n", info.Symbol)
	fmt.Printf("Height:   %d\n", info.Height)
	fmt.Printf("Factory:  %s\n", info.Factory)
}

func cmdAccount(client *rpcclient.Client, args []string) {
	if len(args) != 1 {
		fatal("Usage: launchpad-cli account <address>")
	}
	var acct rpc.AccountResult
	if err := client.Call("account_get", rpc.AddressParam{Address: args[0]}, &acct); err != nil {
		fatal("account_get: %v", err)
	}
	fmt.Printf("Address:  %s\n", acct.Address)
	fmt.Printf("Balance:  %s\n", formatCoinString(acct.Balance))
	fmt.Printf("Nonce:    %d\n", acct.Nonce)
	if acct.Kind != "" {
		fmt.Printf("Contract: %s\n", acct.Kind)
	}
}

func cmdReceipt(client *rpcclient.Client, args []string) {
	if len(args) != 1 {
		fatal("Usage: launchpad-cli receipt <call_hash>")
	}
	var rcpt ledger.Receipt
	if err := client.Call("call_getReceipt", rpc.HashParam{Hash: args[0]}, &rcpt); err != nil {
		fatal("call_getReceipt: %v", err)
	}
	printReceipt(&rcpt)
}

// ── factory ─────────────────────────────────────────────────────────────

func cmdFactory(client *rpcclient.Client, args []string) {
	if len(args) < 1 || args[0] != "info" {
		fatal("Usage: launchpad-cli factory info")
	}
	var info factory.Info
	if err := client.Call("factory_getInfo", nil, &info); err != nil {
		fatal("factory_getInfo: %v", err)
	}
	fmt.Printf("Factory:         %s\n", info.Address)
	fmt.Printf("Owner:           %s\n", info.Owner)
	fmt.Printf("Balance:         %s\n", formatCoinString(info.Balance))
	fmt.Printf("Tokens:          %d\n", info.TokenCount)
	fmt.Printf("Per coin:        %s tokens\n", formatTokenUnits(info.TokensPerCoin))
	fmt.Printf("Default supply:  %d tokens\n", info.DefaultSupply)
}

// ── events ──────────────────────────────────────────────────────────────

func cmdEvents(client *rpcclient.Client, args []string) {
	fs := flag.NewFlagSet("events", flag.ExitOnError)
	from := fs.Uint64("from", 0, "First event sequence number")
	limit := fs.Int("limit", 50, "Maximum events")
	name := fs.String("name", "", "Only events with this name")
	fs.Parse(args)

	var res rpc.EventsResult
	if err := client.Call("events_list", rpc.EventsParam{From: *from, Limit: *limit, Name: *name}, &res); err != nil {
		fatal("events_list: %v", err)
	}
	if len(res.Events) == 0 {
		fmt.Println("No events.")
		return
	}
	for _, ev := range res.Events {
		fmt.Printf("#%-6d h=%-6d %-12s %s %s\n", ev.Seq, ev.Height, ev.Name, ev.Contract, compactJSON(ev.Data))
	}
	fmt.Printf("\nNext: --from %d\n", res.Next)
}

// ── Output helpers ──────────────────────────────────────────────────────

func printReceipt(r *ledger.Receipt) {
	fmt.Printf("Call:     %s\n", r.CallHash)
	fmt.Printf("From:     %s\n", r.From)
	fmt.Printf("To:       %s\n", r.To)
	fmt.Printf("Method:   %s\n", r.Method)
	fmt.Printf("Nonce:    %d\n", r.Nonce)
	fmt.Printf("Height:   %d\n", r.Height)
	fmt.Printf("Status:   %s\n", r.Status)
	if r.Error != "" {
		fmt.Printf("Error:    %s\n", r.Error)
	}
	if len(r.Result) > 0 {
		fmt.Printf("Result:   %s\n", compactJSON(r.Result))
	}
	for _, ev := range r.Events {
		fmt.Printf("Event:    %s %s\n", ev.Name, compactJSON(ev.Data))
	}
}

func compactJSON(raw json.RawMessage) string {
	return strings.TrimSpace(string(raw))
}

// ── Error helper ────────────────────────────────────────────────────────

func fatal(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}
