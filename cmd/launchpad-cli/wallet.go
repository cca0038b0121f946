package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"strings"
	"syscall"

	"golang.org/x/term"

	"github.com/Klingon-tech/klingnet-launchpad/internal/wallet"
)

func cmdWallet(args []string, ksDir string) {
	const usageLine = "Usage: launchpad-cli wallet <create|import|list|address|new-account> [flags]"
	if len(args) < 1 {
		fatal(usageLine)
	}

	switch args[0] {
	case "create":
		cmdWalletCreate(args[1:], ksDir)
	case "import":
		cmdWalletImport(args[1:], ksDir)
	case "list":
		cmdWalletList(ksDir)
	case "address":
		cmdWalletAddress(args[1:], ksDir)
	case "new-account":
		cmdWalletNewAccount(args[1:], ksDir)
	default:
		fatal("Unknown wallet command: %s\n%s", args[0], usageLine)
	}
}

func openKeystore(ksDir string) *wallet.Keystore {
	ks, err := wallet.NewKeystore(ksDir)
	if err != nil {
		fatal("open keystore: %v", err)
	}
	return ks
}

func cmdWalletCreate(args []string, ksDir string) {
	fs := flag.NewFlagSet("wallet create", flag.ExitOnError)
	name := fs.String("name", "", "Wallet name")
	fs.Parse(args)
	if *name == "" {
		fatal("Usage: launchpad-cli wallet create --name <name>")
	}

	mnemonic, err := wallet.GenerateMnemonic()
	if err != nil {
		fatal("generate mnemonic: %v", err)
	}
	fmt.Println("Mnemonic (write this down!):")
	fmt.Printf("  %s\n\n", mnemonic)

	saveWallet(ksDir, *name, mnemonic)
}

func cmdWalletImport(args []string, ksDir string) {
	fs := flag.NewFlagSet("wallet import", flag.ExitOnError)
	name := fs.String("name", "", "Wallet name")
	mnemonic := fs.String("mnemonic", "", "BIP-39 mnemonic")
	fs.Parse(args)
	if *name == "" || *mnemonic == "" {
		fatal("Usage: launchpad-cli wallet import --name <name> --mnemonic \"word1 word2 ...\"")
	}
	if !wallet.ValidateMnemonic(*mnemonic) {
		fatal("invalid mnemonic")
	}
	saveWallet(ksDir, *name, *mnemonic)
}

func saveWallet(ksDir, name, mnemonic string) {
	password := readNewPassword()
	seed, err := wallet.SeedFromMnemonic(mnemonic, "")
	if err != nil {
		fatal("derive seed: %v", err)
	}
	defer clear(seed)

	acct, err := openKeystore(ksDir).Create(name, seed, password, wallet.DefaultKDF())
	if err != nil {
		fatal("create wallet: %v", err)
	}
	fmt.Printf("\nWallet saved: %s\n", name)
	fmt.Printf("Address: %s\n", acct.Address)
}

func cmdWalletList(ksDir string) {
	names, err := openKeystore(ksDir).List()
	if err != nil {
		fatal("list wallets: %v", err)
	}
	if len(names) == 0 {
		fmt.Println("No wallets found.")
		return
	}
	for _, n := range names {
		fmt.Println(n)
	}
}

func cmdWalletAddress(args []string, ksDir string) {
	fs := flag.NewFlagSet("wallet address", flag.ExitOnError)
	name := fs.String("wallet", "", "Wallet name")
	fs.Parse(args)
	if *name == "" {
		fatal("Usage: launchpad-cli wallet address --wallet <name>")
	}

	accts, err := openKeystore(ksDir).Accounts(*name)
	if err != nil {
		fatal("list accounts: %v", err)
	}
	for _, a := range accts {
		fmt.Printf("%-4d %s  %-20s %s\n", a.Index, a.Address, a.Path(), a.Label)
	}
}

func cmdWalletNewAccount(args []string, ksDir string) {
	fs := flag.NewFlagSet("wallet new-account", flag.ExitOnError)
	name := fs.String("wallet", "", "Wallet name")
	label := fs.String("label", "", "Account label")
	fs.Parse(args)
	if *name == "" {
		fatal("Usage: launchpad-cli wallet new-account --wallet <name> [--label <label>]")
	}

	password, err := readPassword("Enter password: ")
	if err != nil {
		fatal("read password: %v", err)
	}
	acct, err := openKeystore(ksDir).NewAccount(*name, password, *label)
	if err != nil {
		fatal("new account: %v", err)
	}
	fmt.Printf("Account %d: %s (%s)\n", acct.Index, acct.Address, acct.Path())
}

// ── Password helpers ────────────────────────────────────────────────────

func readNewPassword() []byte {
	password, err := readPassword("Enter password: ")
	if err != nil {
		fatal("read password: %v", err)
	}
	confirm, err := readPassword("Confirm password: ")
	if err != nil {
		fatal("read password: %v", err)
	}
	if string(password) != string(confirm) {
		fatal("passwords do not match")
	}
	return password
}

var stdinLines = bufio.NewReader(os.Stdin)

// readPassword reads without echo from a terminal, or one line from a
// pipe so the CLI can be scripted.
func readPassword(prompt string) ([]byte, error) {
	fmt.Fprint(os.Stderr, prompt)
	if !term.IsTerminal(int(syscall.Stdin)) {
		line, err := stdinLines.ReadString('\n')
		fmt.Fprintln(os.Stderr)
		if err != nil && line == "" {
			return nil, err
		}
		return []byte(strings.TrimRight(line, "\r\n")), nil
	}
	password, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Fprintln(os.Stderr) // newline after hidden input
	if err != nil {
		return nil, err
	}
	return password, nil
}
