// owner_key.go prints the public key and address of a wallet account, for
// filling in the owner of a genesis file.
// Usage: go run scripts/owner_key.go <mnemonic-file> [account-index]
package main

import (
	"encoding/hex"
	"fmt"
	"os"
	"strconv"

	"github.com/Klingon-tech/klingnet-launchpad/internal/wallet"
	"github.com/Klingon-tech/klingnet-launchpad/pkg/crypto"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: owner_key <mnemonic-file> [account-index]")
		os.Exit(1)
	}
	var index uint64
	if len(os.Args) > 2 {
		var err error
		if index, err = strconv.ParseUint(os.Args[2], 10, 32); err != nil {
			fail(fmt.Errorf("account index: %w", err))
		}
	}

	data, err := os.ReadFile(os.Args[1])
	if err != nil {
		fail(err)
	}
	seed, err := wallet.SeedFromMnemonic(string(data), "")
	if err != nil {
		fail(err)
	}
	master, err := wallet.NewMasterKey(seed)
	if err != nil {
		fail(err)
	}
	key, err := master.Account(uint32(index))
	if err != nil {
		fail(err)
	}

	pub := key.PublicKey()
	fmt.Printf("path=%s\n", wallet.AccountPath(uint32(index)))
	fmt.Printf("pubkey=%s\n", hex.EncodeToString(pub))
	fmt.Printf("address=%s\n", crypto.AddressFromPubKey(pub))
}

func fail(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
