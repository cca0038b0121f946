// Package wallet implements the HD wallets that sign launchpad calls.
//
// A wallet is a BIP-39 mnemonic whose seed is stored encrypted on disk.
// Accounts are derived along m/44'/8888'/0'/0/index.
package wallet

import (
	"fmt"
	"strings"

	"github.com/tyler-smith/go-bip39"
)

const (
	// MnemonicEntropyBits is the entropy size for 24-word mnemonics.
	MnemonicEntropyBits = 256

	// SeedSize is the length of a BIP-39 seed in bytes.
	SeedSize = 64
)

// GenerateMnemonic creates a new 24-word BIP-39 mnemonic.
func GenerateMnemonic() (string, error) {
	entropy, err := bip39.NewEntropy(MnemonicEntropyBits)
	if err != nil {
		return "", fmt.Errorf("generate entropy: %w", err)
	}
	mnemonic, err := bip39.NewMnemonic(entropy)
	if err != nil {
		return "", fmt.Errorf("generate mnemonic: %w", err)
	}
	return mnemonic, nil
}

// NormalizeMnemonic collapses whitespace and lowercases the words, so a
// phrase pasted across lines still validates.
func NormalizeMnemonic(mnemonic string) string {
	return strings.ToLower(strings.Join(strings.Fields(mnemonic), " "))
}

// ValidateMnemonic checks word count, wordlist membership and checksum.
func ValidateMnemonic(mnemonic string) bool {
	return bip39.IsMnemonicValid(NormalizeMnemonic(mnemonic))
}

// SeedFromMnemonic derives the 64-byte seed of a mnemonic and optional
// passphrase (PBKDF2-SHA512, 2048 rounds).
func SeedFromMnemonic(mnemonic, passphrase string) ([]byte, error) {
	mnemonic = NormalizeMnemonic(mnemonic)
	if !bip39.IsMnemonicValid(mnemonic) {
		return nil, fmt.Errorf("invalid mnemonic")
	}
	seed, err := bip39.NewSeedWithErrorChecking(mnemonic, passphrase)
	if err != nil {
		return nil, fmt.Errorf("derive seed: %w", err)
	}
	return seed, nil
}
