package wallet

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/Klingon-tech/klingnet-launchpad/pkg/crypto"
	"github.com/Klingon-tech/klingnet-launchpad/pkg/types"
)

const (
	walletVersion = 1
	walletExt     = ".wallet"
)

// Keystore errors.
var (
	ErrWalletExists   = errors.New("wallet already exists")
	ErrWalletNotFound = errors.New("wallet not found")
	ErrBadWalletName  = errors.New("invalid wallet name")
	ErrNoAccount      = errors.New("account not found")
)

// Account is a derived signing account recorded in a wallet file.
// Addresses are stored so they can be listed without the password.
type Account struct {
	Index   uint32        `json:"index"`
	Label   string        `json:"label,omitempty"`
	Address types.Address `json:"address"`
}

// Path returns the derivation path of the account.
func (a Account) Path() string {
	return AccountPath(a.Index)
}

// walletFile is the on-disk JSON layout of a wallet.
type walletFile struct {
	Version   int       `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	Seed      []byte    `json:"seed"` // Encrypt(seed, password)
	Accounts  []Account `json:"accounts"`
}

// Keystore manages wallet files in one directory.
type Keystore struct {
	dir string
}

// NewKeystore opens the keystore in dir, creating the directory if needed.
func NewKeystore(dir string) (*Keystore, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("create keystore dir: %w", err)
	}
	return &Keystore{dir: dir}, nil
}

// Dir returns the keystore directory.
func (ks *Keystore) Dir() string {
	return ks.dir
}

func (ks *Keystore) path(name string) (string, error) {
	if name == "" || strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return "", fmt.Errorf("%w: %q", ErrBadWalletName, name)
	}
	return filepath.Join(ks.dir, name+walletExt), nil
}

// Create seals seed under password and records account 0.
func (ks *Keystore) Create(name string, seed, password []byte, params KDFParams) (Account, error) {
	path, err := ks.path(name)
	if err != nil {
		return Account{}, err
	}
	if _, err := os.Stat(path); err == nil {
		return Account{}, fmt.Errorf("%w: %q", ErrWalletExists, name)
	}

	master, err := NewMasterKey(seed)
	if err != nil {
		return Account{}, err
	}
	first, err := master.Account(0)
	if err != nil {
		return Account{}, err
	}
	sealed, err := Encrypt(seed, password, params)
	if err != nil {
		return Account{}, fmt.Errorf("encrypt seed: %w", err)
	}

	acct := Account{Index: 0, Label: "default", Address: first.Address()}
	wf := &walletFile{
		Version:   walletVersion,
		CreatedAt: time.Now().UTC(),
		Seed:      sealed,
		Accounts:  []Account{acct},
	}
	if err := writeWallet(path, wf); err != nil {
		return Account{}, err
	}
	return acct, nil
}

// Seed decrypts and returns the wallet seed.
func (ks *Keystore) Seed(name string, password []byte) ([]byte, error) {
	wf, _, err := ks.read(name)
	if err != nil {
		return nil, err
	}
	return Decrypt(wf.Seed, password)
}

// Signer unlocks the wallet and returns the key of account index.
func (ks *Keystore) Signer(name string, password []byte, index uint32) (*crypto.PrivateKey, error) {
	seed, err := ks.Seed(name, password)
	if err != nil {
		return nil, err
	}
	defer clear(seed)
	master, err := NewMasterKey(seed)
	if err != nil {
		return nil, err
	}
	key, err := master.Account(index)
	if err != nil {
		return nil, err
	}
	return key.PrivateKey()
}

// NewAccount derives the next unused account index and records it.
func (ks *Keystore) NewAccount(name string, password []byte, label string) (Account, error) {
	wf, path, err := ks.read(name)
	if err != nil {
		return Account{}, err
	}
	seed, err := Decrypt(wf.Seed, password)
	if err != nil {
		return Account{}, err
	}
	defer clear(seed)
	master, err := NewMasterKey(seed)
	if err != nil {
		return Account{}, err
	}

	var next uint32
	for _, a := range wf.Accounts {
		if a.Index >= next {
			next = a.Index + 1
		}
	}
	key, err := master.Account(next)
	if err != nil {
		return Account{}, err
	}
	acct := Account{Index: next, Label: label, Address: key.Address()}
	wf.Accounts = append(wf.Accounts, acct)
	if err := writeWallet(path, wf); err != nil {
		return Account{}, err
	}
	return acct, nil
}

// Accounts lists the recorded accounts of a wallet ordered by index.
func (ks *Keystore) Accounts(name string) ([]Account, error) {
	wf, _, err := ks.read(name)
	if err != nil {
		return nil, err
	}
	accts := append([]Account(nil), wf.Accounts...)
	sort.Slice(accts, func(i, j int) bool { return accts[i].Index < accts[j].Index })
	return accts, nil
}

// Account returns the recorded account with the given index.
func (ks *Keystore) Account(name string, index uint32) (Account, error) {
	accts, err := ks.Accounts(name)
	if err != nil {
		return Account{}, err
	}
	for _, a := range accts {
		if a.Index == index {
			return a, nil
		}
	}
	return Account{}, fmt.Errorf("%w: %s index %d", ErrNoAccount, name, index)
}

// List returns the names of all wallets, sorted.
func (ks *Keystore) List() ([]string, error) {
	entries, err := os.ReadDir(ks.dir)
	if err != nil {
		return nil, fmt.Errorf("read keystore dir: %w", err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != walletExt {
			continue
		}
		names = append(names, strings.TrimSuffix(e.Name(), walletExt))
	}
	sort.Strings(names)
	return names, nil
}

// Delete removes a wallet file.
func (ks *Keystore) Delete(name string) error {
	path, err := ks.path(name)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %q", ErrWalletNotFound, name)
		}
		return fmt.Errorf("remove wallet: %w", err)
	}
	return nil
}

func (ks *Keystore) read(name string) (*walletFile, string, error) {
	path, err := ks.path(name)
	if err != nil {
		return nil, "", err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, "", fmt.Errorf("%w: %q", ErrWalletNotFound, name)
		}
		return nil, "", fmt.Errorf("read wallet: %w", err)
	}
	var wf walletFile
	if err := json.Unmarshal(data, &wf); err != nil {
		return nil, "", fmt.Errorf("parse wallet: %w", err)
	}
	if wf.Version != walletVersion {
		return nil, "", fmt.Errorf("unsupported wallet version: %d", wf.Version)
	}
	return &wf, path, nil
}

// writeWallet replaces the wallet file via a temp file and rename.
func writeWallet(path string, wf *walletFile) error {
	data, err := json.MarshalIndent(wf, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal wallet: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("write wallet: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("write wallet: %w", err)
	}
	return nil
}
