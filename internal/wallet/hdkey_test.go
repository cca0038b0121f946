package wallet

import (
	"bytes"
	"encoding/hex"
	"testing"

	"github.com/tyler-smith/go-bip32"

	"github.com/Klingon-tech/klingnet-launchpad/config"
	"github.com/Klingon-tech/klingnet-launchpad/pkg/crypto"
)

func testMaster(t *testing.T) *HDKey {
	t.Helper()
	seed, err := SeedFromMnemonic(abandonAbout, "TREZOR")
	if err != nil {
		t.Fatalf("SeedFromMnemonic() error: %v", err)
	}
	master, err := NewMasterKey(seed)
	if err != nil {
		t.Fatalf("NewMasterKey() error: %v", err)
	}
	return master
}

func TestNewMasterKey(t *testing.T) {
	master := testMaster(t)
	if !master.IsPrivate() {
		t.Error("master key should be private")
	}
	if master.Depth() != 0 {
		t.Errorf("depth = %d, want 0", master.Depth())
	}
	if len(master.PublicKey()) != 33 {
		t.Errorf("public key length = %d, want 33", len(master.PublicKey()))
	}
}

func TestNewMasterKey_InvalidSeedLength(t *testing.T) {
	for _, n := range []int{0, 32, 128} {
		if _, err := NewMasterKey(make([]byte, n)); err == nil {
			t.Errorf("NewMasterKey(%d bytes) should fail", n)
		}
	}
}

func TestAccount_MatchesPath(t *testing.T) {
	master := testMaster(t)

	acct, err := master.Account(3)
	if err != nil {
		t.Fatalf("Account() error: %v", err)
	}
	if acct.Depth() != 5 {
		t.Errorf("depth = %d, want 5", acct.Depth())
	}

	cur := master
	for _, idx := range []uint32{
		bip32.FirstHardenedChild + 44,
		bip32.FirstHardenedChild + 8888,
		bip32.FirstHardenedChild,
		0,
		3,
	} {
		cur, err = cur.Child(idx)
		if err != nil {
			t.Fatal(err)
		}
	}
	if !bytes.Equal(cur.PublicKey(), acct.PublicKey()) {
		t.Error("Account(3) differs from m/44'/8888'/0'/0/3")
	}
	if got := AccountPath(3); got != "m/44'/8888'/0'/0/3" {
		t.Errorf("AccountPath(3) = %q", got)
	}
}

func TestAccount_Distinct(t *testing.T) {
	master := testMaster(t)
	a0, _ := master.Account(0)
	a1, _ := master.Account(1)
	if a0.Address() == a1.Address() {
		t.Error("accounts 0 and 1 share an address")
	}
	again, _ := testMaster(t).Account(0)
	if again.Address() != a0.Address() {
		t.Error("derivation is not deterministic")
	}
}

func TestPrivateKey_Signs(t *testing.T) {
	acct, err := testMaster(t).Account(0)
	if err != nil {
		t.Fatal(err)
	}
	sk, err := acct.PrivateKey()
	if err != nil {
		t.Fatalf("PrivateKey() error: %v", err)
	}
	if !bytes.Equal(sk.PublicKey(), acct.PublicKey()) {
		t.Fatal("signing key does not match derived public key")
	}
	if crypto.AddressFromPubKey(sk.PublicKey()) != acct.Address() {
		t.Error("address mismatch between key and HD key")
	}

	msg := crypto.Hash([]byte("launchpad"))
	sig, err := sk.Sign(msg[:])
	if err != nil {
		t.Fatalf("Sign() error: %v", err)
	}
	if !crypto.VerifySignature(msg[:], sig, acct.PublicKey()) {
		t.Error("signature does not verify")
	}
}

func TestNeuter(t *testing.T) {
	acct, _ := testMaster(t).Account(0)
	pub := acct.Neuter()
	if pub.IsPrivate() {
		t.Error("neutered key should be public")
	}
	if pub.Address() != acct.Address() {
		t.Error("neutered key changed the address")
	}
	if _, err := pub.PrivateKey(); err == nil {
		t.Error("public-only key should not yield a signer")
	}
}

func TestAccount_TestnetOwner(t *testing.T) {
	seed, err := SeedFromMnemonic(config.TestnetMnemonic, "")
	if err != nil {
		t.Fatal(err)
	}
	master, err := NewMasterKey(seed)
	if err != nil {
		t.Fatal(err)
	}
	key, err := master.Account(0)
	if err != nil {
		t.Fatal(err)
	}
	if got := hex.EncodeToString(key.PublicKey()); got != config.TestnetOwnerPubKey {
		t.Errorf("account 0 pubkey = %s, want testnet owner %s", got, config.TestnetOwnerPubKey)
	}
}
