package wallet

import (
	"bytes"
	"errors"
	"testing"
)

// fastKDF returns low-cost Argon2 params for fast tests.
func fastKDF() KDFParams {
	return KDFParams{Memory: 64, Iterations: 1, Parallelism: 1}
}

func TestEncryptDecrypt_Roundtrip(t *testing.T) {
	for _, plain := range [][]byte{{}, []byte("secret wallet seed"), bytes.Repeat([]byte{0xab}, 4096)} {
		sealed, err := Encrypt(plain, []byte("pw"), fastKDF())
		if err != nil {
			t.Fatalf("Encrypt() error: %v", err)
		}
		got, err := Decrypt(sealed, []byte("pw"))
		if err != nil {
			t.Fatalf("Decrypt() error: %v", err)
		}
		if !bytes.Equal(got, plain) {
			t.Errorf("roundtrip of %d bytes mismatched", len(plain))
		}
	}
}

func TestEncrypt_Randomized(t *testing.T) {
	a, _ := Encrypt([]byte("seed"), []byte("pw"), fastKDF())
	b, _ := Encrypt([]byte("seed"), []byte("pw"), fastKDF())
	if bytes.Equal(a, b) {
		t.Error("two encryptions produced identical output")
	}
}

func TestDecrypt_WrongPassword(t *testing.T) {
	sealed, _ := Encrypt([]byte("seed"), []byte("right"), fastKDF())
	if _, err := Decrypt(sealed, []byte("wrong")); !errors.Is(err, ErrWrongPassword) {
		t.Errorf("err = %v, want ErrWrongPassword", err)
	}
}

func TestDecrypt_TamperedHeader(t *testing.T) {
	sealed, _ := Encrypt([]byte("seed"), []byte("pw"), fastKDF())

	// Flipping a salt byte must fail authentication.
	bad := append([]byte(nil), sealed...)
	bad[12] ^= 0xff
	if _, err := Decrypt(bad, []byte("pw")); !errors.Is(err, ErrWrongPassword) {
		t.Errorf("tampered salt: err = %v", err)
	}

	bad = append([]byte(nil), sealed...)
	bad[0] = 9
	if _, err := Decrypt(bad, []byte("pw")); err == nil {
		t.Error("unknown version should fail")
	}

	// Absurd KDF cost is rejected before deriving.
	bad = append([]byte(nil), sealed...)
	bad[1], bad[2], bad[3], bad[4] = 0xff, 0xff, 0xff, 0xff
	if _, err := Decrypt(bad, []byte("pw")); err == nil || errors.Is(err, ErrWrongPassword) {
		t.Errorf("oversized memory: err = %v", err)
	}
}

func TestDecrypt_Truncated(t *testing.T) {
	sealed, _ := Encrypt([]byte("seed"), []byte("pw"), fastKDF())
	if _, err := Decrypt(sealed[:sealHeaderSize], []byte("pw")); err == nil {
		t.Error("truncated blob should fail")
	}
}

func TestEncrypt_InvalidParams(t *testing.T) {
	for _, p := range []KDFParams{
		{Memory: 0, Iterations: 1, Parallelism: 1},
		{Memory: 64, Iterations: 0, Parallelism: 1},
		{Memory: 64, Iterations: 1, Parallelism: 0},
	} {
		if _, err := Encrypt([]byte("x"), []byte("pw"), p); err == nil {
			t.Errorf("Encrypt(%+v) should fail", p)
		}
	}
}
