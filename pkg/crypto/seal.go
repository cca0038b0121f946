package crypto

import (
	"crypto/rand"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

// Sealed box format: ephemeral pubkey(33) | nonce(24) | ciphertext.
const sealHeader = 33 + chacha20poly1305.NonceSizeX

// SealTo encrypts plaintext to the holder of recipient using an ephemeral
// secp256k1 key. The AEAD key is BLAKE3-derived from the ECDH secret under
// context, and aad is authenticated but not encrypted.
func SealTo(recipient []byte, context string, plaintext, aad []byte) ([]byte, error) {
	eph, err := GenerateKey()
	if err != nil {
		return nil, err
	}
	defer eph.Zero()

	secret, err := eph.SharedSecret(recipient)
	if err != nil {
		return nil, err
	}
	key := DeriveKey(context, secret)
	defer zero(key)

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}

	out := make([]byte, 0, sealHeader+len(plaintext)+aead.Overhead())
	out = append(out, eph.PublicKey()...)
	out = append(out, nonce...)
	return aead.Seal(out, nonce, plaintext, aad), nil
}

// Open decrypts a box produced by SealTo for this key.
func (pk *PrivateKey) Open(box []byte, context string, aad []byte) ([]byte, error) {
	if len(box) < sealHeader+chacha20poly1305.Overhead {
		return nil, fmt.Errorf("sealed box too short: %d bytes", len(box))
	}
	secret, err := pk.SharedSecret(box[:33])
	if err != nil {
		return nil, err
	}
	key := DeriveKey(context, secret)
	defer zero(key)

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	plaintext, err := aead.Open(nil, box[33:sealHeader], box[sealHeader:], aad)
	if err != nil {
		return nil, fmt.Errorf("open sealed box: %w", err)
	}
	return plaintext, nil
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
