// Package types defines core primitive types for the launchpad ledger.
package types

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
)

// HashSize is the length of a hash in bytes.
const HashSize = 32

// Hash represents a 256-bit hash value.
type Hash [HashSize]byte

// Handle references a ciphertext held by the confidential coprocessor.
// A handle reveals nothing about the value it refers to.
type Handle Hash

// IsZero returns true if the hash is all zeros.
func (h Hash) IsZero() bool {
	return h == Hash{}
}

// String returns the hex-encoded hash.
func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

// Bytes returns a copy of the hash as a byte slice.
func (h Hash) Bytes() []byte {
	b := make([]byte, HashSize)
	copy(b, h[:])
	return b
}

// MarshalJSON encodes the hash as a hex string.
func (h Hash) MarshalJSON() ([]byte, error) {
	return json.Marshal(h.String())
}

// UnmarshalJSON decodes a hex string into a hash.
func (h *Hash) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "" {
		*h = Hash{}
		return nil
	}
	parsed, err := HexToHash(s)
	if err != nil {
		return err
	}
	*h = parsed
	return nil
}

// HexToHash converts a hex string (optionally 0x-prefixed) to a Hash.
// Returns an error if the string is not exactly 64 hex characters.
func HexToHash(s string) (Hash, error) {
	b, err := hex.DecodeString(strings.TrimPrefix(s, "0x"))
	if err != nil {
		return Hash{}, fmt.Errorf("invalid hex: %w", err)
	}
	if len(b) != HashSize {
		return Hash{}, fmt.Errorf("hash must be %d bytes, got %d", HashSize, len(b))
	}
	var h Hash
	copy(h[:], b)
	return h, nil
}

// IsZero returns true if the handle is all zeros (no ciphertext).
func (h Handle) IsZero() bool {
	return Hash(h).IsZero()
}

// String returns the hex-encoded handle.
func (h Handle) String() string {
	return Hash(h).String()
}

// MarshalJSON encodes the handle as a hex string.
func (h Handle) MarshalJSON() ([]byte, error) {
	return Hash(h).MarshalJSON()
}

// UnmarshalJSON decodes a hex string into a handle.
func (h *Handle) UnmarshalJSON(data []byte) error {
	return (*Hash)(h).UnmarshalJSON(data)
}

// HexToHandle converts a hex string to a Handle.
func HexToHandle(s string) (Handle, error) {
	h, err := HexToHash(s)
	return Handle(h), err
}
