package types

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
)

// Bytes is a byte slice that encodes as a hex string in JSON.
type Bytes []byte

// String returns the hex encoding.
func (b Bytes) String() string {
	return hex.EncodeToString(b)
}

// MarshalJSON encodes b as a hex string.
func (b Bytes) MarshalJSON() ([]byte, error) {
	return json.Marshal(hex.EncodeToString(b))
}

// UnmarshalJSON decodes a hex string, optionally 0x-prefixed.
func (b *Bytes) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	raw, err := hex.DecodeString(strings.TrimPrefix(s, "0x"))
	if err != nil {
		return fmt.Errorf("invalid hex: %w", err)
	}
	*b = raw
	return nil
}
