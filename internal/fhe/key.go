package fhe

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/Klingon-tech/klingnet-launchpad/pkg/crypto"
)

// LoadOrCreateKey reads the hex-encoded network key at path, generating
// and saving a new one if the file does not exist.
func LoadOrCreateKey(path string) (*crypto.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err == nil {
		raw, err := hex.DecodeString(strings.TrimSpace(string(data)))
		if err != nil {
			return nil, fmt.Errorf("decode network key: %w", err)
		}
		return crypto.PrivateKeyFromBytes(raw)
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("read network key: %w", err)
	}

	key, err := crypto.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("generate network key: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("create key dir: %w", err)
	}
	if err := os.WriteFile(path, []byte(hex.EncodeToString(key.Serialize())), 0600); err != nil {
		return nil, fmt.Errorf("save network key: %w", err)
	}
	return key, nil
}
