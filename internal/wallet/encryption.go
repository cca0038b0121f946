package wallet

import (
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
)

// ErrWrongPassword is returned when a sealed blob fails authentication.
var ErrWrongPassword = errors.New("wrong password or corrupted wallet")

const (
	sealVersion = 1
	saltSize    = 16

	// version(1) | memory(4) | iterations(4) | parallelism(1) | salt(16) | nonce(24)
	sealHeaderSize = 1 + 4 + 4 + 1 + saltSize + chacha20poly1305.NonceSizeX

	// Upper bounds on KDF parameters read back from disk.
	maxMemoryKiB  = 4 << 20
	maxIterations = 64
)

// KDFParams are the Argon2id cost parameters used to seal a wallet.
type KDFParams struct {
	Memory      uint32 // KiB
	Iterations  uint32
	Parallelism uint8
}

// DefaultKDF returns the parameters used for new wallets.
func DefaultKDF() KDFParams {
	return KDFParams{
		Memory:      64 * 1024,
		Iterations:  3,
		Parallelism: 4,
	}
}

func (p KDFParams) validate() error {
	if p.Memory == 0 || p.Memory > maxMemoryKiB {
		return fmt.Errorf("kdf memory %d KiB out of range", p.Memory)
	}
	if p.Iterations == 0 || p.Iterations > maxIterations {
		return fmt.Errorf("kdf iterations %d out of range", p.Iterations)
	}
	if p.Parallelism == 0 {
		return fmt.Errorf("kdf parallelism must be positive")
	}
	return nil
}

func (p KDFParams) key(password, salt []byte) []byte {
	return argon2.IDKey(password, salt, p.Iterations, p.Memory, p.Parallelism, chacha20poly1305.KeySize)
}

// Encrypt seals data under password with Argon2id and XChaCha20-Poly1305.
// The header, which carries the KDF parameters, is authenticated as
// associated data.
func Encrypt(data, password []byte, params KDFParams) ([]byte, error) {
	if err := params.validate(); err != nil {
		return nil, err
	}

	out := make([]byte, 0, sealHeaderSize+len(data)+chacha20poly1305.Overhead)
	out = append(out, sealVersion)
	out = binary.BigEndian.AppendUint32(out, params.Memory)
	out = binary.BigEndian.AppendUint32(out, params.Iterations)
	out = append(out, params.Parallelism)

	random := make([]byte, saltSize+chacha20poly1305.NonceSizeX)
	if _, err := rand.Read(random); err != nil {
		return nil, fmt.Errorf("read random: %w", err)
	}
	out = append(out, random...)
	salt := random[:saltSize]
	nonce := random[saltSize:]

	key := params.key(password, salt)
	defer clear(key)
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	header := append([]byte(nil), out...)
	return aead.Seal(out, nonce, data, header), nil
}

// Decrypt opens a blob produced by Encrypt.
func Decrypt(sealed, password []byte) ([]byte, error) {
	if len(sealed) < sealHeaderSize+chacha20poly1305.Overhead {
		return nil, fmt.Errorf("sealed data too short: %d bytes", len(sealed))
	}
	if sealed[0] != sealVersion {
		return nil, fmt.Errorf("unsupported seal version %d", sealed[0])
	}
	params := KDFParams{
		Memory:      binary.BigEndian.Uint32(sealed[1:5]),
		Iterations:  binary.BigEndian.Uint32(sealed[5:9]),
		Parallelism: sealed[9],
	}
	if err := params.validate(); err != nil {
		return nil, err
	}
	salt := sealed[10 : 10+saltSize]
	nonce := sealed[10+saltSize : sealHeaderSize]

	key := params.key(password, salt)
	defer clear(key)
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	plain, err := aead.Open(nil, nonce, sealed[sealHeaderSize:], sealed[:sealHeaderSize])
	if err != nil {
		return nil, ErrWrongPassword
	}
	return plain, nil
}
