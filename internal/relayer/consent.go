// Package relayer implements consent-gated user decryption.
//
// A holder never reveals a balance on the ledger. Instead the client
// generates a throwaway key pair, signs a time-bounded consent naming the
// contracts it covers, and asks the relayer to re-encrypt the requested
// ciphertexts to the throwaway key. Only the client can open the result.
package relayer

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/Klingon-tech/klingnet-launchpad/pkg/crypto"
	"github.com/Klingon-tech/klingnet-launchpad/pkg/types"
)

// Relayer errors.
var (
	ErrBadSignature         = errors.New("consent signature invalid")
	ErrSignerMismatch       = errors.New("consent signer is not the user")
	ErrConsentExpired       = errors.New("consent expired")
	ErrConsentNotStarted    = errors.New("consent not yet valid")
	ErrDurationTooLong      = errors.New("consent duration out of range")
	ErrContractNotConsented = errors.New("contract not covered by consent")
	ErrNotAllowed           = errors.New("user or contract not allowed on ciphertext")
	ErrNoHandles            = errors.New("no handles requested")
)

// ReencryptContext is the KDF context of re-encrypted values.
const ReencryptContext = "launchpad relayer reencrypt v1"

const secondsPerDay = 24 * 60 * 60

// Consent authorizes re-encryption of ciphertexts held under Contracts
// to PublicKey during [StartTimestamp, StartTimestamp+DurationDays).
type Consent struct {
	PublicKey      types.Bytes     `json:"public_key"`
	Contracts      []types.Address `json:"contracts"`
	StartTimestamp int64           `json:"start_timestamp"`
	DurationDays   uint32          `json:"duration_days"`
}

// Digest returns the BLAKE3 hash the holder signs.
func (c *Consent) Digest() types.Hash {
	buf := []byte("launchpad consent v1")
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(c.PublicKey)))
	buf = append(buf, c.PublicKey...)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(c.Contracts)))
	for _, a := range c.Contracts {
		buf = append(buf, a[:]...)
	}
	buf = binary.LittleEndian.AppendUint64(buf, uint64(c.StartTimestamp))
	buf = binary.LittleEndian.AppendUint32(buf, c.DurationDays)
	return crypto.Hash(buf)
}

// Covers reports whether contract is named by the consent.
func (c *Consent) Covers(contract types.Address) bool {
	for _, a := range c.Contracts {
		if a == contract {
			return true
		}
	}
	return false
}

// checkWindow validates the validity window against now.
func (c *Consent) checkWindow(now time.Time, maxDays uint32) error {
	if c.DurationDays == 0 || c.DurationDays > maxDays {
		return fmt.Errorf("%w: %d days, max %d", ErrDurationTooLong, c.DurationDays, maxDays)
	}
	ts := now.Unix()
	if ts < c.StartTimestamp {
		return ErrConsentNotStarted
	}
	if ts >= c.StartTimestamp+int64(c.DurationDays)*secondsPerDay {
		return ErrConsentExpired
	}
	return nil
}

// SignedConsent is a consent with the holder's signature.
type SignedConsent struct {
	Consent   Consent     `json:"consent"`
	SignerKey types.Bytes `json:"signer_key"`
	Signature types.Bytes `json:"signature"`
}

// SignConsent signs c with the holder key.
func SignConsent(signer crypto.Signer, c Consent) (*SignedConsent, error) {
	digest := c.Digest()
	sig, err := signer.Sign(digest[:])
	if err != nil {
		return nil, fmt.Errorf("sign consent: %w", err)
	}
	return &SignedConsent{Consent: c, SignerKey: signer.PublicKey(), Signature: sig}, nil
}

// Signer returns the address of the signing key.
func (s *SignedConsent) Signer() types.Address {
	return crypto.AddressFromPubKey(s.SignerKey)
}

// verify checks the signature and that it was made by user.
func (s *SignedConsent) verify(user types.Address) error {
	digest := s.Consent.Digest()
	if !crypto.VerifySignature(digest[:], s.Signature, s.SignerKey) {
		return ErrBadSignature
	}
	if s.Signer() != user {
		return fmt.Errorf("%w: signed by %s, request for %s", ErrSignerMismatch, s.Signer(), user)
	}
	return nil
}

// GenerateKeypair creates the throwaway key a response is encrypted to.
func GenerateKeypair() (*crypto.PrivateKey, error) {
	return crypto.GenerateKey()
}
