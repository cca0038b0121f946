// Package call defines the signed call envelope submitted to the ledger.
package call

import (
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"

	"github.com/Klingon-tech/klingnet-launchpad/pkg/crypto"
	"github.com/Klingon-tech/klingnet-launchpad/pkg/types"
)

// Envelope validation errors.
var (
	ErrNoMethod         = errors.New("call has no method")
	ErrNegativeValue    = errors.New("call value is negative")
	ErrMissingSignature = errors.New("call is not signed")
	ErrBadSignature     = errors.New("call signature is invalid")
)

// Call is a signed request to invoke a method on a contract, optionally
// attaching native value.
type Call struct {
	ChainID   string          `json:"chain_id"`
	Nonce     uint64          `json:"nonce"`
	To        types.Address   `json:"to"`
	Method    string          `json:"method"`
	Args      json.RawMessage `json:"args,omitempty"`
	Value     *big.Int        `json:"-"`
	PubKey    []byte          `json:"-"`
	Signature []byte          `json:"-"`
}

// callJSON carries the fields that need explicit encodings.
type callJSON struct {
	ChainID   string          `json:"chain_id"`
	Nonce     uint64          `json:"nonce"`
	To        types.Address   `json:"to"`
	Method    string          `json:"method"`
	Args      json.RawMessage `json:"args,omitempty"`
	Value     string          `json:"value,omitempty"`
	PubKey    string          `json:"pubkey,omitempty"`
	Signature string          `json:"signature,omitempty"`
}

// New builds an unsigned call. args is JSON-encoded; nil means no arguments.
func New(chainID string, nonce uint64, to types.Address, method string, args any, value *big.Int) (*Call, error) {
	c := &Call{ChainID: chainID, Nonce: nonce, To: to, Method: method, Value: value}
	if args != nil {
		raw, err := json.Marshal(args)
		if err != nil {
			return nil, fmt.Errorf("encode args: %w", err)
		}
		c.Args = raw
	}
	return c, nil
}

// MarshalJSON encodes the call with a decimal value and hex key material.
func (c Call) MarshalJSON() ([]byte, error) {
	j := callJSON{
		ChainID: c.ChainID,
		Nonce:   c.Nonce,
		To:      c.To,
		Method:  c.Method,
		Args:    c.Args,
	}
	if c.Value != nil && c.Value.Sign() != 0 {
		j.Value = c.Value.String()
	}
	if c.PubKey != nil {
		j.PubKey = hex.EncodeToString(c.PubKey)
	}
	if c.Signature != nil {
		j.Signature = hex.EncodeToString(c.Signature)
	}
	return json.Marshal(j)
}

// UnmarshalJSON decodes a call produced by MarshalJSON.
func (c *Call) UnmarshalJSON(data []byte) error {
	var j callJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return err
	}
	*c = Call{ChainID: j.ChainID, Nonce: j.Nonce, To: j.To, Method: j.Method, Args: j.Args}
	if j.Value != "" {
		v, err := types.ParseUnits(j.Value)
		if err != nil {
			return fmt.Errorf("value: %w", err)
		}
		c.Value = v
	}
	if j.PubKey != "" {
		b, err := hex.DecodeString(j.PubKey)
		if err != nil {
			return fmt.Errorf("pubkey: %w", err)
		}
		c.PubKey = b
	}
	if j.Signature != "" {
		b, err := hex.DecodeString(j.Signature)
		if err != nil {
			return fmt.Errorf("signature: %w", err)
		}
		c.Signature = b
	}
	return nil
}

// SigningBytes returns the canonical byte representation used for signing.
// Format: chain_id_len(4) | chain_id | nonce(8) | to(20) | method_len(4) | method |
// args_len(4) | args | value_len(4) | value_be | pubkey_len(4) | pubkey
func (c *Call) SigningBytes() []byte {
	var buf []byte
	buf = appendBytes(buf, []byte(c.ChainID))
	buf = binary.LittleEndian.AppendUint64(buf, c.Nonce)
	buf = append(buf, c.To[:]...)
	buf = appendBytes(buf, []byte(c.Method))
	buf = appendBytes(buf, c.Args)
	var value []byte
	if c.Value != nil {
		value = c.Value.Bytes()
	}
	buf = appendBytes(buf, value)
	buf = appendBytes(buf, c.PubKey)
	return buf
}

func appendBytes(buf, b []byte) []byte {
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(b)))
	return append(buf, b...)
}

// Hash computes the call ID (BLAKE3 of the signing bytes).
func (c *Call) Hash() types.Hash {
	return crypto.Hash(c.SigningBytes())
}

// Sign sets the public key and signs the call.
func (c *Call) Sign(signer crypto.Signer) error {
	c.PubKey = signer.PublicKey()
	h := c.Hash()
	sig, err := signer.Sign(h[:])
	if err != nil {
		return fmt.Errorf("sign call: %w", err)
	}
	c.Signature = sig
	return nil
}

// Sender returns the address of the signing key.
func (c *Call) Sender() types.Address {
	return crypto.AddressFromPubKey(c.PubKey)
}

// AttachedValue returns the attached native value, never nil.
func (c *Call) AttachedValue() *big.Int {
	if c.Value == nil {
		return new(big.Int)
	}
	return c.Value
}

// Verify checks the envelope's structure and signature.
func (c *Call) Verify() error {
	if c.Method == "" {
		return ErrNoMethod
	}
	if c.Value != nil && c.Value.Sign() < 0 {
		return ErrNegativeValue
	}
	if len(c.PubKey) == 0 || len(c.Signature) == 0 {
		return ErrMissingSignature
	}
	h := c.Hash()
	if !crypto.VerifySignature(h[:], c.Signature, c.PubKey) {
		return ErrBadSignature
	}
	return nil
}
