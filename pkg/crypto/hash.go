// Package crypto provides the hashing and signing primitives of the launchpad ledger.
package crypto

import (
	"encoding/binary"

	"github.com/Klingon-tech/klingnet-launchpad/pkg/types"
	"github.com/zeebo/blake3"
)

// Hash computes a BLAKE3-256 hash of the input data.
func Hash(data []byte) types.Hash {
	return blake3.Sum256(data)
}

// AddressFromPubKey derives an address from a compressed public key.
// Address = BLAKE3(compressed_pubkey)[:20].
func AddressFromPubKey(pubKey []byte) types.Address {
	h := Hash(pubKey)
	var addr types.Address
	copy(addr[:], h[:types.AddressSize])
	return addr
}

// ContractAddress derives the address of a contract deployed by deployer
// when the deployer's creation counter was nonce.
// Address = BLAKE3("contract" || deployer || nonce_le)[:20].
func ContractAddress(deployer types.Address, nonce uint64) types.Address {
	buf := make([]byte, 0, 8+types.AddressSize+8)
	buf = append(buf, "contract"...)
	buf = append(buf, deployer[:]...)
	buf = binary.LittleEndian.AppendUint64(buf, nonce)
	h := Hash(buf)
	var addr types.Address
	copy(addr[:], h[:types.AddressSize])
	return addr
}

// DeriveKey derives a 32-byte key from material under a context string.
func DeriveKey(context string, material []byte) []byte {
	out := make([]byte, 32)
	blake3.DeriveKey(context, material, out)
	return out
}
