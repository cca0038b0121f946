package factory

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/Klingon-tech/klingnet-launchpad/internal/ledger"
	"github.com/Klingon-tech/klingnet-launchpad/internal/storage"
	"github.com/Klingon-tech/klingnet-launchpad/pkg/types"
)

// Contract storage layout:
//
//	owner                  -> owner address
//	count                  -> number of tokens (BE uint64)
//	idx/<n BE8>            -> token address
//	rec/<token>            -> TokenRecord JSON
//	ccount/<creator>       -> tokens by creator (BE uint64)
//	cidx/<creator><n BE8>  -> token address
var (
	keyOwner         = []byte("owner")
	keyCount         = []byte("count")
	prefixIndex      = []byte("idx/")
	prefixRecord     = []byte("rec/")
	prefixCreatorN   = []byte("ccount/")
	prefixCreatorIdx = []byte("cidx/")
)

func join(prefix []byte, parts ...[]byte) []byte {
	out := append([]byte{}, prefix...)
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

func be(n uint64) []byte { return binary.BigEndian.AppendUint64(nil, n) }

func getCounter(tx *ledger.Txn, key []byte) (uint64, error) {
	data, err := tx.Get(key)
	if errors.Is(err, storage.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	if len(data) != 8 {
		return 0, fmt.Errorf("corrupt counter %q", key)
	}
	return binary.BigEndian.Uint64(data), nil
}

func getAddress(tx *ledger.Txn, key []byte) (types.Address, error) {
	data, err := tx.Get(key)
	if err != nil {
		return types.Address{}, err
	}
	if len(data) != types.AddressSize {
		return types.Address{}, fmt.Errorf("corrupt address at %q", key)
	}
	var a types.Address
	copy(a[:], data)
	return a, nil
}

func owner(tx *ledger.Txn) (types.Address, error) {
	return getAddress(tx, keyOwner)
}

// appendRecord adds rec to the global list and the creator's list.
func appendRecord(tx *ledger.Txn, rec *TokenRecord) error {
	n, err := getCounter(tx, keyCount)
	if err != nil {
		return err
	}
	creatorKey := join(prefixCreatorN, rec.Creator[:])
	cn, err := getCounter(tx, creatorKey)
	if err != nil {
		return err
	}

	if err := tx.PutJSON(join(prefixRecord, rec.Token[:]), rec); err != nil {
		return err
	}
	if err := tx.Put(join(prefixIndex, be(n)), rec.Token[:]); err != nil {
		return err
	}
	if err := tx.Put(keyCount, be(n+1)); err != nil {
		return err
	}
	if err := tx.Put(join(prefixCreatorIdx, rec.Creator[:], be(cn)), rec.Token[:]); err != nil {
		return err
	}
	return tx.Put(creatorKey, be(cn+1))
}

// record returns the stored record of token without refreshing it.
func record(tx *ledger.Txn, token types.Address) (*TokenRecord, error) {
	var rec TokenRecord
	err := tx.GetJSON(join(prefixRecord, token[:]), &rec)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrTokenNotFound, token)
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// tokensAt resolves count index entries under prefix.
func tokensAt(tx *ledger.Txn, prefix []byte, count uint64) ([]types.Address, error) {
	out := make([]types.Address, 0, count)
	for i := uint64(0); i < count; i++ {
		a, err := getAddress(tx, join(prefix, be(i)))
		if err != nil {
			return nil, fmt.Errorf("catalog index %d: %w", i, err)
		}
		out = append(out, a)
	}
	return out, nil
}

func allTokens(tx *ledger.Txn) ([]types.Address, error) {
	n, err := getCounter(tx, keyCount)
	if err != nil {
		return nil, err
	}
	return tokensAt(tx, prefixIndex, n)
}

func creatorTokens(tx *ledger.Txn, creator types.Address) ([]types.Address, error) {
	n, err := getCounter(tx, join(prefixCreatorN, creator[:]))
	if err != nil {
		return nil, err
	}
	return tokensAt(tx, join(prefixCreatorIdx, creator[:]), n)
}
