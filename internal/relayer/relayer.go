package relayer

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/Klingon-tech/klingnet-launchpad/internal/fhe"
	"github.com/Klingon-tech/klingnet-launchpad/internal/ledger"
	klog "github.com/Klingon-tech/klingnet-launchpad/internal/log"
	"github.com/Klingon-tech/klingnet-launchpad/pkg/crypto"
	"github.com/Klingon-tech/klingnet-launchpad/pkg/types"
)

// HandleRef names a ciphertext and the contract that holds it.
type HandleRef struct {
	Handle   types.Handle  `json:"handle"`
	Contract types.Address `json:"contract"`
}

// Request asks for the cleartexts of Handles on behalf of User.
type Request struct {
	User    types.Address `json:"user"`
	Handles []HandleRef   `json:"handles"`
	Consent SignedConsent `json:"consent"`
}

// Value is one re-encrypted cleartext.
type Value struct {
	Handle types.Handle `json:"handle"`
	Box    types.Bytes  `json:"box"`
}

// Result holds the re-encrypted values in request order.
type Result struct {
	Values []Value `json:"values"`
}

// Relayer re-encrypts ciphertexts for consenting holders.
type Relayer struct {
	ledger  *ledger.Ledger
	dec     fhe.Decryptor
	maxDays uint32
	logger  zerolog.Logger
}

// New creates a relayer. maxDays bounds consent durations.
func New(l *ledger.Ledger, dec fhe.Decryptor, maxDays uint32) *Relayer {
	return &Relayer{ledger: l, dec: dec, maxDays: maxDays, logger: klog.Relayer}
}

// PublicKey returns the coprocessor key clients encrypt inputs to.
func (r *Relayer) PublicKey() []byte {
	return r.dec.PublicKey()
}

// MaxConsentDays returns the longest consent window accepted.
func (r *Relayer) MaxConsentDays() uint32 {
	return r.maxDays
}

// UserDecrypt checks the consent in req at time now and returns every
// requested value re-encrypted to the consent public key. Nothing is
// returned unless every handle passes.
func (r *Relayer) UserDecrypt(req *Request, now time.Time) (*Result, error) {
	if len(req.Handles) == 0 {
		return nil, ErrNoHandles
	}
	if err := req.Consent.verify(req.User); err != nil {
		return nil, err
	}
	consent := &req.Consent.Consent
	if err := consent.checkWindow(now, r.maxDays); err != nil {
		return nil, err
	}
	if err := crypto.ValidatePublicKey(consent.PublicKey); err != nil {
		return nil, fmt.Errorf("consent key: %w", err)
	}
	for _, ref := range req.Handles {
		if !consent.Covers(ref.Contract) {
			return nil, fmt.Errorf("%w: %s", ErrContractNotConsented, ref.Contract)
		}
	}

	out := &Result{Values: make([]Value, 0, len(req.Handles))}
	err := r.ledger.View(func(tx *ledger.Txn) error {
		for _, ref := range req.Handles {
			for _, who := range []types.Address{req.User, ref.Contract} {
				ok, err := r.dec.IsAllowed(tx, ref.Handle, who)
				if err != nil {
					return err
				}
				if !ok {
					return fmt.Errorf("%w: %s for %s", ErrNotAllowed, ref.Handle, who)
				}
			}
			v, err := r.dec.Reveal(tx, ref.Handle)
			if err != nil {
				return err
			}
			box, err := crypto.SealTo(consent.PublicKey, ReencryptContext,
				binary.BigEndian.AppendUint64(nil, v), reencryptAAD(ref.Handle, req.User))
			if err != nil {
				return fmt.Errorf("re-encrypt: %w", err)
			}
			out.Values = append(out.Values, Value{Handle: ref.Handle, Box: box})
		}
		return nil
	})
	if err != nil {
		r.logger.Debug().Err(err).Str("user", req.User.String()).Msg("User decryption refused")
		return nil, err
	}
	r.logger.Info().
		Str("user", req.User.String()).
		Int("handles", len(req.Handles)).
		Msg("User decryption served")
	return out, nil
}

func reencryptAAD(h types.Handle, user types.Address) []byte {
	aad := make([]byte, 0, types.HashSize+types.AddressSize)
	aad = append(aad, h[:]...)
	return append(aad, user[:]...)
}

// Open recovers the cleartexts of res with the throwaway key.
func Open(priv *crypto.PrivateKey, user types.Address, res *Result) (map[types.Handle]uint64, error) {
	out := make(map[types.Handle]uint64, len(res.Values))
	for _, v := range res.Values {
		plain, err := priv.Open(v.Box, ReencryptContext, reencryptAAD(v.Handle, user))
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", v.Handle, err)
		}
		if len(plain) != 8 {
			return nil, fmt.Errorf("open %s: payload is %d bytes", v.Handle, len(plain))
		}
		out[v.Handle] = binary.BigEndian.Uint64(plain)
	}
	return out, nil
}
