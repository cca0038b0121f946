package ledger

import (
	"encoding/binary"
	"encoding/json"

	"github.com/Klingon-tech/klingnet-launchpad/pkg/types"
)

// Event is a notification emitted by a contract during a committed call.
type Event struct {
	Seq      uint64          `json:"seq"`
	Height   uint64          `json:"height"`
	Contract types.Address   `json:"contract"`
	Name     string          `json:"name"`
	Data     json.RawMessage `json:"data"`
}

// Decode unmarshals the event payload into v.
func (e Event) Decode(v any) error {
	return json.Unmarshal(e.Data, v)
}

// Receipt statuses.
const (
	StatusOK       = "ok"
	StatusReverted = "reverted"
)

// Receipt records the outcome of a submitted call.
type Receipt struct {
	CallHash types.Hash      `json:"call_hash"`
	From     types.Address   `json:"from"`
	To       types.Address   `json:"to"`
	Method   string          `json:"method"`
	Nonce    uint64          `json:"nonce"`
	Height   uint64          `json:"height"`
	Status   string          `json:"status"`
	Error    string          `json:"error,omitempty"`
	Result   json.RawMessage `json:"result,omitempty"`
	Events   []Event         `json:"events,omitempty"`
}

var (
	prefixEvent   = []byte("e/")
	prefixReceipt = []byte("r/")

	keyGenesis   = []byte("s/genesis")
	keyChainID   = []byte("s/chain")
	keyHeight    = []byte("s/height")
	keyNextEvent = []byte("s/event")
)

func eventKey(seq uint64) []byte {
	return binary.BigEndian.AppendUint64(append([]byte{}, prefixEvent...), seq)
}

func receiptKey(h types.Hash) []byte {
	return append(append([]byte{}, prefixReceipt...), h[:]...)
}
