package rpc

import (
	"github.com/Klingon-tech/klingnet-launchpad/internal/factory"
	"github.com/Klingon-tech/klingnet-launchpad/internal/ledger"
	"github.com/Klingon-tech/klingnet-launchpad/internal/relayer"
	"github.com/Klingon-tech/klingnet-launchpad/pkg/call"
	"github.com/Klingon-tech/klingnet-launchpad/pkg/types"
)

// JSON-RPC 2.0 error codes.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
	CodeNotFound       = -32000
	CodeReverted       = -32001 // Data carries the receipt.
)

// Request is a JSON-RPC 2.0 request.
type Request struct {
	JSONRPC string      `json:"jsonrpc"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params"`
	ID      interface{} `json:"id"`
}

// Response is a JSON-RPC 2.0 response.
type Response struct {
	JSONRPC string      `json:"jsonrpc"`
	Result  interface{} `json:"result,omitempty"`
	Error   *Error      `json:"error,omitempty"`
	ID      interface{} `json:"id"`
}

// Error is a JSON-RPC 2.0 error object.
type Error struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// Error implements the error interface so clients can return it directly.
func (e *Error) Error() string {
	return e.Message
}

// ── Param types ─────────────────────────────────────────────────────────

// CallSubmitParam is used by call_submit.
type CallSubmitParam struct {
	Call *call.Call `json:"call"`
}

// HashParam is used by call_getReceipt.
type HashParam struct {
	Hash string `json:"hash"`
}

// AddressParam is used by account_get.
type AddressParam struct {
	Address string `json:"address"`
}

// PageParam is used by factory_listTokens.
type PageParam struct {
	Offset int `json:"offset,omitempty"`
	Limit  int `json:"limit,omitempty"` // 0 = all.
}

// CreatorParam is used by factory_getTokensByCreator.
type CreatorParam struct {
	Creator string `json:"creator"`
}

// TokenParam is used by factory_getToken and factory_remaining.
type TokenParam struct {
	Token string `json:"token"`
}

// QuoteParam is used by factory_quote. Payment is in native base units.
type QuoteParam struct {
	Token   string `json:"token"`
	Payment string `json:"payment"`
}

// BalanceHandleParam is used by token_getBalanceHandle.
type BalanceHandleParam struct {
	Token  string `json:"token"`
	Holder string `json:"holder"`
}

// EventsParam is used by events_list.
type EventsParam struct {
	From  uint64 `json:"from,omitempty"`
	Limit int    `json:"limit,omitempty"`
	Name  string `json:"name,omitempty"`
}

// UserDecryptParam is used by relayer_userDecrypt.
type UserDecryptParam struct {
	Request *relayer.Request `json:"request"`
}

// ── Result types ────────────────────────────────────────────────────────

// ChainInfoResult is returned by chain_getInfo.
type ChainInfoResult struct {
	ChainID   string        `json:"chain_id"`
	ChainName string        `json:"chain_name"`
	Symbol    string        `json:"symbol"`
	Height    uint64        `json:"height"`
	Factory   types.Address `json:"factory"`
}

// SubmitResult is returned by call_submit for a committed call.
type SubmitResult struct {
	CallHash types.Hash      `json:"call_hash"`
	Receipt  *ledger.Receipt `json:"receipt"`
}

// AccountResult is returned by account_get.
type AccountResult struct {
	Address string `json:"address"`
	Balance string `json:"balance"` // Base units.
	Nonce   uint64 `json:"nonce"`
	Kind    string `json:"kind,omitempty"` // Contract kind; empty for accounts.
}

// TokenListResult is returned by factory_listTokens and
// factory_getTokensByCreator.
type TokenListResult struct {
	Tokens []factory.TokenRecord `json:"tokens"`
	Total  int                   `json:"total"`
}

// QuoteResult is returned by factory_quote.
type QuoteResult struct {
	Token  types.Address `json:"token"`
	Units  uint64        `json:"units"` // Token base units.
	Tokens float64       `json:"tokens"`
}

// RemainingResult is returned by factory_remaining.
type RemainingResult struct {
	Token     types.Address `json:"token"`
	Remaining uint64        `json:"remaining"`
}

// BalanceHandleResult is returned by token_getBalanceHandle.
// Handle is the zero handle when the holder has no balance.
type BalanceHandleResult struct {
	Token  types.Address `json:"token"`
	Holder types.Address `json:"holder"`
	Handle types.Handle  `json:"handle"`
}

// EventsResult is returned by events_list.
type EventsResult struct {
	Events []ledger.Event `json:"events"`
	Next   uint64         `json:"next"` // Pass as From to continue.
}

// RelayerKeyResult is returned by relayer_getPublicKey.
type RelayerKeyResult struct {
	PublicKey      types.Bytes `json:"public_key"`
	MaxConsentDays uint32      `json:"max_consent_days"`
}
