package rpc

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Klingon-tech/klingnet-launchpad/internal/factory"
	"github.com/Klingon-tech/klingnet-launchpad/internal/ledger"
	"github.com/Klingon-tech/klingnet-launchpad/internal/storage"
	"github.com/Klingon-tech/klingnet-launchpad/internal/token"
	"github.com/Klingon-tech/klingnet-launchpad/pkg/call"
	"github.com/Klingon-tech/klingnet-launchpad/pkg/types"
)

// maxEvents bounds one events_list page.
const maxEvents = 1000

// rejected are the errors that stop a call before it is recorded.
var rejected = []error{
	call.ErrNoMethod,
	call.ErrNegativeValue,
	call.ErrMissingSignature,
	call.ErrBadSignature,
	ledger.ErrWrongChain,
	ledger.ErrBadNonce,
}

// notFound are the errors reported with CodeNotFound.
var notFound = []error{
	storage.ErrNotFound,
	factory.ErrTokenNotFound,
	ledger.ErrUnknownContract,
}

func isAny(err error, targets []error) bool {
	for _, t := range targets {
		if errors.Is(err, t) {
			return true
		}
	}
	return false
}

// queryError maps a failed read to a JSON-RPC error.
func queryError(err error) *Error {
	if isAny(err, notFound) {
		return &Error{Code: CodeNotFound, Message: err.Error()}
	}
	if errors.Is(err, ledger.ErrInvalidArgs) || errors.Is(err, factory.ErrInvalidSupply) {
		return &Error{Code: CodeInvalidParams, Message: err.Error()}
	}
	return &Error{Code: CodeInternalError, Message: err.Error()}
}

func parseAddress(field, s string) (types.Address, *Error) {
	if s == "" {
		return types.Address{}, &Error{Code: CodeInvalidParams, Message: field + " is required"}
	}
	addr, err := types.ParseAddress(s)
	if err != nil {
		return types.Address{}, &Error{Code: CodeInvalidParams, Message: fmt.Sprintf("invalid %s: %v", field, err)}
	}
	return addr, nil
}

// queryFactory runs a read-only factory method.
func (s *Server) queryFactory(method string, args any) (any, *Error) {
	res, err := s.ledger.Query(types.Address{}, s.factory, method, args)
	if err != nil {
		return nil, queryError(err)
	}
	return res, nil
}

// ── Chain endpoints ─────────────────────────────────────────────────────

func (s *Server) handleChainGetInfo(req *Request) (interface{}, *Error) {
	return &ChainInfoResult{
		ChainID:   s.genesis.ChainID,
		ChainName: s.genesis.ChainName,
		Symbol:    s.genesis.Symbol,
		Height:    s.ledger.Height(),
		Factory:   s.factory,
	}, nil
}

// ── Call endpoints ──────────────────────────────────────────────────────

func (s *Server) handleCallSubmit(req *Request) (interface{}, *Error) {
	var params CallSubmitParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	if params.Call == nil {
		return nil, &Error{Code: CodeInvalidParams, Message: "call is required"}
	}

	rcpt, err := s.ledger.Submit(params.Call)
	if rcpt == nil {
		if err == nil {
			return nil, &Error{Code: CodeInternalError, Message: "no receipt"}
		}
		if isAny(err, rejected) {
			return nil, &Error{Code: CodeInvalidParams, Message: err.Error()}
		}
		return nil, &Error{Code: CodeInternalError, Message: err.Error()}
	}
	if err != nil {
		return nil, &Error{Code: CodeReverted, Message: err.Error(), Data: rcpt}
	}
	return &SubmitResult{CallHash: rcpt.CallHash, Receipt: rcpt}, nil
}

func (s *Server) handleCallGetReceipt(req *Request) (interface{}, *Error) {
	var params HashParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	if params.Hash == "" {
		return nil, &Error{Code: CodeInvalidParams, Message: "hash is required"}
	}
	h, err := types.HexToHash(params.Hash)
	if err != nil {
		return nil, &Error{Code: CodeInvalidParams, Message: "invalid hash: must be 32-byte hex"}
	}
	rcpt, err := s.ledger.Receipt(h)
	if err != nil {
		return nil, queryError(err)
	}
	return rcpt, nil
}

// ── Account endpoints ───────────────────────────────────────────────────

func (s *Server) handleAccountGet(req *Request) (interface{}, *Error) {
	var params AddressParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	addr, rpcErr := parseAddress("address", params.Address)
	if rpcErr != nil {
		return nil, rpcErr
	}

	acct, err := s.ledger.Account(addr)
	if err != nil {
		return nil, queryError(err)
	}
	kind, err := s.ledger.KindOf(addr)
	if err != nil {
		return nil, queryError(err)
	}
	return &AccountResult{
		Address: addr.String(),
		Balance: acct.Balance.String(),
		Nonce:   acct.Nonce,
		Kind:    kind,
	}, nil
}

// ── Factory endpoints ───────────────────────────────────────────────────

func (s *Server) handleFactoryGetInfo(req *Request) (interface{}, *Error) {
	return s.queryFactory(factory.MethodInfo, nil)
}

func (s *Server) handleFactoryListTokens(req *Request) (interface{}, *Error) {
	var params PageParam
	if err := parseOptionalParams(req, &params); err != nil {
		return nil, err
	}
	if params.Offset < 0 || params.Limit < 0 {
		return nil, &Error{Code: CodeInvalidParams, Message: "offset and limit must not be negative"}
	}

	res, rpcErr := s.queryFactory(factory.MethodListPage, factory.PageArgs{Offset: params.Offset, Limit: params.Limit})
	if rpcErr != nil {
		return nil, rpcErr
	}
	page := res.(*factory.TokenPage)
	return &TokenListResult{Tokens: page.Tokens, Total: page.Total}, nil
}

func (s *Server) handleFactoryGetTokensByCreator(req *Request) (interface{}, *Error) {
	var params CreatorParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	creator, rpcErr := parseAddress("creator", params.Creator)
	if rpcErr != nil {
		return nil, rpcErr
	}

	res, rpcErr := s.queryFactory(factory.MethodListByCreator, factory.CreatorArgs{Creator: creator})
	if rpcErr != nil {
		return nil, rpcErr
	}
	records := res.([]factory.TokenRecord)
	return &TokenListResult{Tokens: records, Total: len(records)}, nil
}

func (s *Server) handleFactoryGetToken(req *Request) (interface{}, *Error) {
	var params TokenParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	tok, rpcErr := parseAddress("token", params.Token)
	if rpcErr != nil {
		return nil, rpcErr
	}
	return s.queryFactory(factory.MethodDetails, factory.TokenArgs{Token: tok})
}

func (s *Server) handleFactoryQuote(req *Request) (interface{}, *Error) {
	var params QuoteParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	tok, rpcErr := parseAddress("token", params.Token)
	if rpcErr != nil {
		return nil, rpcErr
	}
	payment, err := types.ParseUnits(params.Payment)
	if err != nil {
		return nil, &Error{Code: CodeInvalidParams, Message: fmt.Sprintf("invalid payment: %v", err)}
	}

	res, rpcErr := s.queryFactory(factory.MethodQuote, factory.QuoteArgs{
		Token:   tok,
		Payment: json.Number(payment.String()),
	})
	if rpcErr != nil {
		return nil, rpcErr
	}
	units := res.(uint64)
	return &QuoteResult{
		Token:  tok,
		Units:  units,
		Tokens: float64(units) / float64(factory.UnitsPerToken),
	}, nil
}

func (s *Server) handleFactoryRemaining(req *Request) (interface{}, *Error) {
	var params TokenParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	tok, rpcErr := parseAddress("token", params.Token)
	if rpcErr != nil {
		return nil, rpcErr
	}

	res, rpcErr := s.queryFactory(factory.MethodRemaining, factory.TokenArgs{Token: tok})
	if rpcErr != nil {
		return nil, rpcErr
	}
	return &RemainingResult{Token: tok, Remaining: res.(uint64)}, nil
}

// ── Token endpoints ─────────────────────────────────────────────────────

func (s *Server) handleTokenGetBalanceHandle(req *Request) (interface{}, *Error) {
	var params BalanceHandleParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	tok, rpcErr := parseAddress("token", params.Token)
	if rpcErr != nil {
		return nil, rpcErr
	}
	holder, rpcErr := parseAddress("holder", params.Holder)
	if rpcErr != nil {
		return nil, rpcErr
	}

	kind, err := s.ledger.KindOf(tok)
	if err != nil {
		return nil, queryError(err)
	}
	if kind != token.Kind {
		return nil, &Error{Code: CodeNotFound, Message: fmt.Sprintf("no token at %s", tok)}
	}
	res, err := s.ledger.Query(types.Address{}, tok, token.MethodBalanceOf, token.HolderArgs{Holder: holder})
	if err != nil {
		return nil, queryError(err)
	}
	return &BalanceHandleResult{Token: tok, Holder: holder, Handle: res.(types.Handle)}, nil
}

// ── Event endpoints ─────────────────────────────────────────────────────

func (s *Server) handleEventsList(req *Request) (interface{}, *Error) {
	var params EventsParam
	if err := parseOptionalParams(req, &params); err != nil {
		return nil, err
	}
	limit := params.Limit
	if limit <= 0 || limit > maxEvents {
		limit = maxEvents
	}

	events, err := s.ledger.Events(params.From, limit, params.Name)
	if err != nil {
		return nil, queryError(err)
	}
	next := params.From
	if len(events) > 0 {
		next = events[len(events)-1].Seq + 1
	}
	if events == nil {
		events = []ledger.Event{}
	}
	return &EventsResult{Events: events, Next: next}, nil
}

// ── Relayer endpoints ───────────────────────────────────────────────────

func (s *Server) handleRelayerGetPublicKey(req *Request) (interface{}, *Error) {
	if s.relayer == nil {
		return nil, &Error{Code: CodeNotFound, Message: "relayer not enabled"}
	}
	return &RelayerKeyResult{
		PublicKey:      s.relayer.PublicKey(),
		MaxConsentDays: s.relayer.MaxConsentDays(),
	}, nil
}

func (s *Server) handleRelayerUserDecrypt(req *Request) (interface{}, *Error) {
	if s.relayer == nil {
		return nil, &Error{Code: CodeNotFound, Message: "relayer not enabled"}
	}
	var params UserDecryptParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	if params.Request == nil {
		return nil, &Error{Code: CodeInvalidParams, Message: "request is required"}
	}

	res, err := s.relayer.UserDecrypt(params.Request, s.now())
	if err != nil {
		return nil, &Error{Code: CodeInvalidParams, Message: err.Error()}
	}
	return res, nil
}
