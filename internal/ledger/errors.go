package ledger

import "errors"

// Ledger errors.
var (
	ErrReadOnly          = errors.New("write in read-only context")
	ErrUnknownContract   = errors.New("no contract at address")
	ErrUnknownKind       = errors.New("contract kind not registered")
	ErrUnknownMethod     = errors.New("unknown method")
	ErrInvalidArgs       = errors.New("invalid call arguments")
	ErrNotPayable        = errors.New("method does not accept value")
	ErrTransferRejected  = errors.New("recipient rejected native transfer")
	ErrInsufficientFunds = errors.New("insufficient native balance")
	ErrBadNonce          = errors.New("bad nonce")
	ErrWrongChain        = errors.New("call is for a different chain")
	ErrAddressInUse      = errors.New("contract address already in use")
	ErrCallDepth         = errors.New("call depth exceeded")
	ErrGenesisMismatch   = errors.New("ledger was initialized from a different genesis")
	ErrNotInitialized    = errors.New("ledger has no genesis")
)
