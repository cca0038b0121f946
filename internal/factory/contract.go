package factory

import (
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/rs/zerolog"

	"github.com/Klingon-tech/klingnet-launchpad/internal/ledger"
	klog "github.com/Klingon-tech/klingnet-launchpad/internal/log"
	"github.com/Klingon-tech/klingnet-launchpad/internal/token"
	"github.com/Klingon-tech/klingnet-launchpad/pkg/types"
)

// Contract methods.
const (
	MethodCreateToken   = "createToken"
	MethodBuyTokens     = "buyTokens"
	MethodQuote         = "quote"
	MethodListAll       = "listAll"
	MethodListPage      = "listPage"
	MethodListByCreator = "listByCreator"
	MethodDetails       = "details"
	MethodRemaining     = "remaining"
	MethodWithdraw      = "withdraw"
	MethodInfo          = "info"
)

// CreateArgs are the arguments of MethodCreateToken. Supply is in whole
// tokens; 0 selects DefaultSupply.
type CreateArgs struct {
	Name   string      `json:"name"`
	Symbol string      `json:"symbol"`
	Supply json.Number `json:"supply,omitempty"`
}

// TokenArgs name a catalog token.
type TokenArgs struct {
	Token types.Address `json:"token"`
}

// QuoteArgs are the arguments of MethodQuote. Payment is in native base units.
type QuoteArgs struct {
	Token   types.Address `json:"token"`
	Payment json.Number   `json:"payment"`
}

// PageArgs are the arguments of MethodListPage. Limit 0 means no limit.
type PageArgs struct {
	Offset int `json:"offset,omitempty"`
	Limit  int `json:"limit,omitempty"`
}

// TokenPage is one page of the catalog plus its total size.
type TokenPage struct {
	Tokens []TokenRecord `json:"tokens"`
	Total  int           `json:"total"`
}

// CreatorArgs are the arguments of MethodListByCreator.
type CreatorArgs struct {
	Creator types.Address `json:"creator"`
}

// WithdrawArgs are the arguments of MethodWithdraw. Amount is in native
// base units; 0 or empty withdraws everything.
type WithdrawArgs struct {
	To     types.Address `json:"to"`
	Amount json.Number   `json:"amount,omitempty"`
}

// Contract is the factory behavior.
type Contract struct {
	logger zerolog.Logger
}

// New creates the factory contract kind.
func New() *Contract {
	return &Contract{logger: klog.Factory}
}

// Install deploys the factory from the running account, which becomes its
// owner. Used at genesis.
func Install(tx *ledger.Txn) (types.Address, error) {
	return tx.Deploy(Kind, func(tx *ledger.Txn) error {
		return tx.Put(keyOwner, tx.Caller().Bytes())
	})
}

// Payable reports that only purchases accept native value.
func (c *Contract) Payable(method string) bool {
	return method == MethodBuyTokens
}

func parseNumber(n json.Number, what string) (*big.Int, error) {
	if n == "" {
		return new(big.Int), nil
	}
	v, ok := new(big.Int).SetString(n.String(), 10)
	if !ok {
		return nil, fmt.Errorf("%w: %s %q is not an integer", ledger.ErrInvalidArgs, what, n)
	}
	return v, nil
}

// Invoke dispatches a factory method.
func (c *Contract) Invoke(tx *ledger.Txn, method string, args json.RawMessage) (any, error) {
	switch method {
	case MethodCreateToken:
		var a CreateArgs
		if err := ledger.DecodeArgs(args, &a); err != nil {
			return nil, err
		}
		supply, err := parseNumber(a.Supply, "supply")
		if err != nil {
			return nil, err
		}
		return c.CreateToken(tx, a.Name, a.Symbol, supply)
	case MethodBuyTokens:
		var a TokenArgs
		if err := ledger.DecodeArgs(args, &a); err != nil {
			return nil, err
		}
		return c.BuyTokens(tx, a.Token)
	case MethodQuote:
		var a QuoteArgs
		if err := ledger.DecodeArgs(args, &a); err != nil {
			return nil, err
		}
		payment, err := parseNumber(a.Payment, "payment")
		if err != nil {
			return nil, err
		}
		return c.Quote(tx, a.Token, payment)
	case MethodListAll:
		return c.ListAll(tx)
	case MethodListPage:
		var a PageArgs
		if err := ledger.DecodeArgs(args, &a); err != nil {
			return nil, err
		}
		return c.ListPage(tx, a.Offset, a.Limit)
	case MethodListByCreator:
		var a CreatorArgs
		if err := ledger.DecodeArgs(args, &a); err != nil {
			return nil, err
		}
		return c.ListByCreator(tx, a.Creator)
	case MethodDetails:
		var a TokenArgs
		if err := ledger.DecodeArgs(args, &a); err != nil {
			return nil, err
		}
		return c.Details(tx, a.Token)
	case MethodRemaining:
		var a TokenArgs
		if err := ledger.DecodeArgs(args, &a); err != nil {
			return nil, err
		}
		return c.Remaining(tx, a.Token)
	case MethodWithdraw:
		var a WithdrawArgs
		if err := ledger.DecodeArgs(args, &a); err != nil {
			return nil, err
		}
		amount, err := parseNumber(a.Amount, "amount")
		if err != nil {
			return nil, err
		}
		return nil, c.Withdraw(tx, a.To, amount)
	case MethodInfo:
		return c.Info(tx)
	}
	return nil, fmt.Errorf("%w: factory.%s", ledger.ErrUnknownMethod, method)
}

// CreateToken deploys a token capped at supply whole tokens (0 selects
// DefaultSupply) with the caller as creator, and appends it to the catalog.
func (c *Contract) CreateToken(tx *ledger.Txn, name, symbol string, supply *big.Int) (types.Address, error) {
	maxSupply, err := ScaleSupply(supply)
	if err != nil {
		return types.Address{}, err
	}
	creator := tx.Caller()

	addr, err := tx.Deploy(token.Kind, func(child *ledger.Txn) error {
		return token.Init(child, token.Params{
			Name:      name,
			Symbol:    symbol,
			Creator:   creator,
			MaxSupply: maxSupply,
		})
	})
	if err != nil {
		return types.Address{}, fmt.Errorf("deploy token: %w", err)
	}

	rec := &TokenRecord{
		Token:     addr,
		Name:      name,
		Symbol:    symbol,
		MaxSupply: maxSupply,
		Creator:   creator,
		Height:    tx.Height(),
	}
	if err := appendRecord(tx, rec); err != nil {
		return types.Address{}, err
	}
	err = tx.Emit(EventCreation, CreationEvent{
		Token:     addr,
		Creator:   creator,
		Name:      name,
		Symbol:    symbol,
		MaxSupply: maxSupply,
	})
	if err != nil {
		return types.Address{}, err
	}

	c.logger.Debug().
		Str("token", addr.String()).
		Str("creator", creator.String()).
		Str("symbol", symbol).
		Uint64("max_supply", maxSupply).
		Msg("Token created")
	return addr, nil
}

// BuyTokens mints the quoted amount of token to the caller in exchange
// for the attached value, which stays with the factory.
func (c *Contract) BuyTokens(tx *ledger.Txn, tok types.Address) (uint64, error) {
	rec, err := record(tx, tok)
	if err != nil {
		return 0, err
	}
	payment := tx.Value()
	if payment.Sign() <= 0 {
		return 0, fmt.Errorf("%w: no payment attached", ErrNoTokensToMint)
	}
	amount, err := QuoteUnits(payment)
	if err != nil {
		return 0, err
	}
	if amount == 0 {
		return 0, fmt.Errorf("%w: payment %s is below one base unit", ErrNoTokensToMint, payment)
	}

	remaining, err := liveUint(tx, tok, token.MethodRemaining)
	if err != nil {
		return 0, err
	}
	if amount > remaining {
		return 0, fmt.Errorf("%w: want %d, %d left", ErrInsufficientSupply, amount, remaining)
	}

	buyer := tx.Caller()
	if _, err := tx.Call(tok, token.MethodMint, token.MintArgs{To: buyer, Amount: amount}, nil); err != nil {
		return 0, fmt.Errorf("mint: %w", err)
	}

	if rec.MintedSupply, err = liveUint(tx, tok, token.MethodMinted); err != nil {
		return 0, err
	}
	if err := tx.PutJSON(join(prefixRecord, tok[:]), rec); err != nil {
		return 0, err
	}
	err = tx.Emit(EventPurchase, PurchaseEvent{
		Buyer:   buyer,
		Token:   tok,
		Payment: payment.String(),
		Minted:  amount,
	})
	if err != nil {
		return 0, err
	}
	return amount, nil
}

// liveUint reads a uint64 view method of a token.
func liveUint(tx *ledger.Txn, tok types.Address, method string) (uint64, error) {
	v, err := tx.Call(tok, method, nil, nil)
	if err != nil {
		return 0, fmt.Errorf("token %s.%s: %w", tok, method, err)
	}
	n, ok := v.(uint64)
	if !ok {
		return 0, fmt.Errorf("token %s.%s returned %T", tok, method, v)
	}
	return n, nil
}

// refresh overlays the token's live minted counter on rec.
func refresh(tx *ledger.Txn, rec *TokenRecord) error {
	minted, err := liveUint(tx, rec.Token, token.MethodMinted)
	if err != nil {
		return err
	}
	rec.MintedSupply = minted
	return nil
}

// Quote returns the base units payment would buy of token.
func (c *Contract) Quote(tx *ledger.Txn, tok types.Address, payment *big.Int) (uint64, error) {
	if _, err := record(tx, tok); err != nil {
		return 0, err
	}
	return QuoteUnits(payment)
}

func (c *Contract) records(tx *ledger.Txn, tokens []types.Address) ([]TokenRecord, error) {
	out := make([]TokenRecord, 0, len(tokens))
	for _, tok := range tokens {
		rec, err := record(tx, tok)
		if err != nil {
			return nil, err
		}
		if err := refresh(tx, rec); err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, nil
}

// ListAll returns every token record in creation order.
func (c *Contract) ListAll(tx *ledger.Txn) ([]TokenRecord, error) {
	tokens, err := allTokens(tx)
	if err != nil {
		return nil, err
	}
	return c.records(tx, tokens)
}

// ListPage returns limit records starting at offset in creation order.
// Only the records on the page are refreshed.
func (c *Contract) ListPage(tx *ledger.Txn, offset, limit int) (*TokenPage, error) {
	if offset < 0 || limit < 0 {
		return nil, fmt.Errorf("%w: offset and limit must not be negative", ledger.ErrInvalidArgs)
	}
	tokens, err := allTokens(tx)
	if err != nil {
		return nil, err
	}
	page := tokens[min(offset, len(tokens)):]
	if limit > 0 && len(page) > limit {
		page = page[:limit]
	}
	recs, err := c.records(tx, page)
	if err != nil {
		return nil, err
	}
	return &TokenPage{Tokens: recs, Total: len(tokens)}, nil
}

// ListByCreator returns the records of tokens created by creator, in
// creation order.
func (c *Contract) ListByCreator(tx *ledger.Txn, creator types.Address) ([]TokenRecord, error) {
	tokens, err := creatorTokens(tx, creator)
	if err != nil {
		return nil, err
	}
	return c.records(tx, tokens)
}

// Details returns the record of token.
func (c *Contract) Details(tx *ledger.Txn, tok types.Address) (*TokenRecord, error) {
	rec, err := record(tx, tok)
	if err != nil {
		return nil, err
	}
	if err := refresh(tx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// Remaining returns the live remaining supply of token.
func (c *Contract) Remaining(tx *ledger.Txn, tok types.Address) (uint64, error) {
	if _, err := record(tx, tok); err != nil {
		return 0, err
	}
	return liveUint(tx, tok, token.MethodRemaining)
}

// Withdraw sends amount of the factory's native balance to to. Zero
// withdraws the whole balance. Only the owner may withdraw.
func (c *Contract) Withdraw(tx *ledger.Txn, to types.Address, amount *big.Int) error {
	own, err := owner(tx)
	if err != nil {
		return err
	}
	if tx.Caller() != own {
		return fmt.Errorf("%w: %s", ErrNotOwner, tx.Caller())
	}
	if to.IsZero() {
		return ErrInvalidRecipient
	}
	if amount == nil {
		amount = new(big.Int)
	}
	if amount.Sign() < 0 {
		return fmt.Errorf("%w: negative amount %s", ledger.ErrInvalidArgs, amount)
	}

	balance, err := tx.Balance(tx.Self())
	if err != nil {
		return err
	}
	if amount.Sign() == 0 {
		amount = balance
	}
	if amount.Cmp(balance) > 0 {
		return fmt.Errorf("%w: requested %s, holding %s", ErrInsufficientBalance, amount, balance)
	}
	if err := tx.Transfer(to, amount); err != nil {
		return fmt.Errorf("%w: %w", ErrTransferFailed, err)
	}

	err = tx.Emit(EventWithdrawal, WithdrawalEvent{Recipient: to, Amount: amount.String()})
	if err != nil {
		return err
	}
	c.logger.Debug().
		Str("to", to.String()).
		Str("amount", amount.String()).
		Msg("Withdrawal")
	return nil
}

// Info summarizes the factory.
func (c *Contract) Info(tx *ledger.Txn) (*Info, error) {
	own, err := owner(tx)
	if err != nil {
		return nil, err
	}
	bal, err := tx.Balance(tx.Self())
	if err != nil {
		return nil, err
	}
	n, err := getCounter(tx, keyCount)
	if err != nil {
		return nil, err
	}
	return &Info{
		Address:       tx.Self(),
		Owner:         own,
		Balance:       bal.String(),
		TokenCount:    n,
		TokensPerCoin: TokensPerCoin,
		DefaultSupply: DefaultSupply,
	}, nil
}
