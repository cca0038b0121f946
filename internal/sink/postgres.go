package sink

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Klingon-tech/klingnet-launchpad/internal/factory"
	"github.com/Klingon-tech/klingnet-launchpad/internal/ledger"
)

const schema = `
CREATE TABLE IF NOT EXISTS launchpad_events (
	seq       BIGINT PRIMARY KEY,
	height    BIGINT NOT NULL,
	contract  TEXT   NOT NULL,
	name      TEXT   NOT NULL,
	data      JSONB  NOT NULL
);
CREATE TABLE IF NOT EXISTS launchpad_tokens (
	token      TEXT PRIMARY KEY,
	creator    TEXT    NOT NULL,
	name       TEXT    NOT NULL,
	symbol     TEXT    NOT NULL,
	max_supply NUMERIC NOT NULL,
	minted     NUMERIC NOT NULL DEFAULT 0,
	height     BIGINT  NOT NULL
);
CREATE INDEX IF NOT EXISTS launchpad_tokens_creator ON launchpad_tokens (creator, height);
CREATE TABLE IF NOT EXISTS launchpad_purchases (
	seq     BIGINT PRIMARY KEY,
	height  BIGINT  NOT NULL,
	buyer   TEXT    NOT NULL,
	token   TEXT    NOT NULL,
	payment NUMERIC NOT NULL,
	minted  NUMERIC NOT NULL
);
CREATE TABLE IF NOT EXISTS launchpad_withdrawals (
	seq       BIGINT PRIMARY KEY,
	height    BIGINT  NOT NULL,
	recipient TEXT    NOT NULL,
	amount    NUMERIC NOT NULL
);
`

// Postgres writes events into launchpad_* tables.
type Postgres struct {
	pool *pgxpool.Pool
}

// OpenPostgres connects to dsn and creates the tables if needed.
func OpenPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &Postgres{pool: pool}, nil
}

// Close releases the pool.
func (p *Postgres) Close() {
	p.pool.Close()
}

// WriteEvent stores ev and its typed projection in one transaction.
// Replaying an event is a no-op.
func (p *Postgres) WriteEvent(ctx context.Context, ev ledger.Event) error {
	return pgx.BeginFunc(ctx, p.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			INSERT INTO launchpad_events (seq, height, contract, name, data)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (seq) DO NOTHING`,
			int64(ev.Seq), int64(ev.Height), ev.Contract.String(), ev.Name, []byte(ev.Data))
		if err != nil {
			return fmt.Errorf("insert event: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return nil
		}
		return project(ctx, tx, ev)
	})
}

func project(ctx context.Context, tx pgx.Tx, ev ledger.Event) error {
	switch ev.Name {
	case factory.EventCreation:
		var c factory.CreationEvent
		if err := ev.Decode(&c); err != nil {
			return fmt.Errorf("decode creation: %w", err)
		}
		_, err := tx.Exec(ctx, `
			INSERT INTO launchpad_tokens (token, creator, name, symbol, max_supply, height)
			VALUES ($1, $2, $3, $4, $5::numeric, $6)
			ON CONFLICT (token) DO NOTHING`,
			c.Token.String(), c.Creator.String(), c.Name, c.Symbol,
			fmt.Sprint(c.MaxSupply), int64(ev.Height))
		return err

	case factory.EventPurchase:
		var pe factory.PurchaseEvent
		if err := ev.Decode(&pe); err != nil {
			return fmt.Errorf("decode purchase: %w", err)
		}
		_, err := tx.Exec(ctx, `
			INSERT INTO launchpad_purchases (seq, height, buyer, token, payment, minted)
			VALUES ($1, $2, $3, $4, $5::numeric, $6::numeric)`,
			int64(ev.Seq), int64(ev.Height), pe.Buyer.String(), pe.Token.String(),
			pe.PaymentOf().String(), fmt.Sprint(pe.Minted))
		if err != nil {
			return err
		}
		_, err = tx.Exec(ctx, `
			UPDATE launchpad_tokens SET minted = minted + $2::numeric WHERE token = $1`,
			pe.Token.String(), fmt.Sprint(pe.Minted))
		return err

	case factory.EventWithdrawal:
		var w factory.WithdrawalEvent
		if err := ev.Decode(&w); err != nil {
			return fmt.Errorf("decode withdrawal: %w", err)
		}
		_, err := tx.Exec(ctx, `
			INSERT INTO launchpad_withdrawals (seq, height, recipient, amount)
			VALUES ($1, $2, $3, $4::numeric)`,
			int64(ev.Seq), int64(ev.Height), w.Recipient.String(), w.AmountOf().String())
		return err
	}
	return nil
}

// TokenRow is a mirrored token listing.
type TokenRow struct {
	Token     string
	Creator   string
	Name      string
	Symbol    string
	MaxSupply string
	Minted    string
	Height    int64
}

// Tokens returns mirrored tokens in creation order.
func (p *Postgres) Tokens(ctx context.Context, limit, offset int) ([]TokenRow, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT token, creator, name, symbol, max_supply::text, minted::text, height
		FROM launchpad_tokens
		ORDER BY height, token
		LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list tokens: %w", err)
	}
	defer rows.Close()

	var out []TokenRow
	for rows.Next() {
		var r TokenRow
		if err := rows.Scan(&r.Token, &r.Creator, &r.Name, &r.Symbol, &r.MaxSupply, &r.Minted, &r.Height); err != nil {
			return nil, fmt.Errorf("scan token: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
