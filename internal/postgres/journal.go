package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgxdecimal "github.com/jackc/pgx-shopspring-decimal"

	"github.com/HikmatBaniya/NorthstarCapital/internal/models"
	"github.com/HikmatBaniya/NorthstarCapital/internal/paper"
)

// Connect opens a pgx pool with shopspring decimal codecs registered, so
// NUMERIC columns scan straight into the ledger's decimal types.
func Connect(ctx context.Context, url string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		pgxdecimal.Register(conn.TypeMap())
		return nil
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	return pool, nil
}

// Journal is the durable backing for the paper store. Writes happen
// inside the store's per-portfolio critical section; RecordExecution is
// one database transaction so a crash never leaves a trade half applied.
type Journal struct {
	DB *pgxpool.Pool
}

func NewJournal(db *pgxpool.Pool) *Journal { return &Journal{DB: db} }

func (j *Journal) SavePortfolio(ctx context.Context, p models.Portfolio) error {
	_, err := j.DB.Exec(ctx, `
		INSERT INTO paper_portfolios (id, name, currency, cash, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET cash = EXCLUDED.cash
	`, p.ID, p.Name, p.Currency, p.Cash, p.CreatedAt)
	return err
}

func (j *Journal) SaveCashEntry(ctx context.Context, p models.Portfolio, e models.CashEntry) error {
	tx, err := j.DB.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		`UPDATE paper_portfolios SET cash = $2 WHERE id = $1`, p.ID, p.Cash); err != nil {
		return err
	}
	if err := insertCashEntry(ctx, tx, e); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (j *Journal) SaveProposal(ctx context.Context, pr models.Proposal) error {
	_, err := j.DB.Exec(ctx, `
		INSERT INTO paper_proposals
			(id, portfolio_id, symbol, side, quantity, status, proposed_price, reason, model, created_at, resolved_at)
		VALUES ($1, $2, $3, $4::trade_side, $5, $6::proposal_status, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE SET status = EXCLUDED.status, resolved_at = EXCLUDED.resolved_at
	`, pr.ID, pr.PortfolioID, pr.Symbol, pr.Side, pr.Quantity, pr.Status,
		pr.ProposedPrice, nullIfEmpty(pr.Reason), nullIfEmpty(pr.Model), pr.CreatedAt, pr.ResolvedAt)
	return err
}

func (j *Journal) RecordExecution(ctx context.Context, rec paper.Execution) error {
	tx, err := j.DB.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `
		INSERT INTO paper_trades
			(id, proposal_id, portfolio_id, symbol, side, quantity, price, notional, realized_pnl, executed_at)
		VALUES ($1, $2, $3, $4, $5::trade_side, $6, $7, $8, $9, $10)
	`, rec.Trade.ID, rec.Trade.ProposalID, rec.Trade.PortfolioID, rec.Trade.Symbol,
		rec.Trade.Side, rec.Trade.Quantity, rec.Trade.Price, rec.Trade.Notional,
		rec.Trade.RealizedPnL, rec.Trade.ExecutedAt); err != nil {
		return fmt.Errorf("insert trade: %w", err)
	}

	if _, err := tx.Exec(ctx, `
		UPDATE paper_proposals SET status = $2::proposal_status, resolved_at = $3 WHERE id = $1
	`, rec.Proposal.ID, rec.Proposal.Status, rec.Proposal.ResolvedAt); err != nil {
		return fmt.Errorf("update proposal: %w", err)
	}

	if _, err := tx.Exec(ctx,
		`UPDATE paper_portfolios SET cash = $2 WHERE id = $1`,
		rec.Portfolio.ID, rec.Portfolio.Cash); err != nil {
		return fmt.Errorf("update portfolio: %w", err)
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO paper_positions (portfolio_id, symbol, quantity, avg_cost, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (portfolio_id, symbol)
		DO UPDATE SET quantity = EXCLUDED.quantity,
		              avg_cost = EXCLUDED.avg_cost,
		              updated_at = EXCLUDED.updated_at
	`, rec.Position.PortfolioID, rec.Position.Symbol, rec.Position.Quantity,
		rec.Position.AvgCost, rec.Position.UpdatedAt); err != nil {
		return fmt.Errorf("upsert position: %w", err)
	}

	if err := insertCashEntry(ctx, tx, rec.CashEntry); err != nil {
		return fmt.Errorf("insert cash entry: %w", err)
	}
	return tx.Commit(ctx)
}

func insertCashEntry(ctx context.Context, tx pgx.Tx, e models.CashEntry) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO paper_cash_ledger (id, portfolio_id, amount, balance, reason, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, e.ID, e.PortfolioID, e.Amount, e.Balance, nullIfEmpty(e.Reason), e.CreatedAt)
	return err
}

func (j *Journal) Load(ctx context.Context) (paper.Snapshot, error) {
	var snap paper.Snapshot

	rows, err := j.DB.Query(ctx,
		`SELECT id, name, currency, cash, created_at FROM paper_portfolios ORDER BY created_at`)
	if err != nil {
		return snap, err
	}
	defer rows.Close()
	for rows.Next() {
		var p models.Portfolio
		if err := rows.Scan(&p.ID, &p.Name, &p.Currency, &p.Cash, &p.CreatedAt); err != nil {
			return snap, err
		}
		snap.Portfolios = append(snap.Portfolios, p)
	}
	if err := rows.Err(); err != nil {
		return snap, err
	}

	rows, err = j.DB.Query(ctx,
		`SELECT portfolio_id, symbol, quantity, avg_cost, updated_at FROM paper_positions`)
	if err != nil {
		return snap, err
	}
	defer rows.Close()
	for rows.Next() {
		var p models.Position
		if err := rows.Scan(&p.PortfolioID, &p.Symbol, &p.Quantity, &p.AvgCost, &p.UpdatedAt); err != nil {
			return snap, err
		}
		snap.Positions = append(snap.Positions, p)
	}
	if err := rows.Err(); err != nil {
		return snap, err
	}

	rows, err = j.DB.Query(ctx, `
		SELECT id, portfolio_id, symbol, side::text, quantity, status::text,
		       proposed_price, COALESCE(reason, ''), COALESCE(model, ''), created_at, resolved_at
		FROM paper_proposals ORDER BY created_at`)
	if err != nil {
		return snap, err
	}
	defer rows.Close()
	for rows.Next() {
		var p models.Proposal
		if err := rows.Scan(&p.ID, &p.PortfolioID, &p.Symbol, &p.Side, &p.Quantity,
			&p.Status, &p.ProposedPrice, &p.Reason, &p.Model, &p.CreatedAt, &p.ResolvedAt); err != nil {
			return snap, err
		}
		snap.Proposals = append(snap.Proposals, p)
	}
	if err := rows.Err(); err != nil {
		return snap, err
	}

	rows, err = j.DB.Query(ctx, `
		SELECT id, proposal_id, portfolio_id, symbol, side::text, quantity, price, notional, realized_pnl, executed_at
		FROM paper_trades ORDER BY executed_at`)
	if err != nil {
		return snap, err
	}
	defer rows.Close()
	for rows.Next() {
		var t models.Trade
		if err := rows.Scan(&t.ID, &t.ProposalID, &t.PortfolioID, &t.Symbol, &t.Side,
			&t.Quantity, &t.Price, &t.Notional, &t.RealizedPnL, &t.ExecutedAt); err != nil {
			return snap, err
		}
		snap.Trades = append(snap.Trades, t)
	}
	return snap, rows.Err()
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
