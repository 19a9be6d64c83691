package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/HikmatBaniya/NorthstarCapital/internal/domain"
)

// Portfolio is a cash-only paper-trading account. Cash and all other
// monetary fields are decimals; the ledger never does float arithmetic.
type Portfolio struct {
	ID        uuid.UUID       `json:"id"`
	Name      string          `json:"name"`
	Currency  string          `json:"currency"`
	Cash      decimal.Decimal `json:"cash"`
	CreatedAt time.Time       `json:"created_at"`
}

// Position is the net holding of one symbol within a portfolio.
// Quantity never goes negative; AvgCost is the running weighted-average
// cost basis and is left untouched by sells.
type Position struct {
	PortfolioID uuid.UUID       `json:"portfolio_id"`
	Symbol      string          `json:"symbol"`
	Quantity    decimal.Decimal `json:"quantity"`
	AvgCost     decimal.Decimal `json:"avg_cost"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// Proposal is an unexecuted request to buy or sell. ProposedPrice is a
// best-effort quote captured at propose time and may be absent; the
// execution price is always re-quoted at approval.
type Proposal struct {
	ID            uuid.UUID             `json:"id"`
	PortfolioID   uuid.UUID             `json:"portfolio_id"`
	Symbol        string                `json:"symbol"`
	Side          domain.Side           `json:"side"`
	Quantity      decimal.Decimal       `json:"quantity"`
	Status        domain.ProposalStatus `json:"status"`
	ProposedPrice *decimal.Decimal      `json:"proposed_price,omitempty"`
	Reason        string                `json:"reason,omitempty"`
	Model         string                `json:"model,omitempty"`
	CreatedAt     time.Time             `json:"created_at"`
	ResolvedAt    *time.Time            `json:"resolved_at,omitempty"`
}

// Trade is the immutable record of an executed fill. RealizedPnL is set
// on sells only: (price - avg_cost) * quantity at execution time.
type Trade struct {
	ID          uuid.UUID        `json:"id"`
	ProposalID  uuid.UUID        `json:"proposal_id"`
	PortfolioID uuid.UUID        `json:"portfolio_id"`
	Symbol      string           `json:"symbol"`
	Side        domain.Side      `json:"side"`
	Quantity    decimal.Decimal  `json:"quantity"`
	Price       decimal.Decimal  `json:"price"`
	Notional    decimal.Decimal  `json:"notional"`
	RealizedPnL *decimal.Decimal `json:"realized_pnl,omitempty"`
	ExecutedAt  time.Time        `json:"executed_at"`
}

// CashEntry is one append-only row of a portfolio's cash ledger: deposits,
// withdrawals, and trade debits/credits. Balance is the running balance
// after the entry was applied.
type CashEntry struct {
	ID          uuid.UUID       `json:"id"`
	PortfolioID uuid.UUID       `json:"portfolio_id"`
	Amount      decimal.Decimal `json:"amount"`
	Balance     decimal.Decimal `json:"balance"`
	Reason      string          `json:"reason,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

// PositionValue is a position enriched with a live quote for summaries.
// LastPrice and UnrealizedPnL are nil when no quote is available, in
// which case MarketValue falls back to the cost basis.
type PositionValue struct {
	Position
	LastPrice     *decimal.Decimal `json:"last_price"`
	MarketValue   decimal.Decimal  `json:"market_value"`
	UnrealizedPnL *decimal.Decimal `json:"unrealized_pnl"`
}

// PortfolioSummary is the cash + positions valuation view of a portfolio.
type PortfolioSummary struct {
	Portfolio   Portfolio       `json:"portfolio"`
	Cash        decimal.Decimal `json:"cash"`
	Positions   []PositionValue `json:"positions"`
	MarketValue decimal.Decimal `json:"market_value"`
	TotalValue  decimal.Decimal `json:"total_value"`
}
