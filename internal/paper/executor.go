package paper

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/HikmatBaniya/NorthstarCapital/internal/domain"
	"github.com/HikmatBaniya/NorthstarCapital/internal/models"
	"github.com/HikmatBaniya/NorthstarCapital/internal/pricing"
)

// Feed receives executed trades after they commit. Publishing is
// best-effort and happens outside the portfolio lock; a feed error never
// unwinds a trade.
type Feed interface {
	PublishTrade(ctx context.Context, t models.Trade)
}

// Executor orchestrates the approval path: quote, re-validate, apply,
// record. The oracle is consulted before the exclusive section is taken,
// so slow market-data calls do not serialize the portfolio; proposal
// status and sufficiency are re-validated under the lock before any
// mutation.
type Executor struct {
	store  *Store
	quotes pricing.Quoter
	feed   Feed
	log    *zap.Logger
}

func NewExecutor(store *Store, quotes pricing.Quoter, feed Feed, logger *zap.Logger) *Executor {
	return &Executor{store: store, quotes: quotes, feed: feed, log: logger}
}

// ProposeTrade stores a pending proposal, stamping it with an indicative
// quote when one is available. A quote failure here is not an error:
// execution always re-quotes at approval.
func (e *Executor) ProposeTrade(ctx context.Context, req ProposeRequest) (models.Proposal, error) {
	if req.ProposedPrice == nil {
		if q, err := e.quotes.Quote(ctx, req.Symbol); err == nil {
			req.ProposedPrice = &q.Price
		} else {
			e.log.Debug("indicative quote unavailable",
				zap.String("symbol", req.Symbol), zap.Error(err))
		}
	}
	return e.store.Propose(ctx, req)
}

// Approve executes a pending proposal in full at a single quoted price.
// Exactly one Trade, one ledger mutation, and one terminal transition
// happen, or none of the three on any failure path. A PriceUnavailable
// failure leaves the proposal pending so approval can be retried.
func (e *Executor) Approve(ctx context.Context, proposalID uuid.UUID) (models.Trade, error) {
	acct, pr, err := e.store.lookupProposal(proposalID)
	if err != nil {
		return models.Trade{}, err
	}
	// Fast-fail before paying for a quote. Racy by design: the decisive
	// check runs again under the exclusive lock.
	if pr.Status != domain.StatusPending {
		return models.Trade{}, fmt.Errorf("%w: proposal %s is %s", ErrProposalNotPending, proposalID, pr.Status)
	}

	quote, err := e.quotes.Quote(ctx, pr.Symbol)
	if err != nil {
		return models.Trade{}, fmt.Errorf("%w: %v", ErrPriceUnavailable, err)
	}
	if !quote.Price.IsPositive() {
		return models.Trade{}, fmt.Errorf("%w: quoted %s for %s", ErrPriceUnavailable, quote.Price, pr.Symbol)
	}

	trade, err := e.apply(ctx, acct, proposalID, quote.Price)
	if err != nil {
		return models.Trade{}, err
	}

	if e.feed != nil {
		e.feed.PublishTrade(ctx, trade)
	}
	e.log.Info("proposal approved",
		zap.String("proposal_id", proposalID.String()),
		zap.String("trade_id", trade.ID.String()),
		zap.String("side", trade.Side.String()),
		zap.String("symbol", trade.Symbol),
		zap.String("price", trade.Price.String()),
		zap.String("notional", trade.Notional.String()))
	return trade, nil
}

// apply is the atomic section: everything between re-validation and the
// memory commit happens under the portfolio's exclusive lock, with the
// journal transaction inside it.
func (e *Executor) apply(ctx context.Context, acct *account, proposalID uuid.UUID, price decimal.Decimal) (models.Trade, error) {
	acct.mu.Lock()
	defer acct.mu.Unlock()

	if acct.failed {
		return models.Trade{}, fmt.Errorf("%w: portfolio %s is failed closed", ErrInconsistent, acct.portfolio.ID)
	}
	pr, ok := acct.proposals[proposalID]
	if !ok {
		return models.Trade{}, fmt.Errorf("%w: proposal %s", ErrNotFound, proposalID)
	}
	if pr.Status != domain.StatusPending {
		return models.Trade{}, fmt.Errorf("%w: proposal %s is %s", ErrProposalNotPending, proposalID, pr.Status)
	}

	now := e.store.now()
	notional := price.Mul(pr.Quantity)
	pos, held := acct.positions[pr.Symbol]
	if !held {
		pos = models.Position{PortfolioID: acct.portfolio.ID, Symbol: pr.Symbol}
	}

	portfolio := acct.portfolio
	var (
		newPos   models.Position
		realized *decimal.Decimal
		cashMove decimal.Decimal
	)
	switch pr.Side {
	case domain.SideBuy:
		if portfolio.Cash.LessThan(notional) {
			return models.Trade{}, fmt.Errorf("%w: need %s, have %s",
				ErrInsufficientCash, notional, portfolio.Cash)
		}
		newPos = applyBuyFill(pos, pr.Quantity, price, now)
		cashMove = notional.Neg()
	case domain.SideSell:
		if pos.Quantity.LessThan(pr.Quantity) {
			return models.Trade{}, fmt.Errorf("%w: selling %s, hold %s of %s",
				ErrInsufficientShares, pr.Quantity, pos.Quantity, pr.Symbol)
		}
		var pnl decimal.Decimal
		newPos, pnl = applySellFill(pos, pr.Quantity, price, now)
		realized = &pnl
		cashMove = notional
	default:
		return models.Trade{}, fmt.Errorf("%w: side %q", ErrInvalidAmount, pr.Side)
	}
	portfolio.Cash = portfolio.Cash.Add(cashMove)

	if portfolio.Cash.IsNegative() || newPos.Quantity.IsNegative() {
		acct.failed = true
		e.log.Error("ledger invariant violated, failing portfolio closed",
			zap.String("portfolio_id", portfolio.ID.String()),
			zap.String("cash", portfolio.Cash.String()),
			zap.String("quantity", newPos.Quantity.String()))
		return models.Trade{}, fmt.Errorf("%w: portfolio %s", ErrInconsistent, portfolio.ID)
	}

	approved := pr
	approved.Status = domain.StatusApproved
	approved.ResolvedAt = &now
	trade := models.Trade{
		ID:          uuid.New(),
		ProposalID:  pr.ID,
		PortfolioID: portfolio.ID,
		Symbol:      pr.Symbol,
		Side:        pr.Side,
		Quantity:    pr.Quantity,
		Price:       price,
		Notional:    notional,
		RealizedPnL: realized,
		ExecutedAt:  now,
	}
	entry := models.CashEntry{
		ID:          uuid.New(),
		PortfolioID: portfolio.ID,
		Amount:      cashMove,
		Balance:     portfolio.Cash,
		Reason:      fmt.Sprintf("trade %s %s %s", pr.Side, pr.Quantity, pr.Symbol),
		CreatedAt:   now,
	}

	rec := Execution{
		Trade:     trade,
		Proposal:  approved,
		Portfolio: portfolio,
		Position:  newPos,
		CashEntry: entry,
	}
	if err := e.store.journal.RecordExecution(ctx, rec); err != nil {
		return models.Trade{}, fmt.Errorf("record execution: %w", err)
	}

	acct.portfolio = portfolio
	acct.positions[pr.Symbol] = newPos
	acct.proposals[proposalID] = approved
	acct.trades = append(acct.trades, trade)
	return trade, nil
}

// Summary values a portfolio at current quotes: cash, per-position
// market value and unrealized P&L, and the total. Symbols without a
// quote degrade to their cost basis instead of failing the summary.
func (e *Executor) Summary(ctx context.Context, portfolioID uuid.UUID) (models.PortfolioSummary, error) {
	portfolio, positions, err := e.store.snapshot(portfolioID)
	if err != nil {
		return models.PortfolioSummary{}, err
	}

	sum := models.PortfolioSummary{
		Portfolio: portfolio,
		Cash:      portfolio.Cash,
		Positions: make([]models.PositionValue, 0, len(positions)),
	}
	for _, pos := range positions {
		pv := models.PositionValue{Position: pos}
		if q, err := e.quotes.Quote(ctx, pos.Symbol); err == nil {
			price := q.Price
			pv.LastPrice = &price
			pv.MarketValue = price.Mul(pos.Quantity)
			pnl := price.Sub(pos.AvgCost).Mul(pos.Quantity)
			pv.UnrealizedPnL = &pnl
		} else {
			pv.MarketValue = pos.AvgCost.Mul(pos.Quantity)
		}
		sum.MarketValue = sum.MarketValue.Add(pv.MarketValue)
		sum.Positions = append(sum.Positions, pv)
	}
	sum.TotalValue = sum.Cash.Add(sum.MarketValue)
	return sum, nil
}
