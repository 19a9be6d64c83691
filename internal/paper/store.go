package paper

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/HikmatBaniya/NorthstarCapital/internal/domain"
	"github.com/HikmatBaniya/NorthstarCapital/internal/models"
)

// Store owns every portfolio, its ledgers, and its proposal/trade
// history. It is the serialization boundary: each portfolio carries its
// own RWMutex, mutations take the exclusive lock, queries the shared
// one, and operations on different portfolios never block each other.
//
// Memory is the state of record for ordering; the Journal is written
// inside the critical section before the memory commit, so a journal
// failure aborts the mutation with no partial state on either side.
type Store struct {
	journal  Journal
	log      *zap.Logger
	currency string
	now      func() time.Time

	mu        sync.RWMutex
	accounts  map[uuid.UUID]*account
	proposals map[uuid.UUID]uuid.UUID // proposal id -> owning portfolio id
}

// account is one portfolio's state plus its lock.
type account struct {
	mu sync.RWMutex

	portfolio models.Portfolio
	positions map[string]models.Position
	trades    []models.Trade
	proposals map[uuid.UUID]models.Proposal
	order     []uuid.UUID // proposal creation order

	// failed marks a fail-closed portfolio after an invariant violation.
	// Mutations are refused; reads still work for forensics.
	failed bool
}

// NewStore hydrates a store from the journal's snapshot.
func NewStore(ctx context.Context, journal Journal, logger *zap.Logger, currency string) (*Store, error) {
	if currency == "" {
		currency = "NPR"
	}
	s := &Store{
		journal:   journal,
		log:       logger,
		currency:  currency,
		now:       func() time.Time { return time.Now().UTC() },
		accounts:  make(map[uuid.UUID]*account),
		proposals: make(map[uuid.UUID]uuid.UUID),
	}

	snap, err := journal.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load journal: %w", err)
	}
	for _, p := range snap.Portfolios {
		s.accounts[p.ID] = &account{
			portfolio: p,
			positions: make(map[string]models.Position),
			proposals: make(map[uuid.UUID]models.Proposal),
		}
	}
	for _, pos := range snap.Positions {
		if acct, ok := s.accounts[pos.PortfolioID]; ok {
			acct.positions[pos.Symbol] = pos
		}
	}
	props := append([]models.Proposal(nil), snap.Proposals...)
	sort.Slice(props, func(i, j int) bool { return props[i].CreatedAt.Before(props[j].CreatedAt) })
	for _, pr := range props {
		acct, ok := s.accounts[pr.PortfolioID]
		if !ok {
			continue
		}
		acct.proposals[pr.ID] = pr
		acct.order = append(acct.order, pr.ID)
		s.proposals[pr.ID] = pr.PortfolioID
	}
	trades := append([]models.Trade(nil), snap.Trades...)
	sort.Slice(trades, func(i, j int) bool { return trades[i].ExecutedAt.Before(trades[j].ExecutedAt) })
	for _, t := range trades {
		if acct, ok := s.accounts[t.PortfolioID]; ok {
			acct.trades = append(acct.trades, t)
		}
	}
	if len(s.accounts) > 0 {
		logger.Info("paper store hydrated",
			zap.Int("portfolios", len(s.accounts)),
			zap.Int("proposals", len(s.proposals)))
	}
	return s, nil
}

// CreatePortfolio seeds a new cash-only portfolio. Initial cash must be
// non-negative.
func (s *Store) CreatePortfolio(ctx context.Context, name, currency string, initialCash decimal.Decimal) (models.Portfolio, error) {
	if initialCash.IsNegative() {
		return models.Portfolio{}, fmt.Errorf("%w: initial cash %s", ErrInvalidAmount, initialCash)
	}
	if strings.TrimSpace(name) == "" {
		name = "Paper Portfolio"
	}
	if currency == "" {
		currency = s.currency
	}
	p := models.Portfolio{
		ID:        uuid.New(),
		Name:      strings.TrimSpace(name),
		Currency:  strings.ToUpper(currency),
		Cash:      initialCash,
		CreatedAt: s.now(),
	}
	if err := s.journal.SavePortfolio(ctx, p); err != nil {
		return models.Portfolio{}, fmt.Errorf("save portfolio: %w", err)
	}

	s.mu.Lock()
	s.accounts[p.ID] = &account{
		portfolio: p,
		positions: make(map[string]models.Position),
		proposals: make(map[uuid.UUID]models.Proposal),
	}
	s.mu.Unlock()

	s.log.Info("portfolio created",
		zap.String("portfolio_id", p.ID.String()),
		zap.String("name", p.Name),
		zap.String("cash", p.Cash.String()))
	return p, nil
}

func (s *Store) account(id uuid.UUID) (*account, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	acct, ok := s.accounts[id]
	return acct, ok
}

// Get returns the portfolio header with its current cash balance.
func (s *Store) Get(id uuid.UUID) (models.Portfolio, error) {
	acct, ok := s.account(id)
	if !ok {
		return models.Portfolio{}, fmt.Errorf("%w: portfolio %s", ErrNotFound, id)
	}
	acct.mu.RLock()
	defer acct.mu.RUnlock()
	return acct.portfolio, nil
}

// List returns all portfolios ordered by creation time.
func (s *Store) List() []models.Portfolio {
	s.mu.RLock()
	accts := make([]*account, 0, len(s.accounts))
	for _, a := range s.accounts {
		accts = append(accts, a)
	}
	s.mu.RUnlock()

	out := make([]models.Portfolio, 0, len(accts))
	for _, a := range accts {
		a.mu.RLock()
		out = append(out, a.portfolio)
		a.mu.RUnlock()
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out
}

// AdjustCash applies a signed deposit (positive) or withdrawal (negative)
// and appends a cash ledger entry. A withdrawal that would overdraw the
// balance fails with ErrInsufficientCash and leaves both sides untouched.
func (s *Store) AdjustCash(ctx context.Context, id uuid.UUID, amount decimal.Decimal, reason string) (models.Portfolio, error) {
	if amount.IsZero() {
		return models.Portfolio{}, fmt.Errorf("%w: amount must be non-zero", ErrInvalidAmount)
	}
	acct, ok := s.account(id)
	if !ok {
		return models.Portfolio{}, fmt.Errorf("%w: portfolio %s", ErrNotFound, id)
	}

	acct.mu.Lock()
	defer acct.mu.Unlock()
	if acct.failed {
		return models.Portfolio{}, fmt.Errorf("%w: portfolio %s is failed closed", ErrInconsistent, id)
	}
	balance := acct.portfolio.Cash.Add(amount)
	if balance.IsNegative() {
		return models.Portfolio{}, fmt.Errorf("%w: balance %s, withdrawal %s",
			ErrInsufficientCash, acct.portfolio.Cash, amount.Neg())
	}

	now := s.now()
	updated := acct.portfolio
	updated.Cash = balance
	entry := models.CashEntry{
		ID:          uuid.New(),
		PortfolioID: id,
		Amount:      amount,
		Balance:     balance,
		Reason:      reason,
		CreatedAt:   now,
	}
	if err := s.journal.SaveCashEntry(ctx, updated, entry); err != nil {
		return models.Portfolio{}, fmt.Errorf("save cash entry: %w", err)
	}
	acct.portfolio = updated

	s.log.Info("cash adjusted",
		zap.String("portfolio_id", id.String()),
		zap.String("amount", amount.String()),
		zap.String("balance", balance.String()))
	return updated, nil
}

// Propose validates structural correctness and stores a pending proposal.
// Cash/position sufficiency is deliberately not checked here: balances
// can change between proposal and approval, so sufficiency is enforced
// against current state at approval time.
func (s *Store) Propose(ctx context.Context, req ProposeRequest) (models.Proposal, error) {
	symbol := strings.ToUpper(strings.TrimSpace(req.Symbol))
	if symbol == "" {
		return models.Proposal{}, fmt.Errorf("%w: symbol is required", ErrInvalidAmount)
	}
	if !req.Side.Valid() {
		return models.Proposal{}, fmt.Errorf("%w: side %q", ErrInvalidAmount, req.Side)
	}
	if !req.Quantity.IsPositive() {
		return models.Proposal{}, fmt.Errorf("%w: quantity %s", ErrInvalidAmount, req.Quantity)
	}
	acct, ok := s.account(req.PortfolioID)
	if !ok {
		return models.Proposal{}, fmt.Errorf("%w: portfolio %s", ErrNotFound, req.PortfolioID)
	}

	acct.mu.Lock()
	defer acct.mu.Unlock()
	if acct.failed {
		return models.Proposal{}, fmt.Errorf("%w: portfolio %s is failed closed", ErrInconsistent, req.PortfolioID)
	}
	pr := models.Proposal{
		ID:            uuid.New(),
		PortfolioID:   req.PortfolioID,
		Symbol:        symbol,
		Side:          req.Side,
		Quantity:      req.Quantity,
		Status:        domain.StatusPending,
		ProposedPrice: req.ProposedPrice,
		Reason:        req.Reason,
		Model:         req.Model,
		CreatedAt:     s.now(),
	}
	if err := s.journal.SaveProposal(ctx, pr); err != nil {
		return models.Proposal{}, fmt.Errorf("save proposal: %w", err)
	}
	acct.proposals[pr.ID] = pr
	acct.order = append(acct.order, pr.ID)

	s.mu.Lock()
	s.proposals[pr.ID] = req.PortfolioID
	s.mu.Unlock()

	s.log.Info("trade proposed",
		zap.String("proposal_id", pr.ID.String()),
		zap.String("portfolio_id", req.PortfolioID.String()),
		zap.String("side", pr.Side.String()),
		zap.String("symbol", symbol),
		zap.String("quantity", pr.Quantity.String()))
	return pr, nil
}

// ProposeRequest carries the propose inputs. ProposedPrice is an
// optional indicative quote; it never affects execution.
type ProposeRequest struct {
	PortfolioID   uuid.UUID
	Symbol        string
	Side          domain.Side
	Quantity      decimal.Decimal
	Reason        string
	Model         string
	ProposedPrice *decimal.Decimal
}

// Reject moves a pending proposal to rejected with no ledger effect.
// Rejecting an already-terminal proposal fails rather than silently
// succeeding, to surface caller bugs.
func (s *Store) Reject(ctx context.Context, proposalID uuid.UUID) (models.Proposal, error) {
	return s.resolve(ctx, proposalID, domain.StatusRejected)
}

// Cancel is the caller-initiated withdrawal of a pending proposal. Same
// state-machine guard as Reject.
func (s *Store) Cancel(ctx context.Context, proposalID uuid.UUID) (models.Proposal, error) {
	return s.resolve(ctx, proposalID, domain.StatusCancelled)
}

func (s *Store) resolve(ctx context.Context, proposalID uuid.UUID, to domain.ProposalStatus) (models.Proposal, error) {
	acct, _, err := s.lookupProposal(proposalID)
	if err != nil {
		return models.Proposal{}, err
	}

	acct.mu.Lock()
	defer acct.mu.Unlock()
	if acct.failed {
		return models.Proposal{}, fmt.Errorf("%w: portfolio %s is failed closed", ErrInconsistent, acct.portfolio.ID)
	}
	current, ok := acct.proposals[proposalID]
	if !ok {
		return models.Proposal{}, fmt.Errorf("%w: proposal %s", ErrNotFound, proposalID)
	}
	if current.Status != domain.StatusPending {
		return models.Proposal{}, fmt.Errorf("%w: proposal %s is %s", ErrProposalNotPending, proposalID, current.Status)
	}

	now := s.now()
	updated := current
	updated.Status = to
	updated.ResolvedAt = &now
	if err := s.journal.SaveProposal(ctx, updated); err != nil {
		return models.Proposal{}, fmt.Errorf("save proposal: %w", err)
	}
	acct.proposals[proposalID] = updated

	s.log.Info("proposal resolved",
		zap.String("proposal_id", proposalID.String()),
		zap.String("status", to.String()))
	return updated, nil
}

// lookupProposal routes a proposal id to its owning account without
// taking the account lock.
func (s *Store) lookupProposal(proposalID uuid.UUID) (*account, models.Proposal, error) {
	s.mu.RLock()
	portfolioID, ok := s.proposals[proposalID]
	var acct *account
	if ok {
		acct = s.accounts[portfolioID]
	}
	s.mu.RUnlock()
	if acct == nil {
		return nil, models.Proposal{}, fmt.Errorf("%w: proposal %s", ErrNotFound, proposalID)
	}

	acct.mu.RLock()
	pr, ok := acct.proposals[proposalID]
	acct.mu.RUnlock()
	if !ok {
		return nil, models.Proposal{}, fmt.Errorf("%w: proposal %s", ErrNotFound, proposalID)
	}
	return acct, pr, nil
}

// Positions lists a portfolio's holdings ordered by symbol.
func (s *Store) Positions(id uuid.UUID) ([]models.Position, error) {
	acct, ok := s.account(id)
	if !ok {
		return nil, fmt.Errorf("%w: portfolio %s", ErrNotFound, id)
	}
	acct.mu.RLock()
	defer acct.mu.RUnlock()
	out := make([]models.Position, 0, len(acct.positions))
	for _, pos := range acct.positions {
		out = append(out, pos)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out, nil
}

// snapshot reads the portfolio header and its positions under one shared
// section, so a concurrent trade is either fully visible or not at all.
func (s *Store) snapshot(id uuid.UUID) (models.Portfolio, []models.Position, error) {
	acct, ok := s.account(id)
	if !ok {
		return models.Portfolio{}, nil, fmt.Errorf("%w: portfolio %s", ErrNotFound, id)
	}
	acct.mu.RLock()
	defer acct.mu.RUnlock()
	positions := make([]models.Position, 0, len(acct.positions))
	for _, pos := range acct.positions {
		positions = append(positions, pos)
	}
	sort.Slice(positions, func(i, j int) bool { return positions[i].Symbol < positions[j].Symbol })
	return acct.portfolio, positions, nil
}

// Trades lists a portfolio's executed trades in append order. A positive
// limit keeps only the most recent entries, still in append order.
func (s *Store) Trades(id uuid.UUID, limit int) ([]models.Trade, error) {
	acct, ok := s.account(id)
	if !ok {
		return nil, fmt.Errorf("%w: portfolio %s", ErrNotFound, id)
	}
	acct.mu.RLock()
	defer acct.mu.RUnlock()
	out := append([]models.Trade(nil), acct.trades...)
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

// Proposals lists a portfolio's proposals in creation order, optionally
// filtered by status.
func (s *Store) Proposals(id uuid.UUID, status *domain.ProposalStatus) ([]models.Proposal, error) {
	acct, ok := s.account(id)
	if !ok {
		return nil, fmt.Errorf("%w: portfolio %s", ErrNotFound, id)
	}
	acct.mu.RLock()
	defer acct.mu.RUnlock()
	out := make([]models.Proposal, 0, len(acct.order))
	for _, prID := range acct.order {
		pr := acct.proposals[prID]
		if status != nil && pr.Status != *status {
			continue
		}
		out = append(out, pr)
	}
	return out, nil
}
