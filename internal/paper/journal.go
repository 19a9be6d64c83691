package paper

import (
	"context"
	"sync"

	"github.com/HikmatBaniya/NorthstarCapital/internal/models"
)

// Journal is the durable write-through backing the in-memory store. Each
// call is invoked inside the owning portfolio's critical section; a
// returned error aborts the in-memory mutation, so the journal never
// lags the store and the store never lags the journal.
type Journal interface {
	SavePortfolio(ctx context.Context, p models.Portfolio) error
	SaveCashEntry(ctx context.Context, p models.Portfolio, e models.CashEntry) error
	SaveProposal(ctx context.Context, pr models.Proposal) error
	// RecordExecution persists all effects of one approved trade as a
	// single transaction: the trade row, the terminal proposal, the
	// updated portfolio balance and position, and the cash ledger entry.
	RecordExecution(ctx context.Context, rec Execution) error
	Load(ctx context.Context) (Snapshot, error)
}

// Execution bundles every row touched by one approval.
type Execution struct {
	Trade     models.Trade
	Proposal  models.Proposal
	Portfolio models.Portfolio
	Position  models.Position
	CashEntry models.CashEntry
}

// Snapshot is the full persisted state used to hydrate the store at boot.
type Snapshot struct {
	Portfolios []models.Portfolio
	Positions  []models.Position
	Proposals  []models.Proposal
	Trades     []models.Trade
}

// MemoryJournal keeps the journal in process memory. It backs tests and
// the no-database dev mode; state does not survive a restart.
type MemoryJournal struct {
	mu         sync.Mutex
	portfolios map[string]models.Portfolio
	positions  map[string]models.Position
	proposals  map[string]models.Proposal
	trades     []models.Trade
	cash       []models.CashEntry
}

func NewMemoryJournal() *MemoryJournal {
	return &MemoryJournal{
		portfolios: make(map[string]models.Portfolio),
		positions:  make(map[string]models.Position),
		proposals:  make(map[string]models.Proposal),
	}
}

func (j *MemoryJournal) SavePortfolio(_ context.Context, p models.Portfolio) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.portfolios[p.ID.String()] = p
	return nil
}

func (j *MemoryJournal) SaveCashEntry(_ context.Context, p models.Portfolio, e models.CashEntry) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.portfolios[p.ID.String()] = p
	j.cash = append(j.cash, e)
	return nil
}

func (j *MemoryJournal) SaveProposal(_ context.Context, pr models.Proposal) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.proposals[pr.ID.String()] = pr
	return nil
}

func (j *MemoryJournal) RecordExecution(_ context.Context, rec Execution) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.trades = append(j.trades, rec.Trade)
	j.proposals[rec.Proposal.ID.String()] = rec.Proposal
	j.portfolios[rec.Portfolio.ID.String()] = rec.Portfolio
	j.positions[rec.Position.PortfolioID.String()+"|"+rec.Position.Symbol] = rec.Position
	j.cash = append(j.cash, rec.CashEntry)
	return nil
}

func (j *MemoryJournal) Load(_ context.Context) (Snapshot, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	var s Snapshot
	for _, p := range j.portfolios {
		s.Portfolios = append(s.Portfolios, p)
	}
	for _, p := range j.positions {
		s.Positions = append(s.Positions, p)
	}
	for _, p := range j.proposals {
		s.Proposals = append(s.Proposals, p)
	}
	s.Trades = append(s.Trades, j.trades...)
	return s, nil
}
