package paper

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/HikmatBaniya/NorthstarCapital/internal/domain"
)

func newTestStore(t *testing.T) (*Store, *MemoryJournal) {
	t.Helper()
	journal := NewMemoryJournal()
	store, err := NewStore(context.Background(), journal, zap.NewNop(), "NPR")
	require.NoError(t, err)
	return store, journal
}

func TestCreatePortfolio(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	p, err := store.CreatePortfolio(ctx, "desk one", "", d("10000"))
	require.NoError(t, err)
	assert.Equal(t, "desk one", p.Name)
	assert.Equal(t, "NPR", p.Currency)
	assert.True(t, p.Cash.Equal(d("10000")))
	assert.NotEqual(t, uuid.Nil, p.ID)

	got, err := store.Get(p.ID)
	require.NoError(t, err)
	assert.Equal(t, p.ID, got.ID)

	t.Run("negative initial cash", func(t *testing.T) {
		_, err := store.CreatePortfolio(ctx, "bad", "", d("-1"))
		assert.ErrorIs(t, err, ErrInvalidAmount)
	})

	t.Run("name defaults", func(t *testing.T) {
		p, err := store.CreatePortfolio(ctx, "  ", "usd", d("0"))
		require.NoError(t, err)
		assert.Equal(t, "Paper Portfolio", p.Name)
		assert.Equal(t, "USD", p.Currency)
	})

	t.Run("unknown portfolio", func(t *testing.T) {
		_, err := store.Get(uuid.New())
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestAdjustCash(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	p, err := store.CreatePortfolio(ctx, "cash", "", d("100"))
	require.NoError(t, err)

	p2, err := store.AdjustCash(ctx, p.ID, d("50"), "top up")
	require.NoError(t, err)
	assert.True(t, p2.Cash.Equal(d("150")))

	p3, err := store.AdjustCash(ctx, p.ID, d("-150"), "drain")
	require.NoError(t, err)
	assert.True(t, p3.Cash.IsZero())

	_, err = store.AdjustCash(ctx, p.ID, d("-0.01"), "overdraft")
	assert.ErrorIs(t, err, ErrInsufficientCash)

	_, err = store.AdjustCash(ctx, p.ID, d("0"), "noop")
	assert.ErrorIs(t, err, ErrInvalidAmount)

	_, err = store.AdjustCash(ctx, uuid.New(), d("10"), "")
	assert.ErrorIs(t, err, ErrNotFound)

	// balance untouched by the failures above
	got, err := store.Get(p.ID)
	require.NoError(t, err)
	assert.True(t, got.Cash.IsZero())
}

func TestPropose(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	p, err := store.CreatePortfolio(ctx, "prop", "", d("1000"))
	require.NoError(t, err)

	pr, err := store.Propose(ctx, ProposeRequest{
		PortfolioID: p.ID,
		Symbol:      " abc ",
		Side:        domain.SideBuy,
		Quantity:    d("10"),
		Reason:      "momentum",
	})
	require.NoError(t, err)
	assert.Equal(t, "ABC", pr.Symbol)
	assert.Equal(t, domain.StatusPending, pr.Status)
	assert.Nil(t, pr.ResolvedAt)

	// structural validation only: an unaffordable buy is still accepted
	// here and judged at approval time
	big, err := store.Propose(ctx, ProposeRequest{
		PortfolioID: p.ID, Symbol: "ABC", Side: domain.SideBuy, Quantity: d("1000000"),
	})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, big.Status)

	cases := []struct {
		name string
		req  ProposeRequest
		want error
	}{
		{"zero quantity", ProposeRequest{PortfolioID: p.ID, Symbol: "ABC", Side: domain.SideBuy, Quantity: d("0")}, ErrInvalidAmount},
		{"negative quantity", ProposeRequest{PortfolioID: p.ID, Symbol: "ABC", Side: domain.SideSell, Quantity: d("-5")}, ErrInvalidAmount},
		{"empty symbol", ProposeRequest{PortfolioID: p.ID, Symbol: "  ", Side: domain.SideBuy, Quantity: d("1")}, ErrInvalidAmount},
		{"bad side", ProposeRequest{PortfolioID: p.ID, Symbol: "ABC", Side: domain.Side("hold"), Quantity: d("1")}, ErrInvalidAmount},
		{"unknown portfolio", ProposeRequest{PortfolioID: uuid.New(), Symbol: "ABC", Side: domain.SideBuy, Quantity: d("1")}, ErrNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := store.Propose(ctx, tc.req)
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestRejectAndCancel(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	p, err := store.CreatePortfolio(ctx, "rej", "", d("1000"))
	require.NoError(t, err)

	pr, err := store.Propose(ctx, ProposeRequest{
		PortfolioID: p.ID, Symbol: "ABC", Side: domain.SideBuy, Quantity: d("10"),
	})
	require.NoError(t, err)

	rejected, err := store.Reject(ctx, pr.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusRejected, rejected.Status)
	require.NotNil(t, rejected.ResolvedAt)

	// terminal states are immutable, and the second call must not
	// silently succeed
	_, err = store.Reject(ctx, pr.ID)
	assert.ErrorIs(t, err, ErrProposalNotPending)
	_, err = store.Cancel(ctx, pr.ID)
	assert.ErrorIs(t, err, ErrProposalNotPending)

	// no ledger effect
	got, err := store.Get(p.ID)
	require.NoError(t, err)
	assert.True(t, got.Cash.Equal(d("1000")))
	positions, err := store.Positions(p.ID)
	require.NoError(t, err)
	assert.Empty(t, positions)

	t.Run("cancel", func(t *testing.T) {
		pr, err := store.Propose(ctx, ProposeRequest{
			PortfolioID: p.ID, Symbol: "XYZ", Side: domain.SideSell, Quantity: d("1"),
		})
		require.NoError(t, err)
		cancelled, err := store.Cancel(ctx, pr.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.StatusCancelled, cancelled.Status)
	})

	t.Run("unknown proposal", func(t *testing.T) {
		_, err := store.Reject(ctx, uuid.New())
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestProposalsFilter(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	p, err := store.CreatePortfolio(ctx, "filter", "", d("1000"))
	require.NoError(t, err)

	first, err := store.Propose(ctx, ProposeRequest{PortfolioID: p.ID, Symbol: "AAA", Side: domain.SideBuy, Quantity: d("1")})
	require.NoError(t, err)
	second, err := store.Propose(ctx, ProposeRequest{PortfolioID: p.ID, Symbol: "BBB", Side: domain.SideBuy, Quantity: d("2")})
	require.NoError(t, err)
	_, err = store.Reject(ctx, first.ID)
	require.NoError(t, err)

	all, err := store.Proposals(p.ID, nil)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, first.ID, all[0].ID, "creation order")
	assert.Equal(t, second.ID, all[1].ID)

	pending := domain.StatusPending
	got, err := store.Proposals(p.ID, &pending)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, second.ID, got[0].ID)

	rejected := domain.StatusRejected
	got, err = store.Proposals(p.ID, &rejected)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, first.ID, got[0].ID)
}

func TestFailedClosedRefusesMutation(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	p, err := store.CreatePortfolio(ctx, "failed", "", d("1000"))
	require.NoError(t, err)

	acct, ok := store.account(p.ID)
	require.True(t, ok)
	acct.mu.Lock()
	acct.failed = true
	acct.mu.Unlock()

	_, err = store.AdjustCash(ctx, p.ID, d("10"), "")
	assert.ErrorIs(t, err, ErrInconsistent)
	_, err = store.Propose(ctx, ProposeRequest{PortfolioID: p.ID, Symbol: "ABC", Side: domain.SideBuy, Quantity: d("1")})
	assert.ErrorIs(t, err, ErrInconsistent)

	// reads still work
	_, err = store.Get(p.ID)
	assert.NoError(t, err)
}

func TestHydration(t *testing.T) {
	store, journal := newTestStore(t)
	ctx := context.Background()

	p, err := store.CreatePortfolio(ctx, "persist", "", d("500"))
	require.NoError(t, err)
	pr, err := store.Propose(ctx, ProposeRequest{PortfolioID: p.ID, Symbol: "ABC", Side: domain.SideBuy, Quantity: d("3")})
	require.NoError(t, err)

	reborn, err := NewStore(ctx, journal, zap.NewNop(), "NPR")
	require.NoError(t, err)

	got, err := reborn.Get(p.ID)
	require.NoError(t, err)
	assert.True(t, got.Cash.Equal(d("500")))

	props, err := reborn.Proposals(p.ID, nil)
	require.NoError(t, err)
	require.Len(t, props, 1)
	assert.Equal(t, pr.ID, props[0].ID)
	assert.Equal(t, domain.StatusPending, props[0].Status)

	// the proposal routes to its portfolio after a restart too
	_, err = reborn.Reject(ctx, pr.ID)
	assert.NoError(t, err)
}
