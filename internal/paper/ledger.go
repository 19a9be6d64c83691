package paper

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/HikmatBaniya/NorthstarCapital/internal/models"
)

// Ledger arithmetic. All pure functions over decimals; the store applies
// the results under the portfolio lock only after the journal accepts them.

// applyBuyFill returns the position after buying qty at price, with the
// weighted-average cost basis recomputed:
//
//	(old_qty*old_avg + qty*price) / (old_qty + qty)
//
// A buy into a zero-quantity position collapses the formula to price.
func applyBuyFill(pos models.Position, qty, price decimal.Decimal, now time.Time) models.Position {
	newQty := pos.Quantity.Add(qty)
	oldCost := pos.Quantity.Mul(pos.AvgCost)
	fillCost := qty.Mul(price)
	pos.AvgCost = oldCost.Add(fillCost).DivRound(newQty, 8)
	pos.Quantity = newQty
	pos.UpdatedAt = now
	return pos
}

// applySellFill returns the position after selling qty, plus the realized
// P&L of the fill: (price - avg_cost) * qty. The average cost basis is
// unchanged by a sell. The caller has already checked qty <= held.
func applySellFill(pos models.Position, qty, price decimal.Decimal, now time.Time) (models.Position, decimal.Decimal) {
	realized := price.Sub(pos.AvgCost).Mul(qty)
	pos.Quantity = pos.Quantity.Sub(qty)
	pos.UpdatedAt = now
	return pos, realized
}
