package paper

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/HikmatBaniya/NorthstarCapital/internal/models"
)

func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

func TestApplyBuyFill(t *testing.T) {
	now := time.Now().UTC()

	t.Run("first buy sets basis to fill price", func(t *testing.T) {
		pos := models.Position{Symbol: "ABC"}
		pos = applyBuyFill(pos, d("100"), d("50"), now)
		assert.True(t, pos.Quantity.Equal(d("100")))
		assert.True(t, pos.AvgCost.Equal(d("50")))
	})

	t.Run("second buy reweights basis", func(t *testing.T) {
		pos := models.Position{Symbol: "ABC"}
		pos = applyBuyFill(pos, d("100"), d("50"), now)
		pos = applyBuyFill(pos, d("50"), d("60"), now)
		// (100*50 + 50*60) / 150
		assert.True(t, pos.Quantity.Equal(d("150")))
		assert.True(t, pos.AvgCost.Round(2).Equal(d("53.33")), "got %s", pos.AvgCost)
	})

	t.Run("buy into emptied position resets basis", func(t *testing.T) {
		pos := models.Position{Symbol: "ABC", Quantity: d("0"), AvgCost: d("50")}
		pos = applyBuyFill(pos, d("10"), d("72"), now)
		assert.True(t, pos.AvgCost.Equal(d("72")))
	})
}

func TestApplySellFill(t *testing.T) {
	now := time.Now().UTC()
	pos := models.Position{Symbol: "ABC", Quantity: d("150"), AvgCost: d("50")}

	pos, realized := applySellFill(pos, d("40"), d("60"), now)
	assert.True(t, pos.Quantity.Equal(d("110")))
	assert.True(t, pos.AvgCost.Equal(d("50")), "sell must not move the basis")
	assert.True(t, realized.Equal(d("400")), "(60-50)*40, got %s", realized)

	pos, realized = applySellFill(pos, d("110"), d("45"), now)
	assert.True(t, pos.Quantity.IsZero())
	assert.True(t, realized.Equal(d("-550")))
}
