package cart_test

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/barflow/internal/cart"
	"github.com/vladislavdragonenkov/barflow/internal/domain"
)

var (
	beer   = domain.MenuItem{ID: "beer", Name: "IPA", PriceMinor: 1000, Category: domain.CategoryBeers, Available: true}
	burger = domain.MenuItem{ID: "burger", Name: "Smash", PriceMinor: 2500, Category: domain.CategoryFood, Available: true}
	shot   = domain.MenuItem{ID: "shot", Name: "Tequila", PriceMinor: 333, Category: domain.CategoryShots, Available: true}
)

func TestCart_AddAggregatesSameItem(t *testing.T) {
	c := cart.New()
	c.Add(beer)
	c.Add(burger)
	c.Add(beer)

	lines := c.Lines()
	require.Len(t, lines, 2)
	assert.Equal(t, "beer", lines[0].Item.ID, "insertion order must be stable")
	assert.Equal(t, int32(2), lines[0].Qty)
	assert.Equal(t, int32(1), lines[1].Qty)
	assert.Equal(t, int64(4500), c.Total())
	assert.Equal(t, 3, c.Count())
}

func TestCart_RemoveDecrementsThenDeletes(t *testing.T) {
	c := cart.New()
	c.Add(beer)
	c.Add(beer)

	c.Remove("beer")
	assert.Equal(t, int32(1), c.Quantity("beer"))

	c.Remove("beer")
	assert.Equal(t, int32(0), c.Quantity("beer"))
	assert.True(t, c.Empty())
}

func TestCart_RemoveMissingIsNoop(t *testing.T) {
	c := cart.New()
	c.Add(burger)
	before := c.Lines()

	c.Remove("does-not-exist")

	assert.Equal(t, before, c.Lines())
	assert.Equal(t, int64(2500), c.Total())
}

func TestCart_LinesReturnsCopy(t *testing.T) {
	c := cart.New()
	c.Add(beer)

	lines := c.Lines()
	lines[0].Qty = 99

	assert.Equal(t, int32(1), c.Quantity("beer"))
}

func TestCart_Clear(t *testing.T) {
	c := cart.New()
	c.Add(beer)
	c.Add(shot)
	c.Clear()

	assert.True(t, c.Empty())
	assert.Zero(t, c.Total())
}

// Случайные последовательности add/remove: итог всегда равен сумме qty*price по оставшимся строкам.
func TestCart_TotalMatchesSurvivingLines(t *testing.T) {
	items := []domain.MenuItem{beer, burger, shot}
	rng := rand.New(rand.NewSource(42))

	for run := 0; run < 200; run++ {
		c := cart.New()
		model := map[string]int64{}

		for step := 0; step < 50; step++ {
			item := items[rng.Intn(len(items))]
			if rng.Intn(3) == 0 {
				c.Remove(item.ID)
				if model[item.ID] > 0 {
					model[item.ID]--
				}
			} else {
				c.Add(item)
				model[item.ID]++
			}
		}

		var want int64
		for _, item := range items {
			want += model[item.ID] * item.PriceMinor
			require.Equal(t, model[item.ID], int64(c.Quantity(item.ID)))
		}
		require.Equal(t, want, c.Total(), "run %d", run)

		for _, line := range c.Lines() {
			require.GreaterOrEqual(t, line.Qty, int32(1))
		}
	}
}
