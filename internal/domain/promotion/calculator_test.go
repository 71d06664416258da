package promotion

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedStrategy struct {
	amount  decimal.Decimal
	reduces bool
}

func (s fixedStrategy) ComputeDiscount(*Document, decimal.Decimal) (decimal.Decimal, error) {
	return s.amount, nil
}

func (fixedStrategy) ApplyToItems([]Item, decimal.Decimal) []Item { return nil }

func (s fixedStrategy) ReducesPrice() bool { return s.reduces }

func TestCalculator_Calculate(t *testing.T) {
	cart := []Item{item("A", "100.00", 1), item("B", "50.00", 1)}

	t.Run("flat discount split across items", func(t *testing.T) {
		c := NewCalculator(nil)
		res, err := c.Calculate(&Document{ID: "f30", Type: TypeFlatDiscount, DiscountAmount: d("30.00")}, cart)
		require.NoError(t, err)

		assert.True(t, d("30.00").Equal(res.Amount))
		assert.True(t, res.Adjusted)
		assert.True(t, res.ReducesPrice)
		require.Len(t, res.Items, 2)
		assert.True(t, d("20.00").Equal(res.Items[0].DiscountApplied))
		assert.True(t, d("10.00").Equal(res.Items[1].DiscountApplied))
	})

	t.Run("flat discount capped at subtotal", func(t *testing.T) {
		c := NewCalculator(nil)
		items := []Item{item("A", "125.00", 2)}
		res, err := c.Calculate(&Document{ID: "f300", Type: TypeFlatDiscount, DiscountAmount: d("300.00")}, items)
		require.NoError(t, err)
		assert.True(t, d("250.00").Equal(res.Amount))
		assert.True(t, decimal.Zero.Equal(res.Items[0].DiscountedPrice))
	})

	t.Run("cashback keeps prices", func(t *testing.T) {
		c := NewCalculator(nil)
		res, err := c.Calculate(&Document{ID: "cb", Type: TypeCashback, DiscountAmount: d("15.00")}, cart)
		require.NoError(t, err)
		assert.True(t, d("15.00").Equal(res.Amount))
		assert.False(t, res.ReducesPrice)
		for i := range cart {
			assert.True(t, cart[i].LineTotal().Equal(res.Items[i].DiscountedPrice))
		}
	})

	t.Run("unknown type fails closed", func(t *testing.T) {
		c := NewCalculator(nil)
		_, err := c.Calculate(&Document{ID: "x", Type: "unknown_type", DiscountAmount: d("10")}, cart)

		var unknown *UnknownTypeError
		require.ErrorAs(t, err, &unknown)
		assert.Equal(t, Type("unknown_type"), unknown.Type)
	})

	t.Run("nil items pass through as clones", func(t *testing.T) {
		r := NewRegistry()
		r.Register("bundle", fixedStrategy{amount: d("5"), reduces: true})
		c := NewCalculator(r)

		res, err := c.Calculate(&Document{ID: "b", Type: "bundle"}, cart)
		require.NoError(t, err)
		assert.False(t, res.Adjusted)
		require.Len(t, res.Items, 2)
		assert.True(t, d("100.00").Equal(res.Items[0].DiscountedPrice))
		assert.True(t, d("5").Equal(res.Amount))
	})

	t.Run("strategy overshoot clamped to subtotal", func(t *testing.T) {
		r := NewRegistry()
		r.Register("greedy", fixedStrategy{amount: d("1000"), reduces: true})
		c := NewCalculator(r)

		res, err := c.Calculate(&Document{ID: "g", Type: "greedy"}, cart)
		require.NoError(t, err)
		assert.True(t, d("150.00").Equal(res.Amount))
	})

	t.Run("negative strategy result floored", func(t *testing.T) {
		r := NewRegistry()
		r.Register("broken", fixedStrategy{amount: d("-3"), reduces: true})
		c := NewCalculator(r)

		res, err := c.Calculate(&Document{ID: "n", Type: "broken"}, cart)
		require.NoError(t, err)
		assert.True(t, res.Amount.IsZero())
	})

	t.Run("percent strategy error wrapped", func(t *testing.T) {
		c := NewCalculator(nil)
		_, err := c.Calculate(&Document{ID: "p", Type: TypePercentDiscount, DiscountPercent: d("120")}, cart)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "compute percent_discount discount")
	})
}
