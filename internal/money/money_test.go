package money

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLineTotalDefaults(t *testing.T) {
	require.Equal(t, 100000.0, LineTotal(Line{Quantity: 0, UnitPrice: 100000}))
	require.Equal(t, 200000.0, LineTotal(Line{Quantity: 2, UnitPrice: 100000}))
	require.Equal(t, 45000.0, LineTotal(Line{Quantity: 1, UnitPrice: 50000, ItemDiscount: 5000}))
	require.Equal(t, 50000.0, LineTotal(Line{Quantity: 1, UnitPrice: 50000, ItemDiscount: -1}))
}

func TestSubtotal(t *testing.T) {
	lines := []Line{
		{Quantity: 2, UnitPrice: 100000},
		{Quantity: 1, UnitPrice: 50000, ItemDiscount: 5000},
	}
	require.Equal(t, 245000.0, Subtotal(lines))
	require.Equal(t, 0.0, Subtotal(nil))
}

func TestAfterDiscountFloorsAtZero(t *testing.T) {
	require.Equal(t, 90.0, AfterDiscount(100, 10))
	require.Equal(t, 0.0, AfterDiscount(100, 150))
}

func TestPPhAmount(t *testing.T) {
	require.Equal(t, 4900.0, PPhAmount(245000, 2))
	require.Equal(t, 0.0, PPhAmount(245000, 0))
	require.Equal(t, 0.0, PPhAmount(245000, -3))
}

func TestTotalTagihan(t *testing.T) {
	require.Equal(t, 240100.0, TotalTagihan(245000, 4900))
	require.Equal(t, 0.0, TotalTagihan(100, 200))
}

func TestRemaining(t *testing.T) {
	require.Equal(t, 145000.0, Remaining(245000, 100000))
	require.Equal(t, 0.0, Remaining(245000, 300000))
}

func TestRound2(t *testing.T) {
	require.Equal(t, 10.56, Round2(10.556))
	require.Equal(t, 10.0, Round2(10.004))
}
