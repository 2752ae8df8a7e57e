// Package money holds the pure billing arithmetic shared by invoices,
// manifests and reports. Intermediate sums are never rounded; only values
// headed for storage or display go through Round2.
package money

import "math"

// Line is the minimal shape the arithmetic needs from an invoice line.
type Line struct {
	Quantity     float64
	UnitPrice    float64
	ItemDiscount float64
}

// LineTotal computes quantity * unit price - item discount.
// Quantity defaults to 1 when unset or invalid; discount defaults to 0.
func LineTotal(l Line) float64 {
	qty := l.Quantity
	if qty <= 0 {
		qty = 1
	}
	disc := l.ItemDiscount
	if disc < 0 {
		disc = 0
	}
	return qty*l.UnitPrice - disc
}

// Subtotal sums line totals without intermediate rounding.
func Subtotal(lines []Line) float64 {
	var total float64
	for _, l := range lines {
		total += LineTotal(l)
	}
	return total
}

// AfterDiscount applies an invoice-level discount, floored at zero.
func AfterDiscount(subtotal, discountAmount float64) float64 {
	return math.Max(0, subtotal-discountAmount)
}

// PPhAmount computes the withholding amount from the discounted base.
func PPhAmount(afterDiscount, pphPercent float64) float64 {
	if pphPercent <= 0 {
		return 0
	}
	return afterDiscount * pphPercent / 100
}

// TotalTagihan is the amount actually billed after discount and withholding.
func TotalTagihan(afterDiscount, pphAmount float64) float64 {
	return math.Max(0, afterDiscount-pphAmount)
}

// Remaining is the outstanding balance, floored at zero.
func Remaining(total, paid float64) float64 {
	return math.Max(0, total-paid)
}

// Round2 rounds to two decimals for storage and display.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}
