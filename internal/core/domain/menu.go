package domain

import "math"

// MenuItem is the read-only catalog view the half-order flow needs.
type MenuItem struct {
	ID           int64
	RestaurantID int64
	Name         string
	Price        float64
	HalfPrice    *float64 // nil when the dish cannot be split
}

func (m MenuItem) SupportsHalf() bool {
	return m.HalfPrice != nil
}

// PairedPrice is two half portions plus the join fee. A dish without a
// half price falls back to its full price.
func PairedPrice(item MenuItem, joinFee float64) float64 {
	base := item.Price
	if item.HalfPrice != nil {
		base = *item.HalfPrice * 2
	}
	return roundCents(base + joinFee)
}

func roundCents(v float64) float64 {
	return math.Round(v*100) / 100
}
