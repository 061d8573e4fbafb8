package services

import "math"

// CommissionRate is the platform's share of every sale.
const CommissionRate = 0.10

// amountTolerance is the largest accepted gap, in cents, between a
// caller-supplied amount and the stored listing price.
const amountTolerance = 1

func toCents(amount float64) int64 {
	return int64(math.Round(amount * 100))
}

func fromCents(cents int64) float64 {
	return float64(cents) / 100
}

// SplitCommission divides price into the platform commission and the seller's
// net. Both are rounded to cents and always add back up to the rounded price.
func SplitCommission(price float64) (commission, sellerNet float64) {
	priceCents := toCents(price)
	commissionCents := int64(math.Round(float64(priceCents) * CommissionRate))
	return fromCents(commissionCents), fromCents(priceCents - commissionCents)
}

// AmountMatches reports whether a client-supplied amount equals price within a cent.
func AmountMatches(amount, price float64) bool {
	diff := toCents(amount) - toCents(price)
	if diff < 0 {
		diff = -diff
	}
	return diff <= amountTolerance
}

// sumCents adds amounts without accumulating float error.
func sumCents(amounts ...float64) float64 {
	var total int64
	for _, amount := range amounts {
		total += toCents(amount)
	}
	return fromCents(total)
}
