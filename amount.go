package payfac

import "github.com/shopspring/decimal"

// ToleranceBasisPoints is the relative amount tolerance applied when
// comparing a settled amount against a requested amount: 1 basis point,
// i.e. 0.01% of the requested amount.
//
// Ledger amounts travel as integer base units and pick up rounding when
// converted from decimal, so exact equality is too strict. The effective
// tolerance is the smaller of one base unit and this relative bound.
const ToleranceBasisPoints = 1

var bpsDivisor = decimal.NewFromInt(10_000)

// AmountTolerance returns the absolute tolerance for comparing a settled
// amount against the requested amount, given the asset's base-unit
// decimals: min(one base unit, ToleranceBasisPoints of requested).
func AmountTolerance(requested decimal.Decimal, decimals int32) decimal.Decimal {
	oneBaseUnit := decimal.New(1, -decimals)
	relative := requested.Mul(decimal.NewFromInt(ToleranceBasisPoints)).Div(bpsDivisor)
	if oneBaseUnit.LessThan(relative) {
		return oneBaseUnit
	}
	return relative
}

// AmountSatisfies reports whether a settled amount covers the requested
// amount within the configured tolerance. Overpayment always satisfies.
func AmountSatisfies(settled, requested decimal.Decimal, decimals int32) bool {
	if settled.GreaterThanOrEqual(requested) {
		return true
	}
	shortfall := requested.Sub(settled)
	return shortfall.LessThanOrEqual(AmountTolerance(requested, decimals))
}
