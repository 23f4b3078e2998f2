// Package sizer computes a follower order's quantity from the leader's
// quantity, both accounts' balances, the instrument's lot size, and a
// configured strategy. Pure and deterministic: no I/O, no clock reads.
package sizer

import (
	"github.com/shopspring/decimal"
)

// Strategy names the sizing formula to apply.
type Strategy string

const (
	CapitalProportional Strategy = "capital_proportional"
	FixedRatio          Strategy = "fixed_ratio"
	RiskBased           Strategy = "risk_based"
)

// Params carries every input a sizing formula may need. Fields unused by a
// given Strategy are ignored.
type Params struct {
	Strategy Strategy

	LeaderQty    int64
	LeaderBal    float64
	FollowerBal  float64
	LotSize      int64
	Premium      float64 // limit price if present, else a last-trade-price proxy
	CapitalRatio float64 // fixed_ratio multiplier
	MaxPositionPct float64 // risk_based: percent (e.g. 25 means 25%)

	// LeaderDisclosedQty, when > 0, is scaled proportionally onto the
	// follower order by Compute's caller via DisclosedQty.
	LeaderDisclosedQty int64
}

// Compute returns the follower quantity for the given Params, always a
// non-negative multiple of LotSize. A return of 0 means the position rounds
// down to less than one lot and the caller should not place an order.
func Compute(p Params) int64 {
	if p.LotSize <= 0 {
		return 0
	}
	lot := decimal.NewFromInt(p.LotSize)

	var qty decimal.Decimal
	switch p.Strategy {
	case FixedRatio:
		qty = decimal.NewFromInt(p.LeaderQty).Mul(decimal.NewFromFloat(p.CapitalRatio))

	case RiskBased:
		if p.Premium <= 0 {
			return 0
		}
		maxNotional := decimal.NewFromFloat(p.FollowerBal).Mul(decimal.NewFromFloat(p.MaxPositionPct / 100))
		perLotNotional := decimal.NewFromFloat(p.Premium).Mul(lot)
		if perLotNotional.IsZero() {
			return 0
		}
		lots := maxNotional.Div(perLotNotional).Floor()
		return lots.Mul(lot).IntPart()

	case CapitalProportional:
		fallthrough
	default:
		if p.LeaderBal <= 0 {
			return 0
		}
		ratio := decimal.NewFromFloat(p.FollowerBal).Div(decimal.NewFromFloat(p.LeaderBal))
		qty = decimal.NewFromInt(p.LeaderQty).Mul(ratio)
	}

	lots := qty.Div(lot).Floor()
	return lots.Mul(lot).IntPart()
}

// DisclosedQty scales the leader's disclosed (iceberg) quantity onto the
// follower order, clamped to [lotSize, followerQty].
func DisclosedQty(leaderDisclosedQty, leaderQty, followerQty, lotSize int64) int64 {
	if leaderDisclosedQty <= 0 || leaderQty <= 0 || followerQty <= 0 {
		return 0
	}

	scaled := decimal.NewFromInt(leaderDisclosedQty).
		Mul(decimal.NewFromInt(followerQty)).
		Div(decimal.NewFromInt(leaderQty)).
		Round(0).
		IntPart()

	if scaled < lotSize {
		return lotSize
	}
	if scaled > followerQty {
		return followerQty
	}
	return scaled
}
