package sizer

import "testing"

func TestComputeCapitalProportional(t *testing.T) {
	qty := Compute(Params{
		Strategy:   CapitalProportional,
		LeaderQty:  100,
		LeaderBal:  200000,
		FollowerBal: 50000,
		LotSize:    25,
	})
	if qty != 25 {
		t.Fatalf("expected 25, got %d", qty)
	}
}

func TestComputeCapitalProportionalZeroLeaderBalance(t *testing.T) {
	qty := Compute(Params{
		Strategy:   CapitalProportional,
		LeaderQty:  100,
		LeaderBal:  0,
		FollowerBal: 50000,
		LotSize:    25,
	})
	if qty != 0 {
		t.Fatalf("expected 0 when leader balance is zero, got %d", qty)
	}
}

func TestComputeFixedRatio(t *testing.T) {
	qty := Compute(Params{
		Strategy:     FixedRatio,
		LeaderQty:    100,
		CapitalRatio: 0.5,
		LotSize:      10,
	})
	if qty != 50 {
		t.Fatalf("expected 50, got %d", qty)
	}
}

func TestComputeFixedRatioFloorsToLot(t *testing.T) {
	qty := Compute(Params{
		Strategy:     FixedRatio,
		LeaderQty:    33,
		CapitalRatio: 1,
		LotSize:      10,
	})
	if qty != 30 {
		t.Fatalf("expected 30 (floored to lot), got %d", qty)
	}
}

func TestComputeRiskBased(t *testing.T) {
	qty := Compute(Params{
		Strategy:       RiskBased,
		FollowerBal:    100000,
		MaxPositionPct: 25,
		Premium:        500,
		LotSize:        50,
	})
	// max_notional = 25000; per-lot notional = 500*50 = 25000; lots = 1
	if qty != 50 {
		t.Fatalf("expected 50, got %d", qty)
	}
}

func TestComputeRiskBasedZeroPremium(t *testing.T) {
	qty := Compute(Params{
		Strategy:       RiskBased,
		FollowerBal:    100000,
		MaxPositionPct: 25,
		Premium:        0,
		LotSize:        50,
	})
	if qty != 0 {
		t.Fatalf("expected 0 when premium is zero, got %d", qty)
	}
}

func TestComputeBelowOneLotReturnsZero(t *testing.T) {
	qty := Compute(Params{
		Strategy:   CapitalProportional,
		LeaderQty:  10,
		LeaderBal:  100000,
		FollowerBal: 1000,
		LotSize:    25,
	})
	if qty != 0 {
		t.Fatalf("expected 0 for sub-lot position, got %d", qty)
	}
}

func TestDisclosedQtyScalesAndClamps(t *testing.T) {
	got := DisclosedQty(20, 100, 25, 5)
	if got != 5 {
		t.Fatalf("expected 5 (20*25/100 scaled, equal to lot size), got %d", got)
	}
}

func TestDisclosedQtyClampsToFollowerQty(t *testing.T) {
	got := DisclosedQty(150, 100, 25, 5)
	if got != 25 {
		t.Fatalf("expected 25 (clamped to follower qty), got %d", got)
	}
}

func TestDisclosedQtyZeroWhenLeaderDidNotDisclose(t *testing.T) {
	got := DisclosedQty(0, 100, 25, 5)
	if got != 0 {
		t.Fatalf("expected 0 when leader set no disclosed quantity, got %d", got)
	}
}
