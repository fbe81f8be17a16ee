package factoring

import (
	"math/big"
	"testing"
)

func TestMulDivRounding(t *testing.T) {
	a, b, den := big.NewInt(10), big.NewInt(3), big.NewInt(4)
	if got := mulDivFloor(a, b, den); got.Cmp(big.NewInt(7)) != 0 {
		t.Fatalf("floor: got %s want 7", got)
	}
	if got := mulDivCeil(a, b, den); got.Cmp(big.NewInt(8)) != 0 {
		t.Fatalf("ceil: got %s want 8", got)
	}
	if got := mulDivCeil(big.NewInt(8), b, den); got.Cmp(big.NewInt(6)) != 0 {
		t.Fatalf("exact ceil: got %s want 6", got)
	}
	if got := mulDivFloor(a, b, big.NewInt(0)); got.Sign() != 0 {
		t.Fatalf("zero denominator: got %s", got)
	}
}

func TestBpsRounding(t *testing.T) {
	amount := big.NewInt(1_000_001)
	// 0.5% of 1000001 is 5000.005: payouts floor, charges ceil.
	if got := bpsFloor(amount, 50); got.Cmp(big.NewInt(5_000)) != 0 {
		t.Fatalf("bpsFloor: got %s want 5000", got)
	}
	if got := bpsCeil(amount, 50); got.Cmp(big.NewInt(5_001)) != 0 {
		t.Fatalf("bpsCeil: got %s want 5001", got)
	}
}

func TestInterestCeil(t *testing.T) {
	principal := big.NewInt(1_000_000)
	// 12% p.a. over 30 days: 1000000*1200*30/3650000 = 9863.01..., rounds up.
	if got := interestCeil(principal, 1_200, 30); got.Cmp(big.NewInt(9_864)) != 0 {
		t.Fatalf("interest: got %s want 9864", got)
	}
	if got := interestCeil(principal, 0, 30); got.Sign() != 0 {
		t.Fatalf("zero rate: got %s", got)
	}
	if got := interestCeil(principal, 1_200, 0); got.Sign() != 0 {
		t.Fatalf("zero days: got %s", got)
	}
	// 365 days at 12% is exactly 12%.
	if got := interestCeil(principal, 1_200, 365); got.Cmp(big.NewInt(120_000)) != 0 {
		t.Fatalf("full year: got %s want 120000", got)
	}
}

func TestDaysSinceFloors(t *testing.T) {
	from := int64(1_700_000_000)
	if got := daysSince(from, from+86_399); got != 0 {
		t.Fatalf("partial day: got %d want 0", got)
	}
	if got := daysSince(from, from+86_400); got != 1 {
		t.Fatalf("one day: got %d want 1", got)
	}
	if got := daysSince(from, from-5); got != 0 {
		t.Fatalf("clock skew: got %d want 0", got)
	}
}

func TestChargeSetCapReductionOrder(t *testing.T) {
	charges := &chargeSet{
		Interest: big.NewInt(100),
		Spread:   big.NewInt(50),
		Protocol: big.NewInt(25),
		Admin:    big.NewInt(25),
	}
	// Cap of 60 wipes interest (100) and takes 40 from spread before
	// touching the fees.
	charges.capTo(big.NewInt(60))
	if charges.Interest.Sign() != 0 {
		t.Fatalf("interest not reduced first: %s", charges.Interest)
	}
	if charges.Spread.Cmp(big.NewInt(10)) != 0 {
		t.Fatalf("spread: got %s want 10", charges.Spread)
	}
	if charges.Protocol.Cmp(big.NewInt(25)) != 0 || charges.Admin.Cmp(big.NewInt(25)) != 0 {
		t.Fatalf("fees reduced before spread exhausted: %s %s", charges.Protocol, charges.Admin)
	}
	if charges.total().Cmp(big.NewInt(60)) != 0 {
		t.Fatalf("total: got %s want 60", charges.total())
	}
}

func TestPricePerShareZeroSupply(t *testing.T) {
	p := NewPoolState()
	if got := pricePerShare(p); got.Sign() != 0 {
		t.Fatalf("zero-supply price: got %s", got)
	}
}
