package factoring

import "math/big"

const maxBps = 10_000

var (
	basisPoints = big.NewInt(maxBps)
	daysPerYear = big.NewInt(365)
	// priceScale fixes price-per-share precision at 18 decimals.
	priceScale = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)
)

func cloneBig(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}

func cloneBigOrNil(v *big.Int) *big.Int {
	if v == nil {
		return nil
	}
	return new(big.Int).Set(v)
}

// mulDivFloor computes a*b/den rounded toward zero. Used for every amount the
// pool pays out, so rounding dust stays with the pool.
func mulDivFloor(a, b, den *big.Int) *big.Int {
	if a == nil || b == nil || den == nil || den.Sign() == 0 {
		return big.NewInt(0)
	}
	out := new(big.Int).Mul(a, b)
	return out.Quo(out, den)
}

// mulDivCeil computes a*b/den rounded away from zero. Used for every amount
// the pool charges, so rounding dust stays with the pool.
func mulDivCeil(a, b, den *big.Int) *big.Int {
	if a == nil || b == nil || den == nil || den.Sign() == 0 {
		return big.NewInt(0)
	}
	num := new(big.Int).Mul(a, b)
	if num.Sign() == 0 {
		return num
	}
	out, rem := new(big.Int).QuoRem(num, den, new(big.Int))
	if rem.Sign() != 0 {
		out.Add(out, big.NewInt(1))
	}
	return out
}

// bpsFloor applies a basis-point rate rounding down.
func bpsFloor(amount *big.Int, bps uint64) *big.Int {
	return mulDivFloor(amount, new(big.Int).SetUint64(bps), basisPoints)
}

// bpsCeil applies a basis-point rate rounding up.
func bpsCeil(amount *big.Int, bps uint64) *big.Int {
	return mulDivCeil(amount, new(big.Int).SetUint64(bps), basisPoints)
}

// interestCeil pro-rates an annualised basis-point rate over a day count,
// rounding up: principal * bps * days / (10000 * 365). Interest is owed to
// the pool, so it rounds in the pool's favor.
func interestCeil(principal *big.Int, bps, days uint64) *big.Int {
	if principal == nil || principal.Sign() <= 0 || bps == 0 || days == 0 {
		return big.NewInt(0)
	}
	num := new(big.Int).Mul(principal, new(big.Int).SetUint64(bps))
	num.Mul(num, new(big.Int).SetUint64(days))
	den := new(big.Int).Mul(basisPoints, daysPerYear)
	out, rem := new(big.Int).QuoRem(num, den, new(big.Int))
	if rem.Sign() != 0 {
		out.Add(out, big.NewInt(1))
	}
	return out
}

func minBig(a, b *big.Int) *big.Int {
	if a.Cmp(b) <= 0 {
		return new(big.Int).Set(a)
	}
	return new(big.Int).Set(b)
}

// daysSince converts an elapsed unix-second interval to whole days, flooring.
func daysSince(from, now int64) uint64 {
	if now <= from {
		return 0
	}
	return uint64(now-from) / 86_400
}

func maxUint64(a, b uint64) uint64 {
	if a > b {
		return a
	}
	return b
}
