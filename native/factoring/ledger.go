package factoring

import "math/big"

// ledger.go holds the capital-account arithmetic. The capital account is the
// pool's economic value from the investors' point of view: free liquidity
// plus deployed principal, minus balances earmarked for someone else (owner
// fees, protocol fees, spread, tax) and the impair reserve, which sits
// outside the capital account so that reserve-covered write-offs do not move
// the share price.

func capitalAccount(p *PoolState) *big.Int {
	out := new(big.Int).Add(p.FreeLiquidity, p.DeployedPrincipal)
	out.Sub(out, p.AdminFeeBalance)
	out.Sub(out, p.ProtocolFeeBalance)
	out.Sub(out, p.SpreadGainBalance)
	out.Sub(out, p.TaxBalance)
	out.Sub(out, p.ImpairReserve)
	if out.Sign() < 0 {
		// Never reachable when the engine's invariants hold; clamping keeps
		// pricing defined if an operator restores inconsistent state.
		return big.NewInt(0)
	}
	return out
}

// pricePerShare returns capitalAccount scaled by 1e18 over total supply, and
// zero when no shares exist.
func pricePerShare(p *PoolState) *big.Int {
	if p.TotalShares.Sign() == 0 {
		return big.NewInt(0)
	}
	return mulDivFloor(capitalAccount(p), priceScale, p.TotalShares)
}

// sharesForDeposit converts a deposit amount to shares. Accrued unrealized
// target yield on funded invoices is included in the denominator so new
// capital does not dilute in-flight gains. Floor: the depositor receives the
// rounded-down share count.
func sharesForDeposit(p *PoolState, accrued, amount *big.Int) *big.Int {
	if p.TotalShares.Sign() == 0 {
		// Bootstrap: one share per asset unit.
		return new(big.Int).Set(amount)
	}
	gross := new(big.Int).Add(capitalAccount(p), accrued)
	if gross.Sign() == 0 {
		// All capital lost with shares outstanding; new deposits re-bootstrap
		// pricing at one share per unit to keep conversions defined.
		return new(big.Int).Set(amount)
	}
	return mulDivFloor(amount, p.TotalShares, gross)
}

// assetsForShares converts shares to the assets owed on redemption. Unrealized
// yield is deliberately excluded so redemptions cannot be gamed against
// in-flight gains. Floor: the redeemer receives the rounded-down amount.
func assetsForShares(p *PoolState, shares *big.Int) *big.Int {
	if p.TotalShares.Sign() == 0 {
		return big.NewInt(0)
	}
	return mulDivFloor(shares, capitalAccount(p), p.TotalShares)
}

// sharesForAssets converts an asset withdrawal to the shares burned for it.
// Ceiling: the holder is charged the rounded-up share count.
func sharesForAssets(p *PoolState, assets *big.Int) *big.Int {
	capital := capitalAccount(p)
	if capital.Sign() == 0 {
		return big.NewInt(0)
	}
	return mulDivCeil(assets, p.TotalShares, capital)
}
