package factoring

import (
	"fmt"
	"math/big"

	nativecommon "factorvault/native/common"
)

// reconcile.go detects external invoice outcomes (paid, overdue past grace)
// and books them into the ledger. Reconciliation is the main
// liquidity-arrival event, so every public variant drains the redemption
// queue afterwards. Sweeps are idempotent: invoices already in a terminal
// state are never touched, and reconciling twice books nothing twice.

// ReconcileActivePaidInvoices scans all non-terminal invoices, settles the
// ones the adapter reports as paid, writes off the ones overdue past grace,
// then drains the redemption queue. It returns the number of invoices whose
// state changed. Safe to call late, redundantly, or out of order.
func (e *Engine) ReconcileActivePaidInvoices() (int, error) {
	if err := e.requireWiring(); err != nil {
		return 0, err
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return 0, err
	}
	changed, err := e.sweepOnce()
	if err != nil {
		return changed, err
	}
	if _, err := e.drainQueue(int(e.params.QueueDrainLimit)); err != nil {
		return changed, err
	}
	return changed, nil
}

// ReconcileInvoice settles a single invoice, intended as the payment-event
// callback so one settlement does not require a full registry scan. A
// terminal or still-unpaid invoice is a no-op. The queue is drained
// afterwards since this is where liquidity usually arrives.
func (e *Engine) ReconcileInvoice(id InvoiceID) (bool, error) {
	if err := e.requireWiring(); err != nil {
		return false, err
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return false, err
	}
	inv, err := e.state.Invoice(id)
	if err != nil {
		return false, err
	}
	if inv == nil {
		return false, ErrInvoiceNotFound
	}
	changed, err := e.reconcileOne(inv)
	if err != nil {
		return false, err
	}
	if _, err := e.drainQueue(int(e.params.QueueDrainLimit)); err != nil {
		return changed, err
	}
	return changed, nil
}

// reconcileSweep is the prelude every state-changing facade operation runs so
// pricing reflects the latest known truth. It does not drain the queue; the
// caller does that after its own effect.
func (e *Engine) reconcileSweep() error {
	_, err := e.sweepOnce()
	return err
}

func (e *Engine) sweepOnce() (int, error) {
	ids, err := e.state.ActiveInvoiceIDs()
	if err != nil {
		return 0, err
	}
	changed := 0
	for _, id := range ids {
		inv, err := e.state.Invoice(id)
		if err != nil {
			return changed, err
		}
		if inv == nil {
			continue
		}
		did, err := e.reconcileOne(inv)
		if err != nil {
			return changed, err
		}
		if did {
			changed++
		}
	}
	return changed, nil
}

// reconcileOne applies at most one transition to the invoice: settle it when
// the adapter reports payment, or write it off when overdue past grace.
func (e *Engine) reconcileOne(inv *Invoice) (bool, error) {
	switch inv.Status {
	case InvoiceFunded, InvoiceImpaired:
	default:
		return false, nil
	}
	details, err := e.adapter.InvoiceDetails(inv.ID)
	if err != nil {
		return false, fmt.Errorf("factoring engine: invoice adapter: %w", err)
	}
	if details.IsPaid {
		if err := e.settlePaid(inv, details); err != nil {
			return false, err
		}
		return true, nil
	}
	if inv.Status == InvoiceFunded && e.now() > inv.GraceDeadline {
		if err := e.impair(inv); err != nil {
			return false, err
		}
		return true, nil
	}
	return false, nil
}

// settlePaid books a paid invoice: the pool keeps the net advance plus the
// true elapsed-time charges, the original creditor receives the kickback, and
// the realized gain (with tax and reserve slices) lands in the ledger.
func (e *Engine) settlePaid(inv *Invoice, details InvoiceDetails) error {
	now := e.now()
	paid := cloneBig(details.PaidAmount)
	if paid.Sign() == 0 {
		paid = cloneBig(inv.FaceValue)
	}

	// The haircut can never exceed what the payment leaves above the net
	// advance; kickback is therefore never negative.
	charges := e.chargesAt(inv, paid, inv.FundedAmountNet, now)
	kickback := new(big.Int).Sub(paid, inv.FundedAmountNet)
	kickback.Sub(kickback, charges.total())
	if kickback.Sign() < 0 {
		return errValueConjured
	}
	retained := new(big.Int).Sub(paid, kickback)

	pool, err := e.loadPool()
	if err != nil {
		return err
	}
	gain := e.bookSettlement(pool, inv, retained, charges)
	inv.Status = InvoicePaid
	inv.SettledAt = now

	if err := e.state.PutInvoice(inv); err != nil {
		return err
	}
	if err := e.state.PutPoolState(pool); err != nil {
		return err
	}

	// Interaction: pay the residual back to the original creditor.
	if kickback.Sign() > 0 {
		if err := e.token.Transfer(inv.OriginalCreditor, kickback); err != nil {
			return fmt.Errorf("factoring engine: kickback payout: %w", err)
		}
	}

	e.emit(&InvoicePaidEvent{
		ID:       inv.ID,
		Paid:     paid,
		Kickback: kickback,
		Gain:     gain,
	})
	return nil
}

// bookSettlement applies the pool-side accounting of a settlement: retained
// cash arrives in free liquidity, the deployed basis is released for invoices
// still carried as Funded (an impaired invoice was already written off, so
// its basis is zero and the recovery is pure gain), fee and spread charges
// land in their earmarked balances, and the investor gain is taxed and
// reserve-sliced. It returns the pre-tax investor gain.
func (e *Engine) bookSettlement(pool *PoolState, inv *Invoice, retained *big.Int, charges *chargeSet) *big.Int {
	pool.FreeLiquidity = new(big.Int).Add(pool.FreeLiquidity, retained)

	gainBasis := big.NewInt(0)
	if inv.Status == InvoiceFunded {
		gainBasis = cloneBig(inv.FundedAmountNet)
		pool.DeployedPrincipal = new(big.Int).Sub(pool.DeployedPrincipal, inv.FundedAmountNet)
		if pool.DeployedPrincipal.Sign() < 0 {
			pool.DeployedPrincipal = big.NewInt(0)
		}
	}

	pool.AdminFeeBalance = new(big.Int).Add(pool.AdminFeeBalance, charges.Admin)
	pool.ProtocolFeeBalance = new(big.Int).Add(pool.ProtocolFeeBalance, charges.Protocol)
	pool.SpreadGainBalance = new(big.Int).Add(pool.SpreadGainBalance, charges.Spread)

	gain := new(big.Int).Sub(retained, gainBasis)
	gain.Sub(gain, charges.Admin)
	gain.Sub(gain, charges.Protocol)
	gain.Sub(gain, charges.Spread)

	if gain.Sign() > 0 {
		tax := bpsCeil(gain, e.params.TaxBps)
		pool.TaxBalance = new(big.Int).Add(pool.TaxBalance, tax)
		postTax := new(big.Int).Sub(gain, tax)
		if e.params.ReserveBps > 0 && postTax.Sign() > 0 {
			slice := bpsFloor(postTax, e.params.ReserveBps)
			pool.ImpairReserve = new(big.Int).Add(pool.ImpairReserve, slice)
		}
		pool.CumulativeRealizedGain = new(big.Int).Add(pool.CumulativeRealizedGain, postTax)
	} else if gain.Sign() < 0 {
		pool.CumulativeRealizedGain = new(big.Int).Add(pool.CumulativeRealizedGain, gain)
	}
	return gain
}

// ImpairInvoice writes off an overdue invoice explicitly. Anyone may call it:
// eligibility is purely objective (past due date plus grace), and the sweep
// books the same write-off on its own.
func (e *Engine) ImpairInvoice(id InvoiceID) error {
	if err := e.requireWiring(); err != nil {
		return err
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	inv, err := e.state.Invoice(id)
	if err != nil {
		return err
	}
	if inv == nil {
		return ErrInvoiceNotFound
	}
	if inv.Status == InvoiceImpaired {
		return ErrInvoiceAlreadyImpaired
	}
	if inv.Status != InvoiceFunded {
		return ErrInvoiceNotFunded
	}
	if e.now() <= inv.GraceDeadline {
		return ErrInvoiceNotImpaired
	}
	return e.impair(inv)
}

// impair realizes the loss on an overdue invoice: the outstanding net
// exposure is drawn first from the impair reserve, and only the uncovered
// remainder reduces the capital account.
func (e *Engine) impair(inv *Invoice) error {
	pool, err := e.loadPool()
	if err != nil {
		return err
	}
	loss := cloneBig(inv.FundedAmountNet)
	cover := minBig(pool.ImpairReserve, loss)

	pool.DeployedPrincipal = new(big.Int).Sub(pool.DeployedPrincipal, loss)
	if pool.DeployedPrincipal.Sign() < 0 {
		pool.DeployedPrincipal = big.NewInt(0)
	}
	pool.ImpairReserve = new(big.Int).Sub(pool.ImpairReserve, cover)
	uncovered := new(big.Int).Sub(loss, cover)
	pool.CumulativeRealizedGain = new(big.Int).Sub(pool.CumulativeRealizedGain, uncovered)

	inv.Status = InvoiceImpaired
	inv.ImpairedAt = e.now()
	inv.ImpairLoss = loss

	if err := e.state.PutInvoice(inv); err != nil {
		return err
	}
	if err := e.state.PutPoolState(pool); err != nil {
		return err
	}
	e.emit(&InvoiceImpairedEvent{ID: inv.ID, Loss: loss, ReserveCovered: cover})
	return nil
}
