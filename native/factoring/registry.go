package factoring

import (
	"errors"
	"fmt"
	"math/big"

	"factorvault/core/types"
	nativecommon "factorvault/native/common"
)

// errNetFundedZero aborts fundings whose payout would round to nothing after
// fees and reserved interest.
var errNetFundedZero = errors.New("factoring engine: net funded amount not positive")

// fundingBreakdown is the conserved split of a gross funding: every unit of
// Gross lands in exactly one of Net, AdminFee, ProtocolFee, TargetReserved or
// SpreadReserved.
type fundingBreakdown struct {
	Gross          *big.Int
	AdminFee       *big.Int
	ProtocolFee    *big.Int
	TargetReserved *big.Int
	SpreadReserved *big.Int
	Net            *big.Int
}

// breakdown computes the funding split. Gross rounds down (paid out), fees
// and reserved interest round up (charged); the reservation uses the approved
// minimum day count.
func (e *Engine) breakdown(inv *Invoice, upfrontBps uint64) (*fundingBreakdown, error) {
	gross := bpsFloor(inv.Principal, upfrontBps)
	admin := bpsCeil(inv.Principal, e.params.AdminFeeBps)
	protocol := bpsCeil(inv.Principal, e.params.ProtocolFeeBps)
	target := interestCeil(inv.Principal, inv.Terms.TargetYieldBps, inv.Terms.MinDays)
	spread := interestCeil(inv.Principal, inv.Terms.SpreadBps, inv.Terms.MinDays)

	net := new(big.Int).Set(gross)
	net.Sub(net, admin)
	net.Sub(net, protocol)
	net.Sub(net, target)
	net.Sub(net, spread)
	if net.Sign() <= 0 {
		return nil, errNetFundedZero
	}
	return &fundingBreakdown{
		Gross:          gross,
		AdminFee:       admin,
		ProtocolFee:    protocol,
		TargetReserved: target,
		SpreadReserved: spread,
		Net:            net,
	}, nil
}

// chargeSet is what the pool keeps out of a settlement. When the cap binds,
// components are reduced in the order interest, spread, protocol fee, admin
// fee: the investors' own yield gives way before third-party fees.
type chargeSet struct {
	Interest *big.Int
	Spread   *big.Int
	Protocol *big.Int
	Admin    *big.Int
}

func (c *chargeSet) total() *big.Int {
	out := new(big.Int).Add(c.Interest, c.Spread)
	out.Add(out, c.Protocol)
	return out.Add(out, c.Admin)
}

func (c *chargeSet) capTo(cap *big.Int) {
	if cap.Sign() < 0 {
		cap = big.NewInt(0)
	}
	excess := new(big.Int).Sub(c.total(), cap)
	for _, component := range []*big.Int{c.Interest, c.Spread, c.Protocol, c.Admin} {
		if excess.Sign() <= 0 {
			return
		}
		cut := minBig(component, excess)
		component.Sub(component, cut)
		excess.Sub(excess, cut)
	}
}

// chargesAt computes the true charges for a settlement observed at time now,
// against the value actually collected. Elapsed days are floored at the
// approved minimum, and the total is capped so the creditor's side never goes
// negative relative to the written-down basis.
func (e *Engine) chargesAt(inv *Invoice, collected, basis *big.Int, now int64) *chargeSet {
	days := maxUint64(daysSince(inv.FundedAt, now), inv.Terms.MinDays)
	charges := &chargeSet{
		Interest: interestCeil(inv.Principal, inv.Terms.TargetYieldBps, days),
		Spread:   interestCeil(inv.Principal, inv.Terms.SpreadBps, days),
		Protocol: cloneBig(inv.ProtocolFee),
		Admin:    cloneBig(inv.AdminFee),
	}
	cap := new(big.Int).Sub(collected, basis)
	charges.capTo(cap)
	return charges
}

// accruedUnrealizedYield sums the to-date target-yield accrual across funded
// invoices. Only the investor component accrues; spread and flat fees belong
// to the owner and treasury. Charged amounts round up, and each invoice's
// accrual is capped at the headroom a settlement today would leave it.
func (e *Engine) accruedUnrealizedYield(now int64) (*big.Int, error) {
	ids, err := e.state.ActiveInvoiceIDs()
	if err != nil {
		return nil, err
	}
	total := big.NewInt(0)
	for _, id := range ids {
		inv, err := e.state.Invoice(id)
		if err != nil {
			return nil, err
		}
		if inv == nil || inv.Status != InvoiceFunded {
			continue
		}
		days := daysSince(inv.FundedAt, now)
		if days == 0 {
			continue
		}
		accrued := interestCeil(inv.Principal, inv.Terms.TargetYieldBps, days)
		headroom := new(big.Int).Sub(inv.FaceValue, inv.FundedAmountNet)
		headroom.Sub(headroom, inv.AdminFee)
		headroom.Sub(headroom, inv.ProtocolFee)
		if headroom.Sign() < 0 {
			headroom = big.NewInt(0)
		}
		total.Add(total, minBig(accrued, headroom))
	}
	return total, nil
}

// ApproveInvoice underwrites an invoice for factoring. Valid from Created or
// Approved (re-approval refreshes terms and snapshots until funding); aborts
// if the external claim is already paid. A zero principal override means face
// value minus the paid amount observed now, frozen for the life of the
// approval.
func (e *Engine) ApproveInvoice(caller types.Address, id InvoiceID, terms FeeTerms, principalOverride *big.Int) error {
	if err := e.requireWiring(); err != nil {
		return err
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	if caller != e.underwriter {
		return ErrCallerNotAuthor
	}
	if err := terms.Validate(); err != nil {
		return err
	}

	existing, err := e.state.Invoice(id)
	if err != nil {
		return err
	}
	if existing != nil && existing.Status != InvoiceApproved {
		// Funded, paid, impaired and unfactored invoices cannot be
		// re-approved.
		return fmt.Errorf("factoring engine: invoice %s is %s: %w", id, existing.Status, ErrInvoiceAlreadyPaid)
	}

	details, err := e.adapter.InvoiceDetails(id)
	if err != nil {
		return fmt.Errorf("factoring engine: invoice adapter: %w", err)
	}
	if details.IsPaid {
		return ErrInvoiceAlreadyPaid
	}

	principal := cloneBigOrNil(principalOverride)
	if principal == nil || principal.Sign() == 0 {
		principal = new(big.Int).Sub(details.InvoiceAmount, details.PaidAmount)
	}
	if principal.Sign() <= 0 {
		return ErrPrincipalZero
	}

	now := e.now()
	inv := &Invoice{
		ID:               id,
		OriginalCreditor: details.Creditor,
		Debtor:           details.Debtor,
		FaceValue:        cloneBig(details.InvoiceAmount),
		PaidSnapshot:     cloneBig(details.PaidAmount),
		Principal:        principal,
		Terms:            terms,
		ApprovalExpiry:   now + e.params.ApprovalDurationSeconds,
		DueDate:          details.DueDate,
		Status:           InvoiceApproved,
	}
	if err := e.state.PutInvoice(inv); err != nil {
		return err
	}
	e.emit(&InvoiceApprovedEvent{
		ID:             id,
		Creditor:       details.Creditor,
		Principal:      cloneBig(principal),
		Terms:          terms,
		ApprovalExpiry: inv.ApprovalExpiry,
	})
	return nil
}

// FundInvoice advances payment against an approved invoice. The caller must
// be the invoice's original creditor; the external claim must still match the
// approval snapshot. On success the claim's ownership moves to the pool and
// the net amount is paid to the payout address.
func (e *Engine) FundInvoice(caller types.Address, id InvoiceID, upfrontBps uint64, payout types.Address) (*big.Int, error) {
	if err := e.requireWiring(); err != nil {
		return nil, err
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	if err := e.checkOracle(e.factorOracle, caller, ErrFactorNotAllowed); err != nil {
		return nil, err
	}
	if err := e.reconcileSweep(); err != nil {
		return nil, err
	}

	inv, err := e.state.Invoice(id)
	if err != nil {
		return nil, err
	}
	if inv == nil {
		return nil, ErrInvoiceNotFound
	}
	switch inv.Status {
	case InvoiceApproved:
	case InvoicePaid, InvoiceImpaired, InvoiceUnfactored, InvoiceFunded:
		return nil, fmt.Errorf("factoring engine: invoice %s is %s: %w", id, inv.Status, ErrInvoiceNotApproved)
	default:
		return nil, ErrInvoiceNotApproved
	}
	now := e.now()
	if now > inv.ApprovalExpiry {
		return nil, ErrApprovalExpired
	}
	if caller != inv.OriginalCreditor {
		return nil, ErrCallerNotAuthor
	}
	if upfrontBps == 0 || upfrontBps > inv.Terms.MaxUpfrontBps {
		return nil, ErrInvalidPercentage
	}

	details, err := e.adapter.InvoiceDetails(id)
	if err != nil {
		return nil, fmt.Errorf("factoring engine: invoice adapter: %w", err)
	}
	if details.IsPaid {
		return nil, ErrInvoiceAlreadyPaid
	}
	if details.Creditor != inv.OriginalCreditor {
		return nil, ErrInvoiceCreditorChanged
	}
	if details.PaidAmount.Cmp(inv.PaidSnapshot) != 0 {
		return nil, ErrInvoicePaidAmountChanged
	}

	split, err := e.breakdown(inv, upfrontBps)
	if err != nil {
		return nil, err
	}
	pool, err := e.loadPool()
	if err != nil {
		return nil, err
	}
	if pool.FreeLiquidity.Cmp(split.Net) < 0 {
		return nil, &InsufficientFundsError{Required: split.Net, Available: cloneBig(pool.FreeLiquidity)}
	}

	// Effects: the invoice becomes Funded and the liquidity moves from free
	// to deployed before any external call.
	inv.Status = InvoiceFunded
	inv.UpfrontBps = upfrontBps
	inv.FundedAt = now
	inv.DueDate = details.DueDate
	inv.GraceDeadline = details.DueDate + int64(e.params.GracePeriodDays)*86_400
	inv.FundedAmountGross = split.Gross
	inv.FundedAmountNet = split.Net
	inv.AdminFee = split.AdminFee
	inv.ProtocolFee = split.ProtocolFee
	inv.TargetReserved = split.TargetReserved
	inv.SpreadReserved = split.SpreadReserved
	inv.Payout = payout

	pool.FreeLiquidity = new(big.Int).Sub(pool.FreeLiquidity, split.Net)
	pool.DeployedPrincipal = new(big.Int).Add(pool.DeployedPrincipal, split.Net)

	if err := e.state.PutInvoice(inv); err != nil {
		return nil, err
	}
	if err := e.state.PutPoolState(pool); err != nil {
		return nil, err
	}

	// Interactions.
	if err := e.adapter.TransferInvoiceOwnership(id, e.poolAddress); err != nil {
		return nil, fmt.Errorf("factoring engine: claim ownership transfer: %w", err)
	}
	if err := e.token.Transfer(payout, split.Net); err != nil {
		return nil, fmt.Errorf("factoring engine: funding payout: %w", err)
	}

	e.emit(&InvoiceFundedEvent{
		ID:         id,
		Creditor:   inv.OriginalCreditor,
		UpfrontBps: upfrontBps,
		Gross:      cloneBig(split.Gross),
		Net:        cloneBig(split.Net),
		DueDate:    inv.DueDate,
	})

	if _, err := e.drainQueue(int(e.params.QueueDrainLimit)); err != nil {
		return nil, err
	}
	return cloneBig(split.Net), nil
}

// PreviewUnfactor quotes the amount the original creditor must repay to take
// the invoice back: the net advance plus all charges accrued to date.
func (e *Engine) PreviewUnfactor(id InvoiceID) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	inv, err := e.state.Invoice(id)
	if err != nil {
		return nil, err
	}
	if inv == nil {
		return nil, ErrInvoiceNotFound
	}
	if inv.Status != InvoiceFunded && inv.Status != InvoiceImpaired {
		return nil, ErrInvoiceNotFunded
	}
	return e.unfactorPrice(inv, e.now()), nil
}

func (e *Engine) unfactorPrice(inv *Invoice, now int64) *big.Int {
	days := maxUint64(daysSince(inv.FundedAt, now), inv.Terms.MinDays)
	total := cloneBig(inv.FundedAmountNet)
	total.Add(total, inv.AdminFee)
	total.Add(total, inv.ProtocolFee)
	total.Add(total, interestCeil(inv.Principal, inv.Terms.TargetYieldBps, days))
	total.Add(total, interestCeil(inv.Principal, inv.Terms.SpreadBps, days))
	return total
}

// UnfactorInvoice unwinds a funding before reconciliation. The original
// creditor may unfactor at any time; the pool owner may unfactor an impaired
// invoice. The caller repays the unfactor price, ownership of the claim
// returns to the original creditor, and the gain is booked exactly as a
// reconciliation would book it.
func (e *Engine) UnfactorInvoice(caller types.Address, id InvoiceID) (*big.Int, error) {
	if err := e.requireWiring(); err != nil {
		return nil, err
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	inv, err := e.state.Invoice(id)
	if err != nil {
		return nil, err
	}
	if inv == nil {
		return nil, ErrInvoiceNotFound
	}
	if inv.Status != InvoiceFunded && inv.Status != InvoiceImpaired {
		return nil, ErrInvoiceNotFunded
	}
	if caller != inv.OriginalCreditor && !(caller == e.owner && inv.Status == InvoiceImpaired) {
		return nil, ErrCallerNotAuthor
	}

	now := e.now()
	price := e.unfactorPrice(inv, now)
	if err := e.checkPullable(caller, price); err != nil {
		return nil, err
	}

	pool, err := e.loadPool()
	if err != nil {
		return nil, err
	}
	basis := big.NewInt(0)
	if inv.Status == InvoiceFunded {
		basis = cloneBig(inv.FundedAmountNet)
	}
	charges := e.chargesAt(inv, price, basis, now)
	e.bookSettlement(pool, inv, price, charges)
	inv.Status = InvoiceUnfactored
	inv.SettledAt = now

	if err := e.state.PutInvoice(inv); err != nil {
		return nil, err
	}
	if err := e.state.PutPoolState(pool); err != nil {
		return nil, err
	}

	// Interactions: pull the repayment, then hand the claim back.
	if err := e.token.TransferFrom(caller, e.poolAddress, price); err != nil {
		return nil, fmt.Errorf("factoring engine: pull unfactor repayment: %w", err)
	}
	if err := e.adapter.TransferInvoiceOwnership(id, inv.OriginalCreditor); err != nil {
		return nil, fmt.Errorf("factoring engine: claim ownership transfer: %w", err)
	}

	e.emit(&InvoiceUnfactoredEvent{ID: id, Caller: caller, Repaid: cloneBig(price)})

	if _, err := e.drainQueue(int(e.params.QueueDrainLimit)); err != nil {
		return nil, err
	}
	return price, nil
}
