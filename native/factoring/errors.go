package factoring

import (
	"errors"
	"fmt"
	"math/big"
)

// Validation and wiring errors. Every operation either applies fully or fails
// with one of these and no state change.
var (
	errNilState           = errors.New("factoring engine: state not configured")
	errNilToken           = errors.New("factoring engine: asset token not configured")
	errNilAdapter         = errors.New("factoring engine: invoice adapter not configured")
	ErrAmountZero         = errors.New("factoring engine: amount must be positive")
	ErrSharesRoundToZero  = errors.New("factoring engine: amount too small, shares round to zero")
	ErrInvalidPercentage  = errors.New("factoring engine: percentage out of bounds")
	ErrCallerNotOwner     = errors.New("factoring engine: caller is not the pool owner")
	ErrCallerNotAuthor    = errors.New("factoring engine: caller not authorized")
	ErrDepositNotAllowed  = errors.New("factoring engine: depositor not permitted")
	ErrRedeemNotAllowed   = errors.New("factoring engine: redeemer not permitted")
	ErrFactorNotAllowed   = errors.New("factoring engine: factoring party not permitted")
	ErrInvoiceNotFound    = errors.New("factoring engine: invoice not found")
	ErrInvoiceNotApproved = errors.New("factoring engine: invoice not approved")
	ErrApprovalExpired    = errors.New("factoring engine: invoice approval expired")
	ErrInvoiceNotFunded   = errors.New("factoring engine: invoice not funded")
	// ErrInvoiceAlreadyPaid aborts approval and funding when the external
	// claim is already settled, and re-funding of reconciled invoices.
	ErrInvoiceAlreadyPaid = errors.New("factoring engine: invoice already paid")
	// ErrInvoiceCreditorChanged aborts funding when the claim's creditor
	// drifted from the approval snapshot (front-running protection).
	ErrInvoiceCreditorChanged = errors.New("factoring engine: invoice creditor changed since approval")
	// ErrInvoicePaidAmountChanged aborts funding when partial payments landed
	// after approval; the invoice must be re-approved.
	ErrInvoicePaidAmountChanged = errors.New("factoring engine: invoice paid amount changed since approval")
	ErrInvoiceNotImpaired       = errors.New("factoring engine: invoice not overdue past grace period")
	ErrInvoiceAlreadyImpaired   = errors.New("factoring engine: invoice already impaired by fund")
	ErrPrincipalZero            = errors.New("factoring engine: invoice principal is zero")
	ErrQueueEntryNotFound       = errors.New("factoring engine: queued redemption not found")
	ErrAllowanceExceeded        = errors.New("factoring engine: share allowance exceeded")
	ErrInsufficientShares       = errors.New("factoring engine: insufficient share balance")
	// errValueConjured guards the accounting invariant that no operation may
	// create value. It is an internal fault, never a caller error.
	errValueConjured = errors.New("factoring engine: accounting invariant violated")
)

// InsufficientFundsError is returned when the pool's free liquidity cannot
// cover a funding payout.
type InsufficientFundsError struct {
	Required  *big.Int
	Available *big.Int
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("factoring engine: insufficient funds: required %s available %s", e.Required, e.Available)
}

// InsufficientLiquidityError is returned by the immediate redemption path.
// Callers fall back to the queueing variant on this error.
type InsufficientLiquidityError struct {
	Required  *big.Int
	Available *big.Int
}

func (e *InsufficientLiquidityError) Error() string {
	return fmt.Sprintf("factoring engine: insufficient liquidity: required %s available %s", e.Required, e.Available)
}

// QueueCapacityError is returned when the redemption queue is at its
// configured maximum active length.
type QueueCapacityError struct {
	Max uint32
}

func (e *QueueCapacityError) Error() string {
	return fmt.Sprintf("factoring engine: redemption queue at capacity (%d)", e.Max)
}
