package factoring

import (
	"math/big"
	"strconv"

	"factorvault/core/types"
)

// Event type identifiers emitted by the pool engine.
const (
	TypeDepositMade         = "factoring.deposit.made"
	TypeRedemptionSettled   = "factoring.redemption.settled"
	TypeRedemptionQueued    = "factoring.redemption.queued"
	TypeRedemptionSkipped   = "factoring.redemption.skipped"
	TypeRedemptionCancelled = "factoring.redemption.cancelled"
	TypeInvoiceApproved     = "factoring.invoice.approved"
	TypeInvoiceFunded       = "factoring.invoice.funded"
	TypeInvoicePaid         = "factoring.invoice.paid"
	TypeInvoiceImpaired     = "factoring.invoice.impaired"
	TypeInvoiceUnfactored   = "factoring.invoice.unfactored"
	TypeParamsUpdated       = "factoring.params.updated"
	TypeFeesWithdrawn       = "factoring.fees.withdrawn"
)

func formatAmount(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func intToString(v int64) string { return strconv.FormatInt(v, 10) }

func uintToString(v uint64) string { return strconv.FormatUint(v, 10) }

// DepositMade records a share mint against a deposit.
type DepositMade struct {
	Depositor types.Address
	Assets    *big.Int
	Shares    *big.Int
}

func (DepositMade) EventType() string { return TypeDepositMade }

func (e DepositMade) Event() *types.Event {
	return &types.Event{
		Type: TypeDepositMade,
		Attributes: map[string]string{
			"depositor": e.Depositor.Hex(),
			"assets":    formatAmount(e.Assets),
			"shares":    formatAmount(e.Shares),
		},
	}
}

// RedemptionSettled records a share burn and payout. QueueID is zero for
// immediate redemptions and the entry identifier for queued settlements,
// partial ones included.
type RedemptionSettled struct {
	Owner    types.Address
	Receiver types.Address
	Shares   *big.Int
	Assets   *big.Int
	QueueID  uint64
}

func (RedemptionSettled) EventType() string { return TypeRedemptionSettled }

func (e RedemptionSettled) Event() *types.Event {
	return &types.Event{
		Type: TypeRedemptionSettled,
		Attributes: map[string]string{
			"owner":    e.Owner.Hex(),
			"receiver": e.Receiver.Hex(),
			"shares":   formatAmount(e.Shares),
			"assets":   formatAmount(e.Assets),
			"queueId":  uintToString(e.QueueID),
		},
	}
}

// RedemptionQueued records a request deferred to the queue. Exactly one of
// Shares and Assets is set, matching the entry's request kind.
type RedemptionQueued struct {
	QueueID  uint64
	Owner    types.Address
	Receiver types.Address
	Shares   *big.Int
	Assets   *big.Int
}

func (RedemptionQueued) EventType() string { return TypeRedemptionQueued }

func (e RedemptionQueued) Event() *types.Event {
	attrs := map[string]string{
		"queueId":  uintToString(e.QueueID),
		"owner":    e.Owner.Hex(),
		"receiver": e.Receiver.Hex(),
	}
	if e.Shares != nil {
		attrs["shares"] = formatAmount(e.Shares)
	}
	if e.Assets != nil {
		attrs["assets"] = formatAmount(e.Assets)
	}
	return &types.Event{Type: TypeRedemptionQueued, Attributes: attrs}
}

// RedemptionSkipped records an unsatisfiable entry dropped during a drain.
// Skips never surface as errors to the caller whose operation ran the drain.
type RedemptionSkipped struct {
	QueueID uint64
	Owner   types.Address
	Reason  string
}

func (RedemptionSkipped) EventType() string { return TypeRedemptionSkipped }

func (e RedemptionSkipped) Event() *types.Event {
	return &types.Event{
		Type: TypeRedemptionSkipped,
		Attributes: map[string]string{
			"queueId": uintToString(e.QueueID),
			"owner":   e.Owner.Hex(),
			"reason":  e.Reason,
		},
	}
}

// RedemptionCancelled records an owner- or receiver-initiated cancellation.
type RedemptionCancelled struct {
	QueueID uint64
	Owner   types.Address
}

func (RedemptionCancelled) EventType() string { return TypeRedemptionCancelled }

func (e RedemptionCancelled) Event() *types.Event {
	return &types.Event{
		Type: TypeRedemptionCancelled,
		Attributes: map[string]string{
			"queueId": uintToString(e.QueueID),
			"owner":   e.Owner.Hex(),
		},
	}
}

// InvoiceApprovedEvent records an underwriter approval with the frozen
// principal and fee terms.
type InvoiceApprovedEvent struct {
	ID             InvoiceID
	Creditor       types.Address
	Principal      *big.Int
	Terms          FeeTerms
	ApprovalExpiry int64
}

func (InvoiceApprovedEvent) EventType() string { return TypeInvoiceApproved }

func (e InvoiceApprovedEvent) Event() *types.Event {
	return &types.Event{
		Type: TypeInvoiceApproved,
		Attributes: map[string]string{
			"id":             e.ID.Hex(),
			"creditor":       e.Creditor.Hex(),
			"principal":      formatAmount(e.Principal),
			"targetYieldBps": uintToString(e.Terms.TargetYieldBps),
			"spreadBps":      uintToString(e.Terms.SpreadBps),
			"maxUpfrontBps":  uintToString(e.Terms.MaxUpfrontBps),
			"minDays":        uintToString(e.Terms.MinDays),
			"approvalExpiry": intToString(e.ApprovalExpiry),
		},
	}
}

// InvoiceFundedEvent records the advance paid to the original creditor.
type InvoiceFundedEvent struct {
	ID         InvoiceID
	Creditor   types.Address
	UpfrontBps uint64
	Gross      *big.Int
	Net        *big.Int
	DueDate    int64
}

func (InvoiceFundedEvent) EventType() string { return TypeInvoiceFunded }

func (e InvoiceFundedEvent) Event() *types.Event {
	return &types.Event{
		Type: TypeInvoiceFunded,
		Attributes: map[string]string{
			"id":         e.ID.Hex(),
			"creditor":   e.Creditor.Hex(),
			"upfrontBps": uintToString(e.UpfrontBps),
			"gross":      formatAmount(e.Gross),
			"net":        formatAmount(e.Net),
			"dueDate":    intToString(e.DueDate),
		},
	}
}

// InvoicePaidEvent records a settlement: the full collected amount, the
// kickback returned to the original creditor, and the pre-tax investor gain.
type InvoicePaidEvent struct {
	ID       InvoiceID
	Paid     *big.Int
	Kickback *big.Int
	Gain     *big.Int
}

func (InvoicePaidEvent) EventType() string { return TypeInvoicePaid }

func (e InvoicePaidEvent) Event() *types.Event {
	return &types.Event{
		Type: TypeInvoicePaid,
		Attributes: map[string]string{
			"id":       e.ID.Hex(),
			"paid":     formatAmount(e.Paid),
			"kickback": formatAmount(e.Kickback),
			"gain":     formatAmount(e.Gain),
		},
	}
}

// InvoiceImpairedEvent records a write-off and how much of it the impair
// reserve absorbed.
type InvoiceImpairedEvent struct {
	ID             InvoiceID
	Loss           *big.Int
	ReserveCovered *big.Int
}

func (InvoiceImpairedEvent) EventType() string { return TypeInvoiceImpaired }

func (e InvoiceImpairedEvent) Event() *types.Event {
	return &types.Event{
		Type: TypeInvoiceImpaired,
		Attributes: map[string]string{
			"id":             e.ID.Hex(),
			"loss":           formatAmount(e.Loss),
			"reserveCovered": formatAmount(e.ReserveCovered),
		},
	}
}

// InvoiceUnfactoredEvent records an invoice bought back at the unfactor
// price.
type InvoiceUnfactoredEvent struct {
	ID     InvoiceID
	Caller types.Address
	Repaid *big.Int
}

func (InvoiceUnfactoredEvent) EventType() string { return TypeInvoiceUnfactored }

func (e InvoiceUnfactoredEvent) Event() *types.Event {
	return &types.Event{
		Type: TypeInvoiceUnfactored,
		Attributes: map[string]string{
			"id":     e.ID.Hex(),
			"caller": e.Caller.Hex(),
			"repaid": formatAmount(e.Repaid),
		},
	}
}

// ParamsUpdated records a parameter change by the pool owner.
type ParamsUpdated struct {
	Params Params
}

func (ParamsUpdated) EventType() string { return TypeParamsUpdated }

func (e ParamsUpdated) Event() *types.Event {
	return &types.Event{
		Type: TypeParamsUpdated,
		Attributes: map[string]string{
			"adminFeeBps":     uintToString(e.Params.AdminFeeBps),
			"protocolFeeBps":  uintToString(e.Params.ProtocolFeeBps),
			"taxBps":          uintToString(e.Params.TaxBps),
			"reserveBps":      uintToString(e.Params.ReserveBps),
			"gracePeriodDays": uintToString(e.Params.GracePeriodDays),
			"approvalWindow":  intToString(e.Params.ApprovalDurationSeconds),
			"maxQueueLength":  uintToString(uint64(e.Params.MaxQueueLength)),
		},
	}
}

// FeesWithdrawn records one earmarked balance paid out in full.
type FeesWithdrawn struct {
	Kind      string
	Recipient types.Address
	Amount    *big.Int
}

func (FeesWithdrawn) EventType() string { return TypeFeesWithdrawn }

func (e FeesWithdrawn) Event() *types.Event {
	return &types.Event{
		Type: TypeFeesWithdrawn,
		Attributes: map[string]string{
			"kind":      e.Kind,
			"recipient": e.Recipient.Hex(),
			"amount":    formatAmount(e.Amount),
		},
	}
}
