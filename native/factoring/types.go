package factoring

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"

	"factorvault/core/types"
)

// InvoiceID is the identifier assigned by the external claim protocol. The
// vault never derives or mutates it; invoices are referenced by id only.
type InvoiceID [32]byte

// ParseInvoiceID decodes a hex-encoded invoice identifier, with or without an
// 0x prefix.
func ParseInvoiceID(s string) (InvoiceID, error) {
	var id InvoiceID
	trimmed := strings.TrimSpace(s)
	if strings.HasPrefix(trimmed, "0x") || strings.HasPrefix(trimmed, "0X") {
		trimmed = trimmed[2:]
	}
	if len(trimmed) != len(id)*2 {
		return id, fmt.Errorf("invoice id must be %d bytes (got %d hex chars)", len(id), len(trimmed))
	}
	decoded, err := hex.DecodeString(trimmed)
	if err != nil {
		return id, fmt.Errorf("decode invoice id: %w", err)
	}
	copy(id[:], decoded)
	return id, nil
}

// Hex returns the canonical lowercase rendering of the identifier.
func (id InvoiceID) Hex() string { return "0x" + hex.EncodeToString(id[:]) }

// String implements fmt.Stringer.
func (id InvoiceID) String() string { return id.Hex() }

// MarshalText implements encoding.TextMarshaler.
func (id InvoiceID) MarshalText() ([]byte, error) { return []byte(id.Hex()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (id *InvoiceID) UnmarshalText(text []byte) error {
	parsed, err := ParseInvoiceID(string(text))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// InvoiceStatus tracks the lifecycle of an invoice inside the registry.
type InvoiceStatus uint8

const (
	// InvoiceCreated is the implicit state of an invoice known to the claim
	// protocol but not yet approved for factoring. The registry holds no
	// record for such invoices.
	InvoiceCreated InvoiceStatus = iota
	// InvoiceApproved marks an underwritten invoice eligible for funding
	// until its approval expires.
	InvoiceApproved
	// InvoiceFunded marks an invoice the pool has advanced payment against.
	InvoiceFunded
	// InvoicePaid marks a reconciled, fully settled invoice.
	InvoicePaid
	// InvoiceImpaired marks an overdue invoice whose exposure has been
	// written off. A later payment settles it as a late reconciliation.
	InvoiceImpaired
	// InvoiceUnfactored marks an invoice bought back by its original
	// creditor before reconciliation.
	InvoiceUnfactored
)

// Terminal reports whether no further transition can occur. Impaired invoices
// are not terminal: a late payment still settles them.
func (s InvoiceStatus) Terminal() bool {
	return s == InvoicePaid || s == InvoiceUnfactored
}

// Valid reports whether the status value is within the supported range.
func (s InvoiceStatus) Valid() bool {
	return s <= InvoiceUnfactored
}

func (s InvoiceStatus) String() string {
	switch s {
	case InvoiceCreated:
		return "created"
	case InvoiceApproved:
		return "approved"
	case InvoiceFunded:
		return "funded"
	case InvoicePaid:
		return "paid"
	case InvoiceImpaired:
		return "impaired"
	case InvoiceUnfactored:
		return "unfactored"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(s))
	}
}

// FeeTerms are the underwriter-approved economics for one invoice. All rates
// are expressed in basis points; MinDays is the minimum interest period
// charged even when the debtor pays early.
type FeeTerms struct {
	TargetYieldBps uint64 `json:"targetYieldBps"`
	SpreadBps      uint64 `json:"spreadBps"`
	MaxUpfrontBps  uint64 `json:"maxUpfrontBps"`
	MinDays        uint64 `json:"minDays"`
}

// Validate checks the term bounds shared by approval and re-approval.
func (t FeeTerms) Validate() error {
	if t.MaxUpfrontBps == 0 || t.MaxUpfrontBps > maxBps {
		return ErrInvalidPercentage
	}
	if t.TargetYieldBps > maxBps || t.SpreadBps > maxBps {
		return ErrInvalidPercentage
	}
	return nil
}

// Invoice is the registry's record of one factored claim. Snapshot fields are
// captured at approval and re-checked at funding so external drift aborts the
// funding instead of silently changing its economics.
type Invoice struct {
	ID               InvoiceID     `json:"id"`
	OriginalCreditor types.Address `json:"originalCreditor"`
	Debtor           types.Address `json:"debtor"`
	FaceValue        *big.Int      `json:"faceValue"`
	PaidSnapshot     *big.Int      `json:"paidSnapshot"`
	// Principal is the amount factored: the approval-time override when one
	// was given, otherwise face value minus the paid snapshot. Frozen at
	// approval even if further payments land before funding.
	Principal      *big.Int `json:"principal"`
	Terms          FeeTerms `json:"terms"`
	ApprovalExpiry int64    `json:"approvalExpiry"`
	DueDate        int64    `json:"dueDate"`
	GraceDeadline  int64    `json:"graceDeadline"`

	UpfrontBps        uint64        `json:"upfrontBps"`
	FundedAt          int64         `json:"fundedAt"`
	FundedAmountGross *big.Int      `json:"fundedAmountGross"`
	FundedAmountNet   *big.Int      `json:"fundedAmountNet"`
	AdminFee          *big.Int      `json:"adminFee"`
	ProtocolFee       *big.Int      `json:"protocolFee"`
	TargetReserved    *big.Int      `json:"targetReserved"`
	SpreadReserved    *big.Int      `json:"spreadReserved"`
	Payout            types.Address `json:"payout"`

	Status     InvoiceStatus `json:"status"`
	ImpairedAt int64         `json:"impairedAt"`
	// ImpairLoss is the written-off basis, recorded so a late payment is
	// recognised against a zero basis instead of double counting.
	ImpairLoss *big.Int `json:"impairLoss"`
	SettledAt  int64    `json:"settledAt"`
}

// Clone returns a deep copy so callers can mutate snapshots safely.
func (inv *Invoice) Clone() *Invoice {
	if inv == nil {
		return nil
	}
	clone := *inv
	clone.FaceValue = cloneBig(inv.FaceValue)
	clone.PaidSnapshot = cloneBig(inv.PaidSnapshot)
	clone.Principal = cloneBig(inv.Principal)
	clone.FundedAmountGross = cloneBig(inv.FundedAmountGross)
	clone.FundedAmountNet = cloneBig(inv.FundedAmountNet)
	clone.AdminFee = cloneBig(inv.AdminFee)
	clone.ProtocolFee = cloneBig(inv.ProtocolFee)
	clone.TargetReserved = cloneBig(inv.TargetReserved)
	clone.SpreadReserved = cloneBig(inv.SpreadReserved)
	clone.ImpairLoss = cloneBig(inv.ImpairLoss)
	return &clone
}

// InvoiceDetails is the adapter's view of the external claim.
type InvoiceDetails struct {
	Creditor      types.Address `json:"creditor"`
	Debtor        types.Address `json:"debtor"`
	InvoiceAmount *big.Int      `json:"invoiceAmount"`
	PaidAmount    *big.Int      `json:"paidAmount"`
	IsPaid        bool          `json:"isPaid"`
	DueDate       int64         `json:"dueDate"`
}

// PoolState is the capital-account aggregate. Every money movement in the
// engine mutates exactly one PoolState instance and persists it atomically
// with the records it concerns.
type PoolState struct {
	// FreeLiquidity is asset held by the pool and available for funding or
	// redemption, inclusive of the earmarked balances below.
	FreeLiquidity *big.Int `json:"freeLiquidity"`
	// DeployedPrincipal is the sum of FundedAmountNet across invoices in the
	// Funded state.
	DeployedPrincipal *big.Int `json:"deployedPrincipal"`
	// Earmarked balances are withdrawable by their beneficiaries and excluded
	// from the capital account.
	AdminFeeBalance    *big.Int `json:"adminFeeBalance"`
	ProtocolFeeBalance *big.Int `json:"protocolFeeBalance"`
	SpreadGainBalance  *big.Int `json:"spreadGainBalance"`
	TaxBalance         *big.Int `json:"taxBalance"`
	// ImpairReserve absorbs impairment losses before the capital account
	// does. It is excluded from the capital account for that reason.
	ImpairReserve *big.Int `json:"impairReserve"`
	// CumulativeRealizedGain is a signed lifetime tally kept for reporting.
	CumulativeRealizedGain *big.Int `json:"cumulativeRealizedGain"`
	TotalShares            *big.Int `json:"totalShares"`
}

// NewPoolState returns a zeroed aggregate.
func NewPoolState() *PoolState {
	return &PoolState{
		FreeLiquidity:          big.NewInt(0),
		DeployedPrincipal:      big.NewInt(0),
		AdminFeeBalance:        big.NewInt(0),
		ProtocolFeeBalance:     big.NewInt(0),
		SpreadGainBalance:      big.NewInt(0),
		TaxBalance:             big.NewInt(0),
		ImpairReserve:          big.NewInt(0),
		CumulativeRealizedGain: big.NewInt(0),
		TotalShares:            big.NewInt(0),
	}
}

func normalizePool(p *PoolState) *PoolState {
	if p == nil {
		return NewPoolState()
	}
	fields := []**big.Int{
		&p.FreeLiquidity, &p.DeployedPrincipal, &p.AdminFeeBalance,
		&p.ProtocolFeeBalance, &p.SpreadGainBalance, &p.TaxBalance,
		&p.ImpairReserve, &p.CumulativeRealizedGain, &p.TotalShares,
	}
	for _, f := range fields {
		if *f == nil {
			*f = big.NewInt(0)
		}
	}
	return p
}

// Clone returns a deep copy of the aggregate.
func (p *PoolState) Clone() *PoolState {
	if p == nil {
		return NewPoolState()
	}
	return &PoolState{
		FreeLiquidity:          cloneBig(p.FreeLiquidity),
		DeployedPrincipal:      cloneBig(p.DeployedPrincipal),
		AdminFeeBalance:        cloneBig(p.AdminFeeBalance),
		ProtocolFeeBalance:     cloneBig(p.ProtocolFeeBalance),
		SpreadGainBalance:      cloneBig(p.SpreadGainBalance),
		TaxBalance:             cloneBig(p.TaxBalance),
		ImpairReserve:          cloneBig(p.ImpairReserve),
		CumulativeRealizedGain: cloneBig(p.CumulativeRealizedGain),
		TotalShares:            cloneBig(p.TotalShares),
	}
}

// ShareAccount tracks one holder's vault shares and the spend allowances they
// have granted.
type ShareAccount struct {
	Address types.Address `json:"address"`
	Shares  *big.Int      `json:"shares"`
	// Allowances maps spender hex address to remaining share allowance.
	Allowances map[string]*big.Int `json:"allowances,omitempty"`
}

// Allowance returns the remaining shares the spender may redeem on the
// holder's behalf.
func (a *ShareAccount) Allowance(spender types.Address) *big.Int {
	if a == nil || a.Allowances == nil {
		return big.NewInt(0)
	}
	if amt, ok := a.Allowances[spender.Hex()]; ok && amt != nil {
		return new(big.Int).Set(amt)
	}
	return big.NewInt(0)
}

// SetAllowance overwrites the spender's allowance. Zero removes the entry.
func (a *ShareAccount) SetAllowance(spender types.Address, amount *big.Int) {
	if a == nil {
		return
	}
	if amount == nil || amount.Sign() <= 0 {
		delete(a.Allowances, spender.Hex())
		return
	}
	if a.Allowances == nil {
		a.Allowances = make(map[string]*big.Int)
	}
	a.Allowances[spender.Hex()] = new(big.Int).Set(amount)
}

// QueuedRedemption is one pending entry in the redemption queue. Exactly one
// of ShareAmount and AssetAmount is positive.
type QueuedRedemption struct {
	ID          uint64        `json:"id"`
	Owner       types.Address `json:"owner"`
	Receiver    types.Address `json:"receiver"`
	ShareAmount *big.Int      `json:"shareAmount,omitempty"`
	AssetAmount *big.Int      `json:"assetAmount,omitempty"`
	EnqueuedAt  int64         `json:"enqueuedAt"`
}

// Clone returns a deep copy of the entry.
func (q *QueuedRedemption) Clone() *QueuedRedemption {
	if q == nil {
		return nil
	}
	clone := *q
	clone.ShareAmount = cloneBigOrNil(q.ShareAmount)
	clone.AssetAmount = cloneBigOrNil(q.AssetAmount)
	return &clone
}

// InvoiceSummary is the reporting view of one invoice returned by PoolStatus.
type InvoiceSummary struct {
	ID               InvoiceID     `json:"id"`
	Status           InvoiceStatus `json:"status"`
	OriginalCreditor types.Address `json:"originalCreditor"`
	FaceValue        *big.Int      `json:"faceValue"`
	FundedAmountNet  *big.Int      `json:"fundedAmountNet,omitempty"`
	DueDate          int64         `json:"dueDate"`
	// ImpairEligible is set when the invoice is past due date plus grace but
	// has not yet been written off.
	ImpairEligible bool `json:"impairEligible"`
}

// PoolStatus is the aggregate reporting view exposed by the facade.
type PoolStatus struct {
	CapitalAccount    *big.Int         `json:"capitalAccount"`
	PricePerShare     *big.Int         `json:"pricePerShare"`
	FreeLiquidity     *big.Int         `json:"freeLiquidity"`
	DeployedPrincipal *big.Int         `json:"deployedPrincipal"`
	ImpairReserve     *big.Int         `json:"impairReserve"`
	TotalShares       *big.Int         `json:"totalShares"`
	QueueLength       int              `json:"queueLength"`
	Invoices          []InvoiceSummary `json:"invoices"`
}
