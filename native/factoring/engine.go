package factoring

import (
	"fmt"
	"math/big"
	"time"

	"factorvault/core/events"
	"factorvault/core/types"
	nativecommon "factorvault/native/common"
)

const moduleName = "factoring"

// engineState is the persistence boundary of the vault. Implementations must
// apply each Put atomically; the engine persists every internal effect before
// performing external transfers (checks-effects-interactions).
type engineState interface {
	PoolState() (*PoolState, error)
	PutPoolState(*PoolState) error
	Invoice(id InvoiceID) (*Invoice, error)
	PutInvoice(*Invoice) error
	// ActiveInvoiceIDs lists non-terminal invoices in a deterministic order.
	ActiveInvoiceIDs() ([]InvoiceID, error)
	ShareAccount(addr types.Address) (*ShareAccount, error)
	PutShareAccount(*ShareAccount) error
	Queue() (*RedemptionQueue, error)
	PutQueue(*RedemptionQueue) error
}

// AssetToken is the stable-asset collaborator, shaped from the pool's point
// of view: Transfer moves pool-held assets out, TransferFrom pulls approved
// assets in. Exact-amount semantics are required; fee-on-transfer or rebasing
// tokens are unsupported.
type AssetToken interface {
	BalanceOf(addr types.Address) (*big.Int, error)
	Allowance(owner, spender types.Address) (*big.Int, error)
	Transfer(to types.Address, amount *big.Int) error
	TransferFrom(from, to types.Address, amount *big.Int) error
}

// InvoiceAdapter knows how to read and mutate the external claim protocol.
// Paid state must be queryable on demand; the engine never assumes push
// notification.
type InvoiceAdapter interface {
	InvoiceDetails(id InvoiceID) (InvoiceDetails, error)
	TransferInvoiceOwnership(id InvoiceID, to types.Address) error
}

// PermissionOracle answers whitelist checks for a participant class. The
// engine holds no identity logic of its own.
type PermissionOracle interface {
	IsAllowed(addr types.Address) (bool, error)
}

// Engine is the pool facade: it owns the capital ledger, the invoice
// registry, and the redemption queue, and orchestrates every state-changing
// operation. Execution is fully serialized by the caller; the engine performs
// no internal locking.
type Engine struct {
	state   engineState
	token   AssetToken
	adapter InvoiceAdapter
	emitter events.Emitter
	pauses  nativecommon.PauseView
	nowFn   func() int64

	poolAddress      types.Address
	owner            types.Address
	underwriter      types.Address
	protocolTreasury types.Address

	depositOracle PermissionOracle
	redeemOracle  PermissionOracle
	factorOracle  PermissionOracle

	params Params
}

// NewEngine constructs a pool engine with default parameters and a no-op
// event emitter. Collaborators are wired via the Set* methods before use.
func NewEngine(poolAddr, owner types.Address) *Engine {
	return &Engine{
		emitter:     events.NoopEmitter{},
		nowFn:       func() int64 { return time.Now().Unix() },
		poolAddress: poolAddr,
		owner:       owner,
		params:      DefaultParams(),
	}
}

// SetState wires the engine to the persistence layer.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetAssetToken wires the stable-asset collaborator.
func (e *Engine) SetAssetToken(token AssetToken) { e.token = token }

// SetInvoiceAdapter wires the external claim protocol adapter.
func (e *Engine) SetInvoiceAdapter(adapter InvoiceAdapter) { e.adapter = adapter }

// SetEmitter configures the event emitter. Passing nil resets it to a no-op.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetPauses wires the operator pause switches.
func (e *Engine) SetPauses(p nativecommon.PauseView) { e.pauses = p }

// SetNowFunc overrides the engine clock. Intended for tests.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

// SetPermissionOracles wires the deposit, redeem and factoring whitelists. A
// nil oracle permits everyone.
func (e *Engine) SetPermissionOracles(deposit, redeem, factor PermissionOracle) {
	e.depositOracle = deposit
	e.redeemOracle = redeem
	e.factorOracle = factor
}

// SetProtocolTreasury configures where protocol fees are withdrawable to.
func (e *Engine) SetProtocolTreasury(addr types.Address) { e.protocolTreasury = addr }

// Params returns the current pool parameters.
func (e *Engine) Params() Params { return e.params }

// Underwriter returns the address allowed to approve invoices.
func (e *Engine) Underwriter() types.Address { return e.underwriter }

// PoolAddress returns the address the pool holds assets under.
func (e *Engine) PoolAddress() types.Address { return e.poolAddress }

func (e *Engine) now() int64 {
	if e == nil || e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn()
}

func (e *Engine) emit(evt events.Event) {
	if e == nil || e.emitter == nil || evt == nil {
		return
	}
	e.emitter.Emit(evt)
}

func (e *Engine) requireWiring() error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if e.token == nil {
		return errNilToken
	}
	if e.adapter == nil {
		return errNilAdapter
	}
	return nil
}

func (e *Engine) checkOracle(oracle PermissionOracle, addr types.Address, denied error) error {
	if oracle == nil {
		return nil
	}
	allowed, err := oracle.IsAllowed(addr)
	if err != nil {
		return fmt.Errorf("factoring engine: permission oracle: %w", err)
	}
	if !allowed {
		return denied
	}
	return nil
}

func (e *Engine) loadPool() (*PoolState, error) {
	pool, err := e.state.PoolState()
	if err != nil {
		return nil, err
	}
	return normalizePool(pool), nil
}

func (e *Engine) loadQueue() (*RedemptionQueue, error) {
	q, err := e.state.Queue()
	if err != nil {
		return nil, err
	}
	return normalizeQueue(q, e.params.MaxQueueLength), nil
}

func (e *Engine) loadShareAccount(addr types.Address) (*ShareAccount, error) {
	acct, err := e.state.ShareAccount(addr)
	if err != nil {
		return nil, err
	}
	if acct == nil {
		acct = &ShareAccount{Address: addr}
	}
	if acct.Shares == nil {
		acct.Shares = big.NewInt(0)
	}
	return acct, nil
}

// --- vault share surface -------------------------------------------------

// Deposit contributes asset to the pool and mints shares at the
// accrual-inclusive price. The minted share count is returned.
func (e *Engine) Deposit(depositor types.Address, amount *big.Int) (*big.Int, error) {
	if err := e.requireWiring(); err != nil {
		return nil, err
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil, ErrAmountZero
	}
	if err := e.checkOracle(e.depositOracle, depositor, ErrDepositNotAllowed); err != nil {
		return nil, err
	}
	if err := e.reconcileSweep(); err != nil {
		return nil, err
	}

	pool, err := e.loadPool()
	if err != nil {
		return nil, err
	}

	// Checks: verify the pull transfer can succeed before mutating state.
	if err := e.checkPullable(depositor, amount); err != nil {
		return nil, err
	}

	accrued, err := e.accruedUnrealizedYield(e.now())
	if err != nil {
		return nil, err
	}
	shares := sharesForDeposit(pool, accrued, amount)
	if shares.Sign() == 0 {
		return nil, ErrSharesRoundToZero
	}

	// Effects.
	acct, err := e.loadShareAccount(depositor)
	if err != nil {
		return nil, err
	}
	acct.Shares = new(big.Int).Add(acct.Shares, shares)
	pool.FreeLiquidity = new(big.Int).Add(pool.FreeLiquidity, amount)
	pool.TotalShares = new(big.Int).Add(pool.TotalShares, shares)
	if err := e.state.PutShareAccount(acct); err != nil {
		return nil, err
	}
	if err := e.state.PutPoolState(pool); err != nil {
		return nil, err
	}

	// Interactions.
	if err := e.token.TransferFrom(depositor, e.poolAddress, amount); err != nil {
		return nil, fmt.Errorf("factoring engine: pull deposit: %w", err)
	}

	e.emit(&DepositMade{Depositor: depositor, Assets: cloneBig(amount), Shares: cloneBig(shares)})

	// New liquidity may satisfy queued redemptions.
	if _, err := e.drainQueue(int(e.params.QueueDrainLimit)); err != nil {
		return nil, err
	}
	return shares, nil
}

// Redeem burns the caller's shares for assets at the accrual-exclusive price.
// It fails with InsufficientLiquidityError when free liquidity cannot cover
// the payout; callers then use RedeemAndOrQueue.
func (e *Engine) Redeem(caller, owner, receiver types.Address, shares *big.Int) (*big.Int, error) {
	if err := e.beginRedemption(caller, owner, shares); err != nil {
		return nil, err
	}
	pool, err := e.loadPool()
	if err != nil {
		return nil, err
	}
	assets := assetsForShares(pool, shares)
	if assets.Sign() == 0 {
		return nil, ErrSharesRoundToZero
	}
	if pool.FreeLiquidity.Cmp(assets) < 0 {
		return nil, &InsufficientLiquidityError{Required: assets, Available: cloneBig(pool.FreeLiquidity)}
	}
	acct, err := e.loadShareAccount(owner)
	if err != nil {
		return nil, err
	}
	if acct.Shares.Cmp(shares) < 0 {
		return nil, ErrInsufficientShares
	}
	if err := e.consumeShareAllowance(caller, owner, shares); err != nil {
		return nil, err
	}
	if err := e.settleShares(pool, owner, receiver, shares, assets); err != nil {
		return nil, err
	}
	if _, err := e.drainQueue(int(e.params.QueueDrainLimit)); err != nil {
		return nil, err
	}
	return assets, nil
}

// Withdraw redeems an exact asset amount, burning the rounded-up share count.
func (e *Engine) Withdraw(caller, owner, receiver types.Address, assets *big.Int) (*big.Int, error) {
	if err := e.beginRedemption(caller, owner, assets); err != nil {
		return nil, err
	}
	pool, err := e.loadPool()
	if err != nil {
		return nil, err
	}
	if pool.FreeLiquidity.Cmp(assets) < 0 {
		return nil, &InsufficientLiquidityError{Required: cloneBig(assets), Available: cloneBig(pool.FreeLiquidity)}
	}
	shares := sharesForAssets(pool, assets)
	if shares.Sign() == 0 {
		return nil, ErrSharesRoundToZero
	}
	acct, err := e.loadShareAccount(owner)
	if err != nil {
		return nil, err
	}
	if acct.Shares.Cmp(shares) < 0 {
		return nil, ErrInsufficientShares
	}
	if err := e.consumeShareAllowance(caller, owner, shares); err != nil {
		return nil, err
	}
	if err := e.settleShares(pool, owner, receiver, shares, assets); err != nil {
		return nil, err
	}
	if _, err := e.drainQueue(int(e.params.QueueDrainLimit)); err != nil {
		return nil, err
	}
	return shares, nil
}

// beginRedemption runs the shared prelude of every redemption variant:
// wiring, pause, amount and permission checks, then the reconcile sweep.
func (e *Engine) beginRedemption(caller, owner types.Address, amount *big.Int) error {
	if err := e.requireWiring(); err != nil {
		return err
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrAmountZero
	}
	if err := e.checkOracle(e.redeemOracle, owner, ErrRedeemNotAllowed); err != nil {
		return err
	}
	if caller != owner {
		if err := e.checkOracle(e.redeemOracle, caller, ErrRedeemNotAllowed); err != nil {
			return err
		}
	}
	return e.reconcileSweep()
}

// consumeShareAllowance charges a third-party caller's allowance. Owners
// redeeming their own shares pass through untouched.
func (e *Engine) consumeShareAllowance(caller, owner types.Address, shares *big.Int) error {
	if caller == owner {
		return nil
	}
	acct, err := e.loadShareAccount(owner)
	if err != nil {
		return err
	}
	allowance := acct.Allowance(caller)
	if allowance.Cmp(shares) < 0 {
		return ErrAllowanceExceeded
	}
	acct.SetAllowance(caller, allowance.Sub(allowance, shares))
	return e.state.PutShareAccount(acct)
}

// settleShares applies one redemption: burn, debit liquidity, then pay out.
func (e *Engine) settleShares(pool *PoolState, owner, receiver types.Address, shares, assets *big.Int) error {
	acct, err := e.loadShareAccount(owner)
	if err != nil {
		return err
	}
	if acct.Shares.Cmp(shares) < 0 {
		return ErrInsufficientShares
	}

	// Effects.
	acct.Shares = new(big.Int).Sub(acct.Shares, shares)
	pool.TotalShares = new(big.Int).Sub(pool.TotalShares, shares)
	pool.FreeLiquidity = new(big.Int).Sub(pool.FreeLiquidity, assets)
	if pool.TotalShares.Sign() < 0 || pool.FreeLiquidity.Sign() < 0 {
		return errValueConjured
	}
	if err := e.state.PutShareAccount(acct); err != nil {
		return err
	}
	if err := e.state.PutPoolState(pool); err != nil {
		return err
	}

	// Interactions.
	if err := e.token.Transfer(receiver, assets); err != nil {
		return fmt.Errorf("factoring engine: redemption payout: %w", err)
	}
	e.emit(&RedemptionSettled{Owner: owner, Receiver: receiver, Shares: cloneBig(shares), Assets: cloneBig(assets)})
	return nil
}

// checkPullable verifies balance and allowance ahead of a TransferFrom so the
// failure surfaces before any effect is persisted.
func (e *Engine) checkPullable(from types.Address, amount *big.Int) error {
	balance, err := e.token.BalanceOf(from)
	if err != nil {
		return fmt.Errorf("factoring engine: asset balance: %w", err)
	}
	if balance.Cmp(amount) < 0 {
		return &InsufficientFundsError{Required: cloneBig(amount), Available: balance}
	}
	allowance, err := e.token.Allowance(from, e.poolAddress)
	if err != nil {
		return fmt.Errorf("factoring engine: asset allowance: %w", err)
	}
	if allowance.Cmp(amount) < 0 {
		return &InsufficientFundsError{Required: cloneBig(amount), Available: allowance}
	}
	return nil
}

// TransferShares moves vault shares between holders.
func (e *Engine) TransferShares(from, to types.Address, amount *big.Int) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrAmountZero
	}
	fromAcct, err := e.loadShareAccount(from)
	if err != nil {
		return err
	}
	if fromAcct.Shares.Cmp(amount) < 0 {
		return ErrInsufficientShares
	}
	toAcct, err := e.loadShareAccount(to)
	if err != nil {
		return err
	}
	fromAcct.Shares = new(big.Int).Sub(fromAcct.Shares, amount)
	toAcct.Shares = new(big.Int).Add(toAcct.Shares, amount)
	if err := e.state.PutShareAccount(fromAcct); err != nil {
		return err
	}
	return e.state.PutShareAccount(toAcct)
}

// ApproveShares grants spender the right to redeem the owner's shares, up to
// amount. Overwrites any previous grant.
func (e *Engine) ApproveShares(owner, spender types.Address, amount *big.Int) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	acct, err := e.loadShareAccount(owner)
	if err != nil {
		return err
	}
	acct.SetAllowance(spender, amount)
	return e.state.PutShareAccount(acct)
}

// ShareBalanceOf returns the holder's share balance.
func (e *Engine) ShareBalanceOf(addr types.Address) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	acct, err := e.loadShareAccount(addr)
	if err != nil {
		return nil, err
	}
	return cloneBig(acct.Shares), nil
}

// ShareAllowance returns the remaining allowance spender holds on owner.
func (e *Engine) ShareAllowance(owner, spender types.Address) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	acct, err := e.loadShareAccount(owner)
	if err != nil {
		return nil, err
	}
	return acct.Allowance(spender), nil
}

// TotalShares returns the outstanding share supply.
func (e *Engine) TotalShares() (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	pool, err := e.loadPool()
	if err != nil {
		return nil, err
	}
	return cloneBig(pool.TotalShares), nil
}

// PricePerShare returns the accrual-exclusive share price scaled by 1e18.
func (e *Engine) PricePerShare() (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	pool, err := e.loadPool()
	if err != nil {
		return nil, err
	}
	return pricePerShare(pool), nil
}

// CapitalAccount returns the pool's current capital account.
func (e *Engine) CapitalAccount() (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	pool, err := e.loadPool()
	if err != nil {
		return nil, err
	}
	return capitalAccount(pool), nil
}

// PoolStatus assembles the reporting view: balances, price, queue length and
// per-invoice summaries, flagging invoices eligible for impairment.
func (e *Engine) PoolStatus() (*PoolStatus, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	pool, err := e.loadPool()
	if err != nil {
		return nil, err
	}
	queue, err := e.loadQueue()
	if err != nil {
		return nil, err
	}
	ids, err := e.state.ActiveInvoiceIDs()
	if err != nil {
		return nil, err
	}
	now := e.now()
	summaries := make([]InvoiceSummary, 0, len(ids))
	for _, id := range ids {
		inv, err := e.state.Invoice(id)
		if err != nil {
			return nil, err
		}
		if inv == nil {
			continue
		}
		summary := InvoiceSummary{
			ID:               inv.ID,
			Status:           inv.Status,
			OriginalCreditor: inv.OriginalCreditor,
			FaceValue:        cloneBig(inv.FaceValue),
			DueDate:          inv.DueDate,
		}
		if inv.Status == InvoiceFunded {
			summary.FundedAmountNet = cloneBig(inv.FundedAmountNet)
			summary.ImpairEligible = now > inv.GraceDeadline
		}
		summaries = append(summaries, summary)
	}
	return &PoolStatus{
		CapitalAccount:    capitalAccount(pool),
		PricePerShare:     pricePerShare(pool),
		FreeLiquidity:     cloneBig(pool.FreeLiquidity),
		DeployedPrincipal: cloneBig(pool.DeployedPrincipal),
		ImpairReserve:     cloneBig(pool.ImpairReserve),
		TotalShares:       cloneBig(pool.TotalShares),
		QueueLength:       queue.ActiveLen(),
		Invoices:          summaries,
	}, nil
}

// --- administrative surface ----------------------------------------------

func (e *Engine) requireOwner(caller types.Address) error {
	if caller != e.owner {
		return ErrCallerNotOwner
	}
	return nil
}

// SetUnderwriter assigns the address allowed to approve invoices.
func (e *Engine) SetUnderwriter(caller, underwriter types.Address) error {
	if err := e.requireOwner(caller); err != nil {
		return err
	}
	e.underwriter = underwriter
	return nil
}

// SetParams replaces the pool parameters after validation and resizes the
// queue bound.
func (e *Engine) SetParams(caller types.Address, params Params) error {
	if err := e.requireOwner(caller); err != nil {
		return err
	}
	if err := params.Validate(); err != nil {
		return err
	}
	e.params = params
	if e.state != nil {
		queue, err := e.loadQueue()
		if err != nil {
			return err
		}
		if err := e.state.PutQueue(queue); err != nil {
			return err
		}
	}
	e.emit(&ParamsUpdated{Params: params})
	return nil
}

// SetQueueMaxSize adjusts only the redemption queue bound. Entries already
// queued beyond a reduced bound remain; only new enqueues are refused.
func (e *Engine) SetQueueMaxSize(caller types.Address, max uint32) error {
	if err := e.requireOwner(caller); err != nil {
		return err
	}
	if max == 0 {
		return fmt.Errorf("factoring engine: max queue length must be positive")
	}
	e.params.MaxQueueLength = max
	queue, err := e.loadQueue()
	if err != nil {
		return err
	}
	return e.state.PutQueue(queue)
}

// FundImpairReserve pulls asset from the owner into the impair reserve.
func (e *Engine) FundImpairReserve(caller types.Address, amount *big.Int) error {
	if err := e.requireOwner(caller); err != nil {
		return err
	}
	if err := e.requireWiring(); err != nil {
		return err
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrAmountZero
	}
	if err := e.checkPullable(caller, amount); err != nil {
		return err
	}
	pool, err := e.loadPool()
	if err != nil {
		return err
	}
	pool.FreeLiquidity = new(big.Int).Add(pool.FreeLiquidity, amount)
	pool.ImpairReserve = new(big.Int).Add(pool.ImpairReserve, amount)
	if err := e.state.PutPoolState(pool); err != nil {
		return err
	}
	if err := e.token.TransferFrom(caller, e.poolAddress, amount); err != nil {
		return fmt.Errorf("factoring engine: pull reserve funding: %w", err)
	}
	return nil
}

// WithdrawAdminFees pays accumulated admin fees to the recipient.
func (e *Engine) WithdrawAdminFees(caller, recipient types.Address) (*big.Int, error) {
	if err := e.requireOwner(caller); err != nil {
		return nil, err
	}
	return e.withdrawEarmark(recipient, earmarkAdmin)
}

// WithdrawProtocolFees pays accumulated protocol fees to the treasury.
func (e *Engine) WithdrawProtocolFees(caller types.Address) (*big.Int, error) {
	if err := e.requireOwner(caller); err != nil {
		return nil, err
	}
	if e.protocolTreasury.IsZero() {
		return nil, fmt.Errorf("factoring engine: protocol treasury not configured")
	}
	return e.withdrawEarmark(e.protocolTreasury, earmarkProtocol)
}

// WithdrawSpreadGains pays the owner's accumulated spread yield.
func (e *Engine) WithdrawSpreadGains(caller, recipient types.Address) (*big.Int, error) {
	if err := e.requireOwner(caller); err != nil {
		return nil, err
	}
	return e.withdrawEarmark(recipient, earmarkSpread)
}

// WithdrawTax pays the accumulated tax balance to the recipient.
func (e *Engine) WithdrawTax(caller, recipient types.Address) (*big.Int, error) {
	if err := e.requireOwner(caller); err != nil {
		return nil, err
	}
	return e.withdrawEarmark(recipient, earmarkTax)
}

type earmark uint8

const (
	earmarkAdmin earmark = iota
	earmarkProtocol
	earmarkSpread
	earmarkTax
)

func (m earmark) String() string {
	switch m {
	case earmarkAdmin:
		return "admin"
	case earmarkProtocol:
		return "protocol"
	case earmarkSpread:
		return "spread"
	default:
		return "tax"
	}
}

// withdrawEarmark drains one earmarked balance in full. The earmarks are
// excluded from the capital account, so withdrawing them never moves price.
func (e *Engine) withdrawEarmark(recipient types.Address, mark earmark) (*big.Int, error) {
	if err := e.requireWiring(); err != nil {
		return nil, err
	}
	pool, err := e.loadPool()
	if err != nil {
		return nil, err
	}
	var balance **big.Int
	switch mark {
	case earmarkAdmin:
		balance = &pool.AdminFeeBalance
	case earmarkProtocol:
		balance = &pool.ProtocolFeeBalance
	case earmarkSpread:
		balance = &pool.SpreadGainBalance
	default:
		balance = &pool.TaxBalance
	}
	amount := cloneBig(*balance)
	if amount.Sign() == 0 {
		return big.NewInt(0), nil
	}
	if pool.FreeLiquidity.Cmp(amount) < 0 {
		return nil, &InsufficientLiquidityError{Required: amount, Available: cloneBig(pool.FreeLiquidity)}
	}
	*balance = big.NewInt(0)
	pool.FreeLiquidity = new(big.Int).Sub(pool.FreeLiquidity, amount)
	if err := e.state.PutPoolState(pool); err != nil {
		return nil, err
	}
	if err := e.token.Transfer(recipient, amount); err != nil {
		return nil, fmt.Errorf("factoring engine: fee withdrawal: %w", err)
	}
	e.emit(&FeesWithdrawn{Kind: mark.String(), Recipient: recipient, Amount: cloneBig(amount)})
	return amount, nil
}
