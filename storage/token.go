package storage

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"factorvault/core/types"
)

var (
	// ErrInsufficientBalance is returned when a transfer exceeds the payer's
	// balance.
	ErrInsufficientBalance = errors.New("token ledger: insufficient balance")
	// ErrInsufficientAllowance is returned when a pull exceeds the approved
	// amount.
	ErrInsufficientAllowance = errors.New("token ledger: insufficient allowance")
)

const (
	prefixTokenBalance   = "token/balance/"
	prefixTokenAllowance = "token/allowance/"
)

// TokenLedger is a database-backed stable-asset ledger with ERC-20 shaped
// semantics: balances, owner-to-spender allowances, and exact-amount
// transfers. Deployments that settle against an external chain replace it
// with an RPC-backed implementation; the interface the engine consumes is the
// same either way.
type TokenLedger struct {
	mu sync.Mutex
	db Database
}

// NewTokenLedger wraps a Database.
func NewTokenLedger(db Database) *TokenLedger {
	return &TokenLedger{db: db}
}

func balanceKey(addr types.Address) string {
	return prefixTokenBalance + strings.TrimPrefix(addr.Hex(), "0x")
}

func allowanceKey(owner, spender types.Address) string {
	return prefixTokenAllowance +
		strings.TrimPrefix(owner.Hex(), "0x") + "/" +
		strings.TrimPrefix(spender.Hex(), "0x")
}

func (l *TokenLedger) read(key string) (*big.Int, error) {
	raw, err := l.db.Get([]byte(key))
	if errors.Is(err, ErrKeyNotFound) {
		return big.NewInt(0), nil
	}
	if err != nil {
		return nil, fmt.Errorf("token ledger: get %s: %w", key, err)
	}
	out, ok := new(big.Int).SetString(string(raw), 10)
	if !ok {
		return nil, fmt.Errorf("token ledger: corrupt value at %s", key)
	}
	return out, nil
}

func (l *TokenLedger) write(key string, v *big.Int) error {
	if err := l.db.Put([]byte(key), []byte(v.String())); err != nil {
		return fmt.Errorf("token ledger: put %s: %w", key, err)
	}
	return nil
}

// BalanceOf returns the holder's balance.
func (l *TokenLedger) BalanceOf(addr types.Address) (*big.Int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.read(balanceKey(addr))
}

// Allowance returns the remaining amount spender may pull from owner.
func (l *TokenLedger) Allowance(owner, spender types.Address) (*big.Int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.read(allowanceKey(owner, spender))
}

// Mint credits freshly issued tokens to the holder.
func (l *TokenLedger) Mint(addr types.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("token ledger: mint amount must be positive")
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	balance, err := l.read(balanceKey(addr))
	if err != nil {
		return err
	}
	return l.write(balanceKey(addr), new(big.Int).Add(balance, amount))
}

// Approve sets (not increments) the spender's allowance on owner.
func (l *TokenLedger) Approve(owner, spender types.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("token ledger: approve amount must not be negative")
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.write(allowanceKey(owner, spender), amount)
}

// Transfer moves amount between holders.
func (l *TokenLedger) Transfer(from, to types.Address, amount *big.Int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.move(from, to, amount)
}

func (l *TokenLedger) move(from, to types.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("token ledger: transfer amount must not be negative")
	}
	if amount.Sign() == 0 {
		return nil
	}
	fromBal, err := l.read(balanceKey(from))
	if err != nil {
		return err
	}
	if fromBal.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	toBal, err := l.read(balanceKey(to))
	if err != nil {
		return err
	}
	if err := l.write(balanceKey(from), new(big.Int).Sub(fromBal, amount)); err != nil {
		return err
	}
	return l.write(balanceKey(to), new(big.Int).Add(toBal, amount))
}

// transferFrom consumes the spender's allowance, then moves the amount.
func (l *TokenLedger) transferFrom(spender, from, to types.Address, amount *big.Int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("token ledger: transfer amount must not be negative")
	}
	allowance, err := l.read(allowanceKey(from, spender))
	if err != nil {
		return err
	}
	if allowance.Cmp(amount) < 0 {
		return ErrInsufficientAllowance
	}
	if err := l.write(allowanceKey(from, spender), new(big.Int).Sub(allowance, amount)); err != nil {
		return err
	}
	return l.move(from, to, amount)
}

// Bind returns the ledger viewed from one holder: Transfer pays out of the
// holder's balance and TransferFrom pulls against allowances granted to it.
// The bound view is what the pool engine consumes as its asset token.
func (l *TokenLedger) Bind(holder types.Address) *BoundToken {
	return &BoundToken{ledger: l, holder: holder}
}

// BoundToken adapts TokenLedger to the engine's single-party token interface.
type BoundToken struct {
	ledger *TokenLedger
	holder types.Address
}

// BalanceOf returns any holder's balance.
func (b *BoundToken) BalanceOf(addr types.Address) (*big.Int, error) {
	return b.ledger.BalanceOf(addr)
}

// Allowance returns the remaining amount spender may pull from owner.
func (b *BoundToken) Allowance(owner, spender types.Address) (*big.Int, error) {
	return b.ledger.Allowance(owner, spender)
}

// Transfer pays out of the bound holder's balance.
func (b *BoundToken) Transfer(to types.Address, amount *big.Int) error {
	return b.ledger.Transfer(b.holder, to, amount)
}

// TransferFrom pulls from a granter into to, consuming the allowance the
// granter holds for the bound holder.
func (b *BoundToken) TransferFrom(from, to types.Address, amount *big.Int) error {
	return b.ledger.transferFrom(b.holder, from, to, amount)
}
