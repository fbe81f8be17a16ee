package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"factorvault/core/types"
	"factorvault/native/factoring"
)

// Key layout. Invoice records are keyed individually; a separate index keeps
// the deterministic registration order the reconciliation sweep iterates in.
const (
	keyPool         = "vault/pool"
	keyQueue        = "vault/queue"
	keyInvoiceIndex = "vault/invoice-index"
	prefixInvoice   = "vault/invoice/"
	prefixShare     = "vault/share/"
)

// VaultStore persists the pool ledger, invoice registry, share accounts and
// redemption queue as JSON records in a key-value Database. It backs the
// engine's state interface; all writes are single-key and the engine's
// checks-effects-interactions ordering makes each one safe to apply as it
// happens.
type VaultStore struct {
	db Database
}

// NewVaultStore wraps a Database.
func NewVaultStore(db Database) *VaultStore {
	return &VaultStore{db: db}
}

func (s *VaultStore) get(key string, out interface{}) (bool, error) {
	raw, err := s.db.Get([]byte(key))
	if errors.Is(err, ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("vault store: get %s: %w", key, err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return false, fmt.Errorf("vault store: decode %s: %w", key, err)
	}
	return true, nil
}

func (s *VaultStore) put(key string, v interface{}) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("vault store: encode %s: %w", key, err)
	}
	if err := s.db.Put([]byte(key), raw); err != nil {
		return fmt.Errorf("vault store: put %s: %w", key, err)
	}
	return nil
}

// PoolState loads the capital ledger aggregate, or nil when the store is
// fresh; the engine normalizes nil to a zeroed pool.
func (s *VaultStore) PoolState() (*factoring.PoolState, error) {
	pool := new(factoring.PoolState)
	ok, err := s.get(keyPool, pool)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return pool, nil
}

// PutPoolState persists the capital ledger aggregate.
func (s *VaultStore) PutPoolState(pool *factoring.PoolState) error {
	if pool == nil {
		return fmt.Errorf("vault store: nil pool state")
	}
	return s.put(keyPool, pool)
}

func invoiceKey(id factoring.InvoiceID) string {
	return prefixInvoice + strings.TrimPrefix(id.Hex(), "0x")
}

// Invoice loads one invoice record, or nil when unknown.
func (s *VaultStore) Invoice(id factoring.InvoiceID) (*factoring.Invoice, error) {
	inv := new(factoring.Invoice)
	ok, err := s.get(invoiceKey(id), inv)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return inv, nil
}

// PutInvoice persists an invoice and maintains the registration-order index:
// new invoices are appended, terminal ones removed so sweeps skip them.
func (s *VaultStore) PutInvoice(inv *factoring.Invoice) error {
	if inv == nil {
		return fmt.Errorf("vault store: nil invoice")
	}
	if err := s.put(invoiceKey(inv.ID), inv); err != nil {
		return err
	}
	index, err := s.invoiceIndex()
	if err != nil {
		return err
	}
	pos := -1
	for i, id := range index {
		if id == inv.ID {
			pos = i
			break
		}
	}
	switch {
	case inv.Status.Terminal() && pos >= 0:
		index = append(index[:pos], index[pos+1:]...)
	case !inv.Status.Terminal() && pos < 0:
		index = append(index, inv.ID)
	default:
		return nil
	}
	return s.put(keyInvoiceIndex, index)
}

func (s *VaultStore) invoiceIndex() ([]factoring.InvoiceID, error) {
	var index []factoring.InvoiceID
	if _, err := s.get(keyInvoiceIndex, &index); err != nil {
		return nil, err
	}
	return index, nil
}

// ActiveInvoiceIDs lists non-terminal invoices in registration order.
func (s *VaultStore) ActiveInvoiceIDs() ([]factoring.InvoiceID, error) {
	return s.invoiceIndex()
}

func shareKey(addr types.Address) string {
	return prefixShare + strings.TrimPrefix(addr.Hex(), "0x")
}

// ShareAccount loads one holder's account, or nil when unknown.
func (s *VaultStore) ShareAccount(addr types.Address) (*factoring.ShareAccount, error) {
	acct := new(factoring.ShareAccount)
	ok, err := s.get(shareKey(addr), acct)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return acct, nil
}

// PutShareAccount persists one holder's account.
func (s *VaultStore) PutShareAccount(acct *factoring.ShareAccount) error {
	if acct == nil {
		return fmt.Errorf("vault store: nil share account")
	}
	return s.put(shareKey(acct.Address), acct)
}

// Queue loads the redemption queue, or nil when the store is fresh.
func (s *VaultStore) Queue() (*factoring.RedemptionQueue, error) {
	queue := new(factoring.RedemptionQueue)
	ok, err := s.get(keyQueue, queue)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return queue, nil
}

// PutQueue persists the redemption queue.
func (s *VaultStore) PutQueue(queue *factoring.RedemptionQueue) error {
	if queue == nil {
		return fmt.Errorf("vault store: nil queue")
	}
	return s.put(keyQueue, queue)
}
