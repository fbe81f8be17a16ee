package storage

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"factorvault/core/types"
	"factorvault/native/factoring"
)

func testAddr(suffix byte) types.Address {
	var a types.Address
	a[types.AddressLength-1] = suffix
	return a
}

func testInvoiceID(suffix byte) factoring.InvoiceID {
	var id factoring.InvoiceID
	id[len(id)-1] = suffix
	return id
}

func TestVaultStorePoolRoundTrip(t *testing.T) {
	store := NewVaultStore(NewMemDB())

	pool, err := store.PoolState()
	require.NoError(t, err)
	require.Nil(t, pool, "fresh store should have no pool record")

	pool = factoring.NewPoolState()
	pool.FreeLiquidity = big.NewInt(123_456)
	pool.TotalShares = big.NewInt(1_000)
	require.NoError(t, store.PutPoolState(pool))

	loaded, err := store.PoolState()
	require.NoError(t, err)
	require.Equal(t, 0, loaded.FreeLiquidity.Cmp(big.NewInt(123_456)))
	require.Equal(t, 0, loaded.TotalShares.Cmp(big.NewInt(1_000)))
}

func TestVaultStoreInvoiceIndexTracksTerminalStates(t *testing.T) {
	store := NewVaultStore(NewMemDB())

	first := &factoring.Invoice{
		ID:        testInvoiceID(0x01),
		FaceValue: big.NewInt(1_000),
		Status:    factoring.InvoiceApproved,
	}
	second := &factoring.Invoice{
		ID:        testInvoiceID(0x02),
		FaceValue: big.NewInt(2_000),
		Status:    factoring.InvoiceFunded,
	}
	require.NoError(t, store.PutInvoice(first))
	require.NoError(t, store.PutInvoice(second))

	ids, err := store.ActiveInvoiceIDs()
	require.NoError(t, err)
	require.Equal(t, []factoring.InvoiceID{first.ID, second.ID}, ids, "registration order preserved")

	// Impaired is not terminal; the invoice stays in the sweep set.
	second.Status = factoring.InvoiceImpaired
	require.NoError(t, store.PutInvoice(second))
	ids, err = store.ActiveInvoiceIDs()
	require.NoError(t, err)
	require.Len(t, ids, 2)

	// Paid is terminal; the invoice leaves the index but stays readable.
	second.Status = factoring.InvoicePaid
	require.NoError(t, store.PutInvoice(second))
	ids, err = store.ActiveInvoiceIDs()
	require.NoError(t, err)
	require.Equal(t, []factoring.InvoiceID{first.ID}, ids)

	loaded, err := store.Invoice(second.ID)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	require.Equal(t, factoring.InvoicePaid, loaded.Status)

	missing, err := store.Invoice(testInvoiceID(0x77))
	require.NoError(t, err)
	require.Nil(t, missing)
}

func TestVaultStoreShareAccountRoundTrip(t *testing.T) {
	store := NewVaultStore(NewMemDB())
	owner := testAddr(0x0a)
	spender := testAddr(0x0b)

	acct, err := store.ShareAccount(owner)
	require.NoError(t, err)
	require.Nil(t, acct)

	acct = &factoring.ShareAccount{Address: owner, Shares: big.NewInt(500)}
	acct.SetAllowance(spender, big.NewInt(120))
	require.NoError(t, store.PutShareAccount(acct))

	loaded, err := store.ShareAccount(owner)
	require.NoError(t, err)
	require.Equal(t, 0, loaded.Shares.Cmp(big.NewInt(500)))
	require.Equal(t, 0, loaded.Allowance(spender).Cmp(big.NewInt(120)))
}

func TestVaultStoreQueueRoundTrip(t *testing.T) {
	store := NewVaultStore(NewMemDB())

	queue, err := store.Queue()
	require.NoError(t, err)
	require.Nil(t, queue)

	queue = factoring.NewRedemptionQueue(8)
	_, err = queue.Enqueue(&factoring.QueuedRedemption{
		Owner:       testAddr(0x0a),
		Receiver:    testAddr(0x0b),
		ShareAmount: big.NewInt(250),
	})
	require.NoError(t, err)
	require.NoError(t, store.PutQueue(queue))

	loaded, err := store.Queue()
	require.NoError(t, err)
	require.Equal(t, 1, loaded.ActiveLen())
	head := loaded.Head()
	require.Equal(t, uint64(1), head.ID)
	require.Equal(t, 0, head.ShareAmount.Cmp(big.NewInt(250)))
}

func TestTokenLedgerTransfers(t *testing.T) {
	ledger := NewTokenLedger(NewMemDB())
	pool := testAddr(0xf0)
	alice := testAddr(0x0a)
	bob := testAddr(0x0b)

	require.NoError(t, ledger.Mint(alice, big.NewInt(1_000)))
	require.ErrorIs(t, ledger.Transfer(alice, bob, big.NewInt(2_000)), ErrInsufficientBalance)
	require.NoError(t, ledger.Transfer(alice, bob, big.NewInt(400)))

	bal, err := ledger.BalanceOf(bob)
	require.NoError(t, err)
	require.Equal(t, 0, bal.Cmp(big.NewInt(400)))

	// Pulls against the pool require an explicit approval.
	bound := ledger.Bind(pool)
	require.ErrorIs(t, bound.TransferFrom(alice, pool, big.NewInt(100)), ErrInsufficientAllowance)
	require.NoError(t, ledger.Approve(alice, pool, big.NewInt(100)))
	require.NoError(t, bound.TransferFrom(alice, pool, big.NewInt(100)))

	remaining, err := ledger.Allowance(alice, pool)
	require.NoError(t, err)
	require.Equal(t, 0, remaining.Sign())

	poolBal, err := bound.BalanceOf(pool)
	require.NoError(t, err)
	require.Equal(t, 0, poolBal.Cmp(big.NewInt(100)))

	// Transfer from the bound holder pays out of the pool's balance.
	require.NoError(t, bound.Transfer(bob, big.NewInt(100)))
	poolBal, err = bound.BalanceOf(pool)
	require.NoError(t, err)
	require.Equal(t, 0, poolBal.Sign())
}

func TestLevelDBNotFoundMapsToSentinel(t *testing.T) {
	dir := t.TempDir()
	db, err := NewLevelDB(dir)
	require.NoError(t, err)
	defer db.Close()

	_, err = db.Get([]byte("missing"))
	require.ErrorIs(t, err, ErrKeyNotFound)

	require.NoError(t, db.Put([]byte("k"), []byte("v")))
	ok, err := db.Has([]byte("k"))
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, db.Delete([]byte("k")))
	ok, err = db.Has([]byte("k"))
	require.NoError(t, err)
	require.False(t, ok)
}
