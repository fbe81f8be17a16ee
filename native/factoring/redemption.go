package factoring

import (
	"fmt"
	"math/big"

	"factorvault/core/types"
	nativecommon "factorvault/native/common"
)

// redemption.go holds the queue-backed redemption surface. The immediate
// paths live in engine.go; these variants fall back to the FIFO queue when
// free liquidity cannot cover the request, and the drain loop settles queued
// entries as liquidity returns. Entries that turned unsatisfiable while
// waiting are skipped silently so one stale entry never blocks the queue.

const (
	skipReasonDust               = "rounds to zero"
	skipReasonInsufficientShares = "owner shares insufficient"
)

// RedeemAndOrQueue redeems shares immediately when free liquidity covers the
// payout; otherwise the whole request is queued. It returns the assets paid
// out now (zero when queued) and the queue identifier (zero when settled
// immediately). The allowance of a third-party caller is consumed in full up
// front, on enqueue as much as on settlement.
func (e *Engine) RedeemAndOrQueue(caller, owner, receiver types.Address, shares *big.Int) (*big.Int, uint64, error) {
	if err := e.beginRedemption(caller, owner, shares); err != nil {
		return nil, 0, err
	}
	pool, err := e.loadPool()
	if err != nil {
		return nil, 0, err
	}
	assets := assetsForShares(pool, shares)
	if assets.Sign() == 0 {
		return nil, 0, ErrSharesRoundToZero
	}
	acct, err := e.loadShareAccount(owner)
	if err != nil {
		return nil, 0, err
	}
	if acct.Shares.Cmp(shares) < 0 {
		return nil, 0, ErrInsufficientShares
	}

	if pool.FreeLiquidity.Cmp(assets) >= 0 {
		if err := e.consumeShareAllowance(caller, owner, shares); err != nil {
			return nil, 0, err
		}
		if err := e.settleShares(pool, owner, receiver, shares, assets); err != nil {
			return nil, 0, err
		}
		if _, err := e.drainQueue(int(e.params.QueueDrainLimit)); err != nil {
			return nil, 0, err
		}
		return assets, 0, nil
	}

	id, err := e.enqueueRedemption(caller, owner, receiver, &QueuedRedemption{
		Owner:       owner,
		Receiver:    receiver,
		ShareAmount: cloneBig(shares),
	}, shares)
	if err != nil {
		return nil, 0, err
	}
	// Residual liquidity may still partially settle the head (possibly the
	// entry just queued).
	if _, err := e.drainQueue(int(e.params.QueueDrainLimit)); err != nil {
		return nil, 0, err
	}
	return big.NewInt(0), id, nil
}

// WithdrawAndOrQueue is the exact-asset counterpart of RedeemAndOrQueue. A
// queued asset request is re-priced at processing time; the share allowance
// consumed on enqueue is the charge at today's price.
func (e *Engine) WithdrawAndOrQueue(caller, owner, receiver types.Address, assets *big.Int) (*big.Int, uint64, error) {
	if err := e.beginRedemption(caller, owner, assets); err != nil {
		return nil, 0, err
	}
	pool, err := e.loadPool()
	if err != nil {
		return nil, 0, err
	}
	shares := sharesForAssets(pool, assets)
	if shares.Sign() == 0 {
		return nil, 0, ErrSharesRoundToZero
	}
	acct, err := e.loadShareAccount(owner)
	if err != nil {
		return nil, 0, err
	}
	if acct.Shares.Cmp(shares) < 0 {
		return nil, 0, ErrInsufficientShares
	}

	if pool.FreeLiquidity.Cmp(assets) >= 0 {
		if err := e.consumeShareAllowance(caller, owner, shares); err != nil {
			return nil, 0, err
		}
		if err := e.settleShares(pool, owner, receiver, shares, assets); err != nil {
			return nil, 0, err
		}
		if _, err := e.drainQueue(int(e.params.QueueDrainLimit)); err != nil {
			return nil, 0, err
		}
		return cloneBig(shares), 0, nil
	}

	id, err := e.enqueueRedemption(caller, owner, receiver, &QueuedRedemption{
		Owner:       owner,
		Receiver:    receiver,
		AssetAmount: cloneBig(assets),
	}, shares)
	if err != nil {
		return nil, 0, err
	}
	if _, err := e.drainQueue(int(e.params.QueueDrainLimit)); err != nil {
		return nil, 0, err
	}
	return big.NewInt(0), id, nil
}

// enqueueRedemption appends the entry after charging a third-party caller's
// allowance. Capacity is checked before any effect so a full queue aborts the
// operation cleanly.
func (e *Engine) enqueueRedemption(caller, owner, receiver types.Address, entry *QueuedRedemption, allowanceCharge *big.Int) (uint64, error) {
	queue, err := e.loadQueue()
	if err != nil {
		return 0, err
	}
	if queue.MaxSize > 0 && uint32(queue.ActiveLen()) >= queue.MaxSize {
		return 0, &QueueCapacityError{Max: queue.MaxSize}
	}
	if err := e.consumeShareAllowance(caller, owner, allowanceCharge); err != nil {
		return 0, err
	}
	entry.EnqueuedAt = e.now()
	id, err := queue.Enqueue(entry)
	if err != nil {
		return 0, err
	}
	if err := e.state.PutQueue(queue); err != nil {
		return 0, err
	}
	e.emit(&RedemptionQueued{
		QueueID:  id,
		Owner:    owner,
		Receiver: receiver,
		Shares:   cloneBigOrNil(entry.ShareAmount),
		Assets:   cloneBigOrNil(entry.AssetAmount),
	})
	return id, nil
}

// CancelQueuedRedemption removes a pending entry without settling it. Only
// the entry's owner or receiver may cancel. Share allowance consumed on
// enqueue is not refunded.
func (e *Engine) CancelQueuedRedemption(caller types.Address, id uint64) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	queue, err := e.loadQueue()
	if err != nil {
		return err
	}
	entry, ok := queue.Get(id)
	if !ok {
		return ErrQueueEntryNotFound
	}
	if caller != entry.Owner && caller != entry.Receiver {
		return ErrCallerNotAuthor
	}
	queue.Remove(id)
	if err := e.state.PutQueue(queue); err != nil {
		return err
	}
	e.emit(&RedemptionCancelled{QueueID: id, Owner: entry.Owner})
	return nil
}

// ClearRedemptionQueue drops every pending entry. Owner-gated; intended for
// incident response, since dropped entries are simply never settled.
func (e *Engine) ClearRedemptionQueue(caller types.Address) error {
	if err := e.requireOwner(caller); err != nil {
		return err
	}
	if e.state == nil {
		return errNilState
	}
	queue, err := e.loadQueue()
	if err != nil {
		return err
	}
	queue.Clear()
	return e.state.PutQueue(queue)
}

// ProcessRedemptionQueue reconciles the registry and drains up to maxItems
// queued redemptions. Anyone may call it; it only ever settles entries the
// queue already owes. A non-positive maxItems uses the configured drain
// limit. Returns the number of entries examined (settled or skipped).
func (e *Engine) ProcessRedemptionQueue(maxItems int) (int, error) {
	if err := e.requireWiring(); err != nil {
		return 0, err
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return 0, err
	}
	if err := e.reconcileSweep(); err != nil {
		return 0, err
	}
	if maxItems <= 0 {
		maxItems = int(e.params.QueueDrainLimit)
	}
	return e.drainQueue(maxItems)
}

// drainQueue settles queued redemptions head-first until liquidity runs out,
// the queue empties, or the item cap is hit. Unsatisfiable entries are
// dropped and announced via a skip event, never returned as errors: the
// caller whose operation triggered the drain is not at fault for them. When
// liquidity covers only part of the head request, the head is settled
// partially and remains at the front with the remainder.
func (e *Engine) drainQueue(limit int) (int, error) {
	if limit <= 0 {
		return 0, nil
	}
	pool, err := e.loadPool()
	if err != nil {
		return 0, err
	}
	queue, err := e.loadQueue()
	if err != nil {
		return 0, err
	}

	processed := 0
	dirty := false
	for processed < limit {
		head := queue.Head()
		if head == nil {
			break
		}
		shares := head.requestedShares(pool)
		if shares.Sign() == 0 {
			queue.PopHead()
			dirty = true
			processed++
			e.emit(&RedemptionSkipped{QueueID: head.ID, Owner: head.Owner, Reason: skipReasonDust})
			continue
		}
		acct, err := e.loadShareAccount(head.Owner)
		if err != nil {
			return processed, err
		}
		if acct.Shares.Cmp(shares) < 0 {
			queue.PopHead()
			dirty = true
			processed++
			e.emit(&RedemptionSkipped{QueueID: head.ID, Owner: head.Owner, Reason: skipReasonInsufficientShares})
			continue
		}

		assetBased := head.AssetAmount != nil && head.AssetAmount.Sign() > 0
		var assets *big.Int
		if assetBased {
			assets = cloneBig(head.AssetAmount)
		} else {
			assets = assetsForShares(pool, shares)
		}
		if assets.Sign() == 0 {
			queue.PopHead()
			dirty = true
			processed++
			e.emit(&RedemptionSkipped{QueueID: head.ID, Owner: head.Owner, Reason: skipReasonDust})
			continue
		}

		if pool.FreeLiquidity.Sign() == 0 {
			break
		}
		if pool.FreeLiquidity.Cmp(assets) < 0 {
			// Partial settlement: spend all remaining liquidity on the head,
			// leave the remainder queued at the front.
			portionAssets := cloneBig(pool.FreeLiquidity)
			portionShares := sharesForAssets(pool, portionAssets)
			if portionShares.Sign() == 0 || portionShares.Cmp(shares) >= 0 {
				break
			}
			if assetBased {
				head.AssetAmount = new(big.Int).Sub(head.AssetAmount, portionAssets)
			} else {
				head.ShareAmount = new(big.Int).Sub(head.ShareAmount, portionShares)
			}
			if err := e.settleQueued(pool, queue, head, portionShares, portionAssets); err != nil {
				return processed, err
			}
			processed++
			break
		}

		queue.PopHead()
		if err := e.settleQueued(pool, queue, head, shares, assets); err != nil {
			return processed, err
		}
		dirty = false
		processed++
	}
	if dirty {
		if err := e.state.PutQueue(queue); err != nil {
			return processed, err
		}
	}
	return processed, nil
}

// settleQueued applies one queued settlement: burn, debit, persist queue and
// ledger, then pay out. The queue is persisted before the transfer so a
// reentrant call never sees the entry as still owed.
func (e *Engine) settleQueued(pool *PoolState, queue *RedemptionQueue, entry *QueuedRedemption, shares, assets *big.Int) error {
	acct, err := e.loadShareAccount(entry.Owner)
	if err != nil {
		return err
	}
	if acct.Shares.Cmp(shares) < 0 {
		return errValueConjured
	}
	acct.Shares = new(big.Int).Sub(acct.Shares, shares)
	pool.TotalShares = new(big.Int).Sub(pool.TotalShares, shares)
	pool.FreeLiquidity = new(big.Int).Sub(pool.FreeLiquidity, assets)
	if pool.TotalShares.Sign() < 0 || pool.FreeLiquidity.Sign() < 0 {
		return errValueConjured
	}
	if err := e.state.PutQueue(queue); err != nil {
		return err
	}
	if err := e.state.PutShareAccount(acct); err != nil {
		return err
	}
	if err := e.state.PutPoolState(pool); err != nil {
		return err
	}
	if err := e.token.Transfer(entry.Receiver, assets); err != nil {
		return fmt.Errorf("factoring engine: queued redemption payout: %w", err)
	}
	e.emit(&RedemptionSettled{
		Owner:    entry.Owner,
		Receiver: entry.Receiver,
		Shares:   cloneBig(shares),
		Assets:   cloneBig(assets),
		QueueID:  entry.ID,
	})
	return nil
}
