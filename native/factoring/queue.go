package factoring

import "math/big"

// RedemptionQueue is the ordered set of pending redemptions. Entries are
// addressed exclusively by their stable, monotonically increasing ID; the
// logical head advances as entries settle, so positional addressing is never
// exposed. Entries holds only unresolved entries in FIFO order.
type RedemptionQueue struct {
	Entries []*QueuedRedemption `json:"entries"`
	NextID  uint64              `json:"nextId"`
	MaxSize uint32              `json:"maxSize"`
}

// NewRedemptionQueue returns an empty queue bounded at maxSize.
func NewRedemptionQueue(maxSize uint32) *RedemptionQueue {
	return &RedemptionQueue{NextID: 1, MaxSize: maxSize}
}

func normalizeQueue(q *RedemptionQueue, maxSize uint32) *RedemptionQueue {
	if q == nil {
		return NewRedemptionQueue(maxSize)
	}
	if q.NextID == 0 {
		q.NextID = 1
	}
	q.MaxSize = maxSize
	return q
}

// ActiveLen is the number of unresolved entries.
func (q *RedemptionQueue) ActiveLen() int { return len(q.Entries) }

// Enqueue appends a new entry and returns its stable identifier.
func (q *RedemptionQueue) Enqueue(entry *QueuedRedemption) (uint64, error) {
	if q.MaxSize > 0 && uint32(len(q.Entries)) >= q.MaxSize {
		return 0, &QueueCapacityError{Max: q.MaxSize}
	}
	entry.ID = q.NextID
	q.NextID++
	q.Entries = append(q.Entries, entry)
	return entry.ID, nil
}

// Head returns the logical head entry, or nil when the queue is empty.
func (q *RedemptionQueue) Head() *QueuedRedemption {
	if len(q.Entries) == 0 {
		return nil
	}
	return q.Entries[0]
}

// PopHead removes and returns the logical head entry.
func (q *RedemptionQueue) PopHead() *QueuedRedemption {
	if len(q.Entries) == 0 {
		return nil
	}
	head := q.Entries[0]
	q.Entries = append([]*QueuedRedemption(nil), q.Entries[1:]...)
	return head
}

// Get returns the entry with the given identifier.
func (q *RedemptionQueue) Get(id uint64) (*QueuedRedemption, bool) {
	for _, entry := range q.Entries {
		if entry != nil && entry.ID == id {
			return entry, true
		}
	}
	return nil, false
}

// Remove deletes the entry with the given identifier without settling it.
// The scan is bounded by the configured maximum queue length.
func (q *RedemptionQueue) Remove(id uint64) (*QueuedRedemption, bool) {
	for i, entry := range q.Entries {
		if entry == nil || entry.ID != id {
			continue
		}
		q.Entries = append(q.Entries[:i:i], q.Entries[i+1:]...)
		return entry, true
	}
	return nil, false
}

// Clear drops every pending entry.
func (q *RedemptionQueue) Clear() {
	q.Entries = nil
}

// requestedShares resolves the entry to a share amount at the current pool
// state: share-based entries request their share amount directly, asset-based
// entries convert at the redemption price, rounding the charge up.
func (entry *QueuedRedemption) requestedShares(p *PoolState) *big.Int {
	if entry.ShareAmount != nil && entry.ShareAmount.Sign() > 0 {
		return new(big.Int).Set(entry.ShareAmount)
	}
	if entry.AssetAmount != nil && entry.AssetAmount.Sign() > 0 {
		return sharesForAssets(p, entry.AssetAmount)
	}
	return big.NewInt(0)
}
