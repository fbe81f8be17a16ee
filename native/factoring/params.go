package factoring

import "fmt"

// Params groups the owner-controlled pool economics and operational knobs.
type Params struct {
	// AdminFeeBps is charged on invoice principal for the pool owner.
	AdminFeeBps uint64 `json:"adminFeeBps" toml:"AdminFeeBps"`
	// ProtocolFeeBps is charged on invoice principal for the protocol
	// treasury.
	ProtocolFeeBps uint64 `json:"protocolFeeBps" toml:"ProtocolFeeBps"`
	// TaxBps is applied to realized investor gains only and accrues to the
	// withdrawable tax balance.
	TaxBps uint64 `json:"taxBps" toml:"TaxBps"`
	// ReserveBps routes a slice of post-tax realized gains into the impair
	// reserve.
	ReserveBps uint64 `json:"reserveBps" toml:"ReserveBps"`
	// GracePeriodDays is how long past due date an invoice may remain unpaid
	// before it becomes eligible for impairment.
	GracePeriodDays uint64 `json:"gracePeriodDays" toml:"GracePeriodDays"`
	// ApprovalDurationSeconds time-boxes underwriter approvals.
	ApprovalDurationSeconds int64 `json:"approvalDurationSeconds" toml:"ApprovalDurationSeconds"`
	// MaxQueueLength bounds the redemption queue's active length.
	MaxQueueLength uint32 `json:"maxQueueLength" toml:"MaxQueueLength"`
	// QueueDrainLimit caps the entries examined per automatic drain pass.
	QueueDrainLimit uint32 `json:"queueDrainLimit" toml:"QueueDrainLimit"`
}

// DefaultParams mirrors the deployment defaults used by the daemon when no
// configuration file exists yet.
func DefaultParams() Params {
	return Params{
		AdminFeeBps:             50,
		ProtocolFeeBps:          25,
		TaxBps:                  0,
		ReserveBps:              0,
		GracePeriodDays:         60,
		ApprovalDurationSeconds: 3 * 24 * 60 * 60,
		MaxQueueLength:          64,
		QueueDrainLimit:         16,
	}
}

// Validate rejects out-of-range rates and degenerate operational settings.
func (p Params) Validate() error {
	for name, bps := range map[string]uint64{
		"AdminFeeBps":    p.AdminFeeBps,
		"ProtocolFeeBps": p.ProtocolFeeBps,
		"TaxBps":         p.TaxBps,
		"ReserveBps":     p.ReserveBps,
	} {
		if bps > maxBps {
			return fmt.Errorf("factoring params: %s %d exceeds %d: %w", name, bps, maxBps, ErrInvalidPercentage)
		}
	}
	if p.ApprovalDurationSeconds <= 0 {
		return fmt.Errorf("factoring params: approval duration must be positive")
	}
	if p.MaxQueueLength == 0 {
		return fmt.Errorf("factoring params: max queue length must be positive")
	}
	if p.QueueDrainLimit == 0 {
		return fmt.Errorf("factoring params: queue drain limit must be positive")
	}
	return nil
}
