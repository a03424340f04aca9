package ledger

import (
	"fmt"

	"github.com/google/uuid"
)

// BalanceTracker maintains in-memory account balances
type BalanceTracker struct {
	balances map[AccountKey]int64
}

func NewBalanceTracker() *BalanceTracker {
	return &BalanceTracker{
		balances: make(map[AccountKey]int64),
	}
}

// ApplyJournal applies a single journal entry to balances
func (bt *BalanceTracker) ApplyJournal(j Journal) {
	bt.balances[j.DebitAccount] += j.Amount
	bt.balances[j.CreditAccount] -= j.Amount
}

// ApplyBatch applies all journals in a batch
func (bt *BalanceTracker) ApplyBatch(batch *Batch) error {
	if err := batch.Validate(); err != nil {
		return fmt.Errorf("invalid batch: %w", err)
	}

	for _, j := range batch.Journals {
		bt.ApplyJournal(j)
	}

	return nil
}

// GetBalance returns the current balance for an account
func (bt *BalanceTracker) GetBalance(key AccountKey) int64 {
	return bt.balances[key]
}

// === Balance Queries ===

// GetAvailable returns a participant's withdrawable funds
func (bt *BalanceTracker) GetAvailable(participant uuid.UUID) int64 {
	return bt.GetBalance(NewParticipantAccountKey(participant))
}

// GetOrderEscrow returns the funds currently held in custody for an order
func (bt *BalanceTracker) GetOrderEscrow(orderID int64) int64 {
	return bt.GetBalance(NewOrderEscrowKey(orderID))
}

// GetDisputeFeeHold returns the fee currently held in custody for a dispute
func (bt *BalanceTracker) GetDisputeFeeHold(disputeID int64) int64 {
	return bt.GetBalance(NewDisputeFeeKey(disputeID))
}

// ComputeCustodyHeld sums all custody-scope accounts
func (bt *BalanceTracker) ComputeCustodyHeld() int64 {
	var total int64
	for key, balance := range bt.balances {
		if key.Scope == AccountScopeCustody {
			total += balance
		}
	}
	return total
}

// === Invariant Checks ===

// ValidateSufficientAvailable checks a participant can cover an outgoing amount
func (bt *BalanceTracker) ValidateSufficientAvailable(participant uuid.UUID, required int64) error {
	available := bt.GetAvailable(participant)
	if available < required {
		return fmt.Errorf("insufficient available balance: have=%d, need=%d", available, required)
	}
	return nil
}

// ValidateAvailableNonNegative checks participant available >= 0
func (bt *BalanceTracker) ValidateAvailableNonNegative(participant uuid.UUID) error {
	available := bt.GetAvailable(participant)
	if available < 0 {
		return fmt.Errorf("participant %s has negative available balance: %d",
			participant.String(), available)
	}
	return nil
}

// ValidateNonNegative checks that a specific account balance is >= 0
func (bt *BalanceTracker) ValidateNonNegative(key AccountKey) error {
	balance := bt.GetBalance(key)
	if balance < 0 {
		return fmt.Errorf("account %s has negative balance: %d", key.AccountPath(), balance)
	}
	return nil
}

// ComputeGlobalBalance sums all account balances (0 for a zero-sum ledger)
func (bt *BalanceTracker) ComputeGlobalBalance() int64 {
	var total int64
	for _, balance := range bt.balances {
		total += balance
	}
	return total
}

// Snapshot returns a copy of all balances (for state hashing and snapshots)
func (bt *BalanceTracker) Snapshot() map[AccountKey]int64 {
	snapshot := make(map[AccountKey]int64, len(bt.balances))
	for k, v := range bt.balances {
		snapshot[k] = v
	}
	return snapshot
}

// Restore replaces all balances (used for snapshot restore)
func (bt *BalanceTracker) Restore(balances map[AccountKey]int64) {
	bt.balances = make(map[AccountKey]int64, len(balances))
	for k, v := range balances {
		bt.balances[k] = v
	}
}
