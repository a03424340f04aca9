package ledger

import (
	"fmt"

	"github.com/google/uuid"
)

// InvariantValidator checks ledger invariants
type InvariantValidator struct {
	tracker *BalanceTracker
}

func NewInvariantValidator(tracker *BalanceTracker) *InvariantValidator {
	return &InvariantValidator{
		tracker: tracker,
	}
}

// ValidateBatchBalance verifies the batch is well-formed
func (v *InvariantValidator) ValidateBatchBalance(batch *Batch) error {
	return batch.Validate()
}

// ValidateOrderEscrow verifies the custody account for an order holds exactly
// what its lifecycle status says it should
func (v *InvariantValidator) ValidateOrderEscrow(orderID int64, expected int64) error {
	held := v.tracker.GetOrderEscrow(orderID)
	if held != expected {
		return fmt.Errorf("order %d escrow holds %d, lifecycle expects %d", orderID, held, expected)
	}
	return nil
}

// ValidateDisputeFeeHold verifies the custody account for a dispute fee
func (v *InvariantValidator) ValidateDisputeFeeHold(disputeID int64, expected int64) error {
	held := v.tracker.GetDisputeFeeHold(disputeID)
	if held != expected {
		return fmt.Errorf("dispute %d fee hold is %d, expected %d", disputeID, held, expected)
	}
	return nil
}

// ValidateCustodyConservation verifies total custody equals the sum implied by
// entity state: held(order) over all orders plus held fees over active disputes
func (v *InvariantValidator) ValidateCustodyConservation(expectedHeld int64) error {
	held := v.tracker.ComputeCustodyHeld()
	if held != expectedHeld {
		return fmt.Errorf("custody holds %d, entity state implies %d", held, expectedHeld)
	}
	return nil
}

// ValidateParticipantNonNegative checks participant available >= 0
func (v *InvariantValidator) ValidateParticipantNonNegative(participant uuid.UUID) error {
	return v.tracker.ValidateAvailableNonNegative(participant)
}

// ValidateGlobalBalance verifies the system is zero-sum
func (v *InvariantValidator) ValidateGlobalBalance() error {
	total := v.tracker.ComputeGlobalBalance()
	if total != 0 {
		return fmt.Errorf("global balance is non-zero: %d", total)
	}
	return nil
}
