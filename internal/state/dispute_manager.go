package state

import (
	"EscrowLedger/internal/event"
	"fmt"

	"github.com/google/uuid"
)

// DisputeManager tracks disputes and enforces one active dispute per order.
// Closed disputes stay in the map as history.
type DisputeManager struct {
	disputes      map[int64]*Dispute
	activeByOrder map[int64]int64 // order_id -> active dispute_id
	orderManager  *OrderManager
	nextDisputeID int64
}

func NewDisputeManager(om *OrderManager) *DisputeManager {
	return &DisputeManager{
		disputes:      make(map[int64]*Dispute),
		activeByOrder: make(map[int64]int64),
		orderManager:  om,
		nextDisputeID: 1,
	}
}

// GetDispute returns existing dispute or nil
func (dm *DisputeManager) GetDispute(disputeID int64) *Dispute {
	return dm.disputes[disputeID]
}

// GetActiveDispute returns the active dispute for an order, if any
func (dm *DisputeManager) GetActiveDispute(orderID int64) (*Dispute, bool) {
	disputeID, ok := dm.activeByOrder[orderID]
	if !ok {
		return nil, false
	}
	return dm.disputes[disputeID], true
}

// RaiseDispute creates a new dispute and freezes its order
func (dm *DisputeManager) RaiseDispute(
	orderID int64,
	disputer uuid.UUID,
	respondent uuid.UUID,
	reason string,
	evidenceHash string,
	feeHeld int64,
	sequence int64,
	timestamp int64,
) (*Dispute, error) {
	order := dm.orderManager.GetOrder(orderID)
	if order == nil {
		return nil, fmt.Errorf("unknown order_id: %d", orderID)
	}

	if _, active := dm.activeByOrder[orderID]; active {
		return nil, fmt.Errorf("order %d already has an active dispute", orderID)
	}

	if !order.Status.CanTransitionTo(OrderStatusDisputed) {
		return nil, fmt.Errorf("invalid status transition: %s -> Disputed", order.Status)
	}

	dispute := &Dispute{
		DisputeID:        dm.nextDisputeID,
		OrderID:          orderID,
		Disputer:         disputer,
		Respondent:       respondent,
		Reason:           reason,
		Status:           DisputeStatusOpen,
		FeeHeld:          feeHeld,
		PriorOrderStatus: order.Status,
		Winner:           event.WinnerNone,
		Evidence:         []Evidence{},
		RaisedSeq:        sequence,
	}

	// The raise's evidence hash becomes the first entry, annotated with
	// the dispute reason
	if evidenceHash != "" {
		dispute.Evidence = append(dispute.Evidence, Evidence{
			Submitter: disputer,
			Hash:      evidenceHash,
			Note:      reason,
			Sequence:  sequence,
			Timestamp: timestamp,
		})
	}

	dm.disputes[dispute.DisputeID] = dispute
	dm.activeByOrder[orderID] = dispute.DisputeID
	dm.nextDisputeID++

	// Freeze the order
	order.Status = OrderStatusDisputed
	order.DisputeID = &dispute.DisputeID
	order.UpdatedSeq = sequence
	order.Version++

	return dispute, nil
}

// AddEvidence appends an evidence entry to an active dispute
func (dm *DisputeManager) AddEvidence(disputeID int64, ev Evidence) error {
	dispute := dm.disputes[disputeID]
	if dispute == nil {
		return fmt.Errorf("unknown dispute_id: %d", disputeID)
	}

	if !dispute.Status.IsActive() {
		return fmt.Errorf("dispute %d is %s, evidence closed", disputeID, dispute.Status)
	}

	dispute.Evidence = append(dispute.Evidence, ev)
	dispute.Version++

	return nil
}

// MarkUnderReview transitions an open dispute to UnderReview
func (dm *DisputeManager) MarkUnderReview(disputeID int64) error {
	dispute := dm.disputes[disputeID]
	if dispute == nil {
		return fmt.Errorf("unknown dispute_id: %d", disputeID)
	}

	if !dispute.Status.CanTransitionTo(DisputeStatusUnderReview) {
		return fmt.Errorf("invalid status transition: %s -> UnderReview", dispute.Status)
	}

	dispute.Status = DisputeStatusUnderReview
	dispute.Version++

	return nil
}

// ResolveDispute closes the dispute with a winner and moves the order to Resolved
func (dm *DisputeManager) ResolveDispute(disputeID int64, winner event.Winner, resolution string, sequence int64) error {
	dispute := dm.disputes[disputeID]
	if dispute == nil {
		return fmt.Errorf("unknown dispute_id: %d", disputeID)
	}

	if !dispute.Status.CanTransitionTo(DisputeStatusResolved) {
		return fmt.Errorf("invalid status transition: %s -> Resolved", dispute.Status)
	}

	order := dm.orderManager.GetOrder(dispute.OrderID)
	if order == nil {
		return fmt.Errorf("order %d not found for dispute %d", dispute.OrderID, disputeID)
	}

	if !order.Status.CanTransitionTo(OrderStatusResolved) {
		return fmt.Errorf("invalid status transition: %s -> Resolved", order.Status)
	}

	dispute.Status = DisputeStatusResolved
	dispute.Winner = winner
	dispute.Resolution = resolution
	dispute.ClosedSeq = sequence
	dispute.Version++

	order.Status = OrderStatusResolved
	order.EscrowHeld = 0
	order.DisputeID = nil
	order.UpdatedSeq = sequence
	order.Version++

	delete(dm.activeByOrder, dispute.OrderID)

	return nil
}

// CancelDispute closes the dispute and restores the order's prior status
func (dm *DisputeManager) CancelDispute(disputeID int64, sequence int64) error {
	dispute := dm.disputes[disputeID]
	if dispute == nil {
		return fmt.Errorf("unknown dispute_id: %d", disputeID)
	}

	if !dispute.Status.CanTransitionTo(DisputeStatusCancelled) {
		return fmt.Errorf("invalid status transition: %s -> Cancelled", dispute.Status)
	}

	order := dm.orderManager.GetOrder(dispute.OrderID)
	if order == nil {
		return fmt.Errorf("order %d not found for dispute %d", dispute.OrderID, disputeID)
	}

	prior := dispute.PriorOrderStatus
	if !order.Status.CanTransitionTo(prior) {
		return fmt.Errorf("invalid status transition: %s -> %s", order.Status, prior)
	}

	dispute.Status = DisputeStatusCancelled
	dispute.ClosedSeq = sequence
	dispute.Version++

	// Custody reverts to what the prior status implies
	order.Status = prior
	switch prior {
	case OrderStatusFunded:
		order.EscrowHeld = 2 * order.Amount
	case OrderStatusConfirmed:
		order.EscrowHeld = 0
	}
	order.DisputeID = nil
	order.UpdatedSeq = sequence
	order.Version++

	delete(dm.activeByOrder, dispute.OrderID)

	return nil
}

// TotalFeeHeld sums dispute fees currently in custody
func (dm *DisputeManager) TotalFeeHeld() int64 {
	var total int64
	for _, dispute := range dm.disputes {
		if dispute.Status.IsActive() {
			total += dispute.FeeHeld
		}
	}
	return total
}

// ActiveCount returns the number of open or under-review disputes
func (dm *DisputeManager) ActiveCount() int64 {
	return int64(len(dm.activeByOrder))
}

// GetAllDisputes returns all disputes (for snapshot creation)
func (dm *DisputeManager) GetAllDisputes() []*Dispute {
	result := make([]*Dispute, 0, len(dm.disputes))
	for _, dispute := range dm.disputes {
		result = append(result, dispute)
	}
	return result
}

// SetDispute directly sets a dispute (used for snapshot restore)
func (dm *DisputeManager) SetDispute(dispute *Dispute) {
	dm.disputes[dispute.DisputeID] = dispute
	if dispute.Status.IsActive() {
		dm.activeByOrder[dispute.OrderID] = dispute.DisputeID
	}
}

// NextDisputeID returns the next id to be assigned (for snapshot creation)
func (dm *DisputeManager) NextDisputeID() int64 {
	return dm.nextDisputeID
}

// SetNextDisputeID initializes the id counter (used for snapshot restore)
func (dm *DisputeManager) SetNextDisputeID(next int64) {
	dm.nextDisputeID = next
}
