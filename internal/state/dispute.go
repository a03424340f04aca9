package state

import (
	"EscrowLedger/internal/event"

	"github.com/google/uuid"
)

// DisputeStatus tracks dispute lifecycle progress
type DisputeStatus int32

const (
	DisputeStatusOpen DisputeStatus = iota
	DisputeStatusUnderReview
	DisputeStatusResolved
	DisputeStatusCancelled
)

// Evidence is one immutable entry in a dispute's evidence trail
type Evidence struct {
	Submitter uuid.UUID
	Hash      string // Content digest or URI of the evidence blob
	Note      string
	Sequence  int64
	Timestamp int64
}

// Dispute represents an adjudication over a disputed order
type Dispute struct {
	DisputeID        int64
	OrderID          int64
	Disputer         uuid.UUID
	Respondent       uuid.UUID
	Reason           string
	Status           DisputeStatus
	FeeHeld          int64        // Dispute fee held while active
	PriorOrderStatus OrderStatus  // Order status to restore on cancellation
	Winner           event.Winner // Set at resolution
	Resolution       string       // Arbitrator's resolution note
	Evidence         []Evidence
	RaisedSeq        int64
	ClosedSeq        int64
	Version          int64
}

func (ds DisputeStatus) String() string {
	switch ds {
	case DisputeStatusOpen:
		return "Open"
	case DisputeStatusUnderReview:
		return "UnderReview"
	case DisputeStatusResolved:
		return "Resolved"
	case DisputeStatusCancelled:
		return "Cancelled"
	default:
		return "Unknown"
	}
}

// CanTransitionTo validates status transitions
func (ds DisputeStatus) CanTransitionTo(next DisputeStatus) bool {
	validTransitions := map[DisputeStatus][]DisputeStatus{
		DisputeStatusOpen: {
			DisputeStatusUnderReview,
			DisputeStatusResolved,
			DisputeStatusCancelled,
		},
		DisputeStatusUnderReview: {
			DisputeStatusResolved,
			DisputeStatusCancelled,
		},
		// Resolved and Cancelled are terminal
	}

	allowed, ok := validTransitions[ds]
	if !ok {
		return false
	}

	for _, allowedStatus := range allowed {
		if next == allowedStatus {
			return true
		}
	}

	return false
}

// IsActive returns true while the dispute still holds its order
func (ds DisputeStatus) IsActive() bool {
	return ds == DisputeStatusOpen || ds == DisputeStatusUnderReview
}

// CanonicalBytes returns deterministic serialization for hashing.
// Evidence entries are included in submission order.
func (d *Dispute) CanonicalBytes() []byte {
	buf := make([]byte, 0, 256)

	// dispute_id (8 bytes LE)
	buf = appendInt64LE(buf, d.DisputeID)

	// order_id (8 bytes LE)
	buf = appendInt64LE(buf, d.OrderID)

	// disputer (16 bytes UUID binary)
	buf = append(buf, d.Disputer[:]...)

	// respondent (16 bytes UUID binary)
	buf = append(buf, d.Respondent[:]...)

	// reason (length-prefixed)
	buf = appendString(buf, d.Reason)

	// status (1 byte)
	buf = append(buf, byte(d.Status))

	// fee_held (8 bytes LE)
	buf = appendInt64LE(buf, d.FeeHeld)

	// prior_order_status (1 byte)
	buf = append(buf, byte(d.PriorOrderStatus))

	// winner (1 byte)
	buf = append(buf, byte(d.Winner))

	// resolution (length-prefixed)
	buf = appendString(buf, d.Resolution)

	// evidence count (8 bytes LE) then entries
	buf = appendInt64LE(buf, int64(len(d.Evidence)))
	for _, ev := range d.Evidence {
		buf = append(buf, ev.Submitter[:]...)
		buf = appendString(buf, ev.Hash)
		buf = appendString(buf, ev.Note)
		buf = appendInt64LE(buf, ev.Sequence)
	}

	return buf
}
