package state

import (
	"github.com/google/uuid"
)

// OrderStatus tracks order lifecycle progress
type OrderStatus int32

const (
	OrderStatusCreated OrderStatus = iota
	OrderStatusFunded
	OrderStatusConfirmed
	OrderStatusDisputed
	OrderStatusResolved
	OrderStatusCancelled
)

// Order represents an escrow-backed order between a seller and a buyer
type Order struct {
	OrderID     int64
	Seller      uuid.UUID
	Buyer       *uuid.UUID // Nullable until funded
	Amount      int64
	FeeBps      int64 // Captured from policy at creation
	Description string
	Status      OrderStatus
	EscrowHeld  int64  // Custody currently attributable to this order
	DisputeID   *int64 // Nullable - active dispute reference
	CreatedSeq  int64
	UpdatedSeq  int64
	Version     int64 // Optimistic concurrency control
}

func (os OrderStatus) String() string {
	switch os {
	case OrderStatusCreated:
		return "Created"
	case OrderStatusFunded:
		return "Funded"
	case OrderStatusConfirmed:
		return "Confirmed"
	case OrderStatusDisputed:
		return "Disputed"
	case OrderStatusResolved:
		return "Resolved"
	case OrderStatusCancelled:
		return "Cancelled"
	default:
		return "Unknown"
	}
}

// CanTransitionTo validates status transitions
func (os OrderStatus) CanTransitionTo(next OrderStatus) bool {
	validTransitions := map[OrderStatus][]OrderStatus{
		OrderStatusCreated: {
			OrderStatusFunded,
			OrderStatusCancelled,
		},
		OrderStatusFunded: {
			OrderStatusConfirmed,
			OrderStatusDisputed,
		},
		OrderStatusConfirmed: {
			OrderStatusDisputed, // Post-completion dispute window
		},
		OrderStatusDisputed: {
			OrderStatusResolved,
			OrderStatusFunded,    // Dispute cancelled, prior status restored
			OrderStatusConfirmed, // Dispute cancelled, prior status restored
		},
		// Resolved and Cancelled are terminal
	}

	allowed, ok := validTransitions[os]
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

// IsTerminal returns true if no further transitions are possible
func (os OrderStatus) IsTerminal() bool {
	return os == OrderStatusResolved || os == OrderStatusCancelled
}

// HasActiveDispute returns true if a dispute currently holds the order
func (o *Order) HasActiveDispute() bool {
	return o.DisputeID != nil
}

// IsParticipant returns true if the given party is the seller or the buyer
func (o *Order) IsParticipant(party uuid.UUID) bool {
	if party == o.Seller {
		return true
	}
	return o.Buyer != nil && party == *o.Buyer
}

// CanonicalBytes returns deterministic serialization for hashing
func (o *Order) CanonicalBytes() []byte {
	buf := make([]byte, 0, 128)

	// order_id (8 bytes LE)
	buf = appendInt64LE(buf, o.OrderID)

	// seller (16 bytes UUID binary)
	buf = append(buf, o.Seller[:]...)

	// buyer (presence byte + 16 bytes when set)
	if o.Buyer != nil {
		buf = append(buf, 1)
		buf = append(buf, (*o.Buyer)[:]...)
	} else {
		buf = append(buf, 0)
	}

	// amount (8 bytes LE)
	buf = appendInt64LE(buf, o.Amount)

	// fee_bps (8 bytes LE)
	buf = appendInt64LE(buf, o.FeeBps)

	// description (length-prefixed)
	buf = appendString(buf, o.Description)

	// status (1 byte)
	buf = append(buf, byte(o.Status))

	// escrow_held (8 bytes LE)
	buf = appendInt64LE(buf, o.EscrowHeld)

	// dispute_id (presence byte + 8 bytes when set)
	if o.DisputeID != nil {
		buf = append(buf, 1)
		buf = appendInt64LE(buf, *o.DisputeID)
	} else {
		buf = append(buf, 0)
	}

	return buf
}

func appendInt64LE(buf []byte, v int64) []byte {
	return append(buf,
		byte(v),
		byte(v>>8),
		byte(v>>16),
		byte(v>>24),
		byte(v>>32),
		byte(v>>40),
		byte(v>>48),
		byte(v>>56),
	)
}

func appendString(buf []byte, s string) []byte {
	buf = appendInt64LE(buf, int64(len(s)))
	return append(buf, s...)
}
