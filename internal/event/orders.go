package event

import (
	"time"

	"github.com/google/uuid"
)

// OrderCreate opens a new escrow-backed order. The seller's deposit of
// exactly the order amount moves into custody on acceptance.
// Idempotency key: command_id (UUID assigned by the submitting client).
type OrderCreate struct {
	CommandID   uuid.UUID // Idempotency key
	Seller      uuid.UUID
	Amount      int64
	Description string
	Sequence    int64
	Timestamp   time.Time // Versioned input timestamp (NOT wall-clock)
}

func (o *OrderCreate) IdempotencyKey() string {
	return o.CommandID.String()
}

func (o *OrderCreate) EventType() EventType {
	return EventTypeOrderCreate
}

func (o *OrderCreate) Stream() string {
	return StreamOrders
}

func (o *OrderCreate) SourceSequence() int64 {
	return o.Sequence
}

// OrderFund records the buyer's matching payment into custody
type OrderFund struct {
	CommandID uuid.UUID // Idempotency key
	OrderID   int64
	Buyer     uuid.UUID
	Payment   int64 // Must equal the order amount exactly
	Sequence  int64
	Timestamp time.Time
}

func (o *OrderFund) IdempotencyKey() string {
	return o.CommandID.String()
}

func (o *OrderFund) EventType() EventType {
	return EventTypeOrderFund
}

func (o *OrderFund) Stream() string {
	return StreamOrders
}

func (o *OrderFund) SourceSequence() int64 {
	return o.Sequence
}

// OrderConfirm settles a funded order: the buyer acknowledges receipt and
// the pooled deposits pay out to the seller net of the platform fee.
type OrderConfirm struct {
	CommandID uuid.UUID // Idempotency key
	OrderID   int64
	Caller    uuid.UUID // Must be the buyer
	Sequence  int64
	Timestamp time.Time
}

func (o *OrderConfirm) IdempotencyKey() string {
	return o.CommandID.String()
}

func (o *OrderConfirm) EventType() EventType {
	return EventTypeOrderConfirm
}

func (o *OrderConfirm) Stream() string {
	return StreamOrders
}

func (o *OrderConfirm) SourceSequence() int64 {
	return o.Sequence
}

// OrderCancel withdraws an unfunded order and refunds the seller deposit
type OrderCancel struct {
	CommandID uuid.UUID // Idempotency key
	OrderID   int64
	Caller    uuid.UUID // Must be the seller
	Sequence  int64
	Timestamp time.Time
}

func (o *OrderCancel) IdempotencyKey() string {
	return o.CommandID.String()
}

func (o *OrderCancel) EventType() EventType {
	return EventTypeOrderCancel
}

func (o *OrderCancel) Stream() string {
	return StreamOrders
}

func (o *OrderCancel) SourceSequence() int64 {
	return o.Sequence
}
