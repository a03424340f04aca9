package event

import (
	"time"

	"github.com/google/uuid"
)

// Deposit credits a participant's available balance from outside the system.
// Idempotency key: transfer_id (UUID from the funding gateway).
type Deposit struct {
	TransferID  uuid.UUID // Idempotency key
	Participant uuid.UUID
	Amount      int64
	Sequence    int64
	Timestamp   time.Time // Versioned input timestamp (NOT wall-clock)
}

func (d *Deposit) IdempotencyKey() string {
	return d.TransferID.String()
}

func (d *Deposit) EventType() EventType {
	return EventTypeDeposit
}

func (d *Deposit) Stream() string {
	return StreamFunds
}

func (d *Deposit) SourceSequence() int64 {
	return d.Sequence
}

// Withdraw debits a participant's available balance out of the system.
// Settlement payouts are pull-style: participants withdraw credited funds.
type Withdraw struct {
	TransferID  uuid.UUID // Idempotency key
	Participant uuid.UUID
	Amount      int64
	Sequence    int64
	Timestamp   time.Time
}

func (w *Withdraw) IdempotencyKey() string {
	return w.TransferID.String()
}

func (w *Withdraw) EventType() EventType {
	return EventTypeWithdraw
}

func (w *Withdraw) Stream() string {
	return StreamFunds
}

func (w *Withdraw) SourceSequence() int64 {
	return w.Sequence
}
