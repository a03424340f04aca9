package event

import (
	"time"

	"github.com/google/uuid"
)

// PolicyUpdate changes the fee parameters. Owner-only.
// Idempotency key: command_id (UUID assigned by the submitting client).
type PolicyUpdate struct {
	CommandID         uuid.UUID // Idempotency key
	Caller            uuid.UUID
	FeeBps            int64
	DisputeFeeMinimum int64
	FeeRecipient      uuid.UUID
	Sequence          int64
	Timestamp         time.Time // Versioned input timestamp (NOT wall-clock)
}

func (p *PolicyUpdate) IdempotencyKey() string {
	return p.CommandID.String()
}

func (p *PolicyUpdate) EventType() EventType {
	return EventTypePolicyUpdate
}

func (p *PolicyUpdate) Stream() string {
	return StreamAdmin
}

func (p *PolicyUpdate) SourceSequence() int64 {
	return p.Sequence
}

// ArbitratorUpdate grants or revokes arbitration capability. Owner-only.
type ArbitratorUpdate struct {
	CommandID  uuid.UUID // Idempotency key
	Caller     uuid.UUID
	Arbitrator uuid.UUID
	Granted    bool
	Sequence   int64
	Timestamp  time.Time
}

func (a *ArbitratorUpdate) IdempotencyKey() string {
	return a.CommandID.String()
}

func (a *ArbitratorUpdate) EventType() EventType {
	return EventTypeArbitratorUpdate
}

func (a *ArbitratorUpdate) Stream() string {
	return StreamAdmin
}

func (a *ArbitratorUpdate) SourceSequence() int64 {
	return a.Sequence
}

// VerificationSet grants or revokes a participant's verified flag.
// Owner-only; granting requires the participant's score to clear the
// verification threshold.
type VerificationSet struct {
	CommandID   uuid.UUID // Idempotency key
	Caller      uuid.UUID
	Participant uuid.UUID
	Verified    bool
	Sequence    int64
	Timestamp   time.Time
}

func (v *VerificationSet) IdempotencyKey() string {
	return v.CommandID.String()
}

func (v *VerificationSet) EventType() EventType {
	return EventTypeVerificationSet
}

func (v *VerificationSet) Stream() string {
	return StreamAdmin
}

func (v *VerificationSet) SourceSequence() int64 {
	return v.Sequence
}
