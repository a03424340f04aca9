package event

import (
	"time"

	"github.com/google/uuid"
)

// Winner identifies which order side an arbitrator awarded.
// Arbitration cannot name a third party.
type Winner int32

const (
	WinnerNone Winner = iota
	WinnerBuyer
	WinnerSeller
)

func (w Winner) String() string {
	switch w {
	case WinnerBuyer:
		return "Buyer"
	case WinnerSeller:
		return "Seller"
	default:
		return "None"
	}
}

// DisputeRaise opens a dispute on a funded or confirmed order. The dispute
// fee moves into custody until the dispute closes.
// Idempotency key: command_id (UUID assigned by the submitting client).
type DisputeRaise struct {
	CommandID    uuid.UUID // Idempotency key
	OrderID      int64
	Disputer     uuid.UUID
	Reason       string
	EvidenceHash string
	Fee          int64 // Must clear the configured minimum
	Sequence     int64
	Timestamp    time.Time // Versioned input timestamp (NOT wall-clock)
}

func (d *DisputeRaise) IdempotencyKey() string {
	return d.CommandID.String()
}

func (d *DisputeRaise) EventType() EventType {
	return EventTypeDisputeRaise
}

func (d *DisputeRaise) Stream() string {
	return StreamDisputes
}

func (d *DisputeRaise) SourceSequence() int64 {
	return d.Sequence
}

// EvidenceSubmit appends an evidence entry to an active dispute
type EvidenceSubmit struct {
	CommandID    uuid.UUID // Idempotency key
	DisputeID    int64
	Caller       uuid.UUID // Must be an order participant
	EvidenceHash string
	Note         string
	Sequence     int64
	Timestamp    time.Time
}

func (e *EvidenceSubmit) IdempotencyKey() string {
	return e.CommandID.String()
}

func (e *EvidenceSubmit) EventType() EventType {
	return EventTypeEvidenceSubmit
}

func (e *EvidenceSubmit) Stream() string {
	return StreamDisputes
}

func (e *EvidenceSubmit) SourceSequence() int64 {
	return e.Sequence
}

// DisputeReview marks a dispute as under arbitration
type DisputeReview struct {
	CommandID  uuid.UUID // Idempotency key
	DisputeID  int64
	Arbitrator uuid.UUID
	Sequence   int64
	Timestamp  time.Time
}

func (d *DisputeReview) IdempotencyKey() string {
	return d.CommandID.String()
}

func (d *DisputeReview) EventType() EventType {
	return EventTypeDisputeReview
}

func (d *DisputeReview) Stream() string {
	return StreamDisputes
}

func (d *DisputeReview) SourceSequence() int64 {
	return d.Sequence
}

// DisputeResolve closes a dispute with an arbitrated winner. The pooled
// custody pays the winner net of fee and the dispute fee is refunded.
type DisputeResolve struct {
	CommandID  uuid.UUID // Idempotency key
	DisputeID  int64
	Arbitrator uuid.UUID
	Winner     Winner
	Resolution string
	Sequence   int64
	Timestamp  time.Time
}

func (d *DisputeResolve) IdempotencyKey() string {
	return d.CommandID.String()
}

func (d *DisputeResolve) EventType() EventType {
	return EventTypeDisputeResolve
}

func (d *DisputeResolve) Stream() string {
	return StreamDisputes
}

func (d *DisputeResolve) SourceSequence() int64 {
	return d.Sequence
}

// DisputeCancel is the owner's administrative override: the dispute closes
// with no award, the fee is refunded and the order's prior status restored.
type DisputeCancel struct {
	CommandID uuid.UUID // Idempotency key
	DisputeID int64
	Caller    uuid.UUID // Must be the owner
	Sequence  int64
	Timestamp time.Time
}

func (d *DisputeCancel) IdempotencyKey() string {
	return d.CommandID.String()
}

func (d *DisputeCancel) EventType() EventType {
	return EventTypeDisputeCancel
}

func (d *DisputeCancel) Stream() string {
	return StreamDisputes
}

func (d *DisputeCancel) SourceSequence() int64 {
	return d.Sequence
}
