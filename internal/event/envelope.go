package event

import (
	"time"
)

// EventType discriminator for command payloads
type EventType int32

const (
	EventTypeUnknown EventType = iota
	EventTypeDeposit
	EventTypeWithdraw
	EventTypeOrderCreate
	EventTypeOrderFund
	EventTypeOrderConfirm
	EventTypeOrderCancel
	EventTypeDisputeRaise
	EventTypeEvidenceSubmit
	EventTypeDisputeReview
	EventTypeDisputeResolve
	EventTypeDisputeCancel
	EventTypePolicyUpdate
	EventTypeArbitratorUpdate
	EventTypeVerificationSet
)

// Stream partition keys for source sequence validation
const (
	StreamFunds    = "funds"
	StreamOrders   = "orders"
	StreamDisputes = "disputes"
	StreamAdmin    = "admin"
)

// EventEnvelope wraps every committed command in the log
type EventEnvelope struct {
	// Global monotonic sequence assigned by core
	Sequence int64

	// Stable idempotency key from upstream
	IdempotencyKey string

	// Command type discriminator
	EventType EventType

	// Source stream partition
	Stream string

	// Versioned input timestamp (NOT wall-clock)
	Timestamp time.Time

	// Upstream sequence for ordering validation
	SourceSequence int64

	// Wire JSON of the originating command
	Payload []byte

	// SHA-256 of state AFTER applying this command
	StateHash [32]byte

	// Previous event's state hash (chain integrity)
	PrevHash [32]byte
}

// Event is the interface all command payloads must implement
type Event interface {
	// IdempotencyKey returns the stable dedup key
	IdempotencyKey() string

	// EventType returns the discriminator
	EventType() EventType

	// Stream returns the source partition key
	Stream() string

	// SourceSequence returns upstream ordering key
	SourceSequence() int64
}

func (et EventType) String() string {
	switch et {
	case EventTypeDeposit:
		return "Deposit"
	case EventTypeWithdraw:
		return "Withdraw"
	case EventTypeOrderCreate:
		return "OrderCreate"
	case EventTypeOrderFund:
		return "OrderFund"
	case EventTypeOrderConfirm:
		return "OrderConfirm"
	case EventTypeOrderCancel:
		return "OrderCancel"
	case EventTypeDisputeRaise:
		return "DisputeRaise"
	case EventTypeEvidenceSubmit:
		return "EvidenceSubmit"
	case EventTypeDisputeReview:
		return "DisputeReview"
	case EventTypeDisputeResolve:
		return "DisputeResolve"
	case EventTypeDisputeCancel:
		return "DisputeCancel"
	case EventTypePolicyUpdate:
		return "PolicyUpdate"
	case EventTypeArbitratorUpdate:
		return "ArbitratorUpdate"
	case EventTypeVerificationSet:
		return "VerificationSet"
	default:
		return "Unknown"
	}
}
