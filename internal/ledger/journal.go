package ledger

import (
	"fmt"

	"github.com/google/uuid"
)

// JournalType represents the purpose of a journal entry
type JournalType int32

const (
	JournalTypeDeposit JournalType = iota
	JournalTypeWithdrawal
	JournalTypeEscrowDeposit    // seller stake at order creation
	JournalTypeEscrowFunding    // buyer payment at order funding
	JournalTypeSettlementPayout // buyer payment (net of fee) to seller at confirmation
	JournalTypeEscrowRelease    // seller stake returned at confirmation
	JournalTypeSettlementFee    // platform fee to fee recipient
	JournalTypeEscrowRefund     // seller stake refunded on cancellation
	JournalTypeDisputeFeeHold   // dispute fee into custody
	JournalTypeDisputeFeeRefund // dispute fee back to disputer
	JournalTypeDisputeAward     // pooled payout to dispute winner
)

func (jt JournalType) String() string {
	switch jt {
	case JournalTypeDeposit:
		return "deposit"
	case JournalTypeWithdrawal:
		return "withdrawal"
	case JournalTypeEscrowDeposit:
		return "escrow_deposit"
	case JournalTypeEscrowFunding:
		return "escrow_funding"
	case JournalTypeSettlementPayout:
		return "settlement_payout"
	case JournalTypeEscrowRelease:
		return "escrow_release"
	case JournalTypeSettlementFee:
		return "settlement_fee"
	case JournalTypeEscrowRefund:
		return "escrow_refund"
	case JournalTypeDisputeFeeHold:
		return "dispute_fee_hold"
	case JournalTypeDisputeFeeRefund:
		return "dispute_fee_refund"
	case JournalTypeDisputeAward:
		return "dispute_award"
	default:
		return "unknown"
	}
}

// Journal represents a single double-entry journal entry
type Journal struct {
	JournalID     uuid.UUID   // Unique identifier
	BatchID       uuid.UUID   // Groups entries from one command
	EventRef      string      // Idempotency key of source command
	Sequence      int64       // Global event sequence
	DebitAccount  AccountKey  // Account receiving debit (balance increases)
	CreditAccount AccountKey  // Account receiving credit (balance decreases)
	Amount        int64       // Integer settlement units (ALWAYS positive)
	JournalType   JournalType // Entry type
	Timestamp     int64       // Versioned input timestamp (epoch microseconds)
}

// Batch represents a balanced set of journal entries
type Batch struct {
	BatchID   uuid.UUID
	EventRef  string
	Sequence  int64
	Timestamp int64
	Journals  []Journal
}

// Validate ensures the batch is well-formed.
// Note on balance invariant: each journal entry is a balanced transfer by construction
// (a single positive amount moves from credit account to debit account). Therefore
// Σ debits == Σ credits is guaranteed per-entry. Multi-leg batches (e.g., confirmation
// with payout, stake release, and fee) use multiple entries under one batch_id — each
// individually balanced.
func (b *Batch) Validate() error {
	if len(b.Journals) == 0 {
		return fmt.Errorf("batch %s is empty", b.BatchID)
	}

	for _, j := range b.Journals {
		// Amounts are strictly positive; zero-value legs are omitted at generation
		if j.Amount <= 0 {
			return fmt.Errorf("journal %s has non-positive amount: %d", j.JournalID, j.Amount)
		}

		if j.BatchID != b.BatchID {
			return fmt.Errorf("journal %s has mismatched batch_id", j.JournalID)
		}

		// No self-transfers
		if j.DebitAccount == j.CreditAccount {
			return fmt.Errorf("journal %s has same debit and credit account", j.JournalID)
		}
	}

	return nil
}
