package ledger

import (
	"fmt"

	"github.com/google/uuid"
)

// JournalGenerator creates balanced journal batches from commands
type JournalGenerator struct {
	sequence       int64
	balanceTracker *BalanceTracker // Reference for pre-checks
}

func NewJournalGenerator(startSequence int64, tracker *BalanceTracker) *JournalGenerator {
	return &JournalGenerator{
		sequence:       startSequence,
		balanceTracker: tracker,
	}
}

// SetSequence aligns the generator with the core sequence (snapshot restore)
func (jg *JournalGenerator) SetSequence(seq int64) {
	jg.sequence = seq
}

// GenerateDeposit moves funds: external:funding → participant:available
func (jg *JournalGenerator) GenerateDeposit(
	participant uuid.UUID,
	eventRef string,
	amount int64,
	timestamp int64,
) (*Batch, error) {
	batchID := uuid.New()

	batch := &Batch{
		BatchID:   batchID,
		EventRef:  eventRef,
		Sequence:  jg.sequence,
		Timestamp: timestamp,
		Journals:  make([]Journal, 0, 1),
	}

	journal := Journal{
		JournalID:     uuid.New(),
		BatchID:       batchID,
		EventRef:      eventRef,
		Sequence:      jg.sequence,
		DebitAccount:  NewParticipantAccountKey(participant),
		CreditAccount: NewExternalFundingKey(),
		Amount:        amount,
		JournalType:   JournalTypeDeposit,
		Timestamp:     timestamp,
	}

	batch.Journals = append(batch.Journals, journal)
	jg.sequence++

	return batch, nil
}

// GenerateWithdrawal moves funds: participant:available → external:funding.
// Pre-check: participant must have sufficient available balance.
func (jg *JournalGenerator) GenerateWithdrawal(
	participant uuid.UUID,
	eventRef string,
	amount int64,
	timestamp int64,
) (*Batch, error) {
	if err := jg.balanceTracker.ValidateSufficientAvailable(participant, amount); err != nil {
		return nil, fmt.Errorf("withdrawal pre-check failed: %w", err)
	}

	batchID := uuid.New()

	batch := &Batch{
		BatchID:   batchID,
		EventRef:  eventRef,
		Sequence:  jg.sequence,
		Timestamp: timestamp,
		Journals:  make([]Journal, 0, 1),
	}

	journal := Journal{
		JournalID:     uuid.New(),
		BatchID:       batchID,
		EventRef:      eventRef,
		Sequence:      jg.sequence,
		DebitAccount:  NewExternalFundingKey(),
		CreditAccount: NewParticipantAccountKey(participant),
		Amount:        amount,
		JournalType:   JournalTypeWithdrawal,
		Timestamp:     timestamp,
	}

	batch.Journals = append(batch.Journals, journal)
	jg.sequence++

	return batch, nil
}

// GenerateOrderEscrow locks the seller stake: participant:available → custody:order.
// Pre-check: seller must have sufficient available balance.
func (jg *JournalGenerator) GenerateOrderEscrow(
	seller uuid.UUID,
	orderID int64,
	eventRef string,
	amount int64,
	timestamp int64,
) (*Batch, error) {
	if err := jg.balanceTracker.ValidateSufficientAvailable(seller, amount); err != nil {
		return nil, fmt.Errorf("order escrow pre-check failed: %w", err)
	}

	batchID := uuid.New()

	batch := &Batch{
		BatchID:   batchID,
		EventRef:  eventRef,
		Sequence:  jg.sequence,
		Timestamp: timestamp,
		Journals:  make([]Journal, 0, 1),
	}

	journal := Journal{
		JournalID:     uuid.New(),
		BatchID:       batchID,
		EventRef:      eventRef,
		Sequence:      jg.sequence,
		DebitAccount:  NewOrderEscrowKey(orderID),
		CreditAccount: NewParticipantAccountKey(seller),
		Amount:        amount,
		JournalType:   JournalTypeEscrowDeposit,
		Timestamp:     timestamp,
	}

	batch.Journals = append(batch.Journals, journal)
	jg.sequence++

	return batch, nil
}

// GenerateOrderFunding locks the buyer payment: participant:available → custody:order.
// Pre-check: buyer must have sufficient available balance.
func (jg *JournalGenerator) GenerateOrderFunding(
	buyer uuid.UUID,
	orderID int64,
	eventRef string,
	payment int64,
	timestamp int64,
) (*Batch, error) {
	if err := jg.balanceTracker.ValidateSufficientAvailable(buyer, payment); err != nil {
		return nil, fmt.Errorf("order funding pre-check failed: %w", err)
	}

	batchID := uuid.New()

	batch := &Batch{
		BatchID:   batchID,
		EventRef:  eventRef,
		Sequence:  jg.sequence,
		Timestamp: timestamp,
		Journals:  make([]Journal, 0, 1),
	}

	journal := Journal{
		JournalID:     uuid.New(),
		BatchID:       batchID,
		EventRef:      eventRef,
		Sequence:      jg.sequence,
		DebitAccount:  NewOrderEscrowKey(orderID),
		CreditAccount: NewParticipantAccountKey(buyer),
		Amount:        payment,
		JournalType:   JournalTypeEscrowFunding,
		Timestamp:     timestamp,
	}

	batch.Journals = append(batch.Journals, journal)
	jg.sequence++

	return batch, nil
}

// GenerateOrderSettlement pays out a confirmed order from its 2×amount pool:
//
//	custody:order → seller       amount − fee   (payment leg)
//	custody:order → seller       amount         (stake return)
//	custody:order → feeRecipient fee            (omitted when fee is 0)
//
// Pre-check: the custody account must hold exactly both deposits.
func (jg *JournalGenerator) GenerateOrderSettlement(
	orderID int64,
	seller uuid.UUID,
	feeRecipient uuid.UUID,
	amount int64,
	feeAmount int64,
	eventRef string,
	timestamp int64,
) (*Batch, error) {
	held := jg.balanceTracker.GetOrderEscrow(orderID)
	if held != 2*amount {
		return nil, fmt.Errorf("settlement pre-check failed: order %d escrow holds %d, want %d",
			orderID, held, 2*amount)
	}
	if feeAmount < 0 || feeAmount > amount {
		return nil, fmt.Errorf("settlement pre-check failed: fee %d out of range for amount %d",
			feeAmount, amount)
	}

	batchID := uuid.New()

	batch := &Batch{
		BatchID:   batchID,
		EventRef:  eventRef,
		Sequence:  jg.sequence,
		Timestamp: timestamp,
		Journals:  make([]Journal, 0, 3),
	}

	// Payment leg: buyer's deposit net of fee
	if amount-feeAmount > 0 {
		payout := Journal{
			JournalID:     uuid.New(),
			BatchID:       batchID,
			EventRef:      eventRef,
			Sequence:      jg.sequence,
			DebitAccount:  NewParticipantAccountKey(seller),
			CreditAccount: NewOrderEscrowKey(orderID),
			Amount:        amount - feeAmount,
			JournalType:   JournalTypeSettlementPayout,
			Timestamp:     timestamp,
		}
		batch.Journals = append(batch.Journals, payout)
	}

	// Stake return: seller's own deposit
	release := Journal{
		JournalID:     uuid.New(),
		BatchID:       batchID,
		EventRef:      eventRef,
		Sequence:      jg.sequence,
		DebitAccount:  NewParticipantAccountKey(seller),
		CreditAccount: NewOrderEscrowKey(orderID),
		Amount:        amount,
		JournalType:   JournalTypeEscrowRelease,
		Timestamp:     timestamp,
	}
	batch.Journals = append(batch.Journals, release)

	// Fee leg
	if feeAmount > 0 {
		feeJournal := Journal{
			JournalID:     uuid.New(),
			BatchID:       batchID,
			EventRef:      eventRef,
			Sequence:      jg.sequence,
			DebitAccount:  NewParticipantAccountKey(feeRecipient),
			CreditAccount: NewOrderEscrowKey(orderID),
			Amount:        feeAmount,
			JournalType:   JournalTypeSettlementFee,
			Timestamp:     timestamp,
		}
		batch.Journals = append(batch.Journals, feeJournal)
	}

	jg.sequence++
	return batch, nil
}

// GenerateOrderRefund returns the seller stake of a cancelled order:
// custody:order → seller. Pre-check: custody must hold exactly the stake.
func (jg *JournalGenerator) GenerateOrderRefund(
	orderID int64,
	seller uuid.UUID,
	amount int64,
	eventRef string,
	timestamp int64,
) (*Batch, error) {
	held := jg.balanceTracker.GetOrderEscrow(orderID)
	if held != amount {
		return nil, fmt.Errorf("refund pre-check failed: order %d escrow holds %d, want %d",
			orderID, held, amount)
	}

	batchID := uuid.New()

	batch := &Batch{
		BatchID:   batchID,
		EventRef:  eventRef,
		Sequence:  jg.sequence,
		Timestamp: timestamp,
		Journals:  make([]Journal, 0, 1),
	}

	journal := Journal{
		JournalID:     uuid.New(),
		BatchID:       batchID,
		EventRef:      eventRef,
		Sequence:      jg.sequence,
		DebitAccount:  NewParticipantAccountKey(seller),
		CreditAccount: NewOrderEscrowKey(orderID),
		Amount:        amount,
		JournalType:   JournalTypeEscrowRefund,
		Timestamp:     timestamp,
	}

	batch.Journals = append(batch.Journals, journal)
	jg.sequence++

	return batch, nil
}

// GenerateDisputeFeeHold locks a dispute fee: participant:available → custody:dispute.
// Pre-check: disputer must have sufficient available balance. A zero fee
// (legal when the configured minimum is 0) produces an empty batch.
func (jg *JournalGenerator) GenerateDisputeFeeHold(
	disputer uuid.UUID,
	disputeID int64,
	fee int64,
	eventRef string,
	timestamp int64,
) (*Batch, error) {
	if fee > 0 {
		if err := jg.balanceTracker.ValidateSufficientAvailable(disputer, fee); err != nil {
			return nil, fmt.Errorf("dispute fee pre-check failed: %w", err)
		}
	}

	batchID := uuid.New()

	batch := &Batch{
		BatchID:   batchID,
		EventRef:  eventRef,
		Sequence:  jg.sequence,
		Timestamp: timestamp,
		Journals:  make([]Journal, 0, 1),
	}

	if fee > 0 {
		journal := Journal{
			JournalID:     uuid.New(),
			BatchID:       batchID,
			EventRef:      eventRef,
			Sequence:      jg.sequence,
			DebitAccount:  NewDisputeFeeKey(disputeID),
			CreditAccount: NewParticipantAccountKey(disputer),
			Amount:        fee,
			JournalType:   JournalTypeDisputeFeeHold,
			Timestamp:     timestamp,
		}
		batch.Journals = append(batch.Journals, journal)
	}

	jg.sequence++

	return batch, nil
}

// GenerateDisputeResolution settles a resolved dispute in one batch:
//
//	custody:order   → winner       pool − fee     (omitted when the pool is empty)
//	custody:order   → feeRecipient fee            (omitted when fee is 0)
//	custody:dispute → disputer     disputeFee     (always refunded on resolution)
//
// Pre-checks: custody accounts must hold exactly the pool and the fee.
func (jg *JournalGenerator) GenerateDisputeResolution(
	orderID int64,
	disputeID int64,
	winner uuid.UUID,
	disputer uuid.UUID,
	feeRecipient uuid.UUID,
	pool int64,
	feeAmount int64,
	disputeFee int64,
	eventRef string,
	timestamp int64,
) (*Batch, error) {
	held := jg.balanceTracker.GetOrderEscrow(orderID)
	if held != pool {
		return nil, fmt.Errorf("resolution pre-check failed: order %d escrow holds %d, want %d",
			orderID, held, pool)
	}
	feeHeld := jg.balanceTracker.GetDisputeFeeHold(disputeID)
	if feeHeld != disputeFee {
		return nil, fmt.Errorf("resolution pre-check failed: dispute %d fee hold is %d, want %d",
			disputeID, feeHeld, disputeFee)
	}
	if feeAmount < 0 || feeAmount > pool {
		return nil, fmt.Errorf("resolution pre-check failed: fee %d out of range for pool %d",
			feeAmount, pool)
	}

	batchID := uuid.New()

	batch := &Batch{
		BatchID:   batchID,
		EventRef:  eventRef,
		Sequence:  jg.sequence,
		Timestamp: timestamp,
		Journals:  make([]Journal, 0, 3),
	}

	// Award leg: the pooled deposits net of fee
	if pool-feeAmount > 0 {
		award := Journal{
			JournalID:     uuid.New(),
			BatchID:       batchID,
			EventRef:      eventRef,
			Sequence:      jg.sequence,
			DebitAccount:  NewParticipantAccountKey(winner),
			CreditAccount: NewOrderEscrowKey(orderID),
			Amount:        pool - feeAmount,
			JournalType:   JournalTypeDisputeAward,
			Timestamp:     timestamp,
		}
		batch.Journals = append(batch.Journals, award)
	}

	// Fee leg
	if feeAmount > 0 {
		feeJournal := Journal{
			JournalID:     uuid.New(),
			BatchID:       batchID,
			EventRef:      eventRef,
			Sequence:      jg.sequence,
			DebitAccount:  NewParticipantAccountKey(feeRecipient),
			CreditAccount: NewOrderEscrowKey(orderID),
			Amount:        feeAmount,
			JournalType:   JournalTypeSettlementFee,
			Timestamp:     timestamp,
		}
		batch.Journals = append(batch.Journals, feeJournal)
	}

	// Dispute fee refund
	if disputeFee > 0 {
		refund := Journal{
			JournalID:     uuid.New(),
			BatchID:       batchID,
			EventRef:      eventRef,
			Sequence:      jg.sequence,
			DebitAccount:  NewParticipantAccountKey(disputer),
			CreditAccount: NewDisputeFeeKey(disputeID),
			Amount:        disputeFee,
			JournalType:   JournalTypeDisputeFeeRefund,
			Timestamp:     timestamp,
		}
		batch.Journals = append(batch.Journals, refund)
	}

	jg.sequence++
	return batch, nil
}

// GenerateDisputeFeeRefund returns the held fee of a cancelled dispute:
// custody:dispute → disputer. Pre-check: custody must hold exactly the fee.
func (jg *JournalGenerator) GenerateDisputeFeeRefund(
	disputeID int64,
	disputer uuid.UUID,
	fee int64,
	eventRef string,
	timestamp int64,
) (*Batch, error) {
	feeHeld := jg.balanceTracker.GetDisputeFeeHold(disputeID)
	if feeHeld != fee {
		return nil, fmt.Errorf("fee refund pre-check failed: dispute %d fee hold is %d, want %d",
			disputeID, feeHeld, fee)
	}

	batchID := uuid.New()

	batch := &Batch{
		BatchID:   batchID,
		EventRef:  eventRef,
		Sequence:  jg.sequence,
		Timestamp: timestamp,
		Journals:  make([]Journal, 0, 1),
	}

	if fee > 0 {
		journal := Journal{
			JournalID:     uuid.New(),
			BatchID:       batchID,
			EventRef:      eventRef,
			Sequence:      jg.sequence,
			DebitAccount:  NewParticipantAccountKey(disputer),
			CreditAccount: NewDisputeFeeKey(disputeID),
			Amount:        fee,
			JournalType:   JournalTypeDisputeFeeRefund,
			Timestamp:     timestamp,
		}
		batch.Journals = append(batch.Journals, journal)
	}

	jg.sequence++

	return batch, nil
}
